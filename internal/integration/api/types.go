// Package api provides the contract and shared base for provider adapters.
package api

import (
	"context"
	"fmt"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/schema"
)

// ActionContext is the input to one action call.
type ActionContext struct {
	// Connection is a snapshot of the stored credential. Adapters never
	// mutate it.
	Connection *credential.Credential
	Input      map[string]any
}

// Credentials returns the connection's secrets, or the zero value.
func (a ActionContext) Credentials() credential.Credentials {
	if a.Connection == nil {
		return credential.Credentials{}
	}
	return a.Connection.Credentials
}

// ActionResult is either a success with an output map or a failure with a
// human-readable reason. There is no partial success.
type ActionResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Succeeded builds a successful result.
func Succeeded(output map[string]any) ActionResult {
	if output == nil {
		output = map[string]any{}
	}
	return ActionResult{Success: true, Output: output}
}

// Failed builds a failed result.
func Failed(format string, args ...any) ActionResult {
	return ActionResult{Success: false, Error: fmt.Sprintf(format, args...)}
}

// ValidationResult reports whether a credential works. Metadata is for
// display (account id, workspace name) and never contains secrets.
type ValidationResult struct {
	Valid    bool           `json:"valid"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Adapter is implemented once per external service.
type Adapter interface {
	// Definition returns the immutable integration description.
	Definition() *schema.IntegrationDefinition

	// ExecuteAction runs a named action. It never returns an error: every
	// failure, including an unknown action, is a failed ActionResult.
	ExecuteAction(ctx context.Context, actionID string, actx ActionContext) ActionResult

	// ValidateCredentials makes one lightweight authenticated call.
	ValidateCredentials(ctx context.Context, creds credential.Credentials) ValidationResult

	// NeedsRefresh reports whether the access token is within the refresh
	// skew of its expiry.
	NeedsRefresh(creds credential.Credentials) bool
}

// Refresher is implemented by adapters whose credentials can be refreshed.
type Refresher interface {
	// RefreshTokens returns replacement credentials. On any failure it
	// returns nil and an error; callers must treat that as reconnect-required.
	RefreshTokens(ctx context.Context, creds credential.Credentials) (*credential.Credentials, error)
}

// TokenExchanger performs the refresh_token grant against a provider's token
// endpoint. The OAuth2 controller implements it.
type TokenExchanger interface {
	RefreshToken(ctx context.Context, def *schema.IntegrationDefinition, refreshToken string) (*credential.Credentials, error)
}
