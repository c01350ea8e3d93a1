// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package connection manages the lifecycle of connected accounts: creating
// them from API keys, basic-auth pairs or OAuth2 callbacks, refreshing their
// tokens and invoking actions with them.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/oauth"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/store"
	"github.com/tombee/switchboard/internal/tracing"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// refreshTimeout bounds a shared token refresh.
const refreshTimeout = 30 * time.Second

// Registry looks up adapters by integration id.
type Registry interface {
	Get(id string) api.Adapter
}

// OAuthFlow is the part of the OAuth2 controller the manager drives.
type OAuthFlow interface {
	AuthorizationURL(ctx context.Context, def *schema.IntegrationDefinition, connectionName, redirectURL string) (string, error)
	VerifyState(ctx context.Context, token string) (*oauth.State, error)
	ExchangeCode(ctx context.Context, def *schema.IntegrationDefinition, code string) (*credential.Credentials, error)
}

// Config configures a Manager.
type Config struct {
	Registry Registry
	Store    store.CredentialStore

	// OAuth is required only for OAuth2 integrations.
	OAuth OAuthFlow

	Now    func() time.Time
	Logger *slog.Logger
}

// Manager owns connection records.
type Manager struct {
	registry Registry
	store    store.CredentialStore
	oauth    OAuthFlow
	now      func() time.Time
	logger   *slog.Logger

	// writeMu serializes read-modify-write updates of stored records.
	writeMu   sync.Mutex
	refreshes singleflight.Group
}

// NewManager creates a manager.
func NewManager(cfg Config) *Manager {
	m := &Manager{
		registry: cfg.Registry,
		store:    cfg.Store,
		oauth:    cfg.OAuth,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	m.logger = log.WithComponent(m.logger, "connection")
	return m
}

// OAuthResult is the outcome of a completed authorization callback.
type OAuthResult struct {
	Connection *credential.Credential
	// RedirectURL is where the user agent should be sent next.
	RedirectURL string
}

func (m *Manager) adapter(integrationID string) (api.Adapter, error) {
	a := m.registry.Get(integrationID)
	if a == nil {
		return nil, &sberrors.ConfigError{
			Key:    "integrations." + integrationID,
			Reason: "unknown integration",
		}
	}
	return a, nil
}

// ConnectAPIKey validates and stores an API-key connection.
func (m *Manager) ConnectAPIKey(ctx context.Context, integrationID, name, apiKey string, extra map[string]string) (*credential.Credential, error) {
	return m.connect(ctx, integrationID, name, credential.Credentials{APIKey: apiKey, Extra: extra})
}

// ConnectBasicAuth validates and stores a basic-auth connection.
func (m *Manager) ConnectBasicAuth(ctx context.Context, integrationID, name, username, password string, extra map[string]string) (*credential.Credential, error) {
	return m.connect(ctx, integrationID, name, credential.Credentials{
		Username: username,
		Password: password,
		Extra:    extra,
	})
}

func (m *Manager) connect(ctx context.Context, integrationID, name string, creds credential.Credentials) (*credential.Credential, error) {
	a, err := m.adapter(integrationID)
	if err != nil {
		return nil, err
	}
	def := a.Definition()
	if err := creds.Check(def.AuthType); err != nil {
		return nil, &sberrors.ValidationError{
			Field:      "credentials",
			Message:    err.Error(),
			Suggestion: fmt.Sprintf("%s uses %s authentication", def.Name, def.AuthType),
		}
	}
	return m.validateAndStore(ctx, a, name, creds)
}

func (m *Manager) validateAndStore(ctx context.Context, a api.Adapter, name string, creds credential.Credentials) (*credential.Credential, error) {
	def := a.Definition()
	res := a.ValidateCredentials(ctx, creds)
	if !res.Valid {
		return nil, &sberrors.AuthError{Provider: def.ID, Message: res.Error}
	}

	if name == "" {
		name = def.Name
	}
	now := m.now()
	c := &credential.Credential{
		ID:            uuid.NewString(),
		IntegrationID: def.ID,
		Name:          name,
		Credentials:   creds,
		Metadata:      res.Metadata,
		Enabled:       true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := m.store.CreateCredential(ctx, c); err != nil {
		return nil, sberrors.Wrap(err, "store connection")
	}

	attrs := []any{"name", name, "credentials", creds}
	if creds.APIKey != "" {
		attrs = append(attrs, "api_key", log.SanitizeAPIKey(creds.APIKey))
	}
	log.WithConnection(m.logger, def.ID, c.ID).Info("connection created", attrs...)
	return c.Clone(), nil
}

// StartOAuth returns the provider authorization URL for a new connection.
func (m *Manager) StartOAuth(ctx context.Context, integrationID, name, redirectURL string) (string, error) {
	a, err := m.adapter(integrationID)
	if err != nil {
		return "", err
	}
	if m.oauth == nil {
		return "", &sberrors.ConfigError{Key: "oauth", Reason: "OAuth2 is not configured"}
	}
	return m.oauth.AuthorizationURL(ctx, a.Definition(), name, redirectURL)
}

// CompleteOAuth handles an authorization callback. Any failure aborts the
// flow without storing a connection.
func (m *Manager) CompleteOAuth(ctx context.Context, state, code string) (*OAuthResult, error) {
	if m.oauth == nil {
		return nil, &sberrors.ConfigError{Key: "oauth", Reason: "OAuth2 is not configured"}
	}

	st, err := m.oauth.VerifyState(ctx, state)
	if err != nil {
		return nil, fmt.Errorf("verify state: %w", err)
	}
	if st == nil {
		return nil, &sberrors.AuthError{Message: "invalid or expired OAuth state"}
	}
	if code == "" {
		return nil, &sberrors.ValidationError{Field: "code", Message: "authorization code is required"}
	}

	a, err := m.adapter(st.IntegrationID)
	if err != nil {
		return nil, err
	}
	creds, err := m.oauth.ExchangeCode(ctx, a.Definition(), code)
	if err != nil {
		return nil, err
	}

	c, err := m.validateAndStore(ctx, a, st.ConnectionName, *creds)
	if err != nil {
		return nil, err
	}
	return &OAuthResult{Connection: c, RedirectURL: st.RedirectURL}, nil
}

// Invoke runs an action with a stored connection. Expiring tokens are
// refreshed first; concurrent callers share one refresh per connection.
// Failures are always reported in the ActionResult; the error carries the
// classified cause for callers that branch on it.
func (m *Manager) Invoke(ctx context.Context, connectionID, actionID string, input map[string]any) (api.ActionResult, error) {
	conn, err := m.store.GetCredential(ctx, connectionID)
	if err != nil {
		return api.Failed("%s", err.Error()), err
	}
	a, err := m.adapter(conn.IntegrationID)
	if err != nil {
		return api.Failed("%s", err.Error()), err
	}
	if !conn.Enabled {
		err := &sberrors.ValidationError{
			Field:      "connection",
			Message:    fmt.Sprintf("connection %s is disabled", conn.ID),
			Suggestion: "enable the connection before using it",
		}
		return api.Failed("%s", err.Error()), err
	}

	if a.NeedsRefresh(conn.Credentials) {
		conn, err = m.refresh(ctx, a, conn.ID)
		if err != nil {
			return api.Failed("%s", err.Error()), err
		}
	}

	result := a.ExecuteAction(ctx, actionID, api.ActionContext{Connection: conn, Input: input})
	m.touch(ctx, conn.ID)
	return result, nil
}

// refresh replaces the connection's tokens. Concurrent calls for the same
// connection share one provider round-trip. The shared round-trip is not
// tied to any one caller: a caller that gives up gets a retryable error and
// the others keep waiting.
func (m *Manager) refresh(ctx context.Context, a api.Adapter, connectionID string) (*credential.Credential, error) {
	ch := m.refreshes.DoChan(connectionID, func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		return m.doRefresh(rctx, a, connectionID)
	})

	select {
	case <-ctx.Done():
		return nil, refreshInterrupted(a.Definition().ID, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		conn := res.Val.(*credential.Credential)
		if res.Shared {
			conn = conn.Clone()
		}
		return conn, nil
	}
}

// refreshInterrupted reports a refresh that was cancelled or timed out. The
// stored tokens are untouched, so the call can be retried.
func refreshInterrupted(provider string, cause error) error {
	return &sberrors.DeliveryError{
		Target:  provider,
		Message: "token refresh interrupted",
		Cause:   cause,
	}
}

func (m *Manager) doRefresh(ctx context.Context, a api.Adapter, connectionID string) (*credential.Credential, error) {
	current, err := m.store.GetCredential(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	if !a.NeedsRefresh(current.Credentials) {
		// another caller refreshed between our read and this one
		return current, nil
	}
	return m.exchange(ctx, a, current)
}

func (m *Manager) exchange(ctx context.Context, a api.Adapter, current *credential.Credential) (_ *credential.Credential, err error) {
	provider := a.Definition().ID
	ctx, span := tracing.StartRefresh(ctx, provider, current.ID)
	defer func() {
		tracing.End(span, err)
		metrics.RecordTokenRefresh(provider, err == nil)
	}()

	logger := log.WithConnection(m.logger, provider, current.ID)

	refresher, ok := a.(api.Refresher)
	if !ok {
		return nil, &sberrors.AuthError{Provider: provider, Message: "credentials expired", Reauthorize: true}
	}
	fresh, err := refresher.RefreshTokens(ctx, current.Credentials)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		logger.Warn("token refresh interrupted", "error", err)
		return nil, refreshInterrupted(provider, err)
	}
	if err != nil || fresh == nil {
		logger.Warn("token refresh failed", "error", err)
		return nil, &sberrors.AuthError{
			Provider:    provider,
			Message:     "token refresh failed",
			Reauthorize: true,
			Cause:       err,
		}
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	latest, err := m.store.GetCredential(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	latest.Credentials = *fresh
	if err := m.store.UpdateCredential(ctx, latest); err != nil {
		return nil, sberrors.Wrapf(err, "store refreshed tokens for %s", current.ID)
	}

	logger.Info("token refreshed", "credentials", latest.Credentials)
	return latest, nil
}

// touch stamps LastUsedAt. A connection deleted mid-call is left deleted.
func (m *Manager) touch(ctx context.Context, connectionID string) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	c, err := m.store.GetCredential(ctx, connectionID)
	if err != nil {
		return
	}
	now := m.now()
	c.LastUsedAt = &now
	if err := m.store.UpdateCredential(ctx, c); err != nil {
		m.logger.Debug("failed to stamp last use", "connection_id", connectionID, "error", err)
	}
}

// Validate re-checks a stored connection against its provider.
func (m *Manager) Validate(ctx context.Context, connectionID string) (api.ValidationResult, error) {
	conn, err := m.store.GetCredential(ctx, connectionID)
	if err != nil {
		return api.ValidationResult{}, err
	}
	a, err := m.adapter(conn.IntegrationID)
	if err != nil {
		return api.ValidationResult{}, err
	}
	return a.ValidateCredentials(ctx, conn.Credentials), nil
}

// SetEnabled enables or disables a connection.
func (m *Manager) SetEnabled(ctx context.Context, connectionID string, enabled bool) (*credential.Credential, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	c, err := m.store.GetCredential(ctx, connectionID)
	if err != nil {
		return nil, err
	}
	c.Enabled = enabled
	if err := m.store.UpdateCredential(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes a connection. Deleting an unknown id succeeds; calls
// already holding a copy of the record run to completion.
func (m *Manager) Delete(ctx context.Context, connectionID string) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return m.store.DeleteCredential(ctx, connectionID)
}

// Get returns a connection.
func (m *Manager) Get(ctx context.Context, connectionID string) (*credential.Credential, error) {
	return m.store.GetCredential(ctx, connectionID)
}

// List returns connections, optionally for one integration.
func (m *Manager) List(ctx context.Context, integrationID string) ([]*credential.Credential, error) {
	return m.store.ListCredentials(ctx, store.CredentialFilter{IntegrationID: integrationID})
}
