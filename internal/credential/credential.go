// Package credential defines the persisted record of one connected account.
package credential

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/tombee/switchboard/internal/schema"
)

// RefreshSkew is how far ahead of expiry an access token is treated as stale.
// It must cover the round-trip of a single action call.
const RefreshSkew = 5 * time.Minute

// Kind classifies which credential model a Credentials value carries.
type Kind string

const (
	KindNone   Kind = "none"
	KindOAuth2 Kind = "oauth2"
	KindAPIKey Kind = "api_key"
	KindBasic  Kind = "basic_auth"
	// KindMixed means more than one model is populated, which is invalid.
	KindMixed Kind = "mixed"
)

// Credentials holds the secret material of a connection.
type Credentials struct {
	AccessToken  string     `json:"access_token,omitempty"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	TokenType    string     `json:"token_type,omitempty"`

	APIKey string `json:"api_key,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`

	// Extra carries non-secret provider parameters such as a Jira site URL.
	Extra map[string]string `json:"extra,omitempty"`
}

// Kind reports which credential model is populated.
func (c Credentials) Kind() Kind {
	var kinds []Kind
	if c.AccessToken != "" {
		kinds = append(kinds, KindOAuth2)
	}
	if c.APIKey != "" {
		kinds = append(kinds, KindAPIKey)
	}
	if c.Username != "" || c.Password != "" {
		kinds = append(kinds, KindBasic)
	}
	switch len(kinds) {
	case 0:
		return KindNone
	case 1:
		return kinds[0]
	default:
		return KindMixed
	}
}

// Check verifies that exactly the model required by authType is populated.
func (c Credentials) Check(authType schema.AuthType) error {
	kind := c.Kind()
	if kind == KindMixed {
		return fmt.Errorf("credentials populate more than one auth model")
	}
	want := Kind(authType)
	if authType == schema.AuthNone {
		want = KindNone
	}
	if kind != want {
		return fmt.Errorf("credentials are %s but integration requires %s", kind, want)
	}
	if kind == KindBasic && (c.Username == "" || c.Password == "") {
		return fmt.Errorf("basic auth requires both username and password")
	}
	return nil
}

// NeedsRefresh reports whether an expiry is set and falls within RefreshSkew of now.
func (c Credentials) NeedsRefresh(now time.Time) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now.Add(RefreshSkew))
}

// Clone returns a deep copy.
func (c Credentials) Clone() Credentials {
	out := c
	if c.ExpiresAt != nil {
		t := *c.ExpiresAt
		out.ExpiresAt = &t
	}
	out.Extra = maps.Clone(c.Extra)
	return out
}

// LogValue keeps secrets out of structured logs.
func (c Credentials) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("kind", string(c.Kind()))}
	if c.ExpiresAt != nil {
		attrs = append(attrs, slog.Time("expires_at", *c.ExpiresAt))
	}
	if c.RefreshToken != "" {
		attrs = append(attrs, slog.Bool("refreshable", true))
	}
	return slog.GroupValue(attrs...)
}

// Credential is one connected account.
type Credential struct {
	ID            string         `json:"id"`
	IntegrationID string         `json:"integration_id"`
	Name          string         `json:"name"`
	Credentials   Credentials    `json:"credentials"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	Enabled       bool           `json:"enabled"`
	LastUsedAt    *time.Time     `json:"last_used_at,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Clone returns a deep copy so callers can hold a snapshot across
// concurrent updates or deletion of the stored record.
func (c *Credential) Clone() *Credential {
	if c == nil {
		return nil
	}
	out := *c
	out.Credentials = c.Credentials.Clone()
	out.Metadata = maps.Clone(c.Metadata)
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}
