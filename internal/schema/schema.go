// Package schema describes integrations declaratively: who they are, how they
// authenticate, and the typed inputs and outputs of each callable action.
// Everything here is plain data built once at startup and never mutated.
package schema

import "strings"

// AuthType identifies one of the supported credential models.
type AuthType string

const (
	AuthOAuth2    AuthType = "oauth2"
	AuthAPIKey    AuthType = "api_key"
	AuthBasicAuth AuthType = "basic_auth"
	AuthNone      AuthType = "none"
)

// Category groups integrations for catalog display.
type Category string

const (
	CategoryCommunication Category = "communication"
	CategoryDeveloper     Category = "developer"
	CategoryProductivity  Category = "productivity"
	CategoryPayments      Category = "payments"
	CategoryAI            Category = "ai"
	CategoryStorage       Category = "storage"
	CategorySMS           Category = "sms"
	CategoryEmail         Category = "email"
)

// TokenAuthStyle controls how client credentials are presented to a token endpoint.
type TokenAuthStyle string

const (
	// TokenAuthInParams sends client_id and client_secret as form fields.
	TokenAuthInParams TokenAuthStyle = "params"
	// TokenAuthInHeader sends client credentials as HTTP Basic auth.
	TokenAuthInHeader TokenAuthStyle = "header"
)

// OAuth2Config describes a provider's authorization-code endpoints.
type OAuth2Config struct {
	AuthorizationURL string   `json:"authorization_url"`
	TokenURL         string   `json:"token_url"`
	Scopes           []string `json:"scopes,omitempty"`

	// ScopeDelimiter joins Scopes in the authorization URL. Defaults to a space.
	ScopeDelimiter string `json:"scope_delimiter,omitempty"`

	// ExtraAuthParams are appended to the authorization URL (e.g. owner=user).
	ExtraAuthParams map[string]string `json:"extra_auth_params,omitempty"`

	// TokenAuthStyle defaults to TokenAuthInParams.
	TokenAuthStyle TokenAuthStyle `json:"token_auth_style,omitempty"`
}

// JoinedScopes returns the configured scopes joined by the provider's delimiter.
func (c *OAuth2Config) JoinedScopes() string {
	delim := c.ScopeDelimiter
	if delim == "" {
		delim = " "
	}
	return strings.Join(c.Scopes, delim)
}

// APIKeyConfig describes where an API key travels.
type APIKeyConfig struct {
	// HeaderName defaults to Authorization.
	HeaderName string `json:"header_name"`
	// Prefix is prepended to the key with a single space, e.g. "Bearer" or "Bot".
	Prefix string `json:"prefix,omitempty"`
}

// BasicAuthConfig labels the two halves of a basic-auth credential for display.
type BasicAuthConfig struct {
	UsernameLabel string `json:"username_label,omitempty"`
	PasswordLabel string `json:"password_label,omitempty"`
}

// FieldType is a JSON type name.
type FieldType string

const (
	TypeString  FieldType = "string"
	TypeNumber  FieldType = "number"
	TypeInteger FieldType = "integer"
	TypeBoolean FieldType = "boolean"
	TypeObject  FieldType = "object"
	TypeArray   FieldType = "array"
)

// FieldSchema describes one input or output field.
type FieldSchema struct {
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Required    bool      `json:"required,omitempty"`
	Default     any       `json:"default,omitempty"`
	Enum        []any     `json:"enum,omitempty"`
}

// ActionDefinition describes one callable action.
type ActionDefinition struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]FieldSchema `json:"input_schema"`
	OutputSchema map[string]FieldSchema `json:"output_schema,omitempty"`
}

// IntegrationDefinition is the immutable identity of a provider.
type IntegrationDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	AuthType    AuthType `json:"auth_type"`
	BaseURL     string   `json:"base_url,omitempty"`

	OAuth2    *OAuth2Config    `json:"oauth2,omitempty"`
	APIKey    *APIKeyConfig    `json:"api_key,omitempty"`
	BasicAuth *BasicAuthConfig `json:"basic_auth,omitempty"`

	Actions []ActionDefinition `json:"actions"`
}

// Action returns the action with the given id.
func (d *IntegrationDefinition) Action(id string) (ActionDefinition, bool) {
	for _, a := range d.Actions {
		if a.ID == id {
			return a, true
		}
	}
	return ActionDefinition{}, false
}

// ActionIDs returns action ids in declaration order.
func (d *IntegrationDefinition) ActionIDs() []string {
	ids := make([]string, len(d.Actions))
	for i, a := range d.Actions {
		ids[i] = a.ID
	}
	return ids
}

// Matches reports whether query is a case-insensitive substring of the
// definition's name or description. An empty query matches everything.
func (d *IntegrationDefinition) Matches(query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(d.Name), q) ||
		strings.Contains(strings.ToLower(d.Description), q)
}
