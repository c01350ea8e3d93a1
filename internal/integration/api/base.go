package api

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

// ErrNotRefreshable is returned by RefreshTokens for credentials that have
// no refresh path.
var ErrNotRefreshable = errors.New("credentials cannot be refreshed")

// Config holds what every adapter needs to talk to its provider.
type Config struct {
	// Transport issues the HTTP calls. Defaults to a pooled HTTPTransport.
	Transport transport.Transport

	// BaseURL overrides the definition's BaseURL (tests, self-hosted).
	BaseURL string

	// Exchanger performs refresh_token grants for OAuth2 providers.
	Exchanger TokenExchanger

	// Now is the clock used by NeedsRefresh. Defaults to time.Now.
	Now func() time.Time

	Logger *slog.Logger
}

// BaseAdapter provides the shared behavior of all adapters.
type BaseAdapter struct {
	def        *schema.IntegrationDefinition
	transport  transport.Transport
	baseURL    string
	exchanger  TokenExchanger
	now        func() time.Time
	headers    map[string]string
	validators map[string]*schema.InputValidator
	logger     *slog.Logger
}

// NewBaseAdapter creates a base adapter for def. defaultHeaders are sent on
// every request (API version headers and the like).
func NewBaseAdapter(def *schema.IntegrationDefinition, cfg Config, defaultHeaders map[string]string) (*BaseAdapter, error) {
	tr := cfg.Transport
	if tr == nil {
		tr = transport.NewHTTPTransport(transport.HTTPConfig{Logger: cfg.Logger})
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = def.BaseURL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	validators := make(map[string]*schema.InputValidator, len(def.Actions))
	for _, action := range def.Actions {
		v, err := schema.NewInputValidator(action)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", def.ID, err)
		}
		validators[action.ID] = v
	}

	return &BaseAdapter{
		def:        def,
		transport:  tr,
		baseURL:    strings.TrimRight(baseURL, "/"),
		exchanger:  cfg.Exchanger,
		now:        now,
		headers:    defaultHeaders,
		validators: validators,
		logger:     logger.With("provider", def.ID),
	}, nil
}

// Definition returns the integration definition.
func (b *BaseAdapter) Definition() *schema.IntegrationDefinition {
	return b.def
}

// ID returns the integration id.
func (b *BaseAdapter) ID() string {
	return b.def.ID
}

// BaseURL returns the configured API base URL without a trailing slash.
func (b *BaseAdapter) BaseURL() string {
	return b.baseURL
}

// Logger returns the adapter's logger.
func (b *BaseAdapter) Logger() *slog.Logger {
	return b.logger
}

// NeedsRefresh reports whether creds expire within credential.RefreshSkew.
func (b *BaseAdapter) NeedsRefresh(creds credential.Credentials) bool {
	return creds.NeedsRefresh(b.now())
}

// RefreshTokens exchanges the refresh token for a new access token. The
// refresh token and provider extras carry over when the provider does not
// rotate them.
func (b *BaseAdapter) RefreshTokens(ctx context.Context, creds credential.Credentials) (*credential.Credentials, error) {
	if b.def.AuthType != schema.AuthOAuth2 || creds.RefreshToken == "" {
		return nil, ErrNotRefreshable
	}
	if b.exchanger == nil {
		return nil, fmt.Errorf("%s: no token exchanger configured", b.def.ID)
	}

	fresh, err := b.exchanger.RefreshToken(ctx, b.def, creds.RefreshToken)
	if err != nil {
		return nil, err
	}
	if fresh == nil || fresh.AccessToken == "" {
		return nil, fmt.Errorf("%s: refresh returned no access token", b.def.ID)
	}

	out := fresh.Clone()
	if out.RefreshToken == "" {
		out.RefreshToken = creds.RefreshToken
	}
	if out.Extra == nil && creds.Extra != nil {
		out.Extra = creds.Clone().Extra
	}
	return &out, nil
}

// authHeader computes the single auth header for creds. This is the only
// place where the auth scheme is chosen.
func (b *BaseAdapter) authHeader(creds credential.Credentials) (name, value string, err error) {
	switch creds.Kind() {
	case credential.KindOAuth2:
		tokenType := creds.TokenType
		if tokenType == "" || strings.EqualFold(tokenType, "bearer") {
			tokenType = "Bearer"
		}
		return "Authorization", tokenType + " " + creds.AccessToken, nil

	case credential.KindAPIKey:
		header, prefix := "Authorization", ""
		if cfg := b.def.APIKey; cfg != nil {
			if cfg.HeaderName != "" {
				header = cfg.HeaderName
			}
			prefix = cfg.Prefix
		}
		if prefix != "" {
			return header, prefix + " " + creds.APIKey, nil
		}
		return header, creds.APIKey, nil

	case credential.KindBasic:
		raw := creds.Username + ":" + creds.Password
		return "Authorization", "Basic " + base64.StdEncoding.EncodeToString([]byte(raw)), nil

	case credential.KindNone:
		return "", "", nil

	default:
		return "", "", fmt.Errorf("credentials populate more than one auth model")
	}
}

// MakeRequest attaches default headers and the credential's auth header,
// then executes req. It returns a response for every HTTP status.
func (b *BaseAdapter) MakeRequest(ctx context.Context, req *transport.Request, creds credential.Credentials) (*transport.Response, error) {
	headers := make(map[string]string, len(b.headers)+len(req.Headers)+1)
	for k, v := range b.headers {
		headers[k] = v
	}
	for k, v := range req.Headers {
		headers[k] = v
	}

	name, value, err := b.authHeader(creds)
	if err != nil {
		return nil, err
	}
	if name != "" {
		headers[name] = value
	}

	out := *req
	out.Headers = headers
	return b.transport.Execute(ctx, &out)
}

// DoJSON sends body as JSON (nil for no body).
func (b *BaseAdapter) DoJSON(ctx context.Context, method, url string, body any, creds credential.Credentials) (*transport.Response, error) {
	req := &transport.Request{Method: method, URL: url}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		req.Body = data
		req.Headers = map[string]string{"Content-Type": "application/json"}
	}
	return b.MakeRequest(ctx, req, creds)
}

// DoForm sends fields url-encoded with bracket notation for nested values.
func (b *BaseAdapter) DoForm(ctx context.Context, method, url string, fields map[string]any, creds credential.Credentials) (*transport.Response, error) {
	return b.MakeRequest(ctx, &transport.Request{
		Method:  method,
		URL:     url,
		Headers: map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		Body:    []byte(EncodeForm(fields).Encode()),
	}, creds)
}

// BuildURL constructs a full URL from a path template and inputs.
// Path templates use {param} syntax (e.g., "/repos/{owner}/{repo}/issues").
func (b *BaseAdapter) BuildURL(pathTemplate string, inputs map[string]any) (string, error) {
	return BuildURL(b.baseURL, pathTemplate, inputs)
}

// BuildURL joins base and a path template, substituting {param}
// placeholders from inputs with path-escaped values.
func BuildURL(base, pathTemplate string, inputs map[string]any) (string, error) {
	path := pathTemplate
	for key, value := range inputs {
		placeholder := "{" + key + "}"
		if strings.Contains(path, placeholder) {
			path = strings.ReplaceAll(path, placeholder, url.PathEscape(fmt.Sprint(value)))
		}
	}

	if start := strings.Index(path, "{"); start >= 0 {
		if end := strings.Index(path[start:], "}"); end > 0 {
			return "", fmt.Errorf("missing required parameter: %s", path[start+1:start+end])
		}
	}

	return strings.TrimRight(base, "/") + path, nil
}

// BuildQueryString constructs a query string from the named inputs that are present.
func BuildQueryString(inputs map[string]any, keys ...string) string {
	values := url.Values{}
	for _, key := range keys {
		if v, ok := inputs[key]; ok && v != nil {
			encodeFormValue(values, key, v)
		}
	}
	if len(values) == 0 {
		return ""
	}
	return "?" + values.Encode()
}

// DecodeJSON parses a JSON response into target. An empty body is not an error.
func DecodeJSON(resp *transport.Response, target any) error {
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, target); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// DecodeObject parses a JSON object response into a map.
func DecodeObject(resp *transport.Response) (map[string]any, error) {
	out := map[string]any{}
	if err := DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckStatus converts a non-2xx response into an error.
func CheckStatus(resp *transport.Response) error {
	if te := transport.StatusError(resp); te != nil {
		return te
	}
	return nil
}

// Probe issues a lightweight authenticated request and converts the outcome
// into a ValidationResult. extract turns a 2xx response into display metadata.
func (b *BaseAdapter) Probe(ctx context.Context, method, url string, creds credential.Credentials, check func(*transport.Response) error, extract func(*transport.Response) (map[string]any, error)) ValidationResult {
	resp, err := b.MakeRequest(ctx, &transport.Request{Method: method, URL: url}, creds)
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	if check == nil {
		check = CheckStatus
	}
	if err := check(resp); err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	if extract == nil {
		return ValidationResult{Valid: true}
	}
	meta, err := extract(resp)
	if err != nil {
		return ValidationResult{Valid: false, Error: err.Error()}
	}
	return ValidationResult{Valid: true, Metadata: meta}
}

// Pick copies the named keys present in src.
func Pick(src map[string]any, keys ...string) map[string]any {
	out := make(map[string]any, len(keys))
	for _, k := range keys {
		if v, ok := src[k]; ok {
			out[k] = v
		}
	}
	return out
}

// String returns inputs[key] as a string, or "".
func String(inputs map[string]any, key string) string {
	if v, ok := inputs[key].(string); ok {
		return v
	}
	return ""
}
