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

// Package oauth implements the OAuth2 authorization-code flow: issuing
// authorization URLs bound to single-use state, exchanging codes for tokens
// and refreshing tokens before they expire.
package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/schema"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// Flow stages recorded in metrics.
const (
	stageStarted   = "started"
	stageCompleted = "completed"
	stageFailed    = "failed"
)

// extraKeys are non-secret token response fields kept on the credential.
var extraKeys = []string{"workspace_id", "workspace_name", "bot_id", "account_id", "scope"}

// Client is an application's registration with a provider.
type Client struct {
	ID     string
	Secret string
}

// ClientSource resolves the client registration for an integration.
type ClientSource interface {
	Client(ctx context.Context, integrationID string) (Client, error)
}

// StaticClients is a ClientSource backed by a map.
type StaticClients map[string]Client

// Client implements ClientSource.
func (s StaticClients) Client(_ context.Context, integrationID string) (Client, error) {
	c, ok := s[integrationID]
	if !ok || c.ID == "" || c.Secret == "" {
		return Client{}, &sberrors.ConfigError{
			Key:    "providers." + integrationID,
			Reason: "client_id and client_secret are required for OAuth2",
		}
	}
	return c, nil
}

// Config configures a Controller.
type Config struct {
	Store   StateStore
	Clients ClientSource

	// CallbackURL is the fixed redirect_uri registered with every provider.
	CallbackURL string

	// HTTPClient issues token endpoint requests.
	HTTPClient *http.Client

	Now    func() time.Time
	Logger *slog.Logger
}

// Controller runs authorization-code flows.
type Controller struct {
	store       StateStore
	clients     ClientSource
	callbackURL string
	httpClient  *http.Client
	now         func() time.Time
	logger      *slog.Logger
}

// NewController creates a controller.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Store == nil {
		return nil, errors.New("oauth: state store is required")
	}
	if cfg.Clients == nil {
		return nil, errors.New("oauth: client source is required")
	}
	if cfg.CallbackURL == "" {
		return nil, &sberrors.ConfigError{Key: "server.base_callback_url", Reason: "callback URL is required for OAuth2"}
	}

	c := &Controller{
		store:       cfg.Store,
		clients:     cfg.Clients,
		callbackURL: cfg.CallbackURL,
		httpClient:  cfg.HTTPClient,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	c.logger = log.WithComponent(c.logger, "oauth")
	return c, nil
}

// AuthorizationURL issues a new state for the flow and returns the
// provider's authorization URL. Expired states are swept first.
func (c *Controller) AuthorizationURL(ctx context.Context, def *schema.IntegrationDefinition, connectionName, redirectURL string) (string, error) {
	if err := requireOAuth2(def); err != nil {
		return "", err
	}
	client, err := c.clients.Client(ctx, def.ID)
	if err != nil {
		return "", err
	}

	if n, err := c.store.Sweep(ctx); err != nil {
		c.logger.Warn("state sweep failed", "error", err)
	} else if n > 0 {
		c.logger.Debug("swept expired states", "count", n)
	}

	token, err := NewStateToken()
	if err != nil {
		return "", err
	}
	st := State{
		IntegrationID:  def.ID,
		ConnectionName: connectionName,
		RedirectURL:    redirectURL,
		CreatedAt:      c.now(),
	}
	if err := c.store.Put(ctx, token, st); err != nil {
		return "", fmt.Errorf("store state: %w", err)
	}

	opts := []oauth2.AuthCodeOption{}
	if scopes := def.OAuth2.JoinedScopes(); scopes != "" {
		opts = append(opts, oauth2.SetAuthURLParam("scope", scopes))
	}
	for k, v := range def.OAuth2.ExtraAuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}

	metrics.RecordOAuthFlow(def.ID, stageStarted)
	return c.config(def, client).AuthCodeURL(token, opts...), nil
}

// VerifyState consumes a state token. It returns nil when the token is
// unknown, already used or older than StateTTL.
func (c *Controller) VerifyState(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, nil
	}
	return c.store.Take(ctx, token)
}

// ExchangeCode trades an authorization code for credentials. Any non-2xx
// response from the token endpoint is an error.
func (c *Controller) ExchangeCode(ctx context.Context, def *schema.IntegrationDefinition, code string) (*credential.Credentials, error) {
	if err := requireOAuth2(def); err != nil {
		return nil, err
	}
	client, err := c.clients.Client(ctx, def.ID)
	if err != nil {
		return nil, err
	}

	tok, err := c.config(def, client).Exchange(c.clientContext(ctx), code)
	if err != nil {
		log.WithProvider(c.logger, def.ID).Warn("code exchange failed", "error", describeTokenError(err))
		metrics.RecordOAuthFlow(def.ID, stageFailed)
		return nil, &sberrors.AuthError{
			Provider: def.ID,
			Message:  "code exchange failed: " + describeTokenError(err),
			Cause:    err,
		}
	}

	metrics.RecordOAuthFlow(def.ID, stageCompleted)
	creds := c.credentialsFrom(tok)
	return &creds, nil
}

// RefreshToken runs the refresh_token grant. Every failure is an AuthError
// with Reauthorize set.
func (c *Controller) RefreshToken(ctx context.Context, def *schema.IntegrationDefinition, refreshToken string) (*credential.Credentials, error) {
	if err := requireOAuth2(def); err != nil {
		return nil, err
	}
	if refreshToken == "" {
		return nil, &sberrors.AuthError{Provider: def.ID, Message: "no refresh token", Reauthorize: true}
	}
	client, err := c.clients.Client(ctx, def.ID)
	if err != nil {
		return nil, err
	}

	src := c.config(def, client).TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		log.WithProvider(c.logger, def.ID).Warn("token refresh failed", "error", describeTokenError(err))
		return nil, &sberrors.AuthError{
			Provider:    def.ID,
			Message:     "token refresh failed: " + describeTokenError(err),
			Reauthorize: true,
			Cause:       err,
		}
	}

	creds := c.credentialsFrom(tok)
	return &creds, nil
}

func (c *Controller) config(def *schema.IntegrationDefinition, client Client) *oauth2.Config {
	style := oauth2.AuthStyleInParams
	if def.OAuth2.TokenAuthStyle == schema.TokenAuthInHeader {
		style = oauth2.AuthStyleInHeader
	}
	return &oauth2.Config{
		ClientID:     client.ID,
		ClientSecret: client.Secret,
		RedirectURL:  c.callbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:   def.OAuth2.AuthorizationURL,
			TokenURL:  def.OAuth2.TokenURL,
			AuthStyle: style,
		},
	}
}

func (c *Controller) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// credentialsFrom maps a token response. expires_in is measured from the
// controller's clock.
func (c *Controller) credentialsFrom(tok *oauth2.Token) credential.Credentials {
	creds := credential.Credentials{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
	}
	switch {
	case tok.ExpiresIn > 0:
		at := c.now().Add(time.Duration(tok.ExpiresIn) * time.Second)
		creds.ExpiresAt = &at
	case !tok.Expiry.IsZero():
		at := tok.Expiry
		creds.ExpiresAt = &at
	}

	for _, key := range extraKeys {
		if v, ok := tok.Extra(key).(string); ok && v != "" {
			if creds.Extra == nil {
				creds.Extra = map[string]string{}
			}
			creds.Extra[key] = v
		}
	}
	return creds
}

func requireOAuth2(def *schema.IntegrationDefinition) error {
	if def == nil {
		return &sberrors.ConfigError{Reason: "integration definition is required"}
	}
	if def.AuthType != schema.AuthOAuth2 || def.OAuth2 == nil {
		return &sberrors.ConfigError{
			Key:    "integrations." + def.ID,
			Reason: "integration does not use OAuth2",
		}
	}
	return nil
}

// describeTokenError extracts the provider's error code from a token
// endpoint failure.
func describeTokenError(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		var parts []string
		if re.Response != nil {
			parts = append(parts, fmt.Sprintf("HTTP %d", re.Response.StatusCode))
		}
		if re.ErrorCode != "" {
			parts = append(parts, re.ErrorCode)
		}
		if re.ErrorDescription != "" {
			parts = append(parts, re.ErrorDescription)
		}
		if len(parts) > 0 {
			return strings.Join(parts, ": ")
		}
	}
	return err.Error()
}
