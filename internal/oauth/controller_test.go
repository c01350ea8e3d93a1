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

package oauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/switchboard/internal/integration/github"
	"github.com/tombee/switchboard/internal/integration/notion"
	"github.com/tombee/switchboard/internal/integration/slack"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/schema"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

const callbackURL = "https://switchboard.example.com/oauth/callback"

var testClients = StaticClients{
	"slack":  {ID: "slack-id", Secret: "slack-secret"},
	"notion": {ID: "notion-id", Secret: "notion-secret"},
	"github": {ID: "gh-id", Secret: "gh-secret"},
}

func newTestController(t *testing.T, clock *fakeClock) (*Controller, *MemoryStateStore) {
	t.Helper()
	store := NewMemoryStateStore(WithClock(clock.Now))
	c, err := NewController(Config{
		Store:       store,
		Clients:     testClients,
		CallbackURL: callbackURL,
		Now:         clock.Now,
		Logger:      log.Discard(),
	})
	require.NoError(t, err)
	return c, store
}

func withTokenURL(def *schema.IntegrationDefinition, tokenURL string) *schema.IntegrationDefinition {
	def.OAuth2.TokenURL = tokenURL
	return def
}

func parseAuthURL(t *testing.T, raw string) url.Values {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u.Query()
}

func TestAuthorizationURL(t *testing.T) {
	tests := []struct {
		name      string
		def       *schema.IntegrationDefinition
		wantScope string
		wantExtra map[string]string
	}{
		{
			name:      "slack joins scopes with commas",
			def:       slack.Definition(),
			wantScope: "chat:write,channels:read,reactions:write,users:read",
		},
		{
			name:      "github joins scopes with spaces",
			def:       github.Definition(),
			wantScope: "repo read:user",
		},
		{
			name:      "notion adds owner=user",
			def:       notion.Definition(),
			wantExtra: map[string]string{"owner": "user"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			c, store := newTestController(t, clock)

			raw, err := c.AuthorizationURL(context.Background(), tt.def, "team", "/done")
			require.NoError(t, err)

			q := parseAuthURL(t, raw)
			assert.Equal(t, "code", q.Get("response_type"))
			assert.Equal(t, testClients[tt.def.ID].ID, q.Get("client_id"))
			assert.Equal(t, callbackURL, q.Get("redirect_uri"))
			assert.Equal(t, tt.wantScope, q.Get("scope"))
			for k, v := range tt.wantExtra {
				assert.Equal(t, v, q.Get(k))
			}
			assert.Len(t, q.Get("state"), 43)
			assert.Equal(t, 1, store.Len())
		})
	}
}

func TestAuthorizationURL_StateRoundTrip(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(t, clock)
	ctx := context.Background()

	raw, err := c.AuthorizationURL(ctx, slack.Definition(), "ops", "/integrations")
	require.NoError(t, err)
	token := parseAuthURL(t, raw).Get("state")

	st, err := c.VerifyState(ctx, token)
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "slack", st.IntegrationID)
	assert.Equal(t, "ops", st.ConnectionName)
	assert.Equal(t, "/integrations", st.RedirectURL)
	assert.Equal(t, clock.Now(), st.CreatedAt)

	st, err = c.VerifyState(ctx, token)
	require.NoError(t, err)
	assert.Nil(t, st, "replayed callback must fail")

	st, err = c.VerifyState(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestAuthorizationURL_SweepsExpiredStates(t *testing.T) {
	clock := newFakeClock()
	c, store := newTestController(t, clock)
	ctx := context.Background()

	_, err := c.AuthorizationURL(ctx, slack.Definition(), "a", "")
	require.NoError(t, err)
	clock.Advance(11 * time.Minute)
	_, err = c.AuthorizationURL(ctx, slack.Definition(), "b", "")
	require.NoError(t, err)

	assert.Equal(t, 1, store.Len(), "abandoned flow is swept")
}

func TestAuthorizationURL_Errors(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestController(t, clock)

	def := slack.Definition()
	def.ID = "unconfigured"
	_, err := c.AuthorizationURL(context.Background(), def, "x", "")
	var cfgErr *sberrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "providers.unconfigured", cfgErr.Key)

	apiKey := &schema.IntegrationDefinition{ID: "stripe", AuthType: schema.AuthAPIKey}
	_, err = c.AuthorizationURL(context.Background(), apiKey, "x", "")
	require.ErrorAs(t, err, &cfgErr)
}

func writeToken(w http.ResponseWriter, body map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func TestExchangeCode_ClientCredentialsInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		_, _, hasBasic := r.BasicAuth()
		assert.False(t, hasBasic)
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, callbackURL, r.PostForm.Get("redirect_uri"))
		assert.Equal(t, "slack-id", r.PostForm.Get("client_id"))
		assert.Equal(t, "slack-secret", r.PostForm.Get("client_secret"))
		writeToken(w, map[string]any{
			"access_token":  "xoxb-1",
			"token_type":    "bearer",
			"refresh_token": "xoxe-1",
			"expires_in":    43200,
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c, _ := newTestController(t, clock)

	creds, err := c.ExchangeCode(context.Background(), withTokenURL(slack.Definition(), srv.URL), "the-code")
	require.NoError(t, err)
	assert.Equal(t, "xoxb-1", creds.AccessToken)
	assert.Equal(t, "xoxe-1", creds.RefreshToken)
	assert.Equal(t, "bearer", creds.TokenType)
	require.NotNil(t, creds.ExpiresAt)
	assert.Equal(t, clock.Now().Add(12*time.Hour), *creds.ExpiresAt)
}

func TestExchangeCode_NotionUsesBasicAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		user, pass, ok := r.BasicAuth()
		require.True(t, ok, "notion exchanges with basic auth")
		assert.Equal(t, "notion-id", user)
		assert.Equal(t, "notion-secret", pass)
		assert.Empty(t, r.PostForm.Get("client_secret"))
		writeToken(w, map[string]any{
			"access_token":   "secret_abc",
			"token_type":     "bearer",
			"workspace_name": "Acme",
			"workspace_id":   "ws-1",
		})
	}))
	defer srv.Close()

	c, _ := newTestController(t, newFakeClock())

	creds, err := c.ExchangeCode(context.Background(), withTokenURL(notion.Definition(), srv.URL), "code")
	require.NoError(t, err)
	assert.Equal(t, "secret_abc", creds.AccessToken)
	assert.Nil(t, creds.ExpiresAt, "no expires_in means no expiry")
	assert.Equal(t, "Acme", creds.Extra["workspace_name"])
	assert.Equal(t, "ws-1", creds.Extra["workspace_id"])
}

func TestExchangeCode_Non2xxFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"code already used"}`))
	}))
	defer srv.Close()

	c, _ := newTestController(t, newFakeClock())

	creds, err := c.ExchangeCode(context.Background(), withTokenURL(github.Definition(), srv.URL), "reused")
	require.Error(t, err)
	assert.Nil(t, creds)

	var authErr *sberrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "github", authErr.Provider)
	assert.Contains(t, err.Error(), "invalid_grant")
	assert.Contains(t, err.Error(), "HTTP 400")
}

func TestRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "r-old", r.PostForm.Get("refresh_token"))
		writeToken(w, map[string]any{
			"access_token":  "a-new",
			"token_type":    "bearer",
			"refresh_token": "r-new",
			"expires_in":    3600,
		})
	}))
	defer srv.Close()

	clock := newFakeClock()
	c, _ := newTestController(t, clock)

	creds, err := c.RefreshToken(context.Background(), withTokenURL(slack.Definition(), srv.URL), "r-old")
	require.NoError(t, err)
	assert.Equal(t, "a-new", creds.AccessToken)
	assert.Equal(t, "r-new", creds.RefreshToken)
	assert.Equal(t, clock.Now().Add(time.Hour), *creds.ExpiresAt)
}

func TestRefreshToken_FailureRequiresReconnect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
	}))
	defer srv.Close()

	c, _ := newTestController(t, newFakeClock())
	def := withTokenURL(slack.Definition(), srv.URL)

	creds, err := c.RefreshToken(context.Background(), def, "revoked")
	assert.Nil(t, creds)
	assert.True(t, sberrors.IsReauthorize(err))
	assert.Contains(t, err.Error(), "reconnect required")

	creds, err = c.RefreshToken(context.Background(), def, "")
	assert.Nil(t, creds)
	assert.True(t, sberrors.IsReauthorize(err))
}

func TestStaticClients_Incomplete(t *testing.T) {
	clients := StaticClients{"slack": {ID: "only-id"}}

	_, err := clients.Client(context.Background(), "slack")
	var cfgErr *sberrors.ConfigError
	require.ErrorAs(t, err, &cfgErr)
}
