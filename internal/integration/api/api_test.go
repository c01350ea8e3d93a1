package api

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type recordingTransport struct {
	last *transport.Request
	resp *transport.Response
	err  error
}

func (r *recordingTransport) Execute(ctx context.Context, req *transport.Request) (*transport.Response, error) {
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	if r.resp != nil {
		return r.resp, nil
	}
	return &transport.Response{StatusCode: 200}, nil
}

func testDefinition(auth schema.AuthType) *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:       "acme",
		Name:     "Acme",
		AuthType: auth,
		BaseURL:  "https://api.acme.test/v1/",
		APIKey:   &schema.APIKeyConfig{HeaderName: "X-Acme-Key", Prefix: "Token"},
		Actions: []schema.ActionDefinition{{
			ID: "echo",
			InputSchema: map[string]schema.FieldSchema{
				"text":  {Type: schema.TypeString, Required: true},
				"times": {Type: schema.TypeInteger, Default: 1},
			},
		}},
	}
}

func newTestBase(t *testing.T, auth schema.AuthType, tr transport.Transport) *BaseAdapter {
	t.Helper()
	b, err := NewBaseAdapter(testDefinition(auth), Config{Transport: tr}, map[string]string{"Acme-Version": "2024-01-01"})
	require.NoError(t, err)
	return b
}

func TestMakeRequest_AuthHeaders(t *testing.T) {
	tests := []struct {
		name       string
		creds      credential.Credentials
		wantHeader string
		wantValue  string
	}{
		{
			name:       "oauth2 default bearer",
			creds:      credential.Credentials{AccessToken: "at-1"},
			wantHeader: "Authorization",
			wantValue:  "Bearer at-1",
		},
		{
			name:       "oauth2 lowercase token type normalized",
			creds:      credential.Credentials{AccessToken: "at-2", TokenType: "bearer"},
			wantHeader: "Authorization",
			wantValue:  "Bearer at-2",
		},
		{
			name:       "oauth2 custom token type",
			creds:      credential.Credentials{AccessToken: "at-3", TokenType: "MAC"},
			wantHeader: "Authorization",
			wantValue:  "MAC at-3",
		},
		{
			name:       "api key with header and prefix",
			creds:      credential.Credentials{APIKey: "k-1"},
			wantHeader: "X-Acme-Key",
			wantValue:  "Token k-1",
		},
		{
			name:       "basic auth",
			creds:      credential.Credentials{Username: "user", Password: "pass"},
			wantHeader: "Authorization",
			wantValue:  "Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &recordingTransport{}
			b := newTestBase(t, schema.AuthAPIKey, tr)

			_, err := b.MakeRequest(context.Background(), &transport.Request{
				Method:  http.MethodGet,
				URL:     "https://api.acme.test/v1/me",
				Headers: map[string]string{"Accept": "application/json"},
			}, tt.creds)
			require.NoError(t, err)

			assert.Equal(t, tt.wantValue, tr.last.Headers[tt.wantHeader])
			assert.Equal(t, "2024-01-01", tr.last.Headers["Acme-Version"])
			assert.Equal(t, "application/json", tr.last.Headers["Accept"])
		})
	}
}

func TestMakeRequest_NoAuthAndMixed(t *testing.T) {
	tr := &recordingTransport{}
	b := newTestBase(t, schema.AuthNone, tr)

	_, err := b.MakeRequest(context.Background(), &transport.Request{Method: http.MethodGet, URL: "https://x.test"}, credential.Credentials{})
	require.NoError(t, err)
	_, hasAuth := tr.last.Headers["Authorization"]
	assert.False(t, hasAuth)

	_, err = b.MakeRequest(context.Background(), &transport.Request{Method: http.MethodGet, URL: "https://x.test"},
		credential.Credentials{APIKey: "k", AccessToken: "a"})
	assert.Error(t, err)
}

func TestMakeRequest_DoesNotMutateCallerRequest(t *testing.T) {
	tr := &recordingTransport{}
	b := newTestBase(t, schema.AuthOAuth2, tr)

	req := &transport.Request{Method: http.MethodGet, URL: "https://x.test", Headers: map[string]string{"A": "1"}}
	_, err := b.MakeRequest(context.Background(), req, credential.Credentials{AccessToken: "t"})
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"A": "1"}, req.Headers)
}

type action string

const echo action = "echo"

func TestDispatch(t *testing.T) {
	tr := &recordingTransport{}
	b := newTestBase(t, schema.AuthAPIKey, tr)
	conn := &credential.Credential{ID: "c1", Credentials: credential.Credentials{APIKey: "k"}}

	handlers := HandlerTable[action]{
		echo: func(ctx context.Context, actx ActionContext) (map[string]any, error) {
			if actx.Input["text"] == "fail" {
				return nil, errors.New("provider said no")
			}
			if actx.Input["text"] == "panic" {
				panic("boom")
			}
			return map[string]any{"text": actx.Input["text"], "times": actx.Input["times"]}, nil
		},
	}

	t.Run("success with defaults", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "echo", ActionContext{Connection: conn, Input: map[string]any{"text": "hi"}}, handlers)
		require.True(t, res.Success, res.Error)
		assert.Equal(t, "hi", res.Output["text"])
		assert.Equal(t, 1, res.Output["times"])
	})

	t.Run("unknown action", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "explode", ActionContext{Connection: conn}, handlers)
		assert.False(t, res.Success)
		assert.Equal(t, "Unknown action: explode", res.Error)
	})

	t.Run("validation failure", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "echo", ActionContext{Connection: conn, Input: map[string]any{}}, handlers)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "text")
	})

	t.Run("handler error", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "echo", ActionContext{Connection: conn, Input: map[string]any{"text": "fail"}}, handlers)
		assert.False(t, res.Success)
		assert.Equal(t, "provider said no", res.Error)
	})

	t.Run("handler panic", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "echo", ActionContext{Connection: conn, Input: map[string]any{"text": "panic"}}, handlers)
		assert.False(t, res.Success)
		assert.Equal(t, "internal error: boom", res.Error)
	})

	t.Run("missing connection", func(t *testing.T) {
		res := Dispatch(context.Background(), b, "echo", ActionContext{Input: map[string]any{"text": "hi"}}, handlers)
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "no connection")
	})
}

type fakeExchanger struct {
	fresh *credential.Credentials
	err   error
	calls int
}

func (f *fakeExchanger) RefreshToken(ctx context.Context, def *schema.IntegrationDefinition, refreshToken string) (*credential.Credentials, error) {
	f.calls++
	return f.fresh, f.err
}

func TestRefreshTokens(t *testing.T) {
	def := testDefinition(schema.AuthOAuth2)
	exp := time.Now().Add(time.Hour)

	ex := &fakeExchanger{fresh: &credential.Credentials{AccessToken: "new", ExpiresAt: &exp}}
	b, err := NewBaseAdapter(def, Config{Transport: &recordingTransport{}, Exchanger: ex}, nil)
	require.NoError(t, err)

	old := credential.Credentials{AccessToken: "old", RefreshToken: "rt", Extra: map[string]string{"workspace": "w"}}
	got, err := b.RefreshTokens(context.Background(), old)
	require.NoError(t, err)
	assert.Equal(t, "new", got.AccessToken)
	assert.Equal(t, "rt", got.RefreshToken, "refresh token carries over when not rotated")
	assert.Equal(t, "w", got.Extra["workspace"])

	_, err = b.RefreshTokens(context.Background(), credential.Credentials{AccessToken: "x"})
	assert.ErrorIs(t, err, ErrNotRefreshable)

	ex.err = errors.New("invalid_grant")
	got, err = b.RefreshTokens(context.Background(), old)
	assert.Nil(t, got)
	assert.Error(t, err)
}

func TestNeedsRefreshUsesInjectedClock(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	b, err := NewBaseAdapter(testDefinition(schema.AuthOAuth2), Config{
		Transport: &recordingTransport{},
		Now:       func() time.Time { return now },
	}, nil)
	require.NoError(t, err)

	soon := now.Add(4 * time.Minute)
	later := now.Add(10 * time.Minute)
	assert.True(t, b.NeedsRefresh(credential.Credentials{AccessToken: "a", ExpiresAt: &soon}))
	assert.False(t, b.NeedsRefresh(credential.Credentials{AccessToken: "a", ExpiresAt: &later}))
}

func TestBuildURL(t *testing.T) {
	b := newTestBase(t, schema.AuthAPIKey, &recordingTransport{})
	assert.Equal(t, "https://api.acme.test/v1", b.BaseURL())

	got, err := b.BuildURL("/repos/{owner}/{repo}/issues", map[string]any{"owner": "tom", "repo": "a b"})
	require.NoError(t, err)
	assert.Equal(t, "https://api.acme.test/v1/repos/tom/a%20b/issues", got)

	_, err = b.BuildURL("/repos/{owner}/{repo}", map[string]any{"owner": "tom"})
	assert.EqualError(t, err, "missing required parameter: repo")
}

func TestBuildQueryString(t *testing.T) {
	q := BuildQueryString(map[string]any{"limit": 10, "cursor": "abc", "other": "x"}, "limit", "cursor", "missing")
	parsed, err := url.ParseQuery(q[1:])
	require.NoError(t, err)
	assert.Equal(t, "10", parsed.Get("limit"))
	assert.Equal(t, "abc", parsed.Get("cursor"))
	assert.Empty(t, parsed.Get("other"))

	assert.Equal(t, "", BuildQueryString(map[string]any{}, "limit"))
}

func TestEncodeForm_BracketNotation(t *testing.T) {
	values := EncodeForm(map[string]any{
		"mode": "payment",
		"line_items": []any{
			map[string]any{"price": "price_123", "quantity": float64(2)},
		},
		"metadata":  map[string]any{"order": "42"},
		"livemode":  false,
		"ignored":   nil,
		"expand":    []string{"customer"},
		"StatusURL": "https://cb.test/status",
	})

	assert.Equal(t, "payment", values.Get("mode"))
	assert.Equal(t, "price_123", values.Get("line_items[0][price]"))
	assert.Equal(t, "2", values.Get("line_items[0][quantity]"))
	assert.Equal(t, "42", values.Get("metadata[order]"))
	assert.Equal(t, "false", values.Get("livemode"))
	assert.Equal(t, "customer", values.Get("expand[0]"))
	assert.Equal(t, "https://cb.test/status", values.Get("StatusURL"))
	_, present := values["ignored"]
	assert.False(t, present)
}

func TestProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Acme-Key") != "Token good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"account":"acct_1"}`))
	}))
	defer server.Close()

	b, err := NewBaseAdapter(testDefinition(schema.AuthAPIKey), Config{BaseURL: server.URL}, nil)
	require.NoError(t, err)

	extract := func(resp *transport.Response) (map[string]any, error) {
		obj, err := DecodeObject(resp)
		if err != nil {
			return nil, err
		}
		return Pick(obj, "account"), nil
	}

	good := b.Probe(context.Background(), http.MethodGet, server.URL+"/me", credential.Credentials{APIKey: "good"}, nil, extract)
	assert.True(t, good.Valid)
	assert.Equal(t, "acct_1", good.Metadata["account"])

	bad := b.Probe(context.Background(), http.MethodGet, server.URL+"/me", credential.Credentials{APIKey: "tampered"}, nil, extract)
	assert.False(t, bad.Valid)
	assert.Contains(t, bad.Error, "401")
}
