package discord

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/transport"
)

const botToken = "bot-token"

func newDiscordServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bot "+botToken {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /users/@me", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"b1","username":"switchboard","bot":true}`))
	}))
	mux.HandleFunc("POST /channels/c1/messages", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"m1","channel_id":"c1","content":"hi","timestamp":"2024-01-01T00:00:00Z"}`))
	}))
	mux.HandleFunc("POST /channels/missing/messages", auth(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"message":"Unknown Channel","code":10003}`))
	}))
	mux.HandleFunc("GET /guilds/g1/channels", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"c1","name":"general","type":0},{"id":"c2","name":"voice","type":2}]`))
	}))
	mux.HandleFunc("PUT /channels/c1/messages/m1/reactions/{emoji}/@me", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("emoji") != "👍" {
			t.Errorf("emoji = %q", r.PathValue("emoji"))
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewDiscordIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewDiscordIntegration() error = %v", err)
	}
	return a
}

func conn() *credential.Credential {
	return &credential.Credential{ID: "c", IntegrationID: "discord", Enabled: true,
		Credentials: credential.Credentials{APIKey: botToken}}
}

func TestSendMessage(t *testing.T) {
	srv := newDiscordServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "send_message", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"channel_id": "c1", "content": "hi"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["id"] != "m1" || result.Output["channel_id"] != "c1" {
		t.Errorf("output = %v", result.Output)
	}
}

func TestSendMessage_UnknownChannel(t *testing.T) {
	srv := newDiscordServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "send_message", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"channel_id": "missing", "content": "hi"},
	})
	if result.Success || !strings.Contains(result.Error, "Unknown Channel") || !strings.Contains(result.Error, "10003") {
		t.Errorf("got %+v", result)
	}
}

func TestListChannels(t *testing.T) {
	srv := newDiscordServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "list_channels", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"guild_id": "g1"},
	})
	if !result.Success || result.Output["count"] != 2 {
		t.Errorf("got %+v", result)
	}
}

func TestAddReaction_EscapesEmoji(t *testing.T) {
	srv := newDiscordServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "add_reaction", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"channel_id": "c1", "message_id": "m1", "emoji": "👍"},
	})
	if !result.Success {
		t.Errorf("got %+v", result)
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newDiscordServer(t)
	a := newTestIntegration(t, srv.URL)

	good := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: botToken})
	if !good.Valid || good.Metadata["username"] != "switchboard" {
		t.Errorf("good = %+v", good)
	}
	bad := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: "nope"})
	if bad.Valid {
		t.Error("expected invalid")
	}
}

func TestParseError_RetryAfterHeader(t *testing.T) {
	err := ParseError(&transport.Response{
		StatusCode: http.StatusTooManyRequests,
		Headers:    http.Header{"Retry-After": []string{"1.5"}},
	})
	derr, ok := err.(*DiscordError)
	if !ok {
		t.Fatalf("expected *DiscordError, got %T", err)
	}
	if derr.RetryAfter != 1.5 || !strings.Contains(derr.Error(), "retry after 1.5s") {
		t.Errorf("error = %v", derr)
	}
}
