package sendgrid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
)

const apiKey = "SG.key"

func newSendGridServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"errors":[{"field":null,"message":"authorization required"}]}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /user/account", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"type":"paid","reputation":99.5}`))
	}))
	mux.HandleFunc("POST /mail/send", auth(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Personalizations []struct {
				To []map[string]string `json:"to"`
			} `json:"personalizations"`
			Content []map[string]string `json:"content"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if len(body.Personalizations) != 1 || len(body.Personalizations[0].To) != 2 {
			t.Errorf("personalizations = %+v", body.Personalizations)
		}
		if len(body.Content) != 1 || body.Content[0]["type"] != "text/plain" {
			t.Errorf("content = %+v", body.Content)
		}
		w.Header().Set("X-Message-Id", "msg-abc")
		w.WriteHeader(http.StatusAccepted)
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewSendGridIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewSendGridIntegration() error = %v", err)
	}
	return a
}

func conn() *credential.Credential {
	return &credential.Credential{ID: "sg", IntegrationID: "sendgrid", Enabled: true,
		Credentials: credential.Credentials{APIKey: apiKey}}
}

func TestSendEmail(t *testing.T) {
	srv := newSendGridServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "send_email", api.ActionContext{
		Connection: conn(),
		Input: map[string]any{
			"to":      "a@acme.test, b@acme.test",
			"from":    "noreply@acme.test",
			"subject": "Build finished",
			"text":    "All green.",
		},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["message_id"] != "msg-abc" || result.Output["status"] != "accepted" {
		t.Errorf("output = %v", result.Output)
	}
}

func TestSendEmail_NeedsBody(t *testing.T) {
	a := newTestIntegration(t, "http://127.0.0.1:1")

	result := a.ExecuteAction(context.Background(), "send_email", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"to": "a@acme.test", "from": "x@acme.test", "subject": "s"},
	})
	if result.Success || !strings.Contains(result.Error, "template_id") {
		t.Errorf("got %+v", result)
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newSendGridServer(t)
	a := newTestIntegration(t, srv.URL)

	good := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: apiKey})
	if !good.Valid || good.Metadata["type"] != "paid" {
		t.Errorf("good = %+v", good)
	}
	bad := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: "SG.bad"})
	if bad.Valid || !strings.Contains(bad.Error, "authorization required") {
		t.Errorf("bad = %+v", bad)
	}
}
