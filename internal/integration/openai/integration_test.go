package openai

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

const apiKey = "sk-test"

func newOpenAIServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+apiKey {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /models", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":"a"},{"id":"b"}]}`))
	}))
	mux.HandleFunc("POST /chat/completions", auth(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Model    string           `json:"model"`
			Messages []map[string]any `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Model != "gpt-4o-mini" {
			t.Errorf("model = %q, want default", body.Model)
		}
		if len(body.Messages) != 2 || body.Messages[0]["role"] != "system" {
			t.Errorf("messages = %v", body.Messages)
		}
		w.Write([]byte(`{"model":"gpt-4o-mini","choices":[{"message":{"role":"assistant","content":"Hi!"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`))
	}))
	mux.HandleFunc("POST /embeddings", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"embedding":[0.1,0.2,0.3]}],"usage":{"prompt_tokens":3,"total_tokens":3}}`))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewOpenAIIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewOpenAIIntegration() error = %v", err)
	}
	return a
}

func conn(key string) *credential.Credential {
	return &credential.Credential{ID: "oa", IntegrationID: "openai", Enabled: true,
		Credentials: credential.Credentials{APIKey: key}}
}

func TestChatCompletion(t *testing.T) {
	srv := newOpenAIServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "chat_completion", api.ActionContext{
		Connection: conn(apiKey),
		Input:      map[string]any{"prompt": "hello", "system": "be brief"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["content"] != "Hi!" || result.Output["finish_reason"] != "stop" {
		t.Errorf("output = %v", result.Output)
	}
	if result.Output["usage"].(map[string]any)["total_tokens"] != 7 {
		t.Errorf("usage = %v", result.Output["usage"])
	}
}

func TestChatCompletion_BadKey(t *testing.T) {
	srv := newOpenAIServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "chat_completion", api.ActionContext{
		Connection: conn("sk-wrong"),
		Input:      map[string]any{"prompt": "hello"},
	})
	if result.Success || !strings.Contains(result.Error, "invalid_api_key") {
		t.Errorf("got %+v", result)
	}
}

func TestCreateEmbedding(t *testing.T) {
	srv := newOpenAIServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "create_embedding", api.ActionContext{
		Connection: conn(apiKey),
		Input:      map[string]any{"input": "text"},
	})
	if !result.Success || result.Output["dimensions"] != 3 {
		t.Errorf("got %+v", result)
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newOpenAIServer(t)
	a := newTestIntegration(t, srv.URL)

	if good := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: apiKey}); !good.Valid || good.Metadata["models"] != 2 {
		t.Errorf("good = %+v", good)
	}
	if bad := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: "sk-x"}); bad.Valid {
		t.Errorf("bad = %+v", bad)
	}
}
