package github

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/transport"
)

const goodToken = "gho_good"

func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+goodToken {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"message":"Bad credentials","documentation_url":"https://docs.github.com/rest"}`))
				return
			}
			if r.Header.Get("X-GitHub-Api-Version") != "2022-11-28" {
				t.Errorf("missing api version header")
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /user", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login":"octocat","id":1,"name":"The Octocat"}`))
	}))
	mux.HandleFunc("POST /repos/acme/widgets/issues", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["title"] != "Broken" {
			t.Errorf("title = %v", body["title"])
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number":42,"html_url":"https://github.com/acme/widgets/issues/42","state":"open"}`))
	}))
	mux.HandleFunc("PATCH /repos/acme/widgets/issues/42", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["state"] != "closed" || body["state_reason"] != "completed" {
			t.Errorf("body = %v", body)
		}
		w.Write([]byte(`{"number":42,"html_url":"https://github.com/acme/widgets/issues/42","state":"closed"}`))
	}))
	mux.HandleFunc("GET /repos/acme/widgets/issues", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("state") != "open" {
			t.Errorf("state = %q, want default open", r.URL.Query().Get("state"))
		}
		w.Write([]byte(`[
			{"number":1,"title":"a","state":"open","labels":[{"name":"bug"}],"user":{"login":"x"}},
			{"number":2,"title":"pr","state":"open","pull_request":{"url":"u"}}
		]`))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewGitHubIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewGitHubIntegration() error = %v", err)
	}
	return a
}

func conn() *credential.Credential {
	return &credential.Credential{
		ID:            "conn-gh",
		IntegrationID: "github",
		Enabled:       true,
		Credentials:   credential.Credentials{AccessToken: goodToken},
	}
}

func TestCreateIssue(t *testing.T) {
	srv := newGitHubServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "create_issue", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"owner": "acme", "repo": "widgets", "title": "Broken"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["number"] != 42 || result.Output["state"] != "open" {
		t.Errorf("output = %v", result.Output)
	}
}

func TestCloseIssue(t *testing.T) {
	srv := newGitHubServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "close_issue", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"owner": "acme", "repo": "widgets", "issue_number": 42},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["state"] != "closed" {
		t.Errorf("state = %v", result.Output["state"])
	}
}

func TestListIssues_SkipsPullRequests(t *testing.T) {
	srv := newGitHubServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "list_issues", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"owner": "acme", "repo": "widgets"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["count"] != 1 {
		t.Errorf("count = %v, want 1", result.Output["count"])
	}
}

func TestCreateIssue_BadCredentials(t *testing.T) {
	srv := newGitHubServer(t)
	a := newTestIntegration(t, srv.URL)

	c := conn()
	c.Credentials.AccessToken = "gho_bad"
	result := a.ExecuteAction(context.Background(), "create_issue", api.ActionContext{
		Connection: c,
		Input:      map[string]any{"owner": "acme", "repo": "widgets", "title": "Broken"},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "Bad credentials") || !strings.Contains(result.Error, "401") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newGitHubServer(t)
	a := newTestIntegration(t, srv.URL)

	good := a.ValidateCredentials(context.Background(), credential.Credentials{AccessToken: goodToken})
	if !good.Valid || good.Metadata["login"] != "octocat" {
		t.Errorf("good = %+v", good)
	}

	bad := a.ValidateCredentials(context.Background(), credential.Credentials{AccessToken: goodToken + "1"})
	if bad.Valid {
		t.Error("expected tampered token to be invalid")
	}
}

func TestMissingConnection(t *testing.T) {
	a := newTestIntegration(t, "http://127.0.0.1:1")

	result := a.ExecuteAction(context.Background(), "list_issues", api.ActionContext{
		Input: map[string]any{"owner": "acme", "repo": "widgets"},
	})
	if result.Success || !strings.Contains(result.Error, "no connection") {
		t.Errorf("got %+v", result)
	}
}

func TestParseError_RateLimit(t *testing.T) {
	resp := &transport.Response{
		StatusCode: http.StatusForbidden,
		Headers: http.Header{
			"X-Ratelimit-Remaining": []string{"0"},
			"X-Ratelimit-Reset":     []string{"1700000000"},
		},
		Body: []byte(`{"message":"API rate limit exceeded"}`),
	}
	err := ParseError(resp)
	ghErr, ok := err.(*GitHubError)
	if !ok {
		t.Fatalf("expected *GitHubError, got %T", err)
	}
	if !ghErr.RateLimited() {
		t.Error("expected RateLimited()")
	}
	if !strings.Contains(ghErr.Error(), "2023-11-14T22:13:20Z") {
		t.Errorf("error = %q", ghErr.Error())
	}
}
