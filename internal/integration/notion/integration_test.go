package notion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
)

const goodToken = "secret_good"

type notionServer struct {
	*httptest.Server
	mu       sync.Mutex
	appended []int
	created  map[string]any
}

func newNotionServer(t *testing.T) *notionServer {
	t.Helper()
	s := &notionServer{}
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Notion-Version") != APIVersion {
				t.Errorf("Notion-Version = %q", r.Header.Get("Notion-Version"))
			}
			if r.Header.Get("Authorization") != "Bearer "+goodToken {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"object":"error","status":401,"code":"unauthorized","message":"API token is invalid."}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /users/me", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"user","id":"u1","type":"bot","name":"Switchboard","bot":{"workspace_name":"Acme"}}`))
	}))
	mux.HandleFunc("POST /pages", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.created = body
		s.mu.Unlock()
		w.Write([]byte(`{"object":"page","id":"p1","url":"https://notion.so/p1"}`))
	}))
	mux.HandleFunc("PATCH /blocks/p1/children", auth(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Children []any `json:"children"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		s.mu.Lock()
		s.appended = append(s.appended, len(body.Children))
		s.mu.Unlock()
		w.Write([]byte(`{"object":"list","results":[]}`))
	}))
	mux.HandleFunc("POST /databases/db1/query", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","has_more":true,"next_cursor":"c2","results":[
			{"object":"page","id":"row1","properties":{"Name":{"type":"title","title":[{"plain_text":"First"}]}}}
		]}`))
	}))
	mux.HandleFunc("POST /search", auth(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		filter, _ := body["filter"].(map[string]any)
		if filter["value"] != "database" {
			t.Errorf("filter = %v", body["filter"])
		}
		w.Write([]byte(`{"object":"list","has_more":false,"next_cursor":null,"results":[
			{"object":"database","id":"db1","title":[{"plain_text":"Tasks"}]}
		]}`))
	}))
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewNotionIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewNotionIntegration() error = %v", err)
	}
	return a
}

func conn() *credential.Credential {
	return &credential.Credential{ID: "c1", IntegrationID: "notion", Enabled: true,
		Credentials: credential.Credentials{AccessToken: goodToken}}
}

func TestDefinition_OAuth(t *testing.T) {
	def := Definition()
	if def.OAuth2.ExtraAuthParams["owner"] != "user" {
		t.Error("expected owner=user")
	}
	if def.OAuth2.TokenAuthStyle != "header" {
		t.Errorf("token auth style = %q", def.OAuth2.TokenAuthStyle)
	}
}

func TestCreatePage_UnderPage(t *testing.T) {
	srv := newNotionServer(t)
	a := newTestIntegration(t, srv.URL)

	var md strings.Builder
	for i := 0; i < 150; i++ {
		fmt.Fprintf(&md, "Paragraph %d\n\n", i)
	}
	result := a.ExecuteAction(context.Background(), "create_page", api.ActionContext{
		Connection: conn(),
		Input: map[string]any{
			"parent_page_id": "1234-5678",
			"title":          "Notes",
			"content":        md.String(),
		},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["id"] != "p1" || result.Output["url"] != "https://notion.so/p1" {
		t.Errorf("output = %v", result.Output)
	}

	srv.mu.Lock()
	defer srv.mu.Unlock()
	parent := srv.created["parent"].(map[string]any)
	if parent["page_id"] != "12345678" {
		t.Errorf("parent = %v", parent)
	}
	if children := srv.created["children"].([]any); len(children) != maxChildren {
		t.Errorf("initial children = %d, want %d", len(children), maxChildren)
	}
	if len(srv.appended) != 1 || srv.appended[0] != 50 {
		t.Errorf("appended batches = %v, want [50]", srv.appended)
	}
}

func TestCreatePage_NeedsExactlyOneParent(t *testing.T) {
	a := newTestIntegration(t, "http://127.0.0.1:1")

	result := a.ExecuteAction(context.Background(), "create_page", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"title": "Orphan"},
	})
	if result.Success || !strings.Contains(result.Error, "exactly one") {
		t.Errorf("got %+v", result)
	}
}

func TestQueryDatabase(t *testing.T) {
	srv := newNotionServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "query_database", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"database_id": "db1"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["has_more"] != true || result.Output["next_cursor"] != "c2" {
		t.Errorf("output = %v", result.Output)
	}
	rows := result.Output["results"].([]any)
	if rows[0].(map[string]any)["title"] != "First" {
		t.Errorf("row = %v", rows[0])
	}
}

func TestSearch(t *testing.T) {
	srv := newNotionServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "search", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"query": "Tasks", "object_type": "database"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	rows := result.Output["results"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["title"] != "Tasks" {
		t.Errorf("results = %v", rows)
	}
	if result.Output["next_cursor"] != "" {
		t.Errorf("next_cursor = %v", result.Output["next_cursor"])
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newNotionServer(t)
	a := newTestIntegration(t, srv.URL)

	good := a.ValidateCredentials(context.Background(), credential.Credentials{AccessToken: goodToken})
	if !good.Valid || good.Metadata["workspace_name"] != "Acme" {
		t.Errorf("good = %+v", good)
	}
	bad := a.ValidateCredentials(context.Background(), credential.Credentials{AccessToken: "secret_bad"})
	if bad.Valid || !strings.Contains(bad.Error, "unauthorized") {
		t.Errorf("bad = %+v", bad)
	}
}
