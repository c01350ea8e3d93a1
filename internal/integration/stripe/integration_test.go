package stripe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
)

const secretKey = "sk_test_123"

func newStripeServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	auth := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+secretKey {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"Invalid API Key provided: sk_test_***"}}`))
				return
			}
			next(w, r)
		}
	}
	mux.HandleFunc("GET /account", auth(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"acct_1","email":"ops@acme.test","country":"US","business_profile":{"name":"Acme"}}`))
	}))
	mux.HandleFunc("POST /customers", auth(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("metadata[plan]") != "pro" {
			t.Errorf("form = %v", r.PostForm)
		}
		w.Write([]byte(`{"id":"cus_1","email":"a@b.test","name":"A"}`))
	}))
	mux.HandleFunc("POST /payment_intents", auth(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("amount") != "2000" {
			t.Errorf("amount = %q", r.PostForm.Get("amount"))
		}
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"error":{"type":"card_error","code":"card_declined","message":"Your card was declined."}}`))
	}))
	mux.HandleFunc("POST /checkout/sessions", auth(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("line_items[0][price]") != "price_1" || r.PostForm.Get("line_items[0][quantity]") != "1" {
			t.Errorf("form = %v", r.PostForm)
		}
		if r.PostForm.Get("mode") != "payment" {
			t.Errorf("mode = %q", r.PostForm.Get("mode"))
		}
		w.Write([]byte(`{"id":"cs_1","url":"https://checkout.stripe.com/c/cs_1","status":"open"}`))
	}))
	mux.HandleFunc("GET /charges", auth(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "10" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"object":"list","has_more":false,"data":[{"id":"ch_1","amount":500,"secret_field":"x"}]}`))
	}))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestIntegration(t *testing.T, baseURL string) api.Adapter {
	t.Helper()
	a, err := NewStripeIntegration(api.Config{BaseURL: baseURL})
	if err != nil {
		t.Fatalf("NewStripeIntegration() error = %v", err)
	}
	return a
}

func conn() *credential.Credential {
	return &credential.Credential{ID: "st", IntegrationID: "stripe", Enabled: true,
		Credentials: credential.Credentials{APIKey: secretKey}}
}

func TestCreateCustomer_NestedMetadata(t *testing.T) {
	srv := newStripeServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "create_customer", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"email": "a@b.test", "metadata": map[string]any{"plan": "pro"}},
	})
	if !result.Success || result.Output["id"] != "cus_1" {
		t.Errorf("got %+v", result)
	}
}

func TestCreatePaymentIntent_CardDeclined(t *testing.T) {
	srv := newStripeServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "create_payment_intent", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"amount": 2000, "currency": "usd"},
	})
	if result.Success {
		t.Fatal("expected failure")
	}
	if !strings.Contains(result.Error, "card_declined") || !strings.Contains(result.Error, "402") {
		t.Errorf("error = %q", result.Error)
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	srv := newStripeServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "create_checkout_session", api.ActionContext{
		Connection: conn(),
		Input:      map[string]any{"price": "price_1", "success_url": "https://acme.test/ok"},
	})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	if result.Output["url"] != "https://checkout.stripe.com/c/cs_1" {
		t.Errorf("output = %v", result.Output)
	}
}

func TestListCharges(t *testing.T) {
	srv := newStripeServer(t)
	a := newTestIntegration(t, srv.URL)

	result := a.ExecuteAction(context.Background(), "list_charges", api.ActionContext{Connection: conn()})
	if !result.Success {
		t.Fatalf("expected success, got %q", result.Error)
	}
	charges := result.Output["charges"].([]any)
	if len(charges) != 1 {
		t.Fatalf("charges = %v", charges)
	}
	if _, leaked := charges[0].(map[string]any)["secret_field"]; leaked {
		t.Error("unexpected field in normalized charge")
	}
}

func TestValidateCredentials(t *testing.T) {
	srv := newStripeServer(t)
	a := newTestIntegration(t, srv.URL)

	good := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: secretKey})
	if !good.Valid || good.Metadata["business_name"] != "Acme" {
		t.Errorf("good = %+v", good)
	}
	bad := a.ValidateCredentials(context.Background(), credential.Credentials{APIKey: "sk_test_bad"})
	if bad.Valid || !strings.Contains(bad.Error, "Invalid API Key") {
		t.Errorf("bad = %+v", bad)
	}
}
