package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type action string

const (
	createCustomer        action = "create_customer"
	createPaymentIntent   action = "create_payment_intent"
	createCheckoutSession action = "create_checkout_session"
	listCharges           action = "list_charges"
)

// Definition describes the Stripe integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "stripe",
		Name:        "Stripe",
		Description: "Manage customers, payment intents and checkout sessions in Stripe",
		Category:    schema.CategoryPayments,
		AuthType:    schema.AuthAPIKey,
		BaseURL:     "https://api.stripe.com/v1",
		APIKey:      &schema.APIKeyConfig{HeaderName: "Authorization", Prefix: "Bearer"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(createCustomer),
				Name:        "Create Customer",
				Description: "Create a customer record",
				InputSchema: map[string]schema.FieldSchema{
					"email":       {Type: schema.TypeString},
					"name":        {Type: schema.TypeString},
					"description": {Type: schema.TypeString},
					"metadata":    {Type: schema.TypeObject},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":    {Type: schema.TypeString},
					"email": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(createPaymentIntent),
				Name:        "Create Payment Intent",
				Description: "Start collecting a payment",
				InputSchema: map[string]schema.FieldSchema{
					"amount":               {Type: schema.TypeInteger, Required: true, Description: "Amount in the smallest currency unit"},
					"currency":             {Type: schema.TypeString, Required: true},
					"customer":             {Type: schema.TypeString},
					"description":          {Type: schema.TypeString},
					"payment_method_types": {Type: schema.TypeArray},
					"metadata":             {Type: schema.TypeObject},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":            {Type: schema.TypeString},
					"status":        {Type: schema.TypeString},
					"client_secret": {Type: schema.TypeString},
					"amount":        {Type: schema.TypeInteger},
				},
			},
			{
				ID:          string(createCheckoutSession),
				Name:        "Create Checkout Session",
				Description: "Create a hosted checkout page for one price",
				InputSchema: map[string]schema.FieldSchema{
					"price":       {Type: schema.TypeString, Required: true},
					"quantity":    {Type: schema.TypeInteger, Default: 1},
					"mode":        {Type: schema.TypeString, Default: "payment", Enum: []any{"payment", "subscription", "setup"}},
					"success_url": {Type: schema.TypeString, Required: true},
					"cancel_url":  {Type: schema.TypeString},
					"customer":    {Type: schema.TypeString},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":  {Type: schema.TypeString},
					"url": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(listCharges),
				Name:        "List Charges",
				Description: "List recent charges",
				InputSchema: map[string]schema.FieldSchema{
					"customer":       {Type: schema.TypeString},
					"limit":          {Type: schema.TypeInteger, Default: 10},
					"starting_after": {Type: schema.TypeString},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"charges":  {Type: schema.TypeArray},
					"has_more": {Type: schema.TypeBoolean},
				},
			},
		},
	}
}

// StripeError is the error object Stripe wraps in {"error": ...}.
type StripeError struct {
	Type        string `json:"type"`
	Code        string `json:"code"`
	DeclineCode string `json:"decline_code"`
	Message     string `json:"message"`
	Param       string `json:"param"`
	StatusCode  int    `json:"-"`
}

func (e *StripeError) Error() string {
	msg := fmt.Sprintf("Stripe API error: %s", e.Message)
	if e.Code != "" {
		msg += " [" + e.Code + "]"
	}
	if e.Param != "" {
		msg += " (param " + e.Param + ")"
	}
	return msg + fmt.Sprintf(" (status %d)", e.StatusCode)
}

// ParseError converts a non-2xx response into a *StripeError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Error StripeError `json:"error"`
	}
	if err := json.Unmarshal(resp.Body, &body); err != nil || body.Error.Message == "" {
		body.Error.Message = http.StatusText(resp.StatusCode)
	}
	body.Error.StatusCode = resp.StatusCode
	return &body.Error
}

// StripeIntegration implements api.Adapter for the Stripe API. Request
// bodies are form-encoded with bracket notation for nested values.
type StripeIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewStripeIntegration creates a new Stripe integration.
func NewStripeIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, nil)
	if err != nil {
		return nil, err
	}

	s := &StripeIntegration{BaseAdapter: base}
	s.handlers = api.HandlerTable[action]{
		createCustomer:        s.createCustomer,
		createPaymentIntent:   s.createPaymentIntent,
		createCheckoutSession: s.createCheckoutSession,
		listCharges:           s.listCharges,
	}
	return s, nil
}

// ExecuteAction runs a named action.
func (s *StripeIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, s.BaseAdapter, actionID, actx, s.handlers)
}

// ValidateCredentials fetches the account the key belongs to.
func (s *StripeIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return s.Probe(ctx, http.MethodGet, s.BaseURL()+"/account", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			acct, err := api.DecodeObject(resp)
			if err != nil {
				return nil, err
			}
			meta := api.Pick(acct, "id", "email", "country", "charges_enabled")
			if profile, ok := acct["business_profile"].(map[string]any); ok {
				meta["business_name"] = profile["name"]
			}
			return meta, nil
		})
}

func (s *StripeIntegration) post(ctx context.Context, path string, form map[string]any, creds credential.Credentials) (map[string]any, error) {
	resp, err := s.DoForm(ctx, http.MethodPost, s.BaseURL()+path, form, creds)
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}
	return api.DecodeObject(resp)
}

func (s *StripeIntegration) createCustomer(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	obj, err := s.post(ctx, "/customers", api.Pick(actx.Input, "email", "name", "description", "metadata"), actx.Credentials())
	if err != nil {
		return nil, err
	}
	return api.Pick(obj, "id", "email", "name", "created"), nil
}

func (s *StripeIntegration) createPaymentIntent(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	form := api.Pick(actx.Input, "amount", "currency", "customer", "description", "payment_method_types", "metadata")
	obj, err := s.post(ctx, "/payment_intents", form, actx.Credentials())
	if err != nil {
		return nil, err
	}
	return api.Pick(obj, "id", "status", "client_secret", "amount", "currency"), nil
}

// createCheckoutSession sends line_items[0][price] and line_items[0][quantity].
func (s *StripeIntegration) createCheckoutSession(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	form := api.Pick(actx.Input, "mode", "success_url", "cancel_url", "customer")
	form["line_items"] = []any{map[string]any{
		"price":    actx.Input["price"],
		"quantity": actx.Input["quantity"],
	}}
	obj, err := s.post(ctx, "/checkout/sessions", form, actx.Credentials())
	if err != nil {
		return nil, err
	}
	return api.Pick(obj, "id", "url", "status", "payment_status"), nil
}

func (s *StripeIntegration) listCharges(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url := s.BaseURL() + "/charges" + api.BuildQueryString(actx.Input, "customer", "limit", "starting_after")
	resp, err := s.DoJSON(ctx, http.MethodGet, url, nil, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var list struct {
		Data    []map[string]any `json:"data"`
		HasMore bool             `json:"has_more"`
	}
	if err := api.DecodeJSON(resp, &list); err != nil {
		return nil, err
	}
	charges := make([]any, 0, len(list.Data))
	for _, c := range list.Data {
		charges = append(charges, api.Pick(c, "id", "amount", "currency", "status", "paid", "customer", "created", "description"))
	}
	return map[string]any{"charges": charges, "has_more": list.HasMore}, nil
}
