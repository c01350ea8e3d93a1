package twilio

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
	sendSMS    action = "send_sms"
	getMessage action = "get_message"
)

var messageOutput = map[string]schema.FieldSchema{
	"sid":    {Type: schema.TypeString},
	"status": {Type: schema.TypeString},
	"to":     {Type: schema.TypeString},
	"from":   {Type: schema.TypeString},
}

// Definition describes the Twilio integration. The username is the account
// SID and the password is the auth token.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "twilio",
		Name:        "Twilio",
		Description: "Send SMS text messages and check their delivery status",
		Category:    schema.CategorySMS,
		AuthType:    schema.AuthBasicAuth,
		BaseURL:     "https://api.twilio.com/2010-04-01",
		BasicAuth:   &schema.BasicAuthConfig{UsernameLabel: "Account SID", PasswordLabel: "Auth token"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(sendSMS),
				Name:        "Send SMS",
				Description: "Send a text message",
				InputSchema: map[string]schema.FieldSchema{
					"to":                    {Type: schema.TypeString, Required: true, Description: "E.164 destination number"},
					"from":                  {Type: schema.TypeString, Description: "Sending number; one of from or messaging_service_sid is required"},
					"messaging_service_sid": {Type: schema.TypeString},
					"body":                  {Type: schema.TypeString, Required: true},
					"status_callback":       {Type: schema.TypeString},
				},
				OutputSchema: messageOutput,
			},
			{
				ID:          string(getMessage),
				Name:        "Get Message",
				Description: "Fetch a message and its delivery status",
				InputSchema: map[string]schema.FieldSchema{
					"sid": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: messageOutput,
			},
		},
	}
}

// Message is a Twilio message resource.
type Message struct {
	SID          string  `json:"sid"`
	Status       string  `json:"status"`
	To           string  `json:"to"`
	From         string  `json:"from"`
	Body         string  `json:"body"`
	NumSegments  string  `json:"num_segments"`
	Price        *string `json:"price"`
	ErrorCode    *int    `json:"error_code"`
	ErrorMessage *string `json:"error_message"`
	DateCreated  string  `json:"date_created"`
}

// Account is a Twilio account resource.
type Account struct {
	SID          string `json:"sid"`
	FriendlyName string `json:"friendly_name"`
	Status       string `json:"status"`
	Type         string `json:"type"`
}

// TwilioError is the error body Twilio returns with non-2xx statuses.
type TwilioError struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	MoreInfo   string `json:"more_info"`
	StatusCode int    `json:"status"`
}

func (e *TwilioError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("Twilio API error %d: %s (status %d)", e.Code, e.Message, e.StatusCode)
	}
	return fmt.Sprintf("Twilio API error: %s (status %d)", e.Message, e.StatusCode)
}

// ParseError converts a non-2xx response into a *TwilioError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	terr := &TwilioError{}
	if err := json.Unmarshal(resp.Body, terr); err != nil || terr.Message == "" {
		terr.Message = http.StatusText(resp.StatusCode)
	}
	terr.StatusCode = resp.StatusCode
	return terr
}

// TwilioIntegration implements api.Adapter for the Twilio REST API.
type TwilioIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewTwilioIntegration creates a new Twilio integration.
func NewTwilioIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}

	tw := &TwilioIntegration{BaseAdapter: base}
	tw.handlers = api.HandlerTable[action]{
		sendSMS:    tw.sendSMS,
		getMessage: tw.getMessage,
	}
	return tw, nil
}

// ExecuteAction runs a named action.
func (tw *TwilioIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, tw.BaseAdapter, actionID, actx, tw.handlers)
}

// ValidateCredentials fetches the account named by the SID.
func (tw *TwilioIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	url, err := tw.BuildURL("/Accounts/{sid}.json", map[string]any{"sid": creds.Username})
	if err != nil {
		return api.ValidationResult{Valid: false, Error: err.Error()}
	}
	return tw.Probe(ctx, http.MethodGet, url, creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var acct Account
			if err := api.DecodeJSON(resp, &acct); err != nil {
				return nil, err
			}
			return map[string]any{
				"account_sid":   acct.SID,
				"friendly_name": acct.FriendlyName,
				"status":        acct.Status,
				"type":          acct.Type,
			}, nil
		})
}

// sendSMS posts a form-encoded message; Twilio uses capitalized parameter names.
func (tw *TwilioIntegration) sendSMS(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	creds := actx.Credentials()
	from := api.String(actx.Input, "from")
	service := api.String(actx.Input, "messaging_service_sid")
	if from == "" && service == "" {
		return nil, fmt.Errorf("one of from or messaging_service_sid is required")
	}

	form := map[string]any{
		"To":   api.String(actx.Input, "to"),
		"Body": api.String(actx.Input, "body"),
	}
	if from != "" {
		form["From"] = from
	}
	if service != "" {
		form["MessagingServiceSid"] = service
	}
	if cb := api.String(actx.Input, "status_callback"); cb != "" {
		form["StatusCallback"] = cb
	}

	url, err := tw.BuildURL("/Accounts/{sid}/Messages.json", map[string]any{"sid": creds.Username})
	if err != nil {
		return nil, err
	}
	resp, err := tw.DoForm(ctx, http.MethodPost, url, form, creds)
	if err != nil {
		return nil, err
	}
	return decodeMessage(resp)
}

func (tw *TwilioIntegration) getMessage(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	creds := actx.Credentials()
	url, err := tw.BuildURL("/Accounts/{account}/Messages/{sid}.json", map[string]any{
		"account": creds.Username,
		"sid":     actx.Input["sid"],
	})
	if err != nil {
		return nil, err
	}
	resp, err := tw.DoJSON(ctx, http.MethodGet, url, nil, creds)
	if err != nil {
		return nil, err
	}
	return decodeMessage(resp)
}

func decodeMessage(resp *transport.Response) (map[string]any, error) {
	if err := ParseError(resp); err != nil {
		return nil, err
	}
	var msg Message
	if err := api.DecodeJSON(resp, &msg); err != nil {
		return nil, err
	}
	out := map[string]any{
		"sid":          msg.SID,
		"status":       msg.Status,
		"to":           msg.To,
		"from":         msg.From,
		"num_segments": msg.NumSegments,
		"date_created": msg.DateCreated,
	}
	if msg.ErrorCode != nil {
		out["error_code"] = *msg.ErrorCode
	}
	if msg.ErrorMessage != nil {
		out["error_message"] = *msg.ErrorMessage
	}
	return out, nil
}
