package sendgrid

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type action string

const sendEmail action = "send_email"

// Definition describes the SendGrid integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "sendgrid",
		Name:        "SendGrid",
		Description: "Send transactional email through SendGrid",
		Category:    schema.CategoryEmail,
		AuthType:    schema.AuthAPIKey,
		BaseURL:     "https://api.sendgrid.com/v3",
		APIKey:      &schema.APIKeyConfig{HeaderName: "Authorization", Prefix: "Bearer"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(sendEmail),
				Name:        "Send Email",
				Description: "Send one email to one or more recipients",
				InputSchema: map[string]schema.FieldSchema{
					"to":            {Type: schema.TypeString, Required: true, Description: "Comma-separated recipient addresses"},
					"from":          {Type: schema.TypeString, Required: true},
					"from_name":     {Type: schema.TypeString},
					"subject":       {Type: schema.TypeString, Required: true},
					"text":          {Type: schema.TypeString},
					"html":          {Type: schema.TypeString},
					"reply_to":      {Type: schema.TypeString},
					"template_id":   {Type: schema.TypeString},
					"template_data": {Type: schema.TypeObject},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"message_id": {Type: schema.TypeString},
					"status":     {Type: schema.TypeString},
				},
			},
		},
	}
}

// SendGridError collects the errors array SendGrid returns.
type SendGridError struct {
	Messages   []string
	StatusCode int
}

func (e *SendGridError) Error() string {
	return fmt.Sprintf("SendGrid API error: %s (status %d)", strings.Join(e.Messages, "; "), e.StatusCode)
}

// ParseError converts a non-2xx response into a *SendGridError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	var body struct {
		Errors []struct {
			Message string `json:"message"`
			Field   string `json:"field"`
		} `json:"errors"`
	}
	sgErr := &SendGridError{StatusCode: resp.StatusCode}
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		for _, e := range body.Errors {
			if e.Field != "" {
				sgErr.Messages = append(sgErr.Messages, e.Field+": "+e.Message)
			} else {
				sgErr.Messages = append(sgErr.Messages, e.Message)
			}
		}
	}
	if len(sgErr.Messages) == 0 {
		sgErr.Messages = []string{http.StatusText(resp.StatusCode)}
	}
	return sgErr
}

// SendGridIntegration implements api.Adapter for the SendGrid v3 API.
type SendGridIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewSendGridIntegration creates a new SendGrid integration.
func NewSendGridIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, nil)
	if err != nil {
		return nil, err
	}

	s := &SendGridIntegration{BaseAdapter: base}
	s.handlers = api.HandlerTable[action]{
		sendEmail: s.sendEmail,
	}
	return s, nil
}

// ExecuteAction runs a named action.
func (s *SendGridIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, s.BaseAdapter, actionID, actx, s.handlers)
}

// ValidateCredentials fetches the account profile.
func (s *SendGridIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return s.Probe(ctx, http.MethodGet, s.BaseURL()+"/user/account", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			acct, err := api.DecodeObject(resp)
			if err != nil {
				return nil, err
			}
			return api.Pick(acct, "type", "reputation"), nil
		})
}

// sendEmail answers 202 with an empty body; the message id is only in the
// X-Message-Id header.
func (s *SendGridIntegration) sendEmail(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	in := actx.Input
	text, html, template := api.String(in, "text"), api.String(in, "html"), api.String(in, "template_id")
	if text == "" && html == "" && template == "" {
		return nil, fmt.Errorf("one of text, html or template_id is required")
	}

	var to []any
	for _, addr := range strings.Split(api.String(in, "to"), ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			to = append(to, map[string]any{"email": addr})
		}
	}
	personalization := map[string]any{"to": to}
	if data, ok := in["template_data"]; ok {
		personalization["dynamic_template_data"] = data
	}

	from := map[string]any{"email": api.String(in, "from")}
	if name := api.String(in, "from_name"); name != "" {
		from["name"] = name
	}

	body := map[string]any{
		"personalizations": []any{personalization},
		"from":             from,
		"subject":          api.String(in, "subject"),
	}
	var content []any
	if text != "" {
		content = append(content, map[string]any{"type": "text/plain", "value": text})
	}
	if html != "" {
		content = append(content, map[string]any{"type": "text/html", "value": html})
	}
	if len(content) > 0 {
		body["content"] = content
	}
	if template != "" {
		body["template_id"] = template
	}
	if replyTo := api.String(in, "reply_to"); replyTo != "" {
		body["reply_to"] = map[string]any{"email": replyTo}
	}

	resp, err := s.DoJSON(ctx, http.MethodPost, s.BaseURL()+"/mail/send", body, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}
	return map[string]any{
		"message_id": resp.Header("X-Message-Id"),
		"status":     "accepted",
	}, nil
}
