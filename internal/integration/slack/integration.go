package slack

import (
	"context"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

// action is the closed set of Slack actions.
type action string

const (
	sendMessage   action = "send_message"
	updateMessage action = "update_message"
	addReaction   action = "add_reaction"
	listChannels  action = "list_channels"
	getUser       action = "get_user"
)

// Definition describes the Slack integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "slack",
		Name:        "Slack",
		Description: "Send messages, react and look up channels and people in a Slack workspace",
		Category:    schema.CategoryCommunication,
		AuthType:    schema.AuthOAuth2,
		BaseURL:     "https://slack.com/api",
		OAuth2: &schema.OAuth2Config{
			AuthorizationURL: "https://slack.com/oauth/v2/authorize",
			TokenURL:         "https://slack.com/api/oauth.v2.access",
			Scopes:           []string{"chat:write", "channels:read", "reactions:write", "users:read"},
			ScopeDelimiter:   ",",
		},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(sendMessage),
				Name:        "Send Message",
				Description: "Post a message to a channel",
				InputSchema: map[string]schema.FieldSchema{
					"channel":   {Type: schema.TypeString, Required: true, Description: "Channel id or #name"},
					"text":      {Type: schema.TypeString, Required: true},
					"thread_ts": {Type: schema.TypeString, Description: "Reply in this thread"},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"ok":      {Type: schema.TypeBoolean},
					"ts":      {Type: schema.TypeString},
					"channel": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(updateMessage),
				Name:        "Update Message",
				Description: "Edit a message previously posted",
				InputSchema: map[string]schema.FieldSchema{
					"channel": {Type: schema.TypeString, Required: true},
					"ts":      {Type: schema.TypeString, Required: true},
					"text":    {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"ok":      {Type: schema.TypeBoolean},
					"ts":      {Type: schema.TypeString},
					"channel": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(addReaction),
				Name:        "Add Reaction",
				Description: "Add an emoji reaction to a message",
				InputSchema: map[string]schema.FieldSchema{
					"channel":   {Type: schema.TypeString, Required: true},
					"timestamp": {Type: schema.TypeString, Required: true},
					"name":      {Type: schema.TypeString, Required: true, Description: "Emoji name without colons"},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"ok": {Type: schema.TypeBoolean},
				},
			},
			{
				ID:          string(listChannels),
				Name:        "List Channels",
				Description: "List public channels",
				InputSchema: map[string]schema.FieldSchema{
					"limit":  {Type: schema.TypeInteger, Default: 100},
					"cursor": {Type: schema.TypeString},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"channels":    {Type: schema.TypeArray},
					"next_cursor": {Type: schema.TypeString},
				},
			},
			{
				ID:          string(getUser),
				Name:        "Get User",
				Description: "Look up a workspace member",
				InputSchema: map[string]schema.FieldSchema{
					"user": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":        {Type: schema.TypeString},
					"name":      {Type: schema.TypeString},
					"real_name": {Type: schema.TypeString},
					"is_bot":    {Type: schema.TypeBoolean},
				},
			},
		},
	}
}

// SlackIntegration implements api.Adapter for the Slack Web API.
type SlackIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewSlackIntegration creates a new Slack integration.
func NewSlackIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, map[string]string{
		"Content-Type": "application/json; charset=utf-8",
	})
	if err != nil {
		return nil, err
	}

	s := &SlackIntegration{BaseAdapter: base}
	s.handlers = api.HandlerTable[action]{
		sendMessage:   s.sendMessage,
		updateMessage: s.updateMessage,
		addReaction:   s.addReaction,
		listChannels:  s.listChannels,
		getUser:       s.getUser,
	}
	return s, nil
}

// ExecuteAction runs a named action.
func (s *SlackIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, s.BaseAdapter, actionID, actx, s.handlers)
}

// ValidateCredentials calls auth.test, which answers 200 with ok:false for
// bad tokens.
func (s *SlackIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return s.Probe(ctx, http.MethodPost, s.BaseURL()+"/auth.test", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var who AuthTestResponse
			if err := api.DecodeJSON(resp, &who); err != nil {
				return nil, err
			}
			return map[string]any{
				"team":    who.Team,
				"team_id": who.TeamID,
				"user":    who.User,
				"user_id": who.UserID,
			}, nil
		})
}

// call posts a JSON body to a Web API method and decodes the response into
// target after checking the ok flag.
func (s *SlackIntegration) call(ctx context.Context, method string, body any, creds credential.Credentials, target any) error {
	resp, err := s.DoJSON(ctx, http.MethodPost, s.BaseURL()+"/"+method, body, creds)
	if err != nil {
		return err
	}
	if err := ParseError(resp); err != nil {
		return err
	}
	return api.DecodeJSON(resp, target)
}
