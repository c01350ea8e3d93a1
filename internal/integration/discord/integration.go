package discord

import (
	"context"
	"net/http"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/transport"
)

type action string

const (
	sendMessage  action = "send_message"
	listChannels action = "list_channels"
	addReaction  action = "add_reaction"
)

// Definition describes the Discord integration.
func Definition() *schema.IntegrationDefinition {
	return &schema.IntegrationDefinition{
		ID:          "discord",
		Name:        "Discord",
		Description: "Post messages and react in Discord servers through a bot",
		Category:    schema.CategoryCommunication,
		AuthType:    schema.AuthAPIKey,
		BaseURL:     "https://discord.com/api/v10",
		APIKey:      &schema.APIKeyConfig{HeaderName: "Authorization", Prefix: "Bot"},
		Actions: []schema.ActionDefinition{
			{
				ID:          string(sendMessage),
				Name:        "Send Message",
				Description: "Post a message to a channel",
				InputSchema: map[string]schema.FieldSchema{
					"channel_id": {Type: schema.TypeString, Required: true},
					"content":    {Type: schema.TypeString, Required: true},
					"embeds":     {Type: schema.TypeArray},
					"tts":        {Type: schema.TypeBoolean, Default: false},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"id":         {Type: schema.TypeString},
					"channel_id": {Type: schema.TypeString},
					"timestamp":  {Type: schema.TypeString},
				},
			},
			{
				ID:          string(listChannels),
				Name:        "List Channels",
				Description: "List the channels of a server",
				InputSchema: map[string]schema.FieldSchema{
					"guild_id": {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"channels": {Type: schema.TypeArray},
					"count":    {Type: schema.TypeInteger},
				},
			},
			{
				ID:          string(addReaction),
				Name:        "Add Reaction",
				Description: "React to a message with a unicode emoji",
				InputSchema: map[string]schema.FieldSchema{
					"channel_id": {Type: schema.TypeString, Required: true},
					"message_id": {Type: schema.TypeString, Required: true},
					"emoji":      {Type: schema.TypeString, Required: true},
				},
				OutputSchema: map[string]schema.FieldSchema{
					"ok": {Type: schema.TypeBoolean},
				},
			},
		},
	}
}

// DiscordIntegration implements api.Adapter for the Discord bot API.
type DiscordIntegration struct {
	*api.BaseAdapter
	handlers api.HandlerTable[action]
}

// NewDiscordIntegration creates a new Discord integration.
func NewDiscordIntegration(cfg api.Config) (api.Adapter, error) {
	base, err := api.NewBaseAdapter(Definition(), cfg, nil)
	if err != nil {
		return nil, err
	}

	d := &DiscordIntegration{BaseAdapter: base}
	d.handlers = api.HandlerTable[action]{
		sendMessage:  d.sendMessage,
		listChannels: d.listChannels,
		addReaction:  d.addReaction,
	}
	return d, nil
}

// ExecuteAction runs a named action.
func (d *DiscordIntegration) ExecuteAction(ctx context.Context, actionID string, actx api.ActionContext) api.ActionResult {
	return api.Dispatch(ctx, d.BaseAdapter, actionID, actx, d.handlers)
}

// ValidateCredentials fetches the bot user.
func (d *DiscordIntegration) ValidateCredentials(ctx context.Context, creds credential.Credentials) api.ValidationResult {
	return d.Probe(ctx, http.MethodGet, d.BaseURL()+"/users/@me", creds, ParseError,
		func(resp *transport.Response) (map[string]any, error) {
			var u User
			if err := api.DecodeJSON(resp, &u); err != nil {
				return nil, err
			}
			return map[string]any{"id": u.ID, "username": u.Username, "bot": u.Bot}, nil
		})
}

func (d *DiscordIntegration) sendMessage(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := d.BuildURL("/channels/{channel_id}/messages", actx.Input)
	if err != nil {
		return nil, err
	}
	resp, err := d.DoJSON(ctx, http.MethodPost, url, api.Pick(actx.Input, "content", "embeds", "tts"), actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var msg Message
	if err := api.DecodeJSON(resp, &msg); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":         msg.ID,
		"channel_id": msg.ChannelID,
		"timestamp":  msg.Timestamp,
	}, nil
}

func (d *DiscordIntegration) listChannels(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := d.BuildURL("/guilds/{guild_id}/channels", actx.Input)
	if err != nil {
		return nil, err
	}
	resp, err := d.DoJSON(ctx, http.MethodGet, url, nil, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var channels []Channel
	if err := api.DecodeJSON(resp, &channels); err != nil {
		return nil, err
	}
	out := make([]any, 0, len(channels))
	for _, ch := range channels {
		out = append(out, map[string]any{
			"id":        ch.ID,
			"name":      ch.Name,
			"type":      ch.Type,
			"topic":     ch.Topic,
			"position":  ch.Position,
			"parent_id": ch.ParentID,
		})
	}
	return map[string]any{"channels": out, "count": len(out)}, nil
}

// addReaction answers 204 on success.
func (d *DiscordIntegration) addReaction(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url, err := d.BuildURL("/channels/{channel_id}/messages/{message_id}/reactions/{emoji}/@me", actx.Input)
	if err != nil {
		return nil, err
	}
	resp, err := d.DoJSON(ctx, http.MethodPut, url, nil, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}
	return map[string]any{"ok": true}, nil
}
