package slack

import (
	"context"
	"net/http"
	"strings"

	"github.com/tombee/switchboard/internal/integration/api"
)

func (s *SlackIntegration) sendMessage(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	body := api.Pick(actx.Input, "channel", "text", "thread_ts")

	var resp MessageResponse
	if err := s.call(ctx, "chat.postMessage", body, actx.Credentials(), &resp); err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":      resp.OK,
		"ts":      resp.TS,
		"channel": resp.Channel,
	}, nil
}

func (s *SlackIntegration) updateMessage(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	body := api.Pick(actx.Input, "channel", "ts", "text")

	var resp MessageResponse
	if err := s.call(ctx, "chat.update", body, actx.Credentials(), &resp); err != nil {
		return nil, err
	}
	return map[string]any{
		"ok":      resp.OK,
		"ts":      resp.TS,
		"channel": resp.Channel,
	}, nil
}

func (s *SlackIntegration) addReaction(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	body := api.Pick(actx.Input, "channel", "timestamp")
	body["name"] = strings.Trim(api.String(actx.Input, "name"), ":")

	var resp Envelope
	if err := s.call(ctx, "reactions.add", body, actx.Credentials(), &resp); err != nil {
		return nil, err
	}
	return map[string]any{"ok": resp.OK}, nil
}

func (s *SlackIntegration) listChannels(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url := s.BaseURL() + "/conversations.list" + api.BuildQueryString(actx.Input, "limit", "cursor")
	resp, err := s.DoJSON(ctx, http.MethodGet, url, nil, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var list ChannelsResponse
	if err := api.DecodeJSON(resp, &list); err != nil {
		return nil, err
	}
	channels := make([]any, 0, len(list.Channels))
	for _, c := range list.Channels {
		channels = append(channels, map[string]any{
			"id":          c.ID,
			"name":        c.Name,
			"is_private":  c.IsPrivate,
			"is_archived": c.IsArchived,
			"num_members": c.NumMembers,
		})
	}
	return map[string]any{
		"channels":    channels,
		"next_cursor": list.ResponseMetadata.NextCursor,
	}, nil
}

func (s *SlackIntegration) getUser(ctx context.Context, actx api.ActionContext) (map[string]any, error) {
	url := s.BaseURL() + "/users.info" + api.BuildQueryString(actx.Input, "user")
	resp, err := s.DoJSON(ctx, http.MethodGet, url, nil, actx.Credentials())
	if err != nil {
		return nil, err
	}
	if err := ParseError(resp); err != nil {
		return nil, err
	}

	var info UserResponse
	if err := api.DecodeJSON(resp, &info); err != nil {
		return nil, err
	}
	return map[string]any{
		"id":           info.User.ID,
		"name":         info.User.Name,
		"real_name":    info.User.RealName,
		"is_bot":       info.User.IsBot,
		"tz":           info.User.TZ,
		"email":        info.User.Profile.Email,
		"display_name": info.User.Profile.DisplayName,
	}, nil
}
