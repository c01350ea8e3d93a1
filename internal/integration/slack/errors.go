package slack

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/switchboard/internal/transport"
)

// SlackError is a failed Web API call. Slack reports most failures as HTTP
// 200 with ok:false, so Code carries either the Slack error string or
// "http_<status>".
type SlackError struct {
	Code       string
	Detail     string
	StatusCode int
}

func (e *SlackError) Error() string {
	msg := "Slack API error: " + e.Code
	if hint, ok := hints[e.Code]; ok {
		msg += " - " + hint
	}
	if e.Detail != "" && e.Detail != e.Code {
		msg += " (" + e.Detail + ")"
	}
	return msg
}

// IsAuthError reports whether reconnecting would fix the error.
func (e *SlackError) IsAuthError() bool {
	switch e.Code {
	case "invalid_auth", "not_authed", "token_revoked", "token_expired", "account_inactive":
		return true
	}
	return e.StatusCode == http.StatusUnauthorized
}

// ParseError checks both the HTTP status and the ok flag of a Web API
// response.
func ParseError(resp *transport.Response) error {
	if !resp.IsSuccess() {
		return &SlackError{
			Code:       fmt.Sprintf("http_%d", resp.StatusCode),
			Detail:     http.StatusText(resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}
	if len(resp.Body) == 0 {
		return nil
	}

	var envelope Envelope
	if err := json.Unmarshal(resp.Body, &envelope); err != nil {
		return &SlackError{
			Code:       "parse_error",
			Detail:     err.Error(),
			StatusCode: resp.StatusCode,
		}
	}
	if !envelope.OK {
		return &SlackError{
			Code:       envelope.Error,
			Detail:     envelope.Warning,
			StatusCode: resp.StatusCode,
		}
	}
	return nil
}

var hints = map[string]string{
	"channel_not_found":   "channel does not exist or the app is not a member",
	"not_in_channel":      "invite the app to the channel first",
	"user_not_found":      "user does not exist in the workspace",
	"invalid_auth":        "token is invalid or revoked",
	"not_authed":          "no token was sent",
	"token_revoked":       "token was revoked, reconnect the workspace",
	"token_expired":       "token expired, reconnect the workspace",
	"account_inactive":    "token belongs to a deleted user or workspace",
	"missing_scope":       "token lacks a required scope",
	"ratelimited":         "too many requests",
	"cant_update_message": "message is too old or not yours",
	"message_not_found":   "message does not exist",
	"already_reacted":     "reaction already present",
	"invalid_name":        "emoji name is invalid",
	"is_archived":         "channel is archived",
}
