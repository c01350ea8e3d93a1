package discord

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tombee/switchboard/internal/transport"
)

// DiscordError is a failed Discord API call.
type DiscordError struct {
	Code       int     `json:"code"`
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after,omitempty"`
	StatusCode int     `json:"-"`
}

func (e *DiscordError) Error() string {
	msg := fmt.Sprintf("Discord API error: %s (status %d", e.Message, e.StatusCode)
	if e.Code != 0 {
		msg += fmt.Sprintf(", code %d", e.Code)
	}
	msg += ")"
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" - retry after %s", time.Duration(e.RetryAfter*float64(time.Second)))
	}
	return msg
}

// ParseError converts a non-2xx response into a *DiscordError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	derr := &DiscordError{StatusCode: resp.StatusCode}
	if len(resp.Body) > 0 {
		_ = json.Unmarshal(resp.Body, derr)
	}
	if derr.RetryAfter == 0 {
		if v, err := strconv.ParseFloat(resp.Header("Retry-After"), 64); err == nil {
			derr.RetryAfter = v
		}
	}
	if derr.Message == "" {
		derr.Message = http.StatusText(resp.StatusCode)
	}
	return derr
}
