package github

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/tombee/switchboard/internal/transport"
)

// GitHubError represents a GitHub API error response.
type GitHubError struct {
	Message            string            `json:"message"`
	DocumentationURL   string            `json:"documentation_url,omitempty"`
	Errors             []ValidationError `json:"errors,omitempty"`
	StatusCode         int               `json:"-"`
	RateLimitRemaining int               `json:"-"`
	RateLimitReset     time.Time         `json:"-"`
}

// ValidationError is one entry of a 422 response.
type ValidationError struct {
	Resource string `json:"resource"`
	Field    string `json:"field"`
	Code     string `json:"code"`
	Message  string `json:"message,omitempty"`
}

func (e *GitHubError) Error() string {
	msg := fmt.Sprintf("GitHub API error: %s (status %d)", e.Message, e.StatusCode)

	for _, ve := range e.Errors {
		msg += fmt.Sprintf(" [%s.%s: %s]", ve.Resource, ve.Field, ve.Code)
	}
	if e.RateLimited() {
		msg += " - rate limit exceeded, resets at " + e.RateLimitReset.Format(time.RFC3339)
	}
	return msg
}

// RateLimited reports whether the failure was caused by the primary rate limit.
func (e *GitHubError) RateLimited() bool {
	return (e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusTooManyRequests) &&
		e.RateLimitRemaining == 0 && !e.RateLimitReset.IsZero()
}

// ParseError converts a non-2xx response into a *GitHubError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	ghErr := &GitHubError{StatusCode: resp.StatusCode, RateLimitRemaining: -1}
	if v, err := strconv.Atoi(resp.Header("X-RateLimit-Remaining")); err == nil {
		ghErr.RateLimitRemaining = v
	}
	if v, err := strconv.ParseInt(resp.Header("X-RateLimit-Reset"), 10, 64); err == nil {
		ghErr.RateLimitReset = time.Unix(v, 0).UTC()
	}

	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, ghErr); err != nil {
			ghErr.Message = string(resp.Body)
		}
	}
	if ghErr.Message == "" {
		ghErr.Message = http.StatusText(resp.StatusCode)
	}
	return ghErr
}
