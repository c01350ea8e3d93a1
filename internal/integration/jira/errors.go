package jira

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/tombee/switchboard/internal/transport"
)

// JiraError represents a Jira API error response.
type JiraError struct {
	ErrorMessages []string          `json:"errorMessages,omitempty"`
	Errors        map[string]string `json:"errors,omitempty"`
	StatusCode    int               `json:"-"`
}

func (e *JiraError) Error() string {
	parts := append([]string(nil), e.ErrorMessages...)

	fields := make([]string, 0, len(e.Errors))
	for field := range e.Errors {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	for _, field := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e.Errors[field]))
	}

	msg := "Jira API error"
	if len(parts) > 0 {
		msg = strings.Join(parts, "; ")
	}
	return fmt.Sprintf("%s (status %d)", msg, e.StatusCode)
}

// ParseError converts a non-2xx response into a *JiraError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	jiraErr := &JiraError{StatusCode: resp.StatusCode}
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, jiraErr); err != nil {
			jiraErr.ErrorMessages = []string{strings.TrimSpace(string(resp.Body))}
		}
	}
	if len(jiraErr.ErrorMessages) == 0 && len(jiraErr.Errors) == 0 {
		jiraErr.ErrorMessages = []string{http.StatusText(resp.StatusCode)}
	}
	return jiraErr
}
