package notion

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/tombee/switchboard/internal/transport"
)

// NotionError is a failed Notion API call.
type NotionError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *NotionError) Error() string {
	msg := "Notion API error: " + e.Code
	if hint, ok := hints[e.Code]; ok {
		msg += " - " + hint
	}
	if e.Message != "" && e.Message != e.Code {
		msg += " (" + e.Message + ")"
	}
	return msg
}

// errorBody is the JSON body Notion sends with every non-2xx status.
type errorBody struct {
	Object  string `json:"object"`
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseError converts a non-2xx response into a *NotionError.
func ParseError(resp *transport.Response) error {
	if resp.IsSuccess() {
		return nil
	}

	nerr := &NotionError{
		Code:       fmt.Sprintf("http_%d", resp.StatusCode),
		Message:    http.StatusText(resp.StatusCode),
		StatusCode: resp.StatusCode,
	}
	var body errorBody
	if err := json.Unmarshal(resp.Body, &body); err == nil && body.Code != "" {
		nerr.Code = body.Code
		nerr.Message = body.Message
	}
	return nerr
}

var hints = map[string]string{
	"unauthorized":        "token is invalid or the integration was removed",
	"restricted_resource": "share the page or database with the integration",
	"object_not_found":    "object does not exist or is not shared with the integration",
	"rate_limited":        "too many requests",
	"validation_error":    "request body failed validation",
	"invalid_json":        "request body is not valid JSON",
	"conflict_error":      "the object was modified concurrently, try again",
}
