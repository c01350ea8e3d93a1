package transport

import (
	"net/url"
	"strings"

	"github.com/tombee/switchboard/internal/log"
)

// sensitiveParams contains query parameter names that should be redacted from logs.
// These are matched case-insensitively.
var sensitiveParams = []string{
	"api_key",
	"apikey",
	"token",
	"password",
	"auth",
	"secret",
	"key",
	"credential",
	"code",
}

// sanitizeURL removes sensitive query parameters from URLs before logging.
func sanitizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}

	q := u.Query()
	for param, values := range q {
		if isSensitiveParam(param) {
			q.Set(param, log.SanitizeSecret(values[0]))
		}
	}

	safe := *u
	safe.User = nil
	safe.RawQuery = q.Encode()
	return safe.String()
}

func isSensitiveParam(param string) bool {
	lower := strings.ToLower(param)
	for _, sensitive := range sensitiveParams {
		if strings.Contains(lower, sensitive) {
			return true
		}
	}
	return false
}
