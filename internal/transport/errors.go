package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ErrorType categorizes transport failures.
type ErrorType string

const (
	// ErrorTypeConnection indicates network-level failures (DNS, refused, reset).
	ErrorTypeConnection ErrorType = "connection"

	// ErrorTypeTimeout indicates the per-call deadline elapsed.
	ErrorTypeTimeout ErrorType = "timeout"

	// ErrorTypeAuth indicates 401 or 403.
	ErrorTypeAuth ErrorType = "auth"

	// ErrorTypeRateLimit indicates 429.
	ErrorTypeRateLimit ErrorType = "rate_limit"

	// ErrorTypeServer indicates 5xx.
	ErrorTypeServer ErrorType = "server"

	// ErrorTypeClient indicates other 4xx.
	ErrorTypeClient ErrorType = "client"

	// ErrorTypeInvalidReq indicates the request could not be built.
	ErrorTypeInvalidReq ErrorType = "invalid_request"

	// ErrorTypeCancelled indicates the caller's context was cancelled.
	ErrorTypeCancelled ErrorType = "cancelled"
)

// TransportError is returned for every transport-level failure.
type TransportError struct {
	Type       ErrorType
	StatusCode int
	Message    string
	RequestID  string
	Retryable  bool
	Cause      error
	Metadata   map[string]any
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s error (status %d): %s", e.Type, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s error: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause.
func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ErrorType implements errors.ErrorClassifier.
func (e *TransportError) ErrorType() string {
	return string(e.Type)
}

// IsRetryable implements errors.ErrorClassifier.
func (e *TransportError) IsRetryable() bool {
	return e.Retryable
}

// IsAuthError reports whether err is a TransportError of type auth.
func IsAuthError(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Type == ErrorTypeAuth
}

// StatusError classifies a non-2xx response. It returns nil for 2xx.
func StatusError(resp *Response) *TransportError {
	if resp == nil || resp.IsSuccess() {
		return nil
	}

	var (
		errorType ErrorType
		retryable bool
	)
	switch code := resp.StatusCode; {
	case code == 401 || code == 403:
		errorType = ErrorTypeAuth
	case code == 429:
		errorType, retryable = ErrorTypeRateLimit, true
	case code == 408:
		errorType, retryable = ErrorTypeTimeout, true
	case code >= 500:
		errorType, retryable = ErrorTypeServer, true
	default:
		errorType = ErrorTypeClient
	}

	message := fmt.Sprintf("HTTP %d", resp.StatusCode)
	if len(resp.Body) > 0 && len(resp.Body) < 500 {
		message = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(resp.Body)))
	}

	te := &TransportError{
		Type:       errorType,
		StatusCode: resp.StatusCode,
		Message:    message,
		Retryable:  retryable,
		Metadata:   resp.Metadata,
	}
	if id, ok := resp.Metadata[MetadataRequestID].(string); ok {
		te.RequestID = id
	}
	return te
}

// classifyError maps an http.Client error to a TransportError. parent is the
// caller's context, used to tell cancellation apart from the per-call deadline.
func classifyError(parent context.Context, err error) *TransportError {
	if parent.Err() != nil {
		return &TransportError{
			Type:    ErrorTypeCancelled,
			Message: "request cancelled",
			Cause:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || isTimeoutError(err) {
		return &TransportError{
			Type:      ErrorTypeTimeout,
			Message:   "request timeout",
			Retryable: true,
			Cause:     err,
		}
	}

	if isConnectionError(err) {
		return &TransportError{
			Type:      ErrorTypeConnection,
			Message:   "connection error",
			Retryable: true,
			Cause:     err,
		}
	}

	return &TransportError{
		Type:      ErrorTypeConnection,
		Message:   fmt.Sprintf("HTTP error: %s", err.Error()),
		Retryable: true,
		Cause:     err,
	}
}

func isTimeoutError(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isConnectionError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	for _, keyword := range []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network unreachable",
		"eof",
	} {
		if strings.Contains(errMsg, keyword) {
			return true
		}
	}
	return false
}
