// Package transport issues outbound HTTP calls for provider adapters and
// webhook deliveries. It is auth-agnostic: callers attach credentials as
// headers before handing a Request over.
package transport

import (
	"context"
	"net/http"
)

// Transport executes a single outbound request.
type Transport interface {
	// Execute sends req and returns the response for any HTTP status.
	// An error means no usable response was received.
	Execute(ctx context.Context, req *Request) (*Response, error)
}

// Request is a transport-neutral HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	Metadata   map[string]any
}

// Metadata keys populated by HTTPTransport.
const (
	MetadataRequestID  = "request_id"
	MetadataRetryAfter = "retry_after"
	MetadataDuration   = "duration_ms"
)

// IsSuccess reports whether the status is 2xx.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Header returns the first value for key.
func (r *Response) Header(key string) string {
	if r.Headers == nil {
		return ""
	}
	return r.Headers.Get(key)
}

// RateLimiter blocks until a request may proceed.
type RateLimiter interface {
	Wait(ctx context.Context) error
}
