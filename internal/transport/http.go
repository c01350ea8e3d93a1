package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/tombee/switchboard/internal/log"
)

const (
	// DefaultTimeout bounds a single outbound call.
	DefaultTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read into memory.
	maxResponseBytes = 10 << 20

	defaultUserAgent = "switchboard/1.0"
)

// HTTPConfig configures an HTTPTransport.
type HTTPConfig struct {
	// Timeout is the deadline applied to every call (default: 30s).
	Timeout time.Duration

	// Headers are applied to every request; request headers override them.
	Headers map[string]string

	// UserAgent defaults to switchboard/1.0.
	UserAgent string

	// RateLimiter, if set, is waited on before every call.
	RateLimiter RateLimiter

	// Client overrides the pooled client. Used by tests.
	Client *http.Client

	// Logger receives one debug line per call. Defaults to slog.Default().
	Logger *slog.Logger
}

// HTTPTransport implements Transport over net/http.
type HTTPTransport struct {
	client      *http.Client
	timeout     time.Duration
	headers     map[string]string
	userAgent   string
	rateLimiter RateLimiter
	logger      *slog.Logger
}

// NewHTTPTransport creates a transport with connection pooling and TLS 1.2+.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	client := cfg.Client
	if client == nil {
		client = NewHTTPClient(timeout)
	}

	return &HTTPTransport{
		client:      client,
		timeout:     timeout,
		headers:     cfg.Headers,
		userAgent:   userAgent,
		rateLimiter: cfg.RateLimiter,
		logger:      logger,
	}
}

// NewHTTPClient returns a pooled client. The deadline is applied per call by
// HTTPTransport, so the client itself only bounds response headers.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}

// SetRateLimiter configures rate limiting for this transport.
func (t *HTTPTransport) SetRateLimiter(limiter RateLimiter) {
	t.rateLimiter = limiter
}

// Execute sends the request under the configured deadline.
func (t *HTTPTransport) Execute(ctx context.Context, req *Request) (*Response, error) {
	if err := validateRequest(req); err != nil {
		return nil, &TransportError{
			Type:    ErrorTypeInvalidReq,
			Message: fmt.Sprintf("invalid request: %s", err.Error()),
			Cause:   err,
		}
	}

	if t.rateLimiter != nil {
		if err := t.rateLimiter.Wait(ctx); err != nil {
			return nil, &TransportError{
				Type:    ErrorTypeCancelled,
				Message: "rate limit wait cancelled",
				Cause:   err,
			}
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	httpReq, err := t.buildHTTPRequest(callCtx, req)
	if err != nil {
		return nil, &TransportError{
			Type:    ErrorTypeInvalidReq,
			Message: fmt.Sprintf("failed to build HTTP request: %s", err.Error()),
			Cause:   err,
		}
	}

	start := time.Now()
	httpResp, err := t.client.Do(httpReq)
	duration := time.Since(start).Milliseconds()
	if err != nil {
		t.logger.LogAttrs(ctx, slog.LevelWarn, "http request failed",
			log.String("method", req.Method),
			log.String("url", sanitizeURL(httpReq.URL)),
			log.Duration("duration", duration),
			log.Error(err),
		)
		return nil, classifyError(ctx, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Metadata:   map[string]any{MetadataDuration: duration},
	}
	if requestID := httpResp.Header.Get("X-Request-ID"); requestID != "" {
		resp.Metadata[MetadataRequestID] = requestID
	}
	if retryAfter := httpResp.Header.Get("Retry-After"); retryAfter != "" {
		resp.Metadata[MetadataRetryAfter] = retryAfter
	}

	level := slog.LevelDebug
	if httpResp.StatusCode >= 400 {
		level = slog.LevelWarn
	}
	t.logger.LogAttrs(ctx, level, "http request",
		log.String("method", req.Method),
		log.String("url", sanitizeURL(httpReq.URL)),
		log.Int("status", httpResp.StatusCode),
		log.Duration("duration", duration),
	)
	log.Trace(t.logger, "http exchange",
		log.String("url", sanitizeURL(httpReq.URL)),
		log.Int("request_bytes", len(req.Body)),
		log.Int("response_bytes", len(body)),
	)

	return resp, nil
}

func validateRequest(req *Request) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}
	switch req.Method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch,
		http.MethodDelete, http.MethodHead, http.MethodOptions:
	case "":
		return fmt.Errorf("method is required")
	default:
		return fmt.Errorf("invalid HTTP method: %q", req.Method)
	}

	if req.URL == "" {
		return fmt.Errorf("URL is required")
	}
	u, err := url.Parse(req.URL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL scheme must be http or https, got %q", u.Scheme)
	}
	return nil
}

func (t *HTTPTransport) buildHTTPRequest(ctx context.Context, req *Request) (*http.Request, error) {
	var bodyReader io.Reader
	if req.Body != nil {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, bodyReader)
	if err != nil {
		return nil, err
	}

	httpReq.Header.Set("User-Agent", t.userAgent)
	for key, value := range t.headers {
		httpReq.Header.Set(key, value)
	}
	for key, value := range req.Headers {
		httpReq.Header.Set(key, value)
	}

	if req.Body != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	return httpReq, nil
}
