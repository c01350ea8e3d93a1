// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/store"
	"github.com/tombee/switchboard/internal/tracing"
	"github.com/tombee/switchboard/internal/transport"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// DefaultAttemptTimeout bounds a single delivery attempt.
const DefaultAttemptTimeout = 30 * time.Second

// ErrDispatcherClosed is returned by Dispatch after Close.
var ErrDispatcherClosed = errors.New("webhook dispatcher is closed")

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Store     store.WebhookStore
	Transport transport.Transport

	// Retry is the attempt schedule. Zero means transport.DefaultRetryConfig.
	Retry transport.RetryConfig

	// AttemptTimeout is the deadline for one attempt (default: 30s).
	AttemptTimeout time.Duration

	// Sleep waits between attempts. Tests substitute a recording sleeper.
	Sleep transport.Sleeper

	Now    func() time.Time
	Logger *slog.Logger
}

// Dispatcher delivers lifecycle events to outgoing webhooks. Each target is
// delivered on its own goroutine so one target's backoff never delays
// another's, and delivery never blocks the caller.
type Dispatcher struct {
	store          store.WebhookStore
	transport      transport.Transport
	retry          transport.RetryConfig
	attemptTimeout time.Duration
	sleep          transport.Sleeper
	filter         *Filter
	now            func() time.Time
	logger         *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Store == nil {
		return nil, &sberrors.ConfigError{Key: "store", Reason: "webhook store is required"}
	}
	if cfg.Transport == nil {
		return nil, &sberrors.ConfigError{Key: "http", Reason: "transport is required"}
	}
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry = transport.DefaultRetryConfig()
	}
	if err := retry.Validate(); err != nil {
		return nil, &sberrors.ConfigError{Key: "webhooks.delivery", Reason: err.Error(), Cause: err}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		store:          cfg.Store,
		transport:      cfg.Transport,
		retry:          retry,
		attemptTimeout: cfg.AttemptTimeout,
		sleep:          cfg.Sleep,
		filter:         NewFilter(),
		now:            cfg.Now,
		logger:         cfg.Logger,
		ctx:            ctx,
		cancel:         cancel,
	}
	if d.attemptTimeout <= 0 {
		d.attemptTimeout = DefaultAttemptTimeout
	}
	if d.sleep == nil {
		d.sleep = transport.SleepContext
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.logger = log.WithComponent(d.logger, "webhook-dispatcher")
	return d, nil
}

// Dispatch schedules delivery of event to every enabled outgoing webhook
// subscribed to it and returns the number of deliveries started. It does not
// wait for them.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, data map[string]any) (int, error) {
	if !event.Valid() {
		return 0, &sberrors.ValidationError{Field: "event", Message: fmt.Sprintf("unknown event %q", event)}
	}

	hooks, err := d.store.ListWebhooks(ctx, store.WebhookFilter{
		Direction:   store.DirectionOutgoing,
		Event:       string(event),
		EnabledOnly: true,
	})
	if err != nil {
		return 0, fmt.Errorf("list webhooks: %w", err)
	}

	env := Envelope{Event: event, Timestamp: d.now().UTC(), Data: data}
	started := 0
	for _, hook := range hooks {
		if !d.matches(hook, env) {
			continue
		}
		if err := d.start(hook, env); err != nil {
			return started, err
		}
		started++
	}
	return started, nil
}

// SendTest delivers a test event to one outgoing webhook and waits for the
// outcome. Disabled webhooks and filters are not consulted.
func (d *Dispatcher) SendTest(ctx context.Context, id string) (*DeliveryResult, error) {
	hook, err := d.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	if hook.Direction != store.DirectionOutgoing {
		return nil, &sberrors.ValidationError{Field: "id", Message: "only outgoing webhooks can be tested"}
	}
	env := Envelope{
		Event:     EventTest,
		Timestamp: d.now().UTC(),
		Data:      map[string]any{"webhook_id": id},
	}
	return d.Deliver(ctx, hook, env), nil
}

func (d *Dispatcher) matches(hook *store.Webhook, env Envelope) bool {
	ok, err := d.filter.Match(hook.Filter, env.env())
	if err != nil {
		d.logger.Warn("webhook filter failed, skipping delivery",
			"webhook_id", hook.ID, "event", env.Event, "error", err)
		return false
	}
	return ok
}

func (d *Dispatcher) start(hook *store.Webhook, env Envelope) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.Deliver(d.ctx, hook, env)
	}()
	return nil
}

// DeliveryResult reports one delivery's outcome.
type DeliveryResult struct {
	WebhookID  string `json:"webhook_id"`
	DeliveryID string `json:"delivery_id"`
	Attempts   int    `json:"attempts"`
	StatusCode int    `json:"status_code,omitempty"`
	Success    bool   `json:"success"`
	Error      string `json:"error,omitempty"`
}

// Deliver sends env to hook on the retry schedule and records the outcome.
// LastTriggeredAt is stamped on every attempt; the success or failure counter
// is incremented once for the final outcome.
func (d *Dispatcher) Deliver(ctx context.Context, hook *store.Webhook, env Envelope) *DeliveryResult {
	res := &DeliveryResult{WebhookID: hook.ID, DeliveryID: uuid.NewString()}
	logger := d.logger.With("webhook_id", hook.ID, "event", env.Event, "delivery_id", res.DeliveryID)

	ctx, span := tracing.StartDelivery(ctx, hook.ID, string(env.Event))
	body, err := json.Marshal(env)
	if err != nil {
		tracing.End(span, err)
		res.Error = fmt.Sprintf("encode envelope: %v", err)
		logger.Error("webhook delivery failed", "error", err)
		return res
	}
	req := d.buildRequest(hook, env.Event, res.DeliveryID, body)

	attempts, err := transport.Retry(ctx, d.retry, d.sleep, func(ctx context.Context, attempt int) error {
		status, err := d.attempt(ctx, hook, req)
		res.StatusCode = status
		metrics.RecordDeliveryAttempt(err == nil)
		if err != nil {
			logger.Warn("webhook delivery attempt failed",
				"attempt", attempt, "status", status, "error", err)
			if ctx.Err() != nil {
				return transport.Permanent(err)
			}
		}
		return err
	})
	res.Attempts = attempts
	res.Success = err == nil
	tracing.End(span, err)

	d.count(ctx, hook.ID, res.Success)
	metrics.RecordDelivery(string(env.Event), res.Success)
	if err != nil {
		res.Error = err.Error()
		logger.Error("webhook delivery gave up", "attempts", attempts, "error", err)
		return res
	}
	logger.Debug("webhook delivered", "attempts", attempts, "status", res.StatusCode)
	return res
}

func (d *Dispatcher) buildRequest(hook *store.Webhook, event Event, deliveryID string, body []byte) *transport.Request {
	headers := make(map[string]string, len(hook.Headers)+4)
	maps.Copy(headers, hook.Headers)
	headers["Content-Type"] = "application/json"
	headers[EventHeader] = string(event)
	headers[DeliveryHeader] = deliveryID
	if hook.Secret != "" {
		headers[SignatureHeader] = Sign(hook.Secret, body)
	}

	method := hook.Method
	if method == "" {
		method = "POST"
	}
	return &transport.Request{Method: method, URL: hook.URL, Headers: headers, Body: body}
}

// attempt performs one delivery attempt under its own deadline.
func (d *Dispatcher) attempt(ctx context.Context, hook *store.Webhook, req *transport.Request) (int, error) {
	d.touch(ctx, hook.ID)

	ctx, cancel := context.WithTimeout(ctx, d.attemptTimeout)
	defer cancel()

	resp, err := d.transport.Execute(ctx, req)
	if err != nil {
		return 0, &sberrors.DeliveryError{Target: hook.URL, Message: err.Error(), Cause: err}
	}
	if !resp.IsSuccess() {
		return resp.StatusCode, &sberrors.DeliveryError{
			Target:     hook.URL,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("target returned HTTP %d", resp.StatusCode),
		}
	}
	return resp.StatusCode, nil
}

func (d *Dispatcher) touch(ctx context.Context, id string) {
	if err := d.store.TouchWebhook(context.WithoutCancel(ctx), id, d.now()); err != nil {
		d.logger.Warn("failed to record webhook attempt time", "webhook_id", id, "error", err)
	}
}

func (d *Dispatcher) count(ctx context.Context, id string, success bool) {
	if err := d.store.CountDelivery(context.WithoutCancel(ctx), id, success); err != nil {
		d.logger.Warn("failed to count webhook delivery", "webhook_id", id, "error", err)
	}
}

// Wait blocks until every scheduled delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close stops accepting deliveries, cancels in-flight retry loops and waits
// for them to finish or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.cancel()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
