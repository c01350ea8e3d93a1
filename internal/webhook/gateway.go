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
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/store"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// Trigger starts a workflow run. It is implemented by the execution engine.
type Trigger interface {
	Trigger(ctx context.Context, workflowID string, input map[string]any) (runID string, err error)
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, workflowID string, input map[string]any) (string, error)

// Trigger calls f.
func (f TriggerFunc) Trigger(ctx context.Context, workflowID string, input map[string]any) (string, error) {
	return f(ctx, workflowID, input)
}

// Config configures a Gateway.
type Config struct {
	Store   store.WebhookStore
	Trigger Trigger

	// MappingTimeout bounds input_mapping evaluation (default: 1s).
	MappingTimeout time.Duration

	Now    func() time.Time
	Logger *slog.Logger
}

// Gateway manages webhook configs and handles inbound requests.
type Gateway struct {
	store   store.WebhookStore
	trigger Trigger
	mapper  *Mapper
	filter  *Filter
	now     func() time.Time
	logger  *slog.Logger

	// writeMu serializes read-modify-write config updates.
	writeMu sync.Mutex
}

// NewGateway creates a gateway.
func NewGateway(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, &sberrors.ConfigError{Key: "store", Reason: "webhook store is required"}
	}
	if cfg.Trigger == nil {
		return nil, &sberrors.ConfigError{Key: "engine", Reason: "workflow trigger is required"}
	}
	g := &Gateway{
		store:   cfg.Store,
		trigger: cfg.Trigger,
		mapper:  NewMapper(cfg.MappingTimeout),
		filter:  NewFilter(),
		now:     cfg.Now,
		logger:  cfg.Logger,
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = slog.Default()
	}
	g.logger = log.WithComponent(g.logger, "webhook")
	return g, nil
}

// IncomingParams describes a new incoming webhook.
type IncomingParams struct {
	Name       string `json:"name"`
	WorkflowID string `json:"workflow_id"`

	// Secret is generated when empty.
	Secret string `json:"secret,omitempty"`

	// InputMapping is an optional jq expression applied to the payload.
	InputMapping string `json:"input_mapping,omitempty"`
}

// CreateIncoming stores a new incoming webhook. The returned config carries
// the secret; it is the only time callers see a generated one.
func (g *Gateway) CreateIncoming(ctx context.Context, p IncomingParams) (*store.Webhook, error) {
	if strings.TrimSpace(p.WorkflowID) == "" {
		return nil, &sberrors.ValidationError{Field: "workflow_id", Message: "workflow_id is required"}
	}
	if err := g.mapper.Validate(p.InputMapping); err != nil {
		return nil, &sberrors.ValidationError{Field: "input_mapping", Message: err.Error()}
	}

	secret := p.Secret
	if secret == "" {
		var err error
		if secret, err = NewSecret(); err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
	}

	now := g.now()
	w := &store.Webhook{
		ID:           uuid.NewString(),
		Name:         p.Name,
		Direction:    store.DirectionIncoming,
		WorkflowID:   p.WorkflowID,
		Secret:       secret,
		InputMapping: p.InputMapping,
		Enabled:      true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := g.store.CreateWebhook(ctx, w); err != nil {
		return nil, fmt.Errorf("store webhook: %w", err)
	}
	g.logger.Info("incoming webhook created", "webhook_id", w.ID, "workflow_id", w.WorkflowID)
	return w, nil
}

// OutgoingParams describes a new outgoing webhook.
type OutgoingParams struct {
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Method  string            `json:"method,omitempty"`
	Events  []string          `json:"events,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// Secret, when set, signs every delivery.
	Secret string `json:"secret,omitempty"`

	// Filter is an optional boolean expression over the envelope.
	Filter string `json:"filter,omitempty"`
}

// CreateOutgoing stores a new outgoing webhook.
func (g *Gateway) CreateOutgoing(ctx context.Context, p OutgoingParams) (*store.Webhook, error) {
	method, err := validateTarget(p.URL, p.Method)
	if err != nil {
		return nil, err
	}
	for _, e := range p.Events {
		if !Event(e).Valid() {
			return nil, &sberrors.ValidationError{
				Field:      "events",
				Message:    fmt.Sprintf("unknown event %q", e),
				Suggestion: "use one of workflow.started, workflow.completed, workflow.failed, node.started, node.completed, node.failed",
			}
		}
	}
	if err := g.filter.Validate(p.Filter); err != nil {
		return nil, &sberrors.ValidationError{Field: "filter", Message: err.Error()}
	}

	now := g.now()
	w := &store.Webhook{
		ID:        uuid.NewString(),
		Name:      p.Name,
		Direction: store.DirectionOutgoing,
		URL:       p.URL,
		Method:    method,
		Events:    p.Events,
		Headers:   p.Headers,
		Secret:    p.Secret,
		Filter:    p.Filter,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := g.store.CreateWebhook(ctx, w); err != nil {
		return nil, fmt.Errorf("store webhook: %w", err)
	}
	g.logger.Info("outgoing webhook created", "webhook_id", w.ID, "events", w.Events)
	return w, nil
}

func validateTarget(raw, method string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", &sberrors.ValidationError{
			Field:      "url",
			Message:    fmt.Sprintf("invalid target URL %q", raw),
			Suggestion: "use an absolute http or https URL",
		}
	}
	switch m := strings.ToUpper(method); m {
	case "":
		return "POST", nil
	case "POST", "PUT", "PATCH":
		return m, nil
	default:
		return "", &sberrors.ValidationError{
			Field:   "method",
			Message: fmt.Sprintf("unsupported method %q", method),
		}
	}
}

// RotateSecret replaces the secret of an incoming webhook and returns the
// updated config, secret included.
func (g *Gateway) RotateSecret(ctx context.Context, id string) (*store.Webhook, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	w, err := g.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	if w.Direction != store.DirectionIncoming {
		return nil, &sberrors.ValidationError{Field: "id", Message: "only incoming webhooks have a rotatable secret"}
	}
	if w.Secret, err = NewSecret(); err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	w.UpdatedAt = g.now()
	if err := g.store.UpdateWebhook(ctx, w); err != nil {
		return nil, err
	}
	g.logger.Info("webhook secret rotated", "webhook_id", id)
	return w, nil
}

// SetEnabled enables or disables a webhook.
func (g *Gateway) SetEnabled(ctx context.Context, id string, enabled bool) (*store.Webhook, error) {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	w, err := g.store.GetWebhook(ctx, id)
	if err != nil {
		return nil, err
	}
	w.Enabled = enabled
	w.UpdatedAt = g.now()
	if err := g.store.UpdateWebhook(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

// Get returns a webhook config.
func (g *Gateway) Get(ctx context.Context, id string) (*store.Webhook, error) {
	return g.store.GetWebhook(ctx, id)
}

// List returns webhook configs matching filter.
func (g *Gateway) List(ctx context.Context, filter store.WebhookFilter) ([]*store.Webhook, error) {
	return g.store.ListWebhooks(ctx, filter)
}

// Delete removes a webhook. Deleting an unknown id succeeds.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.store.DeleteWebhook(ctx, id)
}

// InboundResult is the outcome of a triggered inbound webhook.
type InboundResult struct {
	WebhookID  string `json:"webhook_id"`
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`
}

// HandleInbound verifies and dispatches one inbound request. The signature
// is checked against the raw body before the body is parsed.
//
// Errors: *errors.NotFoundError for unknown or disabled webhooks,
// *errors.AuthError for a missing or bad signature, *errors.ValidationError
// for a body that is not JSON or fails its input mapping.
func (g *Gateway) HandleInbound(ctx context.Context, id, signature string, body []byte) (*InboundResult, error) {
	w, err := g.store.GetWebhook(ctx, id)
	if err != nil || w.Direction != store.DirectionIncoming || !w.Enabled {
		metrics.RecordInbound("not_found")
		if err != nil && !isNotFound(err) {
			return nil, err
		}
		return nil, &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	logger := g.logger.With("webhook_id", id)

	if err := Verify(signature, body, w.Secret); err != nil {
		metrics.RecordInbound("unauthorized")
		logger.Warn("webhook signature verification failed", "error", err)
		return nil, &sberrors.AuthError{Provider: "webhook", Message: err.Error(), Cause: err}
	}

	payload, err := decodePayload(body)
	if err != nil {
		metrics.RecordInbound("bad_request")
		return nil, &sberrors.ValidationError{Field: "body", Message: err.Error()}
	}

	input, err := g.mapper.Map(ctx, w.InputMapping, payload)
	if err != nil {
		metrics.RecordInbound("bad_request")
		return nil, &sberrors.ValidationError{Field: "input_mapping", Message: err.Error()}
	}

	g.record(ctx, id)
	runID, err := g.trigger.Trigger(ctx, w.WorkflowID, input)
	g.count(ctx, id, err == nil)
	if err != nil {
		metrics.RecordInbound("trigger_failed")
		logger.Error("workflow trigger failed", "workflow_id", w.WorkflowID, "error", err)
		return nil, fmt.Errorf("trigger workflow %s: %w", w.WorkflowID, err)
	}

	metrics.RecordInbound("triggered")
	logger.Info("workflow triggered", "workflow_id", w.WorkflowID, "run_id", runID)
	return &InboundResult{WebhookID: id, WorkflowID: w.WorkflowID, RunID: runID}, nil
}

// decodePayload parses body as JSON. Non-object values are wrapped as
// {"payload": value}.
func decodePayload(body []byte) (map[string]any, error) {
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, fmt.Errorf("body is not valid JSON: %w", err)
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	return map[string]any{"payload": v}, nil
}

func (g *Gateway) record(ctx context.Context, id string) {
	if err := g.store.TouchWebhook(ctx, id, g.now()); err != nil {
		g.logger.Warn("failed to record webhook trigger time", "webhook_id", id, "error", err)
	}
}

func (g *Gateway) count(ctx context.Context, id string, success bool) {
	if err := g.store.CountDelivery(context.WithoutCancel(ctx), id, success); err != nil {
		g.logger.Warn("failed to count webhook trigger", "webhook_id", id, "error", err)
	}
}

func isNotFound(err error) bool {
	var nf *sberrors.NotFoundError
	return sberrors.As(err, &nf)
}
