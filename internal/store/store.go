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

// Package store defines persistence for connections and webhook configs.
//
// # Interface Hierarchy
//
//   - CredentialStore: connected accounts (create, get, update, list, delete)
//   - WebhookStore: incoming and outgoing webhook configs plus delivery bookkeeping
//   - io.Closer
//
// Store composes all of them. Implementations return deep copies so callers
// can hold a record across concurrent updates or deletion.
package store

import (
	"context"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/tombee/switchboard/internal/credential"
)

// CredentialStore persists connections.
type CredentialStore interface {
	// CreateCredential stores a new connection. The id must be unique.
	CreateCredential(ctx context.Context, c *credential.Credential) error

	// GetCredential returns a connection or a *errors.NotFoundError.
	GetCredential(ctx context.Context, id string) (*credential.Credential, error)

	// UpdateCredential replaces an existing connection.
	UpdateCredential(ctx context.Context, c *credential.Credential) error

	// ListCredentials lists connections ordered by creation time.
	ListCredentials(ctx context.Context, filter CredentialFilter) ([]*credential.Credential, error)

	// DeleteCredential removes a connection. Deleting a missing id is not an error.
	DeleteCredential(ctx context.Context, id string) error
}

// CredentialFilter narrows ListCredentials.
type CredentialFilter struct {
	IntegrationID string
}

// WebhookStore persists webhook configs.
type WebhookStore interface {
	CreateWebhook(ctx context.Context, w *Webhook) error

	// GetWebhook returns a webhook or a *errors.NotFoundError.
	GetWebhook(ctx context.Context, id string) (*Webhook, error)

	UpdateWebhook(ctx context.Context, w *Webhook) error

	ListWebhooks(ctx context.Context, filter WebhookFilter) ([]*Webhook, error)

	// DeleteWebhook removes a webhook. Deleting a missing id is not an error.
	DeleteWebhook(ctx context.Context, id string) error

	// TouchWebhook sets LastTriggeredAt.
	TouchWebhook(ctx context.Context, id string, at time.Time) error

	// CountDelivery atomically increments SuccessCount or FailureCount.
	CountDelivery(ctx context.Context, id string, success bool) error
}

// Store is the full persistence interface.
type Store interface {
	CredentialStore
	WebhookStore
	io.Closer
}

// Direction distinguishes inbound triggers from outbound notifications.
type Direction string

const (
	DirectionIncoming Direction = "incoming"
	DirectionOutgoing Direction = "outgoing"
)

// Webhook is one incoming or outgoing webhook config.
type Webhook struct {
	ID         string    `json:"id"`
	Name       string    `json:"name,omitempty"`
	Direction  Direction `json:"direction"`
	WorkflowID string    `json:"workflow_id,omitempty"`

	// Secret signs payloads. Required for incoming webhooks; optional for
	// outgoing ones, which are signed when it is set.
	Secret string `json:"-"`

	// URL, Method, Events and Headers apply to outgoing webhooks.
	URL     string            `json:"url,omitempty"`
	Method  string            `json:"method,omitempty"`
	Events  []string          `json:"events,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`

	// InputMapping is a jq expression applied to incoming payloads.
	InputMapping string `json:"input_mapping,omitempty"`

	// Filter is a boolean expression evaluated against outgoing envelopes.
	Filter string `json:"filter,omitempty"`

	Enabled         bool       `json:"enabled"`
	SuccessCount    int64      `json:"success_count"`
	FailureCount    int64      `json:"failure_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// Subscribes reports whether the webhook is subscribed to event. An empty
// event list subscribes to everything.
func (w *Webhook) Subscribes(event string) bool {
	return len(w.Events) == 0 || slices.Contains(w.Events, event)
}

// Clone returns a deep copy.
func (w *Webhook) Clone() *Webhook {
	if w == nil {
		return nil
	}
	out := *w
	out.Events = slices.Clone(w.Events)
	out.Headers = maps.Clone(w.Headers)
	if w.LastTriggeredAt != nil {
		t := *w.LastTriggeredAt
		out.LastTriggeredAt = &t
	}
	return &out
}

// WebhookFilter narrows ListWebhooks.
type WebhookFilter struct {
	Direction Direction
	// Event keeps webhooks subscribed to this event.
	Event string
	// EnabledOnly drops disabled webhooks.
	EnabledOnly bool
}

// Match reports whether w passes the filter.
func (f WebhookFilter) Match(w *Webhook) bool {
	if f.Direction != "" && w.Direction != f.Direction {
		return false
	}
	if f.EnabledOnly && !w.Enabled {
		return false
	}
	if f.Event != "" && !w.Subscribes(f.Event) {
		return false
	}
	return true
}
