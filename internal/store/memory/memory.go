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

// Package memory provides an in-memory store implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tombee/switchboard/internal/credential"
	"github.com/tombee/switchboard/internal/store"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

var _ store.Store = (*Store)(nil)

// Store is an in-memory store.
type Store struct {
	mu          sync.RWMutex
	credentials map[string]*credential.Credential
	webhooks    map[string]*store.Webhook
	now         func() time.Time
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		credentials: make(map[string]*credential.Credential),
		webhooks:    make(map[string]*store.Webhook),
		now:         time.Now,
	}
}

// CreateCredential creates a new connection.
func (s *Store) CreateCredential(ctx context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[c.ID]; exists {
		return fmt.Errorf("connection already exists: %s", c.ID)
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	if c.UpdatedAt.IsZero() {
		c.UpdatedAt = c.CreatedAt
	}
	s.credentials[c.ID] = c.Clone()
	return nil
}

// GetCredential retrieves a connection by ID.
func (s *Store) GetCredential(ctx context.Context, id string) (*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, exists := s.credentials[id]
	if !exists {
		return nil, &sberrors.NotFoundError{Resource: "connection", ID: id}
	}
	return c.Clone(), nil
}

// UpdateCredential updates an existing connection.
func (s *Store) UpdateCredential(ctx context.Context, c *credential.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.credentials[c.ID]; !exists {
		return &sberrors.NotFoundError{Resource: "connection", ID: c.ID}
	}
	c.UpdatedAt = s.now()
	s.credentials[c.ID] = c.Clone()
	return nil
}

// ListCredentials lists connections in creation order.
func (s *Store) ListCredentials(ctx context.Context, filter store.CredentialFilter) ([]*credential.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*credential.Credential
	for _, c := range s.credentials {
		if filter.IntegrationID != "" && c.IntegrationID != filter.IntegrationID {
			continue
		}
		result = append(result, c.Clone())
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteCredential deletes a connection.
func (s *Store) DeleteCredential(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.credentials, id)
	return nil
}

// CreateWebhook creates a new webhook.
func (s *Store) CreateWebhook(ctx context.Context, w *store.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.webhooks[w.ID]; exists {
		return fmt.Errorf("webhook already exists: %s", w.ID)
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = s.now()
	}
	if w.UpdatedAt.IsZero() {
		w.UpdatedAt = w.CreatedAt
	}
	s.webhooks[w.ID] = w.Clone()
	return nil
}

// GetWebhook retrieves a webhook by ID.
func (s *Store) GetWebhook(ctx context.Context, id string) (*store.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, exists := s.webhooks[id]
	if !exists {
		return nil, &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	return w.Clone(), nil
}

// UpdateWebhook updates an existing webhook. Delivery counters are owned by
// CountDelivery and TouchWebhook and are not overwritten.
func (s *Store) UpdateWebhook(ctx context.Context, w *store.Webhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.webhooks[w.ID]
	if !exists {
		return &sberrors.NotFoundError{Resource: "webhook", ID: w.ID}
	}
	updated := w.Clone()
	updated.SuccessCount = existing.SuccessCount
	updated.FailureCount = existing.FailureCount
	updated.LastTriggeredAt = existing.LastTriggeredAt
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now()
	s.webhooks[w.ID] = updated
	w.UpdatedAt = updated.UpdatedAt
	return nil
}

// ListWebhooks lists webhooks in creation order.
func (s *Store) ListWebhooks(ctx context.Context, filter store.WebhookFilter) ([]*store.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*store.Webhook
	for _, w := range s.webhooks {
		if filter.Match(w) {
			result = append(result, w.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// DeleteWebhook deletes a webhook.
func (s *Store) DeleteWebhook(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.webhooks, id)
	return nil
}

// TouchWebhook sets LastTriggeredAt.
func (s *Store) TouchWebhook(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.webhooks[id]
	if !exists {
		return &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	w.LastTriggeredAt = &at
	return nil
}

// CountDelivery increments the success or failure counter.
func (s *Store) CountDelivery(ctx context.Context, id string, success bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, exists := s.webhooks[id]
	if !exists {
		return &sberrors.NotFoundError{Resource: "webhook", ID: id}
	}
	if success {
		w.SuccessCount++
	} else {
		w.FailureCount++
	}
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}
