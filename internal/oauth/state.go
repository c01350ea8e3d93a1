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

package oauth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// StateTTL is how long an issued state stays valid.
const StateTTL = 10 * time.Minute

// stateBytes is the entropy of a state token (256 bits).
const stateBytes = 32

// State binds an authorization request to its callback.
type State struct {
	IntegrationID  string    `json:"integration_id"`
	ConnectionName string    `json:"connection_name"`
	RedirectURL    string    `json:"redirect_url"`
	CreatedAt      time.Time `json:"created_at"`
}

// Expired reports whether the state is older than ttl at now.
func (s State) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.CreatedAt) > ttl
}

// StateStore holds pending authorization states. Implementations must make
// Take atomic: a token is returned to at most one caller.
type StateStore interface {
	// Put stores s under token.
	Put(ctx context.Context, token string, s State) error

	// Take removes and returns the state for token. It returns nil, nil
	// when the token is unknown, already used or expired.
	Take(ctx context.Context, token string) (*State, error)

	// Sweep drops expired entries and reports how many were removed.
	Sweep(ctx context.Context) (int, error)
}

// NewStateToken returns a random URL-safe token.
func NewStateToken() (string, error) {
	b := make([]byte, stateBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemoryStateStore is a process-local StateStore. It is unsuitable when
// more than one instance serves callbacks; use RedisStateStore there.
type MemoryStateStore struct {
	mu      sync.Mutex
	entries map[string]State
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption configures a MemoryStateStore.
type MemoryOption func(*MemoryStateStore)

// WithClock sets the clock used for expiry checks.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithMemoryTTL overrides StateTTL.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// NewMemoryStateStore creates an empty in-memory store.
func NewMemoryStateStore(opts ...MemoryOption) *MemoryStateStore {
	s := &MemoryStateStore{
		entries: make(map[string]State),
		ttl:     StateTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Put implements StateStore.
func (s *MemoryStateStore) Put(_ context.Context, token string, st State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[token] = st
	return nil
}

// Take implements StateStore.
func (s *MemoryStateStore) Take(_ context.Context, token string) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.entries[token]
	if !ok {
		return nil, nil
	}
	delete(s.entries, token)
	if st.Expired(s.now(), s.ttl) {
		return nil, nil
	}
	return &st, nil
}

// Sweep implements StateStore.
func (s *MemoryStateStore) Sweep(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for token, st := range s.entries {
		if st.Expired(now, s.ttl) {
			delete(s.entries, token)
			removed++
		}
	}
	return removed, nil
}

// Len returns the number of pending states.
func (s *MemoryStateStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
