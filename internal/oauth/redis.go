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
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "switchboard:oauth:state:"

// RedisStateStore shares pending states between instances. Entries carry a
// Redis TTL so abandoned flows expire without a sweep.
type RedisStateStore struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

// RedisOption configures a RedisStateStore.
type RedisOption func(*RedisStateStore)

// WithRedisPrefix sets the key prefix.
func WithRedisPrefix(prefix string) RedisOption {
	return func(s *RedisStateStore) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

// WithRedisTTL overrides StateTTL.
func WithRedisTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStateStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithRedisClock sets the clock used to double-check expiry on Take.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(s *RedisStateStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewRedisStateStore wraps an existing client.
func NewRedisStateStore(client goredis.UniversalClient, opts ...RedisOption) *RedisStateStore {
	s := &RedisStateStore{
		client: client,
		prefix: defaultRedisPrefix,
		ttl:    StateTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStateStore, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStateStore(client, opts...), nil
}

func (s *RedisStateStore) key(token string) string {
	return s.prefix + token
}

// Put implements StateStore.
func (s *RedisStateStore) Put(ctx context.Context, token string, st State) error {
	raw, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(token), raw, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save state in redis: %w", err)
	}
	return nil
}

// Take implements StateStore using GETDEL, so concurrent callbacks with the
// same token cannot both succeed.
func (s *RedisStateStore) Take(ctx context.Context, token string) (*State, error) {
	raw, err := s.client.GetDel(ctx, s.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load state from redis: %w", err)
	}

	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	if st.Expired(s.now(), s.ttl) {
		return nil, nil
	}
	return &st, nil
}

// Sweep implements StateStore. Redis expires keys itself.
func (s *RedisStateStore) Sweep(context.Context) (int, error) {
	return 0, nil
}

// Close closes the underlying client.
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
