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
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisStore(t *testing.T, opts ...RedisOption) *RedisStateStore {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	opts = append(opts, WithRedisPrefix("switchboard-test-"+uuid.NewString()+":"))
	s, err := DialRedis(context.Background(), addr, "", 0, opts...)
	if err != nil {
		t.Skipf("redis unavailable at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestRedisStateStore_SingleUse(t *testing.T) {
	s := newTestRedisStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok", State{IntegrationID: "notion", ConnectionName: "docs", CreatedAt: time.Now()}))

	st, err := s.Take(ctx, "tok")
	require.NoError(t, err)
	require.NotNil(t, st)
	assert.Equal(t, "notion", st.IntegrationID)
	assert.Equal(t, "docs", st.ConnectionName)

	st, err = s.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRedisStateStore_ClockExpiry(t *testing.T) {
	clock := newFakeClock()
	s := newTestRedisStore(t, WithRedisClock(clock.Now))
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "tok", State{CreatedAt: clock.Now()}))
	clock.Advance(StateTTL + time.Minute)

	st, err := s.Take(ctx, "tok")
	require.NoError(t, err)
	assert.Nil(t, st)
}

func TestRedisStateStore_UnknownToken(t *testing.T) {
	s := newTestRedisStore(t)

	st, err := s.Take(context.Background(), "missing")
	require.NoError(t, err)
	assert.Nil(t, st)
}
