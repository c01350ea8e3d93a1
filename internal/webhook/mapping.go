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
	"fmt"
	"sync"
	"time"

	"github.com/itchyny/gojq"
)

// DefaultMappingTimeout bounds one input_mapping evaluation.
const DefaultMappingTimeout = 1 * time.Second

// Mapper applies jq input mappings to inbound payloads. Compiled queries are
// cached by expression.
type Mapper struct {
	timeout time.Duration

	mu    sync.RWMutex
	cache map[string]*gojq.Code
}

// NewMapper creates a mapper. A zero timeout uses DefaultMappingTimeout.
func NewMapper(timeout time.Duration) *Mapper {
	if timeout <= 0 {
		timeout = DefaultMappingTimeout
	}
	return &Mapper{
		timeout: timeout,
		cache:   make(map[string]*gojq.Code),
	}
}

// Validate reports whether expression compiles.
func (m *Mapper) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := m.compile(expression)
	return err
}

// Map runs expression against payload and returns the first result, which
// must be a JSON object. An empty expression returns payload unchanged.
func (m *Mapper) Map(ctx context.Context, expression string, payload map[string]any) (map[string]any, error) {
	if expression == "" {
		return payload, nil
	}

	code, err := m.compile(expression)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	iter := code.RunWithContext(ctx, payload)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("input mapping produced no result")
	}
	if err, isErr := v.(error); isErr {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("input mapping timed out after %v", m.timeout)
		}
		return nil, fmt.Errorf("input mapping failed: %w", err)
	}

	out, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input mapping must produce an object, got %T", v)
	}
	return out, nil
}

func (m *Mapper) compile(expression string) (*gojq.Code, error) {
	m.mu.RLock()
	code, ok := m.cache[expression]
	m.mu.RUnlock()
	if ok {
		return code, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid jq expression: %w", err)
	}
	code, err = gojq.Compile(query)
	if err != nil {
		return nil, fmt.Errorf("jq compilation failed: %w", err)
	}

	m.mu.Lock()
	m.cache[expression] = code
	m.mu.Unlock()
	return code, nil
}
