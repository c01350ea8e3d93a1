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
	"fmt"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Filter evaluates the boolean filter expressions of outgoing webhooks
// against delivery envelopes, e.g. `data.status == "failed"`.
type Filter struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewFilter creates a filter with an empty program cache.
func NewFilter() *Filter {
	return &Filter{cache: make(map[string]*vm.Program)}
}

// Validate reports whether expression compiles to a boolean program.
func (f *Filter) Validate(expression string) error {
	if expression == "" {
		return nil
	}
	_, err := f.compile(expression)
	return err
}

// Match evaluates expression against env. An empty expression matches.
func (f *Filter) Match(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}

	program, err := f.compile(expression)
	if err != nil {
		return false, err
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("filter evaluation failed: %w", err)
	}
	matched, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("filter returned %T, want bool", out)
	}
	return matched, nil
}

func (f *Filter) compile(expression string) (*vm.Program, error) {
	f.mu.RLock()
	if prog, ok := f.cache[expression]; ok {
		f.mu.RUnlock()
		return prog, nil
	}
	f.mu.RUnlock()

	prog, err := expr.Compile(expression,
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}

	f.mu.Lock()
	f.cache[expression] = prog
	f.mu.Unlock()
	return prog, nil
}
