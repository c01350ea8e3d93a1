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

package secrets

import (
	"context"
	"fmt"
	"os"
	"strings"
)

const (
	// EnvBackendPriority is the highest priority so the environment overrides
	// stored secrets.
	EnvBackendPriority = 100

	envSecretPrefix = "SWITCHBOARD_SECRET_"
)

// EnvBackend provides read-only access to secrets via environment variables.
// It supports two naming conventions:
//  1. SWITCHBOARD_SECRET_<KEY> (e.g., SWITCHBOARD_SECRET_PROVIDERS_SLACK_CLIENT_ID)
//  2. Provider variables (e.g., SLACK_CLIENT_ID, GITHUB_CLIENT_SECRET)
type EnvBackend struct{}

// NewEnvBackend creates a new environment variable backend.
func NewEnvBackend() *EnvBackend {
	return &EnvBackend{}
}

// Name returns the backend identifier.
func (e *EnvBackend) Name() string {
	return "env"
}

// Get retrieves a secret from environment variables.
func (e *EnvBackend) Get(ctx context.Context, key string) (string, error) {
	if value := os.Getenv(e.normalizeKey(key)); value != "" {
		return value, nil
	}
	if alias := e.providerAlias(key); alias != "" {
		if value := os.Getenv(alias); value != "" {
			return value, nil
		}
	}
	return "", fmt.Errorf("%w: environment variable not set", ErrSecretNotFound)
}

// Set returns ErrReadOnlyBackend.
func (e *EnvBackend) Set(ctx context.Context, key string, value string) error {
	return ErrReadOnlyBackend
}

// Delete returns ErrReadOnlyBackend.
func (e *EnvBackend) Delete(ctx context.Context, key string) error {
	return ErrReadOnlyBackend
}

// Available returns true as environment variables are always available.
func (e *EnvBackend) Available() bool {
	return true
}

// Priority returns the backend priority.
func (e *EnvBackend) Priority() int {
	return EnvBackendPriority
}

// normalizeKey converts a secret key to an environment variable name.
// Example: "providers/slack/client_id" -> "SWITCHBOARD_SECRET_PROVIDERS_SLACK_CLIENT_ID"
func (e *EnvBackend) normalizeKey(key string) string {
	return envSecretPrefix + envName(strings.ReplaceAll(key, "/", "_"))
}

// providerAlias returns the conventional provider variable for a key.
// Example: "providers/slack/client_secret" -> "SLACK_CLIENT_SECRET"
func (e *EnvBackend) providerAlias(key string) string {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != "providers" {
		return ""
	}
	switch parts[2] {
	case "client_id", "client_secret", "api_key":
		return envName(parts[1] + "_" + parts[2])
	}
	return ""
}

func envName(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", "_"))
}
