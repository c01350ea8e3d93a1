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
	"errors"
	"testing"
)

func TestEnvBackend_Get(t *testing.T) {
	backend := NewEnvBackend()
	ctx := context.Background()

	tests := []struct {
		name      string
		key       string
		envVars   map[string]string
		wantValue string
		wantErr   error
	}{
		{
			name:      "normalized key found",
			key:       "providers/slack/client_id",
			envVars:   map[string]string{"SWITCHBOARD_SECRET_PROVIDERS_SLACK_CLIENT_ID": "123.456"},
			wantValue: "123.456",
		},
		{
			name:      "provider alias found",
			key:       "providers/slack/client_secret",
			envVars:   map[string]string{"SLACK_CLIENT_SECRET": "shh"},
			wantValue: "shh",
		},
		{
			name: "normalized takes precedence over alias",
			key:  "providers/github/client_id",
			envVars: map[string]string{
				"SWITCHBOARD_SECRET_PROVIDERS_GITHUB_CLIENT_ID": "normalized",
				"GITHUB_CLIENT_ID":                              "alias",
			},
			wantValue: "normalized",
		},
		{
			name:    "alias only for provider keys",
			key:     "engine/token",
			envVars: map[string]string{"ENGINE_TOKEN": "nope"},
			wantErr: ErrSecretNotFound,
		},
		{
			name:    "not found",
			key:     "providers/notion/client_id",
			wantErr: ErrSecretNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			got, err := backend.Get(ctx, tt.key)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("Get() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Get() unexpected error = %v", err)
			}
			if got != tt.wantValue {
				t.Errorf("Get() = %q, want %q", got, tt.wantValue)
			}
		})
	}
}

func TestEnvBackend_ReadOnly(t *testing.T) {
	backend := NewEnvBackend()
	ctx := context.Background()

	if err := backend.Set(ctx, "providers/slack/client_id", "x"); !errors.Is(err, ErrReadOnlyBackend) {
		t.Errorf("Set() error = %v, want ErrReadOnlyBackend", err)
	}
	if err := backend.Delete(ctx, "providers/slack/client_id"); !errors.Is(err, ErrReadOnlyBackend) {
		t.Errorf("Delete() error = %v, want ErrReadOnlyBackend", err)
	}
	if !backend.Available() || backend.Priority() != EnvBackendPriority {
		t.Errorf("Available() = %v, Priority() = %d", backend.Available(), backend.Priority())
	}
}

func TestEnvBackend_HyphenatedProvider(t *testing.T) {
	t.Setenv("GOOGLE_DRIVE_CLIENT_ID", "gd")

	got, err := NewEnvBackend().Get(context.Background(), "providers/google-drive/client_id")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != "gd" {
		t.Errorf("Get() = %q, want gd", got)
	}
}
