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
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zalando/go-keyring"

	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/secrets"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "switchboard", SilenceUsage: true, SilenceErrors: true}
	jsonPtr, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { *jsonPtr = false })
	root.AddCommand(NewCommand())

	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(append([]string{"secrets"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestSetGetDelete(t *testing.T) {
	keyring.MockInit()
	key := "providers/acme/client_secret"

	if _, err := run(t, "s3cr3t-value-123\n", "set", key); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	out, err := run(t, "", "get", key)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if strings.TrimSpace(out) != "s3cr...-123" {
		t.Errorf("masked output = %q", out)
	}

	out, err = run(t, "", "get", key, "--unmask")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if strings.TrimSpace(out) != "s3cr3t-value-123" {
		t.Errorf("unmasked output = %q", out)
	}

	if _, err := run(t, "", "delete", key); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := run(t, "", "get", key); err == nil || !strings.Contains(err.Error(), "secret not found") {
		t.Errorf("expected not found after delete, got %v", err)
	}
	if _, err := run(t, "", "delete", key); err == nil {
		t.Error("expected error deleting a missing secret")
	}
}

func TestSet_Errors(t *testing.T) {
	keyring.MockInit()

	tests := []struct {
		name  string
		stdin string
		key   string
		want  string
	}{
		{"space in key", "v", "providers/a b/client_id", "cannot contain spaces"},
		{"backslash", "v", `providers\slack\client_id`, "forward slashes"},
		{"empty value", "  \n", "providers/slack/client_id", "cannot be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.stdin, "set", tt.key)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestSet_ReadOnlyOnly(t *testing.T) {
	orig := newResolver
	newResolver = func() *secrets.Resolver { return secrets.NewResolver(secrets.NewEnvBackend()) }
	t.Cleanup(func() { newResolver = orig })

	_, err := run(t, "value", "set", "providers/slack/client_id")
	if err == nil || !strings.Contains(err.Error(), "SWITCHBOARD_SECRET_PROVIDERS_SLACK_CLIENT_ID") {
		t.Errorf("expected env hint, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	keyring.MockInit()
	t.Setenv("SLACK_CLIENT_ID", "cid")
	t.Setenv("SLACK_CLIENT_SECRET", "csecret")
	t.Setenv("GITHUB_CLIENT_ID", "")
	t.Setenv("GITHUB_CLIENT_SECRET", "")
	t.Setenv("SWITCHBOARD_SECRET_PROVIDERS_GITHUB_CLIENT_ID", "")
	t.Setenv("SWITCHBOARD_SECRET_PROVIDERS_GITHUB_CLIENT_SECRET", "")

	out, err := run(t, "", "status", "--json")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}
	var resp struct {
		Providers []providerStatus `json:"providers"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}

	byID := map[string]providerStatus{}
	for _, p := range resp.Providers {
		byID[p.Integration] = p
	}
	if _, ok := byID["stripe"]; ok {
		t.Error("api key integrations should not be listed")
	}
	if s := byID["slack"]; !s.ClientID || !s.ClientSecret {
		t.Errorf("slack = %+v", s)
	}
	if s, ok := byID["github"]; !ok || s.ClientID || s.ClientSecret {
		t.Errorf("github = %+v", s)
	}
}

func TestOAuthStatus_NoBackends(t *testing.T) {
	statuses, err := oauthStatus(context.Background(), secrets.NewResolver(), nil)
	if err != nil || len(statuses) != 0 {
		t.Errorf("got %v, %v", statuses, err)
	}
}

func TestMask(t *testing.T) {
	if got := mask("short"); got != "****" {
		t.Errorf("mask(short) = %q", got)
	}
	if got := mask("0123456789"); got != "0123...6789" {
		t.Errorf("mask = %q", got)
	}
}
