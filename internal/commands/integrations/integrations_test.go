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

package integrations

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/schema"
)

func run(t *testing.T, jsonOut bool, args ...string) (string, error) {
	t.Helper()
	root := &cobra.Command{Use: "switchboard", SilenceUsage: true, SilenceErrors: true}
	jsonPtr, _ := shared.RegisterFlagPointers()
	root.PersistentFlags().BoolVar(jsonPtr, "json", false, "JSON output")
	t.Cleanup(func() { *jsonPtr = false })
	root.AddCommand(NewCommand())

	if jsonOut {
		args = append(args, "--json")
	}
	var buf bytes.Buffer
	root.SetOut(&buf)
	root.SetArgs(append([]string{"integrations"}, args...))
	err := root.Execute()
	return buf.String(), err
}

func TestList(t *testing.T) {
	out, err := run(t, false, "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	for _, id := range []string{"slack", "github", "notion", "stripe", "dropbox"} {
		if !strings.Contains(out, id) {
			t.Errorf("list output missing %s", id)
		}
	}
}

func TestList_CategoryJSON(t *testing.T) {
	out, err := run(t, true, "list", "--category", "payments")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	var resp struct {
		Integrations []schema.IntegrationDefinition `json:"integrations"`
	}
	if err := json.Unmarshal([]byte(out), &resp); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, out)
	}
	if len(resp.Integrations) != 1 || resp.Integrations[0].ID != "stripe" {
		t.Errorf("unexpected integrations: %+v", resp.Integrations)
	}
}

func TestSearch(t *testing.T) {
	out, err := run(t, false, "search", "zzz-no-match")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "No integrations found") {
		t.Errorf("unexpected output: %s", out)
	}

	out, err = run(t, false, "search", "SLACK")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if !strings.Contains(out, "slack") {
		t.Errorf("search output missing slack: %s", out)
	}
}

func TestShow(t *testing.T) {
	out, err := run(t, false, "show", "github")
	if err != nil {
		t.Fatalf("show failed: %v", err)
	}
	if !strings.Contains(out, "create_issue") || !strings.Contains(out, "(required)") {
		t.Errorf("unexpected output: %s", out)
	}

	_, err = run(t, false, "show", "bitbucket")
	if err == nil || !strings.Contains(err.Error(), "unknown integration") {
		t.Errorf("expected unknown integration error, got %v", err)
	}
}
