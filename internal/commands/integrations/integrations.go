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

// Package integrations implements the integrations command, which browses
// the built-in catalog.
package integrations

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/integration"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/schema"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// NewCommand creates the integrations command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "integrations",
		Aliases: []string{"integration"},
		Short:   "Browse the integration catalog",
		Long: `Browse the built-in integrations, their auth models and actions.

Examples:
  switchboard integrations list
  switchboard integrations list --category communication
  switchboard integrations search issue
  switchboard integrations show github --json`,
	}

	cmd.AddCommand(newListCommand())
	cmd.AddCommand(newSearchCommand())
	cmd.AddCommand(newShowCommand())
	return cmd
}

func catalog() (*integration.Registry, error) {
	return integration.NewBuiltin(api.Config{Logger: log.Discard()}, nil)
}

func newListCommand() *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog()
			if err != nil {
				return err
			}
			adapters := reg.GetAll()
			if category != "" {
				adapters = reg.GetByCategory(schema.Category(category))
			}
			return printList(cmd.OutOrStdout(), adapters)
		},
	}
	cmd.Flags().StringVar(&category, "category", "", "Only show integrations in this category")
	return cmd
}

func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <query>",
		Short: "Search integrations by name, description or category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog()
			if err != nil {
				return err
			}
			return printList(cmd.OutOrStdout(), reg.Search(args[0]))
		},
	}
}

func newShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an integration's auth model and actions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := catalog()
			if err != nil {
				return err
			}
			a := reg.Get(args[0])
			if a == nil {
				return &sberrors.ValidationError{
					Field:      "id",
					Message:    fmt.Sprintf("unknown integration %q", args[0]),
					Suggestion: "run 'switchboard integrations list' to see available ids",
				}
			}
			def := a.Definition()
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), def)
			}
			printDefinition(cmd.OutOrStdout(), def)
			return nil
		},
	}
}

func printList(w io.Writer, adapters []api.Adapter) error {
	defs := make([]*schema.IntegrationDefinition, 0, len(adapters))
	for _, a := range adapters {
		defs = append(defs, a.Definition())
	}

	if shared.GetJSON() {
		return shared.EmitJSON(w, map[string]any{"integrations": defs})
	}

	if len(defs) == 0 {
		fmt.Fprintf(w, "%s No integrations found\n", shared.Muted.Render(shared.SymbolInfo))
		return nil
	}

	fmt.Fprintf(w, "%s %s %s %s\n",
		shared.Bold.Render(fmt.Sprintf("%-10s", "ID")),
		shared.Bold.Render(fmt.Sprintf("%-15s", "CATEGORY")),
		shared.Bold.Render(fmt.Sprintf("%-11s", "AUTH")),
		shared.Bold.Render("DESCRIPTION"))
	for _, def := range defs {
		fmt.Fprintf(w, "%s %s %s %s\n",
			shared.Bold.Render(fmt.Sprintf("%-10s", def.ID)),
			shared.Muted.Render(fmt.Sprintf("%-15s", def.Category)),
			shared.RenderAuth(def.AuthType, 11),
			def.Description)
	}
	return nil
}

func printDefinition(w io.Writer, def *schema.IntegrationDefinition) {
	fmt.Fprintf(w, "%s %s\n", shared.Header.Render(def.Name), shared.Muted.Render("("+def.ID+")"))
	fmt.Fprintln(w, def.Description)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Category:"), def.Category)
	fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Auth:    "), shared.RenderAuth(def.AuthType, 0))
	if def.BaseURL != "" {
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Base URL:"), def.BaseURL)
	}
	if def.OAuth2 != nil && len(def.OAuth2.Scopes) > 0 {
		fmt.Fprintf(w, "%s %s\n", shared.RenderLabel("Scopes:  "), strings.Join(def.OAuth2.Scopes, " "))
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, shared.Header.Render("Actions"))
	for _, action := range def.Actions {
		fmt.Fprintf(w, "  %s  %s\n", shared.Bold.Render(action.ID), action.Description)
		for _, name := range sortedKeys(action.InputSchema) {
			field := action.InputSchema[name]
			marker := ""
			if field.Required {
				marker = shared.StatusOK.Render(" (required)")
			}
			fmt.Fprintf(w, "      %s %s%s\n", name, shared.Muted.Render(string(field.Type)), marker)
		}
	}
}

func sortedKeys(m map[string]schema.FieldSchema) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
