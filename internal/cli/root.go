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

// Package cli builds the switchboard command tree.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/commands/integrations"
	"github.com/tombee/switchboard/internal/commands/secrets"
	"github.com/tombee/switchboard/internal/commands/serve"
	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/commands/version"
)

// SetVersion sets the version information (called from main)
func SetVersion(v, c, b string) {
	shared.SetVersion(v, c, b)
}

// NewRootCommand creates the root command with every subcommand attached.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "switchboard",
		Short: "Switchboard - third-party integration and webhook gateway",
		Long: `Switchboard connects workflows to third-party services. It stores
provider connections (OAuth2, API keys, basic auth), runs integration
actions with them, and bridges webhooks in and out of the workflow engine.

Run 'switchboard serve' to start the HTTP server.
Run 'switchboard integrations list' to see the built-in catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	json, config := shared.RegisterFlagPointers()
	cmd.PersistentFlags().BoolVar(json, "json", false, "Output in JSON format")
	cmd.PersistentFlags().StringVar(config, "config", "", "Path to config file (default: ~/.config/switchboard/config.yaml)")

	cmd.AddCommand(serve.NewCommand())
	cmd.AddCommand(integrations.NewCommand())
	cmd.AddCommand(secrets.NewCommand())
	cmd.AddCommand(version.NewVersionCommand())

	return cmd
}

// GetVersion returns version information
func GetVersion() (string, string, string) {
	return shared.GetVersion()
}

// HandleExitError handles exit errors with proper exit codes
func HandleExitError(err error) {
	shared.HandleExitError(err)
}
