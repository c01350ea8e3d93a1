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


// Package secrets implements the secrets command, which manages OAuth client
// credentials and other provider secrets in the env and keychain backends.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/integration"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/schema"
	"github.com/tombee/switchboard/internal/secrets"
)

// newResolver is replaced in tests.
var newResolver = func() *secrets.Resolver {
	return secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
}

// NewCommand creates the secrets command.
func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage provider secrets (OAuth client credentials, API keys)",
		Long: `Manage provider secrets.

Secrets are resolved from these backends, highest priority first:
  1. Environment variables (read-only), e.g. SLACK_CLIENT_SECRET or
     SWITCHBOARD_SECRET_PROVIDERS_SLACK_CLIENT_SECRET
  2. System keychain (macOS Keychain, Linux Secret Service, Windows Credential Manager)

Key format:
  providers/<integration>/client_id
  providers/<integration>/client_secret

Examples:
  switchboard secrets set providers/slack/client_secret
  echo "abc" | switchboard secrets set providers/github/client_id
  switchboard secrets get providers/slack/client_secret
  switchboard secrets status
  switchboard secrets delete providers/slack/client_secret`,
	}

	cmd.AddCommand(newSetCommand())
	cmd.AddCommand(newGetCommand())
	cmd.AddCommand(newDeleteCommand())
	cmd.AddCommand(newStatusCommand())
	return cmd
}

func newSetCommand() *cobra.Command {
	var backend string

	cmd := &cobra.Command{
		Use:   "set <key>",
		Short: "Store a secret",
		Long: `Store a secret in the keychain, or in the backend named by --backend.

The value is read from standard input when it is piped, otherwise from a
hidden prompt.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := validateKey(key); err != nil {
				return err
			}

			value, err := readValue(cmd)
			if err != nil {
				return fmt.Errorf("failed to read secret value: %w", err)
			}
			if value == "" {
				return errors.New("secret value cannot be empty")
			}

			resolver := newResolver()
			if err := resolver.Set(cmd.Context(), key, value, backend); err != nil {
				if errors.Is(err, secrets.ErrBackendUnavailable) {
					return fmt.Errorf("%w\n\nSet an environment variable instead: export %s=<value>", err, envKey(key))
				}
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"key": key, "stored": true})
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Stored %s", key)))
			return nil
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Target backend (keychain)")
	return cmd
}

func newGetCommand() *cobra.Command {
	var unmask bool

	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Show a secret, masked unless --unmask is given",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			value, err := newResolver().Get(cmd.Context(), key)
			if err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return fmt.Errorf("secret not found: %q\n\nSet it with: switchboard secrets set %s", key, key)
				}
				return err
			}

			if !unmask {
				value = mask(value)
			}
			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"key": key, "value": value, "masked": !unmask})
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
	cmd.Flags().BoolVar(&unmask, "unmask", false, "Show the full value")
	return cmd
}

func newDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Remove a secret from every writable backend",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			if err := newResolver().Delete(cmd.Context(), key); err != nil {
				if errors.Is(err, secrets.ErrSecretNotFound) {
					return fmt.Errorf("secret not found in a writable backend: %q", key)
				}
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), shared.RenderOK(fmt.Sprintf("Deleted %s", key)))
			return nil
		},
	}
}

type providerStatus struct {
	Integration  string `json:"integration"`
	ClientID     bool   `json:"client_id"`
	ClientSecret bool   `json:"client_secret"`
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show which OAuth2 integrations have client credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := integration.NewBuiltin(api.Config{Logger: log.Discard()}, nil)
			if err != nil {
				return err
			}
			statuses, err := oauthStatus(cmd.Context(), newResolver(), reg.GetAllDefinitions())
			if err != nil {
				return err
			}

			if shared.GetJSON() {
				return shared.EmitJSON(cmd.OutOrStdout(), map[string]any{"providers": statuses})
			}
			w := cmd.OutOrStdout()
			for _, s := range statuses {
				line := fmt.Sprintf("%-10s client_id %s  client_secret %s",
					s.Integration, shared.RenderPresence(s.ClientID), shared.RenderPresence(s.ClientSecret))
				fmt.Fprintln(w, line)
			}
			return nil
		},
	}
}

func oauthStatus(ctx context.Context, resolver *secrets.Resolver, defs []*schema.IntegrationDefinition) ([]providerStatus, error) {
	var out []providerStatus
	for _, def := range defs {
		if def.AuthType != schema.AuthOAuth2 {
			continue
		}
		id, err := present(ctx, resolver, secrets.ClientIDKey(def.ID))
		if err != nil {
			return nil, err
		}
		secret, err := present(ctx, resolver, secrets.ClientSecretKey(def.ID))
		if err != nil {
			return nil, err
		}
		out = append(out, providerStatus{Integration: def.ID, ClientID: id, ClientSecret: secret})
	}
	return out, nil
}

func present(ctx context.Context, resolver *secrets.Resolver, key string) (bool, error) {
	_, err := resolver.Get(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, secrets.ErrSecretNotFound), errors.Is(err, secrets.ErrBackendUnavailable):
		return false, nil
	default:
		return false, err
	}
}

// readValue reads a piped value, or prompts with hidden input on a terminal.
func readValue(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.ErrOrStderr(), "Enter secret value (hidden): ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	data, err := io.ReadAll(in)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

func mask(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:4] + "..." + value[len(value)-4:]
}

func validateKey(key string) error {
	if key == "" {
		return errors.New("secret key cannot be empty")
	}
	if strings.ContainsAny(key, " \t") {
		return errors.New("secret key cannot contain spaces")
	}
	if strings.Contains(key, "\\") {
		return errors.New("secret key should use forward slashes (/), not backslashes (\\)")
	}
	return nil
}

func envKey(key string) string {
	return "SWITCHBOARD_SECRET_" + strings.ToUpper(strings.NewReplacer("/", "_", "-", "_").Replace(key))
}
