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


// Package serve implements the serve command, which runs the switchboard
// HTTP server.
package serve

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tombee/switchboard/internal/commands/shared"
	"github.com/tombee/switchboard/internal/config"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/tracing"
)

// NewCommand creates the serve command.
func NewCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the switchboard HTTP server.

The server exposes the integration catalog, connection management, the
OAuth2 callback, and incoming and outgoing webhooks. Configuration is read
from ~/.config/switchboard/config.yaml (or --config) and environment
variables.

Examples:
  switchboard serve
  switchboard serve --listen 0.0.0.0:8080
  SWITCHBOARD_STORE=sqlite switchboard serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(shared.GetConfigPath())
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "Listen address (overrides server.listen)")
	return cmd
}

func run(ctx context.Context, cfg *config.Config) error {
	version, _, _ := shared.GetVersion()

	logger := log.New(cfg.LoggerConfig())
	slog.SetDefault(logger)

	tp, err := tracing.NewProvider(ctx, cfg.TracerConfig(version))
	if err != nil {
		return fmt.Errorf("failed to start tracing: %w", err)
	}

	app, err := newApp(ctx, cfg, version, logger)
	if err != nil {
		_ = tp.Shutdown(context.Background())
		return err
	}

	logger.Info("starting switchboard",
		"version", version,
		"listen", cfg.Server.Listen,
		"store", cfg.Store.Type,
		"state_store", cfg.OAuth.StateStore)

	serveErr := app.server.ListenAndServe(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	closeErr := app.Close(shutdownCtx)
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Warn("failed to flush traces", "error", err)
	}

	return errors.Join(serveErr, closeErr)
}
