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

// Package server exposes the integration catalog, connections, OAuth2
// callbacks and webhooks over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tombee/switchboard/internal/connection"
	"github.com/tombee/switchboard/internal/integration"
	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/webhook"
)

// DefaultShutdownTimeout bounds graceful shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. 127.0.0.1:8080.
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// ShutdownTimeout bounds graceful shutdown (default: DefaultShutdownTimeout).
	ShutdownTimeout time.Duration

	// RedirectOrigins are the origins (scheme://host[:port]) an OAuth2 flow
	// may return the user agent to. Relative paths are always allowed.
	RedirectOrigins []string

	Version string

	Catalog     *integration.Registry
	Connections *connection.Manager
	Webhooks    *webhook.Gateway
	Dispatcher  *webhook.Dispatcher

	// Metrics, if set, is served on GET /metrics.
	Metrics http.Handler

	Logger *slog.Logger
}

// Server is the HTTP surface.
type Server struct {
	cfg         Config
	catalog     *integration.Registry
	connections *connection.Manager
	webhooks    *webhook.Gateway
	dispatcher  *webhook.Dispatcher
	logger      *slog.Logger
	router      chi.Router
}

// New builds a server and its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg:         cfg,
		catalog:     cfg.Catalog,
		connections: cfg.Connections,
		webhooks:    cfg.Webhooks,
		dispatcher:  cfg.Dispatcher,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = log.WithComponent(s.logger, "server")
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(log.HTTPMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/version", s.handleVersion)
	if s.cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.cfg.Metrics)
	}

	r.Post("/webhooks/incoming/{webhookID}", s.handleInbound)
	r.Get("/oauth/callback", s.handleOAuthCallback)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/integrations", s.handleListIntegrations)
		r.Get("/integrations/{integrationID}", s.handleGetIntegration)
		r.Get("/integrations/{integrationID}/authorize", s.handleAuthorize)

		r.Route("/connections", func(r chi.Router) {
			r.Get("/", s.handleListConnections)
			r.Post("/", s.handleCreateConnection)
			r.Route("/{connectionID}", func(r chi.Router) {
				r.Get("/", s.handleGetConnection)
				r.Delete("/", s.handleDeleteConnection)
				r.Post("/enable", s.handleSetConnectionEnabled(true))
				r.Post("/disable", s.handleSetConnectionEnabled(false))
				r.Post("/validate", s.handleValidateConnection)
				r.Post("/actions/{actionID}", s.handleInvoke)
			})
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/", s.handleListWebhooks)
			r.Post("/incoming", s.handleCreateIncoming)
			r.Post("/outgoing", s.handleCreateOutgoing)
			r.Route("/{webhookID}", func(r chi.Router) {
				r.Get("/", s.handleGetWebhook)
				r.Delete("/", s.handleDeleteWebhook)
				r.Post("/enable", s.handleSetWebhookEnabled(true))
				r.Post("/disable", s.handleSetWebhookEnabled(false))
				r.Post("/rotate-secret", s.handleRotateSecret)
				r.Post("/test", s.handleTestWebhook)
			})
		})

		r.Post("/events", s.handlePublishEvent)
	})
	return r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		BaseContext:  func(net.Listener) context.Context { return context.WithoutCancel(ctx) },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":       "ok",
		"integrations": len(s.catalog.GetAll()),
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"version": s.cfg.Version})
}
