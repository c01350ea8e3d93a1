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


package serve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tombee/switchboard/internal/config"
	"github.com/tombee/switchboard/internal/connection"
	"github.com/tombee/switchboard/internal/integration"
	"github.com/tombee/switchboard/internal/integration/api"
	"github.com/tombee/switchboard/internal/metrics"
	"github.com/tombee/switchboard/internal/oauth"
	"github.com/tombee/switchboard/internal/secrets"
	"github.com/tombee/switchboard/internal/server"
	"github.com/tombee/switchboard/internal/store"
	"github.com/tombee/switchboard/internal/store/memory"
	"github.com/tombee/switchboard/internal/store/sqlite"
	"github.com/tombee/switchboard/internal/transport"
	"github.com/tombee/switchboard/internal/webhook"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

// app is the wired set of components behind the server.
type app struct {
	server     *server.Server
	dispatcher *webhook.Dispatcher
	store      store.Store
	closers    []io.Closer
	logger     *slog.Logger
}

// newResolver is replaced in tests.
var newResolver = func() *secrets.Resolver {
	return secrets.NewResolver(secrets.NewEnvBackend(), secrets.NewKeychainBackend())
}

func newApp(ctx context.Context, cfg *config.Config, version string, logger *slog.Logger) (_ *app, err error) {
	a := &app{logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.store, err = openStore(cfg)
	if err != nil {
		return nil, err
	}

	states, err := openStateStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if c, ok := states.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	httpTransport := transport.NewHTTPTransport(transport.HTTPConfig{
		Timeout:   cfg.HTTP.Timeout,
		UserAgent: cfg.HTTP.UserAgent,
		Logger:    logger,
	})

	controller, err := oauth.NewController(oauth.Config{
		Store:       states,
		Clients:     secrets.NewOAuthClients(newResolver(), cfg.Providers.Clients()),
		CallbackURL: cfg.CallbackURL(),
		HTTPClient:  transport.NewHTTPClient(cfg.HTTP.Timeout),
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	overrides, err := providerOverrides(cfg, logger)
	if err != nil {
		return nil, err
	}
	catalog, err := integration.NewBuiltin(api.Config{
		Transport: httpTransport,
		Exchanger: controller,
		Logger:    logger,
	}, overrides)
	if err != nil {
		return nil, err
	}

	connections := connection.NewManager(connection.Config{
		Registry: catalog,
		Store:    a.store,
		OAuth:    controller,
		Logger:   logger,
	})

	gateway, err := webhook.NewGateway(webhook.Config{
		Store:          a.store,
		Trigger:        engineTrigger(cfg, httpTransport),
		MappingTimeout: cfg.Webhooks.MappingTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	a.dispatcher, err = webhook.NewDispatcher(webhook.DispatcherConfig{
		Store:          a.store,
		Transport:      httpTransport,
		Retry:          cfg.RetryConfig(),
		AttemptTimeout: cfg.Webhooks.Delivery.AttemptTimeout,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	a.server = server.New(server.Config{
		Addr:            cfg.Server.Listen,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		RedirectOrigins: cfg.RedirectOrigins(),
		Version:         version,
		Catalog:         catalog,
		Connections:     connections,
		Webhooks:        gateway,
		Dispatcher:      a.dispatcher,
		Metrics:         metrics.Handler(),
		Logger:          logger,
	})
	return a, nil
}

// Close drains in-flight deliveries, then closes the stores.
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.dispatcher != nil {
		if err := a.dispatcher.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("webhook deliveries did not drain: %w", err))
		}
	}
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close store: %w", err))
		}
	}
	return errors.Join(errs...)
}

func openStore(cfg *config.Config) (store.Store, error) {
	switch cfg.Store.Type {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		path := cfg.StorePath()
		if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
			return nil, &sberrors.ConfigError{Key: "store.path", Reason: err.Error(), Cause: err}
		}
		s, err := sqlite.New(sqlite.Config{Path: path, WAL: true})
		if err != nil {
			return nil, &sberrors.ConfigError{Key: "store.path", Reason: err.Error(), Cause: err}
		}
		return s, nil
	default:
		return nil, &sberrors.ConfigError{Key: "store.type", Reason: fmt.Sprintf("unknown store %q", cfg.Store.Type)}
	}
}

func openStateStore(ctx context.Context, cfg *config.Config) (oauth.StateStore, error) {
	switch cfg.OAuth.StateStore {
	case "", "memory":
		return oauth.NewMemoryStateStore(oauth.WithMemoryTTL(cfg.OAuth.StateTTL)), nil
	case "redis":
		r := cfg.OAuth.Redis
		s, err := oauth.DialRedis(ctx, r.Addr, r.Password, r.DB, oauth.WithRedisTTL(cfg.OAuth.StateTTL))
		if err != nil {
			return nil, &sberrors.ConfigError{Key: "oauth.redis.addr", Reason: err.Error(), Cause: err}
		}
		return s, nil
	default:
		return nil, &sberrors.ConfigError{Key: "oauth.state_store", Reason: fmt.Sprintf("unknown state store %q", cfg.OAuth.StateStore)}
	}
}

// providerOverrides maps provider config onto catalog overrides. Providers
// with a rate_limit get their own rate-limited transport.
func providerOverrides(cfg *config.Config, logger *slog.Logger) (map[string]integration.Override, error) {
	overrides := make(map[string]integration.Override)
	for id, p := range cfg.Providers {
		o := integration.Override{BaseURL: p.BaseURL}
		if p.RateLimit != "" {
			rps, err := config.ParseRateLimit(p.RateLimit)
			if err != nil {
				return nil, &sberrors.ConfigError{Key: "providers." + id + ".rate_limit", Reason: err.Error(), Cause: err}
			}
			o.Transport = transport.NewHTTPTransport(transport.HTTPConfig{
				Timeout:     cfg.HTTP.Timeout,
				UserAgent:   cfg.HTTP.UserAgent,
				RateLimiter: transport.NewRateLimiter(rps, 1),
				Logger:      logger,
			})
		}
		if o.BaseURL != "" || o.Transport != nil {
			overrides[id] = o
		}
	}
	return overrides, nil
}

// engineTrigger returns the workflow trigger for incoming webhooks. Without
// an engine URL every trigger fails with a config error.
func engineTrigger(cfg *config.Config, t transport.Transport) webhook.Trigger {
	if cfg.Engine.TriggerURL != "" {
		return webhook.NewEngineTrigger(t, cfg.Engine.TriggerURL, cfg.Engine.Token)
	}
	return webhook.TriggerFunc(func(context.Context, string, map[string]any) (string, error) {
		return "", &sberrors.ConfigError{Key: "engine.trigger_url", Reason: "no workflow engine configured"}
	})
}
