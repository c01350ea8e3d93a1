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

package config

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	sberrors "github.com/tombee/switchboard/pkg/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Listen != "127.0.0.1:8080" {
		t.Errorf("expected listen 127.0.0.1:8080, got %q", cfg.Server.Listen)
	}
	if cfg.Store.Type != "memory" {
		t.Errorf("expected memory store, got %q", cfg.Store.Type)
	}
	if cfg.OAuth.StateStore != "memory" || cfg.OAuth.StateTTL != 10*time.Minute {
		t.Errorf("unexpected oauth defaults: %+v", cfg.OAuth)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("expected http timeout 30s, got %v", cfg.HTTP.Timeout)
	}

	delays := cfg.RetryConfig().Delays()
	want := []time.Duration{0, time.Second, 2 * time.Second, 4 * time.Second}
	if len(delays) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), delays)
	}
	for i := range want {
		if delays[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], delays[i])
		}
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: 0.0.0.0:9000
  callback_url: https://sb.example.com/oauth/callback
store:
  type: sqlite
  path: /var/lib/switchboard/sb.db
oauth:
  state_store: redis
  redis:
    addr: redis:6379
providers:
  slack:
    client_id: "123.456"
    client_secret: shh
    rate_limit: 50/minute
  jira:
    base_url: https://jira.internal
webhooks:
  delivery:
    max_attempts: 2
engine:
  trigger_url: http://engine:7000/v1/runs
log:
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Listen != "0.0.0.0:9000" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.CallbackURL() != "https://sb.example.com/oauth/callback" {
		t.Errorf("callback = %q", cfg.CallbackURL())
	}
	if cfg.Store.Type != "sqlite" || cfg.StorePath() != "/var/lib/switchboard/sb.db" {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.OAuth.Redis.Addr != "redis:6379" {
		t.Errorf("redis addr = %q", cfg.OAuth.Redis.Addr)
	}
	if cfg.Providers["jira"].BaseURL != "https://jira.internal" {
		t.Errorf("jira base_url = %q", cfg.Providers["jira"].BaseURL)
	}
	if cfg.Engine.TriggerURL != "http://engine:7000/v1/runs" {
		t.Errorf("engine = %+v", cfg.Engine)
	}

	// Partial sections keep their defaults.
	if cfg.Webhooks.Delivery.MaxAttempts != 2 || cfg.Webhooks.Delivery.InitialBackoff != time.Second {
		t.Errorf("delivery = %+v", cfg.Webhooks.Delivery)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("log = %+v", cfg.Log)
	}
	if cfg.HTTP.Timeout != 30*time.Second {
		t.Errorf("http timeout = %v", cfg.HTTP.Timeout)
	}

	clients := cfg.Providers.Clients()
	if len(clients) != 1 || clients["slack"].ID != "123.456" || clients["slack"].Secret != "shh" {
		t.Errorf("clients = %+v", clients)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  listen: 127.0.0.1:9000
log:
  level: info
`)
	t.Setenv("SWITCHBOARD_LISTEN", "127.0.0.1:9999")
	t.Setenv("SWITCHBOARD_STORE", "SQLITE")
	t.Setenv("SWITCHBOARD_ENGINE_URL", "http://engine/runs")
	t.Setenv("SWITCHBOARD_ENGINE_TOKEN", "tok")
	t.Setenv("LOG_LEVEL", "WARN")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("SWITCHBOARD_TRACING", "true")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9999" {
		t.Errorf("listen = %q", cfg.Server.Listen)
	}
	if cfg.CallbackURL() != "http://127.0.0.1:9999/oauth/callback" {
		t.Errorf("callback = %q", cfg.CallbackURL())
	}
	if cfg.Store.Type != "sqlite" {
		t.Errorf("store = %q", cfg.Store.Type)
	}
	if cfg.Engine.TriggerURL != "http://engine/runs" || cfg.Engine.Token != "tok" {
		t.Errorf("engine = %+v", cfg.Engine)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("log level = %q", cfg.Log.Level)
	}
	tc := cfg.TracerConfig("1.2.3")
	if !tc.Enabled || tc.Exporter != "otlp" || tc.Endpoint != "collector:4318" || tc.ServiceVersion != "1.2.3" {
		t.Errorf("tracing = %+v", tc)
	}
}

func TestLoad_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		var cfgErr *sberrors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != "config_file" {
			t.Errorf("expected config_file error, got %v", err)
		}
	})

	t.Run("bad yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [\n"))
		if err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := Load(writeConfig(t, `
store:
  type: postgres
oauth:
  state_store: redis
providers:
  slack:
    rate_limit: lots
`))
		if !errors.Is(err, ErrInvalidConfig) {
			t.Fatalf("expected ErrInvalidConfig, got %v", err)
		}
		for _, want := range []string{"store.type", "oauth.redis.addr", "providers.slack.rate_limit"} {
			if !strings.Contains(err.Error(), want) {
				t.Errorf("error should mention %s: %v", want, err)
			}
		}
		var cfgErr *sberrors.ConfigError
		if !errors.As(err, &cfgErr) || cfgErr.Key != "validation" {
			t.Errorf("expected *ConfigError at validation, got %T", err)
		} else if !strings.Contains(cfgErr.Error(), "store.type") {
			t.Errorf("ConfigError message should name the bad key: %q", cfgErr.Error())
		}
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"empty listen", func(c *Config) { c.Server.Listen = " " }, "server.listen"},
		{"zero attempts", func(c *Config) { c.Webhooks.Delivery.MaxAttempts = 0 }, "webhooks.delivery"},
		{"zero attempt timeout", func(c *Config) { c.Webhooks.Delivery.AttemptTimeout = 0 }, "attempt_timeout"},
		{"log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"otlp without endpoint", func(c *Config) { c.Tracing.Enabled = true; c.Tracing.Exporter = "otlp" }, "tracing.endpoint"},
		{"sample rate", func(c *Config) { c.Tracing.SampleRate = 2 }, "tracing.sample_rate"},
		{"state ttl", func(c *Config) { c.OAuth.StateTTL = 0 }, "oauth.state_ttl"},
		{"redirect origin", func(c *Config) { c.Server.RedirectOrigins = []string{"app.example"} }, "server.redirect_origins"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error mentioning %q, got %v", tt.want, err)
			}
		})
	}
}

func TestRedirectOrigins(t *testing.T) {
	cfg := Default()
	cfg.Server.CallbackURL = "https://sb.example.com/oauth/callback"
	cfg.Server.RedirectOrigins = []string{"https://app.example.com"}

	got := cfg.RedirectOrigins()
	want := []string{"https://app.example.com", "https://sb.example.com"}
	if len(got) != len(want) {
		t.Fatalf("RedirectOrigins() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("RedirectOrigins()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseRateLimit(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"10/second", 10, false},
		{"120/minute", 2, false},
		{"3600/hour", 1, false},
		{"86400/day", 1, false},
		{"0/minute", 0, true},
		{"ten/minute", 0, true},
		{"10/week", 0, true},
		{"10", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRateLimit(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRateLimit(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ParseRateLimit(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStorePath_Default(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/data")
	cfg := Default()
	if got := cfg.StorePath(); got != filepath.Join("/data", "switchboard", "switchboard.db") {
		t.Errorf("StorePath() = %q", got)
	}
}

func TestLoad_DefaultFile(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	t.Setenv("SWITCHBOARD_LISTEN", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() without a config file error = %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:8080" {
		t.Errorf("Listen = %q, want default", cfg.Server.Listen)
	}

	dir := filepath.Join(xdg, "switchboard")
	if err := os.MkdirAll(dir, 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server:\n  listen: 127.0.0.1:9191\n"), 0600); err != nil {
		t.Fatal(err)
	}

	path, err := ConfigPath()
	if err != nil || path != filepath.Join(dir, "config.yaml") {
		t.Fatalf("ConfigPath() = %q, %v", path, err)
	}
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Listen != "127.0.0.1:9191" {
		t.Errorf("Listen = %q, want value from default file", cfg.Server.Listen)
	}
}
