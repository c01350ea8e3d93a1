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

// Package config loads Switchboard configuration from a YAML file and
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/switchboard/internal/log"
	"github.com/tombee/switchboard/internal/oauth"
	"github.com/tombee/switchboard/internal/tracing"
	"github.com/tombee/switchboard/internal/transport"
	sberrors "github.com/tombee/switchboard/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete Switchboard configuration.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Store     StoreConfig    `yaml:"store"`
	OAuth     OAuthConfig    `yaml:"oauth"`
	HTTP      HTTPConfig     `yaml:"http"`
	Providers ProvidersMap   `yaml:"providers,omitempty"`
	Webhooks  WebhooksConfig `yaml:"webhooks"`
	Engine    EngineConfig   `yaml:"engine"`
	Log       LogConfig      `yaml:"log"`
	Tracing   TracingConfig  `yaml:"tracing"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Listen is the TCP address to bind.
	// Environment: SWITCHBOARD_LISTEN
	// Default: 127.0.0.1:8080
	Listen string `yaml:"listen"`

	// CallbackURL is the public OAuth2 redirect URI registered with every
	// provider. Defaults to http://<listen>/oauth/callback.
	// Environment: SWITCHBOARD_CALLBACK_URL
	CallbackURL string `yaml:"callback_url,omitempty"`

	// RedirectOrigins lists the origins (scheme://host[:port]) a finished
	// OAuth2 flow may send the user agent back to. The callback URL's own
	// origin is always allowed.
	RedirectOrigins []string `yaml:"redirect_origins,omitempty"`

	ReadTimeout     time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout    time.Duration `yaml:"write_timeout,omitempty"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout,omitempty"`
}

// StoreConfig selects where connections and webhooks are kept.
type StoreConfig struct {
	// Type is "memory" or "sqlite".
	// Environment: SWITCHBOARD_STORE
	Type string `yaml:"type"`

	// Path is the SQLite database file.
	// Environment: SWITCHBOARD_STORE_PATH
	// Default: <data dir>/switchboard.db
	Path string `yaml:"path,omitempty"`
}

// OAuthConfig configures pending authorization state.
type OAuthConfig struct {
	// StateStore is "memory" or "redis". Use redis when several instances
	// share one callback URL.
	StateStore string        `yaml:"state_store"`
	StateTTL   time.Duration `yaml:"state_ttl,omitempty"`
	Redis      RedisConfig   `yaml:"redis,omitempty"`
}

// RedisConfig locates the Redis server.
type RedisConfig struct {
	// Environment: SWITCHBOARD_REDIS_ADDR
	Addr string `yaml:"addr"`
	// Environment: SWITCHBOARD_REDIS_PASSWORD
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
}

// HTTPConfig configures outbound provider calls.
type HTTPConfig struct {
	// Timeout bounds every provider call.
	// Default: 30s
	Timeout   time.Duration `yaml:"timeout,omitempty"`
	UserAgent string        `yaml:"user_agent,omitempty"`
}

// ProviderConfig holds per-integration settings. Client credentials left
// empty are resolved through the secrets chain.
type ProviderConfig struct {
	ClientID     string `yaml:"client_id,omitempty"`
	ClientSecret string `yaml:"client_secret,omitempty"`

	// BaseURL overrides the integration's API root (self-hosted, tests).
	BaseURL string `yaml:"base_url,omitempty"`

	// RateLimit caps calls to the provider, as <count>/<unit> (e.g., 50/minute).
	RateLimit string `yaml:"rate_limit,omitempty"`
}

// ProvidersMap is keyed by integration id.
type ProvidersMap map[string]ProviderConfig

// WebhooksConfig configures the webhook gateway.
type WebhooksConfig struct {
	Delivery DeliveryConfig `yaml:"delivery"`

	// MappingTimeout bounds one input mapping evaluation.
	MappingTimeout time.Duration `yaml:"mapping_timeout,omitempty"`
}

// DeliveryConfig configures outbound delivery retries. The defaults give
// attempts at 0s, 1s, 2s and 4s.
type DeliveryConfig struct {
	MaxAttempts    int           `yaml:"max_attempts,omitempty"`
	InitialBackoff time.Duration `yaml:"initial_backoff,omitempty"`
	BackoffFactor  float64       `yaml:"backoff_factor,omitempty"`
	AttemptTimeout time.Duration `yaml:"attempt_timeout,omitempty"`
}

// EngineConfig locates the workflow engine that incoming webhooks trigger.
type EngineConfig struct {
	// Environment: SWITCHBOARD_ENGINE_URL
	TriggerURL string `yaml:"trigger_url,omitempty"`
	// Environment: SWITCHBOARD_ENGINE_TOKEN
	Token string `yaml:"token,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source,omitempty"`
}

// TracingConfig configures OpenTelemetry export.
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Exporter   string  `yaml:"exporter,omitempty"`
	Endpoint   string  `yaml:"endpoint,omitempty"`
	Insecure   bool    `yaml:"insecure,omitempty"`
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	retry := transport.DefaultRetryConfig()
	return &Config{
		Server: ServerConfig{
			Listen:          "127.0.0.1:8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type: "memory",
		},
		OAuth: OAuthConfig{
			StateStore: "memory",
			StateTTL:   oauth.StateTTL,
		},
		HTTP: HTTPConfig{
			Timeout: 30 * time.Second,
		},
		Webhooks: WebhooksConfig{
			Delivery: DeliveryConfig{
				MaxAttempts:    retry.MaxAttempts,
				InitialBackoff: retry.InitialBackoff,
				BackoffFactor:  retry.BackoffFactor,
				AttemptTimeout: 30 * time.Second,
			},
			MappingTimeout: time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:   "stdout",
			SampleRate: 1.0,
		},
	}
}

// Load reads configPath, or the default config file when configPath is empty
// and that file exists, then applies environment overrides and validates the
// result. Environment variables take precedence.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath == "" {
		configPath = defaultConfigFile()
	}
	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &sberrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s: %v", configPath, err),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &sberrors.ConfigError{
			Key:    "validation",
			Reason: fmt.Sprintf("configuration validation failed: %v", err),
			Cause:  err,
		}
	}
	return cfg, nil
}

func defaultConfigFile() string {
	path, err := ConfigPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// applyDefaults fills zero values left by a partial config file.
func (c *Config) applyDefaults() {
	d := Default()

	if c.Server.Listen == "" {
		c.Server.Listen = d.Server.Listen
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = d.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = d.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = d.Server.ShutdownTimeout
	}
	if c.Store.Type == "" {
		c.Store.Type = d.Store.Type
	}
	if c.OAuth.StateStore == "" {
		c.OAuth.StateStore = d.OAuth.StateStore
	}
	if c.OAuth.StateTTL == 0 {
		c.OAuth.StateTTL = d.OAuth.StateTTL
	}
	if c.HTTP.Timeout == 0 {
		c.HTTP.Timeout = d.HTTP.Timeout
	}

	del := &c.Webhooks.Delivery
	if del.MaxAttempts == 0 {
		del.MaxAttempts = d.Webhooks.Delivery.MaxAttempts
	}
	if del.InitialBackoff == 0 {
		del.InitialBackoff = d.Webhooks.Delivery.InitialBackoff
	}
	if del.BackoffFactor == 0 {
		del.BackoffFactor = d.Webhooks.Delivery.BackoffFactor
	}
	if del.AttemptTimeout == 0 {
		del.AttemptTimeout = d.Webhooks.Delivery.AttemptTimeout
	}
	if c.Webhooks.MappingTimeout == 0 {
		c.Webhooks.MappingTimeout = d.Webhooks.MappingTimeout
	}

	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = d.Log.Format
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = d.Tracing.Exporter
	}
	if c.Tracing.SampleRate == 0 {
		c.Tracing.SampleRate = d.Tracing.SampleRate
	}
}

// loadFromEnv applies environment variable overrides.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("SWITCHBOARD_LISTEN"); val != "" {
		c.Server.Listen = val
	}
	if val := os.Getenv("SWITCHBOARD_CALLBACK_URL"); val != "" {
		c.Server.CallbackURL = val
	}

	if val := os.Getenv("SWITCHBOARD_STORE"); val != "" {
		c.Store.Type = strings.ToLower(val)
	}
	if val := os.Getenv("SWITCHBOARD_STORE_PATH"); val != "" {
		c.Store.Path = val
	}

	if val := os.Getenv("SWITCHBOARD_STATE_STORE"); val != "" {
		c.OAuth.StateStore = strings.ToLower(val)
	}
	if val := os.Getenv("SWITCHBOARD_REDIS_ADDR"); val != "" {
		c.OAuth.Redis.Addr = val
	}
	if val := os.Getenv("SWITCHBOARD_REDIS_PASSWORD"); val != "" {
		c.OAuth.Redis.Password = val
	}

	if val := os.Getenv("SWITCHBOARD_HTTP_TIMEOUT"); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			c.HTTP.Timeout = d
		}
	}

	if val := os.Getenv("SWITCHBOARD_ENGINE_URL"); val != "" {
		c.Engine.TriggerURL = val
	}
	if val := os.Getenv("SWITCHBOARD_ENGINE_TOKEN"); val != "" {
		c.Engine.Token = val
	}

	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = strings.ToLower(val)
	}
	if val := os.Getenv("LOG_SOURCE"); val != "" {
		c.Log.AddSource = val == "1" || strings.ToLower(val) == "true"
	}

	if val := os.Getenv("SWITCHBOARD_TRACING"); val != "" {
		c.Tracing.Enabled = val == "1" || strings.ToLower(val) == "true"
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Tracing.Exporter = "otlp"
		c.Tracing.Endpoint = val
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	var errs []string

	if strings.TrimSpace(c.Server.Listen) == "" {
		errs = append(errs, "server.listen is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}
	for _, origin := range c.Server.RedirectOrigins {
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Sprintf("server.redirect_origins entry %q must be scheme://host", origin))
		}
	}

	switch c.Store.Type {
	case "memory", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.type must be one of [memory, sqlite], got %q", c.Store.Type))
	}

	switch c.OAuth.StateStore {
	case "memory":
	case "redis":
		if c.OAuth.Redis.Addr == "" {
			errs = append(errs, "oauth.redis.addr is required when oauth.state_store is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("oauth.state_store must be one of [memory, redis], got %q", c.OAuth.StateStore))
	}
	if c.OAuth.StateTTL <= 0 {
		errs = append(errs, fmt.Sprintf("oauth.state_ttl must be positive, got %v", c.OAuth.StateTTL))
	}

	if c.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Sprintf("http.timeout must be positive, got %v", c.HTTP.Timeout))
	}

	for _, id := range c.Providers.keys() {
		if rl := c.Providers[id].RateLimit; rl != "" {
			if _, err := ParseRateLimit(rl); err != nil {
				errs = append(errs, fmt.Sprintf("providers.%s.rate_limit: %v", id, err))
			}
		}
	}

	if err := c.RetryConfig().Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("webhooks.delivery: %v", err))
	}
	if c.Webhooks.Delivery.AttemptTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("webhooks.delivery.attempt_timeout must be positive, got %v", c.Webhooks.Delivery.AttemptTimeout))
	}

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Tracing.Enabled {
		switch c.Tracing.Exporter {
		case "stdout":
		case "otlp":
			if c.Tracing.Endpoint == "" {
				errs = append(errs, "tracing.endpoint is required for the otlp exporter")
			}
		default:
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of [stdout, otlp], got %q", c.Tracing.Exporter))
		}
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %v", c.Tracing.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}
	return nil
}

// CallbackURL returns the OAuth2 redirect URI.
func (c *Config) CallbackURL() string {
	if c.Server.CallbackURL != "" {
		return c.Server.CallbackURL
	}
	return "http://" + c.Server.Listen + "/oauth/callback"
}

// RedirectOrigins returns the configured redirect origins plus the origin of
// the OAuth2 callback URL.
func (c *Config) RedirectOrigins() []string {
	origins := append([]string(nil), c.Server.RedirectOrigins...)
	if u, err := url.Parse(c.CallbackURL()); err == nil && u.Host != "" {
		origins = append(origins, u.Scheme+"://"+u.Host)
	}
	return origins
}

// StorePath returns the SQLite database path.
func (c *Config) StorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(DataDir(), "switchboard.db")
}

// RetryConfig returns the outbound delivery retry policy.
func (c *Config) RetryConfig() transport.RetryConfig {
	d := c.Webhooks.Delivery
	return transport.RetryConfig{
		MaxAttempts:    d.MaxAttempts,
		InitialBackoff: d.InitialBackoff,
		BackoffFactor:  d.BackoffFactor,
	}
}

// LoggerConfig returns the logger configuration.
func (c *Config) LoggerConfig() *log.Config {
	cfg := log.DefaultConfig()
	cfg.Level = c.Log.Level
	cfg.Format = log.Format(c.Log.Format)
	cfg.AddSource = c.Log.AddSource
	return cfg
}

// TracerConfig returns the tracer provider configuration.
func (c *Config) TracerConfig(version string) tracing.Config {
	return tracing.Config{
		Enabled:        c.Tracing.Enabled,
		Exporter:       c.Tracing.Exporter,
		Endpoint:       c.Tracing.Endpoint,
		Insecure:       c.Tracing.Insecure,
		SampleRate:     c.Tracing.SampleRate,
		ServiceName:    "switchboard",
		ServiceVersion: version,
	}
}

// Clients returns the OAuth2 client registrations set in the config file.
func (p ProvidersMap) Clients() oauth.StaticClients {
	clients := make(oauth.StaticClients, len(p))
	for id, cfg := range p {
		if cfg.ClientID != "" || cfg.ClientSecret != "" {
			clients[id] = oauth.Client{ID: cfg.ClientID, Secret: cfg.ClientSecret}
		}
	}
	return clients
}

func (p ProvidersMap) keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ParseRateLimit converts <count>/<unit> into requests per second.
func ParseRateLimit(rateLimit string) (float64, error) {
	parts := strings.Split(rateLimit, "/")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid rate_limit format %q, expected <count>/<unit> (e.g., 100/hour, 10/minute)", rateLimit)
	}

	count, err := strconv.Atoi(parts[0])
	if err != nil || count <= 0 {
		return 0, fmt.Errorf("invalid rate_limit count %q, must be a positive integer", parts[0])
	}

	units := map[string]time.Duration{
		"second": time.Second,
		"minute": time.Minute,
		"hour":   time.Hour,
		"day":    24 * time.Hour,
	}
	unit, ok := units[parts[1]]
	if !ok {
		return 0, fmt.Errorf("invalid rate_limit unit %q, must be one of: second, minute, hour, day", parts[1])
	}
	return float64(count) / unit.Seconds(), nil
}
