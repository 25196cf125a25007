package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"run-sphere/internal/run"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Runner    RunnerConfig    `yaml:"runner"`
	Provider  ProviderConfig  `yaml:"provider"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Database  DatabaseConfig  `yaml:"database"`
	Programs  ProgramsConfig  `yaml:"programs"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	TLS       TLSConfig       `yaml:"tls"`
}

type ServerConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBody    int64         `yaml:"max_request_body_bytes"`
	AllowedOrigins    []string      `yaml:"allowed_origins"`
	TrustForwardedFor bool          `yaml:"trust_forwarded_for"` // only behind a proxy that overwrites X-Forwarded-For
}

type RunnerConfig struct {
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	MinTimeout     time.Duration `yaml:"min_timeout"`
	MaxTimeout     time.Duration `yaml:"max_timeout"`
	RetryBackoff   time.Duration `yaml:"retry_backoff"`
	MaxConcurrent  int           `yaml:"max_concurrent"` // 0 = unbounded
}

// Timeouts returns the clamp applied to client supplied timeouts.
func (r RunnerConfig) Timeouts() run.TimeoutPolicy {
	return run.TimeoutPolicy{Min: r.MinTimeout, Max: r.MaxTimeout, Default: r.DefaultTimeout}
}

type ProviderConfig struct {
	Kind      string `yaml:"kind"` // "gemini" (default) or "openai"
	BaseURL   string `yaml:"base_url"`
	Model     string `yaml:"model"`
	APIKey    string `yaml:"api_key"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type StoreConfig struct {
	MaxEntries int `yaml:"max_entries"`
	Retain     int `yaml:"retain"`
}

type RateLimitConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxRequests int           `yaml:"max_requests"`
}

type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxConns        int32         `yaml:"max_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	AuditBuffer     int           `yaml:"audit_buffer"`
}

// ProgramsConfig locates the SQLite file for saved programs and editor
// settings. An empty path disables those endpoints.
type ProgramsConfig struct {
	DBPath string `yaml:"db_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TLSConfig controls HTTPS/TLS termination.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path)) // #nosec G304 -- path comes from env or hardcoded default
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns sensible defaults for all configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            5000,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    65 * time.Second, // > two max-timeout attempts + backoff
			ShutdownTimeout: 30 * time.Second,
			MaxRequestBody:  1 << 20, // 1MB
			AllowedOrigins:  []string{"http://localhost:5173", "https://run-sphere.vercel.app"},
		},
		Runner: RunnerConfig{
			DefaultTimeout: 10 * time.Second,
			MinTimeout:     1 * time.Second,
			MaxTimeout:     30 * time.Second,
			RetryBackoff:   300 * time.Millisecond,
		},
		Provider: ProviderConfig{
			Kind:      "gemini",
			BaseURL:   "https://generativelanguage.googleapis.com",
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Store: StoreConfig{
			MaxEntries: 1000,
			Retain:     500,
		},
		RateLimit: RateLimitConfig{
			Window:      time.Minute,
			MaxRequests: 30,
		},
		Database: DatabaseConfig{
			DSN:             "",
			MaxConns:        25,
			ConnMaxLifetime: 5 * time.Minute,
			AuditBuffer:     10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		TLS: TLSConfig{
			Enabled: false,
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Server.MaxRequestBody < 1 {
		return fmt.Errorf("server.max_request_body_bytes must be >= 1")
	}
	if c.Runner.MinTimeout <= 0 {
		return fmt.Errorf("runner.min_timeout must be > 0")
	}
	if c.Runner.MinTimeout > c.Runner.MaxTimeout {
		return fmt.Errorf("runner.min_timeout (%s) must be <= max_timeout (%s)",
			c.Runner.MinTimeout, c.Runner.MaxTimeout)
	}
	if c.Runner.DefaultTimeout < c.Runner.MinTimeout || c.Runner.DefaultTimeout > c.Runner.MaxTimeout {
		return fmt.Errorf("runner.default_timeout (%s) must be within [%s, %s]",
			c.Runner.DefaultTimeout, c.Runner.MinTimeout, c.Runner.MaxTimeout)
	}
	if c.Runner.RetryBackoff < 0 {
		return fmt.Errorf("runner.retry_backoff must be >= 0")
	}
	if c.Runner.MaxConcurrent < 0 {
		return fmt.Errorf("runner.max_concurrent must be >= 0")
	}
	switch c.Provider.Kind {
	case "gemini", "openai":
	default:
		return fmt.Errorf("provider.kind must be gemini or openai, got %q", c.Provider.Kind)
	}
	if c.Provider.Model == "" {
		return fmt.Errorf("provider.model is required")
	}
	if c.Provider.Kind == "gemini" && c.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required for gemini")
	}
	if c.Store.Retain < 1 || c.Store.Retain > c.Store.MaxEntries {
		return fmt.Errorf("store.retain must be 1-%d, got %d", c.Store.MaxEntries, c.Store.Retain)
	}
	if c.RateLimit.MaxRequests < 1 {
		return fmt.Errorf("rate_limit.max_requests must be >= 1")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate_limit.window must be > 0")
	}
	if worst := 2*c.Runner.MaxTimeout + c.Runner.RetryBackoff; c.Server.WriteTimeout > 0 && c.Server.WriteTimeout < worst {
		log.Warn().
			Dur("write_timeout", c.Server.WriteTimeout).
			Dur("worst_case_run", worst).
			Msg("server.write_timeout is shorter than a retried run; slow runs will be cut off")
	}
	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return fmt.Errorf("tls.cert_file and tls.key_file are required when TLS is enabled")
		}
	}
	if c.Database.DSN != "" && strings.Contains(c.Database.DSN, "sslmode=disable") {
		log.Warn().Msg("database DSN has sslmode=disable, connections to Postgres are unencrypted")
	}
	return nil
}

// ApplyEnv overlays process environment on top of the file configuration.
// PORT overrides server.port and the provider key is read from
// provider.api_key_env when not set inline.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if port := getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("PORT %q is not a number: %w", port, err)
		}
		c.Server.Port = p
	}
	if c.Provider.APIKey == "" && c.Provider.APIKeyEnv != "" {
		c.Provider.APIKey = getenv(c.Provider.APIKeyEnv)
	}
	if dsn := getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}
	return c.Validate()
}

// Address returns the listen address string.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
