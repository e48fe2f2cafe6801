package config

import "time"

// Config is the root configuration structure for OpenClaw Hub.
// It contains all configuration sections for the HTTP server, persistence,
// credential vault, providers, routing, retry behaviour, health monitoring,
// and alerting.
type Config struct {
	// Server contains HTTP server configuration including bind address,
	// timeouts, and the end-to-end request deadline.
	Server ServerConfig `yaml:"server"`

	// Database contains persistence configuration.
	Database DatabaseConfig `yaml:"database"`

	// Vault contains credential encryption configuration. The secret key is
	// written back to this file when generated at startup.
	Vault VaultConfig `yaml:"vault"`

	// Providers contains upstream provider defaults that are not stored as
	// connection rows (the local inference server URL and default model).
	Providers ProvidersConfig `yaml:"providers"`

	// Retry contains the retry/backoff executor configuration.
	Retry RetryConfig `yaml:"retry"`

	// Routing contains the model-prefix routing map and fallback rules.
	Routing RoutingConfig `yaml:"routing"`

	// Health contains the background probe loop configuration.
	Health HealthConfig `yaml:"health"`

	// Alerts contains alert thresholds and dispatch channel configuration.
	Alerts AlertConfig `yaml:"alerts"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the HTTP server.
type ServerConfig struct {
	// Host is the bind address. Default: "127.0.0.1" (localhost only).
	Host string `yaml:"host"`

	// Port is the listen port. Default: 8080.
	Port int `yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 30s.
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out response writes.
	// Must cover the full request deadline plus a reserve. Default: 150s.
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout. Default: 120s.
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	// Default: 30s.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// RequestDeadline is the end-to-end deadline applied to every pipeline
	// invocation that does not carry its own. Default: 120s.
	RequestDeadline time.Duration `yaml:"request_deadline"`

	// Workers sizes the database connection pool: max(8, 2*Workers).
	// Default: 4.
	Workers int `yaml:"workers"`
}

// DatabaseConfig contains persistence configuration.
type DatabaseConfig struct {
	// Path is the SQLite database file location. Default: "./hub.db".
	Path string `yaml:"path"`
}

// VaultConfig contains credential vault configuration.
type VaultConfig struct {
	// SecretKey is the base64url-encoded 32-byte AES key used to encrypt
	// credentials at rest. Generated and persisted to the config file on
	// first startup when absent.
	SecretKey string `yaml:"secret_key"`
}

// ProvidersConfig contains provider defaults not held in connection rows.
type ProvidersConfig struct {
	// OllamaURL is the base URL of the local inference server.
	// Default: "http://localhost:11434".
	OllamaURL string `yaml:"ollama_url"`

	// DefaultLocalModel is what the "local" model alias resolves to.
	// Default: "qwen2.5:32b".
	DefaultLocalModel string `yaml:"default_local_model"`
}

// RetryConfig contains retry/backoff executor configuration.
type RetryConfig struct {
	// Enabled controls whether failed upstream calls are retried at all.
	// When false every provider gets exactly one attempt. Default: true.
	Enabled bool `yaml:"enabled"`

	// MaxAttempts is the per-provider attempt cap. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`

	// Base is the first backoff interval. Default: 1s.
	Base time.Duration `yaml:"base"`

	// Growth is the exponential backoff multiplier. Default: 5.
	Growth float64 `yaml:"growth"`
}

// RoutingConfig contains model routing configuration.
type RoutingConfig struct {
	// Rules maps model-name prefixes to provider families, e.g.
	// "gpt-" -> "openai". Overrides the built-in defaults when non-empty.
	Rules map[string]string `yaml:"rules"`

	// Fallbacks is a comma-separated list of src:dst family pairs, e.g.
	// "openai:ollama,anthropic:ollama".
	Fallbacks string `yaml:"fallbacks"`
}

// HealthConfig contains background probe loop configuration.
type HealthConfig struct {
	// ProbePeriod is how often degraded providers are probed. Default: 30s.
	ProbePeriod time.Duration `yaml:"probe_period"`

	// ProbeTimeout is the per-probe deadline. Default: 5s.
	ProbeTimeout time.Duration `yaml:"probe_timeout"`
}

// AlertConfig contains alert thresholds and dispatch configuration.
type AlertConfig struct {
	// Enabled controls the alert check loop. Default: true.
	Enabled bool `yaml:"enabled"`

	// CheckPeriod is how often alert conditions are evaluated. Default: 60s.
	CheckPeriod time.Duration `yaml:"check_period"`

	// ConsecutiveErrorThreshold is the number of back-to-back failed
	// requests that raises a consecutive-errors alert. Default: 3.
	ConsecutiveErrorThreshold int `yaml:"consecutive_error_threshold"`

	// LatencyMultiplier is the baseline multiple that counts as a latency
	// spike. Default: 3.0.
	LatencyMultiplier float64 `yaml:"latency_multiplier"`

	// BudgetThresholdPercent raises a budget-threshold alert when spend in
	// any window reaches this percentage of its limit. Default: 90.
	BudgetThresholdPercent float64 `yaml:"budget_threshold_percent"`

	// WebhookURL, when set, receives every alert as a JSON POST.
	WebhookURL string `yaml:"webhook_url"`

	// DesktopNotify enables best-effort OS desktop notifications.
	DesktopNotify bool `yaml:"desktop_notify"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info".
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text"). Default: "json".
	Format string `yaml:"format"`
}

// MetricsConfig contains Prometheus metrics configuration.
type MetricsConfig struct {
	// Enabled controls the /metrics endpoint. Default: true.
	Enabled bool `yaml:"enabled"`

	// Path is the metrics endpoint path. Default: "/metrics".
	Path string `yaml:"path"`

	// Namespace is the metric name prefix. Default: "hub".
	Namespace string `yaml:"namespace"`
}

// ListenAddress returns the host:port pair the server binds to.
func (c *ServerConfig) ListenAddress() string {
	return joinHostPort(c.Host, c.Port)
}

// PoolSize returns the database connection pool size: max(8, 2*Workers).
func (c *ServerConfig) PoolSize() int {
	n := 2 * c.Workers
	if n < 8 {
		return 8
	}
	return n
}
