package config

import "time"

// ApplyDefaults fills in default values for any zero-valued configuration
// fields. Called after YAML parsing and before validation.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 150 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 120 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RequestDeadline == 0 {
		cfg.Server.RequestDeadline = 120 * time.Second
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = 4
	}

	if cfg.Database.Path == "" {
		cfg.Database.Path = "./hub.db"
	}

	if cfg.Providers.OllamaURL == "" {
		cfg.Providers.OllamaURL = "http://localhost:11434"
	}
	if cfg.Providers.DefaultLocalModel == "" {
		cfg.Providers.DefaultLocalModel = "qwen2.5:32b"
	}

	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry.Enabled = true
		cfg.Retry.MaxAttempts = 3
	}
	if cfg.Retry.Base == 0 {
		cfg.Retry.Base = time.Second
	}
	if cfg.Retry.Growth == 0 {
		cfg.Retry.Growth = 5
	}

	if cfg.Health.ProbePeriod == 0 {
		cfg.Health.ProbePeriod = 30 * time.Second
	}
	if cfg.Health.ProbeTimeout == 0 {
		cfg.Health.ProbeTimeout = 5 * time.Second
	}

	if cfg.Alerts.CheckPeriod == 0 {
		cfg.Alerts.Enabled = true
		cfg.Alerts.CheckPeriod = 60 * time.Second
	}
	if cfg.Alerts.ConsecutiveErrorThreshold == 0 {
		cfg.Alerts.ConsecutiveErrorThreshold = 3
	}
	if cfg.Alerts.LatencyMultiplier == 0 {
		cfg.Alerts.LatencyMultiplier = 3.0
	}
	if cfg.Alerts.BudgetThresholdPercent == 0 {
		cfg.Alerts.BudgetThresholdPercent = 90
	}

	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = "info"
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = "json"
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Enabled = true
		cfg.Telemetry.Metrics.Path = "/metrics"
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = "hub"
	}
}

// DefaultConfig returns a configuration with all defaults applied.
func DefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
