package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads configuration from a YAML file, applies defaults, applies
// environment variable overrides, and validates the result.
//
// A missing file is not an error: the Hub is expected to run with pure
// defaults plus environment variables on first start.
func Load(path string) (*Config, error) {
	var cfg Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
			}
		}
	}

	ApplyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables always take precedence over
// file-based configuration.
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Server.Host, "HUB_HOST")
	setInt(&cfg.Server.Port, "HUB_PORT")
	setSeconds(&cfg.Server.RequestDeadline, "HUB_REQUEST_DEADLINE_SEC")
	setString(&cfg.Database.Path, "DATABASE_PATH")
	setString(&cfg.Vault.SecretKey, "HUB_SECRET_KEY")

	setBool(&cfg.Retry.Enabled, "RETRY_ENABLED")
	setInt(&cfg.Retry.MaxAttempts, "RETRY_MAX_ATTEMPTS")
	setSeconds(&cfg.Retry.Base, "RETRY_BASE_SEC")
	setFloat(&cfg.Retry.Growth, "RETRY_GROWTH")

	setString(&cfg.Routing.Fallbacks, "FALLBACK_RULES")
	if val := os.Getenv("ROUTING_RULES"); val != "" {
		if rules := parseRuleList(val); len(rules) > 0 {
			cfg.Routing.Rules = rules
		}
	}

	setSeconds(&cfg.Health.ProbePeriod, "HEALTH_PROBE_PERIOD_SEC")
	setSeconds(&cfg.Health.ProbeTimeout, "HEALTH_PROBE_TIMEOUT_SEC")

	setBool(&cfg.Alerts.Enabled, "ALERT_ENABLED")
	setInt(&cfg.Alerts.ConsecutiveErrorThreshold, "ALERT_CONSECUTIVE_ERROR_THRESHOLD")
	setFloat(&cfg.Alerts.LatencyMultiplier, "ALERT_LATENCY_MULTIPLIER")
	setFloat(&cfg.Alerts.BudgetThresholdPercent, "ALERT_BUDGET_THRESHOLD_PERCENT")
	setString(&cfg.Alerts.WebhookURL, "ALERT_WEBHOOK_URL")
	setBool(&cfg.Alerts.DesktopNotify, "ALERT_DESKTOP_NOTIFY")

	setString(&cfg.Providers.OllamaURL, "OLLAMA_URL")
	setString(&cfg.Telemetry.Logging.Level, "LOG_LEVEL")
}

// parseRuleList parses "prefix:family,prefix:family" into a map.
// Malformed entries are skipped.
func parseRuleList(s string) map[string]string {
	rules := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(pair, ":")
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		if !ok || k == "" || v == "" {
			continue
		}
		rules[k] = v
	}
	return rules
}

func setString(dst *string, key string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func setInt(dst *int, key string) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func setFloat(dst *float64, key string) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func setSeconds(dst *time.Duration, key string) {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil && f > 0 {
			*dst = time.Duration(f * float64(time.Second))
		}
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
