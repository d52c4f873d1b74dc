package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HEALTHMON_"

// ApplyEnv overrides configuration values from environment variables.
//
// Environment variables:
//   - HEALTHMON_SAMPLING_INTERVAL: sampling cycle interval (e.g. 30s)
//   - HEALTHMON_ANOMALY_CHECK_INTERVAL: anomaly check cycle interval
//   - HEALTHMON_ALERT_CHECK_INTERVAL: alert check cycle interval
//   - HEALTHMON_BACKGROUND_INTERVAL: background task cycle interval
//   - HEALTHMON_PERSISTENCE_INTERVAL: persistence cycle interval, 0 disables
//   - HEALTHMON_METRICS: comma-separated metrics to sample
//   - HEALTHMON_DATA_SOURCE_TIMEOUT: data source call timeout
//   - HEALTHMON_DETECTOR_STRATEGY: static or baseline
//   - HEALTHMON_ALERT_COOLDOWN: alert suppression window
//   - HEALTHMON_SOURCE_SEED: simulated source seed
//   - HEALTHMON_STORAGE_PATH: SQLite database path, empty disables persistence
//   - HEALTHMON_API_ENABLED: start the HTTP server
//   - HEALTHMON_API_ADDR: HTTP listen address
//   - HEALTHMON_SOCKET: control socket path
//   - HEALTHMON_TELEGRAM_TOKEN: Telegram bot token
//   - HEALTHMON_TELEGRAM_CHAT_ID: Telegram chat id
//
// Returns an error if any environment variable has an invalid value.
// The configuration is validated after all overrides are applied.
func (c *Config) ApplyEnv() error {
	durations := []struct {
		key  string
		dest *time.Duration
	}{
		{"SAMPLING_INTERVAL", &c.Monitoring.SamplingInterval},
		{"ANOMALY_CHECK_INTERVAL", &c.Monitoring.AnomalyCheckInterval},
		{"ALERT_CHECK_INTERVAL", &c.Monitoring.AlertCheckInterval},
		{"BACKGROUND_INTERVAL", &c.Monitoring.BackgroundInterval},
		{"PERSISTENCE_INTERVAL", &c.Monitoring.PersistenceInterval},
		{"DATA_SOURCE_TIMEOUT", &c.Monitoring.DataSourceTimeout},
		{"ALERT_COOLDOWN", &c.Alerts.Cooldown},
	}
	for _, d := range durations {
		if err := parseEnvDuration(EnvPrefix+d.key, d.dest); err != nil {
			return err
		}
	}

	if val := os.Getenv(EnvPrefix + "METRICS"); val != "" {
		var metrics []types.MetricKind
		for _, m := range strings.Split(val, ",") {
			if m = strings.TrimSpace(m); m != "" {
				metrics = append(metrics, types.MetricKind(m))
			}
		}
		c.Monitoring.Metrics = metrics
	}

	if err := parseEnvString(EnvPrefix+"DETECTOR_STRATEGY", &c.Detector.Strategy); err != nil {
		return err
	}
	if err := parseEnvInt64(EnvPrefix+"SOURCE_SEED", &c.Source.Seed); err != nil {
		return err
	}
	if val, ok := os.LookupEnv(EnvPrefix + "STORAGE_PATH"); ok {
		c.Storage.Path = val
	}
	if err := parseEnvBool(EnvPrefix+"API_ENABLED", &c.API.Enabled); err != nil {
		return err
	}
	if err := parseEnvString(EnvPrefix+"API_ADDR", &c.API.Addr); err != nil {
		return err
	}
	if err := parseEnvString(EnvPrefix+"SOCKET", &c.Control.SocketPath); err != nil {
		return err
	}
	if err := parseEnvString(EnvPrefix+"TELEGRAM_TOKEN", &c.Notify.TelegramToken); err != nil {
		return err
	}
	if err := parseEnvInt64(EnvPrefix+"TELEGRAM_CHAT_ID", &c.Notify.TelegramChatID); err != nil {
		return err
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return nil
}

// parseEnvDuration parses a duration from an environment variable
func parseEnvDuration(key string, dest *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvInt64 parses an int64 from an environment variable
func parseEnvInt64(key string, dest *int64) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvBool parses a bool from an environment variable
func parseEnvBool(key string, dest *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvString parses a string from an environment variable
func parseEnvString(key string, dest *string) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	*dest = value
	return nil
}
