package config

import (
	"fmt"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// MonitoringSettings controls the scheduler's cycles and its collaborators' time budgets.
// It is the unit replaced by a configure call: the whole value is validated
// before anything is applied.
type MonitoringSettings struct {
	// SamplingInterval is how often samples are fetched from the data source
	// Default: 30 seconds
	SamplingInterval time.Duration `yaml:"sampling_interval" json:"sampling_interval"`

	// AnomalyCheckInterval is how often new samples are run through the detector
	// Default: 60 seconds
	AnomalyCheckInterval time.Duration `yaml:"anomaly_check_interval" json:"anomaly_check_interval"`

	// AlertCheckInterval is how often anomalies and snapshots are turned into alerts
	// Default: 120 seconds
	AlertCheckInterval time.Duration `yaml:"alert_check_interval" json:"alert_check_interval"`

	// BackgroundInterval is how often registered background tasks run
	// Default: 300 seconds
	BackgroundInterval time.Duration `yaml:"background_interval" json:"background_interval"`

	// PersistenceInterval is how often stats and adaptation are saved.
	// Zero disables the persistence cycle.
	// Default: 5 minutes
	PersistenceInterval time.Duration `yaml:"persistence_interval" json:"persistence_interval"`

	// Metrics lists the metrics sampled each cycle
	// Default: every metric
	Metrics []types.MetricKind `yaml:"metrics" json:"metrics"`

	// SampleLimit is the number of recent samples requested per metric
	// Default: 10
	SampleLimit int `yaml:"sample_limit" json:"sample_limit"`

	// FetchConcurrency bounds parallel data source calls within one sampling pass
	// Default: 4
	FetchConcurrency int `yaml:"fetch_concurrency" json:"fetch_concurrency"`

	// Thresholds are the bounds alert checks compare snapshots against
	Thresholds types.HealthThresholds `yaml:"thresholds" json:"thresholds"`

	// DataSourceTimeout bounds a single data source or prediction call
	// Default: 10 seconds
	DataSourceTimeout time.Duration `yaml:"data_source_timeout" json:"data_source_timeout"`

	// BackgroundTimeout bounds a single background task attempt
	// Default: 30 seconds
	BackgroundTimeout time.Duration `yaml:"background_timeout" json:"background_timeout"`

	// BackgroundRetries is the number of retries after a failed background attempt
	// Default: 2
	BackgroundRetries int `yaml:"background_retries" json:"background_retries"`

	// RetryBackoff is the first retry delay; it doubles up to MaxRetryBackoff
	// Default: 1 second
	RetryBackoff time.Duration `yaml:"retry_backoff" json:"retry_backoff"`

	// MaxRetryBackoff caps the retry delay
	// Default: 10 seconds
	MaxRetryBackoff time.Duration `yaml:"max_retry_backoff" json:"max_retry_backoff"`

	// FailureAlertThreshold is how many consecutive background failures raise a system alert
	// Default: 3
	FailureAlertThreshold int `yaml:"failure_alert_threshold" json:"failure_alert_threshold"`

	// GracePeriod bounds how long Stop waits for in-flight cycles
	// Default: 5 seconds
	GracePeriod time.Duration `yaml:"grace_period" json:"grace_period"`

	// QualityWindow is the trailing window used to compute monitoring quality
	// Default: 5 minutes
	QualityWindow time.Duration `yaml:"quality_window" json:"quality_window"`
}

// DefaultMonitoringSettings returns the default cycle intervals and budgets
func DefaultMonitoringSettings() MonitoringSettings {
	return MonitoringSettings{
		SamplingInterval:      30 * time.Second,
		AnomalyCheckInterval:  60 * time.Second,
		AlertCheckInterval:    120 * time.Second,
		BackgroundInterval:    300 * time.Second,
		PersistenceInterval:   5 * time.Minute,
		Metrics:               types.AllMetrics(),
		SampleLimit:           10,
		FetchConcurrency:      4,
		Thresholds:            types.DefaultHealthThresholds(),
		DataSourceTimeout:     10 * time.Second,
		BackgroundTimeout:     30 * time.Second,
		BackgroundRetries:     2,
		RetryBackoff:          time.Second,
		MaxRetryBackoff:       10 * time.Second,
		FailureAlertThreshold: 3,
		GracePeriod:           5 * time.Second,
		QualityWindow:         5 * time.Minute,
	}
}

// Validate checks intervals, budgets and thresholds.
// Every error wraps types.ErrConfigurationInvalid.
func (s MonitoringSettings) Validate() error {
	if err := s.validate(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConfigurationInvalid, err)
	}
	return nil
}

func (s MonitoringSettings) validate() error {
	positive := []struct {
		name string
		d    time.Duration
	}{
		{"sampling_interval", s.SamplingInterval},
		{"anomaly_check_interval", s.AnomalyCheckInterval},
		{"alert_check_interval", s.AlertCheckInterval},
		{"background_interval", s.BackgroundInterval},
		{"data_source_timeout", s.DataSourceTimeout},
		{"background_timeout", s.BackgroundTimeout},
		{"retry_backoff", s.RetryBackoff},
		{"grace_period", s.GracePeriod},
		{"quality_window", s.QualityWindow},
	}
	for _, p := range positive {
		if p.d <= 0 {
			return fmt.Errorf("%s must be positive, got %v", p.name, p.d)
		}
	}
	if s.PersistenceInterval < 0 {
		return fmt.Errorf("persistence_interval must be non-negative, got %v", s.PersistenceInterval)
	}
	if s.MaxRetryBackoff < s.RetryBackoff {
		return fmt.Errorf("max_retry_backoff (%v) must be >= retry_backoff (%v)", s.MaxRetryBackoff, s.RetryBackoff)
	}
	if len(s.Metrics) == 0 {
		return fmt.Errorf("at least one metric must be sampled")
	}
	seen := make(map[types.MetricKind]bool, len(s.Metrics))
	for _, m := range s.Metrics {
		if !m.IsValid() {
			return fmt.Errorf("unknown metric: %q", m)
		}
		if seen[m] {
			return fmt.Errorf("metric %q listed twice", m)
		}
		seen[m] = true
	}
	if s.SampleLimit < 1 || s.SampleLimit > 1000 {
		return fmt.Errorf("sample_limit must be between 1 and 1000, got %d", s.SampleLimit)
	}
	if s.FetchConcurrency < 1 {
		return fmt.Errorf("fetch_concurrency must be at least 1, got %d", s.FetchConcurrency)
	}
	if s.BackgroundRetries < 0 {
		return fmt.Errorf("background_retries cannot be negative, got %d", s.BackgroundRetries)
	}
	if s.FailureAlertThreshold < 1 {
		return fmt.Errorf("failure_alert_threshold must be at least 1, got %d", s.FailureAlertThreshold)
	}
	if err := s.Thresholds.Validate(); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}

// Clone returns a deep copy
func (s MonitoringSettings) Clone() MonitoringSettings {
	out := s
	out.Metrics = append([]types.MetricKind(nil), s.Metrics...)
	return out
}
