package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 30*time.Second, cfg.Monitoring.SamplingInterval)
	assert.Equal(t, 60*time.Second, cfg.Monitoring.AnomalyCheckInterval)
	assert.Equal(t, 120*time.Second, cfg.Monitoring.AlertCheckInterval)
	assert.Equal(t, 300*time.Second, cfg.Monitoring.BackgroundInterval)
	assert.Equal(t, 10*time.Second, cfg.Monitoring.DataSourceTimeout)
	assert.Len(t, cfg.Monitoring.Metrics, len(types.AllMetrics()))
}

func TestMonitoringSettingsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*MonitoringSettings)
	}{
		{"negative anomaly check interval", func(s *MonitoringSettings) { s.AnomalyCheckInterval = -1 }},
		{"zero sampling interval", func(s *MonitoringSettings) { s.SamplingInterval = 0 }},
		{"zero background interval", func(s *MonitoringSettings) { s.BackgroundInterval = 0 }},
		{"negative persistence interval", func(s *MonitoringSettings) { s.PersistenceInterval = -time.Second }},
		{"no metrics", func(s *MonitoringSettings) { s.Metrics = nil }},
		{"unknown metric", func(s *MonitoringSettings) { s.Metrics = []types.MetricKind{"glucose"} }},
		{"duplicate metric", func(s *MonitoringSettings) {
			s.Metrics = []types.MetricKind{types.MetricHeartRate, types.MetricHeartRate}
		}},
		{"zero sample limit", func(s *MonitoringSettings) { s.SampleLimit = 0 }},
		{"zero fetch concurrency", func(s *MonitoringSettings) { s.FetchConcurrency = 0 }},
		{"negative retries", func(s *MonitoringSettings) { s.BackgroundRetries = -1 }},
		{"backoff cap below start", func(s *MonitoringSettings) { s.MaxRetryBackoff = s.RetryBackoff / 2 }},
		{"inverted heart rate thresholds", func(s *MonitoringSettings) { s.Thresholds.HeartRateMin = 200 }},
		{"zero grace period", func(s *MonitoringSettings) { s.GracePeriod = 0 }},
	}
	require.NoError(t, DefaultMonitoringSettings().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultMonitoringSettings()
			tt.mutate(&s)
			err := s.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrConfigurationInvalid))
		})
	}
}

func TestPersistenceIntervalZeroDisables(t *testing.T) {
	s := DefaultMonitoringSettings()
	s.PersistenceInterval = 0
	assert.NoError(t, s.Validate())
}

func TestMonitoringSettingsClone(t *testing.T) {
	s := DefaultMonitoringSettings()
	c := s.Clone()
	c.Metrics[0] = "changed"
	assert.NotEqual(t, s.Metrics[0], c.Metrics[0])
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing file returns defaults", func(t *testing.T) {
		cfg, err := LoadFromFile(filepath.Join(dir, "absent.yaml"))
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Monitoring.SamplingInterval, cfg.Monitoring.SamplingInterval)
	})

	t.Run("partial file overlays defaults", func(t *testing.T) {
		path := filepath.Join(dir, "partial.yaml")
		data := `
monitoring:
  sampling_interval: 5s
  metrics: [heart_rate, oxygen_saturation]
  thresholds:
    heart_rate_max: 110
detector:
  strategy: baseline
alerts:
  cooldown: 1m
source:
  seed: 42
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0644))

		cfg, err := LoadFromFile(path)
		require.NoError(t, err)
		assert.Equal(t, 5*time.Second, cfg.Monitoring.SamplingInterval)
		assert.Equal(t, 60*time.Second, cfg.Monitoring.AnomalyCheckInterval, "unset fields keep defaults")
		assert.Equal(t, []types.MetricKind{types.MetricHeartRate, types.MetricOxygenSaturation}, cfg.Monitoring.Metrics)
		assert.Equal(t, 110.0, cfg.Monitoring.Thresholds.HeartRateMax)
		assert.Equal(t, 50.0, cfg.Monitoring.Thresholds.HeartRateMin)
		assert.Equal(t, StrategyBaseline, cfg.Detector.Strategy)
		assert.Equal(t, time.Minute, cfg.Alerts.Cooldown)
		assert.Equal(t, int64(42), cfg.Source.Seed)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.yaml")
		require.NoError(t, os.WriteFile(path, []byte("monitoring:\n  anomaly_check_interval: -1s\n"), 0644))
		_, err := LoadFromFile(path)
		require.Error(t, err)
		assert.True(t, errors.Is(err, types.ErrConfigurationInvalid))
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("monitoring: [unterminated"), 0644))
		_, err := LoadFromFile(path)
		assert.Error(t, err)
	})
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "healthmon.yaml")
	cfg := DefaultConfig()
	cfg.Monitoring.AlertCheckInterval = 90 * time.Second
	cfg.Detector.Strategy = StrategyBaseline
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, loaded.Monitoring.AlertCheckInterval)
	assert.Equal(t, StrategyBaseline, loaded.Detector.Strategy)
}

func TestApplyEnv(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		wantErr bool
		check   func(t *testing.T, cfg *Config)
	}{
		{
			name:    "no environment variables keeps defaults",
			envVars: map[string]string{},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, DefaultConfig().Monitoring, cfg.Monitoring)
			},
		},
		{
			name: "overrides",
			envVars: map[string]string{
				"HEALTHMON_SAMPLING_INTERVAL": "10s",
				"HEALTHMON_METRICS":           "heart_rate, temperature",
				"HEALTHMON_DETECTOR_STRATEGY": "baseline",
				"HEALTHMON_SOURCE_SEED":       "7",
				"HEALTHMON_API_ENABLED":       "false",
				"HEALTHMON_SOCKET":            "/tmp/hm-test.sock",
			},
			check: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 10*time.Second, cfg.Monitoring.SamplingInterval)
				assert.Equal(t, []types.MetricKind{types.MetricHeartRate, types.MetricTemperature}, cfg.Monitoring.Metrics)
				assert.Equal(t, StrategyBaseline, cfg.Detector.Strategy)
				assert.Equal(t, int64(7), cfg.Source.Seed)
				assert.False(t, cfg.API.Enabled)
				assert.Equal(t, "/tmp/hm-test.sock", cfg.Control.SocketPath)
			},
		},
		{
			name:    "empty storage path disables persistence",
			envVars: map[string]string{"HEALTHMON_STORAGE_PATH": ""},
			check: func(t *testing.T, cfg *Config) {
				assert.Empty(t, cfg.Storage.Path)
			},
		},
		{
			name:    "malformed duration",
			envVars: map[string]string{"HEALTHMON_ALERT_CHECK_INTERVAL": "soon"},
			wantErr: true,
		},
		{
			name:    "malformed seed",
			envVars: map[string]string{"HEALTHMON_SOURCE_SEED": "abc"},
			wantErr: true,
		},
		{
			name:    "unknown strategy fails validation",
			envVars: map[string]string{"HEALTHMON_DETECTOR_STRATEGY": "oracle"},
			wantErr: true,
		},
		{
			name:    "telegram token without chat",
			envVars: map[string]string{"HEALTHMON_TELEGRAM_TOKEN": "123:abc"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			err := cfg.ApplyEnv()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestDetectorConfigNewStrategy(t *testing.T) {
	s, err := DetectorConfig{Strategy: StrategyStatic}.NewStrategy()
	require.NoError(t, err)
	assert.Equal(t, "static", s.Name())

	s, err = DetectorConfig{Strategy: StrategyBaseline, Baseline: detector.DefaultBaselineConfig()}.NewStrategy()
	require.NoError(t, err)
	assert.Equal(t, "baseline", s.Name())

	_, err = DetectorConfig{Strategy: "oracle"}.NewStrategy()
	assert.Error(t, err)
}

func TestCloneIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	c := cfg.Clone()
	c.Source.Devices[0].ID = "other"
	c.Monitoring.Metrics = c.Monitoring.Metrics[:1]
	assert.Equal(t, "wrist-1", cfg.Source.Devices[0].ID)
	assert.Len(t, cfg.Monitoring.Metrics, len(types.AllMetrics()))
}
