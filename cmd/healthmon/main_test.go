package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/control"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

func init() {
	color.NoColor = true
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	status := &types.HealthStatus{
		Timestamp: now,
		State:     types.StateActive,
		Metrics: types.NewMetricSnapshot([]types.HealthSample{
			{Metric: types.MetricHeartRate, Value: 72, Timestamp: now},
		}, now),
		Anomalies: []types.Anomaly{
			{Metric: types.MetricOxygenSaturation, Severity: types.SeverityHigh, Value: 86, Timestamp: now},
		},
		Forecast: &types.Forecast{
			Horizon:     15 * time.Minute,
			Predictions: map[types.MetricKind]float64{types.MetricHeartRate: 80},
			RiskScore:   0.25,
		},
		Quality: types.QualityReport{Level: types.QualityFair, SampleDensity: 0.5, ConnectedDevices: -1},
	}

	out := formatStatus(status)
	assert.Contains(t, out, "heart_rate")
	assert.Contains(t, out, "72.0 bpm")
	assert.Contains(t, out, "fair (density 50%, devices unknown)")
	assert.Contains(t, out, "86.0 %")
	assert.Contains(t, out, "risk 0.25")
	assert.Contains(t, out, "80.0 bpm")

	empty := formatStatus(&types.HealthStatus{State: types.StateActive, Quality: types.QualityReport{Level: types.QualityPoor}})
	assert.Contains(t, empty, "No samples yet")
	assert.NotContains(t, empty, "Forecast")
}

func TestFormatAlertsAndStats(t *testing.T) {
	assert.Equal(t, "No alerts\n", formatAlerts(nil))

	out := formatAlerts([]types.Alert{
		{ID: "a-1", Severity: types.SeverityCritical, Title: "Heart rate critical", Message: "HR 190 bpm", Acknowledged: true},
	})
	assert.Contains(t, out, "✓")
	assert.Contains(t, out, "Heart rate critical")
	assert.Contains(t, out, "HR 190 bpm")

	stats := formatStats(types.MonitoringStats{SamplesCollected: 10, SamplingErrors: 2, BackgroundErrors: 1})
	assert.Contains(t, stats, "Samples collected:     10")
	assert.Contains(t, stats, "Errors:                3 (sampling 2")
	assert.NotContains(t, stats, "Last update")
}

func TestFormatInterventions(t *testing.T) {
	state := types.AdaptationState{
		AdaptationLevel: 0.7,
		SuccessHistory:  []bool{true, false, true, true},
		ActiveInterventions: []types.Intervention{
			{ID: "iv-2", Kind: "breathing_exercise", Outcome: types.OutcomePending},
		},
	}
	history := []types.Intervention{
		{ID: "iv-1", Kind: "rest_prompt", Outcome: types.OutcomeFailed, Forced: true},
	}
	out := formatInterventions(state, history)
	assert.Contains(t, out, "Adaptation level: 0.70")
	assert.Contains(t, out, "75% of 4")
	assert.Contains(t, out, "breathing_exercise")
	assert.Contains(t, out, "✗ rest_prompt")
	assert.Contains(t, out, "(forced)")
}

func startControl(t *testing.T, handler control.Handler) *control.Client {
	t.Helper()
	dir, err := os.MkdirTemp("", "hm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	server, err := control.NewServer(filepath.Join(dir, "ctl.sock"), handler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	require.NoError(t, server.Start(context.Background()))
	t.Cleanup(func() { _ = server.Stop() })

	client := control.NewClient(server.SocketPath())
	client.SetTimeout(2 * time.Second)
	return client
}

func TestDispatch(t *testing.T) {
	var (
		mu  sync.Mutex
		got []control.Command
	)
	client := startControl(t, func(ctx context.Context, cmd control.Command) (map[string]interface{}, error) {
		mu.Lock()
		got = append(got, cmd)
		mu.Unlock()
		switch cmd.Type {
		case control.CommandAck:
			if cmd.AlertID != "a-1" {
				return nil, types.ErrAlertNotFound
			}
			return map[string]interface{}{"alert_id": cmd.AlertID}, nil
		case control.CommandIntervene:
			return map[string]interface{}{"intervention": map[string]interface{}{"id": "iv-9", "kind": cmd.Kind}}, nil
		case control.CommandStop:
			return map[string]interface{}{"state": "stopped"}, nil
		}
		return nil, errors.New("unexpected command")
	})

	out, err := dispatch(client, "   ")
	require.NoError(t, err)
	assert.Empty(t, out)

	_, err = dispatch(client, "exit")
	assert.ErrorIs(t, err, io.EOF)

	out, err = dispatch(client, "help")
	require.NoError(t, err)
	assert.Contains(t, out, "interventions")

	_, err = dispatch(client, "reboot")
	assert.ErrorContains(t, err, "unknown command")

	out, err = dispatch(client, "ack a-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Alert acknowledged: a-1")

	_, err = dispatch(client, "ack a-2")
	assert.ErrorContains(t, err, "alert not found")

	_, err = dispatch(client, "ack")
	assert.ErrorContains(t, err, "usage")

	out, err = dispatch(client, "intervene rest_prompt feeling very tired")
	require.NoError(t, err)
	assert.Contains(t, out, "iv-9")

	out, err = dispatch(client, "stop maintenance")
	require.NoError(t, err)
	assert.Equal(t, "Monitoring stopped\n", out)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 4)
	assert.Equal(t, "feeling very tired", got[2].Reason)
	assert.Equal(t, "maintenance", got[3].Reason)
}

func TestCheckWithoutDaemon(t *testing.T) {
	client := control.NewClient(filepath.Join(os.TempDir(), "healthmon-absent.sock"))
	client.SetTimeout(100 * time.Millisecond)
	_, err := statusAction(client, nil)
	assert.ErrorContains(t, err, "is 'healthmon run' running?")
}
