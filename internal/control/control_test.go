package control

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

type stubMonitor struct {
	mu        sync.Mutex
	state     types.MonitoringState
	suspended bool
	alerts    []types.Alert
	acked     []string
	outcomes  map[string]types.InterventionOutcome
}

func newStubMonitor() *stubMonitor {
	return &stubMonitor{
		state: types.StateStopped,
		alerts: []types.Alert{
			{ID: "a-1", Type: types.AlertAnomaly, Metric: types.MetricHeartRate, Severity: types.SeverityHigh, Title: "Heart rate anomaly (high)", Timestamp: time.Now()},
		},
		outcomes: make(map[string]types.InterventionOutcome),
	}
}

func (m *stubMonitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateActive
	return nil
}

func (m *stubMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.StateStopped
	return nil
}

func (m *stubMonitor) State() types.MonitoringState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stubMonitor) GetCurrentHealthStatus(ctx context.Context) (*types.HealthStatus, error) {
	if m.State() != types.StateActive {
		return nil, types.ErrNotMonitoring
	}
	snap := types.NewMetricSnapshot([]types.HealthSample{
		{Metric: types.MetricHeartRate, Value: 74, Timestamp: time.Now()},
	}, time.Now())
	return &types.HealthStatus{
		Timestamp: time.Now(),
		State:     types.StateActive,
		Metrics:   snap,
		Quality:   types.QualityReport{Level: types.QualityGood, SampleDensity: 0.8, ConnectedDevices: 1},
	}, nil
}

func (m *stubMonitor) GetMonitoringStats() types.MonitoringStats {
	return types.MonitoringStats{SamplesCollected: 42, SamplingErrors: 1}
}

func (m *stubMonitor) GetAlerts(r types.TimeRange) []types.Alert {
	var out []types.Alert
	for _, a := range m.alerts {
		if r.Contains(a.Timestamp) {
			out = append(out, a)
		}
	}
	return out
}

func (m *stubMonitor) AcknowledgeAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id {
			m.acked = append(m.acked, id)
			return nil
		}
	}
	return types.ErrAlertNotFound
}

func (m *stubMonitor) ForceIntervention(ctx context.Context, kind types.InterventionKind) (*types.Intervention, error) {
	if m.State() != types.StateActive {
		return nil, types.ErrNotMonitoring
	}
	return &types.Intervention{ID: "iv-1", Kind: kind, Forced: true, Outcome: types.OutcomePending, StartedAt: time.Now()}, nil
}

func (m *stubMonitor) ReportInterventionOutcome(id string, outcome types.InterventionOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id != "iv-1" {
		return types.ErrInterventionNotFound
	}
	m.outcomes[id] = outcome
	return nil
}

func (m *stubMonitor) ackedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

func (m *stubMonitor) outcome(id string) types.InterventionOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[id]
}

func (m *stubMonitor) GetInterventionStatus() types.AdaptationState {
	return types.AdaptationState{AdaptationLevel: 0.6, SuccessHistory: []bool{true}}
}

func (m *stubMonitor) InterventionHistory(limit int) []types.Intervention {
	return []types.Intervention{{ID: "iv-0", Kind: "rest_prompt", Outcome: types.OutcomeSucceeded}}
}

func (m *stubMonitor) SuspendForeground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
}

func (m *stubMonitor) ResumeForeground() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = false
}

func (m *stubMonitor) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startServer uses a short temp dir; unix socket paths are length limited
func startServer(t *testing.T, handler Handler) (*Server, *Client) {
	t.Helper()
	dir, err := os.MkdirTemp("", "hm")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	server, err := NewServer(filepath.Join(dir, "ctl.sock"), handler, discardLogger())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, server.Start(ctx))
	t.Cleanup(func() {
		_ = server.Stop()
		cancel()
	})

	client := NewClient(server.SocketPath())
	client.SetTimeout(2 * time.Second)
	return server, client
}

func TestServerLifecycle(t *testing.T) {
	server, _ := startServer(t, func(ctx context.Context, cmd Command) (map[string]interface{}, error) {
		return nil, nil
	})
	assert.True(t, server.IsRunning())
	assert.Error(t, server.Start(context.Background()), "already running")

	require.NoError(t, server.Stop())
	assert.False(t, server.IsRunning())
	_, err := os.Stat(server.SocketPath())
	assert.True(t, os.IsNotExist(err), "socket file removed")
	require.NoError(t, server.Stop(), "stopping twice is harmless")
}

func TestClientWithoutServer(t *testing.T) {
	client := NewClient(filepath.Join(os.TempDir(), "healthmon-missing.sock"))
	client.SetTimeout(100 * time.Millisecond)
	_, err := client.Status()
	assert.Error(t, err)
}

func TestHandlerCommands(t *testing.T) {
	mon := newStubMonitor()
	_, client := startServer(t, NewHandler(mon, discardLogger()))

	t.Run("status while stopped", func(t *testing.T) {
		resp, err := client.Status()
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, types.ErrNotMonitoring.Error())
	})

	t.Run("start then status", func(t *testing.T) {
		resp, err := client.SendCommand(Command{Type: CommandStart})
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, "active", resp.Data["state"])

		resp, err = client.Status()
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Error)
		var status types.HealthStatus
		require.NoError(t, Decode(resp.Data, "status", &status))
		assert.Equal(t, types.QualityGood, status.Quality.Level)
		hr, ok := status.Metrics.Value(types.MetricHeartRate)
		require.True(t, ok)
		assert.Equal(t, 74.0, hr)
	})

	t.Run("stats", func(t *testing.T) {
		resp, err := client.Stats()
		require.NoError(t, err)
		var stats types.MonitoringStats
		require.NoError(t, Decode(resp.Data, "stats", &stats))
		assert.Equal(t, int64(42), stats.SamplesCollected)
	})

	t.Run("alerts", func(t *testing.T) {
		resp, err := client.Alerts("1h")
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Error)
		assert.EqualValues(t, 1, resp.Data["count"])
		var alerts []types.Alert
		require.NoError(t, Decode(resp.Data, "alerts", &alerts))
		assert.Equal(t, "a-1", alerts[0].ID)

		resp, err = client.Alerts("soon")
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("ack", func(t *testing.T) {
		resp, err := client.Acknowledge("a-1")
		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, []string{"a-1"}, mon.ackedIDs())

		resp, err = client.Acknowledge("nope")
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "alert not found")

		resp, err = client.Acknowledge("")
		require.NoError(t, err)
		assert.False(t, resp.Success)
	})

	t.Run("intervene and outcome", func(t *testing.T) {
		resp, err := client.Intervene("rest_prompt", "feeling dizzy")
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Error)
		var iv types.Intervention
		require.NoError(t, Decode(resp.Data, "intervention", &iv))
		assert.Equal(t, types.InterventionKind("rest_prompt"), iv.Kind)
		assert.True(t, iv.Forced)

		resp, err = client.ReportOutcome(iv.ID, "succeeded")
		require.NoError(t, err)
		require.True(t, resp.Success, resp.Error)
		assert.Equal(t, types.OutcomeSucceeded, mon.outcome(iv.ID))
	})

	t.Run("interventions", func(t *testing.T) {
		resp, err := client.Interventions()
		require.NoError(t, err)
		var state types.AdaptationState
		require.NoError(t, Decode(resp.Data, "adaptation", &state))
		assert.Equal(t, 0.6, state.AdaptationLevel)
		var history []types.Intervention
		require.NoError(t, Decode(resp.Data, "history", &history))
		assert.Len(t, history, 1)
	})

	t.Run("suspend and resume", func(t *testing.T) {
		resp, err := client.Suspend("sleeping")
		require.NoError(t, err)
		assert.Equal(t, true, resp.Data["suspended"])
		resp, err = client.Resume()
		require.NoError(t, err)
		assert.Equal(t, false, resp.Data["suspended"])
	})

	t.Run("stop", func(t *testing.T) {
		resp, err := client.SendCommand(Command{Type: CommandStop, Reason: "maintenance"})
		require.NoError(t, err)
		assert.Equal(t, "stopped", resp.Data["state"])
	})

	t.Run("unknown command", func(t *testing.T) {
		resp, err := client.SendCommand(Command{Type: "reboot"})
		require.NoError(t, err)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "unknown command type")
	})
}

func TestDecodeMissingField(t *testing.T) {
	var v int
	assert.Error(t, Decode(map[string]interface{}{}, "stats", &v))
}
