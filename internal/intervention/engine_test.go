package intervention

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type funcExecutor func(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error)

func (f funcExecutor) Execute(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error) {
	return f(ctx, iv)
}

func newStartedEngine(t *testing.T, opts ...Option) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	e, err := NewEngine(DefaultConfig(), opts...)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	t.Cleanup(e.Stop)
	return e, clock
}

func alert(sev types.Severity, metric types.MetricKind) types.Alert {
	return types.Alert{ID: "alert-" + string(sev), Type: types.AlertAnomaly, Metric: metric, Severity: sev}
}

func TestCriticalAlertStartsPendingInterventionAndSuccessRaisesLevel(t *testing.T) {
	e, _ := newStartedEngine(t)
	before := e.Level()

	iv, err := e.HandleAlert(context.Background(), alert(types.SeverityCritical, types.MetricHeartRate))
	require.NoError(t, err)
	require.NotNil(t, iv)
	assert.Equal(t, types.OutcomePending, iv.Outcome)
	assert.Equal(t, KindCareTeamContact, iv.Kind)

	status := e.Status()
	require.Len(t, status.ActiveInterventions, 1)
	assert.Equal(t, before, status.AdaptationLevel, "pending does not move the level")

	require.NoError(t, e.ReportOutcome(iv.ID, types.OutcomeSucceeded))
	assert.Greater(t, e.Level(), before)
	assert.Empty(t, e.Status().ActiveInterventions)

	hist := e.History(0)
	require.Len(t, hist, 1)
	assert.Equal(t, types.OutcomeSucceeded, hist[0].Outcome)
	require.NotNil(t, hist[0].CompletedAt)
}

func TestAdaptationLevelStaysInBounds(t *testing.T) {
	e, _ := newStartedEngine(t)
	ctx := context.Background()

	for _, outcome := range []types.InterventionOutcome{types.OutcomeSucceeded, types.OutcomeFailed} {
		for i := 0; i < 40; i++ {
			iv, err := e.ForceIntervention(ctx, KindRestPrompt)
			require.NoError(t, err)
			require.NoError(t, e.ReportOutcome(iv.ID, outcome))
			level := e.Level()
			require.GreaterOrEqual(t, level, 0.0)
			require.LessOrEqual(t, level, 1.0)
		}
	}
	assert.Equal(t, 0.0, e.Level())
	assert.Len(t, e.Status().SuccessHistory, 80)
}

func TestAdaptRule(t *testing.T) {
	assert.InDelta(t, 0.55, adapt(0.5, types.OutcomeSucceeded, 0.5, 0.1), 1e-9)
	assert.InDelta(t, 0.45, adapt(0.5, types.OutcomeFailed, 0.5, 0.1), 1e-9)
	assert.Equal(t, 1.0, adapt(0.98, types.OutcomeSucceeded, 0.5, 0.1))
	assert.Equal(t, 0.0, adapt(0.01, types.OutcomeFailed, 0.5, 0.1))
}

func TestHandleAlertGating(t *testing.T) {
	e, _ := newStartedEngine(t)

	iv, err := e.HandleAlert(context.Background(), alert(types.SeverityLow, types.MetricStressLevel))
	require.NoError(t, err)
	assert.Nil(t, iv, "low severity alerts do not trigger interventions")

	iv, err = e.HandleAlert(context.Background(), alert(types.SeverityMedium, types.MetricStressLevel))
	require.NoError(t, err)
	require.NotNil(t, iv)
}

func TestStoppedEngineRejects(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	_, err = e.HandleAlert(context.Background(), alert(types.SeverityCritical, types.MetricHeartRate))
	assert.True(t, errors.Is(err, types.ErrNotMonitoring))
	_, err = e.ForceIntervention(context.Background(), KindRestPrompt)
	assert.True(t, errors.Is(err, types.ErrNotMonitoring))
}

func TestForceIntervention(t *testing.T) {
	e, _ := newStartedEngine(t)

	iv, err := e.ForceIntervention(context.Background(), KindBreathingExercise)
	require.NoError(t, err)
	assert.True(t, iv.Forced)
	assert.Equal(t, types.OutcomePending, iv.Outcome)

	_, err = e.ForceIntervention(context.Background(), "cold_plunge")
	assert.True(t, errors.Is(err, types.ErrUnknownIntervention))
}

func TestReportOutcomeErrors(t *testing.T) {
	e, _ := newStartedEngine(t)

	err := e.ReportOutcome("missing", types.OutcomeSucceeded)
	assert.True(t, errors.Is(err, types.ErrInterventionNotFound))

	iv, err := e.ForceIntervention(context.Background(), KindRestPrompt)
	require.NoError(t, err)
	assert.Error(t, e.ReportOutcome(iv.ID, types.OutcomePending), "pending is not a terminal outcome")

	require.NoError(t, e.ReportOutcome(iv.ID, types.OutcomeFailed))
	level := e.Level()
	assert.Error(t, e.ReportOutcome(iv.ID, types.OutcomeSucceeded), "terminal outcomes are final")
	assert.Equal(t, level, e.Level())
}

func TestSweepFailsOverdueInterventions(t *testing.T) {
	e, clock := newStartedEngine(t)
	iv, err := e.ForceIntervention(context.Background(), KindRestPrompt)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 0, e.sweep())

	clock.Advance(6 * time.Minute)
	assert.Equal(t, 1, e.sweep())
	hist := e.History(1)
	require.Len(t, hist, 1)
	assert.Equal(t, iv.ID, hist[0].ID)
	assert.Equal(t, types.OutcomeFailed, hist[0].Outcome)
	assert.Equal(t, "timed out", hist[0].Note)
	assert.Less(t, e.Level(), 0.5)
}

func TestExecutorCompletesIntervention(t *testing.T) {
	bus := events.NewBus()
	sub := bus.Subscribe(8, events.EventTypeInterventionCompleted)
	exec := funcExecutor(func(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error) {
		return types.OutcomeSucceeded, nil
	})
	e, _ := newStartedEngine(t, WithExecutor(exec), WithBus(bus))

	_, err := e.ForceIntervention(context.Background(), KindGuidedRecovery)
	require.NoError(t, err)

	select {
	case ev := <-sub.C:
		data, err := ev.GetInterventionData()
		require.NoError(t, err)
		assert.Equal(t, types.OutcomeSucceeded, data.Outcome)
		assert.InDelta(t, 0.55, data.AdaptationLevel, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("intervention never completed")
	}
}

func TestExecutorErrorFailsIntervention(t *testing.T) {
	done := make(chan struct{})
	exec := funcExecutor(func(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error) {
		defer close(done)
		return types.OutcomePending, errors.New("device unreachable")
	})
	e, _ := newStartedEngine(t, WithExecutor(exec))
	_, err := e.ForceIntervention(context.Background(), KindRestPrompt)
	require.NoError(t, err)

	<-done
	require.Eventually(t, func() bool { return len(e.History(0)) == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.OutcomeFailed, e.History(0)[0].Outcome)
}

func TestStopCancelsExecutorsAndLeavesPending(t *testing.T) {
	started := make(chan struct{})
	exec := funcExecutor(func(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error) {
		close(started)
		<-ctx.Done()
		return types.OutcomePending, ctx.Err()
	})
	e, err := NewEngine(DefaultConfig(), WithExecutor(exec))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	_, err = e.ForceIntervention(context.Background(), KindRestPrompt)
	require.NoError(t, err)
	<-started

	stopped := make(chan struct{})
	go func() {
		e.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Len(t, e.Status().ActiveInterventions, 1)
	assert.Equal(t, 0.5, e.Level())
}

func TestStartStopIdempotent(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	e.Stop()
	require.NoError(t, e.Start(context.Background()))
	require.NoError(t, e.Start(context.Background()))
	assert.True(t, e.Running())
	e.Stop()
	e.Stop()
	assert.False(t, e.Running())
}

func TestRestore(t *testing.T) {
	e, _ := newStartedEngine(t)
	require.NoError(t, e.Restore(0.8))
	assert.Equal(t, 0.8, e.Level())
	assert.Error(t, e.Restore(1.5))

	iv, err := e.ForceIntervention(context.Background(), KindRestPrompt)
	require.NoError(t, err)
	require.NoError(t, e.ReportOutcome(iv.ID, types.OutcomeSucceeded))
	assert.Error(t, e.Restore(0.2), "restore is refused once outcomes exist")
}

func TestHistoryBounded(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxHistory = 3
	e, err := NewEngine(cfg)
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	defer e.Stop()

	for i := 0; i < 7; i++ {
		iv, err := e.ForceIntervention(context.Background(), KindRestPrompt)
		require.NoError(t, err)
		require.NoError(t, e.ReportOutcome(iv.ID, types.OutcomeSucceeded))
	}
	assert.Len(t, e.History(0), 3)
	assert.Len(t, e.Status().SuccessHistory, 3)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"alpha zero", func(c *Config) { c.Alpha = 0 }},
		{"delta above one", func(c *Config) { c.Delta = 2 }},
		{"initial level negative", func(c *Config) { c.InitialLevel = -0.1 }},
		{"bad min severity", func(c *Config) { c.MinSeverity = "severe" }},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }},
	}
	require.NoError(t, DefaultConfig().Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
