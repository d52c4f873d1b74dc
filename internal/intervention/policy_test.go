package intervention

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

func TestSeverityMatchPolicy(t *testing.T) {
	p := NewSeverityMatchPolicy(nil, 0.3)
	never := map[types.InterventionKind]time.Time{}

	tests := []struct {
		name   string
		sev    types.Severity
		metric types.MetricKind
		level  float64
		want   types.InterventionKind
		ok     bool
	}{
		{"critical goes to care team", types.SeverityCritical, types.MetricHeartRate, 0.5, KindCareTeamContact, true},
		{"high gets guided recovery", types.SeverityHigh, types.MetricOxygenSaturation, 0.5, KindGuidedRecovery, true},
		{"medium heart prefers first medium match", types.SeverityMedium, types.MetricHeartRate, 0.5, KindActivityBreak, true},
		{"medium temperature falls back to rest", types.SeverityMedium, types.MetricTemperature, 0.5, KindRestPrompt, true},
		{"low temperature hydrates", types.SeverityLow, types.MetricTemperature, 0.5, KindHydrationReminder, true},
		{"low oxygen has no low entry", types.SeverityLow, types.MetricOxygenSaturation, 0.5, "", false},
		{"low adaptation escalates", types.SeverityHigh, types.MetricHeartRate, 0.1, KindCareTeamContact, true},
		{"system alert without metric", types.SeverityHigh, "", 0.5, KindGuidedRecovery, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := p.Select(types.Alert{Severity: tt.sev, Metric: tt.metric}, tt.level, never)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSeverityMatchPolicy_LeastRecentlyUsedTieBreak(t *testing.T) {
	p := NewSeverityMatchPolicy(nil, 0.3)
	now := time.Now()
	a := types.Alert{Severity: types.SeverityMedium, Metric: types.MetricStressLevel}

	used := map[types.InterventionKind]time.Time{KindActivityBreak: now}
	got, ok := p.Select(a, 0.5, used)
	require.True(t, ok)
	assert.Equal(t, KindRestPrompt, got)

	used[KindRestPrompt] = now.Add(time.Minute)
	got, _ = p.Select(a, 0.5, used)
	assert.Equal(t, KindActivityBreak, got)
}

func TestEngineRotatesTiedInterventions(t *testing.T) {
	e, clock := newStartedEngine(t)
	ctx := context.Background()
	a := alert(types.SeverityMedium, types.MetricHeartRate)

	first, err := e.HandleAlert(ctx, a)
	require.NoError(t, err)
	clock.Advance(time.Second)
	second, err := e.HandleAlert(ctx, a)
	require.NoError(t, err)
	assert.NotEqual(t, first.Kind, second.Kind)
}

type stubSource struct {
	samples []types.HealthSample
	err     error
}

func (s stubSource) FetchRecentSamples(ctx context.Context, metric types.MetricKind, limit int) ([]types.HealthSample, error) {
	return s.samples, s.err
}

func TestRecoveryExecutor(t *testing.T) {
	scorer := detector.New(nil)
	now := time.Now()
	iv := types.Intervention{ID: "iv", TriggerMetric: types.MetricHeartRate, Severity: types.SeverityCritical}

	tests := []struct {
		name    string
		source  stubSource
		want    types.InterventionOutcome
		wantErr bool
	}{
		{"back in range", stubSource{samples: []types.HealthSample{{Timestamp: now, Metric: types.MetricHeartRate, Value: 82}}}, types.OutcomeSucceeded, false},
		{"improved but still high", stubSource{samples: []types.HealthSample{{Timestamp: now, Metric: types.MetricHeartRate, Value: 112}}}, types.OutcomeSucceeded, false},
		{"still critical", stubSource{samples: []types.HealthSample{{Timestamp: now, Metric: types.MetricHeartRate, Value: 140}}}, types.OutcomeFailed, false},
		{"uses newest sample", stubSource{samples: []types.HealthSample{
			{Timestamp: now, Metric: types.MetricHeartRate, Value: 80},
			{Timestamp: now.Add(-time.Minute), Metric: types.MetricHeartRate, Value: 150},
		}}, types.OutcomeSucceeded, false},
		{"source error", stubSource{err: errors.New("offline")}, types.OutcomePending, true},
		{"no data", stubSource{}, types.OutcomePending, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, err := NewRecoveryExecutor(tt.source, scorer, 0)
			require.NoError(t, err)
			got, err := x.Execute(context.Background(), iv)
			assert.Equal(t, tt.wantErr, err != nil)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecoveryExecutorHonoursContext(t *testing.T) {
	x, err := NewRecoveryExecutor(stubSource{}, detector.New(nil), time.Hour)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	outcome, err := x.Execute(ctx, types.Intervention{TriggerMetric: types.MetricHeartRate})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, types.OutcomePending, outcome)
}

func TestRecoveryExecutorWithoutMetricLeavesPending(t *testing.T) {
	x, err := NewRecoveryExecutor(stubSource{}, detector.New(nil), 0)
	require.NoError(t, err)
	outcome, err := x.Execute(context.Background(), types.Intervention{Forced: true})
	require.NoError(t, err)
	assert.Equal(t, types.OutcomePending, outcome)

	t.Run("forced intervention waits for a reported outcome", func(t *testing.T) {
		e, _ := newStartedEngine(t, WithExecutor(x))
		level := e.Level()

		iv, err := e.ForceIntervention(context.Background(), KindRestPrompt)
		require.NoError(t, err)
		assert.Never(t, func() bool { return len(e.Status().ActiveInterventions) == 0 },
			50*time.Millisecond, 5*time.Millisecond)
		assert.Equal(t, level, e.Level())

		require.NoError(t, e.ReportOutcome(iv.ID, types.OutcomeSucceeded))
		assert.Greater(t, e.Level(), level)
		assert.Empty(t, e.Status().ActiveInterventions)
	})
}
