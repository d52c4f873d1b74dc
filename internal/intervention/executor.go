package intervention

import (
	"context"
	"fmt"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// SampleSource is the part of the health data source the recovery executor needs
type SampleSource interface {
	FetchRecentSamples(ctx context.Context, metric types.MetricKind, limit int) ([]types.HealthSample, error)
}

// Scorer classifies a single value
type Scorer interface {
	Score(value float64, metric types.MetricKind) (detector.Score, bool)
}

// RecoveryExecutor closes the loop on an intervention by waiting for it to
// take effect, re-sampling the metric that triggered it and scoring the new
// value. The intervention succeeds when the metric is back in range or its
// severity dropped below the triggering severity. Interventions without a
// trigger metric are left pending.
type RecoveryExecutor struct {
	source SampleSource
	scorer Scorer
	delay  time.Duration
}

// NewRecoveryExecutor creates a recovery executor. delay is how long the
// intervention is given before re-measuring.
func NewRecoveryExecutor(source SampleSource, scorer Scorer, delay time.Duration) (*RecoveryExecutor, error) {
	if source == nil {
		return nil, fmt.Errorf("recovery executor requires a sample source")
	}
	if scorer == nil {
		return nil, fmt.Errorf("recovery executor requires a scorer")
	}
	if delay < 0 {
		return nil, fmt.Errorf("delay must be non-negative, got %v", delay)
	}
	return &RecoveryExecutor{source: source, scorer: scorer, delay: delay}, nil
}

// Execute implements Executor
func (r *RecoveryExecutor) Execute(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error) {
	if r.delay > 0 {
		timer := time.NewTimer(r.delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return types.OutcomePending, ctx.Err()
		case <-timer.C:
		}
	}

	// Forced or system-triggered interventions have nothing to re-measure.
	// They stay pending until ReportOutcome or the timeout sweep settles them.
	if iv.TriggerMetric == "" {
		return types.OutcomePending, nil
	}

	samples, err := r.source.FetchRecentSamples(ctx, iv.TriggerMetric, 1)
	if err != nil {
		return types.OutcomePending, fmt.Errorf("failed to re-sample %s: %w", iv.TriggerMetric, err)
	}
	if len(samples) == 0 {
		return types.OutcomePending, fmt.Errorf("no %s samples after intervention", iv.TriggerMetric)
	}
	latest := samples[len(samples)-1]
	for _, s := range samples {
		if s.Timestamp.After(latest.Timestamp) {
			latest = s
		}
	}

	score, anomalous := r.scorer.Score(latest.Value, iv.TriggerMetric)
	if !anomalous || score.Severity.Rank() < iv.Severity.Rank() {
		return types.OutcomeSucceeded, nil
	}
	return types.OutcomeFailed, nil
}
