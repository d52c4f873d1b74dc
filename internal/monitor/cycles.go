package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

type counters struct {
	samples          atomic.Int64
	anomalies        atomic.Int64
	alerts           atomic.Int64
	interventions    atomic.Int64
	samplingErrors   atomic.Int64
	detectionErrors  atomic.Int64
	alertErrors      atomic.Int64
	backgroundErrors atomic.Int64
	lastUpdate       atomic.Int64 // unix nanos, 0 when unset
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.samples, &c.anomalies, &c.alerts, &c.interventions,
		&c.samplingErrors, &c.detectionErrors, &c.alertErrors, &c.backgroundErrors,
		&c.lastUpdate,
	} {
		v.Store(0)
	}
}

func (c *counters) touch(t time.Time) {
	c.lastUpdate.Store(t.UnixNano())
}

func (c *counters) snapshot() types.MonitoringStats {
	stats := types.MonitoringStats{
		SamplesCollected:     c.samples.Load(),
		AnomaliesDetected:    c.anomalies.Load(),
		AlertsTriggered:      c.alerts.Load(),
		InterventionsStarted: c.interventions.Load(),
		SamplingErrors:       c.samplingErrors.Load(),
		DetectionErrors:      c.detectionErrors.Load(),
		AlertErrors:          c.alertErrors.Load(),
		BackgroundErrors:     c.backgroundErrors.Load(),
	}
	if ns := c.lastUpdate.Load(); ns != 0 {
		stats.LastUpdateTime = time.Unix(0, ns)
	}
	return stats
}

// runPipeline runs sampling, anomaly detection and alert evaluation in order.
// Each stage counts its own failure; the joined error is for the caller's log.
func (s *Scheduler) runPipeline(ctx context.Context, gen uint64, settings config.MonitoringSettings) error {
	var errs []error
	if err := s.sampleCycle(ctx, gen, settings); err != nil {
		errs = append(errs, fmt.Errorf("sampling: %w", err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.anomalyCycle(ctx, gen); err != nil {
		errs = append(errs, fmt.Errorf("anomaly detection: %w", err))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err := s.alertCycle(ctx, gen, settings); err != nil {
		errs = append(errs, fmt.Errorf("alert evaluation: %w", err))
	}
	return errors.Join(errs...)
}

// recoverStage turns a panic in a stage into a counted error
func (s *Scheduler) recoverStage(stage string, counter *atomic.Int64, err *error) {
	if r := recover(); r != nil {
		counter.Add(1)
		s.logger.Error("Monitor: stage panicked", "stage", stage, "panic", r)
		*err = fmt.Errorf("%s panicked: %v", stage, r)
	}
}

// sampleCycle fetches recent samples for every configured metric and appends
// them with an aggregated snapshot. Metrics that fail do not block the rest.
func (s *Scheduler) sampleCycle(ctx context.Context, gen uint64, settings config.MonitoringSettings) (err error) {
	defer s.recoverStage("sampling", &s.stats.samplingErrors, &err)

	samples, fetchErr := s.collect(ctx, settings)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	now := s.now()
	if len(samples) > 0 {
		var fresh []types.HealthSample
		committed := s.commit(gen, func() {
			fresh = s.unseen(samples)
			if len(fresh) == 0 {
				return
			}
			s.history.AppendSamples(fresh...)
			s.history.AppendSnapshot(types.NewMetricSnapshot(fresh, now))
		})
		if !committed {
			return nil
		}
		if dup := len(samples) - len(fresh); dup > 0 {
			s.logger.Debug("Monitor: skipped samples already stored", "count", dup)
		}
		s.stats.samples.Add(int64(len(fresh)))
	}
	s.stats.touch(now)

	if fetchErr != nil {
		s.stats.samplingErrors.Add(1)
		s.logger.Warn("Monitor: sampling incomplete", "collected", len(samples), "error", fetchErr)
		return fetchErr
	}
	return nil
}

// collect fans out one fetch per metric, at most FetchConcurrency at a time
func (s *Scheduler) collect(ctx context.Context, settings config.MonitoringSettings) ([]types.HealthSample, error) {
	metrics := settings.Metrics
	results := make([][]types.HealthSample, len(metrics))
	errs := make([]error, len(metrics))

	var g errgroup.Group
	g.SetLimit(settings.FetchConcurrency)
	for i, metric := range metrics {
		g.Go(func() error {
			results[i], errs[i] = s.fetch(ctx, metric, settings)
			return nil
		})
	}
	_ = g.Wait()

	var samples []types.HealthSample
	for _, r := range results {
		samples = append(samples, r...)
	}
	return samples, errors.Join(errs...)
}

// fetch calls the data source with a bounded timeout. A source that ignores
// its context is abandoned; its late result is discarded.
func (s *Scheduler) fetch(ctx context.Context, metric types.MetricKind, settings config.MonitoringSettings) ([]types.HealthSample, error) {
	if err := s.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%s: %w", metric, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, settings.DataSourceTimeout)
	defer cancel()

	type result struct {
		samples []types.HealthSample
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		samples, err := s.source.FetchRecentSamples(callCtx, metric, settings.SampleLimit)
		ch <- result{samples, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.breaker.RecordFailure()
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, fmt.Errorf("%w: %s: %v", types.ErrDataSourceTimeout, metric, r.err)
			}
			return nil, fmt.Errorf("failed to fetch %s: %w", metric, r.err)
		}
		s.breaker.RecordSuccess()
		return s.accept(metric, r.samples), nil
	case <-callCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.breaker.RecordFailure()
		return nil, fmt.Errorf("%w: %s after %v", types.ErrDataSourceTimeout, metric, settings.DataSourceTimeout)
	}
}

// accept drops samples that cannot be stored
func (s *Scheduler) accept(metric types.MetricKind, samples []types.HealthSample) []types.HealthSample {
	out := samples[:0:0]
	for _, sample := range samples {
		if sample.Metric == "" {
			sample.Metric = metric
		}
		if err := sample.Validate(); err != nil {
			s.logger.Debug("Monitor: dropping sample", "metric", metric, "error", err)
			continue
		}
		out = append(out, sample)
	}
	return out
}

// unseen keeps the samples newer than the last stored sample of their metric
// and advances the per-metric marks
func (s *Scheduler) unseen(samples []types.HealthSample) []types.HealthSample {
	s.newestMu.Lock()
	defer s.newestMu.Unlock()

	out := samples[:0:0]
	marks := make(map[types.MetricKind]time.Time)
	for _, sample := range samples {
		if !sample.Timestamp.After(s.newest[sample.Metric]) {
			continue
		}
		out = append(out, sample)
		if sample.Timestamp.After(marks[sample.Metric]) {
			marks[sample.Metric] = sample.Timestamp
		}
	}
	for metric, t := range marks {
		s.newest[metric] = t
	}
	return out
}

// anomalyCycle runs the detector over samples appended since the last check
func (s *Scheduler) anomalyCycle(ctx context.Context, gen uint64) (err error) {
	defer s.recoverStage("anomaly detection", &s.stats.detectionErrors, &err)

	s.cursorMu.Lock()
	samples, next := s.history.SamplesSince(s.sampleCursor)
	anomalies, detectErr := s.detector.Detect(samples)
	committed := s.commit(gen, func() {
		s.history.AppendAnomalies(anomalies...)
		s.sampleCursor = next
	})
	s.cursorMu.Unlock()

	if !committed {
		return nil
	}
	s.stats.anomalies.Add(int64(len(anomalies)))
	s.stats.touch(s.now())

	for _, a := range anomalies {
		ev, evErr := events.NewAnomalyEvent(a)
		if evErr != nil {
			s.logger.Warn("Monitor: failed to build anomaly event", "anomaly_id", a.ID, "error", evErr)
			continue
		}
		s.bus.Publish(ev)
	}

	if detectErr != nil {
		s.stats.detectionErrors.Add(1)
		s.logger.Warn("Monitor: detection failed for some samples", "error", detectErr)
		return detectErr
	}
	return nil
}

// alertCycle turns new anomalies and the latest snapshot into alerts and
// hands every raised alert to the intervention engine
func (s *Scheduler) alertCycle(ctx context.Context, gen uint64, settings config.MonitoringSettings) (err error) {
	defer s.recoverStage("alert evaluation", &s.stats.alertErrors, &err)

	s.cursorMu.Lock()
	anomalies, next := s.history.AnomaliesSince(s.anomalyCursor)
	snap := s.history.LatestSnapshot()
	if snap != nil && !snap.Timestamp.After(s.lastEvaluatedSnap) {
		// Already checked against thresholds
		snap = nil
	}
	var raised []types.Alert
	committed := s.commit(gen, func() {
		raised = s.alerts.Evaluate(ctx, anomalies, snap, settings.Thresholds)
		s.anomalyCursor = next
		if snap != nil {
			s.lastEvaluatedSnap = snap.Timestamp
		}
	})
	s.cursorMu.Unlock()

	if !committed {
		return nil
	}
	s.stats.alerts.Add(int64(len(raised)))
	s.stats.touch(s.now())

	var errs []error
	for _, alert := range raised {
		iv, hErr := s.interventions.HandleAlert(ctx, alert)
		switch {
		case errors.Is(hErr, types.ErrNotMonitoring):
			// Stopping
		case hErr != nil:
			errs = append(errs, fmt.Errorf("alert %s: %w", alert.ID, hErr))
		case iv != nil:
			s.stats.interventions.Add(1)
		}
	}
	if len(errs) > 0 {
		s.stats.alertErrors.Add(1)
		joined := errors.Join(errs...)
		s.logger.Warn("Monitor: failed to start interventions", "error", joined)
		return joined
	}
	return nil
}

type runKey struct{}

type run struct {
	gen      uint64
	settings config.MonitoringSettings
}

// backgroundCycle runs every registered task with retry. A task that keeps
// failing raises a system alert once it reaches the failure threshold.
func (s *Scheduler) backgroundCycle(ctx context.Context, gen uint64, settings config.MonitoringSettings) {
	s.tasksMu.Lock()
	tasks := append([]*backgroundTask(nil), s.tasks...)
	s.tasksMu.Unlock()

	policy := RetryPolicy{
		MaxRetries:     settings.BackgroundRetries,
		InitialBackoff: settings.RetryBackoff,
		MaxBackoff:     settings.MaxRetryBackoff,
		Timeout:        settings.BackgroundTimeout,
	}
	taskCtx := context.WithValue(ctx, runKey{}, run{gen: gen, settings: settings})

	for _, task := range tasks {
		if ctx.Err() != nil {
			return
		}
		err := retryWithBackoff(taskCtx, s.logger, task.name, policy, task.fn)
		if err == nil {
			task.failures.Store(0)
			continue
		}
		if ctx.Err() != nil {
			return
		}
		s.taskFailed(ctx, gen, settings, task, err)
	}
}

func (s *Scheduler) taskFailed(ctx context.Context, gen uint64, settings config.MonitoringSettings, task *backgroundTask, err error) {
	s.stats.backgroundErrors.Add(1)
	failures := task.failures.Add(1)
	s.logger.Error("Monitor: background task failed",
		"task", task.name, "consecutive_failures", failures, "error", err)

	s.bus.Publish(events.NewMonitoringEvent(events.EventTypeBackgroundTaskFailed, events.SeverityError,
		fmt.Sprintf("Background task %s failed", task.name),
		events.MonitoringData{State: s.State(), Task: task.name, Reason: err.Error()}))

	if failures < int64(settings.FailureAlertThreshold) {
		return
	}
	s.commit(gen, func() {
		title := fmt.Sprintf("Background task %s failing", task.name)
		msg := fmt.Sprintf("%s failed %d times in a row: %v", task.name, failures, err)
		if _, _, alertErr := s.alerts.RaiseSystemAlert(ctx, types.AlertSystem, types.SeverityHigh, title, msg); alertErr != nil {
			s.logger.Warn("Monitor: failed to raise system alert", "task", task.name, "error", alertErr)
		}
	})
}

// pipelineTask is the built-in background task. It runs the whole pipeline
// so data keeps flowing while the foreground cadences are suspended.
func (s *Scheduler) pipelineTask(ctx context.Context) error {
	r, ok := ctx.Value(runKey{}).(run)
	if !ok {
		return fmt.Errorf("pipeline task run outside the scheduler")
	}
	return s.runPipeline(ctx, r.gen, r.settings)
}
