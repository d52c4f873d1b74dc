package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Quality thresholds on sample density
const (
	excellentDensity = 0.9
	goodDensity      = 0.7
	fairDensity      = 0.4
)

// GetCurrentHealthStatus combines the latest snapshot, recent anomalies, the
// forecast and a data quality rating. It returns types.ErrNotMonitoring
// unless monitoring is active. A failing forecast is left out.
func (s *Scheduler) GetCurrentHealthStatus(ctx context.Context) (*types.HealthStatus, error) {
	s.mu.RLock()
	state, settings, startedAt := s.state, s.settings, s.startedAt
	s.mu.RUnlock()
	if state != types.StateActive {
		return nil, types.ErrNotMonitoring
	}

	now := s.now()
	window := types.TimeRange{From: now.Add(-settings.QualityWindow)}

	status := &types.HealthStatus{
		Timestamp: now,
		State:     state,
		Metrics:   s.history.LatestSnapshot(),
		Anomalies: s.history.AnomaliesInRange(window),
		Forecast:  s.forecast(ctx, settings),
		Quality:   s.quality(ctx, settings, startedAt, now),
	}
	if status.Metrics == nil {
		status.Metrics = types.NewMetricSnapshot(nil, now)
	}
	return status, nil
}

func (s *Scheduler) forecast(ctx context.Context, settings config.MonitoringSettings) *types.Forecast {
	if s.predictor == nil {
		return nil
	}
	callCtx, cancel := context.WithTimeout(ctx, settings.DataSourceTimeout)
	defer cancel()

	type result struct {
		forecast *types.Forecast
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		f, err := s.predictor.CurrentForecast(callCtx)
		ch <- result{f, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			s.logger.Debug("Monitor: forecast unavailable", "error", r.err)
			return nil
		}
		return r.forecast
	case <-callCtx.Done():
		s.logger.Debug("Monitor: forecast timed out", "error", callCtx.Err())
		return nil
	}
}

// quality rates data collection by how many sampling passes in the quality
// window produced data, scaled by how many configured metrics the latest
// snapshot covers. A registry reporting no connected devices means poor.
func (s *Scheduler) quality(ctx context.Context, settings config.MonitoringSettings, startedAt, now time.Time) types.QualityReport {
	report := types.QualityReport{ConnectedDevices: -1}

	window := settings.QualityWindow
	if !startedAt.IsZero() && now.Sub(startedAt) < window {
		window = now.Sub(startedAt)
	}
	expected := int(window/settings.SamplingInterval) + 1
	passes := len(s.history.SnapshotsInRange(types.TimeRange{From: now.Add(-window - settings.SamplingInterval)}))
	density := float64(passes) / float64(expected)
	if density > 1 {
		density = 1
	}

	if snap := s.history.LatestSnapshot(); snap != nil && len(settings.Metrics) > 0 {
		covered := 0
		for _, m := range settings.Metrics {
			if _, ok := snap.Value(m); ok {
				covered++
			}
		}
		density *= float64(covered) / float64(len(settings.Metrics))
	} else {
		density = 0
	}
	report.SampleDensity = density

	if s.registry != nil {
		devices, err := s.registry.ConnectedDevices(ctx)
		if err != nil {
			s.logger.Debug("Monitor: device registry unavailable", "error", err)
		} else {
			report.ConnectedDevices = len(devices)
		}
	}

	switch {
	case report.ConnectedDevices == 0:
		report.Level = types.QualityPoor
	case density >= excellentDensity:
		report.Level = types.QualityExcellent
	case density >= goodDensity:
		report.Level = types.QualityGood
	case density >= fairDensity:
		report.Level = types.QualityFair
	default:
		report.Level = types.QualityPoor
	}
	return report
}

// GetHealthMetrics returns snapshots within r
func (s *Scheduler) GetHealthMetrics(r types.TimeRange) []*types.MetricSnapshot {
	return s.history.SnapshotsInRange(r)
}

// GetSamples returns raw samples within r
func (s *Scheduler) GetSamples(r types.TimeRange) []types.HealthSample {
	return s.history.SamplesInRange(r)
}

// GetAnomalies returns anomalies within r
func (s *Scheduler) GetAnomalies(r types.TimeRange) []types.Anomaly {
	return s.history.AnomaliesInRange(r)
}

// GetAlerts returns alerts within r
func (s *Scheduler) GetAlerts(r types.TimeRange) []types.Alert {
	return s.history.AlertsInRange(r)
}

// AcknowledgeAlert closes an alert. Unknown ids return types.ErrAlertNotFound.
func (s *Scheduler) AcknowledgeAlert(id string) error {
	return s.alerts.Acknowledge(id)
}

// GetMonitoringStats returns a copy of the counters
func (s *Scheduler) GetMonitoringStats() types.MonitoringStats {
	return s.stats.snapshot()
}

// ForceIntervention starts an intervention of the given kind regardless of
// severity. It returns types.ErrNotMonitoring unless monitoring is active.
func (s *Scheduler) ForceIntervention(ctx context.Context, kind types.InterventionKind) (*types.Intervention, error) {
	if s.State() != types.StateActive {
		return nil, types.ErrNotMonitoring
	}
	iv, err := s.interventions.ForceIntervention(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to force intervention: %w", err)
	}
	s.stats.interventions.Add(1)
	return iv, nil
}

// GetInterventionStatus returns the adaptation state
func (s *Scheduler) GetInterventionStatus() types.AdaptationState {
	return s.interventions.Status()
}

// InterventionHistory returns the newest limit completed interventions
func (s *Scheduler) InterventionHistory(limit int) []types.Intervention {
	return s.interventions.History(limit)
}

// ReportInterventionOutcome completes a pending intervention
func (s *Scheduler) ReportInterventionOutcome(id string, outcome types.InterventionOutcome) error {
	return s.interventions.ReportOutcome(id, outcome)
}
