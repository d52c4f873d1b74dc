package detector

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// physicalLimits are the values a working sensor can physically report.
// Anything outside is a data quality problem, not a physiological one.
var physicalLimits = map[types.MetricKind]types.Range{
	types.MetricHeartRate:        {Low: 0, High: 300},
	types.MetricSystolic:         {Low: 0, High: 300},
	types.MetricDiastolic:        {Low: 0, High: 250},
	types.MetricOxygenSaturation: {Low: 0, High: 100},
	types.MetricTemperature:      {Low: 20, High: 45},
	types.MetricSteps:            {Low: 0, High: math.MaxFloat64},
	types.MetricCalories:         {Low: 0, High: math.MaxFloat64},
	types.MetricSleepQuality:     {Low: 0, High: 1},
	types.MetricStressLevel:      {Low: 0, High: 1},
}

// PhysicalLimits returns the plausible sensor range for a metric
func PhysicalLimits(metric types.MetricKind) (types.Range, bool) {
	r, ok := physicalLimits[metric]
	return r, ok
}

// Detector classifies health samples into anomalies using a pluggable
// scoring strategy. It holds no history of its own.
type Detector struct {
	strategy ScoringStrategy
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Detector
type Option func(*Detector)

// WithLogger sets the detector logger
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithClock overrides the timestamp source (useful for testing)
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a detector. A nil strategy uses the static default bounds.
func New(strategy ScoringStrategy, opts ...Option) *Detector {
	if strategy == nil {
		strategy = NewStaticStrategy(nil, Multiples{})
	}
	d := &Detector{
		strategy: strategy,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With("component", "detector")
	return d
}

// Strategy returns the scoring strategy in use
func (d *Detector) Strategy() ScoringStrategy {
	return d.strategy
}

// Detect scores each sample and returns the anomalies found. An empty input
// yields an empty result. A strategy failure on one sample is collected into
// the returned error while the remaining samples are still scored, so callers
// may receive both anomalies and an error.
func (d *Detector) Detect(samples []types.HealthSample) ([]types.Anomaly, error) {
	if len(samples) == 0 {
		return nil, nil
	}

	var anomalies []types.Anomaly
	var errs []error
	for _, s := range samples {
		anomaly, found, err := d.detectOne(s)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if found {
			anomalies = append(anomalies, anomaly)
		}
	}

	if len(errs) > 0 {
		d.logger.Warn("Detector: scoring failed for some samples",
			"failed", len(errs), "total", len(samples))
	}
	return anomalies, errors.Join(errs...)
}

// Score classifies a single value without creating an anomaly. It reports
// data quality problems the same way Detect does.
func (d *Detector) Score(value float64, metric types.MetricKind) (Score, bool) {
	if r, bad := dataQualityRange(value, metric); bad {
		return Score{Severity: types.SeverityCritical, ExpectedRange: r}, true
	}
	return d.strategy.Score(value, metric)
}

func (d *Detector) detectOne(s types.HealthSample) (anomaly types.Anomaly, found bool, err error) {
	if !s.Metric.IsValid() {
		return types.Anomaly{}, false, fmt.Errorf("invalid metric %q in sample", s.Metric)
	}

	ts := s.Timestamp
	if ts.IsZero() {
		ts = d.now()
	}

	if r, bad := dataQualityRange(s.Value, s.Metric); bad {
		return types.Anomaly{
			ID:            uuid.New().String(),
			Type:          types.AnomalyDataQuality,
			Metric:        s.Metric,
			Severity:      types.SeverityCritical,
			Value:         s.Value,
			ExpectedRange: r,
			Description:   fmt.Sprintf("implausible %s reading %v (sensor range %.4g-%.4g)", s.Metric, s.Value, r.Low, r.High),
			Timestamp:     ts,
		}, true, nil
	}

	score, anomalous, err := d.safeScore(s)
	if err != nil {
		return types.Anomaly{}, false, err
	}
	if !anomalous {
		return types.Anomaly{}, false, nil
	}
	if !score.Severity.IsValid() {
		return types.Anomaly{}, false, fmt.Errorf("strategy %s returned invalid severity %q for %s", d.strategy.Name(), score.Severity, s.Metric)
	}

	return types.Anomaly{
		ID:            uuid.New().String(),
		Type:          types.AnomalyTypeFor(s.Metric),
		Metric:        s.Metric,
		Severity:      score.Severity,
		Value:         s.Value,
		ExpectedRange: score.ExpectedRange,
		Description:   describe(s, score),
		Timestamp:     ts,
	}, true, nil
}

// safeScore runs the strategy, converting a panic into an error for this sample
func (d *Detector) safeScore(s types.HealthSample) (score Score, anomalous bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("strategy %s panicked scoring %s=%v: %v", d.strategy.Name(), s.Metric, s.Value, r)
		}
	}()
	score, anomalous = d.strategy.Score(s.Value, s.Metric)
	return score, anomalous, nil
}

// dataQualityRange reports whether v cannot be a real reading and returns the
// range it was checked against
func dataQualityRange(v float64, metric types.MetricKind) (types.Range, bool) {
	limits, ok := physicalLimits[metric]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return limits, true
	}
	if !ok {
		return types.Range{}, false
	}
	return limits, !limits.Contains(v)
}

func describe(s types.HealthSample, score Score) string {
	direction := "above"
	if s.Value < score.ExpectedRange.Low {
		direction = "below"
	}
	return fmt.Sprintf("%s %.4g is %s expected range %.4g-%.4g",
		s.Metric, s.Value, direction, score.ExpectedRange.Low, score.ExpectedRange.High)
}
