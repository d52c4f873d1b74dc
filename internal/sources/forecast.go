package sources

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// ErrInsufficientData is returned when there is not enough history to forecast
var ErrInsufficientData = errors.New("not enough samples to forecast")

// SampleReader is the part of the history store the forecaster reads
type SampleReader interface {
	SamplesInRange(r types.TimeRange) []types.HealthSample
}

// Scorer classifies a single value
type Scorer interface {
	Score(value float64, metric types.MetricKind) (detector.Score, bool)
}

// TrendForecaster predicts each metric by extrapolating a least-squares line
// fitted to the recent history. The risk score is the worst predicted
// severity on a 0..1 scale.
type TrendForecaster struct {
	history SampleReader
	scorer  Scorer
	window  time.Duration
	horizon time.Duration
	now     func() time.Time
}

// ForecastOption configures a TrendForecaster
type ForecastOption func(*TrendForecaster)

// WithWindow sets how much history is fitted
func WithWindow(d time.Duration) ForecastOption {
	return func(f *TrendForecaster) {
		if d > 0 {
			f.window = d
		}
	}
}

// WithHorizon sets how far ahead predictions reach
func WithHorizon(d time.Duration) ForecastOption {
	return func(f *TrendForecaster) {
		if d > 0 {
			f.horizon = d
		}
	}
}

// WithForecastClock sets the time source
func WithForecastClock(now func() time.Time) ForecastOption {
	return func(f *TrendForecaster) {
		if now != nil {
			f.now = now
		}
	}
}

// NewTrendForecaster creates a forecaster over a sample history
func NewTrendForecaster(history SampleReader, scorer Scorer, opts ...ForecastOption) *TrendForecaster {
	f := &TrendForecaster{
		history: history,
		scorer:  scorer,
		window:  15 * time.Minute,
		horizon: 30 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CurrentForecast implements PredictionEngine
func (f *TrendForecaster) CurrentForecast(ctx context.Context) (*types.Forecast, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	now := f.now()
	samples := f.history.SamplesInRange(types.TimeRange{From: now.Add(-f.window), To: now})

	byMetric := make(map[types.MetricKind][]types.HealthSample)
	for _, s := range samples {
		if math.IsNaN(s.Value) || math.IsInf(s.Value, 0) {
			continue
		}
		byMetric[s.Metric] = append(byMetric[s.Metric], s)
	}

	forecast := &types.Forecast{
		GeneratedAt: now,
		Horizon:     f.horizon,
		Predictions: make(map[types.MetricKind]float64),
	}
	target := now.Add(f.horizon)
	for metric, series := range byMetric {
		predicted, ok := extrapolate(series, target)
		if !ok {
			continue
		}
		forecast.Predictions[metric] = predicted
		if f.scorer == nil {
			continue
		}
		if score, anomalous := f.scorer.Score(predicted, metric); anomalous {
			if risk := float64(score.Severity.Rank()) / 4; risk > forecast.RiskScore {
				forecast.RiskScore = risk
			}
		}
	}
	if len(forecast.Predictions) == 0 {
		return nil, ErrInsufficientData
	}
	return forecast, nil
}

// extrapolate fits value = a + b*t by least squares and evaluates it at target.
// It needs at least two samples spread over time.
func extrapolate(series []types.HealthSample, target time.Time) (float64, bool) {
	if len(series) < 2 {
		return 0, false
	}
	origin := series[0].Timestamp
	var sumT, sumV, sumTT, sumTV float64
	for _, s := range series {
		t := s.Timestamp.Sub(origin).Seconds()
		sumT += t
		sumV += s.Value
		sumTT += t * t
		sumTV += t * s.Value
	}
	n := float64(len(series))
	denom := n*sumTT - sumT*sumT
	if denom == 0 {
		return 0, false
	}
	slope := (n*sumTV - sumT*sumV) / denom
	intercept := (sumV - slope*sumT) / n
	return intercept + slope*target.Sub(origin).Seconds(), true
}
