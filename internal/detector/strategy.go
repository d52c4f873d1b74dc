package detector

import (
	"fmt"
	"math"
	"sync"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Score is a strategy's verdict on a single value
type Score struct {
	Severity      types.Severity
	ExpectedRange types.Range
}

// ScoringStrategy classifies a value for a metric. It returns false when the
// value is within its expected range.
//
// Implementations must be safe for concurrent use.
type ScoringStrategy interface {
	Name() string
	Score(value float64, metric types.MetricKind) (Score, bool)
}

// Multiples controls how many units outside the expected range each severity
// starts at. A value outside the range by less than Medium units is low severity.
type Multiples struct {
	Medium   float64 `yaml:"medium"`
	High     float64 `yaml:"high"`
	Critical float64 `yaml:"critical"`
}

// DefaultMultiples returns the 1x / 1.5x / 2x escalation ladder
func DefaultMultiples() Multiples {
	return Multiples{Medium: 1.0, High: 1.5, Critical: 2.0}
}

// Validate checks that the ladder is positive and strictly increasing
func (m Multiples) Validate() error {
	if m.Medium <= 0 {
		return fmt.Errorf("medium multiple must be positive, got %v", m.Medium)
	}
	if m.High <= m.Medium || m.Critical <= m.High {
		return fmt.Errorf("multiples must increase (medium=%v high=%v critical=%v)", m.Medium, m.High, m.Critical)
	}
	return nil
}

// classify maps an excess measured in units to a severity. Monotonic in excess.
func (m Multiples) classify(excess float64) types.Severity {
	switch {
	case excess >= m.Critical:
		return types.SeverityCritical
	case excess >= m.High:
		return types.SeverityHigh
	case excess >= m.Medium:
		return types.SeverityMedium
	}
	return types.SeverityLow
}

// Bound is the expected range of a metric and the distance that counts as one
// unit of excess when scoring an out-of-range value
type Bound struct {
	Range types.Range
	Scale float64
}

// DefaultBounds returns resting adult bounds per metric. Steps and calories are
// activity counters without a physiological range and are never scored.
func DefaultBounds() map[types.MetricKind]Bound {
	return map[types.MetricKind]Bound{
		types.MetricHeartRate:        {Range: types.Range{Low: 60, High: 100}, Scale: 15},
		types.MetricSystolic:         {Range: types.Range{Low: 90, High: 140}, Scale: 15},
		types.MetricDiastolic:        {Range: types.Range{Low: 60, High: 90}, Scale: 10},
		types.MetricOxygenSaturation: {Range: types.Range{Low: 95, High: 100}, Scale: 3},
		types.MetricTemperature:      {Range: types.Range{Low: 36.1, High: 37.8}, Scale: 0.5},
		types.MetricSleepQuality:     {Range: types.Range{Low: 0.5, High: 1}, Scale: 0.15},
		types.MetricStressLevel:      {Range: types.Range{Low: 0, High: 0.8}, Scale: 0.1},
	}
}

// StaticStrategy scores values against fixed per-metric bounds
type StaticStrategy struct {
	bounds    map[types.MetricKind]Bound
	multiples Multiples
}

// NewStaticStrategy creates a static strategy. Nil bounds use DefaultBounds and a
// zero Multiples uses DefaultMultiples.
func NewStaticStrategy(bounds map[types.MetricKind]Bound, multiples Multiples) *StaticStrategy {
	if bounds == nil {
		bounds = DefaultBounds()
	}
	if multiples == (Multiples{}) {
		multiples = DefaultMultiples()
	}
	copied := make(map[types.MetricKind]Bound, len(bounds))
	for k, v := range bounds {
		copied[k] = v
	}
	return &StaticStrategy{bounds: copied, multiples: multiples}
}

// Name implements ScoringStrategy
func (s *StaticStrategy) Name() string { return "static" }

// Bounds returns the bound configured for a metric
func (s *StaticStrategy) Bounds(metric types.MetricKind) (Bound, bool) {
	b, ok := s.bounds[metric]
	return b, ok
}

// Score implements ScoringStrategy
func (s *StaticStrategy) Score(value float64, metric types.MetricKind) (Score, bool) {
	b, ok := s.bounds[metric]
	if !ok {
		return Score{}, false
	}
	dist := b.Range.Distance(value)
	if dist == 0 {
		return Score{ExpectedRange: b.Range}, false
	}
	scale := b.Scale
	if scale <= 0 {
		scale = 1
	}
	return Score{
		Severity:      s.multiples.classify(dist / scale),
		ExpectedRange: b.Range,
	}, true
}

// BaselineConfig controls the adaptive baseline strategy
type BaselineConfig struct {
	// Alpha is the EWMA smoothing factor (0,1]
	// Default: 0.1
	Alpha float64 `yaml:"alpha"`

	// Sigmas is the half-width of the expected range in standard deviations
	// Default: 2.0
	Sigmas float64 `yaml:"sigmas"`

	// WarmUp is the number of samples per metric before anomalies are reported
	// Default: 10
	WarmUp int `yaml:"warm_up"`

	// MinStdDev keeps the expected range from collapsing on flat signals
	// Default: 1.0
	MinStdDev float64 `yaml:"min_std_dev"`
}

// DefaultBaselineConfig returns default baseline settings
func DefaultBaselineConfig() BaselineConfig {
	return BaselineConfig{Alpha: 0.1, Sigmas: 2.0, WarmUp: 10, MinStdDev: 1.0}
}

type baseline struct {
	mean  float64
	vari  float64
	count int
}

// BaselineStrategy learns an exponentially weighted mean and variance per metric
// and scores values by how many standard deviations they fall outside
// mean ± Sigmas·σ. Every scored value also updates the baseline.
type BaselineStrategy struct {
	mu        sync.Mutex
	cfg       BaselineConfig
	multiples Multiples
	baselines map[types.MetricKind]*baseline
}

// NewBaselineStrategy creates a baseline strategy, filling zero config fields with defaults
func NewBaselineStrategy(cfg BaselineConfig, multiples Multiples) *BaselineStrategy {
	def := DefaultBaselineConfig()
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = def.Alpha
	}
	if cfg.Sigmas <= 0 {
		cfg.Sigmas = def.Sigmas
	}
	if cfg.WarmUp < 0 {
		cfg.WarmUp = def.WarmUp
	}
	if cfg.MinStdDev <= 0 {
		cfg.MinStdDev = def.MinStdDev
	}
	if multiples == (Multiples{}) {
		multiples = DefaultMultiples()
	}
	return &BaselineStrategy{
		cfg:       cfg,
		multiples: multiples,
		baselines: make(map[types.MetricKind]*baseline),
	}
}

// Name implements ScoringStrategy
func (b *BaselineStrategy) Name() string { return "baseline" }

// Score implements ScoringStrategy
func (b *BaselineStrategy) Score(value float64, metric types.MetricKind) (Score, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bl, ok := b.baselines[metric]
	if !ok {
		b.baselines[metric] = &baseline{mean: value, count: 1}
		return Score{ExpectedRange: types.Range{Low: value, High: value}}, false
	}

	sd := math.Max(math.Sqrt(bl.vari), b.cfg.MinStdDev)
	expected := types.Range{Low: bl.mean - b.cfg.Sigmas*sd, High: bl.mean + b.cfg.Sigmas*sd}
	warm := bl.count >= b.cfg.WarmUp

	// Update after scoring so an outlier doesn't widen its own range
	diff := value - bl.mean
	incr := b.cfg.Alpha * diff
	bl.mean += incr
	bl.vari = (1 - b.cfg.Alpha) * (bl.vari + diff*incr)
	bl.count++

	dist := expected.Distance(value)
	if !warm || dist == 0 {
		return Score{ExpectedRange: expected}, false
	}
	return Score{
		Severity:      b.multiples.classify(dist / sd),
		ExpectedRange: expected,
	}, true
}
