package sources

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// profile describes how a simulated metric wanders
type profile struct {
	baseline float64
	noise    float64
	min, max float64
	spike    float64 // offset applied to a spike reading
	integral bool    // counters are whole numbers
}

var defaultProfiles = map[types.MetricKind]profile{
	types.MetricHeartRate:        {baseline: 72, noise: 2, min: 58, max: 95, spike: 55},
	types.MetricSystolic:         {baseline: 118, noise: 2, min: 100, max: 135, spike: 45},
	types.MetricDiastolic:        {baseline: 76, noise: 1.5, min: 62, max: 88, spike: 25},
	types.MetricOxygenSaturation: {baseline: 97.5, noise: 0.3, min: 95.5, max: 99.5, spike: -10},
	types.MetricTemperature:      {baseline: 36.7, noise: 0.05, min: 36.3, max: 37.3, spike: 2.2},
	types.MetricSteps:            {baseline: 40, noise: 15, min: 0, max: 200, integral: true},
	types.MetricCalories:         {baseline: 1.5, noise: 0.3, min: 0.5, max: 5},
	types.MetricSleepQuality:     {baseline: 0.8, noise: 0.02, min: 0.6, max: 0.95, spike: -0.5},
	types.MetricStressLevel:      {baseline: 0.3, noise: 0.03, min: 0.1, max: 0.55, spike: 0.45},
}

// SimulatedSource generates plausible vitals as a mean-reverting random walk
// with occasional out-of-range spikes. The same seed produces the same
// sequence of values for the same sequence of calls.
type SimulatedSource struct {
	mu        sync.Mutex
	rng       *rand.Rand
	current   map[types.MetricKind]float64
	last      map[types.MetricKind]time.Time
	scheduled map[types.MetricKind][]float64

	spikeProbability float64
	sampleInterval   time.Duration
	deviceID         string
	now              func() time.Time
}

// SimOption configures a SimulatedSource
type SimOption func(*SimulatedSource)

// WithSpikeProbability sets the chance that a reading is a spike
func WithSpikeProbability(p float64) SimOption {
	return func(s *SimulatedSource) { s.spikeProbability = p }
}

// WithSampleInterval sets the spacing between generated readings
func WithSampleInterval(d time.Duration) SimOption {
	return func(s *SimulatedSource) {
		if d > 0 {
			s.sampleInterval = d
		}
	}
}

// WithDeviceID tags generated samples with a device id
func WithDeviceID(id string) SimOption {
	return func(s *SimulatedSource) { s.deviceID = id }
}

// WithSimClock sets the time source
func WithSimClock(now func() time.Time) SimOption {
	return func(s *SimulatedSource) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSimulatedSource creates a simulated data source.
// A zero seed picks a time-based seed.
func NewSimulatedSource(seed int64, opts ...SimOption) *SimulatedSource {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	s := &SimulatedSource{
		rng:            rand.New(rand.NewSource(seed)),
		current:        make(map[types.MetricKind]float64),
		last:           make(map[types.MetricKind]time.Time),
		scheduled:      make(map[types.MetricKind][]float64),
		sampleInterval: 5 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for metric, p := range defaultProfiles {
		s.current[metric] = p.baseline
	}
	return s
}

// ScheduleSpike queues values returned verbatim by the next readings of a metric
func (s *SimulatedSource) ScheduleSpike(metric types.MetricKind, values ...float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled[metric] = append(s.scheduled[metric], values...)
}

// FetchRecentSamples implements DataSource. It returns the readings generated
// since the previous fetch of the metric, at most limit and at least one.
func (s *SimulatedSource) FetchRecentSamples(ctx context.Context, metric types.MetricKind, limit int) ([]types.HealthSample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := defaultProfiles[metric]
	if !ok {
		return nil, fmt.Errorf("simulated source has no profile for metric %q", metric)
	}
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	n := limit
	if last, seen := s.last[metric]; seen {
		n = int(now.Sub(last) / s.sampleInterval)
	}
	n = max(1, min(n, limit))
	s.last[metric] = now

	samples := make([]types.HealthSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, types.HealthSample{
			Timestamp: now.Add(-time.Duration(n-1-i) * s.sampleInterval),
			Metric:    metric,
			Value:     s.nextLocked(metric, p),
			DeviceID:  s.deviceID,
		})
	}
	return samples, nil
}

func (s *SimulatedSource) nextLocked(metric types.MetricKind, p profile) float64 {
	if queued := s.scheduled[metric]; len(queued) > 0 {
		s.scheduled[metric] = queued[1:]
		return queued[0]
	}

	v := s.current[metric]
	v += (p.baseline-v)*0.1 + s.rng.NormFloat64()*p.noise
	v = math.Max(p.min, math.Min(p.max, v))
	s.current[metric] = v

	out := v
	if p.spike != 0 && s.spikeProbability > 0 && s.rng.Float64() < s.spikeProbability {
		out += p.spike
	}
	if p.integral {
		out = math.Round(out)
	}
	return out
}
