package sources

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/history"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

var epoch = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time          { return c.now }
func (c *stepClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func TestSimulatedSource_Deterministic(t *testing.T) {
	clock := &stepClock{now: epoch}
	a := NewSimulatedSource(42, WithSimClock(clock.Now), WithSpikeProbability(0.1))
	b := NewSimulatedSource(42, WithSimClock(clock.Now), WithSpikeProbability(0.1))

	for _, metric := range types.AllMetrics() {
		sa, err := a.FetchRecentSamples(context.Background(), metric, 10)
		require.NoError(t, err)
		sb, err := b.FetchRecentSamples(context.Background(), metric, 10)
		require.NoError(t, err)
		assert.Equal(t, sa, sb, metric)
	}
}

func TestSimulatedSource_StaysInProfileWithoutSpikes(t *testing.T) {
	clock := &stepClock{now: epoch}
	src := NewSimulatedSource(7, WithSimClock(clock.Now))

	for i := 0; i < 50; i++ {
		clock.Advance(time.Minute)
		for metric, p := range defaultProfiles {
			samples, err := src.FetchRecentSamples(context.Background(), metric, 10)
			require.NoError(t, err)
			for _, s := range samples {
				assert.GreaterOrEqual(t, s.Value, p.min, metric)
				assert.LessOrEqual(t, s.Value, p.max, metric)
			}
		}
	}
}

func TestSimulatedSource_SpikesLeaveRange(t *testing.T) {
	src := NewSimulatedSource(1, WithSpikeProbability(1))
	samples, err := src.FetchRecentSamples(context.Background(), types.MetricHeartRate, 5)
	require.NoError(t, err)
	for _, s := range samples {
		assert.Greater(t, s.Value, 100.0)
	}
}

func TestSimulatedSource_ReturnsReadingsSinceLastFetch(t *testing.T) {
	clock := &stepClock{now: epoch}
	src := NewSimulatedSource(3, WithSimClock(clock.Now), WithSampleInterval(5*time.Second), WithDeviceID("wrist-1"))
	ctx := context.Background()

	first, err := src.FetchRecentSamples(ctx, types.MetricTemperature, 10)
	require.NoError(t, err)
	require.Len(t, first, 10)
	assert.Equal(t, epoch, first[9].Timestamp)
	assert.Equal(t, epoch.Add(-45*time.Second), first[0].Timestamp)
	assert.Equal(t, "wrist-1", first[0].DeviceID)

	again, err := src.FetchRecentSamples(ctx, types.MetricTemperature, 10)
	require.NoError(t, err)
	assert.Len(t, again, 1, "an immediate refetch still returns the current reading")

	clock.Advance(30 * time.Second)
	later, err := src.FetchRecentSamples(ctx, types.MetricTemperature, 10)
	require.NoError(t, err)
	assert.Len(t, later, 6)

	clock.Advance(time.Hour)
	capped, err := src.FetchRecentSamples(ctx, types.MetricTemperature, 10)
	require.NoError(t, err)
	assert.Len(t, capped, 10)
}

func TestSimulatedSource_ScheduledSpike(t *testing.T) {
	src := NewSimulatedSource(5)
	src.ScheduleSpike(types.MetricHeartRate, 130, 132)

	samples, err := src.FetchRecentSamples(context.Background(), types.MetricHeartRate, 3)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, 130.0, samples[0].Value)
	assert.Equal(t, 132.0, samples[1].Value)
	assert.Less(t, samples[2].Value, 100.0)
}

func TestSimulatedSource_Errors(t *testing.T) {
	src := NewSimulatedSource(5)

	_, err := src.FetchRecentSamples(context.Background(), "glucose", 3)
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.FetchRecentSamples(ctx, types.MetricHeartRate, 3)
	assert.ErrorIs(t, err, context.Canceled)

	samples, err := src.FetchRecentSamples(context.Background(), types.MetricHeartRate, 0)
	assert.NoError(t, err)
	assert.Empty(t, samples)
}

func TestTrendForecaster(t *testing.T) {
	store := history.NewStore(history.DefaultConfig())
	for i := 0; i <= 10; i++ {
		at := epoch.Add(time.Duration(i-10) * time.Minute)
		store.AppendSamples(
			types.HealthSample{Timestamp: at, Metric: types.MetricHeartRate, Value: 60 + 2*float64(i)},
			types.HealthSample{Timestamp: at, Metric: types.MetricOxygenSaturation, Value: 97},
		)
	}
	store.AppendSamples(types.HealthSample{Timestamp: epoch, Metric: types.MetricTemperature, Value: 36.6})
	// Unreadable values do not bend the trend
	store.AppendSamples(types.HealthSample{Timestamp: epoch.Add(-30 * time.Second), Metric: types.MetricHeartRate, Value: math.NaN()})

	f := NewTrendForecaster(store, detector.New(nil),
		WithForecastClock(func() time.Time { return epoch }),
		WithHorizon(30*time.Minute),
	)
	forecast, err := f.CurrentForecast(context.Background())
	require.NoError(t, err)

	assert.Equal(t, epoch, forecast.GeneratedAt)
	assert.Equal(t, 30*time.Minute, forecast.Horizon)
	assert.InDelta(t, 140, forecast.Predictions[types.MetricHeartRate], 1e-6)
	assert.InDelta(t, 97, forecast.Predictions[types.MetricOxygenSaturation], 1e-6)
	_, hasTemp := forecast.Predictions[types.MetricTemperature]
	assert.False(t, hasTemp, "a single sample is not a trend")
	assert.Equal(t, 1.0, forecast.RiskScore, "rising heart rate is predicted critical")
}

func TestTrendForecaster_InsufficientData(t *testing.T) {
	store := history.NewStore(history.DefaultConfig())
	f := NewTrendForecaster(store, nil, WithForecastClock(func() time.Time { return epoch }))

	_, err := f.CurrentForecast(context.Background())
	assert.True(t, errors.Is(err, ErrInsufficientData))

	// Samples outside the window are ignored
	store.AppendSamples(
		types.HealthSample{Timestamp: epoch.Add(-2 * time.Hour), Metric: types.MetricHeartRate, Value: 70},
		types.HealthSample{Timestamp: epoch.Add(-90 * time.Minute), Metric: types.MetricHeartRate, Value: 72},
	)
	_, err = f.CurrentForecast(context.Background())
	assert.True(t, errors.Is(err, ErrInsufficientData))
}

func TestExtrapolateNeedsSpread(t *testing.T) {
	same := []types.HealthSample{
		{Timestamp: epoch, Value: 1},
		{Timestamp: epoch, Value: 2},
	}
	_, ok := extrapolate(same, epoch.Add(time.Minute))
	assert.False(t, ok)
}

func TestStaticRegistry(t *testing.T) {
	reg := NewStaticRegistry(
		types.Device{ID: "b-chest", Name: "Chest strap"},
		types.Device{ID: "a-wrist", Name: "Wrist sensor"},
	)
	ctx := context.Background()

	devices, err := reg.ConnectedDevices(ctx)
	require.NoError(t, err)
	require.Len(t, devices, 2)
	assert.Equal(t, "a-wrist", devices[0].ID)
	assert.True(t, devices[0].Connected)
	assert.False(t, devices[0].LastSeen.IsZero())

	require.NoError(t, reg.SetConnected("b-chest", false))
	devices, err = reg.ConnectedDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, 1)
	assert.Len(t, reg.All(), 2)

	assert.Error(t, reg.SetConnected("missing", true))
}
