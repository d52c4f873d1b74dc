// Package sources holds the external collaborators the monitoring scheduler
// pulls from: the health data source, the prediction engine and the device
// registry, plus the in-process implementations healthmon ships with.
package sources

import (
	"context"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// DataSource provides recent physiological samples.
// Implementations may return partial or empty data and must honour ctx.
type DataSource interface {
	FetchRecentSamples(ctx context.Context, metric types.MetricKind, limit int) ([]types.HealthSample, error)
}

// PredictionEngine provides the current forecast
type PredictionEngine interface {
	CurrentForecast(ctx context.Context) (*types.Forecast, error)
}

// DeviceRegistry reports which sensors are connected
type DeviceRegistry interface {
	ConnectedDevices(ctx context.Context) ([]types.Device, error)
}
