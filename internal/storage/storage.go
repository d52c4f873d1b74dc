package storage

import (
	"context"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/storage/sqlite"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Storage defines the interface for the persistence collaborator.
// The in-memory history is authoritative; this only keeps periodic
// copies of the counters and the adaptation level across restarts.
type Storage interface {
	// Monitoring stats
	SaveStats(ctx context.Context, stats types.MonitoringStats, at time.Time) error
	StatsHistory(ctx context.Context, limit int) ([]types.StatsSnapshot, error)

	// Adaptation
	SaveAdaptation(ctx context.Context, snap types.AdaptationSnapshot) error
	LatestAdaptation(ctx context.Context) (types.AdaptationSnapshot, bool, error)

	// Lifecycle
	Close() error
}

// Config holds database configuration
type Config struct {
	// Path is the SQLite database file path
	// Default: "healthmon.db"
	// Special value ":memory:" creates an in-memory database (useful for tests)
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Path: "healthmon.db",
	}
}

// NewStorage creates a new SQLite storage backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	// Default to standard path if not specified
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	return sqlite.New(ctx, cfg.Path)
}
