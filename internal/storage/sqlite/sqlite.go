package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStorage persists monitoring stats and adaptation snapshots in SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path and initializes the schema.
// The special path ":memory:" opens an in-memory database.
func New(ctx context.Context, path string) (*SQLiteStorage, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = "file:" + path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// SaveStats stores a copy of the monitoring counters
func (s *SQLiteStorage) SaveStats(ctx context.Context, stats types.MonitoringStats, at time.Time) error {
	var lastUpdate sql.NullInt64
	if !stats.LastUpdateTime.IsZero() {
		lastUpdate = sql.NullInt64{Int64: stats.LastUpdateTime.UnixNano(), Valid: true}
	}

	query := `
		INSERT INTO monitoring_stats (
			recorded_at, samples_collected, anomalies_detected, alerts_triggered,
			interventions_started, sampling_errors, detection_errors,
			alert_errors, background_errors, last_update_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		at.UnixNano(),
		stats.SamplesCollected,
		stats.AnomaliesDetected,
		stats.AlertsTriggered,
		stats.InterventionsStarted,
		stats.SamplingErrors,
		stats.DetectionErrors,
		stats.AlertErrors,
		stats.BackgroundErrors,
		lastUpdate,
	)
	if err != nil {
		return fmt.Errorf("failed to save monitoring stats: %w", err)
	}
	return nil
}

// StatsHistory returns the most recent stats snapshots, newest first.
// A limit <= 0 returns every snapshot.
func (s *SQLiteStorage) StatsHistory(ctx context.Context, limit int) ([]types.StatsSnapshot, error) {
	query := `
		SELECT recorded_at, samples_collected, anomalies_detected, alerts_triggered,
		       interventions_started, sampling_errors, detection_errors,
		       alert_errors, background_errors, last_update_time
		FROM monitoring_stats
		ORDER BY recorded_at DESC, id DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitoring stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.StatsSnapshot
	for rows.Next() {
		var snap types.StatsSnapshot
		var recordedAt int64
		var lastUpdate sql.NullInt64
		err := rows.Scan(
			&recordedAt,
			&snap.Stats.SamplesCollected,
			&snap.Stats.AnomaliesDetected,
			&snap.Stats.AlertsTriggered,
			&snap.Stats.InterventionsStarted,
			&snap.Stats.SamplingErrors,
			&snap.Stats.DetectionErrors,
			&snap.Stats.AlertErrors,
			&snap.Stats.BackgroundErrors,
			&lastUpdate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitoring stats: %w", err)
		}
		snap.RecordedAt = time.Unix(0, recordedAt).UTC()
		if lastUpdate.Valid {
			snap.Stats.LastUpdateTime = time.Unix(0, lastUpdate.Int64).UTC()
		}
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating monitoring stats rows: %w", err)
	}
	return out, nil
}

// SaveAdaptation stores an adaptation snapshot
func (s *SQLiteStorage) SaveAdaptation(ctx context.Context, snap types.AdaptationSnapshot) error {
	if snap.Level < 0 || snap.Level > 1 {
		return fmt.Errorf("adaptation level must be between 0 and 1, got %v", snap.Level)
	}
	if snap.RecordedAt.IsZero() {
		snap.RecordedAt = time.Now()
	}

	query := `
		INSERT INTO adaptation_snapshots (recorded_at, level, success_rate, outcomes)
		VALUES (?, ?, ?, ?)
	`
	if _, err := s.db.ExecContext(ctx, query, snap.RecordedAt.UnixNano(), snap.Level, snap.SuccessRate, snap.Outcomes); err != nil {
		return fmt.Errorf("failed to save adaptation snapshot: %w", err)
	}
	return nil
}

// LatestAdaptation returns the most recent adaptation snapshot.
// The bool is false when nothing has been saved yet.
func (s *SQLiteStorage) LatestAdaptation(ctx context.Context) (types.AdaptationSnapshot, bool, error) {
	query := `
		SELECT recorded_at, level, success_rate, outcomes
		FROM adaptation_snapshots
		ORDER BY recorded_at DESC, id DESC
		LIMIT 1
	`
	var snap types.AdaptationSnapshot
	var recordedAt int64
	err := s.db.QueryRowContext(ctx, query).Scan(&recordedAt, &snap.Level, &snap.SuccessRate, &snap.Outcomes)
	if err == sql.ErrNoRows {
		return types.AdaptationSnapshot{}, false, nil
	}
	if err != nil {
		return types.AdaptationSnapshot{}, false, fmt.Errorf("failed to query adaptation snapshot: %w", err)
	}
	snap.RecordedAt = time.Unix(0, recordedAt).UTC()
	return snap, true, nil
}
