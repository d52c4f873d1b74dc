package sqlite

const schema = `
-- Timestamps are stored as unix nanoseconds

-- Periodic copies of the monitoring counters
CREATE TABLE IF NOT EXISTS monitoring_stats (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at INTEGER NOT NULL,
    samples_collected INTEGER NOT NULL DEFAULT 0,
    anomalies_detected INTEGER NOT NULL DEFAULT 0,
    alerts_triggered INTEGER NOT NULL DEFAULT 0,
    interventions_started INTEGER NOT NULL DEFAULT 0,
    sampling_errors INTEGER NOT NULL DEFAULT 0,
    detection_errors INTEGER NOT NULL DEFAULT 0,
    alert_errors INTEGER NOT NULL DEFAULT 0,
    background_errors INTEGER NOT NULL DEFAULT 0,
    last_update_time INTEGER
);

CREATE INDEX IF NOT EXISTS idx_monitoring_stats_recorded_at ON monitoring_stats(recorded_at);

-- Adaptation level snapshots, restored on start
CREATE TABLE IF NOT EXISTS adaptation_snapshots (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    recorded_at INTEGER NOT NULL,
    level REAL NOT NULL CHECK(level >= 0 AND level <= 1),
    success_rate REAL NOT NULL DEFAULT 0,
    outcomes INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_adaptation_snapshots_recorded_at ON adaptation_snapshots(recorded_at);
`
