package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Kind selects one of the store's history lists
type Kind string

const (
	KindSamples   Kind = "samples"
	KindSnapshots Kind = "snapshots"
	KindAnomalies Kind = "anomalies"
	KindAlerts    Kind = "alerts"
)

// Config holds history capacities
type Config struct {
	// MaxDataPoints is the number of raw samples to keep
	// Default: 1000
	MaxDataPoints int `yaml:"max_data_points"`

	// MaxSnapshots is the number of aggregated snapshots to keep
	// Default: 200
	MaxSnapshots int `yaml:"max_snapshots"`

	// MaxAnomalies is the number of anomalies to keep
	// Default: 200
	MaxAnomalies int `yaml:"max_anomalies"`

	// MaxAlerts is the number of alerts to keep
	// Default: 200
	MaxAlerts int `yaml:"max_alerts"`
}

// DefaultConfig returns default history capacities
func DefaultConfig() Config {
	return Config{
		MaxDataPoints: 1000,
		MaxSnapshots:  200,
		MaxAnomalies:  200,
		MaxAlerts:     200,
	}
}

// Validate checks that every capacity is positive and bounded
func (c Config) Validate() error {
	caps := []struct {
		name string
		v    int
	}{
		{"max_data_points", c.MaxDataPoints},
		{"max_snapshots", c.MaxSnapshots},
		{"max_anomalies", c.MaxAnomalies},
		{"max_alerts", c.MaxAlerts},
	}
	for _, c := range caps {
		if c.v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", c.name, c.v)
		}
		if c.v > 100000 {
			return fmt.Errorf("%s too large (maximum 100000), got %d", c.name, c.v)
		}
	}
	return nil
}

// Store is the bounded rolling history shared by every monitoring component.
// It is the only owner of history slices: writers append through its methods and
// readers always receive copies.
type Store struct {
	mu sync.RWMutex

	samples   *ring[types.HealthSample]
	snapshots *ring[*types.MetricSnapshot]
	anomalies *ring[types.Anomaly]
	alerts    *ring[types.Alert]
}

// NewStore creates a store. Non-positive capacities fall back to defaults.
func NewStore(cfg Config) *Store {
	def := DefaultConfig()
	if cfg.MaxDataPoints <= 0 {
		cfg.MaxDataPoints = def.MaxDataPoints
	}
	if cfg.MaxSnapshots <= 0 {
		cfg.MaxSnapshots = def.MaxSnapshots
	}
	if cfg.MaxAnomalies <= 0 {
		cfg.MaxAnomalies = def.MaxAnomalies
	}
	if cfg.MaxAlerts <= 0 {
		cfg.MaxAlerts = def.MaxAlerts
	}

	return &Store{
		samples:   newRing[types.HealthSample](cfg.MaxDataPoints),
		snapshots: newRing[*types.MetricSnapshot](cfg.MaxSnapshots),
		anomalies: newRing[types.Anomaly](cfg.MaxAnomalies),
		alerts:    newRing[types.Alert](cfg.MaxAlerts),
	}
}

// AppendSamples records raw samples, evicting the oldest beyond capacity
func (s *Store) AppendSamples(samples ...types.HealthSample) {
	if len(samples) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples.append(samples...)
}

// AppendSnapshot records an aggregated snapshot
func (s *Store) AppendSnapshot(snap *types.MetricSnapshot) {
	if snap == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots.append(snap.Clone())
}

// AppendAnomalies records detected anomalies
func (s *Store) AppendAnomalies(anomalies ...types.Anomaly) {
	if len(anomalies) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anomalies.append(anomalies...)
}

// AppendAlert records a raised alert
func (s *Store) AppendAlert(alert types.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts.append(alert)
}

// Samples returns the newest limit samples (all when limit <= 0), oldest first
func (s *Store) Samples(limit int) []types.HealthSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples.last(limit)
}

// SamplesSince returns samples appended at or after cursor and the next cursor
func (s *Store) SamplesSince(cursor uint64) ([]types.HealthSample, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples.since(cursor)
}

// SamplesInRange returns retained samples whose timestamp falls within r
func (s *Store) SamplesInRange(r types.TimeRange) []types.HealthSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.samples.filter(func(h types.HealthSample) bool { return r.Contains(h.Timestamp) })
}

// Snapshots returns the newest limit snapshots (deep copies)
func (s *Store) Snapshots(limit int) []*types.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshots(s.snapshots.last(limit))
}

// SnapshotsInRange returns retained snapshots within r (deep copies)
func (s *Store) SnapshotsInRange(r types.TimeRange) []*types.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneSnapshots(s.snapshots.filter(func(m *types.MetricSnapshot) bool { return r.Contains(m.Timestamp) }))
}

// LatestSnapshot returns a copy of the newest snapshot, or nil
func (s *Store) LatestSnapshot() *types.MetricSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	last := s.snapshots.last(1)
	if len(last) == 0 {
		return nil
	}
	return last[0].Clone()
}

// Anomalies returns the newest limit anomalies
func (s *Store) Anomalies(limit int) []types.Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anomalies.last(limit)
}

// AnomaliesSince returns anomalies appended at or after cursor and the next cursor
func (s *Store) AnomaliesSince(cursor uint64) ([]types.Anomaly, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anomalies.since(cursor)
}

// AnomaliesInRange returns retained anomalies within r
func (s *Store) AnomaliesInRange(r types.TimeRange) []types.Anomaly {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anomalies.filter(func(a types.Anomaly) bool { return r.Contains(a.Timestamp) })
}

// Alerts returns the newest limit alerts
func (s *Store) Alerts(limit int) []types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAlerts(s.alerts.last(limit))
}

// AlertsInRange returns retained alerts within r
func (s *Store) AlertsInRange(r types.TimeRange) []types.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAlerts(s.alerts.filter(func(a types.Alert) bool { return r.Contains(a.Timestamp) }))
}

// FindAlert looks up a retained alert by id
func (s *Store) FindAlert(id string) (types.Alert, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.alerts.items {
		if a.ID == id {
			return cloneAlerts([]types.Alert{a})[0], true
		}
	}
	return types.Alert{}, false
}

// AcknowledgeAlert closes an alert. It reports changed=false when the alert was
// already acknowledged and returns types.ErrAlertNotFound for unknown or evicted ids.
func (s *Store) AcknowledgeAlert(id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.alerts.items {
		a := &s.alerts.items[i]
		if a.ID != id {
			continue
		}
		if a.Acknowledged {
			return false, nil
		}
		a.Acknowledged = true
		ackAt := at
		a.AcknowledgedAt = &ackAt
		return true, nil
	}
	return false, fmt.Errorf("%w: %s", types.ErrAlertNotFound, id)
}

// PruneToCapacity enforces every capacity. Appends already prune, so this only
// matters after capacities change.
func (s *Store) PruneToCapacity() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples.prune()
	s.snapshots.prune()
	s.anomalies.prune()
	s.alerts.prune()
}

// Len returns the number of retained entries of a kind
func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindSamples:
		return len(s.samples.items)
	case KindSnapshots:
		return len(s.snapshots.items)
	case KindAnomalies:
		return len(s.anomalies.items)
	case KindAlerts:
		return len(s.alerts.items)
	}
	return 0
}

// Capacity returns the configured capacity of a kind
func (s *Store) Capacity(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case KindSamples:
		return s.samples.capacity
	case KindSnapshots:
		return s.snapshots.capacity
	case KindAnomalies:
		return s.anomalies.capacity
	case KindAlerts:
		return s.alerts.capacity
	}
	return 0
}

// Reset clears all history (useful for testing)
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples.reset()
	s.snapshots.reset()
	s.anomalies.reset()
	s.alerts.reset()
}

func cloneSnapshots(in []*types.MetricSnapshot) []*types.MetricSnapshot {
	out := make([]*types.MetricSnapshot, len(in))
	for i, m := range in {
		out[i] = m.Clone()
	}
	return out
}

// cloneAlerts copies the AcknowledgedAt pointer so callers can't mutate history
func cloneAlerts(in []types.Alert) []types.Alert {
	for i := range in {
		if in[i].AcknowledgedAt != nil {
			at := *in[i].AcknowledgedAt
			in[i].AcknowledgedAt = &at
		}
	}
	return in
}
