// Package alerts turns anomalies and threshold breaches into deduplicated,
// acknowledgeable alerts and escalates severe ones to a notification sink.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/history"
	"github.com/denster32/HealthAI-2030-sub022/internal/notify"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Config holds alert manager settings
type Config struct {
	// Cooldown suppresses a repeat alert for the same key while the earlier
	// one is unacknowledged and younger than this
	// Default: 5 minutes
	Cooldown time.Duration `yaml:"cooldown"`

	// EscalateAt is the lowest severity pushed to the notifier
	// Default: high
	EscalateAt types.Severity `yaml:"escalate_at"`

	// NotifyRate is the sustained notifications per second allowed
	// Default: 0.2 (one every 5 seconds)
	NotifyRate float64 `yaml:"notify_rate"`

	// NotifyBurst is the notification burst size
	// Default: 5
	NotifyBurst int `yaml:"notify_burst"`

	// NotifyTimeout bounds a single notifier call
	// Default: 10 seconds
	NotifyTimeout time.Duration `yaml:"notify_timeout"`
}

// DefaultConfig returns default alert manager settings
func DefaultConfig() Config {
	return Config{
		Cooldown:      5 * time.Minute,
		EscalateAt:    types.SeverityHigh,
		NotifyRate:    0.2,
		NotifyBurst:   5,
		NotifyTimeout: 10 * time.Second,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Cooldown < 0 {
		return fmt.Errorf("cooldown must be non-negative, got %v", c.Cooldown)
	}
	if !c.EscalateAt.IsValid() {
		return fmt.Errorf("invalid escalation severity: %q", c.EscalateAt)
	}
	if c.NotifyRate <= 0 {
		return fmt.Errorf("notify_rate must be positive, got %v", c.NotifyRate)
	}
	if c.NotifyBurst < 1 {
		return fmt.Errorf("notify_burst must be at least 1, got %d", c.NotifyBurst)
	}
	if c.NotifyTimeout <= 0 {
		return fmt.Errorf("notify_timeout must be positive, got %v", c.NotifyTimeout)
	}
	return nil
}

// dedupKey identifies alerts that describe the same ongoing condition.
// Anomaly and threshold alerts for one metric share a key so a sustained
// breach produces a single open alert.
type dedupKey struct {
	family string
	metric types.MetricKind
}

type candidate struct {
	alert types.Alert
	key   dedupKey
}

type lastRaised struct {
	alertID string
	at      time.Time
}

// Manager evaluates anomalies and snapshots into alerts. Alerts are recorded
// in the history store, published on the bus, and escalated to the notifier
// when severe enough.
type Manager struct {
	mu       sync.Mutex
	cfg      Config
	store    *history.Store
	bus      *events.Bus
	notifier notify.Notifier
	limiter  *rate.Limiter
	raised   map[dedupKey]lastRaised
	logger   *slog.Logger
	now      func() time.Time

	suppressed int64
	throttled  int64
	notifyErrs int64
}

// Option configures a Manager
type Option func(*Manager)

// WithNotifier sets the notification sink. Without one, alerts are only recorded.
func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// WithBus sets the event bus alerts are published on
func WithBus(b *events.Bus) Option {
	return func(m *Manager) { m.bus = b }
}

// WithLogger sets the manager logger
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithClock overrides the time source (useful for testing)
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates an alert manager writing into store
func NewManager(store *history.Store, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("alert manager requires a history store: %w", types.ErrStageUnavailable)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid alert config: %w", err)
	}
	m := &Manager{
		cfg:     cfg,
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.NotifyRate), cfg.NotifyBurst),
		raised:  make(map[dedupKey]lastRaised),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "alerts")
	return m, nil
}

// UpdateConfig replaces the manager settings. The dedup window takes effect
// for the next evaluation and the notification budget starts over.
func (m *Manager) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid alert config: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.limiter = rate.NewLimiter(rate.Limit(cfg.NotifyRate), cfg.NotifyBurst)
	return nil
}

// Config returns the current settings
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// Evaluate raises alerts for anomalies and for snapshot values outside the
// thresholds. It returns only the newly raised alerts; suppressed duplicates
// are counted but not returned.
func (m *Manager) Evaluate(ctx context.Context, anomalies []types.Anomaly, snapshot *types.MetricSnapshot, thresholds types.HealthThresholds) []types.Alert {
	var candidates []candidate
	for _, a := range anomalies {
		candidates = append(candidates, m.fromAnomaly(a))
	}
	if snapshot != nil {
		candidates = append(candidates, m.fromThresholds(snapshot, thresholds)...)
	}
	if len(candidates) == 0 {
		return nil
	}

	raised := m.record(candidates)
	m.escalate(ctx, raised)
	return raised
}

// RaiseSystemAlert raises a device or system alert outside the normal
// evaluation path. It returns false when the alert was suppressed as a duplicate.
func (m *Manager) RaiseSystemAlert(ctx context.Context, alertType types.AlertType, severity types.Severity, title, message string) (types.Alert, bool, error) {
	if alertType != types.AlertDevice && alertType != types.AlertSystem {
		return types.Alert{}, false, fmt.Errorf("system alerts must be device or system, got %q", alertType)
	}
	if !severity.IsValid() {
		return types.Alert{}, false, fmt.Errorf("invalid severity: %q", severity)
	}
	alert := types.Alert{
		ID:        uuid.New().String(),
		Type:      alertType,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Timestamp: m.now(),
	}
	key := dedupKey{family: string(alertType) + ":" + title}
	raised := m.record([]candidate{{alert: alert, key: key}})
	if len(raised) == 0 {
		return types.Alert{}, false, nil
	}
	m.escalate(ctx, raised)
	return raised[0], true, nil
}

// Acknowledge closes an alert. Unknown ids return types.ErrAlertNotFound;
// acknowledging an already acknowledged alert is a no-op.
func (m *Manager) Acknowledge(id string) error {
	changed, err := m.store.AcknowledgeAlert(id, m.now())
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	m.logger.Info("Alerts: acknowledged", "alert_id", id)
	if alert, ok := m.store.FindAlert(id); ok {
		m.publish(events.EventTypeAlertAcknowledged, alert)
	}
	return nil
}

// Stats returns how many alerts were suppressed as duplicates, how many
// notifications were throttled, and how many notifier calls failed
func (m *Manager) Stats() (suppressed, throttled, notifyErrors int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suppressed, m.throttled, m.notifyErrs
}

func (m *Manager) fromAnomaly(a types.Anomaly) candidate {
	title := fmt.Sprintf("%s anomaly (%s)", humanize(a.Metric), a.Severity)
	if a.Type == types.AnomalyDataQuality {
		title = fmt.Sprintf("%s data quality problem", humanize(a.Metric))
	}
	return candidate{
		alert: types.Alert{
			ID:              uuid.New().String(),
			Type:            types.AlertAnomaly,
			Metric:          a.Metric,
			Severity:        a.Severity,
			Title:           title,
			Message:         a.Description,
			Timestamp:       m.now(),
			SourceAnomalyID: a.ID,
		},
		key: dedupKey{family: string(a.Type), metric: a.Metric},
	}
}

// thresholdCheck describes one bound checked against the snapshot
type thresholdCheck struct {
	metric types.MetricKind
	limit  float64
	upper  bool
}

func (m *Manager) fromThresholds(snap *types.MetricSnapshot, th types.HealthThresholds) []candidate {
	checks := []thresholdCheck{
		{types.MetricHeartRate, th.HeartRateMin, false},
		{types.MetricHeartRate, th.HeartRateMax, true},
		{types.MetricSystolic, th.SystolicMax, true},
		{types.MetricDiastolic, th.DiastolicMax, true},
		{types.MetricOxygenSaturation, th.OxygenSaturationMin, false},
		{types.MetricTemperature, th.TemperatureMin, false},
		{types.MetricTemperature, th.TemperatureMax, true},
	}

	var out []candidate
	for _, c := range checks {
		v, ok := snap.Value(c.metric)
		if !ok || c.limit <= 0 {
			continue
		}
		breached := (c.upper && v > c.limit) || (!c.upper && v < c.limit)
		if !breached {
			continue
		}
		direction := "above maximum"
		if !c.upper {
			direction = "below minimum"
		}
		out = append(out, candidate{
			alert: types.Alert{
				ID:        uuid.New().String(),
				Type:      types.AlertThreshold,
				Metric:    c.metric,
				Severity:  thresholdSeverity(v, c.limit),
				Title:     fmt.Sprintf("%s %s", humanize(c.metric), direction),
				Message:   fmt.Sprintf("%s is %.4g, %s threshold %.4g", c.metric, v, direction, c.limit),
				Timestamp: m.now(),
			},
			key: dedupKey{family: string(types.AnomalyTypeFor(c.metric)), metric: c.metric},
		})
	}
	return out
}

// thresholdSeverity is high for a breach and critical once the value is more
// than 10% past the limit
func thresholdSeverity(v, limit float64) types.Severity {
	diff := v - limit
	if diff < 0 {
		diff = -diff
	}
	if diff/limit > 0.1 {
		return types.SeverityCritical
	}
	return types.SeverityHigh
}

// record applies dedup and stores the surviving alerts. It holds the manager
// lock so two concurrent evaluations can't both raise the same key.
func (m *Manager) record(candidates []candidate) []types.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()

	var raised []types.Alert
	for _, c := range candidates {
		alert, key := c.alert, c.key
		if m.isDuplicateLocked(key, alert.Timestamp) {
			m.suppressed++
			continue
		}
		m.store.AppendAlert(alert)
		m.raised[key] = lastRaised{alertID: alert.ID, at: alert.Timestamp}
		raised = append(raised, alert)
		m.logger.Info("Alerts: raised", "alert_id", alert.ID, "type", alert.Type,
			"metric", alert.Metric, "severity", alert.Severity)
	}

	for _, alert := range raised {
		m.publish(events.EventTypeAlertRaised, alert)
	}
	return raised
}

func (m *Manager) isDuplicateLocked(key dedupKey, at time.Time) bool {
	prev, ok := m.raised[key]
	if !ok {
		return false
	}
	if at.Sub(prev.at) >= m.cfg.Cooldown {
		return false
	}
	existing, found := m.store.FindAlert(prev.alertID)
	if !found {
		// Evicted from history; nothing open to attach to
		return false
	}
	return !existing.Acknowledged
}

// escalate pushes severe alerts to the notifier, subject to the rate limit.
// Failures are logged and counted, never retried.
func (m *Manager) escalate(ctx context.Context, alerts []types.Alert) {
	if m.notifier == nil {
		return
	}
	m.mu.Lock()
	cfg, limiter := m.cfg, m.limiter
	m.mu.Unlock()

	for _, alert := range alerts {
		if !alert.Severity.AtLeast(cfg.EscalateAt) {
			continue
		}
		if !limiter.Allow() {
			m.mu.Lock()
			m.throttled++
			m.mu.Unlock()
			m.logger.Warn("Alerts: notification throttled", "alert_id", alert.ID)
			continue
		}
		if err := m.send(ctx, cfg.NotifyTimeout, alert); err != nil {
			m.mu.Lock()
			m.notifyErrs++
			m.mu.Unlock()
			m.logger.Error("Alerts: failed to notify", "alert_id", alert.ID, "error", err)
		}
	}
}

// send calls the notifier with a bounded timeout. A notifier that ignores its
// context is abandoned once the deadline passes.
func (m *Manager) send(ctx context.Context, timeout time.Duration, alert types.Alert) error {
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- m.notifier.Send(sendCtx, alert)
	}()

	select {
	case err := <-done:
		return err
	case <-sendCtx.Done():
		return fmt.Errorf("notifier did not finish: %w", sendCtx.Err())
	}
}

func (m *Manager) publish(eventType events.EventType, alert types.Alert) {
	if m.bus == nil {
		return
	}
	ev, err := events.NewAlertEvent(eventType, alert)
	if err != nil {
		m.logger.Warn("Alerts: failed to build event", "alert_id", alert.ID, "error", err)
		return
	}
	m.bus.Publish(ev)
}

func humanize(metric types.MetricKind) string {
	switch metric {
	case types.MetricHeartRate:
		return "Heart rate"
	case types.MetricSystolic:
		return "Systolic pressure"
	case types.MetricDiastolic:
		return "Diastolic pressure"
	case types.MetricOxygenSaturation:
		return "Oxygen saturation"
	case types.MetricTemperature:
		return "Temperature"
	case types.MetricSteps:
		return "Steps"
	case types.MetricCalories:
		return "Calories"
	case types.MetricSleepQuality:
		return "Sleep quality"
	case types.MetricStressLevel:
		return "Stress level"
	}
	return string(metric)
}
