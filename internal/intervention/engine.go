// Package intervention selects corrective actions for alerts, tracks them to a
// terminal outcome, and adapts its aggressiveness to how well past
// interventions worked.
package intervention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// Config holds intervention engine settings
type Config struct {
	// Alpha is the learning rate of the adaptation rule
	// Default: 0.5
	Alpha float64 `yaml:"alpha"`

	// Delta is the step applied per outcome (+Delta on success, -Delta on failure)
	// Default: 0.1
	Delta float64 `yaml:"delta"`

	// InitialLevel is the adaptation level of a fresh engine
	// Default: 0.5
	InitialLevel float64 `yaml:"initial_level"`

	// AggressiveBelow makes the default policy escalate one severity step
	// while the adaptation level is below this value
	// Default: 0.3
	AggressiveBelow float64 `yaml:"aggressive_below"`

	// MinSeverity is the lowest alert severity that triggers an intervention
	// Default: medium
	MinSeverity types.Severity `yaml:"min_severity"`

	// Timeout fails pending interventions that have not completed in time
	// Default: 15 minutes
	Timeout time.Duration `yaml:"timeout"`

	// SweepInterval is how often pending interventions are checked for timeout
	// Default: 30 seconds
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// MaxConcurrent bounds concurrent executor runs
	// Default: 4
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// MaxHistory bounds archived interventions and the success history
	// Default: 100
	MaxHistory int `yaml:"max_history"`
}

// DefaultConfig returns default intervention engine settings
func DefaultConfig() Config {
	return Config{
		Alpha:           0.5,
		Delta:           0.1,
		InitialLevel:    0.5,
		AggressiveBelow: 0.3,
		MinSeverity:     types.SeverityMedium,
		Timeout:         15 * time.Minute,
		SweepInterval:   30 * time.Second,
		MaxConcurrent:   4,
		MaxHistory:      100,
	}
}

// Validate checks the configuration for errors
func (c Config) Validate() error {
	if c.Alpha <= 0 || c.Alpha > 1 {
		return fmt.Errorf("alpha must be in (0,1], got %v", c.Alpha)
	}
	if c.Delta <= 0 || c.Delta > 1 {
		return fmt.Errorf("delta must be in (0,1], got %v", c.Delta)
	}
	if c.InitialLevel < 0 || c.InitialLevel > 1 {
		return fmt.Errorf("initial_level must be in [0,1], got %v", c.InitialLevel)
	}
	if c.AggressiveBelow < 0 || c.AggressiveBelow > 1 {
		return fmt.Errorf("aggressive_below must be in [0,1], got %v", c.AggressiveBelow)
	}
	if !c.MinSeverity.IsValid() {
		return fmt.Errorf("invalid min_severity: %q", c.MinSeverity)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %v", c.SweepInterval)
	}
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	}
	if c.MaxHistory < 1 {
		return fmt.Errorf("max_history must be at least 1, got %d", c.MaxHistory)
	}
	return nil
}

// Executor carries out an intervention and reports its outcome. Returning a
// non-terminal outcome leaves the intervention pending for ReportOutcome or
// the timeout sweeper.
type Executor interface {
	Execute(ctx context.Context, iv types.Intervention) (types.InterventionOutcome, error)
}

// Engine is the adaptive intervention loop. It owns the adaptation state
// exclusively; callers read it through Status.
type Engine struct {
	mu sync.RWMutex

	cfg      Config
	policy   Policy
	executor Executor
	catalog  map[types.InterventionKind]CatalogEntry
	sem      *semaphore.Weighted
	bus      *events.Bus
	logger   *slog.Logger
	now      func() time.Time

	level          float64
	active         map[string]*types.Intervention
	history        []types.Intervention
	successHistory []bool
	lastUsed       map[types.InterventionKind]time.Time
	completions    int

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// Option configures an Engine
type Option func(*Engine)

// WithPolicy replaces the default SeverityMatchPolicy
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		if p != nil {
			e.policy = p
		}
	}
}

// WithExecutor sets the executor that runs interventions
func WithExecutor(x Executor) Option {
	return func(e *Engine) { e.executor = x }
}

// WithCatalog replaces the default catalog
func WithCatalog(catalog []CatalogEntry) Option {
	return func(e *Engine) {
		if len(catalog) > 0 {
			e.catalog = indexCatalog(catalog)
		}
	}
}

// WithBus sets the event bus lifecycle events are published on
func WithBus(b *events.Bus) Option {
	return func(e *Engine) { e.bus = b }
}

// WithLogger sets the engine logger
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides the time source (useful for testing)
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine creates an intervention engine
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid intervention config: %w", err)
	}
	e := &Engine{
		cfg:      cfg,
		catalog:  indexCatalog(DefaultCatalog()),
		sem:      semaphore.NewWeighted(cfg.MaxConcurrent),
		logger:   slog.Default(),
		now:      time.Now,
		level:    cfg.InitialLevel,
		active:   make(map[string]*types.Intervention),
		lastUsed: make(map[types.InterventionKind]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.policy == nil {
		entries := make([]CatalogEntry, 0, len(e.catalog))
		for _, entry := range e.catalog {
			entries = append(entries, entry)
		}
		sortCatalog(entries)
		e.policy = NewSeverityMatchPolicy(entries, cfg.AggressiveBelow)
	}
	e.logger = e.logger.With("component", "intervention")
	return e, nil
}

// Start begins the timeout sweeper. Starting a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return nil
	}
	e.ctx, e.cancel = context.WithCancel(ctx)
	e.running = true

	e.wg.Add(1)
	go e.sweepLoop()

	e.logger.Info("Intervention: started", "adaptation_level", e.level, "pending", len(e.active))
	return nil
}

// Stop cancels in-flight executions and waits for them to return. Pending
// interventions stay pending. Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.cancel()
	e.running = false
	e.mu.Unlock()

	// Executors finish through complete(), which takes the lock
	e.wg.Wait()
	e.logger.Info("Intervention: stopped")
}

// Running reports whether the engine is started
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// HandleAlert selects and starts an intervention for an alert. It returns nil
// without error when the alert is below the severity gate or no catalog entry
// fits. A stopped engine returns types.ErrNotMonitoring.
func (e *Engine) HandleAlert(ctx context.Context, alert types.Alert) (*types.Intervention, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, types.ErrNotMonitoring
	}
	if !alert.Severity.AtLeast(e.cfg.MinSeverity) {
		e.mu.Unlock()
		return nil, nil
	}
	kind, ok := e.policy.Select(alert, e.level, e.lastUsedCopyLocked())
	if !ok {
		e.mu.Unlock()
		e.logger.Debug("Intervention: no catalog entry fits alert", "alert_id", alert.ID, "metric", alert.Metric)
		return nil, nil
	}
	if _, known := e.catalog[kind]; !known {
		e.mu.Unlock()
		return nil, fmt.Errorf("policy selected %q: %w", kind, types.ErrUnknownIntervention)
	}
	iv := e.beginLocked(kind, alert, false)
	e.mu.Unlock()

	e.afterBegin(iv)
	return &iv, nil
}

// ForceIntervention starts an intervention of the given kind regardless of
// severity gating. It follows the same lifecycle and adaptation rule.
func (e *Engine) ForceIntervention(ctx context.Context, kind types.InterventionKind) (*types.Intervention, error) {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil, types.ErrNotMonitoring
	}
	entry, ok := e.catalog[kind]
	if !ok {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", types.ErrUnknownIntervention, kind)
	}
	iv := e.beginLocked(kind, types.Alert{Severity: entry.TargetSeverity}, true)
	e.mu.Unlock()

	e.afterBegin(iv)
	return &iv, nil
}

// ReportOutcome completes a pending intervention. The outcome must be
// terminal. Unknown ids return types.ErrInterventionNotFound.
func (e *Engine) ReportOutcome(id string, outcome types.InterventionOutcome) error {
	if !outcome.IsTerminal() {
		return fmt.Errorf("outcome must be succeeded or failed, got %q", outcome)
	}
	done, err := e.complete(id, outcome, "reported")
	if err != nil {
		return err
	}
	if !done {
		return fmt.Errorf("intervention %s already completed", id)
	}
	return nil
}

// Status returns a copy of the adaptation state
func (e *Engine) Status() types.AdaptationState {
	e.mu.RLock()
	defer e.mu.RUnlock()

	active := make([]types.Intervention, 0, len(e.active))
	for _, iv := range e.active {
		active = append(active, cloneIntervention(*iv))
	}
	sort.Slice(active, func(i, j int) bool { return active[i].StartedAt.Before(active[j].StartedAt) })

	return types.AdaptationState{
		AdaptationLevel:     e.level,
		ActiveInterventions: active,
		SuccessHistory:      append([]bool(nil), e.successHistory...),
	}
}

// Level returns the current adaptation level
func (e *Engine) Level() float64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.level
}

// History returns the newest limit archived interventions (all when limit <= 0)
func (e *Engine) History(limit int) []types.Intervention {
	e.mu.RLock()
	defer e.mu.RUnlock()
	n := len(e.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]types.Intervention, 0, limit)
	for _, iv := range e.history[n-limit:] {
		out = append(out, cloneIntervention(iv))
	}
	return out
}

// Restore seeds the adaptation level from persisted state. It is only
// accepted before the engine has recorded any outcome.
func (e *Engine) Restore(level float64) error {
	if level < 0 || level > 1 {
		return fmt.Errorf("adaptation level must be in [0,1], got %v", level)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completions > 0 {
		return errors.New("cannot restore adaptation level after outcomes were recorded")
	}
	e.level = level
	return nil
}

func (e *Engine) beginLocked(kind types.InterventionKind, alert types.Alert, forced bool) types.Intervention {
	now := e.now()
	iv := &types.Intervention{
		ID:             uuid.New().String(),
		Kind:           kind,
		TriggerAlertID: alert.ID,
		TriggerMetric:  alert.Metric,
		Severity:       alert.Severity,
		Forced:         forced,
		StartedAt:      now,
		Outcome:        types.OutcomePending,
	}
	e.active[iv.ID] = iv
	e.lastUsed[kind] = now

	if e.executor != nil {
		e.wg.Add(1)
		go e.execute(e.ctx, *iv)
	}
	return *iv
}

func (e *Engine) afterBegin(iv types.Intervention) {
	e.logger.Info("Intervention: started", "id", iv.ID, "kind", iv.Kind,
		"severity", iv.Severity, "forced", iv.Forced)
	e.publish(events.EventTypeInterventionStarted, iv)
}

// execute runs the executor under the concurrency limit and the intervention timeout
func (e *Engine) execute(ctx context.Context, iv types.Intervention) {
	defer e.wg.Done()

	if err := e.sem.Acquire(ctx, 1); err != nil {
		// Engine stopped before a slot freed up; leave it pending
		return
	}
	defer e.sem.Release(1)

	execCtx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	outcome, err := e.executor.Execute(execCtx, iv)
	switch {
	case ctx.Err() != nil:
		// Stopped mid-run; outcome is unknown
		return
	case err != nil:
		e.logger.Warn("Intervention: executor failed", "id", iv.ID, "kind", iv.Kind, "error", err)
		_, _ = e.complete(iv.ID, types.OutcomeFailed, fmt.Sprintf("executor error: %v", err))
	case outcome.IsTerminal():
		_, _ = e.complete(iv.ID, outcome, "executed")
	}
}

// complete moves an active intervention to a terminal outcome and applies the
// adaptation rule. It returns false when the intervention already completed.
func (e *Engine) complete(id string, outcome types.InterventionOutcome, note string) (bool, error) {
	e.mu.Lock()
	iv, ok := e.active[id]
	if !ok {
		archived := e.inHistoryLocked(id)
		e.mu.Unlock()
		if archived {
			return false, nil
		}
		return false, fmt.Errorf("%w: %s", types.ErrInterventionNotFound, id)
	}

	now := e.now()
	iv.Outcome = outcome
	iv.CompletedAt = &now
	iv.Note = note
	delete(e.active, id)

	e.history = append(e.history, *iv)
	if len(e.history) > e.cfg.MaxHistory {
		copy(e.history, e.history[len(e.history)-e.cfg.MaxHistory:])
		e.history = e.history[:e.cfg.MaxHistory]
	}
	e.successHistory = append(e.successHistory, outcome == types.OutcomeSucceeded)
	if len(e.successHistory) > e.cfg.MaxHistory {
		e.successHistory = append([]bool(nil), e.successHistory[len(e.successHistory)-e.cfg.MaxHistory:]...)
	}

	prev := e.level
	e.level = adapt(e.level, outcome, e.cfg.Alpha, e.cfg.Delta)
	e.completions++
	level := e.level
	done := *iv
	e.mu.Unlock()

	e.logger.Info("Intervention: completed", "id", id, "kind", done.Kind, "outcome", outcome,
		"adaptation_level", level, "previous_level", prev)
	e.publishWithLevel(events.EventTypeInterventionCompleted, done, level)
	return true, nil
}

// adapt applies level' = clamp(level + alpha*(±delta), 0, 1)
func adapt(level float64, outcome types.InterventionOutcome, alpha, delta float64) float64 {
	step := -delta
	if outcome == types.OutcomeSucceeded {
		step = delta
	}
	next := level + alpha*step
	if next < 0 {
		return 0
	}
	if next > 1 {
		return 1
	}
	return next
}

// sweepLoop fails interventions that stay pending past the timeout
func (e *Engine) sweepLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}

// sweep fails every pending intervention older than the timeout and returns how many it failed
func (e *Engine) sweep() int {
	e.mu.RLock()
	now := e.now()
	var expired []string
	for id, iv := range e.active {
		if now.Sub(iv.StartedAt) >= e.cfg.Timeout {
			expired = append(expired, id)
		}
	}
	e.mu.RUnlock()

	n := 0
	for _, id := range expired {
		if done, _ := e.complete(id, types.OutcomeFailed, "timed out"); done {
			n++
		}
	}
	if n > 0 {
		e.logger.Warn("Intervention: timed out pending interventions", "count", n)
	}
	return n
}

func (e *Engine) inHistoryLocked(id string) bool {
	for _, iv := range e.history {
		if iv.ID == id {
			return true
		}
	}
	return false
}

func (e *Engine) lastUsedCopyLocked() map[types.InterventionKind]time.Time {
	out := make(map[types.InterventionKind]time.Time, len(e.lastUsed))
	for k, v := range e.lastUsed {
		out[k] = v
	}
	return out
}

func (e *Engine) publish(eventType events.EventType, iv types.Intervention) {
	e.publishWithLevel(eventType, iv, e.Level())
}

func (e *Engine) publishWithLevel(eventType events.EventType, iv types.Intervention, level float64) {
	if e.bus == nil {
		return
	}
	ev, err := events.NewInterventionEvent(eventType, iv, level)
	if err != nil {
		e.logger.Warn("Intervention: failed to build event", "id", iv.ID, "error", err)
		return
	}
	e.bus.Publish(ev)
}

func cloneIntervention(iv types.Intervention) types.Intervention {
	if iv.CompletedAt != nil {
		at := *iv.CompletedAt
		iv.CompletedAt = &at
	}
	return iv
}

func indexCatalog(catalog []CatalogEntry) map[types.InterventionKind]CatalogEntry {
	out := make(map[types.InterventionKind]CatalogEntry, len(catalog))
	for _, entry := range catalog {
		out[entry.Kind] = entry
	}
	return out
}

// sortCatalog orders entries by target severity, then kind, so selection is deterministic
func sortCatalog(entries []CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		ri, rj := entries[i].TargetSeverity.Rank(), entries[j].TargetSeverity.Rank()
		if ri != rj {
			return ri < rj
		}
		return entries[i].Kind < entries[j].Kind
	})
}
