// Package monitor runs the monitoring pipeline: it samples the data source,
// detects anomalies, raises alerts and hands them to the intervention engine
// on independent cadences, and answers status queries from the shared history.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denster32/HealthAI-2030-sub022/internal/alerts"
	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/history"
	"github.com/denster32/HealthAI-2030-sub022/internal/intervention"
	"github.com/denster32/HealthAI-2030-sub022/internal/sources"
	"github.com/denster32/HealthAI-2030-sub022/internal/storage"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

// PipelineTask is the name of the built-in background task
const PipelineTask = "pipeline"

// ErrClosed is returned by lifecycle calls on a closed scheduler
var ErrClosed = errors.New("scheduler is closed")

// Deps are the collaborators the scheduler drives. History, Detector,
// Alerts, Interventions and Source are required; the rest are optional.
type Deps struct {
	History       *history.Store
	Detector      *detector.Detector
	Alerts        *alerts.Manager
	Interventions *intervention.Engine
	Source        sources.DataSource

	Predictor   sources.PredictionEngine
	Registry    sources.DeviceRegistry
	Persistence storage.Storage
	Bus         *events.Bus
	Breaker     *CircuitBreaker
	Logger      *slog.Logger
	Clock       func() time.Time
}

// BackgroundTask is periodic work run on the background cadence.
// It is retried with backoff and must honor ctx.
type BackgroundTask func(ctx context.Context) error

type backgroundTask struct {
	name     string
	fn       BackgroundTask
	failures atomic.Int64
}

// Scheduler owns the monitoring lifecycle. All methods are safe for
// concurrent use.
type Scheduler struct {
	history       *history.Store
	detector      *detector.Detector
	alerts        *alerts.Manager
	interventions *intervention.Engine
	source        sources.DataSource
	predictor     sources.PredictionEngine
	registry      sources.DeviceRegistry
	persistence   storage.Storage
	bus           *events.Bus
	breaker       *CircuitBreaker
	logger        *slog.Logger
	now           func() time.Time

	// lifecycle serializes Start, Stop, Configure and Close
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     types.MonitoringState
	settings  config.MonitoringSettings
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	closed    bool
	restored  bool

	// commitMu fences history writes against Stop. A cycle captures the
	// generation when it starts and only commits while it is still current.
	commitMu sync.RWMutex
	gen      uint64

	// cursorMu guards the incremental read cursors
	cursorMu          sync.Mutex
	sampleCursor      uint64
	anomalyCursor     uint64
	lastEvaluatedSnap time.Time

	// newestMu guards the newest stored sample time per metric. Sources may
	// return overlapping windows; anything at or before this time is a repeat.
	newestMu sync.Mutex
	newest   map[types.MetricKind]time.Time

	suspended atomic.Bool
	stats     counters

	tasksMu sync.Mutex
	tasks   []*backgroundTask
}

// New creates a stopped scheduler. Missing required collaborators return
// types.ErrStageUnavailable; invalid settings return types.ErrConfigurationInvalid.
func New(deps Deps, settings config.MonitoringSettings) (*Scheduler, error) {
	switch {
	case deps.History == nil:
		return nil, fmt.Errorf("%w: history store", types.ErrStageUnavailable)
	case deps.Detector == nil:
		return nil, fmt.Errorf("%w: anomaly detector", types.ErrStageUnavailable)
	case deps.Alerts == nil:
		return nil, fmt.Errorf("%w: alert manager", types.ErrStageUnavailable)
	case deps.Interventions == nil:
		return nil, fmt.Errorf("%w: intervention engine", types.ErrStageUnavailable)
	case deps.Source == nil:
		return nil, fmt.Errorf("%w: health data source", types.ErrStageUnavailable)
	}
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	s := &Scheduler{
		history:       deps.History,
		detector:      deps.Detector,
		alerts:        deps.Alerts,
		interventions: deps.Interventions,
		source:        deps.Source,
		predictor:     deps.Predictor,
		registry:      deps.Registry,
		persistence:   deps.Persistence,
		bus:           deps.Bus,
		breaker:       deps.Breaker,
		logger:        deps.Logger,
		now:           deps.Clock,
		state:         types.StateStopped,
		settings:      settings.Clone(),
		newest:        make(map[types.MetricKind]time.Time),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.bus == nil {
		s.bus = events.NewBus()
	}
	if s.breaker == nil {
		s.breaker = NewCircuitBreaker(DefaultBreakerFailures, DefaultBreakerSuccesses, DefaultBreakerCooldown, s.logger)
	}

	s.tasks = append(s.tasks, &backgroundTask{name: PipelineTask, fn: s.pipelineTask})
	return s, nil
}

// RegisterBackgroundTask adds periodic work to the background cadence.
// Names must be unique.
func (s *Scheduler) RegisterBackgroundTask(name string, fn BackgroundTask) error {
	if name == "" {
		return fmt.Errorf("background task name is required")
	}
	if fn == nil {
		return fmt.Errorf("background task %s has no function", name)
	}
	s.tasksMu.Lock()
	defer s.tasksMu.Unlock()
	for _, t := range s.tasks {
		if t.name == name {
			return fmt.Errorf("background task %s already registered", name)
		}
	}
	s.tasks = append(s.tasks, &backgroundTask{name: name, fn: fn})
	return nil
}

// Start begins monitoring. It runs one synchronous pass of the pipeline so a
// snapshot is available as soon as it returns. Starting an active scheduler
// is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	return s.startLocked(ctx, true)
}

// Stop cancels every cycle and waits up to the grace period for them to
// exit. No history writes happen after Stop returns. Stopping a stopped
// scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	s.stopLocked("stop requested")
	return nil
}

// Configure validates and applies new settings. An active scheduler is
// restarted with them; invalid settings leave everything unchanged.
func (s *Scheduler) Configure(ctx context.Context, settings config.MonitoringSettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.isClosed() {
		return ErrClosed
	}
	wasActive := s.State() == types.StateActive
	if wasActive {
		s.stopLocked("reconfiguring")
	}

	s.mu.Lock()
	s.settings = settings.Clone()
	s.mu.Unlock()
	s.logger.Info("Monitor: settings applied", "restart", wasActive)

	if wasActive {
		return s.startLocked(ctx, false)
	}
	return nil
}

// Close stops monitoring and closes the event bus. A closed scheduler cannot
// be started again.
func (s *Scheduler) Close() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.isClosed() {
		return nil
	}
	s.stopLocked("closed")
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.bus.Close()
	return nil
}

// SuspendForeground pauses the foreground cadences (sampling, anomaly and
// alert checks). Background tasks keep running.
func (s *Scheduler) SuspendForeground() {
	if s.suspended.CompareAndSwap(false, true) {
		s.logger.Info("Monitor: foreground cycles suspended")
	}
}

// ResumeForeground resumes the foreground cadences
func (s *Scheduler) ResumeForeground() {
	if s.suspended.CompareAndSwap(true, false) {
		s.logger.Info("Monitor: foreground cycles resumed")
	}
}

// Suspended reports whether the foreground cadences are paused
func (s *Scheduler) Suspended() bool {
	return s.suspended.Load()
}

// State returns the lifecycle state
func (s *Scheduler) State() types.MonitoringState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Settings returns a copy of the current settings
func (s *Scheduler) Settings() config.MonitoringSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Clone()
}

// Subscribe registers for pushed events. With no types every event is delivered.
func (s *Scheduler) Subscribe(buffer int, eventTypes ...events.EventType) *events.Subscription {
	return s.bus.Subscribe(buffer, eventTypes...)
}

// Bus returns the event bus the scheduler publishes to
func (s *Scheduler) Bus() *events.Bus {
	return s.bus
}

// Breaker returns the data source circuit breaker
func (s *Scheduler) Breaker() *CircuitBreaker {
	return s.breaker
}

func (s *Scheduler) startLocked(ctx context.Context, resetStats bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state == types.StateActive || s.state == types.StateStarting {
		s.mu.Unlock()
		return nil
	}
	s.state = types.StateStarting
	settings := s.settings.Clone()
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	gen := s.nextGeneration()
	if resetStats {
		s.stats.reset()
	}

	if err := s.interventions.Start(runCtx); err != nil {
		cancel()
		s.setState(types.StateStopped)
		return fmt.Errorf("failed to start intervention engine: %w", err)
	}
	s.restoreAdaptation(ctx)

	// The initial pass is bounded by the caller's ctx as well as the run
	passCtx, passCancel := context.WithCancel(runCtx)
	unhook := context.AfterFunc(ctx, passCancel)
	if err := s.runPipeline(passCtx, gen, settings); err != nil {
		s.logger.Warn("Monitor: initial pass incomplete", "error", err)
	}
	unhook()
	passCancel()

	done := make(chan struct{})
	var wg sync.WaitGroup
	launch := func(name string, interval time.Duration, foreground bool, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.loop(runCtx, name, interval, foreground, fn)
		}()
	}
	launch("sampling", settings.SamplingInterval, true, func(ctx context.Context) {
		_ = s.sampleCycle(ctx, gen, settings)
	})
	launch("anomaly", settings.AnomalyCheckInterval, true, func(ctx context.Context) {
		_ = s.anomalyCycle(ctx, gen)
	})
	launch("alert", settings.AlertCheckInterval, true, func(ctx context.Context) {
		_ = s.alertCycle(ctx, gen, settings)
	})
	launch("background", settings.BackgroundInterval, false, func(ctx context.Context) {
		s.backgroundCycle(ctx, gen, settings)
	})
	if s.persistence != nil && settings.PersistenceInterval > 0 {
		launch("persistence", settings.PersistenceInterval, false, func(ctx context.Context) {
			s.persist(ctx)
		})
	}
	go func() {
		wg.Wait()
		close(done)
	}()

	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.startedAt = s.now()
	s.state = types.StateActive
	s.mu.Unlock()

	s.logger.Info("Monitor: monitoring started",
		"metrics", len(settings.Metrics),
		"sampling_interval", settings.SamplingInterval,
		"background_interval", settings.BackgroundInterval)
	s.bus.Publish(events.NewMonitoringEvent(events.EventTypeMonitoringStarted, events.SeverityInfo,
		"Monitoring started", events.MonitoringData{State: types.StateActive}))
	return nil
}

func (s *Scheduler) stopLocked(reason string) {
	s.mu.Lock()
	if s.state == types.StateStopped {
		s.mu.Unlock()
		return
	}
	s.state = types.StateStopping
	cancel, done, grace := s.cancel, s.done, s.settings.GracePeriod
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	// Waits for in-flight commits, then rejects everything from the old run
	s.nextGeneration()
	s.interventions.Stop()

	if done != nil {
		select {
		case <-done:
		case <-time.After(grace):
			s.logger.Warn("Monitor: cycles did not exit within grace period", "grace_period", grace)
		}
	}

	if s.persistence != nil {
		persistCtx, persistCancel := context.WithTimeout(context.Background(), grace)
		s.persist(persistCtx)
		persistCancel()
	}

	s.setState(types.StateStopped)
	s.logger.Info("Monitor: monitoring stopped", "reason", reason)
	s.bus.Publish(events.NewMonitoringEvent(events.EventTypeMonitoringStopped, events.SeverityInfo,
		"Monitoring stopped", events.MonitoringData{State: types.StateStopped, Reason: reason}))
}

// loop runs fn on every tick until ctx is done. Foreground loops skip ticks
// while suspended.
func (s *Scheduler) loop(ctx context.Context, name string, interval time.Duration, foreground bool, fn func(context.Context)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if foreground && s.suspended.Load() {
				continue
			}
			s.logger.Debug("Monitor: cycle", "cycle", name)
			fn(ctx)
		}
	}
}

// commit runs fn only while gen is the current generation
func (s *Scheduler) commit(gen uint64, fn func()) bool {
	s.commitMu.RLock()
	defer s.commitMu.RUnlock()
	if s.gen != gen {
		return false
	}
	fn()
	return true
}

func (s *Scheduler) nextGeneration() uint64 {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()
	s.gen++
	return s.gen
}

func (s *Scheduler) setState(state types.MonitoringState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *Scheduler) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// restoreAdaptation seeds the intervention engine from the last persisted
// adaptation level, once per process
func (s *Scheduler) restoreAdaptation(ctx context.Context) {
	if s.persistence == nil || s.restored {
		return
	}
	s.restored = true

	snap, ok, err := s.persistence.LatestAdaptation(ctx)
	if err != nil {
		s.logger.Warn("Monitor: failed to load adaptation snapshot", "error", err)
		return
	}
	if !ok {
		return
	}
	if err := s.interventions.Restore(snap.Level); err != nil {
		s.logger.Debug("Monitor: adaptation level not restored", "error", err)
		return
	}
	s.logger.Info("Monitor: adaptation level restored", "level", snap.Level, "recorded_at", snap.RecordedAt)
}

// persist saves the counters and adaptation level. Failures are logged.
func (s *Scheduler) persist(ctx context.Context) {
	if s.persistence == nil {
		return
	}
	now := s.now()
	if err := s.persistence.SaveStats(ctx, s.GetMonitoringStats(), now); err != nil {
		s.logger.Warn("Monitor: failed to persist stats", "error", err)
	}
	status := s.interventions.Status()
	snap := types.AdaptationSnapshot{
		RecordedAt:  now,
		Level:       status.AdaptationLevel,
		SuccessRate: status.SuccessRate(),
		Outcomes:    len(status.SuccessHistory),
	}
	if err := s.persistence.SaveAdaptation(ctx, snap); err != nil {
		s.logger.Warn("Monitor: failed to persist adaptation level", "error", err)
	}
}
