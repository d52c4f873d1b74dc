package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/denster32/HealthAI-2030-sub022/internal/alerts"
	"github.com/denster32/HealthAI-2030-sub022/internal/api"
	"github.com/denster32/HealthAI-2030-sub022/internal/config"
	"github.com/denster32/HealthAI-2030-sub022/internal/control"
	"github.com/denster32/HealthAI-2030-sub022/internal/detector"
	"github.com/denster32/HealthAI-2030-sub022/internal/events"
	"github.com/denster32/HealthAI-2030-sub022/internal/history"
	"github.com/denster32/HealthAI-2030-sub022/internal/intervention"
	"github.com/denster32/HealthAI-2030-sub022/internal/monitor"
	"github.com/denster32/HealthAI-2030-sub022/internal/notify"
	"github.com/denster32/HealthAI-2030-sub022/internal/sources"
	"github.com/denster32/HealthAI-2030-sub022/internal/storage"
	"github.com/denster32/HealthAI-2030-sub022/internal/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the monitoring daemon",
	Long: `Build the monitoring engine from the configuration file, start the
scheduler, the HTTP API and the control socket, and run until SIGINT or SIGTERM.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		d, err := newDaemon(ctx, cfg, slog.Default())
		if err != nil {
			return err
		}
		return d.run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// loadConfig reads the config file, applies HEALTHMON_* overrides and the
// --socket flag
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromFile(viper.GetString("config"))
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if socket := viper.GetString("socket"); socket != "" {
		cfg.Control.SocketPath = socket
	}
	return cfg, nil
}

// daemon owns every long-running component of 'healthmon run'
type daemon struct {
	cfg         *config.Config
	logger      *slog.Logger
	history     *history.Store
	scheduler   *monitor.Scheduler
	hub         *api.Hub
	api         *api.Server
	control     *control.Server
	persistence storage.Storage
	lockPath    string
}

func newDaemon(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *daemon, err error) {
	d := &daemon{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			d.release()
		}
	}()

	bus := events.NewBus()
	d.history = history.NewStore(cfg.History)

	strategy, err := cfg.Detector.NewStrategy()
	if err != nil {
		return nil, err
	}
	det := detector.New(strategy, detector.WithLogger(logger))

	d.hub = api.NewHub(logger)
	notifiers := notify.Multi{notify.NewHubNotifier(d.hub)}
	if cfg.Notify.Log {
		notifiers = append(notifiers, notify.NewLogNotifier(logger))
	}
	if cfg.Notify.TelegramEnabled() {
		tg, err := notify.DialTelegram(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID)
		if err != nil {
			logger.Warn("Telegram notifications disabled", "error", err)
		} else {
			notifiers = append(notifiers, tg)
		}
	}

	alertMgr, err := alerts.NewManager(d.history, cfg.Alerts,
		alerts.WithNotifier(notifiers),
		alerts.WithBus(bus),
		alerts.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	source := sources.NewSimulatedSource(cfg.Source.Seed,
		sources.WithSpikeProbability(cfg.Source.SpikeProbability),
		sources.WithSampleInterval(cfg.Monitoring.SamplingInterval))

	executor, err := intervention.NewRecoveryExecutor(source, det, cfg.Source.RecoveryDelay)
	if err != nil {
		return nil, err
	}
	engine, err := intervention.NewEngine(cfg.Intervention,
		intervention.WithExecutor(executor),
		intervention.WithBus(bus),
		intervention.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	devices := make([]types.Device, 0, len(cfg.Source.Devices))
	for _, dc := range cfg.Source.Devices {
		devices = append(devices, types.Device{ID: dc.ID, Name: dc.Name, Kind: dc.Kind})
	}
	registry := sources.NewStaticRegistry(devices...)

	if cfg.Storage.Path != "" {
		d.lockPath, err = storage.AcquireExclusiveLock(cfg.Storage.Path, version)
		if err != nil {
			return nil, err
		}
		store, err := storage.NewStorage(ctx, &storage.Config{Path: cfg.Storage.Path})
		if err != nil {
			return nil, fmt.Errorf("failed to open storage: %w", err)
		}
		d.persistence = store
	}

	d.scheduler, err = monitor.New(monitor.Deps{
		History:       d.history,
		Detector:      det,
		Alerts:        alertMgr,
		Interventions: engine,
		Source:        source,
		Predictor:     sources.NewTrendForecaster(d.history, det),
		Registry:      registry,
		Persistence:   d.persistence,
		Bus:           bus,
		Logger:        logger,
	}, cfg.Monitoring)
	if err != nil {
		return nil, err
	}

	if err := d.scheduler.RegisterBackgroundTask("history_prune", func(ctx context.Context) error {
		d.history.PruneToCapacity()
		return nil
	}); err != nil {
		return nil, err
	}
	if err := d.scheduler.RegisterBackgroundTask("device_check", func(ctx context.Context) error {
		connected, err := registry.ConnectedDevices(ctx)
		if err != nil {
			return err
		}
		if len(connected) == 0 {
			return errors.New("no sensors connected")
		}
		return nil
	}); err != nil {
		return nil, err
	}

	if cfg.API.Enabled {
		d.api = api.NewServer(d.scheduler, d.hub, logger, cfg.API.RequestTimeout)
	}

	d.control, err = control.NewServer(cfg.Control.SocketPath, control.NewHandler(d.scheduler, logger), logger)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// run starts everything, blocks until ctx is done, then shuts down in reverse order
func (d *daemon) run(ctx context.Context) error {
	defer d.release()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go d.hub.Run(hubCtx)
	go d.hub.ForwardEvents(hubCtx, d.scheduler.Subscribe(256))

	if err := d.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitoring: %w", err)
	}

	if err := d.control.Start(ctx); err != nil {
		_ = d.scheduler.Close()
		return fmt.Errorf("failed to start control server: %w", err)
	}
	defer func() {
		if err := d.control.Stop(); err != nil {
			d.logger.Warn("Failed to stop control server", "error", err)
		}
	}()

	apiErr := make(chan error, 1)
	if d.api != nil {
		go func() { apiErr <- d.api.ListenAndServe(ctx, d.cfg.API.Addr) }()
	}

	d.logger.Info("healthmon running",
		"version", version,
		"socket", d.control.SocketPath(),
		"api", d.cfg.API.Enabled,
		"storage", d.cfg.Storage.Path)

	var runErr error
	select {
	case <-ctx.Done():
		d.logger.Info("Shutdown signal received")
	case runErr = <-apiErr:
		if runErr != nil {
			d.logger.Error("API server failed", "error", runErr)
		}
	}

	if err := d.scheduler.Close(); err != nil {
		d.logger.Warn("Failed to stop monitoring", "error", err)
	}
	stopHub()

	if d.api != nil && runErr == nil {
		select {
		case runErr = <-apiErr:
		case <-time.After(10 * time.Second):
			d.logger.Warn("API server did not shut down in time")
		}
	}
	return runErr
}

// release closes storage and removes the lock file
func (d *daemon) release() {
	if d.persistence != nil {
		if err := d.persistence.Close(); err != nil {
			d.logger.Warn("Failed to close storage", "error", err)
		}
		d.persistence = nil
	}
	if err := storage.ReleaseExclusiveLock(d.lockPath); err != nil {
		d.logger.Warn("Failed to release storage lock", "error", err)
	}
	d.lockPath = ""
}
