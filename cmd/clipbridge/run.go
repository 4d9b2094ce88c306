package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/clipbridge/pkg/api"
	"github.com/Veraticus/clipbridge/pkg/clipboard"
	"github.com/Veraticus/clipbridge/pkg/config"
	"github.com/Veraticus/clipbridge/pkg/protocol"
	"github.com/Veraticus/clipbridge/pkg/storage"
	clipsync "github.com/Veraticus/clipbridge/pkg/sync"
)

// Capture rate limit: at most this many local changes per second are
// announced.
const (
	captureBurst  = 10
	capturePeriod = time.Second

	recorderCapacity = 256
	setupTimeout     = 10 * time.Second
)

var (
	// Run command flags.
	memoryClipboard bool

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the clipbridge daemon",
		Long: `Run the clipbridge daemon for clipboard synchronization.

This starts a background service that:
- Monitors the local clipboard for changes (if available)
- Runs every change and every received item through the sync engine
- Records clipboard history and known devices
- Provides a local API for the other clipbridge commands and for transports

Note: If no clipboard tool is found (xsel, xclip, wl-clipboard on Linux,
or pbcopy/pbpaste on macOS), clipbridge will still run using an in-memory
clipboard. This allows it to work as a sync relay on headless servers.

Examples:
  # Start with the default configuration
  clipbridge run

  # Keep nothing on disk
  clipbridge run --ephemeral --memory-clipboard

  # Poll faster and log everything
  clipbridge run --poll-interval 200ms -v`,
		RunE: runDaemon,
		Args: cobra.NoArgs,
	}
)

func init() {
	flags := runCmd.Flags()
	flags.String("device-id", "", "Device identifier (generated and persisted if not set)")
	flags.String("device-name", "", "Human readable device name (default: hostname)")
	flags.Duration("poll-interval", config.DefaultPollInterval, "Clipboard polling interval")
	flags.Duration("sweep-interval", config.DefaultSweepInterval, "How often the recent-item cache is swept")
	flags.Duration("cache-max-age", config.DefaultCacheMaxAge, "How long an item id suppresses duplicates")
	flags.Duration("max-message-age", config.DefaultMaxMessageAge, "Oldest injected message accepted")
	flags.Bool("ephemeral", false, "Keep history and devices in memory only")
	flags.BoolVar(&memoryClipboard, "memory-clipboard", false, "Use an in-memory clipboard instead of the system one")
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd, true)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	log := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	log.Info("starting clipbridge daemon",
		"version", version,
		"device_id", cfg.DeviceID,
		"socket", cfg.SocketPath,
	)
	log.Debug("configuration", "config", cfg.String())

	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var clip clipboard.Clipboard
	if memoryClipboard {
		clip = clipboard.NewMemoryClipboard()
	} else {
		clip = createClipboard(log)
	}

	d, err := newDaemon(ctx, cfg, clip, log)
	if err != nil {
		return err
	}
	return d.run(ctx)
}

// createClipboard returns the system clipboard behind retries and a circuit
// breaker, or an in-memory clipboard when none is usable.
func createClipboard(log *logger) clipboard.Clipboard {
	commandCfg := clipboard.DefaultCommandConfig()
	commandCfg.Logger = log.withPrefix("clipboard")

	clip, err := clipboard.NewPlatformClipboard(commandCfg)
	if err != nil {
		log.Error("no clipboard tool found, using in-memory clipboard",
			"error", err,
			"solution", "install xsel, xclip, or wl-clipboard for system clipboard integration")
		return clipboard.NewMemoryClipboard()
	}

	if _, err := clip.Read(); err != nil && !errors.Is(err, clipboard.ErrUnsupportedType) {
		log.Error("clipboard access failed, using in-memory clipboard",
			"error", err,
			"solution", "check clipboard tool permissions and X11/Wayland access")
		return clipboard.NewMemoryClipboard()
	}

	return clipboard.NewResilientClipboard(clip)
}

// daemon owns every long-running component.
type daemon struct {
	cfg         *config.Config
	log         *logger
	store       *storage.Manager
	engine      clipsync.Engine
	monitor     *clipboard.Monitor
	sweeper     *clipsync.Sweeper
	server      *api.Server
	broadcaster *api.Broadcaster
	history     *storage.HistoryRecorder
}

// newDaemon opens storage and wires the engine to its collaborators. Nothing
// runs until run is called.
func newDaemon(ctx context.Context, cfg *config.Config, clip clipboard.Clipboard, log *logger) (*daemon, error) {
	d := &daemon{cfg: cfg, log: log}

	setupCtx, cancel := context.WithTimeout(ctx, setupTimeout)
	defer cancel()

	adapter, err := openStorage(cfg, log)
	if err != nil {
		return nil, err
	}
	d.store = storage.NewManager(adapter)
	if err := d.store.Init(setupCtx); err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The configured app settings are authoritative; the stored copy follows
	// them so history trimming uses the same size.
	app, err := d.store.UpdateConfig(setupCtx, func(stored *protocol.AppConfig) {
		*stored = cfg.App.Clone()
	})
	if err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to store app config: %w", err)
	}

	d.broadcaster = api.NewBroadcaster(cfg.DeviceID, log.withPrefix("outbox").slog)
	d.history = storage.NewHistoryRecorder(d.store, log.withPrefix("history"))
	recorder := clipsync.NewRecorder(recorderCapacity)

	// The monitor is both the engine's source (Send) and one of its
	// subscribers, so it is created after the engine and reached through d.
	applier := clipsync.SubscriberFunc(func(event clipsync.Event) error {
		return d.monitor.HandleEvent(event)
	})

	d.engine, err = clipsync.NewEngine(&clipsync.Config{
		DeviceID: cfg.DeviceID,
		Logger:   log.withPrefix("sync"),
		Subscribers: []clipsync.Subscriber{
			recorder,
			applier,
			d.history,
			d.broadcaster,
			clipsync.SubscriberFunc(d.logEvent),
		},
	})
	if err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	d.monitor, err = clipboard.NewMonitor(clipboard.MonitorConfig{
		Clipboard:    clip,
		Logger:       log.withPrefix("monitor"),
		Limiter:      clipboard.NewRateLimiter(captureBurst, capturePeriod),
		Send:         d.engine.SendItem,
		DeviceID:     cfg.DeviceID,
		Policy:       clipboard.PolicyFromConfig(app),
		PollInterval: cfg.PollInterval,
	})
	if err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to create clipboard monitor: %w", err)
	}

	d.sweeper = &clipsync.Sweeper{
		Engine:   d.engine,
		Logger:   log.withPrefix("sweeper"),
		Interval: cfg.SweepInterval,
		MaxAge:   cfg.CacheMaxAge,
	}

	d.server, err = api.NewServer(&api.ServerConfig{
		Clipboard:     d.monitor,
		Engine:        d.engine,
		History:       d.store,
		Broadcaster:   d.broadcaster,
		Recorder:      recorder,
		Logger:        log.slog,
		SocketPath:    cfg.SocketPath,
		DeviceName:    cfg.DeviceName,
		Version:       version,
		MaxMessageAge: cfg.MaxMessageAge,
	})
	if err != nil {
		_ = d.store.Close()
		return nil, fmt.Errorf("failed to create API server: %w", err)
	}

	d.restoreDevices(setupCtx)
	return d, nil
}

func openStorage(cfg *config.Config, log *logger) (storage.Adapter, error) {
	if cfg.Ephemeral {
		return storage.NewMemoryStorage(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	db, err := storage.Open(cfg.DatabasePath(), log.withPrefix("storage"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// restoreDevices registers the devices known from earlier runs. A record that
// no longer validates is skipped.
func (d *daemon) restoreDevices(ctx context.Context) {
	devices, err := d.store.Devices(ctx)
	if err != nil {
		d.log.Error("failed to load known devices", "error", err)
		return
	}
	for _, device := range devices {
		if device.ID == d.cfg.DeviceID {
			continue
		}
		if err := d.engine.RegisterDevice(device); err != nil {
			d.log.Error("skipping stored device", "device", device.ID, "error", err)
		}
	}
	if len(devices) > 0 {
		d.log.Info("restored known devices", "count", len(d.engine.Devices()))
	}
}

// logEvent surfaces state changes and errors in the daemon log.
func (d *daemon) logEvent(event clipsync.Event) error {
	switch event.Type {
	case clipsync.EventStateChanged:
		d.log.Debug("sync state", "state", event.State)
	case clipsync.EventError:
		if errors.Is(event.Err, clipsync.ErrProcessing) {
			d.log.Error("sync error", "error", event.Err)
		} else {
			d.log.Debug("input rejected", "error", event.Err)
		}
	}
	return nil
}

// run starts every component and blocks until ctx is cancelled or one of
// them fails, then shuts the rest down.
func (d *daemon) run(ctx context.Context) error {
	defer d.close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.server.Run(gctx) })
	g.Go(func() error { return d.monitor.Run(gctx) })
	g.Go(func() error { return d.sweeper.Run(gctx) })

	d.log.Info("clipbridge daemon is running",
		"device_id", d.cfg.DeviceID,
		"socket", d.cfg.SocketPath,
		"ephemeral", d.cfg.Ephemeral,
	)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err != nil {
		d.log.Error("daemon stopped with error", "error", err)
	}

	stats := d.engine.Stats()
	monitor := d.monitor.Stats()
	d.log.Info("final statistics",
		"items_sent", stats.ItemsSent,
		"items_received", stats.ItemsReceived,
		"duplicates", stats.Duplicates,
		"rejected", stats.InvalidMessages+stats.InvalidItems+stats.UnknownSenders,
		"captured", monitor.Captured,
		"applied", monitor.Applied,
		"history_failures", d.history.Failures(),
		"outbox_dropped", d.broadcaster.Dropped(),
		"uptime", time.Since(stats.StartTime).Round(time.Second),
	)
	d.log.Info("clipbridge daemon stopped")
	return err
}

func (d *daemon) close() {
	d.broadcaster.Close()
	if err := d.store.Close(); err != nil {
		d.log.Error("failed to close storage", "error", err)
	}
}
