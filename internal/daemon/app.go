// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/oakgate/oakgate/internal/calib"
	"github.com/oakgate/oakgate/internal/config"
	"github.com/oakgate/oakgate/internal/device"
	"github.com/oakgate/oakgate/internal/graph"
	oaklog "github.com/oakgate/oakgate/internal/log"
	"github.com/oakgate/oakgate/internal/pump"
	"github.com/oakgate/oakgate/internal/record"
	"github.com/oakgate/oakgate/internal/store"
)

// AppOptions carries the components the app orchestrates. Pump is
// required; the rest degrade gracefully when nil.
type AppOptions struct {
	Holder *config.Holder
	Pump   *pump.Pump

	Store      *store.Store
	Recorder   *record.Recorder
	Sweeper    *record.Sweeper
	CalibStore *calib.Store
}

// App owns the long-lived runtime: the config watcher, the device
// supervisor, the pump, and the retention sweeper. It implements the API's
// device controller.
type App struct {
	opts       AppOptions
	supervisor *device.Supervisor
	logger     zerolog.Logger

	mu            sync.Mutex
	runCtx        context.Context
	sessionCancel context.CancelFunc
	sessionDone   chan struct{}
	pumpWG        sync.WaitGroup

	reloadSignal os.Signal
}

// NewApp builds the app and its device supervisor from the current config.
func NewApp(opts AppOptions) (*App, error) {
	if opts.Pump == nil {
		return nil, errors.New("daemon: pump is required")
	}

	a := &App{
		opts:         opts,
		logger:       oaklog.WithComponent("app"),
		reloadSignal: syscall.SIGHUP,
	}

	cfg := a.config()
	a.supervisor = device.NewSupervisor(device.SupervisorOptions{
		Client: device.ClientOptions{
			Addr:             cfg.Device.Addr,
			ExpectedID:       cfg.Device.ID,
			AllowedHosts:     cfg.Device.AllowedHosts,
			QueueSize:        cfg.Queues.Size,
			QueueBlocking:    cfg.Queues.Blocking,
			WatchdogInterval: cfg.Device.WatchdogInterval,
			WatchdogMisses:   cfg.Device.WatchdogMisses,
		},
		BuildPipeline: func() (*graph.Pipeline, error) { return BuildPipeline(a.config()) },
		OnSession:     a.onSession,
		ReconnectMin:  cfg.Device.ReconnectMin,
		ReconnectMax:  cfg.Device.ReconnectMax,
		LeaseTTL:      cfg.Device.LeaseTTL,
	}, opts.Store)

	return a, nil
}

func (a *App) config() config.AppConfig {
	if a.opts.Holder != nil {
		return a.opts.Holder.Get()
	}
	return config.AppConfig{}
}

// Run starts the background subsystems plus the given server manager and
// blocks until ctx is canceled or a fatal error occurs. The manager is
// passed here rather than at construction because its API handler needs
// the app as device controller.
func (a *App) Run(ctx context.Context, manager *Manager) error {
	if manager == nil {
		return errors.New("daemon: manager is required")
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	a.mu.Lock()
	a.runCtx = runCtx
	a.mu.Unlock()

	g, gctx := errgroup.WithContext(runCtx)

	// Config watcher is best-effort: a watch failure must not stop startup.
	if a.opts.Holder != nil {
		if err := a.opts.Holder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str("event", "config.watcher_start_failed").Msg("failed to start config watcher")
		}
		g.Go(func() error { return a.watchReloadSignal(gctx) })
	}

	if a.opts.Sweeper != nil {
		g.Go(func() error {
			if err := a.opts.Sweeper.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if a.config().Device.Addr != "" {
		if err := a.Connect(gctx); err != nil {
			a.logger.Error().Err(err).Str("event", "device.autoconnect_failed").Msg("initial device connect failed")
		}
	}

	g.Go(func() error {
		return manager.Start(gctx)
	})

	err := g.Wait()

	a.stopSession()
	if a.opts.Holder != nil {
		a.opts.Holder.Stop()
	}
	return err
}

// watchReloadSignal reloads configuration on SIGHUP.
func (a *App) watchReloadSignal(ctx context.Context) error {
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, a.reloadSignal)
	defer signal.Stop(hup)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-hup:
			a.logger.Info().
				Str("event", "config.reload_signal").
				Str("signal", a.reloadSignal.String()).
				Msg("received reload signal")
			if err := a.opts.Holder.Reload(context.Background()); err != nil {
				a.logger.Warn().Err(err).Str("event", "config.reload_failed").Msg("config reload failed")
			}
		}
	}
}

// onSession wires a fresh device session: calibration into the pump and
// the calibration store, the recorder tap, and the pump itself.
func (a *App) onSession(ctx context.Context, c *device.Client) error {
	a.loadCalibration(ctx, c)

	if a.opts.Recorder != nil {
		c.SetTap(a.opts.Recorder.Consume)
	}

	a.mu.Lock()
	runCtx := a.runCtx
	a.mu.Unlock()
	if runCtx == nil {
		runCtx = context.Background()
	}

	queues := c.Queues()
	a.pumpWG.Add(1)
	go func() {
		defer a.pumpWG.Done()
		// The pump exits when the session's queues close.
		if err := a.opts.Pump.Run(runCtx, queues); err != nil {
			a.logger.Error().Err(err).Str("event", "pump.failed").Msg("pump stopped with error")
		}
	}()
	return nil
}

// loadCalibration prefers the device EEPROM and falls back to the cached
// copy on disk. A device read also refreshes the disk cache.
func (a *App) loadCalibration(ctx context.Context, c *device.Client) {
	deviceID := c.Info().MxID
	readCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	raw, err := c.CalibGet(readCtx)
	switch {
	case err != nil:
		a.logger.Warn().Err(err).Str("event", "calib.read_failed").Msg("device calibration read failed")
	default:
		d, perr := calib.Unmarshal(raw)
		if perr != nil {
			a.logger.Warn().Err(perr).Str("event", "calib.parse_failed").Msg("device calibration unreadable")
			break
		}
		a.opts.Pump.SetCalibration(d)
		if a.opts.CalibStore != nil {
			if serr := a.opts.CalibStore.Save(deviceID, d); serr != nil {
				a.logger.Warn().Err(serr).Str("event", "calib.cache_write_failed").Msg("failed to cache device calibration")
			}
		}
		a.logger.Info().
			Str("event", "calib.loaded").
			Str("mxId", deviceID).
			Str("source", "device").
			Msg("calibration loaded")
		return
	}

	if a.opts.CalibStore == nil {
		return
	}
	d, ok, err := a.opts.CalibStore.Load(deviceID)
	if err != nil || !ok {
		a.logger.Warn().Err(err).Str("event", "calib.unavailable").Msg("no calibration available, spatial math disabled")
		return
	}
	a.opts.Pump.SetCalibration(d)
	a.logger.Info().
		Str("event", "calib.loaded").
		Str("mxId", deviceID).
		Str("source", "cache").
		Msg("calibration loaded")
}

// State implements the API device controller.
func (a *App) State() string { return string(a.supervisor.State()) }

// LastError implements the API device controller.
func (a *App) LastError() error { return a.supervisor.LastError() }

// Info implements the API device controller.
func (a *App) Info() (device.Info, bool) { return a.supervisor.Info() }

// Client implements the API device controller.
func (a *App) Client() *device.Client { return a.supervisor.Client() }

// Connect starts the supervised device session loop. It is rejected while
// a session loop is already running.
func (a *App) Connect(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sessionCancel != nil {
		return ErrAlreadyConnected
	}
	if a.runCtx == nil {
		return errors.New("daemon: app is not running")
	}

	sctx, cancel := context.WithCancel(a.runCtx)
	done := make(chan struct{})
	a.sessionCancel, a.sessionDone = cancel, done

	go func() {
		defer close(done)
		if err := a.supervisor.Run(sctx); err != nil {
			a.logger.Error().Err(err).Str("event", "device.supervisor_failed").Msg("device supervisor stopped with error")
		}
		a.mu.Lock()
		if a.sessionDone == done {
			a.sessionCancel, a.sessionDone = nil, nil
		}
		a.mu.Unlock()
	}()
	return nil
}

// Disconnect stops the session loop and waits for it to wind down.
func (a *App) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	cancel, done := a.sessionCancel, a.sessionDone
	a.mu.Unlock()

	if cancel == nil {
		return ErrNotConnected
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// stopSession tears down any running session and waits briefly for the
// pump goroutines to drain.
func (a *App) stopSession() {
	a.mu.Lock()
	cancel, done := a.sessionCancel, a.sessionDone
	a.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			a.logger.Warn().Str("event", "device.session_stop_timeout").Msg("device session did not stop in time")
		}
	}

	pumpDone := make(chan struct{})
	go func() {
		a.pumpWG.Wait()
		close(pumpDone)
	}()
	select {
	case <-pumpDone:
	case <-time.After(5 * time.Second):
		a.logger.Warn().Str("event", "pump.stop_timeout").Msg("pump did not stop in time")
	}
}
