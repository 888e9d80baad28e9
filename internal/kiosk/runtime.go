// Package kiosk assembles the kiosk runtime: the single object that builds
// and owns the remote store, local cache, sync coordinator, playback engine,
// heartbeat reporter, scheduler and local API. Components receive their
// collaborators from it and never look them up globally.
package kiosk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/showroom/internal/config"
	"git.home.luguber.info/inful/showroom/internal/coordinator"
	"git.home.luguber.info/inful/showroom/internal/events"
	"git.home.luguber.info/inful/showroom/internal/expiry"
	ferrors "git.home.luguber.info/inful/showroom/internal/foundation/errors"
	"git.home.luguber.info/inful/showroom/internal/heartbeat"
	"git.home.luguber.info/inful/showroom/internal/identity"
	"git.home.luguber.info/inful/showroom/internal/localcache"
	"git.home.luguber.info/inful/showroom/internal/logfields"
	"git.home.luguber.info/inful/showroom/internal/metrics"
	"git.home.luguber.info/inful/showroom/internal/observability"
	"git.home.luguber.info/inful/showroom/internal/playback"
	"git.home.luguber.info/inful/showroom/internal/remote"
	"git.home.luguber.info/inful/showroom/internal/retry"
	"git.home.luguber.info/inful/showroom/internal/scheduler"
	"git.home.luguber.info/inful/showroom/internal/server/httpserver"
	"git.home.luguber.info/inful/showroom/internal/version"
)

// Status represents the lifecycle state of the runtime.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusStopping Status = "stopping"
	StatusError    Status = "error"
)

// Scheduled job names.
const (
	JobSyncPoll  = "sync-poll"
	JobHeartbeat = "heartbeat"
	JobOutbox    = "outbox-resend"
)

// Options adjusts how the runtime is built. Zero values use the config.
type Options struct {
	// ConfigPath enables hot reload of the logging level when set.
	ConfigPath string
	Logging    *observability.Logging
	Clock      clockwork.Clock
	// Remote replaces the configured backend.
	Remote remote.Store
	// Network replaces the latency probe used for the signal estimate.
	Network heartbeat.NetworkInfo
	// DisableHTTP skips the local API listener.
	DisableHTTP bool
	// OnRestart is called when the fleet row asks this device to restart.
	OnRestart func(events.RestartRequested)
}

// Runtime is the kiosk runtime context.
type Runtime struct {
	cfg       *config.Config
	opts      Options
	clock     clockwork.Clock
	status    atomic.Value
	startTime time.Time
	mu        sync.Mutex

	Bus         *events.Bus
	Remote      remote.Store
	Cache       *localcache.Cache
	Coordinator *coordinator.Coordinator
	Identity    *identity.Store
	Heartbeat   *heartbeat.Reporter
	// Engine is nil when playback is disabled.
	Engine    *playback.Engine
	Scheduler *scheduler.Scheduler
	Server    *httpserver.Server

	recorder metrics.Recorder
	registry *prom.Registry
	watcher  *config.Watcher

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds every component. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Runtime, error) {
	if cfg == nil {
		return nil, ferrors.ConfigError("runtime requires a configuration").Build()
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	r := &Runtime{
		cfg:      cfg,
		opts:     opts,
		clock:    opts.Clock,
		Bus:      events.NewBus(),
		recorder: metrics.NoopRecorder{},
	}
	r.status.Store(StatusStopped)

	if cfg.Metrics.Enabled {
		r.registry = prom.NewRegistry()
		r.recorder = metrics.NewPrometheusRecorder(r.registry)
	}

	if err := r.build(ctx); err != nil {
		r.closeStores()
		r.Bus.Close()
		return nil, err
	}
	return r, nil
}

func (r *Runtime) build(ctx context.Context) error {
	var err error

	r.Remote = r.opts.Remote
	if r.Remote == nil {
		if r.Remote, err = OpenRemote(ctx, r.cfg.Remote); err != nil {
			return err
		}
	}

	if r.Cache, err = localcache.Open(r.cfg.Cache.Path, r.cfg.Cache.MaxBytes, localcache.WithClock(r.clock)); err != nil {
		return err
	}

	r.Coordinator, err = coordinator.New(coordinator.Options{
		Remote:         r.Remote,
		Cache:          r.Cache,
		Bus:            r.Bus,
		Clock:          r.clock,
		Recorder:       r.recorder,
		GuardWindow:    r.cfg.Sync.GuardWindow,
		LockGrace:      r.cfg.Sync.LockGrace,
		ChangeDebounce: r.cfg.Sync.ChangeDebounce,
		Retention: expiry.Retention{
			MaxAge:     r.cfg.Sync.ArchiveMaxAge,
			MaxEntries: r.cfg.Sync.ArchiveMaxEntries,
		},
		Retry: retry.FromConfig(r.cfg.Sync),
	})
	if err != nil {
		return err
	}

	if r.Identity, err = identity.Open(r.cfg.Device.IdentityPath); err != nil {
		return err
	}

	network := r.opts.Network
	if network == nil {
		network = heartbeat.LatencyProbe{
			Probe:   fleetProbe(r.Remote, func() string { return r.Identity.Get().ID }),
			Clock:   r.clock,
			Timeout: r.cfg.Heartbeat.ProbeTimeout,
		}
	}
	r.Heartbeat = heartbeat.New(heartbeat.Options{
		Remote:   r.Remote,
		Identity: r.Identity,
		Network:  network,
		Bus:      r.Bus,
		Clock:    r.clock,
		Recorder: r.recorder,
		Version:  version.Version,
	})

	if r.cfg.Playback.Enabled {
		r.Engine = playback.New(playback.Options{
			Source:        r.Coordinator,
			Bus:           r.Bus,
			Clock:         r.clock,
			Recorder:      r.recorder,
			VideoWatchdog: r.cfg.Playback.VideoWatchdog,
			SleepRecheck:  r.cfg.Playback.SleepRecheck,
		})
	}

	if r.Scheduler, err = scheduler.New(r.clock); err != nil {
		return err
	}

	if !r.opts.DisableHTTP {
		srvOpts := httpserver.Options{
			Docs:     r.Coordinator,
			Identity: r.Identity,
			Journal:  r.Cache,
			Bus:      r.Bus,
		}
		// A nil *Engine must not become a non-nil interface.
		if r.Engine != nil {
			srvOpts.Playback = r.Engine
		}
		if r.registry != nil {
			srvOpts.PrometheusHandler = metrics.HTTPHandler(r.registry)
		}
		if r.Server, err = httpserver.New(r.cfg.HTTP.Addr, srvOpts); err != nil {
			return err
		}
	}
	return nil
}

// Start loads the document, starts the background loops and the API. It
// returns once everything is running; Stop tears it down.
func (r *Runtime) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.GetStatus() != StatusStopped {
		return ferrors.RuntimeError(fmt.Sprintf("runtime is not stopped: %s", r.GetStatus())).Build()
	}
	r.status.Store(StatusStarting)
	r.startTime = r.clock.Now()
	slog.Info("Starting showroom kiosk",
		slog.String("version", version.Version),
		logfields.Backend(string(r.cfg.Remote.Backend)))

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	if dev := r.Identity.Get(); dev.Configured() {
		runCtx = observability.WithDeviceID(runCtx, dev.ID)
	}

	src, err := r.Coordinator.Init(runCtx)
	if err != nil {
		cancel()
		r.status.Store(StatusError)
		return fmt.Errorf("failed to load store document: %w", err)
	}
	slog.Info("Store document loaded", slog.String("source", string(src)))

	r.watchDevice(runCtx)
	r.goRun(runCtx, "coordinator", r.Coordinator.Run)
	if r.Engine != nil {
		r.goRun(runCtx, "playback", r.Engine.Run)
	}

	if err := r.scheduleJobs(runCtx); err != nil {
		cancel()
		r.status.Store(StatusError)
		return err
	}
	r.Scheduler.Start()

	if r.Server != nil {
		if err := r.Server.Start(runCtx); err != nil {
			cancel()
			_ = r.Scheduler.Stop()
			r.status.Store(StatusError)
			return fmt.Errorf("failed to start HTTP server: %w", err)
		}
	}

	if r.opts.ConfigPath != "" {
		r.startWatcher(runCtx)
	}

	r.status.Store(StatusRunning)
	slog.Info("Showroom kiosk started",
		slog.String("http_addr", r.cfg.HTTP.Addr),
		slog.Bool("playback", r.Engine != nil),
		slog.Duration("poll_interval", r.cfg.Sync.PollInterval))
	return nil
}

func (r *Runtime) scheduleJobs(ctx context.Context) error {
	if _, err := r.Scheduler.ScheduleEvery(JobSyncPoll, r.cfg.Sync.PollInterval, func(jobCtx context.Context) {
		r.Coordinator.Tick(observability.WithJob(jobCtx, JobSyncPoll))
	}, scheduler.WithContext(ctx)); err != nil {
		return err
	}

	if _, err := r.Scheduler.ScheduleEvery(JobOutbox, r.outboxInterval(), func(jobCtx context.Context) {
		if err := r.Coordinator.Flush(observability.WithJob(jobCtx, JobOutbox)); err != nil {
			slog.Debug("Outbox resend failed", logfields.Error(err))
		}
	}, scheduler.WithContext(ctx)); err != nil {
		return err
	}

	_, err := r.Scheduler.ScheduleEvery(JobHeartbeat, r.cfg.Heartbeat.Interval, func(jobCtx context.Context) {
		r.beat(observability.WithJob(jobCtx, JobHeartbeat))
	}, scheduler.Immediately(), scheduler.WithContext(ctx))
	return err
}

func (r *Runtime) outboxInterval() time.Duration {
	if d := r.cfg.Sync.OutboxInitial; d > 0 && d < r.cfg.Sync.PollInterval {
		return d
	}
	return r.cfg.Sync.PollInterval
}

func (r *Runtime) beat(ctx context.Context) {
	res, err := r.Heartbeat.Beat(ctx)
	switch {
	case errors.Is(err, heartbeat.ErrDeviceDeleted):
		// handled by watchDevice through the bus
	case err != nil:
		slog.WarnContext(ctx, "Heartbeat failed", logfields.Error(err))
	case res.Changed:
		slog.InfoContext(ctx, "Device identity updated from fleet",
			logfields.DeviceName(res.Device.Name),
			slog.String("device_type", string(res.Device.DeviceType)))
	}
}

// watchDevice reacts to fleet-driven events: a deleted device drops its
// identity so the host re-enters provisioning, a restart request goes to
// OnRestart.
func (r *Runtime) watchDevice(ctx context.Context) {
	deleted, unsubDeleted := events.Subscribe[events.DeviceDeleted](r.Bus, 4)
	restarts, unsubRestart := events.Subscribe[events.RestartRequested](r.Bus, 4)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer unsubDeleted()
		defer unsubRestart()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-deleted:
				if !ok {
					return
				}
				r.handleDeviceDeleted(evt)
			case evt, ok := <-restarts:
				if !ok {
					return
				}
				slog.Warn("Restart requested by fleet", logfields.DeviceID(evt.DeviceID), slog.String("request_id", evt.RequestID))
				if r.opts.OnRestart != nil {
					r.opts.OnRestart(evt)
				}
			}
		}
	}()
}

func (r *Runtime) handleDeviceDeleted(evt events.DeviceDeleted) {
	slog.Warn("Device no longer registered; provisioning required", logfields.DeviceID(evt.DeviceID))
	if err := r.Identity.Forget(); err != nil {
		slog.Error("Failed to clear device identity", logfields.Error(err))
	}
}

func (r *Runtime) goRun(ctx context.Context, name string, fn func(context.Context) error) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("Background loop exited", slog.String("loop", name), logfields.Error(err))
		}
	}()
}

func (r *Runtime) startWatcher(ctx context.Context) {
	w, err := config.NewWatcher(r.opts.ConfigPath, r.Reload)
	if err != nil {
		slog.Warn("Config watcher unavailable", logfields.Error(err))
		return
	}
	if err := w.Start(ctx); err != nil {
		slog.Warn("Failed to start config watcher", logfields.Error(err))
		_ = w.Stop()
		return
	}
	r.watcher = w
}

// Reload applies the hot-reloadable part of a new configuration: the log
// level. Other changes take effect on the next start.
func (r *Runtime) Reload(_ context.Context, cfg *config.Config) error {
	if r.opts.Logging != nil {
		r.opts.Logging.SetLevel(cfg.Logging.Level)
	}
	if cfg.Remote != r.cfg.Remote || cfg.Sync != r.cfg.Sync || cfg.HTTP != r.cfg.HTTP {
		slog.Info("Configuration changed; restart to apply remote, sync or http settings")
	}
	return nil
}

// Stop shuts everything down in reverse order.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.GetStatus() {
	case StatusStopped, StatusStopping:
		return nil
	}
	r.status.Store(StatusStopping)
	slog.Info("Stopping showroom kiosk")

	var errs []error
	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("config watcher: %w", err))
		}
		r.watcher = nil
	}
	if r.Server != nil {
		if err := r.Server.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if r.cancel != nil {
		r.cancel()
	}
	if err := r.Scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: %w", err))
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("waiting for background loops: %w", ctx.Err()))
	}

	r.Bus.Close()
	errs = append(errs, r.closeStores()...)

	r.status.Store(StatusStopped)
	slog.Info("Showroom kiosk stopped", logfields.Duration(r.clock.Since(r.startTime)))
	return errors.Join(errs...)
}

func (r *Runtime) closeStores() []error {
	var errs []error
	r.closeOnce.Do(func() {
		if r.Cache != nil {
			if err := r.Cache.Close(); err != nil {
				errs = append(errs, fmt.Errorf("local cache: %w", err))
			}
		}
		if r.Remote != nil {
			if err := r.Remote.Close(); err != nil {
				errs = append(errs, fmt.Errorf("remote store: %w", err))
			}
		}
	})
	return errs
}

// Close releases the stores. It stops a running runtime first; one-shot
// commands that never call Start use it alone.
func (r *Runtime) Close(ctx context.Context) error {
	if s := r.GetStatus(); s == StatusRunning || s == StatusError {
		if err := r.Stop(ctx); err != nil {
			return err
		}
	}
	r.Bus.Close()
	return errors.Join(r.closeStores()...)
}

// GetStatus returns the current runtime status.
func (r *Runtime) GetStatus() Status {
	status, ok := r.status.Load().(Status)
	if !ok {
		return StatusError
	}
	return status
}

// GetStartTime returns when the runtime last started.
func (r *Runtime) GetStartTime() time.Time {
	return r.startTime
}

// Config returns the configuration the runtime was built with.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Registry returns the Prometheus registry, or nil when metrics are off.
func (r *Runtime) Registry() *prom.Registry { return r.registry }
