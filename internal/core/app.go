// Package core wires the services together: config, logging, storage,
// the HoYoLAB client, the schedule clock and the Telegram command
// surface.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"claimbot/internal/adapters/telegram"
	"claimbot/internal/config"
	"claimbot/internal/eventbus"
	"claimbot/internal/hoyolab"
	"claimbot/internal/kit"
	"claimbot/internal/schedule"
	"claimbot/internal/services/logging"
	"claimbot/internal/services/notify"
	"claimbot/internal/storage"
	"claimbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager

	log  *slog.Logger
	logs *logging.Service

	adapter kit.Adapter
	store   storage.Store
	clock   *schedule.Clock
	router  *Router
	bus     eventbus.Bus

	updates chan kit.Update

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logging.New(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(slog.String("comp", "app"))

	xlog := logx.NewConsole(cfg.Logging.Level)
	cfgm.SetLogger(xlog.With(logx.String("comp", "config")))

	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(slog.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}

	busyTimeout, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, xlog)
	if err != nil {
		return nil, err
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		loc, err = time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
		}
	}

	reqTimeout, err := config.ParseDurationField("hoyolab.request_timeout", cfg.Hoyolab.RequestTimeout)
	if err != nil {
		return nil, err
	}
	client := hoyolab.New(hoyolab.Config{
		RequestTimeout: reqTimeout,
		RatePerSec:     cfg.Hoyolab.RatePerSec,
	}, log.With(slog.String("comp", "hoyolab")))

	retryDelay, err := config.ParseDurationField("scheduler.claim_retry_delay", cfg.Scheduler.ClaimRetryDelay)
	if err != nil {
		return nil, err
	}
	exec := schedule.NewClaimExecutor(client, schedule.ExecutorConfig{
		RetryMax:      cfg.Scheduler.ClaimRetryMax,
		RetryDelay:    retryDelay,
		SolverBaseURL: cfg.Hoyolab.SolverBaseURL,
	}, log)
	eval := schedule.NewNotesEvaluator(client, log)

	notif := notify.New(ad, notify.Config{}, log)
	bus := eventbus.New()

	tickInterval, err := config.ParseDurationField("scheduler.tick_interval", cfg.Scheduler.TickInterval)
	if err != nil {
		return nil, err
	}
	tickTimeout, err := config.ParseDurationField("scheduler.tick_timeout", cfg.Scheduler.TickTimeout)
	if err != nil {
		return nil, err
	}
	clock := schedule.NewClock(schedule.ClockConfig{
		TickInterval: tickInterval,
		Workers:      cfg.Scheduler.Workers,
		TickTimeout:  tickTimeout,
		Location:     loc,
	}, store, store, exec, eval, notif, bus, log)

	router := NewRouter(log, ad, store, exec, loc, cfg.Telegram.OwnerUserIDs)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		store:   store,
		clock:   clock,
		router:  router,
		bus:     bus,
		updates: make(chan kit.Update, 256),
	}, nil
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()

	// Reject broken hot reloads before they are committed.
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Scheduler.Workers < 0 {
			return fmt.Errorf("scheduler.workers must be >= 0")
		}
		for _, f := range []struct{ name, raw string }{
			{"telegram.poll_timeout", cfg.Telegram.PollTimeout},
			{"scheduler.tick_interval", cfg.Scheduler.TickInterval},
			{"scheduler.tick_timeout", cfg.Scheduler.TickTimeout},
			{"scheduler.claim_retry_delay", cfg.Scheduler.ClaimRetryDelay},
			{"hoyolab.request_timeout", cfg.Hoyolab.RequestTimeout},
		} {
			if _, err := config.ParseDurationField(f.name, f.raw); err != nil {
				return err
			}
		}
		if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
			if _, err := time.LoadLocation(tz); err != nil {
				return fmt.Errorf("scheduler.timezone: invalid %q: %w", tz, err)
			}
		}
		return nil
	})

	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		cancel()
		return err
	}

	if a.cfgm.Get().Scheduler.Enabled {
		if err := a.clock.Start(runCtx); err != nil {
			cancel()
			return err
		}
	} else {
		a.log.Info("scheduler disabled by config")
	}

	a.wg.Add(3)
	go func() {
		defer a.wg.Done()
		_ = a.router.DispatchLoop(runCtx, a.updates)
	}()
	go func() {
		defer a.wg.Done()
		_ = a.cfgm.Watch(runCtx)
	}()

	sub := a.cfgm.Subscribe(8)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case cfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(cfg)
			}
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyReload covers what can change without a restart: log sinks and
// the owner list. Scheduler, storage and adapter settings need a
// restart and say so once.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logging.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logging.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	a.router.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.log.Info("config reloaded (logging and owners applied; other sections need a restart)")
}

func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.cancel = nil
	a.mu.Unlock()
	if cancel == nil {
		return nil
	}
	a.log.Info("stopping")
	cancel()

	if err := a.clock.Stop(ctx); err != nil {
		a.log.Warn("clock stop", slog.Any("err", err))
	}
	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("stop deadline reached before loops drained")
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", slog.Any("err", err))
	}
	_ = a.logs.Close()
	a.log.Info("stopped")
	return nil
}
