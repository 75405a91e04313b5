// Package app wires configuration, storage, the Telegram adapter, the command
// router and the weekly distributor into one runnable unit.
package app

import (
	"context"
	"fmt"
	"time"

	"moviebot/internal/bot"
	"moviebot/internal/club"
	"moviebot/internal/config"
	"moviebot/internal/distributor"
	rtsup "moviebot/internal/runtime/supervisor"
	"moviebot/internal/storage"
	kit "moviebot/internal/transport"
	"moviebot/internal/transport/telegram"
	logx "moviebot/pkg/logx"
)

const updateQueueSize = 128

type App struct {
	cfgMgr *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	store    storage.Store
	registry *club.Registry
	inv      *club.Inventory
	adapter  *telegram.Adapter
	router   *bot.Router
	dist     *distributor.Distributor

	sup     *rtsup.Supervisor
	updates chan kit.Update
}

// New loads and validates the config at path and constructs every component.
// Nothing starts running until Start().
func New(path string) (*App, error) {
	mgr := config.NewManager(path)
	cfg, err := mgr.Load()
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	mgr.SetLogger(log.With(logx.String("comp", "config")))
	mgr.SetValidator(func(ctx context.Context, c *config.Config) error {
		return c.Validate()
	})

	busy, _ := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	registry := club.NewRegistry(store, log.With(logx.String("comp", "club")))
	inv := club.NewInventory(store, log.With(logx.String("comp", "club")))

	pollTimeout, _ := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, fmt.Errorf("telegram: %w", err)
	}

	router := bot.NewRouter(log.With(logx.String("comp", "bot")), adapter, store)
	router.Register(bot.Commands(registry, inv)...)

	dist, err := distributor.New(
		distributorConfig(cfg),
		store, inv, adapter,
		log.With(logx.String("comp", "distributor")),
		nil,
	)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgMgr:   mgr,
		logSvc:   logSvc,
		log:      log.With(logx.String("comp", "app")),
		store:    store,
		registry: registry,
		inv:      inv,
		adapter:  adapter,
		router:   router,
		dist:     dist,
		updates:  make(chan kit.Update, updateQueueSize),
	}, nil
}

func distributorConfig(cfg *config.Config) distributor.Config {
	d := cfg.Distributor
	poll, _ := config.ParseDurationOrDefault("distributor.poll_interval", d.PollInterval, 30*time.Second)
	debounce, _ := config.ParseDurationOrDefault("distributor.debounce", d.Debounce, time.Minute)
	sendTimeout, _ := config.ParseDurationOrDefault("distributor.send_timeout", d.SendTimeout, 10*time.Second)
	return distributor.Config{
		Enabled:      d.Enabled,
		Weekday:      d.Weekday,
		Hour:         d.Hour,
		Minute:       d.Minute,
		PollInterval: poll,
		Debounce:     debounce,
		SendTimeout:  sendTimeout,
		RatePerSec:   d.RatePerSec,
	}
}

// Start launches the adapter, dispatcher, distributor and config watcher.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx,
		rtsup.WithLogger(a.log),
		rtsup.WithCancelOnError(true),
	)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("start telegram adapter: %w", err)
	}

	a.sup.Go("bot.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go("distributor", func(c context.Context) error {
		return a.dist.Run(c)
	})
	a.sup.GoRestart("config.watch", func(c context.Context) error {
		return a.cfgMgr.Watch(c)
	})
	a.sup.Go0("config.reload", a.reloadLoop)

	a.log.Info("started")
	return nil
}

// reloadLoop applies hot-reloadable settings (logging only; transport,
// storage and schedule changes need a restart).
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgMgr.Subscribe(1)
	defer a.cfgMgr.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-sub:
			if !ok {
				return
			}
			if cfg == nil {
				continue
			}
			a.logSvc.Apply(logx.Config{
				Level:   cfg.Logging.Level,
				Console: cfg.Logging.Console,
				File: logx.FileConfig{
					Enabled: cfg.Logging.File.Enabled,
					Path:    cfg.Logging.File.Path,
				},
			})
			a.log.Info("logging config applied", logx.String("level", cfg.Logging.Level))
		}
	}
}

// Stop shuts components down in dependency order, bounded by ctx.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")

	if err := a.adapter.Stop(ctx); err != nil {
		a.log.Warn("adapter stop failed", logx.Err(err))
	}

	var firstErr error
	if a.sup != nil {
		if err := a.sup.Stop(ctx); err != nil {
			a.log.Warn("supervisor stop", logx.Err(err))
			firstErr = err
		}
	}
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", logx.Err(err))
		if firstErr == nil {
			firstErr = err
		}
	}
	a.log.Info("stopped")
	_ = a.logSvc.Close()
	return firstErr
}

// Err reports the first fatal background error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Done is closed-equivalent: it yields when the app's background context ends.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}
