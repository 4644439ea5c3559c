package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"localnotify/internal/center"
	"localnotify/internal/dbusapi"
	"localnotify/internal/eventbus"
	"localnotify/internal/presenter"
	"localnotify/internal/storage"
	"localnotify/pkg/localnotify"
	logx "localnotify/pkg/logx"
)

// apiServer is the bus-facing control surface (*dbusapi.Server).
type apiServer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	cfgPath string

	cfgm *ConfigManager
	sup  *Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	presenters *presenter.Set
	center     *center.Center
	adapter    *localnotify.Adapter
	dbus       apiServer

	notifySystemd func(state string) (bool, error)
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	pcfg, err := mapPresenterConfig(cfg)
	if err != nil {
		closeStore(store)
		return nil, err
	}
	set, err := presenter.Open(pcfg, log)
	if err != nil {
		closeStore(store)
		return nil, err
	}

	ccfg, err := mapCenterConfig(cfg)
	if err != nil {
		_ = set.Close()
		closeStore(store)
		return nil, err
	}
	nc := center.New(ccfg, store, bus, log.With(logx.String("comp", "center")), set.List()...)

	ad := localnotify.New(nc,
		localnotify.WithLogger(log),
		localnotify.WithCancelAll(cfg.Adapter.CancelAll),
	)

	var srv apiServer
	if cfg.DBus.Enabled {
		srv = dbusapi.NewServer(cfg.DBus.Name, ad, nc, log.With(logx.String("comp", "dbusapi")))
	}

	return &App{
		cfgPath:       cfgPath,
		cfgm:          cfgm,
		log:           log,
		logs:          logSvc,
		bus:           bus,
		store:         store,
		presenters:    set,
		center:        nc,
		adapter:       ad,
		dbus:          srv,
		notifySystemd: func(state string) (bool, error) { return daemon.SdNotify(false, state) },
	}, nil
}

func closeStore(s storage.Store) {
	if s != nil {
		_ = s.Close()
	}
}

// Adapter is the in-process notification API.
func (a *App) Adapter() *localnotify.Adapter { return a.adapter }

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = NewSupervisor(ctx, WithLogger(a.log), WithCancelOnError(true))
	if a.cfgm != nil {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		a.cfgm.SetValidator(func(c context.Context, cfg *Config) error {
			if err := Validate(cfg); err != nil {
				return err
			}
			if _, err := mapCenterConfig(cfg); err != nil {
				return err
			}
			if _, err := mapPresenterConfig(cfg); err != nil {
				return err
			}
			_, _, err := mapStorageConfig(cfg)
			return err
		})
	}

	if err := a.center.Start(a.sup.Context()); err != nil {
		a.sup.Cancel()
		return err
	}
	if a.dbus != nil {
		if err := a.dbus.Start(a.sup.Context()); err != nil {
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 3*time.Second)
			_ = a.center.Stop(stopCtx)
			cancel()
			a.sup.Cancel()
			return fmt.Errorf("dbus api: %w", err)
		}
	}

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					fields := []logx.Field{logx.String("type", e.Type), logx.Time("time", e.Time)}
					if ne, ok := e.Data.(eventbus.NotificationEvent); ok {
						fields = append(fields, logx.String("id", ne.Identifier), logx.String("category", ne.Category))
						if ne.Error != "" {
							fields = append(fields, logx.String("err", ne.Error))
						}
					}
					a.log.Debug("event", fields...)
				}
			}
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						goto APPLY
					}
				}
			APPLY:
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.sdNotify(daemon.SdNotifyReady)
	a.log.Info("app started")
	return nil
}

// applyConfig hot-applies the sections that support it and warns about the rest.
func (a *App) applyConfig(oldCfg, newCfg *Config) {
	sections, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(newCfg))

	if ccfg, err := mapCenterConfig(newCfg); err != nil {
		a.log.Warn("invalid center config; keeping previous", logx.Err(err))
	} else {
		a.center.Apply(ccfg)
	}
	a.adapter.SetCancelAll(newCfg.Adapter.CancelAll)

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) sdNotify(state string) {
	if a.notifySystemd == nil {
		return
	}
	sent, err := a.notifySystemd(state)
	if err != nil {
		a.log.Debug("systemd notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		a.log.Debug("systemd notified", logx.String("state", state))
	}
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sdNotify(daemon.SdNotifyStopping)

	// Stop accepting bus calls before the center goes away.
	step := a.stepper(ctx)
	step("dbus", 1*time.Second, func(c context.Context) error {
		if a.dbus != nil {
			return a.dbus.Stop(c)
		}
		return nil
	})

	// Drain queued deliveries before the supervisor unwinds.
	step("center", 3*time.Second, func(c context.Context) error { return a.center.Stop(c) })

	a.sup.Cancel()

	step("presenters", 1*time.Second, func(c context.Context) error { return a.presenters.Close() })
	step("storage", 1*time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	// Finally, wait for supervised goroutines (config watch/reload, event log).
	step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// stepper returns a helper that runs one shutdown step with an upper bound so
// one component can't stall the whole stop.
func (a *App) stepper(ctx context.Context) func(name string, max time.Duration, fn func(context.Context) error) {
	return func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				rem := time.Until(dl)
				if rem <= 0 {
					max = 0
				} else if rem < max {
					max = rem
				}
			}
			if max > 0 {
				var cancel context.CancelFunc
				stepCtx, cancel = context.WithTimeout(ctx, max)
				defer cancel()
			}
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			took := time.Since(start)
			if took >= 500*time.Millisecond {
				a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
			} else {
				a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
			}
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Err(stepCtx.Err()),
				logx.Duration("elapsed", time.Since(start)),
			)
			go func() {
				err := <-done
				took := time.Since(start)
				if err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", took))
				} else {
					a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Duration("took", took))
				}
			}()
		}
	}
}
