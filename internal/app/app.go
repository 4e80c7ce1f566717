package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"postwatch/internal/config"
	"postwatch/internal/eventbus"
	"postwatch/internal/monitor"
	"postwatch/internal/notifier"
	"postwatch/internal/runtime/sdnotify"
	"postwatch/internal/runtime/supervisor"
	"postwatch/internal/source/wordpress"
	"postwatch/internal/storage"
	kit "postwatch/internal/transport"
	"postwatch/internal/transport/telegram"
	logx "postwatch/pkg/logx"
)

type Options struct {
	// ConfigPath is optional. When set the file is watched for changes.
	ConfigPath string
	// Lookup resolves environment overrides; defaults to os.LookupEnv.
	Lookup config.LookupFunc
}

type App struct {
	cfgm     *config.Manager
	settings config.Settings
	watch    bool

	sup *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter kit.Adapter
	notif   *notifier.Service
	mon     *monitor.Monitor
	sd      *sdnotify.Notifier
}

// New loads and validates the configuration and builds every component.
// Nothing runs until Start.
func New(opts Options) (*App, error) {
	if opts.Lookup == nil {
		opts.Lookup = os.LookupEnv
	}
	cfgm := config.NewManager(opts.ConfigPath, opts.Lookup)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	settings, err := config.Resolve(cfg)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	bootLog := logx.NewConsole("info").With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegramConfig(settings), bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with the Telegram sink off, set its target, then apply the real config.
	logCfg := settings.Logging
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(settings.Recipient)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(settings.Storage, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	fetcher, err := wordpress.New(sourceConfig(settings), log.With(logx.String("comp", "source")))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	bus := eventbus.New()
	notif := notifier.New(notifierConfig(settings), ad, log.With(logx.String("comp", "notifier")), bus)
	sd := sdnotify.New(log.With(logx.String("comp", "systemd")))

	mon, err := monitor.New(monitor.Deps{
		Store:    store,
		Source:   fetcher,
		Notifier: notif,
		Log:      log.With(logx.String("comp", "monitor")),
		Bus:      bus,
		Watchdog: sd,
	}, monitorOptions(settings))
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}

	return &App{
		cfgm:     cfgm,
		settings: settings,
		watch:    strings.TrimSpace(opts.ConfigPath) != "",
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		notif:    notif,
		mon:      mon,
		sd:       sd,
	}, nil
}

func (a *App) Monitor() *monitor.Monitor { return a.mon }

func (a *App) Notifier() *notifier.Service { return a.notif }

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
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.log.Info("starting postwatch",
		logx.String("source", a.settings.BaseURL),
		logx.String("recipient", a.settings.Recipient.String()),
		logx.String("schedule", a.settings.Schedule.String()),
		logx.String("storage", a.settings.Storage.Driver),
	)

	a.startEventLog()

	if a.watch {
		a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
		sub := a.cfgm.Subscribe(4)
		a.sup.Go0("config.reload", func(c context.Context) {
			defer a.cfgm.Unsubscribe(sub)
			a.reloadLoop(c, sub)
		})
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	// The monitor recovers its own cycle panics; a restart only covers
	// failures outside the loop.
	a.sup.GoRestart("monitor", a.mon.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))

	if wd := a.sd.WatchdogInterval(); wd > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) { a.keepAlive(c, wd/2) })
	}

	a.sd.Ready()
	a.log.Info("app started")
	return nil
}

// keepAlive pings the watchdog between cycles so poll intervals longer than
// WatchdogSec do not get the unit killed.
func (a *App) keepAlive(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			a.sd.Watchdog()
		}
	}
}

func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(64)
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
				a.logEvent(e)
			}
		}
	})
}

func (a *App) logEvent(e eventbus.Event) {
	switch d := e.Data.(type) {
	case monitor.CycleResult:
		a.log.Debug("event",
			logx.String("type", e.Type),
			logx.String("cycle", d.ID),
			logx.Int("new", d.New),
			logx.Duration("took", d.Took),
		)
	case notifier.NotificationEvent:
		a.log.Debug("event", logx.String("type", e.Type), logx.Int64("post_id", d.PostID))
	default:
		a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
	}
}

func (a *App) reloadLoop(ctx context.Context, sub chan *config.Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: keep only the latest config.
			for drained := false; !drained; {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					drained = true
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

// applyConfig applies the live-reloadable parts of newCfg.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	change := config.SummarizeConfigChange(oldCfg, newCfg)
	if change.Empty() {
		a.log.Info("config reloaded (no changes)")
		return
	}
	s, err := config.Resolve(newCfg)
	if err != nil {
		a.log.Warn("invalid config; keeping previous", logx.Err(err))
		return
	}
	if len(change.Restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(change.Restart, ",")))
	}

	a.logs.Apply(s.Logging)
	a.mon.SetSchedule(s.Schedule)
	a.mon.SetBatchSize(s.BatchSize)

	// Recipient and token only change on restart.
	ncfg := notifierConfig(s)
	ncfg.Target = a.settings.Recipient
	a.notif.Apply(ncfg)

	fields := append([]logx.Field{logx.String("changed", strings.Join(change.Sections, ","))}, change.Fields...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	// Cancel first so the poll loop and in-flight HTTP calls unwind immediately.
	a.sup.Cancel()

	var errs []error
	step := func(name string, limit time.Duration, fn func(context.Context) error) {
		if err := a.runStep(ctx, name, limit, fn); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	step("supervisor", 5*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}

// runStep runs fn with an upper bound so one component can't stall the whole
// stop. The caller's deadline is never extended.
func (a *App) runStep(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) error {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
	defer cancel()

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
		took := time.Since(start)
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		} else {
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
		return err
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		return stepCtx.Err()
	}
}
