package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/events"
	"remindbot/internal/httpapi"
	"remindbot/internal/notifier"
	"remindbot/internal/observability"
	"remindbot/internal/persistence"
	"remindbot/internal/reminder"
	"remindbot/internal/router"
	rtsup "remindbot/internal/runtime/supervisor"
	"remindbot/internal/scheduler"
	"remindbot/internal/storage"
	"remindbot/internal/transport"
	"remindbot/internal/transport/line"
	"remindbot/internal/transport/telegram"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgPath   string
	platform  string
	startedAt time.Time

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	adapter transport.Adapter
	store   *reminder.Store
	persist *persistence.Gateway
	notif   *notifier.Dispatcher
	sched   *scheduler.Service
	cmdm    *router.CommandManager

	metrics *observability.Metrics
	kafka   *kgo.Client
	sink    *events.Sink
	http    *httpapi.Service

	updates chan transport.Update
}

func NewApp(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateRuntime(cfg) })
	cfg, err := cfgm.Load(context.Background())
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg)
}

func build(cfgm *config.ConfigManager, cfg *config.Config) (_ *App, err error) {
	// The chat log sink needs the adapter and the adapter needs a logger:
	// start without a sender and attach it once the adapter exists.
	logSvc, log := logx.New(mapLogging(cfg), nil)
	defer func() {
		if err != nil {
			_ = logSvc.Close()
		}
	}()

	platform := strings.ToLower(strings.TrimSpace(cfg.Platform))
	var (
		ad      transport.Adapter
		webhook http.Handler
	)
	switch platform {
	case config.PlatformTelegram:
		tc, err := mapTelegram(cfg)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(tc, log)
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		ad = tg
	case config.PlatformLine:
		lc, err := mapLine(cfg)
		if err != nil {
			return nil, err
		}
		la, err := line.New(lc, log)
		if err != nil {
			return nil, fmt.Errorf("line: %w", err)
		}
		ad, webhook = la, la.Webhook()
	default:
		return nil, fmt.Errorf("unknown platform %q", cfg.Platform)
	}
	logSvc.SetSender(ad)

	bus := eventbus.New()
	loc := location(cfg)

	// Storage (optional)
	var client storage.Client
	if sc, enabled, err := mapStorage(cfg); err != nil {
		return nil, err
	} else if enabled {
		octx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		client, err = storage.Open(octx, sc, log.With(logx.String("comp", "storage")))
		cancel()
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		log.Info("storage enabled", logx.String("driver", client.Name()))
	} else {
		log.Warn("storage disabled; tasks live in memory only")
	}
	defer func() {
		if err != nil && client != nil {
			_ = client.Close()
		}
	}()

	store := reminder.NewStore()

	pcfg, err := mapPersistence(cfg)
	if err != nil {
		return nil, err
	}
	persist := persistence.New(pcfg, client, store, log, bus)

	ncfg, err := mapNotifier(cfg)
	if err != nil {
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log, bus)

	scfg, err := mapScheduler(cfg)
	if err != nil {
		return nil, err
	}
	sched := scheduler.New(scfg, store, notif, persist, log, bus)

	startedAt := time.Now()
	handler := &router.Handler{
		Store:     store,
		Persist:   persist,
		Scheduler: sched,
		Replier:   notif,
		Names:     ad,
		Bus:       bus,
		Location:  loc,
		Platform:  platform,
		SaveMode:  mapSaveMode(cfg),
		StartedAt: startedAt,
	}
	ropts, err := mapRouter(cfg)
	if err != nil {
		return nil, err
	}
	cmdm := router.NewCommandManager(log, reminder.NewParser(loc), handler.Handle, notif, ropts)

	reg := observability.NewRegistry()
	metrics := observability.NewMetrics(reg)
	observability.RegisterPending(reg, func() int { return store.Stats().Pending })

	var (
		kc   *kgo.Client
		sink *events.Sink
	)
	if kcfg, enabled := mapKafka(cfg); enabled {
		kc, err = events.NewClient(kcfg)
		if err != nil {
			return nil, fmt.Errorf("events.kafka: %w", err)
		}
		sink = events.NewSink(kc, kcfg, log)
		log.Info("kafka event sink enabled", logx.String("topic", kcfg.Topic))
	}

	a := &App{
		cfgPath:   cfgm.Path(),
		platform:  platform,
		startedAt: startedAt,
		cfgm:      cfgm,
		log:       log.With(logx.String("comp", "app")),
		logs:      logSvc,
		bus:       bus,
		adapter:   ad,
		store:     store,
		persist:   persist,
		notif:     notif,
		sched:     sched,
		cmdm:      cmdm,
		metrics:   metrics,
		kafka:     kc,
		sink:      sink,
		updates:   make(chan transport.Update, 256),
	}
	hcfg := mapHTTP(cfg)
	a.http = httpapi.New(hcfg, httpapi.Router(hcfg, httpapi.Deps{
		Status:   a.Status,
		Metrics:  observability.Handler(reg),
		Webhook:  webhook,
		Location: loc,
	}, log), log)
	return a, nil
}

// Status is the snapshot served by the HTTP status endpoints.
func (a *App) Status() httpapi.StatusView {
	v := httpapi.StatusView{
		Platform:  a.platform,
		StartedAt: a.startedAt,
		Now:       time.Now(),
		Store:     a.store.Stats(),
		Persist:   a.persist.Status(),
		Scheduler: a.sched.Status(),
		Healthy:   true,
	}
	if err := a.Err(); err != nil {
		v.Healthy = false
		v.Error = err.Error()
	}
	return v
}

// HTTPAddr is the bound address of the status server, empty when disabled.
func (a *App) HTTPAddr() string { return a.http.Addr() }

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
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	c := a.sup.Context()

	// event consumers first so they observe the restore
	a.sup.Go("metrics", func(c context.Context) error {
		return a.metrics.Run(c, a.bus, a.log)
	})
	if a.sink != nil {
		a.sup.Go("events.kafka", func(c context.Context) error {
			return a.sink.Run(c, a.bus, events.DefaultPrefixes...)
		})
	}

	// restore before accepting messages so the first list/cancel sees old tasks
	lctx, cancel := context.WithTimeout(c, time.Minute)
	err := a.persist.Load(lctx)
	cancel()
	if err != nil {
		// start empty rather than refuse to run; the next save overwrites
		a.log.Error("restore failed; starting with an empty store", logx.Err(err))
	}
	if err := a.persist.Start(c); err != nil {
		return err
	}

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.http.Start(c)
	a.sched.Start(c)

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})

	// hot reload config fan-out
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
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	notifySystemd(a.log, sdReady)
	a.log.Info("app started",
		logx.String("platform", a.platform),
		logx.String("config", a.cfgPath),
		logx.Int("restored", a.store.Stats().Pending),
	)
	return nil
}

// applyConfig applies the live sections of a reloaded config and reports
// the rest.
func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Debug("config change summary", fields...)

	for _, s := range sections {
		if s == "logging" {
			a.logs.Apply(mapLogging(newCfg))
		}
	}
	if pending := config.RestartRequired(sections); len(pending) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect",
			logx.String("sections", strings.Join(pending, ",")))
	}
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifySystemd(a.log, sdStopping)

	// First, cancel the app run context so background loops start unwinding immediately.
	a.sup.Cancel()

	// run a shutdown step with an upper bound so one component can't stall the whole stop
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
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
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			if took := time.Since(start); took >= 500*time.Millisecond {
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
				if err := <-done; err != nil {
					a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
				}
			}()
		}
	}

	// inbound first so no new tasks arrive while the last save runs
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("http", 2*time.Second, a.http.Stop)
	step("scheduler", 3*time.Second, a.sched.Stop)
	step("persistence", 30*time.Second, a.persist.Stop)
	step("storage", time.Second, func(context.Context) error { return a.persist.Close() })
	step("kafka", 2*time.Second, func(c context.Context) error {
		if a.kafka == nil {
			return nil
		}
		err := a.kafka.Flush(c)
		a.kafka.Close()
		return err
	})
	step("supervisor", 2*time.Second, a.sup.Wait)

	a.log.Info("stopped", logx.Int("pending", a.store.Stats().Pending))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
