// Package app wires the campaign components into one process and exposes the
// administrative triggers used by the CLI and the admin API.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"postpilot/internal/activity"
	"postpilot/internal/admin"
	"postpilot/internal/campaign"
	"postpilot/internal/config"
	"postpilot/internal/dispatch"
	"postpilot/internal/eventbus"
	"postpilot/internal/platform"
	"postpilot/internal/platform/bluesky"
	"postpilot/internal/replier"
	"postpilot/internal/runtime/supervisor"
	"postpilot/internal/storage"
	"postpilot/internal/task/scheduler"
	"postpilot/internal/textgen"
	kit "postpilot/internal/transport"
	"postpilot/internal/transport/telegram"
	logx "postpilot/pkg/logx"
)

const (
	loopDispatch = "dispatch"
	loopComments = "comments"
)

var ErrNotStarted = errors.New("app not started")

// Options overrides collaborators that are otherwise built from config.
type Options struct {
	Store      storage.Store
	Generator  textgen.Generator
	Publishers *platform.Publishers
	Sender     kit.Sender
	Logger     logx.Logger
	Now        func() time.Time
}

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor
	now  func() time.Time

	log      logx.Logger
	logs     *logx.Service
	bus      *eventbus.MemBus
	store    storage.Store
	activity *activity.Log
	gen      textgen.Generator
	pubs     platform.Publishers
	sender   kit.Sender

	calMu sync.RWMutex
	cal   *campaign.Calendar

	planner *campaign.Planner
	disp    *dispatch.Dispatcher
	replier *replier.Replier
	sched   *scheduler.Service
	admin   *admin.Service
	alerts  *alerts

	loopsMu      sync.Mutex
	loopsStarted bool
	loops        loopSettings
}

// New builds the process context from the config held by cfgm, loading it
// first when needed.
func New(ctx context.Context, cfgm *config.ConfigManager, opt Options) (*App, error) {
	cfg := cfgm.Get()
	if cfg == nil {
		var err error
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	now := opt.Now
	if now == nil {
		now = time.Now
	}

	sender := opt.Sender
	if sender == nil && set(cfg.Telegram.Token) {
		timeout, err := config.ParseDurationOrDefault("telegram.timeout", cfg.Telegram.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{Token: cfg.Telegram.Token, Timeout: timeout},
			logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		sender = tg
	}

	var (
		logSvc *logx.Service
		log    = opt.Logger
	)
	if log.IsZero() {
		logSvc, log = logx.New(mapLogConfig(cfg), sender)
	}
	log = log.With(logx.String("comp", "app"))

	ls, err := mapLoopSettings(cfg)
	if err != nil {
		return nil, err
	}
	cal, err := campaign.FromConfig(cfg.Campaign)
	if err != nil {
		return nil, err
	}
	adminCfg, err := mapAdminConfig(cfg)
	if err != nil {
		return nil, err
	}

	store := opt.Store
	if store == nil {
		sc, err := mapStorageConfig(cfg)
		if err != nil {
			return nil, err
		}
		if store, err = storage.Open(sc, log.With(logx.String("comp", "storage"))); err != nil {
			return nil, err
		}
		log.Debug("storage opened", logx.String("driver", sc.Driver), logx.String("path", sc.Path))
	}

	gen := opt.Generator
	if gen == nil {
		to, err := mapTextgenOptions(cfg)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		chain, err := textgen.Build(ctx, to, log.With(logx.String("comp", "textgen")))
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		if len(chain.Backends()) == 0 {
			log.Warn("no text generation backend configured; generation will be skipped")
		}
		gen = chain
	}

	pubs := buildPublishers(cfg)
	if opt.Publishers != nil {
		pubs = *opt.Publishers
	}

	a := &App{
		cfgm:     cfgm,
		now:      now,
		log:      log,
		logs:     logSvc,
		bus:      eventbus.New(),
		store:    store,
		activity: activity.New(activity.DefaultCapacity),
		gen:      gen,
		pubs:     pubs,
		sender:   sender,
		cal:      cal,
		loops:    ls,
	}

	a.planner = campaign.NewPlanner(campaign.PlannerOptions{
		Store:        store,
		Generator:    gen,
		Calendar:     a.calendar,
		PromotedLink: a.promotedLink,
		MaxTokens:    cfg.Campaign.MaxTokens,
		Activity:     a.activity,
		Bus:          a.bus,
		Log:          log,
		Now:          now,
	})
	a.disp = dispatch.New(dispatch.Options{
		Store:          store,
		Publishers:     pubs,
		Calendar:       a.calendar,
		Permalink:      a.permalink,
		PublishTimeout: ls.PublishTimeout,
		Activity:       a.activity,
		Bus:            a.bus,
		Log:            log,
		Now:            now,
	})
	delay, err := config.ParseDurationOrDefault("replies.delay", cfg.Replies.Delay, defaultReplyDelay)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	a.replier = replier.New(replier.Options{
		Publishers:   pubs,
		Generator:    gen,
		PromotedLink: a.promotedLink,
		RecentLimit:  cfg.Replies.RecentLimit,
		Delay:        delay,
		MaxTokens:    cfg.Replies.MaxTokens,
		Activity:     a.activity,
		Log:          log,
	})

	a.sched = scheduler.New(ls.Scheduler, log.With(logx.String("comp", "scheduler")), a.bus)
	if err := a.registerLoops(cfg, ls); err != nil {
		_ = store.Close()
		return nil, err
	}
	a.admin = admin.New(adminCfg, adminBackend{a}, log)
	a.alerts = newAlerts(sender, cfg.Telegram.ChatID, log)
	return a, nil
}

func (a *App) calendar() *campaign.Calendar {
	a.calMu.RLock()
	defer a.calMu.RUnlock()
	return a.cal
}

func (a *App) setCalendar(c *campaign.Calendar) {
	a.calMu.Lock()
	a.cal = c
	a.calMu.Unlock()
}

func (a *App) promotedLink() string {
	if cfg := a.cfgm.Get(); cfg != nil && set(cfg.Campaign.PromotedLink) {
		return cfg.Campaign.PromotedLink
	}
	return config.DefaultPromotedLink
}

func (a *App) permalink(ref platform.StatusRef) string {
	if ref.RecordKey == "" {
		return ref.URI
	}
	mb := a.cfgm.Get().Platforms.Microblog
	return bluesky.Permalink(mb.PermalinkTemplate, mb.Handle, ref.RecordKey)
}

// registerLoops upserts the dispatch loop and, when replies are enabled and
// the forum is configured, the comment loop.
func (a *App) registerLoops(cfg *config.Config, ls loopSettings) error {
	err := a.sched.AddInterval(loopDispatch, ls.Dispatch, 0, func(ctx context.Context) error {
		_, err := a.disp.RunCycle(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if !cfg.Replies.Enabled || a.pubs.ForumAccount == nil {
		if a.sched.Remove(loopComments) {
			a.log.Info("comment loop removed")
		}
		return nil
	}
	return a.sched.AddInterval(loopComments, ls.Comments, 0, func(ctx context.Context) error {
		_, err := a.replier.RunCycle(ctx)
		return err
	})
}

// Start runs the supervised infrastructure (config watch, admin API, alerts).
// Background loops are started separately by StartBackgroundLoops.
func (a *App) Start(ctx context.Context) error {
	if a.sup != nil {
		return nil
	}
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error { return validateWiring(cfg) })

	a.admin.Start(a.sup.Context())
	if a.alerts.enabled() {
		events, unsub := a.bus.Subscribe(64)
		a.sup.Go0("alerts", func(c context.Context) {
			defer unsub()
			a.alerts.run(c, events)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	a.log.Info("app started", logx.Int("calendar_entries", a.calendar().Len()))
	return nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// GenerateAndSchedule plans the whole calendar and inserts new rows.
func (a *App) GenerateAndSchedule(ctx context.Context) (campaign.PlanReport, error) {
	return a.planner.GenerateAndSchedule(ctx)
}

// RunDispatchCycle publishes everything due now.
func (a *App) RunDispatchCycle(ctx context.Context) (dispatch.Summary, error) {
	return a.disp.RunCycle(ctx)
}

// RunReplyCycle answers comments once.
func (a *App) RunReplyCycle(ctx context.Context) (replier.Report, error) {
	return a.replier.RunCycle(ctx)
}

// StartBackgroundLoops starts the periodic loops once per process. It
// reports whether this call started them.
func (a *App) StartBackgroundLoops(context.Context) (bool, error) {
	if a.sup == nil {
		return false, ErrNotStarted
	}
	a.loopsMu.Lock()
	defer a.loopsMu.Unlock()
	if a.loopsStarted {
		a.log.Info("Scheduler is already running")
		a.activity.Add("Scheduler is already running")
		return false, nil
	}
	a.sched.Start(a.sup.Context())
	a.loopsStarted = true

	// work already due is processed right away
	a.sched.RunNow(loopDispatch)
	a.sched.RunNow(loopComments)

	a.log.Info("Scheduler started successfully",
		logx.Duration("dispatch_interval", a.loops.Dispatch),
		logx.Duration("comment_interval", a.loops.Comments),
	)
	a.activity.Add("Scheduler started successfully")
	return true, nil
}

func (a *App) LoopsStarted() bool {
	a.loopsMu.Lock()
	defer a.loopsMu.Unlock()
	return a.loopsStarted
}

func (a *App) AllPosts(ctx context.Context) ([]storage.Post, error) {
	return a.store.All(ctx)
}

func (a *App) DuePosts(ctx context.Context) ([]storage.Post, error) {
	return a.store.DueUnposted(ctx, a.now())
}

// Enqueue inserts an ad-hoc row scheduled at at. An empty id gets a
// generated one. It reports false when the id already exists.
func (a *App) Enqueue(ctx context.Context, kind platform.Kind, text string, at time.Time, id string) (storage.Post, bool, error) {
	if !kind.Valid() {
		return storage.Post{}, false, fmt.Errorf("unknown platform %q", kind)
	}
	if strings.TrimSpace(text) == "" {
		return storage.Post{}, false, errors.New("text is required")
	}
	if id = strings.TrimSpace(id); id == "" {
		id = fmt.Sprintf("adhoc_%s_%d", kind, at.UTC().Unix())
	}
	p := storage.Post{ID: id, Platform: kind.String(), Text: text, ScheduledAt: at.UTC().Truncate(time.Minute)}
	ok, err := a.store.InsertIfAbsent(ctx, p)
	if err != nil {
		return p, false, err
	}
	if ok {
		a.activity.Addf("Enqueued %s post %s for %s", kind, id, storage.FormatTime(p.ScheduledAt))
	}
	return p, ok, nil
}

func (a *App) Logs() []string { return a.activity.Entries() }

func (a *App) LastSummary() string { return a.activity.Summary() }

func (a *App) Stats(ctx context.Context) (storage.Stats, error) {
	return a.store.Stats(ctx, a.now())
}

func (a *App) Scheduler() scheduler.Snapshot { return a.sched.Snapshot() }

// Stop tears components down in dependency order. Each step is bounded so one
// component cannot stall the whole shutdown.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.sup != nil {
		a.sup.Cancel()
	}

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		stepCtx, cancel := context.WithTimeout(ctx, max)
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
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	step("scheduler", 5*time.Second, func(c context.Context) error { return a.sched.Stop(c) })
	step("admin", time.Second, func(c context.Context) error { a.admin.Stop(c); return nil })
	if a.sup != nil {
		step("supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	}
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
