// Package app wires the monitor together: config, logging, storage, sources,
// the scheduling loop, delivery, and the ops surface (metrics, systemd).
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/robfig/cron/v3"

	"github.com/itsgxxxxx/AI-Monitor/internal/audit"
	"github.com/itsgxxxxx/AI-Monitor/internal/config"
	"github.com/itsgxxxxx/AI-Monitor/internal/domain"
	"github.com/itsgxxxxx/AI-Monitor/internal/llm"
	"github.com/itsgxxxxx/AI-Monitor/internal/metrics"
	"github.com/itsgxxxxx/AI-Monitor/internal/monitor"
	"github.com/itsgxxxxx/AI-Monitor/internal/notify"
	"github.com/itsgxxxxx/AI-Monitor/internal/runtime/supervisor"
	"github.com/itsgxxxxx/AI-Monitor/internal/sources/rss"
	"github.com/itsgxxxxx/AI-Monitor/internal/sources/twitter"
	"github.com/itsgxxxxx/AI-Monitor/internal/sources/web"
	"github.com/itsgxxxxx/AI-Monitor/internal/storage"
	"github.com/itsgxxxxx/AI-Monitor/pkg/logx"
)

const (
	defaultTimezone  = "Asia/Shanghai"
	defaultDBPath    = "./data/ai_monitor.db"
	defaultAuditPath = "./logs/decision.jsonl"
	defaultUserAgent = "ai-monitor/1.0"

	// Retention prune runs nightly at 04:00 local, outside the usual news
	// hours.
	pruneCronSpec = "0 4 * * *"
)

// snapshot is the hot-reloadable slice of config, swapped atomically under
// mu and read once per scheduling round.
type snapshot struct {
	entities      []domain.Entity
	feeds         []rss.Feed
	pages         []web.Page
	retentionDays int
}

type App struct {
	manager *config.Manager
	logs    *logx.Service
	log     logx.Logger

	loc        *time.Location
	policy     *monitor.Policy
	registry   *monitor.Registry
	classifier *monitor.Classifier
	poller     *monitor.Poller

	store   *storage.Store
	sink    *audit.FileSink
	metrics *metrics.Metrics

	feedClient *rss.Client
	webClient  *web.Client
	dispatcher *notify.Dispatcher

	httpSrv *http.Server
	cron    *cron.Cron
	sup     *supervisor.Supervisor

	mu   sync.Mutex
	snap snapshot
}

// New builds the full application from the config file at path. Components
// whose config is absent (Telegram token, TikHub key, LLM) degrade to
// disabled rather than failing startup.
func New(cfgPath string) (*App, error) {
	manager := config.NewManager(cfgPath)
	cfg, err := manager.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || cfg.Logging.File == "",
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
	})
	manager.SetLogger(log.With(logx.String("component", "config")))

	tz := cfg.Poll.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	night := monitor.DefaultNightWindow()
	if cfg.Poll.NightStartHour != 0 || cfg.Poll.NightEndHour != 0 {
		night = monitor.NightWindow{Start: cfg.Poll.NightStartHour, End: cfg.Poll.NightEndHour}
	}

	a := &App{
		manager:    manager,
		logs:       logs,
		log:        log,
		loc:        loc,
		policy:     monitor.NewPolicy(loc, night),
		registry:   monitor.NewRegistry(time.Now()),
		classifier: monitor.NewClassifier(keywordsFrom(cfg)),
		metrics:    metrics.New(),
	}

	manager.SetValidator(a.validateReload)

	busyTimeout := durationOr("database.busy_timeout", cfg.Database.BusyTimeout, 5*time.Second)
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	a.store, err = storage.Open(storage.Config{Path: dbPath, BusyTimeout: busyTimeout},
		log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	auditPath := cfg.Audit.Path
	if auditPath == "" {
		auditPath = defaultAuditPath
	}
	a.sink, err = audit.NewFileSink(auditPath, log.With(logx.String("component", "audit")))
	if err != nil {
		a.store.Close()
		return nil, fmt.Errorf("open audit sink: %w", err)
	}

	a.buildSources(cfg)
	a.buildDelivery(cfg)
	a.snap = snapshotFrom(cfg)

	return a, nil
}

func (a *App) buildSources(cfg *config.Config) {
	httpTimeout := durationOr("http.timeout", cfg.HTTP.Timeout, 20*time.Second)
	userAgent := cfg.HTTP.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	if strings.TrimSpace(cfg.TikHub.APIKey) != "" {
		fetcher := twitter.New(twitter.Config{
			APIKey:        cfg.TikHub.APIKey,
			BaseURL:       cfg.TikHub.BaseURL,
			UserAgent:     userAgent,
			Timeout:       httpTimeout,
			RatePerMinute: cfg.TikHub.RatePerMinute,
		}, a.log.With(logx.String("component", "twitter")))

		a.poller = monitor.NewPoller(monitor.PollerDeps{
			Registry:   a.registry,
			Policy:     a.policy,
			Classifier: a.classifier,
			Fetcher:    fetcher,
			Sink:       a.sink,
			Counters:   a.metrics,
			Log:        a.log.With(logx.String("component", "poller")),
		})
	} else {
		a.log.Warn("tikhub api key missing, account polling disabled")
	}

	a.feedClient = rss.New(userAgent, httpTimeout, a.log.With(logx.String("component", "rss")))
	a.webClient = web.New(a.store, userAgent, httpTimeout, a.log.With(logx.String("component", "web")))
}

func (a *App) buildDelivery(cfg *config.Config) {
	var summ notify.Summarizer
	if cfg.LLM.Enabled {
		timeout := durationOr("llm.timeout", cfg.LLM.Timeout, 30*time.Second)
		summ = llm.New(llm.Config{
			APIKey:  cfg.LLM.APIKey,
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Timeout: timeout,
		}, a.log.With(logx.String("component", "llm")))
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		a.log.Warn("telegram token missing, delivery disabled")
		return
	}

	sender, err := notify.NewTelegram(notify.TelegramConfig{
		Token:         cfg.Telegram.Token,
		ChatID:        cfg.Telegram.ChatID,
		RatePerSecond: cfg.Telegram.RatePerSecond,
	}, summ, a.loc, a.log.With(logx.String("component", "telegram")))
	if err != nil {
		a.log.Error("telegram init failed, delivery disabled", logx.Err(err))
		return
	}

	a.dispatcher = notify.NewDispatcher(a.store, sender, a.sink, a.metrics,
		a.log.With(logx.String("component", "dispatch")))
}

// Start launches the background goroutines and reports readiness to systemd.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, a.log.With(logx.String("component", "supervisor")))

	a.sup.Go("config.watch", a.manager.Watch)

	updates := a.manager.Subscribe(1)
	a.sup.Go("config.apply", func(ctx context.Context) error {
		defer a.manager.Unsubscribe(updates)
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg := <-updates:
				if cfg != nil {
					a.applyConfig(cfg)
				}
			}
		}
	})

	a.sup.GoRestart("monitor.loop", a.runLoop)

	if cfg := a.manager.Get(); cfg != nil && cfg.Metrics.Enabled {
		a.startMetricsServer(cfg.Metrics.Listen)
	}

	a.cron = cron.New(cron.WithLocation(a.loc))
	if _, err := a.cron.AddFunc(pruneCronSpec, a.pruneRetention); err != nil {
		a.log.Warn("retention job not scheduled", logx.Err(err))
	}
	a.cron.Start()

	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Debug("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.startWatchdog()
	}

	a.log.Info("monitor started", logx.String("timezone", a.loc.String()))
	return nil
}

func (a *App) startMetricsServer(listen string) {
	if listen == "" {
		listen = ":9104"
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: listen, Handler: mux}
	a.httpSrv = srv

	a.sup.Go("metrics.http", func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- srv.ListenAndServe() }()
		select {
		case <-ctx.Done():
			shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return err
		}
	})
	a.log.Info("metrics listening", logx.String("addr", listen))
}

func (a *App) startWatchdog() {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go("systemd.watchdog", func(ctx context.Context) error {
		ticker := time.NewTicker(interval / 2)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

// runLoop is the single scheduling goroutine. It owns the registry; nothing
// else touches clock state.
func (a *App) runLoop(ctx context.Context) error {
	for {
		now := time.Now().In(a.loc)
		poll := monitor.NewPoll(now)
		night := a.policy.IsNight(now)
		snap := a.snapshot()

		var items []domain.Item
		if a.poller != nil {
			items = a.poller.Run(ctx, poll, snap.entities)
		}
		items = append(items, a.collectFeeds(ctx, poll, snap.feeds)...)
		items = append(items, a.collectPages(ctx, poll, snap.pages)...)

		pushed := 0
		if a.dispatcher != nil && len(items) > 0 {
			pushed = a.dispatcher.Dispatch(ctx, poll, items, night)
		}

		tick := a.policy.GlobalTick(now)
		a.log.Info("round complete",
			logx.String("poll_id", poll.ID),
			logx.Bool("night", night),
			logx.Int("clocks", a.registry.Len()),
			logx.Int("accepted", len(items)),
			logx.Int("pushed", pushed),
			logx.Duration("next_tick", tick),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(tick):
		}
	}
}

// collectFeeds pulls every configured feed and keeps only items the keyword
// rules rate major or minor. Feed failures degrade to an empty fetch.
func (a *App) collectFeeds(ctx context.Context, poll monitor.Poll, feeds []rss.Feed) []domain.Item {
	var out []domain.Item
	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		fetched, err := a.feedClient.Fetch(ctx, feed)
		if err != nil {
			a.log.Warn("feed fetch failed", logx.String("feed", feed.Name), logx.Err(err))
			a.metrics.FetchError(feed.Name)
			continue
		}
		out = append(out, a.rateItems(poll, fetched)...)
	}
	return out
}

// collectPages runs change detection on watched pages without feeds.
func (a *App) collectPages(ctx context.Context, poll monitor.Poll, pages []web.Page) []domain.Item {
	var out []domain.Item
	for _, page := range pages {
		if ctx.Err() != nil {
			break
		}
		fetched, err := a.webClient.Fetch(ctx, page)
		if err != nil {
			a.log.Warn("page fetch failed", logx.String("page", page.Name), logx.Err(err))
			a.metrics.FetchError(page.Name)
			continue
		}
		out = append(out, a.rateItems(poll, fetched)...)
	}
	return out
}

// rateItems applies the importance and noise rules to source items that did
// not go through the account pipeline. Feed and page items carry no entity,
// so attention gating never applies, but the noise denylist still does.
func (a *App) rateItems(poll monitor.Poll, items []domain.Item) []domain.Item {
	var kept []domain.Item
	for _, item := range items {
		verdict := a.classifier.Importance(domain.Entity{}, item.Title+" "+item.Summary)
		switch verdict.Label {
		case monitor.LabelMajor:
			item.Importance = domain.ImportanceMajor
		case monitor.LabelMinor:
			item.Importance = domain.ImportanceMinor
		default:
			continue
		}
		if term, hit := a.classifier.Noise(item.Title + " " + item.Summary); hit {
			a.metrics.Decision(audit.StageNoise, audit.DecisionDrop)
			a.sink.Log(audit.Record{
				PollID:      poll.ID,
				RunID:       poll.RunID,
				Entity:      item.Source,
				ItemID:      item.URL,
				Stage:       audit.StageNoise,
				Decision:    audit.DecisionDrop,
				ReasonCode:  audit.ReasonNoiseKeyword,
				MatchedRule: term,
			})
			continue
		}
		item.Reason = "importance:" + verdict.Rule
		kept = append(kept, item)
	}
	return kept
}

func (a *App) pruneRetention() {
	snap := a.snapshot()
	if snap.retentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -snap.retentionDays)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	n, err := a.store.PruneOlderThan(ctx, cutoff)
	if err != nil {
		a.log.Warn("retention prune failed", logx.Err(err))
		return
	}
	a.log.Info("retention prune done", logx.Int64("removed", n), logx.Time("cutoff", cutoff))
}

// applyConfig applies the hot-reloadable sections: log level and sinks,
// keyword rules, and the entity/feed lists. Storage, Telegram, and listen
// addresses stay fixed until restart.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console || cfg.Logging.File == "",
		File: logx.FileConfig{
			Enabled: cfg.Logging.File != "",
			Path:    cfg.Logging.File,
		},
	})
	a.classifier.Reload(keywordsFrom(cfg))

	snap := snapshotFrom(cfg)
	a.mu.Lock()
	a.snap = snap
	a.mu.Unlock()

	a.log.Info("config applied",
		logx.Int("accounts", len(snap.entities)),
		logx.Int("feeds", len(snap.feeds)),
	)
}

func (a *App) snapshot() snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snap
}

// validateReload gates hot reloads on constraints the running process cannot
// satisfy. The timezone fixes the night window and cron location at startup,
// so a reload that changes it is rejected and needs a restart instead.
func (a *App) validateReload(_ context.Context, cfg *config.Config) error {
	tz := cfg.Poll.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	if tz != a.loc.String() {
		return fmt.Errorf("poll.timezone is fixed at startup (running %s, config has %s)", a.loc, tz)
	}
	return nil
}

// durationOr parses an optional duration field, substituting def when the
// field is empty or unset.
func durationOr(path, raw string, def time.Duration) time.Duration {
	d, err := config.ParseDurationField(path, raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// Stop shuts everything down in reverse dependency order.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.cron != nil {
		<-a.cron.Stop().Done()
	}

	var err error
	if a.sup != nil {
		stopCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		err = a.sup.Stop(stopCtx)
	}

	if a.sink != nil {
		_ = a.sink.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("monitor stopped")
	_ = a.logs.Close()
	return err
}

func keywordsFrom(cfg *config.Config) monitor.Keywords {
	return monitor.Keywords{
		Acquisition:    cfg.Classifier.AcquisitionKeywords,
		Launch:         cfg.Classifier.LaunchKeywords,
		Update:         cfg.Classifier.UpdateKeywords,
		Noise:          cfg.Classifier.NoiseKeywords,
		AttentionAllow: cfg.Classifier.AttentionAllow,
		AttentionDeny:  cfg.Classifier.AttentionDeny,
	}
}

func snapshotFrom(cfg *config.Config) snapshot {
	snap := snapshot{
		entities:      cfg.Entities(),
		retentionDays: cfg.Poll.RetentionDays,
	}
	for _, f := range cfg.Feeds {
		snap.feeds = append(snap.feeds, rss.Feed{Name: f.Name, URL: f.URL})
	}
	for _, p := range cfg.Pages {
		snap.pages = append(snap.pages, web.Page{Name: p.Name, URL: p.URL, Selector: p.Selector})
	}
	return snap
}
