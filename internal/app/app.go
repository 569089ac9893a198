// Package app wires configuration, collaborators and the run loop into a
// runnable process.
package app

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"karmabot/internal/bot"
	"karmabot/internal/config"
	"karmabot/internal/eventbus"
	"karmabot/internal/notify/telegram"
	"karmabot/internal/pacing"
	"karmabot/internal/platform/reddit"
	"karmabot/internal/quota"
	"karmabot/internal/report"
	"karmabot/internal/runtime/supervisor"
	"karmabot/internal/status"
	"karmabot/internal/storage"
	"karmabot/internal/textgen"
	logx "karmabot/pkg/logx"
)

type App struct {
	cfg *config.Config
	loc *time.Location

	log   logx.Logger
	logs  *logx.Service
	bus   *eventbus.MemBus
	store storage.Store

	quota    *quota.Tracker
	platform *reddit.Client
	metrics  *status.Metrics
	runner   *bot.Runner
	digest   *report.Service
	status   *status.Server
}

// New builds every collaborator from a validated configuration. Nothing
// talks to the network until Run.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	var (
		notifier *telegram.Notifier
		sender   logx.Sender
	)
	if cfg.Telegram.Token != "" && cfg.Telegram.ChatID != 0 {
		notifier, err = telegram.New(telegram.Config{
			Token:    cfg.Telegram.Token,
			ChatID:   cfg.Telegram.ChatID,
			ThreadID: cfg.Telegram.ThreadID,
		})
		if err != nil {
			return nil, fmt.Errorf("telegram: %w", err)
		}
		sender = notifier
	}

	logs, log := logx.New(cfg.LogConfig(), sender)
	log = log.With(logx.String("comp", "app"))

	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: cfg.StorageBusyTimeout(),
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		_ = logs.Close()
		return nil, fmt.Errorf("storage: %w", err)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	account := cfg.PickAccount(rng)
	log.Info("account selected", logx.String("username", account.Username), logx.Int("accounts", len(cfg.Accounts)))

	platform := reddit.New(reddit.Config{
		AuthURL:      cfg.Platform.AuthURL,
		APIURL:       cfg.Platform.APIURL,
		ClientID:     account.ClientID,
		ClientSecret: account.ClientSecret,
		Username:     account.Username,
		Password:     account.Password,
		UserAgent:    account.UserAgent,
		RatePerSec:   cfg.Platform.RatePerSec,
		Burst:        cfg.Platform.Burst,
		Timeout:      cfg.PlatformTimeout(),
	}, log.With(logx.String("comp", "reddit")))

	gen, err := textgen.New(ctx, textgen.Config{
		Driver:       cfg.TextGen.Driver,
		APIKey:       cfg.TextGen.APIKey,
		Model:        cfg.TextGen.Model,
		SystemPrompt: cfg.TextGen.SystemPrompt,
	}, log.With(logx.String("comp", "textgen")))
	if err != nil {
		closeAll(store, logs)
		return nil, fmt.Errorf("textgen: %w", err)
	}

	tracker := quota.New(cfg.MaxDailyActions, time.Now(), loc)
	bus := eventbus.New()
	metrics := status.NewMetrics(tracker)

	botLog := log.With(logx.String("comp", "bot"))
	dispatcher := bot.NewDispatcher(bot.DispatcherConfig{
		RepostCommunities:  cfg.RepostCommunities,
		CommentCommunities: cfg.CommentCommunities,
		DryRun:             cfg.DryRun,
	}, bot.DispatcherDeps{
		Platform:  platform,
		Generator: gen,
		Gate:      tracker,
		Random:    rng,
		Logger:    botLog,
	})

	recorders := []bot.Recorder{bot.BusRecorder{Bus: bus}, metrics}
	if store != nil {
		recorders = append(recorders, bot.JournalRecorder{Store: store, Log: botLog})
	}
	runner := bot.NewRunner(bot.RunnerDeps{
		Cycler:    dispatcher,
		Pacer:     pacing.NewPolicy(cfg.Pacing(), pacing.NewTimeJitter(), loc),
		Recorders: recorders,
		Logger:    botLog,
	})

	a := &App{
		cfg:      cfg,
		loc:      loc,
		log:      log,
		logs:     logs,
		bus:      bus,
		store:    store,
		quota:    tracker,
		platform: platform,
		metrics:  metrics,
		runner:   runner,
	}
	if cfg.Report.Enabled {
		var digestSender logx.Sender
		if notifier != nil {
			digestSender = notifier
		}
		a.digest = report.New(report.Config{Schedule: cfg.Report.Schedule, Location: loc},
			bus, tracker, digestSender, log.With(logx.String("comp", "report")))
	}
	if cfg.Status.Enabled {
		sc := status.Config{Addr: cfg.Status.Addr, Token: cfg.Status.Token}
		if lc := cfg.LogConfig(); lc.File.Enabled {
			sc.LogPath = cmp.Or(lc.File.Path, logx.DefaultFilePath)
		}
		a.status = status.New(sc, tracker, metrics, log.With(logx.String("comp", "status")))
	}
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() logx.Logger { return a.log }

// Quota exposes the tracker state.
func (a *App) Quota() quota.Snapshot { return a.quota.Snapshot() }

// Run authenticates, then runs the bot loop and the auxiliary services
// until ctx is canceled (nil) or the loop fails fatally (the error).
func (a *App) Run(ctx context.Context) error {
	a.log.Info("starting karma bot",
		logx.Int("max_daily_actions", a.cfg.MaxDailyActions),
		logx.Int("repost_communities", len(a.cfg.RepostCommunities)),
		logx.Int("comment_communities", len(a.cfg.CommentCommunities)),
		logx.Bool("dry_run", a.cfg.DryRun),
		logx.String("tz", a.loc.String()),
	)
	if err := a.platform.Authenticate(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		a.log.Error("authentication failed", logx.Err(err))
		return err
	}

	sup := supervisor.New(ctx,
		supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))),
		supervisor.WithCancelOnError(true),
	)
	sup.Go("bot.run", a.runner.Run)
	if a.status != nil {
		sup.GoRestart("status.http", a.status.Run, supervisor.WithRestartBackoff(time.Second, 30*time.Second))
	}
	if a.digest != nil {
		sup.GoRestart("report.digest", a.digest.Run, supervisor.WithRestartBackoff(time.Second, time.Minute))
	}
	startWatchdog(sup, a.log)

	notifyReady(a.log, a.cfg.MaxDailyActions)
	err := sup.Wait(context.Background())

	reason := "interrupted"
	if err != nil {
		reason = "fatal error"
	}
	a.bus.Publish(eventbus.Event{Type: eventbus.TypeStopping, Data: reason})
	notifyStopping(a.log, reason)

	if err != nil {
		return err
	}
	a.log.Info("karma bot stopped")
	return nil
}

// Close releases the journal and flushes the log sinks.
func (a *App) Close() error {
	return closeAll(a.store, a.logs)
}

func closeAll(store storage.Store, logs *logx.Service) error {
	var errs []error
	if store != nil {
		errs = append(errs, store.Close())
	}
	if logs != nil {
		errs = append(errs, logs.Close())
	}
	return errors.Join(errs...)
}
