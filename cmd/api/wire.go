package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	appescrow "github.com/sandai/arena/src/app/escrow"
	"github.com/sandai/arena/src/app/matches"
	"github.com/sandai/arena/src/app/scheduler"
	"github.com/sandai/arena/src/app/tournaments"
	"github.com/sandai/arena/src/domain/escrow"
	"github.com/sandai/arena/src/domain/match"
	"github.com/sandai/arena/src/domain/notification"
	"github.com/sandai/arena/src/domain/player"
	"github.com/sandai/arena/src/domain/shared"
	"github.com/sandai/arena/src/domain/tournament"
	"github.com/sandai/arena/src/domain/verification"
	"github.com/sandai/arena/src/infra/config"
	"github.com/sandai/arena/src/infra/evidence"
	"github.com/sandai/arena/src/infra/memory"
	"github.com/sandai/arena/src/infra/metrics"
	"github.com/sandai/arena/src/infra/notify"
	"github.com/sandai/arena/src/infra/postgres"
)

// fundedLedger is a ledger operators can top up.
type fundedLedger interface {
	escrow.Ledger
	Creditor
}

type storage struct {
	ledger      fundedLedger
	matches     match.Repository
	tournaments tournament.Repository
	escrow      escrow.Repository
	close       func()
}

// application holds the wired services and their lifecycle.
type application struct {
	logger      *zap.Logger
	registry    *prometheus.Registry
	ledger      fundedLedger
	directory   *memory.Directory
	engine      *matches.Engine
	escrow      *appescrow.Service
	tournaments *tournaments.Service
	scheduler   *scheduler.Service
	outbox      *notify.Async
	closers     []func()
}

func buildApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{logger: logger, registry: prometheus.NewRegistry()}
	app.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	app.ledger = store.ledger
	app.closers = append(app.closers, store.close)

	resolver, err := buildResolver(ctx, cfg.Evidence)
	if err != nil {
		app.close()
		return nil, err
	}

	sink, outbox, err := buildNotifier(cfg.Notify, logger.Named("notify"))
	if err != nil {
		app.close()
		return nil, err
	}
	app.outbox = outbox

	collector, err := metrics.New(app.registry)
	if err != nil {
		app.close()
		return nil, err
	}

	directory, err := seedDirectory(cfg.Profiles, time.Now())
	if err != nil {
		app.close()
		return nil, err
	}
	app.directory = directory
	app.escrow = appescrow.NewService(store.ledger, store.escrow, logger.Named("escrow"))
	app.engine = matches.NewEngine(matches.Deps{
		Repo:      store.matches,
		Escrow:    app.escrow,
		Balances:  store.ledger,
		Resolver:  resolver,
		Directory: directory,
		Notifier:  sink,
		Metrics:   collector,
		Logger:    logger.Named("matches"),
	}, engineConfig(cfg.Engine))
	app.tournaments = tournaments.NewService(store.tournaments, store.ledger, app.engine, directory, sink, logger.Named("tournaments"))
	app.engine.SetListener(app.tournaments)

	sources := metrics.Sources{Searching: app.engine.Searching}
	if outbox != nil {
		sources.Dropped = outbox.Dropped
	}
	if err := metrics.Watch(app.registry, sources); err != nil {
		app.close()
		return nil, err
	}

	app.scheduler, err = scheduler.New(cfg.Scheduler.Interval, logger.Named("scheduler"),
		scheduler.Job{Name: "matches", Sweeper: app.engine},
		scheduler.Job{Name: "tournaments", Sweeper: app.tournaments},
	)
	if err != nil {
		app.close()
		return nil, err
	}

	if cfg.Storage.Driver == config.StorageMemory {
		for user, amount := range cfg.Balances {
			if err := store.ledger.Credit(ctx, shared.UserID(user), shared.Amount(amount)); err != nil {
				app.close()
				return nil, fmt.Errorf("seed balance for %s: %w", user, err)
			}
		}
	}
	return app, nil
}

// seedDirectory builds the profile directory from the configured players.
func seedDirectory(profiles map[string]config.ProfileConfig, now time.Time) (*memory.Directory, error) {
	d := memory.NewDirectory()
	for user, pc := range profiles {
		p, err := player.NewProfile(shared.UserID(user), pc.DisplayName, pc.Rating, now)
		if err != nil {
			return nil, fmt.Errorf("seed profile %s: %w", user, err)
		}
		if pc.Ammo != "" {
			p.Tags[player.TagAmmo] = pc.Ammo
		}
		p.Suspended = pc.Suspended
		d.Put(p)
	}
	return d, nil
}

func openStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*storage, error) {
	if cfg.Storage.Driver != config.StoragePostgres {
		return &storage{
			ledger:      memory.NewLedger(),
			matches:     memory.NewMatchRepository(),
			tournaments: memory.NewTournamentRepository(),
			escrow:      memory.NewEscrowRepository(),
			close:       func() {},
		}, nil
	}

	pool, err := postgres.Connect(ctx, cfg.Storage.DatabaseURL, cfg.Storage.MaxConns, logger)
	if err != nil {
		return nil, err
	}
	ledger := postgres.NewLedger(pool)
	if err := ledger.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	db, err := postgres.OpenGorm(cfg.Storage.DatabaseURL)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := postgres.Migrate(ctx, db); err != nil {
		pool.Close()
		return nil, err
	}
	return &storage{
		ledger:      ledger,
		matches:     postgres.NewMatchRepository(db),
		tournaments: postgres.NewTournamentRepository(db),
		escrow:      postgres.NewEscrowRepository(db),
		close: func() {
			if sqlDB, err := db.DB(); err == nil {
				_ = sqlDB.Close()
			}
			pool.Close()
		},
	}, nil
}

func buildResolver(ctx context.Context, cfg config.EvidenceConfig) (*verification.Resolver, error) {
	if cfg.Bucket == "" {
		return verification.NewResolver(nil), nil
	}
	v, err := evidence.New(ctx, evidence.Config{
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return verification.NewResolver(v), nil
}

// buildNotifier always logs events and delivers them to the configured
// webhooks through a bounded outbox.
func buildNotifier(cfg config.NotifyConfig, logger *zap.Logger) (notification.Sink, *notify.Async, error) {
	var channels notify.Fanout
	if cfg.WebhookURL != "" {
		channels = append(channels, notify.NewWebhookDispatcher(cfg.WebhookURL, cfg.WebhookSecret))
	}
	if cfg.DiscordWebhookURL != "" {
		d, err := notify.NewDiscordDispatcher(cfg.DiscordWebhookURL, cfg.DiscordUsername)
		if err != nil {
			return nil, nil, fmt.Errorf("discord webhook: %w", err)
		}
		channels = append(channels, d)
	}
	logSink := notify.NewLogSink(logger)
	if len(channels) == 0 {
		return logSink, nil, nil
	}
	outbox := notify.NewAsync(channels, logger, notify.AsyncOptions{
		QueueSize:     cfg.QueueSize,
		BatchSize:     cfg.BatchSize,
		FlushInterval: cfg.FlushInterval,
	})
	return notify.Tee{logSink, outbox}, outbox, nil
}

func engineConfig(c config.EngineConfig) matches.Config {
	out := matches.DefaultConfig()
	if c.Shards > 0 {
		out.Shards = c.Shards
	}
	if c.MatchmakingTimeout > 0 {
		out.MatchmakingTimeout = c.MatchmakingTimeout
	}
	if c.ReadyGrace > 0 {
		out.ReadyGrace = c.ReadyGrace
	}
	if c.VerificationWindow > 0 {
		out.VerificationWindow = c.VerificationWindow
	}
	if c.DefaultPlayDuration > 0 {
		out.DefaultPlayDuration = c.DefaultPlayDuration
	}
	for game, d := range c.PlayDurations {
		out.PlayDurations[shared.GameType(game)] = d
	}
	out.RatingWindow = c.RatingWindow
	if c.SweepBatch > 0 {
		out.SweepBatch = c.SweepBatch
	}
	return out
}

// start launches the engine and the deadline scheduler, applying anything
// that fell due while the service was down.
func (a *application) start(ctx context.Context) error {
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.scheduler.RunOnce(ctx)
	return a.scheduler.Start(ctx)
}

func (a *application) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.scheduler.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
	}
	a.engine.Stop()
	if a.outbox != nil {
		flushCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.outbox.Close(flushCtx); err != nil {
			errs = append(errs, fmt.Errorf("flush notifications: %w", err))
		}
	}
	a.close()
	return errors.Join(errs...)
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
