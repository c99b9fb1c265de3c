package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/cafeworks/postbot/config"
	"github.com/cafeworks/postbot/internal/automation"
	"github.com/cafeworks/postbot/internal/data"
	"github.com/cafeworks/postbot/internal/fleet"
	"github.com/cafeworks/postbot/internal/queue"
	"github.com/cafeworks/postbot/internal/service"
	"github.com/cafeworks/postbot/internal/worker"
)

// App holds every wired component of one process. Which of them actually run
// is decided by the SERVICES selection.
type App struct {
	Config config.AppConfig
	Logger *slog.Logger

	DB    *sql.DB
	Redis redis.UniversalClient

	Runner    *worker.Runner
	Collector *service.Collector

	enabled map[config.ServiceMode]bool
}

// NewApp connects the stores and wires the enabled services.
func NewApp(cfg config.AppConfig, logger *slog.Logger) (*App, error) {
	enabled, err := config.ParseServices(cfg.Services)
	if err != nil {
		return nil, err
	}

	db, err := ConnectDB(cfg.Postgres, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Postgres.RunMigrationsOnStart {
		if err := RunMigrations(context.Background(), db, logger); err != nil {
			return nil, err
		}
	}
	redisClient, err := ConnectRedis(cfg.Redis, logger)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:  cfg,
		Logger:  logger,
		DB:      db,
		Redis:   redisClient,
		enabled: enabled,
	}

	heartbeats, err := fleet.NewHeartbeatStore(fleet.Options{Client: redisClient})
	if err != nil {
		return nil, err
	}

	if enabled[config.ServiceModeWorker] {
		if app.Runner, err = buildWorker(app, heartbeats); err != nil {
			return nil, fmt.Errorf("build worker: %w", err)
		}
	}
	if enabled[config.ServiceModeCollector] {
		if app.Collector, err = buildCollector(app, heartbeats); err != nil {
			return nil, fmt.Errorf("build collector: %w", err)
		}
	}
	return app, nil
}

func buildWorker(app *App, heartbeats *fleet.HeartbeatStore) (*worker.Runner, error) {
	cfg := app.Config

	encryptor, err := CreateEncryptor(cfg.SecretsEncryptionKey)
	if err != nil {
		return nil, err
	}

	pool, err := automation.NewPool(automation.PoolOptions{
		ProfilesDir:     cfg.Automation.ProfilesDir,
		ArtifactsDir:    cfg.Automation.ArtifactsDir,
		BaseURL:         cfg.Automation.BaseURL,
		Headless:        cfg.Automation.Headless,
		NavTimeout:      cfg.Automation.NavTimeout,
		SelectorTimeout: cfg.Automation.SelectorTimeout,
		Logger:          app.Logger,
	})
	if err != nil {
		return nil, err
	}

	processor, err := service.NewProcessor(service.ProcessorOptions{
		Jobs:            data.NewJobRepo(app.DB, data.JobRepoConfig{Logger: app.Logger}),
		Runs:            data.NewRunRepo(app.DB),
		Sessions:        data.NewSessionRepo(app.DB),
		Accounts:        data.NewAccountRepo(app.DB),
		Posts:           data.NewPostRepo(app.DB),
		Pool:            pool,
		Secrets:         encryptor,
		Logger:          app.Logger,
		ManualLoginWait: cfg.Worker.ManualLoginWait,
		ManualLoginPoll: cfg.Worker.ManualLoginPoll,
	})
	if err != nil {
		return nil, err
	}

	jobQueue, err := queue.NewRedisQueue(queue.RedisQueueOptions{
		Client:      app.Redis,
		Name:        cfg.Worker.QueueName,
		MaxAttempts: cfg.Worker.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	return worker.NewRunner(worker.Options{
		Queue:             jobQueue,
		Processor:         processor,
		Heartbeats:        heartbeats,
		Pool:              pool,
		Logger:            app.Logger,
		WorkerID:          cfg.Worker.WorkerID,
		HeartbeatInterval: cfg.Worker.HeartbeatInterval,
		ReceiveBlock:      cfg.Worker.ReceiveBlock,
		RateLimit:         rate.Limit(cfg.Worker.JobsPerMinute / 60),
		ShutdownTimeout:   cfg.Worker.ShutdownTimeout,
	})
}

func buildCollector(app *App, heartbeats *fleet.HeartbeatStore) (*service.Collector, error) {
	cfg := app.Config.Collector
	return service.NewCollector(service.CollectorOptions{
		Queues:          cfg.Queues,
		Inspector:       queue.NewInspector(app.Redis),
		Heartbeats:      heartbeats,
		Stats:           data.NewStatsRepo(app.DB),
		Incidents:       data.NewIncidentRepo(app.DB),
		Logger:          app.Logger,
		Interval:        cfg.Interval,
		Retention:       cfg.Retention,
		OnlineThreshold: cfg.OnlineThreshold,
		StaleWorkerAge:  cfg.StaleWorkerAge,
		Thresholds: service.IncidentThresholds{
			BacklogWarn:            cfg.BacklogWarn,
			BacklogCritical:        cfg.BacklogCritical,
			FailureRateWarnPct:     cfg.FailureRateWarnPct,
			FailureRateCriticalPct: cfg.FailureRateCriticalPct,
			FailureLookback:        cfg.FailureLookback,
			MinFailureSample:       cfg.MinFailureSample,
		},
	})
}

// Run starts the enabled services and blocks until a shutdown signal arrives
// or one of them fails. Cancellation propagates through the group context, so
// a failing service takes the process down instead of leaving it half-alive.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	if a.Runner != nil {
		g.Go(func() error { return a.Runner.Run(gctx) })
	}
	if a.Collector != nil {
		g.Go(func() error {
			if err := a.Collector.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	err := g.Wait()
	a.close()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.Redis.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "close redis client", "error", err)
	}
	if err := a.DB.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "close database", "error", err)
	}
	a.Logger.Info("shutdown complete")
}
