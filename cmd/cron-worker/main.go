package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/studiopass/internal/credentials"
	"github.com/angelmondragon/studiopass/internal/cron"
	"github.com/angelmondragon/studiopass/internal/members"
	"github.com/angelmondragon/studiopass/internal/memberships"
	"github.com/angelmondragon/studiopass/pkg/config"
	"github.com/angelmondragon/studiopass/pkg/db"
	"github.com/angelmondragon/studiopass/pkg/instance"
	"github.com/angelmondragon/studiopass/pkg/logger"
	"github.com/angelmondragon/studiopass/pkg/metrics"
	"github.com/angelmondragon/studiopass/pkg/migrate"
	"github.com/angelmondragon/studiopass/pkg/redis"
	"github.com/angelmondragon/studiopass/pkg/storage/gcs"
)

func main() {
	bootLog := logger.New(logger.Options{ServiceName: "cron-worker"})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "cron-worker"
	logg := logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron-worker.exit", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron-worker.stopped")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("bootstrap database: %w", err)
	}
	defer closeQuietly(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("bootstrap redis: %w", err)
	}
	defer closeQuietly(ctx, logg, "redis", redisClient.Close)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+env), cfg.Cron.LockTTL)
	if err != nil {
		return fmt.Errorf("cron lock: %w", err)
	}

	jobMetrics := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	jobs, err := buildJobs(ctx, cfg, logg, dbClient, jobMetrics)
	if err != nil {
		return fmt.Errorf("build jobs: %w", err)
	}
	registry, err := cron.NewRegistry(jobs...)
	if err != nil {
		return fmt.Errorf("register jobs: %w", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    jobMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		return fmt.Errorf("cron service: %w", err)
	}

	if cfg.Cron.MetricsAddr != "" {
		stopMetrics := serveMetrics(ctx, logg, cfg.Cron.MetricsAddr)
		defer stopMetrics()
	}

	logg.Info(logg.WithField(ctx, "jobs", len(jobs)), "cron-worker.started")
	return service.Run(ctx)
}

func buildJobs(ctx context.Context, cfg *config.Config, logg *logger.Logger, dbClient *db.Client, jobMetrics *metrics.CronJobMetrics) ([]cron.Job, error) {
	memberRepo := members.NewRepository(dbClient.DB())
	membershipService, err := memberships.NewService(memberships.NewRepository(dbClient.DB()))
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewMembershipExpiryJob(cron.MembershipExpiryJobParams{
		Logger:      logg,
		Memberships: membershipService,
		Metrics:     jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	audit, err := cron.NewOrphanIdentityAuditJob(cron.OrphanIdentityAuditJobParams{
		Logger:      logg,
		Members:     memberRepo,
		GracePeriod: cfg.Cron.OrphanGracePeriod,
		Limit:       cfg.Cron.OrphanAuditLimit,
		Metrics:     jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{expiry, audit}

	if !cfg.GCS.Enabled() {
		logg.Warn(ctx, "gcs bucket not configured, credential backfill disabled")
		return jobs, nil
	}
	gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
	if err != nil {
		return nil, err
	}
	credentialService, err := credentials.NewService(credentials.ServiceParams{
		Repo:     memberRepo,
		Uploader: gcsClient,
		Config:   cfg.Credentials,
	})
	if err != nil {
		return nil, err
	}
	backfill, err := cron.NewCredentialBackfillJob(cron.CredentialBackfillJobParams{
		Logger:      logg,
		Members:     memberRepo,
		Credentials: credentialService,
		BatchSize:   cfg.Cron.BackfillBatchSize,
		Metrics:     jobMetrics,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, backfill), nil
}

// serveMetrics exposes the default registry on addr and returns a func that
// stops the listener.
func serveMetrics(ctx context.Context, logg *logger.Logger, addr string) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(logg.WithField(ctx, "addr", addr), "cron-worker.metrics_failed", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
