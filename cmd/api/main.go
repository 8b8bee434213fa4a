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

	"github.com/angelmondragon/studiopass/api/routes"
	"github.com/angelmondragon/studiopass/internal/credentials"
	"github.com/angelmondragon/studiopass/internal/identity"
	"github.com/angelmondragon/studiopass/internal/members"
	"github.com/angelmondragon/studiopass/internal/memberships"
	"github.com/angelmondragon/studiopass/internal/posts"
	"github.com/angelmondragon/studiopass/internal/visits"
	"github.com/angelmondragon/studiopass/pkg/auth/session"
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
	bootLog := logger.New(logger.Options{ServiceName: "api"})
	if err := godotenv.Load(); err != nil {
		bootLog.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg := logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "instance": instance.GetID()})

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api.exit", err)
		os.Exit(1)
	}
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

	sessionManager, err := session.NewManager(redisClient, cfg.JWT)
	if err != nil {
		return fmt.Errorf("session manager: %w", err)
	}

	var uploader gcs.Uploader
	if cfg.GCS.Enabled() {
		gcsClient, err := gcs.NewClient(ctx, cfg.GCS, cfg.GCP, logg)
		if err != nil {
			return fmt.Errorf("bootstrap gcs: %w", err)
		}
		defer closeQuietly(ctx, logg, "gcs", gcsClient.Close)
		uploader = gcsClient
	} else {
		logg.Warn(ctx, "gcs bucket not configured, credential images disabled")
	}

	httpMetrics := metrics.NewHTTPMetrics(prometheus.DefaultRegisterer)
	params, err := buildServices(cfg, logg, dbClient, sessionManager, uploader, httpMetrics)
	if err != nil {
		return err
	}
	params.Config = cfg
	params.Logger = logg
	params.DB = dbClient
	params.Redis = redisClient
	params.Sessions = sessionManager
	params.HTTPMetrics = httpMetrics
	params.Gatherer = prometheus.DefaultGatherer

	return serve(ctx, cfg, logg, routes.NewRouter(params))
}

func buildServices(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, sessions *session.Manager, uploader gcs.Uploader, httpMetrics *metrics.HTTPMetrics) (routes.Params, error) {
	conn := dbClient.DB()
	var p routes.Params
	var err error

	if p.Identity, err = identity.NewService(identity.ServiceParams{
		Repo:           identity.NewRepository(conn),
		SessionManager: sessions,
		JWTConfig:      cfg.JWT,
		PasswordConfig: cfg.Password,
		Metrics:        httpMetrics,
		Logger:         logg,
	}); err != nil {
		return p, fmt.Errorf("identity service: %w", err)
	}

	memberRepo := members.NewRepository(conn)
	if p.Members, err = members.NewService(memberRepo); err != nil {
		return p, fmt.Errorf("members service: %w", err)
	}
	if p.Memberships, err = memberships.NewService(memberships.NewRepository(conn)); err != nil {
		return p, fmt.Errorf("memberships service: %w", err)
	}
	if p.Posts, err = posts.NewService(posts.NewRepository(conn)); err != nil {
		return p, fmt.Errorf("posts service: %w", err)
	}
	if p.Visits, err = visits.NewService(visits.NewRepository(conn)); err != nil {
		return p, fmt.Errorf("visits service: %w", err)
	}
	if p.Credentials, err = credentials.NewService(credentials.ServiceParams{
		Repo:     memberRepo,
		Uploader: uploader,
		Config:   cfg.Credentials,
	}); err != nil {
		return p, fmt.Errorf("credentials service: %w", err)
	}
	return p, nil
}

// serve blocks until ctx ends, then drains in-flight requests for at most
// ShutdownTimeout.
func serve(ctx context.Context, cfg *config.Config, logg *logger.Logger, handler http.Handler) error {
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "api.listening")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
	}

	logg.Info(ctx, "api.shutting_down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func closeQuietly(ctx context.Context, logg *logger.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(logg.WithField(ctx, "resource", name), "close failed", err)
	}
}
