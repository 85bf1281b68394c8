// @title           API Key Service
// @version         1.0.0
// @description     Issues, revokes and authenticates personal API keys.
// @basePath        /
// @schemes         http https
// @securityDefinitions.apiKey  Bearer
// @in                          header
// @name                        Authorization
// @description                 "API key, sent as 'Bearer {api_key}' or as the bare key"
//
// @tag.name         System
// @tag.description  Health, readiness, and version endpoints.
//
// @tag.name         Observability
// @tag.description  Prometheus metrics are served on a dedicated side-channel port (default: 9090), separate from the API listener. Configure it with APIKEYS_TELEMETRY_METRICS_PROMETHEUS_PORT. The path is always GET /metrics.

// Package main is the entry point for the API key server binary.
// It dispatches three subcommands (serve, migrate and version) with a switch on os.Args.
// serve applies pending migrations on startup when database.auto_migrate is set.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/bi-platform/apikeys/internal/api"
	"github.com/bi-platform/apikeys/internal/apikeys"
	"github.com/bi-platform/apikeys/internal/auth"
	"github.com/bi-platform/apikeys/internal/clock"
	"github.com/bi-platform/apikeys/internal/config"
	"github.com/bi-platform/apikeys/internal/db"
	"github.com/bi-platform/apikeys/internal/jobs"
	"github.com/bi-platform/apikeys/internal/middleware"
	"github.com/bi-platform/apikeys/internal/telemetry"
	"github.com/bi-platform/apikeys/internal/users"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v\n", err)
	}
}

func run() error {
	command := "serve"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	if command == "version" {
		fmt.Printf("apikeys server v%s\n", api.Version)
		return nil
	}

	loader, err := config.NewLoader(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg, err := loader.Config()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch command {
	case "serve":
		return serve(loader, cfg)
	case "migrate":
		if len(os.Args) < 3 {
			return fmt.Errorf("usage: %s migrate <up|down>", os.Args[0])
		}
		return runMigrations(cfg, os.Args[2])
	default:
		return fmt.Errorf("unknown command: %s\nAvailable commands: serve, migrate, version", command)
	}
}

func serve(loader *config.Loader, cfg *config.Config) error {
	// Initialise structured logger as early as possible so all subsequent log output
	// uses the configured format and level.
	telemetry.SetupLogger(cfg.Logging.Format, cfg.Logging.Level)

	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, conn, err := db.Open(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open key store: %w", err)
	}
	if conn != nil {
		defer conn.Close()
		slog.Info("connected to database", "driver", cfg.Database.Driver)
		telemetry.StartDBStatsCollector(ctx, conn.DB, 30*time.Second)
	}

	clk := clock.System{}
	directory := users.NewDirectory(cfg.Auth.Users)
	keys := apikeys.NewService(store, auth.NewKeyCodec(cfg.Auth.APIKeys.BcryptRounds), clk,
		apikeys.WithMaxPrefixCandidates(cfg.Auth.APIKeys.MaxPrefixCandidates))
	keys.Warm()

	loader.Watch(func(next *config.Config) {
		directory.Replace(next.Auth.Users)
		telemetry.SetLogLevel(next.Logging.Level)
	})

	limiter, closeLimiter, err := newLimiter(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	deps := api.Dependencies{
		Keys:    keys,
		Users:   directory,
		Limiter: limiter,
		Clock:   clk,
	}
	if conn != nil {
		deps.DB = conn
	}
	router := api.NewRouter(cfg, deps)

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "addr", server.Addr, "tls", cfg.Security.TLS.Enabled, "store", cfg.Database.Driver)
		var err error
		if cfg.Security.TLS.Enabled {
			err = server.ListenAndServeTLS(cfg.Security.TLS.CertFile, cfg.Security.TLS.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	// Prometheus metrics live on their own port so the scrape path is never exposed
	// through the API listener.
	var metricsServer *http.Server
	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         ":" + strconv.Itoa(cfg.Telemetry.Metrics.PrometheusPort),
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			slog.Info("starting Prometheus metrics server", "addr", metricsServer.Addr)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	notifier := jobs.NewAPIKeyExpiryNotifier(store, directory, &cfg.Notifications, jobs.WithClock(clk))
	g.Go(func() error {
		notifier.Start(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		notifier.Stop()
		var errs []error
		if err := server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("metrics server shutdown: %w", err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("server stopped gracefully")
	return nil
}

// newLimiter picks the rate limiter backend. A configured redis_url shares limits across
// replicas; otherwise each process keeps its own token buckets.
func newLimiter(cfg *config.Config) (middleware.Limiter, func(), error) {
	rl := cfg.Security.RateLimiting
	if !rl.Enabled {
		return nil, func() {}, nil
	}
	limits := middleware.RateLimitConfig{
		RequestsPerMinute: rl.RequestsPerMinute,
		BurstSize:         rl.Burst,
		CleanupInterval:   5 * time.Minute,
	}

	if rl.RedisURL != "" {
		opts, err := redis.ParseURL(rl.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid security.rate_limiting.redis_url: %w", err)
		}
		rdb := redis.NewClient(opts)
		slog.Info("rate limiting enabled", "backend", "redis", "requests_per_minute", rl.RequestsPerMinute)
		return middleware.NewRedisRateLimiter(rdb, limits), func() { _ = rdb.Close() }, nil
	}

	mem := middleware.NewRateLimiter(limits)
	slog.Info("rate limiting enabled", "backend", "memory", "requests_per_minute", rl.RequestsPerMinute)
	return mem, mem.Stop, nil
}

func runMigrations(cfg *config.Config, direction string) error {
	if cfg.Database.Driver == config.DriverMemory {
		return errors.New("the memory driver has no schema to migrate")
	}

	database, err := db.Connect(cfg.Database.Driver, cfg.Database.GetDSN(), cfg.Database.MaxConnections, cfg.Database.MinIdleConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	log.Printf("Running migrations: %s", direction)

	if err := db.RunMigrations(database, direction); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	log.Printf("Migration completed successfully. Current version: %d (dirty: %v)", version, dirty)
	return nil
}
