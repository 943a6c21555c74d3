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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/adapter/connector"
	httpAdapter "github.com/iho/goimport/internal/adapter/http"
	"github.com/iho/goimport/internal/adapter/http/handler"
	"github.com/iho/goimport/internal/adapter/http/middleware"
	postgresRepo "github.com/iho/goimport/internal/adapter/repository/postgres"
	redisRepo "github.com/iho/goimport/internal/adapter/repository/redis"
	"github.com/iho/goimport/internal/adapter/source"
	"github.com/iho/goimport/internal/importer"
	"github.com/iho/goimport/internal/infrastructure/config"
	"github.com/iho/goimport/internal/infrastructure/eventpublisher"
	"github.com/iho/goimport/internal/infrastructure/logger"
	"github.com/iho/goimport/internal/infrastructure/metrics"
	"github.com/iho/goimport/internal/infrastructure/postgres"
	"github.com/iho/goimport/internal/infrastructure/redis"
	"github.com/iho/goimport/internal/infrastructure/settings"
	"github.com/iho/goimport/internal/usecase"
)

// rateLimiterIdle is how long a client is remembered by the rate limiter.
const rateLimiterIdle = 10 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Service: "goimport-server"})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("server stopped")
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// Connect to PostgreSQL
	pool, err := postgres.NewPoolWithConfig(ctx, postgres.PoolConfig{
		DatabaseURL:    cfg.DatabaseURL,
		MaxConns:       cfg.DatabaseMaxConns,
		MinConns:       cfg.DatabaseMinConns,
		ConnectTimeout: cfg.DatabaseTimeout,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	defer pool.Close()
	log.Info().Msg("connected to postgres")

	if err := postgres.NewMigrator(cfg.DatabaseURL, cfg.MigrationsPath, log).Up(); err != nil {
		return err
	}

	// Connect to Redis
	redisClient, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer redisClient.Close()
	log.Info().Msg("connected to redis")

	m := metrics.New()

	// Initialize repositories
	txManager := postgresRepo.NewTxManager(pool)
	processRepo := postgresRepo.NewProcessRepository(pool)
	outboxRepo := postgresRepo.NewOutboxRepository(pool)
	retrier := postgresRepo.NewRetrier(log)
	idGen := postgresRepo.NewULIDGenerator()
	idempotencyStore := redisRepo.NewIdempotencyStore(redisClient, redisRepo.DefaultPrefix)
	rateCache := redisRepo.NewCache(redisClient, redisRepo.DefaultPrefix)

	// Ledger the imports are booked into
	ledger := connector.NewLedgerConnector(pool, idGen, log)
	ledger.SetRetrier(retrier)
	conn := connector.NewCachedRates(ledger, rateCache, cfg.RateCacheTTL, m, log)

	// Initialize use cases
	processUC := usecase.NewProcessUseCase(txManager, processRepo, connector.NewOutboxNotifier(txManager, outboxRepo, idGen), idGen, log)
	processUC.SetRetrier(retrier)
	processUC.SetMetrics(m)
	if err := registerHandlers(processUC, cfg.SourcesFile, conn, log); err != nil {
		return err
	}

	// Relay process events
	publisher := eventpublisher.NewEventPublisher(eventpublisher.Config{
		OutboxRepo: outboxRepo,
		Publisher:  eventpublisher.NewRedisPublisher(redisClient, cfg.EventsChannel),
		Observer:   m,
		Logger:     log,
		Interval:   cfg.OutboxInterval,
		Retention:  cfg.OutboxRetention,
	})
	go func() {
		if err := publisher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("event publisher stopped")
		}
	}()

	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go cleanupRateLimiter(ctx, rateLimiter, log)

	// Create router
	router := httpAdapter.NewRouter(httpAdapter.RouterConfig{
		ProcessHandler:   handler.NewProcessHandler(processUC, cfg.ProcessDefaults(), cfg.HTTPMaxUploadBytes, log),
		HealthHandler:    handler.NewHealthHandler(handler.PostgresCheck(pool), handler.RedisCheck(redisClient)),
		IdempotencyStore: idempotencyStore,
		IdempotencyTTL:   cfg.IdempotencyTTL,
		RateLimiter:      rateLimiter,
		Metrics:          m,
		MetricsHandler:   promhttp.Handler(),
		Logger:           log,
	})

	return serve(ctx, newHTTPServer(cfg, router), cfg.HTTPShutdownTimeout, log)
}

// registerHandlers registers the configured CSV formats and OFX.
func registerHandlers(uc *usecase.ProcessUseCase, sourcesFile string, conn importer.Connector, log zerolog.Logger) error {
	formats, err := settings.LoadSources(sourcesFile)
	if err != nil {
		return err
	}
	handlers, err := source.Handlers(formats, conn, log)
	if err != nil {
		return err
	}
	for _, h := range handlers {
		if err := uc.Register(h); err != nil {
			return err
		}
	}
	log.Info().Strs("handlers", uc.Handlers()).Msg("import handlers registered")
	return nil
}

func newHTTPServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}
}

// serve runs the server until the context ends and then shuts it down.
func serve(ctx context.Context, server *http.Server, shutdownTimeout time.Duration, log zerolog.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

func cleanupRateLimiter(ctx context.Context, rl *middleware.RateLimiter, log zerolog.Logger) {
	ticker := time.NewTicker(rateLimiterIdle)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(rateLimiterIdle); n > 0 {
				log.Debug().Int("clients", n).Msg("rate limiter cleaned up")
			}
		}
	}
}
