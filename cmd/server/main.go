package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Priya8975/hookline/internal/api"
	"github.com/Priya8975/hookline/internal/config"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/metrics"
	"github.com/Priya8975/hookline/internal/store"
	"github.com/Priya8975/hookline/internal/webhook"
	ws "github.com/Priya8975/hookline/internal/websocket"
	"github.com/Priya8975/hookline/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// backingStore is satisfied by both the Postgres and the in-memory store.
type backingStore interface {
	webhook.SubscriptionStore
	webhook.DeliveryReader
	worker.DeliveryStore
	worker.SubscriptionReader
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	var db backingStore
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		pgStore, err := store.NewPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer pgStore.Close()
		logger.Info("connected to PostgreSQL")

		if err := pgStore.RunMigrations(ctx, logger); err != nil {
			return err
		}
		logger.Info("database migrations applied")
		db = pgStore
	default:
		logger.Warn("using in-memory store, data is lost on restart")
		db = store.NewMemory()
	}

	redisStore, err := store.NewRedis(ctx, cfg.RedisURL, logger)
	if err != nil {
		return err
	}
	defer redisStore.Close()
	rdb := redisStore.Client()

	var sink metrics.Sink = metrics.NewNoopSink()
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		sink = metrics.NewPrometheusSink(reg, logger)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	hub := ws.NewHub(logger)

	queue := engine.NewRetryQueue(rdb, logger)
	scheduler := worker.NewScheduler(queue, cfg.RetrySchedule, sink, logger)

	execOpts := []worker.ExecutorOption{
		worker.WithObserver(hub),
		worker.WithUserAgent(cfg.UserAgent),
	}
	svcOpts := []webhook.Option{
		webhook.WithProber(worker.NewHTTPSender()),
		webhook.WithRetryPurger(queue),
		webhook.WithDispatchMetrics(sink),
	}
	if cfg.CircuitBreakerThreshold > 0 {
		cb := engine.NewCircuitBreaker(rdb, logger, cfg.CircuitBreakerThreshold, cfg.CircuitBreakerCooldown)
		execOpts = append(execOpts, worker.WithCircuitBreaker(cb))
		svcOpts = append(svcOpts, webhook.WithCircuitBreaker(cb))
	}

	executor := worker.NewExecutor(db, worker.NewHTTPSender(), scheduler, sink, logger, execOpts...)
	consumer := worker.NewConsumer(queue, db, executor, sink, logger,
		worker.WithWorkers(cfg.NumWorkers),
		worker.WithPollInterval(cfg.RetryPollInterval),
		worker.WithBatchSize(cfg.RetryBatchSize),
		worker.WithRateLimiter(engine.NewRateLimiter(rdb, logger)),
	)

	svc := webhook.NewService(db, db, executor, webhook.Config{
		DispatchConcurrency:   cfg.DispatchConcurrency,
		DefaultTimeoutSeconds: cfg.DefaultTimeoutSeconds,
		MaxTimeoutSeconds:     cfg.MaxTimeoutSeconds,
		DefaultMaxRetries:     cfg.DefaultMaxRetries,
		MaxRetryAttemptsLimit: cfg.MaxRetryAttemptsLimit,
		ProbeTimeout:          cfg.ProbeTimeout,
	}, logger, svcOpts...)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	defer cancelBg()

	go hub.Run(bgCtx)

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		consumer.Start(bgCtx)
	}()

	router := api.NewRouter(api.RouterDeps{
		Service: svc,
		Queue:   queue,
		Hub:     hub,
		Metrics: metricsHandler,
		Logger:  logger,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		cancelBg()
		<-consumerDone
		return err
	}

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}

	// Claimed retries finish before the stores close.
	cancelBg()
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		logger.Warn("retry consumer did not stop in time")
	}
	return nil
}
