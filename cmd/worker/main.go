package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/notify"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/worker"
)

func main() {
	var (
		configPath  = pflag.StringP("config", "c", "", "path to a YAML config file (overrides CONFIG_PATH)")
		concurrency = pflag.Int("concurrency", 0, "concurrent workflow runs (overrides WORKER_CONCURRENCY)")
		schedule    = pflag.String("resume-schedule", "", "cron spec for resuming stale runs (overrides WORKER_RESUME_SCHEDULE)")
		metricsAddr = pflag.String("metrics-addr", ":9090", "address serving /metrics and /health; empty disables")
	)
	pflag.Parse()

	if *configPath != "" {
		if err := os.Setenv("CONFIG_PATH", *configPath); err != nil {
			log.Fatalf("set config path: %v", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *concurrency > 0 {
		cfg.Worker.Concurrency = *concurrency
	}
	if *schedule != "" {
		cfg.Worker.ResumeSchedule = *schedule
	}
	if cfg.Queue.Driver != config.QueueDriverRedis {
		log.Fatalf("worker requires QUEUE_DRIVER=%s, got %q", config.QueueDriverRedis, cfg.Queue.Driver)
	}

	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(reg)

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	queue := events.NewRedisQueue(redis.Client, cfg.Queue.RedisKey, logger)
	if n, err := queue.Recover(ctx); err != nil {
		logger.Warn("failed to recover unacknowledged events", zap.Error(err))
	} else if n > 0 {
		logger.Info("requeued unacknowledged events", zap.Int("count", n))
	}

	gateway, err := classifier.FromConfig(cfg.LLM, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build classifier", zap.Error(err))
	}
	routes, err := notify.FromConfig(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build notifier", zap.Error(err))
	}

	pool := pg.PoolHandle()
	pipeline, err := worker.NewPipeline(cfg, worker.PipelineDeps{
		Queue:           queue,
		Runs:            repository.NewWorkflowRunRepository(pool),
		Tickets:         repository.NewTicketRepository(pool),
		History:         repository.NewTicketHistoryRepository(pool),
		Users:           repository.NewUserRepository(pool),
		Classifier:      gateway,
		Notifier:        routes.Assignment,
		WelcomeNotifier: routes.Welcome,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	var probe *fiber.App
	if *metricsAddr != "" {
		probe = newProbeApp(reg, handlers.NewHealthHandler(cfg.App.Name+"-worker", cfg.App.Version,
			map[string]handlers.Pinger{"postgres": pg, "redis": redis}))
		go func() {
			if err := probe.Listen(*metricsAddr); err != nil {
				logger.Error("probe listen", zap.Error(err))
			}
		}()
	}

	done := make(chan error, 1)
	go func() { done <- pipeline.Run(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			logger.Error("worker stopped", zap.Error(err))
		}
	case sig := <-shutdownSignal():
		logger.Info("shutting down", zap.String("signal", sig.String()))
		cancel()
		if err := <-done; err != nil {
			logger.Error("worker stopped", zap.Error(err))
		}
	}
	_ = queue.Close()
	if probe != nil {
		_ = probe.Shutdown()
	}
}

func newProbeApp(reg *prometheus.Registry, health *handlers.HealthHandler) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/health/live", health.Live)
	app.Get("/health/ready", health.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	return app
}

func shutdownSignal() <-chan os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	return sigCh
}
