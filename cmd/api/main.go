package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-triage/internal/api/http"
	"github.com/spec-kit/ticket-triage/internal/api/http/handlers"
	"github.com/spec-kit/ticket-triage/internal/auth"
	"github.com/spec-kit/ticket-triage/internal/classifier"
	"github.com/spec-kit/ticket-triage/internal/config"
	"github.com/spec-kit/ticket-triage/internal/events"
	"github.com/spec-kit/ticket-triage/internal/notify"
	"github.com/spec-kit/ticket-triage/internal/observability"
	"github.com/spec-kit/ticket-triage/internal/persistence"
	"github.com/spec-kit/ticket-triage/internal/repository"
	"github.com/spec-kit/ticket-triage/internal/service"
	"github.com/spec-kit/ticket-triage/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
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

	pool := pg.PoolHandle()
	userRepo := repository.NewUserRepository(pool)
	ticketRepo := repository.NewTicketRepository(pool)
	historyRepo := repository.NewTicketHistoryRepository(pool)

	deps := map[string]handlers.Pinger{"postgres": pg}

	var queue events.Queue
	var pipelineDone chan struct{}
	switch cfg.Queue.Driver {
	case config.QueueDriverRedis:
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		deps["redis"] = redis
		queue = events.NewRedisQueue(redis.Client, cfg.Queue.RedisKey, logger)
	default:
		memQueue := events.NewMemoryQueue(cfg.Queue.BufferSize, logger)
		queue = memQueue
		pipelineDone = startInProcessPipeline(ctx, cfg, memQueue, userRepo, ticketRepo, historyRepo,
			repository.NewWorkflowRunRepository(pool), metrics, logger)
	}

	authService := service.NewAuthService(cfg.Auth, userRepo, queue, logger)
	ticketService := service.NewTicketService(ticketRepo, historyRepo, queue, logger)
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), userRepo)

	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, deps),
		Users:          handlers.NewUsersHandler(authService),
		Tickets:        handlers.NewTicketsHandler(ticketService),
		AuthMiddleware: authMiddleware,
		Gatherer:       reg,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	cancel()
	_ = queue.Close()
	if pipelineDone != nil {
		<-pipelineDone
	}
}

// startInProcessPipeline runs the workflows inside the API process when the
// memory queue is selected. The returned channel closes once the runner stops.
func startInProcessPipeline(
	ctx context.Context,
	cfg *config.Config,
	queue events.Queue,
	users repository.UserRepository,
	tickets repository.TicketRepository,
	history repository.TicketHistoryRepository,
	runs repository.WorkflowRunRepository,
	metrics *observability.Metrics,
	logger *zap.Logger,
) chan struct{} {
	gateway, err := classifier.FromConfig(cfg.LLM, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build classifier", zap.Error(err))
	}
	routes, err := notify.FromConfig(cfg, metrics, logger)
	if err != nil {
		logger.Fatal("failed to build notifier", zap.Error(err))
	}

	pipeline, err := worker.NewPipeline(cfg, worker.PipelineDeps{
		Queue:           queue,
		Runs:            runs,
		Tickets:         tickets,
		History:         history,
		Users:           users,
		Classifier:      gateway,
		Notifier:        routes.Assignment,
		WelcomeNotifier: routes.Welcome,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := pipeline.Run(ctx); err != nil {
			logger.Error("workflow pipeline stopped", zap.Error(err))
		}
	}()
	return done
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
