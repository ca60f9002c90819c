package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	gormlogger "gorm.io/gorm/logger"

	"assistant-server/internal/config"
	"assistant-server/internal/domain/agent"
	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/domain/thread"
	"assistant-server/internal/domain/tool"
	"assistant-server/internal/infrastructure/database"
	"assistant-server/internal/infrastructure/llmprovider"
	"assistant-server/internal/infrastructure/logger"
	"assistant-server/internal/infrastructure/metrics"
	"assistant-server/internal/infrastructure/observability"
	assistantrepo "assistant-server/internal/infrastructure/repository/assistant"
	messagerepo "assistant-server/internal/infrastructure/repository/message"
	runrepo "assistant-server/internal/infrastructure/repository/run"
	threadrepo "assistant-server/internal/infrastructure/repository/thread"
	"assistant-server/internal/interfaces/httpserver"
	"assistant-server/internal/scheduler"
	"assistant-server/internal/worker"
)

// Application bundles the long-running pieces of the service.
type Application struct {
	httpServer *httpserver.HttpServer
	sched      *scheduler.Scheduler
	runs       run.Service
	janitor    time.Duration
	log        zerolog.Logger
}

// NewApplication constructs the application.
func NewApplication(httpServer *httpserver.HttpServer, sched *scheduler.Scheduler,
	runs run.Service, janitor time.Duration, log zerolog.Logger) *Application {
	return &Application{
		httpServer: httpServer,
		sched:      sched,
		runs:       runs,
		janitor:    janitor,
		log:        log,
	}
}

// Start runs the scheduler, the expiry janitor and the HTTP server until the
// context is cancelled.
func (a *Application) Start(ctx context.Context) error {
	a.sched.Start(ctx)
	defer a.sched.Stop()

	if err := a.runs.RequeueStartupRuns(ctx); err != nil {
		a.log.Error().Err(err).Msg("requeue startup runs")
	}

	go a.janitorLoop(ctx)

	return a.httpServer.Run(ctx)
}

// janitorLoop periodically expires overdue runs and samples queue depth.
func (a *Application) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(a.janitor)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetQueueDepth(a.sched.Depth())
			if err := a.runs.ExpireOverdueRuns(ctx); err != nil {
				a.log.Error().Err(err).Msg("expire overdue runs")
			}
		}
	}
}

func main() {
	loadEnvFiles()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observability.Setup(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize observability")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("shutdown telemetry")
		}
	}()

	var (
		assistants assistant.Repository
		threads    thread.Repository
		messages   message.Repository
		runs       run.Repository
	)
	if cfg.UseInMemoryStore() {
		log.Warn().Msg("no database configured, using in-memory store")
		assistants = assistantrepo.NewInMemoryRepository()
		threads = threadrepo.NewInMemoryRepository()
		messages = messagerepo.NewInMemoryRepository()
		runs = runrepo.NewInMemoryRepository()
	} else {
		db, err := database.Connect(database.Config{
			DSN:             cfg.DatabaseURL,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			MaxOpenConns:    cfg.DBMaxOpenConns,
			ConnMaxLifetime: cfg.DBConnLifetime,
			LogLevel:        gormlogger.Warn,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("connect database")
		}
		if err := database.AutoMigrate(ctx, db, log); err != nil {
			log.Fatal().Err(err).Msg("migrate database")
		}
		assistants = assistantrepo.NewPostgresRepository(db)
		threads = threadrepo.NewPostgresRepository(db)
		messages = messagerepo.NewPostgresRepository(db)
		runs = runrepo.NewPostgresRepository(db)
	}

	registry := tool.NewRegistry(log)
	if err := tool.RegisterBuiltins(registry); err != nil {
		log.Fatal().Err(err).Msg("register builtin tools")
	}

	provider := llmprovider.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey)
	executor := agent.NewExecutor(provider, registry, agent.DefaultMaxSteps, log)

	sched := scheduler.New(scheduler.Config{
		WorkerCount:   cfg.WorkerCount,
		QueueCapacity: cfg.QueueCapacity,
		TaskTimeout:   cfg.RunTaskTimeout,
	}, log)

	messageService := message.NewService(messages, threads, log)
	assistantService := assistant.NewService(assistants, log)
	threadService := thread.NewService(threads, log, messages, runs)
	runService := run.NewService(runs, assistants, threads, messageService, sched, cfg.RunExpiry, log)

	sched.Register(worker.NewRunTaskHandler(runs, messageService, assistants, registry, executor, log))

	httpServer := httpserver.New(cfg, log, assistantService, threadService, messageService, runService)
	app := NewApplication(httpServer, sched, runService, cfg.JanitorInterval, log)

	if err := app.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("application stopped with error")
	}

	log.Info().Msg("application exited cleanly")
}

func loadEnvFiles() {
	paths := []string{".env", "../.env"}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Overload(path); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
			}
		}
	}
}
