//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"assistant-server/internal/config"
	"assistant-server/internal/domain/agent"
	"assistant-server/internal/domain/assistant"
	"assistant-server/internal/domain/llm"
	"assistant-server/internal/domain/message"
	"assistant-server/internal/domain/run"
	"assistant-server/internal/domain/thread"
	"assistant-server/internal/domain/tool"
	"assistant-server/internal/infrastructure/database"
	"assistant-server/internal/infrastructure/llmprovider"
	"assistant-server/internal/infrastructure/logger"
	assistantrepo "assistant-server/internal/infrastructure/repository/assistant"
	messagerepo "assistant-server/internal/infrastructure/repository/message"
	runrepo "assistant-server/internal/infrastructure/repository/run"
	threadrepo "assistant-server/internal/infrastructure/repository/thread"
	"assistant-server/internal/interfaces/httpserver"
	"assistant-server/internal/scheduler"
	"assistant-server/internal/worker"
)

var repositorySet = wire.NewSet(
	assistantrepo.NewPostgresRepository,
	wire.Bind(new(assistant.Repository), new(*assistantrepo.PostgresRepository)),
	threadrepo.NewPostgresRepository,
	wire.Bind(new(thread.Repository), new(*threadrepo.PostgresRepository)),
	messagerepo.NewPostgresRepository,
	wire.Bind(new(message.Repository), new(*messagerepo.PostgresRepository)),
	runrepo.NewPostgresRepository,
	wire.Bind(new(run.Repository), new(*runrepo.PostgresRepository)),
)

var domainSet = wire.NewSet(
	assistant.NewService,
	message.NewService,
	newThreadService,
	newRunService,
	newRegistry,
	newExecutor,
)

// BuildApplication assembles the postgres-backed service with Wire.
func BuildApplication(ctx context.Context) (*Application, error) {
	wire.Build(
		config.Load,
		logger.New,
		newDatabaseConfig,
		newGormDB,
		newLLMClient,
		wire.Bind(new(llm.Provider), new(*llmprovider.Client)),
		newScheduler,
		wire.Bind(new(run.Enqueuer), new(*scheduler.Scheduler)),
		repositorySet,
		domainSet,
		httpserver.New,
		newApplication,
	)
	return nil, nil
}

func newDatabaseConfig(cfg *config.Config) database.Config {
	return database.Config{
		DSN:             cfg.DatabaseURL,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		ConnMaxLifetime: cfg.DBConnLifetime,
		LogLevel:        gormlogger.Warn,
	}
}

func newGormDB(ctx context.Context, cfg database.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(ctx, db, log); err != nil {
		return nil, err
	}
	return db, nil
}

func newLLMClient(cfg *config.Config) *llmprovider.Client {
	return llmprovider.NewClient(cfg.LLMAPIURL, cfg.LLMAPIKey)
}

func newScheduler(cfg *config.Config, log zerolog.Logger) *scheduler.Scheduler {
	return scheduler.New(scheduler.Config{
		WorkerCount:   cfg.WorkerCount,
		QueueCapacity: cfg.QueueCapacity,
		TaskTimeout:   cfg.RunTaskTimeout,
	}, log)
}

func newRegistry(log zerolog.Logger) (*tool.Registry, error) {
	registry := tool.NewRegistry(log)
	if err := tool.RegisterBuiltins(registry); err != nil {
		return nil, err
	}
	return registry, nil
}

func newExecutor(provider llm.Provider, registry *tool.Registry, log zerolog.Logger) *agent.Executor {
	return agent.NewExecutor(provider, registry, agent.DefaultMaxSteps, log)
}

func newThreadService(repo thread.Repository, log zerolog.Logger,
	messages message.Repository, runs run.Repository) thread.Service {
	return thread.NewService(repo, log, messages, runs)
}

func newRunService(cfg *config.Config, repo run.Repository, assistants assistant.Repository,
	threads thread.Repository, messages message.Service, queue run.Enqueuer, log zerolog.Logger) run.Service {
	return run.NewService(repo, assistants, threads, messages, queue, cfg.RunExpiry, log)
}

func newApplication(cfg *config.Config, httpServer *httpserver.HttpServer, sched *scheduler.Scheduler,
	runs run.Service, registry *tool.Registry, executor *agent.Executor,
	runRepo run.Repository, messages message.Service, assistants assistant.Repository,
	log zerolog.Logger) *Application {
	sched.Register(worker.NewRunTaskHandler(runRepo, messages, assistants, registry, executor, log))
	return NewApplication(httpServer, sched, runs, cfg.JanitorInterval, log)
}
