package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds the environment driven configuration for the assistant service.
type Config struct {
	ServiceName     string        `env:"SERVICE_NAME" envDefault:"assistant-api"`
	Environment     string        `env:"ENVIRONMENT" envDefault:"development"`
	HTTPPort        int           `env:"HTTP_PORT" envDefault:"8083"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	EnableTracing   bool          `env:"ENABLE_TRACING" envDefault:"false"`
	OTLPEndpoint    string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:""`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	DatabaseURL     string        `env:"ASSISTANT_DATABASE_URL" envDefault:""`
	DBMaxIdleConns  int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBMaxOpenConns  int           `env:"DB_MAX_OPEN_CONNS" envDefault:"15"`
	DBConnLifetime  time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	LLMAPIURL       string        `env:"LLM_API_URL" envDefault:"http://localhost:8080"`
	LLMAPIKey       string        `env:"LLM_API_KEY" envDefault:""`
	DefaultModel    string        `env:"DEFAULT_MODEL" envDefault:"gpt-4o-mini"`
	WorkerCount     int           `env:"WORKER_COUNT" envDefault:"4"`
	QueueCapacity   int           `env:"QUEUE_CAPACITY" envDefault:"256"`
	RunTaskTimeout  time.Duration `env:"RUN_TASK_TIMEOUT" envDefault:"10m"`
	RunExpiry       time.Duration `env:"RUN_EXPIRY" envDefault:"1h"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1m"`
}

// Load parses environment variables into Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env config: %w", err)
	}

	if strings.TrimSpace(cfg.LLMAPIURL) == "" {
		return nil, fmt.Errorf("LLM_API_URL must not be blank")
	}

	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}

	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = 256
	}

	if cfg.RunTaskTimeout <= 0 {
		cfg.RunTaskTimeout = 10 * time.Minute
	}

	return cfg, nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.HTTPPort)
}

// UseInMemoryStore reports whether the service should run against the
// in-memory repositories instead of PostgreSQL.
func (c *Config) UseInMemoryStore() bool {
	return strings.TrimSpace(c.DatabaseURL) == ""
}
