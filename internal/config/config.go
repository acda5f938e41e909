package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Queue drivers understood by the events package.
const (
	QueueDriverMemory = "memory"
	QueueDriverRedis  = "redis"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig          `yaml:"app"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Redis        RedisConfig        `yaml:"redis"`
	Logger       LoggerConfig       `yaml:"logger"`
	Auth         AuthConfig         `yaml:"auth"`
	LLM          LLMConfig          `yaml:"llm"`
	SMTP         SMTPConfig         `yaml:"smtp"`
	Notification NotificationConfig `yaml:"notification"`
	Queue        QueueConfig        `yaml:"queue"`
	Workflow     WorkflowConfig     `yaml:"workflow"`
	Worker       WorkerConfig       `yaml:"worker"`
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string `yaml:"name"`
	Env                   string `yaml:"env"`
	Host                  string `yaml:"host"`
	Port                  string `yaml:"port"`
	Version               string `yaml:"version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds"`
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	MaxConns       int32  `yaml:"max_conns"`
	MinConns       int32  `yaml:"min_conns"`
	RunMigrations  bool   `yaml:"run_migrations"`
	ConnMaxIdleSec int32  `yaml:"conn_max_idle_seconds"`
	ConnMaxLifeSec int32  `yaml:"conn_max_life_seconds"`
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// AuthConfig defines authentication parameters.
type AuthConfig struct {
	JWTSecret             string `yaml:"jwt_secret"`
	AccessTokenTTLMinutes int    `yaml:"access_token_ttl_minutes"`
	BcryptCost            int    `yaml:"bcrypt_cost"`
}

// LLMConfig configures the ticket classifier.
type LLMConfig struct {
	AnthropicAPIKey   string  `yaml:"anthropic_api_key"`
	Model             string  `yaml:"model"`
	MaxTokens         int     `yaml:"max_tokens"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
	PromptFile        string  `yaml:"prompt_file"`
}

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// NotificationConfig holds secondary notification endpoints.
type NotificationConfig struct {
	WebhookURL string `yaml:"webhook_url"`
}

// QueueConfig selects the event transport between API and workflows.
type QueueConfig struct {
	Driver     string `yaml:"driver"`
	RedisKey   string `yaml:"redis_key"`
	BufferSize int    `yaml:"buffer_size"`
}

// WorkflowConfig bounds per-step retries.
type WorkflowConfig struct {
	StepRetries       int `yaml:"step_retries"`
	BaseBackoffMillis int `yaml:"base_backoff_millis"`
	MaxBackoffMillis  int `yaml:"max_backoff_millis"`
}

// WorkerConfig controls the workflow runner and resume sweeper.
type WorkerConfig struct {
	Concurrency             int    `yaml:"concurrency"`
	ResumeSchedule          string `yaml:"resume_schedule"`
	ResumeStaleAfterSeconds int    `yaml:"resume_stale_after_seconds"`
}

// Load reads configuration from defaults, an optional YAML file (CONFIG_PATH) and
// environment variables, in that order of precedence (env wins).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if raw := os.Getenv("REDIS_DB"); raw != "" {
		db, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		cfg.Redis.DB = db
	}

	cfg.App.Name = getEnv("APP_NAME", cfg.App.Name)
	cfg.App.Env = getEnv("APP_ENV", cfg.App.Env)
	cfg.App.Host = getEnv("APP_HOST", cfg.App.Host)
	cfg.App.Port = getEnv("APP_PORT", cfg.App.Port)
	cfg.App.Version = getEnv("APP_VERSION", cfg.App.Version)
	cfg.App.RequestTimeoutSeconds = getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", cfg.App.RequestTimeoutSeconds)

	cfg.Postgres.DSN = getEnv("POSTGRES_DSN", cfg.Postgres.DSN)
	cfg.Postgres.MaxConns = int32(getEnvAsInt("POSTGRES_MAX_CONNS", int(cfg.Postgres.MaxConns)))
	cfg.Postgres.MinConns = int32(getEnvAsInt("POSTGRES_MIN_CONNS", int(cfg.Postgres.MinConns)))
	cfg.Postgres.RunMigrations = getEnvAsBool("POSTGRES_RUN_MIGRATIONS", cfg.Postgres.RunMigrations)
	cfg.Postgres.ConnMaxIdleSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", int(cfg.Postgres.ConnMaxIdleSec)))
	cfg.Postgres.ConnMaxLifeSec = int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", int(cfg.Postgres.ConnMaxLifeSec)))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)

	cfg.Logger.Level = getEnv("LOG_LEVEL", cfg.Logger.Level)

	cfg.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.AccessTokenTTLMinutes = getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", cfg.Auth.AccessTokenTTLMinutes)
	cfg.Auth.BcryptCost = getEnvAsInt("AUTH_BCRYPT_COST", cfg.Auth.BcryptCost)

	cfg.LLM.AnthropicAPIKey = getEnv("ANTHROPIC_API_KEY", cfg.LLM.AnthropicAPIKey)
	cfg.LLM.Model = getEnv("LLM_MODEL", cfg.LLM.Model)
	cfg.LLM.MaxTokens = getEnvAsInt("LLM_MAX_TOKENS", cfg.LLM.MaxTokens)
	cfg.LLM.TimeoutSeconds = getEnvAsInt("LLM_TIMEOUT_SECONDS", cfg.LLM.TimeoutSeconds)
	cfg.LLM.RequestsPerSecond = getEnvAsFloat("LLM_REQUESTS_PER_SECOND", cfg.LLM.RequestsPerSecond)
	cfg.LLM.Burst = getEnvAsInt("LLM_BURST", cfg.LLM.Burst)
	cfg.LLM.PromptFile = getEnv("LLM_PROMPT_FILE", cfg.LLM.PromptFile)

	cfg.SMTP.Host = getEnv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Port = getEnvAsInt("SMTP_PORT", cfg.SMTP.Port)
	cfg.SMTP.Username = getEnv("SMTP_USER", cfg.SMTP.Username)
	cfg.SMTP.Password = getEnv("SMTP_PASS", cfg.SMTP.Password)
	cfg.SMTP.From = getEnv("NOTIFY_EMAIL_FROM", cfg.SMTP.From)

	cfg.Notification.WebhookURL = getEnv("NOTIFY_WEBHOOK_URL", cfg.Notification.WebhookURL)

	cfg.Queue.Driver = getEnv("QUEUE_DRIVER", cfg.Queue.Driver)
	cfg.Queue.RedisKey = getEnv("QUEUE_REDIS_KEY", cfg.Queue.RedisKey)
	cfg.Queue.BufferSize = getEnvAsInt("QUEUE_BUFFER_SIZE", cfg.Queue.BufferSize)

	cfg.Workflow.StepRetries = getEnvAsInt("WORKFLOW_STEP_RETRIES", cfg.Workflow.StepRetries)
	cfg.Workflow.BaseBackoffMillis = getEnvAsInt("WORKFLOW_BASE_BACKOFF_MILLIS", cfg.Workflow.BaseBackoffMillis)
	cfg.Workflow.MaxBackoffMillis = getEnvAsInt("WORKFLOW_MAX_BACKOFF_MILLIS", cfg.Workflow.MaxBackoffMillis)

	cfg.Worker.Concurrency = getEnvAsInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.ResumeSchedule = getEnv("WORKER_RESUME_SCHEDULE", cfg.Worker.ResumeSchedule)
	cfg.Worker.ResumeStaleAfterSeconds = getEnvAsInt("WORKER_RESUME_STALE_AFTER_SECONDS", cfg.Worker.ResumeStaleAfterSeconds)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Defaults returns the baseline configuration used before file and env overrides.
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:                  "ticket-triage",
			Env:                   "development",
			Host:                  "0.0.0.0",
			Port:                  "8080",
			Version:               "dev",
			RequestTimeoutSeconds: 30,
		},
		Postgres: PostgresConfig{
			MaxConns:       10,
			MinConns:       2,
			RunMigrations:  true,
			ConnMaxIdleSec: 30,
			ConnMaxLifeSec: 300,
		},
		Redis: RedisConfig{
			Addr: "127.0.0.1:6379",
		},
		Logger: LoggerConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			JWTSecret:             "dev-secret",
			AccessTokenTTLMinutes: 60,
			BcryptCost:            10,
		},
		LLM: LLMConfig{
			Model:             "claude-sonnet-4-5-20250929",
			MaxTokens:         1024,
			TimeoutSeconds:    30,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		SMTP: SMTPConfig{
			Port: 587,
			From: "noreply@example.com",
		},
		Queue: QueueConfig{
			Driver:     QueueDriverMemory,
			RedisKey:   "ticket-triage:events",
			BufferSize: 256,
		},
		Workflow: WorkflowConfig{
			StepRetries:       2,
			BaseBackoffMillis: 500,
			MaxBackoffMillis:  10000,
		},
		Worker: WorkerConfig{
			Concurrency:             4,
			ResumeSchedule:          "@every 1m",
			ResumeStaleAfterSeconds: 300,
		},
	}
}

// Validate rejects settings the runtime cannot operate with.
func (c *Config) Validate() error {
	switch c.Queue.Driver {
	case QueueDriverMemory, QueueDriverRedis:
	default:
		return fmt.Errorf("invalid QUEUE_DRIVER %q", c.Queue.Driver)
	}
	if c.Workflow.StepRetries < 0 {
		return fmt.Errorf("WORKFLOW_STEP_RETRIES must be >= 0, got %d", c.Workflow.StepRetries)
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("WORKER_CONCURRENCY must be > 0, got %d", c.Worker.Concurrency)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the per-call classifier timeout.
func (l LLMConfig) Timeout() time.Duration {
	if l.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(l.TimeoutSeconds) * time.Second
}

// Enabled reports whether a mail relay is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

// BaseBackoff returns the first retry delay.
func (w WorkflowConfig) BaseBackoff() time.Duration {
	return time.Duration(w.BaseBackoffMillis) * time.Millisecond
}

// MaxBackoff returns the retry delay cap.
func (w WorkflowConfig) MaxBackoff() time.Duration {
	return time.Duration(w.MaxBackoffMillis) * time.Millisecond
}

// ResumeStaleAfter returns how long a run may sit idle before the sweeper resumes it.
func (w WorkerConfig) ResumeStaleAfter() time.Duration {
	return time.Duration(w.ResumeStaleAfterSeconds) * time.Second
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
