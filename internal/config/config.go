package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Database    DatabaseConfig    `envconfig:"DB"`
	Queue       QueueConfig       `envconfig:"QUEUE"`
	API         APIConfig         `envconfig:"API"`
	Worker      WorkerConfig      `envconfig:"WORKER"`
	Auth        AuthConfig        `envconfig:"AUTH"`
	Events      EventsConfig      `envconfig:"EVENTS"`
	Dispatch    DispatchConfig    `envconfig:"DISPATCH"`
	Provider    ProviderConfig    `envconfig:"PROVIDER"`
	Credentials CredentialsConfig `envconfig:"CREDENTIALS"`
	Log         LogConfig         `envconfig:"LOG"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Host            string        `envconfig:"HOST" default:"localhost"`
	Port            int           `envconfig:"PORT" default:"5432"`
	User            string        `envconfig:"USER" default:"campaign_dispatch"`
	Password        string        `envconfig:"PASSWORD" default:"campaign_dispatch"`
	DBName          string        `envconfig:"NAME" default:"campaign_dispatch"`
	SSLMode         string        `envconfig:"SSLMODE" default:"disable"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"5m"`
}

// QueueConfig holds queue configuration (Redis)
type QueueConfig struct {
	RedisURL  string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`
	QueueName string `envconfig:"NAME" default:"campaign_dispatch"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Port         int           `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"120s"`
}

// WorkerConfig holds worker configuration
type WorkerConfig struct {
	Concurrency int `envconfig:"CONCURRENCY" default:"5"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	JWTSecret string `envconfig:"JWT_SECRET"`
}

// EventsConfig holds the lifecycle event bus settings. An empty URL disables publishing.
type EventsConfig struct {
	AMQPURL  string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"EXCHANGE" default:"campaign.events"`
}

// DispatchConfig tunes the dispatch pipeline
type DispatchConfig struct {
	DefaultCountryCode   string        `envconfig:"DEFAULT_COUNTRY_CODE" default:"91"`
	SubmitTimeout        time.Duration `envconfig:"SUBMIT_TIMEOUT" default:"90s"`
	ListFetchConcurrency int           `envconfig:"LIST_FETCH_CONCURRENCY" default:"4"`
	RecordRenderedFields bool          `envconfig:"RECORD_RENDERED_FIELDS" default:"true"`
	PublishTimeout       time.Duration `envconfig:"PUBLISH_TIMEOUT" default:"5s"`
}

// ProviderConfig holds per-adapter transport settings
type ProviderConfig struct {
	Brevo    HTTPProviderConfig `envconfig:"BREVO"`
	MSG91    HTTPProviderConfig `envconfig:"MSG91"`
	Fast2SMS HTTPProviderConfig `envconfig:"FAST2SMS"`
	WATI     HTTPProviderConfig `envconfig:"WATI"`
	SMTP     SMTPConfig         `envconfig:"SMTP"`
	Mock     MockConfig         `envconfig:"MOCK"`
}

// HTTPProviderConfig is shared by every HTTP-based adapter
type HTTPProviderConfig struct {
	BaseURL       string        `envconfig:"BASE_URL"`
	Timeout       time.Duration `envconfig:"TIMEOUT" default:"30s"`
	RatePerSecond float64       `envconfig:"RATE_PER_SECOND" default:"10"`
	Burst         int           `envconfig:"BURST" default:"10"`
	ChunkSize     int           `envconfig:"CHUNK_SIZE" default:"500"`
}

// SMTPConfig holds SMTP relay settings
type SMTPConfig struct {
	Host          string  `envconfig:"HOST" default:"localhost"`
	Port          int     `envconfig:"PORT" default:"587"`
	Username      string  `envconfig:"USERNAME"`
	Password      string  `envconfig:"PASSWORD"`
	RatePerSecond float64 `envconfig:"RATE_PER_SECOND" default:"5"`
	Burst         int     `envconfig:"BURST" default:"5"`
}

// MockConfig configures the development sender
type MockConfig struct {
	Enabled     bool          `envconfig:"ENABLED" default:"false"`
	SuccessRate float64       `envconfig:"SUCCESS_RATE" default:"0.95"`
	Delay       time.Duration `envconfig:"DELAY" default:"50ms"`
}

// CredentialsConfig controls the provider credentials cache
type CredentialsConfig struct {
	CacheTTL time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

// LogConfig selects log level and output format
type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
}

// Load reads configuration from the environment, after loading a .env file if present
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.Worker.Concurrency < 1 {
		return nil, fmt.Errorf("invalid WORKER_CONCURRENCY: %d", cfg.Worker.Concurrency)
	}
	if cfg.Dispatch.ListFetchConcurrency < 1 {
		return nil, fmt.Errorf("invalid DISPATCH_LIST_FETCH_CONCURRENCY: %d", cfg.Dispatch.ListFetchConcurrency)
	}

	return &cfg, nil
}

// DSN returns the database connection string
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}
