// Package config loads the service configuration from the environment.
// A .env file in the working directory is honoured when present.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreMySQL  = "mysql"
	StoreMemory = "memory"
)

type Config struct {
	Env  string
	Port string

	Database  DatabaseConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Pipeline  PipelineConfig
	Store     StoreConfig
	Broker    BrokerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         string
	User         string
	Password     string
	Name         string
	MaxOpenConns int
	MaxIdleConns int
	// Migrate applies the embedded schema at startup.
	Migrate bool
}

type LogConfig struct {
	Level  string
	Format string
}

// PipelineConfig tunes the reservation admission pipeline.
type PipelineConfig struct {
	Workers int
	// MaxQueueDepth of zero leaves the queue unbounded.
	MaxQueueDepth int
	// RequestTimeout of zero disables per-request timeouts.
	RequestTimeout time.Duration
	// SubmitWait bounds how long an HTTP request waits on its handle.
	SubmitWait time.Duration
}

type StoreConfig struct {
	Driver string
}

// BrokerConfig configures RabbitMQ.  Events are published only when
// EventsEnabled is set and URL is non-empty.
type BrokerConfig struct {
	URL           string
	EventsEnabled bool
	// AuditLogPath is where the consumer appends reservation events.
	AuditLogPath string
}

// Load reads the configuration.  A missing .env file is not an error.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Env:  strings.ToLower(v.GetString("APP_ENV")),
		Port: v.GetString("APP_PORT"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetString("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASS"),
		Name:         v.GetString("DB_NAME"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		Migrate:      v.GetBool("DB_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Addr:     redisAddr(v),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
		TLS:      v.GetBool("REDIS_TLS"),
	}

	cfg.RateLimit = loadRateLimit(v)
	cfg.Cache = loadCache(v)

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Pipeline = PipelineConfig{
		Workers:        v.GetInt("PIPELINE_WORKERS"),
		MaxQueueDepth:  v.GetInt("PIPELINE_MAX_QUEUE_DEPTH"),
		RequestTimeout: parseDuration(v.GetString("PIPELINE_REQUEST_TIMEOUT"), 0),
		SubmitWait:     parseDuration(v.GetString("PIPELINE_SUBMIT_WAIT"), 10*time.Second),
	}

	cfg.Store = StoreConfig{Driver: strings.ToLower(v.GetString("STORE_DRIVER"))}

	url := v.GetString("RABBITMQ_URL")
	if url == "" {
		url = v.GetString("AMQP_URL")
	}
	cfg.Broker = BrokerConfig{
		URL:           url,
		EventsEnabled: v.GetBool("EVENTS_ENABLED"),
		AuditLogPath:  v.GetString("EVENTS_AUDIT_LOG"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	switch c.Store.Driver {
	case StoreMySQL:
		if c.Database.Host == "" || c.Database.User == "" || c.Database.Name == "" {
			errs = append(errs, errors.New("DB_HOST, DB_USER and DB_NAME are required for the mysql store"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	if c.Pipeline.Workers < 1 {
		errs = append(errs, fmt.Errorf("PIPELINE_WORKERS must be positive, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.MaxQueueDepth < 0 {
		errs = append(errs, fmt.Errorf("PIPELINE_MAX_QUEUE_DEPTH must not be negative, got %d", c.Pipeline.MaxQueueDepth))
	}
	return errors.Join(errs...)
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool { return c.Env == EnvProduction }

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", EnvDevelopment)
	v.SetDefault("APP_PORT", "8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "3306")
	v.SetDefault("DB_USER", "root")
	v.SetDefault("DB_PASS", "")
	v.SetDefault("DB_NAME", "studyroom")
	v.SetDefault("DB_MAX_OPEN_CONNS", 25)
	v.SetDefault("DB_MAX_IDLE_CONNS", 25)
	v.SetDefault("DB_MIGRATE", true)

	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_TLS", false)

	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_CAPACITY", 60)
	v.SetDefault("RATE_LIMIT_REFILL_TOKENS", 1)
	v.SetDefault("RATE_LIMIT_REFILL_INTERVAL", "1s")
	v.SetDefault("RATE_LIMIT_TTL", "10m")
	v.SetDefault("RATE_LIMIT_KEY_STRATEGY", "ip_route")
	v.SetDefault("RATE_LIMIT_PREFIX", "rl")
	v.SetDefault("RATE_LIMIT_DEBUG", false)

	v.SetDefault("CACHE_ENABLED", true)
	v.SetDefault("CACHE_TTL", "30s")
	v.SetDefault("CACHE_KEY_STRATEGY", "route_query")
	v.SetDefault("CACHE_PREFIX", "cache")
	v.SetDefault("CACHE_MAX_BODY_BYTES", 1<<20)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_MAX_QUEUE_DEPTH", 0)
	v.SetDefault("PIPELINE_REQUEST_TIMEOUT", "0s")
	v.SetDefault("PIPELINE_SUBMIT_WAIT", "10s")

	v.SetDefault("STORE_DRIVER", StoreMySQL)

	v.SetDefault("EVENTS_ENABLED", false)
	v.SetDefault("EVENTS_AUDIT_LOG", "logs/reservations.log")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}
