package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App        AppConfig
	Store      StoreConfig
	Enrichment EnrichmentConfig
	Redis      RedisConfig
	RateLimit  RateLimitConfig
	Logger     LoggerConfig
}

// AppConfig holds configuration for the application server
type AppConfig struct {
	Env                    string `mapstructure:"APP_ENV"`
	HTTPPort               string `mapstructure:"HTTP_PORT"`
	ShutdownTimeoutSeconds int    `mapstructure:"SHUTDOWN_TIMEOUT_SECONDS"`
}

// StoreConfig holds configuration for the JSON file store
type StoreConfig struct {
	DataFile    string `mapstructure:"STORE_DATA_FILE"`
	AtomicWrite bool   `mapstructure:"STORE_ATOMIC_WRITE"`
}

// EnrichmentConfig holds configuration for the text analysis service
type EnrichmentConfig struct {
	Enabled                 bool   `mapstructure:"ENRICHMENT_ENABLED"`
	BaseURL                 string `mapstructure:"ENRICHMENT_BASE_URL"`
	AnalyzePath             string `mapstructure:"ENRICHMENT_ANALYZE_PATH"`
	TimeoutSeconds          int    `mapstructure:"ENRICHMENT_TIMEOUT_SECONDS"`
	ReanalyzeOnUpdate       bool   `mapstructure:"ENRICHMENT_REANALYZE_ON_UPDATE"`
	QueueSize               int    `mapstructure:"ENRICHMENT_QUEUE_SIZE"`
	Workers                 int    `mapstructure:"ENRICHMENT_WORKERS"`
	BackfillIntervalSeconds int    `mapstructure:"ENRICHMENT_BACKFILL_INTERVAL_SECONDS"`
}

// Timeout returns the per-call timeout.
func (c EnrichmentConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackfillInterval returns the backfill period. Zero disables the backfill.
func (c EnrichmentConfig) BackfillInterval() time.Duration {
	return time.Duration(c.BackfillIntervalSeconds) * time.Second
}

// RedisConfig holds configuration for Redis
type RedisConfig struct {
	Enabled         bool   `mapstructure:"REDIS_ENABLED"`
	Host            string `mapstructure:"REDIS_HOST"`
	Port            string `mapstructure:"REDIS_PORT"`
	Password        string `mapstructure:"REDIS_PASSWORD"`
	DB              int    `mapstructure:"REDIS_DB"`
	MaxRetries      int    `mapstructure:"REDIS_MAX_RETRIES"`
	PoolSize        int    `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConn     int    `mapstructure:"REDIS_MIN_IDLE_CONN"`
	CacheTTLSeconds int    `mapstructure:"REDIS_CACHE_TTL_SECONDS"`
}

// CacheTTL returns how long insights stay cached.
func (c RedisConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

// RateLimitConfig holds configuration for request rate limiting
type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"RATE_LIMIT_ENABLED"`
	RequestsPerSecond float64 `mapstructure:"RATE_LIMIT_RPS"`
	BurstCapacity     int     `mapstructure:"RATE_LIMIT_BURST"`
}

// LoggerConfig holds configuration for the logger
type LoggerConfig struct {
	Level          string `mapstructure:"LOG_LEVEL"`
	Format         string `mapstructure:"LOG_FORMAT"`
	OutputPath     string `mapstructure:"LOG_OUTPUT_PATH"`
	MaxSizeMB      int    `mapstructure:"LOG_MAX_SIZE_MB"`
	MaxBackups     int    `mapstructure:"LOG_MAX_BACKUPS"`
	MaxAgeDays     int    `mapstructure:"LOG_MAX_AGE_DAYS"`
	EnableSampling bool   `mapstructure:"LOG_ENABLE_SAMPLING"`
	ServiceName    string `mapstructure:"SERVICE_NAME"`
	ServiceVersion string `mapstructure:"SERVICE_VERSION"`
}

// LoadConfig reads configuration from app.env in path and from environment
// variables. Environment variables win.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	// Set defaults first
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("app") // Look for app.env
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if we have env vars
	}

	var config Config

	config.App.Env = v.GetString("APP_ENV")
	config.App.HTTPPort = v.GetString("HTTP_PORT")
	config.App.ShutdownTimeoutSeconds = v.GetInt("SHUTDOWN_TIMEOUT_SECONDS")

	config.Store.DataFile = v.GetString("STORE_DATA_FILE")
	config.Store.AtomicWrite = v.GetBool("STORE_ATOMIC_WRITE")

	config.Enrichment.Enabled = v.GetBool("ENRICHMENT_ENABLED")
	config.Enrichment.BaseURL = v.GetString("ENRICHMENT_BASE_URL")
	config.Enrichment.AnalyzePath = v.GetString("ENRICHMENT_ANALYZE_PATH")
	config.Enrichment.TimeoutSeconds = v.GetInt("ENRICHMENT_TIMEOUT_SECONDS")
	config.Enrichment.ReanalyzeOnUpdate = v.GetBool("ENRICHMENT_REANALYZE_ON_UPDATE")
	config.Enrichment.QueueSize = v.GetInt("ENRICHMENT_QUEUE_SIZE")
	config.Enrichment.Workers = v.GetInt("ENRICHMENT_WORKERS")
	config.Enrichment.BackfillIntervalSeconds = v.GetInt("ENRICHMENT_BACKFILL_INTERVAL_SECONDS")

	config.Redis.Enabled = v.GetBool("REDIS_ENABLED")
	config.Redis.Host = v.GetString("REDIS_HOST")
	config.Redis.Port = v.GetString("REDIS_PORT")
	config.Redis.Password = v.GetString("REDIS_PASSWORD")
	config.Redis.DB = v.GetInt("REDIS_DB")
	config.Redis.MaxRetries = v.GetInt("REDIS_MAX_RETRIES")
	config.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	config.Redis.MinIdleConn = v.GetInt("REDIS_MIN_IDLE_CONN")
	config.Redis.CacheTTLSeconds = v.GetInt("REDIS_CACHE_TTL_SECONDS")

	config.RateLimit.Enabled = v.GetBool("RATE_LIMIT_ENABLED")
	config.RateLimit.RequestsPerSecond = v.GetFloat64("RATE_LIMIT_RPS")
	config.RateLimit.BurstCapacity = v.GetInt("RATE_LIMIT_BURST")

	config.Logger.Level = v.GetString("LOG_LEVEL")
	config.Logger.Format = v.GetString("LOG_FORMAT")
	config.Logger.OutputPath = v.GetString("LOG_OUTPUT_PATH")
	config.Logger.MaxSizeMB = v.GetInt("LOG_MAX_SIZE_MB")
	config.Logger.MaxBackups = v.GetInt("LOG_MAX_BACKUPS")
	config.Logger.MaxAgeDays = v.GetInt("LOG_MAX_AGE_DAYS")
	config.Logger.EnableSampling = v.GetBool("LOG_ENABLE_SAMPLING")
	config.Logger.ServiceName = v.GetString("SERVICE_NAME")
	config.Logger.ServiceVersion = v.GetString("SERVICE_VERSION")

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("SHUTDOWN_TIMEOUT_SECONDS", 10)

	v.SetDefault("STORE_DATA_FILE", "data/users.json")
	v.SetDefault("STORE_ATOMIC_WRITE", true)

	v.SetDefault("ENRICHMENT_ENABLED", false)
	v.SetDefault("ENRICHMENT_BASE_URL", "http://localhost:8000")
	v.SetDefault("ENRICHMENT_ANALYZE_PATH", "/analyze")
	v.SetDefault("ENRICHMENT_TIMEOUT_SECONDS", 5)
	v.SetDefault("ENRICHMENT_REANALYZE_ON_UPDATE", true)
	v.SetDefault("ENRICHMENT_QUEUE_SIZE", 256)
	v.SetDefault("ENRICHMENT_WORKERS", 2)
	v.SetDefault("ENRICHMENT_BACKFILL_INTERVAL_SECONDS", 0)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_MAX_RETRIES", 3)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_MIN_IDLE_CONN", 2)
	v.SetDefault("REDIS_CACHE_TTL_SECONDS", 3600)

	v.SetDefault("RATE_LIMIT_ENABLED", false)
	v.SetDefault("RATE_LIMIT_RPS", 10.0)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Logger defaults
	if v.GetString("APP_ENV") == "production" {
		v.SetDefault("LOG_LEVEL", "info")
		v.SetDefault("LOG_FORMAT", "json")
		v.SetDefault("LOG_ENABLE_SAMPLING", true)
	} else {
		v.SetDefault("LOG_LEVEL", "debug")
		v.SetDefault("LOG_FORMAT", "console")
		v.SetDefault("LOG_ENABLE_SAMPLING", false)
	}
	v.SetDefault("LOG_OUTPUT_PATH", "stdout")
	v.SetDefault("LOG_MAX_SIZE_MB", 100)
	v.SetDefault("LOG_MAX_BACKUPS", 3)
	v.SetDefault("LOG_MAX_AGE_DAYS", 28)
	v.SetDefault("SERVICE_NAME", "user-records-service")
	v.SetDefault("SERVICE_VERSION", "1.0.0")
}

// Validate checks settings that depend on each other.
func (c *Config) Validate() error {
	var errs []error

	if c.App.HTTPPort == "" {
		errs = append(errs, errors.New("HTTP_PORT is required"))
	}
	if c.App.ShutdownTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be positive"))
	}
	if strings.TrimSpace(c.Store.DataFile) == "" {
		errs = append(errs, errors.New("STORE_DATA_FILE is required"))
	}

	if c.Enrichment.Enabled {
		u, err := url.Parse(c.Enrichment.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("ENRICHMENT_BASE_URL %q is not an absolute URL", c.Enrichment.BaseURL))
		}
		if c.Enrichment.TimeoutSeconds <= 0 {
			errs = append(errs, errors.New("ENRICHMENT_TIMEOUT_SECONDS must be positive"))
		}
		if c.Enrichment.BackfillIntervalSeconds < 0 {
			errs = append(errs, errors.New("ENRICHMENT_BACKFILL_INTERVAL_SECONDS must not be negative"))
		}
	}

	if c.Redis.Enabled && (c.Redis.Host == "" || c.Redis.Port == "") {
		errs = append(errs, errors.New("REDIS_HOST and REDIS_PORT are required when Redis is enabled"))
	}

	if c.RateLimit.Enabled {
		if !c.Redis.Enabled {
			errs = append(errs, errors.New("RATE_LIMIT_ENABLED requires REDIS_ENABLED"))
		}
		if c.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_RPS must be positive"))
		}
		if c.RateLimit.BurstCapacity <= 0 {
			errs = append(errs, errors.New("RATE_LIMIT_BURST must be positive"))
		}
	}

	return errors.Join(errs...)
}
