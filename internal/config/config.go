package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the tagger
type Config struct {
	Env      string         `mapstructure:"environment"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	PostHog  PostHogConfig  `mapstructure:"posthog"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

// PostHogConfig holds the analytics platform connection
type PostHogConfig struct {
	Host       string        `mapstructure:"host"`
	ProjectID  string        `mapstructure:"project_id"`
	APIKey     string        `mapstructure:"api_key"`
	CaptureKey string        `mapstructure:"capture_key"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds reconciliation run tuning
type PipelineConfig struct {
	PageSize  int    `mapstructure:"page_size"`
	BatchSize int    `mapstructure:"batch_size"`
	DryRun    bool   `mapstructure:"dry_run"`
	Schedule  string `mapstructure:"schedule"`
}

// FetcherConfig holds reputation feed fetching configuration
type FetcherConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
	UserAgent   string        `mapstructure:"user_agent"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`
}

// RedisConfig holds the optional feed cache configuration
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file with environment overrides
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// PostHog defaults
	viper.SetDefault("posthog.host", "https://app.posthog.com")
	viper.SetDefault("posthog.timeout", "30s")

	// Pipeline defaults
	viper.SetDefault("pipeline.page_size", 500)
	viper.SetDefault("pipeline.batch_size", 1000)
	viper.SetDefault("pipeline.dry_run", false)

	// Fetcher defaults
	viper.SetDefault("fetcher.concurrency", 10)
	viper.SetDefault("fetcher.http_timeout", "30s")
	viper.SetDefault("fetcher.max_retries", 3)
	viper.SetDefault("fetcher.user_agent", "Posthog-Person-Bot-Tagger/1.0")
	viper.SetDefault("fetcher.cache_ttl", "6h")

	// Redis defaults
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.pool_size", 10)

	// Metrics defaults
	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.port", 9090)
	viper.SetDefault("metrics.path", "/metrics")
}
