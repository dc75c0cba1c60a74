package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
// The values are read by Viper from a config file or environment variables.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Delivery  DeliveryConfig  `mapstructure:"delivery"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Address string `mapstructure:"address"`
}

type DatabaseConfig struct {
	URI  string `mapstructure:"uri"`
	Name string `mapstructure:"name"`
}

// JWTConfig defines JWT specific configuration
type JWTConfig struct {
	Secret     string        `mapstructure:"secret"`
	Expiration time.Duration `mapstructure:"expiration"`
}

// ArchiveConfig configures the S3-compatible plan archive. Disabled by
// default; when disabled a no-op archive is wired.
type ArchiveConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
}

// GeneratorConfig configures the external AI plan-content generator.
// When disabled, every delivery uses fallback synthesis.
type GeneratorConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DeliveryConfig tunes the delivery engine and its recurring triggers.
type DeliveryConfig struct {
	DailyCron         string        `mapstructure:"daily_cron"`    // full due sweep
	OverdueCron       string        `mapstructure:"overdue_cron"`  // bounded catch-up sweep
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	OverdueWindowFrom time.Duration `mapstructure:"overdue_window_from"`
	OverdueWindowTo   time.Duration `mapstructure:"overdue_window_to"`
	OverdueBatchLimit int64         `mapstructure:"overdue_batch_limit"`
	OverdueItemDelay  time.Duration `mapstructure:"overdue_item_delay"`
	QueueWorkers      int           `mapstructure:"queue_workers"`
	QueueBuffer       int           `mapstructure:"queue_buffer"`
}

// LoggingConfig configures zap output and file rotation.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"` // empty = stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	// --- Environment Variable Handling ---
	viper.AutomaticEnv()
	// Use replacer for nested keys e.g., server.address -> SERVER_ADDRESS
	viper.SetEnvKeyReplacer(strings.NewReplacer(`.`, `_`))

	// --- Set default values ---
	viper.SetDefault("server.address", ":8080")
	viper.SetDefault("database.uri", "mongodb://localhost:27017")
	viper.SetDefault("database.name", "coach_app")
	viper.SetDefault("jwt.expiration", "24h")
	viper.SetDefault("archive.enabled", false)
	viper.SetDefault("generator.enabled", true)
	viper.SetDefault("generator.model", "gpt-4o-mini")
	viper.SetDefault("generator.timeout", "30s")
	viper.SetDefault("delivery.daily_cron", "0 6 * * *")
	viper.SetDefault("delivery.overdue_cron", "@hourly")
	viper.SetDefault("delivery.retry_attempts", 3)
	viper.SetDefault("delivery.retry_backoff", "100ms")
	viper.SetDefault("delivery.overdue_window_from", "24h")
	viper.SetDefault("delivery.overdue_window_to", "1h")
	viper.SetDefault("delivery.overdue_batch_limit", 5)
	viper.SetDefault("delivery.overdue_item_delay", "2s")
	viper.SetDefault("delivery.queue_workers", 2)
	viper.SetDefault("delivery.queue_buffer", 64)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.max_size_mb", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age_days", 28)

	// --- Read Config File ---
	err = viper.ReadInConfig()
	// If config file not found, continue (might rely solely on env vars).
	if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		err = nil
	} else if err != nil {
		return
	}

	// --- Unmarshal Config ---
	err = viper.Unmarshal(&config)
	if err != nil {
		return
	}

	return config, nil
}
