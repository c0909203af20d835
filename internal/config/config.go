// Package config loads agent configuration from file, environment and defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the agent configuration.
type Config struct {
	APIURL         string        `mapstructure:"api_url"`
	DataDir        string        `mapstructure:"data_dir"`
	SyncInterval   time.Duration `mapstructure:"sync_interval"`
	AutoSync       bool          `mapstructure:"auto_sync"`
	BatchSize      int           `mapstructure:"batch_size"`
	RetentionDays  int           `mapstructure:"retention_days"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	LogLevel       string        `mapstructure:"log_level"`
}

// Load reads configuration from an optional config.yaml in the data
// directory, the TRADEWATCH_* environment, and built-in defaults.
// A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	dataDir := defaultDataDir()
	v.AddConfigPath(dataDir)

	v.SetEnvPrefix("TRADEWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("api_url", "https://api.tradewatch.dev")
	v.SetDefault("data_dir", dataDir)
	v.SetDefault("sync_interval", "30s")
	v.SetDefault("auto_sync", true)
	v.SetDefault("batch_size", 100)
	v.SetDefault("retention_days", 7)
	v.SetDefault("request_timeout", "10s")
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url must not be empty")
	}
	if c.BatchSize <= 0 || c.BatchSize > 100 {
		return fmt.Errorf("batch_size must be in 1..100, got %d", c.BatchSize)
	}
	if c.SyncInterval <= 0 {
		return fmt.Errorf("sync_interval must be positive, got %v", c.SyncInterval)
	}
	if c.RetentionDays <= 0 {
		return fmt.Errorf("retention_days must be positive, got %d", c.RetentionDays)
	}
	return nil
}

// Retention returns the queue retention window as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".tradewatch"
	}
	return filepath.Join(home, ".tradewatch")
}
