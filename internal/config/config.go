// Package config loads the load-generator configuration from a YAML file,
// AIO_* environment variables and defaults.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (applied by the caller after Load)
//  2. Environment variables (AIO_*)
//  3. Configuration file (YAML)
//  4. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

// Config represents the complete configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Driver  DriverConfig  `mapstructure:"driver"`
	Load    LoadConfig    `mapstructure:"load"`
	Store   StoreConfig   `mapstructure:"store"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Valid values: DEBUG, INFO, WARN, ERROR (normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// DriverConfig controls admission, transfer and the I/O engine.
type DriverConfig struct {
	Concurrency int     `mapstructure:"concurrency" validate:"gte=1"`
	RateLimit   float64 `mapstructure:"rate_limit" validate:"gte=0"`
	RateBurst   int     `mapstructure:"rate_burst" validate:"gte=0"`
	ChunkSize   Size    `mapstructure:"chunk_size" validate:"gt=0,lte=4194304"`
	Verify      bool    `mapstructure:"verify"`

	// Valid values: pool, uring
	IOEngine    string `mapstructure:"io_engine" validate:"required,oneof=pool uring"`
	Workers     int    `mapstructure:"workers" validate:"gte=0"`
	RingEntries uint32 `mapstructure:"ring_entries" validate:"gte=0,lte=32768"`
}

// LoadConfig describes the load step to run.
type LoadConfig struct {
	// Valid values: noop, create, read, update, copy (normalized to lowercase)
	Op           string `mapstructure:"op" validate:"required,oneof=noop create read update copy"`
	Count        int    `mapstructure:"count" validate:"gte=0"`
	ItemSize     Size   `mapstructure:"item_size" validate:"gte=0"`
	Seed         uint64 `mapstructure:"seed"`
	InputSize    Size   `mapstructure:"input_size" validate:"gte=0"`
	SrcPath      string `mapstructure:"src_path"`
	DstPath      string `mapstructure:"dst_path"`
	QueueSize    int    `mapstructure:"queue_size" validate:"gte=0"`
	UpdateRanges []int  `mapstructure:"update_ranges" validate:"dive,gte=0,lt=64"`
}

// StoreConfig locates the bbolt item store. An empty path disables it.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen" validate:"omitempty,hostname_port"`
}

// Load loads configuration from file, environment, and defaults.
// An empty configPath searches the default location; a missing file
// there is not an error.
func Load(configPath string) (*Config, error) {
	if configPath != "" {
		if _, err := os.Stat(configPath); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v := viper.New()
	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		sizeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper configures env support, defaults and the config file.
// Every key gets a default so AutomaticEnv can override it.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("AIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("driver.concurrency", constants.DefaultConcurrency)
	v.SetDefault("driver.rate_limit", 0)
	v.SetDefault("driver.rate_burst", 0)
	v.SetDefault("driver.chunk_size", constants.DefaultChunkSize)
	v.SetDefault("driver.verify", true)
	v.SetDefault("driver.io_engine", "pool")
	v.SetDefault("driver.workers", constants.DefaultWorkers)
	v.SetDefault("driver.ring_entries", constants.DefaultRingEntries)
	v.SetDefault("load.op", "create")
	v.SetDefault("load.count", 0)
	v.SetDefault("load.item_size", "1M")
	v.SetDefault("load.seed", 0)
	v.SetDefault("load.input_size", "1M")
	v.SetDefault("load.src_path", "")
	v.SetDefault("load.dst_path", "")
	v.SetDefault("load.queue_size", constants.DefaultContinuationQueueSize)
	v.SetDefault("load.update_ranges", []int{})
	v.SetDefault("store.path", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "")

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(getConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns $XDG_CONFIG_HOME/aio, ~/.config/aio, or "." as a
// last resort.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "aio")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "aio")
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}
