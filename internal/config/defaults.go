package config

import (
	"strings"

	"github.com/ehrlich-b/go-aio/internal/constants"
)

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{Driver: DriverConfig{Verify: true}}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration
// fields and normalizes case. Explicit values are preserved. Verify has
// no zero-value default; Load and Default set it.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyDriverDefaults(&cfg.Driver)
	applyLoadDefaults(&cfg.Load)
	applyMetricsDefaults(&cfg.Metrics)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	cfg.Format = strings.ToLower(cfg.Format)
	if cfg.Output == "" {
		cfg.Output = "stderr"
	}
}

func applyDriverDefaults(cfg *DriverConfig) {
	if cfg.Concurrency == 0 {
		cfg.Concurrency = constants.DefaultConcurrency
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = constants.DefaultChunkSize
	}
	if cfg.IOEngine == "" {
		cfg.IOEngine = "pool"
	}
	cfg.IOEngine = strings.ToLower(cfg.IOEngine)
	if cfg.Workers == 0 {
		cfg.Workers = constants.DefaultWorkers
	}
	if cfg.RingEntries == 0 {
		cfg.RingEntries = constants.DefaultRingEntries
	}
}

func applyLoadDefaults(cfg *LoadConfig) {
	if cfg.Op == "" {
		cfg.Op = "create"
	}
	cfg.Op = strings.ToLower(cfg.Op)
	if cfg.ItemSize == 0 {
		cfg.ItemSize = 1 << 20
	}
	if cfg.InputSize == 0 {
		cfg.InputSize = 1 << 20
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = constants.DefaultContinuationQueueSize
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Listen == "" {
		cfg.Listen = "127.0.0.1:9464"
	}
}
