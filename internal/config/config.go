package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/steveyegge/sgcc/internal/cc"
	"github.com/steveyegge/sgcc/internal/dataset"
	"github.com/steveyegge/sgcc/internal/logging"
)

// Config holds configuration for a resolver run
type Config struct {
	// MaxIterations is the hard cap on LargeStar+SmallStar rounds
	// Exceeding it fails the run; it never returns a partial mapping
	// Default: 100, Range: 1-10000
	MaxIterations int

	// Timeout bounds a whole resolve call
	// Zero disables the timeout
	// Default: 0
	Timeout time.Duration

	// Partitions is the number of partitions every wide transform produces
	// More partitions = smaller tasks, more scheduling overhead
	// Default: 8, Range: 1-65536
	Partitions int

	// Parallelism bounds how many partition tasks run concurrently
	// Default: number of CPUs
	Parallelism int

	// MaxTaskAttempts is how often a failed partition task is recomputed
	// Default: 4 (initial attempt plus 3 retries), Range: 1-20
	MaxTaskAttempts int

	// LogLevel is one of debug, info, warn, error
	// Default: info
	LogLevel string

	// LogFormat is text or json
	// Default: text
	LogFormat string

	// DBPath is the sqlite database path. Empty means discover it.
	DBPath string

	// PostgresURL selects the Postgres backend instead of sqlite when set
	PostgresURL string

	// MetricsAddr serves Prometheus metrics during resolve when set (e.g. ":9090")
	MetricsAddr string

	// KeepRuns is how many of the most recent runs survive pruning, together
	// with their iteration history and mappings. The latest converged run is
	// always kept. Pruning runs after every successful resolve.
	// Set to 0 to keep every run
	// Default: 20, Range: 0-100000
	KeepRuns int
}

// DefaultConfig returns the default resolver configuration
//
// These defaults are chosen to:
// - Converge any realistic graph well inside the iteration cap
// - Keep one machine busy without oversubscribing it
// - Survive transient task failures without masking persistent ones
func DefaultConfig() Config {
	return Config{
		MaxIterations:   cc.DefaultMaxIterations, // 100 rounds
		Timeout:         0,                       // No timeout
		Partitions:      8,                       // 8 partitions
		Parallelism:     runtime.GOMAXPROCS(0),   // One task per CPU
		MaxTaskAttempts: 4,                       // Retry three times
		LogLevel:        "info",
		LogFormat:       "text",
		KeepRuns:        20, // Recent history without unbounded mapping growth
	}
}

// Validate checks if the configuration has valid values
func (c Config) Validate() error {
	if c.MaxIterations <= 0 {
		return fmt.Errorf("max_iterations must be positive (got %d)", c.MaxIterations)
	}
	if c.MaxIterations > 10000 {
		return fmt.Errorf("max_iterations too large (got %d, max 10000)", c.MaxIterations)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout cannot be negative (got %v)", c.Timeout)
	}
	if c.Partitions <= 0 {
		return fmt.Errorf("partitions must be positive (got %d)", c.Partitions)
	}
	if c.Partitions > 65536 {
		return fmt.Errorf("partitions too large (got %d, max 65536)", c.Partitions)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive (got %d)", c.Parallelism)
	}
	if c.MaxTaskAttempts <= 0 {
		return fmt.Errorf("max_task_attempts must be positive (got %d)", c.MaxTaskAttempts)
	}
	if c.MaxTaskAttempts > 20 {
		return fmt.Errorf("max_task_attempts too large (got %d, max 20)", c.MaxTaskAttempts)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if c.KeepRuns < 0 {
		return fmt.Errorf("keep_runs cannot be negative (got %d)", c.KeepRuns)
	}
	if c.KeepRuns > 100000 {
		return fmt.Errorf("keep_runs too large (got %d, max 100000)", c.KeepRuns)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json (got %q)", c.LogFormat)
	}
	return nil
}

// String returns a human-readable representation of the config
func (c Config) String() string {
	return fmt.Sprintf(
		"Config{MaxIterations: %d, Timeout: %v, Partitions: %d, Parallelism: %d, "+
			"MaxTaskAttempts: %d, LogLevel: %s, LogFormat: %s, DBPath: %q, Postgres: %t, MetricsAddr: %q, KeepRuns: %d}",
		c.MaxIterations, c.Timeout, c.Partitions, c.Parallelism,
		c.MaxTaskAttempts, c.LogLevel, c.LogFormat, c.DBPath, c.PostgresURL != "", c.MetricsAddr, c.KeepRuns,
	)
}

// DatasetOptions returns the engine options for this config.
func (c Config) DatasetOptions() dataset.Options {
	return dataset.Options{
		Partitions:      c.Partitions,
		Parallelism:     c.Parallelism,
		MaxTaskAttempts: c.MaxTaskAttempts,
	}
}

// ResolveOptions returns the driver options for this config. Collector and
// hooks are left for the caller.
func (c Config) ResolveOptions() cc.Options {
	return cc.Options{
		MaxIterations: c.MaxIterations,
		Timeout:       c.Timeout,
	}
}

// FromEnv creates a Config from environment variables, falling back to defaults
//
// Environment variables:
//   - SGCC_MAX_ITERATIONS: Iteration cap (default: 100)
//   - SGCC_TIMEOUT_SECS: Resolve timeout in seconds, 0 disables (default: 0)
//   - SGCC_PARTITIONS: Partition count (default: 8)
//   - SGCC_PARALLELISM: Concurrent partition tasks (default: CPUs)
//   - SGCC_MAX_TASK_ATTEMPTS: Attempts per partition task (default: 4)
//   - SGCC_LOG_LEVEL: debug, info, warn, error (default: info)
//   - SGCC_LOG_FORMAT: text or json (default: text)
//   - SGCC_DB_PATH: sqlite database path
//   - SGCC_POSTGRES_URL: Postgres connection string
//   - SGCC_METRICS_ADDR: Prometheus listen address
//   - SGCC_KEEP_RUNS: Runs kept by pruning, 0 keeps all (default: 20)
//
// Returns an error if any environment variable has an invalid value.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration from environment: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any SGCC_* variables that are set. It does not
// validate; callers validate once every layer is applied.
func ApplyEnv(cfg *Config) error {
	if err := parseEnvInt("SGCC_MAX_ITERATIONS", &cfg.MaxIterations); err != nil {
		return err
	}
	if err := parseEnvDuration("SGCC_TIMEOUT_SECS", &cfg.Timeout, time.Second); err != nil {
		return err
	}
	if err := parseEnvInt("SGCC_PARTITIONS", &cfg.Partitions); err != nil {
		return err
	}
	if err := parseEnvInt("SGCC_PARALLELISM", &cfg.Parallelism); err != nil {
		return err
	}
	if err := parseEnvInt("SGCC_MAX_TASK_ATTEMPTS", &cfg.MaxTaskAttempts); err != nil {
		return err
	}
	if err := parseEnvInt("SGCC_KEEP_RUNS", &cfg.KeepRuns); err != nil {
		return err
	}
	parseEnvString("SGCC_LOG_LEVEL", &cfg.LogLevel)
	parseEnvString("SGCC_LOG_FORMAT", &cfg.LogFormat)
	parseEnvString("SGCC_DB_PATH", &cfg.DBPath)
	parseEnvString("SGCC_POSTGRES_URL", &cfg.PostgresURL)
	parseEnvString("SGCC_METRICS_ADDR", &cfg.MetricsAddr)
	return nil
}

// parseEnvInt parses an int from an environment variable
func parseEnvInt(key string, dest *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = parsed
	return nil
}

// parseEnvDuration parses a duration from an environment variable
// The multiplier is used to convert the numeric value to a duration
// (e.g., for seconds: multiplier = time.Second)
func parseEnvDuration(key string, dest *time.Duration, multiplier time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil // Use default
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	*dest = time.Duration(parsed) * multiplier
	return nil
}

func parseEnvString(key string, dest *string) {
	if value := os.Getenv(key); value != "" {
		*dest = value
	}
}
