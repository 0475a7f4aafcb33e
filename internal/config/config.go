// Package config loads orchestrator configuration from the environment and
// an optional config file via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every tunable of the orchestrator process.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level"`

	// Runtime selects the execution backend: "docker" or "local".
	Runtime string `mapstructure:"runtime"`

	// DockerHost overrides DOCKER_HOST for the docker runtime.
	DockerHost string `mapstructure:"docker_host"`

	// MaxConcurrent bounds concurrently running jobs.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// MaxAttempts bounds attempts per job (first run plus retries).
	MaxAttempts int `mapstructure:"max_attempts"`

	// RetryBackoff is the initial retry delay; MaxRetryBackoff caps it.
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`
	MaxRetryBackoff time.Duration `mapstructure:"max_retry_backoff"`

	// JobTimeout is the per-attempt wall-clock budget.
	JobTimeout time.Duration `mapstructure:"job_timeout"`

	// Retention keeps terminal jobs resolvable for this long.
	Retention time.Duration `mapstructure:"retention"`

	// CPUs and MemoryBytes are per-container resource limits.
	CPUs        float64 `mapstructure:"cpus"`
	MemoryBytes int64   `mapstructure:"memory_bytes"`

	// SubmitsPerSecond optionally throttles submissions; zero disables.
	SubmitsPerSecond float64 `mapstructure:"submits_per_second"`

	// HTTPAddr is the status API listen address (serve command).
	HTTPAddr string `mapstructure:"http_addr"`

	// DatabaseURL optionally enables the durable job-record store.
	DatabaseURL string `mapstructure:"database_url"`

	// NATSURL optionally enables lifecycle event publishing.
	NATSURL string `mapstructure:"nats_url"`

	// OTLPEndpoint optionally enables trace export.
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`

	// Engine image overrides; empty selects each adapter's default.
	ToyHFImage string `mapstructure:"toyhf_image"`
	XTBImage   string `mapstructure:"xtb_image"`
	PySCFImage string `mapstructure:"pyscf_image"`
}

// Load reads configuration from MDTK_* environment variables and, when
// cfgFile is non-empty, the given config file. Environment wins over file.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MDTK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("runtime", "docker")
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("retry_backoff", 500*time.Millisecond)
	v.SetDefault("max_retry_backoff", 30*time.Second)
	v.SetDefault("job_timeout", 30*time.Minute)
	v.SetDefault("retention", 15*time.Minute)
	v.SetDefault("http_addr", ":6161")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", cfgFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.Runtime != "docker" && cfg.Runtime != "local" {
		return nil, fmt.Errorf("invalid runtime %q (want docker or local)", cfg.Runtime)
	}
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("max_concurrent must be >= 1")
	}
	if cfg.MaxAttempts < 1 {
		return nil, fmt.Errorf("max_attempts must be >= 1")
	}
	return &cfg, nil
}
