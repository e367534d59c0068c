package lumen

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lumenfn/lumen-go/trace"
)

// Defaults applied by withDefaults when a field is zero or unset.
const (
	DefaultTimeout           = 30 * time.Second
	DefaultRetries           = 3
	DefaultDedupTTL          = 100 * time.Millisecond
	DefaultBatchWindow       = 5 * time.Millisecond
	DefaultMaxBatchSize      = 50
	DefaultMaxMetricsSamples = 1000
)

// Config is the engine's constructor surface. The zero value plus defaults
// yields a working engine: deduplication and batching on, metrics on.
type Config struct {
	// BaseURL is the target address, consumed by transports that need one.
	BaseURL string

	// Timeout bounds every transport call via a context deadline.
	Timeout time.Duration

	// Retries is the transient-failure retry budget, consumed by transports.
	// Zero applies the default; a negative value disables retries.
	Retries int

	// ParentTraceID, when set, makes this engine's spans part of an existing
	// trace instead of minting a fresh trace id.
	ParentTraceID string

	Deduplication DedupConfig
	Batching      BatchingConfig
	Metrics       MetricsConfig

	// Hooks receive span boundary events. All fields optional.
	Hooks trace.Hooks

	// Logger overrides the component logger. Nil uses the package default.
	Logger *slog.Logger
}

// DedupConfig controls collapsing of identical concurrent calls.
type DedupConfig struct {
	Enabled *bool
	TTL     time.Duration
}

// BatchingConfig controls accumulation of concurrent calls into one request.
type BatchingConfig struct {
	Enabled *bool
	Window  time.Duration
	MaxSize int
}

// MetricsConfig controls the latency sample window.
type MetricsConfig struct {
	Enabled    *bool
	MaxSamples int
}

// Bool is a convenience for setting the Enabled fields in literal configs.
func Bool(b bool) *bool {
	return &b
}

// DefaultConfig returns a fully populated config with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Retries < 0 {
		c.Retries = 0
	} else if c.Retries == 0 {
		c.Retries = DefaultRetries
	}
	if c.Deduplication.Enabled == nil {
		c.Deduplication.Enabled = Bool(true)
	}
	if c.Deduplication.TTL <= 0 {
		c.Deduplication.TTL = DefaultDedupTTL
	}
	if c.Batching.Enabled == nil {
		c.Batching.Enabled = Bool(true)
	}
	if c.Batching.Window <= 0 {
		c.Batching.Window = DefaultBatchWindow
	}
	if c.Batching.MaxSize <= 1 {
		c.Batching.MaxSize = DefaultMaxBatchSize
	}
	if c.Metrics.Enabled == nil {
		c.Metrics.Enabled = Bool(true)
	}
	if c.Metrics.MaxSamples <= 0 {
		c.Metrics.MaxSamples = DefaultMaxMetricsSamples
	}
	return c
}

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// fileConfig mirrors Config for YAML, with durations in milliseconds to
// match the documented option names.
type fileConfig struct {
	BaseURL       string `yaml:"base_url"`
	TimeoutMs     int    `yaml:"timeout_ms"`
	Retries       *int   `yaml:"retries"`
	ParentTraceID string `yaml:"parent_trace_id"`

	Deduplication struct {
		Enabled *bool `yaml:"enabled"`
		TTLMs   int   `yaml:"ttl_ms"`
	} `yaml:"deduplication"`

	Batching struct {
		Enabled  *bool `yaml:"enabled"`
		WindowMs int   `yaml:"window_ms"`
		MaxSize  int   `yaml:"max_size"`
	} `yaml:"batching"`

	Metrics struct {
		Enabled    *bool `yaml:"enabled"`
		MaxSamples int   `yaml:"max_samples"`
	} `yaml:"metrics"`
}

// LoadConfig reads engine configuration from a YAML file. ${ENV_VAR}
// references in the file are expanded before parsing; unknown variables
// expand to the empty string.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %q: %w", path, err)
	}

	expanded := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		name := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(name)
	})

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expanded), &fc); err != nil {
		return Config{}, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg := Config{
		BaseURL:       fc.BaseURL,
		Timeout:       time.Duration(fc.TimeoutMs) * time.Millisecond,
		ParentTraceID: fc.ParentTraceID,
	}
	if fc.Retries != nil {
		cfg.Retries = *fc.Retries
	}
	cfg.Deduplication.Enabled = fc.Deduplication.Enabled
	cfg.Deduplication.TTL = time.Duration(fc.Deduplication.TTLMs) * time.Millisecond
	cfg.Batching.Enabled = fc.Batching.Enabled
	cfg.Batching.Window = time.Duration(fc.Batching.WindowMs) * time.Millisecond
	cfg.Batching.MaxSize = fc.Batching.MaxSize
	cfg.Metrics.Enabled = fc.Metrics.Enabled
	cfg.Metrics.MaxSamples = fc.Metrics.MaxSamples

	return cfg.withDefaults(), nil
}
