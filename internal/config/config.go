// Package config loads and validates catalog builder configuration via Viper.
package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/isocatalog/internal/policy/admission"
	"github.com/JakeFAU/isocatalog/internal/sources"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	HTTP      HTTPConfig           `mapstructure:"http"`
	Governor  GovernorConfig       `mapstructure:"governor"`
	LinkCheck LinkCheckConfig      `mapstructure:"linkcheck"`
	Assembly  AssemblyConfig       `mapstructure:"assembly"`
	Progress  ProgressConfig       `mapstructure:"progress"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Metrics   MetricsConfig        `mapstructure:"metrics"`
	Tracing   TracingConfig        `mapstructure:"tracing"`
	Sources   []sources.Definition `mapstructure:"sources"`
}

// HTTPConfig configures upstream requests and retry behavior.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	BackoffBaseMs  int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs   int    `mapstructure:"backoff_max_ms"`
	ProbeMethod    string `mapstructure:"probe_method"`
}

// GovernorConfig sizes the admission pools.
type GovernorConfig struct {
	GlobalPermits int64                 `mapstructure:"global_permits"`
	Hosts         []admission.HostLimit `mapstructure:"hosts"`
}

// LinkCheckConfig controls liveness validation.
type LinkCheckConfig struct {
	RecordConcurrency int `mapstructure:"record_concurrency"`
	CacheSize         int `mapstructure:"cache_size"`
}

// AssemblyConfig controls source fan-out.
type AssemblyConfig struct {
	SourceConcurrency int `mapstructure:"source_concurrency"`
}

// ProgressConfig sizes the progress event hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchEvents  int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutSecs int `mapstructure:"sink_timeout_seconds"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// MetricsConfig controls the ops HTTP server. An empty address disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// TracingConfig toggles the OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ISOCATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.user_agent", "isocatalog/1.0")
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_base_ms", 500)
	v.SetDefault("http.backoff_max_ms", 10000)
	v.SetDefault("http.probe_method", http.MethodGet)
	v.SetDefault("governor.global_permits", 150)
	v.SetDefault("governor.hosts", []map[string]any{
		{"host": "sourceforge.net", "permits": 5},
	})
	v.SetDefault("linkcheck.record_concurrency", 0)
	v.SetDefault("linkcheck.cache_size", 0)
	v.SetDefault("assembly.source_concurrency", 0)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("progress.sink_timeout_seconds", 10)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "isocatalog")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.BackoffBaseMs <= 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffBaseMs {
		return fmt.Errorf("http.backoff_base_ms must be > 0 and <= http.backoff_max_ms")
	}
	switch strings.ToUpper(c.HTTP.ProbeMethod) {
	case http.MethodGet, http.MethodHead:
	default:
		return fmt.Errorf("http.probe_method must be GET or HEAD")
	}
	if c.Governor.GlobalPermits <= 0 {
		return fmt.Errorf("governor.global_permits must be > 0")
	}
	seenHosts := make(map[string]struct{}, len(c.Governor.Hosts))
	for _, h := range c.Governor.Hosts {
		host := strings.ToLower(strings.TrimSpace(h.Host))
		if host == "" {
			return fmt.Errorf("governor.hosts: host is required")
		}
		if h.Permits < 0 || h.RequestsPerSecond < 0 {
			return fmt.Errorf("governor.hosts[%s]: limits must be >= 0", host)
		}
		if h.Permits == 0 && h.RequestsPerSecond == 0 {
			return fmt.Errorf("governor.hosts[%s]: set permits or requests_per_second", host)
		}
		if _, dup := seenHosts[host]; dup {
			return fmt.Errorf("governor.hosts[%s]: duplicate host", host)
		}
		seenHosts[host] = struct{}{}
	}
	if c.LinkCheck.RecordConcurrency < 0 || c.LinkCheck.CacheSize < 0 || c.Assembly.SourceConcurrency < 0 {
		return fmt.Errorf("linkcheck and assembly limits must be >= 0")
	}
	seenSources := make(map[string]struct{}, len(c.Sources))
	for _, def := range c.Sources {
		if err := def.Validate(); err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		if _, dup := seenSources[def.Name]; dup {
			return fmt.Errorf("sources: duplicate name %q", def.Name)
		}
		seenSources[def.Name] = struct{}{}
	}
	return nil
}

// Timeout returns the per-attempt HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffBase returns the first retry delay.
func (c HTTPConfig) BackoffBase() time.Duration {
	return time.Duration(c.BackoffBaseMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// MaxBatchWait returns the progress batching window.
func (c ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// SinkTimeout returns the per-sink flush timeout.
func (c ProgressConfig) SinkTimeout() time.Duration {
	return time.Duration(c.SinkTimeoutSecs) * time.Second
}
