package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.UserAgent != "isocatalog/1.0" {
		t.Fatalf("expected default user agent, got %q", cfg.HTTP.UserAgent)
	}
	if cfg.HTTP.MaxRetries != 3 || cfg.HTTP.Timeout() != 60*time.Second {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Governor.GlobalPermits != 150 {
		t.Fatalf("expected 150 global permits, got %d", cfg.Governor.GlobalPermits)
	}
	if len(cfg.Governor.Hosts) != 1 || cfg.Governor.Hosts[0].Host != "sourceforge.net" || cfg.Governor.Hosts[0].Permits != 5 {
		t.Fatalf("expected sourceforge.net override, got %+v", cfg.Governor.Hosts)
	}
	if cfg.Metrics.Addr != "" || cfg.Tracing.Enabled {
		t.Fatalf("expected ops surfaces disabled by default")
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
http:
  user_agent: custom-agent
  timeout_seconds: 45
  max_retries: 4
  backoff_base_ms: 100
  backoff_max_ms: 500
  probe_method: HEAD
governor:
  global_permits: 20
  hosts:
    - host: sourceforge.net
      permits: 2
    - host: download.example.org
      requests_per_second: 1.5
linkcheck:
  record_concurrency: 8
  cache_size: 512
logging:
  development: false
  level: warn
metrics:
  addr: ":9090"
sources:
  - kind: listing
    name: freebsd
    pretty_name: FreeBSD
    url: https://download.freebsd.org/releases/{arch}/
    arches: [x86_64, aarch64]
    arch_aliases:
      x86_64: amd64
      aarch64: arm64
    release_pattern: '^([0-9.]+)-RELEASE/$'
    file_pattern: '-(?P<edition>disc1|dvd1)\.iso\.xz$'
    checksum_file: CHECKSUM.SHA256
    checksum_format: sha256
    limit: 2
  - kind: github
    name: nixos-wsl
    url: https://api.github.com/repos/nix-community/NixOS-WSL/releases
    file_pattern: '\.tar\.gz$'
    include_prereleases: true
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HTTP.UserAgent != "custom-agent" || cfg.HTTP.BackoffBase() != 100*time.Millisecond {
		t.Fatalf("expected http overrides to apply: %+v", cfg.HTTP)
	}
	if len(cfg.Governor.Hosts) != 2 || cfg.Governor.Hosts[1].RequestsPerSecond != 1.5 {
		t.Fatalf("expected host overrides: %+v", cfg.Governor.Hosts)
	}
	if cfg.LinkCheck.CacheSize != 512 || cfg.Logging.Level != "warn" {
		t.Fatalf("expected linkcheck and logging overrides")
	}
	if len(cfg.Sources) != 2 {
		t.Fatalf("expected two sources, got %d", len(cfg.Sources))
	}
	freebsd := cfg.Sources[0]
	if freebsd.ArchAliases["aarch64"] != "arm64" || freebsd.Limit != 2 || freebsd.DisplayName != "FreeBSD" {
		t.Fatalf("expected listing definition to decode: %+v", freebsd)
	}
	if !cfg.Sources[1].IncludePrereleases {
		t.Fatalf("expected github definition to decode: %+v", cfg.Sources[1])
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func validConfig() Config {
	return Config{
		HTTP:     HTTPConfig{TimeoutSeconds: 10, BackoffBaseMs: 10, BackoffMaxMs: 100, ProbeMethod: "GET"},
		Governor: GovernorConfig{GlobalPermits: 10},
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	if err := validConfig().Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"invalid timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"negative retries", func(c *Config) { c.HTTP.MaxRetries = -1 }, "http.max_retries"},
		{"inverted backoff", func(c *Config) { c.HTTP.BackoffMaxMs = 1 }, "http.backoff_base_ms"},
		{"bad probe method", func(c *Config) { c.HTTP.ProbeMethod = "POST" }, "http.probe_method"},
		{"no permits", func(c *Config) { c.Governor.GlobalPermits = 0 }, "governor.global_permits"},
		{"empty host", func(c *Config) {
			c.Governor.Hosts = append(c.Governor.Hosts, hostLimit("", 1))
		}, "host is required"},
		{"host without limits", func(c *Config) {
			c.Governor.Hosts = append(c.Governor.Hosts, hostLimit("a.example", 0))
		}, "set permits"},
		{"duplicate host", func(c *Config) {
			c.Governor.Hosts = append(c.Governor.Hosts, hostLimit("a.example", 1), hostLimit("A.example", 2))
		}, "duplicate host"},
		{"negative cache", func(c *Config) { c.LinkCheck.CacheSize = -1 }, "must be >= 0"},
		{"unknown source kind", func(c *Config) {
			c.Sources = append(c.Sources, sourceDef("x", "ftp"))
		}, "unknown kind"},
		{"duplicate source", func(c *Config) {
			c.Sources = append(c.Sources, sourceDef("x", "github"), sourceDef("x", "github"))
		}, "duplicate name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
