// Package config loads the sync settings and desired-state zone files from
// YAML.
package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v3"
)

// Config holds the provider connection and monitoring settings.
type Config struct {
	// APIKey authenticates against the platform API. ${ENV_VAR} references
	// are expanded.
	APIKey string `yaml:"api_key"`

	// RetryCount bounds rate-limit retries per API call; 0 uses the
	// provider default.
	RetryCount int `yaml:"retry_count"`

	// Parallelism is the worker-count hint used to widen rate-limit
	// backoff windows.
	Parallelism int `yaml:"parallelism"`

	// MonitorRegions is where health-check jobs run. Required before any
	// health-check-backed record can be applied.
	MonitorRegions []string `yaml:"monitor_regions"`

	// SharedNotifyList reuses one notify list for all monitors.
	SharedNotifyList bool `yaml:"shared_notifylist"`

	// UseHTTPMonitors emits modern http jobs instead of legacy
	// HTTP-emulating tcp jobs.
	UseHTTPMonitors bool `yaml:"use_http_monitors"`

	// DefaultHTTPVersion is the request version for legacy checks,
	// "HTTP/1.0" or "HTTP/1.1".
	DefaultHTTPVersion string `yaml:"default_http_version"`
}

// Load reads the configuration from the path specified by the
// NS1_SYNC_CONFIG environment variable, defaulting to
// "configs/ns1-sync.yaml".
func Load() (*Config, error) {
	path := os.Getenv("NS1_SYNC_CONFIG")
	if path == "" {
		path = "configs/ns1-sync.yaml"
	}
	return LoadFromPath(path)
}

// LoadFromPath reads the configuration from the given file path.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.APIKey = os.ExpandEnv(cfg.APIKey)

	if v := cfg.DefaultHTTPVersion; v != "" && v != "HTTP/1.0" && v != "HTTP/1.1" {
		return nil, fmt.Errorf("config: default_http_version must be HTTP/1.0 or HTTP/1.1, got %q", v)
	}

	return &cfg, nil
}
