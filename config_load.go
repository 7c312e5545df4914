package mcpatlassian

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk form of Config. Durations are given in
// seconds so that JSON and YAML files stay plain numbers.
type fileConfig struct {
	ConfluenceURL string `json:"confluence_url" yaml:"confluence_url"`
	Username      string `json:"username" yaml:"username"`
	APIToken      string `json:"api_token" yaml:"api_token"`
	OAuthToken    string `json:"oauth_token" yaml:"oauth_token"`

	Port     int    `json:"port" yaml:"port"`
	BasePath string `json:"base_path" yaml:"base_path"`

	CacheMaxSize           int `json:"cache_max_size" yaml:"cache_max_size"`
	CacheTTLSeconds        int `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	UpstreamTimeoutSeconds int `json:"upstream_timeout_seconds" yaml:"upstream_timeout_seconds"`

	RateLimitRPS   float64 `json:"rate_limit_rps" yaml:"rate_limit_rps"`
	RateLimitBurst float64 `json:"rate_limit_burst" yaml:"rate_limit_burst"`

	AccessLogDriver string `json:"access_log_driver" yaml:"access_log_driver"`
	AccessLogDSN    string `json:"access_log_dsn" yaml:"access_log_dsn"`
}

// LoadConfig reads and parses a config file from the given path.
// Supported formats: JSON (.json), YAML (.yaml, .yml). Values present in
// the file override the corresponding environment-derived defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q: use .json, .yaml, or .yml", ext)
	}

	cfg := FromEnv()
	mergeFileConfig(&cfg, fc)
	return &cfg, nil
}

// mergeFileConfig overlays non-zero file values onto cfg.
func mergeFileConfig(cfg *Config, fc fileConfig) {
	if fc.ConfluenceURL != "" {
		cfg.ConfluenceURL = fc.ConfluenceURL
	}
	if fc.Username != "" {
		cfg.Username = fc.Username
	}
	if fc.APIToken != "" {
		cfg.APIToken = fc.APIToken
	}
	if fc.OAuthToken != "" {
		cfg.OAuthToken = fc.OAuthToken
	}
	if fc.Port != 0 {
		cfg.Port = fc.Port
	}
	if fc.BasePath != "" {
		cfg.BasePath = fc.BasePath
	}
	if fc.CacheMaxSize != 0 {
		cfg.CacheMaxSize = fc.CacheMaxSize
	}
	if fc.CacheTTLSeconds != 0 {
		cfg.CacheTTL = time.Duration(fc.CacheTTLSeconds) * time.Second
	}
	if fc.UpstreamTimeoutSeconds != 0 {
		cfg.UpstreamTimeout = time.Duration(fc.UpstreamTimeoutSeconds) * time.Second
	}
	if fc.RateLimitRPS != 0 {
		cfg.RateLimitRPS = fc.RateLimitRPS
	}
	if fc.RateLimitBurst != 0 {
		cfg.RateLimitBurst = fc.RateLimitBurst
	}
	if fc.AccessLogDriver != "" {
		cfg.AccessLogDriver = fc.AccessLogDriver
	}
	if fc.AccessLogDSN != "" {
		cfg.AccessLogDSN = fc.AccessLogDSN
	}
}
