package mcpatlassian

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		ConfluenceURL: "https://wiki.example.com",
		Username:      "svc",
		APIToken:      "token",
	}
}

func TestValidate_AppliesDefaults(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != DefaultPort {
		t.Errorf("expected default port %d, got %d", DefaultPort, cfg.Port)
	}
	if cfg.BasePath != DefaultBasePath {
		t.Errorf("expected default base path %q, got %q", DefaultBasePath, cfg.BasePath)
	}
	if cfg.CacheMaxSize != DefaultCacheMaxSize {
		t.Errorf("expected default cache size %d, got %d", DefaultCacheMaxSize, cfg.CacheMaxSize)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("expected default TTL %s, got %s", DefaultCacheTTL, cfg.CacheTTL)
	}
	if cfg.UpstreamTimeout != DefaultUpstreamTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultUpstreamTimeout, cfg.UpstreamTimeout)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantMsg string
	}{
		{"missing url", func(c *Config) { c.ConfluenceURL = "" }, "confluence_url"},
		{"relative url", func(c *Config) { c.ConfluenceURL = "wiki.example.com" }, "absolute"},
		{"missing credentials", func(c *Config) { c.Username, c.APIToken = "", "" }, "credentials"},
		{"token without username", func(c *Config) { c.Username = "" }, "credentials"},
		{"port out of range", func(c *Config) { c.Port = 70000 }, "port"},
		{"base path without slash", func(c *Config) { c.BasePath = "proxy" }, "base_path"},
		{"negative cache size", func(c *Config) { c.CacheMaxSize = -1 }, "cache_max_size"},
		{"negative rate limit", func(c *Config) { c.RateLimitRPS = -1 }, "rate limit"},
		{"unknown access log driver", func(c *Config) { c.AccessLogDriver = "mongodb" }, "access_log_driver"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}

func TestValidate_OAuthAloneSuffices(t *testing.T) {
	cfg := Config{
		ConfluenceURL: "https://wiki.example.com",
		OAuthToken:    "bearer-token",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("CONFLUENCE_URL", "https://wiki.example.com")
	t.Setenv("CONFLUENCE_USERNAME", "svc")
	t.Setenv("CONFLUENCE_API_TOKEN", "token")
	t.Setenv("CACHE_MAX_SIZE", "250")
	t.Setenv("CACHE_TTL_SECONDS", "120")
	t.Setenv("PROXY_PORT", "9090")
	t.Setenv("RATE_LIMIT_RPS", "2.5")

	cfg := FromEnv()
	if cfg.ConfluenceURL != "https://wiki.example.com" {
		t.Errorf("unexpected url %q", cfg.ConfluenceURL)
	}
	if cfg.CacheMaxSize != 250 {
		t.Errorf("expected cache size 250, got %d", cfg.CacheMaxSize)
	}
	if cfg.CacheTTL != 120*time.Second {
		t.Errorf("expected TTL 120s, got %s", cfg.CacheTTL)
	}
	if cfg.Port != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Port)
	}
	if cfg.RateLimitRPS != 2.5 {
		t.Errorf("expected rps 2.5, got %f", cfg.RateLimitRPS)
	}
}

func TestFromEnv_MalformedNumbersFallBack(t *testing.T) {
	t.Setenv("CACHE_MAX_SIZE", "lots")
	t.Setenv("CACHE_TTL_SECONDS", "")

	cfg := FromEnv()
	if cfg.CacheMaxSize != DefaultCacheMaxSize {
		t.Errorf("expected default cache size, got %d", cfg.CacheMaxSize)
	}
	if cfg.CacheTTL != DefaultCacheTTL {
		t.Errorf("expected default TTL, got %s", cfg.CacheTTL)
	}
}
