// Package mcpatlassian implements an attachment fetch-through cache and
// proxy for Confluence. A single trusted process holds the upstream
// credential, fetches attachments and pages on demand, and serves repeated
// requests for the same attachment from a bounded in-memory TTL cache.
//
// The Service type is the main entry point: create one with NewService and
// serve requests through GetAttachment and GetPage. Configuration is a
// single immutable value built once at startup via FromEnv and optionally
// [LoadConfig].
package mcpatlassian

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

// Config holds the proxy configuration. It is constructed once at startup
// and never mutated at runtime; every component reads from the same value.
type Config struct {
	// ConfluenceURL is the upstream origin base URL.
	ConfluenceURL string
	// Username and APIToken form the basic-auth upstream credential.
	Username string
	APIToken string
	// OAuthToken, when set, selects OAuth bearer authentication instead
	// of basic auth.
	OAuthToken string

	// Port is the listen port. BasePath prefixes all proxy routes.
	Port     int
	BasePath string

	// CacheMaxSize bounds the number of cached attachments; CacheTTL
	// bounds their age.
	CacheMaxSize int
	CacheTTL     time.Duration

	// UpstreamTimeout is the hard per-call deadline for upstream fetches.
	UpstreamTimeout time.Duration

	// RateLimitRPS/RateLimitBurst configure per-client-IP rate limiting
	// on the proxy routes. Zero disables it.
	RateLimitRPS   float64
	RateLimitBurst float64

	// AccessLogDriver selects the access log backend: "", "sqlite", or
	// "postgres". AccessLogDSN is the driver-specific DSN.
	AccessLogDriver string
	AccessLogDSN    string
}

// Defaults applied by FromEnv and Validate.
const (
	DefaultPort            = 8080
	DefaultBasePath        = "/proxy"
	DefaultCacheMaxSize    = 1000
	DefaultCacheTTL        = 3600 * time.Second
	DefaultUpstreamTimeout = 30 * time.Second
)

// FromEnv builds a Config from the environment.
func FromEnv() Config {
	cfg := Config{
		ConfluenceURL:   os.Getenv("CONFLUENCE_URL"),
		Username:        os.Getenv("CONFLUENCE_USERNAME"),
		APIToken:        os.Getenv("CONFLUENCE_API_TOKEN"),
		OAuthToken:      os.Getenv("CONFLUENCE_OAUTH_TOKEN"),
		Port:            envInt("PROXY_PORT", DefaultPort),
		BasePath:        envString("PROXY_BASE_PATH", DefaultBasePath),
		CacheMaxSize:    envInt("CACHE_MAX_SIZE", DefaultCacheMaxSize),
		CacheTTL:        time.Duration(envInt("CACHE_TTL_SECONDS", int(DefaultCacheTTL/time.Second))) * time.Second,
		UpstreamTimeout: time.Duration(envInt("UPSTREAM_TIMEOUT_SECONDS", int(DefaultUpstreamTimeout/time.Second))) * time.Second,
		RateLimitRPS:    envFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst:  envFloat("RATE_LIMIT_BURST", 0),
		AccessLogDriver: os.Getenv("ACCESS_LOG_DRIVER"),
		AccessLogDSN:    os.Getenv("ACCESS_LOG_DSN"),
	}
	return cfg
}

// Validate checks the configuration for correctness, applying defaults for
// omitted optional fields.
func (c *Config) Validate() error {
	if c.ConfluenceURL == "" {
		return fmt.Errorf("confluence_url is required (set CONFLUENCE_URL)")
	}
	u, err := url.Parse(c.ConfluenceURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("confluence_url %q is not an absolute URL", c.ConfluenceURL)
	}
	if c.OAuthToken == "" && (c.Username == "" || c.APIToken == "") {
		return fmt.Errorf("credentials are required: set CONFLUENCE_USERNAME and CONFLUENCE_API_TOKEN, or CONFLUENCE_OAUTH_TOKEN")
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port %d out of range", c.Port)
	}
	if c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.BasePath[0] != '/' {
		return fmt.Errorf("base_path %q must start with /", c.BasePath)
	}
	if c.CacheMaxSize == 0 {
		c.CacheMaxSize = DefaultCacheMaxSize
	}
	if c.CacheMaxSize < 1 {
		return fmt.Errorf("cache_max_size must be at least 1")
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must be positive")
	}
	if c.UpstreamTimeout == 0 {
		c.UpstreamTimeout = DefaultUpstreamTimeout
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit values must not be negative")
	}
	switch c.AccessLogDriver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown access_log_driver %q: use sqlite or postgres", c.AccessLogDriver)
	}
	return nil
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
