package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration derived from environment variables.
type Config struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	ServiceName  string
	// Block endpoint on the shop backend
	EndpointURL     string
	EndpointTimeout time.Duration
	// Where cached pages come from: "http" or "redis"
	PageSource      string
	UpstreamURL     string
	UpstreamTimeout time.Duration
	RedisAddr       string
	RedisPagePrefix string
	// Placeholder markup convention
	PlaceholderClass string
	SelectorAttr     string
	// Page URL and current product resolution
	PublicBaseURL   string
	ProductIDHeader string
	ProductIDGlobal string
	ForwardHeaders  []string
	// Tracing configuration
	TracingEnabled    bool
	TempoEndpoint     string
	TracingSampleRate float64
}

// Load parses environment variables and returns a Config populated with
// defaults when variables are absent.
func Load() Config {
	cfg := Config{}

	cfg.Port = getenv("PORT", "8080")
	cfg.ReadTimeout = envDuration("READ_TIMEOUT", 5*time.Second)
	cfg.WriteTimeout = envDuration("WRITE_TIMEOUT", 30*time.Second)
	cfg.ServiceName = getenv("SERVICE_NAME", "holepunch")

	cfg.EndpointURL = getenv("ENDPOINT_URL", "http://localhost/aoestatic/call/index")
	// zero leaves the endpoint call on network defaults
	cfg.EndpointTimeout = envDuration("ENDPOINT_TIMEOUT", 0)

	cfg.PageSource = strings.ToLower(getenv("PAGE_SOURCE", "http"))
	cfg.UpstreamURL = getenv("UPSTREAM_URL", "http://localhost:6081")
	cfg.UpstreamTimeout = envDuration("UPSTREAM_TIMEOUT", 10*time.Second)
	cfg.RedisAddr = getenv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPagePrefix = getenv("REDIS_PAGE_PREFIX", "page:")

	cfg.PlaceholderClass = getenv("PLACEHOLDER_CLASS", "placeholder")
	cfg.SelectorAttr = getenv("SELECTOR_ATTR", "rel")

	cfg.PublicBaseURL = getenv("PUBLIC_BASE_URL", "")
	cfg.ProductIDHeader = getenv("PRODUCT_ID_HEADER", "X-Current-Product-Id")
	cfg.ProductIDGlobal = getenv("PRODUCT_ID_GLOBAL", "CURRENTPRODUCTID")
	cfg.ForwardHeaders = envList("FORWARD_HEADERS", []string{"Cookie", "User-Agent", "Accept-Language"})

	// Tracing configuration
	cfg.TracingEnabled = envBool("TRACING_ENABLED", false)
	cfg.TempoEndpoint = getenv("TEMPO_ENDPOINT", "tempo:4317")
	cfg.TracingSampleRate = envFloat("TRACING_SAMPLE_RATE", 1.0)

	return cfg
}

// getenv returns the value of the environment variable if set, otherwise def.
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envDuration parses an environment variable into a time.Duration.
// The value can be a duration string (e.g. "5s") or a number of seconds.
// If the variable is unset or invalid, def is returned.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// envBool parses a boolean environment variable. Accepted values are those
// supported by strconv.ParseBool. When unset or invalid, def is returned.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return def
}

// envFloat parses a float64 environment variable. When unset or invalid, def is returned.
func envFloat(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	return def
}

// envList splits a comma separated variable, dropping blanks.
func envList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}
