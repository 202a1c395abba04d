package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "holepunch", cfg.ServiceName)
	assert.Equal(t, time.Duration(0), cfg.EndpointTimeout)
	assert.Equal(t, "http", cfg.PageSource)
	assert.Equal(t, "placeholder", cfg.PlaceholderClass)
	assert.Equal(t, "rel", cfg.SelectorAttr)
	assert.Equal(t, "CURRENTPRODUCTID", cfg.ProductIDGlobal)
	assert.Equal(t, []string{"Cookie", "User-Agent", "Accept-Language"}, cfg.ForwardHeaders)
	assert.False(t, cfg.TracingEnabled)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("ENDPOINT_URL", "http://shop.test/aoestatic/call/index")
	t.Setenv("ENDPOINT_TIMEOUT", "3")
	t.Setenv("UPSTREAM_TIMEOUT", "750ms")
	t.Setenv("PAGE_SOURCE", "Redis")
	t.Setenv("FORWARD_HEADERS", "Cookie, ,X-Store")
	t.Setenv("TRACING_ENABLED", "true")
	t.Setenv("TRACING_SAMPLE_RATE", "0.25")

	cfg := Load()

	assert.Equal(t, "9000", cfg.Port)
	assert.Equal(t, "http://shop.test/aoestatic/call/index", cfg.EndpointURL)
	assert.Equal(t, 3*time.Second, cfg.EndpointTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.UpstreamTimeout)
	assert.Equal(t, "redis", cfg.PageSource)
	assert.Equal(t, []string{"Cookie", "X-Store"}, cfg.ForwardHeaders)
	assert.True(t, cfg.TracingEnabled)
	assert.InDelta(t, 0.25, cfg.TracingSampleRate, 1e-9)
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("READ_TIMEOUT", "soon")
	t.Setenv("TRACING_ENABLED", "maybe")
	t.Setenv("FORWARD_HEADERS", " , ")

	cfg := Load()

	assert.Equal(t, 5*time.Second, cfg.ReadTimeout)
	assert.False(t, cfg.TracingEnabled)
	assert.Equal(t, []string{"Cookie", "User-Agent", "Accept-Language"}, cfg.ForwardHeaders)
}
