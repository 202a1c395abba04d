package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestShouldSampleBounds(t *testing.T) {
	assert.True(t, ShouldSample(1.0))
	assert.True(t, ShouldSample(2.0))
	assert.False(t, ShouldSample(0))
	assert.False(t, ShouldSample(-1))
}

func TestSamplerForRate(t *testing.T) {
	assert.Contains(t, samplerFor(1).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(3).Description(), "root:AlwaysOnSampler")
	assert.Contains(t, samplerFor(0).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, samplerFor(-0.5).Description(), "root:AlwaysOffSampler")
	assert.Contains(t, samplerFor(0.25).Description(), "root:TraceIDRatioBased{0.25}")
}

func TestServiceResourceCarriesEnvironment(t *testing.T) {
	t.Setenv("ENV", "Staging")
	res := serviceResource("holepunch")

	env, ok := res.Set().Value("environment")
	assert.True(t, ok)
	assert.Equal(t, "staging", env.AsString())
	name, ok := res.Set().Value("service.name")
	assert.True(t, ok)
	assert.Equal(t, "holepunch", name.AsString())
}

func TestGetLogLevel(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("LOG_LEVEL", "")
	assert.Equal(t, zap.DebugLevel, getLogLevel())

	t.Setenv("LOG_LEVEL", "warn")
	assert.Equal(t, zap.WarnLevel, getLogLevel())

	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "bogus")
	assert.Equal(t, zap.InfoLevel, getLogLevel())
}

func TestMockMetricsRegistryCounts(t *testing.T) {
	m := &MockMetricsRegistry{}
	m.IncrementDispatch("success")
	m.IncrementDispatch("success")
	m.IncrementBlocks("missing")
	m.IncrementCollectionFailures()

	assert.Equal(t, 2, m.Count("dispatch:success"))
	assert.Equal(t, 1, m.Count("blocks:missing"))
	assert.Equal(t, 1, m.Count("collection:failure"))
	assert.Equal(t, 0, m.Count("dispatch:failure"))
}

func TestInitLoggerWithLevelNamesLogger(t *testing.T) {
	logger, err := InitLoggerWithLevel(zap.ErrorLevel, "holepunch-test")
	assert.NoError(t, err)
	assert.NotNil(t, logger)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))
}
