package observability

import "time"

// MetricsRegistry provides an interface for recording application metrics.
// Components receive it by injection instead of touching the global Prometheus collectors.
type MetricsRegistry interface {
	// HTTP request metrics
	IncrementRequests(endpoint, method, status string)
	RecordRequestLatency(endpoint, method string, duration time.Duration)

	// Placeholder collection metrics
	RecordPlaceholders(count int)
	IncrementCollectionFailures()

	// Block endpoint metrics
	IncrementDispatch(outcome string)
	RecordDispatchLatency(duration time.Duration)

	// Response apply metrics
	IncrementBlocks(result string)
	IncrementCodeSnippets(result string)

	// Page source metrics
	IncrementSourceErrors(source string)
}

// PrometheusRegistry implements MetricsRegistry using the global Prometheus metrics
type PrometheusRegistry struct{}

// NewPrometheusRegistry creates a new PrometheusRegistry
func NewPrometheusRegistry() *PrometheusRegistry {
	return &PrometheusRegistry{}
}

func (r *PrometheusRegistry) IncrementRequests(endpoint, method, status string) {
	RequestCount.WithLabelValues(endpoint, method, status).Inc()
}

func (r *PrometheusRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {
	RequestLatency.WithLabelValues(endpoint, method).Observe(duration.Seconds())
}

func (r *PrometheusRegistry) RecordPlaceholders(count int) {
	PlaceholdersCollected.Observe(float64(count))
}

func (r *PrometheusRegistry) IncrementCollectionFailures() {
	CollectionFailures.Inc()
}

func (r *PrometheusRegistry) IncrementDispatch(outcome string) {
	DispatchCount.WithLabelValues(outcome).Inc()
}

func (r *PrometheusRegistry) RecordDispatchLatency(duration time.Duration) {
	DispatchLatency.Observe(duration.Seconds())
}

func (r *PrometheusRegistry) IncrementBlocks(result string) {
	BlocksApplied.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementCodeSnippets(result string) {
	CodeSnippets.WithLabelValues(result).Inc()
}

func (r *PrometheusRegistry) IncrementSourceErrors(source string) {
	SourceErrors.WithLabelValues(source).Inc()
}

// NoOpRegistry implements MetricsRegistry with no-op methods for testing
type NoOpRegistry struct{}

// NewNoOpRegistry creates a new NoOpRegistry
func NewNoOpRegistry() *NoOpRegistry {
	return &NoOpRegistry{}
}

func (r *NoOpRegistry) IncrementRequests(endpoint, method, status string)                    {}
func (r *NoOpRegistry) RecordRequestLatency(endpoint, method string, duration time.Duration) {}
func (r *NoOpRegistry) RecordPlaceholders(count int)                                         {}
func (r *NoOpRegistry) IncrementCollectionFailures()                                         {}
func (r *NoOpRegistry) IncrementDispatch(outcome string)                                     {}
func (r *NoOpRegistry) RecordDispatchLatency(duration time.Duration)                         {}
func (r *NoOpRegistry) IncrementBlocks(result string)                                        {}
func (r *NoOpRegistry) IncrementCodeSnippets(result string)                                  {}
func (r *NoOpRegistry) IncrementSourceErrors(source string)                                  {}
