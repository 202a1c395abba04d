package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// total requests per endpoint, method and status code
	RequestCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holepunch_requests_total",
			Help: "Total HTTP requests received",
		},
		[]string{"endpoint", "method", "status"},
	)

	// request latency in seconds per endpoint/method
	RequestLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "holepunch_request_duration_seconds",
			Help:    "Histogram of request latencies",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint", "method"},
	)

	// placeholders collected per page
	PlaceholdersCollected = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holepunch_placeholders_per_page",
			Help:    "Number of placeholders collected per page",
			Buckets: []float64{0, 1, 2, 4, 8, 16, 32},
		},
	)

	// pages whose markup had a placeholder without a content selector
	CollectionFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "holepunch_collection_failures_total",
			Help: "Total pages that failed placeholder collection",
		},
	)

	// block endpoint calls labelled by outcome (success, failure, skipped, abandoned)
	DispatchCount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holepunch_dispatch_total",
			Help: "Total block endpoint dispatch decisions",
		},
		[]string{"outcome"},
	)

	// latency of block endpoint calls
	DispatchLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "holepunch_dispatch_duration_seconds",
			Help:    "Duration of block endpoint requests",
			Buckets: prometheus.DefBuckets,
		},
	)

	// returned blocks labelled by result (applied, missing, failed)
	BlocksApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holepunch_blocks_total",
			Help: "Total returned blocks by apply result",
		},
		[]string{"result"},
	)

	// trusted code snippets handed to the code runner
	CodeSnippets = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holepunch_code_snippets_total",
			Help: "Total returned code snippets by run result",
		},
		[]string{"result"},
	)

	// page source lookups that failed, labelled by source kind
	SourceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "holepunch_source_errors_total",
			Help: "Total page source errors",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestCount,
		RequestLatency,
		PlaceholdersCollected,
		CollectionFailures,
		DispatchCount,
		DispatchLatency,
		BlocksApplied,
		CodeSnippets,
		SourceErrors,
	)
}
