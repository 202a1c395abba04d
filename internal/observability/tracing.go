package observability

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

// Version is reported on traces and by the MCP server.
const Version = "1.0.0"

const tracerShutdownTimeout = 5 * time.Second

// InitTracing exports spans over OTLP/gRPC to collectorEndpoint and installs
// the provider and W3C propagators globally, so otelhttp on the page server,
// the block endpoint client and the HTTP page source share one trace. The
// returned func flushes pending spans.
func InitTracing(ctx context.Context, logger *zap.Logger, serviceName, collectorEndpoint string, sampleRate float64) (func(), error) {
	exporter, err := otlptrace.New(ctx, otlptracegrpc.NewClient(
		otlptracegrpc.WithEndpoint(collectorEndpoint),
		otlptracegrpc.WithInsecure(),
	))
	if err != nil {
		return nil, fmt.Errorf("create otlp exporter for %s: %w", collectorEndpoint, err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(serviceResource(serviceName)),
		sdktrace.WithSampler(samplerFor(sampleRate)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing initialized",
		zap.String("collector", collectorEndpoint),
		zap.Float64("sample_rate", sampleRate),
		zap.String("environment", environment()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Failed to flush traces", zap.Error(err))
		}
	}, nil
}

func serviceResource(serviceName string) *resource.Resource {
	return resource.NewWithAttributes(
		"",
		semconv.ServiceName(serviceName),
		semconv.ServiceVersion(Version),
		attribute.String("environment", environment()),
	)
}

// samplerFor maps a rate to a root sampler; children follow their parent so
// a page trace started upstream (Varnish, load balancer) is kept whole.
func samplerFor(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.ParentBased(sdktrace.AlwaysSample())
	case rate <= 0:
		return sdktrace.ParentBased(sdktrace.NeverSample())
	default:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
	}
}

func environment() string {
	if env := strings.ToLower(os.Getenv("ENV")); env != "" {
		return env
	}
	return "production"
}
