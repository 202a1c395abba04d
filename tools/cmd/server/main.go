package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/patrickwarner/holepunch/internal/api"
	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/source"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	logger, err := observability.InitLoggerWithService(cfg.ServiceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	defer func() {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "failed to sync logger: %v\n", err)
		}
	}()

	if err := run(logger, cfg); err != nil {
		logger.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

func run(logger *zap.Logger, cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		shutdown, err := observability.InitTracing(ctx, logger, cfg.ServiceName, cfg.TempoEndpoint, cfg.TracingSampleRate)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		defer shutdown()
	}

	src, closeSource, err := openSource(ctx, logger, cfg)
	if err != nil {
		return err
	}
	defer closeSource()

	metricsRegistry := observability.NewPrometheusRegistry()

	augmenter := augment.New(augment.Config{
		EndpointURL:      cfg.EndpointURL,
		EndpointTimeout:  cfg.EndpointTimeout,
		PlaceholderClass: cfg.PlaceholderClass,
		SelectorAttr:     cfg.SelectorAttr,
		ForwardHeaders:   cfg.ForwardHeaders,
	}, logger, metricsRegistry)

	srvDeps := api.NewServer(logger, src, augmenter, metricsRegistry, cfg)

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      otelhttp.NewHandler(srvDeps.Router(), "holepunch"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	logger.Info("Holepunch server running",
		zap.String("addr", addr),
		zap.String("source", src.Name()),
		zap.String("endpoint", cfg.EndpointURL))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("listen: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	return nil
}

// openSource builds the page source named by PAGE_SOURCE.
func openSource(ctx context.Context, logger *zap.Logger, cfg config.Config) (source.Source, func(), error) {
	switch cfg.PageSource {
	case "redis":
		store, err := source.InitRedis(ctx, cfg.RedisAddr, cfg.RedisPagePrefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis: %w", err)
		}
		return store, func() { _ = store.Close() }, nil
	case "http", "":
		src := source.NewHTTPSource(cfg.UpstreamURL, cfg.UpstreamTimeout, cfg.ForwardHeaders, cfg.ProductIDHeader, logger)
		return src, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown page source %q", cfg.PageSource)
	}
}
