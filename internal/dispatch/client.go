// Package dispatch sends the batched block request to the shop backend.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/observability"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("holepunch/dispatch")

// ErrEndpointStatus is returned when the endpoint answers with a non-2xx status.
var ErrEndpointStatus = errors.New("block endpoint returned unexpected status")

// Dispatch outcomes; every request is counted under exactly one of them.
const (
	outcomeSuccess   = "success"
	outcomeFailure   = "failure"
	outcomeAbandoned = "abandoned"
)

// ShouldDispatch reports whether a page warrants a request: it has a current
// product or at least one collected placeholder.
func ShouldDispatch(count int, currentProductID string) bool {
	return currentProductID != "" || count > 0
}

// Client talks to the block endpoint.
type Client struct {
	endpoint   string
	httpClient *http.Client
	forward    []string
	logger     *zap.Logger
	metrics    observability.MetricsRegistry
}

// NewClient creates a block endpoint client. A zero timeout leaves the call
// on the transport defaults. forward names the visitor request headers
// (cookies, user agent) passed on so the backend sees the visitor's session.
func NewClient(endpoint string, timeout time.Duration, forward []string, logger *zap.Logger, metrics observability.MetricsRegistry) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		forward: forward,
		logger:  logger,
		metrics: metrics,
	}
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Fetch issues exactly one GET to the endpoint carrying the payload and
// decodes the JSON response. It never retries.
func (c *Client) Fetch(ctx context.Context, p *blocks.Payload, header http.Header) (*blocks.Response, error) {
	resp, err := c.fetch(ctx, p, header)
	if err != nil {
		c.metrics.IncrementDispatch(outcomeFailure)
		return nil, err
	}
	c.metrics.IncrementDispatch(outcomeSuccess)
	return resp, nil
}

// fetch is Fetch without the outcome counter, which callers record once.
func (c *Client) fetch(ctx context.Context, p *blocks.Payload, header http.Header) (*blocks.Response, error) {
	ctx, span := tracer.Start(ctx, "dispatch.Fetch")
	defer span.End()
	span.SetAttributes(
		attribute.Int("blocks.requested", p.Blocks.Len()),
		attribute.Bool("blocks.has_product", p.CurrentProductID != ""),
	)

	start := time.Now()
	defer func() { c.metrics.RecordDispatchLatency(time.Since(start)) }()

	resp, err := c.call(ctx, p, header)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("blocks.returned", resp.Blocks.Len()),
		attribute.Int("code.returned", resp.Code.Len()),
	)
	return resp, nil
}

func (c *Client) call(ctx context.Context, p *blocks.Payload, header http.Header) (*blocks.Response, error) {
	target, err := c.requestURL(p)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, text/javascript, */*; q=0.01")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")
	for _, name := range c.forward {
		for _, v := range header.Values(name) {
			req.Header.Add(name, v)
		}
	}
	if id := middleware.RequestID(ctx); id != "" {
		req.Header.Set(middleware.RequestIDHeader, id)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn("failed to close response body", zap.Error(err))
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("%w: http %d: %s", ErrEndpointStatus, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	return blocks.DecodeResponse(resp.Body)
}

func (c *Client) requestURL(p *blocks.Payload) (string, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint url: %w", err)
	}
	if u.RawQuery == "" {
		u.RawQuery = p.Encode()
	} else {
		u.RawQuery += "&" + p.Encode()
	}
	return u.String(), nil
}

// Pending tracks one dispatched request.
type Pending struct {
	done chan struct{}
	err  error
}

// Done is closed once the continuation ran or was abandoned.
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until Done and returns why the continuation did not run, or nil.
func (p *Pending) Wait() error {
	<-p.done
	return p.err
}

// Dispatch sends the request on its own goroutine and returns immediately.
// cont runs only after a successful response. Any failure (network error,
// bad status, malformed body) is logged and the continuation never runs: the
// page simply stays as it is. When ctx is done before the response is handled
// the continuation is dropped as well.
func (c *Client) Dispatch(ctx context.Context, p *blocks.Payload, header http.Header, cont func(*blocks.Response)) *Pending {
	pending := &Pending{done: make(chan struct{})}
	logger := middleware.LoggerFromContext(ctx, c.logger)

	go func() {
		defer close(pending.done)

		resp, err := c.fetch(ctx, p, header)
		if err != nil {
			pending.err = err
			c.metrics.IncrementDispatch(outcomeFailure)
			logger.Warn("block request failed, leaving page unchanged",
				zap.Error(err),
				zap.String("page_url", p.PageURL))
			return
		}
		if err := ctx.Err(); err != nil {
			pending.err = err
			c.metrics.IncrementDispatch(outcomeAbandoned)
			logger.Debug("page gone before blocks arrived", zap.String("page_url", p.PageURL))
			return
		}
		c.metrics.IncrementDispatch(outcomeSuccess)
		cont(resp)
	}()

	return pending
}
