// Package augment runs the hole-punching pipeline on one page: collect the
// placeholders, send the single block request, apply the response.
package augment

import (
	"context"
	"net/http"
	"time"

	"github.com/patrickwarner/holepunch/internal/apply"
	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/dispatch"
	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/patrickwarner/holepunch/internal/placeholder"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("holepunch/augment")

// Config replaces the page globals the pipeline used to read.
type Config struct {
	// EndpointURL is the block endpoint every request goes to.
	EndpointURL string
	// CurrentProductID applies to every page unless Input overrides it.
	CurrentProductID string
	// EndpointTimeout of zero leaves the request on transport defaults.
	EndpointTimeout  time.Duration
	PlaceholderClass string
	SelectorAttr     string
	ForwardHeaders   []string
	// Runner executes returned code; nil means apply.ScriptInjector.
	Runner apply.CodeRunner
}

// Input describes the page being assembled.
type Input struct {
	PageURL          string
	CurrentProductID string
	// Header is the visitor request; configured headers are forwarded.
	Header http.Header
}

// Report describes what happened to one page.
type Report struct {
	Placeholders int
	Dispatched   bool
	// Applied is false when the request failed or was abandoned.
	Applied bool
	Result  apply.Result
	// DispatchErr explains why a dispatched request was not applied.
	DispatchErr error
}

// Augmenter wires collector, dispatcher and applier together.
type Augmenter struct {
	cfg       Config
	collector *placeholder.Collector
	client    *dispatch.Client
	applier   *apply.Applier
	logger    *zap.Logger
	metrics   observability.MetricsRegistry
}

// New builds an Augmenter from cfg.
func New(cfg Config, logger *zap.Logger, metrics observability.MetricsRegistry) *Augmenter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Augmenter{
		cfg:       cfg,
		collector: placeholder.NewCollector(cfg.PlaceholderClass, cfg.SelectorAttr),
		client:    dispatch.NewClient(cfg.EndpointURL, cfg.EndpointTimeout, cfg.ForwardHeaders, logger, metrics),
		applier:   apply.NewApplier(cfg.Runner, logger, metrics),
		logger:    logger,
		metrics:   metrics,
	}
}

// Run processes doc in place. A placeholder without a content selector
// returns placeholder.ErrMissingSelector and nothing is requested. Otherwise
// Run returns once the response was applied or the request failed; a failed
// request leaves doc untouched and is reported in Report.DispatchErr, not as
// an error.
func (a *Augmenter) Run(ctx context.Context, doc page.Document, in Input) (*Report, error) {
	ctx, span := tracer.Start(ctx, "augment.Run")
	defer span.End()
	logger := middleware.LoggerFromContext(ctx, a.logger)

	coll, err := a.collector.Collect(doc)
	if err != nil {
		a.metrics.IncrementCollectionFailures()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	a.metrics.RecordPlaceholders(coll.Count())

	productID := in.CurrentProductID
	if productID == "" {
		productID = a.cfg.CurrentProductID
	}

	report := &Report{Placeholders: coll.Count()}
	span.SetAttributes(
		attribute.Int("placeholders", coll.Count()),
		attribute.String("page_url", in.PageURL),
	)

	if !dispatch.ShouldDispatch(coll.Count(), productID) {
		a.metrics.IncrementDispatch("skipped")
		logger.Debug("nothing to fetch", zap.String("page_url", in.PageURL))
		return report, nil
	}

	payload := &blocks.Payload{
		Blocks:           coll.Blocks(),
		PageURL:          in.PageURL,
		CurrentProductID: productID,
	}
	report.Dispatched = true

	pending := a.client.Dispatch(ctx, payload, in.Header, func(resp *blocks.Response) {
		report.Result = a.applier.Apply(doc, resp)
		report.Applied = true
	})
	// the page is only rendered after the continuation ran or was dropped
	report.DispatchErr = pending.Wait()

	span.SetAttributes(
		attribute.Bool("applied", report.Applied),
		attribute.Int("blocks.applied", report.Result.Applied),
		attribute.Int("blocks.missing", report.Result.Missing),
	)
	return report, nil
}
