package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/dispatch"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/patrickwarner/holepunch/internal/placeholder"
	"go.uber.org/zap"
)

type CollectInput struct {
	HTML             string `json:"html"`
	CurrentProductID string `json:"current_product_id,omitempty"`
}

type Placeholder struct {
	ID       string `json:"id"`
	Selector string `json:"selector"`
}

type CollectOutput struct {
	Placeholders []Placeholder `json:"placeholders"`
	Count        int           `json:"count"`
	// WouldRequest tells whether the page would trigger a block request.
	WouldRequest bool `json:"would_request"`
}

type AugmentInput struct {
	HTML             string `json:"html"`
	PageURL          string `json:"page_url"`
	CurrentProductID string `json:"current_product_id,omitempty"`
}

type AugmentOutput struct {
	HTML          string `json:"html"`
	Placeholders  int    `json:"placeholders"`
	Dispatched    bool   `json:"dispatched"`
	Applied       bool   `json:"applied"`
	BlocksApplied int    `json:"blocks_applied"`
	BlocksMissing int    `json:"blocks_missing"`
	DispatchError string `json:"dispatch_error,omitempty"`
}

// HolepunchServer exposes the placeholder pipeline as MCP tools.
type HolepunchServer struct {
	cfg       config.Config
	collector *placeholder.Collector
	augmenter *augment.Augmenter
	logger    *zap.Logger
}

func NewHolepunchServer(cfg config.Config, logger *zap.Logger, metrics observability.MetricsRegistry) *HolepunchServer {
	return &HolepunchServer{
		cfg:       cfg,
		collector: placeholder.NewCollector(cfg.PlaceholderClass, cfg.SelectorAttr),
		augmenter: augment.New(augment.Config{
			EndpointURL:      cfg.EndpointURL,
			EndpointTimeout:  cfg.EndpointTimeout,
			PlaceholderClass: cfg.PlaceholderClass,
			SelectorAttr:     cfg.SelectorAttr,
		}, logger, metrics),
		logger: logger,
	}
}

func (s *HolepunchServer) productID(doc *page.HTMLDocument, explicit string) string {
	if explicit != "" {
		return explicit
	}
	id, _ := doc.ScriptGlobal(s.cfg.ProductIDGlobal)
	return id
}

// CollectPlaceholders lists the placeholders of a page without contacting
// the block endpoint.
func (s *HolepunchServer) CollectPlaceholders(ctx context.Context, req *mcp.CallToolRequest, input CollectInput) (*mcp.CallToolResult, CollectOutput, error) {
	doc, err := page.ParseString(input.HTML)
	if err != nil {
		return nil, CollectOutput{}, fmt.Errorf("parse html: %w", err)
	}
	coll, err := s.collector.Collect(doc)
	if err != nil {
		return nil, CollectOutput{}, err
	}

	out := CollectOutput{Placeholders: []Placeholder{}, Count: coll.Count()}
	blocks := coll.Blocks()
	for _, p := range blocks.Pairs() {
		out.Placeholders = append(out.Placeholders, Placeholder{ID: p.Key, Selector: p.Value})
	}
	out.WouldRequest = dispatch.ShouldDispatch(coll.Count(), s.productID(doc, input.CurrentProductID))

	s.logger.Info("Collected placeholders", zap.Int("count", out.Count))
	return nil, out, nil
}

// AugmentPage runs the full pipeline against the configured endpoint and
// returns the assembled page.
func (s *HolepunchServer) AugmentPage(ctx context.Context, req *mcp.CallToolRequest, input AugmentInput) (*mcp.CallToolResult, AugmentOutput, error) {
	doc, err := page.ParseString(input.HTML)
	if err != nil {
		return nil, AugmentOutput{}, fmt.Errorf("parse html: %w", err)
	}
	report, err := s.augmenter.Run(ctx, doc, augment.Input{
		PageURL:          input.PageURL,
		CurrentProductID: s.productID(doc, input.CurrentProductID),
	})
	if err != nil {
		return nil, AugmentOutput{}, err
	}

	out := AugmentOutput{
		HTML:          doc.String(),
		Placeholders:  report.Placeholders,
		Dispatched:    report.Dispatched,
		Applied:       report.Applied,
		BlocksApplied: report.Result.Applied,
		BlocksMissing: report.Result.Missing,
	}
	if report.DispatchErr != nil {
		out.DispatchError = report.DispatchErr.Error()
	}
	s.logger.Info("Augmented page",
		zap.String("page_url", input.PageURL),
		zap.Bool("applied", out.Applied))
	return nil, out, nil
}

func newServer(hs *HolepunchServer) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "holepunch",
		Version: observability.Version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "collect_placeholders",
		Description: "List the dynamic placeholders of a cached HTML page and whether it would request blocks",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"html": map[string]interface{}{
					"type":        "string",
					"description": "Full HTML of the cached page",
				},
				"current_product_id": map[string]interface{}{
					"type":        "string",
					"description": "Product shown on the page (optional, read from the page when omitted)",
				},
			},
			"required": []string{"html"},
		},
	}, hs.CollectPlaceholders)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "augment_page",
		Description: "Fill the placeholders of a cached HTML page from the block endpoint",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"html": map[string]interface{}{
					"type":        "string",
					"description": "Full HTML of the cached page",
				},
				"page_url": map[string]interface{}{
					"type":        "string",
					"description": "Address of the page as the visitor sees it",
				},
				"current_product_id": map[string]interface{}{
					"type":        "string",
					"description": "Product shown on the page (optional)",
				},
			},
			"required": []string{"html", "page_url"},
		},
	}, hs.AugmentPage)

	return server
}

func main() {
	// production zap config writes to stderr; stdout carries the protocol
	logger, err := observability.InitLoggerWithService("holepunch-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load()
	logger.Info("Starting holepunch MCP server", zap.String("endpoint", cfg.EndpointURL))

	server := newServer(NewHolepunchServer(cfg, logger, observability.NewNoOpRegistry()))

	var logBuffer bytes.Buffer
	transport := &mcp.LoggingTransport{
		Transport: &mcp.StdioTransport{},
		Writer:    &logBuffer,
	}

	if err := server.Run(context.Background(), transport); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
