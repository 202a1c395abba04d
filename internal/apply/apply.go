// Package apply splices a block endpoint response into the page.
package apply

import (
	"github.com/patrickwarner/holepunch/internal/blocks"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"

	"go.uber.org/zap"
)

// CodeRunner executes code returned by the block endpoint in the page's
// global context.
//
// TRUST BOUNDARY: the endpoint is trusted. Code is run as returned, with no
// validation and no sandbox.
type CodeRunner interface {
	RunTrusted(doc page.Document, key, code string) error
}

// ScriptInjector runs code by appending it as an inline script to the end of
// the page body, so the browser executes it in the page's global scope.
type ScriptInjector struct{}

func (ScriptInjector) RunTrusted(doc page.Document, key, code string) error {
	return doc.AppendScript(code)
}

// Result summarizes one Apply call.
type Result struct {
	Applied int
	Missing int
	Failed  int
	Code    int
}

// Applier patches documents with endpoint responses.
type Applier struct {
	runner  CodeRunner
	logger  *zap.Logger
	metrics observability.MetricsRegistry
}

// NewApplier returns an Applier. A nil runner defaults to ScriptInjector.
func NewApplier(runner CodeRunner, logger *zap.Logger, metrics observability.MetricsRegistry) *Applier {
	if runner == nil {
		runner = ScriptInjector{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Applier{runner: runner, logger: logger, metrics: metrics}
}

// Apply replaces the content of every element whose id is a key of
// resp.Blocks, in the response's own order, then hands each code entry to the
// runner. An id with no element on the page is skipped silently. A failing
// entry never stops the rest of the batch.
func (a *Applier) Apply(doc page.Document, resp *blocks.Response) Result {
	var res Result
	if resp == nil {
		return res
	}

	for _, b := range resp.Blocks.Pairs() {
		el := doc.ElementByID(b.Key)
		if el == nil {
			res.Missing++
			a.metrics.IncrementBlocks("missing")
			continue
		}
		if err := el.SetInnerHTML(b.Value); err != nil {
			res.Failed++
			a.metrics.IncrementBlocks("failed")
			a.logger.Warn("block not applied", zap.String("id", b.Key), zap.Error(err))
			continue
		}
		res.Applied++
		a.metrics.IncrementBlocks("applied")
	}

	for _, c := range resp.Code.Pairs() {
		if err := a.runner.RunTrusted(doc, c.Key, c.Value); err != nil {
			a.metrics.IncrementCodeSnippets("failed")
			a.logger.Warn("code snippet not run", zap.String("key", c.Key), zap.Error(err))
			continue
		}
		res.Code++
		a.metrics.IncrementCodeSnippets("run")
	}

	return res
}
