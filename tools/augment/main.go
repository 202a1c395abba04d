package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"

	"go.uber.org/zap"
)

type options struct {
	in        string
	pageURL   string
	productID string
	endpoint  string
	timeout   time.Duration
}

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()

	var opts options
	flag.StringVar(&opts.in, "in", "-", "HTML file to assemble, - for stdin")
	flag.StringVar(&opts.pageURL, "url", "", "page URL sent to the block endpoint")
	flag.StringVar(&opts.productID, "product", "", "current product id")
	flag.StringVar(&opts.endpoint, "endpoint", cfg.EndpointURL, "block endpoint URL")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "endpoint timeout")
	flag.Parse()

	if opts.pageURL == "" {
		fmt.Fprintln(os.Stderr, "url required")
		os.Exit(1)
	}

	var src io.Reader = os.Stdin
	if opts.in != "-" {
		f, err := os.Open(opts.in)
		if err != nil {
			fmt.Fprintf(os.Stderr, "open input: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		src = f
	}

	if err := run(context.Background(), logger, cfg, opts, src, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "augment: %v\n", err)
		os.Exit(1)
	}
}

// run assembles the page read from r and writes it to w.
func run(ctx context.Context, logger *zap.Logger, cfg config.Config, opts options, r io.Reader, w io.Writer) error {
	doc, err := page.Parse(r)
	if err != nil {
		return fmt.Errorf("parse page: %w", err)
	}

	productID := opts.productID
	if productID == "" {
		productID, _ = doc.ScriptGlobal(cfg.ProductIDGlobal)
	}

	a := augment.New(augment.Config{
		EndpointURL:      opts.endpoint,
		EndpointTimeout:  opts.timeout,
		PlaceholderClass: cfg.PlaceholderClass,
		SelectorAttr:     cfg.SelectorAttr,
	}, logger, observability.NewNoOpRegistry())

	report, err := a.Run(ctx, doc, augment.Input{PageURL: opts.pageURL, CurrentProductID: productID})
	if err != nil {
		return err
	}
	if report.DispatchErr != nil {
		return errors.Join(errors.New("block request failed"), report.DispatchErr)
	}

	logger.Info("page assembled",
		zap.Int("placeholders", report.Placeholders),
		zap.Bool("dispatched", report.Dispatched),
		zap.Int("blocks_applied", report.Result.Applied),
		zap.Int("blocks_missing", report.Result.Missing))
	return doc.Render(w)
}
