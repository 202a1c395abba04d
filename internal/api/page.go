package api

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/patrickwarner/holepunch/internal/source"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// PageHandler serves a cached page with its placeholders filled in.
func (s *Server) PageHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "PageHandler",
		trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.RequestURI()),
		))
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "page"
	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	cached, err := s.Source.Fetch(ctx, r.URL.RequestURI(), r.Header)
	if err != nil {
		if errors.Is(err, source.ErrPageNotFound) {
			status = http.StatusNotFound
			http.NotFound(w, r)
			return
		}
		status = http.StatusBadGateway
		s.Metrics.IncrementSourceErrors(s.Source.Name())
		logger.Error("load cached page", zap.Error(err), zap.String("path", r.URL.RequestURI()))
		http.Error(w, "page unavailable", http.StatusBadGateway)
		return
	}

	if cached.Status != http.StatusOK || !cached.IsHTML() {
		status = cached.Status
		writePage(w, r, cached, cached.Body, false)
		return
	}

	doc, err := page.Parse(bytes.NewReader(cached.Body))
	if err != nil {
		logger.Warn("cached page is not parseable, serving as is", zap.Error(err))
		writePage(w, r, cached, cached.Body, false)
		return
	}

	productID := cached.ProductID
	if productID == "" {
		productID, _ = doc.ScriptGlobal(s.Config.ProductIDGlobal)
	}
	pageURL := s.pageURL(r)

	report, err := s.Augmenter.Run(ctx, doc, augment.Input{
		PageURL:          pageURL,
		CurrentProductID: productID,
		Header:           r.Header,
	})
	if err != nil {
		// placeholder markup is broken: the page goes out exactly as cached
		logger.Error("placeholder collection failed, serving cached page",
			zap.Error(err),
			zap.String("page_url", pageURL))
		writePage(w, r, cached, cached.Body, false)
		return
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		logger.Error("render assembled page", zap.Error(err))
		writePage(w, r, cached, cached.Body, false)
		return
	}
	writePage(w, r, cached, buf.Bytes(), report.Applied)

	if observability.ShouldSample(observability.GetSamplingRate()) {
		logger.Info("page assembled",
			zap.String("page_url", pageURL),
			zap.Int("placeholders", report.Placeholders),
			zap.Bool("dispatched", report.Dispatched),
			zap.Bool("applied", report.Applied),
			zap.Int("blocks_applied", report.Result.Applied),
			zap.Int("blocks_missing", report.Result.Missing),
			zap.Duration("latency", time.Since(start)))
	}
}

// writePage copies the cached page headers and writes body. Personalized
// pages must not be stored by shared caches.
func writePage(w http.ResponseWriter, r *http.Request, cached *source.Page, body []byte, personalized bool) {
	for name, values := range cached.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	contentType := cached.ContentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	w.Header().Set("Content-Type", contentType)
	if personalized {
		w.Header().Set("Cache-Control", "private, no-cache")
		w.Header().Del("Etag")
		w.Header().Del("Last-Modified")
	}
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))

	status := cached.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = w.Write(body)
	}
}
