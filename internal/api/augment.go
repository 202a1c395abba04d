package api

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/page"
	"github.com/patrickwarner/holepunch/internal/placeholder"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// maxAugmentBody caps the HTML accepted by /augment.
const maxAugmentBody = 8 << 20

// Response headers describing what /augment did.
const (
	headerPlaceholders = "X-Holepunch-Placeholders"
	headerApplied      = "X-Holepunch-Applied"
)

// AugmentHandler assembles an HTML page posted in the request body.
// Query parameters url and currentProductId describe the page.
func (s *Server) AugmentHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "AugmentHandler")
	defer span.End()

	logger := middleware.LoggerFromRequest(r, s.Logger)
	start := time.Now()
	const endpoint = "augment"
	status := http.StatusOK
	defer func() {
		s.Metrics.IncrementRequests(endpoint, r.Method, strconv.Itoa(status))
		s.Metrics.RecordRequestLatency(endpoint, r.Method, time.Since(start))
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAugmentBody+1))
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, "read body", status)
		return
	}
	if len(body) > maxAugmentBody {
		status = http.StatusRequestEntityTooLarge
		http.Error(w, "page too large", status)
		return
	}

	doc, err := page.Parse(bytes.NewReader(body))
	if err != nil {
		status = http.StatusBadRequest
		http.Error(w, "invalid html", status)
		return
	}

	q := r.URL.Query()
	pageURL := q.Get("url")
	productID := q.Get("currentProductId")
	if productID == "" {
		productID, _ = doc.ScriptGlobal(s.Config.ProductIDGlobal)
	}
	span.SetAttributes(attribute.String("page_url", pageURL))

	report, err := s.Augmenter.Run(ctx, doc, augment.Input{
		PageURL:          pageURL,
		CurrentProductID: productID,
		Header:           r.Header,
	})
	if err != nil {
		if errors.Is(err, placeholder.ErrMissingSelector) {
			status = http.StatusUnprocessableEntity
		} else {
			status = http.StatusInternalServerError
		}
		logger.Warn("augment rejected page", zap.Error(err), zap.String("page_url", pageURL))
		http.Error(w, err.Error(), status)
		return
	}
	if report.DispatchErr != nil {
		span.AddEvent("dispatch failed", trace.WithAttributes(
			attribute.String("error", report.DispatchErr.Error())))
	}

	var buf bytes.Buffer
	if err := doc.Render(&buf); err != nil {
		status = http.StatusInternalServerError
		logger.Error("render assembled page", zap.Error(err))
		http.Error(w, "render failed", status)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set(headerPlaceholders, strconv.Itoa(report.Placeholders))
	w.Header().Set(headerApplied, strconv.FormatBool(report.Applied))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
