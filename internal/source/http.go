package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// passthroughHeaders are copied from the upstream response to the visitor.
var passthroughHeaders = []string{"Cache-Control", "Content-Language", "Etag", "Last-Modified", "Vary"}

// HTTPSource reads pages from the static cache in front of the shop (Varnish).
type HTTPSource struct {
	baseURL    string
	httpClient *http.Client
	forward    []string
	productHdr string
	logger     *zap.Logger
}

// NewHTTPSource creates a source for the upstream at baseURL. productHeader
// names the response header the shop uses to mark the page's current product.
func NewHTTPSource(baseURL string, timeout time.Duration, forward []string, productHeader string, logger *zap.Logger) *HTTPSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			// redirects are the visitor's to follow
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		forward:    forward,
		productHdr: productHeader,
		logger:     logger,
	}
}

func (s *HTTPSource) Name() string { return "http" }

// Fetch GETs baseURL+path. Any upstream status is returned as a Page except
// 404, which maps to ErrPageNotFound.
func (s *HTTPSource) Fetch(ctx context.Context, path string, header http.Header) (*Page, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for _, name := range s.forward {
		for _, v := range header.Values(name) {
			req.Header.Add(name, v)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			s.logger.Warn("failed to close upstream body", zap.Error(err))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrPageNotFound, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read upstream body: %w", err)
	}

	out := &Page{
		Status:      resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      http.Header{},
		Body:        body,
	}
	if s.productHdr != "" {
		out.ProductID = resp.Header.Get(s.productHdr)
	}
	for _, name := range passthroughHeaders {
		for _, v := range resp.Header.Values(name) {
			out.Header.Add(name, v)
		}
	}
	if loc := resp.Header.Get("Location"); loc != "" {
		out.Header.Set("Location", loc)
	}
	return out, nil
}
