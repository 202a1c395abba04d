package api

import (
	"net/http"
	"strings"

	"github.com/patrickwarner/holepunch/internal/augment"
	"github.com/patrickwarner/holepunch/internal/config"
	"github.com/patrickwarner/holepunch/internal/middleware"
	"github.com/patrickwarner/holepunch/internal/observability"
	"github.com/patrickwarner/holepunch/internal/source"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("holepunch")

// Server groups dependencies for HTTP handlers.
type Server struct {
	Logger    *zap.Logger
	Source    source.Source
	Augmenter *augment.Augmenter
	Metrics   observability.MetricsRegistry
	Config    config.Config
}

// NewServer constructs a Server.
func NewServer(logger *zap.Logger, src source.Source, augmenter *augment.Augmenter, metrics observability.MetricsRegistry, cfg config.Config) *Server {
	return &Server{
		Logger:    logger,
		Source:    src,
		Augmenter: augmenter,
		Metrics:   metrics,
		Config:    cfg,
	}
}

// Router registers all routes. Everything not matched by the service's own
// endpoints is treated as a page request.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.WithTraceLogger(s.Logger))

	r.HandleFunc("/health", s.HealthHandler).Methods(http.MethodGet)
	r.HandleFunc("/augment", s.AugmentHandler).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler())
	r.PathPrefix("/").HandlerFunc(s.PageHandler).Methods(http.MethodGet, http.MethodHead)
	return r
}

// pageURL is the address the visitor sees for r.
func (s *Server) pageURL(r *http.Request) string {
	if base := strings.TrimRight(s.Config.PublicBaseURL, "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	host := r.Host
	if fwd := r.Header.Get("X-Forwarded-Host"); fwd != "" {
		host = strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	return scheme + "://" + host + r.URL.RequestURI()
}
