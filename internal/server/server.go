// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"nomark/internal/httputil"
	xlog "nomark/internal/log"
	"nomark/internal/media"
)

// Resolver downloads the video behind a post URL.
type Resolver interface {
	Resolve(ctx context.Context, rawURL string) (media.ProviderResult, error)
}

// Config holds the HTTP service settings.
type Config struct {
	Listen        string
	APIKey        string
	RatePerMinute int // 0 disables inbound rate limiting
	// TrustedProxies lists peers (CIDR or IP) allowed to set
	// X-Forwarded-For / X-Real-IP. Empty means the headers are ignored.
	TrustedProxies []string
	// WriteTimeout must cover a full provider fallback chain.
	WriteTimeout time.Duration
}

// Server wraps http.Server with the nomark routes.
type Server struct {
	cfg      Config
	resolver Resolver
	trusted  []*net.IPNet
	inner    *http.Server
}

// New creates a Server. The API key is required.
func New(cfg Config, resolver Resolver) (*Server, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("server: API key is not set")
	}
	if resolver == nil {
		return nil, errors.New("server: nil resolver")
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 5 * time.Minute
	}

	trusted, err := parseCIDRs(cfg.TrustedProxies)
	if err != nil {
		return nil, fmt.Errorf("server: trusted proxies: %w", err)
	}

	s := &Server{cfg: cfg, resolver: resolver, trusted: trusted}
	s.inner = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
	return s, nil
}

// Handler returns the router with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(realIP(s.trusted))
	r.Use(observe)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if s.cfg.RatePerMinute > 0 {
			r.Use(rateLimit(s.cfg.RatePerMinute))
		}
		r.Use(requireAPIKey(s.cfg.APIKey))
		r.Get("/download", s.handleDownload)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, &APIError{Status: http.StatusNotFound, Code: CodeInvalidRequest, Message: "not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, &APIError{Status: http.StatusMethodNotAllowed, Code: CodeInvalidRequest, Message: "method not allowed"})
	})
	return r
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	logger := xlog.WithComponent("server")
	logger.Info().Str("addr", ln.Addr().String()).Msg("listening")
	if err := s.inner.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully terminates the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(w, r, &APIError{Status: http.StatusBadRequest, Code: CodeInvalidRequest, Message: "missing url parameter"})
		return
	}

	result, err := s.resolver.Resolve(r.Context(), rawURL)
	if err != nil {
		if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
			logger := xlog.FromContext(r.Context(), "server")
			logger.Info().Msg("client went away")
			return
		}
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", result.MediaType)
	w.Header().Set("Content-Disposition", httputil.ContentDisposition(result.SuggestedFilename))
	w.Header().Set("X-Provider", result.Provider)
	http.ServeContent(w, r, result.SuggestedFilename, time.Time{}, bytes.NewReader(result.Body))
}
