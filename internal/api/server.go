// Package api exposes the HTTP interface for the scan service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/sitesleuth/sitesleuth/internal/pipeline"
	"github.com/sitesleuth/sitesleuth/internal/scan"
	"github.com/sitesleuth/sitesleuth/internal/telemetry"
)

// OwnerHeader carries the authenticated user identity, populated by the
// external auth layer in front of this service. Empty means anonymous.
const OwnerHeader = "X-User-ID"

const (
	defaultRequestTimeout = 90 * time.Second
	defaultRecentLimit    = 20
	maxRecentLimit        = 100
)

// ScanRunner is the pipeline surface the HTTP layer depends on.
type ScanRunner interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Response, error)
	Recent(ctx context.Context, ownerID string, limit int) ([]pipeline.Response, error)
}

// Config tunes the HTTP layer.
type Config struct {
	// RequestTimeout bounds each request end to end. Zero means the default.
	RequestTimeout time.Duration
	// APIKey, when non-empty, gates all /v1 routes behind an X-API-Key check.
	APIKey string
}

// Server wires HTTP handlers to the scan pipeline.
type Server struct {
	router chi.Router
	runner ScanRunner
	cfg    Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(runner ScanRunner, cfg Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{runner: runner, cfg: cfg, logger: logger}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.APIKey != "" {
			r.Use(apiKeyMiddleware(cfg.APIKey))
		}
		r.Route("/scans", func(r chi.Router) {
			r.Post("/", s.submitScan)
			r.Get("/recent", s.recentScans)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ok"}})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"status": "ready"}})
}

type scanRequest struct {
	URL  string `json:"url"`
	Deep bool   `json:"deep"`
}

func (s *Server) submitScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	resp, err := s.runner.Run(r.Context(), pipeline.Request{
		URL:     req.URL,
		OwnerID: r.Header.Get(OwnerHeader),
		Deep:    req.Deep,
	})
	if err != nil {
		status, msg := classifyError(err)
		s.logger.Warn("scan failed",
			zap.String("url", req.URL),
			zap.Int("status", status),
			zap.Error(err),
		)
		writeError(w, status, msg)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
}

func (s *Server) recentScans(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	scans, err := s.runner.Recent(r.Context(), r.Header.Get(OwnerHeader), limit)
	if err != nil {
		s.logger.Error("list recent scans failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not list recent scans")
		return
	}
	if scans == nil {
		scans = []pipeline.Response{}
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: scans})
}

// classifyError maps pipeline sentinels onto HTTP statuses and
// client-presentable messages.
func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, scan.ErrInvalidURL):
		return http.StatusBadRequest, "the provided URL is not valid"
	case errors.Is(err, scan.ErrNoContent):
		return http.StatusUnprocessableEntity, "the site did not yield enough readable content to analyze"
	case errors.Is(err, scan.ErrFetchFailed):
		return http.StatusInternalServerError, "the site could not be retrieved"
	case errors.Is(err, scan.ErrAnalysisFailed):
		return http.StatusInternalServerError, "analysis is temporarily unavailable, possibly due to quota limits; try again shortly"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON response failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Error: msg})
}
