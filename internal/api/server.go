// Package api exposes the HTTP interface for the scout service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appscout/appscout/internal/chain"
	"github.com/appscout/appscout/internal/config"
	"github.com/appscout/appscout/internal/export"
	"github.com/appscout/appscout/internal/metrics"
	"github.com/appscout/appscout/internal/orchestrator"
	"github.com/appscout/appscout/internal/scout"
)

// Server wires HTTP handlers to the orchestrator and stores.
type Server struct {
	router   chi.Router
	orch     *orchestrator.Orchestrator
	chains   *chain.Controller
	leads    scout.DedupStore
	queue    scout.WorkQueue
	exporter *export.Exporter
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	orch *orchestrator.Orchestrator,
	chains *chain.Controller,
	leads scout.DedupStore,
	queue scout.WorkQueue,
	exporter *export.Exporter,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		orch:     orch,
		chains:   chains,
		leads:    leads,
		queue:    queue,
		exporter: exporter,
		cfg:      cfg,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/crawls", func(r chi.Router) {
			r.Post("/", s.startCrawl)
			r.Post("/stop", s.stopCrawl)
			r.Get("/status", s.crawlStatus)
		})
		r.Post("/chain", s.startChain)
		r.Post("/queue", s.pushQueue)
		r.Route("/leads", func(r chi.Router) {
			r.Get("/stats", s.leadStats)
			r.Get("/export", s.exportLeads)
			r.Delete("/", s.clearLeads)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.leads.Count(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "lead store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type startCrawlRequest struct {
	Seed  string `json:"seed"`
	Owner string `json:"owner"`
}

func (s *Server) startCrawl(w http.ResponseWriter, r *http.Request) {
	var req startCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	handle, err := s.orch.Start(req.Seed, scout.OwnerID(req.Owner))
	switch {
	case errors.Is(err, orchestrator.ErrTaskActive):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"crawl_id": handle.CrawlID})
}

type stopCrawlRequest struct {
	Owner     string `json:"owner"`
	Requester string `json:"requester"`
}

func (s *Server) stopCrawl(w http.ResponseWriter, r *http.Request) {
	var req stopCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Requester == "" {
		req.Requester = req.Owner
	}
	err := s.orch.Stop(scout.OwnerID(req.Owner), scout.OwnerID(req.Requester))
	switch {
	case errors.Is(err, orchestrator.ErrIdle):
		writeError(w, http.StatusConflict, err.Error())
		return
	case errors.Is(err, orchestrator.ErrNotOwner):
		writeError(w, http.StatusForbidden, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

func (s *Server) crawlStatus(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter required")
		return
	}
	snapshot := s.orch.Status(scout.OwnerID(owner))
	writeJSON(w, http.StatusOK, snapshot)
}

type chainRequest struct {
	Owner string `json:"owner"`
}

func (s *Server) startChain(w http.ResponseWriter, r *http.Request) {
	var req chainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Owner == "" {
		writeError(w, http.StatusBadRequest, "owner required")
		return
	}
	owner := scout.OwnerID(req.Owner)
	go func() {
		report, err := s.chains.RunChain(context.Background(), owner)
		if err != nil {
			s.logger.Error("chain failed",
				zap.String("owner", string(owner)),
				zap.Error(err),
			)
			return
		}
		s.logger.Info("chain finished",
			zap.String("owner", string(owner)),
			zap.Int("crawls", report.Crawls),
			zap.Int("leads", report.Leads),
			zap.String("reason", report.Reason),
		)
	}()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "chain started"})
}

type queueRequest struct {
	Terms []string `json:"terms"`
}

func (s *Server) pushQueue(w http.ResponseWriter, r *http.Request) {
	var req queueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Terms) == 0 {
		writeError(w, http.StatusBadRequest, "terms required")
		return
	}
	for _, term := range req.Terms {
		if err := s.queue.Push(r.Context(), term); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": len(req.Terms)})
}

func (s *Server) leadStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.leads.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"leads": count})
}

func (s *Server) exportLeads(w http.ResponseWriter, r *http.Request) {
	res, err := s.exporter.Export(r.Context(), r.URL.Query().Get("seed"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) clearLeads(w http.ResponseWriter, r *http.Request) {
	count, err := s.leads.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.leads.DeleteAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": count})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

type requestIDKey struct{}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
