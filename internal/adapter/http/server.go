package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/couchcryptid/storm-threat-service/internal/domain"
	"github.com/couchcryptid/storm-threat-service/internal/engine"
	"github.com/couchcryptid/storm-threat-service/internal/observability"
	"github.com/couchcryptid/storm-threat-service/internal/stormcache"
)

// Engine is the query surface the API serves.
type Engine interface {
	ListCounties() []domain.ScoredCounty
	GetCounty(key string) (domain.ScoredCounty, error)
	TopVulnerable(limit int) []domain.ScoredCounty
	SummaryStats() engine.Stats
	ActiveStorms() (stormcache.Snapshot, stormcache.Freshness, error)
	ActiveThreats() ([]domain.ThreatAssessment, stormcache.Freshness, error)
	ThreatDistribution() (map[string]int, stormcache.Freshness, error)
	CriticalAlerts() ([]domain.CriticalAlertEntry, stormcache.Freshness, error)
	RefreshStormFeed(ctx context.Context) (engine.RefreshResult, error)
	CheckReadiness(ctx context.Context) error
}

// Server exposes the county and threat API plus health, readiness, and
// metrics endpoints.
type Server struct {
	httpServer *http.Server
	eng        Engine
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewServer creates the HTTP server with all API routes registered.
func NewServer(addr string, eng Engine, logger *slog.Logger, metrics *observability.Metrics) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		eng:     eng,
		logger:  logger,
		metrics: metrics,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/counties", s.instrument("counties", s.handleListCounties))
	mux.HandleFunc("GET /api/counties/{id}", s.instrument("county", s.handleGetCounty))
	mux.HandleFunc("GET /api/top-vulnerable", s.instrument("top_vulnerable", s.handleTopVulnerable))
	mux.HandleFunc("GET /api/stats", s.instrument("stats", s.handleStats))
	mux.HandleFunc("GET /api/storms", s.instrument("storms", s.handleStorms))
	mux.HandleFunc("GET /api/threats", s.instrument("threats", s.handleThreats))
	mux.HandleFunc("GET /api/threats/critical", s.instrument("critical", s.handleCriticalThreats))
	mux.HandleFunc("POST /api/refresh", s.instrument("refresh", s.handleRefresh))

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) instrument(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		h(w, r)
		s.metrics.RequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := s.eng.CheckReadiness(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListCounties(w http.ResponseWriter, r *http.Request) {
	counties := s.eng.ListCounties()
	// Boundary polygons dominate the payload; geometry=false strips them for
	// callers that only need scores.
	if r.URL.Query().Get("geometry") == "false" {
		for i := range counties {
			counties[i].Boundary = nil
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(counties),
		"counties": counties,
	})
}

func (s *Server) handleGetCounty(w http.ResponseWriter, r *http.Request) {
	county, err := s.eng.GetCounty(r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, county)
}

func (s *Server) handleTopVulnerable(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "limit must be a positive integer",
			})
			return
		}
		limit = n
	}

	counties := s.eng.TopVulnerable(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(counties),
		"counties": counties,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.eng.SummaryStats())
}

func (s *Server) handleStorms(w http.ResponseWriter, _ *http.Request) {
	snap, fresh, err := s.eng.ActiveStorms()
	if err != nil {
		s.writeError(w, err)
		return
	}
	dist, _, err := s.eng.ThreatDistribution()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"freshness":     fresh.String(),
		"fetched_at":    snap.FetchedAt,
		"count":         len(snap.Storms),
		"storms":        snap.Storms,
		"threat_levels": dist,
	})
}

func (s *Server) handleThreats(w http.ResponseWriter, _ *http.Request) {
	threats, fresh, err := s.eng.ActiveThreats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"freshness": fresh.String(),
		"count":     len(threats),
		"threats":   threats,
	})
}

func (s *Server) handleCriticalThreats(w http.ResponseWriter, _ *http.Request) {
	alerts, fresh, err := s.eng.CriticalAlerts()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"freshness": fresh.String(),
		"count":     len(alerts),
		"alerts":    alerts,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.eng.RefreshStormFeed(r.Context())
	if err != nil {
		s.logger.Warn("manual refresh failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"error":         err.Error(),
			"freshness":     result.Freshness.String(),
			"active_storms": result.ActiveStorms,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"freshness":       result.Freshness.String(),
		"active_storms":   result.ActiveStorms,
		"critical_alerts": result.CriticalAlerts,
		"threat_levels":   result.ThreatLevels,
	})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, engine.ErrFeedNotPopulated):
		status = http.StatusServiceUnavailable
	case errors.Is(err, stormcache.ErrFetchFailed):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
