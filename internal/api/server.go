// Package api exposes the HTTP interface for the VID lookup service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/oemtools/vid-lookup/internal/catalog"
	"github.com/oemtools/vid-lookup/internal/lookup"
	"github.com/oemtools/vid-lookup/internal/metrics"
)

const serviceVersion = "0.1.0"

// Server wires HTTP handlers to the resolution coordinator.
type Server struct {
	router  chi.Router
	lookups *lookup.Coordinator
	clock   catalog.Clock
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(lookups *lookup.Coordinator, clock catalog.Clock, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		lookups: lookups,
		clock:   clock,
		logger:  logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	// Resolutions can hold the request for a full navigation plus the
	// element wait; the budget has to cover both.
	r.Use(timeoutMiddleware(90 * time.Second))

	r.Get("/", s.root)
	r.Get("/health", s.health)
	r.Get("/metrics", s.promMetrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/lookup-vid", s.lookupVID)
		r.Get("/cache-stats", s.cacheStats)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "VID Lookup Service",
		"status":  "operational",
		"version": serviceVersion,
	})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": s.clock.Now().Format(time.RFC3339),
	})
}

func (s *Server) promMetrics(w http.ResponseWriter, r *http.Request) {
	metrics.Handler().ServeHTTP(w, r)
}

type vidInfoResponse struct {
	VID    string `json:"vid"`
	Series string `json:"series"`
	URL    string `json:"url"`
	Cached bool   `json:"cached"`
}

type cacheStatsResponse struct {
	TotalCached int64            `json:"total_cached"`
	BySeries    map[string]int64 `json:"by_series"`
}

func (s *Server) lookupVID(w http.ResponseWriter, r *http.Request) {
	var sel catalog.Selection
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := sel.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, prov, err := s.lookups.Lookup(r.Context(), sel)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, vidInfoResponse{
			VID:    rec.VID,
			Series: rec.Series,
			URL:    rec.URL,
			Cached: prov == lookup.ProvenanceCached,
		})
	case errors.Is(err, catalog.ErrMissingSeries):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, catalog.ErrNoVID):
		writeError(w, http.StatusNotFound,
			"VID not found for the given selection. Please verify your selection criteria.")
	default:
		s.logger.Error("lookup failed", zap.String("series", sel.Series), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "lookup failed, please try again later")
	}
}

func (s *Server) cacheStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.lookups.Stats(r.Context())
	if err != nil {
		s.logger.Error("cache stats failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to read cache statistics")
		return
	}
	writeJSON(w, http.StatusOK, cacheStatsResponse{
		TotalCached: stats.TotalCached,
		BySeries:    stats.BySeries,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
