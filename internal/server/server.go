// Package server exposes the latest evaluation over a read-only HTTP API.
package server

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rewired-gh/trendmonster/internal/allocation"
	"github.com/rewired-gh/trendmonster/internal/logger"
	"github.com/rewired-gh/trendmonster/internal/models"
	"github.com/rewired-gh/trendmonster/internal/monitor"
	"github.com/rewired-gh/trendmonster/internal/report"
)

// Source provides the state served by the API. *monitor.Monitor satisfies it.
type Source interface {
	Latest() *monitor.Evaluation
	Holdings() models.Holdings
	Engine() *allocation.Engine
}

type Server struct {
	router *mux.Router
	server *http.Server
	source Source
	start  time.Time
}

// New builds the router. gatherer backs /metrics; nil uses the default registry.
func New(addr string, source Source, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		router: mux.NewRouter(),
		source: source,
		start:  time.Now(),
	}

	s.router.Use(requestIDMiddleware)
	s.router.Use(requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	s.router.HandleFunc("/signal", s.signal).Methods(http.MethodGet)
	s.router.HandleFunc("/signal/rows", s.rows).Methods(http.MethodGet)
	s.router.HandleFunc("/holdings", s.holdings).Methods(http.MethodGet)
	s.router.HandleFunc("/bands", s.bands).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe blocks until the server stops. It returns nil after Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("HTTP server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Request-ID", uuid.NewString()[:8])
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logger.Debug("HTTP %s %s %d %v", r.Method, r.URL.Path, rec.status, time.Since(start))
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	}
	if eval := s.source.Latest(); eval != nil {
		resp["last_evaluation"] = eval.At.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) signal(w http.ResponseWriter, _ *http.Request) {
	eval := s.source.Latest()
	if eval == nil {
		writeError(w, http.StatusServiceUnavailable, "no evaluation yet")
		return
	}
	writeJSON(w, http.StatusOK, report.SignalJSON(eval))
}

func (s *Server) rows(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report.Rows(s.source.Latest()))
}

func (s *Server) holdings(w http.ResponseWriter, _ *http.Request) {
	h := s.source.Holdings()
	writeJSON(w, http.StatusOK, map[string]any{
		"spy":  h.SPY,
		"tqqq": h.TQQQ,
		"cash": h.Cash(),
	})
}

type bandJSON struct {
	Level string   `json:"level"`
	Lower *float64 `json:"lower"`
	Upper *float64 `json:"upper"`
	SPY   float64  `json:"spy"`
	TQQQ  float64  `json:"tqqq"`
	Cash  float64  `json:"cash"`
}

// finite maps the open ends of the table to null.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (s *Server) bands(w http.ResponseWriter, _ *http.Request) {
	engine := s.source.Engine()
	var out []bandJSON
	for _, b := range engine.Bands() {
		out = append(out, bandJSON{
			Level: string(b.Level),
			Lower: finite(b.Lower),
			Upper: finite(b.Upper),
			SPY:   b.SPY,
			TQQQ:  b.TQQQ,
			Cash:  b.Cash(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"trend_filter": engine.TrendFilter(),
		"bands":        out,
	})
}
