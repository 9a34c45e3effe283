// Package api is the system HTTP surface (SPEC_FULL.md §6 supplement):
// liveness, Prometheus exposition, and the demo timeout-forcing endpoint.
// Grounded on internal/api/server.go's gorilla/mux router + CORS middleware
// shape, narrowed from the teacher's REST/JSON dashboard surface (pool
// stats, escrow items, reputation lookup) to the three ambient/demo
// endpoints SPEC_FULL.md actually calls for — the exchange's real surface
// is the websocket wire protocol in internal/wire, not REST.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cjy919100-del/synapse-proto/internal/core"
)

// Exchange is the narrow surface the demo endpoint needs. internal/exchange.Exchange
// satisfies this without api importing the rest of exchange's collaborators.
type Exchange interface {
	SystemForceTimeout(ctx context.Context, jobID string) error
}

// Server is the system HTTP surface.
type Server struct {
	exchg     Exchange
	startedAt time.Time
	logger    *log.Logger
}

// New builds a Server. exchg may be nil in deployments that only want
// /healthz and /metrics (the demo endpoint then 503s).
func New(exchg Exchange) *Server {
	return &Server{
		exchg:     exchg,
		startedAt: time.Now(),
		logger:    log.New(log.Writer(), "[API] ", log.LstdFlags),
	}
}

// Start blocks serving the system HTTP surface on port.
func (s *Server) Start(port int) error {
	r := mux.NewRouter()

	// CORS Middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			next.ServeHTTP(w, r)
		})
	})

	// --- Endpoints ---

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/demo/timeout", s.handleDemoTimeout).Methods(http.MethodPost)

	addr := fmt.Sprintf(":%d", port)
	s.logger.Printf("🚀 system HTTP surface listening on %s", addr)
	return http.ListenAndServe(addr, r)
}

// --- Handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":        "ok",
		"uptimeSeconds": int64(time.Since(s.startedAt).Seconds()),
	})
}

// handleDemoTimeout forces jobId's deadline to fire now, so a demo doesn't
// have to wait out the real timeout window.
func (s *Server) handleDemoTimeout(w http.ResponseWriter, r *http.Request) {
	if s.exchg == nil {
		http.Error(w, "exchange unavailable", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, core.ErrInvalidMessage.Error(), http.StatusBadRequest)
		return
	}
	if req.JobID == "" {
		http.Error(w, core.ErrJobNotFound.Error(), http.StatusBadRequest)
		return
	}

	if err := s.exchg.SystemForceTimeout(r.Context(), req.JobID); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "timed_out", "jobId": req.JobID})
}
