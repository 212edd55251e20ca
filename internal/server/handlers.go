package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fleetmon/fleetmon/internal/config"
	"github.com/fleetmon/fleetmon/internal/health"
	"github.com/fleetmon/fleetmon/internal/testreport"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

type servicesResponse struct {
	Services map[string]health.Result `json:"services"`
	Count    int                      `json:"count"`
}

type testsResponse struct {
	Tests map[string]testreport.Result `json:"tests"`
	Count int                          `json:"count"`
}

type registerResponse struct {
	Status  string        `json:"status"`
	Service string        `json:"service"`
	Config  config.Target `json:"config"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "fleetmon",
		"version":   s.version,
		"status":    "running",
		"timestamp": time.Now().UTC(),
		"endpoints": []string{
			"/api/v1/services",
			"/api/v1/services/register",
			"/api/v1/metrics",
			"/api/v1/metrics/prometheus",
			"/api/v1/tests",
			"/api/v1/summary",
		},
	})
}

func (s *Server) handleSelfHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
	})
}

func (s *Server) handleSelfReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleSelfLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (s *Server) handleServices(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	all := s.health.All()
	writeJSON(w, http.StatusOK, servicesResponse{Services: all, Count: len(all)})
}

func (s *Server) handleService(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	result, ok := s.health.Get(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}

	var target config.Target
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&target); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := target.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	target = target.Normalized()
	s.health.Register(target)
	s.logger.Info().Str("service", target.Name).Msg("service registered")

	writeJSON(w, http.StatusOK, registerResponse{
		Status:  "registered",
		Service: target.Name,
		Config:  target,
	})
}

func (s *Server) handleServiceMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	view, ok := s.metrics.ServiceMetrics(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "metrics not collected yet")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleServiceTests(w http.ResponseWriter, r *http.Request) {
	if s.tests == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	result, ok := s.tests.Get(mux.Vars(r)["name"])
	if !ok {
		writeError(w, http.StatusNotFound, "service not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	snapshot, ok := s.metrics.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "metrics not collected yet")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleTests(w http.ResponseWriter, r *http.Request) {
	if s.tests == nil {
		writeError(w, http.StatusServiceUnavailable, "service not initialized")
		return
	}
	all := s.tests.All()
	writeJSON(w, http.StatusOK, testsResponse{Tests: all, Count: len(all)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
