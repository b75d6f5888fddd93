package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tracking-svr/internal/apperr"
)

// Handler is the public mux: the WebSocket endpoint plus read-only JSON
// queries mirroring the protocol operations.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /api/vehicles/active", s.handleActive)
	mux.HandleFunc("GET /api/vehicles/nearby", s.handleNearby)
	mux.HandleFunc("GET /api/vehicles/{id}/latest", s.handleLatest)
	return mux
}

// MetricsHandler serves /metrics and /healthz on the operations port.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	fix, err := s.svc.GetLatest(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, fix)
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	sinceMinutes := 0
	if raw := r.URL.Query().Get("sinceMinutes"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.writeError(w, apperr.Validation("sinceMinutes must be an integer"))
			return
		}
		sinceMinutes = n
	}
	fixes, err := s.svc.GetActive(r.Context(), sinceMinutes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, fixes)
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lon, err1 := strconv.ParseFloat(q.Get("lon"), 64)
	lat, err2 := strconv.ParseFloat(q.Get("lat"), 64)
	if err1 != nil || err2 != nil {
		s.writeError(w, apperr.Validation("lon and lat are required numbers"))
		return
	}
	radius := 0.0
	if raw := q.Get("radiusMeters"); raw != "" {
		radius, err1 = strconv.ParseFloat(raw, 64)
		if err1 != nil {
			s.writeError(w, apperr.Validation("radiusMeters must be a number"))
			return
		}
	}
	nearby, err := s.svc.GetNearby(r.Context(), lon, lat, radius)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, nearby)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case apperr.CodeValidation:
		status = http.StatusBadRequest
	case apperr.CodeNotFound:
		status = http.StatusNotFound
	case apperr.CodeUnauthorized:
		status = http.StatusUnauthorized
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"code":  string(code),
		"error": err.Error(),
	})
}
