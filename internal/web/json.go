package web

import (
	"net/http"

	"github.com/VictoriaMetrics/metrics"

	"github.com/sweeney/gate-opener/internal/status"
)

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

// handleMetrics exposes the gate counters and Go runtime metrics in
// Prometheus text format.
func handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	metrics.WritePrometheus(w, true)
}
