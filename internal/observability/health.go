package observability

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// StatsFunc reports the engine's current observability snapshot for
// inclusion in the /healthz payload. It is optional: a HealthServer
// with no StatsFunc set just reports liveness.
type StatsFunc func() map[string]any

// HealthServer exposes /healthz and /readyz endpoints for the counter
// bridge process.
type HealthServer struct {
	ready atomic.Bool
	stats StatsFunc
}

// NewHealthServer creates a new health server.
func NewHealthServer() *HealthServer {
	return &HealthServer{}
}

// SetStatsFunc wires a snapshot source into /healthz so an operator can
// see the bridge is not just alive but actually processing events.
func (h *HealthServer) SetStatsFunc(f StatsFunc) {
	h.stats = f
}

// SetReady marks the bridge as having completed Start and therefore
// ready to be considered up by a load balancer or orchestrator.
func (h *HealthServer) SetReady(ready bool) {
	h.ready.Store(ready)
}

// Handler returns an http.Handler serving /healthz and /readyz.
func (h *HealthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.handleHealth)
	mux.HandleFunc("GET /readyz", h.handleReady)
	return mux
}

func (h *HealthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{"status": "ok"}
	if h.stats != nil {
		body["stats"] = h.stats()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(body)
}

func (h *HealthServer) handleReady(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if h.ready.Load() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]string{"status": "not ready"})
	}
}
