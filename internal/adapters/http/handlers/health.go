package handlers

import (
	"context"
	"net/http"

	"github.com/blackboxlabs/blackbox/internal/application/pipeline"
	"github.com/blackboxlabs/blackbox/internal/ports"
)

// Pinger is the liveness probe of the backing database.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves health, thermal and pipeline-stats endpoints.
type HealthHandler struct {
	pipeline *pipeline.Pipeline
	thermal  ports.ThermalMonitor
	store    Pinger
	version  string
}

func NewHealthHandler(p *pipeline.Pipeline, thermal ports.ThermalMonitor, store Pinger, version string) *HealthHandler {
	return &HealthHandler{pipeline: p, thermal: thermal, store: store, version: version}
}

type healthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// Handle reports liveness. A degraded component downgrades the status but
// never turns this endpoint into an error: the process is alive.
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		Version:    h.version,
		Components: map[string]string{},
	}

	if h.pipeline.Ready() {
		resp.Components["pipeline"] = "ok"
	} else {
		resp.Components["pipeline"] = "initializing"
		resp.Status = "degraded"
	}

	if h.store != nil {
		if err := h.store.Ping(r.Context()); err != nil {
			resp.Components["database"] = "unreachable"
			resp.Status = "degraded"
		} else {
			resp.Components["database"] = "ok"
		}
	}

	status := h.thermal.Status()
	resp.Components["thermal"] = string(status.State)
	if status.Throttling {
		resp.Status = "degraded"
	}

	respondJSON(w, resp, http.StatusOK)
}

// Thermal returns the monitor's current snapshot.
func (h *HealthHandler) Thermal(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.thermal.Status(), http.StatusOK)
}

// Cooldown forces the monitor into the Cooldown state. An operator calls
// this to recover a system stuck in Critical.
func (h *HealthHandler) Cooldown(w http.ResponseWriter, r *http.Request) {
	h.thermal.TriggerCooldown()
	respondJSON(w, map[string]any{
		"status":  "cooldown_triggered",
		"thermal": h.thermal.Status(),
	}, http.StatusOK)
}

// Stats returns the coordinator's rolling metrics plus the thermal state.
func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]any{
		"pipeline": h.pipeline.Stats(),
		"thermal":  h.thermal.Status(),
	}, http.StatusOK)
}
