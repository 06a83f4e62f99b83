package handlers

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aequitas/internal/pipeline"
	"github.com/ternarybob/aequitas/internal/services/events"
)

// StatusHandler reports application health and operational counters
type StatusHandler struct {
	pipeline  *pipeline.Service
	hub       *events.Hub
	version   string
	startedAt time.Time
	logger    arbor.ILogger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(pipelineService *pipeline.Service, hub *events.Hub, version string, logger arbor.ILogger) *StatusHandler {
	return &StatusHandler{
		pipeline:  pipelineService,
		hub:       hub,
		version:   version,
		startedAt: time.Now(),
		logger:    logger,
	}
}

// GetStatusHandler handles GET /api/status
func (h *StatusHandler) GetStatusHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	status := map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"uptime":  time.Since(h.startedAt).Round(time.Second).String(),
	}

	if count, err := h.pipeline.CountJobs(r.Context()); err == nil {
		status["jobs_total"] = count
	}
	if length, err := h.pipeline.QueueLength(r.Context()); err == nil {
		status["queue_pending"] = length
	}
	if h.hub != nil {
		status["ws_clients"] = h.hub.ClientCount()
	}

	WriteJSON(w, http.StatusOK, status)
}

// HealthHandler handles GET /api/health
func (h *StatusHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// VersionHandler handles GET /api/version
func (h *StatusHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"version": h.version})
}
