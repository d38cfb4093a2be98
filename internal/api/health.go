package api

import (
	"net/http"
	"time"

	"github.com/ashpool/dictate/internal/control"
)

type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks"`
}

type HealthHandler struct {
	ctrl      *control.Controller
	version   string
	startTime time.Time
}

func NewHealthHandler(ctrl *control.Controller, version string, startTime time.Time) *HealthHandler {
	return &HealthHandler{
		ctrl:      ctrl,
		version:   version,
		startTime: startTime,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	status := "healthy"

	if name := h.ctrl.BackendName(); name != "" {
		checks["backend"] = name
	} else {
		checks["backend"] = "not_configured"
		status = "degraded"
	}

	conn := h.ctrl.Connectivity()
	checks["connectivity"] = conn.String()
	if conn == control.ConnError && status == "healthy" {
		status = "degraded"
	}

	checks["control"] = h.ctrl.State().String()

	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:        status,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Checks:        checks,
	})
}
