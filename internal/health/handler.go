// Package health exposes liveness/readiness HTTP probes over a running
// server core. Readiness is derived from the signals the core itself
// owns -- address-space bootstrap and the advertised server state --
// with channel/session counts surfaced for operators.
package health

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sebastiankruger/opcua-core/internal/channel"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/statusvars"
)

// Status represents the health status response
type Status struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// Server is the subset of internal/server.Server this handler's
// readiness probe reads.
type Server interface {
	NodeCount() int
	ServerState() statusvars.ServerState
	ChannelSnapshot() []channel.SecureChannel
	SessionSnapshot() []session.Session
}

// Handler handles health check endpoints
type Handler struct {
	srv       Server
	startTime time.Time
}

// NewHandler creates a new health handler over a running server core.
func NewHandler(srv Server) *Handler {
	return &Handler{
		srv:       srv,
		startTime: time.Now(),
	}
}

// HandleLive handles the liveness probe
// Returns 200 if the application is running
func (h *Handler) HandleLive(w http.ResponseWriter, r *http.Request) {
	status := Status{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(status)
}

// HandleReady handles the readiness probe
// Returns 200 if the application is ready to serve traffic
func (h *Handler) HandleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	allHealthy := true

	// Address space: not ready until bootstrap has populated the node
	// store.
	if h.srv.NodeCount() > 0 {
		checks["address_space"] = "bootstrapped"
	} else {
		checks["address_space"] = "not_bootstrapped"
		allHealthy = false
	}

	// Server state: only Running accepts new traffic; Shutdown/Failed/
	// NoConfiguration/Suspended all fail readiness.
	state := h.srv.ServerState()
	checks["server_state"] = state.String()
	if state != statusvars.ServerStateRunning {
		allHealthy = false
	}

	// Channel/session counts are reported for operators but do not gate
	// readiness: an idle server legitimately has zero of either.
	checks["channels"] = strconv.Itoa(len(h.srv.ChannelSnapshot()))
	checks["sessions"] = strconv.Itoa(len(h.srv.SessionSnapshot()))

	// Check uptime (give 5 seconds for startup)
	uptime := time.Since(h.startTime)
	if uptime > 5*time.Second {
		checks["startup"] = "complete"
	} else {
		checks["startup"] = "in_progress"
		allHealthy = false
	}

	status := Status{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}

	w.Header().Set("Content-Type", "application/json")

	if allHealthy {
		status.Status = "ready"
		w.WriteHeader(http.StatusOK)
	} else {
		status.Status = "not_ready"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	json.NewEncoder(w).Encode(status)
}

// HandleHealth handles the combined health endpoint (for Docker HEALTHCHECK)
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.HandleReady(w, r)
}
