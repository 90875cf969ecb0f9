// Package admin is a read-only JSON introspection surface over a
// running server core's sessions, channels, applications, and
// discovery registry.
package admin

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sebastiankruger/opcua-core/internal/apptable"
	"github.com/sebastiankruger/opcua-core/internal/channel"
	"github.com/sebastiankruger/opcua-core/internal/discovery"
	"github.com/sebastiankruger/opcua-core/internal/session"
	"github.com/sebastiankruger/opcua-core/internal/statusvars"
)

// Server is the subset of internal/server.Server this handler reads.
type Server interface {
	NodeCount() int
	NamespaceCount() int
	ApplicationName() string
	ApplicationURI() string
	ServerState() statusvars.ServerState
	ChannelSnapshot() []channel.SecureChannel
	SessionSnapshot() []session.Session
	Applications() []*apptable.Application
	RegisteredServers() []discovery.RegisteredServer
}

// Handler serves the admin introspection endpoints.
type Handler struct {
	srv Server
}

func NewHandler(srv Server) *Handler {
	return &Handler{srv: srv}
}

// HandleStatus handles GET /api/status.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		ApplicationName: h.srv.ApplicationName(),
		ApplicationURI:  h.srv.ApplicationURI(),
		NodeCount:       h.srv.NodeCount(),
		NamespaceCount:  h.srv.NamespaceCount(),
		ChannelCount:    len(h.srv.ChannelSnapshot()),
		SessionCount:    len(h.srv.SessionSnapshot()),
		RegisteredCount: len(h.srv.RegisteredServers()),
		ServerState:     h.srv.ServerState().String(),
	}
	h.writeJSON(w, resp)
}

// HandleChannels handles GET /api/channels.
func (h *Handler) HandleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ChannelListResponse{Channels: []ChannelInfo{}}
	for _, ch := range h.srv.ChannelSnapshot() {
		info := ChannelInfo{
			ChannelID:       ch.ChannelID,
			TokenID:         ch.TokenID,
			State:           ch.State.String(),
			CreatedAt:       ch.CreatedAt.Format(time.RFC3339),
			RevisedLifetime: ch.RevisedLifetime.String(),
		}
		if ch.Connection != nil {
			info.RemoteAddr = ch.Connection.RemoteAddr()
		}
		resp.Channels = append(resp.Channels, info)
	}
	h.writeJSON(w, resp)
}

// HandleSessions handles GET /api/sessions.
func (h *Handler) HandleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := SessionListResponse{Sessions: []SessionInfo{}}
	for _, s := range h.srv.SessionSnapshot() {
		resp.Sessions = append(resp.Sessions, SessionInfo{
			SessionID:      s.SessionID.String(),
			ChannelID:      s.ChannelID,
			SessionName:    s.SessionName,
			ApplicationURI: s.ClientDescription.ApplicationURI,
			State:          s.State().String(),
			Activated:      s.Activated,
			ValidTill:      s.ValidTill.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, resp)
}

// HandleApplications handles GET /api/applications.
func (h *Handler) HandleApplications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := ApplicationListResponse{Applications: []ApplicationInfo{}}
	for _, app := range h.srv.Applications() {
		resp.Applications = append(resp.Applications, ApplicationInfo{
			ApplicationURI: app.Description.ApplicationURI,
			ProductURI:     app.Description.ProductURI,
			DiscoveryUrls:  app.Description.DiscoveryUrls,
			EndpointCount:  len(app.Endpoints),
		})
	}
	h.writeJSON(w, resp)
}

// HandleDiscovery handles GET /api/discovery.
func (h *Handler) HandleDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := RegisteredServerListResponse{Servers: []RegisteredServerInfo{}}
	for _, rs := range h.srv.RegisteredServers() {
		resp.Servers = append(resp.Servers, RegisteredServerInfo{
			ServerURI:         rs.ServerURI,
			ProductURI:        rs.ProductURI,
			SemaphoreFilePath: rs.SemaphoreFilePath,
			LastSeen:          rs.LastSeen.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
