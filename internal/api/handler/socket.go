package handler

import (
	"net/http"

	"github.com/mcoot/dragonrealm/internal/api/middleware"
	"github.com/mcoot/dragonrealm/internal/realtime"
)

// SocketHandler upgrades authenticated requests to realtime connections
type SocketHandler struct {
	hub *realtime.Hub
}

// NewSocketHandler creates a new socket handler
func NewSocketHandler(hub *realtime.Hub) *SocketHandler {
	return &SocketHandler{hub: hub}
}

// Connect handles GET /api/v1/ws
func (h *SocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())
	h.hub.ServeWS(w, r, session)
}
