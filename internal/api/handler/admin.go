package handler

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/mcoot/dragonrealm/internal/api/middleware"
	"github.com/mcoot/dragonrealm/internal/api/request"
	"github.com/mcoot/dragonrealm/internal/api/response"
	"github.com/mcoot/dragonrealm/internal/services/auth"
)

// AdminHandler handles session and account administration
type AdminHandler struct {
	authService *auth.Service
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(authService *auth.Service) *AdminHandler {
	return &AdminHandler{authService: authService}
}

// ListSessions handles GET /api/v1/admin/sessions
func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetSession(r.Context())

	sessions, err := h.authService.ListActiveSessions(caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.SessionsFromModel(sessions))
}

// TerminateSession handles DELETE /api/v1/admin/sessions/{id}.
// Live connections of the session are evicted through the auth end hook.
func (h *AdminHandler) TerminateSession(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetSession(r.Context())
	sessionID := mux.Vars(r)["id"]

	if err := h.authService.Terminate(caller, sessionID); err != nil {
		WriteError(w, err)
		return
	}

	response.NoContent(w)
}

// ListUsers handles GET /api/v1/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetSession(r.Context())

	users, err := h.authService.ListUsers(r.Context(), caller)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UsersFromModel(users))
}

// CreateUser handles POST /api/v1/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	caller := middleware.MustGetSession(r.Context())

	var req request.CreateUserRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.Username == "" || req.Password == "" {
		WriteError(w, NewInvalidRequestError("username and password are required"))
		return
	}

	user, err := h.authService.CreateUser(r.Context(), caller, req.Username, req.Password, req.Nickname, req.IsAdmin)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusCreated, response.UserFromModel(user))
}
