package handler

import (
	"net/http"

	"github.com/mcoot/dragonrealm/internal/api/middleware"
	"github.com/mcoot/dragonrealm/internal/api/request"
	"github.com/mcoot/dragonrealm/internal/api/response"
	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/services/auth"
)

// NicknameNotifier is told when a user's nickname changes
type NicknameNotifier interface {
	NicknameChanged(userID model.UserID, oldNickname, newNickname string)
}

// UserHandler handles account and session endpoints
type UserHandler struct {
	authService *auth.Service
	notifier    NicknameNotifier
}

// NewUserHandler creates a new user handler
func NewUserHandler(authService *auth.Service, notifier NicknameNotifier) *UserHandler {
	return &UserHandler{
		authService: authService,
		notifier:    notifier,
	}
}

// Register handles POST /api/v1/users/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req request.RegisterRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.Register(r.Context(), req.Username, req.Password, req.Nickname)
	if err != nil {
		WriteError(w, err)
		return
	}

	setSessionCookie(w, session)
	response.JSON(w, http.StatusCreated, response.AuthResponseFromSession(session))
}

// Login handles POST /api/v1/users/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req request.LoginRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	if req.Username == "" {
		WriteError(w, NewInvalidRequestError("username is required"))
		return
	}
	if req.Password == "" {
		WriteError(w, NewInvalidRequestError("password is required"))
		return
	}

	session, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}

	setSessionCookie(w, session)
	response.JSON(w, http.StatusOK, response.AuthResponseFromSession(session))
}

// Logout handles POST /api/v1/users/logout
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())

	if err := h.authService.Logout(session); err != nil {
		WriteError(w, err)
		return
	}

	clearSessionCookie(w)
	response.NoContent(w)
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())

	user, err := h.authService.GetUser(r.Context(), session.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

// UpdateNickname handles PATCH /api/v1/users/me/nickname
func (h *UserHandler) UpdateNickname(w http.ResponseWriter, r *http.Request) {
	session := middleware.MustGetSession(r.Context())

	var req request.UpdateNicknameRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}

	current, err := h.authService.GetUser(r.Context(), session.UserID)
	if err != nil {
		WriteError(w, err)
		return
	}

	user, err := h.authService.UpdateNickname(r.Context(), session.UserID, req.Nickname)
	if err != nil {
		WriteError(w, err)
		return
	}

	if user.Nickname != current.Nickname {
		h.notifier.NicknameChanged(user.ID, current.Nickname, user.Nickname)
	}

	response.JSON(w, http.StatusOK, response.UserFromModel(user))
}

func setSessionCookie(w http.ResponseWriter, session *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    session.Token,
		Path:     "/",
		Expires:  session.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}
