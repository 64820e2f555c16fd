package api

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/klauspost/compress/gzhttp"

	"github.com/mcoot/dragonrealm/internal/api/handler"
	"github.com/mcoot/dragonrealm/internal/api/middleware"
	"github.com/mcoot/dragonrealm/internal/api/response"
	basemw "github.com/mcoot/dragonrealm/internal/middleware"
	"github.com/mcoot/dragonrealm/internal/realtime"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	"github.com/mcoot/dragonrealm/internal/services/collectibles"
	"github.com/mcoot/dragonrealm/internal/services/presence"
	"github.com/mcoot/dragonrealm/internal/world"
)

// RouterConfig holds configuration for the API router
type RouterConfig struct {
	Logger      *slog.Logger
	AuthService *auth.Service
	Hub         *realtime.Hub
	Registry    *presence.Registry
	Ledger      *collectibles.Ledger
	World       world.Config
	Catalog     *world.Catalog
	// RateLimiter limits REST requests per client. Nil disables limiting.
	RateLimiter *basemw.RateLimiter
}

// NewRouter creates a new API router with all routes configured
func NewRouter(cfg RouterConfig) http.Handler {
	r := mux.NewRouter()

	// Create handlers
	userHandler := handler.NewUserHandler(cfg.AuthService, cfg.Hub)
	worldHandler := handler.NewWorldHandler(cfg.World, cfg.Catalog, cfg.Registry, cfg.Ledger)
	adminHandler := handler.NewAdminHandler(cfg.AuthService)
	socketHandler := handler.NewSocketHandler(cfg.Hub)

	// Create middleware
	authMiddleware := middleware.Auth(cfg.AuthService)
	socketAuthMiddleware := middleware.SocketAuth(cfg.AuthService)
	loggingMiddleware := middleware.Logging(cfg.Logger)
	recoveryMiddleware := middleware.Recovery(cfg.Logger)

	root := r.PathPrefix("/api/v1").Subrouter()
	root.Use(recoveryMiddleware)
	root.Use(loggingMiddleware)

	// Websocket upgrades bypass compression and rate limiting
	ws := root.PathPrefix("/ws").Subrouter()
	ws.Use(socketAuthMiddleware)
	ws.HandleFunc("", socketHandler.Connect).Methods(http.MethodGet)

	// REST routes
	api := root.NewRoute().Subrouter()
	api.Use(func(next http.Handler) http.Handler { return gzhttp.GzipHandler(next) })
	if cfg.RateLimiter != nil {
		api.Use(middleware.RateLimit(cfg.RateLimiter))
	}

	// User routes (no auth required for registering or logging in)
	api.HandleFunc("/users/register", userHandler.Register).Methods(http.MethodPost)
	api.HandleFunc("/users/login", userHandler.Login).Methods(http.MethodPost)

	// Protected user routes
	users := api.PathPrefix("/users").Subrouter()
	users.Use(authMiddleware)
	users.HandleFunc("/logout", userHandler.Logout).Methods(http.MethodPost)
	users.HandleFunc("/me", userHandler.GetMe).Methods(http.MethodGet)
	users.HandleFunc("/me/nickname", userHandler.UpdateNickname).Methods(http.MethodPatch)

	// Public world routes
	api.HandleFunc("/world", worldHandler.Get).Methods(http.MethodGet)
	api.HandleFunc("/world/dragons", worldHandler.ListDragons).Methods(http.MethodGet)

	// Protected world routes
	worldRoutes := api.PathPrefix("/world").Subrouter()
	worldRoutes.Use(authMiddleware)
	worldRoutes.HandleFunc("/online", worldHandler.ListOnline).Methods(http.MethodGet)
	worldRoutes.HandleFunc("/collectibles", worldHandler.ListCollectibles).Methods(http.MethodGet)

	// Admin routes
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authMiddleware)
	admin.Use(middleware.RequireAdmin)
	admin.HandleFunc("/sessions", adminHandler.ListSessions).Methods(http.MethodGet)
	admin.HandleFunc("/sessions/{id}", adminHandler.TerminateSession).Methods(http.MethodDelete)
	admin.HandleFunc("/users", adminHandler.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users", adminHandler.CreateUser).Methods(http.MethodPost)

	// Health check endpoint (no auth)
	api.HandleFunc("/health", healthHandler(cfg.Hub)).Methods(http.MethodGet)

	return r
}

func healthHandler(hub *realtime.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, http.StatusOK, response.Health{
			Status:      "ok",
			Connections: hub.ClientCount(),
		})
	}
}
