package handler

import (
	"net/http"

	"github.com/mcoot/dragonrealm/internal/api/response"
	"github.com/mcoot/dragonrealm/internal/services/collectibles"
	"github.com/mcoot/dragonrealm/internal/services/presence"
	"github.com/mcoot/dragonrealm/internal/world"
)

// WorldHandler serves read-only views of the shared world
type WorldHandler struct {
	world    world.Config
	catalog  *world.Catalog
	registry *presence.Registry
	ledger   *collectibles.Ledger
}

// NewWorldHandler creates a new world handler
func NewWorldHandler(cfg world.Config, catalog *world.Catalog, registry *presence.Registry, ledger *collectibles.Ledger) *WorldHandler {
	return &WorldHandler{
		world:    cfg,
		catalog:  catalog,
		registry: registry,
		ledger:   ledger,
	}
}

// Get handles GET /api/v1/world
func (h *WorldHandler) Get(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.WorldFromConfig(h.world))
}

// ListDragons handles GET /api/v1/world/dragons
func (h *WorldHandler) ListDragons(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.catalog.All())
}

// ListOnline handles GET /api/v1/world/online
func (h *WorldHandler) ListOnline(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.OnlineUsersFromEntries(h.registry.OnlineUsers()))
}

// ListCollectibles handles GET /api/v1/world/collectibles
func (h *WorldHandler) ListCollectibles(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, response.CollectiblesFromModel(h.ledger.SnapshotState()))
}
