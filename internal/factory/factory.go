package factory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/dragonrealm/internal/api"
	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/dependencies/random"
	"github.com/mcoot/dragonrealm/internal/middleware"
	"github.com/mcoot/dragonrealm/internal/realtime"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	"github.com/mcoot/dragonrealm/internal/services/chat"
	"github.com/mcoot/dragonrealm/internal/services/collectibles"
	"github.com/mcoot/dragonrealm/internal/services/positions"
	"github.com/mcoot/dragonrealm/internal/services/presence"
	"github.com/mcoot/dragonrealm/internal/storage"
	"github.com/mcoot/dragonrealm/internal/storage/memory"
	redisstorage "github.com/mcoot/dragonrealm/internal/storage/redis"
	"github.com/mcoot/dragonrealm/internal/storage/sqlstore"
	"github.com/mcoot/dragonrealm/internal/world"
)

// Storage type constants
const (
	StorageTypeMemory   = "memory"
	StorageTypeRedis    = "redis"
	StorageTypeSQLite   = "sqlite"
	StorageTypePostgres = "postgres"
)

const defaultReapInterval = time.Minute

// App contains all wired application components
type App struct {
	// Storage
	Storage storage.Storage

	// External dependencies
	Clock  clock.Clock
	Random random.Random
	Logger *slog.Logger

	// World
	World   world.Config
	Catalog *world.Catalog

	// Services
	AuthService *auth.Service
	Registry    *presence.Registry
	Ledger      *collectibles.Ledger
	Chat        *chat.Router
	Positions   *positions.Recorder
	Hub         *realtime.Hub

	// RateLimiter is nil when REST rate limiting is disabled
	RateLimiter *middleware.RateLimiter

	reapInterval time.Duration
}

// Config holds configuration for the application factory
type Config struct {
	// AuthConfig holds configuration for the auth service (optional)
	// If zero value, defaults to auth.DefaultConfig()
	AuthConfig auth.Config
	// Game holds world and realtime tuning. Zero sections take their defaults.
	Game GameConfig
	// Logger is the application logger (optional)
	// If nil, a no-op logger is used
	Logger *slog.Logger
	// StorageType selects the storage backend ("memory", "redis", "sqlite" or "postgres")
	// If empty, defaults to "memory"
	StorageType string
	// RedisConfig holds Redis connection settings (required if StorageType is "redis")
	RedisConfig *redisstorage.Config
	// SQLConfig holds database settings (required if StorageType is "sqlite" or "postgres")
	SQLConfig *sqlstore.Config
	// RateLimit configures REST rate limiting. Nil disables it.
	RateLimit *middleware.RateLimitConfig
	// ReapInterval is how often expired sessions are swept. Defaults to one minute.
	ReapInterval time.Duration
}

// New creates a new application with all dependencies wired
func New(ctx context.Context, cfg Config) (*App, error) {
	// Use no-op logger if not provided
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	game := cfg.Game.withDefaults()
	if err := game.Validate(); err != nil {
		return nil, err
	}
	if cfg.RateLimit != nil {
		if err := cfg.RateLimit.Validate(); err != nil {
			return nil, err
		}
	}

	store, err := openStorage(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Create external dependencies
	clk := clock.New()
	rnd := random.New()

	// Use default auth config if not provided
	authCfg := cfg.AuthConfig
	if authCfg.SessionDuration == 0 {
		authCfg = auth.DefaultConfig()
	}

	app := newWithDependencies(store, clk, rnd, authCfg, game, logger)
	if cfg.RateLimit != nil {
		app.RateLimiter = middleware.NewRateLimiter(*cfg.RateLimit)
	}
	if cfg.ReapInterval > 0 {
		app.reapInterval = cfg.ReapInterval
	}
	return app, nil
}

func openStorage(ctx context.Context, cfg Config, logger *slog.Logger) (storage.Storage, error) {
	storageType := cfg.StorageType
	if storageType == "" {
		storageType = StorageTypeMemory
	}

	switch storageType {
	case StorageTypeMemory:
		return memory.New(), nil
	case StorageTypeRedis:
		if cfg.RedisConfig == nil {
			return nil, errors.New("RedisConfig required when StorageType is redis")
		}
		return redisstorage.New(*cfg.RedisConfig)
	case StorageTypeSQLite, StorageTypePostgres:
		if cfg.SQLConfig == nil {
			return nil, fmt.Errorf("SQLConfig required when StorageType is %s", storageType)
		}
		if string(cfg.SQLConfig.Dialect) != storageType {
			return nil, fmt.Errorf("SQLConfig dialect %q does not match StorageType %s", cfg.SQLConfig.Dialect, storageType)
		}
		return sqlstore.Open(ctx, *cfg.SQLConfig, logger)
	default:
		return nil, errors.New("invalid StorageType: must be 'memory', 'redis', 'sqlite' or 'postgres'")
	}
}

// newWithDependencies creates an App with the given dependencies (useful for testing)
func newWithDependencies(store storage.Storage, clk clock.Clock, rnd random.Random, authCfg auth.Config, game GameConfig, logger *slog.Logger) *App {
	catalog := world.NewCatalog(game.World.Dragons)
	authService := auth.New(store, clk, authCfg, logger)
	registry := presence.NewRegistry(game.World.Bounds(), clk)
	items := collectibles.Spawn(game.Collectibles, game.World.Width, game.World.Height, rnd)
	ledger := collectibles.NewLedger(items, clk)
	chatRouter := chat.NewRouter(game.Chat, clk)
	recorder := positions.NewRecorder(authService, game.Positions, logger)

	hub := realtime.NewHub(realtime.Dependencies{
		Sessions:  authService,
		Registry:  registry,
		Ledger:    ledger,
		Chat:      chatRouter,
		Catalog:   catalog,
		Positions: recorder,
		World:     game.World,
		Clock:     clk,
	}, game.Realtime, logger)

	// Ending a session closes its live connections
	authService.OnSessionEnd(hub.EndSession)

	return &App{
		Storage:      store,
		Clock:        clk,
		Random:       rnd,
		Logger:       logger,
		World:        game.World,
		Catalog:      catalog,
		AuthService:  authService,
		Registry:     registry,
		Ledger:       ledger,
		Chat:         chatRouter,
		Positions:    recorder,
		Hub:          hub,
		reapInterval: defaultReapInterval,
	}
}

// Router builds the HTTP handler serving the REST API and the socket endpoint
func (a *App) Router() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Logger:      a.Logger,
		AuthService: a.AuthService,
		Hub:         a.Hub,
		Registry:    a.Registry,
		Ledger:      a.Ledger,
		World:       a.World,
		Catalog:     a.Catalog,
		RateLimiter: a.RateLimiter,
	})
}

// Run drives the background loops (hub, position recorder, session reaper)
// until ctx is done or one of them fails
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.Hub.Run(ctx) })
	g.Go(func() error { return a.Positions.Run(ctx) })
	g.Go(func() error { return a.reap(ctx) })
	return g.Wait()
}

func (a *App) reap(ctx context.Context) error {
	ticker := time.NewTicker(a.reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := a.AuthService.CleanExpiredSessions(); n > 0 {
				a.Logger.Info("expired sessions removed", slog.Int("count", n))
			}
			if a.RateLimiter != nil {
				a.RateLimiter.Sweep()
			}
		}
	}
}

// Close releases the storage backend
func (a *App) Close() error {
	return a.Storage.Close()
}
