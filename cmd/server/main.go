package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/mcoot/dragonrealm/internal/api"
	"github.com/mcoot/dragonrealm/internal/factory"
	"github.com/mcoot/dragonrealm/internal/middleware"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	redisstorage "github.com/mcoot/dragonrealm/internal/storage/redis"
	"github.com/mcoot/dragonrealm/internal/storage/sqlstore"
)

func main() {
	// Set up logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("server error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := configFromEnv(logger)
	if err != nil {
		return err
	}

	// Create application factory
	app, err := factory.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		if err := app.AuthService.EnsureAdmin(ctx, username, os.Getenv("ADMIN_PASSWORD")); err != nil {
			return err
		}
	}

	// Create server
	serverConfig := api.DefaultServerConfig()
	if port := os.Getenv("PORT"); port != "" {
		n, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", port, err)
		}
		serverConfig.Port = n
	}
	server := api.NewServer(app.Router(), serverConfig, logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return app.Run(ctx) })
	g.Go(func() error { return server.Run(ctx) })

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", cfg.StorageType))
	return g.Wait()
}

// configFromEnv builds the factory config from environment variables
func configFromEnv(logger *slog.Logger) (factory.Config, error) {
	cfg := factory.Config{
		Logger:      logger,
		StorageType: os.Getenv("STORAGE_TYPE"),
		Game:        factory.DefaultGameConfig(),
	}
	if cfg.StorageType == "" {
		cfg.StorageType = factory.StorageTypeMemory
	}

	switch cfg.StorageType {
	case factory.StorageTypeRedis:
		redisCfg := redisstorage.DefaultConfig()
		if url := os.Getenv("REDIS_URL"); url != "" {
			redisCfg.URL = url
		}
		cfg.RedisConfig = &redisCfg
	case factory.StorageTypeSQLite:
		path := os.Getenv("SQLITE_PATH")
		if path == "" {
			path = "dragonrealm.db"
		}
		sqlCfg := sqlstore.DefaultSQLiteConfig(path)
		cfg.SQLConfig = &sqlCfg
	case factory.StorageTypePostgres:
		sqlCfg := sqlstore.DefaultPostgresConfig(os.Getenv("DATABASE_URL"))
		cfg.SQLConfig = &sqlCfg
	}

	if path := os.Getenv("GAME_CONFIG"); path != "" {
		game, err := factory.LoadGameConfig(path)
		if err != nil {
			return factory.Config{}, err
		}
		cfg.Game = game
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.Game.Realtime.AllowedOrigins = strings.Split(origins, ",")
	}

	cfg.AuthConfig = auth.DefaultConfig()
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.AuthConfig.SigningKey = []byte(secret)
	} else {
		logger.Warn("JWT_SECRET not set, sessions will not survive a restart")
	}

	limit := middleware.DefaultRateLimitConfig()
	cfg.RateLimit = &limit
	return cfg, nil
}

func logLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
