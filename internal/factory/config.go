package factory

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcoot/dragonrealm/internal/realtime"
	"github.com/mcoot/dragonrealm/internal/services/chat"
	"github.com/mcoot/dragonrealm/internal/services/collectibles"
	"github.com/mcoot/dragonrealm/internal/services/positions"
	"github.com/mcoot/dragonrealm/internal/world"
)

// GameConfig groups the tunables of the shared world. It is what a game
// config YAML file decodes into.
type GameConfig struct {
	World        world.Config        `yaml:"world"`
	Collectibles collectibles.Config `yaml:"collectibles"`
	Chat         chat.Config         `yaml:"chat"`
	Realtime     realtime.Config     `yaml:"realtime"`
	Positions    positions.Config    `yaml:"positions"`
}

// DefaultGameConfig returns the standard 800x600 world with five collectibles
func DefaultGameConfig() GameConfig {
	return GameConfig{
		World:        world.DefaultConfig(),
		Collectibles: collectibles.DefaultConfig(),
		Chat:         chat.DefaultConfig(),
		Realtime:     realtime.DefaultConfig(),
		Positions:    positions.DefaultConfig(),
	}
}

// LoadGameConfig reads a YAML file over the defaults. Keys the file omits
// keep their default values; unknown keys are an error.
func LoadGameConfig(path string) (GameConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return GameConfig{}, err
	}
	defer f.Close()

	cfg := DefaultGameConfig()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return GameConfig{}, fmt.Errorf("parse game config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return GameConfig{}, fmt.Errorf("game config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section
func (c GameConfig) Validate() error {
	if err := c.World.Validate(); err != nil {
		return err
	}
	if err := c.Chat.Validate(); err != nil {
		return err
	}
	if c.Collectibles.Count < 0 {
		return fmt.Errorf("collectible count must not be negative, got %d", c.Collectibles.Count)
	}
	return nil
}

// withDefaults fills sections left entirely unset
func (c GameConfig) withDefaults() GameConfig {
	d := DefaultGameConfig()
	if c.World.Width == 0 && c.World.Height == 0 {
		c.World = d.World
	}
	if c.Collectibles.Count == 0 && c.Collectibles.Margin == 0 && len(c.Collectibles.Kinds) == 0 {
		c.Collectibles = d.Collectibles
	}
	if c.Chat == (chat.Config{}) {
		c.Chat = d.Chat
	}
	return c
}
