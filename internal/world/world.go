// Package world describes the static shape of the shared map: its extents,
// the spawn point and the dragons players can choose from.
package world

import (
	"fmt"
	"math"

	"github.com/mcoot/dragonrealm/internal/model"
)

// Config holds the world geometry and avatar catalog
type Config struct {
	Width   float64        `yaml:"width"`
	Height  float64        `yaml:"height"`
	Margin  float64        `yaml:"margin"`
	Spawn   model.Position `yaml:"spawn"`
	Dragons []model.Dragon `yaml:"dragons"`
}

// DefaultConfig returns the standard 800x600 world
func DefaultConfig() Config {
	return Config{
		Width:  800,
		Height: 600,
		Margin: 24,
		Spawn:  model.Position{X: 400, Y: 300},
		Dragons: []model.Dragon{
			{ID: "red", Name: "Ember", Image: "dragons/red.png"},
			{ID: "green", Name: "Moss", Image: "dragons/green.png"},
			{ID: "blue", Name: "Frost", Image: "dragons/blue.png"},
			{ID: "gold", Name: "Sovereign", Image: "dragons/gold.png"},
		},
	}
}

// Validate checks that the world can hold a player
func (c Config) Validate() error {
	if c.Width <= 0 || c.Height <= 0 {
		return fmt.Errorf("world size must be positive, got %vx%v", c.Width, c.Height)
	}
	if c.Margin < 0 || 2*c.Margin >= c.Width || 2*c.Margin >= c.Height {
		return fmt.Errorf("world margin %v does not fit a %vx%v world", c.Margin, c.Width, c.Height)
	}
	seen := make(map[string]bool, len(c.Dragons))
	for _, d := range c.Dragons {
		if d.ID == "" {
			return fmt.Errorf("dragon %q has no id", d.Name)
		}
		if seen[d.ID] {
			return fmt.Errorf("duplicate dragon id %q", d.ID)
		}
		seen[d.ID] = true
	}
	return nil
}

// Bounds returns the region player positions are clamped to
func (c Config) Bounds() Bounds {
	return Bounds{
		MinX: c.Margin,
		MinY: c.Margin,
		MaxX: c.Width - c.Margin,
		MaxY: c.Height - c.Margin,
	}
}

// SpawnPoint returns the clamped default position for users with no history
func (c Config) SpawnPoint() model.Position {
	return c.Bounds().Clamp(c.Spawn)
}

// Bounds is an axis-aligned rectangle
type Bounds struct {
	MinX float64 `json:"minX"`
	MinY float64 `json:"minY"`
	MaxX float64 `json:"maxX"`
	MaxY float64 `json:"maxY"`
}

// Clamp moves p to the nearest point inside the bounds.
// Non-finite coordinates collapse to the centre.
func (b Bounds) Clamp(p model.Position) model.Position {
	return model.Position{
		X: clamp(p.X, b.MinX, b.MaxX),
		Y: clamp(p.Y, b.MinY, b.MaxY),
	}
}

// Contains reports whether p lies inside the bounds
func (b Bounds) Contains(p model.Position) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return (lo + hi) / 2
	}
	return math.Max(lo, math.Min(hi, v))
}

// Catalog indexes the selectable dragons
type Catalog struct {
	dragons []model.Dragon
	byID    map[string]model.Dragon
}

// NewCatalog builds a catalog from the configured dragons
func NewCatalog(dragons []model.Dragon) *Catalog {
	c := &Catalog{
		dragons: append([]model.Dragon(nil), dragons...),
		byID:    make(map[string]model.Dragon, len(dragons)),
	}
	for _, d := range dragons {
		c.byID[d.ID] = d
	}
	return c
}

// Get returns the dragon with the given id
func (c *Catalog) Get(id string) (model.Dragon, error) {
	d, ok := c.byID[id]
	if !ok {
		return model.Dragon{}, model.ErrUnknownAvatar
	}
	return d, nil
}

// All returns the dragons in configured order
func (c *Catalog) All() []model.Dragon {
	return append([]model.Dragon(nil), c.dragons...)
}
