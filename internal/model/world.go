package model

import (
	"math"
	"time"
)

// Position is a point in world coordinates
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DistanceTo returns the Euclidean distance between two positions
func (p Position) DistanceTo(o Position) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// IsFinite reports whether both coordinates are real numbers
func (p Position) IsFinite() bool {
	return !math.IsNaN(p.X) && !math.IsNaN(p.Y) && !math.IsInf(p.X, 0) && !math.IsInf(p.Y, 0)
}

// ConnectionID identifies one live realtime connection
type ConnectionID string

// PresenceEntry is a connected client's live, volatile world state
type PresenceEntry struct {
	ConnectionID ConnectionID
	UserID       UserID
	Nickname     string
	Position     Position
	AvatarID     string // empty until a dragon is selected
	JoinedAt     time.Time
}

// CollectibleID identifies a world pickup for the lifetime of the process
type CollectibleID string

// CollectibleKind is the type of pickup
type CollectibleKind string

const (
	CollectibleDragonEgg   CollectibleKind = "dragon_egg"
	CollectibleDragonScale CollectibleKind = "dragon_scale"
	CollectibleDragonChest CollectibleKind = "dragon_chest"
)

// Collectible is a world pickup. Collected and CollectedBy are write-once.
type Collectible struct {
	ID          CollectibleID
	Kind        CollectibleKind
	Position    Position
	Collected   bool
	CollectedBy UserID
	CollectedAt time.Time
}

// Dragon is a selectable avatar
type Dragon struct {
	ID    string `yaml:"id" json:"id"`
	Name  string `yaml:"name" json:"name"`
	Image string `yaml:"image" json:"image"`
}
