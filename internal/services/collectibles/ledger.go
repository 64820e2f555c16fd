// Package collectibles owns the world pickups and guarantees each one is
// awarded at most once.
package collectibles

import (
	"fmt"
	"sync"

	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/dependencies/random"
	"github.com/mcoot/dragonrealm/internal/model"
)

// Outcome is the result of a collect attempt
type Outcome int

const (
	// Awarded means the claimant won the collectible
	Awarded Outcome = iota + 1
	// AlreadyCollected means someone else got there first. Not an error.
	AlreadyCollected
)

func (o Outcome) String() string {
	switch o {
	case Awarded:
		return "awarded"
	case AlreadyCollected:
		return "already_collected"
	default:
		return "unknown"
	}
}

// Config controls how collectibles are spawned at world initialization
type Config struct {
	Count  int                     `yaml:"count"`
	Margin float64                 `yaml:"margin"`
	Kinds  []model.CollectibleKind `yaml:"kinds"`
}

// DefaultConfig returns five pickups kept 50 units from the edges
func DefaultConfig() Config {
	return Config{
		Count:  5,
		Margin: 50,
		Kinds: []model.CollectibleKind{
			model.CollectibleDragonEgg,
			model.CollectibleDragonScale,
			model.CollectibleDragonChest,
		},
	}
}

// Spawn places cfg.Count collectibles at random integer positions inside
// [margin, extent-margin] of a width x height world
func Spawn(cfg Config, width, height float64, rnd random.Random) []model.Collectible {
	kinds := cfg.Kinds
	if len(kinds) == 0 {
		kinds = DefaultConfig().Kinds
	}

	items := make([]model.Collectible, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		items = append(items, model.Collectible{
			ID:   model.CollectibleID(fmt.Sprintf("collectible_%d", i)),
			Kind: kinds[rnd.Intn(len(kinds))],
			Position: model.Position{
				X: randomCoordinate(rnd, cfg.Margin, width),
				Y: randomCoordinate(rnd, cfg.Margin, height),
			},
		})
	}
	return items
}

func randomCoordinate(rnd random.Random, margin, extent float64) float64 {
	span := int(extent - 2*margin)
	if span <= 0 {
		return extent / 2
	}
	return margin + float64(rnd.Intn(span+1))
}

// Ledger is the authoritative record of which collectibles are gone.
// AttemptCollect is the only place the collected flag changes.
type Ledger struct {
	clock clock.Clock

	mu    sync.Mutex
	items map[model.CollectibleID]*model.Collectible
	order []model.CollectibleID
}

// NewLedger creates a ledger holding the given collectibles
func NewLedger(items []model.Collectible, clock clock.Clock) *Ledger {
	l := &Ledger{
		clock: clock,
		items: make(map[model.CollectibleID]*model.Collectible, len(items)),
		order: make([]model.CollectibleID, 0, len(items)),
	}
	for _, item := range items {
		item := item
		if _, dup := l.items[item.ID]; !dup {
			l.order = append(l.order, item.ID)
		}
		l.items[item.ID] = &item
	}
	return l
}

// AttemptCollect claims a collectible. Exactly one claimant is ever Awarded;
// every later claim gets AlreadyCollected with the winning record.
func (l *Ledger) AttemptCollect(id model.CollectibleID, claimant model.UserID) (Outcome, model.Collectible, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, ok := l.items[id]
	if !ok {
		return 0, model.Collectible{}, model.ErrCollectibleNotFound
	}
	if item.Collected {
		return AlreadyCollected, *item, nil
	}

	item.Collected = true
	item.CollectedBy = claimant
	item.CollectedAt = l.clock.Now()
	return Awarded, *item, nil
}

// SnapshotState returns every collectible in spawn order
func (l *Ledger) SnapshotState() []model.Collectible {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]model.Collectible, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.items[id])
	}
	return out
}

// Remaining returns how many collectibles are still in the world
func (l *Ledger) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := 0
	for _, item := range l.items {
		if !item.Collected {
			n++
		}
	}
	return n
}
