// Package presence tracks who is connected and where they are.
package presence

import (
	"sort"
	"sync"

	"github.com/mcoot/dragonrealm/internal/dependencies/clock"
	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/world"
)

// Registry is the single source of truth for live presence, keyed by
// connection id. Positions are clamped to the world bounds on the way in.
type Registry struct {
	bounds world.Bounds
	clock  clock.Clock

	mu      sync.RWMutex
	entries map[model.ConnectionID]*model.PresenceEntry
}

// NewRegistry creates an empty registry for a world
func NewRegistry(bounds world.Bounds, clock clock.Clock) *Registry {
	return &Registry{
		bounds:  bounds,
		clock:   clock,
		entries: make(map[model.ConnectionID]*model.PresenceEntry),
	}
}

// Register adds a connection. Registering an existing connection id
// replaces the prior entry.
func (r *Registry) Register(connID model.ConnectionID, userID model.UserID, nickname string, pos model.Position) model.PresenceEntry {
	entry := &model.PresenceEntry{
		ConnectionID: connID,
		UserID:       userID,
		Nickname:     nickname,
		Position:     r.bounds.Clamp(pos),
		JoinedAt:     r.clock.Now(),
	}

	r.mu.Lock()
	r.entries[connID] = entry
	r.mu.Unlock()

	return *entry
}

// UpdatePosition moves a connection, clamping to the world bounds.
// Returns ErrConnectionGone if the connection has left.
func (r *Registry) UpdatePosition(connID model.ConnectionID, pos model.Position) (model.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connID]
	if !ok {
		return model.PresenceEntry{}, model.ErrConnectionGone
	}
	entry.Position = r.bounds.Clamp(pos)
	return *entry, nil
}

// UpdateAvatar records the dragon a connection has chosen
func (r *Registry) UpdateAvatar(connID model.ConnectionID, avatarID string) (model.PresenceEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connID]
	if !ok {
		return model.PresenceEntry{}, model.ErrConnectionGone
	}
	entry.AvatarID = avatarID
	return *entry, nil
}

// UpdateNickname refreshes the nickname snapshot on every entry of a user
func (r *Registry) UpdateNickname(userID model.UserID, nickname string) []model.PresenceEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var updated []model.PresenceEntry
	for _, entry := range r.entries {
		if entry.UserID == userID {
			entry.Nickname = nickname
			updated = append(updated, *entry)
		}
	}
	sortEntries(updated)
	return updated
}

// Unregister removes a connection and returns its last entry
func (r *Registry) Unregister(connID model.ConnectionID) (model.PresenceEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[connID]
	if !ok {
		return model.PresenceEntry{}, false
	}
	delete(r.entries, connID)
	return *entry, true
}

// Get returns the entry for a connection
func (r *Registry) Get(connID model.ConnectionID) (model.PresenceEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[connID]
	if !ok {
		return model.PresenceEntry{}, false
	}
	return *entry, true
}

// ConnectionsForUser returns the ids of all live connections of a user
func (r *Registry) ConnectionsForUser(userID model.UserID) []model.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []model.ConnectionID
	for id, entry := range r.entries {
		if entry.UserID == userID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot returns every entry, oldest connection first
func (r *Registry) Snapshot() []model.PresenceEntry {
	r.mu.RLock()
	entries := make([]model.PresenceEntry, 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, *entry)
	}
	r.mu.RUnlock()

	sortEntries(entries)
	return entries
}

// OnlineUsers returns one entry per user (their most recent connection)
func (r *Registry) OnlineUsers() []model.PresenceEntry {
	latest := make(map[model.UserID]model.PresenceEntry)
	for _, entry := range r.Snapshot() {
		latest[entry.UserID] = entry
	}

	users := make([]model.PresenceEntry, 0, len(latest))
	for _, entry := range latest {
		users = append(users, entry)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Nickname < users[j].Nickname })
	return users
}

// Len returns the number of live connections
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func sortEntries(entries []model.PresenceEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].JoinedAt.Equal(entries[j].JoinedAt) {
			return entries[i].JoinedAt.Before(entries[j].JoinedAt)
		}
		return entries[i].ConnectionID < entries[j].ConnectionID
	})
}
