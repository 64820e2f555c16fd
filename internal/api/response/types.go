package response

import (
	"time"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/services/auth"
	"github.com/mcoot/dragonrealm/internal/world"
)

// User represents an account in API responses
type User struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	Nickname     string          `json:"nickname"`
	IsAdmin      bool            `json:"isAdmin"`
	LastPosition *model.Position `json:"lastPosition,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// UserFromModel converts a model.User to a response User
func UserFromModel(u *model.User) User {
	return User{
		ID:           string(u.ID),
		Username:     u.Username,
		Nickname:     u.Nickname,
		IsAdmin:      u.IsAdmin,
		LastPosition: u.LastPosition,
		CreatedAt:    u.CreatedAt,
	}
}

// UsersFromModel converts a list of users
func UsersFromModel(users []*model.User) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, UserFromModel(u))
	}
	return out
}

// AuthResponse is the response for authentication endpoints
type AuthResponse struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthResponseFromSession creates an AuthResponse from a session
func AuthResponseFromSession(s *auth.Session) AuthResponse {
	return AuthResponse{
		User:      UserFromModel(&s.User),
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
	}
}

// Session represents a live session in admin responses. The token is never exposed.
type Session struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	Nickname  string    `json:"nickname"`
	IsAdmin   bool      `json:"isAdmin"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// SessionsFromModel converts sessions for admin listing
func SessionsFromModel(sessions []auth.Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, Session{
			ID:        s.ID,
			UserID:    string(s.UserID),
			Username:  s.User.Username,
			Nickname:  s.User.Nickname,
			IsAdmin:   s.User.IsAdmin,
			CreatedAt: s.CreatedAt,
			ExpiresAt: s.ExpiresAt,
		})
	}
	return out
}

// World describes the play area
type World struct {
	Width  float64        `json:"width"`
	Height float64        `json:"height"`
	Bounds world.Bounds   `json:"bounds"`
	Spawn  model.Position `json:"spawn"`
}

// WorldFromConfig converts a world configuration
func WorldFromConfig(cfg world.Config) World {
	return World{
		Width:  cfg.Width,
		Height: cfg.Height,
		Bounds: cfg.Bounds(),
		Spawn:  cfg.SpawnPoint(),
	}
}

// OnlineUser is one connected user
type OnlineUser struct {
	UserID   string         `json:"userId"`
	Nickname string         `json:"nickname"`
	Position model.Position `json:"position"`
	DragonID string         `json:"dragonId,omitempty"`
}

// OnlineUsersFromEntries converts presence entries
func OnlineUsersFromEntries(entries []model.PresenceEntry) []OnlineUser {
	out := make([]OnlineUser, 0, len(entries))
	for _, e := range entries {
		out = append(out, OnlineUser{
			UserID:   string(e.UserID),
			Nickname: e.Nickname,
			Position: e.Position,
			DragonID: e.AvatarID,
		})
	}
	return out
}

// Collectible is a pickup in API responses
type Collectible struct {
	ID          string         `json:"id"`
	Kind        string         `json:"kind"`
	Position    model.Position `json:"position"`
	Collected   bool           `json:"collected"`
	CollectedBy string         `json:"collectedBy,omitempty"`
}

// CollectiblesFromModel converts a ledger snapshot
func CollectiblesFromModel(items []model.Collectible) []Collectible {
	out := make([]Collectible, 0, len(items))
	for _, c := range items {
		out = append(out, Collectible{
			ID:          string(c.ID),
			Kind:        string(c.Kind),
			Position:    c.Position,
			Collected:   c.Collected,
			CollectedBy: string(c.CollectedBy),
		})
	}
	return out
}

// Health is the liveness response
type Health struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}
