package model

import "time"

// UserID uniquely identifies an account across the system
type UserID string

// User is the identity record owned by the auth service and record store.
// Presence only ever holds a nickname snapshot keyed by ID.
type User struct {
	ID           UserID
	Username     string // login name (immutable)
	Nickname     string // display name, 2-64 runes
	IsAdmin      bool   // set at account creation only
	LastPosition *Position
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials holds the login secret for a user.
// Stored separately so password hashes never travel with sessions.
type Credentials struct {
	UserID       UserID
	Username     string
	PasswordHash string // bcrypt hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Nickname bounds, counted in runes
const (
	MinNicknameLength = 2
	MaxNicknameLength = 64
)
