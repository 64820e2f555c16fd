// Package protocol defines the realtime wire format: a JSON envelope with a
// type tag and a payload object.
package protocol

import (
	"time"

	"github.com/mcoot/dragonrealm/internal/model"
)

// Type tags an envelope
type Type string

// Inbound types (client to server)
const (
	TypePositionUpdate       Type = "position_update"
	TypeDragonSelected       Type = "dragon_selected"
	TypeChatMessage          Type = "chat_message"
	TypeCollectibleCollected Type = "collectible_collected"
)

// Outbound types (server to client). dragon_selected, chat_message and
// collectible_collected are reused in both directions.
const (
	TypeWelcome           Type = "welcome"
	TypePresenceSnapshot  Type = "presence_snapshot"
	TypeCollectiblesState Type = "collectibles_state"
	TypeUserConnected     Type = "user_connected"
	TypeUserMoved         Type = "user_moved"
	TypeUserDisconnected  Type = "user_disconnected"
	TypeNicknameChanged   Type = "nickname_changed"
	TypeSessionTerminated Type = "session_terminated"
	TypeError             Type = "error"
)

// Error codes carried by TypeError payloads
const (
	CodeMalformed     = "malformed"
	CodeOutOfRange    = "out_of_range"
	CodeNotFound      = "not_found"
	CodeUnknownDragon = "unknown_dragon"
	CodeInternalError = "internal_error"
)

// Inbound payloads

// PositionUpdate moves the sender's dragon
type PositionUpdate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// DragonSelected picks an avatar. Username is accepted for compatibility and ignored.
type DragonSelected struct {
	DragonID string `json:"dragonId"`
	Username string `json:"username,omitempty"`
}

// ChatMessage is a chat line from a client. Sender and Position are
// client claims and are ignored in favour of the server's view.
type ChatMessage struct {
	Message  string          `json:"message"`
	Sender   string          `json:"sender,omitempty"`
	Position *model.Position `json:"position,omitempty"`
}

// CollectibleCollected claims a pickup
type CollectibleCollected struct {
	ID string `json:"id"`
}

// Outbound payloads

// User is the public view of an account
type User struct {
	ID       model.UserID `json:"id"`
	Username string       `json:"username"`
	Nickname string       `json:"nickname"`
	IsAdmin  bool         `json:"isAdmin"`
}

// Presence is one connected dragon
type Presence struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	UserID       model.UserID       `json:"userId"`
	Nickname     string             `json:"nickname"`
	X            float64            `json:"x"`
	Y            float64            `json:"y"`
	DragonID     string             `json:"dragonId,omitempty"`
}

// Welcome is the first message on every connection
type Welcome struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	User         User               `json:"user"`
	Position     model.Position     `json:"position"`
}

// PresenceSnapshot lists every connected dragon
type PresenceSnapshot struct {
	Entries []Presence `json:"entries"`
}

// Collectible is one pickup as seen by clients
type Collectible struct {
	ID          model.CollectibleID   `json:"id"`
	Kind        model.CollectibleKind `json:"kind"`
	X           float64               `json:"x"`
	Y           float64               `json:"y"`
	Collected   bool                  `json:"collected"`
	CollectedBy model.UserID          `json:"collectedBy,omitempty"`
}

// CollectiblesState lists every pickup
type CollectiblesState struct {
	Collectibles []Collectible `json:"collectibles"`
}

// UserMoved reports a position change. Seq increases per connection.
type UserMoved struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	UserID       model.UserID       `json:"userId"`
	X            float64            `json:"x"`
	Y            float64            `json:"y"`
	Seq          uint64             `json:"seq"`
}

// UserDisconnected reports a connection leaving
type UserDisconnected struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	UserID       model.UserID       `json:"userId"`
	Nickname     string             `json:"nickname"`
}

// AvatarChanged reports a dragon selection
type AvatarChanged struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	UserID       model.UserID       `json:"userId"`
	Nickname     string             `json:"nickname"`
	DragonID     string             `json:"dragonId"`
}

// ChatDelivery is a chat line as delivered to one recipient
type ChatDelivery struct {
	ConnectionID model.ConnectionID `json:"connectionId"`
	UserID       model.UserID       `json:"userId"`
	Sender       string             `json:"sender"`
	Message      string             `json:"message"`
	Position     model.Position     `json:"position"`
	Tier         string             `json:"tier"`
	SentAt       time.Time          `json:"sentAt"`
}

// CollectibleAwarded reports the single winner of a pickup
type CollectibleAwarded struct {
	ID          model.CollectibleID `json:"id"`
	CollectedBy model.UserID        `json:"collectedBy"`
	Nickname    string              `json:"nickname"`
}

// NicknameChanged reports a display name change
type NicknameChanged struct {
	UserID      model.UserID `json:"userId"`
	OldNickname string       `json:"oldNickname"`
	NewNickname string       `json:"newNickname"`
}

// SessionTerminated is sent just before the server closes a connection
type SessionTerminated struct {
	Reason string `json:"reason"`
}

// Error rejects one inbound event
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// UserFrom converts a model user to its wire form
func UserFrom(u *model.User) User {
	return User{ID: u.ID, Username: u.Username, Nickname: u.Nickname, IsAdmin: u.IsAdmin}
}

// PresenceFrom converts a registry entry to its wire form
func PresenceFrom(e model.PresenceEntry) Presence {
	return Presence{
		ConnectionID: e.ConnectionID,
		UserID:       e.UserID,
		Nickname:     e.Nickname,
		X:            e.Position.X,
		Y:            e.Position.Y,
		DragonID:     e.AvatarID,
	}
}

// SnapshotFrom converts registry entries to a snapshot payload
func SnapshotFrom(entries []model.PresenceEntry) PresenceSnapshot {
	out := make([]Presence, 0, len(entries))
	for _, e := range entries {
		out = append(out, PresenceFrom(e))
	}
	return PresenceSnapshot{Entries: out}
}

// CollectibleFrom converts a ledger entry to its wire form
func CollectibleFrom(c model.Collectible) Collectible {
	return Collectible{
		ID:          c.ID,
		Kind:        c.Kind,
		X:           c.Position.X,
		Y:           c.Position.Y,
		Collected:   c.Collected,
		CollectedBy: c.CollectedBy,
	}
}

// CollectiblesFrom converts a ledger snapshot to a state payload
func CollectiblesFrom(items []model.Collectible) CollectiblesState {
	out := make([]Collectible, 0, len(items))
	for _, c := range items {
		out = append(out, CollectibleFrom(c))
	}
	return CollectiblesState{Collectibles: out}
}
