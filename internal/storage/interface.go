package storage

import (
	"context"

	"github.com/mcoot/dragonrealm/internal/model"
)

// Storage is the record store for durable per-user state. Live world state
// (presence, collectibles, sessions) never goes through it.
type Storage interface {
	// User operations
	SaveUser(ctx context.Context, user *model.User) error
	GetUser(ctx context.Context, id model.UserID) (*model.User, error)
	ListUsers(ctx context.Context) ([]*model.User, error)
	UpdateNickname(ctx context.Context, id model.UserID, nickname string) error
	UpdateLastPosition(ctx context.Context, id model.UserID, pos model.Position) error
	// DeleteUser removes a user and its credentials. Unknown ids are ignored.
	DeleteUser(ctx context.Context, id model.UserID) error

	// Credential operations
	SaveCredentials(ctx context.Context, creds *model.Credentials) error
	GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error)

	Close() error
}
