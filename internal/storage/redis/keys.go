package redis

import (
	"fmt"

	"github.com/mcoot/dragonrealm/internal/model"
)

// Key prefix for all record store data
const keyPrefix = "drealm"

// userKey returns the Redis key for a User
func userKey(id model.UserID) string {
	return fmt.Sprintf("%s:user:%s", keyPrefix, id)
}

// credentialsKey returns the Redis key for a user's Credentials
func credentialsKey(id model.UserID) string {
	return fmt.Sprintf("%s:credentials:%s", keyPrefix, id)
}

// usernameIndexKey returns the Redis key for the username -> user_id index
func usernameIndexKey(username string) string {
	return fmt.Sprintf("%s:idx:username:%s", keyPrefix, username)
}

// usersIndexKey returns the Redis key for the SET of all user ids
func usersIndexKey() string {
	return fmt.Sprintf("%s:idx:users", keyPrefix)
}
