package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/storage"
	"github.com/mcoot/dragonrealm/internal/storage/storagetest"
)

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{New: func() storage.Storage { return New() }})
}

func TestReturnedUsersAreCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	pos := model.Position{X: 1, Y: 2}
	require.NoError(t, s.SaveUser(ctx, &model.User{ID: "user-1", Username: "alice", Nickname: "alice", LastPosition: &pos}))

	got, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	got.Nickname = "mallory"
	got.LastPosition.X = 99

	again, err := s.GetUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Nickname)
	assert.Equal(t, 1.0, again.LastPosition.X)
}
