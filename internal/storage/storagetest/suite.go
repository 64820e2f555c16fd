// Package storagetest holds the behaviour every record store backend must share.
package storagetest

import (
	"context"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/storage"
)

// Suite runs the shared record store tests against the backend returned by New.
// New is called once per test.
type Suite struct {
	suite.Suite
	New func() storage.Storage

	storage storage.Storage
	ctx     context.Context
}

func (s *Suite) SetupTest() {
	s.storage = s.New()
	s.ctx = context.Background()
}

func (s *Suite) TearDownTest() {
	if s.storage != nil {
		_ = s.storage.Close()
	}
}

func (s *Suite) user(id, username string) *model.User {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return &model.User{
		ID:        model.UserID(id),
		Username:  username,
		Nickname:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// User tests

func (s *Suite) TestSaveAndGetUser() {
	u := s.user("user-1", "alice")
	u.IsAdmin = true
	s.Require().NoError(s.storage.SaveUser(s.ctx, u))

	got, err := s.storage.GetUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal(u.ID, got.ID)
	s.Equal("alice", got.Username)
	s.Equal("alice", got.Nickname)
	s.True(got.IsAdmin)
	s.Nil(got.LastPosition)
	s.True(u.CreatedAt.Equal(got.CreatedAt))
}

func (s *Suite) TestGetUserNotFound() {
	_, err := s.storage.GetUser(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestListUsersSortedByUsername() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-2", "carol")))
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "bob")))

	users, err := s.storage.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 2)
	s.Equal("bob", users[0].Username)
	s.Equal("carol", users[1].Username)
}

func (s *Suite) TestUpdateNickname() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))

	s.Require().NoError(s.storage.UpdateNickname(s.ctx, "user-1", "Queen of Embers"))

	got, err := s.storage.GetUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Equal("Queen of Embers", got.Nickname)
	s.Equal("alice", got.Username)
}

func (s *Suite) TestUpdateNicknameUnknownUser() {
	err := s.storage.UpdateNickname(s.ctx, "nobody", "whoever")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestUpdateLastPosition() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))

	s.Require().NoError(s.storage.UpdateLastPosition(s.ctx, "user-1", model.Position{X: 120.5, Y: 64}))
	s.Require().NoError(s.storage.UpdateLastPosition(s.ctx, "user-1", model.Position{X: 130, Y: 70}))

	got, err := s.storage.GetUser(s.ctx, "user-1")
	s.Require().NoError(err)
	s.Require().NotNil(got.LastPosition)
	s.Equal(model.Position{X: 130, Y: 70}, *got.LastPosition)
}

func (s *Suite) TestUpdateLastPositionUnknownUser() {
	err := s.storage.UpdateLastPosition(s.ctx, "nobody", model.Position{X: 1, Y: 1})
	s.ErrorIs(err, model.ErrUserNotFound)
}

// Credential tests

func (s *Suite) TestSaveAndGetCredentials() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))
	creds := &model.Credentials{
		UserID:       "user-1",
		Username:     "alice",
		PasswordHash: "hash123",
		CreatedAt:    time.Now(),
		UpdatedAt:    time.Now(),
	}
	s.Require().NoError(s.storage.SaveCredentials(s.ctx, creds))

	got, err := s.storage.GetCredentialsByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.UserID("user-1"), got.UserID)
	s.Equal("hash123", got.PasswordHash)
}

func (s *Suite) TestGetCredentialsUnknownUsername() {
	_, err := s.storage.GetCredentialsByUsername(s.ctx, "nobody")
	s.ErrorIs(err, model.ErrUserNotFound)
}

func (s *Suite) TestSaveCredentialsRejectsTakenUsername() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-2", "alice2")))
	s.Require().NoError(s.storage.SaveCredentials(s.ctx, &model.Credentials{UserID: "user-1", Username: "alice", PasswordHash: "a"}))

	err := s.storage.SaveCredentials(s.ctx, &model.Credentials{UserID: "user-2", Username: "alice", PasswordHash: "b"})
	s.ErrorIs(err, model.ErrUsernameExists)

	got, err := s.storage.GetCredentialsByUsername(s.ctx, "alice")
	s.Require().NoError(err)
	s.Equal(model.UserID("user-1"), got.UserID)
}

func (s *Suite) TestDeleteUserReleasesUsername() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))
	s.Require().NoError(s.storage.SaveCredentials(s.ctx, &model.Credentials{UserID: "user-1", Username: "alice", PasswordHash: "a"}))

	s.Require().NoError(s.storage.DeleteUser(s.ctx, "user-1"))

	_, err := s.storage.GetUser(s.ctx, "user-1")
	s.ErrorIs(err, model.ErrUserNotFound)
	_, err = s.storage.GetCredentialsByUsername(s.ctx, "alice")
	s.ErrorIs(err, model.ErrUserNotFound)
	users, err := s.storage.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Empty(users)

	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-2", "alice")))
	s.Require().NoError(s.storage.SaveCredentials(s.ctx, &model.Credentials{UserID: "user-2", Username: "alice", PasswordHash: "b"}))

	s.NoError(s.storage.DeleteUser(s.ctx, "user-1"))
}

func (s *Suite) TestDeleteUserWithoutCredentials() {
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-1", "alice")))
	s.Require().NoError(s.storage.SaveUser(s.ctx, s.user("user-2", "bob")))
	s.Require().NoError(s.storage.SaveCredentials(s.ctx, &model.Credentials{UserID: "user-2", Username: "bob", PasswordHash: "b"}))

	s.Require().NoError(s.storage.DeleteUser(s.ctx, "user-1"))

	users, err := s.storage.ListUsers(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(users, 1)
	s.Equal("bob", users[0].Username)
	_, err = s.storage.GetCredentialsByUsername(s.ctx, "bob")
	s.NoError(err)
}
