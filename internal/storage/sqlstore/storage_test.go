package sqlstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/storage"
	"github.com/mcoot/dragonrealm/internal/storage/storagetest"
	"github.com/mcoot/dragonrealm/internal/testutil"
)

func openTemp(t *testing.T) *Storage {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := Open(context.Background(), DefaultSQLiteConfig(path), testutil.NopLogger())
	require.NoError(t, err)
	return s
}

func TestStorageSuite(t *testing.T) {
	suite.Run(t, &storagetest.Suite{New: func() storage.Storage { return openTemp(t) }})
}

func TestMigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "records.db")

	first, err := Open(ctx, DefaultSQLiteConfig(path), testutil.NopLogger())
	require.NoError(t, err)
	require.NoError(t, first.SaveUser(ctx, &model.User{ID: "u1", Username: "alice", Nickname: "alice"}))
	require.NoError(t, first.Close())

	second, err := Open(ctx, DefaultSQLiteConfig(path), testutil.NopLogger())
	require.NoError(t, err)
	defer func() { _ = second.Close() }()

	got, err := second.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestRebind(t *testing.T) {
	pg := &Storage{dialect: DialectPostgres}
	lite := &Storage{dialect: DialectSQLite}

	q := "UPDATE users SET nickname = ? WHERE id = ?"
	assert.Equal(t, "UPDATE users SET nickname = $1 WHERE id = $2", pg.rebind(q))
	assert.Equal(t, q, lite.rebind(q))
}

func TestUnknownDialect(t *testing.T) {
	_, err := Open(context.Background(), Config{Dialect: "oracle", DSN: "x"}, testutil.NopLogger())
	assert.Error(t, err)
}

func TestSaveUserRejectsTakenUsername(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	defer func() { _ = s.Close() }()

	require.NoError(t, s.SaveUser(ctx, &model.User{ID: "u1", Username: "alice", Nickname: "alice"}))

	err := s.SaveUser(ctx, &model.User{ID: "u2", Username: "alice", Nickname: "other"})
	assert.ErrorIs(t, err, model.ErrUsernameExists)

	require.NoError(t, s.SaveUser(ctx, &model.User{ID: "u1", Username: "alice", Nickname: "renamed"}))
	got, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Nickname)
}
