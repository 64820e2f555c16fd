// Package sqlstore is a database/sql record store for SQLite (modernc) and
// Postgres (pgx), with schema managed by goose migrations.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/mcoot/dragonrealm/internal/model"
	"github.com/mcoot/dragonrealm/internal/storage"
	"github.com/mcoot/dragonrealm/internal/storage/sqlstore/migrations"
)

// goose keeps its base FS and dialect in package globals
var gooseMu sync.Mutex

// Storage is a SQL-backed implementation of the storage interface
type Storage struct {
	db      *sql.DB
	dialect Dialect
}

// Ensure Storage implements the interface
var _ storage.Storage = (*Storage)(nil)

// Open connects to the database and applies pending migrations
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Storage, error) {
	driver, err := cfg.driverName()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.Dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := initPragmas(ctx, db); err != nil {
			_ = db.Close()
			return nil, err
		}
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql ping: %w", err)
	}

	if err := runMigrations(ctx, db, cfg.gooseDialect(), logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sql migrations: %w", err)
	}

	return &Storage{db: db, dialect: cfg.Dialect}, nil
}

func initPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func runMigrations(ctx context.Context, db *sql.DB, dialect string, logger *slog.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	goose.SetLogger(gooseLogger{logger: logger})
	if err := goose.SetDialect(dialect); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

// gooseLogger routes goose output through slog
type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrations"))
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)), slog.String("component", "migrations"))
}

// Close closes the database handle
func (s *Storage) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for Postgres
func (s *Storage) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// User operations

const userColumns = "id, username, nickname, is_admin, has_position, last_x, last_y, created_at, updated_at"

func (s *Storage) SaveUser(ctx context.Context, user *model.User) error {
	var x, y float64
	hasPosition := user.LastPosition != nil
	if hasPosition {
		x, y = user.LastPosition.X, user.LastPosition.Y
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT id FROM users WHERE username = ?`), user.Username).Scan(&owner)
	switch {
	case err == nil && model.UserID(owner) != user.ID:
		return model.ErrUsernameExists
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			username = excluded.username,
			nickname = excluded.nickname,
			is_admin = excluded.is_admin,
			has_position = excluded.has_position,
			last_x = excluded.last_x,
			last_y = excluded.last_y,
			updated_at = excluded.updated_at`),
		string(user.ID), user.Username, user.Nickname, user.IsAdmin, hasPosition, x, y,
		toMillis(user.CreatedAt), toMillis(user.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) DeleteUser(ctx context.Context, id model.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM credentials WHERE user_id = ?`), string(id)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = ?`), string(id)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetUser(ctx context.Context, id model.UserID) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), string(id))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	return user, err
}

func (s *Storage) ListUsers(ctx context.Context) ([]*model.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	users := []*model.User{}
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Storage) UpdateNickname(ctx context.Context, id model.UserID, nickname string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET nickname = ?, updated_at = ? WHERE id = ?`),
		nickname, toMillis(time.Now()), string(id))
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

func (s *Storage) UpdateLastPosition(ctx context.Context, id model.UserID, pos model.Position) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`UPDATE users SET has_position = ?, last_x = ?, last_y = ?, updated_at = ? WHERE id = ?`),
		true, pos.X, pos.Y, toMillis(time.Now()), string(id))
	if err != nil {
		return err
	}
	return requireOneRow(res)
}

// Credential operations

func (s *Storage) SaveCredentials(ctx context.Context, creds *model.Credentials) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var owner string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT user_id FROM credentials WHERE username = ?`), creds.Username).Scan(&owner)
	switch {
	case err == nil && model.UserID(owner) != creds.UserID:
		return model.ErrUsernameExists
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return err
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO credentials (user_id, username, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			username = excluded.username,
			password_hash = excluded.password_hash,
			updated_at = excluded.updated_at`),
		string(creds.UserID), creds.Username, creds.PasswordHash,
		toMillis(creds.CreatedAt), toMillis(creds.UpdatedAt),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetCredentialsByUsername(ctx context.Context, username string) (*model.Credentials, error) {
	var (
		creds              model.Credentials
		userID             string
		createdAt, updated int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT user_id, username, password_hash, created_at, updated_at
		FROM credentials WHERE username = ?`), username).
		Scan(&userID, &creds.Username, &creds.PasswordHash, &createdAt, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	creds.UserID = model.UserID(userID)
	creds.CreatedAt = fromMillis(createdAt)
	creds.UpdatedAt = fromMillis(updated)
	return &creds, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var (
		user               model.User
		id                 string
		hasPosition        bool
		x, y               float64
		createdAt, updated int64
	)
	if err := row.Scan(&id, &user.Username, &user.Nickname, &user.IsAdmin, &hasPosition, &x, &y, &createdAt, &updated); err != nil {
		return nil, err
	}
	user.ID = model.UserID(id)
	if hasPosition {
		user.LastPosition = &model.Position{X: x, Y: y}
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updated)
	return &user, nil
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
