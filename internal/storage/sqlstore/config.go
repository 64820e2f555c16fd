package sqlstore

import "fmt"

// Dialect selects the SQL backend
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// Config holds SQL record store settings
type Config struct {
	Dialect Dialect
	// DSN is a file path (or ":memory:") for SQLite and a connection URL for Postgres
	DSN string
	// MaxOpenConns is ignored for SQLite, which always uses a single connection
	MaxOpenConns int
}

// DefaultSQLiteConfig returns a config for a local SQLite file
func DefaultSQLiteConfig(path string) Config {
	return Config{Dialect: DialectSQLite, DSN: path}
}

// DefaultPostgresConfig returns a config for a Postgres URL
func DefaultPostgresConfig(url string) Config {
	return Config{Dialect: DialectPostgres, DSN: url, MaxOpenConns: 10}
}

// driverName is the database/sql driver registered for the dialect
func (c Config) driverName() (string, error) {
	switch c.Dialect {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported sql dialect %q", c.Dialect)
	}
}

// gooseDialect is the goose dialect name for the dialect
func (c Config) gooseDialect() string {
	if c.Dialect == DialectPostgres {
		return "pgx"
	}
	return "sqlite3"
}
