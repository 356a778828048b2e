// Package storage opens the application database and applies schema
// migrations contributed by domains.
package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"keystone/config"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Dialect identifies the SQL flavour behind a DB.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

const pingTimeout = 5 * time.Second

// DB wraps the connection pool with its dialect.
type DB struct {
	*sqlx.DB
	Dialect Dialect
	Logger  *zap.SugaredLogger

	closed bool
}

// Target is a parsed DATABASE_URL.
type Target struct {
	Dialect Dialect
	DSN     string
	// Path is the SQLite file path or ":memory:". Empty for Postgres.
	Path string
}

// ParseURL parses a DATABASE_URL. Driver suffixes such as
// "sqlite+aiosqlite" or "postgresql+asyncpg" are accepted and ignored.
//
// SQLite URLs have an empty authority, so "sqlite:///app.db" is relative
// and "sqlite:////var/lib/app.db" is absolute.
func ParseURL(raw string) (Target, error) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(raw), "://")
	if !ok || rest == "" {
		return Target{}, config.NewError("DATABASE_URL", "must look like scheme://location")
	}
	base, _, _ := strings.Cut(strings.ToLower(scheme), "+")

	switch base {
	case "sqlite":
		path := strings.TrimPrefix(rest, "/")
		if path == "" {
			return Target{}, config.NewError("DATABASE_URL", "has an empty sqlite path")
		}
		return Target{Dialect: DialectSQLite, Path: path, DSN: sqliteDSN(path)}, nil
	case "postgres", "postgresql":
		return Target{Dialect: DialectPostgres, DSN: "postgres://" + rest}, nil
	}
	return Target{}, config.NewError("DATABASE_URL", fmt.Sprintf("has unsupported scheme %q", scheme))
}

// ResolveURL rewrites a relative SQLite path in raw against baseDir.
// In-memory, absolute, Postgres and unparseable URLs are returned as is.
func ResolveURL(raw, baseDir string) string {
	target, err := ParseURL(raw)
	if err != nil || target.Dialect != DialectSQLite || target.Path == memoryPath {
		return raw
	}
	if filepath.IsAbs(target.Path) || baseDir == "" || baseDir == "." {
		return raw
	}
	return "sqlite:///" + filepath.Join(baseDir, target.Path)
}

// Open connects to the database named by databaseURL and verifies the
// connection.
func Open(ctx context.Context, databaseURL string, logger *zap.SugaredLogger) (*DB, error) {
	target, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	var conn *sqlx.DB
	switch target.Dialect {
	case DialectSQLite:
		conn, err = openSQLite(ctx, target, logger)
	case DialectPostgres:
		conn, err = openPostgres(ctx, target, logger)
	}
	if err != nil {
		return nil, err
	}

	return &DB{DB: conn, Dialect: target.Dialect, Logger: logger}, nil
}

func ping(ctx context.Context, conn *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return conn.PingContext(ctx)
}

// WithTransaction runs fn inside a transaction. The transaction is rolled
// back when fn returns an error or panics, and committed otherwise.
func (db *DB) WithTransaction(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("failed to rollback transaction (original error: %w, rollback error: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// HealthCheck verifies the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	return ping(ctx, db.DB)
}

// Close releases the pool. Closing twice is a no-op.
func (db *DB) Close() error {
	if db.closed {
		return nil
	}
	db.closed = true
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("failed to close %s database: %w", db.Dialect, err)
	}
	return nil
}
