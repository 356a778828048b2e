package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const memoryPath = ":memory:"

func init() {
	// modernc registers as "sqlite", which sqlx does not know by default.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// sqliteDSN builds a modernc DSN. Pragmas are passed per connection so
// every pooled connection gets them, and writes take the lock up front.
func sqliteDSN(path string) string {
	params := url.Values{}
	params.Add("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "busy_timeout(5000)")
	params.Set("_txlock", "immediate")

	if path == memoryPath {
		// Each parse names its own in-memory database, so two handles in one
		// process never share tables.
		params.Set("mode", "memory")
		params.Set("cache", "shared")
		return "file:keystone-" + uuid.NewString() + "?" + params.Encode()
	}
	params.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + params.Encode()
}

func openSQLite(ctx context.Context, target Target, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	if target.Path != memoryPath {
		if dir := filepath.Dir(target.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	conn, err := sqlx.Open("sqlite", target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if target.Path == memoryPath {
		// Connections never expire: the shared in-memory database lives
		// only as long as one connection holds it open.
		conn.SetMaxOpenConns(1)
		conn.SetMaxIdleConns(1)
		conn.SetConnMaxLifetime(0)
	} else {
		conn.SetMaxOpenConns(4)
		conn.SetMaxIdleConns(4)
		conn.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := verifySQLite(ctx, conn, target.Path); err != nil {
		_ = conn.Close()
		return nil, err
	}

	logger.Infow("SQLite database opened", "path", target.Path)
	return conn, nil
}

func verifySQLite(ctx context.Context, conn *sqlx.DB, path string) error {
	if err := ping(ctx, conn); err != nil {
		return fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	var fkEnabled int
	if err := conn.GetContext(ctx, &fkEnabled, "PRAGMA foreign_keys"); err != nil {
		return fmt.Errorf("failed to verify foreign keys: %w", err)
	}
	if fkEnabled != 1 {
		return fmt.Errorf("foreign keys not enabled (got: %d, expected: 1)", fkEnabled)
	}

	// In-memory databases report "memory" instead of "wal".
	var journalMode string
	if err := conn.GetContext(ctx, &journalMode, "PRAGMA journal_mode"); err != nil {
		return fmt.Errorf("failed to query journal mode: %w", err)
	}
	if path != memoryPath && journalMode != "wal" {
		return fmt.Errorf("WAL mode not enabled (got: %s, expected: wal)", journalMode)
	}
	return nil
}
