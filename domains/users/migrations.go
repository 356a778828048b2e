package users

import (
	"keystone/storage"

	"github.com/jmoiron/sqlx"
)

// Migrations returns the users schema history.
func Migrations() []storage.Migration {
	return []storage.Migration{
		{
			Version: "1.0.0",
			Name:    "create_users",
			Up: func(tx *sqlx.Tx) error {
				statements := []string{
					`CREATE TABLE IF NOT EXISTS users (
						id TEXT PRIMARY KEY,
						email VARCHAR(255) NOT NULL UNIQUE,
						is_active BOOLEAN NOT NULL DEFAULT TRUE,
						created_at TEXT NOT NULL,
						updated_at TEXT NOT NULL
					)`,
					`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users (created_at)`,
				}
				for _, stmt := range statements {
					if _, err := tx.Exec(stmt); err != nil {
						return err
					}
				}
				return nil
			},
		},
	}
}
