package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Migration is one forward schema change contributed by a domain.
type Migration struct {
	Version  string               // Dotted version, e.g. "1.0.0"; unique across domains
	Name     string               // Descriptive name, e.g. "create_users"
	Domain   string               // Owning domain
	Up       func(*sqlx.Tx) error // Apply migration
	Checksum string               // Derived from version and name when empty
}

// MigrationRecord is a row in schema_migrations.
type MigrationRecord struct {
	Version   string    `db:"version"`
	Name      string    `db:"name"`
	Checksum  string    `db:"checksum"`
	AppliedAt time.Time `db:"-"`
	Duration  int64     `db:"duration_ms"` // milliseconds

	AppliedAtRaw string `db:"applied_at"`
}

// MigrationRunner applies registered migrations in version order.
type MigrationRunner struct {
	db         *DB
	logger     *zap.SugaredLogger
	migrations []Migration
}

// NewMigrationRunner creates the schema_migrations table if needed.
func NewMigrationRunner(ctx context.Context, db *DB, logger *zap.SugaredLogger) (*MigrationRunner, error) {
	runner := &MigrationRunner{db: db, logger: logger}
	if err := runner.ensureMigrationsTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to create migrations table: %w", err)
	}
	return runner, nil
}

// The DDL sticks to types both SQLite and Postgres accept.
func (r *MigrationRunner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`)
	return err
}

// Register adds migrations. Versions must be unique and parseable.
func (r *MigrationRunner) Register(migrations ...Migration) error {
	seen := make(map[string]string, len(r.migrations))
	for _, m := range r.migrations {
		seen[m.Version] = m.Name
	}

	for _, m := range migrations {
		if m.Up == nil {
			return fmt.Errorf("migration %s (%s) has no Up function", m.Version, m.Name)
		}
		if !validVersion(m.Version) {
			return fmt.Errorf("migration %q has invalid version %q", m.Name, m.Version)
		}
		if existing, ok := seen[m.Version]; ok {
			return fmt.Errorf("migration version %s registered twice (%s, %s)", m.Version, existing, m.Name)
		}
		if m.Checksum == "" {
			m.Checksum = checksum(m)
		}
		seen[m.Version] = m.Name
		r.migrations = append(r.migrations, m)
	}
	return nil
}

// Functions cannot be hashed, so the checksum covers version and name.
func checksum(m Migration) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", m.Version, m.Name)))
	return hex.EncodeToString(hash[:8])
}

// Applied returns every applied migration in version order.
func (r *MigrationRunner) Applied(ctx context.Context) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := r.db.SelectContext(ctx, &records, `
		SELECT version, name, checksum, applied_at, duration_ms
		FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}

	for i := range records {
		if t, err := time.Parse(time.RFC3339Nano, records[i].AppliedAtRaw); err == nil {
			records[i].AppliedAt = t
		}
	}
	sort.Slice(records, func(i, j int) bool {
		return CompareVersions(records[i].Version, records[j].Version) < 0
	})
	return records, nil
}

// Pending returns registered migrations not yet applied, in version order.
func (r *MigrationRunner) Pending(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[string]bool, len(applied))
	for _, rec := range applied {
		appliedSet[rec.Version] = true
	}

	var pending []Migration
	for _, m := range r.migrations {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return CompareVersions(pending[i].Version, pending[j].Version) < 0
	})
	return pending, nil
}

// Run applies all pending migrations and reports how many ran.
func (r *MigrationRunner) Run(ctx context.Context) (int, error) {
	pending, err := r.Pending(ctx)
	if err != nil {
		return 0, err
	}

	if len(pending) == 0 {
		r.logger.Debug("No pending migrations")
		return 0, nil
	}

	r.logger.Infow("Running pending migrations", "count", len(pending))
	for i, m := range pending {
		if err := r.runMigration(ctx, m); err != nil {
			return i, fmt.Errorf("migration %s (%s) failed: %w", m.Version, m.Name, err)
		}
	}

	r.logger.Info("All migrations completed successfully")
	return len(pending), nil
}

// runMigration applies one migration and its bookkeeping row in a single
// transaction.
func (r *MigrationRunner) runMigration(ctx context.Context, m Migration) (err error) {
	r.logger.Infow("Running migration", "version", m.Version, "name", m.Name, "domain", m.Domain)
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			if panicAsErr, ok := p.(error); ok {
				err = fmt.Errorf("migration panicked: %w", panicAsErr)
			} else {
				err = fmt.Errorf("migration panicked: %v", p)
			}
		}
	}()

	err = r.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if err := m.Up(tx); err != nil {
			return fmt.Errorf("migration Up() failed: %w", err)
		}

		_, err := tx.ExecContext(ctx, tx.Rebind(`
			INSERT INTO schema_migrations (version, name, checksum, applied_at, duration_ms)
			VALUES (?, ?, ?, ?, ?)`),
			m.Version, m.Name, m.Checksum, time.Now().UTC().Format(time.RFC3339Nano), time.Since(start).Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to record migration: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	r.logger.Infow("Migration completed", "version", m.Version, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// VerifyIntegrity reports applied migrations whose checksum no longer
// matches the registered definition, and applied versions that are no
// longer registered.
func (r *MigrationRunner) VerifyIntegrity(ctx context.Context) ([]string, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	registered := make(map[string]Migration, len(r.migrations))
	for _, m := range r.migrations {
		registered[m.Version] = m
	}

	var issues []string
	for _, rec := range applied {
		m, ok := registered[rec.Version]
		if !ok {
			issues = append(issues, fmt.Sprintf("migration %s (%s) is applied but not registered", rec.Version, rec.Name))
			continue
		}
		if m.Checksum != rec.Checksum {
			issues = append(issues, fmt.Sprintf("migration %s checksum mismatch: applied=%s registered=%s", rec.Version, rec.Checksum, m.Checksum))
		}
	}
	return issues, nil
}

func validVersion(v string) bool {
	if v == "" {
		return false
	}
	for _, part := range strings.Split(v, ".") {
		if _, err := strconv.Atoi(part); err != nil {
			return false
		}
	}
	return true
}

// CompareVersions compares dotted numeric versions. Missing parts count as
// zero, so "1.0" equals "1.0.0".
func CompareVersions(a, b string) int {
	partsA := strings.Split(a, ".")
	partsB := strings.Split(b, ".")

	maxLen := len(partsA)
	if len(partsB) > maxLen {
		maxLen = len(partsB)
	}

	for i := 0; i < maxLen; i++ {
		var numA, numB int
		if i < len(partsA) {
			numA, _ = strconv.Atoi(partsA[i])
		}
		if i < len(partsB) {
			numB, _ = strconv.Atoi(partsB[i])
		}

		if numA < numB {
			return -1
		}
		if numA > numB {
			return 1
		}
	}
	return 0
}
