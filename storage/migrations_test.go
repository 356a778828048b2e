package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func createTable(name string) func(*sqlx.Tx) error {
	return func(tx *sqlx.Tx) error {
		_, err := tx.Exec("CREATE TABLE " + name + " (id INTEGER PRIMARY KEY)")
		return err
	}
}

func newRunner(t *testing.T, db *DB) *MigrationRunner {
	t.Helper()
	runner, err := NewMigrationRunner(context.Background(), db, zap.NewNop().Sugar())
	require.NoError(t, err)
	return runner
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, db.Get(&n, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name))
	return n == 1
}

func TestMigrationRunner_RunIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := newRunner(t, db)

	require.NoError(t, runner.Register(
		Migration{Version: "1.0.0", Name: "create_a", Domain: "alpha", Up: createTable("a")},
		Migration{Version: "1.1.0", Name: "create_b", Domain: "alpha", Up: createTable("b")},
	))

	n, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, tableExists(t, db, "a"))
	assert.True(t, tableExists(t, db, "b"))

	n, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	// A fresh runner over the same database sees the recorded history.
	again := newRunner(t, db)
	require.NoError(t, again.Register(
		Migration{Version: "1.0.0", Name: "create_a", Up: createTable("a")},
		Migration{Version: "1.1.0", Name: "create_b", Up: createTable("b")},
	))
	pending, err := again.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestMigrationRunner_PendingAndAppliedOrder(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := newRunner(t, db)

	// Registered out of order; "1.10.0" must sort after "1.2.0".
	require.NoError(t, runner.Register(
		Migration{Version: "1.10.0", Name: "third", Up: createTable("t3")},
		Migration{Version: "1.0.0", Name: "first", Up: createTable("t1")},
		Migration{Version: "1.2.0", Name: "second", Up: createTable("t2")},
	))

	pending, err := runner.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.Equal(t, []string{"1.0.0", "1.2.0", "1.10.0"}, []string{pending[0].Version, pending[1].Version, pending[2].Version})

	_, err = runner.Run(ctx)
	require.NoError(t, err)

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 3)
	assert.Equal(t, "first", applied[0].Name)
	assert.Equal(t, "third", applied[2].Name)
	for _, rec := range applied {
		assert.False(t, rec.AppliedAt.IsZero(), "applied_at should parse for %s", rec.Version)
		assert.NotEmpty(t, rec.Checksum)
	}
}

func TestMigrationRunner_FailedMigrationRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	runner := newRunner(t, db)

	boom := errors.New("boom")
	require.NoError(t, runner.Register(
		Migration{Version: "1.0.0", Name: "ok", Up: createTable("ok")},
		Migration{Version: "2.0.0", Name: "broken", Up: func(tx *sqlx.Tx) error {
			if err := createTable("half")(tx); err != nil {
				return err
			}
			return boom
		}},
	))

	n, err := runner.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
	assert.Contains(t, err.Error(), "2.0.0")

	assert.True(t, tableExists(t, db, "ok"))
	assert.False(t, tableExists(t, db, "half"))

	applied, err := runner.Applied(ctx)
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "1.0.0", applied[0].Version)
}

func TestMigrationRunner_PanicBecomesError(t *testing.T) {
	db := openTestDB(t)
	runner := newRunner(t, db)

	require.NoError(t, runner.Register(Migration{Version: "1.0.0", Name: "panics", Up: func(*sqlx.Tx) error {
		panic("nil map write")
	}}))

	var err error
	assert.NotPanics(t, func() {
		_, err = runner.Run(context.Background())
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration panicked")

	applied, err := runner.Applied(context.Background())
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestMigrationRunner_RegisterRejectsInvalid(t *testing.T) {
	db := openTestDB(t)

	tests := []struct {
		name       string
		migrations []Migration
		wantErr    string
	}{
		{
			name:       "missing up",
			migrations: []Migration{{Version: "1.0.0", Name: "noop"}},
			wantErr:    "has no Up function",
		},
		{
			name:       "invalid version",
			migrations: []Migration{{Version: "1.x", Name: "bad", Up: createTable("x")}},
			wantErr:    "invalid version",
		},
		{
			name:       "empty version",
			migrations: []Migration{{Name: "bad", Up: createTable("x")}},
			wantErr:    "invalid version",
		},
		{
			name: "duplicate version",
			migrations: []Migration{
				{Version: "1.0.0", Name: "one", Up: createTable("one")},
				{Version: "1.0.0", Name: "two", Up: createTable("two")},
			},
			wantErr: "registered twice",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := newRunner(t, db)
			err := runner.Register(tt.migrations...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMigrationRunner_VerifyIntegrity(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	first := newRunner(t, db)
	require.NoError(t, first.Register(
		Migration{Version: "1.0.0", Name: "create_users", Up: createTable("users")},
		Migration{Version: "1.1.0", Name: "create_orders", Up: createTable("orders")},
	))
	_, err := first.Run(ctx)
	require.NoError(t, err)

	issues, err := first.VerifyIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, issues)

	// Renamed migration and a dropped registration.
	drifted := newRunner(t, db)
	require.NoError(t, drifted.Register(
		Migration{Version: "1.0.0", Name: "create_accounts", Up: createTable("users")},
	))
	issues, err = drifted.VerifyIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Contains(t, issues[0], "checksum mismatch")
	assert.Contains(t, issues[1], "not registered")
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b string
		want int
	}{
		{"1.0.0", "1.0.0", 0},
		{"1.0", "1.0.0", 0},
		{"1.0.0", "1.0.1", -1},
		{"1.2.0", "1.10.0", -1},
		{"2.0.0", "1.99.99", 1},
		{"1.0.0.1", "1.0.0", 1},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CompareVersions(tt.a, tt.b), "CompareVersions(%q, %q)", tt.a, tt.b)
	}
}
