package storage

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

const (
	postgresImage         = "postgres:16-alpine"
	postgresPort          = "5432/tcp"
	containerStartTimeout = 90 * time.Second
)

// setupPostgresContainer starts a throwaway Postgres and returns its URL.
// Requires Docker, so it only runs with KEYSTONE_INTEGRATION=1.
func setupPostgresContainer(t *testing.T) string {
	t.Helper()
	if testing.Short() || os.Getenv("KEYSTONE_INTEGRATION") != "1" {
		t.Skip("Skipping integration test (set KEYSTONE_INTEGRATION=1)")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        postgresImage,
			ExposedPorts: []string{postgresPort},
			Env: map[string]string{
				"POSTGRES_USER":     "keystone",
				"POSTGRES_PASSWORD": "keystone",
				"POSTGRES_DB":       "keystone_test",
			},
			// Postgres restarts once after init, so wait for the second line.
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(containerStartTimeout),
		},
		Started: true,
	})
	require.NoError(t, err, "Failed to start Postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Warning: failed to terminate Postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://keystone:keystone@%s:%s/keystone_test?sslmode=disable", host, port.Port())
}

func TestPostgresIntegration_MigrationsAndClassify(t *testing.T) {
	url := setupPostgresContainer(t)
	ctx := context.Background()

	db, err := Open(ctx, url, zap.NewNop().Sugar())
	require.NoError(t, err)
	defer db.Close()
	assert.Equal(t, DialectPostgres, db.Dialect)
	require.NoError(t, db.HealthCheck(ctx))

	runner, err := NewMigrationRunner(ctx, db, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.NoError(t, runner.Register(Migration{
		Version: "1.0.0",
		Name:    "create_accounts",
		Up: func(tx *sqlx.Tx) error {
			_, err := tx.Exec(`CREATE TABLE accounts (id BIGSERIAL PRIMARY KEY, email TEXT NOT NULL UNIQUE)`)
			return err
		},
	}))

	n, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	insert := db.Rebind("INSERT INTO accounts (email) VALUES (?)")
	_, err = db.ExecContext(ctx, insert, "a@example.com")
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, insert, "a@example.com")
	assert.ErrorIs(t, Classify(err), ErrDuplicate)
}
