package bootstrap

import (
	"context"
	"fmt"

	"keystone/config"
	"keystone/domain"
	"keystone/storage"

	"go.uber.org/zap"
)

// OpenDatabase connects to settings.DatabaseURL. Connection failures are
// logged with remediation hints.
func OpenDatabase(ctx context.Context, settings config.Settings, logger *zap.SugaredLogger) (*storage.DB, error) {
	db, err := storage.Open(ctx, settings.DatabaseURL, logger)
	if err != nil {
		if target, perr := storage.ParseURL(settings.DatabaseURL); perr == nil {
			logger.Errorw("Database unavailable",
				"dialect", target.Dialect,
				"error", err,
				"remediation", DatabaseRemediation(err, target))
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// NewMigrationRunner returns a runner loaded with every migration in
// registry.
func NewMigrationRunner(ctx context.Context, db *storage.DB, registry *domain.Registry, logger *zap.SugaredLogger) (*storage.MigrationRunner, error) {
	if registry == nil {
		registry = domain.Default()
	}
	runner, err := storage.NewMigrationRunner(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	if err := runner.Register(registry.Migrations()...); err != nil {
		return nil, fmt.Errorf("invalid domain migrations: %w", err)
	}
	return runner, nil
}

// Migrate applies every pending migration in registry and reports how many
// ran. Checksum drift on applied migrations is logged, not fatal.
func Migrate(ctx context.Context, db *storage.DB, registry *domain.Registry, logger *zap.SugaredLogger) (int, error) {
	runner, err := NewMigrationRunner(ctx, db, registry, logger)
	if err != nil {
		return 0, err
	}

	issues, err := runner.VerifyIntegrity(ctx)
	if err != nil {
		return 0, err
	}
	for _, issue := range issues {
		logger.Warnw("Migration integrity issue", "issue", issue)
	}

	n, err := runner.Run(ctx)
	if err != nil {
		return n, fmt.Errorf("failed to apply migrations: %w", err)
	}
	return n, nil
}
