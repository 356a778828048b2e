package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

func openPostgres(ctx context.Context, target Target, logger *zap.SugaredLogger) (*sqlx.DB, error) {
	conn, err := sqlx.Open("postgres", target.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open Postgres database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetConnMaxIdleTime(5 * time.Minute)

	if err := ping(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping Postgres database: %w", err)
	}

	logger.Infow("Postgres database opened")
	return conn, nil
}
