// README: goose migrations over the embedded SQL files, run through the pgx database/sql driver.
package infra

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"

	"freightquote/migrations"
)

func prepareGoose(logger *zap.Logger) error {
	goose.SetBaseFS(migrations.FS)
	goose.SetLogger(NewPrintfAdapter(logger))
	return goose.SetDialect("postgres")
}

// MigrateUp applies every pending migration.
func MigrateUp(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	const operation = "infra.MigrateUp"
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return withGoose(logger, operation, func() error { return goose.UpContext(ctx, db, ".") })
}

// MigrateDown rolls back the most recent migration.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	const operation = "infra.MigrateDown"
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return withGoose(logger, operation, func() error { return goose.DownContext(ctx, db, ".") })
}

// MigrateStatus logs the applied state of each migration.
func MigrateStatus(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	const operation = "infra.MigrateStatus"
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	return withGoose(logger, operation, func() error { return goose.StatusContext(ctx, db, ".") })
}

func withGoose(logger *zap.Logger, operation string, run func() error) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := prepareGoose(logger); err != nil {
		return fmt.Errorf("%s: set dialect: %w", operation, err)
	}
	if err := run(); err != nil {
		return fmt.Errorf("%s: %w", operation, err)
	}
	return nil
}
