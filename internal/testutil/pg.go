// README: Postgres helpers for DB-backed tests; they skip unless QUOTE_TEST_DSN is set.
package testutil

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"freightquote/internal/infra"
)

const dsnEnv = "QUOTE_TEST_DSN"

var (
	migrateOnce sync.Once
	migrateErr  error
)

// PG connects to the test database, applies migrations once per process and
// truncates tables before returning.
func PG(t *testing.T, tables ...string) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skip(dsnEnv + " not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	migrateOnce.Do(func() {
		migrateErr = infra.MigrateUp(ctx, db, zaptest.NewLogger(t))
	})
	if migrateErr != nil {
		t.Fatalf("apply migrations: %v", migrateErr)
	}

	if len(tables) > 0 {
		if _, err := db.Exec(ctx, "TRUNCATE TABLE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE"); err != nil {
			t.Fatalf("truncate %v: %v", tables, err)
		}
	}
	return db
}
