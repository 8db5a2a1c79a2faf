// README: Migration CLI: applies, rolls back or reports the embedded goose migrations.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"freightquote/internal/config"
	"freightquote/internal/infra"
)

func main() {
	command := "up"
	if len(os.Args) > 1 {
		command = os.Args[1]
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if cfg.DB.DSN == "" {
		log.Fatal("QUOTE_DB_DSN is required")
	}
	logger, err := infra.NewLogger()
	if err != nil {
		log.Fatalf("logger init: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDB(ctx, cfg.DB.DSN, cfg.DB.ConnectWait, logger)
	if err != nil {
		logger.Fatal("database init failed", zap.Error(err))
	}
	defer pool.Close()

	switch command {
	case "up":
		err = infra.MigrateUp(ctx, pool, logger)
	case "down":
		err = infra.MigrateDown(ctx, pool, logger)
	case "status":
		err = infra.MigrateStatus(ctx, pool, logger)
	default:
		err = fmt.Errorf("unknown command %q (want up, down or status)", command)
	}
	if err != nil {
		logger.Fatal("migration failed", zap.String("command", command), zap.Error(err))
	}
}
