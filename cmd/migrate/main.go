// Package main applies the database migrations in db/migrations.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/archon-research/dsc/db/migrator"
	"github.com/archon-research/dsc/internal/adapters/outbound/postgres"
	"github.com/archon-research/dsc/internal/pkg/env"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Missing .env is fine; variables may come from the environment.
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: env.ParseLogLevel(slog.LevelInfo)}))

	if err := run(ctx, logger); err != nil {
		logger.Error("migration failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	dbURL := env.Get("DATABASE_URL", "")
	if dbURL == "" {
		return fmt.Errorf("required environment variable not set: DATABASE_URL")
	}

	poolCfg := postgres.PoolConfigDefaults(dbURL)
	poolCfg.ApplicationName = "dsc-migrate"
	poolCfg.StatementTimeout = 0
	pool, err := postgres.OpenPool(ctx, poolCfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	m := migrator.New(pool, env.Get("MIGRATIONS_DIR", "./db/migrations"), logger)
	if err := m.ApplyAll(ctx); err != nil {
		return err
	}

	logger.Info("all migrations up to date")
	return nil
}
