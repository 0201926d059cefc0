package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/training/internal/backfill"
	"example.com/training/internal/config"
	"example.com/training/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openStore := func(ctx context.Context) (backfill.Store, func(), error) {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		return postgres.NewRepository(pool), pool.Close, nil
	}

	cmd := newRootCmd(cfg, openStore)
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errRecordsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
