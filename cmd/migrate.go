package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store/postgres"
)

func migrateCmd() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "PostgreSQL connection string",
			Sources: cli.EnvVars("OPEVA_DATABASE_URL"),
		},
	}

	return &cli.Command{
		Name:  "migrate",
		Usage: "Run PostgreSQL migrations (SQLite applies its schema on open)",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pool, err := migratePool(ctx, cmd)
					if err != nil {
						return err
					}
					defer pool.Close()

					return postgres.Migrate(ctx, pool)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Flags: flags,
				Action: func(ctx context.Context, cmd *cli.Command) error {
					pool, err := migratePool(ctx, cmd)
					if err != nil {
						return err
					}
					defer pool.Close()

					return postgres.MigrateDown(ctx, pool)
				},
			},
		},
	}
}

func migratePool(ctx context.Context, cmd *cli.Command) (*pgxpool.Pool, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if v := cmd.String("database-url"); v != "" {
		cfg.Database.URL = v
	}
	if !cfg.Database.PostgresURL() {
		return nil, fmt.Errorf("migrate needs a postgres:// database URL, got %q", cfg.Database.URL)
	}

	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
