package cmd

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/server"
)

func serverCmd() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run the orchestrator (HTTP API, agent protocol, staleness monitor)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres:// connection string or SQLite file path",
				Sources: cli.EnvVars("OPEVA_DATABASE_URL"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if v := cmd.String("database-url"); v != "" {
				cfg.Database.URL = v
			}

			return server.Run(ctx, cfg)
		},
	}
}
