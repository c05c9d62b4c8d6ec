package cmd

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/agent"
)

func agentCmd() *cli.Command {
	return &cli.Command{
		Name:  "agent",
		Usage: "Run a worker agent (polls the orchestrator, drives docker)",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server-url",
				Usage:   "Orchestrator base URL",
				Sources: cli.EnvVars("OPEVA_SERVER"),
			},
			&cli.StringFlag{
				Name:    "worker-id",
				Usage:   "Stable worker identity announced to the orchestrator",
				Sources: cli.EnvVars("WORKER_ID"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			if v := cmd.String("server-url"); v != "" {
				cfg.Agent.ServerURL = v
			}
			if v := cmd.String("worker-id"); v != "" {
				cfg.Agent.WorkerID = v
			}

			log.Info().Str("server", cfg.Agent.ServerURL).Msg("starting agent")

			return agent.Run(ctx, cfg)
		},
	}
}
