package cmd

import (
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/config"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "opeva",
		Version: version,
		Usage:   "Simulation job orchestration backend for the OPEVA platform",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("OPEVA_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (trace, debug, info, warn, error)",
				Sources: cli.EnvVars("OPEVA_LOGGING_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			serverCmd(),
			agentCmd(),
			migrateCmd(),
			jobsCmd(),
		},
	}
}

// loadConfig resolves the effective config for a subcommand: defaults,
// TOML file, env overlay, then the global log-level flag on top.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cmd.IsSet("log-level") {
		cfg.Logging.Level = cmd.String("log-level")
	}
	return cfg, nil
}
