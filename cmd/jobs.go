package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/database"
)

func jobsCmd() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "List jobs straight from the store",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "postgres:// connection string or SQLite file path",
				Sources: cli.EnvVars("OPEVA_DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:  "status",
				Usage: "Only show jobs in this status",
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

			st, err := database.Open(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			var jobs []*job.Job
			if s := cmd.String("status"); s != "" {
				jobs, err = st.ListJobsInStatus(ctx, job.Status(s))
			} else {
				jobs, err = st.ListJobs(ctx)
			}
			if err != nil {
				return fmt.Errorf("list jobs: %w", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "JOB ID\tNAME\tSTATUS\tWORKER\tSUBMITTED\tUPDATED")
			for _, j := range jobs {
				worker := j.WorkerID
				if worker == "" {
					worker = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
					j.ID, j.Name, j.Status, worker,
					humanize.Time(j.CreatedAt), humanize.Time(j.StatusUpdatedAt))
			}
			return w.Flush()
		},
	}
}
