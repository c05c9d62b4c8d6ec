package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

const jobColumns = `id, name, status, worker_id, preferred_host, require_host,
	image, command, container_name, config_path, volumes, env,
	container_id, exit_code, error, details, created_at, status_updated_at`

func (s *Store) CreateJob(ctx context.Context, j *job.Job) error {
	volumes, env, err := marshalDescriptor(j)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
INSERT INTO jobs (id, name, status, worker_id, preferred_host, require_host,
	image, command, container_name, config_path, volumes, env,
	container_id, exit_code, error, details, created_at, status_updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
`, j.ID, j.Name, string(j.Status), j.WorkerID, j.PreferredHost, j.RequireHost,
		j.Descriptor.Image, j.Descriptor.Command, j.Descriptor.ContainerName, j.Descriptor.ConfigPath,
		volumes, env,
		j.ContainerID, nullInt64(j.ExitCode), j.Error, j.Details, j.CreatedAt, j.StatusUpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) ListJobsInStatus(ctx context.Context, statuses ...job.Status) ([]*job.Job, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, st := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = string(st)
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+strings.Join(placeholders, ",")+`) ORDER BY created_at, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs in status: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

func (s *Store) UpdateJob(ctx context.Context, j *job.Job, from job.Status) error {
	volumes, env, err := marshalDescriptor(j)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
UPDATE jobs SET name=$1, status=$2, worker_id=$3, preferred_host=$4, require_host=$5,
	image=$6, command=$7, container_name=$8, config_path=$9, volumes=$10, env=$11,
	container_id=$12, exit_code=$13, error=$14, details=$15, status_updated_at=$16
WHERE id=$17 AND status=$18
`, j.Name, string(j.Status), j.WorkerID, j.PreferredHost, j.RequireHost,
		j.Descriptor.Image, j.Descriptor.Command, j.Descriptor.ContainerName, j.Descriptor.ConfigPath,
		volumes, env,
		j.ContainerID, nullInt64(j.ExitCode), j.Error, j.Details, j.StatusUpdatedAt,
		j.ID, string(from))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	if _, err := s.GetJob(ctx, j.ID); errors.Is(err, store.ErrJobNotFound) {
		return store.ErrJobNotFound
	}
	return store.ErrStatusChanged
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM jobs WHERE id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrJobNotFound
	}
	if _, err := tx.Exec(ctx, `DELETE FROM queue_entries WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM claim_markers WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete claim marker: %w", err)
	}
	return tx.Commit(ctx)
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j                    job.Job
		status               string
		volumesJSON, envJSON []byte
		exitCode             sql.NullInt64
	)
	err := row.Scan(&j.ID, &j.Name, &status, &j.WorkerID, &j.PreferredHost, &j.RequireHost,
		&j.Descriptor.Image, &j.Descriptor.Command, &j.Descriptor.ContainerName, &j.Descriptor.ConfigPath,
		&volumesJSON, &envJSON,
		&j.ContainerID, &exitCode, &j.Error, &j.Details, &j.CreatedAt, &j.StatusUpdatedAt)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(status)
	if exitCode.Valid {
		code := exitCode.Int64
		j.ExitCode = &code
	}
	if err := json.Unmarshal(volumesJSON, &j.Descriptor.Volumes); err != nil {
		return nil, fmt.Errorf("decode volumes: %w", err)
	}
	if err := json.Unmarshal(envJSON, &j.Descriptor.Env); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	return &j, nil
}

func collectJobs(rows pgx.Rows) ([]*job.Job, error) {
	var jobs []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

func marshalDescriptor(j *job.Job) (volumes, env string, err error) {
	vols := j.Descriptor.Volumes
	if vols == nil {
		vols = []job.VolumeMount{}
	}
	vb, err := json.Marshal(vols)
	if err != nil {
		return "", "", fmt.Errorf("encode volumes: %w", err)
	}
	envMap := j.Descriptor.Env
	if envMap == nil {
		envMap = map[string]string{}
	}
	eb, err := json.Marshal(envMap)
	if err != nil {
		return "", "", fmt.Errorf("encode env: %w", err)
	}
	return string(vb), string(eb), nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
