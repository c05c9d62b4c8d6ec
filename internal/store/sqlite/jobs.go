package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

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

	_, err = s.db.ExecContext(ctx, `
INSERT INTO jobs (id, name, status, worker_id, preferred_host, require_host,
	image, command, container_name, config_path, volumes, env,
	container_id, exit_code, error, details, created_at, status_updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, j.ID, j.Name, string(j.Status), j.WorkerID, j.PreferredHost, boolInt(j.RequireHost),
		j.Descriptor.Image, j.Descriptor.Command, j.Descriptor.ContainerName, j.Descriptor.ConfigPath,
		volumes, env,
		j.ContainerID, nullInt64(j.ExitCode), j.Error, j.Details,
		formatTime(j.CreatedAt), formatTime(j.StatusUpdatedAt))
	if err != nil {
		if isConstraintError(err) {
			return store.ErrJobExists
		}
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

func (s *Store) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return j, nil
}

func (s *Store) ListJobs(ctx context.Context) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id`)
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
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(statuses)), ",")
	args := make([]any, len(statuses))
	for i, st := range statuses {
		args[i] = string(st)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status IN (`+placeholders+`) ORDER BY created_at, id`, args...)
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

	res, err := s.db.ExecContext(ctx, `
UPDATE jobs SET name=?, status=?, worker_id=?, preferred_host=?, require_host=?,
	image=?, command=?, container_name=?, config_path=?, volumes=?, env=?,
	container_id=?, exit_code=?, error=?, details=?, status_updated_at=?
WHERE id=? AND status=?
`, j.Name, string(j.Status), j.WorkerID, j.PreferredHost, boolInt(j.RequireHost),
		j.Descriptor.Image, j.Descriptor.Command, j.Descriptor.ContainerName, j.Descriptor.ConfigPath,
		volumes, env,
		j.ContainerID, nullInt64(j.ExitCode), j.Error, j.Details, formatTime(j.StatusUpdatedAt),
		j.ID, string(from))
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n == 1 {
		return nil
	}

	// Guard failed. Distinguish a vanished job from a lost status race.
	if _, err := s.GetJob(ctx, j.ID); errors.Is(err, store.ErrJobNotFound) {
		return store.ErrJobNotFound
	}
	return store.ErrStatusChanged
}

func (s *Store) DeleteJob(ctx context.Context, jobID string) error {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrJobNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM claim_markers WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("delete claim marker: %w", err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j                    job.Job
		status               string
		requireHost          int
		volumesJSON, envJSON string
		exitCode             sql.NullInt64
		createdAt, updatedAt string
	)
	err := row.Scan(&j.ID, &j.Name, &status, &j.WorkerID, &j.PreferredHost, &requireHost,
		&j.Descriptor.Image, &j.Descriptor.Command, &j.Descriptor.ContainerName, &j.Descriptor.ConfigPath,
		&volumesJSON, &envJSON,
		&j.ContainerID, &exitCode, &j.Error, &j.Details, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	j.Status = job.Status(status)
	j.RequireHost = requireHost != 0
	if exitCode.Valid {
		code := exitCode.Int64
		j.ExitCode = &code
	}
	if err := json.Unmarshal([]byte(volumesJSON), &j.Descriptor.Volumes); err != nil {
		return nil, fmt.Errorf("decode volumes: %w", err)
	}
	if err := json.Unmarshal([]byte(envJSON), &j.Descriptor.Env); err != nil {
		return nil, fmt.Errorf("decode env: %w", err)
	}
	if j.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if j.StatusUpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &j, nil
}

func collectJobs(rows *sql.Rows) ([]*job.Job, error) {
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

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
