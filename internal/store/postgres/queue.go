package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

func (s *Store) Enqueue(ctx context.Context, j *job.Job, from job.Status) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
UPDATE jobs SET status=$1, worker_id='', preferred_host=$2, require_host=$3, status_updated_at=$4
WHERE id=$5 AND status=$6
`, string(job.StatusQueued), j.PreferredHost, j.RequireHost, j.StatusUpdatedAt, j.ID, string(from))
	if err != nil {
		return fmt.Errorf("enqueue status update: %w", err)
	}
	if tag.RowsAffected() != 1 {
		if _, err := s.GetJob(ctx, j.ID); errors.Is(err, store.ErrJobNotFound) {
			return store.ErrJobNotFound
		}
		return store.ErrStatusChanged
	}

	_, err = tx.Exec(ctx, `
INSERT INTO queue_entries (job_id, preferred_host, require_host, enqueued_at)
VALUES ($1, $2, $3, $4)
`, j.ID, j.PreferredHost, j.RequireHost, j.StatusUpdatedAt)
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	j.Status = job.StatusQueued
	j.WorkerID = ""
	return nil
}

func (s *Store) QueueEntries(ctx context.Context) ([]job.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
SELECT seq, job_id, preferred_host, require_host, enqueued_at
FROM queue_entries
ORDER BY enqueued_at, seq
`)
	if err != nil {
		return nil, fmt.Errorf("list queue entries: %w", err)
	}
	defer rows.Close()

	var entries []job.QueueEntry
	for rows.Next() {
		var e job.QueueEntry
		if err := rows.Scan(&e.Seq, &e.JobID, &e.PreferredHost, &e.RequireHost, &e.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) RemoveQueueEntry(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM queue_entries WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("remove queue entry: %w", err)
	}
	return nil
}

// Claim is the dispatch CAS. The marker insert arbitrates the race: its
// primary key admits one writer per job, everyone else rolls back leaving
// the queue entry in place.
func (s *Store) Claim(ctx context.Context, jobID, workerID string, now time.Time) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
INSERT INTO claim_markers (job_id, worker_id, claimed_at) VALUES ($1, $2, $3)
`, jobID, workerID, now)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrClaimConflict
		}
		return fmt.Errorf("insert claim marker: %w", err)
	}

	tag, err := tx.Exec(ctx, `DELETE FROM queue_entries WHERE job_id = $1`, jobID)
	if err != nil {
		return fmt.Errorf("claim queue entry: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return store.ErrClaimConflict
	}

	tag, err = tx.Exec(ctx, `
UPDATE jobs SET status=$1, worker_id=$2, status_updated_at=$3 WHERE id=$4 AND status=$5
`, string(job.StatusDispatched), workerID, now, jobID, string(job.StatusQueued))
	if err != nil {
		return fmt.Errorf("claim status update: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return store.ErrClaimConflict
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}
	return nil
}

func (s *Store) ReleaseClaim(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM claim_markers WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *Store) ClaimMarkers(ctx context.Context) ([]job.ClaimMarker, error) {
	rows, err := s.pool.Query(ctx, `SELECT job_id, worker_id, claimed_at FROM claim_markers ORDER BY claimed_at`)
	if err != nil {
		return nil, fmt.Errorf("list claim markers: %w", err)
	}
	defer rows.Close()

	var markers []job.ClaimMarker
	for rows.Next() {
		var m job.ClaimMarker
		if err := rows.Scan(&m.JobID, &m.WorkerID, &m.ClaimedAt); err != nil {
			return nil, fmt.Errorf("scan claim marker: %w", err)
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func (s *Store) ExpireClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM claim_markers WHERE claimed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("expire claims: %w", err)
	}
	return tag.RowsAffected(), nil
}
