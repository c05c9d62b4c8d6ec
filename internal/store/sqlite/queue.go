package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

func (s *Store) Enqueue(ctx context.Context, j *job.Job, from job.Status) error {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin enqueue: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
UPDATE jobs SET status=?, worker_id='', preferred_host=?, require_host=?, status_updated_at=?
WHERE id=? AND status=?
`, string(job.StatusQueued), j.PreferredHost, boolInt(j.RequireHost),
		formatTime(j.StatusUpdatedAt), j.ID, string(from))
	if err != nil {
		return fmt.Errorf("enqueue status update: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		if _, err := s.GetJob(ctx, j.ID); errors.Is(err, store.ErrJobNotFound) {
			return store.ErrJobNotFound
		}
		return store.ErrStatusChanged
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO queue_entries (job_id, preferred_host, require_host, enqueued_at)
VALUES (?, ?, ?, ?)
`, j.ID, j.PreferredHost, boolInt(j.RequireHost), formatTime(j.StatusUpdatedAt))
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit enqueue: %w", err)
	}
	j.Status = job.StatusQueued
	j.WorkerID = ""
	return nil
}

func (s *Store) QueueEntries(ctx context.Context) ([]job.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
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
		var (
			e           job.QueueEntry
			requireHost int
			enqueuedAt  string
		)
		if err := rows.Scan(&e.Seq, &e.JobID, &e.PreferredHost, &requireHost, &enqueuedAt); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		e.RequireHost = requireHost != 0
		if e.EnqueuedAt, err = parseTime(enqueuedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) RemoveQueueEntry(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM queue_entries WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("remove queue entry: %w", err)
	}
	return nil
}

// Claim is the dispatch CAS. The marker insert arbitrates the race: its
// primary key admits one writer per job, everyone else rolls back leaving
// the queue entry in place.
func (s *Store) Claim(ctx context.Context, jobID, workerID string, now time.Time) error {
	tx, err := s.beginWrite(ctx)
	if err != nil {
		return fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
INSERT INTO claim_markers (job_id, worker_id, claimed_at) VALUES (?, ?, ?)
`, jobID, workerID, formatTime(now))
	if err != nil {
		if isConstraintError(err) {
			return store.ErrClaimConflict
		}
		return fmt.Errorf("insert claim marker: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM queue_entries WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("claim queue entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return store.ErrClaimConflict
	}

	res, err = tx.ExecContext(ctx, `
UPDATE jobs SET status=?, worker_id=?, status_updated_at=? WHERE id=? AND status=?
`, string(job.StatusDispatched), workerID, formatTime(now), jobID, string(job.StatusQueued))
	if err != nil {
		return fmt.Errorf("claim status update: %w", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return store.ErrClaimConflict
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit claim: %w", err)
	}
	return nil
}

func (s *Store) ReleaseClaim(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM claim_markers WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

func (s *Store) ClaimMarkers(ctx context.Context) ([]job.ClaimMarker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT job_id, worker_id, claimed_at FROM claim_markers ORDER BY claimed_at`)
	if err != nil {
		return nil, fmt.Errorf("list claim markers: %w", err)
	}
	defer rows.Close()

	var markers []job.ClaimMarker
	for rows.Next() {
		var (
			m         job.ClaimMarker
			claimedAt string
		)
		if err := rows.Scan(&m.JobID, &m.WorkerID, &claimedAt); err != nil {
			return nil, fmt.Errorf("scan claim marker: %w", err)
		}
		if m.ClaimedAt, err = parseTime(claimedAt); err != nil {
			return nil, err
		}
		markers = append(markers, m)
	}
	return markers, rows.Err()
}

func (s *Store) ExpireClaims(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM claim_markers WHERE claimed_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("expire claims: %w", err)
	}
	return res.RowsAffected()
}
