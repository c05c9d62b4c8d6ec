// Package store defines the durable state contract backing the
// orchestrator: the job registry, the dispatch queue with its claim
// markers, and worker heartbeat records. Two backends implement it, sqlite
// (default) and postgres, selected by the database URL.
package store

import (
	"context"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/host"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

// Store is the combined persistence surface. Every mutating operation is
// atomic; guarded updates compare-and-swap on the job's current status so
// that concurrent writers resolve to exactly one winner.
type Store interface {
	// Registry.

	// CreateJob inserts a new job record. ErrJobExists when the id is
	// already taken.
	CreateJob(ctx context.Context, j *job.Job) error
	// GetJob returns the job or ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*job.Job, error)
	// ListJobs returns all jobs, newest first.
	ListJobs(ctx context.Context) ([]*job.Job, error)
	// ListJobsInStatus returns jobs currently in any of the given statuses.
	ListJobsInStatus(ctx context.Context, statuses ...job.Status) ([]*job.Job, error)
	// UpdateJob rewrites the job's mutable fields, guarded by its expected
	// current status: ErrStatusChanged when another writer moved the job
	// first, ErrJobNotFound when it is gone.
	UpdateJob(ctx context.Context, j *job.Job, from job.Status) error
	// DeleteJob removes the job record and any queue entry or claim marker
	// left for it.
	DeleteJob(ctx context.Context, jobID string) error

	// Queue.

	// Enqueue writes a queue entry for j and moves it to status queued in
	// one transaction. The job must still be in status from.
	Enqueue(ctx context.Context, j *job.Job, from job.Status) error
	// QueueEntries returns outstanding entries in FIFO order (enqueued_at,
	// then insertion sequence).
	QueueEntries(ctx context.Context) ([]job.QueueEntry, error)
	// RemoveQueueEntry deletes the entry for jobID if present.
	RemoveQueueEntry(ctx context.Context, jobID string) error
	// Claim atomically claims jobID for workerID: it records the claim
	// marker, removes the queue entry and moves the job queued ->
	// dispatched. Exactly one concurrent caller succeeds; the rest get
	// ErrClaimConflict and the queue entry is left untouched for them.
	Claim(ctx context.Context, jobID, workerID string, now time.Time) error
	// ReleaseClaim drops the claim marker for jobID, if any.
	ReleaseClaim(ctx context.Context, jobID string) error
	// ClaimMarkers returns all live claim markers.
	ClaimMarkers(ctx context.Context) ([]job.ClaimMarker, error)
	// ExpireClaims deletes markers claimed before cutoff, returning how
	// many were dropped.
	ExpireClaims(ctx context.Context, cutoff time.Time) (int64, error)

	// Hosts.

	// UpsertHost records a heartbeat, creating the host record on first
	// contact. Returns true when the worker was not seen before.
	UpsertHost(ctx context.Context, workerID string, seenAt time.Time, info map[string]any) (bool, error)
	// GetHost returns the host record or ErrHostNotFound.
	GetHost(ctx context.Context, workerID string) (*host.Record, error)
	// ListHosts returns all known host records.
	ListHosts(ctx context.Context) ([]*host.Record, error)

	Ping(ctx context.Context) error
	Close() error
}
