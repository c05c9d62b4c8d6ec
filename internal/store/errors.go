package store

import "errors"

var (
	// ErrJobNotFound is returned when the referenced job id has no record.
	ErrJobNotFound = errors.New("store: job not found")

	// ErrJobExists is returned by CreateJob on an id collision.
	ErrJobExists = errors.New("store: job already exists")

	// ErrStatusChanged is returned by guarded updates when the job's
	// current status no longer matches the caller's expectation. The
	// caller lost a write race and must reload before deciding anything.
	ErrStatusChanged = errors.New("store: job status changed concurrently")

	// ErrClaimConflict is returned by Claim when another worker won the
	// race for the same queue entry. Never surfaced to workers as a
	// failure; the dispatcher moves on to the next candidate.
	ErrClaimConflict = errors.New("store: claim conflict")

	// ErrHostNotFound is returned when no heartbeat was ever recorded for
	// the worker id.
	ErrHostNotFound = errors.New("store: host not found")
)
