package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/event"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

// RequeueOptions tunes an operator requeue. PreferredHost and RequireHost
// override the job's placement hints when set.
type RequeueOptions struct {
	Force         bool
	PreferredHost *string
	RequireHost   *bool
	Reason        string
}

// requeueFrom are the statuses an unforced requeue accepts.
var requeueFrom = map[job.Status]bool{
	job.StatusDispatched:    true,
	job.StatusRunning:       true,
	job.StatusStopRequested: true,
}

// OpsRequeue puts a job back on the queue. Without force only jobs a
// worker currently holds qualify; with force any job can be requeued,
// terminal ones included, so operators can rerun finished work.
func (s *Service) OpsRequeue(ctx context.Context, jobID string, opts RequeueOptions) (*job.Job, error) {
	j, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	from := j.Status

	if from == job.StatusQueued {
		return j, nil
	}
	if !opts.Force && !requeueFrom[from] {
		return nil, &job.TransitionError{From: from, To: job.StatusQueued}
	}

	// A stale claim marker from the previous dispatch would block the
	// next claim.
	if err := s.store.ReleaseClaim(ctx, jobID); err != nil {
		return nil, err
	}

	if opts.PreferredHost != nil {
		j.PreferredHost = *opts.PreferredHost
		j.RequireHost = *opts.PreferredHost != ""
	}
	if opts.RequireHost != nil {
		j.RequireHost = *opts.RequireHost
	}
	if j.RequireHost && j.PreferredHost == "" {
		return nil, fmt.Errorf("%w: require_host needs a preferred host", ErrValidation)
	}
	j.WorkerID = ""
	j.Error = ""
	j.StatusUpdatedAt = time.Now().UTC()

	if err := s.store.Enqueue(ctx, j, from); err != nil {
		return nil, err
	}
	s.bus.Publish(ctx, event.Event{
		Type: event.EventJobRequeued,
		Payload: event.JobEvent{
			JobID:  j.ID,
			Name:   j.Name,
			From:   string(from),
			To:     string(job.StatusQueued),
			Reason: opts.Reason,
		},
	})
	log.Info().
		Str("job_id", jobID).
		Str("from", string(from)).
		Bool("force", opts.Force).
		Str("reason", opts.Reason).
		Msg("job requeued by operator")
	return j, nil
}

// OpsFail force-marks a job failed. Terminal jobs are rejected outright,
// force or not; without force only jobs a worker currently holds qualify.
func (s *Service) OpsFail(ctx context.Context, jobID, reason string, force bool) (*job.Job, error) {
	if reason == "" {
		reason = "ops_failed"
	}

	var lastErr error
	for attempt := 0; attempt < statusRetries; attempt++ {
		j, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		from := j.Status

		if from.Terminal() {
			return nil, &job.TransitionError{From: from, To: job.StatusFailed}
		}
		if !force && !requeueFrom[from] {
			return nil, &job.TransitionError{From: from, To: job.StatusFailed}
		}

		j.Status = job.StatusFailed
		j.Error = reason
		j.StatusUpdatedAt = time.Now().UTC()

		err = s.store.UpdateJob(ctx, j, from)
		if errors.Is(err, store.ErrStatusChanged) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		s.releaseQueueState(ctx, jobID)
		s.publishStatusChange(ctx, j, from, job.StatusFailed, reason)
		log.Warn().
			Str("job_id", jobID).
			Str("from", string(from)).
			Str("reason", reason).
			Msg("job failed by operator")
		return j, nil
	}
	return nil, fmt.Errorf("ops fail for %s kept losing update races: %w", jobID, lastErr)
}

// cancelFrom are the statuses an unforced cancel accepts.
var cancelFrom = map[job.Status]bool{
	job.StatusLaunching: true,
	job.StatusQueued:    true,
}

// OpsCancel cancels a job before or, with force, during execution.
func (s *Service) OpsCancel(ctx context.Context, jobID, reason string, force bool) (*job.Job, error) {
	if reason == "" {
		reason = "ops_canceled"
	}

	var lastErr error
	for attempt := 0; attempt < statusRetries; attempt++ {
		j, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		from := j.Status

		if from.Terminal() {
			return nil, &job.TransitionError{From: from, To: job.StatusCanceled}
		}
		if !cancelFrom[from] && !force {
			return nil, &job.TransitionError{From: from, To: job.StatusCanceled}
		}

		j.Status = job.StatusCanceled
		j.Details = reason
		j.StatusUpdatedAt = time.Now().UTC()

		err = s.store.UpdateJob(ctx, j, from)
		if errors.Is(err, store.ErrStatusChanged) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}

		s.releaseQueueState(ctx, jobID)
		s.publishStatusChange(ctx, j, from, job.StatusCanceled, reason)
		log.Info().
			Str("job_id", jobID).
			Str("from", string(from)).
			Str("reason", reason).
			Msg("job canceled by operator")
		return j, nil
	}
	return nil, fmt.Errorf("ops cancel for %s kept losing update races: %w", jobID, lastErr)
}

// Cleanup removes queue entries whose job is gone or already terminal and
// returns the removed entries.
func (s *Service) Cleanup(ctx context.Context) ([]job.QueueEntry, error) {
	entries, err := s.store.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}

	var removed []job.QueueEntry
	for _, entry := range entries {
		j, err := s.store.GetJob(ctx, entry.JobID)
		switch {
		case errors.Is(err, store.ErrJobNotFound):
			// Orphan entry, its job was deleted out from under it.
		case err != nil:
			return removed, err
		case j.Status.Terminal():
			// Entry left behind by a force transition.
		default:
			continue
		}

		if err := s.store.RemoveQueueEntry(ctx, entry.JobID); err != nil {
			return removed, err
		}
		if err := s.store.ReleaseClaim(ctx, entry.JobID); err != nil {
			return removed, err
		}
		removed = append(removed, entry)
	}

	if len(removed) > 0 {
		ids := make([]string, len(removed))
		for i, entry := range removed {
			ids[i] = entry.JobID
		}
		s.bus.Publish(ctx, event.Event{Type: event.EventQueueCleaned, Payload: event.QueueEvent{Removed: ids}})
		log.Info().Strs("job_ids", ids).Msg("queue cleanup removed orphan entries")
	}
	return removed, nil
}

// releaseQueueState drops the queue entry and claim marker of a job that
// just left the dispatch pipeline. Both removals are idempotent; failures
// are logged, the sweep and cleanup paths pick up leftovers.
func (s *Service) releaseQueueState(ctx context.Context, jobID string) {
	if err := s.store.RemoveQueueEntry(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to remove queue entry")
	}
	if err := s.store.ReleaseClaim(ctx, jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("failed to release claim marker")
	}
}
