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

// NextJob hands the polling worker the oldest queued job it is eligible
// for. A nil payload with a nil error means the queue holds no work for
// this worker right now.
//
// Entries are walked in FIFO order; each candidate is claimed through the
// store's atomic claim. Losing a claim race is not an error, the loop
// simply moves to the next entry.
func (s *Service) NextJob(ctx context.Context, workerID string) (*job.Payload, error) {
	if workerID == "" {
		return nil, fmt.Errorf("%w: worker_id is required", ErrValidation)
	}

	entries, err := s.store.QueueEntries(ctx)
	if err != nil {
		return nil, err
	}

	for _, entry := range entries {
		if !entry.EligibleFor(workerID) {
			continue
		}

		err := s.store.Claim(ctx, entry.JobID, workerID, time.Now().UTC())
		if errors.Is(err, store.ErrClaimConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}

		j, err := s.store.GetJob(ctx, entry.JobID)
		if err != nil {
			return nil, err
		}
		s.bus.Publish(ctx, event.Event{
			Type: event.EventJobDispatched,
			Payload: event.JobEvent{
				JobID:    j.ID,
				Name:     j.Name,
				WorkerID: workerID,
				From:     string(job.StatusQueued),
				To:       string(job.StatusDispatched),
			},
		})
		log.Info().
			Str("job_id", j.ID).
			Str("worker_id", workerID).
			Msg("job dispatched")
		return j.Payload(), nil
	}
	return nil, nil
}
