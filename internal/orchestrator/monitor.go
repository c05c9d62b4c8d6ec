package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/event"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/host"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

// Reasons recorded on jobs the monitor fails.
const (
	ReasonStaleStatus   = "stale_status"
	ReasonWorkerOffline = "worker_offline"
)

// Monitor periodically reconciles the registry against the clock:
// dispatched jobs nobody picked up go back to the queue, silent running
// jobs are failed, abandoned claim markers are released.
//
// The monitor issues ordinary transitions, never forced ones. When a
// legitimate agent report lands between the scan and the write, the
// guarded update loses and the correction is dropped, not retried.
type Monitor struct {
	svc      *Service
	interval time.Duration
}

func NewMonitor(svc *Service, interval time.Duration) *Monitor {
	return &Monitor{svc: svc, interval: interval}
}

// Run sweeps on every tick until ctx is canceled. Sweeps do not overlap;
// a slow sweep simply delays the next tick.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Info().Dur("interval", m.interval).Msg("staleness monitor started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("staleness monitor stopped")
			return
		case <-ticker.C:
			result := m.Sweep(ctx)
			if result.Requeued+result.Failed+result.ClaimsExpired > 0 {
				log.Info().
					Int("requeued", result.Requeued).
					Int("failed", result.Failed).
					Int64("claims_expired", result.ClaimsExpired).
					Msg("staleness sweep applied corrections")
			}
		}
	}
}

// SweepResult counts the corrections one sweep applied.
type SweepResult struct {
	Requeued      int
	Failed        int
	ClaimsExpired int64
}

// Sweep runs a single reconciliation pass.
func (m *Monitor) Sweep(ctx context.Context) SweepResult {
	var result SweepResult
	now := time.Now().UTC()

	jobs, err := m.svc.store.ListJobsInStatus(ctx, job.StatusDispatched, job.StatusRunning, job.StatusStopRequested)
	if err != nil {
		log.Error().Err(err).Msg("staleness sweep could not list active jobs")
		return result
	}
	hosts, err := m.svc.store.ListHosts(ctx)
	if err != nil {
		log.Error().Err(err).Msg("staleness sweep could not list hosts")
		return result
	}
	hostsByID := make(map[string]*host.Record, len(hosts))
	for _, h := range hosts {
		hostsByID[h.WorkerID] = h
	}

	for _, j := range jobs {
		stale := now.Sub(j.StatusUpdatedAt) > m.svc.opts.JobStatusTTL
		offline := m.workerOffline(hostsByID, j.WorkerID, now)

		switch {
		case j.Status == job.StatusDispatched && (stale || offline):
			if m.requeueStale(ctx, j) {
				result.Requeued++
			}
		case stale:
			if m.failJob(ctx, j, ReasonStaleStatus) {
				result.Failed++
			}
		case offline:
			if m.failJob(ctx, j, ReasonWorkerOffline) {
				result.Failed++
			}
		}
	}

	expired, err := m.svc.store.ExpireClaims(ctx, now.Add(-m.svc.opts.QueueClaimTTL))
	if err != nil {
		log.Error().Err(err).Msg("staleness sweep could not expire claim markers")
	} else if expired > 0 {
		log.Warn().Int64("count", expired).Msg("released abandoned claim markers")
		result.ClaimsExpired = expired
	}
	return result
}

// workerOffline reports whether the job's bound worker has been silent
// beyond the heartbeat TTL plus grace. A worker without a host record is
// not considered offline; the job-status TTL covers that case.
func (m *Monitor) workerOffline(hosts map[string]*host.Record, workerID string, now time.Time) bool {
	if workerID == "" {
		return false
	}
	h, ok := hosts[workerID]
	if !ok {
		return false
	}
	return h.OfflineSince(now, m.svc.opts.HostHeartbeatTTL) > m.svc.opts.WorkerStaleGrace
}

func (m *Monitor) requeueStale(ctx context.Context, j *job.Job) bool {
	from := j.Status
	if err := job.ValidateTransition(from, job.StatusQueued, false); err != nil {
		return false
	}
	if err := m.svc.store.ReleaseClaim(ctx, j.ID); err != nil {
		log.Warn().Err(err).Str("job_id", j.ID).Msg("failed to release claim marker before requeue")
		return false
	}
	j.WorkerID = ""
	j.StatusUpdatedAt = time.Now().UTC()
	err := m.svc.store.Enqueue(ctx, j, from)
	if errors.Is(err, store.ErrStatusChanged) || errors.Is(err, store.ErrJobNotFound) {
		log.Debug().Str("job_id", j.ID).Msg("stale requeue dropped, job moved on")
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", j.ID).Msg("stale requeue failed")
		return false
	}
	m.svc.bus.Publish(ctx, event.Event{
		Type:    event.EventJobRequeued,
		Payload: event.JobEvent{JobID: j.ID, Name: j.Name, From: string(from), To: string(job.StatusQueued), Reason: ReasonStaleStatus},
	})
	log.Warn().
		Str("job_id", j.ID).
		Str("from", string(from)).
		Msg("requeued job with no status update")
	return true
}

func (m *Monitor) failJob(ctx context.Context, j *job.Job, reason string) bool {
	from := j.Status
	if err := job.ValidateTransition(from, job.StatusFailed, false); err != nil {
		return false
	}
	j.Status = job.StatusFailed
	j.Error = reason
	j.StatusUpdatedAt = time.Now().UTC()

	err := m.svc.store.UpdateJob(ctx, j, from)
	if errors.Is(err, store.ErrStatusChanged) || errors.Is(err, store.ErrJobNotFound) {
		log.Debug().Str("job_id", j.ID).Msg("stale fail dropped, job moved on")
		return false
	}
	if err != nil {
		log.Error().Err(err).Str("job_id", j.ID).Msg("stale fail failed")
		return false
	}
	m.svc.releaseQueueState(ctx, j.ID)
	m.svc.publishStatusChange(ctx, j, from, job.StatusFailed, reason)
	log.Warn().
		Str("job_id", j.ID).
		Str("from", string(from)).
		Str("worker_id", j.WorkerID).
		Str("reason", reason).
		Msg("failed unresponsive job")
	return true
}
