// Package orchestrator is the job orchestration engine: submission,
// queue/dispatch, agent status ingestion, staleness recovery and operator
// overrides. Every mutation funnels through the state machine and the
// store's per-job compare-and-swap, so concurrent writers resolve to one
// winner and the loser sees a rejected transition instead of a merge.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/event"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/host"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

// statusRetries bounds the reload-revalidate-write loop taken when a
// guarded update loses a race.
const statusRetries = 3

// Options carries the engine's TTLs and payload defaults.
type Options struct {
	JobStatusTTL     time.Duration
	HostHeartbeatTTL time.Duration
	WorkerStaleGrace time.Duration
	QueueClaimTTL    time.Duration

	DefaultImage  string
	SharedDataDir string
	DataMountPath string
	TrackingURI   string
}

// ConfigSource is the experiment-config collaborator consumed at
// submission time. Paths are relative to the shared data directory.
type ConfigSource interface {
	// Save stores doc under name and returns its relative config path.
	Save(name string, doc map[string]any) (string, error)
	// Resolve validates name and returns the relative path of an existing
	// config.
	Resolve(name string) (string, error)
	// Load parses the config at a path returned by Save or Resolve.
	Load(relPath string) (map[string]any, error)
}

// ArtifactStore removes the artifact tree of deleted jobs.
type ArtifactStore interface {
	Remove(jobID string) error
}

// Service is the orchestration engine facade used by the HTTP handlers,
// the monitor and the CLI.
type Service struct {
	store     store.Store
	bus       event.Bus
	configs   ConfigSource
	artifacts ArtifactStore
	opts      Options
}

func NewService(st store.Store, bus event.Bus, configs ConfigSource, artifacts ArtifactStore, opts Options) *Service {
	if opts.DataMountPath == "" {
		opts.DataMountPath = "/data"
	}
	return &Service{
		store:     st,
		bus:       bus,
		configs:   configs,
		artifacts: artifacts,
		opts:      opts,
	}
}

// SubmitRequest carries a job submission. Exactly one of Config (an inline
// document, stored under SaveAs) or ConfigPath (a previously stored
// config) must be set.
type SubmitRequest struct {
	Config      map[string]any
	ConfigPath  string
	SaveAs      string
	TargetHost  string
	RequireHost *bool
}

// Submit registers a job (status launching) and enqueues it (status
// queued). The execution descriptor is built and validated here, once;
// dispatch later returns it verbatim.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*job.Job, error) {
	if (req.Config == nil) == (req.ConfigPath == "") {
		return nil, fmt.Errorf("%w: exactly one of config or config_path is required", ErrValidation)
	}

	requireHost := req.TargetHost != ""
	if req.RequireHost != nil {
		requireHost = *req.RequireHost
	}
	if requireHost && req.TargetHost == "" {
		return nil, fmt.Errorf("%w: require_host needs a target_host", ErrValidation)
	}
	if req.TargetHost != "" {
		if _, err := s.store.GetHost(ctx, req.TargetHost); err != nil {
			if errors.Is(err, store.ErrHostNotFound) {
				return nil, fmt.Errorf("%w: unknown target host %q", ErrValidation, req.TargetHost)
			}
			return nil, err
		}
	}

	jobID := uuid.NewString()

	var (
		configPath string
		doc        map[string]any
		err        error
	)
	if req.Config != nil {
		name := req.SaveAs
		if name == "" {
			name = jobID + ".yaml"
		}
		configPath, err = s.configs.Save(name, req.Config)
		if err != nil {
			return nil, fmt.Errorf("%w: store config: %v", ErrValidation, err)
		}
		doc = req.Config
	} else {
		configPath, err = s.configs.Resolve(req.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("%w: config_path: %v", ErrValidation, err)
		}
		if doc, err = s.configs.Load(configPath); err != nil {
			return nil, fmt.Errorf("%w: read config: %v", ErrValidation, err)
		}
	}

	now := time.Now().UTC()
	expName, runName := experimentNames(doc)
	name := job.SlugName(expName + "-" + runName)
	j := &job.Job{
		ID:            jobID,
		Name:          name,
		Status:        job.StatusLaunching,
		PreferredHost: req.TargetHost,
		RequireHost:   requireHost,
		Descriptor: job.Descriptor{
			Image:         s.opts.DefaultImage,
			Command:       fmt.Sprintf("--config %s --job_id %s", path.Join(s.opts.DataMountPath, configPath), jobID),
			ContainerName: fmt.Sprintf("opeva_sim_%s_%s", jobID, name),
			ConfigPath:    configPath,
			Volumes: []job.VolumeMount{
				{Host: s.opts.SharedDataDir, Container: s.opts.DataMountPath, Mode: "rw"},
			},
			Env: map[string]string{
				"MLFLOW_TRACKING_URI": s.opts.TrackingURI,
			},
		},
		CreatedAt:       now,
		StatusUpdatedAt: now,
	}

	if err := s.store.CreateJob(ctx, j); err != nil {
		return nil, fmt.Errorf("register job: %w", err)
	}
	s.bus.Publish(ctx, event.Event{
		Type:    event.EventJobSubmitted,
		Payload: event.JobEvent{JobID: j.ID, Name: j.Name, To: string(job.StatusLaunching)},
	})

	j.StatusUpdatedAt = time.Now().UTC()
	if err := s.store.Enqueue(ctx, j, job.StatusLaunching); err != nil {
		return nil, fmt.Errorf("enqueue job: %w", err)
	}
	s.publishStatusChange(ctx, j, job.StatusLaunching, job.StatusQueued, "")

	log.Info().
		Str("job_id", j.ID).
		Str("job_name", j.Name).
		Str("preferred_host", j.PreferredHost).
		Msg("job submitted")
	return j, nil
}

// StatusReport is an agent's account of a job's state.
type StatusReport struct {
	JobID         string
	Status        job.Status
	WorkerID      string
	ContainerID   string
	ContainerName string
	ExitCode      *int64
	Error         string
	Details       string
}

// ReportStatus applies an agent status report. Reports re-stating the
// current status are accepted and only refresh status_updated_at; any
// accepted report releases the job's claim marker (dispatch receipt is
// confirmed). Returns the job as stored afterwards.
func (s *Service) ReportStatus(ctx context.Context, rep StatusReport) (*job.Job, error) {
	if rep.JobID == "" {
		return nil, fmt.Errorf("%w: job_id is required", ErrValidation)
	}
	if !rep.Status.Persistable() {
		return nil, fmt.Errorf("%w: status %q cannot be reported", ErrValidation, rep.Status)
	}

	var lastErr error
	for attempt := 0; attempt < statusRetries; attempt++ {
		j, err := s.store.GetJob(ctx, rep.JobID)
		if err != nil {
			return nil, err
		}
		from := j.Status

		if err := job.ValidateTransition(from, rep.Status, false); err != nil {
			return nil, err
		}

		j.Status = rep.Status
		j.StatusUpdatedAt = time.Now().UTC()
		if rep.WorkerID != "" {
			j.WorkerID = rep.WorkerID
		}
		if rep.ContainerID != "" {
			j.ContainerID = rep.ContainerID
		}
		if rep.ContainerName != "" {
			j.Descriptor.ContainerName = rep.ContainerName
		}
		if rep.ExitCode != nil {
			code := *rep.ExitCode
			j.ExitCode = &code
		}
		if rep.Error != "" {
			j.Error = rep.Error
		}
		if rep.Details != "" {
			j.Details = rep.Details
		}

		err = s.store.UpdateJob(ctx, j, from)
		if err == nil {
			if err := s.store.ReleaseClaim(ctx, j.ID); err != nil {
				log.Warn().Err(err).Str("job_id", j.ID).Msg("failed to release claim marker")
			}
			if from != j.Status {
				s.publishStatusChange(ctx, j, from, j.Status, rep.Error)
			}
			return j, nil
		}
		if !errors.Is(err, store.ErrStatusChanged) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("status report for %s kept losing update races: %w", rep.JobID, lastErr)
}

// Heartbeat records worker liveness. Unknown workers are registered on
// first contact.
func (s *Service) Heartbeat(ctx context.Context, workerID string, info map[string]any) error {
	if workerID == "" {
		return fmt.Errorf("%w: worker_id is required", ErrValidation)
	}
	created, err := s.store.UpsertHost(ctx, workerID, time.Now().UTC(), info)
	if err != nil {
		return err
	}
	if created {
		s.bus.Publish(ctx, event.Event{Type: event.EventWorkerSeen, Payload: event.WorkerEvent{WorkerID: workerID}})
		log.Info().Str("worker_id", workerID).Msg("new worker registered via heartbeat")
	}
	return nil
}

// GetJob returns the stored job record.
func (s *Service) GetJob(ctx context.Context, jobID string) (*job.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs returns all jobs, newest first.
func (s *Service) ListJobs(ctx context.Context) ([]*job.Job, error) {
	return s.store.ListJobs(ctx)
}

// QueueEntries returns the outstanding queue in FIFO order.
func (s *Service) QueueEntries(ctx context.Context) ([]job.QueueEntry, error) {
	return s.store.QueueEntries(ctx)
}

// HostView is a host record with its derived online flag.
type HostView struct {
	WorkerID        string
	Online          bool
	LastHeartbeatAt time.Time
	Info            map[string]any
}

// ListHosts returns every known worker with online derived from the
// heartbeat TTL.
func (s *Service) ListHosts(ctx context.Context) ([]HostView, error) {
	records, err := s.store.ListHosts(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	views := make([]HostView, 0, len(records))
	for _, r := range records {
		views = append(views, hostView(r, now, s.opts.HostHeartbeatTTL))
	}
	return views, nil
}

func hostView(r *host.Record, now time.Time, ttl time.Duration) HostView {
	return HostView{
		WorkerID:        r.WorkerID,
		Online:          r.Online(now, ttl),
		LastHeartbeatAt: r.LastHeartbeatAt,
		Info:            r.Info,
	}
}

// Stop requests a cooperative stop: dispatched and running jobs move to
// stop_requested, launching and queued jobs are canceled outright. The
// returned message describes what happened.
func (s *Service) Stop(ctx context.Context, jobID string) (*job.Job, string, error) {
	var lastErr error
	for attempt := 0; attempt < statusRetries; attempt++ {
		j, err := s.store.GetJob(ctx, jobID)
		if err != nil {
			return nil, "", err
		}
		from := j.Status

		switch {
		case from == job.StatusStopRequested:
			return j, "stop already requested", nil
		case from.Terminal():
			return j, fmt.Sprintf("nothing to stop, job already %s", from), nil
		case from == job.StatusLaunching || from == job.StatusQueued:
			j.Status = job.StatusCanceled
			j.Details = "canceled by stop request"
		default:
			j.Status = job.StatusStopRequested
		}
		j.StatusUpdatedAt = time.Now().UTC()

		err = s.store.UpdateJob(ctx, j, from)
		if errors.Is(err, store.ErrStatusChanged) {
			lastErr = err
			continue
		}
		if err != nil {
			return nil, "", err
		}

		msg := "stop requested"
		if j.Status == job.StatusCanceled {
			// The queue entry, if any, must not be claimable anymore.
			if err := s.store.RemoveQueueEntry(ctx, jobID); err != nil {
				log.Warn().Err(err).Str("job_id", jobID).Msg("failed to remove queue entry on cancel")
			}
			msg = "job canceled before dispatch"
		}
		s.publishStatusChange(ctx, j, from, j.Status, "")
		return j, msg, nil
	}
	return nil, "", fmt.Errorf("stop request for %s kept losing update races: %w", jobID, lastErr)
}

// Delete removes a job from the registry together with its artifacts. It
// is permitted only for absent or terminal jobs. Artifact removal failure
// does not block the registry delete; it comes back as a warning.
func (s *Service) Delete(ctx context.Context, jobID string) (string, error) {
	j, err := s.store.GetJob(ctx, jobID)
	switch {
	case errors.Is(err, store.ErrJobNotFound):
		// Absent is fine, artifacts may still linger.
	case err != nil:
		return "", err
	case !j.Status.Terminal():
		return "", fmt.Errorf("%w: status %s", ErrJobActive, j.Status)
	default:
		if err := s.store.DeleteJob(ctx, jobID); err != nil {
			return "", err
		}
		s.bus.Publish(ctx, event.Event{Type: event.EventJobDeleted, Payload: event.JobEvent{JobID: jobID}})
	}

	if err := s.artifacts.Remove(jobID); err != nil {
		log.Warn().Err(err).Str("job_id", jobID).Msg("artifact removal failed")
		return fmt.Sprintf("job deleted, artifact removal failed: %v", err), nil
	}
	return "", nil
}

func (s *Service) publishStatusChange(ctx context.Context, j *job.Job, from, to job.Status, reason string) {
	s.bus.Publish(ctx, event.Event{
		Type: event.EventJobStatusChanged,
		Payload: event.JobEvent{
			JobID:    j.ID,
			Name:     j.Name,
			WorkerID: j.WorkerID,
			From:     string(from),
			To:       string(to),
			Reason:   reason,
		},
	})
}

// experimentNames pulls the experiment and run names out of the config's
// experiment section, with placeholders for configs that omit them.
func experimentNames(doc map[string]any) (exp, run string) {
	exp, run = "UnnamedExperiment", "UnnamedRun"
	section, _ := doc["experiment"].(map[string]any)
	if section == nil {
		return exp, run
	}
	if v, ok := section["name"].(string); ok && v != "" {
		exp = v
	}
	if v, ok := section["run_name"].(string); ok && v != "" {
		run = v
	}
	return exp, run
}
