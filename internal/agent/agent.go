// Package agent implements the worker binary: it polls the orchestrator
// for dispatched jobs, runs them as docker containers, streams their
// logs into the shared artifact area and reports status until exit.
package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/artifacts"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/config"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
)

const maxBackoff = 30 * time.Second

type Agent struct {
	client   *Client
	docker   *DockerRunner
	area     *artifacts.Area
	workerID string

	pollInterval      time.Duration
	heartbeatInterval time.Duration
	reportInterval    time.Duration

	// Terminal reports that could not be delivered; retried before the
	// next poll so finished/failed outcomes survive a controller blip.
	pending []StatusReport
}

func New(cfg *config.Config) (*Agent, error) {
	if cfg.Agent.WorkerID == "" {
		return nil, fmt.Errorf("worker id is required (set agent.worker_id or WORKER_ID)")
	}
	if cfg.Agent.ServerURL == "" {
		return nil, fmt.Errorf("server url is required (set agent.server_url or OPEVA_SERVER)")
	}

	return &Agent{
		client:            NewClient(cfg.Agent.ServerURL),
		docker:            NewDockerRunner(cfg.Agent.DockerBinary, cfg.Agent.DockerNetwork),
		area:              artifacts.New(cfg.Agent.SharedDataDir),
		workerID:          cfg.Agent.WorkerID,
		pollInterval:      config.Duration(cfg.Agent.PollInterval, 5*time.Second),
		heartbeatInterval: config.Duration(cfg.Agent.HeartbeatInterval, 10*time.Second),
		reportInterval:    config.Duration(cfg.Agent.ReportInterval, 30*time.Second),
	}, nil
}

func Run(ctx context.Context, cfg *config.Config) error {
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zerolog.SetGlobalLevel(level)
	}

	a, err := New(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().
		Str("worker_id", a.workerID).
		Str("server", a.client.base).
		Msg("agent started")

	go a.heartbeatLoop(ctx)
	a.pollLoop(ctx)

	log.Info().Msg("agent stopped")
	return nil
}

// pollLoop asks for work until ctx is cancelled. An empty queue waits
// one poll interval, a transport error waits twice that (capped), and a
// completed job polls again immediately.
func (a *Agent) pollLoop(ctx context.Context) {
	backoff := minDuration(2*a.pollInterval, maxBackoff)

	for ctx.Err() == nil {
		a.flushPending(ctx)

		payload, err := a.client.NextJob(ctx, a.workerID)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("next-job poll failed")
			sleep(ctx, backoff)
		case payload == nil:
			sleep(ctx, a.pollInterval)
		default:
			a.runJob(ctx, payload)
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	hostname, _ := os.Hostname()
	info := map[string]any{
		"hostname": hostname,
		"num_cpu":  runtime.NumCPU(),
		"goos":     runtime.GOOS,
	}

	ticker := time.NewTicker(a.heartbeatInterval)
	defer ticker.Stop()

	for {
		if err := a.client.Heartbeat(ctx, a.workerID, info); err != nil && ctx.Err() == nil {
			log.Warn().Err(err).Msg("heartbeat failed")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runJob owns the whole container lifecycle for one payload: start,
// log streaming, periodic running reports, wait, terminal report.
func (a *Agent) runJob(ctx context.Context, p *job.Payload) {
	lg := log.With().Str("job_id", p.JobID).Str("name", p.JobName).Logger()
	lg.Info().Str("image", p.Image).Msg("job received")

	if err := a.docker.Pull(ctx, p.Image); err != nil {
		lg.Warn().Err(err).Msg("image pull failed, using local cache")
	}
	a.docker.RemoveContainer(ctx, p.ContainerName)

	containerID, err := a.docker.Start(ctx, p)
	if err != nil {
		// Leave the job dispatched; the staleness monitor requeues it
		// for a healthier host.
		lg.Error().Err(err).Msg("container start failed")
		return
	}
	lg.Info().Str("container_id", containerID).Msg("container started")

	logFile, err := a.area.CreateLog(p.JobID)
	if err != nil {
		lg.Warn().Err(err).Msg("log file unavailable, container output discarded")
	} else {
		go func() {
			defer logFile.Close()
			if err := a.docker.StreamLogs(ctx, containerID, logFile); err != nil && ctx.Err() == nil {
				lg.Debug().Err(err).Msg("log streaming ended")
			}
		}()
	}

	a.report(ctx, StatusReport{
		JobID:         p.JobID,
		Status:        string(job.StatusRunning),
		WorkerID:      a.workerID,
		ContainerID:   containerID,
		ContainerName: p.ContainerName,
	}, &lg)

	// reportCtx stops the periodic running reports once wait returns;
	// runJob then joins that goroutine so pending-report bookkeeping
	// stays single-threaded.
	reportCtx, stopReports := context.WithCancel(ctx)
	stopped := make(chan bool, 1)
	reportsDone := make(chan struct{})
	go func() {
		defer close(reportsDone)
		a.runningReports(reportCtx, p.JobID, containerID, stopped, &lg)
	}()

	exitCode, waitErr := a.docker.Wait(ctx, containerID)
	stopReports()
	<-reportsDone

	if ctx.Err() != nil {
		// Shutdown mid-job: the container keeps running, the
		// orchestrator recovers it by staleness.
		return
	}

	wasStopped := false
	select {
	case wasStopped = <-stopped:
	default:
	}

	rep := StatusReport{JobID: p.JobID, WorkerID: a.workerID, ExitCode: &exitCode}
	switch {
	case waitErr != nil:
		rep.Status = string(job.StatusFailed)
		rep.Error = "wait_failed"
		rep.ExitCode = nil
		lg.Error().Err(waitErr).Msg("container wait failed")
	case wasStopped:
		rep.Status = string(job.StatusStopped)
		rep.Details = "container stopped on request"
		lg.Info().Int64("exit_code", exitCode).Msg("container stopped")
	case exitCode == 0:
		rep.Status = string(job.StatusFinished)
		lg.Info().Msg("container finished")
	default:
		rep.Status = string(job.StatusFailed)
		rep.Error = fmt.Sprintf("exit_%d", exitCode)
		lg.Warn().Int64("exit_code", exitCode).Msg("container failed")
	}
	a.reportTerminal(ctx, rep, &lg)
}

// runningReports re-posts running every report interval so the job
// never goes stale while the container lives. A conflict means the
// orchestrator moved the job; the agent reconciles and, when asked,
// stops the container. stopped receives true when the container was
// stopped because of a stop request.
func (a *Agent) runningReports(ctx context.Context, jobID, containerID string, stopped chan<- bool, lg *zerolog.Logger) {
	ticker := time.NewTicker(a.reportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		_, err := a.client.ReportStatus(ctx, StatusReport{
			JobID:    jobID,
			Status:   string(job.StatusRunning),
			WorkerID: a.workerID,
		})
		switch {
		case err == nil:
			continue
		case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound):
			if a.reconcile(ctx, jobID, containerID, lg) {
				stopped <- true
			}
			return
		case ctx.Err() != nil:
			return
		default:
			lg.Warn().Err(err).Msg("running report failed")
		}
	}
}

// reconcile is called when a running report conflicts with the
// orchestrator's view. It fetches the authoritative status and stops
// the container: either a stop was requested, or an operator moved the
// job elsewhere and this container must not keep computing against it.
// Returns true when the stop honors a stop request.
func (a *Agent) reconcile(ctx context.Context, jobID, containerID string, lg *zerolog.Logger) bool {
	status, err := a.client.JobStatus(ctx, jobID)
	if err != nil {
		lg.Warn().Err(err).Msg("status reconcile failed")
		return false
	}
	lg.Info().Str("status", status).Msg("orchestrator moved the job, stopping container")

	if err := a.docker.Stop(ctx, containerID); err != nil {
		lg.Error().Err(err).Msg("container stop failed")
		if status == string(job.StatusStopRequested) {
			a.reportTerminal(ctx, StatusReport{
				JobID:    jobID,
				Status:   string(job.StatusFailed),
				WorkerID: a.workerID,
				Error:    "stop_failed",
			}, lg)
		}
		return false
	}
	return status == string(job.StatusStopRequested)
}

// report posts best-effort: failures are logged and the periodic
// running reports repair the gap.
func (a *Agent) report(ctx context.Context, rep StatusReport, lg *zerolog.Logger) {
	if _, err := a.client.ReportStatus(ctx, rep); err != nil {
		lg.Warn().Err(err).Str("status", rep.Status).Msg("status report failed")
	}
}

// reportTerminal posts a terminal outcome, buffering it for retry when
// the orchestrator is unreachable. Conflicts and unknown jobs are
// dropped; the orchestrator already settled that job.
func (a *Agent) reportTerminal(ctx context.Context, rep StatusReport, lg *zerolog.Logger) {
	_, err := a.client.ReportStatus(ctx, rep)
	switch {
	case err == nil:
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNotFound), errors.Is(err, ErrRejected):
		lg.Warn().Err(err).Str("status", rep.Status).Msg("terminal report dropped")
	default:
		lg.Warn().Err(err).Str("status", rep.Status).Msg("terminal report buffered for retry")
		a.pending = append(a.pending, rep)
	}
}

// flushPending retries buffered terminal reports in order, stopping at
// the first transport failure.
func (a *Agent) flushPending(ctx context.Context) {
	for len(a.pending) > 0 {
		rep := a.pending[0]
		_, err := a.client.ReportStatus(ctx, rep)
		switch {
		case err == nil,
			errors.Is(err, ErrConflict),
			errors.Is(err, ErrNotFound),
			errors.Is(err, ErrRejected):
			a.pending = a.pending[1:]
		default:
			return
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
