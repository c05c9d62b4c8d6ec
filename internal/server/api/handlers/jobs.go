package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

type JobsHandler struct {
	svc *orchestrator.Service
}

func NewJobsHandler(svc *orchestrator.Service) *JobsHandler {
	return &JobsHandler{svc: svc}
}

// Submission

type RunSimulationInput struct {
	Body struct {
		Config      map[string]any `json:"config,omitempty" doc:"Inline experiment config, stored before launch"`
		ConfigPath  string         `json:"config_path,omitempty" doc:"Name or shared-dir-relative path of a stored config"`
		SaveAs      string         `json:"save_as,omitempty" doc:"File name for an inline config (defaults to <job_id>.yaml)"`
		TargetHost  string         `json:"target_host,omitempty" doc:"Worker the job should run on"`
		RequireHost *bool          `json:"require_host,omitempty" doc:"Whether target_host is binding (default true when target_host is set)"`
	}
}

type RunSimulationBody struct {
	JobID   string `json:"job_id" doc:"Job ID"`
	JobName string `json:"job_name" doc:"Slug derived from the experiment config"`
	Status  string `json:"status" doc:"Job status after submission"`
	Host    string `json:"host,omitempty" doc:"Preferred worker, if any"`
	Message string `json:"message" doc:"Operation result"`
}

type RunSimulationOutput struct {
	Body RunSimulationBody
}

func (h *JobsHandler) RunSimulation(ctx context.Context, input *RunSimulationInput) (*RunSimulationOutput, error) {
	j, err := h.svc.Submit(ctx, orchestrator.SubmitRequest{
		Config:      input.Body.Config,
		ConfigPath:  input.Body.ConfigPath,
		SaveAs:      input.Body.SaveAs,
		TargetHost:  input.Body.TargetHost,
		RequireHost: input.Body.RequireHost,
	})
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &RunSimulationOutput{Body: RunSimulationBody{
		JobID:   j.ID,
		JobName: j.Name,
		Status:  string(j.Status),
		Host:    j.PreferredHost,
		Message: "simulation job queued",
	}}, nil
}

// Queries

type JobStatusBody struct {
	JobID  string `json:"job_id" doc:"Job ID"`
	Status string `json:"status" doc:"Current status, or not_found for unknown jobs"`
}

type JobStatusOutput struct {
	Body JobStatusBody
}

// Status resolves the job's current status. Unknown ids yield the
// not_found utility status rather than an HTTP error, so pollers can
// treat it as one more state.
func (h *JobsHandler) Status(ctx context.Context, input *JobIDInput) (*JobStatusOutput, error) {
	j, err := h.svc.GetJob(ctx, input.JobID)
	if errors.Is(err, store.ErrJobNotFound) {
		return &JobStatusOutput{Body: JobStatusBody{JobID: input.JobID, Status: string(job.StatusNotFound)}}, nil
	}
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &JobStatusOutput{Body: JobStatusBody{JobID: j.ID, Status: string(j.Status)}}, nil
}

type JobInfoOutput struct {
	Body *job.Job
}

func (h *JobsHandler) JobInfo(ctx context.Context, input *JobIDInput) (*JobInfoOutput, error) {
	j, err := h.svc.GetJob(ctx, input.JobID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &JobInfoOutput{Body: j}, nil
}

type JobSummary struct {
	JobID   string   `json:"job_id" doc:"Job ID"`
	Status  string   `json:"status" doc:"Current status"`
	JobInfo *job.Job `json:"job_info" doc:"Full job record"`
}

type ListJobsOutput struct {
	Body []JobSummary
}

func (h *JobsHandler) List(ctx context.Context, _ *struct{}) (*ListJobsOutput, error) {
	jobs, err := h.svc.ListJobs(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	summaries := make([]JobSummary, 0, len(jobs))
	for _, j := range jobs {
		summaries = append(summaries, JobSummary{JobID: j.ID, Status: string(j.Status), JobInfo: j})
	}
	return &ListJobsOutput{Body: summaries}, nil
}

type QueueOutput struct {
	Body []job.QueueEntry
}

func (h *JobsHandler) Queue(ctx context.Context, _ *struct{}) (*QueueOutput, error) {
	entries, err := h.svc.QueueEntries(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if entries == nil {
		entries = []job.QueueEntry{}
	}
	return &QueueOutput{Body: entries}, nil
}

type HostInfo struct {
	Online          bool           `json:"online" doc:"Derived from the heartbeat TTL"`
	LastHeartbeatAt time.Time      `json:"last_heartbeat_at" doc:"Last heartbeat time"`
	Info            map[string]any `json:"info,omitempty" doc:"Telemetry from the last heartbeat"`
}

type HostsBody struct {
	Hosts map[string]HostInfo `json:"hosts" doc:"Known workers keyed by worker id"`
}

type HostsOutput struct {
	Body HostsBody
}

func (h *JobsHandler) Hosts(ctx context.Context, _ *struct{}) (*HostsOutput, error) {
	views, err := h.svc.ListHosts(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	hosts := make(map[string]HostInfo, len(views))
	for _, v := range views {
		hosts[v.WorkerID] = HostInfo{
			Online:          v.Online,
			LastHeartbeatAt: v.LastHeartbeatAt,
			Info:            v.Info,
		}
	}
	return &HostsOutput{Body: HostsBody{Hosts: hosts}}, nil
}

// Control

type StopJobBody struct {
	JobID   string `json:"job_id" doc:"Job ID"`
	Status  string `json:"status" doc:"Status after the stop request"`
	Message string `json:"message" doc:"What the stop request did"`
}

type StopJobOutput struct {
	Body StopJobBody
}

func (h *JobsHandler) Stop(ctx context.Context, input *JobIDInput) (*StopJobOutput, error) {
	j, msg, err := h.svc.Stop(ctx, input.JobID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &StopJobOutput{Body: StopJobBody{JobID: j.ID, Status: string(j.Status), Message: msg}}, nil
}

type DeleteJobBody struct {
	Message string `json:"message" doc:"Operation result"`
	Warning string `json:"warning,omitempty" doc:"Non-fatal cleanup problem"`
}

type DeleteJobOutput struct {
	Body DeleteJobBody
}

func (h *JobsHandler) Delete(ctx context.Context, input *JobIDInput) (*DeleteJobOutput, error) {
	warning, err := h.svc.Delete(ctx, input.JobID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &DeleteJobOutput{Body: DeleteJobBody{Message: "job deleted", Warning: warning}}, nil
}
