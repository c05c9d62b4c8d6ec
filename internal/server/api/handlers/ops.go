package handlers

import (
	"context"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
)

// OpsHandler exposes the operator overrides. Everything here takes an
// optional force flag and a human-readable reason that ends up on the
// job record.
type OpsHandler struct {
	svc *orchestrator.Service
}

func NewOpsHandler(svc *orchestrator.Service) *OpsHandler {
	return &OpsHandler{svc: svc}
}

type OpsResultBody struct {
	JobID  string `json:"job_id" doc:"Job ID"`
	Status string `json:"status" doc:"Status after the override"`
	Reason string `json:"reason,omitempty" doc:"Reason recorded on the job"`
}

type OpsResultOutput struct {
	Body OpsResultBody
}

type RequeueInput struct {
	JobID string `path:"job_id" doc:"Job ID"`
	Body  struct {
		Force         bool    `json:"force,omitempty" doc:"Requeue from any state, terminal included"`
		PreferredHost *string `json:"preferred_host,omitempty" doc:"Override the placement hint (empty string unpins)"`
		RequireHost   *bool   `json:"require_host,omitempty" doc:"Override whether the hint is binding"`
		Reason        string  `json:"reason,omitempty" doc:"Why the job is being requeued"`
	}
}

func (h *OpsHandler) Requeue(ctx context.Context, input *RequeueInput) (*OpsResultOutput, error) {
	j, err := h.svc.OpsRequeue(ctx, input.JobID, orchestrator.RequeueOptions{
		Force:         input.Body.Force,
		PreferredHost: input.Body.PreferredHost,
		RequireHost:   input.Body.RequireHost,
		Reason:        input.Body.Reason,
	})
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &OpsResultOutput{Body: OpsResultBody{JobID: j.ID, Status: string(j.Status), Reason: input.Body.Reason}}, nil
}

type ForceReasonInput struct {
	JobID string `path:"job_id" doc:"Job ID"`
	Body  struct {
		Force  bool   `json:"force,omitempty" doc:"Apply from states the unforced override rejects"`
		Reason string `json:"reason,omitempty" doc:"Reason recorded on the job"`
	}
}

func (h *OpsHandler) Fail(ctx context.Context, input *ForceReasonInput) (*OpsResultOutput, error) {
	j, err := h.svc.OpsFail(ctx, input.JobID, input.Body.Reason, input.Body.Force)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &OpsResultOutput{Body: OpsResultBody{JobID: j.ID, Status: string(j.Status), Reason: j.Error}}, nil
}

func (h *OpsHandler) Cancel(ctx context.Context, input *ForceReasonInput) (*OpsResultOutput, error) {
	j, err := h.svc.OpsCancel(ctx, input.JobID, input.Body.Reason, input.Body.Force)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &OpsResultOutput{Body: OpsResultBody{JobID: j.ID, Status: string(j.Status), Reason: j.Details}}, nil
}

type CleanupBody struct {
	Removed []job.QueueEntry `json:"removed" doc:"Queue entries removed by the sweep"`
	Count   int              `json:"count" doc:"Number of removed entries"`
}

type CleanupOutput struct {
	Body CleanupBody
}

func (h *OpsHandler) Cleanup(ctx context.Context, _ *struct{}) (*CleanupOutput, error) {
	removed, err := h.svc.Cleanup(ctx)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if removed == nil {
		removed = []job.QueueEntry{}
	}
	return &CleanupOutput{Body: CleanupBody{Removed: removed, Count: len(removed)}}, nil
}
