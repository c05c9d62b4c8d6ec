package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/server/api/response"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

// AgentHandler implements the worker-facing protocol on plain Echo
// routes. The payload shapes are the wire contract agents are built
// against, so they bypass the huma layer.
type AgentHandler struct {
	svc *orchestrator.Service
}

func NewAgentHandler(svc *orchestrator.Service) *AgentHandler {
	return &AgentHandler{svc: svc}
}

type nextJobRequest struct {
	WorkerID string `json:"worker_id"`
}

// NextJob hands out the oldest eligible queued job, or 204 when the
// queue has nothing for this worker.
func (h *AgentHandler) NextJob(c echo.Context) error {
	var req nextJobRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "malformed request body")
	}

	payload, err := h.svc.NextJob(c.Request().Context(), req.WorkerID)
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		return response.Error(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return response.Error(c, http.StatusInternalServerError, err.Error())
	case payload == nil:
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, payload)
}

type jobStatusRequest struct {
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
	WorkerID      string `json:"worker_id,omitempty"`
	ContainerID   string `json:"container_id,omitempty"`
	ContainerName string `json:"container_name,omitempty"`
	ExitCode      *int64 `json:"exit_code,omitempty"`
	Error         string `json:"error,omitempty"`
	Details       string `json:"details,omitempty"`
}

// JobStatus ingests an agent status report. A report that is illegal
// against the job's current status gets a 409; agents react by fetching
// the status and reconciling, which is how stop requests reach them.
func (h *AgentHandler) JobStatus(c echo.Context) error {
	var req jobStatusRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "malformed request body")
	}

	j, err := h.svc.ReportStatus(c.Request().Context(), orchestrator.StatusReport{
		JobID:         req.JobID,
		Status:        job.Status(req.Status),
		WorkerID:      req.WorkerID,
		ContainerID:   req.ContainerID,
		ContainerName: req.ContainerName,
		ExitCode:      req.ExitCode,
		Error:         req.Error,
		Details:       req.Details,
	})
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		return response.Error(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrJobNotFound):
		return response.Error(c, http.StatusNotFound, "job not found")
	case errors.Is(err, job.ErrInvalidTransition):
		return response.Error(c, http.StatusConflict, err.Error())
	case err != nil:
		return response.Error(c, http.StatusInternalServerError, err.Error())
	}
	return response.OK(c, string(j.Status))
}

type heartbeatRequest struct {
	WorkerID string         `json:"worker_id"`
	Info     map[string]any `json:"info,omitempty"`
}

// Heartbeat records worker liveness; unknown workers are registered on
// first contact.
func (h *AgentHandler) Heartbeat(c echo.Context) error {
	var req heartbeatRequest
	if err := c.Bind(&req); err != nil {
		return response.Error(c, http.StatusBadRequest, "malformed request body")
	}

	err := h.svc.Heartbeat(c.Request().Context(), req.WorkerID, req.Info)
	switch {
	case errors.Is(err, orchestrator.ErrValidation):
		return response.Error(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return response.Error(c, http.StatusInternalServerError, err.Error())
	}
	return response.OK(c, "")
}
