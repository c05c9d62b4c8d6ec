package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/artifacts"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/configstore"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/core/job"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/datasets"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/orchestrator"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/store"
)

// mapDomainError translates engine and collaborator errors into HTTP
// status errors. Anything unrecognized is a 500.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, orchestrator.ErrValidation),
		errors.Is(err, configstore.ErrInvalidName),
		errors.Is(err, datasets.ErrInvalidName),
		errors.Is(err, datasets.ErrBadEncoding),
		errors.Is(err, artifacts.ErrInvalidJobID):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, store.ErrJobNotFound),
		errors.Is(err, store.ErrHostNotFound),
		errors.Is(err, configstore.ErrNotFound),
		errors.Is(err, artifacts.ErrNoLog):
		return huma.Error404NotFound(err.Error())
	case errors.Is(err, job.ErrInvalidTransition),
		errors.Is(err, orchestrator.ErrJobActive):
		return huma.Error409Conflict(err.Error())
	default:
		return huma.Error500InternalServerError(err.Error())
	}
}

// JobIDInput is the shared path parameter of per-job operations.
type JobIDInput struct {
	JobID string `path:"job_id" doc:"Job ID"`
}

// MessageBody is the generic acknowledgement payload.
type MessageBody struct {
	Message string `json:"message" doc:"Operation result"`
}
