package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/artifacts"
	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/server/api/response"
)

// ArtifactsHandler serves the read side of the shared artifact area.
// Workers write results, progress and logs; these endpoints only read.
type ArtifactsHandler struct {
	area *artifacts.Area
}

func NewArtifactsHandler(area *artifacts.Area) *ArtifactsHandler {
	return &ArtifactsHandler{area: area}
}

type DocumentOutput struct {
	Body any
}

func (h *ArtifactsHandler) Result(_ context.Context, input *JobIDInput) (*DocumentOutput, error) {
	doc, err := h.area.Result(input.JobID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &DocumentOutput{Body: doc}, nil
}

func (h *ArtifactsHandler) Progress(_ context.Context, input *JobIDInput) (*DocumentOutput, error) {
	doc, err := h.area.Progress(input.JobID)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &DocumentOutput{Body: doc}, nil
}

type LogsInput struct {
	JobID string `path:"job_id" doc:"Job ID"`
	Tail  int    `query:"tail" default:"100" minimum:"0" doc:"Number of trailing lines, 0 for the whole log"`
}

type LogsBody struct {
	JobID string   `json:"job_id" doc:"Job ID"`
	Lines []string `json:"lines" doc:"Log lines, oldest first"`
}

type LogsOutput struct {
	Body LogsBody
}

func (h *ArtifactsHandler) Logs(_ context.Context, input *LogsInput) (*LogsOutput, error) {
	lines, err := h.area.TailLog(input.JobID, input.Tail)
	if err != nil {
		return nil, mapDomainError(err)
	}
	if lines == nil {
		lines = []string{}
	}
	return &LogsOutput{Body: LogsBody{JobID: input.JobID, Lines: lines}}, nil
}

// StreamLogs streams the raw log file over a plain Echo route, the way
// log followers consume it.
func (h *ArtifactsHandler) StreamLogs(c echo.Context) error {
	f, err := h.area.OpenLog(c.Param("job_id"))
	switch {
	case errors.Is(err, artifacts.ErrInvalidJobID):
		return response.Error(c, http.StatusBadRequest, "invalid job id")
	case errors.Is(err, artifacts.ErrNoLog):
		return response.Error(c, http.StatusNotFound, "log file not found")
	case err != nil:
		return response.Error(c, http.StatusInternalServerError, err.Error())
	}
	defer f.Close()
	return c.Stream(http.StatusOK, "text/plain", f)
}
