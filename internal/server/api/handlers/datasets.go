package handlers

import (
	"context"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/datasets"
)

type DatasetsHandler struct {
	store *datasets.Store
}

func NewDatasetsHandler(store *datasets.Store) *DatasetsHandler {
	return &DatasetsHandler{store: store}
}

type CreateDatasetInput struct {
	Body struct {
		Name      string            `json:"name" minLength:"1" doc:"Dataset name"`
		Schema    map[string]any    `json:"schema" doc:"Dataset schema document"`
		DataFiles map[string]string `json:"data_files,omitempty" doc:"File name to base64 content"`
	}
}

type CreateDatasetBody struct {
	Path string `json:"path" doc:"Shared-dir-relative path of the dataset"`
}

type CreateDatasetOutput struct {
	Body CreateDatasetBody
}

func (h *DatasetsHandler) Create(_ context.Context, input *CreateDatasetInput) (*CreateDatasetOutput, error) {
	rel, err := h.store.Create(input.Body.Name, input.Body.Schema, input.Body.DataFiles)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &CreateDatasetOutput{Body: CreateDatasetBody{Path: rel}}, nil
}

type ListDatasetsBody struct {
	Datasets []string `json:"datasets" doc:"Available dataset names"`
}

type ListDatasetsOutput struct {
	Body ListDatasetsBody
}

func (h *DatasetsHandler) List(_ context.Context, _ *struct{}) (*ListDatasetsOutput, error) {
	names, err := h.store.List()
	if err != nil {
		return nil, mapDomainError(err)
	}
	if names == nil {
		names = []string{}
	}
	return &ListDatasetsOutput{Body: ListDatasetsBody{Datasets: names}}, nil
}
