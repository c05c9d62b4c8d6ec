package handlers

import (
	"context"

	"github.com/Soft-CPS-Research-Group/opeva-backend-api-training/internal/configstore"
)

type ConfigsHandler struct {
	store *configstore.Store
}

func NewConfigsHandler(store *configstore.Store) *ConfigsHandler {
	return &ConfigsHandler{store: store}
}

type CreateConfigInput struct {
	Body struct {
		FileName string         `json:"file_name" minLength:"1" doc:"Config file name (yaml extension added if missing)"`
		Config   map[string]any `json:"config" doc:"Experiment config document"`
	}
}

type CreateConfigBody struct {
	Path string `json:"path" doc:"Shared-dir-relative path of the stored config"`
}

type CreateConfigOutput struct {
	Body CreateConfigBody
}

func (h *ConfigsHandler) Create(_ context.Context, input *CreateConfigInput) (*CreateConfigOutput, error) {
	rel, err := h.store.Save(input.Body.FileName, input.Body.Config)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &CreateConfigOutput{Body: CreateConfigBody{Path: rel}}, nil
}

type ListConfigsBody struct {
	Configs []string `json:"configs" doc:"Stored config file names"`
}

type ListConfigsOutput struct {
	Body ListConfigsBody
}

func (h *ConfigsHandler) List(_ context.Context, _ *struct{}) (*ListConfigsOutput, error) {
	names, err := h.store.List()
	if err != nil {
		return nil, mapDomainError(err)
	}
	if names == nil {
		names = []string{}
	}
	return &ListConfigsOutput{Body: ListConfigsBody{Configs: names}}, nil
}

type ConfigNameInput struct {
	Name string `path:"name" doc:"Config file name"`
}

type GetConfigOutput struct {
	Body map[string]any
}

func (h *ConfigsHandler) Get(_ context.Context, input *ConfigNameInput) (*GetConfigOutput, error) {
	doc, err := h.store.Load(input.Name)
	if err != nil {
		return nil, mapDomainError(err)
	}
	return &GetConfigOutput{Body: doc}, nil
}

type DeleteConfigOutput struct {
	Body MessageBody
}

func (h *ConfigsHandler) Delete(_ context.Context, input *ConfigNameInput) (*DeleteConfigOutput, error) {
	if err := h.store.Delete(input.Name); err != nil {
		return nil, mapDomainError(err)
	}
	return &DeleteConfigOutput{Body: MessageBody{Message: "config deleted"}}, nil
}
