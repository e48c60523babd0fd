package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/okian/boardcheck/internal/domain/mlconfig"
)

// ConfigDependencies is the model-config admin surface.
type ConfigDependencies interface {
	ActiveConfig(ctx context.Context) (mlconfig.ModelConfig, error)
	Config(ctx context.Context, version int) (mlconfig.ModelConfig, error)
	Configs(ctx context.Context) ([]mlconfig.ModelConfig, error)
	CreateConfig(ctx context.Context, draft mlconfig.ModelConfig) (mlconfig.ModelConfig, error)
	DuplicateConfig(ctx context.Context, version int, description string) (mlconfig.ModelConfig, error)
	ActivateConfig(ctx context.Context, version int) error
}

// ConfigsHandler serves the versioned model configs. Versions are never
// edited in place: changes go through create or duplicate, then activate.
type ConfigsHandler struct {
	deps ConfigDependencies
}

// NewConfigsHandler creates a new configs handler.
func NewConfigsHandler(deps ConfigDependencies) *ConfigsHandler {
	return &ConfigsHandler{deps: deps}
}

type configsResponse struct {
	Configs []mlconfig.ModelConfig `json:"configs"`
}

type duplicateRequest struct {
	Description string `json:"description"`
}

type activateResponse struct {
	Status  string `json:"status"`
	Version int    `json:"version"`
}

// HandleList handles GET /configs.
func (h *ConfigsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	cfgs, err := h.deps.Configs(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if cfgs == nil {
		cfgs = []mlconfig.ModelConfig{}
	}
	writeJSON(w, http.StatusOK, configsResponse{Configs: cfgs})
}

// HandleGetActive handles GET /configs/active.
func (h *ConfigsHandler) HandleGetActive(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.deps.ActiveConfig(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// HandleGet handles GET /configs/{version}.
func (h *ConfigsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_config"
	version, err := pathVersion(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	cfg, err := h.deps.Config(r.Context(), version)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// HandleCreate handles POST /configs. The body is a full config; version and
// is_active are assigned by the store.
func (h *ConfigsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_config"
	var draft mlconfig.ModelConfig
	if err := decodeJSON(w, r, &draft); err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	cfg, err := h.deps.CreateConfig(r.Context(), draft)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// HandleDuplicate handles POST /configs/{version}/duplicate with an optional
// {"description": "..."} body.
func (h *ConfigsHandler) HandleDuplicate(w http.ResponseWriter, r *http.Request) {
	const op = "api.duplicate_config"
	version, err := pathVersion(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	var req duplicateRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	cfg, err := h.deps.DuplicateConfig(r.Context(), version, req.Description)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// HandleActivate handles POST /configs/{version}/activate.
func (h *ConfigsHandler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	const op = "api.activate_config"
	version, err := pathVersion(r)
	if err != nil {
		writeFailure(w, WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := h.deps.ActivateConfig(r.Context(), version); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activateResponse{Status: "activated", Version: version})
}
