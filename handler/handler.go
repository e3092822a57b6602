package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/cedar-tools/scriptrun/config"
	"github.com/cedar-tools/scriptrun/internal/execution/supervisor"
	"github.com/cedar-tools/scriptrun/internal/inventory"
)

// Controller controls the script runs.
type Controller interface {
	Start(ctx context.Context, req supervisor.RunRequest) (supervisor.RunInfo, error)
	Stop()
	Active() (supervisor.RunInfo, bool)
	Subscribe() (<-chan supervisor.Event, func())
}

// Catalog lists scripts and their configurations.
type Catalog interface {
	List() ([]string, error)
	LoadConfig(id string) (map[string]any, error)
}

type RunHandlerParams struct {
	fx.In

	Controller Controller
	Catalog    Catalog
	Config     config.Config
	Log        *zap.Logger
}

func NewRunHandler(params RunHandlerParams) *RunHandler {
	return &RunHandler{
		controller: params.Controller,
		catalog:    params.Catalog,
		config:     params.Config,
		log:        params.Log.Named("runs"),
	}
}

type RunHandler struct {
	controller Controller
	catalog    Catalog
	config     config.Config
	log        *zap.Logger
}

func (h *RunHandler) Scripts(w http.ResponseWriter, r *http.Request) {
	ids, err := h.catalog.List()
	if err != nil {
		h.log.Error("failed to list scripts", zap.Error(err))
		http.Error(w, "failed to list scripts", http.StatusInternalServerError)
		return
	}

	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, ids, h.log)
}

func (h *RunHandler) Start(w http.ResponseWriter, r *http.Request) {
	log := h.log.With(
		zap.String("path", r.URL.Path),
		zap.String("method", r.Method),
	)

	var req supervisor.RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Debug("failed to decode body", zap.Error(err))
		http.Error(w, "failed to decode body", http.StatusBadRequest)
		return
	}

	if req.ScriptID == "" {
		http.Error(w, "missing script_id", http.StatusBadRequest)
		return
	}

	if req.Config == nil {
		saved, err := h.catalog.LoadConfig(req.ScriptID)
		if err != nil {
			log.Debug("failed to load config", zap.Error(err))
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		req.Config = saved
	}

	if req.BaseDir == "" {
		req.BaseDir = h.config.BaseDir
	}

	info, err := h.controller.Start(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	writeJSON(w, http.StatusAccepted, info, log)
}

func (h *RunHandler) Active(w http.ResponseWriter, r *http.Request) {
	info, ok := h.controller.Active()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	writeJSON(w, http.StatusOK, info, h.log)
}

func (h *RunHandler) Stop(w http.ResponseWriter, r *http.Request) {
	h.controller.Stop()
	w.WriteHeader(http.StatusNoContent)
}

// Events streams every event as a JSON line until the client goes away.
func (h *RunHandler) Events(w http.ResponseWriter, r *http.Request) {
	events, cancel := h.controller.Subscribe()
	defer cancel()

	flusher, _ := w.(http.Flusher)

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	if flusher != nil {
		flusher.Flush()
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}

			if err := enc.Encode(event); err != nil {
				h.log.Debug("failed to write event", zap.Error(err))
				return
			}

			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

func HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, nil)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, supervisor.ErrScriptNotFound), errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, supervisor.ErrSerialization), errors.Is(err, supervisor.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	}

	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any, log *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil && log != nil {
		log.Debug("failed to write response", zap.Error(err))
	}
}
