package settings

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	settingsmodel "github.com/taleloom/taleloom/backend/internal/model/settings"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Handler exposes generation settings over HTTP.
type Handler struct {
	svc *settingsservice.Service
}

// New creates the settings handler.
func New(svc *settingsservice.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the settings routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGet)
	r.Post("/settings/activate", h.handleActivate)
	r.Put("/settings/presets/{name}", h.handleSavePreset)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(r.Context())
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.svc.Activate(r.Context(), payload.Name)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleSavePreset(w http.ResponseWriter, r *http.Request) {
	var payload settingsmodel.Preset
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := h.svc.SavePreset(r.Context(), chi.URLParam(r, "name"), payload)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, snap)
}
