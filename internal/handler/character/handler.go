package character

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	charmodel "github.com/taleloom/taleloom/backend/internal/model/character"
	"github.com/taleloom/taleloom/backend/internal/service/library"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Handler exposes the character library over HTTP.
type Handler struct {
	lib *library.Service
}

// New creates the character handler.
func New(lib *library.Service) *Handler {
	return &Handler{lib: lib}
}

// RegisterRoutes mounts the character routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/characters", h.handleList)
	r.Post("/characters", h.handleSave)
	r.Get("/characters/{characterID}", h.handleGet)
	r.Put("/characters/{characterID}", h.handleUpdate)
	r.Delete("/characters/{characterID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	characters, err := h.lib.ListCharacters(r.Context())
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, characters)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ch, err := h.lib.GetCharacter(r.Context(), chi.URLParam(r, "characterID"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, ch)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload charmodel.Character
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	saved, err := h.lib.SaveCharacter(r.Context(), payload)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload charmodel.Character
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.ID = chi.URLParam(r, "characterID")

	if _, err := h.lib.GetCharacter(r.Context(), payload.ID); err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	saved, err := h.lib.SaveCharacter(r.Context(), payload)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteCharacter(r.Context(), chi.URLParam(r, "characterID")); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
