package note

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	notemodel "github.com/taleloom/taleloom/backend/internal/model/note"
	"github.com/taleloom/taleloom/backend/internal/service/library"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Handler exposes the note library over HTTP.
type Handler struct {
	lib *library.Service
}

// New creates the note handler.
func New(lib *library.Service) *Handler {
	return &Handler{lib: lib}
}

// RegisterRoutes mounts the note routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/notes", h.handleList)
	r.Post("/notes", h.handleSave)
	r.Get("/notes/{noteID}", h.handleGet)
	r.Put("/notes/{noteID}", h.handleUpdate)
	r.Delete("/notes/{noteID}", h.handleDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	notes, err := h.lib.ListNotes(r.Context())
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, notes)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	n, err := h.lib.GetNote(r.Context(), chi.URLParam(r, "noteID"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, n)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload notemodel.Note
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Name == "" {
		utils.RespondError(w, http.StatusBadRequest, "name is required")
		return
	}

	saved, err := h.lib.SaveNote(r.Context(), payload)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, saved)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var payload notemodel.Note
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payload.ID = chi.URLParam(r, "noteID")

	if _, err := h.lib.GetNote(r.Context(), payload.ID); err != nil {
		utils.RespondServiceError(w, err)
		return
	}

	saved, err := h.lib.SaveNote(r.Context(), payload)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, saved)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.lib.DeleteNote(r.Context(), chi.URLParam(r, "noteID")); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
