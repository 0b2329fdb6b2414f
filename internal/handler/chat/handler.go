package chat

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/taleloom/taleloom/backend/internal/model/character"
	chatmodel "github.com/taleloom/taleloom/backend/internal/model/chat"
	"github.com/taleloom/taleloom/backend/internal/model/note"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Handler exposes the chat-tree lifecycle over HTTP.
type Handler struct {
	chatSvc *chatservice.Service
}

// New creates the chat handler.
func New(chatSvc *chatservice.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes mounts the chat routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/chats", h.handleList)
	r.Post("/chats", h.handleCreate)
	r.Get("/chats/{chatID}", h.handleResolvedView)
	r.Delete("/chats/{chatID}", h.handleDelete)
	r.Post("/chats/{chatID}/fork", h.handleFork)
	r.Post("/chats/{chatID}/messages", h.handleAppendMessage)
	r.Patch("/chats/{chatID}/messages/{messageID}", h.handleEditMessage)
	r.Delete("/chats/{chatID}/messages/{messageID}", h.handleDeleteMessage)
	r.Post("/chats/{chatID}/participants/{index}/promote", h.handlePromote)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.chatSvc.List(r.Context())
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title        string          `json:"title"`
		PersonaID    string          `json:"personaId"`
		Participants []character.Ref `json:"participants"`
		Notes        []note.Ref      `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := h.chatSvc.Create(r.Context(), chatservice.CreateParams{
		Title:        payload.Title,
		PersonaID:    payload.PersonaID,
		Participants: payload.Participants,
		Notes:        payload.Notes,
	})
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleResolvedView(w http.ResponseWriter, r *http.Request) {
	view, err := h.chatSvc.ResolvedView(r.Context(), chi.URLParam(r, "chatID"))
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, view)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Delete(r.Context(), chi.URLParam(r, "chatID")); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handleFork(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MessageID string `json:"messageId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	child, err := h.chatSvc.Fork(r.Context(), chi.URLParam(r, "chatID"), payload.MessageID)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, child)
}

func (h *Handler) handleAppendMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Role              string `json:"role"`
		Content           string `json:"content"`
		AuthorCharacterID string `json:"authorCharacterId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.AppendMessage(r.Context(), chi.URLParam(r, "chatID"), chatmodel.Role(payload.Role), payload.Content, payload.AuthorCharacterID)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.EditMessage(r.Context(), chi.URLParam(r, "chatID"), chi.URLParam(r, "messageID"), payload.Content); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (h *Handler) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.DeleteMessage(r.Context(), chi.URLParam(r, "chatID"), chi.URLParam(r, "messageID")); err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *Handler) handlePromote(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid participant index")
		return
	}

	promoted, err := h.chatSvc.PromoteParticipant(r.Context(), chi.URLParam(r, "chatID"), index)
	if err != nil {
		utils.RespondServiceError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusCreated, promoted)
}
