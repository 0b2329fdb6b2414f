// Package stream serves model generations over Server-Sent Events. Nothing
// is persisted until a generation completes: a cancelled or failed stream
// leaves the chat exactly as it was, and the partial text the client already
// saw stays display-only.
package stream

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cloudwego/eino/schema"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/metrics"
	chatmodel "github.com/taleloom/taleloom/backend/internal/model/chat"
	aiservice "github.com/taleloom/taleloom/backend/internal/service/ai"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/internal/service/prompt"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Handler manages streaming generations for chats.
type Handler struct {
	aiSvc       *aiservice.Service
	chatSvc     *chatservice.Service
	settingsSvc *settingsservice.Service
	assembler   *prompt.Assembler
	template    *prompt.Template
}

// New creates the stream handler. template may be nil to use the built-in
// default.
func New(aiSvc *aiservice.Service, chatSvc *chatservice.Service, settingsSvc *settingsservice.Service, assembler *prompt.Assembler, template *prompt.Template) *Handler {
	return &Handler{
		aiSvc:       aiSvc,
		chatSvc:     chatSvc,
		settingsSvc: settingsSvc,
		assembler:   assembler,
		template:    template,
	}
}

// StreamResponse is one SSE frame.
type StreamResponse struct {
	Event    string `json:"event"`
	Content  string `json:"content,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
	Finished bool   `json:"finished,omitempty"`
	Error    string `json:"error,omitempty"`
}

// HandleGenerate streams a response to a new user message.
func (h *Handler) HandleGenerate(ctx context.Context, w http.ResponseWriter, chatID, userMessage string) error {
	return h.run(ctx, w, chatID, userMessage, "")
}

// HandleRegenerate streams a replacement for an existing assistant message.
func (h *Handler) HandleRegenerate(ctx context.Context, w http.ResponseWriter, chatID, targetMessageID string) error {
	return h.run(ctx, w, chatID, "", targetMessageID)
}

func (h *Handler) run(ctx context.Context, w http.ResponseWriter, chatID, userMessage, regenerateTargetID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	c, err := h.chatSvc.Get(ctx, chatID)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to load chat: %v", err))
		return err
	}

	// Immutable settings snapshot for this one assembly.
	snap, err := h.settingsSvc.Snapshot(ctx)
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to load settings: %v", err))
		return err
	}

	assembled, err := h.assembler.Assemble(ctx, prompt.Input{
		Chat:               &c,
		Template:           h.template,
		Settings:           snap,
		PendingUserContent: userMessage,
		RegenerateTargetID: regenerateTargetID,
	})
	if err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("prompt assembly failed: %v", err))
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "start", ChatID: chatID})

	final, err := h.generate(ctx, w, flusher, chatID, assembled, snap.ActivePreset().CurationEnabled)
	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			// Abort, not failure: the partial text stays client-side only.
			metrics.Generations.WithLabelValues("aborted").Inc()
			log.WithField("chat", chatID).Info("generation aborted by client")
			return nil
		}
		metrics.Generations.WithLabelValues("error").Inc()
		h.sendSSEError(w, flusher, fmt.Sprintf("generation failed: %v", err))
		return err
	}

	if err := h.commit(ctx, chatID, userMessage, regenerateTargetID, final, &c); err != nil {
		h.sendSSEError(w, flusher, fmt.Sprintf("failed to persist response: %v", err))
		return err
	}
	metrics.Generations.WithLabelValues("ok").Inc()

	h.sendSSE(w, flusher, StreamResponse{Event: "end", ChatID: chatID, Finished: true})
	log.WithField("chat", chatID).Info("generation completed")
	return nil
}

// generate runs the first model pass, streaming deltas, then the optional
// curation pass over the accumulated output.
func (h *Handler) generate(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, chatID string, assembled *prompt.Output, curate bool) (string, error) {
	stream, err := h.aiSvc.Generate(ctx, assembled.System, assembled.Messages, assembled.Params)
	if err != nil {
		return "", err
	}

	// With streaming disabled the chunks are still drained, but the client
	// only sees the final message frame.
	var onDelta func(*schema.Message)
	if h.aiSvc.StreamingEnabled() {
		onDelta = func(chunk *schema.Message) {
			h.sendSSE(w, flusher, StreamResponse{Event: "delta", ChatID: chatID, Content: chunk.Content})
		}
	}
	draft, err := aiservice.Drain(stream, onDelta)
	if err != nil {
		return "", err
	}

	final := draft.Content
	if curate {
		curStream, err := h.aiSvc.Curate(ctx, assembled.System, draft.Content, assembled.Params)
		if err != nil {
			return "", err
		}
		var onCuration func(*schema.Message)
		if h.aiSvc.StreamingEnabled() {
			onCuration = func(chunk *schema.Message) {
				h.sendSSE(w, flusher, StreamResponse{Event: "curation", ChatID: chatID, Content: chunk.Content})
			}
		}
		curated, err := aiservice.Drain(curStream, onCuration)
		if err != nil {
			return "", err
		}
		if curated.Content != "" {
			final = curated.Content
		}
	}

	h.sendSSE(w, flusher, StreamResponse{Event: "message", ChatID: chatID, Content: final})
	return final, nil
}

// commit persists the exchange once the generation finished cleanly.
func (h *Handler) commit(ctx context.Context, chatID, userMessage, regenerateTargetID, final string, c *chatmodel.Chat) error {
	if regenerateTargetID != "" {
		return h.chatSvc.CommitRegeneration(ctx, chatID, regenerateTargetID, final)
	}

	if userMessage != "" {
		if _, err := h.chatSvc.AppendMessage(ctx, chatID, chatmodel.RoleUser, userMessage, c.PersonaID); err != nil {
			return err
		}
	}
	_, err := h.chatSvc.AppendMessage(ctx, chatID, chatmodel.RoleAssistant, final, "")
	return err
}

// sendSSE sends a Server-Sent Event frame.
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}

// sendSSEError sends an error frame.
func (h *Handler) sendSSEError(w http.ResponseWriter, flusher http.Flusher, errorMsg string) {
	h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: errorMsg})
}
