package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	characterhandler "github.com/taleloom/taleloom/backend/internal/handler/character"
	chathandler "github.com/taleloom/taleloom/backend/internal/handler/chat"
	notehandler "github.com/taleloom/taleloom/backend/internal/handler/note"
	settingshandler "github.com/taleloom/taleloom/backend/internal/handler/settings"
	streamhandler "github.com/taleloom/taleloom/backend/internal/handler/stream"
	wshandler "github.com/taleloom/taleloom/backend/internal/handler/ws"
	middlewarePkg "github.com/taleloom/taleloom/backend/internal/middleware"
	"github.com/taleloom/taleloom/backend/internal/notify"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/internal/service/library"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/pkg/utils"
)

// Deps bundles the services the router wires to routes.
type Deps struct {
	ChatSvc     *chatservice.Service
	LibrarySvc  *library.Service
	SettingsSvc *settingsservice.Service
	Hub         *notify.Hub
	StreamH     *streamhandler.Handler
}

// NewRouter wires HTTP routes to core services.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatH := chathandler.New(d.ChatSvc)
	characterH := characterhandler.New(d.LibrarySvc)
	noteH := notehandler.New(d.LibrarySvc)
	settingsH := settingshandler.New(d.SettingsSvc)

	r.Route("/api", func(api chi.Router) {
		chatH.RegisterRoutes(api)
		characterH.RegisterRoutes(api)
		noteH.RegisterRoutes(api)
		settingsH.RegisterRoutes(api)

		api.Get("/chats/{chatID}/stream", func(w http.ResponseWriter, r *http.Request) {
			chatID := chi.URLParam(r, "chatID")
			userMessage := r.URL.Query().Get("message")

			if d.StreamH == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "generation unavailable")
				return
			}
			if userMessage == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}

			if err := d.StreamH.HandleGenerate(r.Context(), w, chatID, userMessage); err != nil {
				log.WithError(err).WithField("chat", chatID).Error("stream request failed")
			}
		})

		api.Post("/chats/{chatID}/messages/{messageID}/regenerate", func(w http.ResponseWriter, r *http.Request) {
			if d.StreamH == nil {
				utils.RespondError(w, http.StatusServiceUnavailable, "generation unavailable")
				return
			}

			chatID := chi.URLParam(r, "chatID")
			messageID := chi.URLParam(r, "messageID")
			if err := d.StreamH.HandleRegenerate(r.Context(), w, chatID, messageID); err != nil {
				log.WithError(err).WithField("chat", chatID).Error("regenerate request failed")
			}
		})

		if d.Hub != nil {
			wsH := wshandler.New(d.Hub)
			api.Get("/ws", wsH.HandleSubscribe)
		}
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
