package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/taleloom/taleloom/backend/internal/config"
	"github.com/taleloom/taleloom/backend/internal/handler"
	"github.com/taleloom/taleloom/backend/internal/handler/stream"
	"github.com/taleloom/taleloom/backend/internal/notify"
	"github.com/taleloom/taleloom/backend/internal/service/ai"
	chatservice "github.com/taleloom/taleloom/backend/internal/service/chat"
	"github.com/taleloom/taleloom/backend/internal/service/library"
	"github.com/taleloom/taleloom/backend/internal/service/prompt"
	"github.com/taleloom/taleloom/backend/internal/service/resolve"
	settingsservice "github.com/taleloom/taleloom/backend/internal/service/settings"
	"github.com/taleloom/taleloom/backend/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.WithError(err).Debug("no .env file, using system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	var recordStore store.Store
	if cfg.Store.Path != "" {
		recordStore, err = store.OpenPebble(cfg.Store.Path)
		if err != nil {
			log.WithError(err).Fatal("failed to open record store")
		}
	} else {
		log.Warn("DATA_DIR empty, records will not survive restarts")
		recordStore = store.NewMemoryStore()
	}
	defer func() {
		if err := recordStore.Close(); err != nil {
			log.WithError(err).Error("failed to close record store")
		}
	}()

	hub := notify.NewHub()
	resolver := resolve.NewResolverWithLimits(recordStore, cfg.Resolve.MaxDepth, cfg.Resolve.MaxMessages)
	chatSvc := chatservice.NewService(recordStore, resolver, hub)
	librarySvc := library.NewService(recordStore)
	settingsSvc := settingsservice.NewService(recordStore)
	assembler := prompt.NewAssembler(recordStore, resolver)

	var template *prompt.Template
	if cfg.Prompt.TemplatePath != "" {
		template, err = prompt.LoadTemplate(cfg.Prompt.TemplatePath)
		if err != nil {
			log.WithError(err).Fatal("failed to load prompt template")
		}
		log.WithField("path", cfg.Prompt.TemplatePath).Info("prompt template loaded")
	}

	var streamH *stream.Handler
	if cfg.AI.Enabled() {
		aiSvc, err := ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.WithError(err).Warn("failed to initialize model backend, continuing without generation")
		} else {
			streamH = stream.New(aiSvc, chatSvc, settingsSvc, assembler, template)
			log.Info("model backend initialized")
		}
	} else {
		log.Info("model credentials not configured, generation endpoints disabled")
	}

	router := handler.NewRouter(handler.Deps{
		ChatSvc:     chatSvc,
		LibrarySvc:  librarySvc,
		SettingsSvc: settingsSvc,
		Hub:         hub,
		StreamH:     streamH,
	})

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.WithField("addr", addr).Info("Taleloom backend listening")
	if err := runServer(ctx, srv); err != nil {
		log.WithError(err).Fatal("server error")
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
