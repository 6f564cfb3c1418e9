// Package app wires the gateway from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cityalert/internal/attachment"
	"cityalert/internal/config"
	"cityalert/internal/gateway/handler"
	"cityalert/internal/gateway/server"
	"cityalert/internal/incidentapi"
	"cityalert/internal/intake"
	"cityalert/internal/llm"
	"cityalert/internal/session"

	"github.com/gin-gonic/gin"
)

type App struct {
	server *server.Server
	chat   llm.ChatClient
	store  *session.Store
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	chat, err := llm.New(ctx, cfg.Chat, cfg.APIBaseURL, cfg.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}
	api := incidentapi.New(cfg.APIBaseURL, incidentapi.WithTimeout(cfg.HTTPTimeout))

	images, err := imageStore(cfg.Attachment)
	if err != nil {
		_ = chat.Close()
		return nil, err
	}

	store := session.NewStore(cfg.Session, func(id string) *intake.Engine {
		return intake.New(chat, api,
			intake.WithSessionID(id),
			intake.WithImageStore(images),
		)
	})

	router := server.NewRouter(
		handler.NewSessionHandler(store),
		handler.NewAlertsHandler(api, cfg.Map),
	)
	slog.InfoContext(ctx, "gateway configured",
		"env", cfg.Env,
		"provider", chat.Name(),
		"api_base_url", api.BaseURL(),
		"s3_uploads", cfg.Attachment.CanUseS3())

	return &App{
		server: server.New(cfg.Port, router),
		chat:   chat,
		store:  store,
	}, nil
}

// imageStore uploads to object storage when configured and falls back to
// placeholders otherwise.
func imageStore(cfg config.AttachmentConfig) (intake.ImageStore, error) {
	if !cfg.CanUseS3() {
		return attachment.PlaceholderStore{}, nil
	}
	s3, err := attachment.NewS3Store(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment store: %w", err)
	}
	return s3, nil
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	err := a.server.Shutdown(ctx)
	slog.InfoContext(ctx, "closing sessions", "active", a.store.Len())
	return errors.Join(err, a.chat.Close())
}
