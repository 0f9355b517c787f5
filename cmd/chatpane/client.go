package main

import (
	"errors"
	"log/slog"

	"github.com/user/chatpane/internal/chat"
	"github.com/user/chatpane/internal/config"
	"github.com/user/chatpane/internal/dispatch"
	"github.com/user/chatpane/internal/session"
	"github.com/user/chatpane/pkg/backend/httpapi"
)

var errNoSession = errors.New("not logged in (run `chatpane login`)")

func newClient(cfg *config.Config, tokens *session.FileStore) *httpapi.Client {
	return httpapi.New(httpapi.Config{
		BaseURL:       cfg.Backend.BaseURL,
		Timeout:       cfg.BackendTimeout(),
		RatePerSecond: cfg.Backend.RatePerSecond,
		Burst:         cfg.Backend.Burst,
		MaxRetries:    cfg.Backend.MaxRetries,
	}, tokens)
}

// app bundles what every chat command needs. close must be called.
type app struct {
	cfg     *config.Config
	tokens  *session.FileStore
	client  *httpapi.Client
	manager *chat.Manager
	lanes   *dispatch.Queue
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	tokens := session.NewFileStore(cfg.DataDir)
	client := newClient(cfg, tokens)
	lanes := dispatch.NewQueue(int64(cfg.MaxConcurrent))
	manager := chat.NewManager(client, tokens,
		chat.WithLogger(logger),
		chat.WithLanes(lanes),
		chat.WithOnUnauthenticated(func() {
			logger.Warn("session expired, token cleared")
		}),
	)
	return &app{cfg: cfg, tokens: tokens, client: client, manager: manager, lanes: lanes}
}

func (a *app) close() {
	a.manager.Close()
	a.lanes.Stop()
}

func (a *app) requireSession() error {
	if _, ok := a.tokens.Get(); !ok {
		return errNoSession
	}
	return nil
}

// explain prefers the manager's user-facing message over the raw error.
func (a *app) explain(err error) error {
	if err == nil {
		return nil
	}
	if msg := a.manager.Snapshot().Error; msg != "" {
		return errors.New(msg)
	}
	return err
}
