//go:build integration

package test

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/user/chatpane/internal/chat"
	"github.com/user/chatpane/internal/devbackend"
	"github.com/user/chatpane/internal/session"
	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
	"github.com/user/chatpane/pkg/backend/httpapi"
)

type stack struct {
	server  *devbackend.Server
	client  *httpapi.Client
	tokens  *session.FileStore
	manager *chat.Manager
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := devbackend.NewServer(devbackend.Config{
		Secret:     "integration-secret",
		TokenTTL:   time.Hour,
		BcryptCost: bcrypt.MinCost,
		Logger:     logger,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	tokens := session.NewFileStore(t.TempDir())
	client := httpapi.New(httpapi.Config{BaseURL: ts.URL, Timeout: 5 * time.Second}, tokens)
	manager := chat.NewManager(client, tokens, chat.WithLogger(logger))
	t.Cleanup(manager.Close)

	return &stack{server: srv, client: client, tokens: tokens, manager: manager}
}

func (s *stack) signUp(t *testing.T, email string) {
	t.Helper()
	token, err := s.client.Register(context.Background(), backend.RegisterRequest{
		Email: email, Username: "tester", Password: "password123",
	})
	require.NoError(t, err)
	require.NoError(t, s.tokens.Set(token))
}

func TestConversationLifecycle(t *testing.T) {
	s := newStack(t)
	s.signUp(t, "ada@example.com")
	ctx := context.Background()

	require.NoError(t, s.manager.Refresh(ctx))
	assert.Empty(t, s.manager.Snapshot().Chats)

	// First message creates a chat named after it.
	require.NoError(t, s.manager.SendMessage(ctx, "What is the capital of France?"))
	st := s.manager.Snapshot()
	require.Len(t, st.Chats, 1)
	first := st.Chats[0]
	assert.False(t, first.Provisional)
	assert.False(t, first.ID.IsProvisional())
	assert.Equal(t, first.ID, st.ActiveID)
	assert.Equal(t, "What is the capital", first.Name)
	require.Len(t, first.Messages, 2)
	assert.Equal(t, types.SenderAI, first.Messages[1].Sender)
	assert.Contains(t, first.Messages[1].Text, "capital of France")

	require.NoError(t, s.manager.SendMessage(ctx, "And Germany?"))
	active, _ := s.manager.Snapshot().Active()
	assert.Len(t, active.Messages, 4)

	// A fresh manager sees the same history from the server.
	other := chat.NewManager(s.client, s.tokens)
	t.Cleanup(other.Close)
	require.NoError(t, other.Refresh(ctx))
	require.NoError(t, other.SelectChat(ctx, first.ID))
	reloaded, ok := other.Snapshot().Active()
	require.True(t, ok)
	require.Len(t, reloaded.Messages, 4)
	assert.Equal(t, "And Germany?", reloaded.Messages[2].Text)

	require.NoError(t, s.manager.RenameChat(ctx, first.ID, "Geography"))
	require.NoError(t, other.Refresh(ctx))
	assert.Equal(t, "Geography", other.Snapshot().Chats[0].Name)

	require.NoError(t, s.manager.DeleteChat(ctx, first.ID))
	assert.Empty(t, s.manager.Snapshot().Chats)
	assert.Empty(t, s.manager.Snapshot().ActiveID)
	assert.Zero(t, s.server.Store().Count())

	// Deleting again is a no-op.
	require.NoError(t, s.manager.DeleteChat(ctx, first.ID))
}

func TestNewChatsGoToFront(t *testing.T) {
	s := newStack(t)
	s.signUp(t, "ada@example.com")
	ctx := context.Background()

	require.NoError(t, s.manager.SendMessage(ctx, "first chat"))
	s.manager.CreateChat()
	require.NoError(t, s.manager.SendMessage(ctx, "second chat"))

	st := s.manager.Snapshot()
	require.Len(t, st.Chats, 2)
	assert.Equal(t, "second chat", st.Chats[0].Name)

	require.NoError(t, s.manager.Refresh(ctx))
	st = s.manager.Snapshot()
	require.Len(t, st.Chats, 2)
	assert.Equal(t, "second chat", st.Chats[0].Name, "server lists newest first")
}

func TestRenameConflictIsRejected(t *testing.T) {
	s := newStack(t)
	s.signUp(t, "ada@example.com")
	ctx := context.Background()

	require.NoError(t, s.manager.SendMessage(ctx, "alpha"))
	s.manager.CreateChat()
	require.NoError(t, s.manager.SendMessage(ctx, "beta"))

	st := s.manager.Snapshot()
	err := s.manager.RenameChat(ctx, st.Chats[0].ID, "ALPHA")
	require.ErrorIs(t, err, backend.ErrValidation)
	assert.Equal(t, "beta", s.manager.Snapshot().Chats[0].Name)
}

func TestInvalidTokenEndsSession(t *testing.T) {
	s := newStack(t)
	require.NoError(t, s.tokens.Set("not-a-valid-token"))

	err := s.manager.Refresh(context.Background())
	require.ErrorIs(t, err, backend.ErrUnauthenticated)

	_, ok := s.tokens.Get()
	assert.False(t, ok, "rejected token must be cleared")
	assert.Equal(t, "Your session has expired. Please log in again.", s.manager.Snapshot().Error)
}

func TestSignInWithWrongPassword(t *testing.T) {
	s := newStack(t)
	s.signUp(t, "ada@example.com")

	_, err := s.client.SignIn(context.Background(), "ada@example.com", "wrong-password")
	require.ErrorIs(t, err, backend.ErrUnauthenticated)

	token, err := s.client.SignIn(context.Background(), "ada@example.com", "password123")
	require.NoError(t, err)
	claims, err := session.Inspect(token)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", claims.Email)
	assert.False(t, claims.Expired(time.Now()))
}
