// Package backend defines the contract between the chat client and the
// remote chat service.
package backend

import (
	"context"

	"github.com/user/chatpane/internal/types"
)

// Gateway wraps the chat service's REST operations. Implementations attach
// the session's bearer token to every call and classify failures into the
// error kinds declared in errors.go. A Gateway never mutates client state.
type Gateway interface {
	// ListChats returns the user's chats in server order.
	ListChats(ctx context.Context) ([]types.ChatSummary, error)

	// FetchHistory returns a chat's messages sorted by server message order.
	FetchHistory(ctx context.Context, id types.ChatID) ([]types.Message, error)

	// SendPrompt posts a user message and returns the assistant reply.
	SendPrompt(ctx context.Context, req SendRequest) (*SendResult, error)

	// RenameChat changes a chat's display name.
	RenameChat(ctx context.Context, id types.ChatID, name string) (types.ChatSummary, error)

	// DeleteChat removes a chat. Returns ErrNotFound if it is already gone.
	DeleteChat(ctx context.Context, id types.ChatID) error
}

// Authenticator exchanges credentials for a bearer token.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (string, error)
	Register(ctx context.Context, req RegisterRequest) (string, error)
}

// SendRequest describes one prompt. When NewChat is set ChatID must be empty
// and the backend assigns one, returned in SendResult.ChatID.
type SendRequest struct {
	Text        string
	ChatID      types.ChatID
	NewChat     bool
	NewChatName string
}

// SendResult is the backend's answer to a prompt.
type SendResult struct {
	Reply  string
	ChatID types.ChatID
}

type RegisterRequest struct {
	Email    string
	Username string
	Password string
}
