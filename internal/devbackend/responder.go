package devbackend

import (
	"context"
	"fmt"
	"html"
)

// Responder produces the assistant reply to a prompt. history holds the
// chat's earlier messages, oldest first.
type Responder interface {
	Reply(ctx context.Context, history []Message, prompt string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, history []Message, prompt string) (string, error)

func (f ResponderFunc) Reply(ctx context.Context, history []Message, prompt string) (string, error) {
	return f(ctx, history, prompt)
}

// EchoResponder repeats the prompt back as a small HTML fragment, the way
// the real service formats replies.
var EchoResponder = ResponderFunc(func(_ context.Context, history []Message, prompt string) (string, error) {
	turn := len(history)/2 + 1
	return fmt.Sprintf("<p>You said: <strong>%s</strong></p><p><em>turn %d</em></p>", html.EscapeString(prompt), turn), nil
})
