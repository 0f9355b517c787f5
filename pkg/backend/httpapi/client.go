// Package httpapi implements backend.Gateway and backend.Authenticator over
// the chat service's JSON REST API.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 4 << 20

// errReadBody marks a connection that failed while the body was streaming.
var errReadBody = errors.New("reading response")

// Config holds connection settings for the chat service.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64 // 0 disables client-side rate limiting
	Burst         int
	MaxRetries    int // extra attempts for idempotent reads
}

// Client talks to the chat service. The bearer token is read from the
// injected TokenStore on every call, so logging in or out takes effect
// immediately.
type Client struct {
	config     Config
	tokens     types.TokenStore
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      *backoff
}

// New creates a Client for the given configuration.
func New(config Config, tokens types.TokenStore) *Client {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	limiter := rate.NewLimiter(rate.Inf, 0)
	if config.RatePerSecond > 0 {
		burst := config.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(config.RatePerSecond), burst)
	}

	return &Client{
		config: config,
		tokens: tokens,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		limiter: limiter,
		retry:   newBackoff(config.MaxRetries),
	}
}

// ListChats returns the user's chats in server order.
func (c *Client) ListChats(ctx context.Context) ([]types.ChatSummary, error) {
	const op = "list chats"
	var resp listChatsResponse
	err := c.retry.run(ctx, func() error {
		return c.do(ctx, op, http.MethodGet, "/chats", nil, &resp, true)
	})
	if err != nil {
		return nil, err
	}
	chats := make([]types.ChatSummary, 0, len(resp.Message))
	for _, e := range resp.Message {
		chats = append(chats, types.ChatSummary{ID: types.ChatID(e.ChatID), Name: e.ChatName})
	}
	return chats, nil
}

// FetchHistory returns a chat's messages sorted by server message id.
func (c *Client) FetchHistory(ctx context.Context, id types.ChatID) ([]types.Message, error) {
	const op = "fetch history"
	if id == "" {
		return nil, &backend.Error{Op: op, Kind: backend.ErrValidation, Message: "chat id is required"}
	}
	path := "/chathistory?" + url.Values{"chatID": {string(id)}}.Encode()

	var resp historyResponse
	err := c.retry.run(ctx, func() error {
		return c.do(ctx, op, http.MethodGet, path, nil, &resp, true)
	})
	if err != nil {
		return nil, err
	}

	entries := resp.Message
	sortByMessageID(entries)
	messages := make([]types.Message, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, types.Message{
			Sender: senderFromAU(e.AU),
			Text:   e.Content,
			Status: types.StatusSent,
		})
	}
	return messages, nil
}

// SendPrompt posts a user message and returns the assistant reply.
func (c *Client) SendPrompt(ctx context.Context, req backend.SendRequest) (*backend.SendResult, error) {
	const op = "send prompt"
	if req.NewChat && req.ChatID != "" {
		return nil, &backend.Error{Op: op, Kind: backend.ErrValidation, Message: "new chat must not carry a chat id"}
	}
	if !req.NewChat && req.ChatID == "" {
		return nil, &backend.Error{Op: op, Kind: backend.ErrValidation, Message: "chat id is required"}
	}

	body := sendPromptRequest{
		Query:   req.Text,
		ChatID:  string(req.ChatID),
		NewChat: req.NewChat,
	}
	if req.NewChat {
		body.NewChatName = req.NewChatName
	}

	var resp sendPromptResponse
	if err := c.do(ctx, op, http.MethodPost, "/send_prompt", body, &resp, true); err != nil {
		return nil, err
	}

	chatID := types.ChatID(resp.ChatID)
	if chatID == "" {
		if req.NewChat {
			return nil, &backend.Error{Op: op, Kind: backend.ErrNetwork, Message: "response is missing the new chat id"}
		}
		chatID = req.ChatID
	}
	return &backend.SendResult{Reply: resp.Message, ChatID: chatID}, nil
}

// RenameChat changes a chat's display name.
func (c *Client) RenameChat(ctx context.Context, id types.ChatID, name string) (types.ChatSummary, error) {
	const op = "rename chat"
	var resp renameResponse
	path := "/chats/" + url.PathEscape(string(id))
	if err := c.do(ctx, op, http.MethodPatch, path, renameRequest{ChatName: name}, &resp, true); err != nil {
		return types.ChatSummary{}, err
	}
	summary := types.ChatSummary{ID: types.ChatID(resp.Message.ChatID), Name: resp.Message.ChatName}
	if summary.ID == "" {
		summary.ID = id
	}
	if summary.Name == "" {
		summary.Name = name
	}
	return summary, nil
}

// DeleteChat removes a chat. A 404 surfaces as backend.ErrNotFound.
func (c *Client) DeleteChat(ctx context.Context, id types.ChatID) error {
	path := "/chats/" + url.PathEscape(string(id))
	return c.do(ctx, "delete chat", http.MethodDelete, path, nil, nil, true)
}

// SignIn exchanges credentials for an access token.
func (c *Client) SignIn(ctx context.Context, email, password string) (string, error) {
	const op = "sign in"
	var resp tokenResponse
	if err := c.do(ctx, op, http.MethodPost, "/sign_in", signInRequest{Email: email, Password: password}, &resp, false); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &backend.Error{Op: op, Kind: backend.ErrNetwork, Message: "response is missing access_token"}
	}
	return resp.AccessToken, nil
}

// Register creates an account and returns its access token.
func (c *Client) Register(ctx context.Context, req backend.RegisterRequest) (string, error) {
	const op = "register"
	var resp tokenResponse
	body := registerRequest{Email: req.Email, Username: req.Username, Password: req.Password}
	if err := c.do(ctx, op, http.MethodPost, "/register", body, &resp, false); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &backend.Error{Op: op, Kind: backend.ErrNetwork, Message: "response is missing access_token"}
	}
	return resp.AccessToken, nil
}

// do performs one JSON request. When authed is set the session token is
// required and attached as a bearer token.
func (c *Client) do(ctx context.Context, op, method, path string, in, out any, authed bool) error {
	var token string
	if authed {
		tok, ok := c.tokens.Get()
		if !ok {
			return &backend.Error{Op: op, Kind: backend.ErrUnauthenticated, Message: "no session token"}
		}
		token = tok
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return &backend.Error{Op: op, Kind: backend.ErrNetwork, Err: err}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshaling request: %w", op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &backend.Error{Op: op, Kind: backend.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return &backend.Error{Op: op, Kind: backend.ErrNetwork, Status: resp.StatusCode, Err: fmt.Errorf("%w: %w", errReadBody, err)}
	}
	if len(respBody) > maxResponseSize {
		return &backend.Error{Op: op, Kind: backend.ErrNetwork, Status: resp.StatusCode, Message: "response too large"}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &backend.Error{
			Op:      op,
			Kind:    backend.KindForStatus(resp.StatusCode),
			Status:  resp.StatusCode,
			Message: serverMessage(respBody),
		}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &backend.Error{Op: op, Kind: backend.ErrNetwork, Status: resp.StatusCode, Err: fmt.Errorf("parsing response: %w", err)}
	}
	return nil
}

// serverMessage extracts a human-readable message from an error body.
func serverMessage(body []byte) string {
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil {
		for _, s := range []string{er.Message, er.Detail, er.Error} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}

var (
	_ backend.Gateway       = (*Client)(nil)
	_ backend.Authenticator = (*Client)(nil)
)
