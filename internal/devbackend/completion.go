package devbackend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultSystemPrompt = "You are a helpful assistant. Format every answer as a small HTML fragment using <p>, <ul>, <ol>, <li>, <strong>, <em>, <code> and <pre> only."

// CompletionConfig points a CompletionResponder at an OpenAI-compatible
// chat completions endpoint.
type CompletionConfig struct {
	BaseURL      string // e.g. https://api.openai.com/v1
	APIKey       string
	Model        string
	SystemPrompt string // empty means defaultSystemPrompt
	MaxTokens    int
	Timeout      time.Duration
}

// CompletionResponder answers prompts with a hosted language model.
type CompletionResponder struct {
	cfg        CompletionConfig
	httpClient *http.Client
}

func NewCompletionResponder(cfg CompletionConfig) (*CompletionResponder, error) {
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, errors.New("completion responder needs a base URL and a model")
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &CompletionResponder{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type completionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model     string              `json:"model"`
	Messages  []completionMessage `json:"messages"`
	MaxTokens int                 `json:"max_tokens,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Message completionMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// transcript maps stored history onto completion roles: "U" entries are the
// user, everything else the assistant.
func (r *CompletionResponder) transcript(history []Message, prompt string) []completionMessage {
	msgs := make([]completionMessage, 0, len(history)+2)
	msgs = append(msgs, completionMessage{Role: "system", Content: r.cfg.SystemPrompt})
	for _, m := range history {
		role := "assistant"
		if m.AU == "U" {
			role = "user"
		}
		msgs = append(msgs, completionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, completionMessage{Role: "user", Content: prompt})
}

func (r *CompletionResponder) Reply(ctx context.Context, history []Message, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{
		Model:     r.cfg.Model,
		Messages:  r.transcript(history, prompt),
		MaxTokens: r.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	url := strings.TrimRight(r.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send completion request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}

	var out completionResponse
	decodeErr := json.Unmarshal(raw, &out)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			return "", fmt.Errorf("completion API status %d: %s", resp.StatusCode, out.Error.Message)
		}
		return "", fmt.Errorf("completion API status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if decodeErr != nil {
		return "", fmt.Errorf("parse completion response: %w", decodeErr)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errors.New("completion API returned no reply")
	}
	return out.Choices[0].Message.Content, nil
}
