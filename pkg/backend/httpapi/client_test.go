package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/chatpane/internal/session"
	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, token string) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(Config{BaseURL: server.URL, Timeout: 2 * time.Second}, session.NewMemoryStore(token))
}

func TestListChats(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/chats" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Error("missing or invalid auth header")
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": []map[string]any{
				{"chat_id": "a", "chat_name": "First"},
				{"chat_id": 7, "chat_name": "Second"},
			},
		})
	}, "tok")

	chats, err := client.ListChats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0] != (types.ChatSummary{ID: "a", Name: "First"}) {
		t.Errorf("unexpected first chat: %+v", chats[0])
	}
	if chats[1].ID != "7" {
		t.Errorf("expected numeric id decoded as \"7\", got %q", chats[1].ID)
	}
}

func TestFetchHistorySortsAndMapsSender(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chathistory" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("chatID"); got != "c 1" {
			t.Errorf("expected chatID query 'c 1', got %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"message": []map[string]any{
				{"messageID": 2, "A_U": "A", "content": "Hi!"},
				{"messageID": 1, "A_U": "U", "content": "Hello"},
			},
		})
	}, "tok")

	msgs, err := client.FetchHistory(context.Background(), "c 1")
	if err != nil {
		t.Fatal(err)
	}
	want := []types.Message{
		{Sender: types.SenderUser, Text: "Hello", Status: types.StatusSent},
		{Sender: types.SenderAI, Text: "Hi!", Status: types.StatusSent},
	}
	if len(msgs) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(msgs))
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("message %d: expected %+v, got %+v", i, want[i], msgs[i])
		}
	}
}

func TestSendPromptNewChat(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/send_prompt" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		var req map[string]any
		json.Unmarshal(body, &req)
		if req["query"] != "Hello" || req["newChat"] != true || req["newChatName"] != "Hello" {
			t.Errorf("unexpected body: %s", body)
		}
		if _, ok := req["chatID"]; ok {
			t.Errorf("new chat must not send chatID: %s", body)
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "Hi!", "chatId": "c1"})
	}, "tok")

	res, err := client.SendPrompt(context.Background(), backend.SendRequest{
		Text: "Hello", NewChat: true, NewChatName: "Hello",
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Reply != "Hi!" || res.ChatID != "c1" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestSendPromptExistingChatKeepsID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		json.NewDecoder(r.Body).Decode(&req)
		if req["chatID"] != "c9" || req["newChat"] != false {
			t.Errorf("unexpected body: %v", req)
		}
		json.NewEncoder(w).Encode(map[string]any{"message": "ok"})
	}, "tok")

	res, err := client.SendPrompt(context.Background(), backend.SendRequest{Text: "more", ChatID: "c9"})
	if err != nil {
		t.Fatal(err)
	}
	if res.ChatID != "c9" {
		t.Errorf("expected chat id to fall back to request id, got %q", res.ChatID)
	}
}

func TestRenameAndDelete(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPatch && r.URL.Path == "/chats/a":
			var req map[string]string
			json.NewDecoder(r.Body).Decode(&req)
			json.NewEncoder(w).Encode(map[string]any{
				"message": map[string]any{"chat_id": "a", "chat_name": req["chat_name"]},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/chats/a":
			w.WriteHeader(http.StatusNoContent)
		case r.Method == http.MethodDelete && r.URL.Path == "/chats/gone":
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"message": "chat not found"})
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}, "tok")

	ctx := context.Background()
	summary, err := client.RenameChat(ctx, "a", "Renamed")
	if err != nil {
		t.Fatal(err)
	}
	if summary.Name != "Renamed" {
		t.Errorf("expected Renamed, got %q", summary.Name)
	}
	if err := client.DeleteChat(ctx, "a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	err = client.DeleteChat(ctx, "gone")
	if !errors.Is(err, backend.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	var be *backend.Error
	if !errors.As(err, &be) || be.Message != "chat not found" {
		t.Errorf("expected server message to be kept, got %v", err)
	}
}

func TestMissingTokenFailsWithoutNetwork(t *testing.T) {
	var hits atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}, "")

	_, err := client.ListChats(context.Background())
	if !errors.Is(err, backend.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if hits.Load() != 0 {
		t.Error("expected no request without a token")
	}
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, backend.ErrUnauthenticated},
		{http.StatusBadRequest, backend.ErrValidation},
		{http.StatusInternalServerError, backend.ErrNetwork},
	}
	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}, "tok")
		_, err := client.RenameChat(context.Background(), "a", "x")
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: expected %v, got %v", tt.status, tt.want, err)
		}
	}
}

func TestListChatsRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"message": []any{}})
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxRetries: 2}, session.NewMemoryStore("tok"))
	client.retry.base = time.Millisecond

	if _, err := client.ListChats(context.Background()); err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", hits.Load())
	}
}

func TestListChatsDoesNotRetryMalformedBody(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("{not json"))
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxRetries: 3}, session.NewMemoryStore("tok"))
	client.retry.base = time.Millisecond

	_, err := client.ListChats(context.Background())
	if !errors.Is(err, backend.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
}

func TestSendPromptIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := New(Config{BaseURL: server.URL, MaxRetries: 3}, session.NewMemoryStore("tok"))
	_, err := client.SendPrompt(context.Background(), backend.SendRequest{Text: "x", ChatID: "a"})
	if !errors.Is(err, backend.ErrNetwork) {
		t.Fatalf("expected ErrNetwork, got %v", err)
	}
	if hits.Load() != 1 {
		t.Errorf("expected a single attempt, got %d", hits.Load())
	}
}

func TestTimeoutIsNetworkError(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := New(Config{BaseURL: server.URL, Timeout: 50 * time.Millisecond}, session.NewMemoryStore("tok"))
	_, err := client.SendPrompt(context.Background(), backend.SendRequest{Text: "x", ChatID: "a"})
	if !errors.Is(err, backend.ErrNetwork) {
		t.Fatalf("expected ErrNetwork on timeout, got %v", err)
	}
}

func TestSignIn(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign_in" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("sign in must not send a bearer token")
		}
		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["email"] != "ada@example.com" || req["password"] != "pw" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"detail": "bad credentials"})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"access_token": "new-token"})
	}, "")

	tok, err := client.SignIn(context.Background(), "ada@example.com", "pw")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "new-token" {
		t.Errorf("expected new-token, got %q", tok)
	}

	_, err = client.SignIn(context.Background(), "ada@example.com", "wrong")
	if !errors.Is(err, backend.ErrUnauthenticated) {
		t.Errorf("expected ErrUnauthenticated, got %v", err)
	}
}
