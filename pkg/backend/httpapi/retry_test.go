package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/user/chatpane/pkg/backend"
)

func fastBackoff() *backoff {
	return &backoff{attempts: 3, base: time.Millisecond, ceiling: 5 * time.Millisecond}
}

func TestBackoffRetriesNetworkErrors(t *testing.T) {
	calls := 0
	err := fastBackoff().run(context.Background(), func() error {
		calls++
		if calls < 3 {
			return &backend.Error{Op: "list chats", Kind: backend.ErrNetwork}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected success on third attempt, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBackoffStopsOnPermanentErrors(t *testing.T) {
	for _, kind := range []error{backend.ErrUnauthenticated, backend.ErrNotFound, backend.ErrValidation} {
		calls := 0
		err := fastBackoff().run(context.Background(), func() error {
			calls++
			return &backend.Error{Op: "fetch history", Kind: kind}
		})
		if err == nil {
			t.Fatalf("%v: expected error", kind)
		}
		if calls != 1 {
			t.Errorf("%v: expected 1 call, got %d", kind, calls)
		}
	}
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"transport failure", &backend.Error{Op: "list chats", Kind: backend.ErrNetwork, Err: errors.New("connection refused")}, true},
		{"server error", &backend.Error{Op: "list chats", Kind: backend.ErrNetwork, Status: 503}, true},
		{"body cut off", &backend.Error{Op: "list chats", Kind: backend.ErrNetwork, Status: 200, Err: fmt.Errorf("%w: %w", errReadBody, io.ErrUnexpectedEOF)}, true},
		{"too large", &backend.Error{Op: "list chats", Kind: backend.ErrNetwork, Status: 200, Message: "response too large"}, false},
		{"malformed body", &backend.Error{Op: "list chats", Kind: backend.ErrNetwork, Status: 200, Err: errors.New("parsing response: bad json")}, false},
		{"not found", &backend.Error{Op: "fetch history", Kind: backend.ErrNotFound, Status: 404}, false},
		{"cancelled", context.Canceled, false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := transient(tt.err); got != tt.want {
				t.Errorf("transient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffGivesUp(t *testing.T) {
	calls := 0
	err := fastBackoff().run(context.Background(), func() error {
		calls++
		return &backend.Error{Op: "list chats", Kind: backend.ErrNetwork}
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBackoffHonoursContext(t *testing.T) {
	b := &backoff{attempts: 5, base: time.Hour, ceiling: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- b.run(ctx, func() error {
			calls++
			return &backend.Error{Op: "list chats", Kind: backend.ErrNetwork}
		})
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err == nil {
			t.Error("expected last error after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestBackoffDelay(t *testing.T) {
	b := &backoff{base: 100 * time.Millisecond, ceiling: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for i, w := range want {
		if d := b.delay(i + 1); d != w {
			t.Errorf("attempt %d: got %v, want %v", i+1, d, w)
		}
	}
}

func TestNewBackoffAttempts(t *testing.T) {
	if n := newBackoff(0).attempts; n != 1 {
		t.Errorf("no retries should mean one attempt, got %d", n)
	}
	if n := newBackoff(-3).attempts; n != 1 {
		t.Errorf("negative retries should mean one attempt, got %d", n)
	}
	if n := newBackoff(2).attempts; n != 3 {
		t.Errorf("expected 3 attempts, got %d", n)
	}
}
