package devbackend

import (
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestStore() *Store {
	return NewStore(bcrypt.MinCost)
}

func TestCreateUserAndAuthenticate(t *testing.T) {
	s := newTestStore()
	u, err := s.CreateUser("Ada@example.com", "ada", "correct horse")
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.Authenticate("ada@EXAMPLE.com", "correct horse")
	if err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if got.ID != u.ID {
		t.Errorf("expected user %s, got %s", u.ID, got.ID)
	}

	if _, err := s.Authenticate("ada@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := s.Authenticate("nobody@example.com", "correct horse"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	s := newTestStore()
	if _, err := s.CreateUser("ada@example.com", "ada", "password1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.CreateUser("ADA@example.com", "ada2", "password2"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("expected ErrEmailTaken, got %v", err)
	}
}

func TestChatsAreScopedToOwner(t *testing.T) {
	s := newTestStore()
	c := s.CreateChat("alice", "Plans")

	if _, err := s.History("bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob must not see alice's chat, got %v", err)
	}
	if err := s.Append("bob", c.ID, "U", "hi"); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob must not append to alice's chat, got %v", err)
	}
	if err := s.Delete("bob", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("bob must not delete alice's chat, got %v", err)
	}
	if len(s.ListChats("bob")) != 0 {
		t.Error("bob should have no chats")
	}
}

func TestListChatsNewestFirst(t *testing.T) {
	s := newTestStore()
	first := s.CreateChat("alice", "one")
	second := s.CreateChat("alice", "")

	chats := s.ListChats("alice")
	if len(chats) != 2 {
		t.Fatalf("expected 2 chats, got %d", len(chats))
	}
	if chats[0].ID != second.ID || chats[1].ID != first.ID {
		t.Errorf("expected newest first, got %s, %s", chats[0].ID, chats[1].ID)
	}
	if chats[0].Name != defaultChatName {
		t.Errorf("blank name should default, got %q", chats[0].Name)
	}
}

func TestAppendNumbersMessages(t *testing.T) {
	s := newTestStore()
	c := s.CreateChat("alice", "x")
	s.Append("alice", c.ID, "U", "hello")
	s.Append("alice", c.ID, "A", "hi there")

	h, err := s.History("alice", c.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(h) != 2 || h[0].ID != 1 || h[1].ID != 2 || h[1].AU != "A" {
		t.Errorf("unexpected history: %+v", h)
	}

	h[0].Content = "mutated"
	again, _ := s.History("alice", c.ID)
	if again[0].Content != "hello" {
		t.Error("History must return a copy")
	}
}

func TestRenameAndDelete(t *testing.T) {
	s := newTestStore()
	c := s.CreateChat("alice", "old")

	renamed, err := s.Rename("alice", c.ID, "new")
	if err != nil || renamed.Name != "new" {
		t.Fatalf("rename: %+v, %v", renamed, err)
	}
	if err := s.Delete("alice", c.ID); err != nil {
		t.Fatal(err)
	}
	if s.Count() != 0 {
		t.Errorf("expected empty store, got %d chats", s.Count())
	}
	if err := s.Delete("alice", c.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete should be ErrNotFound, got %v", err)
	}
}

func TestIssuerRoundTrip(t *testing.T) {
	iss, err := NewIssuer("secret", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	token, err := iss.Issue(&User{ID: "u1", Email: "ada@example.com"})
	if err != nil {
		t.Fatal(err)
	}
	claims, err := iss.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if claims.Subject != "u1" || claims.Email != "ada@example.com" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestIssuerRejects(t *testing.T) {
	iss, _ := NewIssuer("secret", time.Hour)
	other, _ := NewIssuer("other-secret", time.Hour)
	token, _ := other.Issue(&User{ID: "u1"})
	if _, err := iss.Verify(token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("foreign signature should be rejected, got %v", err)
	}

	expired, _ := NewIssuer("secret", time.Minute)
	expired.now = func() time.Time { return time.Now().Add(-time.Hour) }
	old, _ := expired.Issue(&User{ID: "u1"})
	if _, err := iss.Verify(old); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expired token should be rejected, got %v", err)
	}

	if _, err := iss.Verify("not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("garbage should be rejected, got %v", err)
	}
}

func TestNewIssuerRequiresSecret(t *testing.T) {
	if _, err := NewIssuer("", time.Hour); err == nil {
		t.Fatal("expected error for empty secret")
	}
}
