package session

import (
	"encoding/json"
	"errors"
	"os"
	"testing"

	"github.com/user/chatpane/pkg/backend"
)

func TestFileStore(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)

	// Empty until set
	if _, ok := store.Get(); ok {
		t.Fatal("expected no token in fresh store")
	}

	if err := store.Set("abc.def.ghi"); err != nil {
		t.Fatal(err)
	}
	tok, ok := store.Get()
	if !ok || tok != "abc.def.ghi" {
		t.Errorf("expected stored token, got %q (%v)", tok, ok)
	}

	// Survives a reload
	reloaded := NewFileStore(dir)
	tok, ok = reloaded.Get()
	if !ok || tok != "abc.def.ghi" {
		t.Errorf("expected token after reload, got %q (%v)", tok, ok)
	}

	// Stored under the access_token key with owner-only permissions
	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	var f map[string]string
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	if f["access_token"] != "abc.def.ghi" {
		t.Errorf("expected access_token key, got %v", f)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("expected 0600 permissions, got %o", perm)
	}

	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get(); ok {
		t.Error("expected no token after clear")
	}
	if _, ok := NewFileStore(dir).Get(); ok {
		t.Error("expected cleared token to stay cleared after reload")
	}

	// Clearing twice is fine
	if err := store.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestFileStoreCorruptFileMeansNoSession(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get(); ok {
		t.Error("expected corrupt session file to read as logged out")
	}
}

func TestSetRejectsMalformedTokens(t *testing.T) {
	store := NewMemoryStore("")
	for _, tok := range []string{"", "has space", "line\nbreak", "tab\there"} {
		err := store.Set(tok)
		if !errors.Is(err, backend.ErrValidation) {
			t.Errorf("token %q: expected ErrValidation, got %v", tok, err)
		}
	}
	if _, ok := store.Get(); ok {
		t.Error("rejected token must not be stored")
	}
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore("seed")
	if tok, ok := store.Get(); !ok || tok != "seed" {
		t.Errorf("expected seed token, got %q", tok)
	}
	if err := store.Clear(); err != nil {
		t.Fatal(err)
	}
	if _, ok := store.Get(); ok {
		t.Error("expected empty store after clear")
	}
}
