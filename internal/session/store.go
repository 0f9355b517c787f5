// Package session persists the bearer token that authenticates the client.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
)

var tokenPattern = regexp.MustCompile(`^[\x21-\x7e]+$`)

// ValidateToken rejects empty tokens and tokens with whitespace or control
// characters, which could never have come from the sign-in endpoint.
func ValidateToken(token string) error {
	err := validation.Validate(token,
		validation.Required,
		validation.Length(1, 8192),
		validation.Match(tokenPattern).Error("must be printable ASCII without spaces"),
	)
	if err != nil {
		return backend.Validation("set token", err)
	}
	return nil
}

// file is the on-disk shape of session.json.
type file struct {
	AccessToken string `json:"access_token,omitempty"`
}

// FileStore keeps the token in <dir>/session.json so it survives restarts.
// The file is written atomically with owner-only permissions.
type FileStore struct {
	path string

	mu     sync.RWMutex
	loaded bool
	token  string
}

// NewFileStore creates a FileStore rooted at dir. The file is read lazily on
// first access.
func NewFileStore(dir string) *FileStore {
	return &FileStore{path: filepath.Join(dir, "session.json")}
}

// Path returns the location of the session file.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.token = ""
			s.loaded = true
			return nil
		}
		return fmt.Errorf("read session file: %w", err)
	}
	var f file
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("unmarshal session file: %w", err)
	}
	s.token = f.AccessToken
	s.loaded = true
	return nil
}

// Get returns the stored token. A missing or unreadable file counts as no
// session.
func (s *FileStore) Get() (string, bool) {
	s.mu.RLock()
	if s.loaded {
		tok := s.token
		s.mu.RUnlock()
		return tok, tok != ""
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		if err := s.load(); err != nil {
			return "", false
		}
	}
	return s.token, s.token != ""
}

// Set validates and persists the token.
func (s *FileStore) Set(token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.write(file{AccessToken: token}); err != nil {
		return err
	}
	s.token = token
	s.loaded = true
	return nil
}

// Clear removes the token from memory and disk.
func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.token = ""
	s.loaded = true
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove session file: %w", err)
	}
	return nil
}

func (s *FileStore) write(f file) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session file: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create session dir: %w", err)
	}

	// Atomic write: write to temp file then rename
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp session file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp session file: %w", err)
	}
	return nil
}

// MemoryStore is an in-process TokenStore.
type MemoryStore struct {
	mu    sync.RWMutex
	token string
}

// NewMemoryStore returns a store seeded with token (may be empty).
func NewMemoryStore(token string) *MemoryStore {
	return &MemoryStore{token: token}
}

func (m *MemoryStore) Get() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token, m.token != ""
}

func (m *MemoryStore) Set(token string) error {
	if err := ValidateToken(token); err != nil {
		return err
	}
	m.mu.Lock()
	m.token = token
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
	return nil
}

// Compile-time interface compliance checks.
var _ types.TokenStore = (*FileStore)(nil)
var _ types.TokenStore = (*MemoryStore)(nil)
