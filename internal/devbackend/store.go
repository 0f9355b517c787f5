// Package devbackend is an in-memory implementation of the chat service's
// HTTP API for local development and integration tests.
package devbackend

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

const defaultChatName = "Untitled Chat"

// User is a registered account.
type User struct {
	ID       string
	Email    string
	Username string
	hash     []byte
}

// Message is one stored chat message. AU is "U" for the user and "A" for
// the assistant.
type Message struct {
	ID      int
	AU      string
	Content string
}

// Chat is a stored conversation.
type Chat struct {
	ID        string
	OwnerID   string
	Name      string
	Messages  []Message
	CreatedAt time.Time
}

// Store keeps users and chats in memory. Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	users  map[string]*User // by lower-cased email
	chats  map[string]*Chat
	order  []string // chat ids, oldest first
	bcrypt int
}

// NewStore returns an empty store. cost is the bcrypt cost; 0 means
// bcrypt.DefaultCost.
func NewStore(cost int) *Store {
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Store{
		users:  make(map[string]*User),
		chats:  make(map[string]*Chat),
		bcrypt: cost,
	}
}

// CreateUser registers an account.
func (s *Store) CreateUser(email, username, password string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcrypt)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	key := strings.ToLower(email)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[key]; ok {
		return nil, ErrEmailTaken
	}
	u := &User{ID: uuid.NewString(), Email: email, Username: username, hash: hash}
	s.users[key] = u
	return u, nil
}

// Authenticate checks credentials and returns the matching user.
func (s *Store) Authenticate(email, password string) (*User, error) {
	s.mu.Lock()
	u, ok := s.users[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(u.hash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// UserByID looks up an account by id.
func (s *Store) UserByID(id string) (*User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return nil, false
}

// ListChats returns the owner's chats, most recent first.
func (s *Store) ListChats(ownerID string) []Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Chat
	for i := len(s.order) - 1; i >= 0; i-- {
		c := s.chats[s.order[i]]
		if c.OwnerID == ownerID {
			out = append(out, Chat{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, CreatedAt: c.CreatedAt})
		}
	}
	return out
}

func (s *Store) ownedLocked(ownerID, chatID string) (*Chat, error) {
	c, ok := s.chats[chatID]
	if !ok || c.OwnerID != ownerID {
		return nil, ErrNotFound
	}
	return c, nil
}

// History returns a copy of a chat's messages.
func (s *Store) History(ownerID, chatID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedLocked(ownerID, chatID)
	if err != nil {
		return nil, err
	}
	return append([]Message(nil), c.Messages...), nil
}

// CreateChat starts an empty chat for the owner.
func (s *Store) CreateChat(ownerID, name string) *Chat {
	if strings.TrimSpace(name) == "" {
		name = defaultChatName
	}
	c := &Chat{ID: uuid.NewString(), OwnerID: ownerID, Name: name, CreatedAt: time.Now()}
	s.mu.Lock()
	s.chats[c.ID] = c
	s.order = append(s.order, c.ID)
	s.mu.Unlock()
	return c
}

// Append adds a message to a chat.
func (s *Store) Append(ownerID, chatID, au, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedLocked(ownerID, chatID)
	if err != nil {
		return err
	}
	c.Messages = append(c.Messages, Message{ID: len(c.Messages) + 1, AU: au, Content: content})
	return nil
}

// Rename changes a chat's name.
func (s *Store) Rename(ownerID, chatID, name string) (Chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.ownedLocked(ownerID, chatID)
	if err != nil {
		return Chat{}, err
	}
	c.Name = name
	return Chat{ID: c.ID, OwnerID: c.OwnerID, Name: c.Name, CreatedAt: c.CreatedAt}, nil
}

// Delete removes a chat.
func (s *Store) Delete(ownerID, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.ownedLocked(ownerID, chatID); err != nil {
		return err
	}
	delete(s.chats, chatID)
	for i, id := range s.order {
		if id == chatID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Count returns the number of stored chats.
func (s *Store) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}
