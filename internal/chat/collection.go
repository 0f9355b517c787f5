// Package chat owns the client-side chat collection: which conversations
// exist, which one is active, and how local edits are reconciled with the
// backend.
package chat

import (
	"errors"
	"fmt"

	"github.com/user/chatpane/internal/types"
)

var (
	ErrUnknownChat   = errors.New("unknown chat")
	ErrDuplicateChat = errors.New("duplicate chat id")
)

// Collection is an ordered set of chats, most recent first, plus the active
// chat id. Ids are unique and the active id, when set, always names a chat
// in the collection. Collection is not safe for concurrent use; Manager
// guards it.
type Collection struct {
	chats  []*types.Chat
	active types.ChatID
}

// NewCollection returns an empty collection with no active chat.
func NewCollection() *Collection {
	return &Collection{}
}

// Len returns the number of chats.
func (c *Collection) Len() int {
	return len(c.chats)
}

func (c *Collection) index(id types.ChatID) int {
	for i, chat := range c.chats {
		if chat.ID == id {
			return i
		}
	}
	return -1
}

// Get returns the chat with the given id.
func (c *Collection) Get(id types.ChatID) (*types.Chat, bool) {
	if i := c.index(id); i >= 0 {
		return c.chats[i], true
	}
	return nil, false
}

// Active returns the active chat id, or "" when nothing is selected.
func (c *Collection) Active() types.ChatID {
	return c.active
}

// ActiveChat returns the active chat, if any.
func (c *Collection) ActiveChat() (*types.Chat, bool) {
	if c.active == "" {
		return nil, false
	}
	return c.Get(c.active)
}

// SetActive selects a chat. The empty id deselects.
func (c *Collection) SetActive(id types.ChatID) error {
	if id == "" {
		c.active = ""
		return nil
	}
	if c.index(id) < 0 {
		return fmt.Errorf("select %s: %w", id, ErrUnknownChat)
	}
	c.active = id
	return nil
}

// Deselect clears the active chat.
func (c *Collection) Deselect() {
	c.active = ""
}

// InsertFront adds a chat at the head of the list.
func (c *Collection) InsertFront(chat *types.Chat) error {
	if c.index(chat.ID) >= 0 {
		return fmt.Errorf("insert %s: %w", chat.ID, ErrDuplicateChat)
	}
	c.chats = append([]*types.Chat{chat}, c.chats...)
	return nil
}

// Remove deletes a chat, clearing the active id if it pointed at it.
func (c *Collection) Remove(id types.ChatID) (*types.Chat, bool) {
	i := c.index(id)
	if i < 0 {
		return nil, false
	}
	removed := c.chats[i]
	c.chats = append(c.chats[:i:i], c.chats[i+1:]...)
	if c.active == id {
		c.active = ""
	}
	return removed, true
}

// Append adds a message to the end of a chat.
func (c *Collection) Append(id types.ChatID, msg types.Message) error {
	chat, ok := c.Get(id)
	if !ok {
		return fmt.Errorf("append to %s: %w", id, ErrUnknownChat)
	}
	chat.Messages = append(chat.Messages, msg)
	return nil
}

// Rekey gives a provisional chat its server-assigned id and marks it
// persisted. If another entry already holds the new id (a refresh listed
// the chat first) that entry is dropped in favour of the local one. The
// active id follows the chat.
func (c *Collection) Rekey(old, id types.ChatID) (*types.Chat, error) {
	i := c.index(old)
	if i < 0 {
		return nil, fmt.Errorf("rekey %s: %w", old, ErrUnknownChat)
	}
	chat := c.chats[i]
	if old != id {
		if j := c.index(id); j >= 0 {
			if len(chat.Messages) == 0 {
				chat.Messages = c.chats[j].Messages
			}
			c.chats = append(c.chats[:j:j], c.chats[j+1:]...)
		}
		if c.active == old {
			c.active = id
		}
	}
	chat.ID = id
	chat.Provisional = false
	return chat, nil
}

// Merge reconciles the collection with the backend's chat list. Provisional
// chats and chats in keep (persisted after the list was requested) stay at
// the front, followed by the listed chats in server order. Known chats keep
// their messages; ids in skip (deletes in flight) and duplicate ids are
// ignored. A dangling active id is cleared.
func (c *Collection) Merge(list []types.ChatSummary, skip, keep map[types.ChatID]struct{}) {
	merged := make([]*types.Chat, 0, len(list)+len(c.chats))
	seen := make(map[types.ChatID]struct{}, len(list)+len(c.chats))

	for _, chat := range c.chats {
		_, kept := keep[chat.ID]
		if chat.Provisional || kept {
			merged = append(merged, chat)
			seen[chat.ID] = struct{}{}
		}
	}
	for _, s := range list {
		if s.ID == "" {
			continue
		}
		if _, dup := seen[s.ID]; dup {
			continue
		}
		if _, deleting := skip[s.ID]; deleting {
			continue
		}
		seen[s.ID] = struct{}{}
		if existing, ok := c.Get(s.ID); ok {
			existing.Name = s.Name
			merged = append(merged, existing)
			continue
		}
		merged = append(merged, &types.Chat{ID: s.ID, Name: s.Name})
	}

	c.chats = merged
	if _, ok := seen[c.active]; !ok {
		c.active = ""
	}
}

// Reset empties the collection.
func (c *Collection) Reset() {
	c.chats = nil
	c.active = ""
}

// Snapshot returns deep copies of the chats in order.
func (c *Collection) Snapshot() []types.Chat {
	out := make([]types.Chat, 0, len(c.chats))
	for _, chat := range c.chats {
		out = append(out, *chat.Clone())
	}
	return out
}
