package types

import (
	"strings"

	"github.com/google/uuid"
)

// ChatID identifies a conversation. Server-assigned ids are opaque;
// client-generated provisional ids carry the ProvisionalPrefix.
type ChatID string

// ProvisionalPrefix marks ids minted locally before the backend confirms a chat.
const ProvisionalPrefix = "tmp-"

// NewProvisionalID returns a fresh client-side id for an unsent chat.
func NewProvisionalID() ChatID {
	return ChatID(ProvisionalPrefix + uuid.New().String())
}

// IsProvisional reports whether the id was minted locally.
func (id ChatID) IsProvisional() bool {
	return strings.HasPrefix(string(id), ProvisionalPrefix)
}

func (id ChatID) String() string {
	return string(id)
}
