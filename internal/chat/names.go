package chat

import (
	"errors"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/user/chatpane/internal/types"
)

const (
	// DefaultChatName labels chats renamed to a blank name.
	DefaultChatName = "Untitled Chat"

	// derivedNameLen is how many runes of the first message name a new chat.
	derivedNameLen = 20

	MaxNameLength    = 100
	MaxMessageLength = 32000
)

var errNameTaken = errors.New("a chat with that name already exists")

// DeriveName builds a new chat's name from its first message: the leading
// runes of the trimmed text with line breaks folded into spaces.
func DeriveName(text string) string {
	text = strings.Join(strings.FieldsFunc(text, func(r rune) bool {
		return r == '\n' || r == '\r' || r == '\t'
	}), " ")
	text = strings.TrimSpace(text)
	runes := []rune(text)
	if len(runes) > derivedNameLen {
		runes = runes[:derivedNameLen]
	}
	name := strings.TrimRightFunc(string(runes), unicode.IsSpace)
	if name == "" {
		return DefaultChatName
	}
	return name
}

// normalizeName trims a requested name, substituting the default label for
// blank input.
func normalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultChatName
	}
	return name
}

func validateName(name string) error {
	return validation.Validate(name,
		validation.Required,
		validation.RuneLength(1, MaxNameLength),
	)
}

func validateMessage(text string) error {
	return validation.Validate(text,
		validation.Required,
		validation.RuneLength(1, MaxMessageLength),
	)
}

// nameTaken reports whether another chat already carries name. The default
// label may be shared.
func (c *Collection) nameTaken(name string, except *types.Chat) bool {
	if strings.EqualFold(name, DefaultChatName) {
		return false
	}
	for _, chat := range c.chats {
		if chat == except {
			continue
		}
		if strings.EqualFold(chat.Name, name) {
			return true
		}
	}
	return false
}
