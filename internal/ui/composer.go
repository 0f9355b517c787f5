package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/chatpane/internal/chat"
)

// Composer holds the message draft. Enter submits through Take.
type Composer struct {
	input textinput.Model
}

// NewComposer returns an empty, focused composer.
func NewComposer() Composer {
	in := textinput.New()
	in.Placeholder = "Type a message…"
	in.Prompt = "> "
	in.CharLimit = chat.MaxMessageLength
	in.Focus()
	return Composer{input: in}
}

// Insert appends text at the end of the draft.
func (c *Composer) Insert(text string) {
	c.input.SetValue(c.input.Value() + text)
	c.input.CursorEnd()
}

// SetDraft replaces the draft.
func (c *Composer) SetDraft(text string) {
	c.input.SetValue(text)
	c.input.CursorEnd()
}

// Draft returns the draft as typed.
func (c *Composer) Draft() string {
	return c.input.Value()
}

// Take returns the trimmed draft and clears it. A blank draft is left alone
// and reported as not ok.
func (c *Composer) Take() (string, bool) {
	text := strings.TrimSpace(c.input.Value())
	if text == "" {
		return "", false
	}
	c.input.Reset()
	return text, true
}

// Restore puts back a message that could not be sent. Anything typed since
// is kept after it.
func (c *Composer) Restore(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if cur := strings.TrimSpace(c.input.Value()); cur != "" {
		text = text + " " + cur
	}
	c.SetDraft(text)
}

func (c *Composer) Focus() tea.Cmd {
	return c.input.Focus()
}

func (c *Composer) Blur() {
	c.input.Blur()
}

func (c *Composer) SetWidth(w int) {
	c.input.Width = max(w-len(c.input.Prompt)-1, 1)
}

func (c *Composer) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	c.input, cmd = c.input.Update(msg)
	return cmd
}

func (c *Composer) View() string {
	return c.input.View()
}
