package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/chatpane/internal/chat"
	"github.com/user/chatpane/internal/types"
)

// Sidebar tracks the chat list cursor, the collapsed flag and an in-progress
// rename.
type Sidebar struct {
	cursor    int
	collapsed bool
	editing   types.ChatID
	rename    textinput.Model
}

func NewSidebar() Sidebar {
	in := textinput.New()
	in.Prompt = ""
	in.CharLimit = chat.MaxNameLength
	return Sidebar{rename: in}
}

func (s *Sidebar) Cursor() int {
	return s.cursor
}

// Move shifts the cursor by delta, clamped to a list of n chats.
func (s *Sidebar) Move(delta, n int) {
	s.cursor += delta
	s.Clamp(n)
}

// Clamp keeps the cursor inside a list of n chats.
func (s *Sidebar) Clamp(n int) {
	if s.cursor >= n {
		s.cursor = n - 1
	}
	if s.cursor < 0 {
		s.cursor = 0
	}
}

// Follow puts the cursor on the chat with the given id, if listed.
func (s *Sidebar) Follow(chats []types.Chat, id types.ChatID) {
	for i, c := range chats {
		if c.ID == id {
			s.cursor = i
			return
		}
	}
	s.Clamp(len(chats))
}

// Selected returns the id under the cursor.
func (s *Sidebar) Selected(chats []types.Chat) (types.ChatID, bool) {
	if s.cursor < 0 || s.cursor >= len(chats) {
		return "", false
	}
	return chats[s.cursor].ID, true
}

func (s *Sidebar) Collapsed() bool {
	return s.collapsed
}

func (s *Sidebar) ToggleCollapsed() {
	s.collapsed = !s.collapsed
}

// StartRename begins editing the name of id, seeded with its current name.
func (s *Sidebar) StartRename(id types.ChatID, current string) tea.Cmd {
	s.editing = id
	s.rename.SetValue(current)
	s.rename.CursorEnd()
	return s.rename.Focus()
}

// Editing returns the chat being renamed.
func (s *Sidebar) Editing() (types.ChatID, bool) {
	return s.editing, s.editing != ""
}

func (s *Sidebar) Buffer() string {
	return s.rename.Value()
}

func (s *Sidebar) SetBuffer(text string) {
	s.rename.SetValue(text)
	s.rename.CursorEnd()
}

// SubmitRename ends the edit and returns the new name. A blank buffer keeps
// the edit open and returns ok false.
func (s *Sidebar) SubmitRename() (types.ChatID, string, bool) {
	if s.editing == "" {
		return "", "", false
	}
	name := strings.TrimSpace(s.rename.Value())
	if name == "" {
		return s.editing, "", false
	}
	id := s.editing
	s.CancelRename()
	return id, name, true
}

func (s *Sidebar) CancelRename() {
	s.editing = ""
	s.rename.Reset()
	s.rename.Blur()
}

// UpdateRename feeds a key to the rename field.
func (s *Sidebar) UpdateRename(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	s.rename, cmd = s.rename.Update(msg)
	return cmd
}

func (s *Sidebar) RenameView() string {
	return s.rename.View()
}
