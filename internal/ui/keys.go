package ui

import "github.com/charmbracelet/bubbles/key"

// KeyMap lists the shell's key bindings.
type KeyMap struct {
	NewChat  key.Binding
	Focus    key.Binding
	Submit   key.Binding
	Rename   key.Binding
	Delete   key.Binding
	Refresh  key.Binding
	Collapse key.Binding
	Logout   key.Binding
	Quit     key.Binding
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Cancel   key.Binding
	Signup   key.Binding
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		NewChat:  key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("C-n", "new chat")),
		Focus:    key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "switch focus")),
		Submit:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send/select")),
		Rename:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rename")),
		Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Refresh:  key.NewBinding(key.WithKeys("ctrl+r"), key.WithHelp("C-r", "refresh")),
		Collapse: key.NewBinding(key.WithKeys("ctrl+b"), key.WithHelp("C-b", "sidebar")),
		Logout:   key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("C-l", "log out")),
		Quit:     key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("C-c", "quit")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		PageUp:   key.NewBinding(key.WithKeys("pgup"), key.WithHelp("PgUp", "scroll up")),
		PageDown: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("PgDn", "scroll down")),
		Cancel:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),
		Signup:   key.NewBinding(key.WithKeys("ctrl+s"), key.WithHelp("C-s", "sign in/sign up")),
	}
}

// ShortHelp is the one-line help shown in the status bar.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NewChat, k.Focus, k.Rename, k.Delete, k.Collapse, k.Logout, k.Quit}
}
