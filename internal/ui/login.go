package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/user/chatpane/pkg/backend"
)

const (
	fieldEmail = iota
	fieldUsername
	fieldPassword
)

// loginForm is the sign in / sign up screen. The username field only
// appears when signing up.
type loginForm struct {
	signup bool
	busy   bool
	focus  int
	inputs [3]textinput.Model
}

func newLoginForm() loginForm {
	var f loginForm
	for i := range f.inputs {
		in := textinput.New()
		in.CharLimit = 128
		in.Width = 40
		f.inputs[i] = in
	}
	f.inputs[fieldEmail].Placeholder = "email"
	f.inputs[fieldUsername].Placeholder = "username"
	f.inputs[fieldPassword].Placeholder = "password"
	f.inputs[fieldPassword].EchoMode = textinput.EchoPassword
	f.inputs[fieldPassword].EchoCharacter = '•'
	return f
}

func (f *loginForm) fields() []int {
	if f.signup {
		return []int{fieldEmail, fieldUsername, fieldPassword}
	}
	return []int{fieldEmail, fieldPassword}
}

func (f *loginForm) focusCurrent() tea.Cmd {
	fields := f.fields()
	if f.focus >= len(fields) {
		f.focus = len(fields) - 1
	}
	for i := range f.inputs {
		f.inputs[i].Blur()
	}
	return f.inputs[fields[f.focus]].Focus()
}

func (f *loginForm) move(delta int) tea.Cmd {
	n := len(f.fields())
	f.focus = (f.focus + delta + n) % n
	return f.focusCurrent()
}

func (f *loginForm) onLastField() bool {
	return f.focus == len(f.fields())-1
}

func (f *loginForm) toggleMode() tea.Cmd {
	f.signup = !f.signup
	f.focus = 0
	return f.focusCurrent()
}

func (f *loginForm) values() (email, username, password string) {
	return strings.TrimSpace(f.inputs[fieldEmail].Value()),
		strings.TrimSpace(f.inputs[fieldUsername].Value()),
		f.inputs[fieldPassword].Value()
}

func (f *loginForm) complete() bool {
	email, username, password := f.values()
	if email == "" || password == "" {
		return false
	}
	return !f.signup || username != ""
}

// clear drops everything but the email.
func (f *loginForm) clear() {
	f.inputs[fieldUsername].Reset()
	f.inputs[fieldPassword].Reset()
	f.focus = 0
}

func (f *loginForm) update(msg tea.Msg) tea.Cmd {
	i := f.fields()[f.focus]
	var cmd tea.Cmd
	f.inputs[i], cmd = f.inputs[i].Update(msg)
	return cmd
}

func (f *loginForm) view(notice, spin string) string {
	var b strings.Builder
	title, alt := "Sign in", "ctrl+s to create an account"
	if f.signup {
		title, alt = "Create an account", "ctrl+s to sign in instead"
	}
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")
	for _, i := range f.fields() {
		b.WriteString(f.inputs[i].View())
		b.WriteString("\n")
	}
	b.WriteString("\n")
	switch {
	case f.busy:
		b.WriteString(spin + " contacting server…")
	case notice != "":
		b.WriteString(errorStyle.Render(notice))
	default:
		b.WriteString(mutedStyle.Render("enter to continue • " + alt))
	}
	return formStyle.Render(b.String())
}

// authMessage turns a sign in or sign up failure into text for the form.
func authMessage(err error, signup bool) string {
	op := "sign in"
	if signup {
		op = "sign up"
	}
	var be *backend.Error
	switch {
	case errors.Is(err, backend.ErrUnauthenticated):
		return "Invalid email or password."
	case errors.Is(err, backend.ErrValidation) && errors.As(err, &be) && be.Message != "":
		return fmt.Sprintf("Could not %s: %s", op, be.Message)
	case errors.Is(err, backend.ErrValidation):
		return fmt.Sprintf("Could not %s: check the details and try again.", op)
	default:
		return fmt.Sprintf("Could not %s. Check your connection and try again.", op)
	}
}
