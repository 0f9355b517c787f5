// Package ui is the terminal shell: a login screen, a sidebar of chats and
// a message pane with a composer. All state lives in the chat.Manager; the
// shell renders its snapshots and turns keys into manager calls.
package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/user/chatpane/internal/chat"
	"github.com/user/chatpane/internal/types"
	"github.com/user/chatpane/pkg/backend"
)

type screen int

const (
	screenLogin screen = iota
	screenChats
)

type focus int

const (
	focusComposer focus = iota
	focusSidebar
)

// stateChangedMsg reports that the manager's state changed.
type stateChangedMsg struct{}

// opResultMsg carries the outcome of a manager call.
type opResultMsg struct {
	op  string
	err error
}

type authResultMsg struct {
	token string
	err   error
}

// Model is the root bubbletea model.
type Model struct {
	ctx     context.Context
	manager *chat.Manager
	auth    backend.Authenticator
	tokens  types.TokenStore
	logger  *slog.Logger
	keys    KeyMap

	screen   screen
	focus    focus
	login    loginForm
	composer Composer
	sidebar  Sidebar
	viewport viewport.Model
	spinner  spinner.Model
	renderer replyRenderer

	state       chat.State
	changes     <-chan struct{}
	unsubscribe func()
	notice      string
	width       int
	height      int
}

// New builds the shell. It starts on the login screen unless tokens already
// holds a session.
func New(ctx context.Context, manager *chat.Manager, auth backend.Authenticator, tokens types.TokenStore, logger *slog.Logger) *Model {
	if logger == nil {
		logger = slog.Default()
	}
	changes, unsubscribe := manager.Subscribe()
	m := &Model{
		ctx:         ctx,
		manager:     manager,
		auth:        auth,
		tokens:      tokens,
		logger:      logger,
		keys:        DefaultKeyMap(),
		login:       newLoginForm(),
		composer:    NewComposer(),
		sidebar:     NewSidebar(),
		viewport:    viewport.New(80, 20),
		spinner:     spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(lipgloss.NewStyle().Foreground(accent))),
		changes:     changes,
		unsubscribe: unsubscribe,
		state:       manager.Snapshot(),
	}
	if _, ok := tokens.Get(); ok {
		m.screen = screenChats
	}
	return m
}

// Close detaches the model from the manager.
func (m *Model) Close() {
	m.unsubscribe()
}

// Run starts the shell and blocks until the user quits or ctx is done.
func Run(ctx context.Context, m *Model) error {
	defer m.Close()
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run tui: %w", err)
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, m.spinner.Tick, m.waitForChange()}
	if m.screen == screenChats {
		cmds = append(cmds, m.composer.Focus(), m.run("refresh", m.manager.Refresh))
	} else {
		cmds = append(cmds, m.login.focusCurrent())
	}
	return tea.Batch(cmds...)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case stateChangedMsg:
		return m, tea.Batch(m.sync(), m.waitForChange())

	case opResultMsg:
		m.handleResult(msg)
		return m, nil

	case authResultMsg:
		return m, m.handleAuth(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		if active, ok := m.state.Active(); ok && m.state.IsSending(active.ID) {
			m.renderMessages()
		}
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Quit) {
			return m, tea.Quit
		}
		if m.screen == screenLogin {
			return m, m.updateLogin(msg)
		}
		return m, m.updateChats(msg)
	}
	return m, m.forward(msg)
}

func (m *Model) View() string {
	if m.width == 0 {
		return "Loading…"
	}
	if m.screen == screenLogin {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, m.login.view(m.notice, m.spinner.View()))
	}

	main := lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		m.viewport.View(),
		m.statusView(),
		m.composer.View(),
	)
	if m.sidebar.Collapsed() {
		return main
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, m.sidebarView(), main)
}

func (m *Model) waitForChange() tea.Cmd {
	ch := m.changes
	return func() tea.Msg {
		if _, ok := <-ch; !ok {
			return nil
		}
		return stateChangedMsg{}
	}
}

func (m *Model) run(op string, fn func(context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return opResultMsg{op: op, err: fn(ctx)}
	}
}

// sync pulls a fresh snapshot. A session that ended underneath the shell
// sends it back to the login screen.
func (m *Model) sync() tea.Cmd {
	prev := m.state.ActiveID
	m.state = m.manager.Snapshot()

	var cmd tea.Cmd
	if _, ok := m.tokens.Get(); !ok && m.screen == screenChats {
		m.screen = screenLogin
		m.notice = m.state.Error
		m.sidebar.CancelRename()
		cmd = m.login.focusCurrent()
	}

	if m.state.ActiveID != "" && m.state.ActiveID != prev {
		m.sidebar.Follow(m.state.Chats, m.state.ActiveID)
	} else {
		m.sidebar.Clamp(len(m.state.Chats))
	}
	if id, editing := m.sidebar.Editing(); editing && !m.listed(id) {
		m.sidebar.CancelRename()
	}
	m.renderMessages()
	return cmd
}

func (m *Model) listed(id types.ChatID) bool {
	for _, c := range m.state.Chats {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (m *Model) handleResult(msg opResultMsg) {
	if msg.err == nil {
		return
	}
	var sendErr *chat.SendError
	if errors.As(msg.err, &sendErr) {
		m.composer.Restore(sendErr.Draft)
	}
	if errors.Is(msg.err, chat.ErrSessionEnded) {
		return
	}
	m.logger.Debug("operation failed", "op", msg.op, "error", msg.err)
}

func (m *Model) handleAuth(msg authResultMsg) tea.Cmd {
	m.login.busy = false
	if msg.err != nil {
		m.notice = authMessage(msg.err, m.login.signup)
		m.logger.Warn("authentication failed", "signup", m.login.signup, "error", msg.err)
		return nil
	}
	if err := m.tokens.Set(msg.token); err != nil {
		m.notice = "Could not save the session: " + err.Error()
		m.logger.Error("save session", "error", err)
		return nil
	}
	m.login.clear()
	m.notice = ""
	m.screen = screenChats
	m.focus = focusComposer
	return tea.Batch(m.composer.Focus(), m.run("refresh", m.manager.Refresh))
}

func (m *Model) updateLogin(msg tea.KeyMsg) tea.Cmd {
	if m.login.busy {
		return nil
	}
	switch {
	case key.Matches(msg, m.keys.Signup):
		m.notice = ""
		return m.login.toggleMode()
	case key.Matches(msg, m.keys.Focus), msg.Type == tea.KeyDown:
		return m.login.move(1)
	case msg.Type == tea.KeyShiftTab, msg.Type == tea.KeyUp:
		return m.login.move(-1)
	case key.Matches(msg, m.keys.Submit):
		if !m.login.onLastField() {
			return m.login.move(1)
		}
		if !m.login.complete() {
			m.notice = "All fields are required."
			return nil
		}
		return m.submitAuth()
	}
	return m.login.update(msg)
}

func (m *Model) submitAuth() tea.Cmd {
	email, username, password := m.login.values()
	signup := m.login.signup
	auth, ctx := m.auth, m.ctx
	m.login.busy = true
	m.notice = ""
	return func() tea.Msg {
		var (
			token string
			err   error
		)
		if signup {
			token, err = auth.Register(ctx, backend.RegisterRequest{Email: email, Username: username, Password: password})
		} else {
			token, err = auth.SignIn(ctx, email, password)
		}
		return authResultMsg{token: token, err: err}
	}
}

func (m *Model) updateChats(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.NewChat):
		m.sidebar.CancelRename()
		m.manager.CreateChat()
		return m.focusComposer()
	case key.Matches(msg, m.keys.Logout):
		return m.logout()
	case key.Matches(msg, m.keys.Collapse):
		m.sidebar.ToggleCollapsed()
		m.layout()
		if m.sidebar.Collapsed() {
			m.sidebar.CancelRename()
			return m.focusComposer()
		}
		return nil
	case key.Matches(msg, m.keys.Refresh):
		return m.run("refresh", m.manager.Refresh)
	case key.Matches(msg, m.keys.PageUp), key.Matches(msg, m.keys.PageDown):
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return cmd
	}

	if _, editing := m.sidebar.Editing(); editing {
		return m.updateRename(msg)
	}
	if key.Matches(msg, m.keys.Focus) {
		if m.focus == focusComposer && !m.sidebar.Collapsed() {
			return m.focusSidebar()
		}
		return m.focusComposer()
	}
	if m.focus == focusSidebar {
		return m.updateSidebar(msg)
	}
	return m.updateComposer(msg)
}

func (m *Model) updateSidebar(msg tea.KeyMsg) tea.Cmd {
	chats := m.state.Chats
	switch {
	case key.Matches(msg, m.keys.Up):
		m.sidebar.Move(-1, len(chats))
	case key.Matches(msg, m.keys.Down):
		m.sidebar.Move(1, len(chats))
	case key.Matches(msg, m.keys.Cancel):
		return m.focusComposer()
	case key.Matches(msg, m.keys.Submit):
		id, ok := m.sidebar.Selected(chats)
		if !ok {
			return nil
		}
		return tea.Batch(m.focusComposer(), m.run("load chat", func(ctx context.Context) error {
			return m.manager.SelectChat(ctx, id)
		}))
	case key.Matches(msg, m.keys.Rename):
		id, ok := m.sidebar.Selected(chats)
		if !ok {
			return nil
		}
		return m.sidebar.StartRename(id, chats[m.sidebar.Cursor()].Name)
	case key.Matches(msg, m.keys.Delete):
		id, ok := m.sidebar.Selected(chats)
		if !ok {
			return nil
		}
		return m.run("delete chat", func(ctx context.Context) error {
			return m.manager.DeleteChat(ctx, id)
		})
	}
	return nil
}

func (m *Model) updateRename(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Cancel):
		m.sidebar.CancelRename()
		return nil
	case key.Matches(msg, m.keys.Submit):
		id, name, ok := m.sidebar.SubmitRename()
		if !ok {
			return nil
		}
		return m.run("rename chat", func(ctx context.Context) error {
			return m.manager.RenameChat(ctx, id, name)
		})
	}
	return m.sidebar.UpdateRename(msg)
}

func (m *Model) updateComposer(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Submit):
		text, ok := m.composer.Take()
		if !ok {
			return nil
		}
		return m.run("send message", func(ctx context.Context) error {
			return m.manager.SendMessage(ctx, text)
		})
	case key.Matches(msg, m.keys.Cancel):
		if m.state.Error != "" {
			m.manager.ClearError()
		}
		return nil
	}
	return m.composer.Update(msg)
}

func (m *Model) forward(msg tea.Msg) tea.Cmd {
	if m.screen == screenLogin {
		return m.login.update(msg)
	}
	if _, editing := m.sidebar.Editing(); editing {
		return m.sidebar.UpdateRename(msg)
	}
	return m.composer.Update(msg)
}

func (m *Model) focusComposer() tea.Cmd {
	m.focus = focusComposer
	return m.composer.Focus()
}

func (m *Model) focusSidebar() tea.Cmd {
	m.focus = focusSidebar
	m.composer.Blur()
	return nil
}

func (m *Model) logout() tea.Cmd {
	if err := m.manager.Logout(); err != nil {
		m.logger.Warn("logout", "error", err)
	}
	m.screen = screenLogin
	m.focus = focusComposer
	m.notice = ""
	m.sidebar.CancelRename()
	m.composer.SetDraft("")
	return m.login.focusCurrent()
}

func (m *Model) layout() {
	side := 0
	if !m.sidebar.Collapsed() {
		side = sidebarWidth + 2
	}
	mainWidth := max(m.width-side, 20)
	m.viewport.Width = mainWidth
	m.viewport.Height = max(m.height-3, 3)
	m.composer.SetWidth(mainWidth)
	m.renderer.SetWidth(mainWidth - 4)
	m.renderMessages()
}

func (m *Model) renderMessages() {
	active, ok := m.state.Active()
	if !ok {
		m.viewport.SetContent(mutedStyle.Render("Type a message to start a new chat."))
		return
	}

	wrap := lipgloss.NewStyle().Width(max(m.viewport.Width-2, 10))
	var b strings.Builder
	for i, msg := range active.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if msg.Sender == types.SenderUser {
			b.WriteString(userLabelStyle.Render("You"))
			switch msg.Status {
			case types.StatusPending:
				b.WriteString(mutedStyle.Render(" sending…"))
			case types.StatusFailed:
				b.WriteString(errorStyle.Render(" not delivered"))
			}
			b.WriteString("\n")
			b.WriteString(wrap.Render(msg.Text))
			continue
		}
		b.WriteString(aiLabelStyle.Render("Assistant"))
		b.WriteString("\n")
		b.WriteString(m.renderer.Render(msg.Text))
	}
	if m.state.IsSending(active.ID) {
		b.WriteString("\n\n")
		b.WriteString(m.spinner.View() + mutedStyle.Render(" waiting for reply"))
	}

	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(b.String())
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) headerView() string {
	title := "New chat"
	if active, ok := m.state.Active(); ok {
		title = active.Name
	}
	header := titleStyle.Render(truncate(title, max(m.viewport.Width-4, 8)))
	if m.state.Loading {
		header += " " + m.spinner.View()
	}
	return header
}

func (m *Model) statusView() string {
	if m.state.Error != "" {
		return errorStyle.Render(m.state.Error) + mutedStyle.Render("  (esc to dismiss)")
	}
	parts := make([]string, 0, len(m.keys.ShortHelp()))
	for _, b := range m.keys.ShortHelp() {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return mutedStyle.Render(truncate(strings.Join(parts, " • "), max(m.viewport.Width, 10)))
}

func (m *Model) sidebarView() string {
	style := sidebarStyle
	if m.focus == focusSidebar {
		style = sidebarFocusedStyle
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Chats"))
	b.WriteString("\n\n")
	if len(m.state.Chats) == 0 {
		b.WriteString(mutedStyle.Render("No chats yet"))
	}
	editID, editing := m.sidebar.Editing()
	for i, c := range m.state.Chats {
		prefix := "  "
		if m.focus == focusSidebar && i == m.sidebar.Cursor() {
			prefix = cursorStyle.Render("▸ ")
		}
		b.WriteString(prefix)
		switch {
		case editing && c.ID == editID:
			b.WriteString(m.sidebar.RenameView())
		case c.ID == m.state.ActiveID:
			b.WriteString(activeStyle.Render(truncate(c.Name, sidebarWidth-5)))
		default:
			b.WriteString(truncate(c.Name, sidebarWidth-5))
		}
		if m.state.IsSending(c.ID) {
			b.WriteString(" " + m.spinner.View())
		}
		b.WriteString("\n")
	}
	return style.Height(max(m.height, 1)).Render(b.String())
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
