package ui

import "github.com/charmbracelet/lipgloss"

const sidebarWidth = 28

var (
	accent = lipgloss.Color("#7D56F4")
	muted  = lipgloss.Color("#6C6C6C")
	danger = lipgloss.Color("#E06C75")

	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(accent)
	mutedStyle     = lipgloss.NewStyle().Foreground(muted)
	errorStyle     = lipgloss.NewStyle().Foreground(danger)
	userLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	aiLabelStyle   = lipgloss.NewStyle().Bold(true).Foreground(accent)
	cursorStyle    = lipgloss.NewStyle().Bold(true).Foreground(accent)
	activeStyle    = lipgloss.NewStyle().Bold(true)

	sidebarStyle = lipgloss.NewStyle().
			Width(sidebarWidth).
			Border(lipgloss.NormalBorder(), false, true, false, false).
			BorderForeground(muted).
			PaddingRight(1)
	sidebarFocusedStyle = sidebarStyle.BorderForeground(accent)

	formStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 2).
			Width(50)
)
