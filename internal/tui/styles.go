package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	cellStyle = lipgloss.NewStyle().
			Width(5).
			Align(lipgloss.Center)

	cursorStyle = cellStyle.
			Background(lipgloss.Color("236")).
			Bold(true)

	achievedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	notAchievedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	uncheckedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	pendingStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Italic(true)

	dangerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	docStyle    = lipgloss.NewStyle().Margin(1, 2)
)
