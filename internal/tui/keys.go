package tui

import "github.com/charmbracelet/bubbles/key"

type KeyMap struct {
	Left      key.Binding
	Right     key.Binding
	Up        key.Binding
	Down      key.Binding
	PrevWeek  key.Binding
	NextWeek  key.Binding
	Today     key.Binding
	Cycle     key.Binding
	Achieved  key.Binding
	Missed    key.Binding
	Clear     key.Binding
	EditNotes key.Binding
	Retry     key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Cycle, k.EditNotes, k.PrevWeek, k.NextWeek, k.Quit, k.Help}
}

func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.PrevWeek, k.NextWeek, k.Today},
		{k.Cycle, k.Achieved, k.Missed, k.Clear, k.EditNotes},
		{k.Retry, k.Help, k.Quit},
	}
}

func DefaultKeyMap() KeyMap {
	return KeyMap{
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "previous day"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next day"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "previous habit"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "next habit"),
		),
		PrevWeek: key.NewBinding(
			key.WithKeys("["),
			key.WithHelp("[", "earlier"),
		),
		NextWeek: key.NewBinding(
			key.WithKeys("]"),
			key.WithHelp("]", "later"),
		),
		Today: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "today"),
		),
		Cycle: key.NewBinding(
			key.WithKeys(" ", "enter"),
			key.WithHelp("space", "cycle status"),
		),
		Achieved: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "achieved"),
		),
		Missed: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "not achieved"),
		),
		Clear: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "unchecked"),
		),
		EditNotes: key.NewBinding(
			key.WithKeys("e"),
			key.WithHelp("e", "notes"),
		),
		Retry: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "retry"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "toggle help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}
