package tui

import (
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/models"
)

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil

	case stateMsg:
		s := habitview.State(msg)
		if s.Version >= m.state.Version {
			if s.HabitID != m.state.HabitID || s.Anchor != m.state.Anchor {
				m.cursor = -1
			}
			m.state = s
			if n := s.Window.Len(); m.cursor < 0 || m.cursor >= n {
				m.cursor = n - 1
			}
		}
		return m, waitForState(m.states)

	case subscribedMsg:
		m.handle = msg.handle
		m.message = unreported(msg.err)
		return m, nil

	case actionDoneMsg:
		m.message = unreported(msg.err)
		return m, nil

	case tea.KeyMsg:
		if m.editing {
			return m.updateNotes(msg)
		}
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.message = ""
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Left):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(msg, m.keys.Right):
		if m.cursor < m.state.Window.Len()-1 {
			m.cursor++
		}
	case key.Matches(msg, m.keys.Up):
		return m.selectHabit(m.selected - 1)
	case key.Matches(msg, m.keys.Down):
		return m.selectHabit(m.selected + 1)
	case key.Matches(msg, m.keys.PrevWeek):
		return m, m.shiftAnchor(-m.state.Window.Len())
	case key.Matches(msg, m.keys.NextWeek):
		return m, m.shiftAnchor(m.state.Window.Len())
	case key.Matches(msg, m.keys.Today):
		return m, m.setAnchor("")
	case key.Matches(msg, m.keys.Retry):
		return m, m.retry()
	case key.Matches(msg, m.keys.Cycle):
		if e, ok := m.current(); ok {
			return m, m.write(e.Status.Next(), e.Notes)
		}
	case key.Matches(msg, m.keys.Achieved):
		return m, m.writeStatus(models.StatusAchieved)
	case key.Matches(msg, m.keys.Missed):
		return m, m.writeStatus(models.StatusNotAchieved)
	case key.Matches(msg, m.keys.Clear):
		return m, m.writeStatus(models.StatusUnchecked)
	case key.Matches(msg, m.keys.EditNotes):
		if e, ok := m.current(); ok {
			m.editing = true
			m.notes.SetValue(e.Notes)
			m.notes.CursorEnd()
			return m, m.notes.Focus()
		}
	}
	return m, nil
}

func (m Model) writeStatus(s models.LogStatus) tea.Cmd {
	e, ok := m.current()
	if !ok {
		return nil
	}
	return m.write(s, e.Notes)
}

func (m Model) selectHabit(i int) (tea.Model, tea.Cmd) {
	if i < 0 || i >= len(m.habits) || i == m.selected {
		return m, nil
	}
	m.selected = i
	return m, m.subscribe(m.habits[i].ID, m.state.Anchor)
}

func (m Model) updateNotes(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.editing = false
		m.notes.Blur()
		return m, nil
	case tea.KeyEnter:
		m.editing = false
		m.notes.Blur()
		e, ok := m.current()
		if !ok {
			return m, nil
		}
		return m, m.write(e.Status, m.notes.Value())
	}

	var cmd tea.Cmd
	m.notes, cmd = m.notes.Update(msg)
	return m, cmd
}
