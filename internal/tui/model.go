// Package tui renders the live log window of a habit and edits it in place.
package tui

import (
	"context"
	stderrors "errors"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/julianstephens/habitlog/internal/constants"
	"github.com/julianstephens/habitlog/internal/errors"
	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

// stateMsg carries a view snapshot into the update loop
type stateMsg habitview.State

type subscribedMsg struct {
	handle habitview.Handle
	err    error
}

type actionDoneMsg struct {
	err error
}

type Model struct {
	ctx    context.Context
	view   *habitview.View
	states chan habitview.State
	stop   func()

	habits   []models.Habit
	selected int
	handle   habitview.Handle
	state    habitview.State
	cursor   int

	keys    KeyMap
	help    help.Model
	notes   textinput.Model
	editing bool
	message string

	quitting bool
	width    int
	height   int
}

// NewModel builds a model over view showing habits[selected]. The model owns
// the view's subscription but not the view itself.
func NewModel(ctx context.Context, view *habitview.View, habits []models.Habit, selected int) Model {
	notes := textinput.New()
	notes.Placeholder = "notes for the day"
	notes.CharLimit = constants.MaxNotesLength
	notes.Width = 50

	states := make(chan habitview.State, 1)
	stop := view.OnChange(func(s habitview.State) { offer(states, s) })

	if selected < 0 || selected >= len(habits) {
		selected = 0
	}
	return Model{
		ctx:      ctx,
		view:     view,
		states:   states,
		stop:     stop,
		habits:   habits,
		selected: selected,
		keys:     DefaultKeyMap(),
		help:     help.New(),
		notes:    notes,
		cursor:   -1,
	}
}

// offer replaces any undelivered snapshot with s
func offer(ch chan habitview.State, s habitview.State) {
	for {
		select {
		case ch <- s:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func waitForState(ch <-chan habitview.State) tea.Cmd {
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func (m Model) Init() tea.Cmd {
	if len(m.habits) == 0 {
		return nil
	}
	return tea.Batch(m.subscribe(m.habits[m.selected].ID, ""), waitForState(m.states))
}

func (m Model) subscribe(habitID, anchor string) tea.Cmd {
	view, ctx := m.view, m.ctx
	return func() tea.Msg {
		h, err := view.Subscribe(ctx, habitID, anchor)
		return subscribedMsg{handle: h, err: err}
	}
}

// setAnchor resubscribes the current habit so the model keeps the live handle
func (m Model) setAnchor(anchor string) tea.Cmd {
	if m.state.HabitID == "" {
		return nil
	}
	return m.subscribe(m.state.HabitID, anchor)
}

func (m Model) retry() tea.Cmd {
	if m.state.HabitID != "" && m.state.Status != habitview.Active {
		return m.subscribe(m.state.HabitID, m.state.Anchor)
	}
	view, ctx := m.view, m.ctx
	return func() tea.Msg {
		return actionDoneMsg{err: view.Retry(ctx)}
	}
}

// write sets the status and notes of the day under the cursor
func (m Model) write(status models.LogStatus, notes string) tea.Cmd {
	e, ok := m.current()
	if !ok {
		return nil
	}
	view, ctx, habitID := m.view, m.ctx, m.state.HabitID
	return func() tea.Msg {
		_, err := view.UpdateLog(ctx, habitID, e.Date, e.ID, status, notes)
		return actionDoneMsg{err: err}
	}
}

func (m Model) current() (models.HabitLogEntry, bool) {
	entries := m.state.Window.Entries
	if m.cursor < 0 || m.cursor >= len(entries) {
		return models.HabitLogEntry{}, false
	}
	return entries[m.cursor], true
}

func (m Model) habit() (models.Habit, bool) {
	if m.selected < 0 || m.selected >= len(m.habits) {
		return models.Habit{}, false
	}
	return m.habits[m.selected], true
}

// shiftAnchor moves the window end by n days
func (m Model) shiftAnchor(n int) tea.Cmd {
	anchor := m.state.Anchor
	if anchor == "" {
		return nil
	}
	next, err := utils.AddDays(anchor, n)
	if err != nil {
		return nil
	}
	return m.setAnchor(next)
}

// describe returns the user-facing text of err
func describe(err error) string {
	var e *errors.Error
	if stderrors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}

// unreported returns the text of err unless the view state already shows it
func unreported(err error) string {
	if err == nil {
		return ""
	}
	var e *errors.Error
	if stderrors.As(err, &e) {
		return ""
	}
	return err.Error()
}

// Close releases the listener and the subscription.
func (m Model) Close() {
	m.stop()
	m.view.Unsubscribe(m.handle)
}

// Run shows habits[selected] until the user quits.
func Run(ctx context.Context, view *habitview.View, habits []models.Habit, selected int) error {
	m := NewModel(ctx, view, habits, selected)
	final, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if fm, ok := final.(Model); ok {
		fm.Close()
	} else {
		m.Close()
	}
	if stderrors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
