package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/julianstephens/habitlog/internal/habitview"
	"github.com/julianstephens/habitlog/internal/models"
	"github.com/julianstephens/habitlog/internal/utils"
)

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	h, ok := m.habit()
	if !ok {
		return docStyle.Render("No habits yet. Add one with 'habitlog habit add'.\n\n" + m.help.View(m.keys))
	}

	sections := []string{
		m.viewTitle(h),
		"",
		m.viewGrid(),
		"",
		m.viewDetail(),
		m.viewStatus(),
	}
	if m.editing {
		sections = append(sections, "", m.notes.View())
	}
	sections = append(sections, "", m.help.View(m.keys))

	return docStyle.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) viewTitle(h models.Habit) string {
	name := h.Name
	if h.Icon != "" {
		name = h.Icon + " " + name
	}
	pos := subtleStyle.Render(fmt.Sprintf("  %d/%d  %s", m.selected+1, len(m.habits), h.Frequency))
	return titleStyle.Render(name) + pos
}

func (m Model) viewGrid() string {
	w := m.state.Window
	if w.Len() == 0 {
		if m.state.Loading || m.state.Status == habitview.Subscribing {
			return subtleStyle.Render("Loading...")
		}
		return subtleStyle.Render("Nothing to show.")
	}

	var header, days, marks []string
	for i, e := range w.Entries {
		style := cellStyle
		if i == m.cursor {
			style = cursorStyle
		}
		weekday, dayNum := "", ""
		if t, err := utils.ParseDay(e.Date); err == nil {
			weekday = t.Weekday().String()[:3]
			dayNum = fmt.Sprintf("%02d", t.Day())
		}
		header = append(header, style.Render(weekday))
		days = append(days, style.Render(dayNum))
		marks = append(marks, style.Render(m.renderMark(e)))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, header...),
		lipgloss.JoinHorizontal(lipgloss.Top, days...),
		lipgloss.JoinHorizontal(lipgloss.Top, marks...),
	)
}

func (m Model) renderMark(e models.HabitLogEntry) string {
	if m.state.IsUpdating(e.Date) {
		return pendingStyle.Render(statusMark(e.Status))
	}
	switch e.Status {
	case models.StatusAchieved:
		return achievedStyle.Render(statusMark(e.Status))
	case models.StatusNotAchieved:
		return notAchievedStyle.Render(statusMark(e.Status))
	default:
		return uncheckedStyle.Render(statusMark(e.Status))
	}
}

func statusMark(s models.LogStatus) string {
	switch s {
	case models.StatusAchieved:
		return "✓"
	case models.StatusNotAchieved:
		return "✗"
	default:
		return "·"
	}
}

func (m Model) viewDetail() string {
	e, ok := m.current()
	if !ok {
		return ""
	}
	line := fmt.Sprintf("%s  %s", e.Date, strings.ReplaceAll(string(e.Status), "_", " "))
	if m.state.IsUpdating(e.Date) {
		line += subtleStyle.Render("  saving...")
	}
	if e.Notes != "" {
		line += "\n" + subtleStyle.Render(e.Notes)
	}
	return line
}

func (m Model) viewStatus() string {
	var parts []string
	switch {
	case m.state.SubscriptionErr != nil:
		parts = append(parts, dangerStyle.Render("⚠ live updates off: "+describe(m.state.SubscriptionErr)+" (r to retry)"))
	case m.state.Status == habitview.Active:
		parts = append(parts, subtleStyle.Render("● live"))
	default:
		parts = append(parts, subtleStyle.Render("○ "+m.state.Status.String()))
	}
	if m.state.FetchErr != nil {
		parts = append(parts, dangerStyle.Render("⚠ "+describe(m.state.FetchErr)+" (r to retry)"))
	}
	if m.state.UpdateErr != nil {
		parts = append(parts, dangerStyle.Render("⚠ "+describe(m.state.UpdateErr)))
	}
	if m.message != "" {
		parts = append(parts, m.message)
	}
	return strings.Join(parts, "\n")
}
