// Package tui is the terminal front-end for the weather-email form.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/gometeo/weathermail/internal/form"
)

// --- Messages ---

type logsFetchedMsg struct{ err error }
type submitDoneMsg struct{ err error }
type deleteDoneMsg struct{ err error }

type focus int

const (
	focusCity focus = iota
	focusEmail
	focusHistory
	focusCount
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFFFF")).Background(lipgloss.Color("#1E40AF")).Padding(0, 1)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#9CA3AF"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#15803D"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#B91C1C"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2563EB"))
)

// Model is the bubbletea model. All remote work goes through ctrl.
type Model struct {
	ctrl    *form.Controller
	timeout time.Duration

	city    textinput.Model
	email   textinput.Model
	spinner spinner.Model

	focus      focus
	cursor     int
	submitting bool
}

// New builds the model. timeout bounds each remote call.
func New(ctrl *form.Controller, timeout time.Duration) Model {
	city := textinput.New()
	city.Placeholder = "Enter city name..."
	city.Prompt = "City:  "
	city.Focus()

	email := textinput.New()
	email.Placeholder = "Enter email address..."
	email.Prompt = "Email: "

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		ctrl:    ctrl,
		timeout: timeout,
		city:    city,
		email:   email,
		spinner: sp,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.fetchLogs())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case submitDoneMsg:
		m.submitting = false
		st := m.ctrl.Snapshot()
		m.city.SetValue(st.City)
		m.email.SetValue(st.Email)
		m.clampCursor()
		return m, nil
	case logsFetchedMsg, deleteDoneMsg:
		m.clampCursor()
		return m, nil
	case spinner.TickMsg:
		if !m.loading() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m.updateInputs(msg)
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "tab", "shift+tab":
		step := focus(1)
		if msg.String() == "shift+tab" {
			step = focusCount - 1
		}
		cmd := m.setFocus((m.focus + step) % focusCount)
		return m, cmd
	case "ctrl+r":
		return m, m.fetchLogs()
	case "enter":
		if m.focus == focusHistory {
			return m, nil
		}
		return m.submit()
	}

	if m.focus == focusHistory {
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.ctrl.Snapshot().Logs)-1 {
				m.cursor++
			}
		case "d", "x", "delete", "ctrl+d":
			return m, m.deleteSelected()
		}
		return m, nil
	}

	if m.loading() {
		return m, nil
	}
	return m.updateInputs(msg)
}

// submit mirrors the disabled submit button: nothing happens while a
// submission is outstanding.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.loading() {
		return m, nil
	}
	m.submitting = true
	city, email := m.city.Value(), m.email.Value()
	ctrl, timeout := m.ctrl, m.timeout

	run := func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := ctrl.Submit(ctx, city, email)
		return submitDoneMsg{err: err}
	}
	return m, tea.Batch(run, m.spinner.Tick)
}

func (m Model) fetchLogs() tea.Cmd {
	ctrl, timeout := m.ctrl, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return logsFetchedMsg{err: ctrl.FetchLogs(ctx)}
	}
}

func (m Model) deleteSelected() tea.Cmd {
	logs := m.ctrl.Snapshot().Logs
	if m.cursor < 0 || m.cursor >= len(logs) {
		return nil
	}
	id := logs[m.cursor].ID
	ctrl, timeout := m.ctrl, m.timeout
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return deleteDoneMsg{err: ctrl.DeleteLog(ctx, id)}
	}
}

func (m *Model) setFocus(f focus) tea.Cmd {
	m.focus = f
	m.city.Blur()
	m.email.Blur()
	switch f {
	case focusCity:
		return m.city.Focus()
	case focusEmail:
		return m.email.Focus()
	}
	return nil
}

// updateInputs forwards msg to the text inputs and records edits on the
// controller so its state always holds what is on screen.
func (m Model) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	city, email := m.city.Value(), m.email.Value()

	var cityCmd, emailCmd tea.Cmd
	m.city, cityCmd = m.city.Update(msg)
	m.email, emailCmd = m.email.Update(msg)

	if m.city.Value() != city || m.email.Value() != email {
		m.ctrl.SetInputs(m.city.Value(), m.email.Value())
	}
	return m, tea.Batch(cityCmd, emailCmd)
}

func (m *Model) clampCursor() {
	n := len(m.ctrl.Snapshot().Logs)
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) loading() bool {
	return m.submitting || m.ctrl.Snapshot().Loading
}

func (m Model) View() string {
	st := m.ctrl.Snapshot()
	var b strings.Builder

	b.WriteString(titleStyle.Render("Zeo Weather Email"))
	b.WriteString("\n\n")
	b.WriteString(m.city.View() + "\n")
	b.WriteString(m.email.View() + "\n\n")

	if m.loading() {
		b.WriteString(m.spinner.View() + " Sending...\n")
		b.WriteString(mutedStyle.Render("Processing your request...") + "\n")
	} else {
		b.WriteString(labelStyle.Render("[enter] Send Weather Email") + "\n")
	}

	if st.Message != "" {
		style := successStyle
		if st.Status == form.StatusError {
			style = errorStyle
		}
		b.WriteString("\n" + style.Render(st.Message) + "\n")
	}

	b.WriteString("\n" + labelStyle.Render("Send History") + "\n")
	if len(st.Logs) == 0 {
		b.WriteString(mutedStyle.Render("No weather emails sent yet.") + "\n")
	}
	for i, l := range st.Logs {
		line := fmt.Sprintf("%-16s %-28s %-26s %s", l.City, l.Email, l.DateSent, l.Weather)
		if m.focus == focusHistory && i == m.cursor {
			b.WriteString(selectedStyle.Render("> "+line) + "\n")
			continue
		}
		b.WriteString("  " + line + "\n")
	}

	b.WriteString("\n" + mutedStyle.Render("tab: switch focus • ↑/↓: select • d: delete • ctrl+r: refresh • esc: quit") + "\n")
	return b.String()
}
