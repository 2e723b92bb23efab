package console

import (
	"context"
	"errors"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ApplyFunc retargets the proxy to date (YYYYMMDD).
type ApplyFunc func(date string) error

// Model is the bubbletea model of the date selector.
type Model struct {
	sel     *DateSelector
	apply   ApplyFunc
	addr    string
	applied string
	status  string
	err     error
	width   int
}

// NewModel creates a model for sel. applied is the date currently in effect.
func NewModel(sel *DateSelector, addr string, apply ApplyFunc) Model {
	return Model{
		sel:     sel,
		apply:   apply,
		addr:    addr,
		applied: sel.Wayback(),
	}
}

type appliedMsg struct {
	date string
	err  error
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case appliedMsg:
		if msg.err != nil {
			m.err = msg.err
			m.status = ""
			return m, nil
		}
		m.err = nil
		m.applied = msg.date
		m.status = "Now browsing " + msg.date
		return m, nil

	case tea.KeyMsg:
		return m.updateKey(msg)
	}
	return m, nil
}

func (m Model) updateKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit

	case "left", "h", "shift+tab":
		m.sel.PrevSegment()

	case "right", "l", "tab":
		m.sel.NextSegment()

	case "up", "k", "+":
		m.sel.Increment()

	case "down", "j", "-":
		m.sel.Decrement()

	case "enter":
		date := m.sel.Wayback()
		if date == m.applied || m.apply == nil {
			return m, nil
		}
		apply := m.apply
		return m, func() tea.Msg {
			return appliedMsg{date: date, err: apply(date)}
		}
	}
	return m, nil
}

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	segmentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("12")).Bold(true)
	dateStyle     = lipgloss.NewStyle().Bold(true)
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	footerStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	dateSeparator = dateStyle.Render("-")
)

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("WaybackProxy"))
	if m.addr != "" {
		b.WriteString(footerStyle.Render("  listening on " + m.addr))
	}
	b.WriteString("\n\n")

	parts := m.sel.Parts()
	rendered := make([]string, len(parts))
	for i, p := range parts {
		if Segment(i) == m.sel.Segment() {
			rendered[i] = segmentStyle.Render(p)
		} else {
			rendered[i] = dateStyle.Render(p)
		}
	}
	b.WriteString("  " + strings.Join(rendered, dateSeparator))
	if m.sel.Wayback() != m.applied {
		b.WriteString(pendingStyle.Render("  (enter to apply)"))
	}
	b.WriteString("\n\n")

	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render("Error: " + m.err.Error()))
		b.WriteString("\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(footerStyle.Render("←/→ or tab: segment • ↑/↓: change • enter: apply • q: quit"))
	return b.String()
}

// Run shows the selector until the user quits or ctx is done.
func Run(ctx context.Context, sel *DateSelector, addr string, apply ApplyFunc) error {
	p := tea.NewProgram(NewModel(sel, addr, apply), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if err != nil && (errors.Is(err, tea.ErrProgramKilled) || ctx.Err() != nil) {
		return nil
	}
	return err
}
