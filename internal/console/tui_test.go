package console

import (
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var next tea.Model
		next, cmd = m.Update(key(k))
		m = next.(Model)
	}
	return m, cmd
}

func TestModelChangesSelectedSegment(t *testing.T) {
	sel, _ := NewDateSelector("20011025", fixedNow)
	m := NewModel(sel, "127.0.0.1:8888", nil)

	m, _ = press(t, m, "up", "right", "down", "tab", "up", "left", "left")
	if got := sel.Wayback(); got != "20020926" {
		t.Errorf("Wayback() = %q, expected 20020926", got)
	}
	if sel.Segment() != SegmentYear {
		t.Errorf("Segment() = %v", sel.Segment())
	}
	if v := m.View(); !strings.Contains(v, "enter to apply") {
		t.Errorf("pending change not shown:\n%s", v)
	}
}

func TestModelApply(t *testing.T) {
	sel, _ := NewDateSelector("20011025", fixedNow)
	var got []string
	m := NewModel(sel, "", func(date string) error {
		got = append(got, date)
		return nil
	})

	if _, cmd := press(t, m, "enter"); cmd != nil {
		t.Error("enter without a change should not apply")
	}

	m, cmd := press(t, m, "up", "enter")
	if cmd == nil {
		t.Fatal("enter after a change should apply")
	}
	next, _ := m.Update(cmd())
	m = next.(Model)
	if len(got) != 1 || got[0] != "20021025" {
		t.Errorf("apply calls = %v", got)
	}
	if m.applied != "20021025" || !strings.Contains(m.View(), "Now browsing 20021025") {
		t.Errorf("applied = %q, view:\n%s", m.applied, m.View())
	}
}

func TestModelApplyError(t *testing.T) {
	sel, _ := NewDateSelector("20011025", fixedNow)
	m := NewModel(sel, "", func(string) error { return errors.New("disk full") })

	m, cmd := press(t, m, "down", "enter")
	next, _ := m.Update(cmd())
	m = next.(Model)
	if m.applied != "20011025" {
		t.Errorf("applied = %q after a failed apply", m.applied)
	}
	if !strings.Contains(m.View(), "disk full") {
		t.Errorf("error not shown:\n%s", m.View())
	}
}

func TestModelQuit(t *testing.T) {
	sel, _ := NewDateSelector("20011025", fixedNow)
	m := NewModel(sel, "", nil)
	_, cmd := press(t, m, "q")
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q did not produce tea.QuitMsg")
	}
}
