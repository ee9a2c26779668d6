package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestRenderBar(t *testing.T) {
	tests := []struct {
		width    int
		ratio    float64
		expected string
	}{
		{4, 0, "[    ]"},
		{4, 0.5, "[==  ]"},
		{4, 1, "[====]"},
		{4, 2, "[====]"},
		{4, -1, "[    ]"},
	}

	for _, tt := range tests {
		if got := renderBar(tt.width, tt.ratio); got != tt.expected {
			t.Errorf("renderBar(%d, %v) = %q, want %q", tt.width, tt.ratio, got, tt.expected)
		}
	}
}

func TestModel_Update(t *testing.T) {
	updates := make(chan Progress, 4)
	m := NewModel("Scanning", updates)

	next, cmd := m.Update(progressMsg{Message: "Hashing item 2...", Current: 2, Total: 5})
	m = next.(Model)
	if cmd == nil {
		t.Error("expected a listen command after a progress message")
	}
	if m.current != 2 || m.total != 5 || m.message != "Hashing item 2..." {
		t.Errorf("model = %+v", m)
	}

	// Out-of-order reports from parallel workers never move the bar back
	next, _ = m.Update(progressMsg{Message: "Hashing item 1...", Current: 1, Total: 5})
	m = next.(Model)
	if m.current != 2 {
		t.Errorf("current = %d, want 2", m.current)
	}

	if !strings.Contains(m.View(), "Items: 2/5") {
		t.Errorf("view missing counter:\n%s", m.View())
	}

	next, _ = m.Update(doneMsg{})
	m = next.(Model)
	if !m.quitting || m.View() != "" {
		t.Error("model should quit with an empty view")
	}
}

func TestModel_WindowSize(t *testing.T) {
	m := NewModel("Scanning", nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	if next.(Model).width != 120 {
		t.Errorf("width = %d, want 120", next.(Model).width)
	}
}

func TestSink(t *testing.T) {
	updates := make(chan Progress, 1)
	report := Sink(updates)

	report("first", 1, 3)
	report("dropped", 2, 3) // channel is full

	got := <-updates
	if got.Message != "first" || got.Current != 1 || got.Total != 3 {
		t.Errorf("got %+v", got)
	}
	select {
	case extra := <-updates:
		t.Errorf("expected the second report to be dropped, got %+v", extra)
	default:
	}
}

func TestListenForUpdates_Closed(t *testing.T) {
	updates := make(chan Progress)
	close(updates)

	if _, ok := listenForUpdates(updates)().(doneMsg); !ok {
		t.Error("closed channel should produce doneMsg")
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary([]SummaryRow{
		{Label: "Items", Value: "10"},
		{Label: "Duplicate groups", Value: "3"},
		{Label: "Errors", Value: "1", Warn: true},
	})

	lines := strings.Split(out, "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 lines, got %d:\n%s", len(lines), out)
	}
	if lines[0] != strings.Repeat("-", len("Duplicate groups")+2+3) {
		t.Errorf("unexpected rule %q", lines[0])
	}
	for _, want := range []string{"Items", "Duplicate groups", "Errors", "10"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q", want)
		}
	}
}
