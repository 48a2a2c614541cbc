package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// EventLogEntry is one error reported by a discovery worker
type EventLogEntry struct {
	Worker  string
	Title   string
	Message string
}

// EventLog is a box listing the errors workers reported during a scan.
// Shown in verbose mode after the result.
type EventLog struct {
	Title    string
	Entries  []EventLogEntry
	Width    int
	MaxLines int // Maximum entries to display (0 = unlimited)
}

// NewEventLog creates an empty event log box
func NewEventLog() *EventLog {
	return &EventLog{
		Title: "Worker errors",
		Width: GetTerminalWidth(),
	}
}

// Add records an error reported by worker
func (l *EventLog) Add(worker, title, message string) {
	l.Entries = append(l.Entries, EventLogEntry{Worker: worker, Title: title, Message: message})
}

// SetWidth sets the terminal width for responsive rendering
func (l *EventLog) SetWidth(width int) *EventLog {
	l.Width = width
	return l
}

// SetMaxLines limits the number of entries displayed
func (l *EventLog) SetMaxLines(max int) *EventLog {
	l.MaxLines = max
	return l
}

// CountFor returns how many errors worker reported
func (l *EventLog) CountFor(worker string) int {
	n := 0
	for _, e := range l.Entries {
		if e.Worker == worker {
			n++
		}
	}
	return n
}

// Render returns the styled event log box, or an empty string when no error
// was recorded.
func (l *EventLog) Render() string {
	if len(l.Entries) == 0 {
		return ""
	}
	width := l.Width
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	entries := l.Entries
	truncated := 0
	if l.MaxLines > 0 && len(entries) > l.MaxLines {
		truncated = len(entries) - l.MaxLines
		entries = entries[:l.MaxLines]
	}

	lines := make([]string, 0, len(entries)+1)
	for _, e := range entries {
		line := StepNoteStyle.Render("["+e.Worker+"]") + " " + ErrorMessageStyle.Render(e.Title)
		if e.Message != "" {
			line += ": " + ResultValueStyle.Render(e.Message)
		}
		lines = append(lines, line)
	}
	if truncated > 0 {
		lines = append(lines, StepNoteStyle.Render(fmt.Sprintf("... (%d more)", truncated)))
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, EventLogTitleStyle.Render(l.Title), "", strings.Join(lines, "\n"))

	boxWidth := width - 4
	if boxWidth < 40 {
		boxWidth = 40
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(MutedColor).
		Width(boxWidth).
		Padding(0, 1).
		MarginLeft(2).
		Render(inner)
}

// String implements fmt.Stringer
func (l *EventLog) String() string {
	return l.Render()
}
