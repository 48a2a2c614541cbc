package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/muurk/jeedomfinder/internal/discovery"
)

// RenderHosts renders the verified hosts as a table of name, URL, address and
// description.
func RenderHosts(hosts []discovery.Host, width int) string {
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(MutedColor)).
		Headers("NAME", "URL", "ADDRESS", "DETAILS").
		Width(width - 8). // Indented within result box
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return TableHeaderStyle
			}
			return TableCellStyle
		})

	for _, h := range hosts {
		t.Row(h.DisplayName(), h.URL, h.IP, details(h.Description))
	}
	return t.Render()
}

// details drops the blank lines of a description
func details(description string) string {
	var parts []string
	for _, line := range strings.Split(description, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			parts = append(parts, line)
		}
	}
	return strings.Join(parts, "\n")
}

// RenderFoundLine renders the one-line notice printed when a host is verified
func RenderFoundLine(h discovery.Host) string {
	return HostFoundStyle.Render(FoundMarker+" "+h.DisplayName()) + " " +
		HeaderParamValueStyle.Render(h.URL) + " " +
		StepNoteStyle.Render("("+h.Origin+")")
}
