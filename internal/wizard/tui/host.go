package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/jeedomfinder/internal/discovery"
)

// hostKeyMap defines key bindings for the host screen
type hostKeyMap struct {
	Back key.Binding
	Quit key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k hostKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Back, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k hostKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Back, k.Quit}}
}

// HostModel shows everything known about one verified host
type HostModel struct {
	Host discovery.Host

	Width  int
	Height int
	Help   help.Model
	Keys   hostKeyMap

	back bool
	quit bool
}

// NewHostModel creates the detail screen for h
func NewHostModel(h discovery.Host) HostModel {
	return HostModel{
		Host: h,
		Help: help.New(),
		Keys: hostKeyMap{
			Back: key.NewBinding(key.WithKeys("esc", "backspace", "left"), key.WithHelp("esc", "back")),
			Quit: key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		},
	}
}

// Update handles key presses
func (m HostModel) Update(msg tea.Msg) (HostModel, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, m.Keys.Back):
			m.back = true
		case key.Matches(keyMsg, m.Keys.Quit):
			m.quit = true
		}
	}
	return m, nil
}

// IsBackRequested reports whether the user asked to return to the list
func (m HostModel) IsBackRequested() bool { return m.back }

// IsQuitRequested reports whether the user asked to quit
func (m HostModel) IsQuitRequested() bool { return m.quit }

// View renders the host screen
func (m HostModel) View() string {
	var b strings.Builder

	b.WriteString(RenderTitle("✓ " + m.Host.DisplayName()))
	b.WriteString("\n")

	fields := []struct{ label, value string }{
		{"Name", m.Host.Name},
		{"URL", m.Host.URL},
		{"Address", m.Host.IP},
		{"Found by", m.Host.Origin},
	}
	for _, f := range fields {
		if f.value == "" {
			continue
		}
		b.WriteString(LabelStyle.Render(f.label+":") + ValueStyle.Render(f.value))
		b.WriteString("\n")
	}

	if m.Host.Description != "" {
		b.WriteString("\n")
		b.WriteString(LabelStyle.Render("Details:"))
		b.WriteString("\n")
		for _, line := range strings.Split(m.Host.Description, "\n") {
			b.WriteString("    • " + line + "\n")
		}
	}

	b.WriteString("\n")
	b.WriteString(RenderSubtitle("  Open the URL in a browser to log in to Jeedom."))
	b.WriteString("\n")

	return RenderApplicationContainer(b.String(), m.Help.View(m.Keys), m.Width, m.Height)
}
