package tui

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/jeedomfinder/internal/discovery"
)

// Screen represents the current active screen in the application
type Screen string

const (
	ScreenSearch Screen = "search"
	ScreenHost   Screen = "host"
)

// AppModel is the top-level model that manages screen transitions
type AppModel struct {
	CurrentScreen Screen

	Search SearchModel
	Host   HostModel

	Width  int
	Height int
}

// NewAppModel creates the wizard, starting on the search screen
func NewAppModel(searcher Searcher, opts discovery.Options) AppModel {
	return AppModel{
		CurrentScreen: ScreenSearch,
		Search:        NewSearchModel(searcher, opts),
	}
}

// Init starts the search
func (m AppModel) Init() tea.Cmd {
	return m.Search.Init()
}

// Update handles all messages and routes them to the appropriate screen
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.Host.Width = msg.Width
		m.Host.Height = msg.Height
		var cmd tea.Cmd
		m.Search, cmd = m.Search.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Global quit handler
		if msg.String() == "ctrl+c" {
			return m, m.Search.RequestQuit()
		}
		if m.CurrentScreen == ScreenHost {
			return m.updateHost(msg)
		}
	}

	// Search messages keep flowing while the host screen is shown
	var cmd tea.Cmd
	m.Search, cmd = m.Search.Update(msg)

	if m.CurrentScreen == ScreenSearch && m.Search.Selected {
		m.Search.Selected = false
		if h := m.Search.SelectedHost(); h != nil {
			m.Host = NewHostModel(*h)
			m.Host.Width = m.Width
			m.Host.Height = m.Height
			m.CurrentScreen = ScreenHost
		}
	}
	return m, cmd
}

// updateHost routes key presses to the host screen
func (m AppModel) updateHost(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	m.Host, cmd = m.Host.Update(msg)

	switch {
	case m.Host.IsQuitRequested():
		return m, m.Search.RequestQuit()
	case m.Host.IsBackRequested():
		m.CurrentScreen = ScreenSearch
	}
	return m, cmd
}

// View renders the current screen
func (m AppModel) View() string {
	switch m.CurrentScreen {
	case ScreenHost:
		return m.Host.View()
	default:
		return m.Search.View()
	}
}

// Run runs the wizard full screen until the user quits and returns the hosts
// listed at that point. Cancelling ctx stops the search and ends the program.
func Run(ctx context.Context, searcher Searcher, opts discovery.Options) ([]discovery.Host, error) {
	p := tea.NewProgram(NewAppModel(searcher, opts), tea.WithAltScreen(), tea.WithContext(ctx))
	final, err := p.Run()

	// The program may end without a clean stop (killed context)
	stopErr := searcher.Stop(context.Background())

	if err != nil {
		return nil, fmt.Errorf("wizard error: %w", err)
	}
	if stopErr != nil {
		return nil, stopErr
	}
	app, ok := final.(AppModel)
	if !ok {
		return nil, nil
	}
	return app.Search.Hosts(), nil
}
