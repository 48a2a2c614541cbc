package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/muurk/jeedomfinder/internal/discovery"
	"github.com/muurk/jeedomfinder/internal/logging"
	"github.com/muurk/jeedomfinder/internal/ui"
)

// Searcher is the discovery coordinator as seen by the wizard
type Searcher interface {
	Start(ctx context.Context, opts discovery.Options) (discovery.AggregateState, error)
	Next(ctx context.Context) (discovery.Notification, error)
	Stop(ctx context.Context) error
	Workers() []string
	Results() []discovery.Host
}

// Messages for async operations. Each carries the generation of the search
// it belongs to so replies from a replaced search are dropped.
type searchStartedMsg struct {
	gen     int
	state   discovery.AggregateState
	workers []string
	err     error
}

type notificationMsg struct {
	gen int
	n   discovery.Notification
}

type sessionEndedMsg struct {
	gen int
	err error
}

type searchStoppedMsg struct {
	gen int
	err error
}

// searchKeyMap defines key bindings for the results list
type searchKeyMap struct {
	Up     key.Binding
	Down   key.Binding
	Enter  key.Binding
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k searchKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Enter, k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k searchKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter},
		{k.Rescan, k.Quit},
	}
}

// emptyKeyMap defines key bindings when nothing was found
type emptyKeyMap struct {
	Rescan key.Binding
	Quit   key.Binding
}

// ShortHelp returns keybindings to be shown in the mini help view
func (k emptyKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Rescan, k.Quit}
}

// FullHelp returns keybindings for the expanded help view
func (k emptyKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Rescan, k.Quit}}
}

// hostItem wraps a Host for use with bubbles/list
type hostItem struct {
	host discovery.Host
}

// FilterValue implements list.Item
func (h hostItem) FilterValue() string {
	return h.host.Name + " " + h.host.IP + " " + h.host.URL
}

// Title returns the host name for list display
func (h hostItem) Title() string { return h.host.DisplayName() }

// Description returns the URL for list display
func (h hostItem) Description() string { return h.host.URL }

// hostDelegate renders hosts as cards
type hostDelegate struct {
	width int
}

func (d hostDelegate) Height() int { return 6 } // Card height including borders

func (d hostDelegate) Spacing() int { return 1 }

func (d hostDelegate) Update(msg tea.Msg, m *list.Model) tea.Cmd { return nil }

func (d hostDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	hi, ok := item.(hostItem)
	if !ok {
		return
	}
	h := hi.host
	selected := index == m.Index()

	var content strings.Builder
	if selected {
		content.WriteString(SelectedMenuItemStyle.Render("→ " + h.DisplayName()))
	} else {
		content.WriteString("  " + h.DisplayName())
	}
	content.WriteString("\n")
	content.WriteString(fmt.Sprintf("  URL:      %s\n", h.URL))
	content.WriteString(fmt.Sprintf("  Address:  %s\n", h.IP))
	content.WriteString(fmt.Sprintf("  Found by: %s", h.Origin))

	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(BorderColor).
		Padding(0, 2).
		MarginLeft(2).
		Width(contentWidth(d.width))
	if selected {
		card = card.BorderForeground(HighlightColor)
	}

	_, _ = fmt.Fprint(w, card.Render(content.String()))
}

// workerError is the last error a worker reported
type workerError struct {
	worker, title, message string
}

// SearchModel is the search screen: it runs a discovery session, lists the
// verified hosts as they arrive and shows per-worker progress.
type SearchModel struct {
	searcher Searcher
	options  discovery.Options
	gen      int

	// Search state
	Searching bool
	Stopping  bool
	Completed bool
	Found     bool
	Workers   []string
	Finished  int
	Err       error
	LastError *workerError
	Errors    int

	// Results; index maps a host URL to its list row
	HostList list.Model
	index    map[string]int
	Selected bool

	// Deferred actions after Stop returns
	quitAfterStop   bool
	rescanAfterStop bool

	// UI state
	Width       int
	Height      int
	Spinner     spinner.Model
	ProgressBar progress.Model
	StartTime   time.Time
	Help        help.Model
	Keys        searchKeyMap
	EmptyKeys   emptyKeyMap
}

// NewSearchModel creates a search screen for the given coordinator
func NewSearchModel(searcher Searcher, opts discovery.Options) SearchModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 40

	hostList := list.New([]list.Item{}, hostDelegate{width: MinTerminalWidth}, 0, 0)
	hostList.Title = "Jeedom boxes"
	hostList.SetShowStatusBar(false)
	hostList.SetShowHelp(false)
	hostList.SetFilteringEnabled(true)
	hostList.Styles.Title = TitleStyle

	quit := key.NewBinding(key.WithKeys("q", "esc"), key.WithHelp("q", "quit"))
	rescan := key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan"))

	m := SearchModel{
		searcher:    searcher,
		options:     opts,
		HostList:    hostList,
		index:       make(map[string]int),
		Spinner:     s,
		ProgressBar: bar,
		Help:        help.New(),
		Keys: searchKeyMap{
			Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "move up")),
			Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "move down")),
			Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "details")),
			Rescan: rescan,
			Quit:   quit,
		},
		EmptyKeys: emptyKeyMap{Rescan: rescan, Quit: quit},
	}
	m.beginSearch()
	return m
}

// Init starts the first search
func (m SearchModel) Init() tea.Cmd {
	return tea.Batch(m.startCmd(), m.Spinner.Tick)
}

// beginSearch moves the screen to a fresh generation
func (m *SearchModel) beginSearch() {
	m.gen++
	m.reset()
	m.Searching = true
	m.StartTime = time.Now()
}

// startSearch begins a new generation and launches its session
func (m *SearchModel) startSearch() tea.Cmd {
	m.beginSearch()
	return m.startCmd()
}

// startCmd launches the session of the current generation
func (m SearchModel) startCmd() tea.Cmd {
	gen, searcher, opts := m.gen, m.searcher, m.options
	return func() tea.Msg {
		state, err := searcher.Start(context.Background(), opts)
		return searchStartedMsg{gen: gen, state: state, workers: searcher.Workers(), err: err}
	}
}

// reset clears the results of the previous search
func (m *SearchModel) reset() {
	m.Completed = false
	m.Found = false
	m.Selected = false
	m.Workers = nil
	m.Finished = 0
	m.Err = nil
	m.LastError = nil
	m.Errors = 0
	m.index = make(map[string]int)
	m.HostList.SetItems([]list.Item{})
}

// waitForNotification pulls the next notification of the current search
func (m SearchModel) waitForNotification() tea.Cmd {
	gen, searcher := m.gen, m.searcher
	return func() tea.Msg {
		n, err := searcher.Next(context.Background())
		if err != nil {
			return sessionEndedMsg{gen: gen, err: err}
		}
		return notificationMsg{gen: gen, n: n}
	}
}

// stopSearch cancels the running search
func (m *SearchModel) stopSearch() tea.Cmd {
	m.Stopping = true
	gen, searcher := m.gen, m.searcher
	return func() tea.Msg {
		return searchStoppedMsg{gen: gen, err: searcher.Stop(context.Background())}
	}
}

// RequestQuit stops a running search before quitting
func (m *SearchModel) RequestQuit() tea.Cmd {
	if m.Stopping {
		m.quitAfterStop = true
		return nil
	}
	if !m.Searching {
		return tea.Quit
	}
	m.quitAfterStop = true
	return m.stopSearch()
}

// Update handles messages and updates the model
func (m SearchModel) Update(msg tea.Msg) (SearchModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.updateKeys(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.HostList.SetDelegate(hostDelegate{width: msg.Width})
		m.HostList.SetWidth(msg.Width - 4)
		m.HostList.SetHeight(msg.Height - 14) // Leave room for header, progress and footer
		return m, nil

	case searchStartedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.Workers = msg.workers
		if msg.err != nil {
			m.Searching = false
			m.Err = msg.err
			return m, nil
		}
		if msg.state == discovery.StateIdle {
			m.Searching = false
			m.Completed = true
			m.Err = errors.New("no discovery strategy is available on this machine")
			return m, nil
		}
		return m, m.waitForNotification()

	case notificationMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		cmd := m.apply(msg.n)
		if m.Completed {
			return m, cmd
		}
		return m, tea.Batch(cmd, m.waitForNotification())

	case sessionEndedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		if !errors.Is(msg.err, discovery.ErrNoSession) {
			m.Err = msg.err
		}
		m.Searching = false
		return m, nil

	case searchStoppedMsg:
		if msg.gen != m.gen {
			return m, nil
		}
		m.Stopping = false
		m.Searching = false
		if msg.err != nil {
			logging.Warn("Search did not stop cleanly", zap.Error(msg.err))
		}
		if m.quitAfterStop {
			return m, tea.Quit
		}
		if m.rescanAfterStop {
			m.rescanAfterStop = false
			return m, m.startSearch()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.Spinner, cmd = m.Spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.HostList, cmd = m.HostList.Update(msg)
	return m, cmd
}

// apply folds one notification into the screen
func (m *SearchModel) apply(n discovery.Notification) tea.Cmd {
	switch n.Kind {
	case discovery.NotifyHostAdded:
		row := len(m.HostList.Items())
		m.index[n.Host.URL] = row
		return m.HostList.InsertItem(row, hostItem{host: n.Host})

	case discovery.NotifyHostMerged:
		row, ok := m.index[n.Host.URL]
		if !ok {
			row = len(m.HostList.Items())
			m.index[n.Host.URL] = row
			return m.HostList.InsertItem(row, hostItem{host: n.Host})
		}
		return m.HostList.SetItem(row, hostItem{host: n.Host})

	case discovery.NotifyErrorRaised:
		m.Errors++
		m.LastError = &workerError{worker: n.Worker, title: n.Title, message: n.Message}

	case discovery.NotifyWorkerFinished:
		m.Finished++

	case discovery.NotifySearchCompleted:
		m.Searching = false
		m.Completed = true
		m.Found = n.Found
	}
	return nil
}

// updateKeys handles keyboard input
func (m SearchModel) updateKeys(msg tea.KeyMsg) (SearchModel, tea.Cmd) {
	if m.HostList.FilterState() == list.Filtering {
		var cmd tea.Cmd
		m.HostList, cmd = m.HostList.Update(msg)
		return m, cmd
	}

	switch {
	case key.Matches(msg, m.Keys.Quit):
		return m, m.RequestQuit()

	case key.Matches(msg, m.Keys.Rescan):
		if m.Stopping {
			m.rescanAfterStop = true
			return m, nil
		}
		if m.Searching {
			m.rescanAfterStop = true
			return m, m.stopSearch()
		}
		return m, m.startSearch()

	case key.Matches(msg, m.Keys.Enter):
		if m.HostList.SelectedItem() != nil {
			m.Selected = true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.HostList, cmd = m.HostList.Update(msg)
	return m, cmd
}

// SelectedHost returns the host under the cursor, if any
func (m SearchModel) SelectedHost() *discovery.Host {
	item, ok := m.HostList.SelectedItem().(hostItem)
	if !ok {
		return nil
	}
	h := item.host
	return &h
}

// Hosts returns the hosts listed on screen, in arrival order
func (m SearchModel) Hosts() []discovery.Host {
	items := m.HostList.Items()
	hosts := make([]discovery.Host, 0, len(items))
	for _, it := range items {
		if hi, ok := it.(hostItem); ok {
			hosts = append(hosts, hi.host)
		}
	}
	return hosts
}

// Fraction returns the share of workers that have finished
func (m SearchModel) Fraction() float64 {
	if len(m.Workers) == 0 {
		return 0
	}
	return float64(m.Finished) / float64(len(m.Workers))
}

// View renders the search screen
func (m SearchModel) View() string {
	width := m.Width
	if width == 0 {
		width = MinTerminalWidth
	}

	var b strings.Builder
	if m.Searching {
		b.WriteString(m.renderProgress(width))
		b.WriteString("\n")
	}
	if m.LastError != nil {
		b.WriteString(RenderErrorBanner(m.LastError.worker, m.LastError.title, m.LastError.message))
		b.WriteString("\n")
	}
	b.WriteString(m.renderResults())

	helpText := m.Help.View(m.Keys)
	if len(m.HostList.Items()) == 0 {
		helpText = m.Help.View(m.EmptyKeys)
	}
	return RenderApplicationContainer(b.String(), helpText, m.Width, m.Height)
}

// renderProgress renders the spinner, worker progress and elapsed time
func (m SearchModel) renderProgress(width int) string {
	title := fmt.Sprintf("%s SEARCHING FOR JEEDOM BOXES", m.Spinner.View())
	if m.Stopping {
		title = fmt.Sprintf("%s STOPPING", m.Spinner.View())
	}
	status := fmt.Sprintf("%d/%d strategies finished • %ds", m.Finished, len(m.Workers), int(time.Since(m.StartTime).Seconds()))

	content := lipgloss.JoinVertical(lipgloss.Center,
		"",
		TitleStyle.Render(title),
		m.ProgressBar.ViewAs(m.Fraction()),
		"",
		SubtitleStyle.Render(status),
		"",
	)
	return lipgloss.Place(width-4, 0, lipgloss.Center, lipgloss.Top, content)
}

// renderResults renders the host list, or the empty and error notices
func (m SearchModel) renderResults() string {
	var b strings.Builder
	b.WriteString("\n")

	switch {
	case len(m.HostList.Items()) > 0:
		b.WriteString(m.HostList.View())

	case m.Err != nil:
		b.WriteString(RenderErrorBanner("", "Search failed", m.Err.Error()))
		b.WriteString("\n")

	case m.Completed:
		b.WriteString("  ")
		b.WriteString(WarningStyle.Render("⚠ No Jeedom box found on your network"))
		b.WriteString("\n\n")
		b.WriteString("  Troubleshooting:\n")
		for _, tip := range ui.NotFoundTroubleshooting() {
			b.WriteString("    • " + tip + "\n")
		}
	}

	return b.String()
}
