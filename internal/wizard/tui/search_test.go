package tui

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/muurk/jeedomfinder/internal/discovery"
)

// fakeSearcher replays a fixed list of notifications for every session
type fakeSearcher struct {
	mu       sync.Mutex
	workers  []string
	script   []discovery.Notification
	pending  []discovery.Notification
	state    discovery.AggregateState
	startErr error
	starts   int
	stops    int
}

func (f *fakeSearcher) Start(ctx context.Context, opts discovery.Options) (discovery.AggregateState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	f.pending = append([]discovery.Notification(nil), f.script...)
	return f.state, f.startErr
}

func (f *fakeSearcher) Next(ctx context.Context) (discovery.Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return discovery.Notification{}, discovery.ErrNoSession
	}
	n := f.pending[0]
	f.pending = f.pending[1:]
	return n, nil
}

func (f *fakeSearcher) Stop(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.pending = nil
	return nil
}

func (f *fakeSearcher) Workers() []string         { return f.workers }
func (f *fakeSearcher) Results() []discovery.Host { return nil }

// run executes cmd and feeds the resulting messages back into m until no
// command is left. It reports whether tea.Quit was reached.
func run(t *testing.T, m SearchModel, cmd tea.Cmd) (SearchModel, bool) {
	t.Helper()
	queue := []tea.Cmd{cmd}
	quit := false
	for steps := 0; len(queue) > 0; steps++ {
		if steps > 100 {
			t.Fatal("search did not settle")
		}
		c := queue[0]
		queue = queue[1:]
		if c == nil {
			continue
		}
		switch msg := c().(type) {
		case tea.BatchMsg:
			queue = append(queue, msg...)
		case tea.QuitMsg:
			quit = true
		default:
			var next tea.Cmd
			m, next = m.Update(msg)
			queue = append(queue, next)
		}
	}
	return m, quit
}

func runeKey(r string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(r)}
}

func jeedomHost(url, desc string) discovery.Host {
	return discovery.Host{Name: "jeedom", IP: "192.168.1.20", URL: url, Description: desc, Origin: "name resolution"}
}

func TestSearchModel_CollectsHosts(t *testing.T) {
	f := &fakeSearcher{
		workers: []string{"name resolution", "broadcast probe"},
		state:   discovery.StateSearching,
		script: []discovery.Notification{
			{Kind: discovery.NotifyHostAdded, Worker: "name resolution", Host: jeedomHost("http://192.168.1.20/", "A record")},
			{Kind: discovery.NotifyWorkerFinished, Worker: "name resolution"},
			{Kind: discovery.NotifyHostMerged, Worker: "broadcast probe", Host: jeedomHost("http://192.168.1.20/", "A record\nSSDP reply")},
			{Kind: discovery.NotifyWorkerFinished, Worker: "broadcast probe"},
			{Kind: discovery.NotifySearchCompleted, Found: true},
		},
	}

	m := NewSearchModel(f, discovery.Options{})
	m, _ = run(t, m, m.startCmd())

	if m.Searching || !m.Completed || !m.Found {
		t.Errorf("state = searching %v, completed %v, found %v", m.Searching, m.Completed, m.Found)
	}
	if m.Finished != 2 || m.Fraction() != 1 {
		t.Errorf("Finished = %d, Fraction = %v", m.Finished, m.Fraction())
	}

	hosts := m.Hosts()
	if len(hosts) != 1 {
		t.Fatalf("Hosts() = %v, want the merged host once", hosts)
	}
	if !strings.Contains(hosts[0].Description, "SSDP reply") {
		t.Errorf("merged host not updated in place: %q", hosts[0].Description)
	}
}

func TestSearchModel_ErrorBanner(t *testing.T) {
	f := &fakeSearcher{
		workers: []string{"ping sweep"},
		state:   discovery.StateSearching,
		script: []discovery.Notification{
			{Kind: discovery.NotifyErrorRaised, Worker: "ping sweep", Title: "ICMP unavailable", Message: "operation not permitted"},
			{Kind: discovery.NotifyWorkerFinished, Worker: "ping sweep"},
			{Kind: discovery.NotifySearchCompleted},
		},
	}

	m := NewSearchModel(f, discovery.Options{})
	m, _ = run(t, m, m.startCmd())

	if m.Errors != 1 || m.LastError == nil || m.LastError.title != "ICMP unavailable" {
		t.Fatalf("LastError = %+v, Errors = %d", m.LastError, m.Errors)
	}
	m.Width, m.Height = 100, 40
	view := m.View()
	for _, want := range []string{"ICMP unavailable", "No Jeedom box found"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q", want)
		}
	}
}

func TestSearchModel_NoStrategy(t *testing.T) {
	f := &fakeSearcher{state: discovery.StateIdle}

	m := NewSearchModel(f, discovery.Options{})
	m, _ = run(t, m, m.startCmd())

	if m.Searching || m.Err == nil {
		t.Errorf("Searching = %v, Err = %v, want an error and no search", m.Searching, m.Err)
	}
}

func TestSearchModel_StartError(t *testing.T) {
	f := &fakeSearcher{startErr: discovery.ErrSessionActive}

	m := NewSearchModel(f, discovery.Options{})
	m, _ = run(t, m, m.startCmd())

	if !errors.Is(m.Err, discovery.ErrSessionActive) {
		t.Errorf("Err = %v, want ErrSessionActive", m.Err)
	}
}

func TestSearchModel_DropsStaleGeneration(t *testing.T) {
	m := NewSearchModel(&fakeSearcher{}, discovery.Options{})

	m, cmd := m.Update(notificationMsg{gen: m.gen + 1, n: discovery.Notification{
		Kind: discovery.NotifyHostAdded, Host: jeedomHost("http://192.168.1.20/", ""),
	}})
	if cmd != nil || len(m.Hosts()) != 0 {
		t.Error("notification from another generation should be ignored")
	}
}

func TestSearchModel_QuitStopsSearch(t *testing.T) {
	f := &fakeSearcher{workers: []string{"broadcast probe"}, state: discovery.StateSearching}
	m := NewSearchModel(f, discovery.Options{})

	// Session started, nothing received yet
	m, _ = m.Update(searchStartedMsg{gen: m.gen, state: discovery.StateSearching, workers: f.workers})

	m, cmd := m.Update(runeKey("q"))
	if !m.Stopping {
		t.Fatal("quit during a search should stop it first")
	}
	_, quit := run(t, m, cmd)
	if !quit {
		t.Error("quit should follow the stop")
	}
	if f.stops != 1 {
		t.Errorf("Stop() called %d times, want 1", f.stops)
	}
}

func TestSearchModel_QuitWhenIdle(t *testing.T) {
	m := NewSearchModel(&fakeSearcher{}, discovery.Options{})
	m.Searching = false

	_, cmd := m.Update(runeKey("q"))
	if cmd == nil {
		t.Fatal("quit should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("quit without a search should exit immediately")
	}
}

func TestSearchModel_RescanDuringSearch(t *testing.T) {
	f := &fakeSearcher{
		workers: []string{"name resolution"},
		state:   discovery.StateSearching,
		script: []discovery.Notification{
			{Kind: discovery.NotifyWorkerFinished, Worker: "name resolution"},
			{Kind: discovery.NotifySearchCompleted},
		},
	}
	m := NewSearchModel(f, discovery.Options{})
	m, _ = m.Update(searchStartedMsg{gen: m.gen, state: discovery.StateSearching, workers: f.workers})
	firstGen := m.gen

	m, cmd := m.Update(runeKey("r"))
	m, _ = run(t, m, cmd)

	if f.stops != 1 || f.starts != 1 {
		t.Errorf("stops = %d, starts = %d, want 1 and 1", f.stops, f.starts)
	}
	if m.gen != firstGen+1 {
		t.Errorf("gen = %d, want %d", m.gen, firstGen+1)
	}
	if !m.Completed {
		t.Error("rescan should run to completion")
	}
}

func TestAppModel_HostScreen(t *testing.T) {
	f := &fakeSearcher{
		workers: []string{"name resolution"},
		state:   discovery.StateSearching,
		script: []discovery.Notification{
			{Kind: discovery.NotifyHostAdded, Worker: "name resolution", Host: jeedomHost("http://192.168.1.20/", "A record")},
			{Kind: discovery.NotifyWorkerFinished, Worker: "name resolution"},
			{Kind: discovery.NotifySearchCompleted, Found: true},
		},
	}

	app := NewAppModel(f, discovery.Options{})
	var model tea.Model = app
	model, _ = model.Update(tea.WindowSizeMsg{Width: 100, Height: 40})

	app = model.(AppModel)
	app.Search, _ = run(t, app.Search, app.Search.startCmd())
	model = app

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = model.(AppModel)
	if app.CurrentScreen != ScreenHost {
		t.Fatalf("CurrentScreen = %v, want host", app.CurrentScreen)
	}
	if view := app.View(); !strings.Contains(view, "http://192.168.1.20/") {
		t.Errorf("host view missing URL:\n%s", view)
	}

	model, _ = model.Update(tea.KeyMsg{Type: tea.KeyEsc})
	app = model.(AppModel)
	if app.CurrentScreen != ScreenSearch {
		t.Errorf("CurrentScreen = %v, want search after esc", app.CurrentScreen)
	}
}
