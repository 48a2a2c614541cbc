package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/zap"

	"github.com/muurk/jeedomfinder/internal/logging"
)

const (
	// DefaultStopTimeout is how long Stop waits for workers before abandoning them
	DefaultStopTimeout = 5 * time.Second

	// livenessInterval is how often Stop logs the workers it is still waiting for
	livenessInterval = 500 * time.Millisecond

	eventBuffer = 256
)

// AggregateState is the coordinator's view of the whole search
type AggregateState int

const (
	// StateIdle means no search is running and none produced a verdict
	StateIdle AggregateState = iota
	// StateSearching means at least one worker is active
	StateSearching
	// StateStopping means Stop is draining the workers
	StateStopping
	// StateNoHostsFound means every worker finished and nothing was verified
	StateNoHostsFound
	// StateResultsReady means every worker finished with at least one result
	StateResultsReady
)

// String returns the state name
func (s AggregateState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSearching:
		return "searching"
	case StateStopping:
		return "stopping"
	case StateNoHostsFound:
		return "no hosts found"
	case StateResultsReady:
		return "results ready"
	default:
		return fmt.Sprintf("AggregateState(%d)", int(s))
	}
}

// NotificationKind identifies what a Notification reports
type NotificationKind int

const (
	NotifyHostAdded NotificationKind = iota
	NotifyHostMerged
	NotifyErrorRaised
	NotifyWorkerFinished
	NotifySearchCompleted
)

// String returns the notification kind name
func (k NotificationKind) String() string {
	switch k {
	case NotifyHostAdded:
		return "host added"
	case NotifyHostMerged:
		return "host merged"
	case NotifyErrorRaised:
		return "error"
	case NotifyWorkerFinished:
		return "worker finished"
	case NotifySearchCompleted:
		return "search completed"
	default:
		return fmt.Sprintf("NotificationKind(%d)", int(k))
	}
}

// Notification is what the presentation layer receives from Next
type Notification struct {
	Kind NotificationKind

	// Worker is the worker the notification originates from (empty for SearchCompleted)
	Worker string

	// Host is the stored entry after an add or merge
	Host Host

	// Title and Message carry a worker error
	Title   string
	Message string

	// Found is set on SearchCompleted when the store holds at least one host
	Found bool
}

// Options configures one discovery session
type Options struct {
	// Strategies are the enabled strategies. Unavailable ones are skipped.
	Strategies []Strategy

	// Verifier is shared by all workers. When nil one is built from
	// RequestTimeout and MaxRedirects.
	Verifier       *Verifier
	RequestTimeout time.Duration
	MaxRedirects   int

	// Quiescence is the per-worker watchdog window
	Quiescence time.Duration

	// StopTimeout bounds how long Stop waits for workers
	StopTimeout time.Duration
}

func (o Options) verifier() *Verifier {
	if o.Verifier != nil {
		return o.Verifier
	}
	v := NewVerifier()
	if o.RequestTimeout > 0 {
		v.SetTimeout(o.RequestTimeout)
	}
	if o.MaxRedirects > 0 {
		v.MaxRedirects = o.MaxRedirects
	}
	return v
}

// session is one Start..completion cycle
type session struct {
	id          string
	events      chan Event
	halt        chan struct{} // closed when Stop begins
	abandon     chan struct{}
	done        chan struct{}
	cancel      context.CancelFunc
	stopTimeout time.Duration

	// guarded by Coordinator.mu
	active    map[string]*Worker
	order     []string
	launched  int
	finished  int
	stopping  bool
	completed bool
}

// emit is the Emitter handed to workers. Sends never block once the session
// has abandoned its workers, and candidates are refused once Stop has begun,
// including a send that was already blocked when Stop was called.
func (s *session) emit(ev Event) bool {
	if ev.Kind == EventCandidate {
		select {
		case <-s.halt:
			return false
		default:
		}
		select {
		case s.events <- ev:
			return true
		case <-s.halt:
			return false
		case <-s.abandon:
			return false
		}
	}

	select {
	case s.events <- ev:
		return true
	case <-s.abandon:
		return false
	}
}

// Coordinator owns the workers of a discovery session, feeds their results
// into the Store and reports progress to the presentation layer through Next.
type Coordinator struct {
	store *Store

	mu      sync.Mutex
	session *session
	state   AggregateState
}

// NewCoordinator creates an idle coordinator
func NewCoordinator() *Coordinator {
	return &Coordinator{store: NewStore()}
}

// Start launches one worker per available strategy. It returns StateSearching
// when at least one worker was launched and StateIdle otherwise.
func (c *Coordinator) Start(ctx context.Context, opts Options) (AggregateState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && !c.session.completed {
		return c.state, ErrSessionActive
	}

	c.store.Clear()

	sessCtx, cancel := context.WithCancel(ctx)
	sess := &session{
		id:          uuid.New().String(),
		events:      make(chan Event, eventBuffer),
		halt:        make(chan struct{}),
		abandon:     make(chan struct{}),
		done:        make(chan struct{}),
		cancel:      cancel,
		stopTimeout: opts.StopTimeout,
		active:      make(map[string]*Worker),
	}
	if sess.stopTimeout <= 0 {
		sess.stopTimeout = DefaultStopTimeout
	}
	c.session = sess

	verifier := opts.verifier()
	var workers []*Worker
	for _, strategy := range opts.Strategies {
		if !strategy.Available() {
			logging.Warn("Discovery strategy unavailable on this platform",
				zap.String("session", sess.id),
				zap.String("strategy", strategy.Name()),
			)
			continue
		}
		id := strategy.Name()
		for n := 2; sess.active[id] != nil; n++ {
			id = fmt.Sprintf("%s #%d", strategy.Name(), n)
		}
		w := NewWorker(id, strategy, verifier, opts.Quiescence)
		sess.active[id] = w
		sess.order = append(sess.order, id)
		workers = append(workers, w)
	}
	sess.launched = len(workers)

	if len(workers) == 0 {
		c.state = StateIdle
		c.completeLocked(sess)
		logging.LogSession(sess.id, "No strategy selected")
		return c.state, nil
	}

	c.state = StateSearching
	logging.LogSession(sess.id, "Search started", zap.Int("workers", len(workers)))

	for _, w := range workers {
		go c.run(sessCtx, sess, w)
	}
	return c.state, nil
}

// run drives one worker and turns a panic into an error plus a finished event
func (c *Coordinator) run(ctx context.Context, sess *session, w *Worker) {
	var pc panics.Catcher
	pc.Try(func() { w.Discover(ctx, sess.emit) })

	r := pc.Recovered()
	if r == nil {
		return
	}
	logging.Error("Discovery worker panicked",
		zap.String("session", sess.id),
		zap.String("worker", w.ID()),
		zap.Any("panic", r.Value),
		zap.ByteString("stack", r.Stack),
	)
	w.Stop()
	sess.emit(Event{
		Worker:  w.ID(),
		Kind:    EventError,
		Title:   fmt.Sprintf("%s crashed", w.ID()),
		Message: fmt.Sprint(r.Value),
	})
	sess.emit(Event{Worker: w.ID(), Kind: EventFinished})
}

// Next blocks until the session produces a notification. It returns
// ErrNoSession once the session has completed or been stopped.
func (c *Coordinator) Next(ctx context.Context) (Notification, error) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return Notification{}, ErrNoSession
	}

	for {
		select {
		case <-ctx.Done():
			return Notification{}, ctx.Err()
		case <-sess.done:
			return Notification{}, ErrNoSession
		case ev := <-sess.events:
			if n, ok := c.apply(sess, ev); ok {
				return n, nil
			}
		}
	}
}

// apply folds one worker event into the coordinator state and returns the
// notification to surface, if any.
func (c *Coordinator) apply(sess *session, ev Event) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess != c.session || sess.completed {
		return Notification{}, false
	}

	switch ev.Kind {
	case EventCandidate:
		if sess.stopping {
			logging.Debug("Candidate discarded while stopping", zap.String("worker", ev.Worker))
			return Notification{}, false
		}
		change, host := c.store.Insert(ev.Host)
		switch change {
		case ChangeAdded:
			logging.LogSession(sess.id, "Host added", zap.String("url", host.URL), zap.String("worker", ev.Worker))
			return Notification{Kind: NotifyHostAdded, Worker: ev.Worker, Host: host}, true
		case ChangeMerged:
			logging.LogSession(sess.id, "Host merged", zap.String("url", host.URL), zap.String("worker", ev.Worker))
			return Notification{Kind: NotifyHostMerged, Worker: ev.Worker, Host: host}, true
		}
		return Notification{}, false

	case EventError:
		return Notification{Kind: NotifyErrorRaised, Worker: ev.Worker, Title: ev.Title, Message: ev.Message}, true

	case EventFinished:
		if _, ok := sess.active[ev.Worker]; !ok {
			logging.Debug("Finished event from unknown worker ignored", zap.String("worker", ev.Worker))
			return Notification{}, false
		}
		delete(sess.active, ev.Worker)
		sess.finished++
		logging.LogSession(sess.id, "Worker finished",
			zap.String("worker", ev.Worker),
			zap.Int("remaining", len(sess.active)),
		)
		if len(sess.active) > 0 {
			return Notification{Kind: NotifyWorkerFinished, Worker: ev.Worker}, true
		}
		c.completeLocked(sess)
		logging.LogSession(sess.id, "Search completed",
			zap.Stringer("state", c.state),
			zap.Int("hosts", c.store.Len()),
		)
		return Notification{Kind: NotifySearchCompleted, Found: c.store.Len() > 0}, true
	}
	return Notification{}, false
}

// completeLocked ends the session. Must be called with c.mu held.
func (c *Coordinator) completeLocked(sess *session) {
	if sess.completed {
		return
	}
	sess.completed = true
	close(sess.done)
	sess.cancel()
	if sess.launched == 0 {
		return
	}
	if c.store.Len() > 0 {
		c.state = StateResultsReady
	} else {
		c.state = StateNoHostsFound
	}
}

// Stop cancels every active worker and waits for their finished events. After
// the session's stop timeout, or when ctx is done, workers that are still
// running are abandoned and ErrWorkersAbandoned is returned.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	if sess == nil || sess.completed {
		c.mu.Unlock()
		return nil
	}
	if !sess.stopping {
		sess.stopping = true
		close(sess.halt)
		c.state = StateStopping
		logging.LogSession(sess.id, "Stopping search", zap.Int("active", len(sess.active)))
	}
	workers := make([]*Worker, 0, len(sess.active))
	for _, w := range sess.active {
		workers = append(workers, w)
	}
	c.mu.Unlock()

	for _, w := range workers {
		w.Stop()
	}

	deadline := time.NewTimer(sess.stopTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(livenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.done:
			return nil
		case ev := <-sess.events:
			c.apply(sess, ev)
		case <-ticker.C:
			logging.Debug("Waiting for workers to finish",
				zap.String("session", sess.id),
				zap.Strings("workers", c.pending(sess)),
			)
		case <-deadline.C:
			return c.abandon(sess)
		case <-ctx.Done():
			return c.abandon(sess)
		}
	}
}

// abandon gives up on the workers that are still active
func (c *Coordinator) abandon(sess *session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if sess.completed {
		return nil
	}
	names := activeNames(sess)
	sess.active = make(map[string]*Worker)
	close(sess.abandon)
	c.completeLocked(sess)

	logging.Warn("Abandoning discovery workers that did not finish",
		zap.String("session", sess.id),
		zap.Strings("workers", names),
		zap.Duration("stop_timeout", sess.stopTimeout),
	)
	return fmt.Errorf("%w: %s", ErrWorkersAbandoned, strings.Join(names, ", "))
}

func (c *Coordinator) pending(sess *session) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return activeNames(sess)
}

func activeNames(sess *session) []string {
	names := make([]string, 0, len(sess.active))
	for id := range sess.active {
		names = append(names, id)
	}
	sort.Strings(names)
	return names
}

// IsComplete reports whether no worker is active and at least one host was found
func (c *Coordinator) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil && len(c.session.active) > 0 {
		return false
	}
	return c.store.Len() > 0
}

// State returns the aggregate search state
func (c *Coordinator) State() AggregateState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results returns a snapshot of the verified hosts
func (c *Coordinator) Results() []Host {
	return c.store.Values()
}

// Progress returns how many workers were launched and how many have finished
func (c *Coordinator) Progress() (launched, finished int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return 0, 0
	}
	return c.session.launched, c.session.finished
}

// Workers returns the IDs of the workers launched by the current or last
// session, in launch order.
func (c *Coordinator) Workers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return nil
	}
	return append([]string(nil), c.session.order...)
}

// SessionID returns the identifier of the current or last session
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return ""
	}
	return c.session.id
}
