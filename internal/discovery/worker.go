package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/jeedomfinder/internal/logging"
)

// DefaultQuiescence is the watchdog window: when no probe has been dispatched
// for this long, probes still in flight are timed out.
const DefaultQuiescence = 20 * time.Second

// EventKind identifies a worker event
type EventKind int

const (
	// EventCandidate carries a verified (or self-verifying) host
	EventCandidate EventKind = iota
	// EventError carries a worker-level error for the user
	EventError
	// EventFinished is the terminal event, sent exactly once per worker
	EventFinished
)

// String returns the event kind name
func (k EventKind) String() string {
	switch k {
	case EventCandidate:
		return "candidate"
	case EventError:
		return "error"
	case EventFinished:
		return "finished"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is what a worker reports to the coordinator
type Event struct {
	Worker  string
	Kind    EventKind
	Host    *Host
	Title   string
	Message string
}

// Emitter delivers a worker event. It returns false when the event could not
// be delivered because the receiving session is gone.
type Emitter func(Event) bool

// Reporter is the side of a worker that strategies talk to.
type Reporter interface {
	// Verify submits a raw candidate to the verifier. Only hosts whose front
	// page passes verification are reported.
	Verify(host *Host)

	// Found reports a host the strategy has already verified itself.
	Found(host *Host)

	// Error reports a worker-level problem to the user without stopping the search.
	Error(title, message string)
}

// Strategy is a pluggable way of finding candidate hosts.
type Strategy interface {
	// Name identifies the strategy, e.g. "ping sweep"
	Name() string

	// Available reports whether the strategy's platform preconditions are met
	Available() bool

	// Search runs until the strategy has exhausted its search space or ctx is
	// done, reporting candidates through r.
	Search(ctx context.Context, r Reporter) error
}

// WorkerState is the lifecycle state of a Worker
type WorkerState int

const (
	WorkerIdle WorkerState = iota
	WorkerRunning
	WorkerStopping
	WorkerFinished
)

// String returns the state name
func (s WorkerState) String() string {
	switch s {
	case WorkerIdle:
		return "idle"
	case WorkerRunning:
		return "running"
	case WorkerStopping:
		return "stopping"
	case WorkerFinished:
		return "finished"
	default:
		return fmt.Sprintf("WorkerState(%d)", int(s))
	}
}

// inflight is a dispatched probe that has not yet been settled
type inflight struct {
	Attempt
	host   *Host
	cancel context.CancelFunc
}

// Worker runs one Strategy and drives the verification of its candidates.
//
// The outstanding counter is incremented once per dispatch (redirect hops
// included) and released once per terminal outcome. The worker finishes when
// its strategy has returned and nothing is outstanding; the finished event is
// emitted exactly once, including after Stop.
type Worker struct {
	id         string
	strategy   Strategy
	verifier   *Verifier
	quiescence time.Duration

	stopped atomic.Bool

	mu          sync.Mutex
	state       WorkerState
	outstanding int
	allSent     bool
	finished    bool
	timedOut    int
	inflight    map[uint64]*inflight
	nextID      uint64
	watchdog    *time.Timer
	watchGen    uint64
	ctx         context.Context
	cancel      context.CancelFunc
	emit        Emitter
}

// NewWorker creates a worker for strategy. A zero quiescence uses DefaultQuiescence.
func NewWorker(id string, strategy Strategy, verifier *Verifier, quiescence time.Duration) *Worker {
	if quiescence <= 0 {
		quiescence = DefaultQuiescence
	}
	if id == "" {
		id = strategy.Name()
	}
	return &Worker{
		id:         id,
		strategy:   strategy,
		verifier:   verifier,
		quiescence: quiescence,
		inflight:   make(map[uint64]*inflight),
	}
}

// ID returns the worker identity used in events
func (w *Worker) ID() string { return w.id }

// Available reports whether the underlying strategy can run on this platform
func (w *Worker) Available() bool { return w.strategy.Available() }

// State returns the current lifecycle state
func (w *Worker) State() WorkerState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Outstanding returns the number of unsettled verification dispatches
func (w *Worker) Outstanding() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outstanding
}

// TimedOut returns how many dispatches were timed out by the watchdog
func (w *Worker) TimedOut() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timedOut
}

// Discover runs the strategy and reports events through emit. It blocks until
// the strategy's search returns; verification continues in the background
// and the finished event follows once the last probe has settled. Callers run
// Discover on its own goroutine.
func (w *Worker) Discover(ctx context.Context, emit Emitter) {
	w.mu.Lock()
	if w.state != WorkerIdle {
		w.mu.Unlock()
		return
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.emit = emit
	w.setStateLocked(WorkerRunning)
	stopped := w.stopped.Load()
	if stopped {
		w.setStateLocked(WorkerStopping)
	}
	searchCtx := w.ctx
	w.mu.Unlock()

	if stopped {
		w.cancel()
	} else {
		err := w.strategy.Search(searchCtx, w)
		if err != nil && searchCtx.Err() == nil {
			w.Error(fmt.Sprintf("%s failed", w.id), err.Error())
		}
	}

	w.mu.Lock()
	w.allSent = true
	finishing := w.evaluateLocked()
	w.mu.Unlock()

	if finishing {
		w.emitFinished()
	}
}

// Stop asks the worker to wind down. In-flight probes are cancelled, no
// further candidates are emitted, and the finished event is still sent once
// everything outstanding has settled. Stop never blocks on the network.
//
// A candidate whose send was already blocked when Stop was called is handed
// to the Emitter; the coordinator's emitter refuses it once its stop begins.
func (w *Worker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}

	w.mu.Lock()
	if w.state == WorkerRunning {
		w.setStateLocked(WorkerStopping)
	}
	cancel := w.cancel
	finishing := w.evaluateLocked()
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if finishing {
		w.emitFinished()
	}
}

// Verify implements Reporter
func (w *Worker) Verify(host *Host) {
	h := host.Clone()
	h.Origin = w.id
	target := h.TargetURL()
	if target == "" {
		logging.Debug("Candidate without address dropped", zap.String("worker", w.id), zap.String("name", h.Name))
		return
	}
	if h.URL == "" {
		h.URL = target
	}
	w.dispatch(h, target, 0)
}

// Found implements Reporter
func (w *Worker) Found(host *Host) {
	h := host.Clone()
	h.Origin = w.id
	if h.URL == "" {
		h.URL = h.TargetURL()
	}
	w.emitCandidate(h)
}

// Error implements Reporter
func (w *Worker) Error(title, message string) {
	logging.Error("Worker error",
		zap.String("worker", w.id),
		zap.String("title", title),
		zap.String("message", message),
	)
	w.send(Event{Worker: w.id, Kind: EventError, Title: title, Message: message})
}

// dispatch starts one probe. It returns false when the worker no longer accepts work.
func (w *Worker) dispatch(h *Host, target string, depth int) bool {
	w.mu.Lock()
	if w.stopped.Load() || w.finished || w.ctx == nil {
		w.mu.Unlock()
		return false
	}
	ctx, cancel := context.WithCancel(w.ctx)
	id := w.nextID
	w.nextID++
	a := &inflight{
		Attempt: Attempt{URL: target, Depth: depth, Outcome: OutcomePending},
		host:    h,
		cancel:  cancel,
	}
	w.inflight[id] = a
	w.outstanding++
	w.armWatchdogLocked()
	w.mu.Unlock()

	go w.probe(ctx, id, a)
	return true
}

func (w *Worker) probe(ctx context.Context, id uint64, a *inflight) {
	res := w.verifier.Probe(ctx, a.URL)
	a.cancel()

	if !w.claim(id) {
		// The watchdog already timed this attempt out and released its share
		logging.LogProbe(w.id, a.URL, a.Depth, "late reply ignored", res.Err)
		return
	}
	logging.LogProbe(w.id, a.URL, a.Depth, res.Outcome.String(), res.Err)

	switch res.Outcome {
	case OutcomeVerified:
		w.emitCandidate(a.host)

	case OutcomeRedirected:
		if a.Depth+1 > w.verifier.maxRedirects() {
			logging.LogProbe(w.id, res.Location, a.Depth+1, OutcomeRejected.String(),
				&ProbeError{Kind: ProbeErrRedirectLimit, URL: res.Location})
			break
		}
		next := a.host.Clone()
		next.AppendDescription("redirected to " + res.Location)
		// The follow-up is counted before this dispatch is released so the
		// counter cannot touch zero in the middle of a chain.
		w.dispatch(next, res.Location, a.Depth+1)
	}

	w.settle()
}

// claim takes an attempt out of the in-flight set. It returns false when the
// watchdog got there first.
func (w *Worker) claim(id uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.inflight[id]; !ok {
		return false
	}
	delete(w.inflight, id)
	return true
}

// settle releases one claimed dispatch and re-evaluates completion
func (w *Worker) settle() {
	w.mu.Lock()
	w.outstanding--
	finishing := w.evaluateLocked()
	w.mu.Unlock()

	if finishing {
		w.emitFinished()
	}
}

func (w *Worker) armWatchdogLocked() {
	if w.watchdog != nil {
		w.watchdog.Stop()
	}
	w.watchGen++
	gen := w.watchGen
	w.watchdog = time.AfterFunc(w.quiescence, func() { w.watchdogFired(gen) })
}

// watchdogFired times out every attempt still in flight after a quiet period
func (w *Worker) watchdogFired(gen uint64) {
	w.mu.Lock()
	if gen != w.watchGen || w.finished {
		w.mu.Unlock()
		return
	}
	expired := w.inflight
	w.inflight = make(map[uint64]*inflight)
	for _, a := range expired {
		a.cancel()
		a.Outcome = OutcomeTimedOut
		w.outstanding--
		w.timedOut++
	}
	finishing := w.evaluateLocked()
	w.mu.Unlock()

	for _, a := range expired {
		logging.LogProbe(w.id, a.URL, a.Depth, a.Outcome.String(), nil)
	}
	if finishing {
		w.emitFinished()
	}
}

// evaluateLocked applies the completion rule and reports whether the worker
// has just finished. Must be called with w.mu held.
func (w *Worker) evaluateLocked() bool {
	if w.finished || w.state == WorkerIdle {
		return false
	}
	if !w.allSent || w.outstanding > 0 {
		return false
	}
	w.finished = true
	w.setStateLocked(WorkerFinished)
	if w.watchdog != nil {
		w.watchdog.Stop()
	}
	return true
}

func (w *Worker) setStateLocked(s WorkerState) {
	if s == w.state {
		return
	}
	logging.LogWorkerState(w.id, w.state.String(), s.String())
	w.state = s
}

func (w *Worker) emitCandidate(h *Host) {
	if w.stopped.Load() {
		return
	}
	w.send(Event{Worker: w.id, Kind: EventCandidate, Host: h})
}

func (w *Worker) emitFinished() {
	if w.cancel != nil {
		w.cancel()
	}
	w.send(Event{Worker: w.id, Kind: EventFinished})
}

func (w *Worker) send(ev Event) {
	w.mu.Lock()
	emit := w.emit
	w.mu.Unlock()
	if emit == nil {
		return
	}
	if !emit(ev) {
		logging.Debug("Worker event dropped", zap.String("worker", w.id), zap.Stringer("kind", ev.Kind))
	}
}
