package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/muurk/jeedomfinder/internal/discovery"
	"github.com/muurk/jeedomfinder/internal/urls"
)

// Session is the part of a discovery coordinator the scan runner drives.
// Start must already have been called.
type Session interface {
	Next(ctx context.Context) (discovery.Notification, error)
	Workers() []string
	Results() []discovery.Host
	Stop(ctx context.Context) error
}

// ScanRunnerConfig holds configuration for a scan
type ScanRunnerConfig struct {
	Title   string    // Command title (e.g., "Jeedom discovery")
	Command string    // Full command (e.g., "jeedom-finder scan")
	Params  []Param   // Parameters to display in header
	Verbose bool      // Whether to show worker errors after the result
	Output  io.Writer // Output writer (default: os.Stdout)
	Width   int       // Render width (default: terminal width)
}

// ScanRunner renders a discovery session as header, live worker progress and
// a result box listing the hosts found.
type ScanRunner struct {
	config    ScanRunnerConfig
	header    *Header
	progress  *Progress
	events    *EventLog
	found     map[string]int
	output    io.Writer
	startTime time.Time
	width     int
}

// NewScanRunner creates a new runner
func NewScanRunner(config ScanRunnerConfig) *ScanRunner {
	if config.Output == nil {
		config.Output = os.Stdout
	}
	width := config.Width
	if width <= 0 {
		width = GetTerminalWidth()
	}

	header := NewHeader(config.Title, config.Command, config.Params...)
	header.SetWidth(width)

	return &ScanRunner{
		config: config,
		header: header,
		events: NewEventLog().SetWidth(width),
		found:  make(map[string]int),
		output: config.Output,
		width:  width,
	}
}

// Run follows the session until it completes and prints the outcome. When
// ctx is cancelled the session is stopped and the hosts verified so far are
// returned with the context error.
func (r *ScanRunner) Run(ctx context.Context, sess Session) ([]discovery.Host, error) {
	r.startTime = time.Now()

	_, _ = fmt.Fprintln(r.output, r.header.Render())
	_, _ = fmt.Fprintln(r.output)

	r.progress = NewProgress("Searching the local network...", sess.Workers())
	r.progress.SetWidth(r.width)
	r.progress.ShowSteps = false
	_, _ = fmt.Fprintln(r.output, r.progress.Render())
	_, _ = fmt.Fprintln(r.output)
	for _, step := range r.progress.Steps {
		r.progress.StartStep(step.Number, "")
	}

	for {
		n, err := sess.Next(ctx)
		if errors.Is(err, discovery.ErrNoSession) {
			break
		}
		if err != nil {
			return r.cancel(sess, err)
		}
		if r.handle(n) {
			break
		}
	}

	hosts := sess.Results()
	r.printOutcome(hosts)
	return hosts, nil
}

// handle prints one notification and reports whether the search completed
func (r *ScanRunner) handle(n discovery.Notification) bool {
	switch n.Kind {
	case discovery.NotifyHostAdded:
		r.found[n.Worker]++
		_, _ = fmt.Fprintln(r.output, RenderFoundLine(n.Host))

	case discovery.NotifyHostMerged:
		r.found[n.Worker]++

	case discovery.NotifyErrorRaised:
		r.events.Add(n.Worker, n.Title, n.Message)

	case discovery.NotifyWorkerFinished:
		num := r.progress.Lookup(n.Worker)
		if num == 0 {
			return false
		}
		r.progress.CompleteStep(num, r.stepNote(n.Worker))
		_, _ = fmt.Fprintln(r.output, r.progress.renderStepLine(r.progress.Steps[num-1]))

	case discovery.NotifySearchCompleted:
		return true
	}
	return false
}

// stepNote summarises what a finished worker produced
func (r *ScanRunner) stepNote(worker string) string {
	found, errs := r.found[worker], r.events.CountFor(worker)
	switch {
	case found > 0 && errs > 0:
		return fmt.Sprintf("%d found, %d errors", found, errs)
	case found > 0:
		return fmt.Sprintf("%d found", found)
	case errs > 0:
		return fmt.Sprintf("%d errors", errs)
	default:
		return "nothing found"
	}
}

// cancel stops the session after an interrupted wait
func (r *ScanRunner) cancel(sess Session, cause error) ([]discovery.Host, error) {
	stopErr := sess.Stop(context.Background())
	hosts := sess.Results()

	result := NewWarningResult("Search cancelled",
		Param{Key: "Found", Value: fmt.Sprintf("%d", len(hosts))},
		Param{Key: "Duration", Value: r.elapsed()},
	)
	if stopErr != nil {
		result.AddDetail("Stop", stopErr.Error())
	}
	if len(hosts) > 0 {
		result.SetBody(RenderHosts(hosts, r.width))
	}
	result.SetWidth(r.width)

	_, _ = fmt.Fprintln(r.output)
	_, _ = fmt.Fprintln(r.output, result.Render())
	r.printEvents()

	return hosts, errors.Join(cause, stopErr)
}

// printOutcome prints the final result box
func (r *ScanRunner) printOutcome(hosts []discovery.Host) {
	_, _ = fmt.Fprintln(r.output)

	var result *Result
	if len(hosts) > 0 {
		noun := "Jeedom box"
		if len(hosts) > 1 {
			noun = "Jeedom boxes"
		}
		result = NewSuccessResult(fmt.Sprintf("%d %s found", len(hosts), noun),
			Param{Key: "Duration", Value: r.elapsed()},
		)
		result.SetBody(RenderHosts(hosts, r.width))
	} else {
		result = NewFailureResult("No Jeedom box found", nil, NotFoundTroubleshooting())
		result.AddDetail("Duration", r.elapsed())
	}
	result.SetWidth(r.width)
	_, _ = fmt.Fprintln(r.output, result.Render())

	r.printEvents()
}

func (r *ScanRunner) printEvents() {
	if !r.config.Verbose || len(r.events.Entries) == 0 {
		return
	}
	_, _ = fmt.Fprintln(r.output)
	_, _ = fmt.Fprintln(r.output, r.events.Render())
}

func (r *ScanRunner) elapsed() string {
	return time.Since(r.startTime).Round(time.Millisecond).String()
}

// NotFoundTroubleshooting returns the tips shown when a search ends empty
func NotFoundTroubleshooting() []string {
	return []string{
		"Check the Jeedom box is powered on and connected to this network",
		"Make sure this computer is not on a guest or isolated Wi-Fi network",
		"Enable the ping sweep: jeedom-finder scan --ping",
		"Run with --verbose to see the errors reported by each strategy",
		"Jeedom setup guide: " + urls.JeedomInstallation,
	}
}
