// Package ui provides terminal UI components for the jeedom-finder CLI.
//
// This package uses Lipgloss and the Bubbles progress bar to render styled
// output for the non-interactive commands. Unlike the interactive TUI wizard,
// these components follow a "run once and exit" pattern: they print as the
// scan progresses and never wait for input.
//
// # Architecture
//
//   - Header: Command banner showing operation name and parameters
//   - Progress: Progress bar with one step per discovery worker
//   - Result: Success/failure/warning boxes with details and troubleshooting
//   - RenderHosts: Table of the verified hosts
//   - EventLog: Errors reported by the workers, for verbose mode
//
// These components are orchestrated by the ScanRunner, which manages the
// header, progress and result flow for a discovery session.
//
// # Usage Pattern
//
//	c := discovery.NewCoordinator()
//	if _, err := c.Start(ctx, settings.Options()); err != nil {
//	    return err
//	}
//	runner := ui.NewScanRunner(ui.ScanRunnerConfig{
//	    Title:   "Jeedom discovery",
//	    Command: "jeedom-finder scan",
//	    Verbose: verbose,
//	})
//	hosts, err := runner.Run(ctx, c)
//
// # Logging Integration
//
// This package expects logging to be controlled via the JEEDOM_FINDER_LOG_LEVEL
// environment variable. When unset or empty, zap logging is silent, allowing
// the curated UI output to be displayed cleanly. Set JEEDOM_FINDER_LOG_LEVEL
// to "debug", "info", "warn", or "error" to enable logging output.
package ui
