// Package logging provides structured logging for jeedom-finder.
//
// This package wraps a zap logger with convenience functions for the logging
// patterns used by the discovery engine and the CLI.
//
// # Log Levels
//
//   - Debug: probe outcomes, worker state transitions
//   - Info: session start/stop, strategies launched
//   - Warn: non-fatal anomalies (unavailable strategies, abandoned workers)
//   - Error: worker failures
//
// # Configuration
//
// Logging is silent unless a level is passed to Initialize or the
// JEEDOM_FINDER_LOG_LEVEL environment variable is set. This keeps the curated
// CLI and TUI output clean by default:
//
//	if err := logging.Initialize(levelFlag); err != nil {
//	    log.Fatal(err)
//	}
//	defer logging.Sync()
//
// Logs go to stderr so that `jeedom-finder scan --format json` stays parseable.
//
// # Thread Safety
//
// All logging functions are safe for concurrent use.
package logging
