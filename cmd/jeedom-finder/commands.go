package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/jeedomfinder/internal/config"
	"github.com/muurk/jeedomfinder/internal/discovery"
	"github.com/muurk/jeedomfinder/internal/logging"
	"github.com/muurk/jeedomfinder/internal/ui"
	"github.com/muurk/jeedomfinder/internal/wizard/tui"
)

// Scan command flags
var (
	useDNS       bool
	useBrowse    bool
	useBroadcast bool
	usePing      bool
	serviceTypes []string
	scanTimeout  time.Duration
	outputFormat string
	verbose      bool
	forceInit    bool
)

var errInterrupted = errors.New("scan interrupted")

func init() {
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(wizardCmd)
	rootCmd.AddCommand(configCmd)

	// Strategy flags live on root so a bare invocation honours them too
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&useDNS, "dns", true, "Resolve well-known hostnames and sweep PTR records")
	flags.BoolVar(&useBrowse, "browse", true, "Browse mDNS/DNS-SD service advertisements")
	flags.StringSliceVar(&serviceTypes, "service-type", nil, "Service types to browse (default from config: _https._tcp,_http._tcp)")
	flags.BoolVar(&useBroadcast, "broadcast", true, "Send an SSDP broadcast probe")
	flags.BoolVar(&usePing, "ping", false, "Ping sweep the local /24 subnets")

	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Stop the search after this long (0 = wait for every strategy)")
	scanCmd.Flags().StringVar(&outputFormat, "format", "table", "Output format (table, json)")
	scanCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List the errors reported by each strategy")

	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing config file without asking")
	configCmd.AddCommand(configInitCmd, configShowCmd, configPathCmd)
}

// scanCmd runs one search and prints the verified hosts
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Search the network for Jeedom boxes",
	Long: `Search the local network for Jeedom boxes and list them.

Every enabled strategy runs in parallel. Candidates are verified by fetching
their front page; only real Jeedom boxes are listed. The search ends when all
strategies have finished, when --timeout expires, or on Ctrl-C.`,
	Example: `  # Search with the configured strategies
  jeedom-finder scan

  # Add the ping sweep and give up after 30 seconds
  jeedom-finder scan --ping --timeout 30s

  # Only browse for a custom service type
  jeedom-finder scan --dns=false --broadcast=false --service-type _jeedom._tcp

  # JSON output for scripting
  jeedom-finder scan --format json`,
	RunE: runScan,
}

func runScan(cmd *cobra.Command, args []string) error {
	if outputFormat != "table" && outputFormat != "json" {
		return fmt.Errorf("unknown output format %q (expected table or json)", outputFormat)
	}

	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	opts := settings.Options()

	ctx, cancel := scanContext(cmd.Context())
	defer cancel()

	coordinator := discovery.NewCoordinator()
	if _, err := coordinator.Start(context.Background(), opts); err != nil {
		return fmt.Errorf("failed to start search: %w", err)
	}

	if outputFormat == "json" {
		report := collectReport(ctx, coordinator)
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		return scanOutcome(ctx.Err())
	}

	runner := ui.NewScanRunner(ui.ScanRunnerConfig{
		Title:   "Jeedom discovery",
		Command: cmd.CommandPath(),
		Params:  scanParams(opts, settings),
		Verbose: verbose,
		Output:  cmd.OutOrStdout(),
	})
	_, err = runner.Run(ctx, coordinator)
	return scanOutcome(err)
}

// scanContext ends on Ctrl-C, SIGTERM or the --timeout deadline
func scanContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if scanTimeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, scanTimeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

// scanOutcome maps the end of a search to the command's error. Reaching
// --timeout and abandoning stuck workers are normal ends; an interrupt is not.
func scanOutcome(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled):
		return errInterrupted
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, discovery.ErrWorkersAbandoned):
		if errors.Is(err, discovery.ErrWorkersAbandoned) {
			logging.Warn("Search ended with abandoned workers", zap.Error(err))
		}
		return nil
	default:
		return err
	}
}

// scanParams lists the header parameters of a scan
func scanParams(opts discovery.Options, settings *config.Settings) []ui.Param {
	names := make([]string, 0, len(opts.Strategies))
	for _, s := range opts.Strategies {
		names = append(names, s.Name())
	}

	timeout := "until every strategy finishes"
	if scanTimeout > 0 {
		timeout = scanTimeout.String()
	}

	return []ui.Param{
		{Key: "Strategies", Value: strings.Join(names, ", ")},
		{Key: "Timeout", Value: timeout},
		{Key: "Quiescence", Value: settings.Probe.Quiescence.String()},
	}
}

// reportError is one worker error in the JSON report
type reportError struct {
	Worker  string `json:"worker"`
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
}

// scanReport is the JSON output of a scan
type scanReport struct {
	Session  string           `json:"session"`
	Found    bool             `json:"found"`
	Complete bool             `json:"complete"`
	Hosts    []discovery.Host `json:"hosts"`
	Errors   []reportError    `json:"errors,omitempty"`
}

// collectReport follows the session without any terminal output. On ctx
// cancellation the session is stopped and the partial results reported.
func collectReport(ctx context.Context, c *discovery.Coordinator) scanReport {
	report := scanReport{Session: c.SessionID()}

	for !report.Complete {
		n, err := c.Next(ctx)
		if errors.Is(err, discovery.ErrNoSession) {
			report.Complete = true
			break
		}
		if err != nil {
			if stopErr := c.Stop(context.Background()); stopErr != nil {
				logging.Warn("Search did not stop cleanly", zap.Error(stopErr))
			}
			break
		}

		switch n.Kind {
		case discovery.NotifyErrorRaised:
			report.Errors = append(report.Errors, reportError{Worker: n.Worker, Title: n.Title, Message: n.Message})
		case discovery.NotifySearchCompleted:
			report.Complete = true
		}
	}

	report.Hosts = c.Results()
	if report.Hosts == nil {
		report.Hosts = []discovery.Host{}
	}
	report.Found = len(report.Hosts) > 0
	return report
}

// wizardCmd launches the interactive TUI
var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Launch the interactive search",
	Long: `Launch a full-screen search that lists Jeedom boxes as they are verified.

Select a box to see its details, press r to search again and q to quit. The
boxes found are printed again after the wizard exits.`,
	Example: `  # Launch the wizard
  jeedom-finder wizard
  # Or simply (wizard is the default on a terminal):
  jeedom-finder`,
	RunE: runWizard,
}

func runWizard(cmd *cobra.Command, args []string) error {
	settings, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	hosts, err := tui.Run(ctx, discovery.NewCoordinator(), settings.Options())
	if err != nil {
		return err
	}

	if len(hosts) > 0 {
		p := ui.NewPrinter(cmd.OutOrStdout())
		p.PrintSuccess(fmt.Sprintf("%d found", len(hosts)))
		p.PrintHosts(hosts)
	}
	return nil
}

// loadSettings reads the config file and applies the strategy flags the user
// set explicitly.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	var (
		settings *config.Settings
		err      error
	)
	if configPath != "" {
		settings, err = config.LoadSettingsFrom(configPath)
	} else {
		settings, err = config.LoadSettings()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}

	// Work on a copy so the cached settings stay as read from disk
	s := *settings
	s.Search.ServiceTypes = append([]string(nil), settings.Search.ServiceTypes...)
	applyFlags(cmd, &s)

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid settings: %w", err)
	}
	if !s.AnyStrategy() {
		return nil, errors.New("every discovery strategy is disabled")
	}
	return &s, nil
}

// applyFlags overrides settings with the flags set on the command line
func applyFlags(cmd *cobra.Command, s *config.Settings) {
	flags := cmd.Flags()
	if flags.Changed("dns") {
		s.Search.DNS = useDNS
	}
	if flags.Changed("browse") {
		s.Search.ServiceBrowse = useBrowse
	}
	if flags.Changed("service-type") {
		s.Search.ServiceTypes = serviceTypes
		s.Search.ServiceBrowse = true
	}
	if flags.Changed("broadcast") {
		s.Search.BroadcastProbe = useBroadcast
	}
	if flags.Changed("ping") {
		s.Search.PingSweep = usePing
	}
}

// configCmd groups the settings file commands
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the default settings file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}

		overwrite := forceInit
		if _, err := os.Stat(path); err == nil && !overwrite {
			if !ui.IsTerminal() {
				return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
			}
			if !ui.ConfirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
				return nil
			}
			overwrite = true
		}

		if err := config.CreateDefaultConfig(path, overwrite); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
		ui.NewPrinter(cmd.OutOrStdout()).PrintSuccess("Config file written", ui.Param{Key: "Path", Value: path})
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		return writeYAML(cmd.OutOrStdout(), settings)
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolveConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

func resolveConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	path, err := config.GetConfigPath()
	if err != nil {
		return "", fmt.Errorf("failed to get config path: %w", err)
	}
	return path, nil
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to marshal settings: %w", err)
	}
	return enc.Close()
}
