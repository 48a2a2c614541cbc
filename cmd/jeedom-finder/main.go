// Jeedom-finder locates Jeedom home-automation boxes on the local network.
//
// Several discovery strategies run side by side (name resolution, mDNS/DNS-SD
// browsing, an SSDP broadcast probe and an optional ping sweep). Every
// candidate is verified by fetching its front page, and the verified boxes
// are listed with the URL to open in a browser.
//
// Usage:
//
//	jeedom-finder [command] [flags]
//
// Running without arguments launches the interactive wizard on a terminal
// and a plain scan otherwise. See 'jeedom-finder --help' for available
// commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/jeedomfinder/internal/logging"
	"github.com/muurk/jeedomfinder/internal/ui"
	"github.com/muurk/jeedomfinder/internal/version"
)

// Global flags
var (
	logLevel   string
	configPath string
)

func main() {
	defer logging.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "jeedom-finder",
	Short: "Find Jeedom boxes on the local network",
	Long: `Find Jeedom home-automation boxes on the local network.

Candidates are gathered by name resolution, mDNS/DNS-SD service browsing,
an SSDP broadcast probe and, optionally, an ICMP ping sweep. Each one is
verified by fetching its front page and looking for the Jeedom title.

If no command is specified, the interactive wizard launches when stdout is a
terminal; otherwise a plain scan runs.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silent unless --log-level or JEEDOM_FINDER_LOG_LEVEL is set
		if err := logging.Initialize(logLevel); err != nil {
			return fmt.Errorf("failed to initialize logging: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if ui.IsTerminal() {
			return runWizard(cmd, args)
		}
		return runScan(cmd, args)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to the config file (default: user config directory)")

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "jeedom-finder %s\n", version.Full())
	},
}
