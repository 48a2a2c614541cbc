// Package config provides user configuration management for jeedom-finder.
//
// This package manages a YAML-based configuration file that selects which
// discovery strategies run and tunes verification. The configuration follows
// OS-specific conventions for storage location.
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/jeedom-finder/config.yaml or $HOME/.config/jeedom-finder/config.yaml
//   - macOS: $HOME/.config/jeedom-finder/config.yaml
//   - Windows: %LOCALAPPDATA%\jeedom-finder\config.yaml
//
// # Usage Example
//
//	settings, err := config.LoadSettings()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	settings.Search.PingSweep = true
//	if err := settings.Save(); err != nil {
//	    log.Fatal(err)
//	}
//
// # Thread Safety
//
// The global settings use sync.Once for safe initialization across goroutines.
// File operations are protected by a mutex to ensure atomic writes.
package config
