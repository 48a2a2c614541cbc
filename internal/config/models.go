package config

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/muurk/jeedomfinder/internal/discovery"
)

// CurrentVersion is the settings file schema version
const CurrentVersion = 1

// Settings represents the entire user configuration file.
type Settings struct {
	Version   int       `yaml:"version"`
	Search    Search    `yaml:"search"`
	Probe     Probe     `yaml:"probe"`
	Broadcast Broadcast `yaml:"broadcast"`
	Names     Names     `yaml:"names"`
	Browse    Browse    `yaml:"browse"`
}

// Search selects the discovery strategies
type Search struct {
	DNS            bool     `yaml:"dns"`
	ServiceBrowse  bool     `yaml:"service_browse"`
	ServiceTypes   []string `yaml:"service_types"`
	BroadcastProbe bool     `yaml:"broadcast_probe"`
	PingSweep      bool     `yaml:"ping_sweep"`
}

// Probe tunes verification and shutdown
type Probe struct {
	Quiescence     time.Duration `yaml:"quiescence"`      // Watchdog window per worker
	RequestTimeout time.Duration `yaml:"request_timeout"` // Per-request HTTP timeout
	MaxRedirects   int           `yaml:"max_redirects"`
	StopTimeout    time.Duration `yaml:"stop_timeout"` // Ceiling for draining workers on cancel
}

// Broadcast tunes the broadcast probe
type Broadcast struct {
	Port   int           `yaml:"port"`
	Window time.Duration `yaml:"window"`
}

// Names tunes the name resolution strategy
type Names struct {
	Hostnames  []string `yaml:"hostnames"`
	Nameserver string   `yaml:"nameserver,omitempty"` // Empty means resolv.conf
}

// Browse tunes service browsing
type Browse struct {
	Window time.Duration `yaml:"window"`
}

// NewSettings creates Settings with default values.
func NewSettings() *Settings {
	return &Settings{
		Version: CurrentVersion,
		Search: Search{
			DNS:            true,
			ServiceBrowse:  true,
			ServiceTypes:   append([]string(nil), discovery.DefaultServiceTypes...),
			BroadcastProbe: true,
			PingSweep:      false,
		},
		Probe: Probe{
			Quiescence:     discovery.DefaultQuiescence,
			RequestTimeout: discovery.DefaultRequestTimeout,
			MaxRedirects:   discovery.DefaultMaxRedirects,
			StopTimeout:    discovery.DefaultStopTimeout,
		},
		Broadcast: Broadcast{
			Port:   discovery.DefaultBroadcastPort,
			Window: discovery.DefaultBroadcastWindow,
		},
		Names: Names{
			Hostnames: append([]string(nil), discovery.DefaultHostnames...),
		},
		Browse: Browse{
			Window: discovery.DefaultBrowseWindow,
		},
	}
}

// Validate checks the settings for values the search cannot run with.
func (s *Settings) Validate() error {
	var errs []error

	if s.Version != CurrentVersion {
		errs = append(errs, fmt.Errorf("unsupported config version: %d (expected %d)", s.Version, CurrentVersion))
	}

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"probe.quiescence", s.Probe.Quiescence},
		{"probe.request_timeout", s.Probe.RequestTimeout},
		{"probe.stop_timeout", s.Probe.StopTimeout},
		{"broadcast.window", s.Broadcast.Window},
		{"browse.window", s.Browse.Window},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative (got %v)", d.name, d.value))
		}
	}

	if s.Probe.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("probe.max_redirects must not be negative (got %d)", s.Probe.MaxRedirects))
	}
	if s.Broadcast.Port < 0 || s.Broadcast.Port > 65535 {
		errs = append(errs, fmt.Errorf("broadcast.port out of range: %d", s.Broadcast.Port))
	}
	if s.Search.ServiceBrowse && len(s.Search.ServiceTypes) == 0 {
		errs = append(errs, errors.New("search.service_types is empty but service browsing is enabled"))
	}
	if ns := s.Names.Nameserver; ns != "" {
		host := ns
		if h, _, err := net.SplitHostPort(ns); err == nil {
			host = h
		}
		if net.ParseIP(host) == nil {
			errs = append(errs, fmt.Errorf("names.nameserver is not an IP address: %q", ns))
		}
	}

	return errors.Join(errs...)
}

// SearchOptions converts the settings into discovery strategy options.
func (s *Settings) SearchOptions() discovery.SearchOptions {
	return discovery.SearchOptions{
		DNS:             s.Search.DNS,
		ServiceBrowse:   s.Search.ServiceBrowse,
		BroadcastProbe:  s.Search.BroadcastProbe,
		PingSweep:       s.Search.PingSweep,
		ServiceTypes:    s.Search.ServiceTypes,
		BrowseWindow:    s.Browse.Window,
		Hostnames:       s.Names.Hostnames,
		Nameserver:      s.Names.Nameserver,
		BroadcastPort:   s.Broadcast.Port,
		BroadcastWindow: s.Broadcast.Window,
	}
}

// Options builds the options of a discovery session.
func (s *Settings) Options() discovery.Options {
	return discovery.Options{
		Strategies:     s.SearchOptions().Strategies(),
		RequestTimeout: s.Probe.RequestTimeout,
		MaxRedirects:   s.Probe.MaxRedirects,
		Quiescence:     s.Probe.Quiescence,
		StopTimeout:    s.Probe.StopTimeout,
	}
}

// AnyStrategy reports whether at least one strategy is enabled.
func (s *Settings) AnyStrategy() bool {
	return s.Search.DNS || s.Search.ServiceBrowse || s.Search.BroadcastProbe || s.Search.PingSweep
}
