package main

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/spf13/cobra"

	"github.com/muurk/jeedomfinder/internal/config"
	"github.com/muurk/jeedomfinder/internal/discovery"
)

func TestScanOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"completed", nil, nil},
		{"timeout", context.DeadlineExceeded, nil},
		{"abandoned workers", errors.Join(context.DeadlineExceeded, discovery.ErrWorkersAbandoned), nil},
		{"interrupted", fmt.Errorf("search: %w", context.Canceled), errInterrupted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := scanOutcome(tt.err); !errors.Is(got, tt.want) && got != tt.want {
				t.Errorf("scanOutcome(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	other := errors.New("boom")
	if got := scanOutcome(other); got != other {
		t.Errorf("scanOutcome(other) = %v, want it returned unchanged", got)
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "scan"}
	cmd.Flags().BoolVar(&useDNS, "dns", true, "")
	cmd.Flags().BoolVar(&useBrowse, "browse", true, "")
	cmd.Flags().StringSliceVar(&serviceTypes, "service-type", nil, "")
	cmd.Flags().BoolVar(&useBroadcast, "broadcast", true, "")
	cmd.Flags().BoolVar(&usePing, "ping", false, "")

	if err := cmd.ParseFlags([]string{"--ping", "--dns=false", "--service-type", "_jeedom._tcp"}); err != nil {
		t.Fatal(err)
	}

	s := config.NewSettings()
	s.Search.ServiceBrowse = false
	applyFlags(cmd, s)

	if !s.Search.PingSweep || s.Search.DNS {
		t.Errorf("ping = %v, dns = %v, want true and false", s.Search.PingSweep, s.Search.DNS)
	}
	if !s.Search.ServiceBrowse || len(s.Search.ServiceTypes) != 1 || s.Search.ServiceTypes[0] != "_jeedom._tcp" {
		t.Errorf("browse = %v, types = %v", s.Search.ServiceBrowse, s.Search.ServiceTypes)
	}
	if !s.Search.BroadcastProbe {
		t.Error("broadcast was not set on the command line and should keep its config value")
	}
}

func TestScanParams(t *testing.T) {
	s := config.NewSettings()
	params := scanParams(s.Options(), s)

	if len(params) != 3 || params[0].Key != "Strategies" {
		t.Fatalf("scanParams() = %+v", params)
	}
	if params[0].Value == "" {
		t.Error("enabled strategies should be listed")
	}
}
