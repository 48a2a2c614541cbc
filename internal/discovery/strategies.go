package discovery

import "time"

// SearchOptions selects and tunes the discovery strategies
type SearchOptions struct {
	DNS            bool
	ServiceBrowse  bool
	BroadcastProbe bool
	PingSweep      bool

	// ServiceTypes are browsed by one worker each. Empty means DefaultServiceTypes.
	ServiceTypes []string
	BrowseWindow time.Duration

	Hostnames  []string
	Nameserver string

	BroadcastPort   int
	BroadcastWindow time.Duration
}

// Strategies builds the enabled strategies in a stable order
func (o SearchOptions) Strategies() []Strategy {
	var out []Strategy

	if o.DNS {
		n := NewNameResolver()
		if o.Hostnames != nil {
			n.Hostnames = o.Hostnames
		}
		n.Nameserver = o.Nameserver
		out = append(out, n)
	}

	if o.ServiceBrowse {
		types := o.ServiceTypes
		if len(types) == 0 {
			types = DefaultServiceTypes
		}
		for _, st := range types {
			b := NewServiceBrowser(st)
			if o.BrowseWindow > 0 {
				b.Window = o.BrowseWindow
			}
			out = append(out, b)
		}
	}

	if o.BroadcastProbe {
		p := NewBroadcastProber()
		if o.BroadcastPort > 0 {
			p.Port = o.BroadcastPort
		}
		if o.BroadcastWindow > 0 {
			p.Window = o.BroadcastWindow
		}
		out = append(out, p)
	}

	if o.PingSweep {
		out = append(out, NewPingSweeper())
	}

	return out
}
