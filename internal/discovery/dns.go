package discovery

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/miekg/dns"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/muurk/jeedomfinder/internal/logging"
)

const (
	// DefaultLookupTimeout bounds one DNS exchange
	DefaultLookupTimeout = 2 * time.Second

	// DefaultLookupParallelism bounds concurrent PTR queries
	DefaultLookupParallelism = 32

	resolvConf = "/etc/resolv.conf"
)

// DefaultHostnames are resolved by the name resolution strategy
var DefaultHostnames = []string{"jeedom", "jeedom.local"}

// NameResolver finds candidates by name: forward lookups of well-known
// hostnames, then a reverse (PTR) sweep of each local network.
type NameResolver struct {
	// Hostnames are looked up with the system resolver
	Hostnames []string

	// Nameserver answers PTR queries ("ip" or "ip:port"). When empty the
	// first resolv.conf server is used, then the system resolver.
	Nameserver string

	// ReverseSweep enables the PTR sweep
	ReverseSweep bool

	// Timeout bounds one DNS exchange
	Timeout time.Duration

	// Parallelism bounds concurrent PTR queries
	Parallelism int

	// Subnets overrides the local networks to sweep
	Subnets []Subnet

	// Resolver is used for forward lookups and the PTR fallback
	Resolver *net.Resolver
}

// NewNameResolver creates a resolver strategy with default settings
func NewNameResolver() *NameResolver {
	return &NameResolver{
		Hostnames:    DefaultHostnames,
		ReverseSweep: true,
		Timeout:      DefaultLookupTimeout,
		Parallelism:  DefaultLookupParallelism,
	}
}

// Name implements Strategy
func (n *NameResolver) Name() string { return "name resolution" }

// Available implements Strategy. The system resolver is always present.
func (n *NameResolver) Available() bool { return true }

// Search resolves the hostnames, then sweeps PTR records
func (n *NameResolver) Search(ctx context.Context, r Reporter) error {
	var mu sync.Mutex
	seen := make(map[string]bool)
	report := func(name, ip, how string) {
		mu.Lock()
		dup := seen[ip]
		seen[ip] = true
		mu.Unlock()
		if dup {
			return
		}
		r.Verify(&Host{Name: name, IP: ip, Description: how})
	}

	for _, hostname := range n.Hostnames {
		if ctx.Err() != nil {
			return nil
		}
		for _, ip := range n.forward(ctx, hostname) {
			report(hostname, ip, "resolved "+hostname)
		}
	}

	if !n.ReverseSweep {
		return nil
	}

	subnets := n.Subnets
	if subnets == nil {
		var err error
		if subnets, err = LocalSubnets(); err != nil {
			return err
		}
	}
	targets := sweepTargets(subnets)
	if len(targets) == 0 {
		return nil
	}

	lookup := n.reverseFunc()
	parallelism := n.Parallelism
	if parallelism <= 0 {
		parallelism = DefaultLookupParallelism
	}

	p := pool.New().WithMaxGoroutines(parallelism)
	for _, ip := range targets {
		if ctx.Err() != nil {
			break
		}
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			name, err := lookup(ctx, ip)
			if err != nil {
				logging.Debug("PTR lookup failed", zap.Stringer("ip", ip), zap.Error(err))
				return
			}
			if name != "" {
				report(name, ip.String(), "PTR "+name)
			}
		})
	}
	p.Wait()
	return nil
}

func (n *NameResolver) resolver() *net.Resolver {
	if n.Resolver != nil {
		return n.Resolver
	}
	return net.DefaultResolver
}

// forward returns the IPv4 addresses of hostname; lookup failures are logged and skipped
func (n *NameResolver) forward(ctx context.Context, hostname string) []string {
	ctx, cancel := context.WithTimeout(ctx, n.timeout())
	defer cancel()

	addrs, err := n.resolver().LookupIPAddr(ctx, hostname)
	if err != nil {
		logging.Debug("Hostname lookup failed", zap.String("hostname", hostname), zap.Error(err))
		return nil
	}
	var ips []string
	for _, a := range addrs {
		if ip4 := a.IP.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	return ips
}

func (n *NameResolver) timeout() time.Duration {
	if n.Timeout <= 0 {
		return DefaultLookupTimeout
	}
	return n.Timeout
}

type reverseLookup func(ctx context.Context, ip net.IP) (string, error)

// reverseFunc picks the PTR source: an explicit or resolv.conf nameserver
// queried directly, else the system resolver.
func (n *NameResolver) reverseFunc() reverseLookup {
	server := nameserverAddr(n.Nameserver)
	if server == "" {
		if cfg, err := dns.ClientConfigFromFile(resolvConf); err == nil && len(cfg.Servers) > 0 {
			server = net.JoinHostPort(cfg.Servers[0], cfg.Port)
		}
	}
	if server == "" {
		return n.systemPTR
	}

	timeout := n.timeout()
	return func(ctx context.Context, ip net.IP) (string, error) {
		return queryPTR(ctx, newDNSClient(timeout), server, ip)
	}
}

func (n *NameResolver) systemPTR(ctx context.Context, ip net.IP) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout())
	defer cancel()

	names, err := n.resolver().LookupAddr(ctx, ip.String())
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok && dnsErr.IsNotFound {
			return "", nil
		}
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return strings.TrimSuffix(names[0], "."), nil
}

// newDNSClient returns a UDP client for one lookup. ExchangeContext writes
// the client's Dialer, so a client must not be shared between goroutines.
func newDNSClient(timeout time.Duration) *dns.Client {
	return &dns.Client{Net: "udp", Timeout: timeout}
}

// queryPTR asks server for the PTR record of ip. A missing record is not an error.
func queryPTR(ctx context.Context, client *dns.Client, server string, ip net.IP) (string, error) {
	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", err
	}

	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = true

	in, _, err := client.ExchangeContext(ctx, msg, server)
	if err != nil {
		return "", err
	}
	if in.Rcode != dns.RcodeSuccess {
		return "", nil
	}
	for _, rr := range in.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", nil
}

// nameserverAddr adds the DNS port to a bare address
func nameserverAddr(server string) string {
	if server == "" {
		return ""
	}
	if _, _, err := net.SplitHostPort(server); err == nil {
		return server
	}
	return net.JoinHostPort(server, strconv.Itoa(53))
}
