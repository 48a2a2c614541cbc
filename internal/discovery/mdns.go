package discovery

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."

	// DefaultBrowseWindow is how long a service type is browsed
	DefaultBrowseWindow = 5 * time.Second
)

// DefaultServiceTypes are browsed when no service types are configured.
// Jeedom boxes advertise their web UI as plain HTTP and, when enabled, HTTPS.
var DefaultServiceTypes = []string{"_https._tcp", "_http._tcp"}

// ServiceBrowser finds candidates advertised over mDNS/DNS-SD for one service type
type ServiceBrowser struct {
	// ServiceType is the DNS-SD service to browse, e.g. "_http._tcp"
	ServiceType string

	// Domain defaults to ServiceDomain
	Domain string

	// Window is how long to listen for answers
	Window time.Duration
}

// NewServiceBrowser creates a browser for serviceType with default settings
func NewServiceBrowser(serviceType string) *ServiceBrowser {
	return &ServiceBrowser{
		ServiceType: serviceType,
		Domain:      ServiceDomain,
		Window:      DefaultBrowseWindow,
	}
}

// Name implements Strategy
func (b *ServiceBrowser) Name() string {
	return "service browse " + b.ServiceType
}

// Available reports whether an up, multicast-capable interface exists
func (b *ServiceBrowser) Available() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp != 0 && iface.Flags&net.FlagMulticast != 0 && iface.Flags&net.FlagLoopback == 0 {
			return true
		}
	}
	return false
}

// Search browses for the service type until the window closes or ctx is done
func (b *ServiceBrowser) Search(ctx context.Context, r Reporter) error {
	window := b.Window
	if window <= 0 {
		window = DefaultBrowseWindow
	}
	domain := b.Domain
	if domain == "" {
		domain = ServiceDomain
	}

	ctx, cancel := context.WithTimeout(ctx, window)
	defer cancel()

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(ctx, b.ServiceType, domain, entries); err != nil {
		return fmt.Errorf("failed to browse for %s services: %w", b.ServiceType, err)
	}

	seen := make(map[string]bool)
	for {
		select {
		case <-ctx.Done():
			return nil
		case entry, ok := <-entries:
			if !ok {
				return nil
			}
			host := b.parseServiceEntry(entry)
			if host == nil || seen[host.URL] {
				continue
			}
			seen[host.URL] = true
			r.Verify(host)
		}
	}
}

// parseServiceEntry converts a zeroconf service entry to a candidate host.
// Returns nil if the entry carries no address.
func (b *ServiceBrowser) parseServiceEntry(entry *zeroconf.ServiceEntry) *Host {
	if entry == nil {
		return nil
	}

	// Prefer IPv4
	var ip string
	for _, addr := range entry.AddrIPv4 {
		ip = addr.String()
		break
	}
	if ip == "" && len(entry.AddrIPv6) > 0 {
		ip = entry.AddrIPv6[0].String()
	}
	if ip == "" {
		return nil
	}

	scheme := "http"
	if strings.HasPrefix(b.ServiceType, "_https.") {
		scheme = "https"
	}

	txt := parseTXT(entry.Text)
	url := RootURL(scheme, ip, entry.Port)
	if path := txt["path"]; path != "" && path != "/" {
		url = strings.TrimSuffix(url, "/") + "/" + strings.TrimPrefix(path, "/")
	}

	name := entry.Instance
	if name == "" {
		name = strings.TrimSuffix(entry.HostName, ".")
	}

	host := &Host{Name: name, IP: ip, URL: url}
	host.AppendDescription(fmt.Sprintf("%s on %s", b.ServiceType, strings.TrimSuffix(entry.HostName, ".")))
	return host
}

// parseTXT splits "key=value" TXT records. Keys without a value map to "".
func parseTXT(records []string) map[string]string {
	out := make(map[string]string, len(records))
	for _, txt := range records {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			out[parts[0]] = parts[1]
		} else {
			out[parts[0]] = ""
		}
	}
	return out
}
