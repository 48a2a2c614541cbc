package discovery

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/jeedomfinder/internal/logging"
)

const (
	// DefaultBroadcastPort is the SSDP port
	DefaultBroadcastPort = 1900

	// DefaultBroadcastWindow is how long replies are collected
	DefaultBroadcastWindow = 3 * time.Second

	ssdpGroup = "239.255.255.250"
)

// ssdpSearch is the probe datagram: an SSDP discovery for every device type
var ssdpSearch = []byte("M-SEARCH * HTTP/1.1\r\n" +
	"HOST: 239.255.255.250:1900\r\n" +
	"MAN: \"ssdp:discover\"\r\n" +
	"MX: 2\r\n" +
	"ST: ssdp:all\r\n" +
	"\r\n")

// BroadcastProber sends one datagram to the broadcast addresses of every local
// network and turns each distinct responder into a candidate.
type BroadcastProber struct {
	// Port the datagram is sent to
	Port int

	// Window is how long to collect replies
	Window time.Duration

	// Payload defaults to an SSDP M-SEARCH
	Payload []byte

	// Targets overrides the computed destinations ("host:port")
	Targets []string
}

// NewBroadcastProber creates a prober with SSDP defaults
func NewBroadcastProber() *BroadcastProber {
	return &BroadcastProber{
		Port:   DefaultBroadcastPort,
		Window: DefaultBroadcastWindow,
	}
}

// Name implements Strategy
func (p *BroadcastProber) Name() string { return "broadcast probe" }

// Available implements Strategy. UDP broadcast needs no special privilege.
func (p *BroadcastProber) Available() bool { return true }

// Search sends the probe and reports responders until the window closes
func (p *BroadcastProber) Search(ctx context.Context, r Reporter) error {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		return fmt.Errorf("failed to open broadcast socket: %w", err)
	}
	defer func() { _ = conn.Close() }()

	window := p.Window
	if window <= 0 {
		window = DefaultBroadcastWindow
	}
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		return fmt.Errorf("failed to set read deadline: %w", err)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	payload := p.Payload
	if len(payload) == 0 {
		payload = ssdpSearch
	}

	sent := 0
	for _, target := range p.targets() {
		addr, err := net.ResolveUDPAddr("udp4", target)
		if err != nil {
			logging.Debug("Invalid broadcast target", zap.String("target", target), zap.Error(err))
			continue
		}
		if _, err := conn.WriteToUDP(payload, addr); err != nil {
			logging.Debug("Broadcast send failed", zap.String("target", target), zap.Error(err))
			continue
		}
		sent++
	}
	if sent == 0 {
		return errors.New("the probe could not be sent to any broadcast address")
	}

	seen := make(map[string]bool)
	buf := make([]byte, 4096)
	for {
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, os.ErrDeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("failed to read broadcast replies: %w", err)
		}

		ip := addr.IP.String()
		if seen[ip] {
			continue
		}
		seen[ip] = true

		host := &Host{IP: ip}
		host.AppendDescription(describeSSDPReply(buf[:n]))
		r.Verify(host)
	}
}

// targets returns the limited broadcast, each local directed broadcast and the
// SSDP multicast group, all on the configured port.
func (p *BroadcastProber) targets() []string {
	if len(p.Targets) > 0 {
		return p.Targets
	}
	port := p.Port
	if port <= 0 {
		port = DefaultBroadcastPort
	}
	ps := strconv.Itoa(port)

	targets := []string{net.JoinHostPort(net.IPv4bcast.String(), ps)}
	subnets, err := LocalSubnets()
	if err != nil {
		logging.Debug("Directed broadcasts skipped", zap.Error(err))
	}
	for _, s := range subnets {
		targets = append(targets, net.JoinHostPort(s.Broadcast().String(), ps))
	}
	return append(targets, net.JoinHostPort(ssdpGroup, ps))
}

// describeSSDPReply summarises the SERVER and ST headers of an SSDP reply.
// Returns "" when the reply is not HTTP shaped.
func describeSSDPReply(reply []byte) string {
	resp, err := http.ReadResponse(bufio.NewReader(bytes.NewReader(reply)), nil)
	if err != nil {
		return ""
	}
	defer func() { _ = resp.Body.Close() }()

	server := resp.Header.Get("Server")
	st := resp.Header.Get("St")
	switch {
	case server != "" && st != "":
		return fmt.Sprintf("SSDP %s (%s)", server, st)
	case server != "":
		return "SSDP " + server
	case st != "":
		return "SSDP " + st
	}
	return ""
}
