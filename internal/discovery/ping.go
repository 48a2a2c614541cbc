package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/sourcegraph/conc"
	"go.uber.org/zap"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"github.com/muurk/jeedomfinder/internal/logging"
)

const (
	// DefaultPingWait is how long replies are awaited after the last echo
	DefaultPingWait = 2 * time.Second

	// DefaultPingInterval paces echo requests so a /24 takes about a second
	DefaultPingInterval = 4 * time.Millisecond
)

var pingPayload = []byte("jeedom-finder")

// PingSweeper sends an ICMP echo to every address of each local /24 and turns
// each responder into a candidate.
type PingSweeper struct {
	// Wait is how long replies are collected after the last request
	Wait time.Duration

	// Interval paces consecutive requests
	Interval time.Duration

	// Subnets overrides the local networks to sweep
	Subnets []Subnet
}

// NewPingSweeper creates a sweeper with default pacing
func NewPingSweeper() *PingSweeper {
	return &PingSweeper{Wait: DefaultPingWait, Interval: DefaultPingInterval}
}

// Name implements Strategy
func (p *PingSweeper) Name() string { return "ping sweep" }

// Available reports whether an ICMP socket can be opened, either the
// unprivileged datagram kind or a raw one.
func (p *PingSweeper) Available() bool {
	conn, _, err := listenICMP()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// listenICMP prefers an unprivileged ICMP datagram socket and falls back to a raw one
func listenICMP() (*icmp.PacketConn, string, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, "udp4", nil
	}
	raw, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr != nil {
		return nil, "", fmt.Errorf("failed to open ICMP socket: %w", errors.Join(err, rawErr))
	}
	return raw, "ip4:icmp", nil
}

// Search pings every sweep address and reports the ones that answer
func (p *PingSweeper) Search(ctx context.Context, r Reporter) error {
	subnets := p.Subnets
	if subnets == nil {
		var err error
		if subnets, err = LocalSubnets(); err != nil {
			return err
		}
	}
	targets := sweepTargets(subnets)
	if len(targets) == 0 {
		r.Error("Ping sweep", "No local IPv4 network to sweep")
		return nil
	}

	conn, network, err := listenICMP()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	id := os.Getpid() & 0xffff
	// Unprivileged sockets get their echo ID rewritten by the kernel
	matchID := network != "udp4"

	var wg conc.WaitGroup
	wg.Go(func() {
		seen := make(map[string]bool)
		buf := make([]byte, 1500)
		for {
			n, peer, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			ip, ok := echoReplyFrom(buf[:n], peer, id, matchID)
			if !ok || seen[ip.String()] {
				continue
			}
			seen[ip.String()] = true
			r.Verify(&Host{IP: ip.String(), Description: "answered ping"})
		}
	})

	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPingInterval
	}
	for seq, ip := range targets {
		if ctx.Err() != nil {
			break
		}
		if err := sendEcho(conn, network, ip, id, seq); err != nil {
			logging.Debug("Echo request failed", zap.Stringer("ip", ip), zap.Error(err))
		}
		time.Sleep(interval)
	}

	wait := p.Wait
	if wait <= 0 {
		wait = DefaultPingWait
	}
	if ctx.Err() == nil {
		_ = conn.SetReadDeadline(time.Now().Add(wait))
	}
	wg.Wait()
	return nil
}

// sweepTargets lists the sweep addresses of every subnet, skipping the
// machine's own addresses and duplicates.
func sweepTargets(subnets []Subnet) []net.IP {
	own := make(map[string]bool, len(subnets))
	for _, s := range subnets {
		own[s.IP.String()] = true
	}

	seen := make(map[string]bool)
	var targets []net.IP
	for _, s := range subnets {
		for _, ip := range s.Hosts() {
			key := ip.String()
			if own[key] || seen[key] {
				continue
			}
			seen[key] = true
			targets = append(targets, ip)
		}
	}
	return targets
}

func sendEcho(conn *icmp.PacketConn, network string, ip net.IP, id, seq int) error {
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: id, Seq: seq & 0xffff, Data: pingPayload},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return err
	}

	var dst net.Addr = &net.IPAddr{IP: ip}
	if network == "udp4" {
		dst = &net.UDPAddr{IP: ip}
	}
	_, err = conn.WriteTo(b, dst)
	return err
}

// echoReplyFrom returns the sender of b when b is an echo reply to us
func echoReplyFrom(b []byte, peer net.Addr, id int, matchID bool) (net.IP, bool) {
	msg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), b)
	if err != nil || msg.Type != ipv4.ICMPTypeEchoReply {
		return nil, false
	}
	echo, ok := msg.Body.(*icmp.Echo)
	if !ok || (matchID && echo.ID != id) {
		return nil, false
	}

	switch addr := peer.(type) {
	case *net.UDPAddr:
		return addr.IP, true
	case *net.IPAddr:
		return addr.IP, true
	}
	return nil, false
}
