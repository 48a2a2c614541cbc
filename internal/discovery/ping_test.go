package discovery

import (
	"net"
	"testing"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

func echoBytes(t *testing.T, typ icmp.Type, id int) []byte {
	t.Helper()
	msg := icmp.Message{Type: typ, Body: &icmp.Echo{ID: id, Seq: 1, Data: pingPayload}}
	b, err := msg.Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	return b
}

func TestEchoReplyFrom(t *testing.T) {
	peer := &net.IPAddr{IP: net.ParseIP("192.168.1.20")}

	tests := []struct {
		name    string
		msg     []byte
		peer    net.Addr
		matchID bool
		wantOK  bool
	}{
		{"reply on raw socket", echoBytes(t, ipv4.ICMPTypeEchoReply, 42), peer, true, true},
		{"reply for another process", echoBytes(t, ipv4.ICMPTypeEchoReply, 7), peer, true, false},
		{"rewritten id on datagram socket", echoBytes(t, ipv4.ICMPTypeEchoReply, 7), &net.UDPAddr{IP: net.ParseIP("192.168.1.20")}, false, true},
		{"echo request is not a reply", echoBytes(t, ipv4.ICMPTypeEcho, 42), peer, true, false},
		{"garbage", []byte{0x01}, peer, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ip, ok := echoReplyFrom(tt.msg, tt.peer, 42, tt.matchID)
			if ok != tt.wantOK {
				t.Fatalf("echoReplyFrom() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && ip.String() != "192.168.1.20" {
				t.Errorf("ip = %v, want 192.168.1.20", ip)
			}
		})
	}
}

func TestSweepTargets(t *testing.T) {
	ip, n := mustCIDR(t, "192.168.1.20/24")
	s := Subnet{Interface: "eth0", IP: ip.To4(), Net: n}

	targets := sweepTargets([]Subnet{s, s})
	if len(targets) != 253 {
		t.Fatalf("len = %d, want 253 (own address and duplicates skipped)", len(targets))
	}
	for _, target := range targets {
		if target.Equal(ip) {
			t.Fatal("own address must not be swept")
		}
	}
}

func TestNewPingSweeper(t *testing.T) {
	p := NewPingSweeper()
	if p.Wait != DefaultPingWait || p.Interval != DefaultPingInterval {
		t.Errorf("NewPingSweeper() = %+v", p)
	}
	if p.Name() != "ping sweep" {
		t.Errorf("Name() = %v", p.Name())
	}
	// must not panic whatever the privileges of the test process
	_ = p.Available()
}
