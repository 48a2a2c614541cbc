package discovery

import (
	"bytes"
	"context"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

// captureReporter records what a strategy reports
type captureReporter struct {
	mu       sync.Mutex
	verified []*Host
	found    []*Host
	errors   []string
}

func (c *captureReporter) Verify(h *Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.verified = append(c.verified, h)
}

func (c *captureReporter) Found(h *Host) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.found = append(c.found, h)
}

func (c *captureReporter) Error(title, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, title+": "+message)
}

func (c *captureReporter) Verified() []*Host {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Host(nil), c.verified...)
}

const ssdpReply = "HTTP/1.1 200 OK\r\n" +
	"CACHE-CONTROL: max-age=1800\r\n" +
	"SERVER: Linux/5.10 UPnP/1.0 Jeedom/4.4\r\n" +
	"ST: upnp:rootdevice\r\n" +
	"\r\n"

// ssdpResponder answers every datagram it receives with reply, twice
func ssdpResponder(t *testing.T, reply string) (*net.UDPConn, <-chan []byte) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	got := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 2048)
		n, addr, err := conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		got <- append([]byte(nil), buf[:n]...)
		for i := 0; i < 2; i++ {
			_, _ = conn.WriteToUDP([]byte(reply), addr)
		}
	}()
	return conn, got
}

func TestBroadcastProber_Search(t *testing.T) {
	responder, received := ssdpResponder(t, ssdpReply)

	p := NewBroadcastProber()
	p.Targets = []string{responder.LocalAddr().String()}
	p.Window = 300 * time.Millisecond

	rep := &captureReporter{}
	if err := p.Search(context.Background(), rep); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	select {
	case payload := <-received:
		if !bytes.HasPrefix(payload, []byte("M-SEARCH * HTTP/1.1")) {
			t.Errorf("payload = %q, want SSDP M-SEARCH", payload)
		}
	default:
		t.Fatal("responder never received the probe")
	}

	hosts := rep.Verified()
	if len(hosts) != 1 {
		t.Fatalf("verified = %d hosts, want 1 (duplicates collapsed)", len(hosts))
	}
	if hosts[0].IP != "127.0.0.1" {
		t.Errorf("IP = %v, want 127.0.0.1", hosts[0].IP)
	}
	if !strings.Contains(hosts[0].Description, "Jeedom/4.4") {
		t.Errorf("Description = %q, want SERVER header", hosts[0].Description)
	}
}

func TestBroadcastProber_StopsOnCancel(t *testing.T) {
	responder, _ := ssdpResponder(t, "not http at all")

	p := NewBroadcastProber()
	p.Targets = []string{responder.LocalAddr().String()}
	p.Window = time.Minute

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	start := time.Now()
	if err := p.Search(ctx, &captureReporter{}); err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Search() returned after %v, want prompt return on cancel", elapsed)
	}
}

func TestBroadcastProber_NoValidTarget(t *testing.T) {
	p := NewBroadcastProber()
	p.Targets = []string{"not an address"}

	if err := p.Search(context.Background(), &captureReporter{}); err == nil {
		t.Error("Search() error = nil, want failure when nothing could be sent")
	}
}

func TestBroadcastProber_DefaultTargets(t *testing.T) {
	p := NewBroadcastProber()
	targets := p.targets()

	if len(targets) < 2 {
		t.Fatalf("targets() = %v, want limited broadcast and SSDP group at least", targets)
	}
	if targets[0] != "255.255.255.255:1900" {
		t.Errorf("targets()[0] = %v, want limited broadcast", targets[0])
	}
	if last := targets[len(targets)-1]; last != "239.255.255.250:1900" {
		t.Errorf("last target = %v, want SSDP group", last)
	}
}

func TestDescribeSSDPReply(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"server and st", ssdpReply, "SSDP Linux/5.10 UPnP/1.0 Jeedom/4.4 (upnp:rootdevice)"},
		{"server only", "HTTP/1.1 200 OK\r\nSERVER: box\r\n\r\n", "SSDP box"},
		{"garbage", "hello", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeSSDPReply([]byte(tt.reply)); got != tt.want {
				t.Errorf("describeSSDPReply() = %q, want %q", got, tt.want)
			}
		})
	}
}
