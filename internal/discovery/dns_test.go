package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// ptrServer serves PTR records from records (arpa name -> target) on a local UDP port
func ptrServer(t *testing.T, records map[string]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket() error = %v", err)
	}

	handler := dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
		resp := new(dns.Msg)
		resp.SetReply(req)
		q := req.Question[0]
		target, ok := records[q.Name]
		if !ok || q.Qtype != dns.TypePTR {
			resp.SetRcode(req, dns.RcodeNameError)
			_ = w.WriteMsg(resp)
			return
		}
		resp.Answer = append(resp.Answer, &dns.PTR{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypePTR, Class: dns.ClassINET, Ttl: 60},
			Ptr: target,
		})
		_ = w.WriteMsg(resp)
	})

	var started sync.WaitGroup
	started.Add(1)
	server := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: started.Done}
	go func() { _ = server.ActivateAndServe() }()
	started.Wait()
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func TestQueryPTR(t *testing.T) {
	addr := ptrServer(t, map[string]string{
		"5.0.0.10.in-addr.arpa.": "jeedom-box.lan.",
	})
	client := newDNSClient(time.Second)

	name, err := queryPTR(context.Background(), client, addr, net.ParseIP("10.0.0.5"))
	if err != nil {
		t.Fatalf("queryPTR() error = %v", err)
	}
	if name != "jeedom-box.lan" {
		t.Errorf("queryPTR() = %q, want jeedom-box.lan", name)
	}

	name, err = queryPTR(context.Background(), client, addr, net.ParseIP("10.0.0.6"))
	if err != nil {
		t.Fatalf("queryPTR() for missing record error = %v", err)
	}
	if name != "" {
		t.Errorf("queryPTR() = %q, want empty for NXDOMAIN", name)
	}
}

func TestNameResolver_ConcurrentReverseLookups(t *testing.T) {
	records := make(map[string]string)
	for i := 1; i <= 16; i++ {
		records[fmt.Sprintf("%d.0.0.10.in-addr.arpa.", i)] = fmt.Sprintf("host%d.lan.", i)
	}
	addr := ptrServer(t, records)

	resolver := NewNameResolver()
	resolver.Nameserver = addr
	resolver.Timeout = time.Second
	lookup := resolver.reverseFunc()

	var wg sync.WaitGroup
	errs := make(chan error, len(records))
	for i := 1; i <= 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ip := net.IPv4(10, 0, 0, byte(i))
			name, err := lookup(context.Background(), ip)
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("host%d.lan", i); name != want {
				errs <- fmt.Errorf("lookup(%v) = %q, want %q", ip, name, want)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestNameResolver_ReverseSweep(t *testing.T) {
	addr := ptrServer(t, map[string]string{
		"5.0.0.10.in-addr.arpa.": "jeedom-box.lan.",
		"6.0.0.10.in-addr.arpa.": "printer.lan.",
	})

	ip, n := mustCIDR(t, "10.0.0.1/29")
	resolver := NewNameResolver()
	resolver.Hostnames = nil
	resolver.Nameserver = addr
	resolver.Subnets = []Subnet{{Interface: "eth0", IP: ip.To4(), Net: n}}
	resolver.Timeout = 500 * time.Millisecond

	rep := &captureReporter{}
	if err := resolver.Search(context.Background(), rep); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	byIP := make(map[string]*Host)
	for _, h := range rep.Verified() {
		byIP[h.IP] = h
	}
	if len(byIP) != 2 {
		t.Fatalf("verified = %v, want the two named hosts", rep.Verified())
	}
	if h := byIP["10.0.0.5"]; h == nil || h.Name != "jeedom-box.lan" {
		t.Errorf("10.0.0.5 = %+v, want jeedom-box.lan", h)
	}
	if h := byIP["10.0.0.6"]; h == nil || h.Name != "printer.lan" {
		t.Errorf("10.0.0.6 = %+v, want printer.lan", h)
	}
}

func TestNameResolver_ForwardLookup(t *testing.T) {
	resolver := NewNameResolver()
	resolver.Hostnames = []string{"localhost"}
	resolver.ReverseSweep = false

	rep := &captureReporter{}
	if err := resolver.Search(context.Background(), rep); err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	hosts := rep.Verified()
	if len(hosts) != 1 {
		t.Fatalf("verified = %v, want localhost once", hosts)
	}
	if hosts[0].Name != "localhost" || hosts[0].IP != "127.0.0.1" {
		t.Errorf("host = %+v", hosts[0])
	}
}

func TestNameserverAddr(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"192.168.1.1", "192.168.1.1:53"},
		{"192.168.1.1:5353", "192.168.1.1:5353"},
		{"fd00::1", "[fd00::1]:53"},
	}
	for _, tt := range tests {
		if got := nameserverAddr(tt.in); got != tt.want {
			t.Errorf("nameserverAddr(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
