package discovery

import (
	"net"
	"strings"
	"testing"

	"github.com/grandcat/zeroconf"
)

func serviceEntry(instance, host string, port int, v4, v6 []net.IP, txt ...string) *zeroconf.ServiceEntry {
	entry := zeroconf.NewServiceEntry(instance, "_http._tcp", ServiceDomain)
	entry.HostName = host
	entry.Port = port
	entry.AddrIPv4 = v4
	entry.AddrIPv6 = v6
	entry.Text = txt
	return entry
}

func TestServiceBrowser_parseServiceEntry(t *testing.T) {
	tests := []struct {
		name        string
		serviceType string
		entry       *zeroconf.ServiceEntry
		wantNil     bool
		wantName    string
		wantIP      string
		wantURL     string
	}{
		{
			name:        "plain http on default port",
			serviceType: "_http._tcp",
			entry:       serviceEntry("Jeedom", "jeedom.local.", 80, []net.IP{net.ParseIP("192.168.1.20")}, nil),
			wantName:    "Jeedom",
			wantIP:      "192.168.1.20",
			wantURL:     "http://192.168.1.20/",
		},
		{
			name:        "https service gets https scheme",
			serviceType: "_https._tcp",
			entry:       serviceEntry("Jeedom", "jeedom.local.", 443, []net.IP{net.ParseIP("192.168.1.20")}, nil),
			wantName:    "Jeedom",
			wantIP:      "192.168.1.20",
			wantURL:     "https://192.168.1.20/",
		},
		{
			name:        "custom port and TXT path",
			serviceType: "_http._tcp",
			entry:       serviceEntry("Jeedom", "jeedom.local.", 8080, []net.IP{net.ParseIP("10.0.0.5")}, nil, "path=/jeedom/"),
			wantName:    "Jeedom",
			wantIP:      "10.0.0.5",
			wantURL:     "http://10.0.0.5:8080/jeedom/",
		},
		{
			name:        "instance missing falls back to hostname",
			serviceType: "_http._tcp",
			entry:       serviceEntry("", "box.local.", 80, []net.IP{net.ParseIP("10.0.0.6")}, nil),
			wantName:    "box.local",
			wantIP:      "10.0.0.6",
			wantURL:     "http://10.0.0.6/",
		},
		{
			name:        "IPv4 preferred over IPv6",
			serviceType: "_http._tcp",
			entry: serviceEntry("Jeedom", "jeedom.local.", 80,
				[]net.IP{net.ParseIP("192.168.1.50")}, []net.IP{net.ParseIP("fe80::2")}),
			wantName: "Jeedom",
			wantIP:   "192.168.1.50",
			wantURL:  "http://192.168.1.50/",
		},
		{
			name:        "IPv6 only",
			serviceType: "_http._tcp",
			entry:       serviceEntry("Jeedom", "jeedom.local.", 80, nil, []net.IP{net.ParseIP("fe80::1")}),
			wantName:    "Jeedom",
			wantIP:      "fe80::1",
			wantURL:     "http://[fe80::1]/",
		},
		{
			name:        "no address",
			serviceType: "_http._tcp",
			entry:       serviceEntry("Jeedom", "jeedom.local.", 80, nil, nil),
			wantNil:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			browser := NewServiceBrowser(tt.serviceType)
			host := browser.parseServiceEntry(tt.entry)

			if tt.wantNil {
				if host != nil {
					t.Errorf("parseServiceEntry() = %v, want nil", host)
				}
				return
			}
			if host == nil {
				t.Fatal("parseServiceEntry() = nil, want host")
			}
			if host.Name != tt.wantName {
				t.Errorf("Name = %v, want %v", host.Name, tt.wantName)
			}
			if host.IP != tt.wantIP {
				t.Errorf("IP = %v, want %v", host.IP, tt.wantIP)
			}
			if host.URL != tt.wantURL {
				t.Errorf("URL = %v, want %v", host.URL, tt.wantURL)
			}
			if !strings.Contains(host.Description, tt.serviceType) {
				t.Errorf("Description = %q, want service type", host.Description)
			}
		})
	}
}

func TestParseTXT(t *testing.T) {
	got := parseTXT([]string{"path=/", "srcvers=1D90645", "flag", "version=1.0=beta"})

	expected := map[string]string{
		"path":    "/",
		"srcvers": "1D90645",
		"flag":    "",
		"version": "1.0=beta",
	}
	if len(got) != len(expected) {
		t.Errorf("parseTXT() has %d entries, want %d", len(got), len(expected))
	}
	for key, want := range expected {
		if got[key] != want {
			t.Errorf("parseTXT()[%q] = %q, want %q", key, got[key], want)
		}
	}
}

func TestNewServiceBrowser(t *testing.T) {
	b := NewServiceBrowser("_https._tcp")

	if b.Window != DefaultBrowseWindow {
		t.Errorf("Window = %v, want %v", b.Window, DefaultBrowseWindow)
	}
	if b.Domain != ServiceDomain {
		t.Errorf("Domain = %v, want %v", b.Domain, ServiceDomain)
	}
	if b.Name() != "service browse _https._tcp" {
		t.Errorf("Name() = %v", b.Name())
	}
}
