package discovery

import "testing"

func TestHost_TargetURL(t *testing.T) {
	tests := []struct {
		name     string
		host     *Host
		expected string
	}{
		{
			name:     "derived from IPv4",
			host:     &Host{IP: "10.0.0.5"},
			expected: "http://10.0.0.5/",
		},
		{
			name:     "explicit URL wins",
			host:     &Host{IP: "10.0.0.5", URL: "https://10.0.0.5:8443/jeedom/"},
			expected: "https://10.0.0.5:8443/jeedom/",
		},
		{
			name:     "IPv6 literal is bracketed",
			host:     &Host{IP: "fe80::1"},
			expected: "http://[fe80::1]/",
		},
		{
			name:     "no address",
			host:     &Host{Name: "ghost"},
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.host.TargetURL(); got != tt.expected {
				t.Errorf("TargetURL() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestRootURL(t *testing.T) {
	tests := []struct {
		scheme   string
		ip       string
		port     int
		expected string
	}{
		{"http", "192.168.1.2", 0, "http://192.168.1.2/"},
		{"http", "192.168.1.2", 80, "http://192.168.1.2/"},
		{"https", "192.168.1.2", 443, "https://192.168.1.2/"},
		{"http", "192.168.1.2", 8080, "http://192.168.1.2:8080/"},
		{"https", "fe80::2", 8443, "https://[fe80::2]:8443/"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := RootURL(tt.scheme, tt.ip, tt.port); got != tt.expected {
				t.Errorf("RootURL(%q, %q, %d) = %v, want %v", tt.scheme, tt.ip, tt.port, got, tt.expected)
			}
		})
	}
}

func TestHost_AppendDescription(t *testing.T) {
	h := &Host{}
	h.AppendDescription("first")
	h.AppendDescription("")
	h.AppendDescription("second")

	if h.Description != "first\nsecond" {
		t.Errorf("Description = %q, want %q", h.Description, "first\nsecond")
	}
}

func TestHost_Clone(t *testing.T) {
	h := &Host{Name: "jeedom", IP: "10.0.0.5", Description: "a"}
	c := h.Clone()
	c.AppendDescription("b")

	if h.Description != "a" {
		t.Errorf("original mutated through clone: %q", h.Description)
	}
	if c.Name != "jeedom" || c.IP != "10.0.0.5" {
		t.Errorf("clone lost fields: %+v", c)
	}
}

func TestHost_DisplayName(t *testing.T) {
	if got := (&Host{IP: "10.0.0.5"}).DisplayName(); got != "10.0.0.5" {
		t.Errorf("DisplayName() = %v, want IP fallback", got)
	}
	if got := (&Host{Name: "box", IP: "10.0.0.5"}).DisplayName(); got != "box" {
		t.Errorf("DisplayName() = %v, want box", got)
	}
}
