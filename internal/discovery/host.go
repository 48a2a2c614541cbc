package discovery

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Host is a device found by a discovery strategy. It starts life as an
// unverified candidate and, once its front page passes verification, is handed
// to the Store which keeps the canonical copy.
type Host struct {
	// Name is the device name as reported by the strategy (mDNS instance,
	// PTR record, SSDP server...). May be empty.
	Name string `json:"name"`

	// IP is the address in text form (e.g., "192.168.1.20")
	IP string `json:"ip"`

	// URL is the front page address. Empty until derived by TargetURL.
	URL string `json:"url"`

	// Description is append-only free text, newline separated
	Description string `json:"description,omitempty"`

	// Origin identifies the worker that produced the host
	Origin string `json:"origin"`
}

// String returns a human-readable representation of the host
func (h *Host) String() string {
	name := h.Name
	if name == "" {
		name = h.IP
	}
	return fmt.Sprintf("%s (%s) at %s", name, h.IP, h.TargetURL())
}

// Clone returns an independent copy of the host
func (h *Host) Clone() *Host {
	c := *h
	return &c
}

// DisplayName returns the name, falling back to the IP address
func (h *Host) DisplayName() string {
	if h.Name != "" {
		return h.Name
	}
	return h.IP
}

// TargetURL returns the URL to verify: the explicit URL if set, otherwise the
// plain HTTP root of the host's IP address.
func (h *Host) TargetURL() string {
	if h.URL != "" {
		return h.URL
	}
	if h.IP == "" {
		return ""
	}
	return RootURL("http", h.IP, 0)
}

// AppendDescription adds a line to the description. Empty text is skipped so
// merged descriptions never carry blank lines.
func (h *Host) AppendDescription(text string) {
	if text == "" {
		return
	}
	if h.Description == "" {
		h.Description = text
		return
	}
	h.Description += "\n" + text
}

// RootURL builds "scheme://ip[:port]/". Port 0 or the scheme's default port is
// omitted. IPv6 literals are bracketed.
func RootURL(scheme, ip string, port int) string {
	host := ip
	if strings.Contains(ip, ":") {
		host = "[" + ip + "]"
	}
	if port != 0 && !isDefaultPort(scheme, port) {
		host = net.JoinHostPort(ip, fmt.Sprint(port))
	}
	u := url.URL{Scheme: scheme, Host: host, Path: "/"}
	return u.String()
}

func isDefaultPort(scheme string, port int) bool {
	return (scheme == "http" && port == 80) || (scheme == "https" && port == 443)
}
