package discovery

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	// SignatureMarker is the front page marker identifying a Jeedom box.
	// Matched case-insensitively.
	SignatureMarker = "<title>Jeedom</title>"

	// DefaultRequestTimeout bounds a single verification request
	DefaultRequestTimeout = 15 * time.Second

	// DefaultMaxRedirects is the longest redirect chain followed before rejecting
	DefaultMaxRedirects = 10

	// maxBodySize caps how much of a front page is read
	maxBodySize = 1 << 20
)

var signatureMarker = bytes.ToLower([]byte(SignatureMarker))

// Outcome is the terminal state of one verification dispatch
type Outcome int

const (
	// OutcomePending means no verdict has been reached yet
	OutcomePending Outcome = iota
	// OutcomeVerified means the page carries the signature marker
	OutcomeVerified
	// OutcomeRejected means the page lacks the marker or the request failed
	OutcomeRejected
	// OutcomeTimedOut means no verdict was reached in time
	OutcomeTimedOut
	// OutcomeRedirected means the page points elsewhere; Location holds the target
	OutcomeRedirected
)

// String returns the outcome name
func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeVerified:
		return "verified"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTimedOut:
		return "timed out"
	case OutcomeRedirected:
		return "redirected"
	default:
		return "unknown"
	}
}

// ProbeResult is what a single dispatch produced
type ProbeResult struct {
	Outcome    Outcome
	URL        string
	Location   string // resolved redirect target when Outcome is OutcomeRedirected
	StatusCode int
	Err        error // *ProbeError when the request itself failed
}

// Attempt tracks one candidate through the redirect chain
type Attempt struct {
	URL     string
	Depth   int
	Outcome Outcome
}

// Verifier issues the HTTP probe for a URL and applies the signature check
type Verifier struct {
	// HTTPClient is the underlying client. Redirects are never followed by the
	// client itself; the worker re-dispatches them so each hop is counted.
	HTTPClient *http.Client

	// MaxRedirects is the redirect ceiling applied by workers
	MaxRedirects int
}

// NewVerifier creates a verifier with relaxed TLS verification, since the
// targets are LAN appliances that commonly use self-signed certificates.
func NewVerifier() *Verifier {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // LAN appliances use self-signed certs
	transport.MaxIdleConnsPerHost = 1

	return &Verifier{
		HTTPClient: &http.Client{
			Transport:     transport,
			Timeout:       DefaultRequestTimeout,
			CheckRedirect: noRedirects,
		},
		MaxRedirects: DefaultMaxRedirects,
	}
}

func noRedirects(*http.Request, []*http.Request) error {
	return http.ErrUseLastResponse
}

// SetTimeout sets the per-request timeout
func (v *Verifier) SetTimeout(timeout time.Duration) {
	v.HTTPClient.Timeout = timeout
}

// Probe performs one GET against rawURL and classifies the response. It never
// follows redirects; a 3xx with a Location yields OutcomeRedirected with the
// location resolved against rawURL.
func (v *Verifier) Probe(ctx context.Context, rawURL string) ProbeResult {
	result := ProbeResult{Outcome: OutcomeRejected, URL: rawURL}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		result.Err = &ProbeError{Kind: ProbeErrNetwork, URL: rawURL, Err: err}
		return result
	}

	resp, err := v.client().Do(req)
	if err != nil {
		probeErr := ClassifyProbeError(err, rawURL)
		result.Err = probeErr
		if probeErr.Kind == ProbeErrTimeout {
			result.Outcome = OutcomeTimedOut
		}
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode

	if location := resp.Header.Get("Location"); location != "" && isRedirect(resp.StatusCode) {
		resolved, err := ResolveLocation(rawURL, location)
		if err != nil {
			result.Err = &ProbeError{Kind: ProbeErrHTTP, URL: rawURL, StatusCode: resp.StatusCode, Err: err}
			return result
		}
		result.Outcome = OutcomeRedirected
		result.Location = resolved
		return result
	}

	if resp.StatusCode >= http.StatusBadRequest {
		result.Err = &ProbeError{Kind: ProbeErrHTTP, URL: rawURL, StatusCode: resp.StatusCode}
		return result
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		probeErr := ClassifyProbeError(err, rawURL)
		if probeErr.Kind == ProbeErrNetwork {
			probeErr.Kind = ProbeErrRead
		}
		result.Err = probeErr
		if probeErr.Kind == ProbeErrTimeout {
			result.Outcome = OutcomeTimedOut
		}
		return result
	}

	if HasSignature(body) {
		result.Outcome = OutcomeVerified
	}
	return result
}

func (v *Verifier) client() *http.Client {
	if v.HTTPClient != nil {
		return v.HTTPClient
	}
	return http.DefaultClient
}

func (v *Verifier) maxRedirects() int {
	if v.MaxRedirects <= 0 {
		return DefaultMaxRedirects
	}
	return v.MaxRedirects
}

// HasSignature reports whether page contains the Jeedom title marker in any letter case
func HasSignature(page []byte) bool {
	return bytes.Contains(bytes.ToLower(page), signatureMarker)
}

// ResolveLocation resolves a redirect location against the URL of the request
// that produced it. Absolute locations are returned unchanged.
func ResolveLocation(requestURL, location string) (string, error) {
	loc, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if loc.IsAbs() {
		return location, nil
	}
	base, err := url.Parse(requestURL)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(loc).String(), nil
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
