package discovery

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

var (
	// ErrSessionActive is returned by Coordinator.Start while a session is still running
	ErrSessionActive = errors.New("discovery session already active")

	// ErrNoSession is returned by Coordinator.Next when there is nothing left to report
	ErrNoSession = errors.New("no active discovery session")

	// ErrWorkersAbandoned is returned by Coordinator.Stop when some workers did not
	// finish before the stop ceiling elapsed
	ErrWorkersAbandoned = errors.New("discovery workers abandoned after stop timeout")
)

// ProbeErrorKind is the category of a failed verification probe
type ProbeErrorKind int

const (
	// ProbeErrNetwork is a generic transport failure
	ProbeErrNetwork ProbeErrorKind = iota
	// ProbeErrTimeout indicates the request deadline elapsed
	ProbeErrTimeout
	// ProbeErrConnectionRefused indicates nothing listens on the port
	ProbeErrConnectionRefused
	// ProbeErrDNS indicates the URL host could not be resolved
	ProbeErrDNS
	// ProbeErrTLS indicates a TLS handshake failure
	ProbeErrTLS
	// ProbeErrHTTP indicates an error status code
	ProbeErrHTTP
	// ProbeErrRedirectLimit indicates the redirect chain was too long
	ProbeErrRedirectLimit
	// ProbeErrRead indicates the body could not be read
	ProbeErrRead
	// ProbeErrCanceled indicates the probe was cancelled by stop or the watchdog
	ProbeErrCanceled
)

// String returns a human-readable name for the error kind
func (k ProbeErrorKind) String() string {
	switch k {
	case ProbeErrNetwork:
		return "network error"
	case ProbeErrTimeout:
		return "timeout"
	case ProbeErrConnectionRefused:
		return "connection refused"
	case ProbeErrDNS:
		return "dns error"
	case ProbeErrTLS:
		return "tls error"
	case ProbeErrHTTP:
		return "http error"
	case ProbeErrRedirectLimit:
		return "too many redirects"
	case ProbeErrRead:
		return "read error"
	case ProbeErrCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("ProbeErrorKind(%d)", int(k))
	}
}

// ProbeError describes why a verification probe did not reach a verdict
type ProbeError struct {
	Kind       ProbeErrorKind
	URL        string
	StatusCode int
	Err        error
}

// Error implements the error interface
func (e *ProbeError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: %s returned HTTP %d", e.Kind, e.URL, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.URL, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Kind, e.URL)
	}
}

// Unwrap returns the underlying error for error chain inspection
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ClassifyProbeError maps a transport error returned by net/http to a ProbeError
func ClassifyProbeError(err error, rawURL string) *ProbeError {
	if err == nil {
		return nil
	}

	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}

	kind := ProbeErrNetwork

	var dnsErr *net.DNSError
	var certErr *tls.CertificateVerificationError
	var unknownAuth x509.UnknownAuthorityError
	var recordErr tls.RecordHeaderError

	switch {
	case errors.Is(err, context.Canceled):
		kind = ProbeErrCanceled
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		kind = ProbeErrTimeout
	case errors.As(err, &dnsErr):
		kind = ProbeErrDNS
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = ProbeErrConnectionRefused
	case errors.As(err, &certErr), errors.As(err, &unknownAuth), errors.As(err, &recordErr):
		kind = ProbeErrTLS
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if rawURL == "" {
			rawURL = urlErr.URL
		}
		if urlErr.Timeout() {
			kind = ProbeErrTimeout
		}
	}

	return &ProbeError{Kind: kind, URL: rawURL, Err: err}
}

// IsTimeout reports whether err is a probe timeout
func IsTimeout(err error) bool {
	var probeErr *ProbeError
	return errors.As(err, &probeErr) && probeErr.Kind == ProbeErrTimeout
}

// IsRedirectLimit reports whether err was caused by an over-long redirect chain
func IsRedirectLimit(err error) bool {
	var probeErr *ProbeError
	return errors.As(err, &probeErr) && probeErr.Kind == ProbeErrRedirectLimit
}
