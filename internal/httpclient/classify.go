package httpclient

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransportError wraps a request-level failure (no HTTP response was
// received) with its retry classification.
type TransportError struct {
	Op  string
	Err error

	retriable bool
}

// WrapTransport classifies err and wraps it for the retrier.
func WrapTransport(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err, retriable: transportRecoverable(err)}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether another attempt can possibly succeed.
func (e *TransportError) Recoverable() bool {
	return e.retriable
}

// transportRecoverable classifies connection-level failures.
// Resets, timeouts, and handshake hiccups are worth retrying; a host that does
// not resolve or a certificate that does not verify will not get better.
func transportRecoverable(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}
	var unknownAuthority x509.UnknownAuthorityError
	if errors.As(err, &unknownAuthority) {
		return false
	}
	var hostnameErr x509.HostnameError
	if errors.As(err, &hostnameErr) {
		return false
	}
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return false
	}

	errStr := strings.ToLower(err.Error())
	if strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "certificate") {
		return false
	}

	// Connection resets, timeouts, refused connections, broken pipes and
	// handshake timeouts all recover in practice.
	return true
}
