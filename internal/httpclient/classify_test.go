package httpclient

import (
	"errors"
	"net"
	"syscall"
	"testing"
)

// TestTransportRecoverable verifies the connection-failure classification:
// resets and timeouts retry, resolution and trust failures do not.
func TestTransportRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"connection reset", syscall.ECONNRESET, true},
		{"connection refused", syscall.ECONNREFUSED, true},
		{"broken pipe", syscall.EPIPE, true},
		{"generic timeout", errors.New("net/http: TLS handshake timeout"), true},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "broker.invalid"}, false},
		{"no such host text", errors.New("dial tcp: lookup broker.invalid: no such host"), false},
		{"certificate text", errors.New("x509: certificate signed by unknown authority"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := WrapTransport("PUT https://s3/key", tt.err)
			if e.Recoverable() != tt.want {
				t.Errorf("Recoverable() = %v, want %v for %v", e.Recoverable(), tt.want, tt.err)
			}
		})
	}
}

// TestTransportErrorUnwraps verifies the cause stays reachable for errors.Is.
func TestTransportErrorUnwraps(t *testing.T) {
	cause := syscall.ECONNRESET
	e := WrapTransport("PUT https://s3/key", cause)
	if !errors.Is(e, cause) {
		t.Errorf("errors.Is(%v, %v) = false, want true", e, cause)
	}
}
