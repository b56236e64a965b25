package broker

import (
	"fmt"
	"strings"
)

// ErrClientShutdown is returned by every call made after Close.
var ErrClientShutdown error = &ShutdownError{}

// ShutdownError marks use of the client after Close. Always a programming
// error, never retried.
type ShutdownError struct{}

func (e *ShutdownError) Error() string {
	return "presigned urls provider client already shut down"
}

func (e *ShutdownError) Recoverable() bool {
	return false
}

// StatusError is a non-2xx response from the broker.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("url broker returned status %d: %s", e.StatusCode, e.Message)
}

// Recoverable reports whether another attempt can possibly succeed.
func (e *StatusError) Recoverable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 408 || e.StatusCode == 429
}

// UploadInterrupted reports whether the broker rejected the request because
// the upload was cancelled on its side.
func (e *StatusError) UploadInterrupted() bool {
	return strings.Contains(strings.ToLower(e.Message), "upload interrupted")
}

// ShapeError is a 2xx broker response that does not have the expected shape:
// malformed XML or a missing object key. Retrying will not change it.
type ShapeError struct {
	Message string
}

func (e *ShapeError) Error() string {
	return "unexpected url broker response: " + e.Message
}

func (e *ShapeError) Recoverable() bool {
	return false
}
