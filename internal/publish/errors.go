package publish

import (
	"context"
	"errors"
	"fmt"
)

// InterruptedError is raised when the batch was asked to stop: the
// interrupter fired, the broker reported the upload as cancelled, or the
// surrounding context was cancelled.
type InterruptedError struct {
	Reason string
}

func (e *InterruptedError) Error() string {
	return "publishing interrupted: " + e.Reason
}

func (e *InterruptedError) UploadInterrupted() bool {
	return true
}

// FileUploadFailedError is the terminal error for a failed batch.
// Recoverable tells the caller whether re-running the publish can help.
type FileUploadFailedError struct {
	Message     string
	Recoverable bool
	Cause       error
}

func (e *FileUploadFailedError) Error() string {
	return e.Message
}

func (e *FileUploadFailedError) Unwrap() error {
	return e.Cause
}

// IsInterrupted reports whether err, anywhere in its chain, means the batch
// was cancelled rather than failed.
func IsInterrupted(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var intr interface{ UploadInterrupted() bool }
	if errors.As(err, &intr) && intr.UploadInterrupted() {
		return true
	}
	return false
}

// uploadFailed wraps a task error with its upload description.
func uploadFailed(description string, recoverable bool, cause error) *FileUploadFailedError {
	return &FileUploadFailedError{
		Message:     fmt.Sprintf("failed to upload artifact %s: %v", description, cause),
		Recoverable: recoverable,
		Cause:       cause,
	}
}
