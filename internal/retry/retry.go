// Package retry executes operations under a bounded attempt budget with
// exponential backoff and an abort list of non-recoverable errors.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/s3pub/s3pub/internal/logging"
)

// recoverable is implemented by errors that know whether another attempt can
// possibly succeed (HTTP status and S3 error-code classification).
type recoverable interface {
	Recoverable() bool
}

// interrupted is implemented by errors raised because the batch was asked to
// stop. These always abort retries immediately.
type interrupted interface {
	UploadInterrupted() bool
}

// Retrier retries an operation up to MaxAttempts times, sleeping
// BaseDelay * 2^(attempt-1) between attempts.
type Retrier struct {
	// MaxAttempts is the total number of attempts, first try included.
	MaxAttempts int

	// BaseDelay is the backoff unit. The sleep after attempt n is
	// BaseDelay << (n-1).
	BaseDelay time.Duration

	// AbortOn lists sentinel errors that stop retries immediately,
	// matched with errors.Is.
	AbortOn []error

	Logger *logging.Logger
}

// New creates a Retrier with the given budget.
func New(maxAttempts int, baseDelay time.Duration, logger *logging.Logger) *Retrier {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Retrier{MaxAttempts: maxAttempts, BaseDelay: baseDelay, Logger: logger}
}

// Do runs fn until it succeeds, a non-retriable error surfaces, the budget is
// exhausted, or ctx is cancelled. The backoff sleep is cancellable: a fired
// context ends the wait early and its error is returned.
func (r *Retrier) Do(ctx context.Context, op string, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= r.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if r.abortsRetries(err) {
			r.Logger.Debugf("%s failed with non-retriable error: %v", op, err)
			return err
		}
		if attempt == r.MaxAttempts {
			break
		}

		delay := r.BaseDelay << (attempt - 1)
		r.Logger.Debugf("%s failed (attempt %d/%d), retrying in %s: %v", op, attempt, r.MaxAttempts, delay, err)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	r.Logger.Debugf("%s failed after %d attempts: %v", op, r.MaxAttempts, lastErr)
	return lastErr
}

// abortsRetries reports whether err must propagate without further attempts.
func (r *Retrier) abortsRetries(err error) bool {
	for _, abort := range r.AbortOn {
		if errors.Is(err, abort) {
			return true
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var intr interrupted
	if errors.As(err, &intr) && intr.UploadInterrupted() {
		return true
	}
	var rec recoverable
	if errors.As(err, &rec) && !rec.Recoverable() {
		return true
	}
	return false
}

// Value runs fn under the retrier and returns its result.
func Value[T any](ctx context.Context, r *Retrier, op string, fn func() (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, op, func() error {
		var err error
		out, err = fn()
		return err
	})
	return out, err
}
