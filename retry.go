package identity

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Store calls ride through this executor so the rest of the core is written
// against a store that mostly always succeeds. Backoff is linear:
// baseDelay * attemptNumber between attempts.

// DefaultMaxAttempts bounds retries for a single store call.
var DefaultMaxAttempts = 3

// DefaultBaseDelay is the first backoff interval.
var DefaultBaseDelay = 100 * time.Millisecond

// TransientError marks a failure as likely to succeed on retry, as opposed to
// a permanent or semantic failure such as a duplicate key.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	if e.Err == nil {
		return "transient failure"
	}
	return "transient failure: " + e.Err.Error()
}

func (e *TransientError) Unwrap() error { return e.Err }

// MarkTransient classifies err as retryable.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err was classified as retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// RetryPolicy parameterizes the executor. Sleep is injectable so tests can
// assert backoff without waiting.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Classify    func(error) bool
	Sleep       func(ctx context.Context, d time.Duration) error
}

// RetryOption customizes a RetryPolicy.
type RetryOption func(*RetryPolicy)

// WithMaxAttempts overrides the attempt bound.
func WithMaxAttempts(n int) RetryOption {
	return func(p *RetryPolicy) {
		if n > 0 {
			p.MaxAttempts = n
		}
	}
}

// WithBaseDelay overrides the first backoff interval.
func WithBaseDelay(d time.Duration) RetryOption {
	return func(p *RetryPolicy) {
		if d >= 0 {
			p.BaseDelay = d
		}
	}
}

// WithClassifier overrides transient-fault classification.
func WithClassifier(classify func(error) bool) RetryOption {
	return func(p *RetryPolicy) {
		if classify != nil {
			p.Classify = classify
		}
	}
}

// WithSleep overrides the sleep function (useful for tests).
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) RetryOption {
	return func(p *RetryPolicy) {
		if sleep != nil {
			p.Sleep = sleep
		}
	}
}

// NewRetryPolicy builds a policy with defaults applied.
func NewRetryPolicy(opts ...RetryOption) RetryPolicy {
	p := RetryPolicy{
		MaxAttempts: DefaultMaxAttempts,
		BaseDelay:   DefaultBaseDelay,
		Classify:    IsTransient,
		Sleep:       sleepContext,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// Retry invokes op, retrying transient failures with linear backoff up to the
// policy's attempt bound. Non-transient failures propagate immediately; an
// exhausted transient failure propagates the last cause.
func Retry[T any](ctx context.Context, policy RetryPolicy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Classify == nil {
		policy.Classify = IsTransient
	}
	if policy.Sleep == nil {
		policy.Sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		if !policy.Classify(err) {
			return zero, err
		}

		lastErr = err
		if attempt == policy.MaxAttempts {
			break
		}

		if err := policy.Sleep(ctx, policy.BaseDelay*time.Duration(attempt)); err != nil {
			return zero, goerrors.Wrap(err, goerrors.CategoryOperation, "context cancelled during store retry")
		}
	}

	return zero, lastErr
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
