package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how often and how slowly a model call is retried.
type RetryPolicy struct {
	// MaxRetries counts retries after the first call, so a call runs at most
	// MaxRetries+1 times. Zero disables retrying.
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// Retryable classifies errors. IsRetryable is used when nil.
	Retryable func(error) bool
}

// DefaultRetryPolicy holds the delays used when a policy leaves them unset.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:   3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     10 * time.Second,
}

// Attempts is the total number of calls the policy allows.
func (p RetryPolicy) Attempts() uint {
	return uint(max(p.MaxRetries, 0)) + 1
}

// WithDefaultDelays fills unset delays from DefaultRetryPolicy.
func (p RetryPolicy) WithDefaultDelays() RetryPolicy {
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultRetryPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultRetryPolicy.MaxDelay
	}
	return p
}

func (p RetryPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	return b
}

// Retry calls fn until it succeeds, fails with a non-retryable error, the
// retries are used up or ctx is done.
func Retry[T any](ctx context.Context, p RetryPolicy, fn func(context.Context) (T, error)) (T, error) {
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}

	attempts := p.Attempts()
	var calls uint
	out, err := backoff.Retry(ctx, func() (T, error) {
		calls++
		out, err := fn(ctx)
		if err != nil && !retryable(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}, backoff.WithBackOff(p.backOff()), backoff.WithMaxTries(attempts))
	if err == nil {
		return out, nil
	}

	var zero T
	var permanent *backoff.PermanentError
	if errors.As(err, &permanent) {
		return zero, permanent.Unwrap()
	}
	if calls == attempts && p.MaxRetries > 0 {
		return zero, fmt.Errorf("max retries %d exceeded: %w", p.MaxRetries, err)
	}
	return zero, err
}

// IsRetryable reports whether err is a transient transport failure: a
// network timeout, a reset connection or a truncated response. Provider
// specific classifiers handle API status codes and fall back to this.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
