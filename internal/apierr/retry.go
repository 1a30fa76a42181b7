package apierr

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"time"

	"jobdigest/internal/util"
)

const (
	defaultMaxRetries = 3
	defaultBaseDelay  = time.Second
	defaultMaxDelay   = 30 * time.Second
	maxJitter         = 500 * time.Millisecond
)

// Observer receives a notification before each retry sleep. It keeps logging
// concerns out of the retry core.
type Observer interface {
	OnRetry(attempt int, delay time.Duration, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(attempt int, delay time.Duration, err error)

func (f ObserverFunc) OnRetry(attempt int, delay time.Duration, err error) {
	f(attempt, delay, err)
}

// Options tunes the retry policy. Zero values fall back to the defaults
// (3 retries, 1s base delay, 30s cap).
type Options struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Observer   Observer
}

func (o Options) withDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = defaultMaxRetries
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = defaultMaxDelay
	}
	return o
}

// Do runs op, retrying retryable failures with exponential backoff and
// jitter. Non-retryable errors propagate immediately; once retries are
// exhausted the last error propagates. The successful result is returned
// as-is, never swallowed.
func Do[T any](ctx context.Context, op func(ctx context.Context) (T, error), opts Options) (T, error) {
	opts = opts.withDefaults()

	var zero T
	var lastErr error

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == opts.MaxRetries {
			break
		}

		if !IsRetryable(err) {
			return zero, err
		}

		delay := nextDelay(attempt, err, opts, randomJitter())

		if opts.Observer != nil {
			opts.Observer.OnRetry(attempt+1, delay, err)
		}

		if err := util.WaitFor(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, lastErr
}

// nextDelay computes the sleep before the given retry. A Retry-After hint on
// a 429 wins over the backoff schedule.
func nextDelay(attempt int, err error, opts Options, jitter time.Duration) time.Duration {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusTooManyRequests && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter
	}

	delay := opts.BaseDelay*(1<<attempt) + jitter
	if delay > opts.MaxDelay {
		delay = opts.MaxDelay
	}
	return delay
}

func randomJitter() time.Duration {
	return rand.N(maxJitter)
}
