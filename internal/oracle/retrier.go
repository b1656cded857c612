package oracle

import (
	"context"
	"math/rand"
	"time"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
	defaultBackoffFactor  = 2.0
	defaultMaxRetries     = 3
	defaultJitter         = 0.1
)

// Retrier retries remote price requests with exponential backoff and jitter.
type Retrier struct {
	initial    time.Duration
	max        time.Duration
	factor     float64
	maxRetries int
	jitter     float64
}

// RetryOption configures a Retrier.
type RetryOption func(*Retrier)

// WithInitialBackoff sets the first wait between attempts.
func WithInitialBackoff(d time.Duration) RetryOption {
	return func(r *Retrier) { r.initial = d }
}

// WithMaxBackoff caps the wait between attempts.
func WithMaxBackoff(d time.Duration) RetryOption {
	return func(r *Retrier) { r.max = d }
}

// WithMaxRetries sets how many retries follow the first attempt.
func WithMaxRetries(n int) RetryOption {
	return func(r *Retrier) { r.maxRetries = n }
}

// WithJitter sets the jitter fraction applied to every wait (0 to 1).
func WithJitter(j float64) RetryOption {
	return func(r *Retrier) { r.jitter = j }
}

// NewRetrier creates a Retrier with defaults overridden by opts.
func NewRetrier(opts ...RetryOption) *Retrier {
	r := &Retrier{
		initial:    defaultInitialBackoff,
		max:        defaultMaxBackoff,
		factor:     defaultBackoffFactor,
		maxRetries: defaultMaxRetries,
		jitter:     defaultJitter,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Do runs fn until it succeeds, the retries are exhausted, or ctx is done.
func (r *Retrier) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	wait := r.initial

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			oracleLogger.Debug().Err(err).Int("attempt", attempt).Dur("backoff", wait).Msg("Retrying price request")

			delta := (rand.Float64()*2 - 1) * r.jitter * float64(wait)
			sleep := time.Duration(float64(wait) + delta)
			if sleep < 0 {
				sleep = 0
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(sleep):
			}

			wait = time.Duration(float64(wait) * r.factor)
			if wait > r.max {
				wait = r.max
			}
		}

		if err = fn(ctx); err == nil {
			return nil
		}
	}
	return err
}

// DoWithData is Do for functions that return a value.
func DoWithData[T any](r *Retrier, ctx context.Context, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := r.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
