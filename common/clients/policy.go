package clients

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// PollPolicy bounds how long AwaitCompletion waits for a terminal state.
// At least one of MaxAttempts and MaxDuration must be positive so every loop ends.
type PollPolicy struct {
	// Interval is the delay after the first non-terminal status
	Interval time.Duration
	// MaxInterval caps the grown delay; values below Interval mean Interval
	MaxInterval time.Duration
	// Multiplier grows the delay after each poll; <= 1 keeps a fixed interval
	Multiplier float64
	// MaxAttempts is the maximum number of status queries (0 = no count limit)
	MaxAttempts int
	// MaxDuration is the wall-clock budget for the whole wait (0 = no time limit)
	MaxDuration time.Duration
}

// DefaultPollPolicy returns the policy used when callers have no preference
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		Interval:    2 * time.Second,
		MaxInterval: 15 * time.Second,
		Multiplier:  1.5,
		MaxDuration: 10 * time.Minute,
	}
}

// Validate checks that the policy is usable and bounded
func (p PollPolicy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", p.Interval)
	}
	if p.MaxInterval < 0 {
		return fmt.Errorf("poll max interval must not be negative, got %v", p.MaxInterval)
	}
	if p.Multiplier < 0 {
		return fmt.Errorf("poll multiplier must not be negative, got %v", p.Multiplier)
	}
	if p.MaxAttempts < 0 {
		return fmt.Errorf("poll max attempts must not be negative, got %d", p.MaxAttempts)
	}
	if p.MaxDuration < 0 {
		return fmt.Errorf("poll max duration must not be negative, got %v", p.MaxDuration)
	}
	if p.MaxAttempts == 0 && p.MaxDuration == 0 {
		return fmt.Errorf("poll policy must set max attempts or max duration")
	}
	return nil
}

func (p PollPolicy) newBackOff() backoff.BackOff {
	if p.Multiplier <= 1 {
		return backoff.NewConstantBackOff(p.Interval)
	}

	maxInterval := p.MaxInterval
	if maxInterval < p.Interval {
		maxInterval = p.Interval
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Interval
	b.Multiplier = p.Multiplier
	b.MaxInterval = maxInterval
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// RetryPolicy governs immediate retries of a single status query that failed
// with a transient transport error. It is separate from the poll interval loop.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	// Jitter randomizes each delay by +/- the given fraction (0..1)
	Jitter float64
}

// DefaultRetryPolicy returns sensible defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Jitter:     0.25,
	}
}

// Validate checks retry settings
func (r RetryPolicy) Validate() error {
	if r.MaxRetries < 0 {
		return fmt.Errorf("retry max retries must not be negative, got %d", r.MaxRetries)
	}
	if r.BaseDelay < 0 || r.MaxDelay < 0 {
		return fmt.Errorf("retry delays must not be negative")
	}
	if r.Jitter < 0 || r.Jitter > 1 {
		return fmt.Errorf("retry jitter must be within [0, 1], got %v", r.Jitter)
	}
	return nil
}

func (r RetryPolicy) newBackOff() backoff.BackOff {
	maxDelay := r.MaxDelay
	if maxDelay < r.BaseDelay {
		maxDelay = r.BaseDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.BaseDelay
	b.Multiplier = 2
	b.MaxInterval = maxDelay
	b.RandomizationFactor = r.Jitter
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// sleep waits for d or until ctx is done, whichever comes first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
