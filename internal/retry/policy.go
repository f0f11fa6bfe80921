// Package retry runs remote calls under a capped exponential backoff policy
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	goretry "github.com/sethvargo/go-retry"

	"github.com/sourceplane/assignctl/internal/remote"
)

// Policy bounds how often and how long a throttled or transient call is retried
type Policy struct {
	MaxRetries    int           `yaml:"maxRetries" json:"maxRetries"`
	BaseDelay     time.Duration `yaml:"baseDelay" json:"baseDelay"`
	MaxDelay      time.Duration `yaml:"maxDelay" json:"maxDelay"`
	JitterPercent int           `yaml:"jitterPercent" json:"jitterPercent"`
}

// DefaultPolicy returns the policy used when nothing is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:    4,
		BaseDelay:     500 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		JitterPercent: 20,
	}
}

// Validate rejects policies that cannot produce a backoff
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return fmt.Errorf("maxRetries must not be negative, got %d", p.MaxRetries)
	}
	if p.BaseDelay <= 0 {
		return fmt.Errorf("baseDelay must be positive, got %s", p.BaseDelay)
	}
	if p.MaxDelay < p.BaseDelay {
		return fmt.Errorf("maxDelay %s must not be below baseDelay %s", p.MaxDelay, p.BaseDelay)
	}
	if p.JitterPercent < 0 || p.JitterPercent > 100 {
		return fmt.Errorf("jitterPercent must be within 0-100, got %d", p.JitterPercent)
	}
	return nil
}

// Backoff builds a fresh backoff sequence; sequences are stateful and must not be shared
func (p Policy) Backoff() goretry.Backoff {
	b := goretry.NewExponential(p.BaseDelay)
	if p.JitterPercent > 0 {
		b = goretry.WithJitterPercent(uint64(p.JitterPercent), b)
	}
	b = goretry.WithCappedDuration(p.MaxDelay, b)
	return goretry.WithMaxRetries(uint64(p.MaxRetries), b)
}

// waitRetryAfter sleeps for a server-requested Retry-After, capped at
// MaxDelay, before the regular backoff wait
func (p Policy) waitRetryAfter(ctx context.Context, err error) error {
	var remoteErr *remote.Error
	if !errors.As(err, &remoteErr) || remoteErr.RetryAfter <= 0 {
		return nil
	}
	wait := min(remoteErr.RetryAfter, p.MaxDelay)
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// policy is exhausted. It returns the number of retries spent and the last error.
// onRetry, when non-nil, is called before each backoff wait
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error, onRetry func(attempt int, err error)) (int, error) {
	attempts := 0
	err := goretry.Do(ctx, p.Backoff(), func(ctx context.Context) error {
		attempts++
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if remote.IsRetryable(err) {
			if attempts <= p.MaxRetries {
				if onRetry != nil {
					onRetry(attempts, err)
				}
				if werr := p.waitRetryAfter(ctx, err); werr != nil {
					return werr
				}
			}
			return goretry.RetryableError(err)
		}
		return err
	})
	return max(attempts-1, 0), err
}
