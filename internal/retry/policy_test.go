package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourceplane/assignctl/internal/model"
	"github.com/sourceplane/assignctl/internal/remote"
)

func fastPolicy(retries int) Policy {
	return Policy{MaxRetries: retries, BaseDelay: time.Millisecond, MaxDelay: 4 * time.Millisecond}
}

func TestPolicy_RetriesThrottledUntilSuccess(t *testing.T) {
	calls := 0
	var seen []int
	retries, err := fastPolicy(3).Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return remote.NewError(model.KindThrottled, "fetch", "a1", nil)
		}
		return nil
	}, func(attempt int, _ error) { seen = append(seen, attempt) })

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
	assert.Equal(t, []int{1, 2}, seen)
}

func TestPolicy_StopsAtAttemptLimit(t *testing.T) {
	calls := 0
	retries, err := fastPolicy(2).Do(context.Background(), func(context.Context) error {
		calls++
		return remote.NewError(model.KindTransient, "fetch", "a1", nil)
	}, nil)

	require.Error(t, err)
	assert.True(t, remote.IsRetryable(err), "last remote error is surfaced unwrapped")
	assert.Equal(t, 3, calls)
	assert.Equal(t, 2, retries)
}

func TestPolicy_DoesNotRetryPermanentErrors(t *testing.T) {
	calls := 0
	retries, err := fastPolicy(5).Do(context.Background(), func(context.Context) error {
		calls++
		return remote.NewError(model.KindNotFound, "fetch", "a1", nil)
	}, nil)

	assert.ErrorIs(t, err, remote.ErrNotFound)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, retries)
}

func TestPolicy_HonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxRetries: 10, BaseDelay: time.Hour, MaxDelay: time.Hour}

	_, err := p.Do(ctx, func(context.Context) error {
		cancel()
		return remote.NewError(model.KindThrottled, "fetch", "a1", nil)
	}, nil)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestPolicy_Validate(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
	assert.Error(t, Policy{MaxRetries: -1, BaseDelay: time.Second, MaxDelay: time.Second}.Validate())
	assert.Error(t, Policy{BaseDelay: 0, MaxDelay: time.Second}.Validate())
	assert.Error(t, Policy{BaseDelay: time.Second, MaxDelay: time.Millisecond}.Validate())
	assert.Error(t, Policy{BaseDelay: time.Second, MaxDelay: time.Second, JitterPercent: 150}.Validate())
}

func TestPolicy_WaitsForRetryAfter(t *testing.T) {
	p := Policy{MaxRetries: 1, BaseDelay: time.Millisecond, MaxDelay: 30 * time.Millisecond}
	calls := 0
	start := time.Now()
	retries, err := p.Do(context.Background(), func(context.Context) error {
		calls++
		if calls == 1 {
			return &remote.Error{Kind: model.KindThrottled, Op: "add", AppID: "a1", StatusCode: 429, RetryAfter: time.Hour}
		}
		return nil
	}, nil)

	require.NoError(t, err)
	assert.Equal(t, 1, retries)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond, "Retry-After is capped at MaxDelay")
	assert.Less(t, time.Since(start), time.Minute)
}
