package resilience

import (
	"context"
	"time"
)

// RetryPolicy defines retry behavior for transient failures. MaxRetries is the
// number of extra attempts after the first one.
type RetryPolicy struct {
	MaxRetries int
	Backoff    time.Duration
	// Retryable reports whether err is worth another attempt. Nil retries all.
	Retryable func(error) bool
}

func NewRetryPolicy(maxRetries int, backoff time.Duration) RetryPolicy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	return RetryPolicy{MaxRetries: maxRetries, Backoff: backoff, Retryable: DefaultRetryable}
}

// NoRetry runs fn exactly once.
func NoRetry() RetryPolicy { return RetryPolicy{} }

func (r RetryPolicy) Do(ctx context.Context, fn func(context.Context) error) error {
	var err error
	for i := 0; i <= r.MaxRetries; i++ {
		if cerr := ctx.Err(); cerr != nil {
			if err != nil {
				return err
			}
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if i == r.MaxRetries || (r.Retryable != nil && !r.Retryable(err)) {
			return err
		}
		if r.Backoff > 0 {
			t := time.NewTimer(r.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return err
			case <-t.C:
			}
		}
	}
	return err
}

// DefaultRetryable refuses to retry cancellations and open breakers.
func DefaultRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsCanceled(err) {
		return false
	}
	return !IsCircuitOpen(err)
}
