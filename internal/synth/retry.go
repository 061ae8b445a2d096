package synth

import (
	"context"
	"fmt"
	"time"
)

// RetryPolicy retries an operation a bounded number of times with
// exponential backoff: the seed delay doubles after each failed attempt up
// to a ceiling. Every failure is retried the same way; the policy does not
// inspect the error.
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Delay returns the pause before the attempt following the given number of
// failed attempts (1 after the first failure, and so on).
func (p RetryPolicy) Delay(failures int) time.Duration {
	delay := p.InitialDelay

	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}

	if delay > p.MaxDelay {
		return p.MaxDelay
	}

	return delay
}

// Do runs op until it succeeds, attempts are exhausted, or the context is
// cancelled. The last attempt's error is returned on exhaustion.
func (p RetryPolicy) Do(ctx context.Context, op func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error

	for attempt := 1; attempt <= attempts; attempt++ {
		err = op(ctx)
		if err == nil {
			return nil
		}

		if attempt == attempts {
			break
		}

		select {
		case <-time.After(p.Delay(attempt)):
		case <-ctx.Done():
			return fmt.Errorf("retry aborted: %w", ctx.Err())
		}
	}

	return err
}
