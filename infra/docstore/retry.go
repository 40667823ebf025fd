package docstore

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/CrestNiraj12/rantfeed/domain"
)

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy matches the attempt budget of managed document stores.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    5,
	InitialBackoff: 10 * time.Millisecond,
	MaxBackoff:     500 * time.Millisecond,
}

// WithAttempts returns p with MaxAttempts replaced when n is positive.
func (p RetryPolicy) WithAttempts(n int) RetryPolicy {
	if n > 0 {
		p.MaxAttempts = n
	}
	return p
}

// Run calls attempt until it succeeds, fails with an error other than
// domain.ErrConflict, the attempt budget is spent, or ctx ends.
func (p RetryPolicy) Run(ctx context.Context, attempt func(ctx context.Context) error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	backoff := p.InitialBackoff

	for i := 1; ; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := attempt(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if i >= maxAttempts {
			return fmt.Errorf("transaction aborted after %d attempts: %w", i, err)
		}

		if backoff > 0 {
			// Full jitter keeps same-document writers from retrying in lockstep.
			wait := time.Duration(rand.Int64N(int64(backoff)) + 1)
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
			backoff *= 2
			if p.MaxBackoff > 0 && backoff > p.MaxBackoff {
				backoff = p.MaxBackoff
			}
		}
	}
}
