package loop

import (
	"context"
	"errors"
	"time"

	iface "CamDetLoop/interface"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// RetryPolicy bounds how often a failed acquisition is retried. The delay
// doubles per consecutive failure up to MaxRetryDelay. MaxRetries 0 makes
// every acquisition failure fatal.
type RetryPolicy struct {
	MaxRetries    int
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := p.RetryDelay
	for i := 1; i < attempt && delay < p.MaxRetryDelay; i++ {
		delay *= 2
	}
	if p.MaxRetryDelay > 0 && delay > p.MaxRetryDelay {
		delay = p.MaxRetryDelay
	}
	return delay
}

// withRetry runs fn until it succeeds, fails with something other than an
// acquisition error, or the policy gives up. onRetry sees every retried
// failure.
func withRetry(ctx context.Context, clk clock.Clock, p RetryPolicy, log *zap.Logger, fn func(context.Context) error, onRetry func(attempt int, err error)) error {
	attempt := 0
	for {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !errors.Is(err, iface.ErrAcquisition) || ctx.Err() != nil {
			return err
		}
		attempt++
		if attempt > p.MaxRetries {
			if p.MaxRetries > 0 {
				log.Error("acquisition retries exhausted", zap.Int("MaxRetries", p.MaxRetries), zap.Error(err))
			}
			return err
		}
		delay := p.backoff(attempt)
		log.Warn("acquisition failed, retrying",
			zap.Int("Attempt", attempt),
			zap.Int("MaxRetries", p.MaxRetries),
			zap.Duration("Delay", delay),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err)
		}

		timer := clk.Timer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
