package reconcile

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/hackgods/clinic-appointment-client/internal/remote"
)

// RetryPolicy bounds how often an idempotent read is repeated after a
// retryable remote failure. Attempts counts retries, not calls.
type RetryPolicy struct {
	Attempts int
	Initial  time.Duration
}

var DefaultRetry = RetryPolicy{Attempts: 2, Initial: 200 * time.Millisecond}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	if p.Initial > 0 {
		eb.InitialInterval = p.Initial
	}
	eb.MaxElapsedTime = 0

	attempts := p.Attempts
	if attempts < 0 {
		attempts = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts)), ctx)
}

func retryRead[T any](ctx context.Context, p RetryPolicy, log *logrus.Entry, op string, read func(context.Context) (T, error)) (T, error) {
	attempt := 0
	return backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		v, err := read(ctx)
		if err != nil && (!remote.IsRetryable(err) || ctx.Err() != nil) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}, p.backOff(ctx), func(err error, wait time.Duration) {
		log.WithFields(logrus.Fields{
			"op":      op,
			"attempt": attempt,
			"wait_ms": wait.Milliseconds(),
		}).WithError(err).Warn("read failed, retrying")
	})
}
