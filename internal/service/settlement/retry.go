package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/lib/pq"

	"github.com/josh-kwaku/pawn-settlement/internal/domain"
	"github.com/josh-kwaku/pawn-settlement/internal/logging"
)

// withRetry runs attempt until it succeeds, fails with a non-retryable
// error, or has conflicted maxRetries+1 times. Exhaustion is reported as
// ErrConcurrencyConflict.
func (s *Service) withRetry(ctx context.Context, op string, attempt func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.retryBase
	b.MaxInterval = 32 * s.retryBase
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(s.maxRetries, 0))), ctx)

	tries := 0
	run := func() error {
		tries++
		err := attempt(ctx)
		if err == nil || isRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, next time.Duration) {
		logging.FromContext(ctx).Warn("settlement conflict, retrying",
			slog.String("op", op),
			slog.Int("attempt", tries),
			slog.Duration("retry_in", next),
			slog.String("error", err.Error()),
		)
	}

	err := backoff.RetryNotify(run, policy, notify)
	if err == nil {
		return nil
	}
	if isRetryable(err) {
		return fmt.Errorf("%s: gave up after %d attempts: %w", op, tries, errors.Join(domain.ErrConcurrencyConflict, err))
	}
	return err
}

// isRetryable reports conflicts that a fresh read can resolve: a lost
// version check, or a serialization failure or deadlock reported by
// PostgreSQL.
func isRetryable(err error) bool {
	if errors.Is(err, domain.ErrVersionConflict) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return true
		}
	}
	return false
}
