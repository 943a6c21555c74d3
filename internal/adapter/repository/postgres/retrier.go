package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// PostgreSQL error codes the repositories react to.
const (
	pgErrDeadlock             = "40P01"
	pgErrSerializationFailure = "40001"
	pgErrUniqueViolation      = "23505"
)

// Retrier implements usecase.Retrier. Ledger writes and process updates run
// in serializable transactions, so a conflicting import is replayed a few
// times before the error reaches the process.
type Retrier struct {
	maxRetries uint64
	newBackOff func() backoff.BackOff
	logger     zerolog.Logger
}

func NewRetrier(logger zerolog.Logger) *Retrier {
	return &Retrier{
		maxRetries: 3,
		newBackOff: func() backoff.BackOff {
			return backoff.NewExponentialBackOff(
				backoff.WithInitialInterval(50*time.Millisecond),
				backoff.WithMaxInterval(time.Second),
				backoff.WithMaxElapsedTime(10*time.Second),
			)
		},
		logger: logger.With().Str("component", "retrier").Logger(),
	}
}

// Retry runs operation until it succeeds, fails with an error that cannot be
// retried or runs out of attempts. The last error is returned unchanged.
func (r *Retrier) Retry(ctx context.Context, operation func() error) error {
	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(r.newBackOff(), r.maxRetries), ctx)

	return backoff.RetryNotify(func() error {
		attempt++
		err := operation()
		if err != nil && !isRetryableError(err) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		r.logger.Warn().Err(err).Int("attempt", attempt).Dur("wait", wait).Msg("database conflict, retrying")
	})
}

func isRetryableError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgErrDeadlock || pgErr.Code == pgErrSerializationFailure
	}
	return pgconn.SafeToRetry(err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrUniqueViolation
}
