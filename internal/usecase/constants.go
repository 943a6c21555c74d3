package usecase

import "time"

const (
	// MaxRunsPerCall limits the immediate actions executed by one Run.
	MaxRunsPerCall = 100

	// MaxHandlerNameLength matches the width of the handler column.
	MaxHandlerNameLength = 32

	// DefaultListLimit is used when listing processes without a limit.
	DefaultListLimit = 50

	// IdempotencyKeyTTL is how long idempotency keys are cached
	IdempotencyKeyTTL = 24 * time.Hour
)
