package usecase

import (
	"context"
	"time"

	"github.com/iho/goimport/internal/domain"
)

// ProcessRepository defines data access for processes, their files and steps.
type ProcessRepository interface {
	// Create stores a new process together with its files.
	Create(ctx context.Context, tx Transaction, process *domain.Process) error
	Update(ctx context.Context, tx Transaction, process *domain.Process) error
	// GetByID loads the process and its files.
	GetByID(ctx context.Context, id string) (*domain.Process, error)
	List(ctx context.Context, limit, offset int) ([]*domain.Process, error)

	CreateStep(ctx context.Context, tx Transaction, step *domain.ProcessStep) error
	UpdateStep(ctx context.Context, tx Transaction, step *domain.ProcessStep) error
	GetStep(ctx context.Context, processID string, number int) (*domain.ProcessStep, error)
}

// ProcessHandler runs the stages of one kind of import.
type ProcessHandler interface {
	Name() string
	CanHandle(file *domain.ProcessFile) bool
	CanAppend(files []*domain.ProcessFile) bool
	StartingState(files []*domain.ProcessFile) (*domain.ImportState, error)
	// CheckCompletion returns nil while the process is still going and the
	// success of the process once it is finished.
	CheckCompletion(state *domain.ImportState) *bool
	Directions(ctx context.Context, state *domain.ImportState, config domain.ProcessConfig) (*domain.Directions, error)
	Action(ctx context.Context, process *domain.Process, action *domain.ImportAction, state *domain.ImportState) (*domain.ImportState, error)
	Rollback(ctx context.Context, process *domain.Process, state *domain.ImportState) (*domain.ImportState, error)
}

// ProcessNotifier is told whenever the status of a process settles.
type ProcessNotifier interface {
	Success(ctx context.Context, process *domain.Process, state *domain.ImportState) error
	Waiting(ctx context.Context, process *domain.Process, state *domain.ImportState, directions *domain.Directions) error
	Fail(ctx context.Context, process *domain.Process, reason string) error
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error)
	DeletePublished(ctx context.Context, before time.Time) error
}

// MetricsRecorder collects process metrics.
type MetricsRecorder interface {
	RecordProcessCreated(handler string)
	RecordStep(handler string, op domain.ImportOp, duration time.Duration, err error)
	RecordStatus(status domain.ProcessStatus)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// Retrier retries operations failing on transient database errors.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Cache defines caching operations. Get returns domain.ErrNotFound for a
// missing key.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
}
