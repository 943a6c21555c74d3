package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

// OutboxNotifier writes process notifications to the outbox. The event
// publisher delivers them from there.
type OutboxNotifier struct {
	txManager  usecase.TransactionManager
	outboxRepo usecase.OutboxRepository
	idGen      usecase.IDGenerator
	now        func() time.Time
}

var _ usecase.ProcessNotifier = (*OutboxNotifier)(nil)

func NewOutboxNotifier(txManager usecase.TransactionManager, outboxRepo usecase.OutboxRepository, idGen usecase.IDGenerator) *OutboxNotifier {
	return &OutboxNotifier{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		idGen:      idGen,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (n *OutboxNotifier) Success(ctx context.Context, process *domain.Process, state *domain.ImportState) error {
	payload := domain.ProcessSucceededEvent{ProcessID: process.ID}
	if state != nil {
		payload.Stage = state.Stage
		payload.Output = state.Output
	}
	return n.emit(ctx, process.ID, domain.EventTypeProcessSucceeded, payload)
}

func (n *OutboxNotifier) Waiting(ctx context.Context, process *domain.Process, state *domain.ImportState, directions *domain.Directions) error {
	payload := domain.ProcessWaitingEvent{ProcessID: process.ID, Directions: directions}
	if state != nil {
		payload.Stage = state.Stage
	}
	return n.emit(ctx, process.ID, domain.EventTypeProcessWaiting, payload)
}

func (n *OutboxNotifier) Fail(ctx context.Context, process *domain.Process, reason string) error {
	return n.emit(ctx, process.ID, domain.EventTypeProcessFailed, domain.ProcessFailedEvent{
		ProcessID: process.ID,
		Error:     reason,
	})
}

func (n *OutboxNotifier) emit(ctx context.Context, processID, eventType string, payload any) error {
	fields, err := toFields(payload)
	if err != nil {
		return err
	}

	tx, err := n.txManager.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	event := &domain.OutboxEvent{
		ID:            n.idGen.Generate(),
		AggregateID:   processID,
		AggregateType: domain.AggregateTypeProcess,
		EventType:     eventType,
		Payload:       fields,
		CreatedAt:     n.now(),
		Published:     false,
	}
	if err := n.outboxRepo.Create(ctx, tx, event); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func toFields(payload any) (map[string]any, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot encode event: %v", domain.ErrSystemError, err)
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: cannot encode event: %v", domain.ErrSystemError, err)
	}
	return fields, nil
}

// LogNotifier only logs. It is used when no outbox is available.
type LogNotifier struct {
	logger zerolog.Logger
}

var _ usecase.ProcessNotifier = LogNotifier{}

func NewLogNotifier(logger zerolog.Logger) LogNotifier {
	return LogNotifier{logger: logger.With().Str("component", "notifier").Logger()}
}

func (n LogNotifier) Success(_ context.Context, process *domain.Process, state *domain.ImportState) error {
	event := n.logger.Info().Str("process_id", process.ID)
	if state != nil && state.Output != nil {
		event = event.Int("created", state.Output.Created).Int("duplicates", state.Output.Duplicates)
	}
	event.Msg("process succeeded")
	return nil
}

func (n LogNotifier) Waiting(_ context.Context, process *domain.Process, _ *domain.ImportState, directions *domain.Directions) error {
	event := n.logger.Info().Str("process_id", process.ID)
	if directions != nil {
		event = event.Str("directions", string(directions.Type))
	}
	event.Msg("process waiting")
	return nil
}

func (n LogNotifier) Fail(_ context.Context, process *domain.Process, reason string) error {
	n.logger.Warn().Str("process_id", process.ID).Str("reason", reason).Msg("process failed")
	return nil
}
