package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/iho/goimport/internal/domain"
	"github.com/iho/goimport/internal/usecase"
)

const outboxColumns = `id, aggregate_id, aggregate_type, event_type, payload, created_at, published, published_at`

// OutboxRepository implements usecase.OutboxRepository.
type OutboxRepository struct {
	db dbtx
}

func NewOutboxRepository(pool Pool) *OutboxRepository {
	return &OutboxRepository{db: pool}
}

// Create creates a new outbox event, within tx when given.
func (r *OutboxRepository) Create(ctx context.Context, tx usecase.Transaction, event *domain.OutboxEvent) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("%w: cannot encode event payload: %v", domain.ErrSystemError, err)
	}

	_, err = on(tx, r.db).Exec(ctx, `
		INSERT INTO outbox_events (`+outboxColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		event.ID, event.AggregateID, event.AggregateType, event.EventType, payload,
		timeToPgTimestamptz(event.CreatedAt), event.Published, pgtype.Timestamptz{},
	)
	if err != nil {
		return wrapDBError("create outbox event", err)
	}
	return nil
}

// GetUnpublished retrieves the oldest unpublished events.
func (r *OutboxRepository) GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE published = false
		ORDER BY created_at, id
		LIMIT $1`, limit)
	if err != nil {
		return nil, wrapDBError("get unpublished events", err)
	}
	return collectEvents(rows)
}

func (r *OutboxRepository) MarkPublished(ctx context.Context, id string, publishedAt time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE outbox_events SET published = true, published_at = $2
		WHERE id = $1`, id, timeToPgTimestamptz(publishedAt))
	if err != nil {
		return wrapDBError("mark event published", err)
	}
	return nil
}

// GetByAggregate retrieves the events of one process, newest first.
func (r *OutboxRepository) GetByAggregate(ctx context.Context, aggregateType, aggregateID string, limit, offset int) ([]*domain.OutboxEvent, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+outboxColumns+` FROM outbox_events
		WHERE aggregate_type = $1 AND aggregate_id = $2
		ORDER BY created_at DESC, id DESC
		LIMIT $3 OFFSET $4`, aggregateType, aggregateID, limit, offset)
	if err != nil {
		return nil, wrapDBError("get events by aggregate", err)
	}
	return collectEvents(rows)
}

// DeletePublished deletes published events older than the given time.
func (r *OutboxRepository) DeletePublished(ctx context.Context, before time.Time) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM outbox_events WHERE published = true AND published_at < $1`,
		timeToPgTimestamptz(before))
	if err != nil {
		return wrapDBError("delete published events", err)
	}
	return nil
}

func collectEvents(rows pgx.Rows) ([]*domain.OutboxEvent, error) {
	defer rows.Close()

	events := []*domain.OutboxEvent{}
	for rows.Next() {
		var (
			e                      domain.OutboxEvent
			payload                []byte
			createdAt, publishedAt pgtype.Timestamptz
		)
		err := rows.Scan(&e.ID, &e.AggregateID, &e.AggregateType, &e.EventType, &payload,
			&createdAt, &e.Published, &publishedAt)
		if err != nil {
			return nil, wrapDBError("scan outbox event", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &e.Payload); err != nil {
				return nil, fmt.Errorf("%w: corrupted payload of event %s: %v", domain.ErrDatabaseError, e.ID, err)
			}
		}
		e.CreatedAt = createdAt.Time
		e.PublishedAt = pgToTime(publishedAt)
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("read outbox events", err)
	}
	return events, nil
}
