package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// EventStore journals reconciler outcomes.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Record appends one journal row.
func (s *EventStore) Record(ctx context.Context, e domain.ProcessedEvent) error {
	const query = `
		INSERT INTO processed_events (idempotency_key, event_type, tx_hash, outcome, processed_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := s.pool.Exec(ctx, query,
		e.IdempotencyKey, string(e.EventType), e.TxHash, string(e.Outcome), e.ProcessedAt)
	if err != nil {
		return fmt.Errorf("postgres: record processed event: %w", err)
	}
	return nil
}

// ListRecent returns the newest journal rows.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.ProcessedEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, idempotency_key, event_type, tx_hash, outcome, processed_at
		 FROM processed_events ORDER BY processed_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list processed events: %w", err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// ListBefore returns journal rows older than the cutoff, oldest first, for
// archival.
func (s *EventStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.ProcessedEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, idempotency_key, event_type, tx_hash, outcome, processed_at
		 FROM processed_events WHERE processed_at < $1 ORDER BY processed_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list processed events before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectEvents(rows)
}

// DeleteBefore removes journal rows older than the cutoff after archival.
func (s *EventStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM processed_events WHERE processed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete processed events before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func collectEvents(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.ProcessedEvent, error) {
	var out []domain.ProcessedEvent
	for rows.Next() {
		var e domain.ProcessedEvent
		var eventType, outcome string
		if err := rows.Scan(&e.ID, &e.IdempotencyKey, &eventType, &e.TxHash,
			&outcome, &e.ProcessedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan processed event: %w", err)
		}
		e.EventType = domain.SettlementEventType(eventType)
		e.Outcome = domain.ReconcileOutcome(outcome)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: processed event rows: %w", err)
	}
	return out, nil
}
