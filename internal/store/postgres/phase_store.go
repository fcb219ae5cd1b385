package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// PhaseStore persists the informational phase projection.
type PhaseStore struct {
	pool *pgxpool.Pool
}

// NewPhaseStore creates a new PhaseStore backed by the given pool.
func NewPhaseStore(pool *pgxpool.Pool) *PhaseStore {
	return &PhaseStore{pool: pool}
}

// Replace swaps a deal's phase rows for the given projection atomically.
func (s *PhaseStore) Replace(ctx context.Context, dealID string, phases []domain.DealPhase) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin phase replace: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM deal_phases WHERE deal_id = $1`, dealID); err != nil {
		return fmt.Errorf("postgres: clear deal phases: %w", err)
	}

	for _, p := range phases {
		if _, err := tx.Exec(ctx,
			`INSERT INTO deal_phases (id, deal_id, name, ord, start_at, end_at, active)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			p.ID, dealID, p.Name, p.Order, p.StartAt, p.EndAt, p.Active,
		); err != nil {
			return fmt.Errorf("postgres: insert deal phase %s: %w", p.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit phase replace: %w", err)
	}
	return nil
}

// ListByDeal returns a deal's phases in display order.
func (s *PhaseStore) ListByDeal(ctx context.Context, dealID string) ([]domain.DealPhase, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, deal_id, name, ord, start_at, end_at, active
		 FROM deal_phases WHERE deal_id = $1 ORDER BY ord`, dealID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deal phases: %w", err)
	}
	defer rows.Close()

	var out []domain.DealPhase
	for rows.Next() {
		var p domain.DealPhase
		if err := rows.Scan(&p.ID, &p.DealID, &p.Name, &p.Order, &p.StartAt, &p.EndAt, &p.Active); err != nil {
			return nil, fmt.Errorf("postgres: scan deal phase: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list deal phases rows: %w", err)
	}
	return out, nil
}
