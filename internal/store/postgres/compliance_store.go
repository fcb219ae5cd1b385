package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// ComplianceStore persists anomaly flags.
type ComplianceStore struct {
	pool *pgxpool.Pool
}

// NewComplianceStore creates a new ComplianceStore backed by the given pool.
func NewComplianceStore(pool *pgxpool.Pool) *ComplianceStore {
	return &ComplianceStore{pool: pool}
}

// Create inserts a compliance flag.
func (s *ComplianceStore) Create(ctx context.Context, flag domain.ComplianceFlag) error {
	const query = `
		INSERT INTO compliance_flags (id, user_id, deal_id, reason, severity, reference, resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, query,
		flag.ID, flag.UserID, flag.DealID, flag.Reason, string(flag.Severity),
		flag.Reference, flag.Resolved, flag.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create compliance flag %s: %w", flag.ID, err)
	}
	return nil
}

// ListUnresolved returns open flags, newest first.
func (s *ComplianceStore) ListUnresolved(ctx context.Context, opts domain.ListOpts) ([]domain.ComplianceFlag, error) {
	query := `
		SELECT id, user_id, deal_id, reason, severity, reference, resolved, created_at, resolved_at
		FROM compliance_flags WHERE resolved = FALSE
		ORDER BY created_at DESC`
	args := []any{}
	if opts.Limit > 0 {
		query += " LIMIT $1"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $2"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unresolved flags: %w", err)
	}
	defer rows.Close()

	var out []domain.ComplianceFlag
	for rows.Next() {
		var f domain.ComplianceFlag
		var severity string
		if err := rows.Scan(&f.ID, &f.UserID, &f.DealID, &f.Reason, &severity,
			&f.Reference, &f.Resolved, &f.CreatedAt, &f.ResolvedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan compliance flag: %w", err)
		}
		f.Severity = domain.FlagSeverity(severity)
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list unresolved flags rows: %w", err)
	}
	return out, nil
}

// Resolve marks a flag as handled.
func (s *ComplianceStore) Resolve(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE compliance_flags SET resolved = TRUE, resolved_at = NOW()
		 WHERE id = $1 AND resolved = FALSE`, id)
	if err != nil {
		return fmt.Errorf("postgres: resolve compliance flag %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("unresolved compliance flag %s not found", id)
	}
	return nil
}
