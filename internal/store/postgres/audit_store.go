package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// AuditStore persists the append-only audit log.
type AuditStore struct {
	pool *pgxpool.Pool
}

// NewAuditStore creates a new AuditStore backed by the given pool.
func NewAuditStore(pool *pgxpool.Pool) *AuditStore {
	return &AuditStore{pool: pool}
}

// Log appends one audit entry. The detail map is stored as JSONB.
func (s *AuditStore) Log(ctx context.Context, event string, detail map[string]any) error {
	var payload []byte
	if detail != nil {
		var err error
		payload, err = json.Marshal(detail)
		if err != nil {
			return fmt.Errorf("postgres: marshal audit detail: %w", err)
		}
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_log (event, detail) VALUES ($1, $2)`, event, payload)
	if err != nil {
		return fmt.Errorf("postgres: log audit event %s: %w", event, err)
	}
	return nil
}

// List returns audit entries, newest first.
func (s *AuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	query := `SELECT id, event, detail, created_at FROM audit_log`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" WHERE created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}

	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries: %w", err)
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

// ListBefore returns audit entries older than the cutoff, oldest first, for
// archival.
func (s *AuditStore) ListBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, event, detail, created_at FROM audit_log
		 WHERE created_at < $1 ORDER BY created_at ASC LIMIT $2`,
		cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list audit entries before %s: %w", cutoff, err)
	}
	defer rows.Close()
	return collectAuditEntries(rows)
}

// DeleteBefore removes audit entries older than the cutoff after archival.
func (s *AuditStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM audit_log WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete audit entries before %s: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

func collectAuditEntries(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var detail []byte
		if err := rows.Scan(&e.ID, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan audit entry: %w", err)
		}
		if len(detail) > 0 {
			if err := json.Unmarshal(detail, &e.Detail); err != nil {
				return nil, fmt.Errorf("postgres: unmarshal audit detail: %w", err)
			}
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: audit entry rows: %w", err)
	}
	return out, nil
}
