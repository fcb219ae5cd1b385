package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// DealStore implements domain.DealStore using PostgreSQL.
type DealStore struct {
	pool *pgxpool.Pool
}

// NewDealStore creates a new DealStore backed by the given connection pool.
func NewDealStore(pool *pgxpool.Pool) *DealStore {
	return &DealStore{pool: pool}
}

const dealSelectCols = `id, name, symbol, chain, status,
	registration_open_at, registration_close_at,
	contribution_open_at, contribution_close_at, distribution_at,
	hard_cap, min_contribution, max_contribution, min_tier_required,
	requires_kyc, total_raised, contributor_count, created_at, updated_at`

func scanDeal(scanner interface{ Scan(dest ...any) error }) (domain.Deal, error) {
	var d domain.Deal
	var chain, status, tier string

	err := scanner.Scan(
		&d.ID, &d.Name, &d.Symbol, &chain, &status,
		&d.RegistrationOpenAt, &d.RegistrationCloseAt,
		&d.ContributionOpenAt, &d.ContributionCloseAt, &d.DistributionAt,
		&d.HardCap, &d.MinContribution, &d.MaxContribution, &tier,
		&d.RequiresKyc, &d.TotalRaised, &d.ContributorCount, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return domain.Deal{}, err
	}

	d.Chain = domain.Chain(chain)
	d.Status = domain.DealStatus(status)
	d.MinTierRequired = domain.Tier(tier)
	return d, nil
}

// Create inserts a new deal.
func (s *DealStore) Create(ctx context.Context, d domain.Deal) error {
	const query = `
		INSERT INTO deals (
			id, name, symbol, chain, status,
			registration_open_at, registration_close_at,
			contribution_open_at, contribution_close_at, distribution_at,
			hard_cap, min_contribution, max_contribution, min_tier_required,
			requires_kyc, total_raised, contributor_count, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13, $14,
			$15, $16, $17, NOW(), NOW()
		)`

	_, err := s.pool.Exec(ctx, query,
		d.ID, d.Name, d.Symbol, string(d.Chain), string(d.Status),
		d.RegistrationOpenAt, d.RegistrationCloseAt,
		d.ContributionOpenAt, d.ContributionCloseAt, d.DistributionAt,
		d.HardCap, d.MinContribution, d.MaxContribution, string(d.MinTierRequired),
		d.RequiresKyc, d.TotalRaised, d.ContributorCount,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict(domain.CodeConcurrentUpdate, "deal %s already exists", d.ID)
		}
		return fmt.Errorf("postgres: create deal %s: %w", d.ID, err)
	}
	return nil
}

// GetByID retrieves a single deal by ID.
func (s *DealStore) GetByID(ctx context.Context, id string) (domain.Deal, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+dealSelectCols+` FROM deals WHERE id = $1`, id)

	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, domain.NotFound("deal %s not found", id)
		}
		return domain.Deal{}, fmt.Errorf("postgres: get deal %s: %w", id, err)
	}
	return d, nil
}

// List returns deals ordered by creation time with pagination.
func (s *DealStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Deal, error) {
	query := `SELECT ` + dealSelectCols + ` FROM deals ORDER BY created_at DESC`
	args := []any{}
	argIdx := 1

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list deals: %w", err)
	}
	defer rows.Close()

	var deals []domain.Deal
	for rows.Next() {
		d, err := scanDeal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan deal: %w", err)
		}
		deals = append(deals, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list deals rows: %w", err)
	}
	return deals, nil
}

// UpdateStatus transitions the deal from exactly `from` to `to` in one
// conditional write. A zero-row update means the status moved concurrently
// (ConflictError) or the deal does not exist (NotFoundError).
func (s *DealStore) UpdateStatus(ctx context.Context, id string, from, to domain.DealStatus) (domain.Deal, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE deals SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND status = $3
		 RETURNING `+dealSelectCols,
		string(to), id, string(from))

	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, getErr := s.GetByID(ctx, id); getErr != nil {
				return domain.Deal{}, getErr
			}
			return domain.Deal{}, domain.Conflict(domain.CodeConcurrentUpdate,
				"deal %s status changed concurrently", id)
		}
		return domain.Deal{}, fmt.Errorf("postgres: update deal status %s: %w", id, err)
	}
	return d, nil
}

// SettleIfFull conditionally moves the deal to SETTLEMENT when the hard cap
// is saturated. The guard on contribution-accepting statuses makes the
// transition fire at most once under concurrent cap-crossers.
func (s *DealStore) SettleIfFull(ctx context.Context, id string) (domain.Deal, bool, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE deals SET status = $1, updated_at = NOW()
		 WHERE id = $2
		   AND status = ANY($3)
		   AND hard_cap > 0
		   AND total_raised >= hard_cap
		 RETURNING `+dealSelectCols,
		string(domain.DealStatusSettlement), id,
		[]string{string(domain.DealStatusGuaranteed), string(domain.DealStatusFCFS)})

	d, err := scanDeal(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Deal{}, false, nil
		}
		return domain.Deal{}, false, fmt.Errorf("postgres: settle deal %s: %w", id, err)
	}
	return d, true, nil
}
