package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// UserStore persists the mirrored investor records.
type UserStore struct {
	pool *pgxpool.Pool
}

// NewUserStore creates a new UserStore backed by the given pool.
func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (domain.User, error) {
	const query = `
		SELECT id, wallet, tier, kyc_approved, total_contributed_usd,
		       total_claimed_tokens, created_at, updated_at
		FROM users WHERE id = $1`

	var u domain.User
	var tier string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&u.ID, &u.Wallet, &tier, &u.KycApproved, &u.TotalContributedUsd,
		&u.TotalClaimedTokens, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.NotFound("user %s not found", id)
		}
		return domain.User{}, fmt.Errorf("postgres: get user %s: %w", id, err)
	}
	u.Tier = domain.Tier(tier)
	return u, nil
}

// Upsert inserts or refreshes the mirrored profile fields. Aggregate columns
// are owned by the ledger and never touched here.
func (s *UserStore) Upsert(ctx context.Context, u domain.User) error {
	const query = `
		INSERT INTO users (id, wallet, tier, kyc_approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (id) DO UPDATE SET
			wallet = EXCLUDED.wallet,
			tier = EXCLUDED.tier,
			kyc_approved = EXCLUDED.kyc_approved,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query, u.ID, u.Wallet, string(u.Tier), u.KycApproved)
	if err != nil {
		return fmt.Errorf("postgres: upsert user %s: %w", u.ID, err)
	}
	return nil
}
