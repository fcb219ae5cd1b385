package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// VestingStore persists vesting schedules and claim receipts in PostgreSQL.
type VestingStore struct {
	pool *pgxpool.Pool
}

// NewVestingStore creates a new VestingStore backed by the given pool.
func NewVestingStore(pool *pgxpool.Pool) *VestingStore {
	return &VestingStore{pool: pool}
}

const vestingSelectCols = `id, user_id, deal_id, total_amount, tge_amount, claimed_amount,
	vesting_start, cliff_end, vesting_end, last_claim_at, created_at, updated_at`

func scanVesting(scanner interface{ Scan(dest ...any) error }) (domain.VestingSchedule, error) {
	var v domain.VestingSchedule
	err := scanner.Scan(
		&v.ID, &v.UserID, &v.DealID, &v.TotalAmount, &v.TgeAmount, &v.ClaimedAmount,
		&v.VestingStart, &v.CliffEnd, &v.VestingEnd, &v.LastClaimAt,
		&v.CreatedAt, &v.UpdatedAt,
	)
	return v, err
}

// Create inserts a new vesting schedule.
func (s *VestingStore) Create(ctx context.Context, v domain.VestingSchedule) error {
	const query = `
		INSERT INTO vesting_schedules (
			id, user_id, deal_id, total_amount, tge_amount, claimed_amount,
			vesting_start, cliff_end, vesting_end, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err := s.pool.Exec(ctx, query,
		v.ID, v.UserID, v.DealID, v.TotalAmount, v.TgeAmount, v.ClaimedAmount,
		v.VestingStart, v.CliffEnd, v.VestingEnd, v.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Conflict(domain.CodeConcurrentUpdate,
				"vesting schedule for user %s in deal %s already exists", v.UserID, v.DealID)
		}
		return fmt.Errorf("postgres: create vesting schedule %s: %w", v.ID, err)
	}
	return nil
}

// GetByUserAndDeal retrieves the user's vesting schedule for a deal.
func (s *VestingStore) GetByUserAndDeal(ctx context.Context, userID, dealID string) (domain.VestingSchedule, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+vestingSelectCols+` FROM vesting_schedules WHERE user_id = $1 AND deal_id = $2`,
		userID, dealID)

	v, err := scanVesting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VestingSchedule{}, domain.NotFound(
				"no vesting schedule for user %s in deal %s", userID, dealID)
		}
		return domain.VestingSchedule{}, fmt.Errorf("postgres: get vesting schedule: %w", err)
	}
	return v, nil
}

// ApplyClaim writes the claim receipt and advances the schedule in one
// transaction. The schedule update is guarded on claimed_amount still being
// expectedClaimed so that two claims computed from the same snapshot cannot
// both land.
func (s *VestingStore) ApplyClaim(ctx context.Context, rec domain.ClaimRecord, expectedClaimed int64) (domain.VestingSchedule, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.VestingSchedule{}, fmt.Errorf("postgres: begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`UPDATE vesting_schedules
		 SET claimed_amount = claimed_amount + $1,
		     last_claim_at = $2,
		     updated_at = NOW()
		 WHERE id = $3 AND claimed_amount = $4
		 RETURNING `+vestingSelectCols,
		rec.Amount, rec.ClaimedAt, rec.ScheduleID, expectedClaimed)

	v, err := scanVesting(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.VestingSchedule{}, domain.Conflict(domain.CodeConcurrentUpdate,
				"vesting schedule %s changed concurrently", rec.ScheduleID)
		}
		return domain.VestingSchedule{}, fmt.Errorf("postgres: advance vesting schedule %s: %w", rec.ScheduleID, err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO claim_records (id, schedule_id, user_id, deal_id, amount, tx_hash, claimed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.ScheduleID, rec.UserID, rec.DealID, rec.Amount, rec.TxHash, rec.ClaimedAt,
	); err != nil {
		return domain.VestingSchedule{}, fmt.Errorf("postgres: insert claim record %s: %w", rec.ID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_claimed_tokens = total_claimed_tokens + $1, updated_at = NOW()
		 WHERE id = $2`,
		rec.Amount, rec.UserID); err != nil {
		return domain.VestingSchedule{}, fmt.Errorf("postgres: credit claimed tokens: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.VestingSchedule{}, fmt.Errorf("postgres: commit claim: %w", err)
	}
	return v, nil
}
