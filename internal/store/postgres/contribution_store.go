package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// ContributionStore implements the contribution ledger using PostgreSQL.
//
// Aggregate accounting rule: deal.total_raised and deal.contributor_count
// are moved exactly once, when a contribution is recorded (PENDING), so the
// hard-cap guard always sees reserved headroom. Failure and reversal release
// the reservation; confirmation only credits the user's confirmed totals.
type ContributionStore struct {
	pool *pgxpool.Pool
}

// NewContributionStore creates a new ContributionStore backed by the given
// connection pool.
func NewContributionStore(pool *pgxpool.Pool) *ContributionStore {
	return &ContributionStore{pool: pool}
}

const contributionSelectCols = `id, user_id, deal_id, amount, currency, amount_usd,
	tx_hash, chain, status, confirmed_at, block_number, created_at, updated_at`

func scanContribution(scanner interface{ Scan(dest ...any) error }) (domain.Contribution, error) {
	var c domain.Contribution
	var currency, chain, status string

	err := scanner.Scan(
		&c.ID, &c.UserID, &c.DealID, &c.Amount, &currency, &c.AmountUsd,
		&c.TxHash, &chain, &status, &c.ConfirmedAt, &c.BlockNumber,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.Contribution{}, err
	}

	c.Currency = domain.Currency(currency)
	c.Chain = domain.Chain(chain)
	c.Status = domain.ContributionStatus(status)
	return c, nil
}

// countedStatuses are the contribution statuses that hold a deal reservation.
var countedStatuses = []string{
	string(domain.ContributionPending),
	string(domain.ContributionConfirmed),
}

// countedPeers counts the user's other reservation-holding contributions to
// the deal, excluding the given row.
func countedPeers(ctx context.Context, tx pgx.Tx, dealID, userID, excludeID string) (int64, error) {
	var n int64
	err := tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM contributions
		 WHERE deal_id = $1 AND user_id = $2 AND id <> $3 AND status = ANY($4)`,
		dealID, userID, excludeID, countedStatuses,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count peer contributions: %w", err)
	}
	return n, nil
}

// Record inserts a PENDING contribution and maintains the deal aggregates in
// one transaction. Duplicate tx hashes are rejected by the uniqueness
// constraint, never by a prior read, so concurrent submissions of the same
// hash race safely: exactly one wins.
func (s *ContributionStore) Record(ctx context.Context, c domain.Contribution) (domain.Contribution, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("postgres: begin record: %w", err)
	}
	defer tx.Rollback(ctx)

	const insert = `
		INSERT INTO contributions (
			id, user_id, deal_id, amount, currency, amount_usd,
			tx_hash, chain, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)`

	_, err = tx.Exec(ctx, insert,
		c.ID, c.UserID, c.DealID, c.Amount, string(c.Currency), c.AmountUsd,
		c.TxHash, string(c.Chain), string(domain.ContributionPending), c.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.Contribution{}, domain.Conflict(domain.CodeDuplicateTxHash,
				"a contribution for transaction %s already exists", c.TxHash)
		}
		return domain.Contribution{}, fmt.Errorf("postgres: insert contribution %s: %w", c.ID, err)
	}

	// First contribution is determined by counting existing rows, excluding
	// the one just inserted.
	peers, err := countedPeers(ctx, tx, c.DealID, c.UserID, c.ID)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("postgres: record contribution: %w", err)
	}
	newContributor := 0
	if peers == 0 {
		newContributor = 1
	}

	// Guarded aggregate update: the reservation only lands while the deal is
	// still accepting and the cap has headroom. A read-then-write cap check
	// would race; this conditional write cannot.
	tag, err := tx.Exec(ctx,
		`UPDATE deals
		 SET total_raised = total_raised + $1,
		     contributor_count = contributor_count + $2,
		     updated_at = NOW()
		 WHERE id = $3
		   AND status = ANY($4)
		   AND (hard_cap = 0 OR total_raised + $1 <= hard_cap)`,
		c.AmountUsd, newContributor, c.DealID,
		[]string{string(domain.DealStatusGuaranteed), string(domain.DealStatusFCFS)},
	)
	if err != nil {
		return domain.Contribution{}, fmt.Errorf("postgres: reserve deal aggregates: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.Contribution{}, s.classifyReservationFailure(ctx, c.DealID, c.AmountUsd)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Contribution{}, fmt.Errorf("postgres: commit record: %w", err)
	}

	c.Status = domain.ContributionPending
	c.UpdatedAt = c.CreatedAt
	return c, nil
}

// classifyReservationFailure explains a zero-row aggregate update after the
// enclosing transaction rolls back.
func (s *ContributionStore) classifyReservationFailure(ctx context.Context, dealID string, amountUsd int64) error {
	var status string
	var hardCap, totalRaised int64
	err := s.pool.QueryRow(ctx,
		`SELECT status, hard_cap, total_raised FROM deals WHERE id = $1`, dealID,
	).Scan(&status, &hardCap, &totalRaised)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("deal %s not found", dealID)
		}
		return fmt.Errorf("postgres: classify reservation failure: %w", err)
	}

	if !domain.DealStatus(status).AcceptingContributions() {
		return domain.State(domain.CodeDealNotOpen,
			"deal %s is not accepting contributions in status %s", dealID, status)
	}

	remaining := hardCap - totalRaised
	if remaining < 0 {
		remaining = 0
	}
	capErr := domain.Policy(domain.CodeExceedsHardCap,
		"contribution exceeds hard cap, %s USD remaining", domain.FormatMicro(remaining))
	capErr.Remaining = remaining
	return capErr
}

// GetByTxHash retrieves the contribution for an on-chain transaction.
func (s *ContributionStore) GetByTxHash(ctx context.Context, txHash string) (domain.Contribution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+contributionSelectCols+` FROM contributions WHERE tx_hash = $1`, txHash)

	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contribution{}, domain.NotFound("contribution for tx %s not found", txHash)
		}
		return domain.Contribution{}, fmt.Errorf("postgres: get contribution by tx %s: %w", txHash, err)
	}
	return c, nil
}

// ListByDeal returns a deal's contributions with pagination.
func (s *ContributionStore) ListByDeal(ctx context.Context, dealID string, opts domain.ListOpts) ([]domain.Contribution, error) {
	return s.list(ctx, "deal_id", dealID, opts)
}

// ListByUser returns a user's contributions with pagination.
func (s *ContributionStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Contribution, error) {
	return s.list(ctx, "user_id", userID, opts)
}

func (s *ContributionStore) list(ctx context.Context, col, val string, opts domain.ListOpts) ([]domain.Contribution, error) {
	query := `SELECT ` + contributionSelectCols + ` FROM contributions WHERE ` + col + ` = $1`
	args := []any{val}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

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
		return nil, fmt.Errorf("postgres: list contributions: %w", err)
	}
	defer rows.Close()

	var out []domain.Contribution
	for rows.Next() {
		c, err := scanContribution(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan contribution: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list contributions rows: %w", err)
	}
	return out, nil
}

// CountForUser counts a user's contributions to a deal.
func (s *ContributionStore) CountForUser(ctx context.Context, dealID, userID string) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM contributions WHERE deal_id = $1 AND user_id = $2`,
		dealID, userID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count contributions: %w", err)
	}
	return n, nil
}

// lockByTxHash reads the contribution row for update inside tx. A missing
// row is reported as (zero, false, nil): the caller treats it as a soft skip.
func lockByTxHash(ctx context.Context, tx pgx.Tx, txHash string) (domain.Contribution, bool, error) {
	row := tx.QueryRow(ctx,
		`SELECT `+contributionSelectCols+` FROM contributions WHERE tx_hash = $1 FOR UPDATE`, txHash)

	c, err := scanContribution(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Contribution{}, false, nil
		}
		return domain.Contribution{}, false, fmt.Errorf("lock contribution by tx %s: %w", txHash, err)
	}
	return c, true, nil
}

// Confirm marks the contribution CONFIRMED and credits the user's confirmed
// totals. An event that raced ahead of a FAILED resolution re-reserves the
// deal aggregates, keeping the ledger consistent under out-of-order
// delivery. Replays are no-ops.
func (s *ContributionStore) Confirm(ctx context.Context, txHash string, blockNumber int64, confirmedAt time.Time) (domain.Contribution, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: begin confirm: %w", err)
	}
	defer tx.Rollback(ctx)

	c, found, err := lockByTxHash(ctx, tx, txHash)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: confirm: %w", err)
	}
	if !found {
		return domain.Contribution{}, false, nil
	}
	if c.Status == domain.ContributionConfirmed {
		return c, false, nil
	}
	prior := c.Status

	_, err = tx.Exec(ctx,
		`UPDATE contributions
		 SET status = $1, confirmed_at = $2, block_number = $3, updated_at = NOW()
		 WHERE id = $4`,
		string(domain.ContributionConfirmed), confirmedAt, blockNumber, c.ID)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: confirm contribution %s: %w", c.ID, err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_contributed_usd = total_contributed_usd + $1, updated_at = NOW()
		 WHERE id = $2`,
		c.AmountUsd, c.UserID); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: credit user totals: %w", err)
	}

	if prior == domain.ContributionFailed || prior == domain.ContributionRefunded {
		peers, err := countedPeers(ctx, tx, c.DealID, c.UserID, c.ID)
		if err != nil {
			return domain.Contribution{}, false, fmt.Errorf("postgres: confirm: %w", err)
		}
		newContributor := 0
		if peers == 0 {
			newContributor = 1
		}
		if _, err := tx.Exec(ctx,
			`UPDATE deals
			 SET total_raised = total_raised + $1,
			     contributor_count = contributor_count + $2,
			     updated_at = NOW()
			 WHERE id = $3`,
			c.AmountUsd, newContributor, c.DealID); err != nil {
			return domain.Contribution{}, false, fmt.Errorf("postgres: re-reserve deal aggregates: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: commit confirm: %w", err)
	}

	c.Status = domain.ContributionConfirmed
	c.ConfirmedAt = &confirmedAt
	c.BlockNumber = &blockNumber
	return c, true, nil
}

// releaseAggregates debits the deal reservation held by c, decrementing the
// contributor count when this was the user's only counted contribution.
func releaseAggregates(ctx context.Context, tx pgx.Tx, c domain.Contribution) error {
	peers, err := countedPeers(ctx, tx, c.DealID, c.UserID, c.ID)
	if err != nil {
		return err
	}
	lostContributor := 0
	if peers == 0 {
		lostContributor = 1
	}

	_, err = tx.Exec(ctx,
		`UPDATE deals
		 SET total_raised = GREATEST(total_raised - $1, 0),
		     contributor_count = GREATEST(contributor_count - $2, 0),
		     updated_at = NOW()
		 WHERE id = $3`,
		c.AmountUsd, lostContributor, c.DealID)
	if err != nil {
		return fmt.Errorf("release deal aggregates: %w", err)
	}
	return nil
}

// Fail marks the contribution FAILED and releases its reservation. Replays
// and events for unknown transactions report false without error.
func (s *ContributionStore) Fail(ctx context.Context, txHash string) (domain.Contribution, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: begin fail: %w", err)
	}
	defer tx.Rollback(ctx)

	c, found, err := lockByTxHash(ctx, tx, txHash)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: fail: %w", err)
	}
	if !found {
		return domain.Contribution{}, false, nil
	}
	if c.Status == domain.ContributionFailed || c.Status == domain.ContributionRefunded {
		return c, false, nil
	}
	prior := c.Status

	if _, err := tx.Exec(ctx,
		`UPDATE contributions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(domain.ContributionFailed), c.ID); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: fail contribution %s: %w", c.ID, err)
	}

	// The row held a reservation in both PENDING and CONFIRMED states.
	c.Status = domain.ContributionFailed
	if err := releaseAggregates(ctx, tx, c); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: fail: %w", err)
	}

	if prior == domain.ContributionConfirmed {
		if _, err := tx.Exec(ctx,
			`UPDATE users SET total_contributed_usd = GREATEST(total_contributed_usd - $1, 0), updated_at = NOW()
			 WHERE id = $2`,
			c.AmountUsd, c.UserID); err != nil {
			return domain.Contribution{}, false, fmt.Errorf("postgres: debit user totals: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: commit fail: %w", err)
	}
	return c, true, nil
}

// Revert compensates a CONFIRMED contribution and writes the compliance flag
// in the same transaction. Any other prior status reports false.
func (s *ContributionStore) Revert(ctx context.Context, txHash string, flag domain.ComplianceFlag) (domain.Contribution, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: begin revert: %w", err)
	}
	defer tx.Rollback(ctx)

	c, found, err := lockByTxHash(ctx, tx, txHash)
	if err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: revert: %w", err)
	}
	if !found {
		return domain.Contribution{}, false, nil
	}
	if c.Status != domain.ContributionConfirmed {
		return c, false, nil
	}

	if _, err := tx.Exec(ctx,
		`UPDATE contributions SET status = $1, updated_at = NOW() WHERE id = $2`,
		string(domain.ContributionFailed), c.ID); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: revert contribution %s: %w", c.ID, err)
	}

	c.Status = domain.ContributionFailed
	if err := releaseAggregates(ctx, tx, c); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: revert: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE users SET total_contributed_usd = GREATEST(total_contributed_usd - $1, 0), updated_at = NOW()
		 WHERE id = $2`,
		c.AmountUsd, c.UserID); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: debit user totals: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO compliance_flags (id, user_id, deal_id, reason, severity, reference, resolved, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`,
		flag.ID, c.UserID, c.DealID, flag.Reason, string(flag.Severity), flag.Reference, flag.CreatedAt,
	); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: write compliance flag: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Contribution{}, false, fmt.Errorf("postgres: commit revert: %w", err)
	}
	return c, true, nil
}
