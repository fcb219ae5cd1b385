package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/launchforge/launchpad/internal/domain"
)

// NotificationStore queues user-facing notifications.
type NotificationStore struct {
	pool *pgxpool.Pool
}

// NewNotificationStore creates a new NotificationStore backed by the given pool.
func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

// Enqueue inserts a notification for later delivery.
func (s *NotificationStore) Enqueue(ctx context.Context, n domain.Notification) error {
	const query = `
		INSERT INTO notifications (id, user_id, kind, title, body, reference, read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7)`

	_, err := s.pool.Exec(ctx, query,
		n.ID, n.UserID, string(n.Kind), n.Title, n.Body, n.Reference, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: enqueue notification %s: %w", n.ID, err)
	}
	return nil
}

// ListByUser returns a user's notifications, newest first.
func (s *NotificationStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Notification, error) {
	query := `
		SELECT id, user_id, kind, title, body, reference, read, created_at
		FROM notifications WHERE user_id = $1
		ORDER BY created_at DESC`
	args := []any{userID}
	if opts.Limit > 0 {
		query += " LIMIT $2"
		args = append(args, opts.Limit)
		if opts.Offset > 0 {
			query += " OFFSET $3"
			args = append(args, opts.Offset)
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list notifications: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		var kind string
		if err := rows.Scan(&n.ID, &n.UserID, &kind, &n.Title, &n.Body,
			&n.Reference, &n.Read, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan notification: %w", err)
		}
		n.Kind = domain.NotificationKind(kind)
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list notifications rows: %w", err)
	}
	return out, nil
}

// MarkRead marks one notification as read.
func (s *NotificationStore) MarkRead(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark notification %s read: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("notification %s not found", id)
	}
	return nil
}
