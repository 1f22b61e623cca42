package repository

import (
	"context"
	"fmt"

	"optin-backend/internal/models"
	"optin-backend/internal/store"
)

// PushSubscriptionRepository handles database operations for push subscriptions
type PushSubscriptionRepository struct {
	db DBTX
}

// NewPushSubscriptionRepository creates a new push subscription repository
func NewPushSubscriptionRepository(db DBTX) *PushSubscriptionRepository {
	return &PushSubscriptionRepository{db: db}
}

// Upsert stores the subscription, replacing any previous one of the same user
func (r *PushSubscriptionRepository) Upsert(ctx context.Context, s *models.PushSubscription) error {
	query := `
		INSERT INTO push_subscriptions (id, user_id, device_token, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET id = EXCLUDED.id, device_token = EXCLUDED.device_token, created_at = EXCLUDED.created_at
	`
	if _, err := r.db.Exec(ctx, query, s.ID, s.UserID, s.DeviceToken, s.CreatedAt); err != nil {
		return fmt.Errorf("failed to upsert push subscription: %w", err)
	}
	return nil
}

// ListByUser retrieves the subscriptions of a user
func (r *PushSubscriptionRepository) ListByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error) {
	query := `SELECT id, user_id, device_token, created_at FROM push_subscriptions WHERE user_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get push subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*models.PushSubscription
	for rows.Next() {
		var s models.PushSubscription
		if err := rows.Scan(&s.ID, &s.UserID, &s.DeviceToken, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan push subscription: %w", err)
		}
		subs = append(subs, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating push subscriptions: %w", err)
	}

	return subs, nil
}

// Delete deletes a subscription by ID
func (r *PushSubscriptionRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM push_subscriptions WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete push subscription: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("push subscription %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteByUser deletes every subscription of a user
func (r *PushSubscriptionRepository) DeleteByUser(ctx context.Context, userID string) error {
	query := `DELETE FROM push_subscriptions WHERE user_id = $1`
	if _, err := r.db.Exec(ctx, query, userID); err != nil {
		return fmt.Errorf("failed to delete push subscriptions: %w", err)
	}
	return nil
}
