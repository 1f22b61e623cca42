package repository

import (
	"context"
	"fmt"
	"time"

	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/jackc/pgx/v5"
)

const optInColumns = `id, user_id, group_id, starts_at, ends_at, status, created_at`

// OptInRepository handles database operations for opt-ins
type OptInRepository struct {
	db DBTX
}

// NewOptInRepository creates a new opt-in repository
func NewOptInRepository(db DBTX) *OptInRepository {
	return &OptInRepository{db: db}
}

// Create creates a new opt-in
func (r *OptInRepository) Create(ctx context.Context, o *models.OptIn) error {
	query := `
		INSERT INTO opt_ins (id, user_id, group_id, starts_at, ends_at, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.Exec(ctx, query, o.ID, o.UserID, o.GroupID, o.StartsAt, o.EndsAt, o.Status, o.CreatedAt)
	if err != nil {
		return mapError(err, "opt-in")
	}
	return nil
}

// GetByID retrieves an opt-in by ID
func (r *OptInRepository) GetByID(ctx context.Context, id string) (*models.OptIn, error) {
	query := `SELECT ` + optInColumns + ` FROM opt_ins WHERE id = $1`
	o, err := scanOptIn(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "opt-in")
	}
	return o, nil
}

// FindActive retrieves the active opt-in of a user in a group
func (r *OptInRepository) FindActive(ctx context.Context, userID, groupID string) (*models.OptIn, error) {
	query := `
		SELECT ` + optInColumns + `
		FROM opt_ins
		WHERE user_id = $1 AND group_id = $2 AND status = 'active'
		LIMIT 1
	`
	o, err := scanOptIn(r.db.QueryRow(ctx, query, userID, groupID))
	if err != nil {
		return nil, mapError(err, "active opt-in")
	}
	return o, nil
}

// UpdateWindow moves an opt-in to a new time window
func (r *OptInRepository) UpdateWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	query := `UPDATE opt_ins SET starts_at = $1, ends_at = $2 WHERE id = $3`
	result, err := r.db.Exec(ctx, query, startsAt, endsAt, id)
	if err != nil {
		return fmt.Errorf("failed to update opt-in window: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("opt-in %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// SetStatus updates the status of an opt-in
func (r *OptInRepository) SetStatus(ctx context.Context, id string, status models.OptInStatus) error {
	query := `UPDATE opt_ins SET status = $1 WHERE id = $2`
	result, err := r.db.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update opt-in status: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("opt-in %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ListActiveByGroup retrieves the active opt-ins of a group
func (r *OptInRepository) ListActiveByGroup(ctx context.Context, groupID string) ([]*models.OptIn, error) {
	query := `
		SELECT ` + optInColumns + `
		FROM opt_ins
		WHERE group_id = $1 AND status = 'active'
		ORDER BY created_at, id
	`
	return r.list(ctx, query, groupID)
}

// ListActiveByUser retrieves the active opt-ins of a user across groups
func (r *OptInRepository) ListActiveByUser(ctx context.Context, userID string) ([]*models.OptIn, error) {
	query := `
		SELECT ` + optInColumns + `
		FROM opt_ins
		WHERE user_id = $1 AND status = 'active'
		ORDER BY created_at, id
	`
	return r.list(ctx, query, userID)
}

// ListActive retrieves every active opt-in
func (r *OptInRepository) ListActive(ctx context.Context) ([]*models.OptIn, error) {
	query := `
		SELECT ` + optInColumns + `
		FROM opt_ins
		WHERE status = 'active'
		ORDER BY created_at, id
	`
	return r.list(ctx, query)
}

func (r *OptInRepository) list(ctx context.Context, query string, args ...any) ([]*models.OptIn, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get opt-ins: %w", err)
	}
	defer rows.Close()

	var optIns []*models.OptIn
	for rows.Next() {
		o, err := scanOptIn(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan opt-in: %w", err)
		}
		optIns = append(optIns, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating opt-ins: %w", err)
	}

	return optIns, nil
}

func scanOptIn(row pgx.Row) (*models.OptIn, error) {
	var o models.OptIn
	err := row.Scan(&o.ID, &o.UserID, &o.GroupID, &o.StartsAt, &o.EndsAt, &o.Status, &o.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &o, nil
}
