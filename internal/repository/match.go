package repository

import (
	"context"
	"fmt"

	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/jackc/pgx/v5"
)

const matchColumns = `id, group_id, user_ids, opt_in_ids, match_key, overlap_start, overlap_end,
	overlap_minutes, state, starts_in_minutes, created_at`

// MatchRepository handles database operations for matches
type MatchRepository struct {
	db DBTX
}

// NewMatchRepository creates a new match repository
func NewMatchRepository(db DBTX) *MatchRepository {
	return &MatchRepository{db: db}
}

// Insert creates a new match
func (r *MatchRepository) Insert(ctx context.Context, m *models.Match) error {
	query := `
		INSERT INTO matches (` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		m.ID, m.GroupID, m.UserIDs, m.OptInIDs, m.MatchKey, m.OverlapStart, m.OverlapEnd,
		m.OverlapMinutes, m.State, m.StartsInMinutes, m.CreatedAt,
	)
	if err != nil {
		return mapError(err, "match")
	}
	return nil
}

// GetByID retrieves a match by ID
func (r *MatchRepository) GetByID(ctx context.Context, id string) (*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE id = $1`
	m, err := scanMatch(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, mapError(err, "match")
	}
	return m, nil
}

// ListByGroup retrieves the matches of a group
func (r *MatchRepository) ListByGroup(ctx context.Context, groupID string) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE group_id = $1 ORDER BY overlap_start, id`
	return r.list(ctx, query, groupID)
}

// ListByUser retrieves the matches a user takes part in
func (r *MatchRepository) ListByUser(ctx context.Context, userID string) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches WHERE user_ids @> ARRAY[$1]::text[] ORDER BY overlap_start, id`
	return r.list(ctx, query, userID)
}

// ListAll retrieves every match
func (r *MatchRepository) ListAll(ctx context.Context) ([]*models.Match, error) {
	query := `SELECT ` + matchColumns + ` FROM matches ORDER BY overlap_start, id`
	return r.list(ctx, query)
}

// Update refreshes the derived fields of a match
func (r *MatchRepository) Update(ctx context.Context, id string, u models.MatchUpdate) error {
	query := `
		UPDATE matches
		SET opt_in_ids = COALESCE($1, opt_in_ids), state = $2, starts_in_minutes = $3
		WHERE id = $4
	`
	result, err := r.db.Exec(ctx, query, u.OptInIDs, u.State, u.StartsInMinutes, id)
	if err != nil {
		return fmt.Errorf("failed to update match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// Delete deletes a match by ID
func (r *MatchRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM matches WHERE id = $1`
	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete match: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	return nil
}

func (r *MatchRepository) list(ctx context.Context, query string, args ...any) ([]*models.Match, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches: %w", err)
	}

	return matches, nil
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var m models.Match
	err := row.Scan(
		&m.ID, &m.GroupID, &m.UserIDs, &m.OptInIDs, &m.MatchKey, &m.OverlapStart, &m.OverlapEnd,
		&m.OverlapMinutes, &m.State, &m.StartsInMinutes, &m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}
