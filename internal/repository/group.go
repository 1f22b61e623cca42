package repository

import (
	"context"
	"fmt"
)

// GroupRepository reads group data owned by the groups service
type GroupRepository struct {
	db DBTX
}

// NewGroupRepository creates a new group repository
func NewGroupRepository(db DBTX) *GroupRepository {
	return &GroupRepository{db: db}
}

// IsMember checks if a user belongs to a group
func (r *GroupRepository) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`
	var exists bool
	err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check group membership: %w", err)
	}
	return exists, nil
}

// Name retrieves the display name of a group
func (r *GroupRepository) Name(ctx context.Context, groupID string) (string, error) {
	query := `SELECT name FROM groups WHERE id = $1`
	var name string
	if err := r.db.QueryRow(ctx, query, groupID).Scan(&name); err != nil {
		return "", mapError(err, "group")
	}
	return name, nil
}
