package repository

import (
	"context"

	"optin-backend/internal/models"
)

// ChatRepository handles database operations for chats
type ChatRepository struct {
	db DBTX
}

// NewChatRepository creates a new chat repository
func NewChatRepository(db DBTX) *ChatRepository {
	return &ChatRepository{db: db}
}

// GetByMatch retrieves the chat of a match
func (r *ChatRepository) GetByMatch(ctx context.Context, matchID string) (*models.Chat, error) {
	query := `SELECT id, match_id, created_at FROM chats WHERE match_id = $1`
	var c models.Chat
	if err := r.db.QueryRow(ctx, query, matchID).Scan(&c.ID, &c.MatchID, &c.CreatedAt); err != nil {
		return nil, mapError(err, "chat")
	}
	return &c, nil
}

// Create creates a new chat
func (r *ChatRepository) Create(ctx context.Context, c *models.Chat) error {
	query := `INSERT INTO chats (id, match_id, created_at) VALUES ($1, $2, $3)`
	if _, err := r.db.Exec(ctx, query, c.ID, c.MatchID, c.CreatedAt); err != nil {
		return mapError(err, "chat")
	}
	return nil
}
