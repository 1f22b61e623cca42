package services

import (
	"context"
	"errors"
	"fmt"

	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ChatService hands out the conversation attached to a match
type ChatService struct {
	store store.Repos
	now   Clock
}

// NewChatService creates a new chat service
func NewChatService(st store.Repos, now Clock) *ChatService {
	return &ChatService{store: st, now: orNow(now)}
}

// GetOrCreateChat returns the chat of a match, creating it on first use.
// Only participants of the match may open it.
func (s *ChatService) GetOrCreateChat(ctx context.Context, userID, matchID string) (*models.Chat, error) {
	m, err := s.store.Matches().GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasParticipant(userID) {
		return nil, ErrForbidden
	}

	chat, err := s.store.Chats().GetByMatch(ctx, matchID)
	if err == nil {
		return chat, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}

	chat = &models.Chat{
		ID:        uuid.New().String(),
		MatchID:   matchID,
		CreatedAt: s.now(),
	}
	if err := s.store.Chats().Create(ctx, chat); err != nil {
		// Another participant opened it first
		if errors.Is(err, store.ErrConflict) {
			return s.store.Chats().GetByMatch(ctx, matchID)
		}
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	log.Info().Str("match_id", matchID).Str("chat_id", chat.ID).Msg("Chat created")
	return chat, nil
}
