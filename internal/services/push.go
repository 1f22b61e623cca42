package services

import (
	"context"
	"fmt"
	"strings"

	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrEmptyDeviceToken is returned when a push subscription has no device token
var ErrEmptyDeviceToken = fmt.Errorf("%w: device token is required", ErrValidation)

// PushService manages the device a user receives push notifications on
type PushService struct {
	subs store.PushSubscriptions
	now  Clock
}

// NewPushService creates a new push subscription service
func NewPushService(subs store.PushSubscriptions, now Clock) *PushService {
	return &PushService{subs: subs, now: orNow(now)}
}

// Save registers deviceToken for userID, replacing any previous device
func (s *PushService) Save(ctx context.Context, userID, deviceToken string) (*models.PushSubscription, error) {
	deviceToken = strings.TrimSpace(deviceToken)
	if deviceToken == "" {
		return nil, ErrEmptyDeviceToken
	}

	sub := &models.PushSubscription{
		ID:          uuid.New().String(),
		UserID:      userID,
		DeviceToken: deviceToken,
		CreatedAt:   s.now(),
	}
	if err := s.subs.Upsert(ctx, sub); err != nil {
		return nil, fmt.Errorf("failed to save push subscription: %w", err)
	}

	log.Info().Str("user_id", userID).Msg("Push subscription saved")
	return sub, nil
}

// Remove deregisters every device of userID
func (s *PushService) Remove(ctx context.Context, userID string) error {
	if err := s.subs.DeleteByUser(ctx, userID); err != nil {
		return fmt.Errorf("failed to remove push subscription: %w", err)
	}
	log.Info().Str("user_id", userID).Msg("Push subscription removed")
	return nil
}

// Has reports whether userID has a registered device
func (s *PushService) Has(ctx context.Context, userID string) (bool, error) {
	subs, err := s.subs.ListByUser(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("failed to get push subscription: %w", err)
	}
	return len(subs) > 0, nil
}
