package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"optin-backend/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// Pusher is the part of *apns2.Client the sender uses
type Pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// Subscriptions is the part of the push subscription store the sender uses
type Subscriptions interface {
	ListByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error)
	Delete(ctx context.Context, id string) error
}

// APNsConfig holds the token-based credentials of an APNs client
type APNsConfig struct {
	KeyFile    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// NewAPNsClient creates a token-authenticated APNs client
func NewAPNsClient(cfg APNsConfig) (*apns2.Client, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		return client.Production(), nil
	}
	return client.Development(), nil
}

// APNsSender delivers payloads to the devices users registered.
// Devices APNs reports as gone are deregistered; other failures are only reported.
type APNsSender struct {
	client Pusher
	subs   Subscriptions
	topic  string
}

// NewAPNsSender creates a new APNs sender
func NewAPNsSender(client Pusher, subs Subscriptions, topic string) *APNsSender {
	return &APNsSender{client: client, subs: subs, topic: topic}
}

// Send pushes p to every subscription of userIDs
func (s *APNsSender) Send(ctx context.Context, userIDs []string, p Payload) error {
	var errs []error
	for _, userID := range userIDs {
		subs, err := s.subs.ListByUser(ctx, userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to get subscriptions of %s: %w", userID, err))
			continue
		}
		if len(subs) == 0 {
			log.Debug().Str("user_id", userID).Msg("No push subscriptions")
			continue
		}
		for _, sub := range subs {
			if err := s.push(ctx, sub, p); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (s *APNsSender) push(ctx context.Context, sub *models.PushSubscription, p Payload) error {
	n := &apns2.Notification{
		DeviceToken: sub.DeviceToken,
		Topic:       s.topic,
		Payload: payload.NewPayload().
			AlertTitle(p.Title).
			AlertBody(p.Body).
			Sound("default").
			Custom("url", p.URL).
			Custom("icon", p.Icon),
	}

	res, err := s.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to push to user %s: %w", sub.UserID, err)
	}
	if res.Sent() {
		log.Debug().Str("user_id", sub.UserID).Str("apns_id", res.ApnsID).Msg("Notification sent")
		return nil
	}

	if gone(res) {
		log.Info().
			Str("user_id", sub.UserID).
			Str("subscription_id", sub.ID).
			Str("reason", res.Reason).
			Msg("Removing stale push subscription")
		if err := s.subs.Delete(ctx, sub.ID); err != nil {
			return fmt.Errorf("failed to remove stale subscription %s: %w", sub.ID, err)
		}
		return nil
	}

	return fmt.Errorf("apns rejected notification for user %s: %d %s", sub.UserID, res.StatusCode, res.Reason)
}

// gone reports whether the device behind a subscription will never accept pushes again
func gone(res *apns2.Response) bool {
	switch {
	case res.StatusCode == http.StatusGone:
		return true
	case res.StatusCode == http.StatusNotFound:
		return true
	case res.StatusCode == http.StatusBadRequest && res.Reason == apns2.ReasonBadDeviceToken:
		return true
	}
	return false
}
