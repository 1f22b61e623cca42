package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// OptInService handles availability declared by users
type OptInService struct {
	store   store.Store
	matches *MatchService
	now     Clock
}

// NewOptInService creates a new opt-in service
func NewOptInService(st store.Store, matches *MatchService, now Clock) *OptInService {
	return &OptInService{store: st, matches: matches, now: orNow(now)}
}

// CreateOptIn declares userID available in groupID between startsAt and endsAt.
// A user has at most one active opt-in per group: an existing one is moved to
// the new window and keeps its id. The group is reconciled in the same transaction.
func (s *OptInService) CreateOptIn(ctx context.Context, userID, groupID string, startsAt, endsAt time.Time) (*models.OptIn, error) {
	startsAt = time.UnixMilli(startsAt.UnixMilli()).UTC()
	endsAt = time.UnixMilli(endsAt.UnixMilli()).UTC()
	if !endsAt.After(startsAt) {
		return nil, ErrInvalidWindow
	}

	member, err := s.store.Groups().IsMember(ctx, userID, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to check group membership: %w", err)
	}
	if !member {
		return nil, ErrNotMember
	}

	now := s.now()
	var (
		optIn *models.OptIn
		res   *ReconcileResult
	)
	err = s.store.InGroupTx(ctx, groupID, func(tx store.Repos) error {
		existing, err := tx.OptIns().FindActive(ctx, userID, groupID)
		switch {
		case err == nil:
			if err := tx.OptIns().UpdateWindow(ctx, existing.ID, startsAt, endsAt); err != nil {
				return err
			}
			existing.StartsAt, existing.EndsAt = startsAt, endsAt
			optIn = existing
		case errors.Is(err, store.ErrNotFound):
			optIn = &models.OptIn{
				ID:        uuid.New().String(),
				UserID:    userID,
				GroupID:   groupID,
				StartsAt:  startsAt,
				EndsAt:    endsAt,
				Status:    models.OptInActive,
				CreatedAt: now,
			}
			if err := tx.OptIns().Create(ctx, optIn); err != nil {
				return err
			}
		default:
			return err
		}

		res, err = s.matches.reconcile(ctx, tx, groupID, now)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save opt-in: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", groupID).
		Str("opt_in_id", optIn.ID).
		Time("starts_at", startsAt).
		Time("ends_at", endsAt).
		Msg("Opt-in saved")

	s.matches.afterCommit(ctx, res, userID)
	return optIn, nil
}

// CancelOptIn expires an opt-in of userID and reconciles its group
func (s *OptInService) CancelOptIn(ctx context.Context, userID, optInID string) error {
	optIn, err := s.store.OptIns().GetByID(ctx, optInID)
	if err != nil {
		return err
	}
	if optIn.UserID != userID {
		return ErrForbidden
	}

	now := s.now()
	var res *ReconcileResult
	err = s.store.InGroupTx(ctx, optIn.GroupID, func(tx store.Repos) error {
		if err := tx.OptIns().SetStatus(ctx, optIn.ID, models.OptInExpired); err != nil {
			return err
		}
		var err error
		res, err = s.matches.reconcile(ctx, tx, optIn.GroupID, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to cancel opt-in: %w", err)
	}

	log.Info().
		Str("user_id", userID).
		Str("group_id", optIn.GroupID).
		Str("opt_in_id", optIn.ID).
		Msg("Opt-in cancelled")

	s.matches.afterCommit(ctx, res, userID)
	return nil
}

// ListMyOptIns returns the active opt-ins of a user that have not ended
func (s *OptInService) ListMyOptIns(ctx context.Context, userID string) ([]*models.OptIn, error) {
	now := s.now()
	all, err := s.store.OptIns().ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get opt-ins: %w", err)
	}

	optIns := make([]*models.OptIn, 0, len(all))
	for _, o := range all {
		if o.EndsAt.After(now) {
			optIns = append(optIns, o)
		}
	}
	return optIns, nil
}
