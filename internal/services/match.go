package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"optin-backend/internal/matching"
	"optin-backend/internal/metrics"
	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MatchObserver is told which users saw their matches change
type MatchObserver interface {
	MatchesChanged(userIDs []string)
}

// MatchArchiver keeps a copy of matches whose window elapsed
type MatchArchiver interface {
	Archive(ctx context.Context, m *models.Match) error
}

// ReconcileResult describes what one reconciliation of a group changed
type ReconcileResult struct {
	GroupID  string
	Inserted []*models.Match
	Updated  int
	Deleted  []*models.Match
	// Elapsed is the subset of Deleted whose window was over
	Elapsed []*models.Match
}

// MatchService keeps the persisted matches of each group in line with its opt-ins
type MatchService struct {
	store    store.Store
	engine   *matching.Engine
	notifier *NotificationScheduler
	metrics  *metrics.Metrics
	observer MatchObserver
	archiver MatchArchiver
	now      Clock
}

// NewMatchService creates a new match service. observer and archiver may be nil.
func NewMatchService(
	st store.Store,
	engine *matching.Engine,
	notifier *NotificationScheduler,
	m *metrics.Metrics,
	observer MatchObserver,
	archiver MatchArchiver,
	now Clock,
) *MatchService {
	return &MatchService{
		store:    st,
		engine:   engine,
		notifier: notifier,
		metrics:  m,
		observer: observer,
		archiver: archiver,
		now:      orNow(now),
	}
}

// Recompute reconciles the matches of a group against its active opt-ins and
// announces the new ones. triggeredBy is the user whose action caused the
// recompute, empty for time-driven recomputes.
func (s *MatchService) Recompute(ctx context.Context, groupID, triggeredBy string) (*ReconcileResult, error) {
	now := s.now()

	var res *ReconcileResult
	err := s.store.InGroupTx(ctx, groupID, func(tx store.Repos) error {
		var err error
		res, err = s.reconcile(ctx, tx, groupID, now)
		return err
	})
	if err != nil {
		s.metrics.ReconcileErrors.Inc()
		return nil, fmt.Errorf("failed to reconcile group %s: %w", groupID, err)
	}

	s.afterCommit(ctx, res, triggeredBy)
	return res, nil
}

// reconcile must run inside the group's transaction
func (s *MatchService) reconcile(ctx context.Context, tx store.Repos, groupID string, now time.Time) (*ReconcileResult, error) {
	optIns, err := tx.OptIns().ListActiveByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list opt-ins: %w", err)
	}
	existing, err := tx.Matches().ListByGroup(ctx, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}

	candidates := s.engine.Candidates(groupID, optIns, now)
	plan := matching.Diff(existing, candidates, now, func() string { return uuid.New().String() })

	res := &ReconcileResult{GroupID: groupID}
	for _, m := range plan.Delete {
		if err := tx.Matches().Delete(ctx, m.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("failed to delete match %s: %w", m.ID, err)
		}
		res.Deleted = append(res.Deleted, m)
		if matching.Elapsed(m, now) {
			res.Elapsed = append(res.Elapsed, m)
		}
	}
	for _, u := range plan.Update {
		if err := tx.Matches().Update(ctx, u.Match.ID, u.Fields); err != nil {
			return nil, fmt.Errorf("failed to update match %s: %w", u.Match.ID, err)
		}
		res.Updated++
	}
	for _, m := range plan.Insert {
		if err := tx.Matches().Insert(ctx, m); err != nil {
			return nil, fmt.Errorf("failed to insert match %s: %w", m.MatchKey, err)
		}
		res.Inserted = append(res.Inserted, m)
	}

	log.Debug().
		Str("group_id", groupID).
		Int("opt_ins", len(optIns)).
		Int("inserted", len(res.Inserted)).
		Int("updated", res.Updated).
		Int("deleted", len(res.Deleted)).
		Msg("Group reconciled")

	return res, nil
}

// afterCommit runs the side effects of a committed reconciliation
func (s *MatchService) afterCommit(ctx context.Context, res *ReconcileResult, triggeredBy string) {
	if res == nil {
		return
	}

	s.metrics.MatchesCreated.Add(float64(len(res.Inserted)))
	s.metrics.MatchesDeleted.Add(float64(len(res.Deleted)))

	for _, m := range res.Inserted {
		log.Info().
			Str("group_id", m.GroupID).
			Str("match_id", m.ID).
			Strs("user_ids", m.UserIDs).
			Time("overlap_start", m.OverlapStart).
			Time("overlap_end", m.OverlapEnd).
			Msg("Match created")
		s.notifier.MatchCreated(m, triggeredBy)
	}

	if s.archiver != nil {
		for _, m := range res.Elapsed {
			if err := s.archiver.Archive(ctx, m); err != nil {
				log.Error().Err(err).Str("match_id", m.ID).Msg("Failed to archive match")
			}
		}
	}

	if s.observer != nil {
		if users := affectedUsers(res); len(users) > 0 {
			s.observer.MatchesChanged(users)
		}
	}
}

func affectedUsers(res *ReconcileResult) []string {
	seen := make(map[string]struct{})
	var users []string
	for _, list := range [][]*models.Match{res.Inserted, res.Deleted} {
		for _, m := range list {
			for _, id := range m.UserIDs {
				if _, ok := seen[id]; ok {
					continue
				}
				seen[id] = struct{}{}
				users = append(users, id)
			}
		}
	}
	sort.Strings(users)
	return users
}

// ListMyMatches returns the matches of a user that have not ended, soonest first
func (s *MatchService) ListMyMatches(ctx context.Context, userID string) ([]*models.Match, error) {
	now := s.now()
	all, err := s.store.Matches().ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get matches: %w", err)
	}

	matches := make([]*models.Match, 0, len(all))
	for _, m := range all {
		if matching.Elapsed(m, now) {
			continue
		}
		matching.Refresh(m, now)
		matches = append(matches, m)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].OverlapStart.Before(matches[j].OverlapStart)
	})
	return matches, nil
}

// GetMatch returns a match the user takes part in
func (s *MatchService) GetMatch(ctx context.Context, userID, matchID string) (*models.Match, error) {
	m, err := s.store.Matches().GetByID(ctx, matchID)
	if err != nil {
		return nil, err
	}
	if !m.HasParticipant(userID) {
		return nil, ErrForbidden
	}
	matching.Refresh(m, s.now())
	return m, nil
}
