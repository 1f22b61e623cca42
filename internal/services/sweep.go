package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"optin-backend/internal/matching"
	"optin-backend/internal/metrics"
	"optin-backend/internal/models"
	"optin-backend/internal/store"

	"github.com/rs/zerolog/log"
)

// SweepResult summarizes one expiry sweep
type SweepResult struct {
	ExpiredOptIns  int `json:"expiredOptIns"`
	MatchesDeleted int `json:"matchesDeleted"`
}

// SweepService advances time-derived state when nobody acts:
// it expires ended opt-ins, reconciles every group with active opt-ins
// and garbage-collects matches whose window elapsed.
type SweepService struct {
	store   store.Store
	matches *MatchService
	metrics *metrics.Metrics
	now     Clock
}

// NewSweepService creates a new sweep service
func NewSweepService(st store.Store, matches *MatchService, m *metrics.Metrics, now Clock) *SweepService {
	return &SweepService{store: st, matches: matches, metrics: m, now: orNow(now)}
}

// Run performs one sweep. A group that fails is logged and skipped; the
// returned error is only set when the sweep could not start at all.
func (s *SweepService) Run(ctx context.Context) (*SweepResult, error) {
	started := time.Now()
	defer func() {
		s.metrics.SweepDuration.Observe(time.Since(started).Seconds())
	}()

	now := s.now()
	result := &SweepResult{}

	active, err := s.store.OptIns().ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active opt-ins: %w", err)
	}

	for _, groupID := range groupIDsOfOptIns(active) {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		expired, deleted, err := s.sweepGroup(ctx, groupID, now)
		if err != nil {
			s.metrics.ReconcileErrors.Inc()
			log.Error().Err(err).Str("group_id", groupID).Msg("Failed to sweep group")
			continue
		}
		result.ExpiredOptIns += expired
		result.MatchesDeleted += deleted
	}

	deleted, err := s.collectElapsed(ctx, now)
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect elapsed matches")
	}
	result.MatchesDeleted += deleted

	s.metrics.OptInsExpired.Add(float64(result.ExpiredOptIns))

	log.Info().
		Int("expired_opt_ins", result.ExpiredOptIns).
		Int("matches_deleted", result.MatchesDeleted).
		Dur("took", time.Since(started)).
		Msg("Sweep finished")

	return result, nil
}

// sweepGroup expires the ended opt-ins of a group and reconciles it in one transaction
func (s *SweepService) sweepGroup(ctx context.Context, groupID string, now time.Time) (int, int, error) {
	var (
		expired int
		res     *ReconcileResult
	)
	err := s.store.InGroupTx(ctx, groupID, func(tx store.Repos) error {
		expired = 0
		optIns, err := tx.OptIns().ListActiveByGroup(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to list opt-ins: %w", err)
		}
		for _, o := range optIns {
			if !o.EndsAt.Before(now) {
				continue
			}
			if err := tx.OptIns().SetStatus(ctx, o.ID, models.OptInExpired); err != nil {
				return fmt.Errorf("failed to expire opt-in %s: %w", o.ID, err)
			}
			expired++
		}

		res, err = s.matches.reconcile(ctx, tx, groupID, now)
		return err
	})
	if err != nil {
		return 0, 0, err
	}

	s.matches.afterCommit(ctx, res, "")
	return expired, len(res.Deleted), nil
}

// collectElapsed is the safety net over every persisted match: elapsed ones are
// deleted, the others get their time-relative fields refreshed.
func (s *SweepService) collectElapsed(ctx context.Context, now time.Time) (int, error) {
	all, err := s.store.Matches().ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list matches: %w", err)
	}

	byGroup := make(map[string]bool)
	for _, m := range all {
		byGroup[m.GroupID] = true
	}
	groupIDs := make([]string, 0, len(byGroup))
	for id := range byGroup {
		groupIDs = append(groupIDs, id)
	}
	sort.Strings(groupIDs)

	deleted := 0
	for _, groupID := range groupIDs {
		res := &ReconcileResult{GroupID: groupID}
		err := s.store.InGroupTx(ctx, groupID, func(tx store.Repos) error {
			res.Deleted, res.Elapsed, res.Updated = nil, nil, 0
			matches, err := tx.Matches().ListByGroup(ctx, groupID)
			if err != nil {
				return fmt.Errorf("failed to list matches: %w", err)
			}
			for _, m := range matches {
				if matching.Elapsed(m, now) {
					if err := tx.Matches().Delete(ctx, m.ID); err != nil {
						return fmt.Errorf("failed to delete match %s: %w", m.ID, err)
					}
					res.Deleted = append(res.Deleted, m)
					res.Elapsed = append(res.Elapsed, m)
					continue
				}
				state, startsIn := matching.State(m.OverlapStart, m.OverlapEnd, now), matching.StartsInMinutes(m.OverlapStart, now)
				if state == m.State && startsIn == m.StartsInMinutes {
					continue
				}
				if err := tx.Matches().Update(ctx, m.ID, models.MatchUpdate{State: state, StartsInMinutes: startsIn}); err != nil {
					return fmt.Errorf("failed to refresh match %s: %w", m.ID, err)
				}
				res.Updated++
			}
			return nil
		})
		if err != nil {
			s.metrics.ReconcileErrors.Inc()
			log.Error().Err(err).Str("group_id", groupID).Msg("Failed to collect elapsed matches of group")
			continue
		}
		if len(res.Deleted) > 0 {
			log.Info().Str("group_id", groupID).Int("deleted", len(res.Deleted)).Msg("Elapsed matches collected")
		}
		s.matches.afterCommit(ctx, res, "")
		deleted += len(res.Deleted)
	}
	return deleted, nil
}

func groupIDsOfOptIns(optIns []*models.OptIn) []string {
	seen := make(map[string]struct{})
	var ids []string
	for _, o := range optIns {
		if _, ok := seen[o.GroupID]; ok {
			continue
		}
		seen[o.GroupID] = struct{}{}
		ids = append(ids, o.GroupID)
	}
	sort.Strings(ids)
	return ids
}
