package matching

import (
	"time"

	"optin-backend/internal/models"
)

// Update pairs an existing match with the fields it must be refreshed with
type Update struct {
	Match  *models.Match
	Fields models.MatchUpdate
}

// Plan is the set of changes that converge persisted matches onto the candidates
type Plan struct {
	Delete []*models.Match
	Update []Update
	Insert []*models.Match
}

// Empty reports whether the plan changes nothing structurally
func (p Plan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Insert) == 0
}

// Diff compares existing matches of a group with freshly built candidates by match key.
// Existing matches without a candidate are deleted, and so are duplicates sharing a key
// (only the oldest record survives). Candidates with a record are refreshed in place,
// the rest become new matches with ids assigned by newID.
func Diff(existing []*models.Match, candidates []Candidate, now time.Time, newID func() string) Plan {
	var plan Plan

	wanted := make(map[string]Candidate, len(candidates))
	for _, c := range candidates {
		wanted[c.MatchKey] = c
	}

	kept := make(map[string]*models.Match, len(existing))
	for _, m := range existing {
		if _, ok := wanted[m.MatchKey]; !ok {
			plan.Delete = append(plan.Delete, m)
			continue
		}
		if prev, dup := kept[m.MatchKey]; dup {
			if m.CreatedAt.Before(prev.CreatedAt) {
				kept[m.MatchKey] = m
				plan.Delete = append(plan.Delete, prev)
			} else {
				plan.Delete = append(plan.Delete, m)
			}
			continue
		}
		kept[m.MatchKey] = m
	}

	for _, c := range candidates {
		if m, ok := kept[c.MatchKey]; ok {
			plan.Update = append(plan.Update, Update{
				Match: m,
				Fields: models.MatchUpdate{
					OptInIDs:        c.OptInIDs,
					State:           State(c.OverlapStart, c.OverlapEnd, now),
					StartsInMinutes: StartsInMinutes(c.OverlapStart, now),
				},
			})
			continue
		}
		plan.Insert = append(plan.Insert, &models.Match{
			ID:              newID(),
			GroupID:         c.GroupID,
			UserIDs:         c.UserIDs,
			OptInIDs:        c.OptInIDs,
			MatchKey:        c.MatchKey,
			OverlapStart:    c.OverlapStart,
			OverlapEnd:      c.OverlapEnd,
			OverlapMinutes:  c.OverlapMinutes,
			State:           State(c.OverlapStart, c.OverlapEnd, now),
			StartsInMinutes: StartsInMinutes(c.OverlapStart, now),
			CreatedAt:       now,
		})
	}
	return plan
}
