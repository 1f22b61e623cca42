// Package matching computes overlapping availability windows inside a group
// and diffs them against persisted matches.
//
// Everything here is pure: the current time is always passed in, nothing
// reads the wall clock and nothing touches storage.
package matching

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"optin-backend/internal/models"
)

// DefaultMinOverlapMinutes is the shortest overlap that becomes a match
const DefaultMinOverlapMinutes = 15

const msPerMinute = int64(time.Minute / time.Millisecond)

// Segment is a sub-interval [Start, End) in unix milliseconds covered by a fixed set of users
type Segment struct {
	Start    int64
	End      int64
	UserIDs  []string
	OptInIDs []string
}

// Candidate is a match the engine derived from the current opt-ins
type Candidate struct {
	MatchKey       string
	GroupID        string
	UserIDs        []string
	OptInIDs       []string
	OverlapStart   time.Time
	OverlapEnd     time.Time
	OverlapMinutes int
}

// Engine builds candidate matches from a group's opt-ins
type Engine struct {
	minOverlapMinutes int
}

// NewEngine creates an engine dropping overlaps shorter than minOverlapMinutes
func NewEngine(minOverlapMinutes int) *Engine {
	if minOverlapMinutes <= 0 {
		minOverlapMinutes = DefaultMinOverlapMinutes
	}
	return &Engine{minOverlapMinutes: minOverlapMinutes}
}

// MinOverlapMinutes returns the configured minimum overlap
func (e *Engine) MinOverlapMinutes() int {
	return e.minOverlapMinutes
}

// Qualifying returns the opt-ins that take part in matching at now:
// active and ending strictly after now.
func Qualifying(optIns []*models.OptIn, now time.Time) []*models.OptIn {
	out := make([]*models.OptIn, 0, len(optIns))
	for _, o := range optIns {
		if o.Status == models.OptInActive && o.EndsAt.After(now) {
			out = append(out, o)
		}
	}
	return out
}

// Candidates sweeps over the boundaries of the qualifying opt-ins and returns
// the maximal windows shared by two or more users, ordered by start time.
// Windows that already ended at now are not returned.
func (e *Engine) Candidates(groupID string, optIns []*models.OptIn, now time.Time) []Candidate {
	active := Qualifying(optIns, now)
	if len(active) < 2 {
		return nil
	}

	segments := mergeSegments(buildSegments(active))

	nowMs := now.UnixMilli()
	candidates := make([]Candidate, 0, len(segments))
	for _, seg := range segments {
		minutes := int((seg.End - seg.Start) / msPerMinute)
		if minutes < e.minOverlapMinutes {
			continue
		}
		if seg.End <= nowMs {
			continue
		}
		candidates = append(candidates, Candidate{
			MatchKey:       MatchKey(groupID, seg.UserIDs, seg.Start, seg.End),
			GroupID:        groupID,
			UserIDs:        seg.UserIDs,
			OptInIDs:       seg.OptInIDs,
			OverlapStart:   time.UnixMilli(seg.Start).UTC(),
			OverlapEnd:     time.UnixMilli(seg.End).UTC(),
			OverlapMinutes: minutes,
		})
	}
	return candidates
}

// MatchKey is the stable identity of a match: group, sorted participants and window.
// userIDs must already be sorted.
func MatchKey(groupID string, userIDs []string, start, end int64) string {
	return fmt.Sprintf("%s:%s:%d:%d", groupID, strings.Join(userIDs, ","), start, end)
}

// buildSegments returns every boundary-to-boundary interval covered by at least two distinct users
func buildSegments(optIns []*models.OptIn) []Segment {
	seen := make(map[int64]struct{}, len(optIns)*2)
	boundaries := make([]int64, 0, len(optIns)*2)
	for _, o := range optIns {
		for _, b := range []int64{o.StartsAt.UnixMilli(), o.EndsAt.UnixMilli()} {
			if _, ok := seen[b]; ok {
				continue
			}
			seen[b] = struct{}{}
			boundaries = append(boundaries, b)
		}
	}
	sort.Slice(boundaries, func(i, j int) bool { return boundaries[i] < boundaries[j] })

	var segments []Segment
	for i := 0; i+1 < len(boundaries); i++ {
		start, end := boundaries[i], boundaries[i+1]
		if end <= start {
			continue
		}

		// user -> covering opt-in; the smallest id wins if a user has several
		covering := make(map[string]string)
		for _, o := range optIns {
			if o.StartsAt.UnixMilli() > start || o.EndsAt.UnixMilli() < end {
				continue
			}
			if cur, ok := covering[o.UserID]; !ok || o.ID < cur {
				covering[o.UserID] = o.ID
			}
		}
		if len(covering) < 2 {
			continue
		}

		userIDs := make([]string, 0, len(covering))
		for userID := range covering {
			userIDs = append(userIDs, userID)
		}
		sort.Strings(userIDs)

		optInIDs := make([]string, 0, len(userIDs))
		for _, userID := range userIDs {
			optInIDs = append(optInIDs, covering[userID])
		}

		segments = append(segments, Segment{Start: start, End: end, UserIDs: userIDs, OptInIDs: optInIDs})
	}
	return segments
}

// mergeSegments joins contiguous segments with the same participants
func mergeSegments(segments []Segment) []Segment {
	merged := make([]Segment, 0, len(segments))
	for _, seg := range segments {
		if n := len(merged); n > 0 {
			last := &merged[n-1]
			if last.End == seg.Start && sameIDs(last.UserIDs, seg.UserIDs) {
				last.End = seg.End
				last.OptInIDs = unionIDs(last.OptInIDs, seg.OptInIDs)
				continue
			}
		}
		merged = append(merged, seg)
	}
	return merged
}

func sameIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func unionIDs(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, id := range b {
		found := false
		for _, have := range out {
			if have == id {
				found = true
				break
			}
		}
		if !found {
			out = append(out, id)
		}
	}
	return out
}
