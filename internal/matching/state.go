package matching

import (
	"time"

	"optin-backend/internal/models"
)

// State derives the time-relative state of a window at now.
// There is no ended state: callers delete matches whose window elapsed.
func State(overlapStart, overlapEnd, now time.Time) models.MatchState {
	if now.Before(overlapStart) {
		return models.MatchUpcoming
	}
	return models.MatchLive
}

// StartsInMinutes returns the whole minutes until overlapStart, rounded up, never negative
func StartsInMinutes(overlapStart, now time.Time) int {
	ms := overlapStart.UnixMilli() - now.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return int((ms + msPerMinute - 1) / msPerMinute)
}

// Refresh recomputes the time-relative fields of m at now
func Refresh(m *models.Match, now time.Time) {
	m.State = State(m.OverlapStart, m.OverlapEnd, now)
	m.StartsInMinutes = StartsInMinutes(m.OverlapStart, now)
}

// Elapsed reports whether the match window is fully in the past at now
func Elapsed(m *models.Match, now time.Time) bool {
	return !m.OverlapEnd.After(now)
}
