package models

import "time"

// OptInStatus is the lifecycle status of an opt-in
type OptInStatus string

const (
	OptInActive  OptInStatus = "active"
	OptInExpired OptInStatus = "expired"
)

// MatchState is the time-relative state of a match
type MatchState string

const (
	MatchUpcoming MatchState = "upcoming"
	MatchLive     MatchState = "live"
)

// OptIn represents a window of availability a user declared in a group
type OptIn struct {
	ID        string      `json:"id"`
	UserID    string      `json:"user_id"`
	GroupID   string      `json:"group_id"`
	StartsAt  time.Time   `json:"starts_at"`
	EndsAt    time.Time   `json:"ends_at"`
	Status    OptInStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

// Match represents a set of users whose opt-ins overlap in a group
type Match struct {
	ID              string     `json:"id"`
	GroupID         string     `json:"group_id"`
	UserIDs         []string   `json:"user_ids"`
	OptInIDs        []string   `json:"opt_in_ids"`
	MatchKey        string     `json:"match_key"`
	OverlapStart    time.Time  `json:"overlap_start"`
	OverlapEnd      time.Time  `json:"overlap_end"`
	OverlapMinutes  int        `json:"overlap_minutes"`
	State           MatchState `json:"state"`
	StartsInMinutes int        `json:"starts_in_minutes"`
	CreatedAt       time.Time  `json:"created_at"`
}

// HasParticipant reports whether userID takes part in the match
func (m *Match) HasParticipant(userID string) bool {
	for _, id := range m.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// MatchUpdate carries the fields reconciliation refreshes on an existing match.
// A nil OptInIDs leaves the stored opt-in ids untouched.
type MatchUpdate struct {
	OptInIDs        []string
	State           MatchState
	StartsInMinutes int
}

// Chat represents the conversation attached to a match
type Chat struct {
	ID        string    `json:"id"`
	MatchID   string    `json:"match_id"`
	CreatedAt time.Time `json:"created_at"`
}

// PushSubscription represents a device registered for push notifications
type PushSubscription struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	DeviceToken string    `json:"device_token"`
	CreatedAt   time.Time `json:"created_at"`
}

// User is an identity issued by the token service. Profiles live elsewhere.
type User struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	CreatedAt time.Time `json:"created_at"`
}
