package store

import (
	"context"
	"errors"
	"time"

	"optin-backend/internal/models"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a write would violate a uniqueness rule
var ErrConflict = errors.New("conflict")

// Store exposes persistence operations required by services.
// Implementations live in internal/repository (postgres) and internal/store/memory.
type Store interface {
	Repos

	// InGroupTx runs fn in one transaction that is serialized against every other
	// InGroupTx call for the same group. fn must only use the Repos it is given.
	InGroupTx(ctx context.Context, groupID string, fn func(tx Repos) error) error
}

// Repos groups the per-table accessors
type Repos interface {
	OptIns() OptIns
	Matches() Matches
	Groups() Groups
	Chats() Chats
	PushSubscriptions() PushSubscriptions
}

type OptIns interface {
	Create(ctx context.Context, o *models.OptIn) error
	GetByID(ctx context.Context, id string) (*models.OptIn, error)
	// FindActive returns the active opt-in of a user in a group or ErrNotFound
	FindActive(ctx context.Context, userID, groupID string) (*models.OptIn, error)
	UpdateWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error
	SetStatus(ctx context.Context, id string, status models.OptInStatus) error
	ListActiveByGroup(ctx context.Context, groupID string) ([]*models.OptIn, error)
	ListActiveByUser(ctx context.Context, userID string) ([]*models.OptIn, error)
	ListActive(ctx context.Context) ([]*models.OptIn, error)
}

type Matches interface {
	Insert(ctx context.Context, m *models.Match) error
	GetByID(ctx context.Context, id string) (*models.Match, error)
	ListByGroup(ctx context.Context, groupID string) ([]*models.Match, error)
	ListByUser(ctx context.Context, userID string) ([]*models.Match, error)
	ListAll(ctx context.Context) ([]*models.Match, error)
	Update(ctx context.Context, id string, u models.MatchUpdate) error
	Delete(ctx context.Context, id string) error
}

// Groups is read-only: groups and memberships are owned by another service
type Groups interface {
	IsMember(ctx context.Context, userID, groupID string) (bool, error)
	// Name returns the display name of a group or ErrNotFound
	Name(ctx context.Context, groupID string) (string, error)
}

type Chats interface {
	GetByMatch(ctx context.Context, matchID string) (*models.Chat, error)
	Create(ctx context.Context, c *models.Chat) error
}

type PushSubscriptions interface {
	// Upsert replaces the subscription of s.UserID
	Upsert(ctx context.Context, s *models.PushSubscription) error
	ListByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error)
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) error
}
