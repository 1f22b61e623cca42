// Package memory is an in-process store.Store used in development mode and tests.
// Writes are applied immediately: a failing InGroupTx does not roll back.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"optin-backend/internal/models"
	"optin-backend/internal/store"
)

// Store keeps every table in maps guarded by a single mutex
type Store struct {
	mu            sync.RWMutex
	optIns        map[string]*models.OptIn
	matches       map[string]*models.Match
	chats         map[string]*models.Chat
	subscriptions map[string]*models.PushSubscription
	members       map[string]map[string]bool
	groupNames    map[string]string

	locksMu    sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// New creates an empty store
func New() *Store {
	return &Store{
		optIns:        make(map[string]*models.OptIn),
		matches:       make(map[string]*models.Match),
		chats:         make(map[string]*models.Chat),
		subscriptions: make(map[string]*models.PushSubscription),
		members:       make(map[string]map[string]bool),
		groupNames:    make(map[string]string),
		groupLocks:    make(map[string]*sync.Mutex),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) OptIns() store.OptIns                       { return optIns{s} }
func (s *Store) Matches() store.Matches                     { return matches{s} }
func (s *Store) Groups() store.Groups                       { return groups{s} }
func (s *Store) Chats() store.Chats                         { return chats{s} }
func (s *Store) PushSubscriptions() store.PushSubscriptions { return subscriptions{s} }

// InGroupTx holds the group's lock while fn runs
func (s *Store) InGroupTx(ctx context.Context, groupID string, fn func(tx store.Repos) error) error {
	lock := s.groupLock(groupID)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(s)
}

func (s *Store) groupLock(groupID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.groupLocks[groupID]
	if !ok {
		lock = &sync.Mutex{}
		s.groupLocks[groupID] = lock
	}
	return lock
}

// AddMember registers userID as a member of groupID
func (s *Store) AddMember(groupID, userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members[groupID] == nil {
		s.members[groupID] = make(map[string]bool)
	}
	s.members[groupID][userID] = true
}

// SetGroupName sets the display name of groupID
func (s *Store) SetGroupName(groupID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groupNames[groupID] = name
}

func copyOptIn(o *models.OptIn) *models.OptIn {
	c := *o
	return &c
}

func copyMatch(m *models.Match) *models.Match {
	c := *m
	c.UserIDs = append([]string(nil), m.UserIDs...)
	c.OptInIDs = append([]string(nil), m.OptInIDs...)
	return &c
}

func sortOptIns(list []*models.OptIn) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func sortMatches(list []*models.Match) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].OverlapStart.Equal(list[j].OverlapStart) {
			return list[i].OverlapStart.Before(list[j].OverlapStart)
		}
		return list[i].ID < list[j].ID
	})
}

type optIns struct{ s *Store }

func (r optIns) Create(ctx context.Context, o *models.OptIn) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.optIns[o.ID]; ok {
		return fmt.Errorf("opt-in %s: %w", o.ID, store.ErrConflict)
	}
	if o.Status == models.OptInActive {
		for _, existing := range r.s.optIns {
			if existing.Status == models.OptInActive && existing.UserID == o.UserID && existing.GroupID == o.GroupID {
				return fmt.Errorf("active opt-in for user %s in group %s: %w", o.UserID, o.GroupID, store.ErrConflict)
			}
		}
	}
	r.s.optIns[o.ID] = copyOptIn(o)
	return nil
}

func (r optIns) GetByID(ctx context.Context, id string) (*models.OptIn, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	o, ok := r.s.optIns[id]
	if !ok {
		return nil, fmt.Errorf("opt-in %s: %w", id, store.ErrNotFound)
	}
	return copyOptIn(o), nil
}

func (r optIns) FindActive(ctx context.Context, userID, groupID string) (*models.OptIn, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, o := range r.s.optIns {
		if o.Status == models.OptInActive && o.UserID == userID && o.GroupID == groupID {
			return copyOptIn(o), nil
		}
	}
	return nil, fmt.Errorf("active opt-in for user %s in group %s: %w", userID, groupID, store.ErrNotFound)
}

func (r optIns) UpdateWindow(ctx context.Context, id string, startsAt, endsAt time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.optIns[id]
	if !ok {
		return fmt.Errorf("opt-in %s: %w", id, store.ErrNotFound)
	}
	o.StartsAt, o.EndsAt = startsAt, endsAt
	return nil
}

func (r optIns) SetStatus(ctx context.Context, id string, status models.OptInStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.optIns[id]
	if !ok {
		return fmt.Errorf("opt-in %s: %w", id, store.ErrNotFound)
	}
	o.Status = status
	return nil
}

func (r optIns) list(keep func(o *models.OptIn) bool) []*models.OptIn {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.OptIn
	for _, o := range r.s.optIns {
		if keep(o) {
			out = append(out, copyOptIn(o))
		}
	}
	sortOptIns(out)
	return out
}

func (r optIns) ListActiveByGroup(ctx context.Context, groupID string) ([]*models.OptIn, error) {
	return r.list(func(o *models.OptIn) bool {
		return o.Status == models.OptInActive && o.GroupID == groupID
	}), nil
}

func (r optIns) ListActiveByUser(ctx context.Context, userID string) ([]*models.OptIn, error) {
	return r.list(func(o *models.OptIn) bool {
		return o.Status == models.OptInActive && o.UserID == userID
	}), nil
}

func (r optIns) ListActive(ctx context.Context) ([]*models.OptIn, error) {
	return r.list(func(o *models.OptIn) bool { return o.Status == models.OptInActive }), nil
}

type matches struct{ s *Store }

func (r matches) Insert(ctx context.Context, m *models.Match) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[m.ID]; ok {
		return fmt.Errorf("match %s: %w", m.ID, store.ErrConflict)
	}
	r.s.matches[m.ID] = copyMatch(m)
	return nil
}

func (r matches) GetByID(ctx context.Context, id string) (*models.Match, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	m, ok := r.s.matches[id]
	if !ok {
		return nil, fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	return copyMatch(m), nil
}

func (r matches) list(keep func(m *models.Match) bool) []*models.Match {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.Match
	for _, m := range r.s.matches {
		if keep(m) {
			out = append(out, copyMatch(m))
		}
	}
	sortMatches(out)
	return out
}

func (r matches) ListByGroup(ctx context.Context, groupID string) ([]*models.Match, error) {
	return r.list(func(m *models.Match) bool { return m.GroupID == groupID }), nil
}

func (r matches) ListByUser(ctx context.Context, userID string) ([]*models.Match, error) {
	return r.list(func(m *models.Match) bool { return m.HasParticipant(userID) }), nil
}

func (r matches) ListAll(ctx context.Context) ([]*models.Match, error) {
	return r.list(func(*models.Match) bool { return true }), nil
}

func (r matches) Update(ctx context.Context, id string, u models.MatchUpdate) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.matches[id]
	if !ok {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	if u.OptInIDs != nil {
		m.OptInIDs = append([]string(nil), u.OptInIDs...)
	}
	m.State = u.State
	m.StartsInMinutes = u.StartsInMinutes
	return nil
}

func (r matches) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.matches[id]; !ok {
		return fmt.Errorf("match %s: %w", id, store.ErrNotFound)
	}
	delete(r.s.matches, id)
	return nil
}

type groups struct{ s *Store }

func (r groups) IsMember(ctx context.Context, userID, groupID string) (bool, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return r.s.members[groupID][userID], nil
}

func (r groups) Name(ctx context.Context, groupID string) (string, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	name, ok := r.s.groupNames[groupID]
	if !ok {
		return "", fmt.Errorf("group %s: %w", groupID, store.ErrNotFound)
	}
	return name, nil
}

type chats struct{ s *Store }

func (r chats) GetByMatch(ctx context.Context, matchID string) (*models.Chat, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, c := range r.s.chats {
		if c.MatchID == matchID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("chat for match %s: %w", matchID, store.ErrNotFound)
}

func (r chats) Create(ctx context.Context, c *models.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.chats {
		if existing.MatchID == c.MatchID {
			return fmt.Errorf("chat for match %s: %w", c.MatchID, store.ErrConflict)
		}
	}
	cp := *c
	r.s.chats[c.ID] = &cp
	return nil
}

type subscriptions struct{ s *Store }

func (r subscriptions) Upsert(ctx context.Context, sub *models.PushSubscription) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, existing := range r.s.subscriptions {
		if existing.UserID == sub.UserID {
			delete(r.s.subscriptions, id)
		}
	}
	cp := *sub
	r.s.subscriptions[sub.ID] = &cp
	return nil
}

func (r subscriptions) ListByUser(ctx context.Context, userID string) ([]*models.PushSubscription, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*models.PushSubscription
	for _, sub := range r.s.subscriptions {
		if sub.UserID == userID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r subscriptions) Delete(ctx context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.subscriptions[id]; !ok {
		return fmt.Errorf("push subscription %s: %w", id, store.ErrNotFound)
	}
	delete(r.s.subscriptions, id)
	return nil
}

func (r subscriptions) DeleteByUser(ctx context.Context, userID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, sub := range r.s.subscriptions {
		if sub.UserID == userID {
			delete(r.s.subscriptions, id)
		}
	}
	return nil
}
