package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optin-backend/internal/models"
	"optin-backend/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestOptIns_OneActivePerUserAndGroup(t *testing.T) {
	s := New()
	ctx := context.Background()

	o := &models.OptIn{ID: "o1", UserID: "alice", GroupID: "g1", StartsAt: t0, EndsAt: t0.Add(time.Hour), Status: models.OptInActive}
	require.NoError(t, s.OptIns().Create(ctx, o))

	dup := *o
	dup.ID = "o2"
	assert.ErrorIs(t, s.OptIns().Create(ctx, &dup), store.ErrConflict)

	require.NoError(t, s.OptIns().SetStatus(ctx, "o1", models.OptInExpired))
	require.NoError(t, s.OptIns().Create(ctx, &dup))

	_, err := s.OptIns().GetByID(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMatches_ReturnsCopies(t *testing.T) {
	s := New()
	ctx := context.Background()

	m := &models.Match{ID: "m1", GroupID: "g1", UserIDs: []string{"alice", "bob"}, OptInIDs: []string{"o1", "o2"}}
	require.NoError(t, s.Matches().Insert(ctx, m))
	m.UserIDs[0] = "mallory"

	got, err := s.Matches().GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, got.UserIDs)

	got.OptInIDs[0] = "changed"
	again, err := s.Matches().GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1", "o2"}, again.OptInIDs)
}

func TestMatches_UpdateKeepsOptInIDsWhenNil(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Matches().Insert(ctx, &models.Match{ID: "m1", OptInIDs: []string{"o1"}, State: models.MatchUpcoming, StartsInMinutes: 4}))
	require.NoError(t, s.Matches().Update(ctx, "m1", models.MatchUpdate{State: models.MatchLive}))

	got, err := s.Matches().GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, []string{"o1"}, got.OptInIDs)
	assert.Equal(t, models.MatchLive, got.State)
	assert.Equal(t, 0, got.StartsInMinutes)

	assert.ErrorIs(t, s.Matches().Update(ctx, "missing", models.MatchUpdate{}), store.ErrNotFound)
	require.NoError(t, s.Matches().Delete(ctx, "m1"))
	assert.ErrorIs(t, s.Matches().Delete(ctx, "m1"), store.ErrNotFound)
}

func TestGroups(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.AddMember("g1", "alice")
	s.SetGroupName("g1", "Climbing Crew")

	ok, err := s.Groups().IsMember(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Groups().IsMember(ctx, "alice", "g2")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Groups().Name(ctx, "g2")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestChats_OnePerMatch(t *testing.T) {
	s := New()
	ctx := context.Background()

	require.NoError(t, s.Chats().Create(ctx, &models.Chat{ID: "c1", MatchID: "m1"}))
	assert.ErrorIs(t, s.Chats().Create(ctx, &models.Chat{ID: "c2", MatchID: "m1"}), store.ErrConflict)

	c, err := s.Chats().GetByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c1", c.ID)
}

func TestInGroupTx_SerializesSameGroup(t *testing.T) {
	s := New()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		inside  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InGroupTx(ctx, "g1", func(tx store.Repos) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				time.Sleep(time.Millisecond)

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestInGroupTx_CancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.InGroupTx(ctx, "g1", func(tx store.Repos) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}
