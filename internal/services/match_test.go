package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"optin-backend/internal/models"
	"optin-backend/internal/store"
)

func TestRecompute_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.optIn(t, "alice", "g1", 0, 120*time.Minute)
	env.optIn(t, "bob", "g1", 30*time.Minute, 90*time.Minute)
	env.optIn(t, "carol", "g1", 60*time.Minute, 150*time.Minute)
	before := env.groupMatches(t, "g1")
	require.NotEmpty(t, before)

	for i := 0; i < 2; i++ {
		res, err := env.matches.Recompute(ctx, "g1", "")
		require.NoError(t, err)
		assert.Empty(t, res.Inserted)
		assert.Empty(t, res.Deleted)
		assert.Equal(t, len(before), res.Updated)
	}

	after := env.groupMatches(t, "g1")
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].MatchKey, after[i].MatchKey)
	}
}

func TestRecompute_RefreshesTimeRelativeFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.optIn(t, "alice", "g1", 30*time.Minute, 120*time.Minute)
	env.optIn(t, "bob", "g1", 30*time.Minute, 120*time.Minute)
	m := env.groupMatches(t, "g1")[0]
	assert.Equal(t, models.MatchUpcoming, m.State)
	assert.Equal(t, 30, m.StartsInMinutes)

	env.clock.Set(t0.Add(20 * time.Minute))
	_, err := env.matches.Recompute(ctx, "g1", "")
	require.NoError(t, err)
	m = env.groupMatches(t, "g1")[0]
	assert.Equal(t, 10, m.StartsInMinutes)

	env.clock.Set(t0.Add(45 * time.Minute))
	_, err = env.matches.Recompute(ctx, "g1", "")
	require.NoError(t, err)
	m = env.groupMatches(t, "g1")[0]
	assert.Equal(t, models.MatchLive, m.State)
	assert.Equal(t, 0, m.StartsInMinutes)
}

func TestRecompute_StaleMatchNotResurrected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.optIn(t, "alice", "g1", 0, 120*time.Minute)
	env.optIn(t, "bob", "g1", 0, 120*time.Minute)
	env.optIn(t, "carol", "g1", 60*time.Minute, 120*time.Minute)
	require.NotEmpty(t, env.groupMatches(t, "g1"))

	require.NoError(t, env.optIns.CancelOptIn(ctx, "alice", a.ID))
	for i := 0; i < 2; i++ {
		_, err := env.matches.Recompute(ctx, "g1", "")
		require.NoError(t, err)
	}

	matches := env.groupMatches(t, "g1")
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"bob", "carol"}, matches[0].UserIDs)
	for _, m := range matches {
		assert.False(t, m.HasParticipant("alice"))
	}
}

func TestRecompute_GroupsAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.optIn(t, "alice", "g1", 0, 60*time.Minute)
	env.optIn(t, "bob", "g2", 0, 60*time.Minute)

	assert.Empty(t, env.groupMatches(t, "g1"))
	assert.Empty(t, env.groupMatches(t, "g2"))
}

func TestListMyMatches(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.optIn(t, "alice", "g1", 120*time.Minute, 180*time.Minute)
	env.optIn(t, "bob", "g1", 120*time.Minute, 180*time.Minute)
	env.optIn(t, "alice", "g2", 0, 60*time.Minute)
	env.optIn(t, "carol", "g2", 0, 60*time.Minute)

	mine, err := env.matches.ListMyMatches(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, "g2", mine[0].GroupID)
	assert.Equal(t, "g1", mine[1].GroupID)

	env.clock.Set(t0.Add(90 * time.Minute))
	mine, err = env.matches.ListMyMatches(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "g1", mine[0].GroupID)
	assert.Equal(t, 30, mine[0].StartsInMinutes)

	bobs, err := env.matches.ListMyMatches(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, bobs, 1)
}

func TestGetMatch_ParticipantsOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.optIn(t, "alice", "g1", 0, 60*time.Minute)
	env.optIn(t, "bob", "g1", 0, 60*time.Minute)
	m := env.groupMatches(t, "g1")[0]

	got, err := env.matches.GetMatch(ctx, "bob", m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.MatchKey, got.MatchKey)

	_, err = env.matches.GetMatch(ctx, "carol", m.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.matches.GetMatch(ctx, "bob", "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
