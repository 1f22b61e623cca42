package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"optin-backend/internal/models"
	"optin-backend/internal/store"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

// newTestStore starts a throwaway postgres and applies the schema.
// Set OPTIN_INTEGRATION=1 to run; docker is required.
func newTestStore(t *testing.T) (*Store, *pgxpool.Pool) {
	t.Helper()
	if os.Getenv("OPTIN_INTEGRATION") != "1" {
		t.Skip("set OPTIN_INTEGRATION=1 to run postgres integration tests")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "optin",
				"POSTGRES_PASSWORD": "optin",
				"POSTGRES_DB":       "optin",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=optin password=optin dbname=optin sslmode=disable", host, port.Port())
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, Migrate(ctx, pool))
	// Idempotent
	require.NoError(t, Migrate(ctx, pool))

	_, err = pool.Exec(ctx, `
		INSERT INTO groups (id, name) VALUES ('g1', 'Climbing Crew');
		INSERT INTO group_members (group_id, user_id) VALUES ('g1', 'alice'), ('g1', 'bob');
	`)
	require.NoError(t, err)

	return NewStore(pool), pool
}

func TestPostgres_Groups(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := st.Groups().IsMember(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.Groups().IsMember(ctx, "carol", "g1")
	require.NoError(t, err)
	assert.False(t, ok)

	name, err := st.Groups().Name(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, "Climbing Crew", name)

	_, err = st.Groups().Name(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_OptIns(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	o := &models.OptIn{
		ID: "o1", UserID: "alice", GroupID: "g1",
		StartsAt: t0, EndsAt: t0.Add(time.Hour),
		Status: models.OptInActive, CreatedAt: t0,
	}
	require.NoError(t, st.OptIns().Create(ctx, o))

	dup := *o
	dup.ID = "o2"
	assert.ErrorIs(t, st.OptIns().Create(ctx, &dup), store.ErrConflict)

	found, err := st.OptIns().FindActive(ctx, "alice", "g1")
	require.NoError(t, err)
	assert.Equal(t, "o1", found.ID)
	assert.True(t, found.EndsAt.Equal(t0.Add(time.Hour)))

	require.NoError(t, st.OptIns().UpdateWindow(ctx, "o1", t0.Add(time.Hour), t0.Add(2*time.Hour)))
	got, err := st.OptIns().GetByID(ctx, "o1")
	require.NoError(t, err)
	assert.True(t, got.StartsAt.Equal(t0.Add(time.Hour)))

	require.NoError(t, st.OptIns().SetStatus(ctx, "o1", models.OptInExpired))
	_, err = st.OptIns().FindActive(ctx, "alice", "g1")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The slot is free again once the previous opt-in expired
	require.NoError(t, st.OptIns().Create(ctx, &dup))
	active, err := st.OptIns().ListActiveByGroup(ctx, "g1")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "o2", active[0].ID)
}

func TestPostgres_Matches(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	m := &models.Match{
		ID: "m1", GroupID: "g1",
		UserIDs: []string{"alice", "bob"}, OptInIDs: []string{"o1", "o2"},
		MatchKey:     "g1:alice,bob:1:2",
		OverlapStart: t0, OverlapEnd: t0.Add(30 * time.Minute), OverlapMinutes: 30,
		State: models.MatchUpcoming, StartsInMinutes: 5, CreatedAt: t0,
	}
	require.NoError(t, st.Matches().Insert(ctx, m))

	mine, err := st.Matches().ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, []string{"alice", "bob"}, mine[0].UserIDs)

	none, err := st.Matches().ListByUser(ctx, "carol")
	require.NoError(t, err)
	assert.Empty(t, none)

	require.NoError(t, st.Matches().Update(ctx, "m1", models.MatchUpdate{State: models.MatchLive}))
	got, err := st.Matches().GetByID(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, models.MatchLive, got.State)
	assert.Equal(t, 0, got.StartsInMinutes)
	assert.Equal(t, []string{"o1", "o2"}, got.OptInIDs)

	require.NoError(t, st.Matches().Delete(ctx, "m1"))
	assert.ErrorIs(t, st.Matches().Delete(ctx, "m1"), store.ErrNotFound)
	_, err = st.Matches().GetByID(ctx, "m1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_InGroupTxRollsBack(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := st.InGroupTx(ctx, "g1", func(tx store.Repos) error {
		require.NoError(t, tx.OptIns().Create(ctx, &models.OptIn{
			ID: "o1", UserID: "alice", GroupID: "g1",
			StartsAt: t0, EndsAt: t0.Add(time.Hour),
			Status: models.OptInActive, CreatedAt: t0,
		}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = st.OptIns().GetByID(ctx, "o1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestPostgres_InGroupTxSerializesGroup(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		_ = st.InGroupTx(ctx, "g1", func(tx store.Repos) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	second := make(chan time.Time, 1)
	go func() {
		_ = st.InGroupTx(ctx, "g1", func(tx store.Repos) error {
			second <- time.Now()
			return nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	released := time.Now()
	close(release)
	<-done

	select {
	case at := <-second:
		assert.False(t, at.Before(released))
	case <-time.After(5 * time.Second):
		t.Fatal("second transaction never ran")
	}
}

func TestPostgres_ChatsAndSubscriptions(t *testing.T) {
	st, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, st.Chats().Create(ctx, &models.Chat{ID: "c1", MatchID: "m1", CreatedAt: t0}))
	assert.ErrorIs(t, st.Chats().Create(ctx, &models.Chat{ID: "c2", MatchID: "m1", CreatedAt: t0}), store.ErrConflict)
	chat, err := st.Chats().GetByMatch(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "c1", chat.ID)

	subs := st.PushSubscriptions()
	require.NoError(t, subs.Upsert(ctx, &models.PushSubscription{ID: "s1", UserID: "alice", DeviceToken: "d1", CreatedAt: t0}))
	require.NoError(t, subs.Upsert(ctx, &models.PushSubscription{ID: "s2", UserID: "alice", DeviceToken: "d2", CreatedAt: t0}))
	list, err := subs.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "s2", list[0].ID)
	assert.Equal(t, "d2", list[0].DeviceToken)

	require.NoError(t, subs.Delete(ctx, "s2"))
	assert.ErrorIs(t, subs.Delete(ctx, "s2"), store.ErrNotFound)
}
