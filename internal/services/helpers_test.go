package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"optin-backend/internal/matching"
	"optin-backend/internal/metrics"
	"optin-backend/internal/models"
	"optin-backend/internal/notify"
	"optin-backend/internal/store/memory"
)

var t0 = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type scheduledJob struct {
	delay time.Duration
	name  string
	job   notify.Job
}

type fakeScheduler struct {
	mu   sync.Mutex
	jobs []scheduledJob
}

func (f *fakeScheduler) After(delay time.Duration, name string, job notify.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, scheduledJob{delay: delay, name: name, job: job})
}

func (f *fakeScheduler) scheduled() []scheduledJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]scheduledJob(nil), f.jobs...)
}

// fire runs every scheduled job and forgets them
func (f *fakeScheduler) fire(ctx context.Context) {
	f.mu.Lock()
	jobs := f.jobs
	f.jobs = nil
	f.mu.Unlock()
	for _, j := range jobs {
		j.job(ctx)
	}
}

type sent struct {
	userIDs []string
	payload notify.Payload
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) Send(ctx context.Context, userIDs []string, p notify.Payload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{userIDs: append([]string(nil), userIDs...), payload: p})
	return f.err
}

func (f *fakeSender) all() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeObserver struct {
	mu    sync.Mutex
	calls [][]string
}

func (f *fakeObserver) MatchesChanged(userIDs []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userIDs)
}

type fakeArchiver struct {
	mu       sync.Mutex
	archived []*models.Match
}

func (f *fakeArchiver) Archive(ctx context.Context, m *models.Match) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.archived = append(f.archived, m)
	return nil
}

type testEnv struct {
	store    *memory.Store
	clock    *fakeClock
	jobs     *fakeScheduler
	sender   *fakeSender
	metrics  *metrics.Metrics
	observer *fakeObserver
	archiver *fakeArchiver
	matches  *MatchService
	optIns   *OptInService
	sweep    *SweepService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		store:    memory.New(),
		clock:    &fakeClock{now: t0},
		jobs:     &fakeScheduler{},
		sender:   &fakeSender{},
		observer: &fakeObserver{},
		archiver: &fakeArchiver{},
	}
	env.store.SetGroupName("g1", "Climbing Crew")
	for _, u := range []string{"alice", "bob", "carol"} {
		env.store.AddMember("g1", u)
		env.store.AddMember("g2", u)
	}

	m := metrics.New()
	env.metrics = m
	channels := notify.Multi{{Name: "test", Sender: env.sender}}
	notifier := NewNotificationScheduler(env.store, channels, env.jobs, nil, m, env.clock.Now)
	env.matches = NewMatchService(env.store, matching.NewEngine(15), notifier, m, env.observer, env.archiver, env.clock.Now)
	env.optIns = NewOptInService(env.store, env.matches, env.clock.Now)
	env.sweep = NewSweepService(env.store, env.matches, m, env.clock.Now)
	return env
}

func (e *testEnv) optIn(t *testing.T, userID, groupID string, start, end time.Duration) *models.OptIn {
	t.Helper()
	o, err := e.optIns.CreateOptIn(context.Background(), userID, groupID, t0.Add(start), t0.Add(end))
	if err != nil {
		t.Fatalf("create opt-in for %s: %v", userID, err)
	}
	return o
}

func (e *testEnv) groupMatches(t *testing.T, groupID string) []*models.Match {
	t.Helper()
	list, err := e.store.Matches().ListByGroup(context.Background(), groupID)
	if err != nil {
		t.Fatalf("list matches: %v", err)
	}
	return list
}
