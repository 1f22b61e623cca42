package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Job is a one-shot callback run after a delay
type Job func(ctx context.Context)

// Scheduler runs jobs once after a delay. Jobs cannot be cancelled individually;
// a job must check at fire time whether it is still relevant.
type Scheduler interface {
	After(delay time.Duration, name string, job Job)
}

// DelayQueue is an in-process Scheduler backed by timers
type DelayQueue struct {
	mu      sync.Mutex
	nextID  uint64
	timers  map[uint64]*time.Timer
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
	timeout time.Duration
}

// NewDelayQueue creates a queue whose jobs each get jobTimeout to finish
func NewDelayQueue(jobTimeout time.Duration) *DelayQueue {
	if jobTimeout <= 0 {
		jobTimeout = 30 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &DelayQueue{
		timers:  make(map[uint64]*time.Timer),
		ctx:     ctx,
		cancel:  cancel,
		timeout: jobTimeout,
	}
}

// After schedules job to run once after delay. Negative delays run immediately.
func (q *DelayQueue) After(delay time.Duration, name string, job Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		log.Warn().Str("job", name).Msg("Delay queue stopped, dropping job")
		return
	}
	if delay < 0 {
		delay = 0
	}

	id := q.nextID
	q.nextID++
	q.wg.Add(1)
	q.timers[id] = time.AfterFunc(delay, func() {
		defer q.wg.Done()
		q.mu.Lock()
		delete(q.timers, id)
		q.mu.Unlock()

		ctx, cancel := context.WithTimeout(q.ctx, q.timeout)
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("job", name).Msg("Delayed job panicked")
			}
		}()
		job(ctx)
	})

	log.Debug().Str("job", name).Dur("delay", delay).Msg("Job scheduled")
}

// Pending returns the number of jobs that have not fired yet
func (q *DelayQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// Stop drops every pending job and waits for running ones to return
func (q *DelayQueue) Stop() {
	q.mu.Lock()
	q.stopped = true
	for id, t := range q.timers {
		if t.Stop() {
			q.wg.Done()
		}
		delete(q.timers, id)
	}
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}
