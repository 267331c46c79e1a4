// Package scheduler owns the in-memory job registry and the time-driven
// dispatch of scheduled trigger firings.
//
// One goroutine serves each registered job, so firings for a single job are
// strictly sequential: a firing never starts before the previous firing's
// callback has returned. Firings across distinct jobs are concurrent.
package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/cron"
)

// FireFunc is invoked once per due occurrence with the job's id. Errors are
// logged by the core and never propagated to other jobs.
type FireFunc func(ctx context.Context, jobID uuid.UUID) error

type JobState string

const (
	// JobStatePending is the resting state between occurrences.
	JobStatePending JobState = "pending"
	// JobStateFiring means the job's callback is currently running.
	JobStateFiring JobState = "firing"
	// JobStateCancelled is terminal.
	JobStateCancelled JobState = "cancelled"
)

// Core is the single dispatch authority of the process. It is constructed
// once at the composition root and handed to the trigger registry.
type Core struct {
	mu     sync.Mutex
	jobs   map[uuid.UUID]*job
	closed bool

	clock func() time.Time
	wg    sync.WaitGroup
}

type job struct {
	id    uuid.UUID
	sched cron.Schedule
	fire  FireFunc

	cancel chan struct{}
	state  JobState // guarded by Core.mu
}

func New() *Core {
	return &Core{
		jobs:  make(map[uuid.UUID]*job),
		clock: time.Now,
	}
}

// WithClock overrides the time source. Only for tests.
func (c *Core) WithClock(clock func() time.Time) *Core {
	c.clock = clock
	return c
}

// Register starts dispatching for jobID on the given schedule. An existing
// job with the same id is cancelled and replaced, so re-registration is
// idempotent rather than an error.
func (c *Core) Register(jobID uuid.UUID, sched cron.Schedule, fire FireFunc) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		log.Printf("scheduler: register after shutdown ignored (job=%s)", jobID)
		return
	}

	if old, ok := c.jobs[jobID]; ok {
		old.state = JobStateCancelled
		close(old.cancel)
		log.Printf("scheduler: job=%s replaced", jobID)
	}

	j := &job{
		id:     jobID,
		sched:  sched,
		fire:   fire,
		cancel: make(chan struct{}),
		state:  JobStatePending,
	}
	c.jobs[jobID] = j
	c.wg.Add(1)
	c.mu.Unlock()

	go c.run(j)
}

// Cancel stops all future occurrences of jobID. An in-flight firing
// completes normally. Cancelling an unknown job is a no-op, not an error.
func (c *Core) Cancel(jobID uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	j, ok := c.jobs[jobID]
	if !ok {
		return
	}
	j.state = JobStateCancelled
	close(j.cancel)
	delete(c.jobs, jobID)
}

// State reports a registered job's state.
func (c *Core) State(jobID uuid.UUID) (JobState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return "", false
	}
	return j.state, true
}

// Len reports the number of live jobs.
func (c *Core) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.jobs)
}

// Shutdown cancels every job and waits for in-flight firings to complete,
// up to ctx's deadline.
func (c *Core) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	for _, j := range c.jobs {
		j.state = JobStateCancelled
		close(j.cancel)
	}
	c.jobs = make(map[uuid.UUID]*job)
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Core) run(j *job) {
	defer c.wg.Done()

	for {
		now := c.clock()
		next := j.sched.Next(now)
		wait := next.Sub(now)
		if wait < 0 {
			wait = 0
		}

		timer := time.NewTimer(wait)
		select {
		case <-j.cancel:
			timer.Stop()
			return
		case <-timer.C:
		}

		if !c.transition(j, JobStatePending, JobStateFiring) {
			return
		}
		c.invoke(j)
		if !c.transition(j, JobStateFiring, JobStatePending) {
			return
		}
	}
}

// transition moves j from one state to the next; it reports false if the
// job was cancelled in the meantime.
func (c *Core) transition(j *job, from, to JobState) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if j.state != from {
		return false
	}
	j.state = to
	return true
}

// invoke runs the firing callback, containing both errors and panics so one
// job can never crash the dispatch of others.
func (c *Core) invoke(j *job) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: job=%s callback panic: %v", j.id, r)
		}
	}()

	if err := j.fire(context.Background(), j.id); err != nil {
		log.Printf("scheduler: job=%s fire error: %v", j.id, err)
	}
}
