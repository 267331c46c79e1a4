// Package registry owns trigger definitions and their live scheduled jobs.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/djlord-it/easy-trigger/internal/cron"
	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
	"github.com/djlord-it/easy-trigger/internal/schema"
)

// ErrNotFound is returned when a trigger does not exist or is not owned by
// the caller. Store implementations map their no-rows condition to it.
var ErrNotFound = errors.New("trigger not found")

// ErrTestRateLimited is returned when an owner exceeds the test-firing rate.
var ErrTestRateLimited = errors.New("too many test firings, slow down")

type Store interface {
	CreateTrigger(ctx context.Context, trigger domain.Trigger) error
	GetTrigger(ctx context.Context, userID, triggerID uuid.UUID) (domain.Trigger, error)
	GetTriggerByID(ctx context.Context, triggerID uuid.UUID) (domain.Trigger, error)
	ListTriggers(ctx context.Context, userID uuid.UUID) ([]domain.Trigger, error)
	ListScheduledTriggers(ctx context.Context) ([]domain.Trigger, error)
	DeleteTrigger(ctx context.Context, userID, triggerID uuid.UUID) error
	CreateEvent(ctx context.Context, event domain.Event) error
}

// JobScheduler is the slice of the scheduler core the registry uses.
type JobScheduler interface {
	Register(jobID uuid.UUID, sched cron.Schedule, fire scheduler.FireFunc)
	Cancel(jobID uuid.UUID)
}

// MetricsSink records firing metrics. Implementations must not block.
type MetricsSink interface {
	TriggerFired(kind string)
	FireError()
}

type Registry struct {
	store Store
	sched JobScheduler
	clock func() time.Time

	metrics MetricsSink // optional, nil = disabled

	limiterMu sync.Mutex
	limiters  map[uuid.UUID]*rate.Limiter
	testRate  rate.Limit
	testBurst int
}

func New(store Store, sched JobScheduler) *Registry {
	return &Registry{
		store: store,
		sched: sched,
		clock: time.Now,
	}
}

// WithClock overrides the time source. Only for tests.
func (r *Registry) WithClock(clock func() time.Time) *Registry {
	r.clock = clock
	return r
}

// WithMetrics attaches a metrics sink.
func (r *Registry) WithMetrics(sink MetricsSink) *Registry {
	r.metrics = sink
	return r
}

// WithTestRateLimit enables per-owner rate limiting of test firings.
func (r *Registry) WithTestRateLimit(limit rate.Limit, burst int) *Registry {
	r.testRate = limit
	r.testBurst = burst
	r.limiters = make(map[uuid.UUID]*rate.Limiter)
	return r
}

// CreateScheduled parses the schedule, persists the trigger and registers a
// job for it. If the schedule's field grammar turns out to be invalid at
// activation the persisted row is rolled back, so callers never observe a
// trigger without a job.
func (r *Registry) CreateScheduled(ctx context.Context, userID uuid.UUID, name, schedule string) (domain.Trigger, error) {
	desc, err := cron.Parse(schedule)
	if err != nil {
		return domain.Trigger{}, err
	}

	trigger := domain.Trigger{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Type:      domain.TriggerTypeScheduled,
		Schedule:  schedule,
		CreatedAt: r.clock().UTC(),
	}

	if err := r.store.CreateTrigger(ctx, trigger); err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger: %w", err)
	}

	sched, err := desc.Activate()
	if err != nil {
		if delErr := r.store.DeleteTrigger(ctx, userID, trigger.ID); delErr != nil {
			log.Printf("registry: rollback of trigger %s failed: %v", trigger.ID, delErr)
		}
		return domain.Trigger{}, err
	}

	r.sched.Register(trigger.ID, sched, r.fireScheduled)
	log.Printf("registry: trigger=%s scheduled (%s)", trigger.ID, schedule)
	return trigger, nil
}

// CreateAPI validates the declared schema and persists the trigger. API
// triggers fire on demand, so no job is registered.
func (r *Registry) CreateAPI(ctx context.Context, userID uuid.UUID, name string, apiSchema map[string]domain.FieldType) (domain.Trigger, error) {
	if err := schema.ValidateSchema(apiSchema); err != nil {
		return domain.Trigger{}, err
	}

	trigger := domain.Trigger{
		ID:        uuid.New(),
		UserID:    userID,
		Name:      name,
		Type:      domain.TriggerTypeAPI,
		APISchema: apiSchema,
		CreatedAt: r.clock().UTC(),
	}

	if err := r.store.CreateTrigger(ctx, trigger); err != nil {
		return domain.Trigger{}, fmt.Errorf("create trigger: %w", err)
	}

	return trigger, nil
}

// Delete cancels the trigger's live job, if any, then removes the row.
// Events created by past firings are kept; they age out through the
// lifecycle sweep like any others.
func (r *Registry) Delete(ctx context.Context, userID, triggerID uuid.UUID) error {
	if _, err := r.store.GetTrigger(ctx, userID, triggerID); err != nil {
		return err
	}

	// Cancelling a job that was never registered (API triggers) is a no-op.
	r.sched.Cancel(triggerID)

	if err := r.store.DeleteTrigger(ctx, userID, triggerID); err != nil {
		return err
	}
	log.Printf("registry: trigger=%s deleted", triggerID)
	return nil
}

func (r *Registry) List(ctx context.Context, userID uuid.UUID) ([]domain.Trigger, error) {
	return r.store.ListTriggers(ctx, userID)
}

// Test fires a trigger immediately, creating a test event. API trigger
// payloads are validated against the declared schema when supplied.
func (r *Registry) Test(ctx context.Context, userID, triggerID uuid.UUID, payload map[string]any) (uuid.UUID, error) {
	if !r.allowTest(userID) {
		return uuid.Nil, ErrTestRateLimited
	}

	trigger, err := r.store.GetTrigger(ctx, userID, triggerID)
	if err != nil {
		return uuid.Nil, err
	}

	if trigger.Type == domain.TriggerTypeAPI && payload != nil {
		if err := schema.Validate(payload, trigger.APISchema); err != nil {
			return uuid.Nil, err
		}
	}

	event := domain.Event{
		ID:          uuid.New(),
		TriggerID:   trigger.ID,
		UserID:      trigger.UserID,
		Status:      domain.EventStatusActive,
		Payload:     payload,
		IsTest:      true,
		TriggeredAt: r.clock().UTC(),
	}

	if err := r.store.CreateEvent(ctx, event); err != nil {
		return uuid.Nil, fmt.Errorf("create event: %w", err)
	}
	return event.ID, nil
}

// ReconcileJobs rebuilds the in-memory job registry from persisted
// scheduled triggers. Run once at process start, before the HTTP listener
// accepts requests. A trigger whose stored schedule no longer parses is
// logged and skipped so a bad legacy row cannot prevent boot.
func (r *Registry) ReconcileJobs(ctx context.Context) (int, error) {
	triggers, err := r.store.ListScheduledTriggers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list scheduled triggers: %w", err)
	}

	registered := 0
	for _, trigger := range triggers {
		desc, err := cron.Parse(trigger.Schedule)
		if err != nil {
			log.Printf("registry: reconcile skipping trigger=%s, bad schedule %q: %v", trigger.ID, trigger.Schedule, err)
			continue
		}
		sched, err := desc.Activate()
		if err != nil {
			log.Printf("registry: reconcile skipping trigger=%s, bad schedule %q: %v", trigger.ID, trigger.Schedule, err)
			continue
		}
		r.sched.Register(trigger.ID, sched, r.fireScheduled)
		registered++
	}

	log.Printf("registry: reconciled %d/%d scheduled triggers", registered, len(triggers))
	return registered, nil
}

// fireScheduled is the Scheduler Core callback: one Active event per due
// occurrence. If the trigger row vanished (raced with deletion) the firing
// is a no-op.
func (r *Registry) fireScheduled(ctx context.Context, jobID uuid.UUID) error {
	trigger, err := r.store.GetTriggerByID(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if r.metrics != nil {
			r.metrics.FireError()
		}
		return fmt.Errorf("get trigger: %w", err)
	}

	event := domain.Event{
		ID:          uuid.New(),
		TriggerID:   trigger.ID,
		UserID:      trigger.UserID,
		Status:      domain.EventStatusActive,
		IsTest:      false,
		TriggeredAt: r.clock().UTC(),
	}

	if err := r.store.CreateEvent(ctx, event); err != nil {
		if r.metrics != nil {
			r.metrics.FireError()
		}
		return fmt.Errorf("create event: %w", err)
	}

	if r.metrics != nil {
		r.metrics.TriggerFired(string(trigger.Type))
	}
	return nil
}

func (r *Registry) allowTest(userID uuid.UUID) bool {
	if r.limiters == nil {
		return true
	}
	r.limiterMu.Lock()
	limiter, ok := r.limiters[userID]
	if !ok {
		limiter = rate.NewLimiter(r.testRate, r.testBurst)
		r.limiters[userID] = limiter
	}
	r.limiterMu.Unlock()
	return limiter.Allow()
}
