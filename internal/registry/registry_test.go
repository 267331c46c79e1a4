package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/djlord-it/easy-trigger/internal/cron"
	"github.com/djlord-it/easy-trigger/internal/domain"
	"github.com/djlord-it/easy-trigger/internal/scheduler"
	"github.com/djlord-it/easy-trigger/internal/schema"
)

// mockStore keeps triggers and events in maps.
type mockStore struct {
	mu       sync.Mutex
	triggers map[uuid.UUID]domain.Trigger
	events   map[uuid.UUID]domain.Event

	createTriggerErr error
	createEventErr   error
}

func newMockStore() *mockStore {
	return &mockStore{
		triggers: make(map[uuid.UUID]domain.Trigger),
		events:   make(map[uuid.UUID]domain.Event),
	}
}

func (s *mockStore) CreateTrigger(ctx context.Context, trigger domain.Trigger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createTriggerErr != nil {
		return s.createTriggerErr
	}
	s.triggers[trigger.ID] = trigger
	return nil
}

func (s *mockStore) GetTrigger(ctx context.Context, userID, triggerID uuid.UUID) (domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, ok := s.triggers[triggerID]
	if !ok || trigger.UserID != userID {
		return domain.Trigger{}, ErrNotFound
	}
	return trigger, nil
}

func (s *mockStore) GetTriggerByID(ctx context.Context, triggerID uuid.UUID) (domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, ok := s.triggers[triggerID]
	if !ok {
		return domain.Trigger{}, ErrNotFound
	}
	return trigger, nil
}

func (s *mockStore) ListTriggers(ctx context.Context, userID uuid.UUID) ([]domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trigger
	for _, trigger := range s.triggers {
		if trigger.UserID == userID {
			out = append(out, trigger)
		}
	}
	return out, nil
}

func (s *mockStore) ListScheduledTriggers(ctx context.Context) ([]domain.Trigger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Trigger
	for _, trigger := range s.triggers {
		if trigger.Type == domain.TriggerTypeScheduled {
			out = append(out, trigger)
		}
	}
	return out, nil
}

func (s *mockStore) DeleteTrigger(ctx context.Context, userID, triggerID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	trigger, ok := s.triggers[triggerID]
	if !ok || trigger.UserID != userID {
		return ErrNotFound
	}
	delete(s.triggers, triggerID)
	return nil
}

func (s *mockStore) CreateEvent(ctx context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createEventErr != nil {
		return s.createEventErr
	}
	s.events[event.ID] = event
	return nil
}

func (s *mockStore) triggerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.triggers)
}

func (s *mockStore) eventList() []domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Event
	for _, e := range s.events {
		out = append(out, e)
	}
	return out
}

// mockScheduler records registrations and cancellations.
type mockScheduler struct {
	mu         sync.Mutex
	registered map[uuid.UUID]scheduler.FireFunc
	cancelled  []uuid.UUID
}

func newMockScheduler() *mockScheduler {
	return &mockScheduler{registered: make(map[uuid.UUID]scheduler.FireFunc)}
}

func (m *mockScheduler) Register(jobID uuid.UUID, sched cron.Schedule, fire scheduler.FireFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered[jobID] = fire
}

func (m *mockScheduler) Cancel(jobID uuid.UUID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.registered, jobID)
	m.cancelled = append(m.cancelled, jobID)
}

func (m *mockScheduler) jobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.registered)
}

func (m *mockScheduler) fireFunc(jobID uuid.UUID) scheduler.FireFunc {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registered[jobID]
}

func TestCreateScheduled_RegistersJob(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	userID := uuid.New()
	trigger, err := reg.CreateScheduled(context.Background(), userID, "every-half-hour", "30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if trigger.Type != domain.TriggerTypeScheduled {
		t.Errorf("type = %q", trigger.Type)
	}
	if store.triggerCount() != 1 {
		t.Errorf("expected 1 persisted trigger, got %d", store.triggerCount())
	}
	if sched.jobCount() != 1 {
		t.Errorf("expected 1 registered job, got %d", sched.jobCount())
	}
	if sched.fireFunc(trigger.ID) == nil {
		t.Error("job not keyed by trigger id")
	}
}

func TestCreateScheduled_MalformedScheduleNeverPersists(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	_, err := reg.CreateScheduled(context.Background(), uuid.New(), "bad", "every tuesday maybe")
	if !errors.Is(err, cron.ErrMalformedCron) {
		t.Fatalf("expected ErrMalformedCron, got %v", err)
	}
	if store.triggerCount() != 0 {
		t.Error("trigger persisted despite parse failure")
	}
	if sched.jobCount() != 0 {
		t.Error("job registered despite parse failure")
	}
}

func TestCreateScheduled_InvalidFieldRollsBackRow(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	// Five fields, so Parse accepts; activation rejects the grammar.
	_, err := reg.CreateScheduled(context.Background(), uuid.New(), "bad", "nope * * * *")
	if !errors.Is(err, cron.ErrInvalidCronField) {
		t.Fatalf("expected ErrInvalidCronField, got %v", err)
	}
	if store.triggerCount() != 0 {
		t.Error("expected persisted row to be rolled back")
	}
	if sched.jobCount() != 0 {
		t.Error("job registered despite activation failure")
	}
}

func TestCreateAPI_ValidatesSchema(t *testing.T) {
	store := newMockStore()
	reg := New(store, newMockScheduler())

	userID := uuid.New()
	trigger, err := reg.CreateAPI(context.Background(), userID, "payments", map[string]domain.FieldType{
		"amount":   domain.FieldTypeFloat,
		"currency": domain.FieldTypeString,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if trigger.Type != domain.TriggerTypeAPI {
		t.Errorf("type = %q", trigger.Type)
	}

	_, err = reg.CreateAPI(context.Background(), userID, "bad", map[string]domain.FieldType{
		"when": "datetime",
	})
	var invalid schema.InvalidTagError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTagError, got %v", err)
	}
	if store.triggerCount() != 1 {
		t.Errorf("expected only the valid trigger persisted, got %d", store.triggerCount())
	}
}

func TestDelete_Idempotence(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	userID := uuid.New()
	trigger, err := reg.CreateScheduled(context.Background(), userID, "t", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Delete(context.Background(), userID, trigger.ID); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if sched.jobCount() != 0 {
		t.Error("job not cancelled on delete")
	}

	if err := reg.Delete(context.Background(), userID, trigger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
}

func TestDelete_OtherOwnersTrigger(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	owner := uuid.New()
	trigger, err := reg.CreateScheduled(context.Background(), owner, "t", "5")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := reg.Delete(context.Background(), uuid.New(), trigger.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	if sched.jobCount() != 1 {
		t.Error("foreign delete cancelled the owner's job")
	}
}

func TestTest_APIPayloadValidation(t *testing.T) {
	store := newMockStore()
	reg := New(store, newMockScheduler())

	userID := uuid.New()
	trigger, err := reg.CreateAPI(context.Background(), userID, "payments", map[string]domain.FieldType{
		"amount":   domain.FieldTypeFloat,
		"currency": domain.FieldTypeString,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	eventID, err := reg.Test(context.Background(), userID, trigger.ID, map[string]any{
		"amount": 12.5, "currency": "USD",
	})
	if err != nil {
		t.Fatalf("valid payload rejected: %v", err)
	}
	if eventID == uuid.Nil {
		t.Fatal("no event id returned")
	}

	events := store.eventList()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if !events[0].IsTest || events[0].Status != domain.EventStatusActive {
		t.Errorf("test event wrong shape: %+v", events[0])
	}
	if events[0].UserID != userID {
		t.Errorf("event owner = %s, want %s", events[0].UserID, userID)
	}

	_, err = reg.Test(context.Background(), userID, trigger.ID, map[string]any{
		"amount": "12.5", "currency": "USD",
	})
	var mismatch schema.TypeMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected TypeMismatchError, got %v", err)
	}
	if mismatch.Field != "amount" {
		t.Errorf("mismatch field = %q", mismatch.Field)
	}
}

func TestTest_NoPayloadSkipsValidation(t *testing.T) {
	store := newMockStore()
	reg := New(store, newMockScheduler())

	userID := uuid.New()
	trigger, _ := reg.CreateAPI(context.Background(), userID, "payments", map[string]domain.FieldType{
		"amount": domain.FieldTypeFloat,
	})

	if _, err := reg.Test(context.Background(), userID, trigger.ID, nil); err != nil {
		t.Fatalf("nil payload should skip schema validation: %v", err)
	}
}

func TestTest_UnknownTrigger(t *testing.T) {
	reg := New(newMockStore(), newMockScheduler())

	_, err := reg.Test(context.Background(), uuid.New(), uuid.New(), nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTest_RateLimited(t *testing.T) {
	store := newMockStore()
	reg := New(store, newMockScheduler()).WithTestRateLimit(rate.Every(time.Hour), 2)

	userID := uuid.New()
	trigger, _ := reg.CreateAPI(context.Background(), userID, "t", map[string]domain.FieldType{})

	for i := 0; i < 2; i++ {
		if _, err := reg.Test(context.Background(), userID, trigger.ID, nil); err != nil {
			t.Fatalf("firing %d within burst rejected: %v", i, err)
		}
	}
	if _, err := reg.Test(context.Background(), userID, trigger.ID, nil); !errors.Is(err, ErrTestRateLimited) {
		t.Fatalf("expected ErrTestRateLimited, got %v", err)
	}

	// A different owner has an independent budget.
	other := uuid.New()
	otherTrigger, _ := reg.CreateAPI(context.Background(), other, "t", map[string]domain.FieldType{})
	if _, err := reg.Test(context.Background(), other, otherTrigger.ID, nil); err != nil {
		t.Fatalf("other owner should not share the limiter: %v", err)
	}
}

func TestFireScheduled_CreatesOneActiveEvent(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	userID := uuid.New()
	trigger, err := reg.CreateScheduled(context.Background(), userID, "t", "30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	fire := sched.fireFunc(trigger.ID)
	if err := fire(context.Background(), trigger.ID); err != nil {
		t.Fatalf("fire: %v", err)
	}

	events := store.eventList()
	if len(events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(events))
	}
	e := events[0]
	if e.TriggerID != trigger.ID || e.Status != domain.EventStatusActive || e.IsTest || e.Payload != nil {
		t.Errorf("fired event wrong shape: %+v", e)
	}
}

func TestFireScheduled_NoopWhenTriggerDeleted(t *testing.T) {
	store := newMockStore()
	sched := newMockScheduler()
	reg := New(store, sched)

	userID := uuid.New()
	trigger, _ := reg.CreateScheduled(context.Background(), userID, "t", "30")
	fire := sched.fireFunc(trigger.ID)

	if err := reg.Delete(context.Background(), userID, trigger.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	// Raced firing after deletion: silently skipped.
	if err := fire(context.Background(), trigger.ID); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
	if len(store.eventList()) != 0 {
		t.Error("event created for deleted trigger")
	}
}

func TestReconcileJobs(t *testing.T) {
	store := newMockStore()
	userID := uuid.New()

	good := domain.Trigger{
		ID: uuid.New(), UserID: userID, Name: "good",
		Type: domain.TriggerTypeScheduled, Schedule: "0 9 * * *",
	}
	bad := domain.Trigger{
		ID: uuid.New(), UserID: userID, Name: "bad",
		Type: domain.TriggerTypeScheduled, Schedule: "not a schedule",
	}
	api := domain.Trigger{
		ID: uuid.New(), UserID: userID, Name: "api",
		Type: domain.TriggerTypeAPI, APISchema: map[string]domain.FieldType{},
	}
	for _, trigger := range []domain.Trigger{good, bad, api} {
		if err := store.CreateTrigger(context.Background(), trigger); err != nil {
			t.Fatal(err)
		}
	}

	sched := newMockScheduler()
	reg := New(store, sched)

	registered, err := reg.ReconcileJobs(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if registered != 1 {
		t.Errorf("expected 1 registered, got %d", registered)
	}
	if sched.fireFunc(good.ID) == nil {
		t.Error("good trigger not re-registered")
	}
	if sched.fireFunc(bad.ID) != nil || sched.fireFunc(api.ID) != nil {
		t.Error("bad or api trigger wrongly registered")
	}
}
