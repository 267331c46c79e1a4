// Package lifecycle ages events through active -> archived -> deleted.
//
// A periodic sweep archives active events older than the archive window and
// deletes archived events older than the retention window. Both cutoffs are
// measured from the event's original triggered_at, so an event archived late
// still ages toward deletion from its original fire time. The two steps run
// inside one store transaction; an event past the retention window at sweep
// time moves active -> archived -> deleted in a single pass.
package lifecycle

import (
	"context"
	"log"
	"time"
)

// Store applies one sweep pass. Implementations must archive then delete
// inside a single transaction and report how many rows each step changed.
type Store interface {
	SweepEvents(ctx context.Context, now, archiveBefore, deleteBefore time.Time) (archived, deleted int64, err error)
}

// Cache invalidates the recent-events namespace after a sweep that changed
// rows. The cache holds no subscription to the store, so the sweeper is the
// one responsible for explicit invalidation.
type Cache interface {
	InvalidateRecent(ctx context.Context) error
}

// MetricsSink records sweep metrics. Implementations must not block.
type MetricsSink interface {
	SweepCompleted(duration time.Duration, archived, deleted int64, err error)
}

// Config holds sweeper configuration.
type Config struct {
	// Interval is how often the sweep runs. Default: 30 minutes.
	Interval time.Duration

	// ArchiveAfter is the age at which active events are archived.
	// Default: 2 hours.
	ArchiveAfter time.Duration

	// DeleteAfter is the age at which archived events are deleted.
	// Default: 48 hours.
	DeleteAfter time.Duration
}

// DefaultConfig returns the default sweeper configuration.
func DefaultConfig() Config {
	return Config{
		Interval:     30 * time.Minute,
		ArchiveAfter: 2 * time.Hour,
		DeleteAfter:  48 * time.Hour,
	}
}

type Sweeper struct {
	config Config
	store  Store
	cache  Cache // optional, nil = no cache to invalidate
	clock  func() time.Time

	metrics MetricsSink // optional, nil = disabled

	manual chan struct{}
}

func New(config Config, store Store) *Sweeper {
	return &Sweeper{
		config: config,
		store:  store,
		clock:  time.Now,
		manual: make(chan struct{}, 1),
	}
}

// WithCache attaches the cache to invalidate after mutating sweeps.
func (s *Sweeper) WithCache(cache Cache) *Sweeper {
	s.cache = cache
	return s
}

// WithClock overrides the time source. Only for tests.
func (s *Sweeper) WithClock(clock func() time.Time) *Sweeper {
	s.clock = clock
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Sweeper) WithMetrics(sink MetricsSink) *Sweeper {
	s.metrics = sink
	return s
}

// Run starts the sweep loop. It blocks until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	log.Printf("lifecycle: started (interval=%s, archive_after=%s, delete_after=%s)",
		s.config.Interval, s.config.ArchiveAfter, s.config.DeleteAfter)

	for {
		select {
		case <-ctx.Done():
			log.Println("lifecycle: stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		case <-s.manual:
			s.Sweep(ctx)
		}
	}
}

// TriggerSweep schedules an immediate asynchronous sweep and returns at
// once. If a manual sweep is already queued the request coalesces with it.
func (s *Sweeper) TriggerSweep() {
	select {
	case s.manual <- struct{}{}:
	default:
		// A sweep is already pending; it will cover this request.
	}
}

// Sweep executes one pass synchronously. On a store error the transaction
// has been rolled back by the store and the next scheduled sweep retries
// from scratch; the cache is only invalidated after a pass that committed
// at least one row change.
func (s *Sweeper) Sweep(ctx context.Context) {
	now := s.clock().UTC()
	archiveBefore := now.Add(-s.config.ArchiveAfter)
	deleteBefore := now.Add(-s.config.DeleteAfter)

	started := time.Now()
	archived, deleted, err := s.store.SweepEvents(ctx, now, archiveBefore, deleteBefore)
	if s.metrics != nil {
		s.metrics.SweepCompleted(time.Since(started), archived, deleted, err)
	}
	if err != nil {
		log.Printf("lifecycle: sweep failed, retrying next interval: %v", err)
		return
	}

	if archived == 0 && deleted == 0 {
		return
	}

	log.Printf("lifecycle: sweep archived=%d deleted=%d", archived, deleted)

	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateRecent(ctx); err != nil {
		// Stale cached pages expire on their own TTL; durable state is
		// already correct.
		log.Printf("lifecycle: cache invalidation failed: %v", err)
	}
}
