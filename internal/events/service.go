// Package events serves paginated reads over the event log.
//
// Recent events (still active, inside the archive window) go through the
// TTL cache; archived events always hit the store directly.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/djlord-it/easy-trigger/internal/cache"
	"github.com/djlord-it/easy-trigger/internal/domain"
)

// Pagination defaults and limits, matching the HTTP surface.
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Store interface {
	ListRecentEvents(ctx context.Context, userID uuid.UUID, since time.Time, includeTest bool, limit, offset int) ([]domain.Event, error)
	ListArchivedEvents(ctx context.Context, userID uuid.UUID, from, to time.Time, includeTest bool, limit, offset int) ([]domain.Event, error)
}

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MetricsSink records cache metrics. Implementations must not block.
type MetricsSink interface {
	CacheHit()
	CacheMiss()
}

// Filters selects which events a read returns and how they are paged.
type Filters struct {
	ShowTest bool
	Page     int
	PageSize int
}

func (f Filters) normalized() Filters {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

func (f Filters) offset() int {
	return (f.Page - 1) * f.PageSize
}

type Config struct {
	// ArchiveAfter bounds the recent window; must match the sweeper's.
	ArchiveAfter time.Duration
	// DeleteAfter bounds the archived window; must match the sweeper's.
	DeleteAfter time.Duration
	// CacheTTL is how long a cached recent page stays fresh. Default: 60s.
	CacheTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		ArchiveAfter: 2 * time.Hour,
		DeleteAfter:  48 * time.Hour,
		CacheTTL:     60 * time.Second,
	}
}

type Service struct {
	config Config
	store  Store
	cache  Cache // optional, nil = always query the store
	clock  func() time.Time

	metrics MetricsSink // optional, nil = disabled
}

func New(config Config, store Store) *Service {
	return &Service{
		config: config,
		store:  store,
		clock:  time.Now,
	}
}

// WithCache attaches the recent-events page cache.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

// WithClock overrides the time source. Only for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// WithMetrics attaches a metrics sink.
func (s *Service) WithMetrics(sink MetricsSink) *Service {
	s.metrics = sink
	return s
}

// Record is the serialized form of one event, as stored in the cache and
// returned to the HTTP layer.
type Record struct {
	ID          string         `json:"id"`
	TriggerID   string         `json:"trigger_id"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	IsTest      bool           `json:"is_test"`
	TriggeredAt string         `json:"triggered_at"`
	ArchivedAt  string         `json:"archived_at,omitempty"`
	DeletedAt   string         `json:"deleted_at,omitempty"`
}

// GetRecent returns one serialized page of the owner's active events from
// the last archive window, newest first. A cache hit returns the cached
// snapshot verbatim; a miss queries the store and caches the page.
func (s *Service) GetRecent(ctx context.Context, userID uuid.UUID, f Filters) ([]byte, error) {
	f = f.normalized()
	key := cache.RecentKey(userID, f.ShowTest, f.Page, f.PageSize)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			// A broken cache degrades to a store read, never an error.
			log.Printf("events: cache get failed: %v", err)
		} else if ok {
			if s.metrics != nil {
				s.metrics.CacheHit()
			}
			return cached, nil
		}
		if s.metrics != nil {
			s.metrics.CacheMiss()
		}
	}

	since := s.clock().UTC().Add(-s.config.ArchiveAfter)
	list, err := s.store.ListRecentEvents(ctx, userID, since, f.ShowTest, f.PageSize, f.offset())
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}

	page, err := json.Marshal(toRecords(list))
	if err != nil {
		return nil, fmt.Errorf("marshal page: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, page, s.config.CacheTTL); err != nil {
			log.Printf("events: cache set failed: %v", err)
		}
	}
	return page, nil
}

// GetArchived returns one page of the owner's archived events, newest
// first. Archived reads always bypass the cache.
func (s *Service) GetArchived(ctx context.Context, userID uuid.UUID, f Filters) ([]Record, error) {
	f = f.normalized()

	now := s.clock().UTC()
	from := now.Add(-s.config.DeleteAfter)
	to := now.Add(-s.config.ArchiveAfter)

	list, err := s.store.ListArchivedEvents(ctx, userID, from, to, f.ShowTest, f.PageSize, f.offset())
	if err != nil {
		return nil, fmt.Errorf("list archived events: %w", err)
	}
	return toRecords(list), nil
}

func toRecords(list []domain.Event) []Record {
	records := make([]Record, len(list))
	for i, e := range list {
		records[i] = Record{
			ID:          e.ID.String(),
			TriggerID:   e.TriggerID.String(),
			Status:      string(e.Status),
			Payload:     e.Payload,
			IsTest:      e.IsTest,
			TriggeredAt: e.TriggeredAt.UTC().Format(time.RFC3339),
		}
		if e.ArchivedAt != nil {
			records[i].ArchivedAt = e.ArchivedAt.UTC().Format(time.RFC3339)
		}
		if e.DeletedAt != nil {
			records[i].DeletedAt = e.DeletedAt.UTC().Format(time.RFC3339)
		}
	}
	return records
}
