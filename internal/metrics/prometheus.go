package metrics

import (
	"log"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using Prometheus client library.
// All methods are non-blocking and fire-and-forget.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	// Firing metrics
	triggersFiredTotal *prometheus.CounterVec
	fireErrorsTotal    prometheus.Counter

	// Lifecycle metrics
	sweepsTotal         prometheus.Counter
	sweepErrorsTotal    prometheus.Counter
	sweepDuration       prometheus.Histogram
	eventsArchivedTotal prometheus.Counter
	eventsDeletedTotal  prometheus.Counter

	// Cache metrics
	cacheHitsTotal   prometheus.Counter
	cacheMissesTotal prometheus.Counter
}

// NewPrometheusSink creates a new Prometheus metrics sink.
// Metrics that fail to register are logged and left unregistered; the sink
// stays functional either way.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{}
	s.initFiringMetrics(reg)
	s.initLifecycleMetrics(reg)
	s.initCacheMetrics(reg)
	return s
}

func (s *PrometheusSink) initFiringMetrics(reg prometheus.Registerer) {
	s.triggersFiredTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "easytrigger_triggers_fired_total",
		Help: "Total number of trigger firings (events created).",
	}, []string{"kind"})
	s.fireErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_fire_errors_total",
		Help: "Total number of firing failures.",
	})

	s.register(reg, s.triggersFiredTotal, "easytrigger_triggers_fired_total")
	s.register(reg, s.fireErrorsTotal, "easytrigger_fire_errors_total")
}

func (s *PrometheusSink) initLifecycleMetrics(reg prometheus.Registerer) {
	s.sweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_lifecycle_sweeps_total",
		Help: "Total number of lifecycle sweeps run.",
	})
	s.sweepErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_lifecycle_sweep_errors_total",
		Help: "Total number of failed lifecycle sweeps.",
	})
	s.sweepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "easytrigger_lifecycle_sweep_duration_seconds",
		Help:    "Duration of each lifecycle sweep in seconds.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	})
	s.eventsArchivedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_lifecycle_events_archived_total",
		Help: "Total number of events moved from active to archived.",
	})
	s.eventsDeletedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_lifecycle_events_deleted_total",
		Help: "Total number of events moved to deleted.",
	})

	s.register(reg, s.sweepsTotal, "easytrigger_lifecycle_sweeps_total")
	s.register(reg, s.sweepErrorsTotal, "easytrigger_lifecycle_sweep_errors_total")
	s.register(reg, s.sweepDuration, "easytrigger_lifecycle_sweep_duration_seconds")
	s.register(reg, s.eventsArchivedTotal, "easytrigger_lifecycle_events_archived_total")
	s.register(reg, s.eventsDeletedTotal, "easytrigger_lifecycle_events_deleted_total")
}

func (s *PrometheusSink) initCacheMetrics(reg prometheus.Registerer) {
	s.cacheHitsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_cache_hits_total",
		Help: "Total number of recent-events cache hits.",
	})
	s.cacheMissesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "easytrigger_cache_misses_total",
		Help: "Total number of recent-events cache misses.",
	})

	s.register(reg, s.cacheHitsTotal, "easytrigger_cache_hits_total")
	s.register(reg, s.cacheMissesTotal, "easytrigger_cache_misses_total")
}

// register attempts to register a collector, logging any errors without propagating them.
func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		log.Printf("metrics: failed to register %s: %v", name, err)
	}
}

func (s *PrometheusSink) TriggerFired(kind string) {
	s.triggersFiredTotal.WithLabelValues(kind).Inc()
}

func (s *PrometheusSink) FireError() {
	s.fireErrorsTotal.Inc()
}

func (s *PrometheusSink) SweepCompleted(duration time.Duration, archived, deleted int64, err error) {
	s.sweepsTotal.Inc()
	s.sweepDuration.Observe(duration.Seconds())
	if err != nil {
		s.sweepErrorsTotal.Inc()
		return
	}
	s.eventsArchivedTotal.Add(float64(archived))
	s.eventsDeletedTotal.Add(float64(deleted))
}

func (s *PrometheusSink) CacheHit() {
	s.cacheHitsTotal.Inc()
}

func (s *PrometheusSink) CacheMiss() {
	s.cacheMissesTotal.Inc()
}
