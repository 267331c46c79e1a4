package metrics

import "time"

// Sink defines the interface for recording metrics.
// All methods are fire-and-forget: implementations MUST NOT block or propagate errors.
// If the metrics backend is unavailable, implementations log warnings and continue.
type Sink interface {
	// Firing metrics
	TriggerFired(kind string)
	FireError()

	// Lifecycle metrics
	SweepCompleted(duration time.Duration, archived, deleted int64, err error)

	// Cache metrics
	CacheHit()
	CacheMiss()
}

// Kind constants for TriggerFired metric.
const (
	KindScheduled = "scheduled"
	KindAPI       = "api"
)
