package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) TriggerFired(kind string) {}
func (n *NoopSink) FireError()               {}
func (n *NoopSink) SweepCompleted(duration time.Duration, archived, deleted int64, err error) {}
func (n *NoopSink) CacheHit()  {}
func (n *NoopSink) CacheMiss() {}
