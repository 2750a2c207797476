package metrics

import "time"

// NoopSink is a no-op implementation of Sink.
// Used when metrics are disabled to avoid nil checks.
type NoopSink struct{}

// NewNoopSink returns a no-op metrics sink.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) DeliveryAttemptCompleted(eventType, status, statusClass string, d time.Duration) {}
func (n *NoopSink) DispatchFanout(eventType string, subscriptions int)                            {}
func (n *NoopSink) RetryScheduled(retryCount int)                                                 {}
func (n *NoopSink) RetryScheduleFailed()                                                          {}
func (n *NoopSink) RetryThrottled()                                                               {}
func (n *NoopSink) RetryQueueDepth(depth int64)                                                   {}
