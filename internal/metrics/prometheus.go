package metrics

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PrometheusSink implements Sink using the Prometheus client library.
// Registration errors are logged but never propagated.
type PrometheusSink struct {
	logger *slog.Logger

	deliveryAttemptsTotal *prometheus.CounterVec
	deliveryDuration      *prometheus.HistogramVec
	dispatchFanout        *prometheus.HistogramVec
	dispatchesTotal       *prometheus.CounterVec
	retriesScheduledTotal *prometheus.CounterVec
	retryScheduleErrors   prometheus.Counter
	retryThrottledTotal   prometheus.Counter
	retryQueueDepth       prometheus.Gauge
}

// NewPrometheusSink creates the delivery metrics and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer, logger *slog.Logger) *PrometheusSink {
	s := &PrometheusSink{logger: logger}

	s.deliveryAttemptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_delivery_attempts_total",
		Help: "Total number of webhook delivery attempts by terminal status.",
	}, []string{"event_type", "status", "status_class"})

	s.deliveryDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hookline_delivery_duration_seconds",
		Help:    "Webhook request latency in seconds.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"status_class"})

	s.dispatchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_dispatches_total",
		Help: "Total number of events dispatched.",
	}, []string{"event_type"})

	s.dispatchFanout = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hookline_dispatch_fanout_subscriptions",
		Help:    "Number of subscriptions resolved per dispatched event.",
		Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100},
	}, []string{"event_type"})

	s.retriesScheduledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hookline_retries_scheduled_total",
		Help: "Total number of retries enqueued, by retry count.",
	}, []string{"retry_count"})

	s.retryScheduleErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_retry_schedule_errors_total",
		Help: "Total number of retries that could not be enqueued.",
	})

	s.retryThrottledTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hookline_retry_throttled_total",
		Help: "Total number of retry executions postponed by the rate limiter.",
	})

	s.retryQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hookline_retry_queue_depth",
		Help: "Number of retry tasks waiting in the delayed queue.",
	})

	s.register(reg, s.deliveryAttemptsTotal, "hookline_delivery_attempts_total")
	s.register(reg, s.deliveryDuration, "hookline_delivery_duration_seconds")
	s.register(reg, s.dispatchesTotal, "hookline_dispatches_total")
	s.register(reg, s.dispatchFanout, "hookline_dispatch_fanout_subscriptions")
	s.register(reg, s.retriesScheduledTotal, "hookline_retries_scheduled_total")
	s.register(reg, s.retryScheduleErrors, "hookline_retry_schedule_errors_total")
	s.register(reg, s.retryThrottledTotal, "hookline_retry_throttled_total")
	s.register(reg, s.retryQueueDepth, "hookline_retry_queue_depth")

	return s
}

func (s *PrometheusSink) register(reg prometheus.Registerer, c prometheus.Collector, name string) {
	if err := reg.Register(c); err != nil {
		s.logger.Warn("failed to register metric", "metric", name, "error", err)
	}
}

func (s *PrometheusSink) DeliveryAttemptCompleted(eventType, status, statusClass string, duration time.Duration) {
	s.deliveryAttemptsTotal.WithLabelValues(eventType, status, statusClass).Inc()
	if statusClass != StatusClassNone {
		s.deliveryDuration.WithLabelValues(statusClass).Observe(duration.Seconds())
	}
}

func (s *PrometheusSink) DispatchFanout(eventType string, subscriptions int) {
	s.dispatchesTotal.WithLabelValues(eventType).Inc()
	s.dispatchFanout.WithLabelValues(eventType).Observe(float64(subscriptions))
}

func (s *PrometheusSink) RetryScheduled(retryCount int) {
	s.retriesScheduledTotal.WithLabelValues(strconv.Itoa(retryCount)).Inc()
}

func (s *PrometheusSink) RetryScheduleFailed() {
	s.retryScheduleErrors.Inc()
}

func (s *PrometheusSink) RetryThrottled() {
	s.retryThrottledTotal.Inc()
}

func (s *PrometheusSink) RetryQueueDepth(depth int64) {
	s.retryQueueDepth.Set(float64(depth))
}
