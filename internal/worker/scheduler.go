package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
)

// DefaultRetrySchedule is used when no schedule is configured.
var DefaultRetrySchedule = []time.Duration{time.Minute, 5 * time.Minute, 30 * time.Minute}

// Scheduler turns failed attempts into delayed retry tasks.
type Scheduler struct {
	queue    RetryQueue
	schedule []time.Duration
	metrics  MetricsSink
	logger   *slog.Logger
}

func NewScheduler(queue RetryQueue, schedule []time.Duration, sink MetricsSink, logger *slog.Logger) *Scheduler {
	if len(schedule) == 0 {
		schedule = DefaultRetrySchedule
	}
	return &Scheduler{
		queue:    queue,
		schedule: schedule,
		metrics:  sinkOrNoop(sink),
		logger:   logger,
	}
}

// Delay returns how long to wait after an attempt with the given retry count
// failed. Counts past the end of the schedule reuse its last entry.
func (s *Scheduler) Delay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount >= len(s.schedule) {
		return s.schedule[len(s.schedule)-1]
	}
	return s.schedule[retryCount]
}

// ScheduleRetry enqueues the next attempt of prior's chain. Failures are
// logged and counted, never returned.
func (s *Scheduler) ScheduleRetry(ctx context.Context, prior *domain.DeliveryAttempt) {
	task := engine.RetryTask{
		SubscriptionID: prior.SubscriptionID,
		PriorAttemptID: prior.ID,
		EventID:        prior.EventID,
		EventType:      prior.EventType,
		RetryCount:     prior.RetryCount + 1,
		Payload:        prior.Payload,
	}

	delay := s.Delay(prior.RetryCount)
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), task, delay); err != nil {
		s.metrics.RetryScheduleFailed()
		s.logger.Error("failed to schedule retry",
			"error", err,
			"attempt_id", prior.ID,
			"subscription_id", prior.SubscriptionID,
			"event_id", prior.EventID,
			"retry_count", task.RetryCount,
		)
		return
	}

	s.metrics.RetryScheduled(task.RetryCount)
	s.logger.Info("retry scheduled",
		"attempt_id", prior.ID,
		"subscription_id", prior.SubscriptionID,
		"event_id", prior.EventID,
		"retry_count", task.RetryCount,
		"delay", delay.String(),
	)
}
