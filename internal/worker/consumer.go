package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/Priya8975/hookline/internal/engine"
)

// throttleDelay is how long a rate-limited retry waits before it is claimed again.
const throttleDelay = time.Second

// RateLimiter caps per-subscription delivery throughput.
type RateLimiter interface {
	Allow(ctx context.Context, subscriptionID string, limit int) bool
}

// Consumer polls the retry queue and executes due retries.
type Consumer struct {
	queue        RetryQueue
	subs         SubscriptionReader
	executor     *Executor
	metrics      MetricsSink
	logger       *slog.Logger
	limiter      RateLimiter
	pool         *Pool
	numWorkers   int
	pollInterval time.Duration
	batchSize    int64
}

type ConsumerOption func(*Consumer)

// WithRateLimiter throttles retries to each subscription's rate limit.
func WithRateLimiter(rl RateLimiter) ConsumerOption {
	return func(c *Consumer) { c.limiter = rl }
}

// WithWorkers runs retries on a pool of n workers. Without it, tasks are
// processed inline by the polling goroutine.
func WithWorkers(n int) ConsumerOption {
	return func(c *Consumer) { c.numWorkers = n }
}

func WithPollInterval(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

func WithBatchSize(n int64) ConsumerOption {
	return func(c *Consumer) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

func NewConsumer(queue RetryQueue, subs SubscriptionReader, executor *Executor, sink MetricsSink, logger *slog.Logger, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		queue:        queue,
		subs:         subs,
		executor:     executor,
		metrics:      sinkOrNoop(sink),
		logger:       logger,
		pollInterval: time.Second,
		batchSize:    10,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.numWorkers > 0 {
		c.pool = NewPool(c.numWorkers, c.Process, logger)
	}
	return c
}

// Start runs the polling loop until ctx is cancelled, then waits for
// in-flight retries to finish.
func (c *Consumer) Start(ctx context.Context) {
	c.logger.Info("retry consumer started",
		"poll_interval", c.pollInterval.String(),
		"batch_size", c.batchSize,
	)

	if c.pool != nil {
		c.pool.Start(ctx)
		defer c.pool.Stop()
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("retry consumer stopping")
			return
		case <-ticker.C:
			c.poll(ctx)
		}
	}
}

// poll claims one batch of due tasks and hands them to the pool, or runs
// them inline when there is no pool. It returns the number claimed.
func (c *Consumer) poll(ctx context.Context) int {
	tasks, err := c.queue.Claim(ctx, c.batchSize)
	if err != nil {
		c.logger.Error("failed to poll retry queue", "error", err)
		return 0
	}

	for _, task := range tasks {
		if c.pool != nil {
			c.pool.Submit(task)
		} else {
			c.Process(context.WithoutCancel(ctx), task)
		}
	}

	if depth, err := c.queue.Depth(ctx); err == nil {
		c.metrics.RetryQueueDepth(depth)
	}
	return len(tasks)
}

// Process executes one retry task against the subscription's current state.
// Deleted subscriptions drop the task, throttled ones put it back on the
// queue, and paused ones are recorded as skipped by the executor.
func (c *Consumer) Process(ctx context.Context, task engine.RetryTask) {
	sub, err := c.subs.GetSubscription(ctx, task.SubscriptionID)
	if err != nil {
		c.logger.Error("failed to load subscription for retry",
			"error", err,
			"subscription_id", task.SubscriptionID,
			"prior_attempt_id", task.PriorAttemptID,
		)
		c.requeue(ctx, task, throttleDelay)
		return
	}
	if sub == nil {
		c.logger.Info("dropping retry for deleted subscription",
			"subscription_id", task.SubscriptionID,
			"event_id", task.EventID,
			"retry_count", task.RetryCount,
		)
		return
	}

	if c.limiter != nil && sub.IsActive() && !c.limiter.Allow(ctx, sub.ID, sub.RateLimitPerSecond) {
		c.metrics.RetryThrottled()
		c.requeue(ctx, task, throttleDelay)
		return
	}

	c.executor.Execute(ctx, sub, Delivery{
		EventID:    task.EventID,
		EventType:  task.EventType,
		Payload:    task.Payload,
		RetryCount: task.RetryCount,
	})
}

func (c *Consumer) requeue(ctx context.Context, task engine.RetryTask, delay time.Duration) {
	if err := c.queue.Enqueue(ctx, task, delay); err != nil {
		c.metrics.RetryScheduleFailed()
		c.logger.Error("failed to requeue retry",
			"error", err,
			"subscription_id", task.SubscriptionID,
			"prior_attempt_id", task.PriorAttemptID,
		)
	}
}
