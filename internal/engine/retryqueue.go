package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/redis/go-redis/v9"
)

const RetryQueueKey = "hookline:retry_queue"

// RetryTask is a delayed delivery retry queued in Redis. Payload holds the
// exact bytes sent on the first attempt of the chain.
type RetryTask struct {
	SubscriptionID string           `json:"subscription_id"`
	PriorAttemptID string           `json:"prior_attempt_id"`
	EventID        string           `json:"event_id"`
	EventType      domain.EventType `json:"event_type"`
	RetryCount     int              `json:"retry_count"`
	Payload        []byte           `json:"payload"`
}

// RetryQueue is a Redis sorted set of retry tasks scored by the time they
// become ready, in unix microseconds.
type RetryQueue struct {
	redisClient *redis.Client
	logger      *slog.Logger
	now         func() time.Time
}

func NewRetryQueue(redisClient *redis.Client, logger *slog.Logger) *RetryQueue {
	return &RetryQueue{
		redisClient: redisClient,
		logger:      logger,
		now:         time.Now,
	}
}

// Enqueue schedules task to become ready after delay.
func (q *RetryQueue) Enqueue(ctx context.Context, task RetryTask, delay time.Duration) error {
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshaling retry task: %w", err)
	}

	readyAt := q.now().Add(delay)
	err = q.redisClient.ZAdd(ctx, RetryQueueKey, redis.Z{
		Score:  float64(readyAt.UnixMicro()),
		Member: string(data),
	}).Err()
	if err != nil {
		return fmt.Errorf("queuing retry task: %w", err)
	}
	return nil
}

// Claim removes and returns up to batch tasks whose ready time has passed.
// A task removed concurrently by another consumer is skipped, so each task
// is claimed at most once.
func (q *RetryQueue) Claim(ctx context.Context, batch int64) ([]RetryTask, error) {
	now := float64(q.now().UnixMicro())

	members, err := q.redisClient.ZRangeByScore(ctx, RetryQueueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(now, 'f', -1, 64),
		Count: batch,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("polling retry queue: %w", err)
	}

	tasks := make([]RetryTask, 0, len(members))
	for _, member := range members {
		removed, err := q.redisClient.ZRem(ctx, RetryQueueKey, member).Result()
		if err != nil {
			q.logger.Error("failed to remove retry task from queue", "error", err)
			continue
		}
		if removed == 0 {
			continue
		}

		var task RetryTask
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			q.logger.Error("dropping malformed retry task", "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Depth returns the number of queued tasks, ready or not.
func (q *RetryQueue) Depth(ctx context.Context) (int64, error) {
	return q.redisClient.ZCard(ctx, RetryQueueKey).Result()
}

// Purge removes every queued task that belongs to a subscription and returns
// how many were removed.
func (q *RetryQueue) Purge(ctx context.Context, subscriptionID string) (int, error) {
	members, err := q.redisClient.ZRange(ctx, RetryQueueKey, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("listing retry queue: %w", err)
	}

	stale := []any{}
	for _, member := range members {
		var task RetryTask
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			continue
		}
		if task.SubscriptionID == subscriptionID {
			stale = append(stale, member)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	removed, err := q.redisClient.ZRem(ctx, RetryQueueKey, stale...).Result()
	if err != nil {
		return 0, fmt.Errorf("purging retry tasks: %w", err)
	}
	return int(removed), nil
}
