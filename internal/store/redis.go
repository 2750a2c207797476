package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// RedisStore owns the connection shared by the retry queue, the circuit
// breaker and the rate limiter.
type RedisStore struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedis connects to redisURL and verifies the server answers. The client is
// closed again if the first ping fails.
func NewRedis(ctx context.Context, redisURL string, logger *slog.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parsing redis URL: %w", err)
	}

	s := &RedisStore{client: redis.NewClient(opts), logger: logger}
	if err := s.Ping(ctx); err != nil {
		_ = s.client.Close()
		return nil, err
	}

	logger.Info("connected to Redis", "addr", opts.Addr, "db", opts.DB, "pool_size", opts.PoolSize)
	return s, nil
}

// Ping reports whether the server is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	stats := s.client.PoolStats()
	s.logger.Info("closing Redis connection", "total_conns", stats.TotalConns, "idle_conns", stats.IdleConns)
	return s.client.Close()
}

func (s *RedisStore) Client() *redis.Client {
	return s.client
}
