package store

import (
	"context"
	"fmt"

	"github.com/Priya8975/hookline/internal/domain"
)

// GetDeliveryMetrics returns system-wide delivery statistics from the database.
func (s *PostgresStore) GetDeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error) {
	var m domain.DeliveryMetrics

	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'delivered') AS delivered,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COUNT(*) FILTER (WHERE status = 'skipped') AS skipped,
			COALESCE(AVG(response_time_ms) FILTER (WHERE status = 'delivered'), 0) AS avg_response_ms
		FROM delivery_attempts
	`).Scan(&m.TotalDeliveries, &m.DeliveredCount, &m.FailedCount, &m.SkippedCount, &m.AvgResponseMs)
	if err != nil {
		return nil, fmt.Errorf("querying delivery metrics: %w", err)
	}

	if attempted := m.DeliveredCount + m.FailedCount; attempted > 0 {
		m.SuccessRate = float64(m.DeliveredCount) / float64(attempted)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'paused')
		FROM subscriptions
	`).Scan(&m.ActiveSubscriptions, &m.PausedSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("querying subscription counts: %w", err)
	}

	return &m, nil
}
