package webhook

import (
	"context"
	"fmt"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/stats"
)

const (
	defaultDeliveryLimit = 50
	maxDeliveryLimit     = 500
)

// GetStatistics summarizes a subscription's attempts created in [start, end).
func (s *Service) GetStatistics(ctx context.Context, id string, start, end time.Time) (*domain.StatsReport, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		verr := &ValidationError{}
		verr.Add("window", "end must be after start")
		return nil, verr
	}

	attempts, err := s.deliveries.ListDeliveryAttempts(ctx, domain.DeliveryFilter{
		SubscriptionID: id,
		From:           start,
		To:             end,
	})
	if err != nil {
		return nil, fmt.Errorf("listing delivery attempts: %w", err)
	}

	return stats.Aggregate(id, attempts, stats.Window{Start: start, End: end}, sub.MaxRetryAttempts), nil
}

// ListDeliveries returns delivery attempts newest first.
func (s *Service) ListDeliveries(ctx context.Context, f domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	if f.Limit <= 0 {
		f.Limit = defaultDeliveryLimit
	}
	f.Limit = min(f.Limit, maxDeliveryLimit)

	var verr ValidationError
	if f.SubscriptionID != "" && !isID(f.SubscriptionID) {
		verr.Add("subscription_id", "must be a UUID")
	}
	if f.EventID != "" && !isID(f.EventID) {
		verr.Add("event_id", "must be a UUID")
	}
	if err := verr.Err(); err != nil {
		return nil, err
	}

	attempts, err := s.deliveries.ListDeliveryAttempts(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing delivery attempts: %w", err)
	}
	return attempts, nil
}

func (s *Service) GetDelivery(ctx context.Context, id string) (*domain.DeliveryAttempt, error) {
	if !isID(id) {
		return nil, ErrDeliveryNotFound
	}
	a, err := s.deliveries.GetDeliveryAttempt(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting delivery attempt: %w", err)
	}
	if a == nil {
		return nil, ErrDeliveryNotFound
	}
	return a, nil
}

// DashboardMetrics returns system-wide delivery totals.
func (s *Service) DashboardMetrics(ctx context.Context) (*domain.DeliveryMetrics, error) {
	m, err := s.deliveries.GetDeliveryMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting delivery metrics: %w", err)
	}
	return m, nil
}
