package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
)

// MemoryStore keeps subscriptions and delivery attempts in process memory.
// It backs the memory store driver and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	subscriptions map[string]*domain.Subscription
	attempts      map[string]*domain.DeliveryAttempt
	now           func() time.Time
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		subscriptions: make(map[string]*domain.Subscription),
		attempts:      make(map[string]*domain.DeliveryAttempt),
		now:           time.Now,
	}
}

func (s *MemoryStore) CreateSubscription(_ context.Context, sub *domain.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	sub.CreatedAt = now
	sub.UpdatedAt = now
	s.subscriptions[sub.ID] = sub.Clone()
	return nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, id string) (*domain.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, nil
	}
	return sub.Clone(), nil
}

func (s *MemoryStore) ListSubscriptions(_ context.Context, ownerID string) ([]domain.Subscription, error) {
	return s.filterSubscriptions(func(sub *domain.Subscription) bool {
		return ownerID == "" || sub.OwnerID == ownerID
	}), nil
}

func (s *MemoryStore) FindSubscriptionsForEvent(_ context.Context, eventType domain.EventType) ([]domain.Subscription, error) {
	return s.filterSubscriptions(func(sub *domain.Subscription) bool {
		return slices.Contains(sub.Events, eventType)
	}), nil
}

func (s *MemoryStore) filterSubscriptions(keep func(*domain.Subscription) bool) []domain.Subscription {
	s.mu.RLock()
	defer s.mu.RUnlock()

	subs := []domain.Subscription{}
	for _, sub := range s.subscriptions {
		if keep(sub) {
			subs = append(subs, *sub.Clone())
		}
	}
	slices.SortFunc(subs, func(a, b domain.Subscription) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return subs
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.subscriptions[sub.ID]
	if !ok {
		return nil, nil
	}
	updated := sub.Clone()
	updated.OwnerID = existing.OwnerID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = s.now().UTC()
	s.subscriptions[sub.ID] = updated
	return updated.Clone(), nil
}

func (s *MemoryStore) SetSubscriptionStatus(_ context.Context, id string, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub, ok := s.subscriptions[id]
	if !ok {
		return nil, nil
	}
	sub.Status = status
	sub.UpdatedAt = s.now().UTC()
	return sub.Clone(), nil
}

// DeleteSubscription removes the subscription and all of its attempts.
func (s *MemoryStore) DeleteSubscription(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subscriptions[id]; !ok {
		return false, nil
	}
	delete(s.subscriptions, id)
	for attemptID, a := range s.attempts {
		if a.SubscriptionID == id {
			delete(s.attempts, attemptID)
		}
	}
	return true, nil
}

func (s *MemoryStore) CreateDeliveryAttempt(_ context.Context, a *domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.attempts[a.ID] = cloneAttempt(a)
	return nil
}

func (s *MemoryStore) CompleteDeliveryAttempt(_ context.Context, a *domain.DeliveryAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.attempts[a.ID]
	if !ok || existing.Status != domain.DeliveryPending {
		return ErrAttemptNotPending
	}
	existing.Status = a.Status
	existing.ResponseCode = a.ResponseCode
	existing.ResponseBody = a.ResponseBody
	existing.ResponseTimeMs = a.ResponseTimeMs
	existing.ErrorMessage = a.ErrorMessage
	existing.NextRetryAt = a.NextRetryAt
	existing.DeliveredAt = a.DeliveredAt
	return nil
}

func (s *MemoryStore) ListDeliveryAttempts(_ context.Context, f domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	attempts := []domain.DeliveryAttempt{}
	for _, a := range s.attempts {
		if !matchesFilter(a, f) {
			continue
		}
		attempts = append(attempts, *cloneAttempt(a))
	}
	slices.SortFunc(attempts, func(a, b domain.DeliveryAttempt) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if f.Limit > 0 && len(attempts) > f.Limit {
		attempts = attempts[:f.Limit]
	}
	return attempts, nil
}

func (s *MemoryStore) GetDeliveryAttempt(_ context.Context, id string) (*domain.DeliveryAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, nil
	}
	return cloneAttempt(a), nil
}

func (s *MemoryStore) GetDeliveryMetrics(_ context.Context) (*domain.DeliveryMetrics, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		m          domain.DeliveryMetrics
		totalMs    int64
		timedCount int
	)
	for _, a := range s.attempts {
		m.TotalDeliveries++
		switch a.Status {
		case domain.DeliveryDelivered:
			m.DeliveredCount++
			if a.ResponseTimeMs != nil {
				totalMs += *a.ResponseTimeMs
				timedCount++
			}
		case domain.DeliveryFailed:
			m.FailedCount++
		case domain.DeliverySkipped:
			m.SkippedCount++
		}
	}
	if attempted := m.DeliveredCount + m.FailedCount; attempted > 0 {
		m.SuccessRate = float64(m.DeliveredCount) / float64(attempted)
	}
	if timedCount > 0 {
		m.AvgResponseMs = float64(totalMs) / float64(timedCount)
	}
	for _, sub := range s.subscriptions {
		if sub.IsActive() {
			m.ActiveSubscriptions++
		} else {
			m.PausedSubscriptions++
		}
	}
	return &m, nil
}

func matchesFilter(a *domain.DeliveryAttempt, f domain.DeliveryFilter) bool {
	switch {
	case f.SubscriptionID != "" && a.SubscriptionID != f.SubscriptionID:
		return false
	case f.EventID != "" && a.EventID != f.EventID:
		return false
	case f.EventType != "" && a.EventType != f.EventType:
		return false
	case f.Status != "" && a.Status != f.Status:
		return false
	case !f.From.IsZero() && a.CreatedAt.Before(f.From):
		return false
	case !f.To.IsZero() && !a.CreatedAt.Before(f.To):
		return false
	}
	return true
}

func cloneAttempt(a *domain.DeliveryAttempt) *domain.DeliveryAttempt {
	c := *a
	c.Payload = slices.Clone(a.Payload)
	return &c
}
