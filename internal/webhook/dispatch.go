package webhook

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Dispatch delivers one event to every subscription listening for it and
// returns one attempt per subscription, in no particular order. Paused
// subscriptions get a skipped attempt. A subscriber failure never makes
// Dispatch fail; only an unknown event, a bad payload or a store error do.
func (s *Service) Dispatch(ctx context.Context, eventType domain.EventType, payload any) ([]*domain.DeliveryAttempt, error) {
	if !eventType.IsKnown() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, eventType)
	}

	subs, err := s.subs.FindSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return nil, fmt.Errorf("finding subscriptions: %w", err)
	}
	if len(subs) == 0 {
		s.logger.Info("no matching subscriptions", "event_type", eventType)
		return []*domain.DeliveryAttempt{}, nil
	}

	body, eventID, err := s.buildEnvelope(eventType, payload)
	if err != nil {
		return nil, err
	}

	attempts := make([]*domain.DeliveryAttempt, len(subs))

	var g errgroup.Group
	g.SetLimit(s.cfg.DispatchConcurrency)
	for i := range subs {
		sub := &subs[i]
		d := worker.Delivery{EventID: eventID, EventType: eventType, Payload: body}
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					attempts[i] = s.crashedAttempt(sub, d, r)
				}
			}()
			attempts[i] = s.executor.Execute(ctx, sub, d)
			return nil
		})
	}
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.DispatchFanout(string(eventType), len(subs))
	}
	s.logger.Info("event dispatched",
		"event_id", eventID,
		"event_type", eventType,
		"subscriptions", len(subs),
	)

	return attempts, nil
}

// crashedAttempt stands in for a delivery whose execution panicked so the
// other subscriptions of the event are still reported.
func (s *Service) crashedAttempt(sub *domain.Subscription, d worker.Delivery, cause any) *domain.DeliveryAttempt {
	s.logger.Error("delivery panicked",
		"subscription_id", sub.ID,
		"event_id", d.EventID,
		"panic", cause,
		"stack", string(debug.Stack()),
	)
	now := s.now()
	msg := fmt.Sprintf("internal error: %v", cause)
	return &domain.DeliveryAttempt{
		ID:             s.newID(),
		SubscriptionID: sub.ID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		Payload:        d.Payload,
		Status:         domain.DeliveryFailed,
		ErrorMessage:   &msg,
		CreatedAt:      now,
		DeliveredAt:    &now,
	}
}
