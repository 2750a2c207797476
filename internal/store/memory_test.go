package store

import (
	"context"
	"testing"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSubscription(id, owner string, events ...domain.EventType) *domain.Subscription {
	return &domain.Subscription{
		ID:               id,
		OwnerID:          owner,
		URL:              "https://example.com/hooks",
		Events:           events,
		Secret:           "whsec_test",
		Status:           domain.StatusActive,
		Headers:          map[string]string{"X-Env": "test"},
		TimeoutSeconds:   30,
		MaxRetryAttempts: 3,
	}
}

func newAttempt(id, subID string, status domain.DeliveryStatus, created time.Time) *domain.DeliveryAttempt {
	return &domain.DeliveryAttempt{
		ID:             id,
		SubscriptionID: subID,
		EventID:        "evt-1",
		EventType:      domain.EventPostLiked,
		Payload:        []byte(`{"id":"evt-1"}`),
		Status:         status,
		CreatedAt:      created,
	}
}

func TestMemoryStore_SubscriptionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	sub := newSubscription("sub-1", "owner-1", domain.EventPostLiked)
	require.NoError(t, s.CreateSubscription(ctx, sub))
	assert.False(t, sub.CreatedAt.IsZero())

	got, err := s.GetSubscription(ctx, "sub-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "owner-1", got.OwnerID)

	got.Headers["X-Env"] = "mutated"
	again, _ := s.GetSubscription(ctx, "sub-1")
	assert.Equal(t, "test", again.Headers["X-Env"], "stored copy must not alias caller maps")

	missing, err := s.GetSubscription(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_FindSubscriptionsForEventIncludesPaused(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateSubscription(ctx, newSubscription("a", "o", domain.EventPostLiked)))
	paused := newSubscription("b", "o", domain.EventPostLiked, domain.EventUserCreated)
	paused.Status = domain.StatusPaused
	require.NoError(t, s.CreateSubscription(ctx, paused))
	require.NoError(t, s.CreateSubscription(ctx, newSubscription("c", "o", domain.EventUserCreated)))

	subs, err := s.FindSubscriptionsForEvent(ctx, domain.EventPostLiked)
	require.NoError(t, err)
	ids := []string{}
	for _, sub := range subs {
		ids = append(ids, sub.ID)
	}
	assert.ElementsMatch(t, []string{"a", "b"}, ids)

	none, err := s.FindSubscriptionsForEvent(ctx, domain.EventDonationRefunded)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_ListSubscriptionsByOwner(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.CreateSubscription(ctx, newSubscription("a", "o1", domain.EventPostLiked)))
	require.NoError(t, s.CreateSubscription(ctx, newSubscription("b", "o2", domain.EventPostLiked)))

	mine, err := s.ListSubscriptions(ctx, "o1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "a", mine[0].ID)

	all, err := s.ListSubscriptions(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestMemoryStore_UpdateAndStatus(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	require.NoError(t, s.CreateSubscription(ctx, newSubscription("a", "o1", domain.EventPostLiked)))

	changed := newSubscription("a", "someone-else", domain.EventUserCreated)
	changed.URL = "https://example.com/v2"
	updated, err := s.UpdateSubscription(ctx, changed)
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "https://example.com/v2", updated.URL)
	assert.Equal(t, "o1", updated.OwnerID, "owner is immutable")

	paused, err := s.SetSubscriptionStatus(ctx, "a", domain.StatusPaused)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	missing, err := s.UpdateSubscription(ctx, newSubscription("zzz", "o1"))
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestMemoryStore_DeleteCascadesAttempts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()

	require.NoError(t, s.CreateSubscription(ctx, newSubscription("a", "o", domain.EventPostLiked)))
	require.NoError(t, s.CreateSubscription(ctx, newSubscription("b", "o", domain.EventPostLiked)))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("1", "a", domain.DeliveryPending, now)))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("2", "b", domain.DeliveryPending, now)))

	deleted, err := s.DeleteSubscription(ctx, "a")
	require.NoError(t, err)
	assert.True(t, deleted)

	attempts, err := s.ListDeliveryAttempts(ctx, domain.DeliveryFilter{})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "b", attempts[0].SubscriptionID)

	deleted, err = s.DeleteSubscription(ctx, "a")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func TestMemoryStore_CompleteDeliveryAttemptOnlyFromPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()

	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("1", "a", domain.DeliveryPending, now)))

	code := 200
	done := newAttempt("1", "a", domain.DeliveryDelivered, now)
	done.ResponseCode = &code
	done.DeliveredAt = &now
	require.NoError(t, s.CompleteDeliveryAttempt(ctx, done))

	got, err := s.GetDeliveryAttempt(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryDelivered, got.Status)
	assert.Equal(t, 200, *got.ResponseCode)

	again := newAttempt("1", "a", domain.DeliveryFailed, now)
	assert.ErrorIs(t, s.CompleteDeliveryAttempt(ctx, again), ErrAttemptNotPending)
	assert.ErrorIs(t, s.CompleteDeliveryAttempt(ctx, newAttempt("missing", "a", domain.DeliveryFailed, now)), ErrAttemptNotPending)
}

func TestMemoryStore_ListDeliveryAttemptsFilters(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("1", "a", domain.DeliveryDelivered, base)))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("2", "a", domain.DeliveryFailed, base.Add(time.Minute))))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("3", "b", domain.DeliveryFailed, base.Add(2*time.Minute))))

	failed, err := s.ListDeliveryAttempts(ctx, domain.DeliveryFilter{Status: domain.DeliveryFailed})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "3", failed[0].ID, "newest first")

	windowed, err := s.ListDeliveryAttempts(ctx, domain.DeliveryFilter{
		SubscriptionID: "a",
		From:           base,
		To:             base.Add(time.Minute),
	})
	require.NoError(t, err)
	require.Len(t, windowed, 1)
	assert.Equal(t, "1", windowed[0].ID)

	limited, err := s.ListDeliveryAttempts(ctx, domain.DeliveryFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestMemoryStore_GetDeliveryMetrics(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	now := time.Now()

	active := newSubscription("a", "o", domain.EventPostLiked)
	paused := newSubscription("b", "o", domain.EventPostLiked)
	paused.Status = domain.StatusPaused
	require.NoError(t, s.CreateSubscription(ctx, active))
	require.NoError(t, s.CreateSubscription(ctx, paused))

	ms := int64(100)
	delivered := newAttempt("1", "a", domain.DeliveryDelivered, now)
	delivered.ResponseTimeMs = &ms
	require.NoError(t, s.CreateDeliveryAttempt(ctx, delivered))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("2", "a", domain.DeliveryFailed, now)))
	require.NoError(t, s.CreateDeliveryAttempt(ctx, newAttempt("3", "b", domain.DeliverySkipped, now)))

	m, err := s.GetDeliveryMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalDeliveries)
	assert.Equal(t, 1, m.DeliveredCount)
	assert.Equal(t, 1, m.FailedCount)
	assert.Equal(t, 1, m.SkippedCount)
	assert.InDelta(t, 0.5, m.SuccessRate, 1e-9)
	assert.InDelta(t, 100.0, m.AvgResponseMs, 1e-9)
	assert.Equal(t, 1, m.ActiveSubscriptions)
	assert.Equal(t, 1, m.PausedSubscriptions)
}
