package domain

import (
	"slices"
	"time"
)

// SubscriptionStatus controls whether a subscription receives deliveries.
type SubscriptionStatus string

const (
	StatusActive SubscriptionStatus = "active"
	StatusPaused SubscriptionStatus = "paused"
)

// Subscription is a webhook endpoint registered by an account.
type Subscription struct {
	ID                 string             `json:"id"`
	OwnerID            string             `json:"owner_id"`
	Name               string             `json:"name,omitempty"`
	Description        string             `json:"description,omitempty"`
	URL                string             `json:"url"`
	Events             []EventType        `json:"events"`
	Secret             string             `json:"secret,omitempty"`
	Status             SubscriptionStatus `json:"status"`
	Headers            map[string]string  `json:"headers,omitempty"`
	TimeoutSeconds     int                `json:"timeout_seconds"`
	MaxRetryAttempts   int                `json:"max_retry_attempts"`
	RateLimitPerSecond int                `json:"rate_limit_per_second"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// IsActive reports whether the subscription currently receives deliveries.
func (s *Subscription) IsActive() bool {
	return s.Status == StatusActive
}

// Wants reports whether the subscription accepts the given event type.
// The synthetic test event is accepted by every subscription.
func (s *Subscription) Wants(event EventType) bool {
	if event == EventWebhookTest {
		return true
	}
	return slices.Contains(s.Events, event)
}

// Timeout returns the hard upper bound for one delivery call.
func (s *Subscription) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// Clone returns a deep copy so callers can mutate without sharing maps or slices.
func (s *Subscription) Clone() *Subscription {
	c := *s
	c.Events = slices.Clone(s.Events)
	if s.Headers != nil {
		c.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			c.Headers[k] = v
		}
	}
	return &c
}
