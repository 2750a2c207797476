package domain

import (
	"time"
)

// DeliveryStatus is the state of a single delivery attempt.
type DeliveryStatus string

const (
	DeliveryPending   DeliveryStatus = "pending"
	DeliveryDelivered DeliveryStatus = "delivered"
	DeliveryFailed    DeliveryStatus = "failed"
	DeliverySkipped   DeliveryStatus = "skipped"
)

// IsTerminal reports whether no further transition may happen.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed || s == DeliverySkipped
}

// DeliveryAttempt is one try (original or retry) to deliver an event payload
// to a subscription. Retries are new records sharing EventID.
type DeliveryAttempt struct {
	ID             string         `json:"id"`
	SubscriptionID string         `json:"subscription_id"`
	EventID        string         `json:"event_id"`
	EventType      EventType      `json:"event_type"`
	RetryCount     int            `json:"retry_count"`
	Payload        []byte         `json:"-"`
	Status         DeliveryStatus `json:"status"`
	ResponseCode   *int           `json:"response_code,omitempty"`
	ResponseBody   *string        `json:"response_body,omitempty"`
	ResponseTimeMs *int64         `json:"response_time_ms,omitempty"`
	ErrorMessage   *string        `json:"error_message,omitempty"`
	NextRetryAt    *time.Time     `json:"next_retry_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	DeliveredAt    *time.Time     `json:"delivered_at,omitempty"`
}

// DeliveryFilter narrows delivery attempt listings. Zero values mean "any".
type DeliveryFilter struct {
	SubscriptionID string
	EventID        string
	EventType      EventType
	Status         DeliveryStatus
	From           time.Time
	To             time.Time
	Limit          int
}
