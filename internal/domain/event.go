package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventType identifies a kind of domain event. Only values from the catalog
// are accepted at registration and dispatch time.
type EventType string

const (
	EventUserCreated          EventType = "user.created"
	EventUserUpdated          EventType = "user.updated"
	EventUserDeleted          EventType = "user.deleted"
	EventPostCreated          EventType = "post.created"
	EventPostLiked            EventType = "post.liked"
	EventPostCommented        EventType = "post.commented"
	EventCommentCreated       EventType = "comment.created"
	EventFollowCreated        EventType = "follow.created"
	EventMessageSent          EventType = "message.sent"
	EventDonationCompleted    EventType = "donation.completed"
	EventDonationRefunded     EventType = "donation.refunded"
	EventTransactionCompleted EventType = "transaction.completed"
	EventTransactionFailed    EventType = "transaction.failed"
	EventEventRegistered      EventType = "event.registered"
	EventEventCancelled       EventType = "event.cancelled"
	EventMentorshipRequested  EventType = "mentorship.requested"
	EventMentorshipAccepted   EventType = "mentorship.accepted"

	// EventWebhookTest is sent once after registration. It is not part of the
	// subscribable catalog.
	EventWebhookTest EventType = "webhook.test"
)

// EventDefinition describes a catalog entry.
type EventDefinition struct {
	Event       EventType `json:"event"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
}

var catalog = []EventDefinition{
	{EventUserCreated, "User Created", "A new user account was created."},
	{EventUserUpdated, "User Updated", "A user changed their profile."},
	{EventUserDeleted, "User Deleted", "A user account was deleted."},
	{EventPostCreated, "Post Created", "A new post was published."},
	{EventPostLiked, "Post Liked", "A post received a like."},
	{EventPostCommented, "Post Commented", "A post received a comment."},
	{EventCommentCreated, "Comment Created", "A comment was created on any resource."},
	{EventFollowCreated, "Follow Created", "A user started following another user."},
	{EventMessageSent, "Message Sent", "A direct message was sent."},
	{EventDonationCompleted, "Donation Completed", "A donation was successfully processed."},
	{EventDonationRefunded, "Donation Refunded", "A donation was refunded."},
	{EventTransactionCompleted, "Transaction Completed", "A payment transaction settled."},
	{EventTransactionFailed, "Transaction Failed", "A payment transaction failed."},
	{EventEventRegistered, "Event Registered", "A user registered for an event."},
	{EventEventCancelled, "Event Cancelled", "An event was cancelled by its organizer."},
	{EventMentorshipRequested, "Mentorship Requested", "A mentorship request was sent."},
	{EventMentorshipAccepted, "Mentorship Accepted", "A mentorship request was accepted."},
}

var catalogIndex = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(catalog))
	for _, def := range catalog {
		m[def.Event] = struct{}{}
	}
	return m
}()

// Catalog returns the subscribable events in display order.
func Catalog() []EventDefinition {
	out := make([]EventDefinition, len(catalog))
	copy(out, catalog)
	return out
}

// IsKnown reports whether the event type is in the subscribable catalog.
func (e EventType) IsKnown() bool {
	_, ok := catalogIndex[e]
	return ok
}

func (e EventType) String() string {
	return string(e)
}

// ParseEventType validates a wire value against the catalog.
func ParseEventType(s string) (EventType, error) {
	e := EventType(s)
	if !e.IsKnown() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return e, nil
}

// Envelope is the JSON body delivered to subscribers.
type Envelope struct {
	ID        string          `json:"id"`
	Event     EventType       `json:"event"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}
