// Package webhook is the entry point for registering subscriptions and
// dispatching events to them.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/signature"
	"github.com/Priya8975/hookline/internal/worker"
	"github.com/google/uuid"
)

// SubscriptionStore persists subscriptions. Lookups return nil, nil when the
// subscription does not exist.
type SubscriptionStore interface {
	CreateSubscription(ctx context.Context, sub *domain.Subscription) error
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
	ListSubscriptions(ctx context.Context, ownerID string) ([]domain.Subscription, error)
	FindSubscriptionsForEvent(ctx context.Context, eventType domain.EventType) ([]domain.Subscription, error)
	UpdateSubscription(ctx context.Context, sub *domain.Subscription) (*domain.Subscription, error)
	SetSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (*domain.Subscription, error)
	DeleteSubscription(ctx context.Context, id string) (bool, error)
}

// DeliveryReader reads delivery attempts for reporting.
type DeliveryReader interface {
	ListDeliveryAttempts(ctx context.Context, f domain.DeliveryFilter) ([]domain.DeliveryAttempt, error)
	GetDeliveryAttempt(ctx context.Context, id string) (*domain.DeliveryAttempt, error)
	GetDeliveryMetrics(ctx context.Context) (*domain.DeliveryMetrics, error)
}

// Executor performs one delivery attempt.
type Executor interface {
	Execute(ctx context.Context, sub *domain.Subscription, d worker.Delivery) *domain.DeliveryAttempt
}

// RetryPurger drops queued retries of a deleted subscription.
type RetryPurger interface {
	Purge(ctx context.Context, subscriptionID string) (int, error)
}

// CircuitBreaker exposes per-subscription circuit state.
type CircuitBreaker interface {
	GetState(ctx context.Context, subscriptionID string) engine.CircuitBreakerState
	Reset(ctx context.Context, subscriptionID string)
}

// DispatchMetrics records fan-out sizes.
type DispatchMetrics interface {
	DispatchFanout(eventType string, subscriptions int)
}

// Config holds registration defaults and limits.
type Config struct {
	DispatchConcurrency   int
	DefaultTimeoutSeconds int
	MaxTimeoutSeconds     int
	DefaultMaxRetries     int
	MaxRetryAttemptsLimit int
	ProbeTimeout          time.Duration
}

// DefaultConfig returns the limits used when none are configured.
func DefaultConfig() Config {
	return Config{
		DispatchConcurrency:   16,
		DefaultTimeoutSeconds: 30,
		MaxTimeoutSeconds:     60,
		DefaultMaxRetries:     3,
		MaxRetryAttemptsLimit: 10,
		ProbeTimeout:          5 * time.Second,
	}
}

// Service manages subscriptions and dispatches events to them.
type Service struct {
	subs       SubscriptionStore
	deliveries DeliveryReader
	executor   Executor
	cfg        Config
	logger     *slog.Logger

	prober  worker.Prober
	purger  RetryPurger
	breaker CircuitBreaker
	metrics DispatchMetrics

	now   func() time.Time
	newID func() string
}

type Option func(*Service)

// WithProber enables the reachability check at registration.
func WithProber(p worker.Prober) Option {
	return func(s *Service) { s.prober = p }
}

func WithRetryPurger(p RetryPurger) Option {
	return func(s *Service) { s.purger = p }
}

func WithCircuitBreaker(cb CircuitBreaker) Option {
	return func(s *Service) { s.breaker = cb }
}

func WithDispatchMetrics(m DispatchMetrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(subs SubscriptionStore, deliveries DeliveryReader, executor Executor, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	defaults := DefaultConfig()
	if cfg.DispatchConcurrency <= 0 {
		cfg.DispatchConcurrency = defaults.DispatchConcurrency
	}
	if cfg.DefaultTimeoutSeconds <= 0 {
		cfg.DefaultTimeoutSeconds = defaults.DefaultTimeoutSeconds
	}
	if cfg.MaxTimeoutSeconds <= 0 {
		cfg.MaxTimeoutSeconds = defaults.MaxTimeoutSeconds
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaults.ProbeTimeout
	}
	s := &Service{
		subs:       subs,
		deliveries: deliveries,
		executor:   executor,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RegisterInput describes a new subscription. Nil pointers take defaults.
type RegisterInput struct {
	OwnerID            string            `json:"owner_id"`
	URL                string            `json:"url"`
	Events             []string          `json:"events"`
	Secret             string            `json:"secret,omitempty"`
	Name               string            `json:"name,omitempty"`
	Description        string            `json:"description,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty"`
	MaxRetryAttempts   *int              `json:"max_retry_attempts,omitempty"`
	RateLimitPerSecond *int              `json:"rate_limit_per_second,omitempty"`
}

// RegisterResult is a stored subscription plus the outcome of its
// reachability probe and test delivery.
type RegisterResult struct {
	Subscription *domain.Subscription    `json:"subscription"`
	Warnings     []string                `json:"warnings,omitempty"`
	TestDelivery *domain.DeliveryAttempt `json:"test_delivery,omitempty"`
}

// Register validates and stores a new subscription, then sends it a
// webhook.test event. An unreachable URL produces a warning, not an error.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*RegisterResult, error) {
	verr := &ValidationError{}

	if in.OwnerID == "" {
		verr.Add("owner_id", "is required")
	}
	validateURL(in.URL, verr)
	events := parseEvents(in.Events, verr)
	validateHeaders(in.Headers, verr)

	sub := &domain.Subscription{
		ID:                 s.newID(),
		OwnerID:            in.OwnerID,
		Name:               in.Name,
		Description:        in.Description,
		URL:                in.URL,
		Events:             events,
		Secret:             in.Secret,
		Status:             domain.StatusActive,
		Headers:            in.Headers,
		TimeoutSeconds:     valueOr(in.TimeoutSeconds, s.cfg.DefaultTimeoutSeconds),
		MaxRetryAttempts:   valueOr(in.MaxRetryAttempts, s.cfg.DefaultMaxRetries),
		RateLimitPerSecond: valueOr(in.RateLimitPerSecond, 0),
	}
	s.validateLimits(sub, verr)

	if err := verr.Err(); err != nil {
		return nil, err
	}

	if sub.Secret == "" {
		secret, err := GenerateSecret()
		if err != nil {
			return nil, err
		}
		sub.Secret = secret
	}

	result := &RegisterResult{Subscription: sub}
	if warning := s.probe(ctx, sub.URL); warning != "" {
		result.Warnings = append(result.Warnings, warning)
	}

	if err := s.subs.CreateSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}

	s.logger.Info("subscription registered",
		"subscription_id", sub.ID,
		"owner_id", sub.OwnerID,
		"events", len(sub.Events),
	)

	test, err := s.sendTestEvent(ctx, sub)
	if err != nil {
		s.logger.Error("failed to send test event", "error", err, "subscription_id", sub.ID)
	} else {
		result.TestDelivery = test
	}

	return result, nil
}

func (s *Service) probe(ctx context.Context, url string) string {
	if s.prober == nil {
		return ""
	}
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	if err := s.prober.Probe(probeCtx, url); err != nil {
		s.logger.Warn("endpoint unreachable at registration", "url", url, "error", err)
		return fmt.Sprintf("endpoint is not reachable yet: %v", err)
	}
	return ""
}

func (s *Service) sendTestEvent(ctx context.Context, sub *domain.Subscription) (*domain.DeliveryAttempt, error) {
	body, eventID, err := s.buildEnvelope(domain.EventWebhookTest, map[string]string{
		"subscription_id": sub.ID,
		"message":         "Webhook subscription created successfully",
	})
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, sub, worker.Delivery{
		EventID:   eventID,
		EventType: domain.EventWebhookTest,
		Payload:   body,
	}), nil
}

// UpdateInput is a partial update. Nil fields are left unchanged; a non-nil
// empty Events or Headers replaces the current value.
type UpdateInput struct {
	URL                *string           `json:"url,omitempty"`
	Events             []string          `json:"events,omitempty"`
	Secret             *string           `json:"secret,omitempty"`
	Name               *string           `json:"name,omitempty"`
	Description        *string           `json:"description,omitempty"`
	Headers            map[string]string `json:"headers,omitempty"`
	TimeoutSeconds     *int              `json:"timeout_seconds,omitempty"`
	MaxRetryAttempts   *int              `json:"max_retry_attempts,omitempty"`
	RateLimitPerSecond *int              `json:"rate_limit_per_second,omitempty"`
}

// Update applies a partial change to a subscription.
func (s *Service) Update(ctx context.Context, id string, in UpdateInput) (*domain.Subscription, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	sub := current.Clone()
	verr := &ValidationError{}

	if in.URL != nil {
		validateURL(*in.URL, verr)
		sub.URL = *in.URL
	}
	if in.Events != nil {
		sub.Events = parseEvents(in.Events, verr)
	}
	if in.Secret != nil {
		if *in.Secret == "" {
			verr.Add("secret", signature.ErrEmptySecret.Error())
		}
		sub.Secret = *in.Secret
	}
	if in.Name != nil {
		sub.Name = *in.Name
	}
	if in.Description != nil {
		sub.Description = *in.Description
	}
	if in.Headers != nil {
		validateHeaders(in.Headers, verr)
		sub.Headers = in.Headers
	}
	if in.TimeoutSeconds != nil {
		sub.TimeoutSeconds = *in.TimeoutSeconds
	}
	if in.MaxRetryAttempts != nil {
		sub.MaxRetryAttempts = *in.MaxRetryAttempts
	}
	if in.RateLimitPerSecond != nil {
		sub.RateLimitPerSecond = *in.RateLimitPerSecond
	}
	s.validateLimits(sub, verr)

	if err := verr.Err(); err != nil {
		return nil, err
	}

	updated, err := s.subs.UpdateSubscription(ctx, sub)
	if err != nil {
		return nil, fmt.Errorf("updating subscription: %w", err)
	}
	if updated == nil {
		return nil, ErrSubscriptionNotFound
	}

	s.logger.Info("subscription updated", "subscription_id", id)
	return updated, nil
}

// Pause stops deliveries to a subscription. Dispatches and due retries are
// recorded as skipped until it is resumed.
func (s *Service) Pause(ctx context.Context, id string) (*domain.Subscription, error) {
	return s.setStatus(ctx, id, domain.StatusPaused)
}

// Resume re-enables deliveries and clears any open circuit.
func (s *Service) Resume(ctx context.Context, id string) (*domain.Subscription, error) {
	sub, err := s.setStatus(ctx, id, domain.StatusActive)
	if err != nil {
		return nil, err
	}
	if s.breaker != nil {
		s.breaker.Reset(ctx, id)
	}
	return sub, nil
}

func (s *Service) setStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	if !isID(id) {
		return nil, ErrSubscriptionNotFound
	}
	sub, err := s.subs.SetSubscriptionStatus(ctx, id, status)
	if err != nil {
		return nil, fmt.Errorf("setting subscription status: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	s.logger.Info("subscription status changed", "subscription_id", id, "status", status)
	return sub, nil
}

// Delete removes a subscription with its delivery history and queued retries.
func (s *Service) Delete(ctx context.Context, id string) error {
	if !isID(id) {
		return ErrSubscriptionNotFound
	}
	deleted, err := s.subs.DeleteSubscription(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	if !deleted {
		return ErrSubscriptionNotFound
	}

	if s.purger != nil {
		purged, err := s.purger.Purge(ctx, id)
		if err != nil {
			s.logger.Error("failed to purge queued retries", "error", err, "subscription_id", id)
		} else if purged > 0 {
			s.logger.Info("purged queued retries", "subscription_id", id, "count", purged)
		}
	}
	if s.breaker != nil {
		s.breaker.Reset(ctx, id)
	}

	s.logger.Info("subscription deleted", "subscription_id", id)
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*domain.Subscription, error) {
	if !isID(id) {
		return nil, ErrSubscriptionNotFound
	}
	sub, err := s.subs.GetSubscription(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting subscription: %w", err)
	}
	if sub == nil {
		return nil, ErrSubscriptionNotFound
	}
	return sub, nil
}

// List returns all subscriptions, or only those of ownerID when it is set.
func (s *Service) List(ctx context.Context, ownerID string) ([]domain.Subscription, error) {
	subs, err := s.subs.ListSubscriptions(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}
	return subs, nil
}

// ListAvailableEvents returns the subscribable event catalog.
func (s *Service) ListAvailableEvents() []domain.EventDefinition {
	return domain.Catalog()
}

// SubscriptionHealth reports the circuit breaker state of a subscription.
func (s *Service) SubscriptionHealth(ctx context.Context, id string) (*engine.CircuitBreakerState, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	state := engine.CircuitBreakerState{State: engine.StateClosed}
	if s.breaker != nil {
		state = s.breaker.GetState(ctx, id)
	}
	return &state, nil
}

// buildEnvelope wraps payload in a canonical envelope with a fresh event ID.
func (s *Service) buildEnvelope(eventType domain.EventType, payload any) ([]byte, string, error) {
	data, err := signature.Canonicalize(payload)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	env := domain.Envelope{
		ID:        s.newID(),
		Event:     eventType,
		Timestamp: s.now().UTC().Truncate(time.Second),
		Data:      json.RawMessage(data),
	}
	body, err := signature.Canonicalize(env)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return body, env.ID, nil
}

func valueOr(v *int, fallback int) int {
	if v == nil {
		return fallback
	}
	return *v
}
