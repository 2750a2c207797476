package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/metrics"
	"github.com/Priya8975/hookline/internal/signature"
	"github.com/google/uuid"
)

// Outbound webhook headers.
const (
	HeaderWebhookID  = "X-Webhook-ID"
	HeaderEventType  = "X-Event-Type"
	HeaderDeliveryID = "X-Delivery-ID"
	HeaderAttemptID  = "X-Attempt-ID"
	HeaderTimestamp  = "X-Timestamp"
	HeaderRetryCount = "X-Retry-Count"
	HeaderSignature  = "X-Signature"
)

const (
	DefaultUserAgent = "Hookline-Webhooks/1.0"
	defaultTimeout   = 30 * time.Second
	circuitOpenError = "circuit breaker open"
)

// DeliveryStore persists delivery attempts.
type DeliveryStore interface {
	CreateDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error
	CompleteDeliveryAttempt(ctx context.Context, a *domain.DeliveryAttempt) error
}

// SubscriptionReader loads a subscription by ID, returning nil when it does
// not exist.
type SubscriptionReader interface {
	GetSubscription(ctx context.Context, id string) (*domain.Subscription, error)
}

// RetryQueue holds delayed retry tasks.
type RetryQueue interface {
	Enqueue(ctx context.Context, task engine.RetryTask, delay time.Duration) error
	Claim(ctx context.Context, batch int64) ([]engine.RetryTask, error)
	Depth(ctx context.Context) (int64, error)
}

// RetryScheduler decides when and how a failed attempt is retried.
type RetryScheduler interface {
	Delay(retryCount int) time.Duration
	ScheduleRetry(ctx context.Context, prior *domain.DeliveryAttempt)
}

// MetricsSink receives delivery metrics.
type MetricsSink interface {
	DeliveryAttemptCompleted(eventType, status, statusClass string, duration time.Duration)
	RetryScheduled(retryCount int)
	RetryScheduleFailed()
	RetryThrottled()
	RetryQueueDepth(depth int64)
}

// Observer is told about every finished delivery attempt.
type Observer interface {
	ObserveDelivery(sub *domain.Subscription, attempt *domain.DeliveryAttempt)
}

// CircuitBreaker guards endpoints that keep failing.
type CircuitBreaker interface {
	AllowRequest(ctx context.Context, subscriptionID string) (string, bool)
	RecordSuccess(ctx context.Context, subscriptionID string)
	RecordFailure(ctx context.Context, subscriptionID string)
}

// Delivery is one payload to send to one subscription.
type Delivery struct {
	EventID    string
	EventType  domain.EventType
	Payload    []byte
	RetryCount int
}

// Executor runs a single delivery attempt from pending to a terminal state.
type Executor struct {
	store     DeliveryStore
	sender    Sender
	retries   RetryScheduler
	metrics   MetricsSink
	logger    *slog.Logger
	breaker   CircuitBreaker
	observer  Observer
	userAgent string
	now       func() time.Time
	newID     func() string
}

type ExecutorOption func(*Executor)

func WithCircuitBreaker(cb CircuitBreaker) ExecutorOption {
	return func(e *Executor) { e.breaker = cb }
}

func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) { e.observer = o }
}

func WithUserAgent(ua string) ExecutorOption {
	return func(e *Executor) {
		if ua != "" {
			e.userAgent = ua
		}
	}
}

// NewExecutor creates an executor. A nil retries scheduler disables retries
// and a nil sink disables metrics.
func NewExecutor(store DeliveryStore, sender Sender, retries RetryScheduler, sink MetricsSink, logger *slog.Logger, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:     store,
		sender:    sender,
		retries:   retries,
		metrics:   sinkOrNoop(sink),
		logger:    logger,
		userAgent: DefaultUserAgent,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute records and performs one delivery attempt and returns it in its
// terminal state. It never fails: problems end up on the attempt record or
// in the log.
func (e *Executor) Execute(ctx context.Context, sub *domain.Subscription, d Delivery) *domain.DeliveryAttempt {
	persistCtx := context.WithoutCancel(ctx)

	attempt := &domain.DeliveryAttempt{
		ID:             e.newID(),
		SubscriptionID: sub.ID,
		EventID:        d.EventID,
		EventType:      d.EventType,
		RetryCount:     d.RetryCount,
		Payload:        d.Payload,
		Status:         domain.DeliveryPending,
		CreatedAt:      e.now().UTC(),
	}
	if err := e.store.CreateDeliveryAttempt(persistCtx, attempt); err != nil {
		e.logger.Error("failed to record pending delivery attempt",
			"error", err,
			"attempt_id", attempt.ID,
			"subscription_id", sub.ID,
		)
	}

	statusClass := metrics.StatusClassNone
	var elapsed time.Duration
	switch {
	case !sub.IsActive():
		skip(attempt, "subscription is paused")
	case !sub.Wants(d.EventType):
		skip(attempt, fmt.Sprintf("subscription does not accept %s events", d.EventType))
	default:
		statusClass, elapsed = e.deliver(persistCtx, sub, attempt)
	}

	retry := e.retries != nil &&
		attempt.Status == domain.DeliveryFailed &&
		attempt.RetryCount < sub.MaxRetryAttempts
	if retry {
		next := e.now().Add(e.retries.Delay(attempt.RetryCount)).UTC()
		attempt.NextRetryAt = &next
	}

	completedAt := e.now().UTC()
	attempt.DeliveredAt = &completedAt
	if err := e.store.CompleteDeliveryAttempt(persistCtx, attempt); err != nil {
		e.logger.Error("failed to record delivery outcome",
			"error", err,
			"attempt_id", attempt.ID,
			"subscription_id", sub.ID,
			"status", attempt.Status,
		)
	}

	if retry {
		e.retries.ScheduleRetry(persistCtx, attempt)
	}

	e.metrics.DeliveryAttemptCompleted(string(attempt.EventType), string(attempt.Status), statusClass, elapsed)
	if e.observer != nil {
		e.observer.ObserveDelivery(sub, attempt)
	}
	e.logOutcome(attempt)

	return attempt
}

// deliver sends the attempt's payload and classifies the outcome. The call is
// bounded by the subscription timeout and is not cancelled by ctx.
func (e *Executor) deliver(ctx context.Context, sub *domain.Subscription, attempt *domain.DeliveryAttempt) (string, time.Duration) {
	if e.breaker != nil {
		if _, allowed := e.breaker.AllowRequest(ctx, sub.ID); !allowed {
			fail(attempt, circuitOpenError)
			return metrics.StatusClassNone, 0
		}
	}

	header, err := e.buildHeaders(sub, attempt)
	if err != nil {
		fail(attempt, err.Error())
		return metrics.StatusClassOtherError, 0
	}

	timeout := sub.Timeout()
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.sender.Send(callCtx, sub.URL, header, attempt.Payload)
	elapsed := time.Since(start)
	if err == nil && resp == nil {
		err = errNoResponse
	}

	ms := elapsed.Milliseconds()
	attempt.ResponseTimeMs = &ms

	if err != nil {
		fail(attempt, describeTransportError(err, timeout))
		e.recordBreaker(ctx, sub.ID, false)
		return metrics.ClassifyError(err), elapsed
	}

	code := resp.StatusCode
	body := resp.Body
	attempt.ResponseCode = &code
	attempt.ResponseBody = &body

	if code >= 200 && code < 300 {
		attempt.Status = domain.DeliveryDelivered
		e.recordBreaker(ctx, sub.ID, true)
	} else {
		fail(attempt, fmt.Sprintf("endpoint returned HTTP %d", code))
		e.recordBreaker(ctx, sub.ID, false)
	}
	return metrics.ClassifyStatus(code, nil), elapsed
}

// buildHeaders applies custom headers first so system headers win.
func (e *Executor) buildHeaders(sub *domain.Subscription, attempt *domain.DeliveryAttempt) (http.Header, error) {
	h := make(http.Header, len(sub.Headers)+9)
	for name, value := range sub.Headers {
		h.Set(name, value)
	}

	h.Set("Content-Type", "application/json")
	h.Set("User-Agent", e.userAgent)
	h.Set(HeaderWebhookID, sub.ID)
	h.Set(HeaderEventType, string(attempt.EventType))
	h.Set(HeaderDeliveryID, attempt.EventID)
	h.Set(HeaderAttemptID, attempt.ID)
	h.Set(HeaderTimestamp, strconv.FormatInt(e.now().Unix(), 10))
	if attempt.RetryCount > 0 {
		h.Set(HeaderRetryCount, strconv.Itoa(attempt.RetryCount))
	} else {
		h.Del(HeaderRetryCount)
	}
	h.Del(HeaderSignature)

	if sub.Secret != "" {
		sig, err := signature.Sign(attempt.Payload, []byte(sub.Secret))
		if err != nil {
			return nil, fmt.Errorf("signing payload: %w", err)
		}
		h.Set(HeaderSignature, sig)
	}
	return h, nil
}

func (e *Executor) recordBreaker(ctx context.Context, subscriptionID string, ok bool) {
	if e.breaker == nil {
		return
	}
	if ok {
		e.breaker.RecordSuccess(ctx, subscriptionID)
	} else {
		e.breaker.RecordFailure(ctx, subscriptionID)
	}
}

func (e *Executor) logOutcome(a *domain.DeliveryAttempt) {
	attrs := []any{
		"attempt_id", a.ID,
		"event_id", a.EventID,
		"event_type", a.EventType,
		"subscription_id", a.SubscriptionID,
		"retry_count", a.RetryCount,
	}
	if a.ResponseCode != nil {
		attrs = append(attrs, "status_code", *a.ResponseCode)
	}
	if a.ResponseTimeMs != nil {
		attrs = append(attrs, "response_time_ms", *a.ResponseTimeMs)
	}

	switch a.Status {
	case domain.DeliveryDelivered:
		e.logger.Info("delivery successful", attrs...)
	case domain.DeliverySkipped:
		e.logger.Info("delivery skipped", append(attrs, "reason", deref(a.ErrorMessage))...)
	default:
		e.logger.Warn("delivery failed", append(attrs, "error", deref(a.ErrorMessage))...)
	}
}

func skip(a *domain.DeliveryAttempt, reason string) {
	a.Status = domain.DeliverySkipped
	a.ErrorMessage = &reason
}

var errNoResponse = errors.New("sender returned no response")

func fail(a *domain.DeliveryAttempt, msg string) {
	a.Status = domain.DeliveryFailed
	a.ErrorMessage = &msg
}

// describeTransportError renders a transport failure for the attempt record.
func describeTransportError(err error, timeout time.Duration) string {
	switch metrics.ClassifyError(err) {
	case metrics.StatusClassTimeout:
		return fmt.Sprintf("request timed out after %s", timeout)
	case metrics.StatusClassDNS:
		return fmt.Sprintf("DNS lookup failed: %v", err)
	case metrics.StatusClassConnectionError:
		return fmt.Sprintf("connection failed: %v", err)
	case metrics.StatusClassTLS:
		return fmt.Sprintf("TLS handshake failed: %v", err)
	default:
		return fmt.Sprintf("request failed: %v", err)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func sinkOrNoop(sink MetricsSink) MetricsSink {
	if sink == nil {
		return metrics.NewNoopSink()
	}
	return sink
}
