package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/signature"
	"github.com/Priya8975/hookline/internal/store"
	"github.com/Priya8975/hookline/internal/worker"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentRequest struct {
	url    string
	header http.Header
	body   []byte
}

// fakeSender answers by URL, 200 unless configured otherwise.
type fakeSender struct {
	mu       sync.Mutex
	codes    map[string]int
	requests []sentRequest
}

func (s *fakeSender) Send(_ context.Context, url string, header http.Header, body []byte) (*worker.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, sentRequest{url: url, header: header.Clone(), body: body})
	code, ok := s.codes[url]
	if !ok {
		code = http.StatusOK
	}
	return &worker.Response{StatusCode: code}, nil
}

func (s *fakeSender) sent() []sentRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentRequest(nil), s.requests...)
}

type fakeProber struct{ err error }

func (p fakeProber) Probe(context.Context, string) error { return p.err }

type testEnv struct {
	svc    *Service
	store  *store.MemoryStore
	sender *fakeSender
	queue  *engine.RetryQueue
}

func newTestEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	env := &testEnv{
		store:  store.NewMemory(),
		sender: &fakeSender{codes: map[string]int{}},
		queue:  engine.NewRetryQueue(client, logger),
	}
	sched := worker.NewScheduler(env.queue, nil, nil, logger)
	exec := worker.NewExecutor(env.store, env.sender, sched, nil, logger)

	opts = append([]Option{WithRetryPurger(env.queue)}, opts...)
	env.svc = NewService(env.store, env.store, exec, DefaultConfig(), logger, opts...)
	return env
}

func (e *testEnv) register(t *testing.T, owner, url string, events ...string) *domain.Subscription {
	t.Helper()
	res, err := e.svc.Register(context.Background(), RegisterInput{OwnerID: owner, URL: url, Events: events})
	require.NoError(t, err)
	return res.Subscription
}

func (e *testEnv) attempts(t *testing.T, f domain.DeliveryFilter) []domain.DeliveryAttempt {
	t.Helper()
	attempts, err := e.store.ListDeliveryAttempts(context.Background(), f)
	require.NoError(t, err)
	return attempts
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }

func TestRegister_StoresSubscriptionAndSendsTestEvent(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Register(context.Background(), RegisterInput{
		OwnerID: "acct-1",
		URL:     "https://hooks.example.com/in",
		Events:  []string{"donation.completed", "user.created"},
		Name:    "Donations",
	})
	require.NoError(t, err)

	sub := res.Subscription
	assert.NotEmpty(t, sub.ID)
	assert.Equal(t, domain.StatusActive, sub.Status)
	assert.True(t, strings.HasPrefix(sub.Secret, "whsec_"))
	assert.Len(t, sub.Secret, len("whsec_")+64)
	assert.Equal(t, 30, sub.TimeoutSeconds)
	assert.Equal(t, 3, sub.MaxRetryAttempts)
	assert.Empty(t, res.Warnings)

	stored, err := env.store.GetSubscription(context.Background(), sub.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)

	require.NotNil(t, res.TestDelivery)
	assert.Equal(t, domain.EventWebhookTest, res.TestDelivery.EventType)
	assert.Equal(t, domain.DeliveryDelivered, res.TestDelivery.Status)

	sent := env.sender.sent()
	require.Len(t, sent, 1)
	assert.True(t, signature.Verify(sent[0].body, []byte(sub.Secret), sent[0].header.Get(worker.HeaderSignature)))

	var envelope domain.Envelope
	require.NoError(t, json.Unmarshal(sent[0].body, &envelope))
	assert.Equal(t, domain.EventWebhookTest, envelope.Event)
	assert.Equal(t, res.TestDelivery.EventID, envelope.ID)
	assert.Contains(t, string(envelope.Data), sub.ID)
}

func TestRegister_KeepsProvidedSecretAndDedupesEvents(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.svc.Register(context.Background(), RegisterInput{
		OwnerID:          "acct-1",
		URL:              "http://localhost:9000/hook",
		Events:           []string{"post.liked", "post.liked", "user.created"},
		Secret:           "my-own-secret",
		TimeoutSeconds:   intPtr(10),
		MaxRetryAttempts: intPtr(0),
	})
	require.NoError(t, err)

	assert.Equal(t, "my-own-secret", res.Subscription.Secret)
	assert.Equal(t, []domain.EventType{domain.EventPostLiked, domain.EventUserCreated}, res.Subscription.Events)
	assert.Equal(t, 10, res.Subscription.TimeoutSeconds)
	assert.Equal(t, 0, res.Subscription.MaxRetryAttempts)
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name  string
		in    RegisterInput
		field string
	}{
		{"missing owner", RegisterInput{URL: "https://a.example", Events: []string{"user.created"}}, "owner_id"},
		{"missing url", RegisterInput{OwnerID: "o", Events: []string{"user.created"}}, "url"},
		{"ftp url", RegisterInput{OwnerID: "o", URL: "ftp://a.example", Events: []string{"user.created"}}, "url"},
		{"relative url", RegisterInput{OwnerID: "o", URL: "/hooks", Events: []string{"user.created"}}, "url"},
		{"no events", RegisterInput{OwnerID: "o", URL: "https://a.example"}, "events"},
		{"unknown event", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"order.shipped"}}, "events"},
		{"test event not subscribable", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"webhook.test"}}, "events"},
		{"zero timeout", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, TimeoutSeconds: intPtr(0)}, "timeout_seconds"},
		{"timeout too long", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, TimeoutSeconds: intPtr(61)}, "timeout_seconds"},
		{"negative retries", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, MaxRetryAttempts: intPtr(-1)}, "max_retry_attempts"},
		{"too many retries", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, MaxRetryAttempts: intPtr(11)}, "max_retry_attempts"},
		{"negative rate limit", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, RateLimitPerSecond: intPtr(-5)}, "rate_limit_per_second"},
		{"bad header name", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, Headers: map[string]string{"Bad Header": "x"}}, "headers"},
		{"header injection", RegisterInput{OwnerID: "o", URL: "https://a.example", Events: []string{"user.created"}, Headers: map[string]string{"X-Ok": "a\r\nX-Evil: 1"}}, "headers"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			res, err := env.svc.Register(context.Background(), tt.in)
			assert.Nil(t, res)
			require.ErrorIs(t, err, ErrValidation)

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields, tt.field)

			subs, _ := env.store.ListSubscriptions(context.Background(), "")
			assert.Empty(t, subs, "invalid registration must not be stored")
			assert.Empty(t, env.sender.sent())
		})
	}
}

func TestRegister_UnreachableEndpointWarnsButStores(t *testing.T) {
	env := newTestEnv(t, WithProber(fakeProber{err: errors.New("connection refused")}))

	res, err := env.svc.Register(context.Background(), RegisterInput{
		OwnerID: "acct-1",
		URL:     "https://offline.example.com",
		Events:  []string{"user.created"},
	})
	require.NoError(t, err)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "not reachable")

	_, err = env.svc.Get(context.Background(), res.Subscription.ID)
	assert.NoError(t, err)
}

func TestDispatch_NoSubscribersWritesNothing(t *testing.T) {
	env := newTestEnv(t)

	attempts, err := env.svc.Dispatch(context.Background(), domain.EventDonationRefunded, map[string]any{"amount": 5})
	require.NoError(t, err)

	assert.NotNil(t, attempts)
	assert.Empty(t, attempts)
	assert.Empty(t, env.attempts(t, domain.DeliveryFilter{}))
	assert.Empty(t, env.sender.sent())
}

func TestDispatch_UnknownEvent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.svc.Dispatch(context.Background(), domain.EventType("order.shipped"), nil)
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = env.svc.Dispatch(context.Background(), domain.EventWebhookTest, nil)
	assert.ErrorIs(t, err, ErrUnknownEvent, "the test event is not dispatchable")
}

func TestDispatch_OneAttemptPerMatchingSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.register(t, "o1", "https://a.example/hook", "donation.completed")
	b := env.register(t, "o2", "https://b.example/hook", "donation.completed", "user.created")
	paused := env.register(t, "o3", "https://c.example/hook", "donation.completed")
	env.register(t, "o4", "https://d.example/hook", "user.created")
	_, err := env.svc.Pause(ctx, paused.ID)
	require.NoError(t, err)

	before := len(env.sender.sent())
	attempts, err := env.svc.Dispatch(ctx, domain.EventDonationCompleted, map[string]any{
		"donation_id": "don_123",
		"amount":      25.5,
	})
	require.NoError(t, err)
	require.Len(t, attempts, 3)

	bySub := map[string]*domain.DeliveryAttempt{}
	for _, at := range attempts {
		require.NotNil(t, at)
		bySub[at.SubscriptionID] = at
		assert.Equal(t, attempts[0].EventID, at.EventID, "one event id per dispatch")
		assert.Equal(t, string(attempts[0].Payload), string(at.Payload), "one body per dispatch")
	}
	assert.Equal(t, domain.DeliveryDelivered, bySub[a.ID].Status)
	assert.Equal(t, domain.DeliveryDelivered, bySub[b.ID].Status)
	assert.Equal(t, domain.DeliverySkipped, bySub[paused.ID].Status)

	sent := env.sender.sent()[before:]
	assert.Len(t, sent, 2, "paused subscription must not be called")

	var envelope domain.Envelope
	require.NoError(t, json.Unmarshal(attempts[0].Payload, &envelope))
	assert.Equal(t, attempts[0].EventID, envelope.ID)
	assert.Equal(t, domain.EventDonationCompleted, envelope.Event)
	assert.JSONEq(t, `{"amount":25.5,"donation_id":"don_123"}`, string(envelope.Data))
	assert.False(t, envelope.Timestamp.IsZero())

	stored := env.attempts(t, domain.DeliveryFilter{EventType: domain.EventDonationCompleted})
	assert.Len(t, stored, 3)
}

func TestDispatch_SubscriberFailureIsNotAnError(t *testing.T) {
	env := newTestEnv(t)
	sub := env.register(t, "o1", "https://down.example/hook", "post.liked")
	env.sender.codes[sub.URL] = http.StatusInternalServerError

	attempts, err := env.svc.Dispatch(context.Background(), domain.EventPostLiked, map[string]string{"post_id": "p1"})
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, domain.DeliveryFailed, attempts[0].Status)
	require.NotNil(t, attempts[0].NextRetryAt)

	depth, err := env.queue.Depth(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, depth, "failed attempt schedules a retry")
}

func TestDispatch_RejectsUnencodablePayload(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "o1", "https://a.example/hook", "post.liked")

	_, err := env.svc.Dispatch(context.Background(), domain.EventPostLiked, map[string]any{"bad": make(chan int)})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")

	updated, err := env.svc.Update(ctx, sub.ID, UpdateInput{
		URL:            strPtr("https://b.example/hook"),
		Events:         []string{"user.created"},
		TimeoutSeconds: intPtr(15),
		Headers:        map[string]string{"X-Tenant": "acme"},
	})
	require.NoError(t, err)
	assert.Equal(t, "https://b.example/hook", updated.URL)
	assert.Equal(t, []domain.EventType{domain.EventUserCreated}, updated.Events)
	assert.Equal(t, 15, updated.TimeoutSeconds)
	assert.Equal(t, sub.Secret, updated.Secret, "secret unchanged")
	assert.Equal(t, "acme", updated.Headers["X-Tenant"])

	_, err = env.svc.Update(ctx, sub.ID, UpdateInput{TimeoutSeconds: intPtr(0)})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Update(ctx, sub.ID, UpdateInput{Events: []string{}})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Update(ctx, sub.ID, UpdateInput{Secret: strPtr("")})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Update(ctx, "missing", UpdateInput{Name: strPtr("x")})
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)

	got, err := env.svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, 15, got.TimeoutSeconds, "rejected updates leave the subscription unchanged")
}

func TestPauseResume(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")

	paused, err := env.svc.Pause(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, paused.Status)

	resumed, err := env.svc.Resume(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, resumed.Status)

	_, err = env.svc.Pause(ctx, "missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestDelete_CascadesAttemptsAndPurgesRetries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://down.example/hook", "post.liked")
	env.sender.codes[sub.URL] = http.StatusBadGateway

	_, err := env.svc.Dispatch(ctx, domain.EventPostLiked, map[string]string{"post_id": "p1"})
	require.NoError(t, err)
	require.NotEmpty(t, env.attempts(t, domain.DeliveryFilter{SubscriptionID: sub.ID}))

	require.NoError(t, env.svc.Delete(ctx, sub.ID))

	assert.Empty(t, env.attempts(t, domain.DeliveryFilter{SubscriptionID: sub.ID}))
	depth, err := env.queue.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)

	_, err = env.svc.Get(ctx, sub.ID)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
	assert.ErrorIs(t, env.svc.Delete(ctx, sub.ID), ErrSubscriptionNotFound)
}

func TestGetStatistics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked", "user.created")

	_, err := env.svc.Dispatch(ctx, domain.EventPostLiked, map[string]string{"post_id": "p1"})
	require.NoError(t, err)
	env.sender.codes[sub.URL] = http.StatusInternalServerError
	_, err = env.svc.Dispatch(ctx, domain.EventUserCreated, map[string]string{"user_id": "u1"})
	require.NoError(t, err)

	now := time.Now()
	report, err := env.svc.GetStatistics(ctx, sub.ID, now.Add(-time.Hour), now.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 3, report.Total, "test event plus two dispatches")
	assert.Equal(t, 2, report.Delivered)
	assert.Equal(t, 1, report.Failed)
	assert.InDelta(t, 2.0/3.0, report.SuccessRate, 1e-9)
	assert.Equal(t, 1, report.EventCounts["user.created"])
	assert.Equal(t, 1, report.ResponseCodes[500])

	_, err = env.svc.GetStatistics(ctx, sub.ID, now, now)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.GetStatistics(ctx, "missing", now.Add(-time.Hour), now)
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestListDeliveriesAndGetDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")

	for i := 0; i < 3; i++ {
		_, err := env.svc.Dispatch(ctx, domain.EventPostLiked, map[string]int{"n": i})
		require.NoError(t, err)
	}

	all, err := env.svc.ListDeliveries(ctx, domain.DeliveryFilter{SubscriptionID: sub.ID})
	require.NoError(t, err)
	assert.Len(t, all, 4)

	limited, err := env.svc.ListDeliveries(ctx, domain.DeliveryFilter{SubscriptionID: sub.ID, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	got, err := env.svc.GetDelivery(ctx, all[0].ID)
	require.NoError(t, err)
	assert.Equal(t, all[0].ID, got.ID)

	_, err = env.svc.GetDelivery(ctx, "missing")
	assert.ErrorIs(t, err, ErrDeliveryNotFound)

	m, err := env.svc.DashboardMetrics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, m.TotalDeliveries)
	assert.Equal(t, 1, m.ActiveSubscriptions)
}

func TestListAvailableEvents(t *testing.T) {
	env := newTestEnv(t)

	events := env.svc.ListAvailableEvents()

	assert.Len(t, events, 17)
	for _, def := range events {
		assert.NotEqual(t, domain.EventWebhookTest, def.Event)
		assert.NotEmpty(t, def.DisplayName)
		assert.NotEmpty(t, def.Description)
	}
}

func TestSubscriptionHealth_DefaultsToClosed(t *testing.T) {
	env := newTestEnv(t)
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")

	state, err := env.svc.SubscriptionHealth(context.Background(), sub.ID)
	require.NoError(t, err)
	assert.Equal(t, engine.StateClosed, state.State)

	_, err = env.svc.SubscriptionHealth(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSubscriptionNotFound)
}

func TestValidationError_Message(t *testing.T) {
	verr := &ValidationError{}
	assert.NoError(t, verr.Err())

	verr.Add("url", "is required")
	verr.Add("events", "at least one event is required")
	verr.Add("url", "ignored second message")

	assert.Equal(t, "validation failed: events: at least one event is required; url: is required", verr.Error())
	assert.True(t, errors.Is(verr.Err(), ErrValidation))
}

// uuidColumnStore rejects ids that are not UUIDs the way a UUID column does.
type uuidColumnStore struct {
	*store.MemoryStore
}

var errInvalidUUID = errors.New("invalid input syntax for type uuid")

func checkUUID(id string) error {
	if len(id) != 36 {
		return errInvalidUUID
	}
	return nil
}

func (s uuidColumnStore) GetSubscription(ctx context.Context, id string) (*domain.Subscription, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetSubscription(ctx, id)
}

func (s uuidColumnStore) SetSubscriptionStatus(ctx context.Context, id string, status domain.SubscriptionStatus) (*domain.Subscription, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	return s.MemoryStore.SetSubscriptionStatus(ctx, id, status)
}

func (s uuidColumnStore) DeleteSubscription(ctx context.Context, id string) (bool, error) {
	if err := checkUUID(id); err != nil {
		return false, err
	}
	return s.MemoryStore.DeleteSubscription(ctx, id)
}

func (s uuidColumnStore) GetDeliveryAttempt(ctx context.Context, id string) (*domain.DeliveryAttempt, error) {
	if err := checkUUID(id); err != nil {
		return nil, err
	}
	return s.MemoryStore.GetDeliveryAttempt(ctx, id)
}

func (s uuidColumnStore) ListDeliveryAttempts(ctx context.Context, f domain.DeliveryFilter) ([]domain.DeliveryAttempt, error) {
	for _, id := range []string{f.SubscriptionID, f.EventID} {
		if id == "" {
			continue
		}
		if err := checkUUID(id); err != nil {
			return nil, err
		}
	}
	return s.MemoryStore.ListDeliveryAttempts(ctx, f)
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")

	db := uuidColumnStore{env.store}
	svc := NewService(db, db, nil, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	got, err := svc.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	for _, id := range []string{"abc", "missing", "", "urn:uuid:" + sub.ID, "{" + sub.ID + "}"} {
		_, err := svc.Get(ctx, id)
		assert.ErrorIs(t, err, ErrSubscriptionNotFound, id)

		_, err = svc.Pause(ctx, id)
		assert.ErrorIs(t, err, ErrSubscriptionNotFound, id)

		_, err = svc.Update(ctx, id, UpdateInput{Name: strPtr("x")})
		assert.ErrorIs(t, err, ErrSubscriptionNotFound, id)

		assert.ErrorIs(t, svc.Delete(ctx, id), ErrSubscriptionNotFound, id)

		_, err = svc.GetStatistics(ctx, id, time.Now().Add(-time.Hour), time.Now())
		assert.ErrorIs(t, err, ErrSubscriptionNotFound, id)

		_, err = svc.SubscriptionHealth(ctx, id)
		assert.ErrorIs(t, err, ErrSubscriptionNotFound, id)

		_, err = svc.GetDelivery(ctx, id)
		assert.ErrorIs(t, err, ErrDeliveryNotFound, id)
	}
}

func TestListDeliveries_RejectsMalformedFilterIDs(t *testing.T) {
	env := newTestEnv(t)
	sub := env.register(t, "o1", "https://a.example/hook", "post.liked")
	db := uuidColumnStore{env.store}
	svc := NewService(db, db, nil, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := svc.ListDeliveries(context.Background(), domain.DeliveryFilter{SubscriptionID: "abc", EventID: "evt-1"})
	require.ErrorIs(t, err, ErrValidation)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "subscription_id")
	assert.Contains(t, verr.Fields, "event_id")

	attempts, err := svc.ListDeliveries(context.Background(), domain.DeliveryFilter{SubscriptionID: sub.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, attempts)
}

// panickingExecutor delegates to next but panics for one URL.
type panickingExecutor struct {
	next     Executor
	panicURL string
}

func (e panickingExecutor) Execute(ctx context.Context, sub *domain.Subscription, d worker.Delivery) *domain.DeliveryAttempt {
	if sub.URL == e.panicURL {
		panic("nil map write")
	}
	return e.next.Execute(ctx, sub, d)
}

func TestDispatch_PanicInOneDeliveryIsIsolated(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	good := env.register(t, "o1", "https://good.example/hook", "post.liked")
	bad := env.register(t, "o1", "https://bad.example/hook", "post.liked")

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := worker.NewExecutor(env.store, env.sender, nil, nil, logger)
	svc := NewService(env.store, env.store, panickingExecutor{next: exec, panicURL: bad.URL}, DefaultConfig(), logger)

	attempts, err := svc.Dispatch(ctx, domain.EventPostLiked, map[string]string{"post": "p1"})
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	bySub := map[string]*domain.DeliveryAttempt{}
	for _, a := range attempts {
		require.NotNil(t, a)
		bySub[a.SubscriptionID] = a
	}

	assert.Equal(t, domain.DeliveryDelivered, bySub[good.ID].Status)

	crashed := bySub[bad.ID]
	require.NotNil(t, crashed)
	assert.Equal(t, domain.DeliveryFailed, crashed.Status)
	assert.Equal(t, domain.EventPostLiked, crashed.EventType)
	assert.Equal(t, bySub[good.ID].EventID, crashed.EventID)
	require.NotNil(t, crashed.ErrorMessage)
	assert.Contains(t, *crashed.ErrorMessage, "nil map write")
}
