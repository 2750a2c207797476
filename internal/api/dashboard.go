package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/webhook"
)

// QueueDepther reports how many retries are waiting.
type QueueDepther interface {
	Depth(ctx context.Context) (int64, error)
}

// ClientCounter reports connected live-feed clients.
type ClientCounter interface {
	ClientCount() int
}

type DashboardHandler struct {
	service *webhook.Service
	queue   QueueDepther
	clients ClientCounter
	logger  *slog.Logger
}

func NewDashboardHandler(s *webhook.Service, queue QueueDepther, clients ClientCounter, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{service: s, queue: queue, clients: clients, logger: logger}
}

type metricsResponse struct {
	domain.DeliveryMetrics
	RetryQueueDepth  int64 `json:"retry_queue_depth"`
	WebSocketClients int   `json:"websocket_clients"`
}

// Metrics returns aggregated system metrics for the dashboard.
func (h *DashboardHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.service.DashboardMetrics(r.Context())
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get metrics")
		return
	}

	resp := metricsResponse{DeliveryMetrics: *metrics}
	if h.queue != nil {
		depth, err := h.queue.Depth(r.Context())
		if err != nil {
			h.logger.Warn("failed to read retry queue depth", "error", err)
		}
		resp.RetryQueueDepth = depth
	}
	if h.clients != nil {
		resp.WebSocketClients = h.clients.ClientCount()
	}

	respondJSON(w, http.StatusOK, resp)
}

type subscriptionHealth struct {
	ID             string                     `json:"id"`
	Name           string                     `json:"name,omitempty"`
	URL            string                     `json:"url"`
	Status         domain.SubscriptionStatus  `json:"status"`
	CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
}

// SubscriptionHealth returns circuit breaker state for every subscription.
func (h *DashboardHandler) SubscriptionHealth(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context(), "")
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list subscriptions")
		return
	}

	result := make([]subscriptionHealth, 0, len(subs))
	for _, sub := range subs {
		state, err := h.service.SubscriptionHealth(r.Context(), sub.ID)
		if err != nil {
			// Deleted between list and lookup.
			continue
		}
		result = append(result, subscriptionHealth{
			ID:             sub.ID,
			Name:           sub.Name,
			URL:            sub.URL,
			Status:         sub.Status,
			CircuitBreaker: *state,
		})
	}

	respondJSON(w, http.StatusOK, result)
}
