package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/webhook"
	"github.com/go-chi/chi/v5"
)

type DeliveryHandler struct {
	service *webhook.Service
	logger  *slog.Logger
}

func NewDeliveryHandler(s *webhook.Service, logger *slog.Logger) *DeliveryHandler {
	return &DeliveryHandler{service: s, logger: logger}
}

func (h *DeliveryHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.DeliveryFilter{
		SubscriptionID: q.Get("subscription_id"),
		EventID:        q.Get("event_id"),
		EventType:      domain.EventType(q.Get("event_type")),
		Status:         domain.DeliveryStatus(q.Get("status")),
	}

	if f.Status != "" && f.Status != domain.DeliveryPending && !f.Status.IsTerminal() {
		respondError(w, http.StatusBadRequest, "unknown status")
		return
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	attempts, err := h.service.ListDeliveries(r.Context(), f)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list delivery attempts")
		return
	}

	respondJSON(w, http.StatusOK, attempts)
}

func (h *DeliveryHandler) Get(w http.ResponseWriter, r *http.Request) {
	attempt, err := h.service.GetDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get delivery attempt")
		return
	}

	respondJSON(w, http.StatusOK, attempt)
}
