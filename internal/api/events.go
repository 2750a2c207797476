package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/webhook"
)

type EventHandler struct {
	service *webhook.Service
	logger  *slog.Logger
}

func NewEventHandler(s *webhook.Service, logger *slog.Logger) *EventHandler {
	return &EventHandler{service: s, logger: logger}
}

type dispatchRequest struct {
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
}

type dispatchResponse struct {
	EventID   string                    `json:"event_id,omitempty"`
	EventType domain.EventType          `json:"event_type"`
	Attempts  []*domain.DeliveryAttempt `json:"attempts"`
}

// Catalog lists the events a subscription may listen for.
func (h *EventHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.ListAvailableEvents())
}

// Dispatch delivers an event to its subscriptions and returns one attempt
// per subscription.
func (h *EventHandler) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.EventType == "" {
		respondError(w, http.StatusBadRequest, "event_type is required")
		return
	}
	if len(req.Payload) == 0 {
		respondError(w, http.StatusBadRequest, "payload is required")
		return
	}

	eventType := domain.EventType(req.EventType)
	attempts, err := h.service.Dispatch(r.Context(), eventType, req.Payload)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to dispatch event")
		return
	}

	resp := dispatchResponse{EventType: eventType, Attempts: attempts}
	if len(attempts) > 0 {
		resp.EventID = attempts[0].EventID
	}
	respondJSON(w, http.StatusOK, resp)
}
