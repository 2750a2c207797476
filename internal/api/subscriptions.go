package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/Priya8975/hookline/internal/domain"
	"github.com/Priya8975/hookline/internal/engine"
	"github.com/Priya8975/hookline/internal/stats"
	"github.com/Priya8975/hookline/internal/webhook"
	"github.com/go-chi/chi/v5"
)

const defaultStatsPeriod = 24 * time.Hour

type SubscriptionHandler struct {
	service *webhook.Service
	logger  *slog.Logger
	now     func() time.Time
}

func NewSubscriptionHandler(s *webhook.Service, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{service: s, logger: logger, now: time.Now}
}

// redact hides the signing secret. It is only returned at creation.
func redact(sub *domain.Subscription) *domain.Subscription {
	c := sub.Clone()
	c.Secret = ""
	return c
}

func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req webhook.RegisterInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to create subscription")
		return
	}

	respondJSON(w, http.StatusCreated, res)
}

func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	subs, err := h.service.List(r.Context(), r.URL.Query().Get("owner_id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to list subscriptions")
		return
	}

	out := make([]*domain.Subscription, 0, len(subs))
	for i := range subs {
		out = append(out, redact(&subs[i]))
	}
	respondJSON(w, http.StatusOK, out)
}

func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get subscription")
		return
	}
	respondJSON(w, http.StatusOK, redact(sub))
}

func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req webhook.UpdateInput
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to update subscription")
		return
	}
	respondJSON(w, http.StatusOK, redact(sub))
}

func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondServiceError(w, h.logger, err, "failed to delete subscription")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SubscriptionHandler) Pause(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Pause(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to pause subscription")
		return
	}
	respondJSON(w, http.StatusOK, redact(sub))
}

func (h *SubscriptionHandler) Resume(w http.ResponseWriter, r *http.Request) {
	sub, err := h.service.Resume(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to resume subscription")
		return
	}
	respondJSON(w, http.StatusOK, redact(sub))
}

// Statistics reports delivery statistics over ?period= (default 24h) or an
// explicit ?from=&to= RFC3339 window.
func (h *SubscriptionHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	window, msg := h.statsWindow(r)
	if msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	report, err := h.service.GetStatistics(r.Context(), chi.URLParam(r, "id"), window.Start, window.End)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to compute statistics")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

func (h *SubscriptionHandler) statsWindow(r *http.Request) (stats.Window, string) {
	q := r.URL.Query()
	now := h.now().UTC()

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		w := stats.Window{End: now}
		var err error
		if w.Start, err = time.Parse(time.RFC3339, from); err != nil {
			return stats.Window{}, "from must be an RFC3339 timestamp"
		}
		if to != "" {
			if w.End, err = time.Parse(time.RFC3339, to); err != nil {
				return stats.Window{}, "to must be an RFC3339 timestamp"
			}
		}
		return w, ""
	}

	period := defaultStatsPeriod
	if p := q.Get("period"); p != "" {
		d, err := stats.ParsePeriod(p)
		if err != nil {
			return stats.Window{}, err.Error()
		}
		period = d
	}
	return stats.WindowFor(now, period), ""
}

type healthResponse struct {
	SubscriptionID string                     `json:"subscription_id"`
	URL            string                     `json:"url"`
	Status         domain.SubscriptionStatus  `json:"status"`
	CircuitBreaker engine.CircuitBreakerState `json:"circuit_breaker"`
}

func (h *SubscriptionHandler) Health(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get subscription")
		return
	}
	state, err := h.service.SubscriptionHealth(r.Context(), id)
	if err != nil {
		respondServiceError(w, h.logger, err, "failed to get subscription health")
		return
	}

	respondJSON(w, http.StatusOK, healthResponse{
		SubscriptionID: sub.ID,
		URL:            sub.URL,
		Status:         sub.Status,
		CircuitBreaker: *state,
	})
}
