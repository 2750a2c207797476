package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Priya8975/hookline/internal/webhook"
)

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, errorResponse{Error: msg})
}

// respondServiceError maps webhook service errors to HTTP statuses.
func respondServiceError(w http.ResponseWriter, logger *slog.Logger, err error, msg string) {
	var verr *webhook.ValidationError
	switch {
	case errors.As(err, &verr):
		respondJSON(w, http.StatusBadRequest, errorResponse{Error: webhook.ErrValidation.Error(), Fields: verr.Fields})
	case errors.Is(err, webhook.ErrSubscriptionNotFound), errors.Is(err, webhook.ErrDeliveryNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, webhook.ErrUnknownEvent), errors.Is(err, webhook.ErrInvalidPayload):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error(msg, "error", err)
		respondError(w, http.StatusInternalServerError, msg)
	}
}

const maxRequestBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(v)
}
