package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"appointly/internal/service/appointments"
	"appointly/internal/store"
)

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorEnvelope{Error: errorBody{Kind: "validation_error", Message: msg}})
}

// writeError maps service errors to a status code and a client-safe message.
// Upstream failures are logged in full and reported generically.
func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, op string, err error) {
	var vErr *appointments.ValidationError
	switch {
	case errors.As(err, &vErr):
		log.WarnContext(r.Context(), "invalid request", slog.String("op", op), slog.Any("err", err))
		badRequest(w, vErr.Error())
	case errors.Is(err, store.ErrConflict):
		log.InfoContext(r.Context(), "slot conflict", slog.String("op", op))
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Kind:    "conflict",
			Message: "That time slot is already booked. Pick a different slot.",
		}})
	case errors.Is(err, store.ErrIdempotencyConflict):
		log.InfoContext(r.Context(), "idempotency conflict", slog.String("op", op))
		writeJSON(w, http.StatusConflict, errorEnvelope{Error: errorBody{
			Kind:    "conflict",
			Message: "This request key was already used for a different booking.",
		}})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorEnvelope{Error: errorBody{
			Kind:    "not_found",
			Message: "appointment not found",
		}})
	default:
		log.ErrorContext(r.Context(), "request failed", slog.String("op", op), slog.Any("err", err))
		writeJSON(w, http.StatusInternalServerError, errorEnvelope{Error: errorBody{
			Kind:    "upstream_error",
			Message: "The booking could not be completed. Try again later.",
		}})
	}
}
