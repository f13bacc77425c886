// Package handler contains HTTP request handlers for the ticketing API.
// Handlers are thin: parse, call the core, translate error kinds to
// status codes. No business logic lives here.
package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"railbook/internal/ledger"
)

// writeJSON is a helper that writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError maps core error kinds to HTTP responses.
//
// Response codes:
//
//	400: validation failure (malformed identifiers, bad ranges)
//	404: unknown train or ticket
//	409: conflict (duplicate train, ticket not in Sold state)
//	422: train sold out
//	500: storage failure (logged; no detail leaks to the caller)
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":   "validation_failed",
			"message": err.Error(),
		})
	case errors.Is(err, ledger.ErrTrainNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "train_not_found",
			"message": "No train with that train_id.",
		})
	case errors.Is(err, ledger.ErrTicketNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{
			"error":   "ticket_not_found",
			"message": "No ticket with that ticket_id.",
		})
	case errors.Is(err, ledger.ErrDuplicateTrain):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "duplicate_train",
			"message": "A train with that train_id already exists.",
		})
	case errors.Is(err, ledger.ErrNotSold):
		writeJSON(w, http.StatusConflict, map[string]string{
			"error":   "not_sold",
			"message": "The ticket is not in the Sold state (already refunded?).",
		})
	case errors.Is(err, ledger.ErrSoldOut):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error":   "sold_out",
			"message": "The train has no remaining seats.",
		})
	default:
		log.Printf("[handler] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "internal_error",
		})
	}
}
