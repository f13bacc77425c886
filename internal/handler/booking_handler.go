package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"railbook/internal/service"
)

// BookingHandler handles booking, refund, and change HTTP requests.
type BookingHandler struct {
	engine *service.BookingEngine
}

// NewBookingHandler creates a handler wired to the booking engine.
func NewBookingHandler(engine *service.BookingEngine) *BookingHandler {
	return &BookingHandler{engine: engine}
}

// Book handles POST /api/v1/tickets
//
// Booking consumes capacity on every successful call, so blind retries
// double-book. Callers that retry should send an Idempotency-Key header:
// a replayed key returns the originally issued ticket.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req service.BookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}
	req.IdempotencyKey = r.Header.Get("Idempotency-Key")

	ticket, err := h.engine.Book(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ticket)
}

// Refund handles POST /api/v1/tickets/{ticket_id}/refund
//
// Refund is idempotent by design: a repeat on an already-refunded ticket
// returns 409 not_sold and changes nothing.
func (h *BookingHandler) Refund(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := parseTicketID(w, r)
	if !ok {
		return
	}

	if err := h.engine.Refund(r.Context(), ticketID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ticket_id": ticketID,
		"status":    "refunded",
	})
}

// Change handles POST /api/v1/tickets/{ticket_id}/change
func (h *BookingHandler) Change(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := parseTicketID(w, r)
	if !ok {
		return
	}

	var body struct {
		NewTrainID string `json:"new_train_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	result, err := h.engine.Change(r.Context(), ticketID, body.NewTrainID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// parseTicketID pulls the {ticket_id} path variable; on failure it writes
// the 400 response itself.
func parseTicketID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["ticket_id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid ticket_id: must be an integer",
		})
		return 0, false
	}
	return id, true
}
