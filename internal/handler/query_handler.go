package handler

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"railbook/internal/service"
)

// QueryHandler handles read-only ticket and report HTTP requests.
type QueryHandler struct {
	query *service.QueryService
}

// NewQueryHandler creates a handler wired to the query service.
func NewQueryHandler(query *service.QueryService) *QueryHandler {
	return &QueryHandler{query: query}
}

// GetTicket handles GET /api/v1/tickets/{ticket_id}
func (h *QueryHandler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticketID, ok := parseTicketID(w, r)
	if !ok {
		return
	}

	info, err := h.query.GetTicketInfo(r.Context(), ticketID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// PassengerOrders handles GET /api/v1/passengers/{id_number}/orders
func (h *QueryHandler) PassengerOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.query.PassengerOrders(r.Context(), mux.Vars(r)["id_number"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// SearchTickets handles GET /api/v1/tickets?name=&id_number=
func (h *QueryHandler) SearchTickets(w http.ResponseWriter, r *http.Request) {
	orders, err := h.query.SearchTicketsByPerson(r.Context(),
		r.URL.Query().Get("name"),
		r.URL.Query().Get("id_number"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

// SalesReport handles GET /api/v1/reports/sales?start=YYYY-MM-DD&end=YYYY-MM-DD
func (h *QueryHandler) SalesReport(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse("2006-01-02", r.URL.Query().Get("start"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid start date: want YYYY-MM-DD",
		})
		return
	}
	end, err := time.Parse("2006-01-02", r.URL.Query().Get("end"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid end date: want YYYY-MM-DD",
		})
		return
	}

	report, err := h.query.SalesReport(r.Context(), start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
