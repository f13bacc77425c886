package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"railbook/internal/model"
	"railbook/internal/service"
)

// TrainHandler handles catalog and availability HTTP requests.
type TrainHandler struct {
	catalog *service.CatalogService
	query   *service.QueryService
}

// NewTrainHandler creates a handler wired to the catalog and query services.
func NewTrainHandler(catalog *service.CatalogService, query *service.QueryService) *TrainHandler {
	return &TrainHandler{catalog: catalog, query: query}
}

// AddTrain handles POST /api/v1/trains
func (h *TrainHandler) AddTrain(w http.ResponseWriter, r *http.Request) {
	var route model.TrainRoute
	if err := json.NewDecoder(r.Body).Decode(&route); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	if err := h.catalog.AddTrain(r.Context(), &route); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, route)
}

// SearchTrains handles GET /api/v1/trains?departure=&destination=
func (h *TrainHandler) SearchTrains(w http.ResponseWriter, r *http.Request) {
	routes, err := h.catalog.SearchTrains(r.Context(),
		r.URL.Query().Get("departure"),
		r.URL.Query().Get("destination"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

// GetTrain handles GET /api/v1/trains/{train_id}
func (h *TrainHandler) GetTrain(w http.ResponseWriter, r *http.Request) {
	route, err := h.catalog.GetTrain(r.Context(), mux.Vars(r)["train_id"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, route)
}

// UpdatePrice handles PUT /api/v1/trains/{train_id}/price
func (h *TrainHandler) UpdatePrice(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Price float64 `json:"price"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	trainID := mux.Vars(r)["train_id"]
	if err := h.catalog.UpdatePrice(r.Context(), trainID, body.Price); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"train_id": trainID,
		"price":    body.Price,
	})
}

// Availability handles GET /api/v1/trains/{train_id}/availability
func (h *TrainHandler) Availability(w http.ResponseWriter, r *http.Request) {
	trainID := mux.Vars(r)["train_id"]
	available, err := h.query.Availability(r.Context(), trainID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"train_id":        trainID,
		"available_seats": available,
	})
}

// AvailabilityAll handles GET /api/v1/availability
func (h *TrainHandler) AvailabilityAll(w http.ResponseWriter, r *http.Request) {
	out, err := h.query.AvailabilityAll(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}
