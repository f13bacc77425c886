package handler

import (
	"encoding/json"
	"net/http"

	"railbook/internal/model"
	"railbook/internal/service"
)

// StatsHandler handles statistics HTTP requests.
type StatsHandler struct {
	query *service.QueryService
	stats *service.StatsAggregator
}

// NewStatsHandler creates a handler wired to the query service and the
// aggregator (for recompute/repair).
func NewStatsHandler(query *service.QueryService, stats *service.StatsAggregator) *StatsHandler {
	return &StatsHandler{query: query, stats: stats}
}

// Statistics handles GET /api/v1/statistics?period=daily&start=&end=
//
// period defaults to daily; start/end are optional inclusive bucket keys
// in the period's own format ("2024-01-02", "2024-01", "2024").
func (h *StatsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	period := model.Period(r.URL.Query().Get("period"))
	if period == "" {
		period = model.PeriodDaily
	}

	buckets, err := h.query.Statistics(r.Context(), period,
		r.URL.Query().Get("start"),
		r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}

// Recompute handles POST /api/v1/statistics/recompute
//
// Rebuilds one bucket from the ticket ledger for audit; repairs the
// stored bucket if it drifted. Returns the rebuilt value.
func (h *StatsHandler) Recompute(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Period model.Period `json:"period"`
		Key    string       `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON body",
		})
		return
	}

	bucket, err := h.stats.Recompute(r.Context(), body.Period, body.Key)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bucket)
}
