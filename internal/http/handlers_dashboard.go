package http

import (
	"log/slog"
	"net/http"

	"findash/internal/dashboard"
)

type dashboardResponse struct {
	Dataset string             `json:"dataset"`
	Start   string             `json:"start"`
	End     string             `json:"end"`
	Result  dashboard.Result   `json:"result"`
	Charts  dashboard.ChartSet `json:"charts"`
}

// handleDashboard loads and aggregates one (dataset, date range) query.
// Responses are cached per filter; any import or delete purges the cache.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	datasetID := r.PathValue("id")

	start, end, err := parseRange(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date range, want YYYY-MM-DD")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end date before start date")
		return
	}

	key := datasetID + "|" + start.Format(rangeLayout) + "|" + end.Format(rangeLayout)
	if cached, ok := s.dashCache.Get(key); ok {
		writeJSON(w, http.StatusOK, cached)
		return
	}

	// SetFilter hands back the aggregation computed for exactly these
	// parameters. The response and the cache entry are built from that,
	// never from the shared view-model state, which may already belong to
	// a newer concurrent filter request.
	result, err := s.vm.SetFilter(r.Context(), datasetID, start, end)
	if err != nil {
		// The view model keeps its last loaded values on failure; the
		// client keeps showing those instead of a false zero.
		slog.ErrorContext(r.Context(), "Dashboard load failed",
			"dataset", datasetID, "error", err)
		writeError(w, http.StatusBadGateway, "failed to load transactions")
		return
	}

	resp := dashboardResponse{
		Dataset: datasetID,
		Start:   start.Format(rangeLayout),
		End:     end.Format(rangeLayout),
		Result:  result,
		Charts:  dashboard.BuildCharts(result),
	}
	s.dashCache.Set(key, resp)

	writeJSON(w, http.StatusOK, resp)
}
