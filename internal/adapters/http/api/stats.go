package api

import (
	"net/http"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// StatsHandler serves the diagnostics of the latest run.
type StatsHandler struct {
	deps Dependencies
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(deps Dependencies) *StatsHandler {
	return &StatsHandler{deps: deps}
}

type statsResponse struct {
	RunID          string         `json:"run_id"`
	Stats          model.RunStats `json:"stats"`
	RecordsSkipped int            `json:"records_skipped_total"`
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	run, err := h.deps.LatestRun(r.Context())
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		RunID:          run.ID,
		Stats:          run.Stats,
		RecordsSkipped: run.Stats.Skipped(),
	})
}
