package api

import (
	"net/http"
	"strings"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// RunsHandler serves run summaries.
type RunsHandler struct {
	deps Dependencies
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(deps Dependencies) *RunsHandler {
	return &RunsHandler{deps: deps}
}

// HandleGetRun handles GET /runs/latest and GET /runs/{id}.
func (h *RunsHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/runs/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}

	var (
		run model.Run
		err error
	)
	if id == "latest" {
		run, err = h.deps.LatestRun(r.Context())
	} else {
		run, err = h.deps.RunByID(r.Context(), id)
	}
	if err != nil {
		writeLookupError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}
