// Package repository persists finished runs and their report rows.
package repository

import (
	"context"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Store provides read/write access to finished runs.
type Store interface {
	// SaveRun persists run with all cohorts and rows. An empty run.ID is
	// replaced by a new uuid, written back into run.
	SaveRun(ctx context.Context, run *model.Run) error

	// LatestRun returns the most recently finished run without report rows.
	// Returns ErrNotFound when nothing was saved yet.
	LatestRun(ctx context.Context) (model.Run, error)

	// Run returns run id without report rows.
	Run(ctx context.Context, id string) (model.Run, error)

	// Report returns one cohort of a run with its rows sorted by operator id.
	Report(ctx context.Context, runID, cohortKey string) (model.CohortReport, error)

	Close() error
}
