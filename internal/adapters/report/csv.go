// Package report writes aggregation results: per-cohort CSV reports, the
// availability flags CSV and a terminal summary table.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/PeterYR/krooster-stats/internal/domain/aggregate"
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
)

// Header returns the report columns for fields.
func Header(fields []milestone.Flag) []string {
	h := make([]string, 0, len(fields)+3)
	h = append(h, "operator_name")
	h = append(h, milestone.Names(fields)...)
	return append(h, "operator_id", "accounts")
}

// WriteCSV writes rows with the column layout from Header(fields).
func WriteCSV(w io.Writer, rows []aggregate.Row, fields []milestone.Flag) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(fields)); err != nil {
		return err
	}
	rec := make([]string, 0, len(fields)+3)
	for _, r := range rows {
		rec = rec[:0]
		rec = append(rec, r.OperatorName)
		for _, f := range fields {
			rec = append(rec, strconv.Itoa(r.Value(f)))
		}
		rec = append(rec, r.OperatorID, strconv.Itoa(r.Accounts))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile writes rows to dir/<key>.csv, creating dir, and returns the path.
func WriteFile(dir, key string, rows []aggregate.Row, fields []milestone.Flag) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, key+".csv")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create report: %w", err)
	}
	if err := WriteCSV(f, rows, fields); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write report %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close report %s: %w", path, err)
	}
	return path, nil
}

// AvailabilityHeader is the column layout of the availability CSV.
var AvailabilityHeader = []string{"operator_id", "available", "mod-X", "mod-Y", "mod-D"}

// WriteAvailability writes one row per operator with True/False cells.
func WriteAvailability(w io.Writer, flags []catalog.Availability) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(AvailabilityHeader); err != nil {
		return err
	}
	for _, a := range flags {
		rec := []string{
			a.ID,
			boolCell(a.Available),
			boolCell(a.Modules[model.ModuleX]),
			boolCell(a.Modules[model.ModuleY]),
			boolCell(a.Modules[model.ModuleD]),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func boolCell(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
