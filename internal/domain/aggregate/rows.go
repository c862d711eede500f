package aggregate

import (
	"sort"

	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
)

// Row is one output line of a report. Each row is built fresh; it shares no
// storage with the Counts it came from.
type Row struct {
	OperatorID   string
	OperatorName string
	Accounts     int
	Fields       []milestone.Flag
	Values       []int
}

// Value returns the count for f, or 0 when f is not a column of this row.
func (r Row) Value(f milestone.Flag) int {
	for i, col := range r.Fields {
		if col == f {
			return r.Values[i]
		}
	}
	return 0
}

// Rows renders counts as report rows sorted by operator id. fields selects
// and orders the counter columns; accounts is the cohort size.
func Rows(cat *catalog.Catalog, counts Counts, accounts int, fields []milestone.Flag) []Row {
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([]Row, 0, len(ids))
	for _, id := range ids {
		tally := counts[id]
		cols := append([]milestone.Flag(nil), fields...)
		values := make([]int, len(cols))
		for i, f := range cols {
			values[i] = tally.Get(f)
		}
		name := id
		if op, ok := cat.Get(id); ok {
			name = op.Name
		}
		rows = append(rows, Row{
			OperatorID:   id,
			OperatorName: name,
			Accounts:     accounts,
			Fields:       cols,
			Values:       values,
		})
	}
	return rows
}
