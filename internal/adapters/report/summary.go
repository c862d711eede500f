package report

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/PeterYR/krooster-stats/internal/domain/aggregate"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#C89A3A")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mutedStyle  = cellStyle.Foreground(lipgloss.Color("#8C8C8C"))
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// CohortSummary is one line of the terminal summary.
type CohortSummary struct {
	Key       string
	Accounts  int
	Operators int
	TopOwned  string
	TopCount  int
	Path      string
}

// Summarize picks the most-owned operator of a cohort. Ties keep the
// lowest operator id.
func Summarize(key, path string, rows []aggregate.Row) CohortSummary {
	s := CohortSummary{Key: key, Path: path, Operators: len(rows)}
	for _, r := range rows {
		s.Accounts = r.Accounts
		if n := r.Value(milestone.FlagOwned); n > s.TopCount {
			s.TopCount = n
			s.TopOwned = r.OperatorName
		}
	}
	return s
}

// RenderSummary draws the cohorts as a bordered table.
func RenderSummary(cohorts []CohortSummary) string {
	rows := make([][]string, 0, len(cohorts))
	for _, c := range cohorts {
		top := "-"
		if c.TopOwned != "" {
			top = c.TopOwned + " (" + strconv.Itoa(c.TopCount) + ")"
		}
		rows = append(rows, []string{
			c.Key,
			strconv.Itoa(c.Accounts),
			strconv.Itoa(c.Operators),
			top,
			c.Path,
		})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers("cohort", "accounts", "operators", "most owned", "report").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 4:
				return mutedStyle
			default:
				return cellStyle
			}
		})
	return t.String()
}
