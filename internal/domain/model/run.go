package model

import "time"

// Skip kinds used as RunStats.RecordsSkipped keys.
const (
	SkipMalformedRecord    = "malformed_record"
	SkipUnrecognizedSchema = "unrecognized_schema"
	SkipOther              = "other"
)

// RunStats are the diagnostics of one aggregation run.
type RunStats struct {
	Handles           int            `json:"handles"`
	Resolved          int            `json:"resolved"`
	NotFound          int            `json:"not_found"`
	ResolveErrors     int            `json:"resolve_errors"`
	DuplicateAccounts int            `json:"duplicate_accounts"`
	RostersFetched    int            `json:"rosters_fetched"`
	EmptyRosters      int            `json:"empty_rosters"`
	FetchFailures     int            `json:"fetch_failures"`
	RecordsSkipped    map[string]int `json:"records_skipped"`
	Cohorts           int            `json:"cohorts"`
}

// Skipped returns the total number of skipped records.
func (s RunStats) Skipped() int {
	n := 0
	for _, v := range s.RecordsSkipped {
		n += v
	}
	return n
}

// ReportRow is the persisted form of one report line.
type ReportRow struct {
	OperatorID   string         `json:"operator_id"`
	OperatorName string         `json:"operator_name"`
	Accounts     int            `json:"accounts"`
	Counts       map[string]int `json:"counts"`
}

// CohortReport is one cohort's output within a run.
type CohortReport struct {
	Key       string      `json:"key"`
	Rarity    int         `json:"rarity"`
	Community string      `json:"community,omitempty"`
	Accounts  int         `json:"accounts"`
	Fields    []string    `json:"fields"`
	Path      string      `json:"path,omitempty"`
	Rows      []ReportRow `json:"rows,omitempty"`
}

// Run is a finished aggregation run.
type Run struct {
	ID         string         `json:"id"`
	Source     string         `json:"source"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stats      RunStats       `json:"stats"`
	Cohorts    []CohortReport `json:"cohorts"`
}
