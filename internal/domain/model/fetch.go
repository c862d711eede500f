package model

import "time"

// AccountID is the opaque identifier the phonebook maps a handle to.
type AccountID string

// FetchJob asks a worker to download one account's roster.
type FetchJob struct {
	Handle    string
	AccountID AccountID
	Queued    time.Time
}

// FetchResult is what a worker reports back for one FetchJob.
type FetchResult struct {
	Handle    string
	AccountID AccountID
	Roster    Roster
	Err       error
	Duration  time.Duration
}

// OK reports whether the roster was fetched.
func (r FetchResult) OK() bool { return r.Err == nil }
