package repository

import (
	"time"

	"github.com/google/uuid"
)

// Option applies a configuration option to the SQLiteStore.
type Option func(*SQLiteStore)

// WithIDFunc replaces the run id generator.
func WithIDFunc(fn func() string) Option {
	return func(s *SQLiteStore) {
		if fn != nil {
			s.newID = fn
		}
	}
}

// WithBusyTimeout sets how long writers wait on a locked database.
func WithBusyTimeout(d time.Duration) Option {
	return func(s *SQLiteStore) {
		if d > 0 {
			s.busyTimeout = d
		}
	}
}

func defaultID() string { return uuid.NewString() }
