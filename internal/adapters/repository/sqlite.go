package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/pkg/metrics"

	_ "modernc.org/sqlite" // SQLite driver.
)

const (
	defaultBusyTimeout = 5 * time.Second
	// Fixed-width UTC so stored timestamps sort as text.
	timeLayout = "2006-01-02T15:04:05.000000000Z"
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db          *sql.DB
	newID       func() string
	busyTimeout time.Duration
}

var _ Store = (*SQLiteStore)(nil)

// Open opens or creates the database at path and applies migrations.
func Open(path string, opts ...Option) (*SQLiteStore, error) {
	s := &SQLiteStore{newID: defaultID, busyTimeout: defaultBusyTimeout}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One writer; SQLite serializes anyway.
	db.SetMaxOpenConns(1)
	s.db = db

	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		fmt.Sprintf(`PRAGMA busy_timeout = %d;`, s.busyTimeout.Milliseconds()),
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			stats TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS cohorts (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			key TEXT NOT NULL,
			position INTEGER NOT NULL,
			rarity INTEGER NOT NULL,
			community TEXT NOT NULL,
			accounts INTEGER NOT NULL,
			fields TEXT NOT NULL,
			path TEXT NOT NULL,
			PRIMARY KEY (run_id, key)
		);`,
		`CREATE TABLE IF NOT EXISTS report_rows (
			run_id TEXT NOT NULL,
			cohort_key TEXT NOT NULL,
			operator_id TEXT NOT NULL,
			operator_name TEXT NOT NULL,
			accounts INTEGER NOT NULL,
			counts TEXT NOT NULL,
			PRIMARY KEY (run_id, cohort_key, operator_id),
			FOREIGN KEY (run_id, cohort_key) REFERENCES cohorts(run_id, key) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_finished_at ON runs(finished_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// SaveRun stores run, its cohorts and rows in one transaction.
func (s *SQLiteStore) SaveRun(ctx context.Context, run *model.Run) (err error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("save_run", float64(time.Since(start).Milliseconds())) }()

	if run.ID == "" {
		run.ID = s.newID()
	}
	stats, err := json.Marshal(run.Stats)
	if err != nil {
		return fmt.Errorf("encode stats: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO runs (id, source, started_at, finished_at, stats) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Source, formatTime(run.StartedAt), formatTime(run.FinishedAt), string(stats),
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	rowStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO report_rows (run_id, cohort_key, operator_id, operator_name, accounts, counts)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer rowStmt.Close()

	for i, c := range run.Cohorts {
		fields, jerr := json.Marshal(c.Fields)
		if jerr != nil {
			return jerr
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO cohorts (run_id, key, position, rarity, community, accounts, fields, path)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, c.Key, i, c.Rarity, c.Community, c.Accounts, string(fields), c.Path,
		); err != nil {
			return fmt.Errorf("insert cohort %s: %w", c.Key, err)
		}
		for _, r := range c.Rows {
			counts, jerr := json.Marshal(r.Counts)
			if jerr != nil {
				return jerr
			}
			if _, err = rowStmt.ExecContext(ctx, run.ID, c.Key, r.OperatorID, r.OperatorName, r.Accounts, string(counts)); err != nil {
				return fmt.Errorf("insert row %s/%s: %w", c.Key, r.OperatorID, err)
			}
		}
	}

	err = tx.Commit()
	return err
}

func (s *SQLiteStore) LatestRun(ctx context.Context) (model.Run, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM runs ORDER BY finished_at DESC, rowid DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	if err != nil {
		return model.Run{}, err
	}
	return s.Run(ctx, id)
}

func (s *SQLiteStore) Run(ctx context.Context, id string) (model.Run, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("run", float64(time.Since(start).Milliseconds())) }()

	var (
		run                model.Run
		startedAt, endedAt string
		stats              string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, source, started_at, finished_at, stats FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &run.Source, &startedAt, &endedAt, &stats)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return model.Run{}, err
	}
	if run.StartedAt, err = parseTime(startedAt); err != nil {
		return model.Run{}, err
	}
	if run.FinishedAt, err = parseTime(endedAt); err != nil {
		return model.Run{}, err
	}
	if err := json.Unmarshal([]byte(stats), &run.Stats); err != nil {
		return model.Run{}, fmt.Errorf("decode stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT key, rarity, community, accounts, fields, path FROM cohorts WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return model.Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			c      model.CohortReport
			fields string
		)
		if err := rows.Scan(&c.Key, &c.Rarity, &c.Community, &c.Accounts, &fields, &c.Path); err != nil {
			return model.Run{}, err
		}
		if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
			return model.Run{}, fmt.Errorf("decode fields: %w", err)
		}
		run.Cohorts = append(run.Cohorts, c)
	}
	return run, rows.Err()
}

func (s *SQLiteStore) Report(ctx context.Context, runID, cohortKey string) (model.CohortReport, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreLatency("report", float64(time.Since(start).Milliseconds())) }()

	var (
		c      model.CohortReport
		fields string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, rarity, community, accounts, fields, path FROM cohorts WHERE run_id = ? AND key = ?`,
		runID, cohortKey,
	).Scan(&c.Key, &c.Rarity, &c.Community, &c.Accounts, &fields, &c.Path)
	if errors.Is(err, sql.ErrNoRows) {
		return model.CohortReport{}, fmt.Errorf("report %s/%s: %w", runID, cohortKey, ErrNotFound)
	}
	if err != nil {
		return model.CohortReport{}, err
	}
	if err := json.Unmarshal([]byte(fields), &c.Fields); err != nil {
		return model.CohortReport{}, fmt.Errorf("decode fields: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT operator_id, operator_name, accounts, counts FROM report_rows
		 WHERE run_id = ? AND cohort_key = ? ORDER BY operator_id`, runID, cohortKey)
	if err != nil {
		return model.CohortReport{}, err
	}
	defer rows.Close()
	c.Rows = []model.ReportRow{}
	for rows.Next() {
		var (
			r      model.ReportRow
			counts string
		)
		if err := rows.Scan(&r.OperatorID, &r.OperatorName, &r.Accounts, &counts); err != nil {
			return model.CohortReport{}, err
		}
		if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
			return model.CohortReport{}, fmt.Errorf("decode counts: %w", err)
		}
		c.Rows = append(c.Rows, r)
	}
	return c, rows.Err()
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}
