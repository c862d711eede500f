// Package service runs aggregation jobs: it resolves handles, fetches
// rosters through the worker pool, folds them per cohort and writes and
// persists the reports.
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/PeterYR/krooster-stats/internal/adapters/krooster"
	"github.com/PeterYR/krooster-stats/internal/adapters/mq/queue"
	"github.com/PeterYR/krooster-stats/internal/adapters/mq/worker"
	"github.com/PeterYR/krooster-stats/internal/adapters/report"
	"github.com/PeterYR/krooster-stats/internal/adapters/repository"
	"github.com/PeterYR/krooster-stats/internal/domain/aggregate"
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/cohort"
	"github.com/PeterYR/krooster-stats/internal/domain/dedupe"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/internal/domain/progress"
	"github.com/PeterYR/krooster-stats/pkg/logger"
	"github.com/PeterYR/krooster-stats/pkg/metrics"
)

// ErrNoStore is returned by read methods when the service has no store.
var ErrNoStore = errors.New("no run store configured")

// CatalogSource supplies the raw operator catalog.
type CatalogSource interface {
	Raw(ctx context.Context) (map[string]catalog.RawOperator, error)
}

// Request describes one run.
type Request struct {
	// Source names the input, e.g. the responses file. Stored with the run.
	Source  string
	Cohorts []cohort.Cohort
	// KeepEmpty writes reports for cohorts without handles.
	KeepEmpty bool
}

// Service orchestrates runs. Runs are serialized.
type Service struct {
	source   CatalogSource
	upstream *krooster.Memo
	deduper  dedupe.Deduper
	store    repository.Store

	batchSize int
	queueSize int
	includeCN bool
	fields    []milestone.Flag
	outputDir string
	summary   io.Writer

	catMu sync.Mutex
	cat   *catalog.Catalog

	runMu  sync.Mutex
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithBatchSize sets resolve concurrency and the number of fetch workers.
func WithBatchSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithQueueSize bounds the fetch queue. Zero sizes it to the account count.
func WithQueueSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.queueSize = n
		}
	}
}

// WithIncludeCN keeps CN-only operators and modules.
func WithIncludeCN(include bool) Option {
	return func(s *Service) { s.includeCN = include }
}

// WithFields sets the report columns.
func WithFields(fields []milestone.Flag) Option {
	return func(s *Service) {
		if len(fields) > 0 {
			s.fields = append([]milestone.Flag(nil), fields...)
		}
	}
}

// WithOutputDir sets where CSV reports are written.
func WithOutputDir(dir string) Option {
	return func(s *Service) {
		if dir != "" {
			s.outputDir = dir
		}
	}
}

// WithStore persists every run.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithSummary prints a summary table of each run to w.
func WithSummary(w io.Writer) Option {
	return func(s *Service) { s.summary = w }
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service.
func New(source CatalogSource, upstream krooster.Upstream, opts ...Option) *Service {
	s := &Service{
		source:    source,
		upstream:  krooster.NewMemo(upstream),
		deduper:   dedupe.NewInMemoryDeduper(),
		batchSize: 32,
		fields:    milestone.AllFlags(),
		outputDir: "output",
		logger:    logger.Get().Named("service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Fields returns the report columns.
func (s *Service) Fields() []milestone.Flag { return append([]milestone.Flag(nil), s.fields...) }

// Catalog builds the catalog on first use and returns the same one after.
// A failed load is not kept, so the next call tries again.
func (s *Service) Catalog(ctx context.Context) (*catalog.Catalog, error) {
	s.catMu.Lock()
	defer s.catMu.Unlock()
	if s.cat != nil {
		return s.cat, nil
	}

	raw, err := s.source.Raw(ctx)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	cat, err := catalog.Build(raw, catalog.WithRegionExclusive(s.includeCN))
	if err != nil {
		return nil, err
	}
	s.cat = cat
	metrics.UpdateCatalogOperators(cat.Len())
	s.logger.Info(ctx, "catalog built", logger.Int("operators", cat.Len()), logger.Bool("include_cn", s.includeCN))
	return cat, nil
}

// Run executes one run end to end and returns it. Per-account and
// per-record failures are counted in the run stats, never returned.
func (s *Service) Run(ctx context.Context, req Request) (model.Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run := model.Run{Source: req.Source, StartedAt: time.Now().UTC()}
	run.Stats.RecordsSkipped = map[string]int{}

	cat, err := s.Catalog(ctx)
	if err != nil {
		metrics.RecordRun("failed", 0, 0, time.Now().Unix())
		return model.Run{}, err
	}

	s.upstream.Reset()
	s.deduper.Reset(ctx)

	rosters := s.fetch(ctx, cohort.Handles(req.Cohorts), &run.Stats)
	if err := ctx.Err(); err != nil {
		metrics.RecordRun("cancelled", float64(time.Since(run.StartedAt).Milliseconds()), 0, time.Now().Unix())
		return model.Run{}, err
	}

	var summaries []report.CohortSummary
	for _, c := range req.Cohorts {
		if len(c.Handles) == 0 && !req.KeepEmpty {
			s.logger.Debug(ctx, "skipping empty cohort", logger.String("cohort", c.Key()))
			continue
		}
		cr, sum, err := s.runCohort(ctx, cat, c, rosters, &run.Stats)
		if err != nil {
			metrics.RecordRun("failed", float64(time.Since(run.StartedAt).Milliseconds()), 0, time.Now().Unix())
			return model.Run{}, err
		}
		run.Cohorts = append(run.Cohorts, cr)
		summaries = append(summaries, sum)
	}
	run.Stats.Cohorts = len(run.Cohorts)
	run.FinishedAt = time.Now().UTC()

	if s.store != nil {
		if err := s.store.SaveRun(ctx, &run); err != nil {
			metrics.RecordRun("failed", float64(run.FinishedAt.Sub(run.StartedAt).Milliseconds()), 0, run.FinishedAt.Unix())
			return model.Run{}, fmt.Errorf("save run: %w", err)
		}
	}

	metrics.RecordRun("ok", float64(run.FinishedAt.Sub(run.StartedAt).Milliseconds()), run.Stats.RostersFetched, run.FinishedAt.Unix())
	s.logger.Info(ctx, "run finished",
		logger.String("run", run.ID),
		logger.Int("handles", run.Stats.Handles),
		logger.Int("resolved", run.Stats.Resolved),
		logger.Int("not_found", run.Stats.NotFound),
		logger.Int("resolve_errors", run.Stats.ResolveErrors),
		logger.Int("duplicate_accounts", run.Stats.DuplicateAccounts),
		logger.Int("rosters", run.Stats.RostersFetched),
		logger.Int("fetch_failures", run.Stats.FetchFailures),
		logger.Int("records_skipped", run.Stats.Skipped()),
		logger.Int("cohorts", run.Stats.Cohorts),
	)

	if s.summary != nil && len(summaries) > 0 {
		fmt.Fprintln(s.summary, report.RenderSummary(summaries))
	}
	return run, nil
}

// fetched holds what one run downloaded. Handles are lower-cased.
type fetched struct {
	accountOf map[string]model.AccountID
	rosters   map[model.AccountID]model.Roster
}

func (f fetched) roster(handle string) (model.AccountID, model.Roster, bool) {
	id, ok := f.accountOf[strings.ToLower(handle)]
	if !ok {
		return "", nil, false
	}
	r, ok := f.rosters[id]
	return id, r, ok
}

// fetch resolves handles and downloads each distinct account once.
func (s *Service) fetch(ctx context.Context, handles []string, stats *model.RunStats) fetched {
	stats.Handles = len(handles)
	resolutions := krooster.ResolveBatch(ctx, s.upstream, handles, s.batchSize)

	accountOf := make(map[string]model.AccountID, len(handles))
	var jobs []model.FetchJob
	for _, h := range handles {
		res := resolutions[h]
		switch {
		case res.Err != nil:
			stats.ResolveErrors++
			s.logger.Warn(ctx, "handle lookup failed", logger.String("handle", h), logger.Error(res.Err))
			continue
		case !res.Found:
			stats.NotFound++
			s.logger.Info(ctx, "invalid handle", logger.String("handle", h))
			continue
		}
		stats.Resolved++
		accountOf[strings.ToLower(h)] = res.AccountID

		if s.deduper.SeenAndRecord(ctx, string(res.AccountID)) {
			stats.DuplicateAccounts++
			metrics.RecordDuplicateAccount()
			s.logger.Info(ctx, "handle shares an account already queued", logger.String("handle", h))
			continue
		}
		jobs = append(jobs, model.FetchJob{Handle: h, AccountID: res.AccountID, Queued: time.Now()})
	}

	capacity := s.queueSize
	if capacity < len(jobs) {
		capacity = len(jobs)
	}
	q := queue.NewInMemoryQueue(queue.WithCapacity(max(capacity, 1)))

	var mu sync.Mutex
	byAccount := make(map[model.AccountID]model.Roster, len(jobs))
	sink := worker.SinkFunc(func(ctx context.Context, res model.FetchResult) {
		mu.Lock()
		defer mu.Unlock()
		if !res.OK() {
			stats.FetchFailures++
			return
		}
		stats.RostersFetched++
		if len(res.Roster) == 0 {
			stats.EmptyRosters++
		}
		byAccount[res.AccountID] = res.Roster
	})

	pool := worker.NewPool(min(s.batchSize, max(len(jobs), 1)), q, s.upstream, sink)
	pool.Start(ctx)
	s.logger.Debug(ctx, "fetching rosters", logger.Int("jobs", len(jobs)), logger.Int("workers", pool.Size()))
	for _, j := range jobs {
		if !q.Enqueue(ctx, j) {
			mu.Lock()
			stats.FetchFailures++
			mu.Unlock()
			s.logger.Warn(ctx, "fetch job rejected", logger.String("handle", j.Handle))
		}
	}
	_ = q.Close()

	drained := make(chan struct{})
	go func() {
		pool.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		if err := pool.Shutdown(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn(ctx, "fetch pool shutdown failed", logger.Error(err))
		}
		<-drained
	}

	return fetched{accountOf: accountOf, rosters: byAccount}
}

func (s *Service) runCohort(ctx context.Context, cat *catalog.Catalog, c cohort.Cohort, rosters fetched, stats *model.RunStats) (model.CohortReport, report.CohortSummary, error) {
	accepted := cat.ByRarity(c.Rarity)
	agg := aggregate.New(cat, aggregate.WithAccepted(accepted))

	// Handles sharing one account count once.
	folded := make(map[model.AccountID]bool)
	for _, h := range c.Handles {
		id, roster, ok := rosters.roster(h)
		if !ok || folded[id] {
			continue
		}
		folded[id] = true
		if len(roster) == 0 {
			s.logger.Info(ctx, "roster is empty", logger.String("handle", h), logger.String("cohort", c.Key()))
			continue
		}
		evaluated := 0
		for id := range roster {
			if _, ok := accepted[id]; ok {
				evaluated++
			}
		}
		skipped := agg.Add(roster)
		metrics.RecordRecordsEvaluated(evaluated)
		metrics.RecordRecordsMalformed(len(skipped))
		for _, rerr := range skipped {
			stats.RecordsSkipped[skipKind(rerr.Err)]++
			s.logger.Warn(ctx, "skipping progress record",
				logger.String("handle", h),
				logger.String("operator", rerr.OperatorID),
				logger.Error(rerr.Err),
			)
		}
	}

	rows := aggregate.Rows(cat, agg.Counts(), agg.Rosters(), s.fields)
	path, err := report.WriteFile(s.outputDir, c.Key(), rows, s.fields)
	if err != nil {
		return model.CohortReport{}, report.CohortSummary{}, err
	}
	s.logger.Info(ctx, "wrote report", logger.String("path", path), logger.Int("accounts", agg.Rosters()))

	cr := model.CohortReport{
		Key:       c.Key(),
		Rarity:    c.Rarity,
		Community: c.Community,
		Accounts:  agg.Rosters(),
		Fields:    milestone.Names(s.fields),
		Path:      path,
		Rows:      make([]model.ReportRow, 0, len(rows)),
	}
	for _, r := range rows {
		counts := make(map[string]int, len(r.Fields))
		for i, f := range r.Fields {
			counts[f.String()] = r.Values[i]
		}
		cr.Rows = append(cr.Rows, model.ReportRow{
			OperatorID:   r.OperatorID,
			OperatorName: r.OperatorName,
			Accounts:     r.Accounts,
			Counts:       counts,
		})
	}
	sum := report.Summarize(cr.Key, path, rows)
	sum.Accounts = cr.Accounts
	return cr, sum, nil
}

func skipKind(err error) string {
	switch {
	case errors.Is(err, milestone.ErrMalformedProgressRecord):
		return model.SkipMalformedRecord
	case errors.Is(err, progress.ErrUnrecognizedProgressSchema):
		return model.SkipUnrecognizedSchema
	default:
		return model.SkipOther
	}
}

// LatestRun returns the most recent persisted run.
func (s *Service) LatestRun(ctx context.Context) (model.Run, error) {
	if s.store == nil {
		return model.Run{}, ErrNoStore
	}
	return s.store.LatestRun(ctx)
}

// RunByID returns a persisted run.
func (s *Service) RunByID(ctx context.Context, id string) (model.Run, error) {
	if s.store == nil {
		return model.Run{}, ErrNoStore
	}
	return s.store.Run(ctx, id)
}

// Report returns one cohort of a run. An empty runID means the latest run.
func (s *Service) Report(ctx context.Context, runID, cohortKey string) (model.CohortReport, error) {
	if s.store == nil {
		return model.CohortReport{}, ErrNoStore
	}
	if runID == "" {
		latest, err := s.store.LatestRun(ctx)
		if err != nil {
			return model.CohortReport{}, err
		}
		runID = latest.ID
	}
	return s.store.Report(ctx, runID, cohortKey)
}
