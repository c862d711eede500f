package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	service "github.com/PeterYR/krooster-stats/internal/app"
	"github.com/PeterYR/krooster-stats/internal/adapters/repository"
	"github.com/PeterYR/krooster-stats/internal/domain/catalog"
	"github.com/PeterYR/krooster-stats/internal/domain/cohort"
	"github.com/PeterYR/krooster-stats/internal/domain/milestone"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(logger.WithWriter(&bytes.Buffer{})); err != nil {
		panic(err)
	}
}

type fakeCatalog struct {
	raw   map[string]catalog.RawOperator
	err   error
	calls int
}

func (f *fakeCatalog) Raw(context.Context) (map[string]catalog.RawOperator, error) {
	f.calls++
	return f.raw, f.err
}

type fakeUpstream struct {
	mu      sync.Mutex
	ids     map[string]model.AccountID
	rosters map[model.AccountID]model.Roster
	fetches map[model.AccountID]int
	onFetch func(ctx context.Context)
}

func (f *fakeUpstream) Resolve(_ context.Context, handle string) (model.AccountID, bool, error) {
	h := strings.ToLower(handle)
	if h == "flaky" {
		return "", false, errors.New("phonebook down")
	}
	id, ok := f.ids[h]
	return id, ok, nil
}

func (f *fakeUpstream) FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error) {
	f.mu.Lock()
	f.fetches[id]++
	f.mu.Unlock()
	if f.onFetch != nil {
		f.onFetch(ctx)
	}
	r, ok := f.rosters[id]
	if !ok {
		return nil, errors.New("roster unavailable")
	}
	return r, nil
}

func maxedSix() model.Progress {
	return model.Progress{
		Owned:      true,
		Rarity:     model.IntPtr(6),
		Promotion:  model.IntPtr(2),
		Level:      model.IntPtr(90),
		Potential:  model.IntPtr(6),
		SkillLevel: model.IntPtr(7),
		Mastery:    model.SequenceOf(model.IntPtr(3), model.IntPtr(3), model.IntPtr(3)),
	}
}

func fixtures() (*fakeCatalog, *fakeUpstream) {
	cat := &fakeCatalog{raw: map[string]catalog.RawOperator{
		"op_six":  {Name: "Six", Rarity: 6},
		"op_five": {Name: "Five", Rarity: 5},
	}}
	up := &fakeUpstream{
		ids: map[string]model.AccountID{
			"alice":  "a1",
			"alice2": "a1",
			"bob":    "b1",
			"carol":  "c1",
			"broken": "x1",
		},
		rosters: map[model.AccountID]model.Roster{
			"a1": {"op_six": maxedSix()},
			"b1": {
				"op_five": {Owned: true, Rarity: model.IntPtr(5), Potential: model.IntPtr(1)},
				"op_six":  {Owned: true},
			},
			"c1": {},
		},
		fetches: map[model.AccountID]int{},
	}
	return cat, up
}

func TestService_Run(t *testing.T) {
	Convey("Given a service over a fake upstream and a run store", t, func() {
		cat, up := fixtures()
		dir := t.TempDir()
		store, err := repository.Open(filepath.Join(dir, "runs.db"))
		So(err, ShouldBeNil)
		defer store.Close()

		var summary bytes.Buffer
		svc := service.New(cat, up,
			service.WithBatchSize(4),
			service.WithOutputDir(filepath.Join(dir, "out")),
			service.WithStore(store),
			service.WithSummary(&summary),
		)

		req := service.Request{
			Source: "responses.csv",
			Cohorts: []cohort.Cohort{
				{Rarity: 6, Handles: []string{"Alice", "alice2", "Bob", "Carol", "ghost", "flaky"}},
				{Rarity: 5, Handles: []string{"bob", "broken"}},
				{Rarity: 4},
			},
		}

		Convey("When the run completes", func() {
			run, err := svc.Run(context.Background(), req)
			So(err, ShouldBeNil)

			Convey("Then the diagnostics account for every handle", func() {
				So(run.ID, ShouldNotBeEmpty)
				So(run.Stats.Handles, ShouldEqual, 7)
				So(run.Stats.Resolved, ShouldEqual, 5)
				So(run.Stats.NotFound, ShouldEqual, 1)
				So(run.Stats.ResolveErrors, ShouldEqual, 1)
				So(run.Stats.DuplicateAccounts, ShouldEqual, 1)
				So(run.Stats.RostersFetched, ShouldEqual, 3)
				So(run.Stats.EmptyRosters, ShouldEqual, 1)
				So(run.Stats.FetchFailures, ShouldEqual, 1)
				So(run.Stats.RecordsSkipped[model.SkipMalformedRecord], ShouldEqual, 1)
			})

			Convey("Then each account is fetched once", func() {
				So(up.fetches["a1"], ShouldEqual, 1)
				So(up.fetches["b1"], ShouldEqual, 1)
			})

			Convey("Then empty cohorts are skipped", func() {
				So(run.Cohorts, ShouldHaveLength, 2)
				So(run.Stats.Cohorts, ShouldEqual, 2)
			})

			Convey("Then shared accounts are counted once per cohort", func() {
				six := run.Cohorts[0]
				So(six.Key, ShouldEqual, "6")
				So(six.Accounts, ShouldEqual, 2)
				So(six.Rows, ShouldHaveLength, 1)
				So(six.Rows[0].OperatorID, ShouldEqual, "op_six")
				So(six.Rows[0].Counts["owned"], ShouldEqual, 1)
				So(six.Rows[0].Counts["all-M3"], ShouldEqual, 1)
				So(six.Rows[0].Counts["pot-6"], ShouldEqual, 1)

				five := run.Cohorts[1]
				So(five.Accounts, ShouldEqual, 1)
				So(five.Rows[0].Counts["owned"], ShouldEqual, 1)
			})

			Convey("Then a CSV is written per cohort", func() {
				data, err := os.ReadFile(run.Cohorts[0].Path)
				So(err, ShouldBeNil)
				So(string(data), ShouldStartWith, "operator_name,owned,")
				So(string(data), ShouldContainSubstring, "Six,1,")
			})

			Convey("Then the run is persisted and readable", func() {
				latest, err := svc.LatestRun(context.Background())
				So(err, ShouldBeNil)
				So(latest.ID, ShouldEqual, run.ID)
				So(latest.Stats.Resolved, ShouldEqual, 5)

				rep, err := svc.Report(context.Background(), "", "5")
				So(err, ShouldBeNil)
				So(rep.Rows, ShouldHaveLength, 1)
				So(rep.Rows[0].OperatorName, ShouldEqual, "Five")
			})

			Convey("Then a summary table is printed", func() {
				So(summary.String(), ShouldContainSubstring, "Six (1)")
			})
		})

		Convey("When an account has a record that failed to decode", func() {
			var mixed model.Roster
			So(json.Unmarshal([]byte(`{
				"op_five": {"owned": true, "rarity": 5, "potential": 1},
				"op_six":  {"owned": true, "rarity": "6"}
			}`), &mixed), ShouldBeNil)
			up.rosters["b1"] = mixed

			run, err := svc.Run(context.Background(), req)
			So(err, ShouldBeNil)

			Convey("Then only that record is skipped and the account still counts", func() {
				So(run.Stats.FetchFailures, ShouldEqual, 1)
				So(run.Stats.RecordsSkipped[model.SkipMalformedRecord], ShouldEqual, 1)
				So(run.Cohorts[0].Accounts, ShouldEqual, 2)
				So(run.Cohorts[1].Rows[0].Counts["owned"], ShouldEqual, 1)
			})
		})

		Convey("When empty cohorts are kept", func() {
			req.KeepEmpty = true
			run, err := svc.Run(context.Background(), req)
			So(err, ShouldBeNil)

			Convey("Then they produce zero-account reports", func() {
				So(run.Cohorts, ShouldHaveLength, 3)
				So(run.Cohorts[2].Accounts, ShouldEqual, 0)
				So(run.Cohorts[2].Rows, ShouldBeEmpty)
			})
		})

		Convey("When running twice", func() {
			_, err := svc.Run(context.Background(), req)
			So(err, ShouldBeNil)
			_, err = svc.Run(context.Background(), req)
			So(err, ShouldBeNil)

			Convey("Then the catalog is loaded once and rosters are refetched", func() {
				So(cat.calls, ShouldEqual, 1)
				So(up.fetches["a1"], ShouldEqual, 2)
			})
		})
	})
}

func TestService_Fields(t *testing.T) {
	Convey("Given a service with a reduced column set", t, func() {
		cat, up := fixtures()
		dir := t.TempDir()
		svc := service.New(cat, up,
			service.WithOutputDir(dir),
			service.WithFields([]milestone.Flag{milestone.FlagOwned, milestone.FlagE2}),
		)

		Convey("When a run completes", func() {
			run, err := svc.Run(context.Background(), service.Request{
				Cohorts: []cohort.Cohort{{Rarity: 6, Handles: []string{"alice"}}},
			})
			So(err, ShouldBeNil)

			Convey("Then only those columns are reported", func() {
				So(run.Cohorts[0].Fields, ShouldResemble, []string{"owned", "E2"})
				data, err := os.ReadFile(run.Cohorts[0].Path)
				So(err, ShouldBeNil)
				So(strings.SplitN(string(data), "\n", 2)[0], ShouldEqual, "operator_name,owned,E2,operator_id,accounts")
			})
		})
	})
}

func TestService_Errors(t *testing.T) {
	Convey("Given a catalog that cannot be loaded", t, func() {
		cat, up := fixtures()
		cat.err = errors.New("offline")
		svc := service.New(cat, up, service.WithOutputDir(t.TempDir()))

		Convey("When running", func() {
			_, err := svc.Run(context.Background(), service.Request{
				Cohorts: []cohort.Cohort{{Rarity: 6, Handles: []string{"alice"}}},
			})

			Convey("Then the run fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "offline")
			})
		})
	})

	Convey("Given a catalog that fails once and then recovers", t, func() {
		cat, up := fixtures()
		cat.err = errors.New("offline")
		svc := service.New(cat, up)

		_, err := svc.Catalog(context.Background())
		So(err, ShouldNotBeNil)

		Convey("When asked again after the source recovers", func() {
			cat.err = nil
			first, err := svc.Catalog(context.Background())
			So(err, ShouldBeNil)
			second, err := svc.Catalog(context.Background())
			So(err, ShouldBeNil)

			Convey("Then the catalog is loaded again and kept", func() {
				So(first, ShouldNotBeNil)
				So(second, ShouldEqual, first)
				So(cat.calls, ShouldEqual, 2)
			})
		})
	})

	Convey("Given a run cancelled while rosters are downloading", t, func() {
		cat, up := fixtures()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		up.onFetch = func(ctx context.Context) {
			cancel()
			<-ctx.Done()
		}
		svc := service.New(cat, up, service.WithBatchSize(2), service.WithOutputDir(t.TempDir()))

		Convey("When running", func() {
			_, err := svc.Run(ctx, service.Request{
				Cohorts: []cohort.Cohort{{Rarity: 6, Handles: []string{"alice", "bob", "carol"}}},
			})

			Convey("Then the run stops with the cancellation", func() {
				So(errors.Is(err, context.Canceled), ShouldBeTrue)
			})
		})
	})

	Convey("Given a service without a store", t, func() {
		cat, up := fixtures()
		svc := service.New(cat, up)

		Convey("Then reads report the missing store", func() {
			_, err := svc.LatestRun(context.Background())
			So(errors.Is(err, service.ErrNoStore), ShouldBeTrue)
			_, err = svc.Report(context.Background(), "", "6")
			So(errors.Is(err, service.ErrNoStore), ShouldBeTrue)
		})
	})

	Convey("Given a store with no runs", t, func() {
		cat, up := fixtures()
		store, err := repository.Open(filepath.Join(t.TempDir(), "runs.db"))
		So(err, ShouldBeNil)
		defer store.Close()
		svc := service.New(cat, up, service.WithStore(store))

		Convey("Then the latest run is not found", func() {
			_, err := svc.LatestRun(context.Background())
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})
	})
}
