package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	queue "github.com/PeterYR/krooster-stats/internal/adapters/mq/queue"
	worker "github.com/PeterYR/krooster-stats/internal/adapters/mq/worker"
	model "github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

type mockFetcher struct {
	mu      sync.Mutex
	rosters map[model.AccountID]model.Roster
	errs    map[model.AccountID]error
	calls   int
	delay   time.Duration
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		rosters: map[model.AccountID]model.Roster{},
		errs:    map[model.AccountID]error{},
	}
}

func (f *mockFetcher) FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err, ok := f.errs[id]; ok {
		return nil, err
	}
	return f.rosters[id], nil
}

type collectingSink struct {
	mu      sync.Mutex
	results []model.FetchResult
}

func (s *collectingSink) Deliver(_ context.Context, res model.FetchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
}

func (s *collectingSink) byHandle() map[string]model.FetchResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]model.FetchResult, len(s.results))
	for _, r := range s.results {
		out[r.Handle] = r
	}
	return out
}

func enqueue(ctx context.Context, q queue.Queue, handles ...string) {
	for _, h := range handles {
		q.Enqueue(ctx, model.FetchJob{Handle: h, AccountID: model.AccountID("id-" + h), Queued: time.Now()})
	}
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool over a closed, filled queue", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(64))
		fetcher := newMockFetcher()
		fetcher.rosters["id-alpha"] = model.Roster{"char_002_amiya": {ID: "char_002_amiya"}}
		fetcher.errs["id-broken"] = errors.New("upstream 500")
		sink := &collectingSink{}

		enqueue(ctx, q, "alpha", "beta", "broken")
		convey.So(q.Close(), convey.ShouldBeNil)

		pool := worker.NewPool(3, q, fetcher, sink)
		convey.So(pool.Size(), convey.ShouldEqual, 3)
		pool.Start(ctx)
		pool.Wait()

		convey.Convey("Then every job produces exactly one result", func() {
			got := sink.byHandle()
			convey.So(len(sink.results), convey.ShouldEqual, 3)
			convey.So(fetcher.calls, convey.ShouldEqual, 3)

			convey.So(got["alpha"].OK(), convey.ShouldBeTrue)
			convey.So(got["alpha"].Roster, convey.ShouldContainKey, "char_002_amiya")
			convey.So(got["alpha"].AccountID, convey.ShouldEqual, model.AccountID("id-alpha"))

			convey.So(got["beta"].OK(), convey.ShouldBeTrue)
			convey.So(got["beta"].Roster, convey.ShouldBeEmpty)

			convey.So(got["broken"].OK(), convey.ShouldBeFalse)
			convey.So(got["broken"].Err.Error(), convey.ShouldContainSubstring, "upstream 500")
		})
	})

	convey.Convey("Given a larger batch spread over many workers", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(500))
		fetcher := newMockFetcher()
		sink := &collectingSink{}

		for i := 0; i < 200; i++ {
			enqueue(ctx, q, fmt.Sprintf("h%03d", i))
		}
		convey.So(q.Close(), convey.ShouldBeNil)

		pool := worker.NewPool(8, q, fetcher, sink)
		pool.Start(ctx)
		pool.Wait()

		convey.Convey("Then no job is lost or repeated", func() {
			convey.So(len(sink.results), convey.ShouldEqual, 200)
			convey.So(len(sink.byHandle()), convey.ShouldEqual, 200)
		})
	})

	convey.Convey("Given a pool that is shut down while idle", t, func() {
		ctx := context.Background()
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		var delivered int
		var mu sync.Mutex
		sink := worker.SinkFunc(func(context.Context, model.FetchResult) {
			mu.Lock()
			delivered++
			mu.Unlock()
		})

		pool := worker.NewPool(2, q, newMockFetcher(), sink)
		pool.Start(ctx)

		convey.Convey("Then shutdown returns and the queue is closed", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)
			pool.Wait()
			convey.So(q.IsClosed(), convey.ShouldBeTrue)
			convey.So(delivered, convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a cancelled context", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		q := queue.NewInMemoryQueue(queue.WithCapacity(4))
		sink := &collectingSink{}

		pool := worker.NewPool(2, q, newMockFetcher(), sink)
		pool.Start(ctx)
		cancel()

		convey.Convey("Then workers exit without the queue closing", func() {
			done := make(chan struct{})
			go func() { pool.Wait(); close(done) }()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("workers did not stop after cancellation")
			}
			convey.So(q.IsClosed(), convey.ShouldBeFalse)
		})
	})
}
