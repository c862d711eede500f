package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/PeterYR/krooster-stats/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func job(handle string) Job {
	return model.FetchJob{Handle: handle, AccountID: model.AccountID("uuid-" + handle), Queued: time.Now()}
}

func TestInMemoryQueue(t *testing.T) {
	Convey("Given a queue with capacity 2", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When it starts", func() {
			So(q.Len(ctx), ShouldEqual, 0)
			So(q.IsClosed(), ShouldBeFalse)
		})

		Convey("When a job is enqueued and dequeued", func() {
			So(q.Enqueue(ctx, job("amiya")), ShouldBeTrue)
			So(q.Len(ctx), ShouldEqual, 1)

			got := <-q.Dequeue(ctx)

			Convey("Then the same job comes out", func() {
				So(got.Handle, ShouldEqual, "amiya")
				So(got.AccountID, ShouldEqual, model.AccountID("uuid-amiya"))
			})
		})

		Convey("When the queue is full", func() {
			So(q.Enqueue(ctx, job("a")), ShouldBeTrue)
			So(q.Enqueue(ctx, job("b")), ShouldBeTrue)

			Convey("Then further jobs are rejected", func() {
				So(q.Enqueue(ctx, job("c")), ShouldBeFalse)
				So(q.Len(ctx), ShouldEqual, 2)
			})
		})

		Convey("When the queue is closed with jobs pending", func() {
			So(q.Enqueue(ctx, job("a")), ShouldBeTrue)
			So(q.Close(), ShouldBeNil)
			So(q.Close(), ShouldBeNil)

			Convey("Then enqueue fails but pending jobs drain", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, job("b")), ShouldBeFalse)

				var handles []string
				for j := range q.Dequeue(ctx) {
					handles = append(handles, j.Handle)
				}
				So(handles, ShouldResemble, []string{"a"})
			})
		})

		Convey("When the context is already cancelled", func() {
			cctx, cancel := context.WithCancel(ctx)
			cancel()

			Convey("Then enqueue refuses the job", func() {
				So(q.Enqueue(cctx, job("a")), ShouldBeFalse)
			})
		})
	})

	Convey("Given many producers and consumers", t, func() {
		ctx := context.Background()
		q := NewInMemoryQueue(WithCapacity(1000))
		const producers, perProducer = 10, 50

		var wg sync.WaitGroup
		for p := 0; p < producers; p++ {
			wg.Add(1)
			go func(p int) {
				defer wg.Done()
				for i := 0; i < perProducer; i++ {
					q.Enqueue(ctx, job(fmt.Sprintf("h-%d-%d", p, i)))
				}
			}(p)
		}
		wg.Wait()
		So(q.Close(), ShouldBeNil)

		var mu sync.Mutex
		seen := map[string]bool{}
		var cwg sync.WaitGroup
		for c := 0; c < 4; c++ {
			cwg.Add(1)
			go func() {
				defer cwg.Done()
				for j := range q.Dequeue(ctx) {
					mu.Lock()
					seen[j.Handle] = true
					mu.Unlock()
				}
			}()
		}
		cwg.Wait()

		Convey("Then every job is delivered exactly once", func() {
			So(len(seen), ShouldEqual, producers*perProducer)
		})
	})
}
