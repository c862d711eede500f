// Package worker downloads rosters for queued fetch jobs.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/PeterYR/krooster-stats/internal/adapters/mq/queue"
	"github.com/PeterYR/krooster-stats/internal/domain/model"
	"github.com/PeterYR/krooster-stats/pkg/logger"
	"github.com/PeterYR/krooster-stats/pkg/metrics"
)

const (
	defaultWorkerMultiplier = 4 // multiplier for runtime.NumCPU()
	workerShutdownTimeout   = 5 * time.Second
)

// Fetcher downloads one account's roster.
type Fetcher interface {
	FetchRoster(ctx context.Context, id model.AccountID) (model.Roster, error)
}

// Sink receives every fetch result, successful or not.
type Sink interface {
	Deliver(ctx context.Context, res model.FetchResult)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, res model.FetchResult)

func (f SinkFunc) Deliver(ctx context.Context, res model.FetchResult) { f(ctx, res) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan queue.Job
}

// InMemoryWorker processes jobs until the queue drains or it is stopped.
type InMemoryWorker struct {
	queue   Queue
	fetcher Fetcher
	sink    Sink
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, fetcher Fetcher, sink Sink, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		fetcher:  fetcher,
		sink:     sink,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It returns when the queue channel closes,
// ctx is cancelled or Shutdown is called.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.shutdown:
			return
		case j, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, j)
		}
	}
}

// Shutdown stops the worker after its current job.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, j queue.Job) {
	start := time.Now()
	roster, err := w.fetcher.FetchRoster(ctx, j.AccountID)
	took := time.Since(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		metrics.RecordErrorByComponent("worker", "fetch_error")
		w.logger.Warn(ctx, "roster fetch failed",
			logger.String("handle", j.Handle),
			logger.String("account", string(j.AccountID)),
			logger.Error(err),
		)
	} else {
		w.logger.Debug(ctx, "roster fetched",
			logger.String("handle", j.Handle),
			logger.Int("operators", len(roster)),
			logger.Duration("took", took),
		)
	}
	metrics.RecordFetch(outcome, float64(took.Milliseconds()))

	w.sink.Deliver(ctx, model.FetchResult{
		Handle:    j.Handle,
		AccountID: j.AccountID,
		Roster:    roster,
		Err:       err,
		Duration:  took,
	})
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	wg      sync.WaitGroup
	logger  logger.Logger
}

// NewPool creates a worker pool. workerCount < 1 picks a default from the CPU count.
func NewPool(workerCount int, q Queue, fetcher Fetcher, sink Sink) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU() * defaultWorkerMultiplier
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q, fetcher, sink, WithName("worker-"+strconv.Itoa(i)))
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start launches every worker.
func (p *Pool) Start(ctx context.Context) {
	metrics.UpdateWorkerCount(len(p.workers))
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *InMemoryWorker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned, normally because the queue
// was closed and drained.
func (p *Pool) Wait() {
	p.wg.Wait()
	metrics.UpdateWorkerCount(0)
}

// Shutdown closes the queue and stops all workers.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, workerShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
		}
	}
	metrics.UpdateWorkerCount(0)
	return nil
}
