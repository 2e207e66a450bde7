// Package worker runs one writer goroutine per category so rating writes
// for a category are applied one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/pitchelo/internal/adapters/mq/queue"
	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/logger"
	"github.com/okian/pitchelo/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultQueueSize      = 256
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Sentinel kinds for writer errors.
var (
	// ErrBackpressure means the category queue is full.
	ErrBackpressure = errors.New("writer queue full")
	// ErrStopped means the pool is not accepting jobs.
	ErrStopped = errors.New("writer stopped")
)

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan *queue.Job
}

// Worker processes jobs from one queue.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or the queue closes.
	Run(ctx context.Context)

	// Shutdown waits for the worker to finish.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker executes jobs for a single category in arrival order.
type InMemoryWorker struct {
	queue Queue
	name  string

	done chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:  q,
		name:   "worker",
		done:   make(chan struct{}),
		logger: logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop. It drains the queue until it is closed.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	jobs := w.queue.Dequeue(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-jobs:
			if !ok {
				return
			}
			w.process(ctx, job)
		}
	}
}

// Done is closed once Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} { return w.done }

// Shutdown waits for the worker to finish. Close its queue first.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

func (w *InMemoryWorker) process(ctx context.Context, job *queue.Job) {
	if !job.Claim() {
		return
	}
	cat := string(job.Category())
	metrics.RecordWriterWait(cat, float64(time.Since(job.Enqueued()).Microseconds())/1000)

	if err := job.Execute(); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Debug(ctx, "write job failed",
			logger.String("category", cat),
			logger.Error(err),
		)
	}
}

// Pool owns one queue and one worker per category.
type Pool struct {
	queues  map[model.Category]*queue.InMemoryQueue
	workers map[model.Category]*InMemoryWorker

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}

	logger logger.Logger
}

// NewPool creates a writer for each category with queues of queueSize.
func NewPool(categories []model.Category, queueSize int) *Pool {
	if queueSize < 1 {
		queueSize = defaultQueueSize
	}
	p := &Pool{
		queues:  make(map[model.Category]*queue.InMemoryQueue, len(categories)),
		workers: make(map[model.Category]*InMemoryWorker, len(categories)),
		stop:    make(chan struct{}),
		logger:  logger.Get().Named("writer-pool"),
	}
	for _, c := range categories {
		q := queue.NewInMemoryQueue(queue.WithCapacity(queueSize), queue.WithName(string(c)))
		p.queues[c] = q
		p.workers[c] = NewInMemoryWorker(q, WithName("writer-"+string(c)))
	}
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			for c, q := range p.queues {
				metrics.UpdateWriterQueueDepth(string(c), q.Len(ctx))
			}
		}
	}
}

// Submit runs fn on the category writer and waits for its result. If ctx
// ends before a writer picks the job up, the job is withdrawn and never
// runs; once picked up, Submit waits for it to finish.
func (p *Pool) Submit(ctx context.Context, category model.Category, fn func(ctx context.Context) error) error {
	q, ok := p.queues[category]
	if !ok {
		return fmt.Errorf("%w: %q", model.ErrUnknownCategory, category)
	}
	w := p.workers[category]

	job := queue.NewJob(ctx, category, fn)
	if !q.Enqueue(ctx, job) {
		switch {
		case q.IsClosed():
			return ErrStopped
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			return ErrBackpressure
		}
	}

	select {
	case err := <-job.Done():
		return err
	case <-ctx.Done():
		if job.Abandon() {
			return ctx.Err()
		}
		return <-job.Done()
	case <-w.Done():
		if job.Abandon() {
			return ErrStopped
		}
		return <-job.Done()
	}
}

// QueueDepth returns the number of jobs waiting for a category.
func (p *Pool) QueueDepth(ctx context.Context, category model.Category) int {
	q, ok := p.queues[category]
	if !ok {
		return 0
	}
	return q.Len(ctx)
}

// Shutdown stops accepting jobs and waits for queued ones to drain.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	started := p.started
	close(p.stop)
	p.mu.Unlock()

	for c, q := range p.queues {
		if err := q.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.String("category", string(c)), logger.Error(err))
		}
	}
	if !started {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var errs []error
	for c, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "writer shutdown timed out", logger.String("category", string(c)))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
