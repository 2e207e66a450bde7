// Package queue holds the bounded job queues that feed the rating writers.
//
// Each category gets its own queue so one busy category cannot starve
// another, and a full queue is reported to the caller instead of blocking.
package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/pitchelo/internal/domain/model"
	"github.com/okian/pitchelo/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 1024
)

// Job states.
const (
	jobPending int32 = iota
	jobClaimed
	jobAbandoned
)

// Job is one unit of work for a category writer. The submitter waits on
// Done, which receives exactly one value once the job ran or was skipped.
type Job struct {
	ctx      context.Context //nolint:containedctx // the job runs under its submitter's context
	category model.Category
	run      func(ctx context.Context) error
	done     chan error
	enqueued time.Time
	state    atomic.Int32
}

// NewJob wraps fn so it runs under ctx on the category writer.
func NewJob(ctx context.Context, category model.Category, fn func(ctx context.Context) error) *Job {
	return &Job{
		ctx:      ctx,
		category: category,
		run:      fn,
		done:     make(chan error, 1),
		enqueued: time.Now(),
	}
}

// Category returns the category the job writes to.
func (j *Job) Category() model.Category { return j.category }

// Context returns the submitter's context.
func (j *Job) Context() context.Context { return j.ctx }

// Done delivers the job result.
func (j *Job) Done() <-chan error { return j.done }

// Enqueued returns when the job was created.
func (j *Job) Enqueued() time.Time { return j.enqueued }

// Claim marks the job as taken by a writer. It fails if the submitter
// already gave up on it.
func (j *Job) Claim() bool { return j.state.CompareAndSwap(jobPending, jobClaimed) }

// Abandon withdraws a job that no writer has claimed yet.
func (j *Job) Abandon() bool { return j.state.CompareAndSwap(jobPending, jobAbandoned) }

// Execute runs the job and reports its result. A job whose context is
// already done is skipped with the context error.
func (j *Job) Execute() error {
	err := j.ctx.Err()
	if err == nil {
		err = j.run(j.ctx)
	}
	j.done <- err
	return err
}

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds a job. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, j *Job) bool

	// Dequeue returns the channel jobs are read from. It is closed by Close.
	Dequeue(ctx context.Context) <-chan *Job

	// Len returns the current number of queued jobs.
	Len(ctx context.Context) int

	// Close stops accepting jobs. Queued jobs can still be drained.
	Close() error

	// IsClosed returns true if the queue has been closed.
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	jobs     chan *Job
	capacity int
	name     string

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		name:     "default",
	}
	for _, opt := range opts {
		opt(q)
	}
	q.jobs = make(chan *Job, q.capacity)
	metrics.UpdateWriterQueueDepth(q.name, 0)
	return q
}

// Enqueue adds a job to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, j *Job) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordWriterRejected(q.name, "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordWriterRejected(q.name, "context_cancelled")
		return false
	}

	select {
	case q.jobs <- j:
		metrics.UpdateWriterQueueDepth(q.name, len(q.jobs))
		return true
	default:
		metrics.RecordWriterRejected(q.name, "full")
		return false
	}
}

// Dequeue returns the job channel.
func (q *InMemoryQueue) Dequeue(context.Context) <-chan *Job {
	return q.jobs
}

// Len returns the current number of queued jobs.
func (q *InMemoryQueue) Len(context.Context) int {
	n := len(q.jobs)
	metrics.UpdateWriterQueueDepth(q.name, n)
	return n
}

// Close gracefully shuts down the queue.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.jobs)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
