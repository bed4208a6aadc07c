// Package workerpool provides a fixed-size worker pool with a bounded FIFO
// task queue, future-style result handles, and graceful drain on shutdown.
//
// Submission applies backpressure: when the queue is full, Submit blocks the
// caller until a slot frees up or the pool shuts down. Shutdown completes
// every task accepted before it, then joins the workers.
package workerpool

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultQueueLimit is the queue bound used when no explicit limit is set.
const DefaultQueueLimit = 1000

var (
	// ErrPoolClosed is returned by Submit once Shutdown has begun.
	ErrPoolClosed = errors.New("workerpool: pool closed")

	// ErrNilTask is returned by Submit for a nil task.
	ErrNilTask = errors.New("workerpool: nil task")
)

// Task is a unit of deferred work. A nil return means success.
type Task func() error

type job struct {
	task   Task
	handle *Handle
}

// Pool runs tasks on a fixed set of workers fed from a bounded FIFO queue.
type Pool struct {
	workers int

	tasks chan *job
	quit  chan struct{}

	mu         sync.Mutex
	closed     bool
	submitters sync.WaitGroup

	wg     sync.WaitGroup
	once   sync.Once
	active atomic.Int64
}

// Option configures a Pool.
type Option func(*config)

type config struct {
	queueLimit int
}

// WithQueueLimit sets the maximum number of queued-but-not-started tasks.
func WithQueueLimit(n int) Option {
	return func(c *config) { c.queueLimit = n }
}

// New creates a pool with the given number of workers and starts them.
// Workers block waiting for work until the first Submit.
func New(workers int, opts ...Option) (*Pool, error) {
	if workers < 1 {
		return nil, fmt.Errorf("workerpool: workers must be >= 1, got %d", workers)
	}

	cfg := config{queueLimit: DefaultQueueLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.queueLimit < 1 {
		return nil, fmt.Errorf("workerpool: queue limit must be >= 1, got %d", cfg.queueLimit)
	}

	p := &Pool{
		workers: workers,
		tasks:   make(chan *job, cfg.queueLimit),
		quit:    make(chan struct{}),
	}

	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}

	return p, nil
}

// Submit queues a task for execution and returns a handle that resolves with
// the task's result. Submit blocks while the queue holds the configured limit
// of pending tasks. Once Shutdown has begun it returns ErrPoolClosed, also
// waking callers already blocked on a full queue.
func (p *Pool) Submit(task Task) (*Handle, error) {
	if task == nil {
		return nil, ErrNilTask
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	p.submitters.Add(1)
	p.mu.Unlock()
	defer p.submitters.Done()

	h := newHandle()
	select {
	case p.tasks <- &job{task: task, handle: h}:
		return h, nil
	case <-p.quit:
		return nil, ErrPoolClosed
	}
}

// Shutdown stops intake, lets the workers drain every queued task, and joins
// them before returning. Handles issued before Shutdown all resolve during
// the drain. Shutdown is safe to call more than once; every call blocks until
// the pool has fully stopped.
func (p *Pool) Shutdown() {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		// Wake submitters blocked on a full queue, then wait until no send
		// can race the channel close below.
		close(p.quit)
		p.submitters.Wait()

		close(p.tasks)
		p.wg.Wait()
	})
}

// Workers returns the fixed worker count.
func (p *Pool) Workers() int { return p.workers }

// Active returns the number of tasks executing right now.
func (p *Pool) Active() int64 { return p.active.Load() }

// Queued returns the number of tasks waiting to be dequeued.
func (p *Pool) Queued() int { return len(p.tasks) }

// Stats is a point-in-time snapshot of pool occupancy.
type Stats struct {
	Workers int
	Active  int64
	Queued  int
}

// Stats returns a snapshot of the pool's occupancy. The fields are sampled
// independently and may not be mutually consistent under load.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers: p.workers,
		Active:  p.active.Load(),
		Queued:  len(p.tasks),
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.tasks {
		p.run(j)
	}
}

// run executes one task, converting a panic into a resolved failure so a bad
// task cannot take a worker down with it.
func (p *Pool) run(j *job) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			j.handle.resolve(fmt.Errorf("workerpool: task panic: %v", r))
		}
	}()
	j.handle.resolve(j.task())
}
