package msgport

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Scheduler decides where a local endpoint's callbacks run. Listen calls
// Bind once per endpoint.
type Scheduler interface {
	Bind(name string) Lane
}

// Lane carries one endpoint's deliveries into its scheduler. Submit must
// not run task inline and must not block; it returns false once the lane
// is closed. Tasks accepted before Close still run.
type Lane interface {
	Submit(task func()) bool
	Close()
}

// ErrLoopRunning is returned by Run when another goroutine is already
// servicing the loop.
var ErrLoopRunning = errors.New("msgport: run loop already running")

// RunLoop is a cooperative scheduler. Every endpoint bound to it shares one
// FIFO of ready tasks, serviced by whichever goroutine calls Run or
// RunOnce. Two tasks never run at the same time.
type RunLoop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	stopReq bool
}

// NewRunLoop returns an idle run loop.
func NewRunLoop() *RunLoop {
	l := &RunLoop{}
	l.cond = sync.NewCond(&l.mu)
	return l
}

func (l *RunLoop) Bind(string) Lane { return &loopLane{loop: l} }

// Run services ready tasks on the calling goroutine until ctx is done or
// Stop is called. It returns ctx.Err() or nil after Stop.
func (l *RunLoop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running {
		l.mu.Unlock()
		return ErrLoopRunning
	}
	l.running = true
	l.mu.Unlock()

	stop := context.AfterFunc(ctx, func() {
		l.mu.Lock()
		l.cond.Broadcast()
		l.mu.Unlock()
	})
	defer stop()
	defer func() {
		l.mu.Lock()
		l.running = false
		l.stopReq = false
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopReq && ctx.Err() == nil {
			l.cond.Wait()
		}
		if l.stopReq || ctx.Err() != nil {
			l.mu.Unlock()
			return ctx.Err()
		}
		task := l.popLocked()
		l.mu.Unlock()

		task()
	}
}

// RunOnce runs the oldest ready task, if any, and reports whether it did.
// It does nothing while Run is active on another goroutine.
func (l *RunLoop) RunOnce() bool {
	l.mu.Lock()
	if l.running || len(l.queue) == 0 {
		l.mu.Unlock()
		return false
	}
	l.running = true
	task := l.popLocked()
	l.mu.Unlock()

	task()

	l.mu.Lock()
	l.running = false
	l.mu.Unlock()
	return true
}

// Stop makes an active Run return after its current task.
func (l *RunLoop) Stop() {
	l.mu.Lock()
	if l.running {
		l.stopReq = true
		l.cond.Broadcast()
	}
	l.mu.Unlock()
}

// Len returns the number of ready tasks.
func (l *RunLoop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *RunLoop) enqueue(task func()) {
	l.mu.Lock()
	l.queue = append(l.queue, task)
	l.cond.Signal()
	l.mu.Unlock()
}

func (l *RunLoop) popLocked() func() {
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task
}

type loopLane struct {
	loop   *RunLoop
	closed atomic.Bool
}

func (l *loopLane) Submit(task func()) bool {
	if l.closed.Load() {
		return false
	}
	l.loop.enqueue(task)
	return true
}

func (l *loopLane) Close() { l.closed.Store(true) }

// WorkQueue is a concurrent scheduler backed by a bounded pool. Callbacks
// of different endpoints run in parallel; callbacks of one endpoint run one
// at a time in arrival order unless the queue was built with
// WithEndpointConcurrency.
type WorkQueue struct {
	sem        *semaphore.Weighted
	workers    int
	concurrent bool
}

// WorkQueueOption configures NewWorkQueue.
type WorkQueueOption func(*WorkQueue)

// WithWorkers bounds how many callbacks run at once. Values below one are
// treated as one.
func WithWorkers(n int) WorkQueueOption {
	return func(q *WorkQueue) { q.workers = n }
}

// WithEndpointConcurrency lets callbacks of the same endpoint overlap.
func WithEndpointConcurrency() WorkQueueOption {
	return func(q *WorkQueue) { q.concurrent = true }
}

// NewWorkQueue returns a queue with GOMAXPROCS workers by default.
func NewWorkQueue(opts ...WorkQueueOption) *WorkQueue {
	q := &WorkQueue{workers: runtime.GOMAXPROCS(0)}
	for _, opt := range opts {
		opt(q)
	}
	if q.workers < 1 {
		q.workers = 1
	}
	q.sem = semaphore.NewWeighted(int64(q.workers))
	return q
}

// Workers returns the pool bound.
func (q *WorkQueue) Workers() int { return q.workers }

func (q *WorkQueue) Bind(string) Lane {
	if q.concurrent {
		return &concurrentLane{q: q}
	}
	return &serialLane{q: q}
}

func (q *WorkQueue) run(task func()) {
	// Acquire with a background context cannot fail.
	_ = q.sem.Acquire(context.Background(), 1)
	defer q.sem.Release(1)
	task()
}

// serialLane keeps one endpoint's tasks ordered: at most one drain
// goroutine exists per lane.
type serialLane struct {
	q *WorkQueue

	mu      sync.Mutex
	queue   []func()
	running bool
	closed  bool
}

func (l *serialLane) Submit(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.queue = append(l.queue, task)
	if !l.running {
		l.running = true
		go l.drain()
	}
	return true
}

func (l *serialLane) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.running = false
			l.mu.Unlock()
			return
		}
		task := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.q.run(task)
	}
}

func (l *serialLane) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}

type concurrentLane struct {
	q      *WorkQueue
	closed atomic.Bool
}

func (l *concurrentLane) Submit(task func()) bool {
	if l.closed.Load() {
		return false
	}
	go l.q.run(task)
	return true
}

func (l *concurrentLane) Close() { l.closed.Store(true) }
