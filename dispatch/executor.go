package dispatch

import (
	"context"
	"sync"
)

// Executor runs asynchronous handler work
type Executor interface {
	Submit(task func()) error
}

// Inline runs each task on the submitting goroutine
type Inline struct{}

func (Inline) Submit(task func()) error {
	task()
	return nil
}

/* Pool is a fixed set of worker goroutines fed by a buffered channel
 * Submit blocks while the queue is full and fails once the pool is stopped.
 * Every task Submit accepted runs before Stop returns: the queue is closed
 * only after in-flight submits have settled, and workers drain it to the end.
 */
type Pool struct {
	workers int
	queue   chan func()
	stop    chan struct{}

	mu     sync.RWMutex
	closed bool

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewPool creates a pool; call Start before submitting
func NewPool(workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &Pool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		stop:    make(chan struct{}),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.work()
		}
	})
}

func (p *Pool) work() {
	defer p.wg.Done()
	for task := range p.queue {
		task()
	}
}

// Submit queues a task
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolStopped
	}

	select {
	case p.queue <- task:
		return nil
	case <-p.stop:
		return ErrPoolStopped
	}
}

// Stop refuses new work and waits for queued tasks to finish or ctx to expire
func (p *Pool) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		// wake submitters blocked on a full queue, then wait them out
		close(p.stop)
		p.mu.Lock()
		p.closed = true
		close(p.queue)
		p.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var (
	_ Executor = Inline{}
	_ Executor = (*Pool)(nil)
)
