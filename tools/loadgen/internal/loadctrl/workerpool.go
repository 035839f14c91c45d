package loadctrl

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task is a unit of work executed by a pool worker.
type Task func(ctx context.Context) error

// WorkerPool runs submitted tasks on a fixed set of workers.
// Safe for concurrent use.
type WorkerPool struct {
	size    int
	taskCh  chan Task
	stopCh  chan struct{}
	wg      sync.WaitGroup
	running atomic.Bool

	totalExecuted atomic.Int64
	totalFailed   atomic.Int64
	activeWorkers atomic.Int32
}

// WorkerPoolStats is a snapshot of pool activity.
type WorkerPoolStats struct {
	Size          int
	Active        int
	TotalExecuted int64
	TotalFailed   int64
	PendingTasks  int
}

// NewWorkerPool creates a pool of the given size. Size defaults to 1 and the
// task queue holds twice the worker count.
func NewWorkerPool(size int) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	return &WorkerPool{
		size:   size,
		taskCh: make(chan Task, size*2),
		stopCh: make(chan struct{}),
	}
}

// Start launches the workers. Starting a running pool is a no-op.
func (p *WorkerPool) Start(ctx context.Context) {
	if p.running.Swap(true) {
		return
	}
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx)
	}
}

// Stop signals the workers and waits for in-flight tasks to finish.
// Queued tasks that have not started are dropped.
func (p *WorkerPool) Stop() {
	if !p.running.Swap(false) {
		return
	}
	close(p.stopCh)
	p.wg.Wait()
}

// Submit queues a task without blocking. Returns false when the pool is
// stopped or the queue is full.
func (p *WorkerPool) Submit(task Task) bool {
	if !p.running.Load() {
		return false
	}
	select {
	case p.taskCh <- task:
		return true
	default:
		return false
	}
}

// SubmitWait queues a task, blocking until there is room, the context is done
// or the pool stops.
func (p *WorkerPool) SubmitWait(ctx context.Context, task Task) error {
	if !p.running.Load() {
		return context.Canceled
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.stopCh:
		return context.Canceled
	case p.taskCh <- task:
		return nil
	}
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.size
}

// Stats returns a snapshot of pool activity.
func (p *WorkerPool) Stats() WorkerPoolStats {
	return WorkerPoolStats{
		Size:          p.size,
		Active:        int(p.activeWorkers.Load()),
		TotalExecuted: p.totalExecuted.Load(),
		TotalFailed:   p.totalFailed.Load(),
		PendingTasks:  len(p.taskCh),
	}
}

func (p *WorkerPool) runWorker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case task := <-p.taskCh:
			p.activeWorkers.Add(1)
			if err := task(ctx); err != nil {
				p.totalFailed.Add(1)
			} else {
				p.totalExecuted.Add(1)
			}
			p.activeWorkers.Add(-1)
		}
	}
}
