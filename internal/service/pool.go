package service

import (
	"context"
	"errors"
	"sync"
)

// ErrPoolStopped is returned by Submit after Stop.
var ErrPoolStopped = errors.New("worker pool stopped")

// WorkerPool runs submitted work on a fixed number of goroutines. It is
// shared by every job so concurrency toward platforms stays bounded no
// matter how many jobs or campaigns are active.
type WorkerPool struct {
	workers int
	queue   chan func()
	quit    chan struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	wg        sync.WaitGroup
}

// NewWorkerPool creates a pool with workers goroutines and a queue of queueSize.
func NewWorkerPool(workers, queueSize int) *WorkerPool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	return &WorkerPool{
		workers: workers,
		queue:   make(chan func(), queueSize),
		quit:    make(chan struct{}),
	}
}

// Start launches the workers. Calling it again is a no-op.
func (p *WorkerPool) Start() {
	p.startOnce.Do(func() {
		for i := 0; i < p.workers; i++ {
			p.wg.Add(1)
			go p.worker()
		}
	})
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.quit:
			return
		case fn := <-p.queue:
			fn()
		}
	}
}

// Submit queues fn, blocking while the queue is full.
func (p *WorkerPool) Submit(ctx context.Context, fn func()) error {
	select {
	case <-p.quit:
		return ErrPoolStopped
	default:
	}

	select {
	case p.queue <- fn:
		return nil
	case <-p.quit:
		return ErrPoolStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop stops accepting work and waits for running work to finish.
// Queued work that has not started is dropped.
func (p *WorkerPool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

// Size returns the number of workers.
func (p *WorkerPool) Size() int {
	return p.workers
}
