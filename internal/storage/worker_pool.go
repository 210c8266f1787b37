package storage

import (
	"errors"
	"runtime"
	"sync"
)

// ErrPoolClosed is returned by Submit after Close
var ErrPoolClosed = errors.New("worker pool closed")

// ErrQueueFull is returned by TrySubmit when no slot is free
var ErrQueueFull = errors.New("worker pool queue full")

// WorkerPool runs background jobs on a fixed number of goroutines
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	wg       sync.WaitGroup
	once     sync.Once

	mu     sync.RWMutex
	closed bool
}

// NewWorkerPool creates a pool with a queue twice the worker count
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start launches the workers. Calling it again has no effect.
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		job()
		wp.wg.Done()
	}
}

// TrySubmit queues job without blocking
func (wp *WorkerPool) TrySubmit(job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	wp.wg.Add(1)
	select {
	case wp.jobQueue <- job:
		return nil
	default:
		wp.wg.Done()
		return ErrQueueFull
	}
}

// Wait blocks until every queued job has finished
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

// Close stops accepting jobs and waits for the queue to drain
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.mu.Unlock()

	wp.Start()
	wp.wg.Wait()
}
