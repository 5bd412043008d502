package main

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// PoolStats summarizes the work done by a pool.
type PoolStats struct {
	Workers   int
	Submitted int
	Completed int
	TotalTime time.Duration
}

// workerPool runs test files on a fixed number of goroutines. Results are
// delivered on Results in completion order.
type workerPool struct {
	runner     *Runner
	numWorkers int

	jobs    chan string
	results chan []Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started int32 // atomic
	stopped int32 // atomic
	active  int32 // atomic

	stats      PoolStats
	statsMutex sync.Mutex
}

// newWorkerPool creates a pool of n workers; n <= 0 uses one per CPU.
func newWorkerPool(r *Runner, n int) *workerPool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	return &workerPool{
		runner:     r,
		numWorkers: n,
		stats:      PoolStats{Workers: n},
	}
}

// Start launches the workers.
func (wp *workerPool) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&wp.started, 0, 1) {
		return fmt.Errorf("worker pool already started")
	}
	wp.ctx, wp.cancel = context.WithCancel(ctx)
	wp.jobs = make(chan string, wp.numWorkers*2)
	wp.results = make(chan []Result, wp.numWorkers*2)
	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.work(i)
	}
	go func() {
		wp.wg.Wait()
		close(wp.results)
	}()
	return nil
}

// Submit queues a test file. It blocks while the queue is full.
func (wp *workerPool) Submit(path string) error {
	if atomic.LoadInt32(&wp.started) == 0 {
		return fmt.Errorf("worker pool not started")
	}
	if atomic.LoadInt32(&wp.stopped) == 1 {
		return fmt.Errorf("worker pool stopped")
	}
	select {
	case wp.jobs <- path:
		atomic.AddInt32(&wp.active, 1)
		wp.statsMutex.Lock()
		wp.stats.Submitted++
		wp.statsMutex.Unlock()
		return nil
	case <-wp.ctx.Done():
		return wp.ctx.Err()
	}
}

// Results returns the channel of per-file results. It is closed once
// Close was called and every worker has finished.
func (wp *workerPool) Results() <-chan []Result { return wp.results }

// Close stops accepting jobs; queued jobs still run.
func (wp *workerPool) Close() {
	if atomic.CompareAndSwapInt32(&wp.stopped, 0, 1) {
		close(wp.jobs)
	}
}

// Cancel abandons queued jobs.
func (wp *workerPool) Cancel() {
	wp.Close()
	wp.cancel()
}

// Stats returns a snapshot of the pool statistics.
func (wp *workerPool) Stats() PoolStats {
	wp.statsMutex.Lock()
	defer wp.statsMutex.Unlock()
	return wp.stats
}

func (wp *workerPool) work(id int) {
	defer wp.wg.Done()
	for {
		select {
		case path, ok := <-wp.jobs:
			if !ok {
				return
			}
			start := time.Now()
			results := wp.runner.RunFile(wp.ctx, path)
			elapsed := time.Since(start)
			debugPrintf("[worker %d] %s in %v\n", id, path, elapsed)

			wp.statsMutex.Lock()
			wp.stats.Completed++
			wp.stats.TotalTime += elapsed
			wp.statsMutex.Unlock()
			atomic.AddInt32(&wp.active, -1)

			select {
			case wp.results <- results:
			case <-wp.ctx.Done():
				return
			}
		case <-wp.ctx.Done():
			return
		}
	}
}
