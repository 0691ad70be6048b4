// Package concurrency provides the bounded worker pool used by the
// metrics engine for CPU-bound fan-out over nodes and shortest-path
// sources. Workers share no mutable state: each task receives its worker
// slot so callers can keep per-worker accumulators and merge them at the
// join barrier.
package concurrency

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
)

// Pool executes index-based tasks across a fixed number of workers.
type Pool struct {
	workers int
}

// OptimalWorkerCount sizes the pool from the available CPUs. Metric
// computation is CPU-bound, so workers match cores rather than the
// oversubscribed counts an I/O pool would use.
func OptimalWorkerCount() int {
	cpuCount := runtime.NumCPU()
	if cpuCount < 1 {
		return 1
	}
	if cpuCount > 32 {
		return 32
	}
	return cpuCount
}

// NewPool creates a pool with the given worker count; zero or negative
// selects the optimal count for the host.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = OptimalWorkerCount()
	}
	return &Pool{workers: workers}
}

// Workers returns the configured worker count.
func (p *Pool) Workers() int {
	return p.workers
}

// ForEach runs fn for every index in [0, n) across the pool's workers.
// fn is called with the worker slot (0..Workers()-1) and the item index.
// The first error stops scheduling of new items and is returned after all
// in-flight tasks finish. A cancelled context surfaces as ctx.Err().
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, worker, index int) error) error {
	if n <= 0 {
		return nil
	}

	workers := p.workers
	if workers > n {
		workers = n
	}

	var (
		next    int64 = -1
		failed  atomic.Bool
		firstMu sync.Mutex
		first   error
		wg      sync.WaitGroup
	)

	record := func(err error) {
		failed.Store(true)
		firstMu.Lock()
		if first == nil {
			first = err
		}
		firstMu.Unlock()
	}

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for {
				if failed.Load() {
					return
				}
				select {
				case <-ctx.Done():
					record(ctx.Err())
					return
				default:
				}

				index := int(atomic.AddInt64(&next, 1))
				if index >= n {
					return
				}
				if err := fn(ctx, worker, index); err != nil {
					record(err)
					return
				}
			}
		}(w)
	}

	wg.Wait()
	return first
}
