// Package parallel provides the work-splitting primitives of the pipeline:
// rank-based chunk assignment, the inter-stage barrier, and an in-process
// parallel loop used by frame kernels.
package parallel

import (
	"runtime"
	"sync"
)

// Config controls in-process parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Number of goroutines to use.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 64, // Typical cache line aware chunk.
	}
}

// For executes f(i) for i in [0, n) with optional parallelism.
// Falls back to sequential execution if parallelism is disabled or n is too small.
//
// Work is split into contiguous runs with AssignRange, so goroutine g always
// sees indices in ascending order.
func For(n int, f func(i int), cfg Config) {
	if !cfg.Enabled || cfg.NumWorkers <= 1 || n < cfg.MinChunkSize {
		for i := 0; i < n; i++ {
			f(i)
		}
		return
	}

	workers := min(cfg.NumWorkers, max(n/max(cfg.MinChunkSize, 1), 1))
	var wg sync.WaitGroup
	for r := 0; r < workers; r++ {
		start, stop := AssignRange(n, workers, r)
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				f(i)
			}
		}(start, stop)
	}
	wg.Wait()
}
