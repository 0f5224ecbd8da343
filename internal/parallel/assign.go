package parallel

import (
	"errors"
	"fmt"
)

// ErrDistributionInvariant signals overlapping or incomplete worker
// assignments. It indicates a bug and is never recoverable.
var ErrDistributionInvariant = errors.New("distribution invariant violated")

// DistributionError describes the chunk that broke the partition.
type DistributionError struct {
	Total   int
	Workers int
	Chunk   int
	Owners  int // Number of ranks claiming Chunk.
}

// Error implements the error interface.
func (e *DistributionError) Error() string {
	return fmt.Sprintf("%v: chunk %d of %d owned by %d of %d workers",
		ErrDistributionInvariant, e.Chunk, e.Total, e.Owners, e.Workers)
}

// Is makes every DistributionError match ErrDistributionInvariant.
func (e *DistributionError) Is(target error) bool {
	return target == ErrDistributionInvariant
}

// AssignRange returns the half-open range [start, stop) of chunk indices
// owned by rank.
//
// Chunks are split into contiguous, rank-ordered runs. With base = total /
// workers, the first total % workers ranks own base+1 chunks and the rest own
// base. The result depends only on the three inputs.
func AssignRange(total, workers, rank int) (start, stop int) {
	if workers <= 0 {
		panic(fmt.Sprintf("assign: workers must be positive, got %d", workers))
	}
	if rank < 0 || rank >= workers {
		panic(fmt.Sprintf("assign: rank %d out of range [0, %d)", rank, workers))
	}
	if total <= 0 {
		return 0, 0
	}

	base := total / workers
	extra := total % workers

	start = rank*base + min(rank, extra)
	stop = start + base
	if rank < extra {
		stop++
	}
	return start, stop
}

// Assign returns the chunk indices owned by rank, in processing order.
func Assign(total, workers, rank int) []int {
	start, stop := AssignRange(total, workers, rank)
	out := make([]int, 0, stop-start)
	for i := start; i < stop; i++ {
		out = append(out, i)
	}
	return out
}

// VerifyPartition recomputes every rank's assignment and checks that
// together they cover [0, total) exactly once.
func VerifyPartition(total, workers int) error {
	owners := make([]int, max(total, 0))
	for r := 0; r < workers; r++ {
		start, stop := AssignRange(total, workers, r)
		for i := start; i < stop; i++ {
			if i < 0 || i >= total {
				return &DistributionError{Total: total, Workers: workers, Chunk: i, Owners: 1}
			}
			owners[i]++
		}
	}
	for i, n := range owners {
		if n != 1 {
			return &DistributionError{Total: total, Workers: workers, Chunk: i, Owners: n}
		}
	}
	return nil
}
