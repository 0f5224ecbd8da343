package parallel

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrBarrierBroken is returned to waiters when another party aborted.
var ErrBarrierBroken = errors.New("barrier broken")

// Barrier is a reusable collective rendezvous for a fixed number of parties.
//
// Every party must call Wait; none returns until all have arrived. After
// release the barrier resets for the next round. Break releases all current
// and future waiters with an error, so a failed party cannot leave the
// others blocked.
type Barrier struct {
	mu         sync.Mutex
	parties    int
	arrived    int
	generation int
	release    chan struct{}
	broken     error
}

// NewBarrier creates a barrier for n parties.
func NewBarrier(n int) *Barrier {
	if n <= 0 {
		panic(fmt.Sprintf("barrier: parties must be positive, got %d", n))
	}
	return &Barrier{
		parties: n,
		release: make(chan struct{}),
	}
}

// Parties returns the number of parties the barrier waits for.
func (b *Barrier) Parties() int {
	return b.parties
}

// Wait blocks until all parties have called Wait, the barrier is broken, or
// ctx is done. It returns the round number that was completed.
func (b *Barrier) Wait(ctx context.Context) (int, error) {
	b.mu.Lock()
	if b.broken != nil {
		err := b.broken
		b.mu.Unlock()
		return b.generation, err
	}

	gen := b.generation
	release := b.release
	b.arrived++
	if b.arrived == b.parties {
		b.arrived = 0
		b.generation++
		b.release = make(chan struct{})
		close(release)
		b.mu.Unlock()
		return gen, nil
	}
	b.mu.Unlock()

	select {
	case <-release:
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.broken != nil && b.generation == gen {
			return gen, b.broken
		}
		return gen, nil
	case <-ctx.Done():
		b.Break(ctx.Err())
		return gen, fmt.Errorf("%w: %w", ErrBarrierBroken, ctx.Err())
	}
}

// Break releases every waiter with ErrBarrierBroken wrapping cause.
// Subsequent calls to Wait fail immediately. Only the first cause is kept.
func (b *Barrier) Break(cause error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.broken != nil {
		return
	}
	if cause == nil {
		cause = errors.New("aborted")
	}
	b.broken = fmt.Errorf("%w: %w", ErrBarrierBroken, cause)
	close(b.release)
}
