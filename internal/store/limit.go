package store

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter throttles store I/O to a byte rate. A nil Limiter is unlimited.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter creates a limiter for bytesPerSec. Zero or negative means
// unlimited and returns nil.
func NewLimiter(bytesPerSec int64) *Limiter {
	if bytesPerSec <= 0 {
		return nil
	}
	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(bytesPerSec), int(bytesPerSec)),
	}
}

// Wait blocks until n bytes of I/O may proceed or ctx is done.
// Requests larger than the burst are admitted in burst-sized pieces.
func (l *Limiter) Wait(ctx context.Context, n int) error {
	if l == nil || n <= 0 {
		return nil
	}
	burst := l.limiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := l.limiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
