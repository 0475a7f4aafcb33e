package jobs

import (
	"context"
	"sync"
)

// fifoLimiter bounds concurrent running jobs while preserving admission
// order: waiters are granted slots strictly in Acquire order. A plain
// buffered-channel semaphore would not guarantee FIFO under contention.
type fifoLimiter struct {
	mu      sync.Mutex
	free    int
	waiters []chan struct{}
}

func newFIFOLimiter(slots int) *fifoLimiter {
	if slots < 1 {
		slots = 1
	}
	return &fifoLimiter{free: slots}
}

// Acquire blocks until a slot is granted or ctx is done.
func (l *fifoLimiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	if l.free > 0 && len(l.waiters) == 0 {
		l.free--
		l.mu.Unlock()
		return nil
	}
	grant := make(chan struct{})
	l.waiters = append(l.waiters, grant)
	l.mu.Unlock()

	select {
	case <-grant:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		for i, w := range l.waiters {
			if w == grant {
				l.waiters = append(l.waiters[:i], l.waiters[i+1:]...)
				l.mu.Unlock()
				return ctx.Err()
			}
		}
		l.mu.Unlock()
		// The grant raced the cancellation; hand the slot back.
		l.Release()
		return ctx.Err()
	}
}

// Release returns a slot, handing it directly to the oldest waiter if any.
func (l *fifoLimiter) Release() {
	l.mu.Lock()
	if len(l.waiters) > 0 {
		grant := l.waiters[0]
		l.waiters = l.waiters[1:]
		l.mu.Unlock()
		close(grant)
		return
	}
	l.free++
	l.mu.Unlock()
}
