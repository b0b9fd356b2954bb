package pipeline

import "context"

// AsyncLimiter is a counting semaphore with FIFO waiter ordering, used to
// bound the number of concurrent recognition calls in flight (spec §5:
// "the orchestrator owns an AsyncLimiter ... that wraps every recognition
// call. Queued waiters are served in FIFO order."). A buffered channel
// gives FIFO fairness for free: goroutines blocked on a channel send are
// woken in the order they started blocking.
type AsyncLimiter struct {
	slots chan struct{}
}

// NewAsyncLimiter builds a limiter with the given capacity, clamped to a
// minimum of 1 (spec §5: "limit = max(1, max_concurrent_recognitions)").
func NewAsyncLimiter(limit int) *AsyncLimiter {
	if limit < 1 {
		limit = 1
	}
	return &AsyncLimiter{slots: make(chan struct{}, limit)}
}

// Acquire blocks until a slot is free or ctx is cancelled.
func (l *AsyncLimiter) Acquire(ctx context.Context) error {
	select {
	case l.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release returns a slot to the limiter.
func (l *AsyncLimiter) Release() {
	<-l.slots
}
