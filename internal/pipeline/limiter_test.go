package pipeline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAsyncLimiterClampsToMinimumOne(t *testing.T) {
	l := NewAsyncLimiter(0)
	require.NoError(t, l.Acquire(context.Background()))
	done := make(chan struct{})
	go func() {
		_ = l.Acquire(context.Background())
		close(done)
	}()
	select {
	case <-done:
		t.Fatal("second acquire should block with limit=1")
	case <-time.After(20 * time.Millisecond):
	}
	l.Release()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked after release")
	}
}

func TestAsyncLimiterBoundsConcurrency(t *testing.T) {
	l := NewAsyncLimiter(2)
	var inFlight, maxSeen int32

	run := func() {
		_ = l.Acquire(context.Background())
		defer l.Release()
		n := atomic.AddInt32(&inFlight, 1)
		for {
			m := atomic.LoadInt32(&maxSeen)
			if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	done := make(chan struct{})
	for range 5 {
		go func() { run(); done <- struct{}{} }()
	}
	for range 5 {
		<-done
	}
	assert.LessOrEqual(t, int(atomic.LoadInt32(&maxSeen)), 2)
}

func TestAsyncLimiterAcquireRespectsContextCancellation(t *testing.T) {
	l := NewAsyncLimiter(1)
	require.NoError(t, l.Acquire(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
