package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunLoopStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		runLoop(ctx, "test", time.Millisecond, func(context.Context) error {
			atomic.AddInt32(&calls, 1)
			return nil
		})
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runLoop did not stop after context cancellation")
	}

	if atomic.LoadInt32(&calls) == 0 {
		t.Fatalf("expected at least one poll attempt before cancellation")
	}
}

func TestRunLoopContinuesAfterFailures(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	done := make(chan struct{})
	go func() {
		runLoop(ctx, "test", time.Millisecond, func(context.Context) error {
			n := atomic.AddInt32(&calls, 1)
			if n < 3 {
				return errors.New("transient")
			}
			cancel()
			return nil
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("runLoop did not recover from failures")
	}

	if atomic.LoadInt32(&calls) < 3 {
		t.Fatalf("expected at least 3 poll attempts, got %d", calls)
	}
}
