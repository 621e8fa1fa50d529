// Package lock implements the Distributed Lock primitive described in
// spec.md §4.1: a named mutex with a lease TTL and background renewal,
// built on top of internal/statestore so the same code serializes
// per-repository work whether the backend is in-memory or Redis.
package lock

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/copilot-bridge/agent/internal/metrics"
	"github.com/copilot-bridge/agent/internal/statestore"
)

const (
	initialBackoff = 10 * time.Millisecond
	maxBackoff     = 1 * time.Second
	renewalFactor  = 0.5
)

// Manager hands out distributed locks backed by a statestore.Store.
type Manager struct {
	store statestore.Store
}

// New constructs a lock Manager over the given state store.
func New(store statestore.Store) *Manager {
	return &Manager{store: store}
}

// Handle represents a held lock. Release must be called exactly once,
// typically via defer, on every exit path (success, failure, panic
// recovery, cancellation).
type Handle struct {
	mgr    *Manager
	key    string
	token  string
	ttl    time.Duration
	cancel context.CancelFunc
	done   chan struct{}
}

// Acquire spin-waits (exponential backoff, capped at 1s, grounded on the
// teacher's internal/github/retry.go shape) until the named key is free,
// then starts a background renewal loop that extends the lease at half its
// TTL for as long as the lock is held. ctx cancellation aborts the wait.
func (m *Manager) Acquire(ctx context.Context, key string, ttl time.Duration) (*Handle, error) {
	token := uuid.NewString()
	delay := initialBackoff
	waitStart := time.Now()

	for {
		ok, err := m.store.TryAcquireLock(ctx, key, token, ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %q: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %q: %w", key, ctx.Err())
		case <-time.After(delay):
		}
		if delay < maxBackoff {
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}
	}
	metrics.LockWaitSeconds.WithLabelValues(key).Observe(time.Since(waitStart).Seconds())

	renewCtx, cancel := context.WithCancel(context.Background())
	h := &Handle{mgr: m, key: key, token: token, ttl: ttl, cancel: cancel, done: make(chan struct{})}
	go h.renewLoop(renewCtx)
	return h, nil
}

func (h *Handle) renewLoop(ctx context.Context) {
	defer close(h.done)

	interval := time.Duration(float64(h.ttl) * renewalFactor)
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := h.mgr.store.ExtendLock(context.Background(), h.key, h.token, h.ttl)
			if err != nil {
				log.Printf("[Lock] renewal failed for %q: %v", h.key, err)
				return
			}
			if !ok {
				log.Printf("[Lock] lost ownership of %q during renewal", h.key)
				return
			}
		}
	}
}

// Release stops the renewal loop and attempts a compare-and-delete release.
// A failed release (lock already expired, backend unreachable) is logged
// but never returned as an error: the caller's critical section already
// completed by the time Release runs, and spec.md §4.1 treats a best-effort
// release failure as non-fatal.
func (h *Handle) Release(ctx context.Context) {
	h.cancel()
	<-h.done
	if err := h.mgr.store.ReleaseLock(ctx, h.key, h.token); err != nil {
		log.Printf("[Lock] release failed for %q: %v", h.key, err)
	}
}
