// Package statestore provides the key-value abstraction shared by the
// deduplication store, the task result cache, and the distributed lock
// primitives. Two backends are provided: an in-memory bounded map and a
// Redis-backed implementation.
package statestore

import (
	"context"
	"time"
)

// Store is the single abstraction backing dedup, result caching, and lock
// primitives. Implementations namespace keys internally by prefix
// ("lock:", "dedup:", "result:") so callers never need to think about
// collisions across the three domains.
type Store interface {
	// IsSeen reports whether key has been marked seen. Backends that
	// cannot reach their storage degrade to returning (false, err) —
	// callers treat a transport error the same as "not seen" to tolerate
	// rare duplicates rather than blocking progress.
	IsSeen(ctx context.Context, key string) (bool, error)

	// MarkSeen records key as seen for ttl. Best-effort: a failure here
	// is logged by the caller and does not block the critical section
	// that already completed.
	MarkSeen(ctx context.Context, key string, ttl time.Duration) error

	// GetResult returns the cached value for key, if any.
	GetResult(ctx context.Context, key string) (value string, ok bool, err error)

	// SetResult caches value under key for ttl.
	SetResult(ctx context.Context, key, value string, ttl time.Duration) error

	// TryAcquireLock attempts a SET-NX-style acquisition of key with the
	// given owner token and ttl. Returns false (no error) when some other
	// holder already owns the key.
	TryAcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ExtendLock renews the ttl on key iff it is still owned by token.
	// Returns false when the caller no longer holds the lock (lost to
	// expiry or stolen), which the renewal loop treats as terminal.
	ExtendLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)

	// ReleaseLock performs a compare-and-delete: key is removed only if
	// its current value still equals token.
	ReleaseLock(ctx context.Context, key, token string) error
}

const (
	lockPrefix   = "lock:"
	dedupPrefix  = "dedup:"
	resultPrefix = "result:"
)
