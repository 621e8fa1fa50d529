package statestore

import (
	"container/list"
	"context"
	"log"
	"sync"
	"time"
)

const (
	defaultMaxDedup  = 10_000
	defaultMaxLocks  = 1_024
	defaultMaxResult = 10_000
)

type memoryEntry struct {
	key     string
	value   string
	expires time.Time
	element *list.Element
}

// boundedMap is an insertion-ordered map with a size cap, grounded on the
// original's OrderedDict-backed MemoryDedup/MemoryLock. isLocked, when
// non-nil, is consulted during eviction so held locks are never evicted.
type boundedMap struct {
	mu          sync.Mutex
	entries     map[string]*memoryEntry
	order       *list.List
	maxSize     int
	isLocked    func(key string) bool
	evictOldest bool // true: evict the oldest half; false: evict only unlocked
}

func newBoundedMap(maxSize int) *boundedMap {
	return &boundedMap{
		entries:     make(map[string]*memoryEntry),
		order:       list.New(),
		maxSize:     maxSize,
		evictOldest: true,
	}
}

func (m *boundedMap) get(key string) (*memoryEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && time.Now().After(e.expires) {
		m.removeLocked(e)
		return nil, false
	}
	return e, true
}

func (m *boundedMap) set(key, value string, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expires time.Time
	if ttl > 0 {
		expires = time.Now().Add(ttl)
	}

	if e, ok := m.entries[key]; ok {
		e.value = value
		e.expires = expires
		m.order.MoveToBack(e.element)
		return
	}

	e := &memoryEntry{key: key, value: value, expires: expires}
	e.element = m.order.PushBack(e)
	m.entries[key] = e

	m.evictLocked()
}

func (m *boundedMap) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok {
		m.removeLocked(e)
	}
}

func (m *boundedMap) removeLocked(e *memoryEntry) {
	delete(m.entries, e.key)
	m.order.Remove(e.element)
}

// evictLocked trims the map down to maxSize. Dedup/result stores evict the
// oldest half in one pass (cheap, amortized); the lock store instead walks
// from the front and skips any key the isLocked callback reports as held,
// evicting only unlocked entries — matching the original's MemoryLock
// eviction, which never drops an entry whose asyncio.Lock is currently
// acquired.
func (m *boundedMap) evictLocked() {
	if m.order.Len() <= m.maxSize {
		return
	}

	evicted := 0
	if m.evictOldest {
		target := m.maxSize / 2
		for m.order.Len() > target {
			front := m.order.Front()
			e := front.Value.(*memoryEntry)
			m.removeLocked(e)
			evicted++
		}
	} else {
		for el := m.order.Front(); el != nil && m.order.Len() > m.maxSize; {
			next := el.Next()
			e := el.Value.(*memoryEntry)
			if m.isLocked == nil || !m.isLocked(e.key) {
				m.removeLocked(e)
				evicted++
			}
			el = next
		}
	}

	if evicted > 0 {
		log.Printf("[StateStore:memory] evicted %d entries (max_size=%d, current_size=%d)", evicted, m.maxSize, m.order.Len())
	}
}

func (m *boundedMap) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.order.Len()
}

// Memory is the in-process StateStore backend: bounded, single-instance,
// lost on restart. Suitable for a single service instance; multi-instance
// deployments must use the redis backend (see redis.go) so locking and
// dedup are visible across processes.
type Memory struct {
	dedup  *boundedMap
	result *boundedMap
	locks  *boundedMap
}

// NewMemory constructs a Memory store. maxSize bounds the dedup and result
// maps (oldest-half eviction); the lock map uses a fixed internal cap and
// never evicts a currently-held lock.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = defaultMaxDedup
	}
	locks := newBoundedMap(defaultMaxLocks)
	locks.evictOldest = false
	locks.isLocked = func(key string) bool {
		e, ok := locks.entries[key]
		return ok && e.expires.After(time.Now())
	}
	return &Memory{
		dedup:  newBoundedMap(maxSize),
		result: newBoundedMap(defaultMaxResult),
		locks:  locks,
	}
}

func (m *Memory) IsSeen(_ context.Context, key string) (bool, error) {
	_, ok := m.dedup.get(dedupPrefix + key)
	return ok, nil
}

func (m *Memory) MarkSeen(_ context.Context, key string, ttl time.Duration) error {
	m.dedup.set(dedupPrefix+key, "1", ttl)
	return nil
}

func (m *Memory) GetResult(_ context.Context, key string) (string, bool, error) {
	e, ok := m.result.get(resultPrefix + key)
	if !ok {
		return "", false, nil
	}
	return e.value, true, nil
}

func (m *Memory) SetResult(_ context.Context, key, value string, ttl time.Duration) error {
	m.result.set(resultPrefix+key, value, ttl)
	return nil
}

func (m *Memory) TryAcquireLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	lockKey := lockPrefix + key
	m.locks.mu.Lock()
	defer m.locks.mu.Unlock()

	if e, ok := m.locks.entries[lockKey]; ok {
		if e.expires.After(time.Now()) {
			return false, nil
		}
		// expired holder: steal it.
		e.value = token
		e.expires = time.Now().Add(ttl)
		m.locks.order.MoveToBack(e.element)
		return true, nil
	}

	e := &memoryEntry{key: lockKey, value: token, expires: time.Now().Add(ttl)}
	e.element = m.locks.order.PushBack(e)
	m.locks.entries[lockKey] = e
	m.locks.evictLocked()
	return true, nil
}

func (m *Memory) ExtendLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	lockKey := lockPrefix + key
	m.locks.mu.Lock()
	defer m.locks.mu.Unlock()

	e, ok := m.locks.entries[lockKey]
	if !ok || e.value != token {
		return false, nil
	}
	e.expires = time.Now().Add(ttl)
	return true, nil
}

func (m *Memory) ReleaseLock(_ context.Context, key, token string) error {
	lockKey := lockPrefix + key
	m.locks.mu.Lock()
	defer m.locks.mu.Unlock()

	e, ok := m.locks.entries[lockKey]
	if !ok || e.value != token {
		return nil
	}
	m.locks.removeLocked(e)
	return nil
}
