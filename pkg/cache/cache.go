// Package cache provides the bounded LRU caches interposed in the object
// database read paths: decoded objects, intermediate delta bases, and open
// pack/index handles. Value caches are weighted by payload size; a single
// large blob would otherwise displace the budget of hundreds of commits
// while counting as one entry.
package cache

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// DefaultHandleCap bounds the open-handle caches (packs, indexes,
	// reverse indexes).
	DefaultHandleCap = 5

	// DefaultByteBudget bounds each value cache by payload bytes.
	DefaultByteBudget = 16 << 20

	// defaultMaxEntries is the hard entry bound backing a weighted cache;
	// the byte budget is the real limit.
	defaultMaxEntries = 4096
)

// Weighted is a byte-budgeted LRU. Entries are evicted in LRU order until
// the total weight fits the budget. Safe for concurrent use.
type Weighted[K comparable, V any] struct {
	mu      sync.Mutex
	entries *lru.Cache[K, V]
	weigh   func(V) int64
	budget  int64
	used    int64
}

// NewWeighted creates a weighted cache. The weigh function reports an
// entry's cost in bytes; budget is the total allowance.
func NewWeighted[K comparable, V any](budget int64, weigh func(V) int64) (*Weighted[K, V], error) {
	if budget <= 0 {
		return nil, fmt.Errorf("cache budget must be positive, got %d", budget)
	}
	if weigh == nil {
		return nil, fmt.Errorf("cache weigh function is required")
	}

	w := &Weighted[K, V]{weigh: weigh, budget: budget}
	entries, err := lru.NewWithEvict(defaultMaxEntries, func(_ K, v V) {
		w.used -= weigh(v)
	})
	if err != nil {
		return nil, err
	}
	w.entries = entries
	return w, nil
}

// Add inserts or replaces an entry, evicting old entries while the budget is
// exceeded. Entries heavier than the whole budget are not cached.
func (w *Weighted[K, V]) Add(key K, value V) {
	weight := w.weigh(value)
	if weight > w.budget {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if old, ok := w.entries.Peek(key); ok {
		w.used -= w.weigh(old)
	}
	w.entries.Add(key, value)
	w.used += weight

	for w.used > w.budget && w.entries.Len() > 0 {
		w.entries.RemoveOldest()
	}
}

// Get looks up an entry, marking it recently used.
func (w *Weighted[K, V]) Get(key K) (V, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Get(key)
}

// Remove drops an entry if present.
func (w *Weighted[K, V]) Remove(key K) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries.Remove(key)
}

// Purge drops every entry.
func (w *Weighted[K, V]) Purge() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries.Purge()
	w.used = 0
}

// Len reports the number of cached entries.
func (w *Weighted[K, V]) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entries.Len()
}

// UsedBytes reports the current total weight.
func (w *Weighted[K, V]) UsedBytes() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.used
}

// NewHandles returns an entry-capped LRU for open handles (packs, indexes,
// reverse indexes). The onEvict hook releases the handle; golang-lru's
// internal locking makes the cache safe for concurrent use.
func NewHandles[K comparable, V any](capacity int, onEvict func(K, V)) (*lru.Cache[K, V], error) {
	if capacity <= 0 {
		capacity = DefaultHandleCap
	}
	if onEvict == nil {
		return lru.New[K, V](capacity)
	}
	return lru.NewWithEvict(capacity, onEvict)
}
