// Package cache memoizes entity lookups for the lifetime of the process.
package cache

import (
	"sync"
	"time"

	"github.com/ammario/tlru"
)

// Store holds memoized values.
type Store[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, v V)
}

// Unbounded never evicts. Fine for the handful of workspaces, clients and
// projects a single account sees.
type Unbounded[K comparable, V any] struct {
	mu sync.RWMutex
	m  map[K]V
}

func NewUnbounded[K comparable, V any]() *Unbounded[K, V] {
	return &Unbounded[K, V]{m: make(map[K]V)}
}

func (u *Unbounded[K, V]) Get(key K) (V, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	v, ok := u.m[key]
	return v, ok
}

func (u *Unbounded[K, V]) Set(key K, v V) {
	u.mu.Lock()
	u.m[key] = v
	u.mu.Unlock()
}

// Len reports the number of memoized keys.
func (u *Unbounded[K, V]) Len() int {
	u.mu.RLock()
	defer u.mu.RUnlock()
	return len(u.m)
}

const noExpiry = 100 * 365 * 24 * time.Hour

// Bounded keeps at most size entries, evicting the least recently used, and
// drops entries older than ttl.
type Bounded[K comparable, V any] struct {
	c   *tlru.Cache[K, V]
	ttl time.Duration
}

// NewBounded returns an LRU store. A ttl <= 0 disables expiry.
func NewBounded[K comparable, V any](size int, ttl time.Duration) *Bounded[K, V] {
	if ttl <= 0 {
		ttl = noExpiry
	}
	return &Bounded[K, V]{
		c:   tlru.New[K](tlru.ConstantCost[V], size),
		ttl: ttl,
	}
}

func (b *Bounded[K, V]) Get(key K) (V, bool) {
	v, _, ok := b.c.Get(key)
	return v, ok
}

func (b *Bounded[K, V]) Set(key K, v V) {
	b.c.Set(key, v, b.ttl)
}

// New picks Unbounded when size is zero and Bounded otherwise.
func New[K comparable, V any](size int, ttl time.Duration) Store[K, V] {
	if size <= 0 {
		return NewUnbounded[K, V]()
	}
	return NewBounded[K, V](size, ttl)
}
