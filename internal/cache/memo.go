package cache

import (
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Memo runs a lookup at most once per key. Concurrent callers for the same
// key share a single in-flight call. Errors are not memoized.
type Memo[K comparable, V any] struct {
	store Store[K, V]
	group singleflight.Group
}

func NewMemo[K comparable, V any](store Store[K, V]) *Memo[K, V] {
	return &Memo[K, V]{store: store}
}

// Do returns the memoized value for key, calling fn to produce it on a miss.
func (m *Memo[K, V]) Do(key K, fn func() (V, error)) (V, error) {
	if v, ok := m.store.Get(key); ok {
		return v, nil
	}
	res, err, _ := m.group.Do(fmt.Sprint(key), func() (any, error) {
		if v, ok := m.store.Get(key); ok {
			return v, nil
		}
		v, err := fn()
		if err != nil {
			return nil, err
		}
		m.store.Set(key, v)
		return v, nil
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return res.(V), nil
}
