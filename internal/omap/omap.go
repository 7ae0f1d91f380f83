// Package omap provides the ordered key-value map abstraction the index
// manager is built on: an insertion-independent, totally-ordered map with
// lower_bound/upper_bound style range scans.
//
// This is the concrete realization of the "pluggable ordered-map
// implementation" the store package abstracts over; it is kept in
// internal/ so callers of the public store API never see btree types.
package omap

import (
	"github.com/google/btree"
)

// Key is anything with a total order against values of the same
// implementation. Implementations in this module wrap a single concrete
// key type, so Less only needs to handle that type.
type Key interface {
	Less(other Key) bool
}

type entry[V any] struct {
	key   Key
	value V
}

func (e entry[V]) Less(other btree.Item) bool {
	return e.key.Less(other.(entry[V]).key)
}

// Map is an ordered map from Key to V, backed by a B-tree.
type Map[V any] struct {
	tree *btree.BTree
}

// New creates an empty ordered map backed by a B-tree of degree 32.
func New[V any]() *Map[V] {
	return &Map[V]{tree: btree.New(32)}
}

// Len returns the number of entries.
func (m *Map[V]) Len() int {
	return m.tree.Len()
}

// Get returns the value stored at key, if any.
func (m *Map[V]) Get(key Key) (V, bool) {
	var zero V
	item := m.tree.Get(entry[V]{key: key})
	if item == nil {
		return zero, false
	}
	return item.(entry[V]).value, true
}

// Set inserts or overwrites the value at key.
func (m *Map[V]) Set(key Key, value V) {
	m.tree.ReplaceOrInsert(entry[V]{key: key, value: value})
}

// Delete removes the entry at key, if present.
func (m *Map[V]) Delete(key Key) {
	m.tree.Delete(entry[V]{key: key})
}

// Keys returns all keys in ascending order.
func (m *Map[V]) Keys() []Key {
	keys := make([]Key, 0, m.tree.Len())
	m.tree.Ascend(func(item btree.Item) bool {
		keys = append(keys, item.(entry[V]).key)
		return true
	})
	return keys
}

// Ascend calls fn for every entry in ascending key order, stopping early
// if fn returns false.
func (m *Map[V]) Ascend(fn func(key Key, value V) bool) {
	m.tree.Ascend(func(item btree.Item) bool {
		e := item.(entry[V])
		return fn(e.key, e.value)
	})
}

// AscendRange calls fn for every entry with key in [from, to), stopping
// early if fn returns false. Either bound may be nil to mean unbounded.
func (m *Map[V]) AscendRange(from, to Key, fn func(key Key, value V) bool) {
	visit := func(item btree.Item) bool {
		e := item.(entry[V])
		return fn(e.key, e.value)
	}
	switch {
	case from == nil && to == nil:
		m.tree.Ascend(visit)
	case from == nil && to != nil:
		m.tree.AscendLessThan(entry[V]{key: to}, visit)
	case from != nil && to == nil:
		m.tree.AscendGreaterOrEqual(entry[V]{key: from}, visit)
	default:
		m.tree.AscendRange(entry[V]{key: from}, entry[V]{key: to}, visit)
	}
}

// LowerBoundIndex returns the count of keys strictly less than key — i.e.
// the index of the first key >= value in ascending iteration order.
func (m *Map[V]) LowerBoundIndex(key Key) int {
	n := 0
	m.tree.AscendLessThan(entry[V]{key: key}, func(btree.Item) bool {
		n++
		return true
	})
	return n
}

// UpperBoundIndex returns the count of keys less than or equal to key —
// i.e. the index of the first key > value in ascending iteration order.
func (m *Map[V]) UpperBoundIndex(key Key) int {
	n := 0
	m.tree.AscendLessThan(entry[V]{key: key}, func(btree.Item) bool {
		n++
		return true
	})
	if _, ok := m.Get(key); ok {
		n++
	}
	return n
}
