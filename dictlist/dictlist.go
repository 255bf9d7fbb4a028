// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package dictlist provides a sorted associative container that can also be
// addressed by position.
//
// A List keeps its entries in ascending key order. Position i always refers
// to the entry with the i-th smallest key, so inserting or removing an entry
// may shift the positions of others. A List is not safe for concurrent use.
package dictlist

import (
	"cmp"
	"fmt"
	"iter"
	"reflect"
	"slices"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
)

var (
	// ErrDuplicateKey indicates that an entry with the given key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrKeyNotFound indicates that no entry with the given key exists.
	ErrKeyNotFound = errors.New("key not found")
)

// List is a key-unique, key-sorted, positionally addressable container.
type List[K, V any] struct {
	compare func(a, b K) int
	keys    []K
	values  []V
}

// New returns an empty List ordered by the natural order of K.
func New[K cmp.Ordered, V any]() *List[K, V] {
	return NewFunc[K, V](cmp.Compare[K])
}

// NewFunc returns an empty List ordered by compare, which must return a
// negative number when a < b, a positive number when a > b and zero when
// the keys are equal.
func NewFunc[K, V any](compare func(a, b K) int) *List[K, V] {
	if compare == nil {
		panic("dictlist: nil compare func")
	}
	return &List[K, V]{compare: compare}
}

func (l *List[K, V]) search(key K) (int, bool) {
	return slices.BinarySearchFunc(l.keys, key, l.compare)
}

// Add inserts the entry at its key-order position.
// It returns an error wrapping ErrDuplicateKey if the key is already present,
// in which case the list is left unchanged.
func (l *List[K, V]) Add(key K, value V) error {
	i, found := l.search(key)
	if found {
		return errors.E(errors.Op("dictlist.Add"), errors.AlreadyExists, fmt.Errorf("%w: %v", ErrDuplicateKey, key))
	}
	l.keys = slices.Insert(l.keys, i, key)
	l.values = slices.Insert(l.values, i, value)
	return nil
}

// InsertSorted adds the entry like Add. The position argument is accepted for
// callers written against list-style insertion and is ignored: the entry
// always lands at its key-order position.
func (l *List[K, V]) InsertSorted(_ int, key K, value V) error {
	return l.Add(key, value)
}

// Set stores value under key, adding the entry if the key is absent.
func (l *List[K, V]) Set(key K, value V) {
	i, found := l.search(key)
	if found {
		l.values[i] = value
		return
	}
	l.keys = slices.Insert(l.keys, i, key)
	l.values = slices.Insert(l.values, i, value)
}

// Get returns the value stored under key.
// It returns an error wrapping ErrKeyNotFound if the key is absent.
func (l *List[K, V]) Get(key K) (V, error) {
	if i, found := l.search(key); found {
		return l.values[i], nil
	}
	var zero V
	return zero, errors.E(errors.Op("dictlist.Get"), errors.NotFound, fmt.Errorf("%w: %v", ErrKeyNotFound, key))
}

// TryGet returns the value stored under key and whether it was found.
func (l *List[K, V]) TryGet(key K) (V, bool) {
	if i, found := l.search(key); found {
		return l.values[i], true
	}
	var zero V
	return zero, false
}

// At returns the entry at position i. It panics if i is out of range.
func (l *List[K, V]) At(i int) (K, V) {
	return l.keys[i], l.values[i]
}

// RemoveAt deletes the entry at position i and returns it.
// It panics if i is out of range.
func (l *List[K, V]) RemoveAt(i int) (K, V) {
	k, v := l.keys[i], l.values[i]
	l.keys = slices.Delete(l.keys, i, i+1)
	l.values = slices.Delete(l.values, i, i+1)
	return k, v
}

// Remove deletes the entry stored under key and reports whether it existed.
func (l *List[K, V]) Remove(key K) bool {
	i, found := l.search(key)
	if !found {
		return false
	}
	l.RemoveAt(i)
	return true
}

// IndexOfKey returns the position of key, or -1 if absent.
func (l *List[K, V]) IndexOfKey(key K) int {
	if i, found := l.search(key); found {
		return i
	}
	return -1
}

// IndexOfValue returns the position of the first entry whose value is deeply
// equal to v, or -1 if there is none.
func (l *List[K, V]) IndexOfValue(v V) int {
	return l.IndexOfValueFunc(func(x V) bool { return reflect.DeepEqual(x, v) })
}

// IndexOfValueFunc returns the position of the first entry whose value
// satisfies f, or -1 if there is none.
func (l *List[K, V]) IndexOfValueFunc(f func(V) bool) int {
	return slices.IndexFunc(l.values, f)
}

// ContainsKey reports whether key is present.
func (l *List[K, V]) ContainsKey(key K) bool {
	_, found := l.search(key)
	return found
}

// ContainsValue reports whether any entry holds a value deeply equal to v.
func (l *List[K, V]) ContainsValue(v V) bool {
	return l.IndexOfValue(v) >= 0
}

// Len returns the number of entries.
func (l *List[K, V]) Len() int { return len(l.keys) }

// Keys returns a copy of the keys in ascending order.
func (l *List[K, V]) Keys() []K { return slices.Clone(l.keys) }

// Values returns a copy of the values ordered to match Keys.
func (l *List[K, V]) Values() []V { return slices.Clone(l.values) }

// Clear removes all entries.
func (l *List[K, V]) Clear() {
	clear(l.keys)
	clear(l.values)
	l.keys = l.keys[:0]
	l.values = l.values[:0]
}

// All returns an iterator over the entries in key order.
// The list must not be mutated during iteration.
func (l *List[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i := range l.keys {
			if !yield(l.keys[i], l.values[i]) {
				return
			}
		}
	}
}
