// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"cmp"
	"context"
	"reflect"

	"github.com/GridProtectionAlliance/gsf-sub065/dictlist"
)

// Pair is a key and value held by a KeyedQueue.
type Pair[K, V any] struct {
	Key   K
	Value V
}

// A KeyedHandler processes the entries of a KeyedQueue one at a time.
type KeyedHandler[K, V any] interface {
	ProcessItem(ctx context.Context, key K, value V) error
}

// The KeyedHandlerFunc type is an adapter to allow the use of
// ordinary functions as a KeyedHandler.
type KeyedHandlerFunc[K, V any] func(ctx context.Context, key K, value V) error

// ProcessItem calls fn(ctx, key, value)
func (fn KeyedHandlerFunc[K, V]) ProcessItem(ctx context.Context, key K, value V) error {
	return fn(ctx, key, value)
}

// A KeyedBatchHandler processes every eligible entry of a KeyedQueue in a
// single call. keys and values are aligned and in ascending key order.
type KeyedBatchHandler[K, V any] interface {
	ProcessItems(ctx context.Context, keys []K, values []V) error
}

// The KeyedBatchHandlerFunc type is an adapter to allow the use of
// ordinary functions as a KeyedBatchHandler.
type KeyedBatchHandlerFunc[K, V any] func(ctx context.Context, keys []K, values []V) error

// ProcessItems calls fn(ctx, keys, values)
func (fn KeyedBatchHandlerFunc[K, V]) ProcessItems(ctx context.Context, keys []K, values []V) error {
	return fn(ctx, keys, values)
}

// KeyedConfig specifies the processing behavior of a KeyedQueue.
//
// Exactly one of Handler and BatchHandler must be set.
type KeyedConfig[K, V any] struct {
	Settings

	Handler      KeyedHandler[K, V]
	BatchHandler KeyedBatchHandler[K, V]

	// CanProcess, if set, is consulted for every entry during dispatch.
	// It is called with the queue locked and must not call back into the queue.
	CanProcess func(key K, value V) bool

	ErrorHandler ErrorHandler[Pair[K, V]]

	// OnProcessed and OnTimedOut behave as in Config.
	OnProcessed func(entries []Pair[K, V])
	OnTimedOut  func(entries []Pair[K, V])
}

// KeyedQueue is a Queue of unique keys whose entries are dispatched in
// ascending key order.
//
// Requeued entries return under their original key. If the key was added
// again while the entry was in flight, the newer entry is kept and the
// requeued one is reported to the ErrorHandler with ErrDuplicateKey.
type KeyedQueue[K, V any] struct {
	*Queue[Pair[K, V]]

	list *dictlist.List[K, *envelope[Pair[K, V]]]
}

// keyedContainer stores envelopes in a dictlist ordered by key.
type keyedContainer[K, V any] struct {
	list *dictlist.List[K, *envelope[Pair[K, V]]]
}

func (c *keyedContainer[K, V]) Len() int { return c.list.Len() }

func (c *keyedContainer[K, V]) At(i int) *envelope[Pair[K, V]] {
	_, e := c.list.At(i)
	return e
}

func (c *keyedContainer[K, V]) RemoveAt(i int) *envelope[Pair[K, V]] {
	_, e := c.list.RemoveAt(i)
	return e
}

func (c *keyedContainer[K, V]) Insert(e *envelope[Pair[K, V]]) error {
	return c.list.Add(e.item.Key, e)
}

// InsertFirst is Insert: entries are always in key order.
func (c *keyedContainer[K, V]) InsertFirst(e *envelope[Pair[K, V]]) error {
	return c.Insert(e)
}

func (c *keyedContainer[K, V]) Clear() { c.list.Clear() }

// Sort is a no-op: entries are always in key order.
func (c *keyedContainer[K, V]) Sort(func(a, b *envelope[Pair[K, V]]) int) {}

func (c *keyedContainer[K, V]) BinarySearch(target *envelope[Pair[K, V]], _ func(a, b *envelope[Pair[K, V]]) int) (int, bool) {
	i := c.list.IndexOfKey(target.item.Key)
	return i, i >= 0
}

// NewKeyed returns a new KeyedQueue ordered by the natural order of K.
func NewKeyed[K cmp.Ordered, V any](cfg KeyedConfig[K, V]) (*KeyedQueue[K, V], error) {
	return NewKeyedFunc(cmp.Compare[K], cfg)
}

// NewKeyedAsynchronous returns a new KeyedQueue in Asynchronous mode.
func NewKeyedAsynchronous[K cmp.Ordered, V any](cfg KeyedConfig[K, V]) (*KeyedQueue[K, V], error) {
	cfg.Mode = Asynchronous
	return NewKeyed(cfg)
}

// NewKeyedSynchronous returns a new KeyedQueue in Synchronous mode.
func NewKeyedSynchronous[K cmp.Ordered, V any](cfg KeyedConfig[K, V]) (*KeyedQueue[K, V], error) {
	cfg.Mode = Synchronous
	return NewKeyed(cfg)
}

// NewKeyedRealTime returns a new KeyedQueue in RealTime mode.
func NewKeyedRealTime[K cmp.Ordered, V any](cfg KeyedConfig[K, V]) (*KeyedQueue[K, V], error) {
	cfg.Mode = RealTime
	return NewKeyed(cfg)
}

// NewKeyedFunc returns a new KeyedQueue ordered by compare.
func NewKeyedFunc[K, V any](compare func(a, b K) int, cfg KeyedConfig[K, V]) (*KeyedQueue[K, V], error) {
	qcfg := Config[Pair[K, V]]{
		Settings:     cfg.Settings,
		ErrorHandler: cfg.ErrorHandler,
		OnProcessed:  cfg.OnProcessed,
		OnTimedOut:   cfg.OnTimedOut,
	}
	if h := cfg.Handler; h != nil {
		qcfg.Handler = HandlerFunc[Pair[K, V]](func(ctx context.Context, p Pair[K, V]) error {
			return h.ProcessItem(ctx, p.Key, p.Value)
		})
	}
	if h := cfg.BatchHandler; h != nil {
		qcfg.BatchHandler = BatchHandlerFunc[Pair[K, V]](func(ctx context.Context, items []Pair[K, V]) error {
			keys := make([]K, len(items))
			values := make([]V, len(items))
			for i, p := range items {
				keys[i], values[i] = p.Key, p.Value
			}
			return h.ProcessItems(ctx, keys, values)
		})
	}
	if f := cfg.CanProcess; f != nil {
		qcfg.CanProcess = func(p Pair[K, V]) bool { return f(p.Key, p.Value) }
	}

	list := dictlist.NewFunc[K, *envelope[Pair[K, V]]](compare)
	q, err := newQueue(qcfg, &keyedContainer[K, V]{list: list})
	if err != nil {
		return nil, err
	}
	return &KeyedQueue[K, V]{Queue: q, list: list}, nil
}

// Add queues value under key. It returns an error wrapping ErrDuplicateKey
// if the key is already queued, leaving the queue unchanged.
func (kq *KeyedQueue[K, V]) Add(key K, value V) error {
	return kq.insert(&envelope[Pair[K, V]]{item: Pair[K, V]{Key: key, Value: value}})
}

// Set queues value under key, replacing any value already queued under it.
func (kq *KeyedQueue[K, V]) Set(key K, value V) error {
	kq.mu.Lock()
	if kq.state == queueStateClosed {
		kq.mu.Unlock()
		return ErrQueueClosed
	}
	kq.list.Set(key, &envelope[Pair[K, V]]{item: Pair[K, V]{Key: key, Value: value}})
	kq.mu.Unlock()
	kq.notify()
	return nil
}

// Value returns the value queued under key.
// It returns an error wrapping ErrKeyNotFound if the key is not queued.
func (kq *KeyedQueue[K, V]) Value(key K) (V, error) {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	e, err := kq.list.Get(key)
	if err != nil {
		var zero V
		return zero, err
	}
	return e.item.Value, nil
}

// TryGetValue returns the value queued under key and whether it was found.
func (kq *KeyedQueue[K, V]) TryGetValue(key K) (V, bool) {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	e, ok := kq.list.TryGet(key)
	if !ok {
		var zero V
		return zero, false
	}
	return e.item.Value, true
}

// ContainsKey reports whether key is queued.
func (kq *KeyedQueue[K, V]) ContainsKey(key K) bool {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return kq.list.ContainsKey(key)
}

// ContainsValue reports whether a value deeply equal to v is queued.
func (kq *KeyedQueue[K, V]) ContainsValue(v V) bool {
	return kq.IndexOfValue(v) >= 0
}

// IndexOfKey returns the position of key in the queue, or -1.
func (kq *KeyedQueue[K, V]) IndexOfKey(key K) int {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return kq.list.IndexOfKey(key)
}

// IndexOfValue returns the position of the first entry whose value is deeply
// equal to v, or -1.
func (kq *KeyedQueue[K, V]) IndexOfValue(v V) int {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return kq.list.IndexOfValueFunc(func(e *envelope[Pair[K, V]]) bool {
		return reflect.DeepEqual(e.item.Value, v)
	})
}

// Remove removes the entry queued under key and reports whether it existed.
// Entries in flight are not affected.
func (kq *KeyedQueue[K, V]) Remove(key K) bool {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return kq.list.Remove(key)
}

// Keys returns the queued keys in ascending order.
func (kq *KeyedQueue[K, V]) Keys() []K {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	return kq.list.Keys()
}

// Values returns the queued values ordered to match Keys.
func (kq *KeyedQueue[K, V]) Values() []V {
	kq.mu.Lock()
	defer kq.mu.Unlock()
	values := make([]V, 0, kq.list.Len())
	for _, e := range kq.list.All() {
		values = append(values, e.item.Value)
	}
	return values
}

// BinarySearch returns the position of p.Key, or -1. The value is ignored.
func (kq *KeyedQueue[K, V]) BinarySearch(p Pair[K, V]) int {
	return kq.IndexOfKey(p.Key)
}

// IndexOf returns the position of p.Key, or -1. The value is ignored.
func (kq *KeyedQueue[K, V]) IndexOf(p Pair[K, V]) int {
	return kq.IndexOfKey(p.Key)
}

// LastIndexOf returns the position of p.Key, or -1. Keys are unique, so this
// is the same as IndexOf.
func (kq *KeyedQueue[K, V]) LastIndexOf(p Pair[K, V]) int {
	return kq.IndexOfKey(p.Key)
}

// Sort does nothing. Entries are always kept in key order.
func (kq *KeyedQueue[K, V]) Sort() {}
