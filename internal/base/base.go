// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package base defines foundational types and constants used in processqueue package.
package base

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// Version of processqueue library.
const Version = "1.0.0"

// DefaultQueueName is the queue name used if none is specified by user.
const DefaultQueueName = "default"

// Global Redis keys.
const (
	AllQueues = "pq:queues" // SET
)

// ValidateQueueName validates a given qname to be used as a queue name.
// Returns nil if valid, otherwise returns non-nil error.
func ValidateQueueName(qname string) error {
	if len(strings.TrimSpace(qname)) == 0 {
		return fmt.Errorf("queue name must contain one or more characters")
	}
	return nil
}

// QueueInfoKey returns a redis key for the published statistics of a queue.
func QueueInfoKey(hostname string, pid int, qname string) string {
	return fmt.Sprintf("pq:queues:{%s:%d:%s}", hostname, pid, qname)
}

// Container is the storage contract a queue engine drains.
//
// Implementations are not safe for concurrent use; the engine serializes
// every call under its own lock.
type Container[E any] interface {
	Len() int
	At(i int) E
	RemoveAt(i int) E

	// Insert places e at its natural position: the tail for a plain sequence,
	// the key-order position for a keyed container.
	Insert(e E) error

	// InsertFirst places e ahead of every other element. A keyed container
	// has no notion of head and inserts at the key-order position.
	InsertFirst(e E) error

	Clear()
	Sort(cmp func(a, b E) int)
	BinarySearch(target E, cmp func(a, b E) int) (int, bool)
}

// Sequence is a Container that keeps elements in insertion order.
type Sequence[E any] struct {
	items []E
}

// NewSequence returns an empty Sequence.
func NewSequence[E any]() *Sequence[E] {
	return &Sequence[E]{}
}

func (s *Sequence[E]) Len() int { return len(s.items) }

func (s *Sequence[E]) At(i int) E { return s.items[i] }

func (s *Sequence[E]) RemoveAt(i int) E {
	e := s.items[i]
	var zero E
	copy(s.items[i:], s.items[i+1:])
	s.items[len(s.items)-1] = zero
	s.items = s.items[:len(s.items)-1]
	return e
}

func (s *Sequence[E]) Insert(e E) error {
	s.items = append(s.items, e)
	return nil
}

func (s *Sequence[E]) InsertFirst(e E) error {
	s.items = slices.Insert(s.items, 0, e)
	return nil
}

func (s *Sequence[E]) Clear() {
	clear(s.items)
	s.items = s.items[:0]
}

func (s *Sequence[E]) Sort(cmp func(a, b E) int) {
	slices.SortStableFunc(s.items, cmp)
}

func (s *Sequence[E]) BinarySearch(target E, cmp func(a, b E) int) (int, bool) {
	return slices.BinarySearchFunc(s.items, target, cmp)
}

// QueueInfo holds the statistics of a running queue as published to redis.
type QueueInfo struct {
	Host                string        `json:"host"`
	PID                 int           `json:"pid"`
	Name                string        `json:"name"`
	Mode                string        `json:"mode"`
	Style               string        `json:"style"`
	Enabled             bool          `json:"enabled"`
	Processing          bool          `json:"processing"`
	Interval            time.Duration `json:"interval"`
	Timeout             time.Duration `json:"timeout"`
	MaxWorkers          int           `json:"max_workers"`
	RunTime             time.Duration `json:"run_time"`
	ActiveThreads       int           `json:"active_threads"`
	QueueCount          int           `json:"queue_count"`
	ItemsBeingProcessed int           `json:"items_being_processed"`
	TotalProcessed      uint64        `json:"total_processed"`
	TotalFailed         uint64        `json:"total_failed"`
	TotalTimedOut       uint64        `json:"total_timed_out"`
	Published           time.Time     `json:"published"`
}

// EncodeQueueInfo marshals the given QueueInfo and returns the encoded bytes.
func EncodeQueueInfo(info *QueueInfo) ([]byte, error) {
	if info == nil {
		return nil, fmt.Errorf("cannot encode nil queue info")
	}
	return json.Marshal(info)
}

// DecodeQueueInfo decodes the given bytes into QueueInfo.
func DecodeQueueInfo(b []byte) (*QueueInfo, error) {
	var info QueueInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// Cancelations is a collection that holds cancel functions for all in-flight dispatches.
//
// Cancelations are safe for concurrent use by multiple goroutines.
type Cancelations struct {
	mu          sync.Mutex
	cancelFuncs map[string]context.CancelFunc
}

// NewCancelations returns a Cancelations instance.
func NewCancelations() *Cancelations {
	return &Cancelations{
		cancelFuncs: make(map[string]context.CancelFunc),
	}
}

// Add adds a new cancel func to the collection.
func (c *Cancelations) Add(id string, fn context.CancelFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelFuncs[id] = fn
}

// Delete deletes a cancel func from the collection given an id.
func (c *Cancelations) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cancelFuncs, id)
}

// Get returns a cancel func given an id.
func (c *Cancelations) Get(id string) (fn context.CancelFunc, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn, ok = c.cancelFuncs[id]
	return fn, ok
}

// Len returns the number of registered cancel funcs.
func (c *Cancelations) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cancelFuncs)
}

// CancelAll calls every registered cancel func and empties the collection.
func (c *Cancelations) CancelAll() {
	c.mu.Lock()
	fns := make([]context.CancelFunc, 0, len(c.cancelFuncs))
	for id, fn := range c.cancelFuncs {
		fns = append(fns, fn)
		delete(c.cancelFuncs, id)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}
