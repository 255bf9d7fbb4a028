// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedAddRejectsDuplicateKey(t *testing.T) {
	kq, err := NewKeyedSynchronous(KeyedConfig[string, int]{
		Settings: testSettings(Synchronous),
		Handler:  KeyedHandlerFunc[string, int](func(context.Context, string, int) error { return nil }),
	})
	require.NoError(t, err)

	require.NoError(t, kq.Add("b", 2))
	require.NoError(t, kq.Add("a", 1))

	err = kq.Add("b", 20)
	assert.True(t, errors.Is(err, ErrDuplicateKey), "Add returned %v, want error wrapping ErrDuplicateKey", err)
	assert.Equal(t, 2, kq.Count())
	v, err := kq.Value("b")
	require.NoError(t, err)
	assert.Equal(t, 2, v)
}

func TestKeyedDispatchesInKeyOrder(t *testing.T) {
	for _, mode := range []ThreadingMode{Synchronous, RealTime} {
		t.Run(mode.String(), func(t *testing.T) {
			var got recorder[string]
			kq, err := NewKeyed(KeyedConfig[string, string]{
				Settings: testSettings(mode),
				Handler: KeyedHandlerFunc[string, string](func(ctx context.Context, key, value string) error {
					got.add(key)
					return nil
				}),
			})
			require.NoError(t, err)
			for _, k := range []string{"b", "a", "c"} {
				require.NoError(t, kq.Add(k, strings.ToUpper(k)))
			}
			startQueue(t, kq.Queue)

			require.Eventually(t, func() bool { return got.len() == 3 }, 2*time.Second, 5*time.Millisecond)
			if diff := gocmp.Diff([]string{"a", "b", "c"}, got.get()); diff != "" {
				t.Errorf("dispatch order mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestKeyedBatchHandler(t *testing.T) {
	type batch struct {
		Keys   []int
		Values []string
	}
	var got recorder[batch]
	kq, err := NewKeyedSynchronous(KeyedConfig[int, string]{
		Settings:   testSettings(Synchronous),
		CanProcess: func(k int, v string) bool { return v != "hold" },
		BatchHandler: KeyedBatchHandlerFunc[int, string](func(ctx context.Context, keys []int, values []string) error {
			got.add(batch{keys, values})
			return nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, kq.Add(30, "c"))
	require.NoError(t, kq.Add(10, "a"))
	require.NoError(t, kq.Add(20, "hold"))
	startQueue(t, kq.Queue)

	require.Eventually(t, func() bool { return got.len() == 1 }, time.Second, 5*time.Millisecond)
	want := []batch{{Keys: []int{10, 30}, Values: []string{"a", "c"}}}
	if diff := gocmp.Diff(want, got.get()); diff != "" {
		t.Errorf("batches mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []int{20}, kq.Keys())
	assert.Equal(t, ManyAtOnce, kq.Style())
}

func TestKeyedAssociativeOperations(t *testing.T) {
	type reading struct {
		Tag   string
		Value float64
	}
	kq, err := NewKeyed(KeyedConfig[int, reading]{
		Settings: testSettings(Asynchronous),
		Handler:  KeyedHandlerFunc[int, reading](func(context.Context, int, reading) error { return nil }),
	})
	require.NoError(t, err)

	require.NoError(t, kq.Set(3, reading{"c", 3}))
	require.NoError(t, kq.Set(1, reading{"a", 1}))
	require.NoError(t, kq.Set(3, reading{"c", 33}))
	require.NoError(t, kq.Add(2, reading{"b", 2}))

	assert.Equal(t, []int{1, 2, 3}, kq.Keys())
	assert.Equal(t, []reading{{"a", 1}, {"b", 2}, {"c", 33}}, kq.Values())

	v, ok := kq.TryGetValue(3)
	assert.True(t, ok)
	assert.Equal(t, reading{"c", 33}, v)
	_, ok = kq.TryGetValue(4)
	assert.False(t, ok)
	_, err = kq.Value(4)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	assert.True(t, kq.ContainsKey(2))
	assert.False(t, kq.ContainsKey(5))
	assert.True(t, kq.ContainsValue(reading{"b", 2}))
	assert.False(t, kq.ContainsValue(reading{"c", 3}))
	assert.Equal(t, 2, kq.IndexOfValue(reading{"c", 33}))
	assert.Equal(t, -1, kq.IndexOfValue(reading{"z", 0}))

	assert.Equal(t, 1, kq.IndexOfKey(2))
	assert.Equal(t, 1, kq.BinarySearch(Pair[int, reading]{Key: 2}))
	assert.Equal(t, 2, kq.IndexOf(Pair[int, reading]{Key: 3, Value: reading{"ignored", 0}}))
	assert.Equal(t, -1, kq.LastIndexOf(Pair[int, reading]{Key: 9}))

	kq.Sort()
	assert.Equal(t, []int{1, 2, 3}, kq.Keys())

	assert.True(t, kq.Remove(2))
	assert.False(t, kq.Remove(2))
	p, err := kq.At(1)
	require.NoError(t, err)
	assert.Equal(t, Pair[int, reading]{3, reading{"c", 33}}, p)

	assert.Equal(t, 1, kq.Trim(1))
	assert.Equal(t, []int{3}, kq.Keys())
}

func TestKeyedRequeueKeepsNewerValue(t *testing.T) {
	var (
		processed recorder[string]
		failures  recorder[failure[Pair[string, string]]]
		inFlight  = make(chan struct{})
		release   = make(chan struct{})
	)
	settings := testSettings(Synchronous)
	settings.RequeueOnException = true
	kq, err := NewKeyed(KeyedConfig[string, string]{
		Settings:     settings,
		ErrorHandler: errorRecorder(&failures),
		Handler: KeyedHandlerFunc[string, string](func(ctx context.Context, key, value string) error {
			if value == "old" {
				close(inFlight)
				<-release
				return errors.New("write failed")
			}
			processed.add(value)
			return nil
		}),
	})
	require.NoError(t, err)
	require.NoError(t, kq.Add("point", "old"))
	startQueue(t, kq.Queue)

	<-inFlight
	require.NoError(t, kq.Add("point", "new"), "key is free while its entry is in flight")
	close(release)

	require.Eventually(t, func() bool { return processed.len() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"new"}, processed.get())

	var stale []Pair[string, string]
	for _, f := range failures.get() {
		if errors.Is(f.err, ErrDuplicateKey) {
			stale = append(stale, f.items...)
		}
	}
	assert.Equal(t, []Pair[string, string]{{"point", "old"}}, stale)
	assert.Equal(t, 0, kq.Count())
}

func TestKeyedRequeueOnTimeoutReusesKey(t *testing.T) {
	var (
		calls recorder[int]
		fast  = make(chan struct{})
	)
	settings := testSettings(Synchronous)
	settings.Timeout = 30 * time.Millisecond
	settings.RequeueOnTimeout = true
	kq, err := NewKeyed(KeyedConfig[int, string]{
		Settings: settings,
		Handler: KeyedHandlerFunc[int, string](func(ctx context.Context, key int, value string) error {
			calls.add(key)
			select {
			case <-fast:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}),
	})
	require.NoError(t, err)
	require.NoError(t, kq.Add(1, "x"))
	startQueue(t, kq.Queue)

	require.Eventually(t, func() bool { return calls.len() >= 2 }, 2*time.Second, 5*time.Millisecond)
	close(fast)
	require.Eventually(t, func() bool { return kq.TotalProcessedItems() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.False(t, kq.ContainsKey(1))
}

func TestKeyedOnProcessedReceivesPairs(t *testing.T) {
	var done recorder[Pair[string, int]]
	kq, err := NewKeyed(KeyedConfig[string, int]{
		Settings:    testSettings(Synchronous),
		OnProcessed: func(items []Pair[string, int]) { done.add(items...) },
		Handler:     KeyedHandlerFunc[string, int](func(context.Context, string, int) error { return nil }),
	})
	require.NoError(t, err)
	require.NoError(t, kq.Add("b", 2))
	require.NoError(t, kq.Add("a", 1))
	startQueue(t, kq.Queue)

	require.Eventually(t, func() bool { return done.len() == 2 }, 2*time.Second, 5*time.Millisecond)
	want := []Pair[string, int]{{"a", 1}, {"b", 2}}
	if diff := gocmp.Diff(want, done.get()); diff != "" {
		t.Errorf("processed pairs mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyedConfigurationError(t *testing.T) {
	_, err := NewKeyed(KeyedConfig[string, int]{})
	assert.ErrorIs(t, err, ErrConfiguration)

	_, err = NewKeyed(KeyedConfig[string, int]{
		Handler:      KeyedHandlerFunc[string, int](func(context.Context, string, int) error { return nil }),
		BatchHandler: KeyedBatchHandlerFunc[string, int](func(context.Context, []string, []int) error { return nil }),
	})
	assert.ErrorIs(t, err, ErrConfiguration)
}
