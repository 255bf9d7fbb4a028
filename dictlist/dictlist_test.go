// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package dictlist

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddKeepsKeyOrder(t *testing.T) {
	l := New[string, int]()
	for i, k := range []string{"b", "a", "d", "c"} {
		require.NoError(t, l.Add(k, i))
	}

	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, l.Keys()); diff != "" {
		t.Errorf("Keys() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int{1, 0, 3, 2}, l.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	k, v := l.At(2)
	assert.Equal(t, "c", k)
	assert.Equal(t, 3, v)
}

func TestAddDuplicateLeavesListUnchanged(t *testing.T) {
	l := New[int, string]()
	require.NoError(t, l.Add(7, "seven"))
	require.NoError(t, l.Add(3, "three"))

	err := l.Add(7, "other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateKey), "Add error %v should wrap ErrDuplicateKey", err)
	assert.Equal(t, 2, l.Len())

	v, err := l.Get(7)
	require.NoError(t, err)
	assert.Equal(t, "seven", v)
}

func TestInsertSortedIgnoresPosition(t *testing.T) {
	l := New[int, string]()
	require.NoError(t, l.InsertSorted(0, 30, "c"))
	require.NoError(t, l.InsertSorted(0, 20, "b"))
	require.NoError(t, l.InsertSorted(99, 10, "a"))

	assert.Equal(t, []int{10, 20, 30}, l.Keys())
	assert.ErrorIs(t, l.InsertSorted(1, 20, "x"), ErrDuplicateKey)
}

func TestGetAndTryGet(t *testing.T) {
	l := New[string, int]()
	l.Set("x", 1)

	_, err := l.Get("missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	v, ok := l.TryGet("x")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = l.TryGet("y")
	assert.False(t, ok)
}

func TestSetUpserts(t *testing.T) {
	l := New[string, int]()
	l.Set("b", 2)
	l.Set("a", 1)
	l.Set("b", 20)

	assert.Equal(t, []string{"a", "b"}, l.Keys())
	assert.Equal(t, []int{1, 20}, l.Values())
}

func TestRemove(t *testing.T) {
	l := New[int, int]()
	for _, k := range []int{5, 1, 3} {
		require.NoError(t, l.Add(k, k*10))
	}

	assert.True(t, l.Remove(3))
	assert.False(t, l.Remove(3))
	assert.Equal(t, -1, l.IndexOfKey(3))
	assert.Equal(t, 1, l.IndexOfKey(5))

	k, v := l.RemoveAt(0)
	assert.Equal(t, 1, k)
	assert.Equal(t, 10, v)
	assert.Equal(t, 1, l.Len())
}

func TestIndexOfValue(t *testing.T) {
	type point struct {
		ID    string
		Value float64
	}
	l := New[int, point]()
	require.NoError(t, l.Add(2, point{"p2", 2.5}))
	require.NoError(t, l.Add(1, point{"p1", 1.5}))

	assert.Equal(t, 1, l.IndexOfValue(point{"p2", 2.5}))
	assert.Equal(t, -1, l.IndexOfValue(point{"p3", 0}))
	assert.True(t, l.ContainsValue(point{"p1", 1.5}))
	assert.False(t, l.ContainsValue(point{"p1", 9}))
	assert.Equal(t, 0, l.IndexOfValueFunc(func(p point) bool { return p.Value < 2 }))
}

func TestNewFuncCustomOrder(t *testing.T) {
	l := NewFunc[string, int](func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	require.NoError(t, l.Add("Beta", 2))
	require.NoError(t, l.Add("alpha", 1))

	assert.Equal(t, []string{"alpha", "Beta"}, l.Keys())
	assert.ErrorIs(t, l.Add("BETA", 3), ErrDuplicateKey)
	assert.True(t, l.ContainsKey("ALPHA"))
}

func TestAllAndClear(t *testing.T) {
	l := New[int, string]()
	l.Set(2, "b")
	l.Set(1, "a")
	l.Set(3, "c")

	var got []string
	for k, v := range l.All() {
		if k == 3 {
			break
		}
		got = append(got, v)
	}
	assert.Equal(t, []string{"a", "b"}, got)

	l.Clear()
	assert.Equal(t, 0, l.Len())
	assert.Empty(t, l.Keys())
}

func TestAtOutOfRangePanics(t *testing.T) {
	l := New[int, int]()
	assert.Panics(t, func() { l.At(0) })
	assert.Panics(t, func() { l.RemoveAt(-1) })
}
