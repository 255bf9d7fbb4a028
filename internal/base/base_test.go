// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package base

import (
	"cmp"
	"context"
	"sync"
	"testing"
	"time"

	gocmp "github.com/google/go-cmp/cmp"
)

func TestQueueInfoKey(t *testing.T) {
	tests := []struct {
		hostname string
		pid      int
		qname    string
		want     string
	}{
		{"localhost", 9876, "errorlog", "pq:queues:{localhost:9876:errorlog}"},
		{"127.0.0.1", 1234, "exporter", "pq:queues:{127.0.0.1:1234:exporter}"},
	}

	for _, tc := range tests {
		got := QueueInfoKey(tc.hostname, tc.pid, tc.qname)
		if got != tc.want {
			t.Errorf("QueueInfoKey(%q, %d, %q) = %q, want %q", tc.hostname, tc.pid, tc.qname, got, tc.want)
		}
	}
}

func TestValidateQueueName(t *testing.T) {
	tests := []struct {
		qname   string
		wantErr bool
	}{
		{"default", false},
		{"", true},
		{"   ", true},
	}
	for _, tc := range tests {
		err := ValidateQueueName(tc.qname)
		if (err != nil) != tc.wantErr {
			t.Errorf("ValidateQueueName(%q) returned error %v, want error %t", tc.qname, err, tc.wantErr)
		}
	}
}

func TestSequence(t *testing.T) {
	s := NewSequence[int]()
	for _, n := range []int{5, 3, 9, 3} {
		if err := s.Insert(n); err != nil {
			t.Fatalf("Insert(%d) returned error: %v", n, err)
		}
	}
	if s.Len() != 4 {
		t.Fatalf("Len() = %d, want 4", s.Len())
	}
	if got := s.RemoveAt(1); got != 3 {
		t.Errorf("RemoveAt(1) = %d, want 3", got)
	}
	if diff := gocmp.Diff([]int{5, 9, 3}, s.items); diff != "" {
		t.Errorf("items after RemoveAt mismatch (-want +got):\n%s", diff)
	}

	s.Sort(cmp.Compare[int])
	if diff := gocmp.Diff([]int{3, 5, 9}, s.items); diff != "" {
		t.Errorf("items after Sort mismatch (-want +got):\n%s", diff)
	}
	if i, ok := s.BinarySearch(9, cmp.Compare[int]); !ok || i != 2 {
		t.Errorf("BinarySearch(9) = (%d, %t), want (2, true)", i, ok)
	}
	if i, ok := s.BinarySearch(4, cmp.Compare[int]); ok || i != 1 {
		t.Errorf("BinarySearch(4) = (%d, %t), want (1, false)", i, ok)
	}

	s.Clear()
	if s.Len() != 0 {
		t.Errorf("Len() after Clear = %d, want 0", s.Len())
	}
}

func TestSequenceInsertFirst(t *testing.T) {
	s := NewSequence[string]()
	for _, v := range []string{"b", "c"} {
		s.Insert(v)
	}
	if err := s.InsertFirst("a"); err != nil {
		t.Fatalf("InsertFirst returned error: %v", err)
	}
	if diff := gocmp.Diff([]string{"a", "b", "c"}, s.items); diff != "" {
		t.Errorf("items after InsertFirst mismatch (-want +got):\n%s", diff)
	}
}

func TestQueueInfoEncoding(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		info QueueInfo
	}{
		{
			info: QueueInfo{
				Host:                "127.0.0.1",
				PID:                 9876,
				Name:                "exporter",
				Mode:                "RealTime",
				Style:               "ManyAtOnce",
				Enabled:             true,
				Processing:          true,
				Interval:            100 * time.Millisecond,
				MaxWorkers:          1,
				RunTime:             3 * time.Minute,
				ActiveThreads:       1,
				QueueCount:          42,
				ItemsBeingProcessed: 7,
				TotalProcessed:      1024,
				TotalFailed:         3,
				Published:           now,
			},
		},
	}

	for _, tc := range tests {
		encoded, err := EncodeQueueInfo(&tc.info)
		if err != nil {
			t.Errorf("EncodeQueueInfo(info) returned error: %v", err)
			continue
		}
		decoded, err := DecodeQueueInfo(encoded)
		if err != nil {
			t.Errorf("DecodeQueueInfo(encoded) returned error: %v", err)
			continue
		}
		if diff := gocmp.Diff(&tc.info, decoded); diff != "" {
			t.Errorf("Decoded QueueInfo == %+v, want %+v;(-want,+got)\n%s",
				decoded, tc.info, diff)
		}
	}

	if _, err := EncodeQueueInfo(nil); err == nil {
		t.Error("EncodeQueueInfo(nil) returned nil error, want non-nil")
	}
}

// Test for cancelations being accessed by multiple goroutines.
// Run with -race flag to check for data race.
func TestCancelationsConcurrentAccess(t *testing.T) {
	c := NewCancelations()

	_, cancel1 := context.WithCancel(context.Background())
	_, cancel2 := context.WithCancel(context.Background())
	_, cancel3 := context.WithCancel(context.Background())
	var key1, key2, key3 = "key1", "key2", "key3"

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Add(key1, cancel1)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Add(key2, cancel2)
		time.Sleep(200 * time.Millisecond)
		c.Delete(key2)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Add(key3, cancel3)
	}()

	wg.Wait()

	_, ok := c.Get(key1)
	if !ok {
		t.Errorf("(*Cancelations).Get(%q) = _, false, want <function>, true", key1)
	}

	_, ok = c.Get(key2)
	if ok {
		t.Errorf("(*Cancelations).Get(%q) = _, true, want <nil>, false", key2)
	}
}

func TestCancelationsCancelAll(t *testing.T) {
	c := NewCancelations()
	ctx1, cancel1 := context.WithCancel(context.Background())
	ctx2, cancel2 := context.WithCancel(context.Background())
	c.Add("a", cancel1)
	c.Add("b", cancel2)

	c.CancelAll()

	if c.Len() != 0 {
		t.Errorf("Len() after CancelAll = %d, want 0", c.Len())
	}
	for i, ctx := range []context.Context{ctx1, ctx2} {
		if ctx.Err() == nil {
			t.Errorf("context %d was not canceled", i)
		}
	}
}
