// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"fmt"
	"strings"
	"time"
)

// Statistics is a snapshot of the configuration and counters of a queue.
type Statistics struct {
	Name       string
	Enabled    bool
	Processing bool
	Interval   time.Duration
	Timeout    time.Duration
	Mode       ThreadingMode
	Style      ProcessingStyle
	MaxWorkers int
	RunTime    time.Duration

	ActiveThreads       int
	QueueCount          int
	ItemsBeingProcessed int
	TotalProcessedItems uint64
	TotalFailedItems    uint64
	TotalTimedOutItems  uint64
}

// StatisticsSource is implemented by queues that report statistics.
// Both *Queue and *KeyedQueue implement it.
type StatisticsSource interface {
	Statistics() Statistics
}

// Statistics returns a snapshot of the queue's configuration and counters.
func (q *Queue[T]) Statistics() Statistics {
	q.mu.Lock()
	defer q.mu.Unlock()
	return Statistics{
		Name:                q.name,
		Enabled:             q.state == queueStateActive,
		Processing:          q.activeThreads > 0,
		Interval:            q.interval,
		Timeout:             q.timeout,
		Mode:                q.mode,
		Style:               q.style,
		MaxWorkers:          q.maxWorkers,
		RunTime:             q.runTimeLocked(),
		ActiveThreads:       q.activeThreads,
		QueueCount:          q.c.Len(),
		ItemsBeingProcessed: q.inFlight,
		TotalProcessedItems: q.processed,
		TotalFailedItems:    q.failed,
		TotalTimedOutItems:  q.timedOut,
	}
}

// Status returns the statistics of the queue as a human readable block of text.
func (q *Queue[T]) Status() string {
	return q.Statistics().String()
}

// String renders the statistics as a human readable block of text, one
// right-aligned label per line.
func (s Statistics) String() string {
	var b strings.Builder
	line := func(label string, format string, args ...interface{}) {
		fmt.Fprintf(&b, "%26s: %s\n", label, fmt.Sprintf(format, args...))
	}

	line("Queue processing is", "%s", choose(s.Enabled, "Enabled", "Disabled"))
	line("Current processing state", "%s", choose(s.Processing, "Executing", "Idle"))
	if s.Mode == RealTime {
		line("Processing interval", "Real-time")
	} else {
		line("Processing interval", "%d milliseconds", s.Interval.Milliseconds())
	}
	if s.Timeout <= 0 {
		line("Processing timeout", "Infinite")
	} else {
		line("Processing timeout", "%d milliseconds", s.Timeout.Milliseconds())
	}
	if s.Mode == Asynchronous {
		line("Queue threading mode", "Asynchronous - %d maximum threads", s.MaxWorkers)
	} else {
		line("Queue threading mode", "%s", s.Mode)
	}
	line("Queue processing style", "%s", choose(s.Style == OneAtATime, "One at a time", "Many at once"))
	line("Total process run time", "%s", s.RunTime.Round(time.Millisecond))
	line("Total active threads", "%d", s.ActiveThreads)
	line("Queued items to process", "%d", s.QueueCount)
	line("Items being processed", "%d", s.ItemsBeingProcessed)
	line("Total items processed", "%d", s.TotalProcessedItems)
	line("Total items failed", "%d", s.TotalFailedItems)
	line("Total items timed out", "%d", s.TotalTimedOutItems)
	return b.String()
}

func choose(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}
