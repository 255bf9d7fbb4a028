// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package metrics

import (
	"errors"
	"strings"
	"testing"

	processqueue "github.com/GridProtectionAlliance/gsf-sub065"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fixedSource processqueue.Statistics

func (s fixedSource) Statistics() processqueue.Statistics { return processqueue.Statistics(s) }

func TestQueueMetricsCollector(t *testing.T) {
	c := NewQueueMetricsCollector(
		fixedSource{Name: "archive", Enabled: true, QueueCount: 12, ActiveThreads: 3, ItemsBeingProcessed: 3, TotalProcessedItems: 1000, TotalFailedItems: 4},
		fixedSource{Name: "latest", QueueCount: 0, TotalTimedOutItems: 7},
	)

	want := `
# HELP processqueue_enabled Whether the queue is started: 1 if started, 0 otherwise.
# TYPE processqueue_enabled gauge
processqueue_enabled{queue="archive"} 1
processqueue_enabled{queue="latest"} 0
# HELP processqueue_failed_total Number of items whose processing returned an error or panicked.
# TYPE processqueue_failed_total counter
processqueue_failed_total{queue="archive"} 4
processqueue_failed_total{queue="latest"} 0
# HELP processqueue_processed_total Number of items processed successfully.
# TYPE processqueue_processed_total counter
processqueue_processed_total{queue="archive"} 1000
processqueue_processed_total{queue="latest"} 0
# HELP processqueue_size Number of items waiting in the queue.
# TYPE processqueue_size gauge
processqueue_size{queue="archive"} 12
processqueue_size{queue="latest"} 0
# HELP processqueue_timed_out_total Number of items whose processing exceeded the queue timeout.
# TYPE processqueue_timed_out_total counter
processqueue_timed_out_total{queue="archive"} 0
processqueue_timed_out_total{queue="latest"} 7
`
	if err := testutil.CollectAndCompare(c, strings.NewReader(want),
		"processqueue_enabled", "processqueue_failed_total", "processqueue_processed_total",
		"processqueue_size", "processqueue_timed_out_total"); err != nil {
		t.Fatal(err)
	}
	if got := testutil.CollectAndCount(c); got != 14 {
		t.Errorf("CollectAndCount = %d, want 14", got)
	}
}

func TestSnapshotCollectorError(t *testing.T) {
	c := NewSnapshotCollector(func() ([]processqueue.Statistics, error) {
		return nil, errors.New("redis unavailable")
	})
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Gather(); err == nil {
		t.Error("Gather succeeded, want error from failing snapshot")
	}
}

func TestSnapshotCollectorEmpty(t *testing.T) {
	c := NewSnapshotCollector(func() ([]processqueue.Statistics, error) { return nil, nil })
	if err := testutil.CollectAndCompare(c, strings.NewReader("")); err != nil {
		t.Fatal(err)
	}
}
