// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

// Package metrics provides implementations of prometheus.Collector to
// collect process queue metrics.
package metrics

import (
	processqueue "github.com/GridProtectionAlliance/gsf-sub065"
	"github.com/prometheus/client_golang/prometheus"
)

// Namespace used in fully-qualified metrics names.
const namespace = "processqueue"

// Descriptors used by QueueMetricsCollector
var (
	queueSizeDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "size"),
		"Number of items waiting in the queue.",
		[]string{"queue"}, nil,
	)

	activeWorkersDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "active_workers"),
		"Number of dispatches currently running.",
		[]string{"queue"}, nil,
	)

	itemsInFlightDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "items_in_flight"),
		"Number of items carried by running dispatches.",
		[]string{"queue"}, nil,
	)

	enabledDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "enabled"),
		"Whether the queue is started: 1 if started, 0 otherwise.",
		[]string{"queue"}, nil,
	)

	processedTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "processed_total"),
		"Number of items processed successfully.",
		[]string{"queue"}, nil,
	)

	failedTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "failed_total"),
		"Number of items whose processing returned an error or panicked.",
		[]string{"queue"}, nil,
	)

	timedOutTotalDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", "timed_out_total"),
		"Number of items whose processing exceeded the queue timeout.",
		[]string{"queue"}, nil,
	)
)

// SnapshotFunc returns the statistics to export on a scrape.
type SnapshotFunc func() ([]processqueue.Statistics, error)

// QueueMetricsCollector gathers queue metrics.
// It implements prometheus.Collector interface.
type QueueMetricsCollector struct {
	snapshot SnapshotFunc
}

var _ prometheus.Collector = (*QueueMetricsCollector)(nil)

// NewQueueMetricsCollector returns a collector that exports metrics of the
// given queues, labeled by queue name.
func NewQueueMetricsCollector(sources ...processqueue.StatisticsSource) *QueueMetricsCollector {
	return NewSnapshotCollector(func() ([]processqueue.Statistics, error) {
		stats := make([]processqueue.Statistics, len(sources))
		for i, src := range sources {
			stats[i] = src.Statistics()
		}
		return stats, nil
	})
}

// NewSnapshotCollector returns a collector that exports whatever fn returns
// at scrape time. Statistics.Name is used as the queue label and must be
// unique within a snapshot.
func NewSnapshotCollector(fn SnapshotFunc) *QueueMetricsCollector {
	return &QueueMetricsCollector{snapshot: fn}
}

// Describe sends metrics descriptions of this collector to the channel.
func (qmc *QueueMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- queueSizeDesc
	ch <- activeWorkersDesc
	ch <- itemsInFlightDesc
	ch <- enabledDesc
	ch <- processedTotalDesc
	ch <- failedTotalDesc
	ch <- timedOutTotalDesc
}

// Collect collects data and sends it to the channel.
func (qmc *QueueMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	stats, err := qmc.snapshot()
	if err != nil {
		ch <- prometheus.NewInvalidMetric(prometheus.NewInvalidDesc(err), err)
		return
	}
	for _, s := range stats {
		ch <- prometheus.MustNewConstMetric(queueSizeDesc, prometheus.GaugeValue, float64(s.QueueCount), s.Name)
		ch <- prometheus.MustNewConstMetric(activeWorkersDesc, prometheus.GaugeValue, float64(s.ActiveThreads), s.Name)
		ch <- prometheus.MustNewConstMetric(itemsInFlightDesc, prometheus.GaugeValue, float64(s.ItemsBeingProcessed), s.Name)
		ch <- prometheus.MustNewConstMetric(enabledDesc, prometheus.GaugeValue, boolToFloat(s.Enabled), s.Name)
		ch <- prometheus.MustNewConstMetric(processedTotalDesc, prometheus.CounterValue, float64(s.TotalProcessedItems), s.Name)
		ch <- prometheus.MustNewConstMetric(failedTotalDesc, prometheus.CounterValue, float64(s.TotalFailedItems), s.Name)
		ch <- prometheus.MustNewConstMetric(timedOutTotalDesc, prometheus.CounterValue, float64(s.TotalTimedOutItems), s.Name)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
