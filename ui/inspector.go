// Command ui serves a web page and a Prometheus endpoint showing the queue
// statistics published to redis by processqueue.Publisher.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	processqueue "github.com/GridProtectionAlliance/gsf-sub065"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/base"
)

// queueLister reads published queue records.
//
// See rdb.RDB as a reference implementation.
type queueLister interface {
	ListQueueInfo(ctx context.Context) ([]*base.QueueInfo, error)
}

// Inspector provides read-only access to published queue statistics.
type Inspector struct {
	lister queueLister
	now    func() time.Time
}

// NewInspector creates a new Inspector reading from l.
func NewInspector(l queueLister) *Inspector {
	return &Inspector{lister: l, now: time.Now}
}

// DashboardStats aggregates the records of every published queue.
type DashboardStats struct {
	TotalQueues         int    `json:"total_queues"`
	EnabledQueues       int    `json:"enabled_queues"`
	Processes           int    `json:"processes"`
	TotalQueued         int    `json:"total_queued"`
	ItemsBeingProcessed int    `json:"items_being_processed"`
	ActiveThreads       int    `json:"active_threads"`
	TotalProcessed      uint64 `json:"total_processed"`
	TotalFailed         uint64 `json:"total_failed"`
	TotalTimedOut       uint64 `json:"total_timed_out"`
}

// Queues returns the records of every published queue.
func (i *Inspector) Queues(ctx context.Context) ([]*base.QueueInfo, error) {
	infos, err := i.lister.ListQueueInfo(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	return infos, nil
}

// Dashboard returns totals across every published queue.
func (i *Inspector) Dashboard(ctx context.Context) (*DashboardStats, error) {
	infos, err := i.Queues(ctx)
	if err != nil {
		return nil, err
	}
	var stats DashboardStats
	processes := make(map[string]struct{})
	for _, info := range infos {
		stats.TotalQueues++
		if info.Enabled {
			stats.EnabledQueues++
		}
		processes[fmt.Sprintf("%s:%d", info.Host, info.PID)] = struct{}{}
		stats.TotalQueued += info.QueueCount
		stats.ItemsBeingProcessed += info.ItemsBeingProcessed
		stats.ActiveThreads += info.ActiveThreads
		stats.TotalProcessed += info.TotalProcessed
		stats.TotalFailed += info.TotalFailed
		stats.TotalTimedOut += info.TotalTimedOut
	}
	stats.Processes = len(processes)
	return &stats, nil
}

// Queue returns the record of the named queue published by host and pid.
// It returns nil if no such record exists.
func (i *Inspector) Queue(ctx context.Context, host string, pid int, name string) (*base.QueueInfo, error) {
	infos, err := i.Queues(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Host == host && info.PID == pid && info.Name == name {
			return info, nil
		}
	}
	return nil, nil
}

// Statistics converts every published record to processqueue.Statistics.
// The name of each is qualified with its publisher as name@host:pid, since
// several processes may run queues of the same name.
func (i *Inspector) Statistics(ctx context.Context) ([]processqueue.Statistics, error) {
	infos, err := i.Queues(ctx)
	if err != nil {
		return nil, err
	}
	stats := make([]processqueue.Statistics, len(infos))
	for n, info := range infos {
		stats[n] = toStatistics(info)
		stats[n].Name = fmt.Sprintf("%s@%s:%d", info.Name, info.Host, info.PID)
	}
	return stats, nil
}

// Age returns how long ago info was published.
func (i *Inspector) Age(info *base.QueueInfo) time.Duration {
	return i.now().Sub(info.Published).Round(time.Second)
}

func toStatistics(info *base.QueueInfo) processqueue.Statistics {
	mode, err := processqueue.ParseThreadingMode(info.Mode)
	if err != nil {
		mode = processqueue.Asynchronous
	}
	style := processqueue.OneAtATime
	if strings.EqualFold(info.Style, processqueue.ManyAtOnce.String()) {
		style = processqueue.ManyAtOnce
	}
	return processqueue.Statistics{
		Name:                info.Name,
		Enabled:             info.Enabled,
		Processing:          info.Processing,
		Interval:            info.Interval,
		Timeout:             info.Timeout,
		Mode:                mode,
		Style:               style,
		MaxWorkers:          info.MaxWorkers,
		RunTime:             info.RunTime,
		ActiveThreads:       info.ActiveThreads,
		QueueCount:          info.QueueCount,
		ItemsBeingProcessed: info.ItemsBeingProcessed,
		TotalProcessedItems: info.TotalProcessed,
		TotalFailedItems:    info.TotalFailed,
		TotalTimedOutItems:  info.TotalTimedOut,
	}
}
