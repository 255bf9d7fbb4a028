// Copyright 2024 Hemant. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

/*
Package processqueue provides in-process work queues with selectable
threading modes, admission control, timeouts and a requeue policy.

A Queue holds items added by producers and hands them to a handler on
worker goroutines. A KeyedQueue holds unique keys and dispatches them in
ascending key order.

# Threading modes

	Asynchronous - up to MaxWorkers dispatches at once, one cycle per Interval
	Synchronous  - a single dispatch at a time, one cycle per Interval
	RealTime     - a single dispatch at a time, a cycle as soon as work arrives

# Processing styles

A Handler receives one item per call (OneAtATime). A BatchHandler receives
every eligible item in one call (ManyAtOnce).

# Quick Start

	q, err := processqueue.NewAsynchronous(processqueue.Config[string]{
		Settings: processqueue.Settings{
			Name:               "errorlog",
			MaxWorkers:         4,
			Timeout:            5 * time.Second,
			RequeueOnException: true,
			MaxRetries:         3,
		},
		Handler: processqueue.HandlerFunc[string](func(ctx context.Context, msg string) error {
			return db.Insert(ctx, msg)
		}),
		ErrorHandler: processqueue.ErrorHandlerFunc[string](func(ctx context.Context, items []string, err error) {
			log.Printf("failed to store %d messages: %v", len(items), err)
		}),
	})
	if err != nil {
		log.Fatal(err)
	}
	q.Start()
	defer q.Close()

	q.Add("disk almost full")

# Failures

A handler error or panic is reported to the ErrorHandler as a
*ProcessingFailure and the items are requeued if RequeueOnException is set.
A dispatch that outlives Timeout has its context canceled and is abandoned;
its items are requeued if RequeueOnTimeout is set, otherwise they are
reported with ErrProcessingTimeout. Requeueing is unbounded unless MaxRetries
is set.

# Monitoring

Statistics returns a snapshot of a queue's counters. A Publisher writes the
snapshots of registered queues to Redis, and the x/metrics package exposes
them to Prometheus. The monitor in ./ui reads the published snapshots:

	go run ./ui --redis-addr localhost:6379
*/
package processqueue
