// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"sync"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
	"github.com/google/uuid"
)

// dispatch is a unit of work handed to the handler in one call.
type dispatch[T any] struct {
	id   string
	envs []*envelope[T]
}

func (d *dispatch[T]) items() []T {
	items := make([]T, len(d.envs))
	for i, e := range d.envs {
		items[i] = e.item
	}
	return items
}

type cycleResult struct {
	dispatched int
	remaining  int
	free       int

	// throttle is the time until the rate limiter admits the next dispatch.
	throttle time.Duration
}

type failureReport[T any] struct {
	items []T
	err   error
}

func (q *Queue[T]) startDispatcher(wg *sync.WaitGroup, done <-chan struct{}) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		if q.mode == RealTime {
			q.runRealTime(done)
		} else {
			q.runInterval(done)
		}
		q.logger.Debugf("Dispatcher of queue %q done", q.name)
	}()
}

// runInterval fires one cycle per interval. While the queue is empty the
// timer is left unarmed until an item arrives.
func (q *Queue[T]) runInterval(done <-chan struct{}) {
	timer := time.NewTimer(q.interval)
	defer timer.Stop()
	for {
		select {
		case <-done:
			return
		case <-timer.C:
			res := q.cycle(q.baseCtxFn())
			if res.remaining == 0 {
				select {
				case <-done:
					return
				case <-q.wake:
				}
			}
			timer.Reset(q.interval)
		}
	}
}

// runRealTime fires a cycle whenever an item arrives or a dispatch completes.
// Items that are queued but not yet eligible are polled with a delay that
// grows while nothing can be dispatched.
func (q *Queue[T]) runRealTime(done <-chan struct{}) {
	idle := 0
	for {
		select {
		case <-done:
			return
		default:
		}
		res := q.cycle(q.baseCtxFn())
		var delay time.Duration
		switch {
		case res.dispatched > 0:
			idle = 0
			if res.free > 0 && res.remaining > 0 {
				continue
			}
		case res.throttle > 0:
			delay = res.throttle
		case res.remaining > 0 && res.free > 0:
			idle++
			delay = idleDelay(idle)
		}
		if !q.park(done, delay) {
			return
		}
	}
}

// idleDelay returns the polling delay after n consecutive idle polls.
func idleDelay(n int) time.Duration {
	switch {
	case n > 1000:
		return time.Second
	case n > 100:
		return 100 * time.Millisecond
	case n > 5:
		return 10 * time.Millisecond
	}
	return time.Millisecond
}

// park blocks until the dispatcher is woken or d elapses. A zero d waits for
// a wake-up only. It returns false if done is closed.
func (q *Queue[T]) park(done <-chan struct{}, d time.Duration) bool {
	if d <= 0 {
		select {
		case <-done:
			return false
		case <-q.wake:
			return true
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return false
	case <-q.wake:
	case <-timer.C:
	}
	return true
}

// cycle dispatches eligible items into every free worker slot.
func (q *Queue[T]) cycle(ctx context.Context) cycleResult {
	q.mu.Lock()
	if q.state != queueStateActive {
		n := q.c.Len()
		q.mu.Unlock()
		return cycleResult{remaining: n}
	}
	free := q.maxWorkers - q.activeThreads
	units, gateErrs, throttle := q.selectLocked(free, true)
	res := cycleResult{
		dispatched: len(units),
		remaining:  q.c.Len(),
		free:       free - len(units),
		throttle:   throttle,
	}
	q.mu.Unlock()

	// Off the dispatcher goroutine: the ErrorHandler may call Stop, which
	// waits for the dispatcher.
	if len(gateErrs) > 0 {
		go q.reportGateFailures(ctx, gateErrs)
	}
	for _, d := range units {
		go q.exec(ctx, d)
	}
	return res
}

// selectLocked removes up to slots dispatch units from the container, walking
// it in order and skipping items that are not eligible. If limit is set the
// rate limiter is consulted for each unit.
func (q *Queue[T]) selectLocked(slots int, limit bool) (units []*dispatch[T], gateErrs []error, throttle time.Duration) {
	if slots <= 0 || q.c.Len() == 0 {
		return nil, nil, 0
	}
	now := q.clock.Now()
	if q.style == ManyAtOnce {
		var idx []int
		for i := 0; i < q.c.Len(); i++ {
			if q.eligibleLocked(q.c.At(i), now, &gateErrs) {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			return nil, gateErrs, 0
		}
		if d := q.reserveLocked(limit); d > 0 {
			return nil, gateErrs, d
		}
		envs := make([]*envelope[T], len(idx))
		for j := len(idx) - 1; j >= 0; j-- {
			envs[j] = q.c.RemoveAt(idx[j])
		}
		return []*dispatch[T]{q.newDispatchLocked(envs)}, gateErrs, 0
	}
	for i := 0; i < q.c.Len() && len(units) < slots; {
		e := q.c.At(i)
		if !q.eligibleLocked(e, now, &gateErrs) {
			i++
			continue
		}
		if d := q.reserveLocked(limit); d > 0 {
			return units, gateErrs, d
		}
		q.c.RemoveAt(i)
		units = append(units, q.newDispatchLocked([]*envelope[T]{e}))
	}
	return units, gateErrs, 0
}

func (q *Queue[T]) eligibleLocked(e *envelope[T], now time.Time, gateErrs *[]error) bool {
	if !e.readyAt.IsZero() && now.Before(e.readyAt) {
		return false
	}
	if q.canProcess == nil {
		return true
	}
	ok, err := q.callCanProcess(e.item)
	if err != nil {
		*gateErrs = append(*gateErrs, err)
	}
	return ok
}

// callCanProcess evaluates the admission predicate. A panicking predicate
// admits the item.
func (q *Queue[T]) callCanProcess(item T) (ok bool, err error) {
	defer func() {
		if x := recover(); x != nil {
			ok = true
			err = &ProcessingFailure{Err: fmt.Errorf("CanProcess panic: %v", x), Panic: x, Stack: debug.Stack()}
		}
	}()
	return q.canProcess(item), nil
}

// reserveLocked takes a token from the rate limiter. It returns zero if the
// dispatch may proceed, or the wait until the next token otherwise.
func (q *Queue[T]) reserveLocked(limit bool) time.Duration {
	if !limit || q.limiter == nil {
		return 0
	}
	r := q.limiter.Reserve()
	if !r.OK() {
		return q.interval
	}
	if d := r.Delay(); d > 0 {
		r.Cancel()
		return d
	}
	return 0
}

func (q *Queue[T]) newDispatchLocked(envs []*envelope[T]) *dispatch[T] {
	q.activeThreads++
	q.inFlight += len(envs)
	q.workers.Add(1)
	return &dispatch[T]{id: uuid.NewString(), envs: envs}
}

func (q *Queue[T]) dispatchContext(parent context.Context) (context.Context, context.CancelFunc) {
	if q.timeout > 0 {
		return context.WithTimeout(parent, q.timeout)
	}
	return context.WithCancel(parent)
}

// exec runs the handler for d and waits for it to return, for the timeout to
// elapse or for the dispatch to be canceled. A handler still running after
// that is abandoned.
func (q *Queue[T]) exec(parent context.Context, d *dispatch[T]) {
	defer q.workers.Done()

	ctx, cancel := q.dispatchContext(parent)
	q.cancelations.Add(d.id, cancel)
	defer func() {
		q.cancelations.Delete(d.id)
		cancel()
	}()

	items := d.items()
	resCh := make(chan error, 1)
	go func() {
		resCh <- q.perform(ctx, items)
	}()

	var err error
	select {
	case err = <-resCh:
	case <-ctx.Done():
		select {
		case err = <-resCh:
		default:
			err = ctx.Err()
			q.logger.Warnf("Queue %q: abandoned dispatch %s of %d items: %v", q.name, d.id, len(items), err)
		}
	}
	timedOut := err != nil && errors.Is(err, context.DeadlineExceeded) && errors.Is(ctx.Err(), context.DeadlineExceeded)
	q.finish(parent, d, items, err, timedOut)
}

// perform calls the handler, converting a panic into a *ProcessingFailure.
func (q *Queue[T]) perform(ctx context.Context, items []T) (err error) {
	defer func() {
		if x := recover(); x != nil {
			stack := debug.Stack()
			q.logger.Errorf("recovering from panic in handler of queue %q. See the stack trace below for details:\n%s", q.name, stack)
			err = &ProcessingFailure{Err: fmt.Errorf("panic: %v", x), Panic: x, Stack: stack}
		}
	}()
	if q.batchHandler != nil {
		err = q.batchHandler.ProcessItems(ctx, items)
	} else {
		err = q.handler.ProcessItem(ctx, items[0])
	}
	if err != nil {
		return &ProcessingFailure{Err: err}
	}
	return nil
}

// finish records the outcome of d and applies the requeue policy.
func (q *Queue[T]) finish(ctx context.Context, d *dispatch[T], items []T, err error, timedOut bool) {
	n := len(d.envs)
	var reports []failureReport[T]

	q.mu.Lock()
	q.activeThreads--
	q.inFlight -= n
	switch {
	case err == nil:
		q.processed += uint64(n)
	case timedOut:
		q.timedOut += uint64(n)
		if q.requeueOnTimeout && !q.flushing {
			reports = q.requeueLocked(d.envs, ErrProcessingTimeout)
		} else {
			reports = append(reports, failureReport[T]{items, ErrProcessingTimeout})
		}
	default:
		q.failed += uint64(n)
		var pf *ProcessingFailure
		if !errors.As(err, &pf) {
			err = &ProcessingFailure{Err: err}
		}
		reports = append(reports, failureReport[T]{items, err})
		if q.requeueOnException && !q.flushing {
			reports = append(reports, q.requeueLocked(d.envs, err)...)
		}
	}
	q.mu.Unlock()

	q.notify()
	switch {
	case err == nil:
		q.callback(q.onProcessed, items)
	case timedOut:
		q.callback(q.onTimedOut, items)
		q.logger.Warnf("Queue %q: dispatch %s of %d items timed out after %v", q.name, d.id, n, q.timeout)
	default:
		q.logger.Warnf("Queue %q: dispatch %s of %d items failed: %v", q.name, d.id, n, err)
	}
	for _, r := range reports {
		q.reportFailure(ctx, r.items, r.err)
	}
}

// requeueLocked puts envs back in the container. It returns reports for
// items dropped because their retries are exhausted or because a newer entry
// took their key.
func (q *Queue[T]) requeueLocked(envs []*envelope[T], cause error) []failureReport[T] {
	now := q.clock.Now()
	var exhausted, stale []T
	insert := q.c.Insert
	if q.requeueMode == RequeueToHead {
		// Walk backwards so the batch keeps its order at the head.
		envs = slices.Clone(envs)
		slices.Reverse(envs)
		insert = q.c.InsertFirst
	}
	for _, e := range envs {
		if q.maxRetries > 0 && e.retried >= q.maxRetries {
			exhausted = append(exhausted, e.item)
			continue
		}
		e.retried++
		e.readyAt = time.Time{}
		if q.retryDelayFunc != nil {
			e.readyAt = now.Add(q.retryDelayFunc(e.retried, cause))
		}
		if err := insert(e); err != nil {
			stale = append(stale, e.item)
		}
	}
	q.logger.Debugf("Queue %q: requeued %d items", q.name, len(envs)-len(exhausted)-len(stale))
	var reports []failureReport[T]
	if len(exhausted) > 0 {
		reports = append(reports, failureReport[T]{exhausted, fmt.Errorf("%w after %d retries: %w", ErrRetriesExhausted, q.maxRetries, cause)})
	}
	if len(stale) > 0 {
		reports = append(reports, failureReport[T]{stale, ErrDuplicateKey})
	}
	return reports
}

func (q *Queue[T]) reportGateFailures(ctx context.Context, errs []error) {
	for _, err := range errs {
		q.logger.Errorf("Queue %q: %v", q.name, err)
		q.reportFailure(ctx, nil, err)
	}
}

// callback calls fn with items, recovering from a panic in fn.
func (q *Queue[T]) callback(fn func([]T), items []T) {
	if fn == nil {
		return
	}
	defer func() {
		if x := recover(); x != nil {
			q.logger.Errorf("recovering from panic in notification callback of queue %q: %v", q.name, x)
		}
	}()
	fn(items)
}

func (q *Queue[T]) reportFailure(ctx context.Context, items []T, err error) {
	if q.errHandler == nil {
		return
	}
	defer func() {
		if x := recover(); x != nil {
			q.logger.Errorf("recovering from panic in error handler of queue %q: %v", q.name, x)
		}
	}()
	q.errHandler.HandleError(ctx, items, err)
}

// Flush stops the queue and processes the remaining items on the calling
// goroutine with requeueing disabled. It returns when the queue is empty,
// when no remaining item is eligible, or when ctx is done.
func (q *Queue[T]) Flush(ctx context.Context) error {
	q.Stop()

	q.mu.Lock()
	if q.state == queueStateClosed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.flushing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.flushing = false
		q.mu.Unlock()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		q.mu.Lock()
		if q.state == queueStateClosed {
			q.mu.Unlock()
			return ErrQueueClosed
		}
		units, gateErrs, _ := q.selectLocked(1, false)
		q.mu.Unlock()

		q.reportGateFailures(ctx, gateErrs)
		if len(units) == 0 {
			return nil
		}
		q.exec(ctx, units[0])
	}
}

// startReporter runs StatsFunc until done is closed. The goroutine is not
// part of the run's wait group so that StatsFunc may call Stop.
func (q *Queue[T]) startReporter(done <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(q.statsInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				q.reportStatistics()
			}
		}
	}()
}

func (q *Queue[T]) reportStatistics() {
	defer func() {
		if x := recover(); x != nil {
			q.logger.Errorf("recovering from panic in StatsFunc of queue %q: %v", q.name, x)
		}
	}()
	q.statsFunc(q.Statistics())
}
