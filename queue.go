// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/base"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/errors"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/log"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/timeutil"
	"golang.org/x/time/rate"
)

// Queue holds pending items and drives their processing according to a
// threading mode, a processing style, a timeout and a requeue policy.
//
// Items are appended with Add and processed by the Handler (one item per
// call) or the BatchHandler (all eligible items per call) given at
// construction. A Queue does nothing until Start is called.
type Queue[T any] struct {
	logger *log.Logger

	name               string
	mode               ThreadingMode
	style              ProcessingStyle
	interval           time.Duration
	maxWorkers         int
	timeout            time.Duration
	requeueOnTimeout   bool
	requeueOnException bool
	requeueMode        RequeueMode
	maxRetries         int
	retryDelayFunc     RetryDelayFunc
	shutdownTimeout    time.Duration
	baseCtxFn          func() context.Context
	statsFunc          func(Statistics)
	statsInterval      time.Duration

	handler      Handler[T]
	batchHandler BatchHandler[T]
	canProcess   func(T) bool
	errHandler   ErrorHandler[T]
	onProcessed  func([]T)
	onTimedOut   func([]T)

	// nil when dispatch is not rate limited.
	limiter *rate.Limiter

	clock        timeutil.Clock
	cancelations *base.Cancelations

	// wake is signaled whenever new work may be dispatchable.
	wake chan struct{}

	// wait group for in-flight dispatches.
	workers sync.WaitGroup

	mu sync.Mutex
	// fields below are guarded by mu.
	c             base.Container[*envelope[T]]
	state         queueState
	done          chan struct{}
	runWG         *sync.WaitGroup // dispatcher of the current run
	flushing      bool
	startTime     time.Time
	stopTime      time.Time
	activeThreads int
	inFlight      int
	processed     uint64
	failed        uint64
	timedOut      uint64
}

// envelope carries an item through the container with its retry bookkeeping.
type envelope[T any] struct {
	item    T
	retried int
	readyAt time.Time // zero value means ready now
}

type queueState int

const (
	// queueStateNew represents a queue that has never been started.
	queueStateNew queueState = iota

	// queueStateActive indicates the queue is dispatching items.
	queueStateActive

	// queueStateStopped indicates the queue accepts items but does not dispatch them.
	queueStateStopped

	// queueStateClosed indicates the queue has been closed.
	queueStateClosed
)

var queueStates = []string{
	"new",
	"active",
	"stopped",
	"closed",
}

func (s queueState) String() string {
	if queueStateNew <= s && s <= queueStateClosed {
		return queueStates[s]
	}
	return "unknown status"
}

// ThreadingMode determines when dispatch cycles fire and how many
// dispatches may run at once.
type ThreadingMode int

const (
	// Asynchronous runs up to MaxWorkers dispatches concurrently, one cycle per Interval.
	Asynchronous ThreadingMode = iota

	// Synchronous runs a single dispatch at a time, one cycle per Interval.
	Synchronous

	// RealTime runs a single dispatch at a time and starts the next cycle as
	// soon as an item is added or the running dispatch completes.
	RealTime
)

func (m ThreadingMode) String() string {
	switch m {
	case Asynchronous:
		return "Asynchronous"
	case Synchronous:
		return "Synchronous"
	case RealTime:
		return "RealTime"
	}
	return fmt.Sprintf("ThreadingMode(%d)", int(m))
}

// ParseThreadingMode returns the ThreadingMode named by s, ignoring case.
func ParseThreadingMode(s string) (ThreadingMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "asynchronous", "async":
		return Asynchronous, nil
	case "synchronous", "sync":
		return Synchronous, nil
	case "realtime", "real-time":
		return RealTime, nil
	}
	return 0, fmt.Errorf("processqueue: unsupported threading mode %q", s)
}

// ProcessingStyle determines how many items a single dispatch carries.
type ProcessingStyle int

const (
	// OneAtATime hands a single item to a Handler per dispatch.
	OneAtATime ProcessingStyle = iota

	// ManyAtOnce hands every eligible item to a BatchHandler in one dispatch.
	ManyAtOnce
)

func (s ProcessingStyle) String() string {
	switch s {
	case OneAtATime:
		return "OneAtATime"
	case ManyAtOnce:
		return "ManyAtOnce"
	}
	return fmt.Sprintf("ProcessingStyle(%d)", int(s))
}

// RequeueMode determines where requeued items are put back in a plain queue.
// Keyed queues always requeue at the key-order position.
type RequeueMode int

const (
	// RequeueToTail appends requeued items behind the items already queued.
	RequeueToTail RequeueMode = iota

	// RequeueToHead puts requeued items ahead of the items already queued,
	// keeping their original order.
	RequeueToHead
)

func (m RequeueMode) String() string {
	switch m {
	case RequeueToTail:
		return "Tail"
	case RequeueToHead:
		return "Head"
	}
	return fmt.Sprintf("RequeueMode(%d)", int(m))
}

// ParseRequeueMode returns the RequeueMode named by s, ignoring case.
// "suffix" and "prefix" are accepted for "tail" and "head".
func ParseRequeueMode(s string) (RequeueMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tail", "suffix":
		return RequeueToTail, nil
	case "head", "prefix":
		return RequeueToHead, nil
	}
	return 0, fmt.Errorf("processqueue: unsupported requeue mode %q", s)
}

// A Handler processes queued items one at a time.
//
// ProcessItem should return nil if the processing of the item is successful.
// The context is canceled when the queue's Timeout elapses or the queue is
// closed, and the handler is expected to return promptly once it is.
type Handler[T any] interface {
	ProcessItem(ctx context.Context, item T) error
}

// The HandlerFunc type is an adapter to allow the use of
// ordinary functions as a Handler.
type HandlerFunc[T any] func(ctx context.Context, item T) error

// ProcessItem calls fn(ctx, item)
func (fn HandlerFunc[T]) ProcessItem(ctx context.Context, item T) error {
	return fn(ctx, item)
}

// A BatchHandler processes every eligible queued item in a single call.
type BatchHandler[T any] interface {
	ProcessItems(ctx context.Context, items []T) error
}

// The BatchHandlerFunc type is an adapter to allow the use of
// ordinary functions as a BatchHandler.
type BatchHandlerFunc[T any] func(ctx context.Context, items []T) error

// ProcessItems calls fn(ctx, items)
func (fn BatchHandlerFunc[T]) ProcessItems(ctx context.Context, items []T) error {
	return fn(ctx, items)
}

// An ErrorHandler is notified of items that failed or were dropped.
//
// err is ErrProcessingTimeout, ErrRetriesExhausted, ErrDuplicateKey or a
// *ProcessingFailure. items is nil when the failure is not tied to a
// dispatch, such as a panicking CanProcess predicate.
type ErrorHandler[T any] interface {
	HandleError(ctx context.Context, items []T, err error)
}

// The ErrorHandlerFunc type is an adapter to allow the use of ordinary functions as an ErrorHandler.
type ErrorHandlerFunc[T any] func(ctx context.Context, items []T, err error)

// HandleError calls fn(ctx, items, err)
func (fn ErrorHandlerFunc[T]) HandleError(ctx context.Context, items []T, err error) {
	fn(ctx, items, err)
}

// RetryDelayFunc calculates how long a requeued item waits before it becomes
// eligible again, given the number of times it has been retried and the error
// that caused the requeue.
type RetryDelayFunc func(n int, err error) time.Duration

// ExponentialRetryDelay returns a RetryDelayFunc that doubles the delay with
// each retry, starting at initial and capped at max.
func ExponentialRetryDelay(initial, max time.Duration) RetryDelayFunc {
	return func(n int, _ error) time.Duration {
		if n < 1 {
			n = 1
		}
		d := float64(initial) * math.Pow(2, float64(n-1))
		if d > float64(max) {
			return max
		}
		return time.Duration(d)
	}
}

// Settings holds the configuration shared by Queue and KeyedQueue.
type Settings struct {
	// Name identifies the queue in logs, statistics and published records.
	//
	// If unset, "default" is used.
	Name string

	// Mode selects the threading mode. The zero value is Asynchronous.
	Mode ThreadingMode

	// Interval specifies the time between dispatch cycles in the
	// Asynchronous and Synchronous modes. It is ignored in RealTime mode.
	//
	// If unset or zero, the interval is set to 100 milliseconds.
	Interval time.Duration

	// MaxWorkers is the maximum number of concurrent dispatches in
	// Asynchronous mode. Synchronous and RealTime queues always use one.
	//
	// If unset or zero, 5 workers are used.
	MaxWorkers int

	// Timeout bounds a single dispatch. When it elapses the dispatch context
	// is canceled and the queue stops waiting for the handler.
	//
	// Zero means no timeout.
	Timeout time.Duration

	// RequeueOnTimeout puts items of a timed out dispatch back in the queue.
	// Otherwise they are dropped and reported with ErrProcessingTimeout.
	RequeueOnTimeout bool

	// RequeueOnException puts items of a failed dispatch back in the queue.
	// Failed dispatches are reported to the ErrorHandler either way.
	RequeueOnException bool

	// RequeueMode selects where requeued items go. The zero value is RequeueToTail.
	RequeueMode RequeueMode

	// MaxRetries caps how many times an item may be requeued.
	//
	// Zero means items are requeued without limit.
	MaxRetries int

	// RetryDelayFunc delays the eligibility of requeued items.
	//
	// If nil, requeued items are eligible immediately.
	RetryDelayFunc RetryDelayFunc

	// RateLimit caps the number of dispatches per second, with bursts of up
	// to RateBurst dispatches.
	//
	// Zero disables rate limiting. If RateBurst is unset, a burst of 1 is used.
	RateLimit float64
	RateBurst int

	// ShutdownTimeout specifies the duration Close waits for in-flight
	// dispatches before canceling their contexts.
	//
	// If unset or zero, default timeout of 8 seconds is used.
	ShutdownTimeout time.Duration

	// BaseContext optionally specifies a function that returns the base context for handler invocations.
	//
	// If BaseContext is nil, the default is context.Background().
	BaseContext func() context.Context

	// Logger specifies the logger used by the queue.
	//
	// If unset, default logger is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable.
	//
	// If unset, InfoLevel is used by default.
	LogLevel LogLevel

	// StatsFunc, if set, is called with a statistics snapshot every
	// StatsInterval while the queue is started. A call in progress when Stop
	// returns may still complete afterwards.
	StatsFunc func(Statistics)

	// If unset or zero, the interval is set to 15 seconds.
	StatsInterval time.Duration
}

// Config specifies the processing behavior of a Queue.
//
// Exactly one of Handler and BatchHandler must be set. Handler selects the
// OneAtATime processing style and BatchHandler selects ManyAtOnce.
type Config[T any] struct {
	Settings

	Handler      Handler[T]
	BatchHandler BatchHandler[T]

	// CanProcess, if set, is consulted for every item during dispatch. Items
	// for which it returns false stay queued and are reconsidered next cycle.
	// It is called with the queue locked and must not call back into the queue.
	CanProcess func(item T) bool

	// ErrorHandler is notified of failed and dropped items.
	ErrorHandler ErrorHandler[T]

	// OnProcessed, if set, is called with the items of every successful dispatch.
	OnProcessed func(items []T)

	// OnTimedOut, if set, is called with the items of every dispatch that
	// exceeded Timeout, whether they are requeued or dropped.
	OnTimedOut func(items []T)
}

// Logger supports logging at various log levels.
type Logger interface {
	// Debug logs a message at Debug level.
	Debug(args ...interface{})

	// Info logs a message at Info level.
	Info(args ...interface{})

	// Warn logs a message at Warning level.
	Warn(args ...interface{})

	// Error logs a message at Error level.
	Error(args ...interface{})

	// Fatal logs a message at Fatal level
	// and process will exit with status set to 1.
	Fatal(args ...interface{})
}

// LogLevel represents logging level.
//
// It satisfies flag.Value interface.
type LogLevel int32

const (
	// Note: reserving value zero to differentiate unspecified case.
	level_unspecified LogLevel = iota

	// DebugLevel is the lowest level of logging.
	// Debug logs are intended for debugging and development purposes.
	DebugLevel

	// InfoLevel is used for general informational log messages.
	InfoLevel

	// WarnLevel is used for undesired but relatively expected events,
	// which may indicate a problem.
	WarnLevel

	// ErrorLevel is used for undesired and unexpected events that
	// the program can recover from.
	ErrorLevel

	// FatalLevel is used for undesired and unexpected events that
	// the program cannot recover from.
	FatalLevel
)

// String is part of the flag.Value interface.
func (l *LogLevel) String() string {
	switch *l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	case FatalLevel:
		return "fatal"
	}
	panic(fmt.Sprintf("processqueue: unexpected log level: %v", *l))
}

// Set is part of the flag.Value interface.
func (l *LogLevel) Set(val string) error {
	switch strings.ToLower(val) {
	case "debug":
		*l = DebugLevel
	case "info":
		*l = InfoLevel
	case "warn", "warning":
		*l = WarnLevel
	case "error":
		*l = ErrorLevel
	case "fatal":
		*l = FatalLevel
	default:
		return fmt.Errorf("processqueue: unsupported log level %q", val)
	}
	return nil
}

// Type is part of the pflag.Value interface.
func (l *LogLevel) Type() string {
	return "level"
}

func toInternalLogLevel(l LogLevel) log.Level {
	switch l {
	case DebugLevel:
		return log.DebugLevel
	case InfoLevel:
		return log.InfoLevel
	case WarnLevel:
		return log.WarnLevel
	case ErrorLevel:
		return log.ErrorLevel
	case FatalLevel:
		return log.FatalLevel
	}
	panic(fmt.Sprintf("processqueue: unexpected log level: %v", l))
}

func newLogger(s Settings) *log.Logger {
	logger := log.NewLogger(s.Logger)
	loglevel := s.LogLevel
	if loglevel == level_unspecified {
		loglevel = InfoLevel
	}
	logger.SetLevel(toInternalLogLevel(loglevel))
	return logger
}

const (
	defaultInterval        = 100 * time.Millisecond
	defaultMaxWorkers      = 5
	defaultShutdownTimeout = 8 * time.Second
	defaultStatsInterval   = 15 * time.Second
)

// New returns a new Queue given the configuration.
//
// It returns an error wrapping ErrConfiguration if both or neither of
// Handler and BatchHandler are set, or if a numeric setting is negative.
func New[T any](cfg Config[T]) (*Queue[T], error) {
	return newQueue(cfg, base.NewSequence[*envelope[T]]())
}

// NewAsynchronous returns a new Queue in Asynchronous mode.
func NewAsynchronous[T any](cfg Config[T]) (*Queue[T], error) {
	cfg.Mode = Asynchronous
	return New(cfg)
}

// NewSynchronous returns a new Queue in Synchronous mode.
func NewSynchronous[T any](cfg Config[T]) (*Queue[T], error) {
	cfg.Mode = Synchronous
	return New(cfg)
}

// NewRealTime returns a new Queue in RealTime mode.
func NewRealTime[T any](cfg Config[T]) (*Queue[T], error) {
	cfg.Mode = RealTime
	return New(cfg)
}

func validateSettings(op errors.Op, s Settings) error {
	switch {
	case s.Mode < Asynchronous || s.Mode > RealTime:
		return configError(op, "unsupported threading mode %d", int(s.Mode))
	case s.RequeueMode < RequeueToTail || s.RequeueMode > RequeueToHead:
		return configError(op, "unsupported requeue mode %d", int(s.RequeueMode))
	case s.Interval < 0:
		return configError(op, "negative interval %v", s.Interval)
	case s.MaxWorkers < 0:
		return configError(op, "negative max workers %d", s.MaxWorkers)
	case s.Timeout < 0:
		return configError(op, "negative timeout %v", s.Timeout)
	case s.MaxRetries < 0:
		return configError(op, "negative max retries %d", s.MaxRetries)
	case s.RateLimit < 0 || s.RateBurst < 0:
		return configError(op, "negative rate limit %v/%d", s.RateLimit, s.RateBurst)
	case s.ShutdownTimeout < 0:
		return configError(op, "negative shutdown timeout %v", s.ShutdownTimeout)
	}
	return nil
}

func newQueue[T any](cfg Config[T], c base.Container[*envelope[T]]) (*Queue[T], error) {
	const op errors.Op = "processqueue.New"
	if err := validateSettings(op, cfg.Settings); err != nil {
		return nil, err
	}
	var style ProcessingStyle
	switch {
	case cfg.Handler != nil && cfg.BatchHandler != nil:
		return nil, configError(op, "both Handler and BatchHandler are set")
	case cfg.Handler != nil:
		style = OneAtATime
	case cfg.BatchHandler != nil:
		style = ManyAtOnce
	default:
		return nil, configError(op, "one of Handler and BatchHandler must be set")
	}

	name := cfg.Name
	if name == "" {
		name = base.DefaultQueueName
	}
	if err := base.ValidateQueueName(name); err != nil {
		return nil, configError(op, "%v", err)
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}
	n := cfg.MaxWorkers
	if n == 0 {
		n = defaultMaxWorkers
	}
	if cfg.Mode != Asynchronous {
		n = 1
	}
	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	statsInterval := cfg.StatsInterval
	if statsInterval <= 0 {
		statsInterval = defaultStatsInterval
	}
	baseCtxFn := cfg.BaseContext
	if baseCtxFn == nil {
		baseCtxFn = context.Background
	}
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst == 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return &Queue[T]{
		logger:             newLogger(cfg.Settings),
		name:               name,
		mode:               cfg.Mode,
		style:              style,
		interval:           interval,
		maxWorkers:         n,
		timeout:            cfg.Timeout,
		requeueOnTimeout:   cfg.RequeueOnTimeout,
		requeueOnException: cfg.RequeueOnException,
		requeueMode:        cfg.RequeueMode,
		maxRetries:         cfg.MaxRetries,
		retryDelayFunc:     cfg.RetryDelayFunc,
		shutdownTimeout:    shutdownTimeout,
		baseCtxFn:          baseCtxFn,
		statsFunc:          cfg.StatsFunc,
		statsInterval:      statsInterval,
		handler:            cfg.Handler,
		batchHandler:       cfg.BatchHandler,
		canProcess:         cfg.CanProcess,
		errHandler:         cfg.ErrorHandler,
		onProcessed:        cfg.OnProcessed,
		onTimedOut:         cfg.OnTimedOut,
		limiter:            limiter,
		clock:              timeutil.NewRealClock(),
		cancelations:       base.NewCancelations(),
		wake:               make(chan struct{}, 1),
		c:                  c,
		state:              queueStateNew,
	}, nil
}

// notify wakes the dispatcher without blocking.
func (q *Queue[T]) notify() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Add appends item to the queue.
func (q *Queue[T]) Add(item T) error {
	return q.insert(&envelope[T]{item: item})
}

// AddRange appends items to the queue in order.
func (q *Queue[T]) AddRange(items ...T) error {
	q.mu.Lock()
	if q.state == queueStateClosed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	var errs []error
	for _, item := range items {
		if err := q.c.Insert(&envelope[T]{item: item}); err != nil {
			errs = append(errs, err)
		}
	}
	q.mu.Unlock()
	q.notify()
	return errors.Join(errs...)
}

func (q *Queue[T]) insert(e *envelope[T]) error {
	q.mu.Lock()
	if q.state == queueStateClosed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	err := q.c.Insert(e)
	q.mu.Unlock()
	if err != nil {
		return err
	}
	q.notify()
	return nil
}

// Start begins dispatching queued items. Calling Start on a started queue
// has no effect; a stopped queue may be started again.
func (q *Queue[T]) Start() error {
	q.mu.Lock()
	switch q.state {
	case queueStateClosed:
		q.mu.Unlock()
		return ErrQueueClosed
	case queueStateActive:
		q.mu.Unlock()
		return nil
	}
	q.state = queueStateActive
	q.startTime = q.clock.Now()
	q.stopTime = time.Time{}
	done := make(chan struct{})
	wg := &sync.WaitGroup{}
	q.done = done
	q.runWG = wg
	q.mu.Unlock()

	q.logger.Infof("Starting processing of queue %q (mode=%v, style=%v, workers=%d)", q.name, q.mode, q.style, q.maxWorkers)
	q.startDispatcher(wg, done)
	if q.statsFunc != nil {
		q.startReporter(done)
	}
	q.notify()
	return nil
}

// Stop ends dispatching. Dispatches already running are left to complete or
// time out; their outcome is handled as usual. Items added while stopped are
// kept. Calling Stop on a queue that is not started has no effect.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if q.state != queueStateActive {
		q.mu.Unlock()
		return
	}
	q.state = queueStateStopped
	q.stopTime = q.clock.Now()
	close(q.done)
	wg := q.runWG
	q.mu.Unlock()

	wg.Wait()
	q.logger.Infof("Queue %q stopped", q.name)
}

// Close stops the queue, waits up to ShutdownTimeout for in-flight dispatches,
// cancels those still running and discards the remaining items.
// A closed queue rejects further items with ErrQueueClosed.
func (q *Queue[T]) Close() error {
	q.Stop()

	q.mu.Lock()
	if q.state == queueStateClosed {
		q.mu.Unlock()
		return nil
	}
	q.state = queueStateClosed
	q.mu.Unlock()

	q.logger.Debugf("Waiting for in-flight dispatches of queue %q", q.name)
	finished := make(chan struct{})
	go func() {
		q.workers.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(q.shutdownTimeout):
		q.logger.Warnf("Queue %q: canceling %d dispatches still running after %v", q.name, q.cancelations.Len(), q.shutdownTimeout)
		q.cancelations.CancelAll()
		<-finished
	}

	q.mu.Lock()
	dropped := q.c.Len()
	q.c.Clear()
	q.mu.Unlock()
	if dropped > 0 {
		q.logger.Warnf("Queue %q closed with %d unprocessed items", q.name, dropped)
	}
	q.logger.Infof("Queue %q closed", q.name)
	return nil
}

// Name returns the name of the queue.
func (q *Queue[T]) Name() string { return q.name }

// Mode returns the threading mode of the queue.
func (q *Queue[T]) Mode() ThreadingMode { return q.mode }

// Style returns the processing style of the queue.
func (q *Queue[T]) Style() ProcessingStyle { return q.style }

// Enabled reports whether the queue is started.
func (q *Queue[T]) Enabled() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == queueStateActive
}

// IsProcessing reports whether any dispatch is running.
func (q *Queue[T]) IsProcessing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeThreads > 0
}

// Count returns the number of queued items, not counting items in flight.
func (q *Queue[T]) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.c.Len()
}

// ActiveThreads returns the number of running dispatches.
func (q *Queue[T]) ActiveThreads() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.activeThreads
}

// ItemsBeingProcessed returns the number of items in running dispatches.
func (q *Queue[T]) ItemsBeingProcessed() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inFlight
}

// TotalProcessedItems returns the number of items processed successfully.
func (q *Queue[T]) TotalProcessedItems() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.processed
}

// RunTime returns the time elapsed since the queue was last started, or the
// length of the last run if the queue is not started.
func (q *Queue[T]) RunTime() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.runTimeLocked()
}

func (q *Queue[T]) runTimeLocked() time.Duration {
	if q.startTime.IsZero() {
		return 0
	}
	if q.state == queueStateActive {
		return q.clock.Now().Sub(q.startTime)
	}
	return q.stopTime.Sub(q.startTime)
}

// At returns the queued item at position i.
func (q *Queue[T]) At(i int) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= q.c.Len() {
		var zero T
		return zero, ErrIndexOutOfRange
	}
	return q.c.At(i).item, nil
}

// RemoveAt removes and returns the queued item at position i.
func (q *Queue[T]) RemoveAt(i int) (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if i < 0 || i >= q.c.Len() {
		var zero T
		return zero, ErrIndexOutOfRange
	}
	return q.c.RemoveAt(i).item, nil
}

// Trim removes items from the head of the queue until at most max remain and
// returns the number of items removed.
func (q *Queue[T]) Trim(max int) int {
	if max < 0 {
		max = 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for q.c.Len() > max {
		q.c.RemoveAt(0)
		n++
	}
	return n
}

// Clear removes every queued item and returns the number removed.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.c.Len()
	q.c.Clear()
	return n
}

// Items returns a copy of the queued items in container order.
func (q *Queue[T]) Items() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := make([]T, q.c.Len())
	for i := range items {
		items[i] = q.c.At(i).item
	}
	return items
}

// IndexFunc returns the position of the first queued item satisfying f, or -1.
// f is called with the queue locked and must not call back into the queue.
func (q *Queue[T]) IndexFunc(f func(T) bool) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := 0; i < q.c.Len(); i++ {
		if f(q.c.At(i).item) {
			return i
		}
	}
	return -1
}

// Contains reports whether any queued item satisfies f.
func (q *Queue[T]) Contains(f func(T) bool) bool {
	return q.IndexFunc(f) >= 0
}

// Sort sorts the queued items by cmp, keeping the order of equal items.
func (q *Queue[T]) Sort(cmp func(a, b T) int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.c.Sort(func(a, b *envelope[T]) int { return cmp(a.item, b.item) })
}

// BinarySearch searches the queue, which must be sorted by cmp, for item and
// returns its position, or the position where it would be, and whether it
// was found.
func (q *Queue[T]) BinarySearch(item T, cmp func(a, b T) int) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.c.BinarySearch(&envelope[T]{item: item}, func(a, b *envelope[T]) int { return cmp(a.item, b.item) })
}

// Run starts the queue and blocks until an os signal to exit the program is
// received. Once it receives a signal, it closes the queue.
func (q *Queue[T]) Run() error {
	if err := q.Start(); err != nil {
		return err
	}
	q.waitForSignals()
	return q.Close()
}
