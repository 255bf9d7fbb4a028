// Copyright 2022 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"fmt"
	"sync"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/log"
)

// Trimmable is a queue whose depth can be capped.
// Both *Queue and *KeyedQueue implement it.
type Trimmable interface {
	Name() string
	Trim(max int) int
}

// TrimmerConfig specifies the behavior of a Trimmer.
type TrimmerConfig struct {
	// Target is the queue to trim.
	Target Trimmable

	// MaxDepth is the number of queued items kept after each trim.
	MaxDepth int

	// Interval between trims.
	//
	// If unset or zero, the interval is set to 1 second.
	Interval time.Duration

	// Logger specifies the logger used by the trimmer.
	//
	// If unset, default logger is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable.
	//
	// If unset, InfoLevel is used by default.
	LogLevel LogLevel
}

// Trimmer periodically evicts the oldest items of a queue whose depth
// exceeds a threshold: the head of a plain queue, the lowest keys of a keyed
// queue.
type Trimmer struct {
	logger *log.Logger
	target Trimmable

	// channel to communicate back to the long running "trimmer" goroutine.
	done chan struct{}
	wg   sync.WaitGroup

	// number of items to keep.
	maxDepth int

	// interval between trims.
	interval time.Duration

	mu      sync.Mutex
	started bool
	evicted uint64
}

const defaultTrimInterval = 1 * time.Second

// NewTrimmer returns a new Trimmer given the configuration.
func NewTrimmer(cfg TrimmerConfig) (*Trimmer, error) {
	if cfg.Target == nil {
		return nil, fmt.Errorf("%w: trimmer target is nil", ErrConfiguration)
	}
	if cfg.MaxDepth < 0 {
		return nil, fmt.Errorf("%w: negative max depth %d", ErrConfiguration, cfg.MaxDepth)
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultTrimInterval
	}
	return &Trimmer{
		logger:   newLogger(Settings{Logger: cfg.Logger, LogLevel: cfg.LogLevel}),
		target:   cfg.Target,
		done:     make(chan struct{}),
		maxDepth: cfg.MaxDepth,
		interval: interval,
	}, nil
}

// Start begins trimming in the background. Calling Start on a started
// Trimmer has no effect.
func (t *Trimmer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		timer := time.NewTimer(t.interval)
		for {
			select {
			case <-t.done:
				t.logger.Debug("Trimmer done")
				timer.Stop()
				return
			case <-timer.C:
				t.exec()
				timer.Reset(t.interval)
			}
		}
	}()
}

// Shutdown stops the background trimming.
func (t *Trimmer) Shutdown() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	t.mu.Unlock()

	t.logger.Debug("Trimmer shutting down...")
	// Signal the trimmer goroutine to stop.
	t.done <- struct{}{}
	t.wg.Wait()
}

// Evicted returns the total number of items evicted so far.
func (t *Trimmer) Evicted() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.evicted
}

func (t *Trimmer) exec() {
	n := t.target.Trim(t.maxDepth)
	if n == 0 {
		return
	}
	t.mu.Lock()
	t.evicted += uint64(n)
	t.mu.Unlock()
	t.logger.Warnf("Queue %q exceeded %d items, evicted %d oldest items", t.target.Name(), t.maxDepth, n)
}
