// Copyright 2020 Kentaro Hibino. All rights reserved.
// Use of this source code is governed by a MIT license
// that can be found in the LICENSE file.

package processqueue

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/GridProtectionAlliance/gsf-sub065/internal/base"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/log"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/rdb"
	"github.com/GridProtectionAlliance/gsf-sub065/internal/timeutil"
	"github.com/redis/go-redis/v9"
)

// statsBroker stores published queue statistics.
//
// See rdb.RDB as a reference implementation.
type statsBroker interface {
	Ping() error
	Close() error
	WriteQueueState(ctx context.Context, info *base.QueueInfo, ttl time.Duration) error
	ClearQueueState(ctx context.Context, host string, pid int, qname string) error
}

// PublisherConfig specifies the behavior of a Publisher.
type PublisherConfig struct {
	// Interval between two publications.
	//
	// If unset or zero, the interval is set to 5 seconds.
	// Published records expire after twice the interval.
	Interval time.Duration

	// HealthCheckFunc is called periodically with any errors encountered during ping to the
	// connected redis server.
	HealthCheckFunc func(error)

	// HealthCheckInterval specifies the interval between healthchecks.
	//
	// If unset or zero, the interval is set to 15 seconds.
	HealthCheckInterval time.Duration

	// Logger specifies the logger used by the publisher.
	//
	// If unset, default logger is used.
	Logger Logger

	// LogLevel specifies the minimum log level to enable.
	//
	// If unset, InfoLevel is used by default.
	LogLevel LogLevel
}

// Publisher periodically writes the statistics of registered queues to
// redis, where monitoring tools can read them.
type Publisher struct {
	logger *log.Logger
	broker statsBroker
	clock  timeutil.Clock

	// When a Publisher has been created with an existing Redis connection, we do
	// not want to close it.
	sharedConnection bool

	host     string
	pid      int
	interval time.Duration

	// called with the result of each redis ping; nil disables health checks.
	healthcheckFunc     func(error)
	healthcheckInterval time.Duration

	// closed to stop the publishing and health check goroutines.
	done chan struct{}
	wg   sync.WaitGroup

	mu      sync.Mutex
	sources []StatisticsSource
	state   queueState
}

const (
	defaultPublishInterval     = 5 * time.Second
	defaultHealthCheckInterval = 15 * time.Second
)

// NewPublisher returns a new Publisher given a redis connection option
// and publisher configuration.
func NewPublisher(r RedisConnOpt, cfg PublisherConfig) *Publisher {
	redisClient, ok := r.MakeRedisClient().(redis.UniversalClient)
	if !ok {
		panic(fmt.Sprintf("processqueue: unsupported RedisConnOpt type %T", r))
	}
	p := NewPublisherFromRedisClient(redisClient, cfg)
	p.sharedConnection = false
	return p
}

// NewPublisherFromRedisClient returns a new Publisher given a redis.UniversalClient
// and publisher configuration.
func NewPublisherFromRedisClient(c redis.UniversalClient, cfg PublisherConfig) *Publisher {
	return newPublisher(rdb.NewRDB(c), cfg)
}

func newPublisher(broker statsBroker, cfg PublisherConfig) *Publisher {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultPublishInterval
	}
	healthcheckInterval := cfg.HealthCheckInterval
	if healthcheckInterval <= 0 {
		healthcheckInterval = defaultHealthCheckInterval
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return &Publisher{
		logger:              newLogger(Settings{Logger: cfg.Logger, LogLevel: cfg.LogLevel}),
		broker:              broker,
		clock:               timeutil.NewRealClock(),
		sharedConnection:    true,
		host:                host,
		pid:                 os.Getpid(),
		interval:            interval,
		healthcheckFunc:     cfg.HealthCheckFunc,
		healthcheckInterval: healthcheckInterval,
		done:                make(chan struct{}),
		state:               queueStateNew,
	}
}

// Register adds a queue whose statistics are published from now on.
func (p *Publisher) Register(src StatisticsSource) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, src)
}

// Ping performs a ping against the redis connection.
func (p *Publisher) Ping() error {
	return p.broker.Ping()
}

// Start publishes the registered statistics right away and then once per interval.
func (p *Publisher) Start() error {
	p.mu.Lock()
	switch p.state {
	case queueStateActive:
		p.mu.Unlock()
		return fmt.Errorf("processqueue: the publisher is already running")
	case queueStateClosed:
		p.mu.Unlock()
		return ErrQueueClosed
	}
	p.state = queueStateActive
	p.mu.Unlock()

	p.logger.Info("Starting statistics publisher")
	if p.healthcheckFunc != nil {
		p.wg.Add(1)
		go p.runHealthCheck()
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.exec()
		timer := time.NewTimer(p.interval)
		for {
			select {
			case <-p.done:
				timer.Stop()
				p.clear()
				p.logger.Debug("Publisher done")
				return
			case <-timer.C:
				p.exec()
				timer.Reset(p.interval)
			}
		}
	}()
	return nil
}

// Shutdown stops publishing, removes the published records and closes the
// redis connection if the Publisher created it.
func (p *Publisher) Shutdown() {
	p.mu.Lock()
	prev := p.state
	p.state = queueStateClosed
	p.mu.Unlock()

	switch prev {
	case queueStateClosed:
		return
	case queueStateActive:
		p.logger.Debug("Publisher shutting down...")
		close(p.done)
		p.wg.Wait()
		p.logger.Info("Statistics publisher stopped")
	}
	if !p.sharedConnection {
		if err := p.broker.Close(); err != nil {
			p.logger.Errorf("Failed to close redis connection: %v", err)
		}
	}
}

// runHealthCheck pings redis every health check interval until done is closed.
func (p *Publisher) runHealthCheck() {
	defer p.wg.Done()
	timer := time.NewTimer(p.healthcheckInterval)
	defer timer.Stop()
	for {
		select {
		case <-p.done:
			p.logger.Debug("Health check done")
			return
		case <-timer.C:
			err := p.broker.Ping()
			if err != nil {
				p.logger.Warnf("Redis health check failed: %v", err)
			}
			p.healthcheckFunc(err)
			timer.Reset(p.healthcheckInterval)
		}
	}
}

func (p *Publisher) snapshot() []Statistics {
	p.mu.Lock()
	sources := append([]StatisticsSource(nil), p.sources...)
	p.mu.Unlock()
	stats := make([]Statistics, len(sources))
	for i, src := range sources {
		stats[i] = src.Statistics()
	}
	return stats
}

func (p *Publisher) exec() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	now := p.clock.Now()
	for _, s := range p.snapshot() {
		info := &base.QueueInfo{
			Host:                p.host,
			PID:                 p.pid,
			Name:                s.Name,
			Mode:                s.Mode.String(),
			Style:               s.Style.String(),
			Enabled:             s.Enabled,
			Processing:          s.Processing,
			Interval:            s.Interval,
			Timeout:             s.Timeout,
			MaxWorkers:          s.MaxWorkers,
			RunTime:             s.RunTime,
			ActiveThreads:       s.ActiveThreads,
			QueueCount:          s.QueueCount,
			ItemsBeingProcessed: s.ItemsBeingProcessed,
			TotalProcessed:      s.TotalProcessedItems,
			TotalFailed:         s.TotalFailedItems,
			TotalTimedOut:       s.TotalTimedOutItems,
			Published:           now,
		}
		// Note: Set TTL to be long enough so that it won't expire before we write again
		// and short enough to expire quickly once the process is shut down or killed.
		if err := p.broker.WriteQueueState(ctx, info, p.interval*2); err != nil {
			p.logger.Errorf("Failed to write statistics of queue %q: %v", s.Name, err)
		}
	}
}

func (p *Publisher) clear() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval)
	defer cancel()
	for _, s := range p.snapshot() {
		if err := p.broker.ClearQueueState(ctx, p.host, p.pid, s.Name); err != nil {
			p.logger.Errorf("Failed to clear statistics of queue %q: %v", s.Name, err)
		}
	}
}
