package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

// Config holds worker pool settings
type Config struct {
	Workers int `mapstructure:"workers"` // concurrent workers
}

// DefaultConfig returns the default pool configuration
func DefaultConfig() *Config {
	return &Config{Workers: 64}
}

// Statistics tracks submitted/completed/failed task counts
type Statistics struct {
	mu        sync.RWMutex
	Submitted int64
	Completed int64
	Failed    int64
}

func (s *Statistics) inc(field *int64) {
	s.mu.Lock()
	*field++
	s.mu.Unlock()
}

// Get returns a copy of the current counters
func (s *Statistics) Get() Statistics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Statistics{
		Submitted: s.Submitted,
		Completed: s.Completed,
		Failed:    s.Failed,
	}
}

// Pool executes background units of work. Delayed submissions back the
// delivered-copy cleanup: each unit runs independently and a failing unit
// never affects its siblings.
type Pool struct {
	pool   *ants.Pool
	stats  *Statistics
	logger *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

// New creates a worker pool
func New(cfg *Config, logger *zap.Logger) (*Pool, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	antsPool, err := ants.NewPool(cfg.Workers,
		ants.WithPanicHandler(func(v interface{}) {
			logger.Error("worker panic", zap.Any("error", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		pool:   antsPool,
		stats:  &Statistics{},
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		timers: make(map[*time.Timer]struct{}),
	}, nil
}

// Submit schedules a task for immediate execution
func (p *Pool) Submit(task func()) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	p.stats.inc(&p.stats.Submitted)
	err := p.pool.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				p.stats.inc(&p.stats.Failed)
				p.logger.Error("task panic", zap.Any("error", r))
				return
			}
			p.stats.inc(&p.stats.Completed)
		}()
		task()
	})
	if err != nil {
		p.stats.inc(&p.stats.Failed)
	}
	return err
}

// SubmitAfter schedules a task to run once after the given delay. The task
// is fire-and-forget: it cannot be cancelled individually once scheduled.
func (p *Pool) SubmitAfter(delay time.Duration, task func()) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		p.timerMu.Lock()
		delete(p.timers, timer)
		p.timerMu.Unlock()

		if err := p.Submit(task); err != nil {
			p.logger.Warn("delayed task dropped", zap.Error(err))
		}
	})

	p.timerMu.Lock()
	p.timers[timer] = struct{}{}
	p.timerMu.Unlock()
	return nil
}

// Running returns the number of running workers
func (p *Pool) Running() int {
	return p.pool.Running()
}

// Stats returns a snapshot of the task counters
func (p *Pool) Stats() Statistics {
	return p.stats.Get()
}

// Shutdown stops accepting work and releases the pool. Pending delayed
// tasks are dropped.
func (p *Pool) Shutdown() {
	p.cancel()

	p.timerMu.Lock()
	for t := range p.timers {
		t.Stop()
	}
	p.timers = make(map[*time.Timer]struct{})
	p.timerMu.Unlock()

	p.pool.Release()
}
