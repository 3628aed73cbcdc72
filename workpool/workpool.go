// CLAUDE:SUMMARY Process-wide bounded worker pool (weighted semaphore) returning typed futures for blocking comparison steps.
// Package workpool runs blocking work on a bounded number of goroutines.
//
// A Pool is created once per process and injected into the components that
// offload work. Submit returns a Future immediately; the task starts as soon
// as a slot is free. Tasks whose context ends while they wait for a slot
// never start. Awaiting a future with a canceled context returns at once,
// and the task's eventual result is discarded.
//
//	pool := workpool.New(workpool.Config{Size: 2})
//	fa := workpool.Submit(ctx, pool, "load original", loadA)
//	fb := workpool.Submit(ctx, pool, "load modified", loadB)
//	a, errA := fa.Await(ctx)
//	b, errB := fb.Await(ctx)
package workpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("workpool: closed")

// Config sizes the pool.
type Config struct {
	// Size is the maximum number of tasks running at once (default: 2).
	Size int `json:"size" yaml:"size"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Size <= 0 {
		c.Size = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Pool bounds concurrent execution of submitted tasks.
type Pool struct {
	sem    *semaphore.Weighted
	size   int
	logger *slog.Logger

	wg       sync.WaitGroup
	mu       sync.RWMutex
	closed   bool
	running  atomic.Int64
	peak     atomic.Int64
	finished atomic.Int64
}

// New creates a pool.
func New(cfg Config) *Pool {
	cfg.defaults()
	return &Pool{
		sem:    semaphore.NewWeighted(int64(cfg.Size)),
		size:   cfg.Size,
		logger: cfg.Logger,
	}
}

// Size returns the configured bound.
func (p *Pool) Size() int { return p.size }

// Stats is a snapshot of pool activity.
type Stats struct {
	Size     int   `json:"size"`
	Running  int64 `json:"running"`
	Peak     int64 `json:"peak"`
	Finished int64 `json:"finished"`
}

// Stats returns current counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Size:     p.size,
		Running:  p.running.Load(),
		Peak:     p.peak.Load(),
		Finished: p.finished.Load(),
	}
}

// Close stops accepting work and waits for started and queued tasks to
// finish or give up.
func (p *Pool) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.wg.Wait()
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Await blocks until the task finishes or ctx ends. On ctx end the task
// keeps running to completion, but its result is dropped.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done is closed when the task has finished.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Submit schedules fn on the pool. name labels the task in logs.
func Submit[T any](ctx context.Context, p *Pool, name string, fn func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		f.err = ErrClosed
		close(f.done)
		return f
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	go func() {
		defer p.wg.Done()
		defer close(f.done)

		queued := time.Now()
		if err := p.sem.Acquire(ctx, 1); err != nil {
			f.err = err
			return
		}
		defer p.sem.Release(1)
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}

		n := p.running.Add(1)
		for {
			peak := p.peak.Load()
			if n <= peak || p.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		start := time.Now()
		f.val, f.err = run(ctx, fn)
		p.running.Add(-1)
		p.finished.Add(1)

		p.logger.Debug("workpool: task done",
			"task", name,
			"wait_ms", start.Sub(queued).Milliseconds(),
			"run_ms", time.Since(start).Milliseconds(),
			"error", f.err)
	}()
	return f
}

// run calls fn, converting a panic into an error.
func run[T any](ctx context.Context, fn func(context.Context) (T, error)) (val T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			val, err = zero, fmt.Errorf("workpool: task panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return fn(ctx)
}
