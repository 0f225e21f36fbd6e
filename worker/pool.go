// Package worker runs background jobs on a bounded pool of goroutines.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alitto/pond"
)

var (
	ErrQueueFull   = errors.New("job queue full")
	ErrQueueClosed = errors.New("job queue closed")
)

// A Pool runs submitted jobs on at most a fixed number of workers fed by a
// bounded queue.
type Pool struct {
	logger *slog.Logger
	pool   *pond.WorkerPool
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New starts a pool with the given number of workers and queue capacity.
func New(logger *slog.Logger, workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
	p.pool = pond.New(workers, queue, pond.PanicHandler(p.recovered))
	return p
}

func (p *Pool) recovered(r interface{}) {
	p.logger.Error("Job panicked", "error", fmt.Sprint(r))
}

// Submit queues job without blocking. It fails with ErrQueueFull when every
// slot is taken and with ErrQueueClosed after Close.
func (p *Pool) Submit(job func(ctx context.Context)) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrQueueClosed
	}
	if !p.pool.TrySubmit(func() { job(p.ctx) }) {
		return ErrQueueFull
	}
	return nil
}

// Close stops accepting jobs and waits for queued jobs to finish. If ctx
// expires first, running jobs are cancelled and ctx's error is returned.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.pool.StopAndWait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
