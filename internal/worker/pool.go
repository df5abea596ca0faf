package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrPoolClosed      = errors.New("worker pool is shut down")
	ErrShutdownTimeout = errors.New("worker pool drain timed out")
)

// Pool is the supervised set of fire-and-forget runners. Panics are
// recovered and logged here so a bad job never takes the process down.
type Pool struct {
	processor *Processor
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewPool(processor *Processor, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		processor: processor,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Go starts fn on its own goroutine. The context passed to fn is cancelled
// by Shutdown.
func (p *Pool) Go(name string, fn func(ctx context.Context)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("[worker] task panicked", "task", name, "panic", r)
			}
		}()
		fn(p.ctx)
	}()
	return nil
}

// Submit launches the runner for task and returns immediately.
func (p *Pool) Submit(task Task) error {
	return p.Go("job "+task.ID.String(), func(ctx context.Context) {
		if err := p.processor.Process(ctx, task); err != nil {
			p.logger.Warn("[worker] job finished with error", "job_id", task.ID, "error", err)
		}
	})
}

// Shutdown rejects new work, cancels running tasks and waits up to timeout
// for them to return.
func (p *Pool) Shutdown(timeout time.Duration) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("[worker] pool stopped")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w after %s", ErrShutdownTimeout, timeout)
	}
}

// Slots caps how many inferences run at once.
type Slots struct {
	ch chan struct{}
}

func NewSlots(n int) *Slots {
	if n <= 0 {
		n = 1
	}
	return &Slots{ch: make(chan struct{}, n)}
}

// Acquire blocks until a slot is free or ctx is done. The returned release
// func is safe to call more than once.
func (s *Slots) Acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-s.ch })
	}, nil
}

func (s *Slots) InUse() int { return len(s.ch) }

func (s *Slots) Cap() int { return cap(s.ch) }
