// Package scheduler runs keyed, delayed cleanup callbacks.
package scheduler

import (
	"log/slog"
	"sync"
	"time"
)

type Scheduler struct {
	mu      sync.Mutex
	timers  map[string]*time.Timer
	fns     map[string]func()
	closed  bool
	logger  *slog.Logger
	running sync.WaitGroup
}

func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		timers: make(map[string]*time.Timer),
		fns:    make(map[string]func()),
		logger: logger,
	}
}

// After runs fn once after d. It returns false when a callback with the same
// key is already pending or the scheduler has been flushed.
func (s *Scheduler) After(key string, d time.Duration, fn func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	if _, ok := s.timers[key]; ok {
		return false
	}
	s.fns[key] = fn
	s.running.Add(1)
	s.timers[key] = time.AfterFunc(d, func() {
		defer s.running.Done()
		if f := s.take(key); f != nil {
			s.run(key, f)
		}
	})
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Flush runs every pending callback now and rejects new ones. It waits for
// callbacks that were already firing.
func (s *Scheduler) Flush() {
	s.mu.Lock()
	s.closed = true
	pending := s.stopLocked()
	s.mu.Unlock()

	for key, fn := range pending {
		s.run(key, fn)
	}
	s.running.Wait()
}

// stopLocked stops the timers that have not fired and hands their callbacks
// back. A timer that already fired keeps its entry so take still finds it.
func (s *Scheduler) stopLocked() map[string]func() {
	pending := make(map[string]func(), len(s.fns))
	for key, t := range s.timers {
		if !t.Stop() {
			continue
		}
		pending[key] = s.fns[key]
		s.running.Done()
		delete(s.timers, key)
		delete(s.fns, key)
	}
	return pending
}

func (s *Scheduler) take(key string) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn := s.fns[key]
	delete(s.fns, key)
	delete(s.timers, key)
	return fn
}

func (s *Scheduler) run(key string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled task panicked", "key", key, "panic", r)
		}
	}()
	fn()
}
