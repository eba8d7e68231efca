// Package dispatch moves state updates onto the execution context that owns them.
package dispatch

import (
	"sync"
)

// Dispatcher runs fn on the context that owns UI-facing state
type Dispatcher interface {
	Do(fn func())
}

// Func adapts a function to a Dispatcher
type Func func(fn func())

func (f Func) Do(fn func()) {
	f(fn)
}

// Immediate runs fn on the calling goroutine. Used by tests and the CLI.
type Immediate struct{}

func (Immediate) Do(fn func()) {
	fn()
}

// Serial runs submitted functions one at a time, in submission order, on its own goroutine
type Serial struct {
	mu     sync.Mutex
	queue  chan func()
	done   chan struct{}
	closed bool
}

// NewSerial starts a serial queue with the given buffer size
func NewSerial(buffer int) *Serial {
	s := &Serial{
		queue: make(chan func(), buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *Serial) run() {
	defer close(s.done)
	for fn := range s.queue {
		fn()
	}
}

// Do enqueues fn; calls after Close are dropped
func (s *Serial) Do(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.queue <- fn
}

// Sync enqueues fn and waits for it to finish
func (s *Serial) Sync(fn func()) {
	finished := make(chan struct{})
	s.Do(func() {
		defer close(finished)
		fn()
	})
	select {
	case <-finished:
	case <-s.done:
	}
}

// Close drains queued work and stops the goroutine
func (s *Serial) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.queue)
	s.mu.Unlock()
	<-s.done
}
