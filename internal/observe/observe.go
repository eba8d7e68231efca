// Package observe keeps ordered observer registrations with unsubscribe handles.
package observe

import "sync"

// Set holds observers of T in registration order
type Set[T any] struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(T)
}

// NewSet creates an empty set
func NewSet[T any]() *Set[T] {
	return &Set[T]{fns: make(map[int]func(T))}
}

// Add registers fn. The returned function removes it and is safe to call more than once.
func (s *Set[T]) Add(fn func(T)) (remove func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.next
	s.next++
	s.fns[id] = fn
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns the current observers ordered by registration
func (s *Set[T]) Snapshot() []func(T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fns := make([]func(T), 0, len(s.fns))
	for id := 0; id < s.next; id++ {
		if fn, ok := s.fns[id]; ok {
			fns = append(fns, fn)
		}
	}
	return fns
}

// Len returns the number of registered observers
func (s *Set[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fns)
}

// Clear removes every observer
func (s *Set[T]) Clear() {
	s.mu.Lock()
	s.fns = make(map[int]func(T))
	s.mu.Unlock()
}

// Notify delivers events to a snapshot of the observers through do, in order.
// Nothing is scheduled when there are no observers or no events.
func (s *Set[T]) Notify(do func(func()), events ...T) {
	fns := s.Snapshot()
	if len(fns) == 0 || len(events) == 0 {
		return
	}
	do(func() {
		for _, ev := range events {
			for _, fn := range fns {
				fn(ev)
			}
		}
	})
}
