// Package segment keeps the ordered takes recorded in one capture session.
package segment

import (
	"errors"
	"os"
	"sync"
	"time"
)

// Segment is one completed take
type Segment struct {
	Index     int
	Path      string
	Duration  time.Duration
	StartedAt time.Time
}

// ErrEmpty is returned when an operation needs at least one segment
var ErrEmpty = errors.New("segment store is empty")

// Store owns the temp files of completed takes until they are released or discarded.
// Entries are kept in recording start order.
type Store struct {
	mu       sync.RWMutex
	segments []Segment
	next     int
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{}
}

// Append records a finished take. Takes must be appended in the order they started.
func (s *Store) Append(path string, duration time.Duration, startedAt time.Time) Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg := Segment{Index: s.next, Path: path, Duration: duration, StartedAt: startedAt}
	s.next++
	s.segments = append(s.segments, seg)
	return seg
}

// Segments returns a copy of the takes in recording order
func (s *Store) Segments() []Segment {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Segment(nil), s.segments...)
}

// Paths returns the take files in recording order
func (s *Store) Paths() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	paths := make([]string, len(s.segments))
	for i, seg := range s.segments {
		paths[i] = seg.Path
	}
	return paths
}

// TotalDuration returns the summed duration of all takes
func (s *Store) TotalDuration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total time.Duration
	for _, seg := range s.segments {
		total += seg.Duration
	}
	return total
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// DeleteLast removes the most recent take and its file
func (s *Store) DeleteLast() (Segment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		return Segment{}, ErrEmpty
	}
	last := s.segments[len(s.segments)-1]
	if err := removeFile(last.Path); err != nil {
		return Segment{}, err
	}
	s.segments = s.segments[:len(s.segments)-1]
	return last, nil
}

// DiscardAll deletes every take file and empties the store.
// Removal continues past failures; the first error is returned.
func (s *Store) DiscardAll() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var firstErr error
	for _, seg := range s.segments {
		if err := removeFile(seg.Path); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.segments = nil
	return firstErr
}

// Release hands every take to the caller and empties the store without touching the files
func (s *Store) Release() []Segment {
	s.mu.Lock()
	defer s.mu.Unlock()
	released := s.segments
	s.segments = nil
	return released
}

// Restore puts released takes back, ahead of any recorded since, when a merge fails
func (s *Store) Restore(segments []Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.segments = append(append([]Segment(nil), segments...), s.segments...)
}

func removeFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
