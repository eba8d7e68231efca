// Package clock abstracts wall time and tickers so recording and playback timing can be driven by hand.
package clock

import (
	"sync"
	"time"
)

// Ticker delivers ticks until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Clock is the source of time for timers and position reporting
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// System is the real clock
type System struct{}

func (System) Now() time.Time {
	return time.Now()
}

func (System) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time {
	return s.t.C
}

func (s *systemTicker) Stop() {
	s.t.Stop()
}

// Manual is a clock that only moves when told to
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*ManualTicker
}

// NewManual creates a manual clock reading start
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d without firing tickers
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

func (m *Manual) NewTicker(d time.Duration) Ticker {
	t := &ManualTicker{
		clock:    m,
		interval: d,
		c:        make(chan time.Time),
		stopped:  make(chan struct{}),
	}
	m.mu.Lock()
	m.tickers = append(m.tickers, t)
	m.mu.Unlock()
	return t
}

// LastTicker returns the most recently created ticker, or nil
func (m *Manual) LastTicker() *ManualTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// TickerCount returns how many tickers were created
func (m *Manual) TickerCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tickers)
}

// ManualTicker fires only when Tick is called
type ManualTicker struct {
	clock    *Manual
	interval time.Duration
	c        chan time.Time
	stopOnce sync.Once
	stopped  chan struct{}
}

func (t *ManualTicker) C() <-chan time.Time {
	return t.c
}

func (t *ManualTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopped) })
}

// Stopped reports whether Stop was called
func (t *ManualTicker) Stopped() bool {
	select {
	case <-t.stopped:
		return true
	default:
	}
	return false
}

// Tick advances the clock by the ticker interval and blocks until the tick is received.
// It returns false if the ticker was stopped first.
func (t *ManualTicker) Tick() bool {
	t.clock.Advance(t.interval)
	select {
	case t.c <- t.clock.Now():
		return true
	case <-t.stopped:
		return false
	}
}

// TickN calls Tick up to n times and returns how many ticks were delivered
func (t *ManualTicker) TickN(n int) int {
	for i := 0; i < n; i++ {
		if !t.Tick() {
			return i
		}
	}
	return n
}
