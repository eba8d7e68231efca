package playback

import (
	"time"

	"clip-studio/internal/models"
)

// EventKind says which part of the engine changed
type EventKind int

const (
	EventLoaded EventKind = iota
	EventPosition
	EventPlayState
	EventRate
	EventBounds
	EventScrub
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventLoaded:
		return "loaded"
	case EventPosition:
		return "position"
	case EventPlayState:
		return "play_state"
	case EventRate:
		return "rate"
	case EventBounds:
		return "bounds"
	case EventScrub:
		return "scrub"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a snapshot of the engine taken when something changed
type Event struct {
	Kind           EventKind
	Loaded         bool
	Position       time.Duration
	Duration       time.Duration
	Bounds         models.TimeRange
	Playing        bool
	EndReached     bool
	Rate           float64
	Scrub          models.ScrubState
	ScrubSuspended bool
	Err            error
}

// Subscribe registers fn for engine events until the returned function is called or the engine closes.
// With an inline dispatcher fn runs on the goroutine that caused the change and must not call back into the engine.
func (e *Engine) Subscribe(fn func(Event)) (unsubscribe func()) {
	return e.obs.Add(fn)
}

func (e *Engine) snapshotLocked(kind EventKind, err error) Event {
	return Event{
		Kind:           kind,
		Loaded:         e.asset != nil,
		Position:       e.position,
		Duration:       e.duration,
		Bounds:         e.bounds,
		Playing:        e.playing,
		EndReached:     e.endReached,
		Rate:           e.rate,
		Scrub:          e.scrub,
		ScrubSuspended: e.scrubSuspended,
		Err:            err,
	}
}

func (e *Engine) publish(events ...Event) {
	e.obs.Notify(e.dispatcher.Do, events...)
}
