package capture

import (
	"time"

	"clip-studio/internal/models"
)

// EventKind says which part of the session changed
type EventKind int

const (
	EventStatus EventKind = iota
	EventState
	EventDuration
	EventFacing
	EventZoom
	EventLimit
	EventSegments
	EventExport
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventStatus:
		return "status"
	case EventState:
		return "state"
	case EventDuration:
		return "duration"
	case EventFacing:
		return "facing"
	case EventZoom:
		return "zoom"
	case EventLimit:
		return "limit"
	case EventSegments:
		return "segments"
	case EventExport:
		return "export"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is a snapshot of the session taken when something changed
type Event struct {
	Kind      EventKind
	Status    models.CaptureStatus
	State     models.RecordingState
	Facing    models.DeviceFacing
	Limit     models.RecordLimit
	Recorded  time.Duration
	Remaining time.Duration
	Zoom      float64
	Segments  int
	Exporting bool
	Err       error
}

// Subscribe registers fn for session events until the returned function is called or the session closes.
// Events arrive through the session dispatcher. With an inline dispatcher fn runs on the session queue
// and must not call blocking session operations.
func (s *Session) Subscribe(fn func(Event)) (unsubscribe func()) {
	return s.obs.Add(fn)
}

func (s *Session) snapshotLocked(kind EventKind, err error) Event {
	recorded := s.store.TotalDuration() + s.takeElapsed
	return Event{
		Kind:      kind,
		Status:    s.status,
		State:     s.state,
		Facing:    s.facing,
		Limit:     s.limit,
		Recorded:  recorded,
		Remaining: s.limit.Remaining(recorded),
		Zoom:      s.zoom,
		Segments:  s.store.Len(),
		Exporting: s.exporting,
		Err:       err,
	}
}

func (s *Session) publish(events ...Event) {
	s.obs.Notify(s.dispatcher.Do, events...)
}
