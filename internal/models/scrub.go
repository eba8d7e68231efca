package models

import (
	"fmt"
	"image"
	"time"
)

// ScrubPhase tags the variant held by a ScrubState
type ScrubPhase int

const (
	ScrubIdle ScrubPhase = iota
	ScrubStarted
	ScrubEnded
)

func (p ScrubPhase) String() string {
	switch p {
	case ScrubStarted:
		return "scrub_started"
	case ScrubEnded:
		return "scrub_ended"
	default:
		return "idle"
	}
}

// ScrubState is idle, scrubStarted, or scrubEnded carrying the seek target.
// The zero value is idle.
type ScrubState struct {
	phase  ScrubPhase
	target time.Duration
}

// ScrubIdleState returns the idle variant
func ScrubIdleState() ScrubState {
	return ScrubState{phase: ScrubIdle}
}

// ScrubStartedState returns the variant used while the user drags the position
func ScrubStartedState() ScrubState {
	return ScrubState{phase: ScrubStarted}
}

// ScrubEndedState returns the variant that carries the authoritative seek target
func ScrubEndedState(target time.Duration) ScrubState {
	return ScrubState{phase: ScrubEnded, target: target}
}

// Phase returns the variant tag
func (s ScrubState) Phase() ScrubPhase {
	return s.phase
}

// Target returns the seek target; ok is false unless the phase is ScrubEnded
func (s ScrubState) Target() (target time.Duration, ok bool) {
	if s.phase != ScrubEnded {
		return 0, false
	}
	return s.target, true
}

// AllowsTicks reports whether periodic position updates may write the reported position
func (s ScrubState) AllowsTicks() bool {
	return s.phase == ScrubIdle
}

func (s ScrubState) String() string {
	if s.phase == ScrubEnded {
		return fmt.Sprintf("%s(%s)", s.phase, s.target)
	}
	return s.phase.String()
}

// ThumbnailImage is one slice of the trim timeline strip
type ThumbnailImage struct {
	Index  int
	Offset time.Duration
	Image  image.Image // nil when the frame could not be sampled
}

// Blank reports whether the slice has no frame
func (t ThumbnailImage) Blank() bool {
	return t.Image == nil
}
