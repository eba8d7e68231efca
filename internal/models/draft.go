package models

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// TimeRange is a closed interval on an asset timeline
type TimeRange struct {
	Lower time.Duration `json:"lower"`
	Upper time.Duration `json:"upper"`
}

// Duration returns the width of the range
func (r TimeRange) Duration() time.Duration {
	return r.Upper - r.Lower
}

// Contains reports whether t lies inside the range
func (r TimeRange) Contains(t time.Duration) bool {
	return t >= r.Lower && t <= r.Upper
}

// Clamp moves t into the range
func (r TimeRange) Clamp(t time.Duration) time.Duration {
	if t < r.Lower {
		return r.Lower
	}
	if t > r.Upper {
		return r.Upper
	}
	return t
}

// ValidateWithin checks 0 <= lower < upper <= max
func (r TimeRange) ValidateWithin(max time.Duration) error {
	if r.Lower < 0 {
		return &ValidationError{Field: "active_range", Message: "range lower bound cannot be negative"}
	}
	if r.Lower >= r.Upper {
		return &ValidationError{Field: "active_range", Message: "range lower bound must be before upper bound"}
	}
	if r.Upper > max {
		return &ValidationError{Field: "active_range", Message: fmt.Sprintf("range upper bound exceeds duration %s", max)}
	}
	return nil
}

func (r TimeRange) String() string {
	return fmt.Sprintf("[%s, %s]", r.Lower, r.Upper)
}

// PublishMetadata carries the edit fields handed to the uploader with the file
type PublishMetadata struct {
	Caption          string `json:"caption"`
	CommentsDisabled bool   `json:"comments_disabled"`
	LikeCountHidden  bool   `json:"like_count_hidden"`
}

// ErrDraftReleased is returned when a draft's file has already been handed off
var ErrDraftReleased = errors.New("draft file ownership already transferred")

// DraftAsset is a produced clip. It owns the file at SourcePath until Release or Discard.
type DraftAsset struct {
	mu sync.RWMutex

	id               string
	sourcePath       string
	originalDuration time.Duration
	activeRange      TimeRange
	thumbnail        image.Image
	playbackRate     float64
	meta             PublishMetadata
	createdAt        time.Time
	released         bool
}

// NewDraftAsset creates a draft over path with the active range covering the whole clip
func NewDraftAsset(path string, duration time.Duration) (*DraftAsset, error) {
	if path == "" {
		return nil, &ValidationError{Field: "source_path", Message: "draft source path cannot be empty"}
	}
	if duration <= 0 {
		return nil, &ValidationError{Field: "original_duration", Message: "draft duration must be positive"}
	}
	return &DraftAsset{
		id:               ulid.Make().String(),
		sourcePath:       path,
		originalDuration: duration,
		activeRange:      TimeRange{Lower: 0, Upper: duration},
		playbackRate:     1.0,
		createdAt:        time.Now(),
	}, nil
}

// Derive creates the draft that replaces d after a further compositor pass.
// Edit metadata, rate and thumbnail carry over; the range resets to the full new clip.
func (d *DraftAsset) Derive(path string, duration time.Duration) (*DraftAsset, error) {
	next, err := NewDraftAsset(path, duration)
	if err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	next.meta = d.meta
	next.playbackRate = d.playbackRate
	next.thumbnail = d.thumbnail
	return next, nil
}

func (d *DraftAsset) ID() string {
	return d.id
}

func (d *DraftAsset) SourcePath() string {
	return d.sourcePath
}

func (d *DraftAsset) OriginalDuration() time.Duration {
	return d.originalDuration
}

func (d *DraftAsset) CreatedAt() time.Time {
	return d.createdAt
}

// ActiveRange returns the part of the clip that will be kept
func (d *DraftAsset) ActiveRange() TimeRange {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.activeRange
}

// SetActiveRange replaces the active range; it must satisfy 0 <= lower < upper <= duration
func (d *DraftAsset) SetActiveRange(r TimeRange) error {
	if err := r.ValidateWithin(d.originalDuration); err != nil {
		return err
	}
	d.mu.Lock()
	d.activeRange = r
	d.mu.Unlock()
	return nil
}

// IsTrimmed reports whether the active range is narrower than the clip
func (d *DraftAsset) IsTrimmed() bool {
	r := d.ActiveRange()
	return r.Lower > 0 || r.Upper < d.originalDuration
}

func (d *DraftAsset) Thumbnail() image.Image {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.thumbnail
}

func (d *DraftAsset) SetThumbnail(img image.Image) {
	d.mu.Lock()
	d.thumbnail = img
	d.mu.Unlock()
}

func (d *DraftAsset) PlaybackRate() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.playbackRate
}

// MaxPlaybackRate is the fastest rate a draft can be played at
const MaxPlaybackRate = 4.0

// SetPlaybackRate accepts rates in (0, MaxPlaybackRate]
func (d *DraftAsset) SetPlaybackRate(rate float64) error {
	if rate <= 0 || rate > MaxPlaybackRate {
		return &ValidationError{Field: "playback_rate", Message: "playback rate must be in (0, 4]"}
	}
	d.mu.Lock()
	d.playbackRate = rate
	d.mu.Unlock()
	return nil
}

func (d *DraftAsset) Metadata() PublishMetadata {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.meta
}

func (d *DraftAsset) SetCaption(caption string) {
	d.mu.Lock()
	d.meta.Caption = caption
	d.mu.Unlock()
}

func (d *DraftAsset) SetCommentsDisabled(disabled bool) {
	d.mu.Lock()
	d.meta.CommentsDisabled = disabled
	d.mu.Unlock()
}

func (d *DraftAsset) SetLikeCountHidden(hidden bool) {
	d.mu.Lock()
	d.meta.LikeCountHidden = hidden
	d.mu.Unlock()
}

// Released reports whether the backing file is no longer owned by d
func (d *DraftAsset) Released() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.released
}

// Release transfers ownership of the backing file to the caller and returns its path.
// After Release, Discard leaves the file alone.
func (d *DraftAsset) Release() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return "", ErrDraftReleased
	}
	d.released = true
	return d.sourcePath, nil
}

// Discard deletes the backing file if d still owns it
func (d *DraftAsset) Discard() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.released {
		return nil
	}
	d.released = true
	if err := os.Remove(d.sourcePath); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
