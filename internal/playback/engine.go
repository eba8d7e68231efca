// Package playback drives one player over a draft asset: range-bounded play, position reporting and scrub/seek coordination.
package playback

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"clip-studio/internal/clock"
	"clip-studio/internal/dispatch"
	"clip-studio/internal/models"
	"clip-studio/internal/observe"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// TickInterval is the position reporting period while playing
const TickInterval = 100 * time.Millisecond

// Options configures an Engine
type Options struct {
	Player     Player
	Clock      clock.Clock
	Dispatcher dispatch.Dispatcher
	Logger     *logger.Logger
}

// Engine owns the player for one draft at a time.
//
// Position reports come from a 10 Hz ticker that only runs while playing and the scrub state is idle.
// Seeks never overlap: a seek requested while another is in flight replaces its target and
// waits for the in-flight one to finish.
type Engine struct {
	player     Player
	clock      clock.Clock
	dispatcher dispatch.Dispatcher
	logger     *logger.Logger

	loadMu sync.Mutex

	mu             sync.Mutex
	asset          *models.DraftAsset
	gen            int
	duration       time.Duration
	bounds         models.TimeRange
	position       time.Duration
	resumeAt       time.Duration
	rate           float64
	playing        bool
	endReached     bool
	scrub          models.ScrubState
	scrubSuspended bool
	ticker         clock.Ticker
	tickStop       chan struct{}
	unwatch        chan struct{}
	seeking        bool
	seekTarget     time.Duration
	seekGen        int
	seekWaiters    []chan error
	closed         bool

	obs *observe.Set[Event]
}

// NewEngine creates an unbound engine
func NewEngine(opts Options) (*Engine, error) {
	if opts.Player == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "playback engine requires a player", nil)
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("playback")
	}
	return &Engine{
		player:     opts.Player,
		clock:      opts.Clock,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		rate:       1,
		scrub:      models.ScrubIdleState(),
		obs:        observe.NewSet[Event](),
	}, nil
}

func errNotLoaded() error {
	return apperrors.NewAppError(apperrors.ErrInvalidState, "no draft is loaded", nil)
}

// Load binds the player to the draft's file. Position resets to the start of the active range.
// On failure the engine is left unbound.
func (e *Engine) Load(ctx context.Context, asset *models.DraftAsset) error {
	if asset == nil || asset.Released() {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "draft is not available for playback", nil)
	}

	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrInvalidState, "playback engine is closed", nil)
	}
	e.unbindLocked()
	e.mu.Unlock()

	duration, err := e.player.Load(ctx, asset.SourcePath())
	if err != nil {
		appErr := apperrors.NewAppErrorWithContext(apperrors.ErrPlaybackLoad, "failed to load draft", err,
			map[string]interface{}{"file": filepath.Base(asset.SourcePath())})
		e.logger.ErrorWithError("Playback load failed", appErr)
		e.mu.Lock()
		ev := e.snapshotLocked(EventError, appErr)
		e.mu.Unlock()
		e.publish(ev)
		return appErr
	}

	bounds := asset.ActiveRange()
	if bounds.Upper > duration {
		bounds.Upper = duration
	}
	if bounds.Lower >= bounds.Upper {
		bounds = models.TimeRange{Lower: 0, Upper: duration}
	}

	e.mu.Lock()
	e.gen++
	e.asset = asset
	e.duration = duration
	e.bounds = bounds
	e.position = bounds.Lower
	e.resumeAt = bounds.Lower
	e.rate = asset.PlaybackRate()
	e.endReached = false
	e.scrub = models.ScrubIdleState()
	stop := make(chan struct{})
	e.unwatch = stop
	go e.watchEnd(e.gen, e.player.Ended(), stop)
	ev := e.snapshotLocked(EventLoaded, nil)
	e.mu.Unlock()

	e.logger.InfoWithFields("Draft loaded", map[string]interface{}{
		"draft":    asset.ID(),
		"duration": duration,
		"range":    bounds.String(),
	})
	e.publish(ev)
	return nil
}

// unbindLocked drops the current draft, if any
func (e *Engine) unbindLocked() {
	if e.asset == nil {
		return
	}
	e.pauseLocked()
	if e.unwatch != nil {
		close(e.unwatch)
		e.unwatch = nil
	}
	for _, w := range e.seekWaiters {
		w <- apperrors.NewAppError(apperrors.ErrInvalidState, "draft was unloaded during seek", nil)
	}
	e.seekWaiters = nil
	e.gen++
	e.asset = nil
	e.duration = 0
	e.bounds = models.TimeRange{}
	e.position = 0
	e.resumeAt = 0
	e.endReached = false
	e.scrub = models.ScrubIdleState()
}

// TogglePlayPause pauses when playing. Otherwise it seeks to the last authoritative position,
// or to the start of the range after the end was reached, and plays at the configured rate.
func (e *Engine) TogglePlayPause(ctx context.Context) error {
	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	if e.playing {
		e.pauseLocked()
		ev := e.snapshotLocked(EventPlayState, nil)
		e.mu.Unlock()
		e.publish(ev)
		return nil
	}
	target := e.resumeAt
	if e.endReached || target >= e.bounds.Upper {
		target = e.bounds.Lower
	}
	e.mu.Unlock()
	return e.resume(ctx, target)
}

func (e *Engine) resume(ctx context.Context, target time.Duration) error {
	if err := e.Seek(ctx, target); err != nil {
		return err
	}

	e.mu.Lock()
	if e.asset == nil || e.playing {
		e.mu.Unlock()
		return nil
	}
	if err := e.player.Play(e.rate); err != nil {
		appErr := apperrors.NewAppError(apperrors.ErrPlaybackLoad, "failed to start playback", err)
		ev := e.snapshotLocked(EventError, appErr)
		e.mu.Unlock()
		e.publish(ev)
		return appErr
	}
	e.playing = true
	e.endReached = false
	e.startTickerLocked()
	ev := e.snapshotLocked(EventPlayState, nil)
	e.mu.Unlock()
	e.publish(ev)
	return nil
}

// pauseLocked stops the player and records where it stopped
func (e *Engine) pauseLocked() {
	if !e.playing {
		return
	}
	e.player.Pause()
	e.playing = false
	e.stopTickerLocked()
	pos := e.bounds.Clamp(e.player.CurrentTime())
	if e.scrub.AllowsTicks() && !e.seeking {
		e.position = pos
	}
	e.resumeAt = pos
}

// markEndLocked pauses at the upper bound so the next play starts from the lower bound
func (e *Engine) markEndLocked() {
	e.pauseLocked()
	e.endReached = true
	e.position = e.bounds.Upper
	e.resumeAt = e.bounds.Upper
}

func (e *Engine) startTickerLocked() {
	if e.ticker != nil || !e.playing || !e.scrub.AllowsTicks() {
		return
	}
	tk := e.clock.NewTicker(TickInterval)
	stop := make(chan struct{})
	e.ticker = tk
	e.tickStop = stop
	go e.tickLoop(tk, stop)
}

func (e *Engine) stopTickerLocked() {
	if e.ticker == nil {
		return
	}
	close(e.tickStop)
	e.ticker.Stop()
	e.ticker = nil
	e.tickStop = nil
}

func (e *Engine) tickLoop(tk clock.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-tk.C():
			e.onTick(tk)
		}
	}
}

func (e *Engine) onTick(tk clock.Ticker) {
	e.mu.Lock()
	if e.ticker != tk || !e.playing {
		e.mu.Unlock()
		return
	}
	var ev Event
	pos := e.player.CurrentTime()
	switch {
	case pos < e.bounds.Lower && e.scrub.AllowsTicks() && !e.seeking:
		// the lower bound moved past the player
		e.position = e.bounds.Lower
		e.resumeAt = e.bounds.Lower
		ev = e.snapshotLocked(EventPosition, nil)
	case pos >= e.bounds.Upper:
		e.markEndLocked()
		ev = e.snapshotLocked(EventPlayState, nil)
	case e.scrub.AllowsTicks() && !e.seeking:
		e.position = pos
		e.resumeAt = pos
		ev = e.snapshotLocked(EventPosition, nil)
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.publish(ev)
}

func (e *Engine) watchEnd(gen int, ended <-chan struct{}, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ended:
			e.mu.Lock()
			if e.gen != gen || !e.playing {
				e.mu.Unlock()
				continue
			}
			e.markEndLocked()
			ev := e.snapshotLocked(EventPlayState, nil)
			e.mu.Unlock()
			e.publish(ev)
		}
	}
}

// Seek moves playback to t, clamped to the active range.
// While a seek is in flight, later requests replace its target and wait for the final outcome.
// A failed native seek is retried once. Reaching the upper bound pauses and marks the end of range.
// Waiters queued for a draft that is unloaded mid-seek fail; a seek on the next draft takes over the loop.
func (e *Engine) Seek(ctx context.Context, t time.Duration) error {
	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	t = e.bounds.Clamp(t)
	e.seekTarget = t
	e.seekGen = e.gen
	if e.seeking {
		done := make(chan error, 1)
		e.seekWaiters = append(e.seekWaiters, done)
		e.mu.Unlock()
		select {
		case err := <-done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	e.seeking = true
	gen := e.gen
	e.mu.Unlock()

	target := t
	for {
		reached, err := e.nativeSeek(ctx, target)

		e.mu.Lock()
		if e.seekGen == e.gen && (e.gen != gen || (err == nil && e.seekTarget != target)) {
			gen, target = e.gen, e.seekTarget
			e.mu.Unlock()
			continue
		}

		e.seeking = false
		waiters := e.seekWaiters
		e.seekWaiters = nil
		var events []Event
		switch {
		case err != nil:
			err = apperrors.NewAppErrorWithContext(apperrors.ErrPlaybackSeek, "seek failed", err,
				map[string]interface{}{"target": target})
			if e.gen == gen {
				events = append(events, e.snapshotLocked(EventError, err))
			}
		case e.gen == gen:
			reached = e.bounds.Clamp(reached)
			e.position = reached
			e.resumeAt = reached
			if reached >= e.bounds.Upper {
				e.markEndLocked()
				events = append(events, e.snapshotLocked(EventPlayState, nil))
			} else {
				e.endReached = false
				events = append(events, e.snapshotLocked(EventPosition, nil))
			}
		}
		e.mu.Unlock()

		for _, w := range waiters {
			w <- err
		}
		e.publish(events...)
		return err
	}
}

func (e *Engine) nativeSeek(ctx context.Context, t time.Duration) (time.Duration, error) {
	reached, err := e.player.Seek(ctx, t)
	if err == nil || ctx.Err() != nil {
		return reached, err
	}
	e.logger.WarnWithFields("Seek failed, retrying once", map[string]interface{}{
		"target": t,
		"error":  err.Error(),
	})
	return e.player.Seek(ctx, t)
}

// BeginScrub hands the reported position to the user. Position ticks stop until EndScrub.
func (e *Engine) BeginScrub() error {
	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	if e.scrubSuspended {
		e.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, "scrubbing is suspended while the range is edited", nil)
	}
	e.scrub = models.ScrubStartedState()
	e.stopTickerLocked()
	ev := e.snapshotLocked(EventScrub, nil)
	e.mu.Unlock()
	e.publish(ev)
	return nil
}

// EndScrub issues one authoritative seek to t and returns the scrub state to idle
func (e *Engine) EndScrub(ctx context.Context, t time.Duration) error {
	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	if e.scrub.Phase() != models.ScrubStarted {
		e.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrInvalidState, "no scrub in progress", nil)
	}
	t = e.bounds.Clamp(t)
	e.scrub = models.ScrubEndedState(t)
	ev := e.snapshotLocked(EventScrub, nil)
	e.mu.Unlock()
	e.publish(ev)

	err := e.Seek(ctx, t)

	e.mu.Lock()
	if e.scrub.Phase() == models.ScrubEnded {
		e.scrub = models.ScrubIdleState()
		e.startTickerLocked()
	}
	ev = e.snapshotLocked(EventScrub, nil)
	e.mu.Unlock()
	e.publish(ev)
	return err
}

// SetScrubSuspended disables user scrubbing while another control owns the timeline.
// Suspending drops a scrub in progress without seeking.
func (e *Engine) SetScrubSuspended(suspended bool) {
	e.mu.Lock()
	if e.scrubSuspended == suspended {
		e.mu.Unlock()
		return
	}
	e.scrubSuspended = suspended
	if suspended && e.scrub.Phase() == models.ScrubStarted {
		e.scrub = models.ScrubIdleState()
		e.startTickerLocked()
	}
	ev := e.snapshotLocked(EventScrub, nil)
	e.mu.Unlock()
	e.publish(ev)
}

// SetRate pauses, changes the rate and resumes from the current position if playback was running
func (e *Engine) SetRate(ctx context.Context, rate float64) error {
	if rate <= 0 || rate > models.MaxPlaybackRate {
		return apperrors.NewAppErrorWithContext(apperrors.ErrInvalidInput, "playback rate out of range", nil,
			map[string]interface{}{"rate": rate})
	}

	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	wasPlaying := e.playing
	e.pauseLocked()
	e.rate = rate
	if err := e.asset.SetPlaybackRate(rate); err != nil {
		e.logger.WarnWithError("Draft rejected playback rate", err)
	}
	target := e.resumeAt
	ev := e.snapshotLocked(EventRate, nil)
	e.mu.Unlock()
	e.publish(ev)

	if !wasPlaying {
		return nil
	}
	return e.resume(ctx, target)
}

// SetBounds narrows playback to r. A position outside r is clamped into it,
// and playback already past the new upper bound stops there.
func (e *Engine) SetBounds(r models.TimeRange) error {
	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return errNotLoaded()
	}
	if err := r.ValidateWithin(e.duration); err != nil {
		e.mu.Unlock()
		return apperrors.NewAppErrorWithContext(apperrors.ErrInvalidInput, "invalid playback bounds", err,
			map[string]interface{}{"range": r.String()})
	}
	e.bounds = r
	e.resumeAt = r.Clamp(e.resumeAt)
	e.position = r.Clamp(e.position)
	if e.playing && e.player.CurrentTime() >= r.Upper {
		e.markEndLocked()
	}
	ev := e.snapshotLocked(EventBounds, nil)
	e.mu.Unlock()
	e.publish(ev)
	return nil
}

// Unload stops playback and drops the bound draft, as when it is handed to the uploader
func (e *Engine) Unload() {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if e.asset == nil {
		e.mu.Unlock()
		return
	}
	e.unbindLocked()
	ev := e.snapshotLocked(EventLoaded, nil)
	e.mu.Unlock()
	e.publish(ev)
}

// Close unbinds and releases the player. Observers are dropped.
func (e *Engine) Close() error {
	e.loadMu.Lock()
	defer e.loadMu.Unlock()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.unbindLocked()
	e.mu.Unlock()

	e.obs.Clear()
	return e.player.Close()
}

// Asset returns the bound draft, or nil
func (e *Engine) Asset() *models.DraftAsset {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.asset
}

// Position returns the reported position
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.position
}

func (e *Engine) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *Engine) Bounds() models.TimeRange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bounds
}

func (e *Engine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// EndReached reports whether playback stopped at the upper bound
func (e *Engine) EndReached() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.endReached
}

func (e *Engine) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *Engine) Scrub() models.ScrubState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrub
}

func (e *Engine) ScrubSuspended() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.scrubSuspended
}
