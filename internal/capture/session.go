// Package capture owns the camera pipeline and its recording state machine.
package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"clip-studio/internal/clock"
	"clip-studio/internal/device"
	"clip-studio/internal/dispatch"
	"clip-studio/internal/models"
	"clip-studio/internal/observe"
	"clip-studio/internal/segment"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// TickInterval is how often the recorded duration advances while recording
const TickInterval = 100 * time.Millisecond

// Options configures a Session
type Options struct {
	Provider   device.Provider
	Store      *segment.Store
	TempDir    string
	Limits     []models.RecordLimit
	Limit      models.RecordLimit
	Facing     models.DeviceFacing
	Clock      clock.Clock
	Dispatcher dispatch.Dispatcher
	Logger     *logger.Logger
}

// Session owns one camera, one microphone and one movie output.
// Device work runs on a serial queue; observers are notified through the dispatcher.
type Session struct {
	provider   device.Provider
	store      *segment.Store
	tempDir    string
	limits     []models.RecordLimit
	clock      clock.Clock
	dispatcher dispatch.Dispatcher
	logger     *logger.Logger
	queue      *dispatch.Serial

	mu          sync.Mutex
	status      models.CaptureStatus
	configErr   error
	state       models.RecordingState
	facing      models.DeviceFacing
	limit       models.RecordLimit
	takeElapsed time.Duration
	exporting   bool
	zoom        float64
	video       device.Input
	audio       device.Input
	output      device.MovieOutput
	current     *take
	stopPending bool
	closed      bool

	obs *observe.Set[Event]
}

type take struct {
	path      string
	startedAt time.Time
	results   <-chan device.RecordingResult
	ticker    clock.Ticker
	stop      chan struct{}
	stopOnce  sync.Once
}

func (t *take) halt() {
	t.stopOnce.Do(func() {
		close(t.stop)
		t.ticker.Stop()
	})
}

func (t *take) halted() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}

// NewSession creates an unconfigured session
func NewSession(opts Options) (*Session, error) {
	if opts.Provider == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "capture session requires a device provider", nil)
	}
	if opts.Store == nil {
		opts.Store = segment.NewStore()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if len(opts.Limits) == 0 {
		opts.Limits = models.DefaultRecordLimits()
	}
	if opts.Limit == (models.RecordLimit{}) {
		opts.Limit = opts.Limits[0]
	}
	if !containsLimit(opts.Limits, opts.Limit) {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("record limit %s is not allowed", opts.Limit), nil)
	}
	if !opts.Facing.Valid() {
		opts.Facing = models.FacingFront
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("capture")
	}
	if err := os.MkdirAll(opts.TempDir, 0o755); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to create capture temp directory", err)
	}

	return &Session{
		provider:   opts.Provider,
		store:      opts.Store,
		tempDir:    opts.TempDir,
		limits:     append([]models.RecordLimit(nil), opts.Limits...),
		clock:      opts.Clock,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		queue:      dispatch.NewSerial(32),
		status:     models.CaptureUnconfigured,
		state:      models.StateIdle,
		facing:     opts.Facing,
		limit:      opts.Limit,
		zoom:       1,
		obs:        observe.NewSet[Event](),
	}, nil
}

// run executes fn on the session queue and waits for it or for ctx
func (s *Session) run(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return apperrors.NewAppError(apperrors.ErrInvalidState, "capture session is closed", nil)
	}

	errCh := make(chan error, 1)
	s.queue.Do(func() { errCh <- fn() })
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Configure requests camera and microphone access once and wires the pipeline.
// Later calls return the outcome of the first without touching the hardware.
func (s *Session) Configure(ctx context.Context) error {
	return s.run(ctx, func() error {
		s.mu.Lock()
		if s.status != models.CaptureUnconfigured {
			err := s.configErr
			s.mu.Unlock()
			return err
		}
		facing := s.facing
		s.mu.Unlock()

		if err := s.authorize(ctx); err != nil {
			s.finishConfigure(models.CaptureUnauthorized, err)
			return err
		}

		video, audio, err := s.openInputs(ctx, facing)
		if err != nil {
			s.finishConfigure(models.CaptureFailed, err)
			return err
		}

		output, outErr := s.provider.NewMovieOutput()
		if outErr != nil {
			video.Close()
			audio.Close()
			err := apperrors.NewAppError(apperrors.ErrCannotAddOutput, "failed to add movie file output", outErr)
			s.finishConfigure(models.CaptureFailed, err)
			return err
		}

		s.mu.Lock()
		s.video = video
		s.audio = audio
		s.output = output
		s.zoom = video.Zoom()
		s.mu.Unlock()

		s.finishConfigure(models.CaptureConfigured, nil)
		s.logger.InfoWithFields("Capture session configured", map[string]interface{}{
			"facing": string(facing),
			"camera": video.Device().Name,
		})
		return nil
	})
}

func (s *Session) finishConfigure(status models.CaptureStatus, err error) {
	s.mu.Lock()
	s.status = status
	s.configErr = err
	ev := s.snapshotLocked(EventStatus, err)
	s.mu.Unlock()
	if err != nil {
		s.logger.ErrorWithOperation("configure", "Capture session configuration failed", err)
	}
	s.publish(ev)
}

func (s *Session) authorize(ctx context.Context) error {
	for _, media := range []device.MediaType{device.MediaVideo, device.MediaAudio} {
		status, err := s.provider.RequestAccess(ctx, media)
		if err != nil {
			return apperrors.NewAppErrorWithContext(apperrors.ErrAuthorizationUnknown,
				fmt.Sprintf("%s authorization could not be determined", media), err,
				map[string]interface{}{"media": string(media)})
		}

		var code apperrors.ErrorCode
		switch status {
		case device.AuthorizationGranted:
			continue
		case device.AuthorizationDenied:
			code = apperrors.ErrAuthorizationDenied
		case device.AuthorizationRestricted:
			code = apperrors.ErrAuthorizationRestricted
		default:
			code = apperrors.ErrAuthorizationUnknown
		}
		return apperrors.NewAppErrorWithContext(code,
			fmt.Sprintf("%s access %s", media, status), nil,
			map[string]interface{}{"media": string(media)})
	}
	return nil
}

// openInputs acquires the camera for facing and the microphone
func (s *Session) openInputs(ctx context.Context, facing models.DeviceFacing) (device.Input, device.Input, error) {
	cameraDev, ok := s.provider.DefaultDevice(device.MediaVideo, facing)
	if !ok {
		return nil, nil, apperrors.NewAppErrorWithContext(apperrors.ErrCameraUnavailable,
			fmt.Sprintf("no %s camera found", facing), nil,
			map[string]interface{}{"facing": string(facing)})
	}
	micDev, ok := s.provider.DefaultDevice(device.MediaAudio, "")
	if !ok {
		return nil, nil, apperrors.NewAppError(apperrors.ErrMicrophoneUnavailable, "no microphone found", nil)
	}

	video, err := s.provider.OpenInput(ctx, cameraDev)
	if err != nil {
		return nil, nil, apperrors.NewAppErrorWithContext(apperrors.ErrCannotAddInput,
			"failed to add camera input", err,
			map[string]interface{}{"device": cameraDev.Name})
	}
	audio, err := s.provider.OpenInput(ctx, micDev)
	if err != nil {
		video.Close()
		return nil, nil, apperrors.NewAppErrorWithContext(apperrors.ErrCannotAddInput,
			"failed to add microphone input", err,
			map[string]interface{}{"device": micDev.Name})
	}
	return video, audio, nil
}

func refused(action, reason string) error {
	return apperrors.NewAppErrorWithContext(apperrors.ErrOperationNotAllowed,
		fmt.Sprintf("cannot %s while %s", action, reason), nil,
		map[string]interface{}{"action": action})
}

func (s *Session) requireConfiguredLocked() error {
	if s.status != models.CaptureConfigured {
		return apperrors.NewAppErrorWithContext(apperrors.ErrInvalidState,
			"capture session is not configured", s.configErr,
			map[string]interface{}{"status": string(s.status)})
	}
	return nil
}

// StartRecording begins a new take in a fresh temp file
func (s *Session) StartRecording(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireConfiguredLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	switch state := s.state; {
	case state != models.StateIdle:
		s.mu.Unlock()
		return refused("start recording", string(state))
	case s.exporting:
		s.mu.Unlock()
		return refused("start recording", "exporting")
	case s.limit.Reached(s.store.TotalDuration()):
		s.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, "record limit reached", nil)
	}
	s.state = models.StateRecording
	s.takeElapsed = 0
	s.stopPending = false
	ev := s.snapshotLocked(EventState, nil)
	s.mu.Unlock()
	s.publish(ev)

	return s.run(ctx, func() error {
		if err := ctx.Err(); err != nil {
			s.abortStart(err)
			return err
		}

		path := filepath.Join(s.tempDir, "segment-"+uuid.NewString()+".mov")
		s.mu.Lock()
		video, audio, output := s.video, s.audio, s.output
		remaining := s.limit.Max - s.store.TotalDuration()
		s.mu.Unlock()

		results, err := output.StartRecording(path, video, audio, remaining)
		if err != nil {
			os.Remove(path)
			appErr := apperrors.NewAppError(apperrors.ErrRecordingOutput, "failed to start recording", err)
			s.abortStart(appErr)
			return appErr
		}

		tk := &take{
			path:      path,
			startedAt: s.clock.Now(),
			results:   results,
			ticker:    s.clock.NewTicker(TickInterval),
			stop:      make(chan struct{}),
		}
		s.mu.Lock()
		s.current = tk
		stop := s.stopPending
		s.stopPending = false
		s.mu.Unlock()

		s.logger.DebugWithFields("Recording started", map[string]interface{}{"file": filepath.Base(path)})
		if stop {
			// a stop arrived before the take existed
			return s.finalize()
		}
		go s.tickLoop(tk)
		return nil
	})
}

func (s *Session) abortStart(err error) {
	s.mu.Lock()
	s.state = models.StateIdle
	s.stopPending = false
	events := []Event{s.snapshotLocked(EventState, nil), s.snapshotLocked(EventError, err)}
	s.mu.Unlock()
	s.publish(events...)
}

func (s *Session) tickLoop(tk *take) {
	for {
		select {
		case <-tk.stop:
			return
		case <-tk.ticker.C():
			if s.advance(tk) {
				s.logger.Info("Record limit reached, stopping automatically")
				if err := s.StopRecording(context.Background()); err != nil {
					s.logger.ErrorWithError("Automatic stop failed", err)
				}
				return
			}
		}
	}
}

// advance adds one tick to the take and reports whether the limit was reached
func (s *Session) advance(tk *take) bool {
	s.mu.Lock()
	if s.current != tk || tk.halted() {
		s.mu.Unlock()
		return false
	}
	committed := s.store.TotalDuration()
	reached := false
	s.takeElapsed += TickInterval
	if committed+s.takeElapsed >= s.limit.Max {
		s.takeElapsed = s.limit.Max - committed
		reached = true
		tk.halt()
	}
	ev := s.snapshotLocked(EventDuration, nil)
	s.mu.Unlock()
	s.publish(ev)
	return reached
}

// StopRecording finalises the running take. It is a no-op when not recording.
func (s *Session) StopRecording(ctx context.Context) error {
	s.mu.Lock()
	if s.state != models.StateRecording {
		s.mu.Unlock()
		return nil
	}
	if s.current != nil {
		s.current.halt()
	} else {
		// the start job is still queued and finalises the take as soon as it exists
		s.stopPending = true
	}
	s.mu.Unlock()
	return s.run(ctx, s.finalize)
}

// finalize runs on the queue; a take is finalised exactly once
func (s *Session) finalize() error {
	s.mu.Lock()
	tk := s.current
	s.current = nil
	output := s.output
	s.mu.Unlock()
	if tk == nil {
		return nil
	}

	tk.halt()
	output.StopRecording()
	result := <-tk.results

	path := result.Path
	if path == "" {
		path = tk.path
	}

	s.mu.Lock()
	elapsed := s.takeElapsed
	s.takeElapsed = 0
	s.state = models.StateIdle

	if result.Err != nil {
		os.Remove(path)
		appErr := apperrors.NewAppErrorWithContext(apperrors.ErrRecordingOutput,
			"failed to finalize recording", result.Err,
			map[string]interface{}{"file": filepath.Base(path)})
		events := []Event{
			s.snapshotLocked(EventDuration, nil),
			s.snapshotLocked(EventState, nil),
			s.snapshotLocked(EventError, appErr),
		}
		s.mu.Unlock()
		s.logger.ErrorWithError("Recording output failed, partial take discarded", result.Err)
		s.publish(events...)
		return appErr
	}

	if elapsed <= 0 {
		os.Remove(path)
		ev := s.snapshotLocked(EventState, nil)
		s.mu.Unlock()
		s.logger.Warn("Take shorter than one tick discarded")
		s.publish(ev)
		return nil
	}

	seg := s.store.Append(path, elapsed, tk.startedAt)
	events := []Event{
		s.snapshotLocked(EventSegments, nil),
		s.snapshotLocked(EventState, nil),
	}
	s.mu.Unlock()

	s.logger.InfoWithFields("Segment recorded", map[string]interface{}{
		"index":    seg.Index,
		"duration": seg.Duration,
		"file":     filepath.Base(seg.Path),
	})
	s.publish(events...)
	return nil
}

// SwitchCamera rewires the session to the opposite facing.
// It is refused while recording or exporting; on failure the previous facing is restored.
func (s *Session) SwitchCamera(ctx context.Context) error {
	s.mu.Lock()
	if err := s.requireConfiguredLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	switch state := s.state; {
	case state != models.StateIdle:
		s.mu.Unlock()
		return refused("switch camera", string(state))
	case s.exporting:
		s.mu.Unlock()
		return refused("switch camera", "exporting")
	}
	s.state = models.StateSwitchingCamera
	ev := s.snapshotLocked(EventState, nil)
	s.mu.Unlock()
	s.publish(ev)

	return s.run(ctx, func() error {
		s.mu.Lock()
		from := s.facing
		oldVideo, oldAudio := s.video, s.audio
		s.mu.Unlock()

		if err := ctx.Err(); err != nil {
			s.finishSwitch(from, oldVideo, oldAudio, err)
			return err
		}

		// inputs are exclusive; the old pair must go before the new pair can be acquired
		oldVideo.Close()
		oldAudio.Close()

		to := from.Opposite()
		video, audio, err := s.openInputs(ctx, to)
		if err == nil {
			s.finishSwitch(to, video, audio, nil)
			s.logger.InfoWithFields("Camera switched", map[string]interface{}{"facing": string(to)})
			return nil
		}

		s.logger.WarnWithError("Camera switch failed, restoring previous facing", err)
		rbVideo, rbAudio, rbErr := s.openInputs(context.Background(), from)
		if rbErr != nil {
			s.mu.Lock()
			s.status = models.CaptureFailed
			s.configErr = rbErr
			s.video, s.audio = nil, nil
			s.mu.Unlock()
			s.logger.ErrorWithError("Rollback to previous camera failed", rbErr)
		}
		s.finishSwitch(from, rbVideo, rbAudio, err)
		return err
	})
}

func (s *Session) finishSwitch(facing models.DeviceFacing, video, audio device.Input, err error) {
	s.mu.Lock()
	s.state = models.StateIdle
	s.facing = facing
	if video != nil {
		s.video = video
		s.audio = audio
		s.zoom = video.Zoom()
	}
	events := []Event{
		s.snapshotLocked(EventFacing, nil),
		s.snapshotLocked(EventZoom, nil),
		s.snapshotLocked(EventState, nil),
	}
	if err != nil {
		events = append(events, s.snapshotLocked(EventStatus, nil), s.snapshotLocked(EventError, err))
	}
	s.mu.Unlock()
	s.publish(events...)
}

// SetZoom sets the camera zoom, silently clamped to the device range, and returns the applied factor
func (s *Session) SetZoom(factor float64) (float64, error) {
	s.mu.Lock()
	if err := s.requireConfiguredLocked(); err != nil {
		s.mu.Unlock()
		return 1, err
	}
	if err := s.video.SetZoom(factor); err != nil {
		s.mu.Unlock()
		return s.zoom, apperrors.NewAppError(apperrors.ErrInvalidState, "camera input is not available", err)
	}
	s.zoom = s.video.Zoom()
	applied := s.zoom
	ev := s.snapshotLocked(EventZoom, nil)
	s.mu.Unlock()
	s.publish(ev)
	return applied, nil
}

// SetRecordLimit selects another allowed limit while idle
func (s *Session) SetRecordLimit(limit models.RecordLimit) error {
	s.mu.Lock()
	if !containsLimit(s.limits, limit) {
		s.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("record limit %s is not allowed", limit), nil)
	}
	if s.state == models.StateRecording {
		s.mu.Unlock()
		return refused("change record limit", "recording")
	}
	if recorded := s.store.TotalDuration(); recorded > limit.Max {
		s.mu.Unlock()
		return apperrors.NewAppErrorWithContext(apperrors.ErrOperationNotAllowed,
			"more footage is already recorded than the new limit allows", nil,
			map[string]interface{}{"recorded": recorded, "limit": limit.Max})
	}
	s.limit = limit
	ev := s.snapshotLocked(EventLimit, nil)
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// ToggleRecordLimit moves to the next allowed limit
func (s *Session) ToggleRecordLimit() (models.RecordLimit, error) {
	next := models.NextRecordLimit(s.Limit(), s.Limits())
	if err := s.SetRecordLimit(next); err != nil {
		return s.Limit(), err
	}
	return next, nil
}

// BeginExport marks an export as running; recording and camera switches are refused until EndExport
func (s *Session) BeginExport() error {
	s.mu.Lock()
	switch {
	case s.state == models.StateRecording:
		s.mu.Unlock()
		return refused("export", "recording")
	case s.exporting:
		s.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrResourceBusy, "an export is already running", nil)
	}
	s.exporting = true
	ev := s.snapshotLocked(EventExport, nil)
	s.mu.Unlock()
	s.publish(ev)
	return nil
}

// EndExport clears the export mark
func (s *Session) EndExport() {
	s.mu.Lock()
	s.exporting = false
	ev := s.snapshotLocked(EventExport, nil)
	s.mu.Unlock()
	s.publish(ev)
}

// DeleteLastSegment removes the latest take and gives its time back to the budget
func (s *Session) DeleteLastSegment() (segment.Segment, error) {
	s.mu.Lock()
	if s.state == models.StateRecording || s.exporting {
		s.mu.Unlock()
		return segment.Segment{}, refused("delete segment", "busy")
	}
	seg, err := s.store.DeleteLast()
	if err != nil {
		s.mu.Unlock()
		return segment.Segment{}, apperrors.NewAppError(apperrors.ErrInvalidState, "no segment to delete", err)
	}
	ev := s.snapshotLocked(EventSegments, nil)
	s.mu.Unlock()
	s.publish(ev)
	return seg, nil
}

// DiscardAll deletes every recorded take and the given drafts, and resets the budget
func (s *Session) DiscardAll(drafts ...*models.DraftAsset) error {
	s.mu.Lock()
	if s.state == models.StateRecording {
		s.mu.Unlock()
		return refused("discard", "recording")
	}
	storeErr := s.store.DiscardAll()
	s.takeElapsed = 0
	ev := s.snapshotLocked(EventSegments, nil)
	s.mu.Unlock()

	firstErr := storeErr
	for _, d := range drafts {
		if d == nil {
			continue
		}
		if err := d.Discard(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.publish(ev)

	if firstErr != nil {
		return apperrors.NewAppError(apperrors.ErrInternalError, "failed to delete some media files", firstErr)
	}
	s.logger.Info("Recorded media discarded")
	return nil
}

// Close stops any recording and releases the hardware
func (s *Session) Close() error {
	if err := s.StopRecording(context.Background()); err != nil {
		s.logger.WarnWithError("Stopping recording during close failed", err)
	}
	err := s.run(context.Background(), func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.video != nil {
			s.video.Close()
		}
		if s.audio != nil {
			s.audio.Close()
		}
		var outErr error
		if s.output != nil {
			outErr = s.output.Close()
		}
		s.video, s.audio, s.output = nil, nil, nil
		return outErr
	})

	s.mu.Lock()
	alreadyClosed := s.closed
	s.closed = true
	s.mu.Unlock()
	if !alreadyClosed {
		s.queue.Close()
	}
	s.obs.Clear()
	if alreadyClosed {
		return nil
	}
	return err
}

func (s *Session) Status() models.CaptureStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) State() models.RecordingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Facing() models.DeviceFacing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.facing
}

func (s *Session) Limit() models.RecordLimit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

func (s *Session) Limits() []models.RecordLimit {
	return append([]models.RecordLimit(nil), s.limits...)
}

func (s *Session) Zoom() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.zoom
}

func (s *Session) IsExporting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exporting
}

// RecordedDuration is the budget used by committed takes plus the running take
func (s *Session) RecordedDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.TotalDuration() + s.takeElapsed
}

// RemainingDuration is what is left of the active record limit
func (s *Session) RemainingDuration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit.Remaining(s.store.TotalDuration() + s.takeElapsed)
}

// Store returns the segment store the session records into
func (s *Session) Store() *segment.Store {
	return s.store
}

func containsLimit(limits []models.RecordLimit, limit models.RecordLimit) bool {
	for _, l := range limits {
		if l == limit {
			return true
		}
	}
	return false
}
