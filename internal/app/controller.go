package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clip-studio/internal/capture"
	"clip-studio/internal/compositor"
	"clip-studio/internal/dispatch"
	"clip-studio/internal/manager"
	"clip-studio/internal/models"
	"clip-studio/internal/playback"
	"clip-studio/internal/trim"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// LinkExpiration is how long a copied download link stays valid
const LinkExpiration = 24 * time.Hour

// EditorView defines the window the controller drives.
// Every call is made through the controller's dispatcher.
type EditorView interface {
	SetStatus(status string)
	EnableActions(enabled bool)
	ShowCapture(ev capture.Event)
	ShowPlayback(ev playback.Event)
	ShowTrim(ev trim.Event)
	// ShowDraft replaces the editor contents; a nil draft clears them
	ShowDraft(draft *models.DraftAsset, thumbs []models.ThumbnailImage)
	ShowUploads(records []*models.UploadRecord)
	ShowUploadProgress(p models.UploadProgress)
	ShowError(message, suggestion string, canRetry bool)
	// TimelineWidth is the pixel width available to the thumbnail strip
	TimelineWidth() int
	SetActions(actions Actions)
}

// Actions is what the view may ask of the controller. Calls block until the operation finishes.
type Actions interface {
	ToggleRecording() error
	SwitchCamera() error
	ToggleRecordLimit() error
	SetZoom(factor float64) error
	DeleteLastSegment() error
	DiscardAll() error
	FinishRecording() error
	CancelExport()
	ImportFile(path string) error

	TogglePlayPause() error
	BeginScrub() error
	EndScrub(t time.Duration) error
	SetRate(rate float64) error

	BeginTrim(h trim.Handle) error
	DragTrim(t time.Duration) (bool, error)
	EndTrim() error
	ApplyTrim() error

	Publish(meta models.PublishMetadata) error
	PauseUpload(id string) error
	ResumeUpload(id string) error
	CancelUpload(id string) error
	RetryUpload(id string) error
	RemoveUpload(id string) error
	CopyLink(id string) (string, error)

	RetryLast() error
	LoadSettings() (*models.ApplicationSettings, error)
	SaveSettings(settings *models.ApplicationSettings) error
	SyncNow() (*manager.SyncResult, error)
}

// Options wires a Controller to its components
type Options struct {
	Session    *capture.Session
	Compositor *compositor.Compositor
	Engine     *playback.Engine
	Sampler    trim.FrameSampler
	Uploads    manager.UploadManager
	Settings   manager.SettingsManager
	// Sync and Cleanup are optional
	Sync    manager.SyncManager
	Cleanup *manager.CleanupManager

	TempDir         string
	MinSliceWidth   int
	ThumbnailHeight int
	Dispatcher      dispatch.Dispatcher
	Logger          *logger.Logger
}

// Controller coordinates between the editor window and the capture, editing and upload components
type Controller struct {
	session         *capture.Session
	compositor      *compositor.Compositor
	engine          *playback.Engine
	sampler         trim.FrameSampler
	uploads         manager.UploadManager
	settings        manager.SettingsManager
	syncManager     manager.SyncManager
	cleanup         *manager.CleanupManager
	tempDir         string
	minSliceWidth   int
	thumbnailHeight int
	dispatcher      dispatch.Dispatcher
	logger          *logger.Logger

	view EditorView

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	draft       *models.DraftAsset
	trim        *trim.Controller
	unsubTrim   func()
	export      *compositor.Task
	retry       func() error
	defaultRate float64
	unsubs      []func()
}

// NewController creates a controller and hands its actions to view
func NewController(opts Options, view EditorView) (*Controller, error) {
	switch {
	case opts.Session == nil, opts.Compositor == nil, opts.Engine == nil:
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "controller requires capture, compositor and playback", nil)
	case opts.Uploads == nil, opts.Settings == nil:
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "controller requires upload and settings managers", nil)
	case view == nil:
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "controller requires a view", nil)
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("controller")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		session:         opts.Session,
		compositor:      opts.Compositor,
		engine:          opts.Engine,
		sampler:         opts.Sampler,
		uploads:         opts.Uploads,
		settings:        opts.Settings,
		syncManager:     opts.Sync,
		cleanup:         opts.Cleanup,
		tempDir:         opts.TempDir,
		minSliceWidth:   opts.MinSliceWidth,
		thumbnailHeight: opts.ThumbnailHeight,
		dispatcher:      opts.Dispatcher,
		logger:          opts.Logger,
		view:            view,
		ctx:             ctx,
		cancel:          cancel,
		defaultRate:     1,
	}

	c.unsubs = append(c.unsubs,
		c.session.Subscribe(view.ShowCapture),
		c.engine.Subscribe(view.ShowPlayback),
	)
	view.SetActions(c)
	return c, nil
}

// Start configures the camera and starts background housekeeping.
// A configuration failure is reported and returned; importing files still works.
func (c *Controller) Start() error {
	c.logger.Info("Starting editor controller")
	c.setStatus("Starting camera...")

	settings, err := c.settings.LoadSettings()
	if err != nil {
		c.logger.WarnWithError("Failed to load settings, using defaults", err)
		settings = c.settings.GetDefaultSettings()
	}
	c.applySettings(settings)

	if _, err := c.uploads.RecoverInterrupted(); err != nil {
		c.logger.WarnWithError("Failed to recover interrupted uploads", err)
	}
	c.refreshUploads()

	if c.cleanup != nil && settings.AutoCleanup {
		c.cleanup.Start()
	}
	if c.syncManager != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.performInitialSync()
		}()
	}

	if err := c.session.Configure(c.ctx); err != nil {
		return c.handleError("configure", err, nil)
	}
	c.setStatus("Ready")
	c.enableActions(true)
	return nil
}

// Stop cancels running work and releases every component
func (c *Controller) Stop() {
	c.logger.Info("Stopping editor controller")
	c.cancel()
	c.CancelExport()
	if c.cleanup != nil {
		c.cleanup.Stop()
	}
	c.uploads.Close()
	c.wg.Wait()

	c.mu.Lock()
	unsubs := append(c.unsubs, c.unsubTrim)
	c.unsubs, c.unsubTrim = nil, nil
	c.mu.Unlock()
	for _, unsub := range unsubs {
		if unsub != nil {
			unsub()
		}
	}

	if err := c.engine.Close(); err != nil {
		c.logger.WarnWithError("Failed to close player", err)
	}
	if err := c.session.Close(); err != nil {
		c.logger.WarnWithError("Failed to close capture session", err)
	}
}

// Draft returns the draft being edited, or nil
func (c *Controller) Draft() *models.DraftAsset {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.draft
}

// ProtectedPaths lists media the temp cleanup must not delete
func (c *Controller) ProtectedPaths() []string {
	paths := c.session.Store().Paths()
	if d := c.Draft(); d != nil && !d.Released() {
		paths = append(paths, d.SourcePath())
	}
	return paths
}

// Capture

func (c *Controller) ToggleRecording() error {
	if c.session.State() == models.StateRecording {
		return c.handleError("stop_recording", c.session.StopRecording(c.ctx), nil)
	}
	return c.handleError("start_recording", c.session.StartRecording(c.ctx), nil)
}

func (c *Controller) SwitchCamera() error {
	return c.handleError("switch_camera", c.session.SwitchCamera(c.ctx), nil)
}

func (c *Controller) ToggleRecordLimit() error {
	_, err := c.session.ToggleRecordLimit()
	return c.handleError("toggle_record_limit", err, nil)
}

// SetZoom applies factor; the session clamps it to the camera range
func (c *Controller) SetZoom(factor float64) error {
	_, err := c.session.SetZoom(factor)
	return c.handleError("zoom", err, nil)
}

func (c *Controller) DeleteLastSegment() error {
	_, err := c.session.DeleteLastSegment()
	return c.handleError("delete_segment", err, nil)
}

// DiscardAll deletes the recorded takes and the current draft
func (c *Controller) DiscardAll() error {
	draft := c.closeDraft()
	if err := c.session.DiscardAll(draft); err != nil {
		return c.handleError("discard", err, nil)
	}
	c.setStatus("Discarded")
	return nil
}

// FinishRecording merges the recorded takes into a new draft and opens it
func (c *Controller) FinishRecording() error {
	draft, err := c.merge()
	if err != nil {
		return c.handleError("merge", err, c.FinishRecording)
	}
	return c.handleError("load_draft", c.openDraft(draft), c.ReloadDraft)
}

func (c *Controller) merge() (*models.DraftAsset, error) {
	store := c.session.Store()
	if store.Len() == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidState, "nothing has been recorded", nil)
	}
	if err := c.session.BeginExport(); err != nil {
		return nil, err
	}
	defer c.session.EndExport()

	c.setStatus("Merging takes...")
	segments := store.Release()
	result, err := c.runExport(c.compositor.StartMerge(c.ctx, segments))
	if err != nil {
		store.Restore(segments)
		return nil, err
	}

	draft, err := models.NewDraftAsset(result.Path, result.Duration)
	if err != nil {
		os.Remove(result.Path)
		return nil, apperrors.NewAppError(apperrors.ErrCompositionFailed, "merged clip is unusable", err)
	}
	c.applyDefaultRate(draft)
	return draft, nil
}

// runExport records task as the cancellable export and waits for it
func (c *Controller) runExport(task *compositor.Task) (compositor.Result, error) {
	c.mu.Lock()
	c.export = task
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.export = nil
		c.mu.Unlock()
	}()
	return task.Wait(context.Background())
}

// CancelExport stops a running merge or crop; its inputs are kept
func (c *Controller) CancelExport() {
	c.mu.Lock()
	task := c.export
	c.mu.Unlock()
	if task != nil {
		task.Cancel()
	}
}

// ImportFile copies a gallery file into the temp directory and opens it as a draft.
// The original file is left untouched.
func (c *Controller) ImportFile(path string) error {
	draft, err := c.importFile(path)
	if err != nil {
		return c.handleError("import", err, nil)
	}
	return c.handleError("load_draft", c.openDraft(draft), c.ReloadDraft)
}

func (c *Controller) importFile(path string) (*models.DraftAsset, error) {
	if c.session.State() == models.StateRecording || c.session.IsExporting() {
		return nil, apperrors.NewAppError(apperrors.ErrOperationNotAllowed, "cannot import while recording or exporting", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "file to import is missing", err,
			map[string]interface{}{"file": filepath.Base(path)})
	}
	if !info.Mode().IsRegular() {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "only regular files can be imported", nil)
	}

	duration, err := c.compositor.Probe(c.ctx, path)
	if err != nil {
		return nil, err
	}

	dst := filepath.Join(c.tempDir, "import-"+uuid.NewString()+strings.ToLower(filepath.Ext(path)))
	if err := copyFile(path, dst); err != nil {
		os.Remove(dst)
		return nil, apperrors.NewAppError(apperrors.ErrInternalError, "failed to copy imported file", err)
	}

	draft, err := models.NewDraftAsset(dst, duration)
	if err != nil {
		os.Remove(dst)
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "imported file has no usable duration", err)
	}
	c.applyDefaultRate(draft)
	c.logger.InfoWithFields("File imported", map[string]interface{}{
		"file":     filepath.Base(path),
		"duration": duration,
	})
	return draft, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// openDraft makes draft the current one, discarding any previous draft, and binds playback and trim to it
func (c *Controller) openDraft(draft *models.DraftAsset) error {
	c.mu.Lock()
	prev := c.draft
	c.draft = draft
	c.mu.Unlock()

	if prev != nil && prev != draft {
		if err := prev.Discard(); err != nil {
			c.logger.WarnWithError("Failed to delete replaced draft", err)
		}
	}
	return c.bindDraft(draft)
}

// ReloadDraft binds playback and trim to the current draft again
func (c *Controller) ReloadDraft() error {
	draft, err := c.currentDraft()
	if err != nil {
		return c.handleError("load_draft", err, nil)
	}
	return c.handleError("load_draft", c.bindDraft(draft), c.ReloadDraft)
}

func (c *Controller) bindDraft(draft *models.DraftAsset) error {
	if err := c.engine.Load(c.ctx, draft); err != nil {
		return err
	}

	tc, err := trim.NewController(draft, trim.Options{
		Playback:        c.engine,
		Sampler:         c.sampler,
		MinSliceWidth:   c.minSliceWidth,
		ThumbnailHeight: c.thumbnailHeight,
		Dispatcher:      c.dispatcher,
		Logger:          logger.NewWithComponent("trim"),
	})
	if err != nil {
		return err
	}
	unsub := tc.Subscribe(c.view.ShowTrim)

	c.mu.Lock()
	prevUnsub := c.unsubTrim
	c.trim, c.unsubTrim = tc, unsub
	c.mu.Unlock()
	if prevUnsub != nil {
		prevUnsub()
	}

	thumbs, err := tc.Thumbnails(c.ctx, c.view.TimelineWidth())
	if err != nil {
		c.logger.WarnWithError("Thumbnail strip unavailable", err)
	}
	c.ui(func() { c.view.ShowDraft(draft, thumbs) })
	c.setStatus(fmt.Sprintf("Draft ready (%s)", draft.OriginalDuration().Round(100*time.Millisecond)))
	c.enableActions(true)
	return nil
}

// closeDraft unbinds the current draft and clears the editor; it returns the draft
func (c *Controller) closeDraft() *models.DraftAsset {
	c.mu.Lock()
	draft, unsub := c.draft, c.unsubTrim
	c.draft, c.trim, c.unsubTrim = nil, nil, nil
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
	c.engine.Unload()
	c.ui(func() { c.view.ShowDraft(nil, nil) })
	return draft
}

func (c *Controller) currentDraft() (*models.DraftAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.draft == nil || c.draft.Released() {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidState, "no draft is open", nil)
	}
	return c.draft, nil
}

func (c *Controller) currentTrim() (*trim.Controller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.trim == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidState, "no draft is open", nil)
	}
	return c.trim, nil
}

// Playback

func (c *Controller) TogglePlayPause() error {
	return c.handleError("play", c.engine.TogglePlayPause(c.ctx), nil)
}

func (c *Controller) BeginScrub() error {
	return c.handleError("scrub", c.engine.BeginScrub(), nil)
}

func (c *Controller) EndScrub(t time.Duration) error {
	return c.handleError("scrub", c.engine.EndScrub(c.ctx, t), nil)
}

// SetRate changes the playback rate of the engine and the draft
func (c *Controller) SetRate(rate float64) error {
	draft, err := c.currentDraft()
	if err != nil {
		return c.handleError("rate", err, nil)
	}
	if err := draft.SetPlaybackRate(rate); err != nil {
		return c.handleError("rate", apperrors.NewAppError(apperrors.ErrInvalidInput, err.Error(), err), nil)
	}
	return c.handleError("rate", c.engine.SetRate(c.ctx, rate), nil)
}

func (c *Controller) pausePlayback() {
	if !c.engine.IsPlaying() {
		return
	}
	if err := c.engine.TogglePlayPause(c.ctx); err != nil {
		c.logger.WarnWithError("Failed to pause playback", err)
	}
}

// Trim

func (c *Controller) BeginTrim(h trim.Handle) error {
	tc, err := c.currentTrim()
	if err != nil {
		return c.handleError("trim", err, nil)
	}
	return c.handleError("trim", tc.BeginDrag(h), nil)
}

// DragTrim moves the handle being dragged. A rejected move leaves the selection unchanged.
func (c *Controller) DragTrim(t time.Duration) (bool, error) {
	tc, err := c.currentTrim()
	if err != nil {
		return false, c.handleError("trim", err, nil)
	}
	var accepted bool
	switch tc.Dragging() {
	case trim.HandleLower:
		accepted, err = tc.DragLower(t)
	case trim.HandleUpper:
		accepted, err = tc.DragUpper(t)
	default:
		err = apperrors.NewAppError(apperrors.ErrInvalidState, "no handle is being dragged", nil)
	}
	return accepted, c.handleError("trim", err, nil)
}

func (c *Controller) EndTrim() error {
	tc, err := c.currentTrim()
	if err != nil {
		return c.handleError("trim", err, nil)
	}
	return c.handleError("trim", tc.EndDrag(), nil)
}

// ApplyTrim crops the draft to its active range and opens the result. An untrimmed draft is left as is.
func (c *Controller) ApplyTrim() error {
	next, err := c.crop()
	if err != nil {
		return c.handleError("crop", err, c.ApplyTrim)
	}
	if next == nil {
		return nil
	}
	return c.handleError("load_draft", c.openDraft(next), c.ReloadDraft)
}

// crop returns nil without error when the current draft needs no cropping
func (c *Controller) crop() (*models.DraftAsset, error) {
	draft, err := c.currentDraft()
	if err != nil {
		return nil, err
	}
	if !draft.IsTrimmed() {
		return nil, nil
	}
	if err := c.session.BeginExport(); err != nil {
		return nil, err
	}
	defer c.session.EndExport()

	c.pausePlayback()
	c.setStatus("Cropping...")
	r := draft.ActiveRange()
	result, err := c.runExport(c.compositor.StartCrop(c.ctx, draft.SourcePath(), r))
	if err != nil {
		return nil, err
	}

	// the compositor consumed the source file
	if _, err := draft.Release(); err != nil {
		c.logger.WarnWithError("Cropped draft was already released", err)
	}
	next, err := draft.Derive(result.Path, result.Duration)
	if err != nil {
		os.Remove(result.Path)
		return nil, apperrors.NewAppError(apperrors.ErrCompositionFailed, "cropped clip is unusable", err)
	}
	return next, nil
}

// Publishing

// Publish crops the draft if needed and hands it to the uploader with meta.
// The editor is cleared once the upload has taken the file.
func (c *Controller) Publish(meta models.PublishMetadata) error {
	retry := func() error { return c.Publish(meta) }
	draft, err := c.currentDraft()
	if err != nil {
		return c.handleError("publish", err, nil)
	}
	draft.SetCaption(strings.TrimSpace(meta.Caption))
	draft.SetCommentsDisabled(meta.CommentsDisabled)
	draft.SetLikeCountHidden(meta.LikeCountHidden)

	if draft.IsTrimmed() {
		next, err := c.crop()
		if err != nil {
			return c.handleError("crop", err, retry)
		}
		if err := c.openDraft(next); err != nil {
			return c.handleError("load_draft", err, c.ReloadDraft)
		}
		draft = next
	}

	c.pausePlayback()
	u, err := c.uploads.Publish(c.ctx, draft)
	if err != nil {
		return c.handleError("publish", err, retry)
	}
	c.closeDraft()
	c.setStatus("Publishing...")
	c.refreshUploads()
	c.watchUpload(u)
	return nil
}

func (c *Controller) watchUpload(u *manager.Upload) {
	unsub := u.Subscribe(c.view.ShowUploadProgress)
	id := u.ID()
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer unsub()
		<-u.Done()
		err := u.Wait(context.Background())
		c.refreshUploads()
		switch {
		case err == nil:
			c.setStatus("Published")
		case apperrors.IsCanceled(err):
			c.setStatus("Upload canceled")
		default:
			c.handleError("upload", err, func() error { return c.RetryUpload(id) })
		}
	}()
}

func (c *Controller) activeUpload(id string) (*manager.Upload, error) {
	u, ok := c.uploads.Active(id)
	if !ok {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrOperationNotAllowed, "upload is not running", nil,
			map[string]interface{}{"upload": id})
	}
	return u, nil
}

func (c *Controller) PauseUpload(id string) error {
	u, err := c.activeUpload(id)
	if err == nil {
		err = u.Pause()
	}
	return c.handleError("pause_upload", err, nil)
}

func (c *Controller) ResumeUpload(id string) error {
	u, err := c.activeUpload(id)
	if err == nil {
		err = u.Resume()
	}
	return c.handleError("resume_upload", err, nil)
}

func (c *Controller) CancelUpload(id string) error {
	u, err := c.activeUpload(id)
	if err != nil {
		return c.handleError("cancel_upload", err, nil)
	}
	u.Cancel()
	return nil
}

// RetryUpload publishes a failed or canceled upload again from its kept file
func (c *Controller) RetryUpload(id string) error {
	u, err := c.uploads.Retry(c.ctx, id)
	if err != nil {
		return c.handleError("retry_upload", err, nil)
	}
	c.setStatus("Publishing...")
	c.refreshUploads()
	c.watchUpload(u)
	return nil
}

func (c *Controller) RemoveUpload(id string) error {
	if err := c.uploads.Remove(c.ctx, id); err != nil {
		return c.handleError("remove_upload", err, nil)
	}
	c.refreshUploads()
	return nil
}

// CopyLink returns a time-limited download link for a published clip
func (c *Controller) CopyLink(id string) (string, error) {
	url, err := c.uploads.PresignURL(c.ctx, id, LinkExpiration)
	if err != nil {
		return "", c.handleError("copy_link", err, nil)
	}
	return url, nil
}

func (c *Controller) refreshUploads() {
	records, err := c.uploads.History()
	if err != nil {
		c.logger.ErrorWithError("Failed to load upload history", err)
		return
	}
	c.ui(func() { c.view.ShowUploads(records) })
}

// RetryLast re-invokes the operation behind the last retryable failure
func (c *Controller) RetryLast() error {
	c.mu.Lock()
	retry := c.retry
	c.retry = nil
	c.mu.Unlock()
	if retry == nil {
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, "nothing to retry", nil)
	}
	return retry()
}

// Settings

func (c *Controller) LoadSettings() (*models.ApplicationSettings, error) {
	settings, err := c.settings.LoadSettings()
	if err != nil {
		return nil, c.handleError("load_settings", err, nil)
	}
	return settings, nil
}

// SaveSettings persists settings and applies them to the running components
func (c *Controller) SaveSettings(settings *models.ApplicationSettings) error {
	if err := c.settings.SaveSettings(settings); err != nil {
		return c.handleError("save_settings", err, nil)
	}
	c.applySettings(settings)
	if c.cleanup != nil {
		if settings.AutoCleanup {
			c.cleanup.Start()
		} else {
			c.cleanup.Stop()
		}
	}
	c.logger.Info("Application settings saved")
	c.setStatus("Settings saved")
	return nil
}

func (c *Controller) applySettings(settings *models.ApplicationSettings) {
	c.mu.Lock()
	c.defaultRate = settings.PlaybackRate
	c.mu.Unlock()

	if c.cleanup != nil {
		c.cleanup.SetMaxAge(settings.GetCleanupMaxAge())
	}
	limit := settings.RecordLimit(c.session.Limits())
	if limit != c.session.Limit() {
		if err := c.session.SetRecordLimit(limit); err != nil {
			c.logger.WarnWithError("Default record limit not applied", err)
		}
	}
}

func (c *Controller) applyDefaultRate(draft *models.DraftAsset) {
	c.mu.Lock()
	rate := c.defaultRate
	c.mu.Unlock()
	if err := draft.SetPlaybackRate(rate); err != nil {
		c.logger.WarnWithError("Default playback rate not applied", err)
	}
}

// Sync

func (c *Controller) performInitialSync() {
	syncCtx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()

	result, err := c.syncManager.SyncWithS3(syncCtx)
	if err != nil {
		c.logger.WarnWithError("Initial sync failed", err)
		return
	}
	if len(result.Missing) > 0 {
		c.refreshUploads()
	}
}

// SyncNow checks published clips against the bucket
func (c *Controller) SyncNow() (*manager.SyncResult, error) {
	if c.syncManager == nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "sync is not configured", nil)
	}
	c.setStatus("Checking published clips...")

	syncCtx, cancel := context.WithTimeout(c.ctx, 60*time.Second)
	defer cancel()

	result, err := c.syncManager.SyncWithS3(syncCtx)
	if err != nil {
		if result != nil && result.OfflineMode {
			c.setStatus("Offline: upload destination unreachable")
		}
		return result, c.handleError("sync", err, nil)
	}

	switch {
	case result.OfflineMode:
		c.setStatus("Offline")
	case len(result.Missing) > 0 || len(result.Errors) > 0:
		c.setStatus(fmt.Sprintf("Sync completed with %d issues", len(result.Missing)+len(result.Errors)))
	default:
		c.setStatus("Sync completed successfully")
	}
	c.refreshUploads()
	return result, nil
}

// Error handling

// handleError logs err, shows it and remembers retry when the failure is recoverable.
// It returns err classified, or nil.
func (c *Controller) handleError(operation string, err error, retry func() error) error {
	if err == nil {
		return nil
	}
	appErr := apperrors.ClassifyError(err)
	canRetry := retry != nil && appErr.IsRecoverable()

	c.logger.ErrorWithFields("Operation failed", map[string]interface{}{
		"operation":        operation,
		"error_code":       string(appErr.Code),
		"kind":             string(appErr.Kind()),
		"user_message":     appErr.GetUserMessage(),
		"suggested_action": appErr.GetSuggestedAction(),
		"recoverable":      appErr.IsRecoverable(),
	})

	c.mu.Lock()
	if canRetry {
		c.retry = retry
	} else {
		c.retry = nil
	}
	c.mu.Unlock()

	c.setStatus(statusFor(appErr))
	c.ui(func() { c.view.ShowError(appErr.GetUserMessage(), appErr.GetSuggestedAction(), canRetry) })
	return appErr
}

// statusFor maps a failure to the status line
func statusFor(appErr *apperrors.AppError) string {
	switch {
	case appErr.Kind() == apperrors.KindAuthorization:
		return "Camera access is required"
	case appErr.Kind() == apperrors.KindDevice:
		return "Camera unavailable"
	case appErr.Code == apperrors.ErrInvalidCredentials:
		return "AWS credentials need to be updated - please check settings"
	case appErr.Code == apperrors.ErrS3BucketNotFound:
		return "Upload bucket not found - please check settings"
	case appErr.Code == apperrors.ErrNetworkError, appErr.Code == apperrors.ErrConnectionTimeout:
		return "Network unavailable"
	case appErr.Code == apperrors.ErrDatabaseError:
		return "Database error - please restart the application"
	}
	return "Error: " + appErr.GetUserMessage()
}

func (c *Controller) ui(fn func()) {
	c.dispatcher.Do(fn)
}

func (c *Controller) setStatus(status string) {
	c.ui(func() { c.view.SetStatus(status) })
}

func (c *Controller) enableActions(enabled bool) {
	c.ui(func() { c.view.EnableActions(enabled) })
}
