package ui

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"clip-studio/internal/app"
	"clip-studio/internal/capture"
	"clip-studio/internal/dispatch"
	"clip-studio/internal/models"
	"clip-studio/internal/playback"
	"clip-studio/internal/trim"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// DefaultTimelineWidth is the pixel width of the thumbnail strip
const DefaultTimelineWidth = 640

var rateOptions = []string{"0.5x", "1x", "1.5x", "2x"}

var importExtensions = []string{".mp4", ".mov", ".m4v", ".webm", ".mkv"}

// Dispatcher runs controller and component updates on the fyne main goroutine
func Dispatcher() dispatch.Dispatcher {
	return dispatch.Func(fyne.Do)
}

// MainWindow is the capture and editing window. It implements app.EditorView.
type MainWindow struct {
	app     fyne.App
	window  fyne.Window
	actions app.Actions
	queue   *dispatch.Serial

	// Capture
	statusLabel    *widget.Label
	timerLabel     *widget.Label
	recordProgress *widget.ProgressBar
	recordBtn      *widget.Button
	switchBtn      *widget.Button
	limitBtn       *widget.Button
	zoomSlider     *widget.Slider
	deleteBtn      *widget.Button
	finishBtn      *widget.Button
	cancelBtn      *widget.Button
	discardBtn     *widget.Button
	importBtn      *widget.Button
	settingsBtn    *widget.Button
	syncBtn        *widget.Button
	retryBtn       *widget.Button

	// Editor
	editor        *fyne.Container
	emptyEditor   *widget.Label
	strip         *canvas.Image
	playBtn       *widget.Button
	positionLabel *widget.Label
	scrubSlider   *widget.Slider
	rateSelect    *widget.Select
	lowerSlider   *widget.Slider
	upperSlider   *widget.Slider
	rangeLabel    *widget.Label
	applyTrimBtn  *widget.Button
	publishBtn    *widget.Button

	// Uploads
	uploadList *widget.List

	// Data, touched only on the main goroutine
	draft        *models.DraftAsset
	uploads      []*models.UploadRecord
	progress     map[string]int
	capture      capture.Event
	syncing      bool
	scrubbing    bool
	trimHandle   trim.Handle
	uploadDialog *UploadDialog

	// fixed at construction
	timelineWidth int
}

// NewMainWindow creates the editor window. Actions stay disabled until the controller enables them.
func NewMainWindow(a fyne.App) *MainWindow {
	window := a.NewWindow("Clip Studio")
	window.Resize(fyne.NewSize(1000, 760))
	window.SetIcon(theme.MediaVideoIcon())

	mw := &MainWindow{
		app:           a,
		window:        window,
		queue:         dispatch.NewSerial(64),
		progress:      make(map[string]int),
		timelineWidth: DefaultTimelineWidth,
	}

	mw.setupUI()
	mw.EnableActions(false)
	mw.ShowDraft(nil, nil)
	return mw
}

// ShowAndRun displays the window and runs the fyne event loop
func (mw *MainWindow) ShowAndRun() {
	mw.window.ShowAndRun()
}

// Window returns the underlying fyne window
func (mw *MainWindow) Window() fyne.Window {
	return mw.window
}

// Close waits for queued actions to finish
func (mw *MainWindow) Close() {
	mw.queue.Close()
}

// SetActions wires the window to the controller
func (mw *MainWindow) SetActions(actions app.Actions) {
	mw.actions = actions
}

// SetStatus updates the status label
func (mw *MainWindow) SetStatus(status string) {
	mw.statusLabel.SetText(status)
}

// EnableActions enables/disables the capture and import buttons
func (mw *MainWindow) EnableActions(enabled bool) {
	for _, btn := range []*widget.Button{mw.recordBtn, mw.switchBtn, mw.limitBtn, mw.importBtn, mw.syncBtn} {
		if enabled {
			btn.Enable()
		} else {
			btn.Disable()
		}
	}
	if enabled {
		mw.zoomSlider.Enable()
		mw.ShowCapture(mw.capture)
	} else {
		mw.zoomSlider.Disable()
		mw.deleteBtn.Disable()
		mw.finishBtn.Disable()
	}
}

// TimelineWidth is the pixel width of the thumbnail strip. Safe for any goroutine.
func (mw *MainWindow) TimelineWidth() int {
	return mw.timelineWidth
}

// ShowCapture reflects the capture session
func (mw *MainWindow) ShowCapture(ev capture.Event) {
	mw.capture = ev
	recording := ev.State == models.StateRecording
	idle := ev.State == models.StateIdle

	if recording {
		mw.recordBtn.SetText("Stop")
		mw.recordBtn.SetIcon(theme.MediaStopIcon())
	} else {
		mw.recordBtn.SetText("Record")
		mw.recordBtn.SetIcon(theme.MediaRecordIcon())
	}

	mw.timerLabel.SetText(fmt.Sprintf("%s / %s", formatClock(ev.Recorded), formatClock(ev.Limit.Max)))
	if ev.Limit.Max > 0 {
		mw.recordProgress.SetValue(float64(ev.Recorded) / float64(ev.Limit.Max))
	}
	if ev.Limit.Name != "" {
		mw.limitBtn.SetText(strings.ToUpper(ev.Limit.Name[:1]) + ev.Limit.Name[1:])
	}

	mw.syncing = true
	if ev.Zoom > 0 {
		mw.zoomSlider.SetValue(ev.Zoom)
	}
	mw.syncing = false

	setEnabled(mw.switchBtn, ev.Status == models.CaptureConfigured && !ev.Exporting && ev.State != models.StateSwitchingCamera)
	setEnabled(mw.deleteBtn, idle && ev.Segments > 0 && !ev.Exporting)
	setEnabled(mw.finishBtn, idle && ev.Segments > 0 && !ev.Exporting)
	setEnabled(mw.discardBtn, !recording && !ev.Exporting)
	setEnabled(mw.importBtn, !recording && !ev.Exporting)
	setEnabled(mw.limitBtn, !recording)
	if ev.Exporting {
		mw.cancelBtn.Show()
	} else {
		mw.cancelBtn.Hide()
	}
}

// ShowPlayback reflects the playback engine
func (mw *MainWindow) ShowPlayback(ev playback.Event) {
	if !ev.Loaded {
		mw.playBtn.Disable()
		mw.scrubSlider.Disable()
		mw.positionLabel.SetText("--:--")
		return
	}
	mw.playBtn.Enable()
	mw.scrubSlider.Enable()
	if ev.Playing {
		mw.playBtn.SetIcon(theme.MediaPauseIcon())
	} else if ev.EndReached {
		mw.playBtn.SetIcon(theme.MediaReplayIcon())
	} else {
		mw.playBtn.SetIcon(theme.MediaPlayIcon())
	}

	mw.syncing = true
	if total := seconds(ev.Duration); total > 0 && mw.scrubSlider.Max != total {
		mw.scrubSlider.Max = total
		mw.scrubSlider.Refresh()
	}
	if !mw.scrubbing {
		mw.scrubSlider.SetValue(seconds(ev.Position))
	}
	mw.rateSelect.SetSelected(formatRate(ev.Rate))
	mw.syncing = false

	mw.positionLabel.SetText(fmt.Sprintf("%s / %s", formatClock(ev.Position), formatClock(ev.Duration)))
}

// ShowTrim reflects the range selection
func (mw *MainWindow) ShowTrim(ev trim.Event) {
	mw.syncing = true
	if mw.trimHandle != trim.HandleLower {
		mw.lowerSlider.SetValue(seconds(ev.Selection.Lower))
	}
	if mw.trimHandle != trim.HandleUpper {
		mw.upperSlider.SetValue(seconds(ev.Selection.Upper))
	}
	mw.syncing = false

	mw.rangeLabel.SetText(fmt.Sprintf("%s - %s (%s)",
		formatClock(ev.Selection.Lower), formatClock(ev.Selection.Upper), formatClock(ev.Selection.Duration())))
	if mw.draft != nil {
		full := ev.Selection.Lower == 0 && ev.Selection.Upper == mw.draft.OriginalDuration()
		setEnabled(mw.applyTrimBtn, !full && ev.Dragging == trim.HandleNone)
	}
}

// ShowDraft replaces the editor contents; a nil draft clears them
func (mw *MainWindow) ShowDraft(draft *models.DraftAsset, thumbs []models.ThumbnailImage) {
	mw.draft = draft
	mw.scrubbing = false
	mw.trimHandle = trim.HandleNone
	if draft == nil {
		mw.editor.Hide()
		mw.emptyEditor.Show()
		mw.strip.Image = nil
		mw.strip.Refresh()
		mw.publishBtn.Disable()
		mw.applyTrimBtn.Disable()
		return
	}

	total := seconds(draft.OriginalDuration())
	mw.syncing = true
	for _, s := range []*widget.Slider{mw.scrubSlider, mw.lowerSlider, mw.upperSlider} {
		s.Max = total
		s.Refresh()
	}
	r := draft.ActiveRange()
	mw.lowerSlider.SetValue(seconds(r.Lower))
	mw.upperSlider.SetValue(seconds(r.Upper))
	mw.scrubSlider.SetValue(seconds(r.Lower))
	mw.rateSelect.SetSelected(formatRate(draft.PlaybackRate()))
	mw.syncing = false

	if len(thumbs) > 0 {
		width := mw.TimelineWidth()
		mw.strip.Image = trim.RenderStrip(thumbs, width/len(thumbs), trim.DefaultThumbnailHeight)
	} else {
		mw.strip.Image = nil
	}
	mw.strip.Refresh()

	mw.rangeLabel.SetText(fmt.Sprintf("%s - %s", formatClock(r.Lower), formatClock(r.Upper)))
	setEnabled(mw.applyTrimBtn, draft.IsTrimmed())
	mw.publishBtn.Enable()
	mw.emptyEditor.Hide()
	mw.editor.Show()
}

// ShowUploads replaces the upload history
func (mw *MainWindow) ShowUploads(records []*models.UploadRecord) {
	mw.uploads = records
	for _, r := range records {
		if r.Status != models.UploadRunning && r.Status != models.UploadPaused {
			delete(mw.progress, r.ID)
		}
	}
	mw.uploadList.Refresh()
}

// ShowUploadProgress updates one running upload
func (mw *MainWindow) ShowUploadProgress(p models.UploadProgress) {
	mw.progress[p.UploadID] = p.Percentage
	if mw.uploadDialog != nil {
		mw.uploadDialog.SetProgress(float64(p.Percentage) / 100)
	}
	mw.uploadList.Refresh()
}

// ShowError displays a failure; canRetry offers the retry button
func (mw *MainWindow) ShowError(message, suggestion string, canRetry bool) {
	text := message
	if suggestion != "" {
		text += "\n\n" + suggestion
	}
	dialog.ShowError(errors.New(text), mw.window)
	if canRetry {
		mw.retryBtn.Show()
	} else {
		mw.retryBtn.Hide()
	}
}

func (mw *MainWindow) setupUI() {
	mw.createComponents()
	mw.window.SetContent(mw.createLayout())
}

func (mw *MainWindow) createComponents() {
	mw.statusLabel = widget.NewLabel("Starting...")
	mw.statusLabel.TextStyle = fyne.TextStyle{Italic: true}

	// Capture controls
	mw.timerLabel = widget.NewLabel("00:00.0 / 00:00.0")
	mw.timerLabel.TextStyle = fyne.TextStyle{Monospace: true}
	mw.recordProgress = widget.NewProgressBar()
	mw.recordProgress.TextFormatter = func() string { return "" }

	mw.recordBtn = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() { mw.enqueue(app.Actions.ToggleRecording) })
	mw.recordBtn.Importance = widget.DangerImportance
	mw.switchBtn = widget.NewButtonWithIcon("Flip", theme.ViewRefreshIcon(), func() { mw.enqueue(app.Actions.SwitchCamera) })
	mw.limitBtn = widget.NewButton("Short", func() { mw.enqueue(app.Actions.ToggleRecordLimit) })

	mw.zoomSlider = widget.NewSlider(1, 6)
	mw.zoomSlider.Step = 0.1
	mw.zoomSlider.OnChanged = func(v float64) {
		if mw.syncing {
			return
		}
		mw.enqueue(func(a app.Actions) error { return a.SetZoom(v) })
	}

	mw.deleteBtn = widget.NewButtonWithIcon("Delete Last", theme.ContentUndoIcon(), func() { mw.enqueue(app.Actions.DeleteLastSegment) })
	mw.finishBtn = widget.NewButtonWithIcon("Finish", theme.ConfirmIcon(), func() { mw.enqueue(app.Actions.FinishRecording) })
	mw.finishBtn.Importance = widget.HighImportance
	mw.cancelBtn = widget.NewButtonWithIcon("Cancel Export", theme.CancelIcon(), mw.cancelExport)
	mw.cancelBtn.Hide()
	mw.discardBtn = widget.NewButtonWithIcon("Discard", theme.DeleteIcon(), mw.confirmDiscard)
	mw.discardBtn.Importance = widget.DangerImportance
	mw.importBtn = widget.NewButtonWithIcon("Import", theme.FolderOpenIcon(), mw.selectImportFile)
	mw.settingsBtn = widget.NewButtonWithIcon("Settings", theme.SettingsIcon(), mw.showSettingsDialog)
	mw.syncBtn = widget.NewButtonWithIcon("Check Uploads", theme.SearchIcon(), func() {
		mw.enqueue(func(a app.Actions) error {
			_, err := a.SyncNow()
			return err
		})
	})
	mw.retryBtn = widget.NewButtonWithIcon("Try Again", theme.MediaReplayIcon(), func() {
		mw.retryBtn.Hide()
		mw.enqueue(app.Actions.RetryLast)
	})
	mw.retryBtn.Importance = widget.WarningImportance
	mw.retryBtn.Hide()

	// Editor
	mw.strip = canvas.NewImageFromImage(nil)
	mw.strip.FillMode = canvas.ImageFillStretch
	mw.strip.SetMinSize(fyne.NewSize(float32(DefaultTimelineWidth), float32(trim.DefaultThumbnailHeight)))

	mw.playBtn = widget.NewButtonWithIcon("", theme.MediaPlayIcon(), func() { mw.enqueue(app.Actions.TogglePlayPause) })
	mw.positionLabel = widget.NewLabel("--:--")
	mw.positionLabel.TextStyle = fyne.TextStyle{Monospace: true}

	mw.scrubSlider = widget.NewSlider(0, 1)
	mw.scrubSlider.Step = 0.01
	mw.scrubSlider.OnChanged = func(v float64) {
		if mw.syncing {
			return
		}
		if !mw.scrubbing {
			mw.scrubbing = true
			mw.enqueue(app.Actions.BeginScrub)
		}
	}
	mw.scrubSlider.OnChangeEnded = func(v float64) {
		if !mw.scrubbing {
			return
		}
		mw.scrubbing = false
		target := fromSeconds(v)
		mw.enqueue(func(a app.Actions) error { return a.EndScrub(target) })
	}

	mw.rateSelect = widget.NewSelect(rateOptions, func(selected string) {
		if mw.syncing {
			return
		}
		rate := parseRate(selected)
		mw.enqueue(func(a app.Actions) error { return a.SetRate(rate) })
	})

	mw.lowerSlider = mw.newTrimSlider(trim.HandleLower)
	mw.upperSlider = mw.newTrimSlider(trim.HandleUpper)
	mw.rangeLabel = widget.NewLabel("")

	mw.applyTrimBtn = widget.NewButtonWithIcon("Apply Trim", theme.ContentCutIcon(), func() { mw.enqueue(app.Actions.ApplyTrim) })
	mw.publishBtn = widget.NewButtonWithIcon("Publish", theme.UploadIcon(), mw.showUploadDialog)
	mw.publishBtn.Importance = widget.HighImportance

	// Upload history
	mw.uploadList = widget.NewList(
		func() int { return len(mw.uploads) },
		func() fyne.CanvasObject { return newUploadRow() },
		func(id widget.ListItemID, obj fyne.CanvasObject) { mw.updateUploadRow(id, obj.(*uploadRow)) },
	)
}

func (mw *MainWindow) newTrimSlider(h trim.Handle) *widget.Slider {
	s := widget.NewSlider(0, 1)
	s.Step = 0.01
	s.OnChanged = func(v float64) {
		if mw.syncing {
			return
		}
		if mw.trimHandle != h {
			mw.trimHandle = h
			mw.enqueue(func(a app.Actions) error { return a.BeginTrim(h) })
		}
		t := fromSeconds(v)
		mw.enqueue(func(a app.Actions) error {
			_, err := a.DragTrim(t)
			return err
		})
	}
	s.OnChangeEnded = func(float64) {
		if mw.trimHandle != h {
			return
		}
		mw.trimHandle = trim.HandleNone
		mw.enqueue(app.Actions.EndTrim)
	}
	return s
}

func (mw *MainWindow) createLayout() fyne.CanvasObject {
	title := widget.NewLabel("Clip Studio")
	title.TextStyle = fyne.TextStyle{Bold: true}

	toolbar := container.NewHBox(
		mw.importBtn,
		widget.NewSeparator(),
		mw.syncBtn,
		mw.settingsBtn,
		widget.NewSeparator(),
		mw.retryBtn,
	)

	captureCard := widget.NewCard("Camera", "",
		container.NewVBox(
			container.NewBorder(nil, nil, nil, mw.timerLabel, mw.recordProgress),
			container.NewHBox(mw.recordBtn, mw.switchBtn, mw.limitBtn),
			container.NewBorder(nil, nil, widget.NewIcon(theme.ZoomInIcon()), nil, mw.zoomSlider),
			container.NewHBox(mw.deleteBtn, mw.finishBtn, mw.cancelBtn, layoutSpacer(), mw.discardBtn),
		),
	)

	mw.editor = container.NewVBox(
		mw.strip,
		container.NewBorder(nil, nil, widget.NewLabel("In"), nil, mw.lowerSlider),
		container.NewBorder(nil, nil, widget.NewLabel("Out"), nil, mw.upperSlider),
		mw.rangeLabel,
		widget.NewSeparator(),
		container.NewBorder(nil, nil, mw.playBtn, container.NewHBox(mw.positionLabel, mw.rateSelect), mw.scrubSlider),
		container.NewHBox(mw.applyTrimBtn, mw.publishBtn),
	)
	mw.emptyEditor = widget.NewLabel("Record some takes and press Finish, or import a clip.")
	mw.emptyEditor.Alignment = fyne.TextAlignCenter
	mw.emptyEditor.TextStyle = fyne.TextStyle{Italic: true}
	editorCard := widget.NewCard("Draft", "", container.NewStack(mw.editor, container.NewCenter(mw.emptyEditor)))

	uploadsHeader := widget.NewLabel("Published Clips")
	uploadsHeader.TextStyle = fyne.TextStyle{Bold: true}
	uploads := container.NewBorder(uploadsHeader, nil, nil, nil, mw.uploadList)

	left := container.NewVBox(captureCard, editorCard)
	split := container.NewHSplit(container.NewVScroll(left), uploads)
	split.Offset = 0.62

	return container.NewBorder(
		container.NewVBox(title, toolbar, widget.NewSeparator()),
		mw.statusLabel,
		nil, nil,
		split,
	)
}

// enqueue runs an action off the main goroutine, in order. Failures are reported by the controller.
func (mw *MainWindow) enqueue(action func(app.Actions) error) {
	actions := mw.actions
	if actions == nil {
		return
	}
	mw.queue.Do(func() { action(actions) })
}

func (mw *MainWindow) cancelExport() {
	if mw.actions != nil {
		go mw.actions.CancelExport()
	}
}

func (mw *MainWindow) confirmDiscard() {
	dialog.ShowConfirm(
		"Discard",
		"Delete every recorded take and the current draft? This cannot be undone.",
		func(confirmed bool) {
			if confirmed {
				mw.enqueue(app.Actions.DiscardAll)
			}
		},
		mw.window,
	)
}

func (mw *MainWindow) selectImportFile() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()
		mw.enqueue(func(a app.Actions) error { return a.ImportFile(path) })
	}, mw.window)
	fileDialog.SetFilter(storage.NewExtensionFileFilter(importExtensions))
	fileDialog.Show()
}

func (mw *MainWindow) showUploadDialog() {
	if mw.draft == nil {
		return
	}
	mw.uploadDialog = NewUploadDialog(mw.window, mw.draft, func(meta models.PublishMetadata) error {
		if mw.actions == nil {
			return errors.New("editor is not ready")
		}
		return mw.actions.Publish(meta)
	})
	mw.uploadDialog.OnClosed = func() { mw.uploadDialog = nil }
	mw.uploadDialog.Show()
}

func (mw *MainWindow) showSettingsDialog() {
	sd := NewSettingsDialog(mw.window)
	if mw.actions != nil {
		sd.SetCallbacks(mw.actions.SaveSettings, mw.actions.LoadSettings)
	}
	sd.Show()
}

func (mw *MainWindow) showSharingDialog(record *models.UploadRecord) {
	if mw.actions == nil {
		return
	}
	sd := NewSharingDialog(mw.window, record, mw.actions.CopyLink)
	sd.Show()
}

func (mw *MainWindow) confirmRemoveUpload(record *models.UploadRecord) {
	dialog.ShowConfirm(
		"Remove Clip",
		fmt.Sprintf("Remove '%s' from the history? A published clip is also deleted from the bucket.", record.FileName),
		func(confirmed bool) {
			if confirmed {
				id := record.ID
				mw.enqueue(func(a app.Actions) error { return a.RemoveUpload(id) })
			}
		},
		mw.window,
	)
}

// uploadRow is one entry of the upload history
type uploadRow struct {
	widget.BaseWidget

	icon      *widget.Icon
	name      *widget.Label
	detail    *widget.Label
	progress  *widget.ProgressBar
	pauseBtn  *widget.Button
	resumeBtn *widget.Button
	cancelBtn *widget.Button
	retryBtn  *widget.Button
	linkBtn   *widget.Button
	removeBtn *widget.Button
	content   *fyne.Container
}

func newUploadRow() *uploadRow {
	r := &uploadRow{
		icon:      widget.NewIcon(theme.MediaVideoIcon()),
		name:      widget.NewLabel("clip.mp4"),
		detail:    widget.NewLabel("Status"),
		progress:  widget.NewProgressBar(),
		pauseBtn:  widget.NewButtonWithIcon("", theme.MediaPauseIcon(), nil),
		resumeBtn: widget.NewButtonWithIcon("", theme.MediaPlayIcon(), nil),
		cancelBtn: widget.NewButtonWithIcon("", theme.CancelIcon(), nil),
		retryBtn:  widget.NewButtonWithIcon("", theme.MediaReplayIcon(), nil),
		linkBtn:   widget.NewButtonWithIcon("", theme.ContentCopyIcon(), nil),
		removeBtn: widget.NewButtonWithIcon("", theme.DeleteIcon(), nil),
	}
	r.name.TextStyle = fyne.TextStyle{Bold: true}
	r.name.Truncation = fyne.TextTruncateEllipsis
	r.detail.TextStyle = fyne.TextStyle{Italic: true}
	r.removeBtn.Importance = widget.DangerImportance

	r.content = container.NewBorder(
		nil, nil,
		r.icon,
		container.NewHBox(r.pauseBtn, r.resumeBtn, r.cancelBtn, r.retryBtn, r.linkBtn, r.removeBtn),
		container.NewVBox(r.name, r.detail, r.progress),
	)
	r.ExtendBaseWidget(r)
	return r
}

func (r *uploadRow) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(r.content)
}

func (mw *MainWindow) updateUploadRow(id widget.ListItemID, row *uploadRow) {
	if id >= len(mw.uploads) {
		return
	}
	record := mw.uploads[id]
	uploadID := record.ID

	row.name.SetText(record.FileName)
	detail := fmt.Sprintf("%s • %s • %s", formatStatus(record.Status), formatFileSize(record.FileSize), formatRelativeTime(record.CreatedAt))
	if record.Caption != "" {
		detail += " • " + record.Caption
	}
	row.detail.SetText(detail)

	active := record.Status == models.UploadRunning || record.Status == models.UploadPaused
	if active {
		percent, ok := mw.progress[uploadID]
		if !ok {
			percent = record.Progress
		}
		row.progress.SetValue(float64(percent) / 100)
		row.progress.Show()
	} else {
		row.progress.Hide()
	}

	row.pauseBtn.OnTapped = func() { mw.enqueue(func(a app.Actions) error { return a.PauseUpload(uploadID) }) }
	row.resumeBtn.OnTapped = func() { mw.enqueue(func(a app.Actions) error { return a.ResumeUpload(uploadID) }) }
	row.cancelBtn.OnTapped = func() { mw.enqueue(func(a app.Actions) error { return a.CancelUpload(uploadID) }) }
	row.retryBtn.OnTapped = func() { mw.enqueue(func(a app.Actions) error { return a.RetryUpload(uploadID) }) }
	row.linkBtn.OnTapped = func() { mw.showSharingDialog(record) }
	row.removeBtn.OnTapped = func() { mw.confirmRemoveUpload(record) }

	setVisible(row.pauseBtn, record.Status == models.UploadRunning)
	setVisible(row.resumeBtn, record.Status == models.UploadPaused)
	setVisible(row.cancelBtn, active)
	setVisible(row.retryBtn, record.Status == models.UploadFailed || record.Status == models.UploadCanceled)
	setVisible(row.linkBtn, record.Status == models.UploadCompleted)
	setEnabled(row.removeBtn, !active)

	row.icon.SetResource(statusIcon(record.Status))
}

func statusIcon(status models.UploadStatus) fyne.Resource {
	switch status {
	case models.UploadRunning, models.UploadPending:
		return theme.UploadIcon()
	case models.UploadPaused:
		return theme.MediaPauseIcon()
	case models.UploadCompleted:
		return theme.ConfirmIcon()
	case models.UploadFailed:
		return theme.ErrorIcon()
	case models.UploadCanceled:
		return theme.WarningIcon()
	}
	return theme.MediaVideoIcon()
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}

func setVisible(o fyne.CanvasObject, visible bool) {
	if visible {
		o.Show()
	} else {
		o.Hide()
	}
}

func layoutSpacer() fyne.CanvasObject {
	return container.NewStack()
}

// Utility functions for formatting
func formatFileSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	if diff < time.Minute {
		return "just now"
	} else if diff < time.Hour {
		return fmt.Sprintf("%d min ago", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("%d hours ago", int(diff.Hours()))
	}
	return fmt.Sprintf("%d days ago", int(diff.Hours()/24))
}

func formatExpiration(t time.Time) string {
	now := time.Now()
	if t.Before(now) {
		return "expired"
	}

	diff := t.Sub(now)
	if diff < time.Hour {
		return fmt.Sprintf("expires in %d min", int(diff.Minutes()))
	} else if diff < 24*time.Hour {
		return fmt.Sprintf("expires in %d hours", int(diff.Hours()+0.5))
	}
	return fmt.Sprintf("expires in %d days", int(diff.Hours()/24))
}

func formatStatus(status models.UploadStatus) string {
	switch status {
	case models.UploadPending:
		return "Waiting"
	case models.UploadRunning:
		return "Uploading..."
	case models.UploadPaused:
		return "Paused"
	case models.UploadCompleted:
		return "Published"
	case models.UploadFailed:
		return "Failed"
	case models.UploadCanceled:
		return "Canceled"
	default:
		return string(status)
	}
}

// formatClock renders d as mm:ss.t
func formatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	tenths := int64(d / (100 * time.Millisecond))
	return fmt.Sprintf("%02d:%02d.%d", tenths/600, (tenths/10)%60, tenths%10)
}

func formatRate(rate float64) string {
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.1f", rate), "0"), ".") + "x"
}

func parseRate(s string) float64 {
	var rate float64
	if _, err := fmt.Sscanf(strings.TrimSuffix(s, "x"), "%g", &rate); err != nil || rate <= 0 {
		return 1
	}
	return rate
}

func seconds(d time.Duration) float64 {
	return d.Seconds()
}

func fromSeconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second)).Round(time.Millisecond)
}

// clipName is the label used for a draft in dialogs
func clipName(d *models.DraftAsset) string {
	return filepath.Base(d.SourcePath())
}
