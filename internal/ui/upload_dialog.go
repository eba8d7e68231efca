package ui

import (
	"fmt"
	"strings"

	"clip-studio/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// MaxCaptionLength bounds the caption entry
const MaxCaptionLength = 2200

// UploadDialog collects the publish options for a draft and hands it to the uploader
type UploadDialog struct {
	window fyne.Window
	dialog *dialog.CustomDialog
	draft  *models.DraftAsset

	// UI components
	clipLabel     *widget.Label
	captionEntry  *widget.Entry
	captionCount  *widget.Label
	commentsCheck *widget.Check
	likesCheck    *widget.Check
	progressBar   *widget.ProgressBar
	publishBtn    *widget.Button
	cancelBtn     *widget.Button

	onPublish func(meta models.PublishMetadata) error

	// OnClosed runs when the dialog is dismissed
	OnClosed func()
}

// NewUploadDialog creates a publish dialog for draft
func NewUploadDialog(parent fyne.Window, draft *models.DraftAsset, onPublish func(models.PublishMetadata) error) *UploadDialog {
	d := &UploadDialog{
		window:    parent,
		draft:     draft,
		onPublish: onPublish,
	}

	d.setupDialog()
	return d
}

// Show displays the upload dialog
func (d *UploadDialog) Show() {
	d.dialog.Show()
}

// Hide closes the upload dialog
func (d *UploadDialog) Hide() {
	d.dialog.Hide()
}

// SetProgress updates the upload progress
func (d *UploadDialog) SetProgress(value float64) {
	d.progressBar.Show()
	d.progressBar.SetValue(value)
	if value >= 1.0 {
		d.publishBtn.SetText("Published")
		d.publishBtn.Disable()
		d.cancelBtn.SetText("Close")
		d.cancelBtn.Enable()
	}
}

// Metadata returns the options entered so far
func (d *UploadDialog) Metadata() models.PublishMetadata {
	return models.PublishMetadata{
		Caption:          strings.TrimSpace(d.captionEntry.Text),
		CommentsDisabled: d.commentsCheck.Checked,
		LikeCountHidden:  d.likesCheck.Checked,
	}
}

func (d *UploadDialog) setupDialog() {
	d.clipLabel = widget.NewLabel("No draft")
	d.clipLabel.TextStyle = fyne.TextStyle{Bold: true}

	captionLabel := widget.NewLabel("Caption:")
	captionLabel.TextStyle = fyne.TextStyle{Bold: true}

	d.captionCount = widget.NewLabel(fmt.Sprintf("0/%d", MaxCaptionLength))
	d.captionEntry = widget.NewMultiLineEntry()
	d.captionEntry.SetPlaceHolder("Write a caption...")
	d.captionEntry.Wrapping = fyne.TextWrapWord
	d.captionEntry.Validator = validateCaption
	d.captionEntry.OnChanged = func(text string) {
		d.captionCount.SetText(fmt.Sprintf("%d/%d", len([]rune(text)), MaxCaptionLength))
		setEnabled(d.publishBtn, validateCaption(text) == nil)
	}

	d.commentsCheck = widget.NewCheck("Turn off commenting", nil)
	d.likesCheck = widget.NewCheck("Hide like count", nil)

	d.progressBar = widget.NewProgressBar()
	d.progressBar.Hide()

	d.publishBtn = widget.NewButton("Publish", d.publish)
	d.publishBtn.Icon = theme.UploadIcon()
	d.publishBtn.Importance = widget.HighImportance
	if d.draft == nil {
		d.publishBtn.Disable()
	}

	d.cancelBtn = widget.NewButton("Cancel", func() {
		d.Hide()
	})

	captionSection := container.NewVBox(
		container.NewBorder(nil, nil, captionLabel, d.captionCount),
		d.captionEntry,
	)

	optionsSection := container.NewVBox(
		widget.NewLabel("Advanced settings"),
		d.commentsCheck,
		d.likesCheck,
	)

	buttonSection := container.NewHBox(
		d.cancelBtn,
		widget.NewSeparator(),
		d.publishBtn,
	)

	content := container.NewVBox(
		d.clipLabel,
		widget.NewSeparator(),
		captionSection,
		widget.NewSeparator(),
		optionsSection,
		widget.NewSeparator(),
		d.progressBar,
		buttonSection,
	)

	d.populateForm()

	d.dialog = dialog.NewCustomWithoutButtons("Publish Clip", content, d.window)
	d.dialog.SetOnClosed(func() {
		if d.OnClosed != nil {
			d.OnClosed()
		}
	})
	d.dialog.Resize(fyne.NewSize(500, 420))
}

func (d *UploadDialog) populateForm() {
	if d.draft == nil {
		return
	}
	meta := d.draft.Metadata()
	d.clipLabel.SetText(fmt.Sprintf("%s • %s", clipName(d.draft), formatClock(d.draft.ActiveRange().Duration())))
	d.captionEntry.SetText(meta.Caption)
	d.commentsCheck.SetChecked(meta.CommentsDisabled)
	d.likesCheck.SetChecked(meta.LikeCountHidden)
}

func (d *UploadDialog) publish() {
	if d.onPublish == nil || d.draft == nil {
		return
	}
	if err := validateCaption(d.captionEntry.Text); err != nil {
		dialog.ShowError(err, d.window)
		return
	}
	meta := d.Metadata()

	d.progressBar.Show()
	d.progressBar.SetValue(0)
	d.publishBtn.SetText("Publishing...")
	d.publishBtn.Disable()
	d.cancelBtn.Disable()

	go func() {
		err := d.onPublish(meta)
		fyne.Do(func() {
			if err != nil {
				// the controller has already shown the failure
				d.progressBar.Hide()
				d.publishBtn.SetText("Publish")
				d.publishBtn.Enable()
				d.cancelBtn.Enable()
				return
			}
			d.publishBtn.SetText("Uploading...")
			d.cancelBtn.SetText("Close")
			d.cancelBtn.Enable()
		})
	}()
}

func validateCaption(text string) error {
	if n := len([]rune(text)); n > MaxCaptionLength {
		return fmt.Errorf("caption is %d characters long; the limit is %d", n, MaxCaptionLength)
	}
	return nil
}
