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

var cleanupAgeOptions = []string{"1h", "1d", "1w"}

// SettingsDialog represents the settings configuration dialog
type SettingsDialog struct {
	parent   fyne.Window
	dialog   *dialog.CustomDialog
	settings *models.ApplicationSettings

	// Form widgets
	awsRegionEntry     *widget.Entry
	uploadBucketEntry  *widget.Entry
	recordLimitSelect  *widget.Select
	playbackRateSelect *widget.Select
	autoCleanupCheck   *widget.Check
	cleanupAgeSelect   *widget.Select

	// Callbacks
	OnSaveSettings func(settings *models.ApplicationSettings) error
	OnLoadSettings func() (*models.ApplicationSettings, error)
}

// NewSettingsDialog creates a new settings dialog
func NewSettingsDialog(parent fyne.Window) *SettingsDialog {
	sd := &SettingsDialog{
		parent: parent,
	}

	sd.createDialog()
	return sd
}

// SetCallbacks sets the callback functions for settings operations
func (sd *SettingsDialog) SetCallbacks(
	onSave func(settings *models.ApplicationSettings) error,
	onLoad func() (*models.ApplicationSettings, error),
) {
	sd.OnSaveSettings = onSave
	sd.OnLoadSettings = onLoad
}

// Show displays the settings dialog
func (sd *SettingsDialog) Show() {
	if sd.OnLoadSettings != nil {
		if settings, err := sd.OnLoadSettings(); err == nil {
			sd.settings = settings
		} else {
			sd.settings = models.DefaultApplicationSettings()
			dialog.ShowError(fmt.Errorf("Failed to load settings, using defaults: %v", err), sd.parent)
		}
	} else {
		sd.settings = models.DefaultApplicationSettings()
	}
	sd.populateForm()

	sd.dialog.Show()
}

// Hide closes the settings dialog
func (sd *SettingsDialog) Hide() {
	sd.dialog.Hide()
}

func (sd *SettingsDialog) createDialog() {
	sd.createFormWidgets()
	form := sd.createFormLayout()
	buttons := sd.createActionButtons()

	content := container.NewVBox(
		form,
		widget.NewSeparator(),
		buttons,
	)

	sd.dialog = dialog.NewCustom("Application Settings", "Close", content, sd.parent)
	sd.dialog.Resize(fyne.NewSize(500, 560))
}

func (sd *SettingsDialog) createFormWidgets() {
	sd.awsRegionEntry = widget.NewEntry()
	sd.awsRegionEntry.SetPlaceHolder("e.g., us-west-2")

	sd.uploadBucketEntry = widget.NewEntry()
	sd.uploadBucketEntry.SetPlaceHolder("e.g., my-clips-bucket")

	limits := models.DefaultRecordLimits()
	names := make([]string, len(limits))
	for i, l := range limits {
		names[i] = l.Name
	}
	sd.recordLimitSelect = widget.NewSelect(names, nil)
	sd.playbackRateSelect = widget.NewSelect(rateOptions, nil)

	sd.cleanupAgeSelect = widget.NewSelect(cleanupAgeOptions, nil)
	sd.autoCleanupCheck = widget.NewCheck("Delete stale temporary media automatically", func(checked bool) {
		setEnabled(sd.cleanupAgeSelect, checked)
	})
}

func (sd *SettingsDialog) createFormLayout() *fyne.Container {
	awsSection := widget.NewCard("Upload Destination", "",
		widget.NewForm(
			widget.NewFormItem("AWS Region", sd.awsRegionEntry),
			widget.NewFormItem("S3 Bucket", sd.uploadBucketEntry),
		),
	)

	editingSection := widget.NewCard("Recording and Playback", "",
		widget.NewForm(
			widget.NewFormItem("Default record limit", sd.recordLimitSelect),
			widget.NewFormItem("Default playback rate", sd.playbackRateSelect),
		),
	)

	cleanupSection := widget.NewCard("Temporary Media", "",
		container.NewVBox(
			sd.autoCleanupCheck,
			widget.NewForm(widget.NewFormItem("Delete files older than", sd.cleanupAgeSelect)),
		),
	)

	helpText := widget.NewRichTextFromMarkdown(`
**Upload Destination:** the bucket published clips are uploaded to. Credentials come from the keychain or the AWS environment.

**Recording and Playback:** the limit and rate apply to new recordings and drafts.

**Temporary Media:** takes, drafts and files kept for a retry are never deleted.
	`)
	helpText.Wrapping = fyne.TextWrapWord

	return container.NewVBox(
		awsSection,
		editingSection,
		cleanupSection,
		widget.NewCard("Help", "", helpText),
	)
}

func (sd *SettingsDialog) createActionButtons() *fyne.Container {
	saveBtn := widget.NewButton("Save Settings", sd.saveSettings)
	saveBtn.Importance = widget.HighImportance
	saveBtn.Icon = theme.DocumentSaveIcon()

	resetBtn := widget.NewButton("Reset to Defaults", sd.resetToDefaults)
	resetBtn.Icon = theme.ViewRefreshIcon()

	cancelBtn := widget.NewButton("Cancel", func() {
		sd.Hide()
	})

	return container.NewHBox(
		resetBtn,
		widget.NewSeparator(),
		cancelBtn,
		saveBtn,
	)
}

func (sd *SettingsDialog) populateForm() {
	if sd.settings == nil {
		return
	}

	sd.awsRegionEntry.SetText(sd.settings.AWSRegion)
	sd.uploadBucketEntry.SetText(sd.settings.UploadBucket)

	sd.recordLimitSelect.SetSelected(sd.settings.DefaultRecordLimit)
	sd.playbackRateSelect.SetSelected(formatRate(sd.settings.PlaybackRate))

	sd.autoCleanupCheck.SetChecked(sd.settings.AutoCleanup)
	sd.cleanupAgeSelect.SetSelected(sd.settings.CleanupMaxAge)
	setEnabled(sd.cleanupAgeSelect, sd.settings.AutoCleanup)
}

func (sd *SettingsDialog) saveSettings() {
	if err := sd.validateForm(); err != nil {
		dialog.ShowError(err, sd.parent)
		return
	}

	sd.updateSettingsFromForm()

	if sd.OnSaveSettings != nil {
		if err := sd.OnSaveSettings(sd.settings); err != nil {
			dialog.ShowError(fmt.Errorf("Failed to save settings: %v", err), sd.parent)
			return
		}
	}

	dialog.ShowInformation("Settings Saved", "Settings have been saved successfully.", sd.parent)
	sd.Hide()
}

func (sd *SettingsDialog) resetToDefaults() {
	dialog.ShowConfirm("Reset Settings",
		"Are you sure you want to reset all settings to their default values?",
		func(confirmed bool) {
			if confirmed {
				sd.settings = models.DefaultApplicationSettings()
				sd.populateForm()
			}
		}, sd.parent)
}

func (sd *SettingsDialog) validateForm() error {
	if strings.TrimSpace(sd.awsRegionEntry.Text) == "" {
		return fmt.Errorf("AWS region cannot be empty")
	}

	if strings.TrimSpace(sd.uploadBucketEntry.Text) == "" {
		return fmt.Errorf("S3 bucket name cannot be empty")
	}

	if sd.recordLimitSelect.Selected == "" {
		return fmt.Errorf("Please select a default record limit")
	}

	if sd.playbackRateSelect.Selected == "" {
		return fmt.Errorf("Please select a default playback rate")
	}

	if sd.autoCleanupCheck.Checked && sd.cleanupAgeSelect.Selected == "" {
		return fmt.Errorf("Please select how old temporary media must be before it is deleted")
	}

	return nil
}

func (sd *SettingsDialog) updateSettingsFromForm() {
	if sd.settings == nil {
		sd.settings = models.DefaultApplicationSettings()
	}

	sd.settings.AWSRegion = strings.TrimSpace(sd.awsRegionEntry.Text)
	sd.settings.UploadBucket = strings.TrimSpace(sd.uploadBucketEntry.Text)

	sd.settings.DefaultRecordLimit = sd.recordLimitSelect.Selected
	sd.settings.PlaybackRate = parseRate(sd.playbackRateSelect.Selected)

	sd.settings.AutoCleanup = sd.autoCleanupCheck.Checked
	if sd.cleanupAgeSelect.Selected != "" {
		sd.settings.CleanupMaxAge = sd.cleanupAgeSelect.Selected
	}
}
