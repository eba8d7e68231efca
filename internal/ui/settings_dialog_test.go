package ui

import (
	"errors"
	"testing"

	"clip-studio/internal/models"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSettingsDialog(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")

	dialog := NewSettingsDialog(window)

	assert.NotNil(t, dialog)
	assert.Equal(t, window, dialog.parent)
	assert.NotNil(t, dialog.dialog)
	assert.Equal(t, []string{"short", "long"}, dialog.recordLimitSelect.Options)
	assert.Equal(t, rateOptions, dialog.playbackRateSelect.Options)
	assert.Equal(t, cleanupAgeOptions, dialog.cleanupAgeSelect.Options)
}

func TestSettingsDialog_PopulateForm(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")
	dialog := NewSettingsDialog(window)

	dialog.settings = &models.ApplicationSettings{
		AWSRegion:          "eu-west-1",
		UploadBucket:       "clips-bucket",
		DefaultRecordLimit: "long",
		PlaybackRate:       0.5,
		AutoCleanup:        false,
		CleanupMaxAge:      "1w",
	}
	dialog.populateForm()

	assert.Equal(t, "eu-west-1", dialog.awsRegionEntry.Text)
	assert.Equal(t, "clips-bucket", dialog.uploadBucketEntry.Text)
	assert.Equal(t, "long", dialog.recordLimitSelect.Selected)
	assert.Equal(t, "0.5x", dialog.playbackRateSelect.Selected)
	assert.False(t, dialog.autoCleanupCheck.Checked)
	assert.Equal(t, "1w", dialog.cleanupAgeSelect.Selected)
	assert.True(t, dialog.cleanupAgeSelect.Disabled())

	dialog.autoCleanupCheck.SetChecked(true)
	assert.False(t, dialog.cleanupAgeSelect.Disabled())
}

func TestSettingsDialog_ValidateForm(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")
	dialog := NewSettingsDialog(window)

	fill := func() {
		dialog.awsRegionEntry.SetText("us-west-2")
		dialog.uploadBucketEntry.SetText("clips-bucket")
		dialog.recordLimitSelect.SetSelected("short")
		dialog.playbackRateSelect.SetSelected("1x")
		dialog.autoCleanupCheck.SetChecked(true)
		dialog.cleanupAgeSelect.SetSelected("1d")
	}

	tests := []struct {
		name          string
		setupForm     func()
		errorContains string
	}{
		{
			name:      "valid form",
			setupForm: func() {},
		},
		{
			name:          "empty AWS region",
			setupForm:     func() { dialog.awsRegionEntry.SetText("  ") },
			errorContains: "AWS region cannot be empty",
		},
		{
			name:          "empty S3 bucket",
			setupForm:     func() { dialog.uploadBucketEntry.SetText("") },
			errorContains: "S3 bucket name cannot be empty",
		},
		{
			name:          "no record limit selected",
			setupForm:     func() { dialog.recordLimitSelect.ClearSelected() },
			errorContains: "Please select a default record limit",
		},
		{
			name:          "no playback rate selected",
			setupForm:     func() { dialog.playbackRateSelect.ClearSelected() },
			errorContains: "Please select a default playback rate",
		},
		{
			name:          "cleanup without age",
			setupForm:     func() { dialog.cleanupAgeSelect.ClearSelected() },
			errorContains: "Please select how old",
		},
		{
			name: "no age needed when cleanup is off",
			setupForm: func() {
				dialog.autoCleanupCheck.SetChecked(false)
				dialog.cleanupAgeSelect.ClearSelected()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fill()
			tt.setupForm()

			err := dialog.validateForm()

			if tt.errorContains != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSettingsDialog_UpdateSettingsFromForm(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")
	dialog := NewSettingsDialog(window)

	dialog.awsRegionEntry.SetText(" eu-central-1 ")
	dialog.uploadBucketEntry.SetText("updated-bucket")
	dialog.recordLimitSelect.SetSelected("long")
	dialog.playbackRateSelect.SetSelected("1.5x")
	dialog.autoCleanupCheck.SetChecked(true)
	dialog.cleanupAgeSelect.SetSelected("1h")

	dialog.settings = nil
	dialog.updateSettingsFromForm()

	require.NotNil(t, dialog.settings)
	assert.Equal(t, "eu-central-1", dialog.settings.AWSRegion)
	assert.Equal(t, "updated-bucket", dialog.settings.UploadBucket)
	assert.Equal(t, "long", dialog.settings.DefaultRecordLimit)
	assert.Equal(t, 1.5, dialog.settings.PlaybackRate)
	assert.True(t, dialog.settings.AutoCleanup)
	assert.Equal(t, "1h", dialog.settings.CleanupMaxAge)
	assert.NoError(t, dialog.settings.ValidateForSave())
}

func TestSettingsDialog_Show(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")

	t.Run("loads through the callback", func(t *testing.T) {
		dialog := NewSettingsDialog(window)
		loaded := models.DefaultApplicationSettings()
		loaded.UploadBucket = "loaded-bucket"
		dialog.SetCallbacks(nil, func() (*models.ApplicationSettings, error) { return loaded, nil })

		dialog.Show()
		assert.Same(t, loaded, dialog.settings)
		assert.Equal(t, "loaded-bucket", dialog.uploadBucketEntry.Text)
		dialog.Hide()
	})

	t.Run("falls back to defaults", func(t *testing.T) {
		dialog := NewSettingsDialog(window)
		dialog.SetCallbacks(nil, func() (*models.ApplicationSettings, error) { return nil, errors.New("database locked") })

		dialog.Show()
		require.NotNil(t, dialog.settings)
		assert.Equal(t, models.DefaultApplicationSettings().DefaultRecordLimit, dialog.recordLimitSelect.Selected)
		dialog.Hide()
	})
}

func TestSettingsDialog_Save(t *testing.T) {
	app := test.NewApp()
	window := app.NewWindow("Test")
	dialog := NewSettingsDialog(window)

	var saved *models.ApplicationSettings
	dialog.SetCallbacks(func(s *models.ApplicationSettings) error {
		saved = s
		return nil
	}, nil)
	dialog.Show()
	dialog.uploadBucketEntry.SetText("clips-bucket")

	dialog.saveSettings()
	require.NotNil(t, saved)
	assert.Equal(t, "clips-bucket", saved.UploadBucket)
	assert.Equal(t, 1.0, saved.PlaybackRate)
}
