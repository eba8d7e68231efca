package manager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/models"
	apperrors "clip-studio/pkg/errors"
)

func TestSettingsManager_LoadDefaults(t *testing.T) {
	sm := NewSettingsManager(newTestDB(t))

	settings, err := sm.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "us-west-2", settings.AWSRegion)
	assert.Equal(t, models.RecordLimitShort.Name, settings.DefaultRecordLimit)
	assert.Equal(t, 1.0, settings.PlaybackRate)
	assert.True(t, settings.AutoCleanup)
	assert.NoError(t, sm.ValidateSettings(settings))
}

func TestSettingsManager_SaveAndLoad(t *testing.T) {
	sm := NewSettingsManager(newTestDB(t))

	settings := sm.GetDefaultSettings()
	settings.UploadBucket = "clips-bucket"
	settings.DefaultRecordLimit = models.RecordLimitLong.Name
	settings.PlaybackRate = 1.5
	settings.CleanupMaxAge = "1w"
	require.NoError(t, sm.SaveSettings(settings))

	loaded, err := sm.LoadSettings()
	require.NoError(t, err)
	assert.Equal(t, "clips-bucket", loaded.UploadBucket)
	assert.Equal(t, models.RecordLimitLong, loaded.RecordLimit(models.DefaultRecordLimits()))
	assert.Equal(t, 1.5, loaded.PlaybackRate)
	assert.Equal(t, 7*24*60*60.0, loaded.GetCleanupMaxAge().Seconds())
	assert.False(t, loaded.LastUpdated.IsZero())
}

func TestSettingsManager_SaveValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.ApplicationSettings)
	}{
		{"missing bucket", func(s *models.ApplicationSettings) { s.UploadBucket = "" }},
		{"missing region", func(s *models.ApplicationSettings) { s.AWSRegion = "" }},
		{"unknown record limit", func(s *models.ApplicationSettings) { s.DefaultRecordLimit = "forever" }},
		{"unsupported rate", func(s *models.ApplicationSettings) { s.PlaybackRate = 3 }},
		{"unknown cleanup age", func(s *models.ApplicationSettings) { s.CleanupMaxAge = "1y" }},
	}

	sm := NewSettingsManager(newTestDB(t))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := sm.GetDefaultSettings()
			settings.UploadBucket = "clips-bucket"
			tt.mutate(settings)

			err := sm.SaveSettings(settings)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
		})
	}

	assert.Error(t, sm.ValidateSettings(nil))
}

func TestSettingsManager_UpdateAndGetSetting(t *testing.T) {
	sm := NewSettingsManager(newTestDB(t))
	require.NoError(t, sm.UpdateSetting("upload_bucket", "clips-bucket"))

	tests := []struct {
		key   string
		value string
	}{
		{"aws_region", "eu-central-1"},
		{"default_record_limit", "long"},
		{"playback_rate", "0.5"},
		{"auto_cleanup", "false"},
		{"cleanup_max_age", "1h"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			require.NoError(t, sm.UpdateSetting(tt.key, tt.value))
			got, err := sm.GetSetting(tt.key)
			require.NoError(t, err)
			assert.Equal(t, tt.value, got)
		})
	}

	err := sm.UpdateSetting("playback_rate", "fast")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	err = sm.UpdateSetting("theme", "dark")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
	_, err = sm.GetSetting("theme")
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidInput))
}
