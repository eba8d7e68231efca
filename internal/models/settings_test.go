package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultApplicationSettings(t *testing.T) {
	settings := DefaultApplicationSettings()

	assert.Equal(t, "us-west-2", settings.AWSRegion)
	assert.Equal(t, "", settings.UploadBucket)
	assert.Equal(t, "short", settings.DefaultRecordLimit)
	assert.Equal(t, 1.0, settings.PlaybackRate)
	assert.True(t, settings.AutoCleanup)
	assert.Equal(t, "1d", settings.CleanupMaxAge)
	assert.False(t, settings.LastUpdated.IsZero())
	assert.NoError(t, settings.Validate())
}

func TestApplicationSettings_ToJSON_FromJSON(t *testing.T) {
	original := &ApplicationSettings{
		AWSRegion:          "eu-west-1",
		UploadBucket:       "clips",
		DefaultRecordLimit: "long",
		PlaybackRate:       1.5,
		AutoCleanup:        false,
		CleanupMaxAge:      "1w",
		LastUpdated:        time.Now().Truncate(time.Second),
	}

	jsonStr, err := original.ToJSON()
	require.NoError(t, err)

	restored := &ApplicationSettings{}
	require.NoError(t, restored.FromJSON(jsonStr))

	assert.Equal(t, original.AWSRegion, restored.AWSRegion)
	assert.Equal(t, original.UploadBucket, restored.UploadBucket)
	assert.Equal(t, original.DefaultRecordLimit, restored.DefaultRecordLimit)
	assert.Equal(t, original.PlaybackRate, restored.PlaybackRate)
	assert.Equal(t, original.AutoCleanup, restored.AutoCleanup)
	assert.True(t, original.LastUpdated.Equal(restored.LastUpdated))
}

func TestApplicationSettings_FromJSON_Invalid(t *testing.T) {
	settings := &ApplicationSettings{}
	assert.Error(t, settings.FromJSON("{not json"))
}

func TestApplicationSettings_GetCleanupMaxAge(t *testing.T) {
	tests := []struct {
		age      string
		expected time.Duration
	}{
		{"1h", time.Hour},
		{"1d", 24 * time.Hour},
		{"1w", 7 * 24 * time.Hour},
		{"bogus", 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.age, func(t *testing.T) {
			s := &ApplicationSettings{CleanupMaxAge: tt.age}
			assert.Equal(t, tt.expected, s.GetCleanupMaxAge())
		})
	}
}

func TestApplicationSettings_RecordLimit(t *testing.T) {
	s := &ApplicationSettings{DefaultRecordLimit: "long"}
	assert.Equal(t, RecordLimitLong, s.RecordLimit(DefaultRecordLimits()))

	s.DefaultRecordLimit = "unknown"
	assert.Equal(t, RecordLimitShort, s.RecordLimit(DefaultRecordLimits()))
}

func TestApplicationSettings_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *ApplicationSettings)
		field   string
		wantErr bool
	}{
		{"valid", func(s *ApplicationSettings) {}, "", false},
		{"empty region", func(s *ApplicationSettings) { s.AWSRegion = "" }, "aws_region", true},
		{"unknown limit", func(s *ApplicationSettings) { s.DefaultRecordLimit = "epic" }, "default_record_limit", true},
		{"bad rate", func(s *ApplicationSettings) { s.PlaybackRate = 3 }, "playback_rate", true},
		{"bad cleanup age", func(s *ApplicationSettings) { s.CleanupMaxAge = "1y" }, "cleanup_max_age", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultApplicationSettings()
			tt.mutate(s)
			err := s.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var validationErr *ValidationError
			require.ErrorAs(t, err, &validationErr)
			assert.Equal(t, tt.field, validationErr.Field)
		})
	}
}

func TestApplicationSettings_ValidateForSave(t *testing.T) {
	var nilSettings *ApplicationSettings
	assert.Error(t, nilSettings.ValidateForSave())

	s := DefaultApplicationSettings()
	err := s.ValidateForSave()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Upload bucket")

	s.UploadBucket = "clips"
	assert.NoError(t, s.ValidateForSave())
}
