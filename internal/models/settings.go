package models

import (
	"encoding/json"
	"time"
)

// ApplicationSettings represents user preferences stored locally
type ApplicationSettings struct {
	// Upload destination
	AWSRegion    string `json:"aws_region"`
	UploadBucket string `json:"upload_bucket"`

	// Capture and editing defaults
	DefaultRecordLimit string  `json:"default_record_limit"` // name of a RecordLimit
	PlaybackRate       float64 `json:"playback_rate"`

	// Temp media housekeeping
	AutoCleanup   bool   `json:"auto_cleanup"`
	CleanupMaxAge string `json:"cleanup_max_age"` // "1h", "1d", "1w"

	LastUpdated time.Time `json:"last_updated"`
}

// DefaultApplicationSettings returns the default application settings
func DefaultApplicationSettings() *ApplicationSettings {
	return &ApplicationSettings{
		AWSRegion:          "us-west-2",
		UploadBucket:       "",
		DefaultRecordLimit: RecordLimitShort.Name,
		PlaybackRate:       1.0,
		AutoCleanup:        true,
		CleanupMaxAge:      "1d",
		LastUpdated:        time.Now(),
	}
}

// ToJSON converts settings to JSON string for database storage
func (s *ApplicationSettings) ToJSON() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSON loads settings from JSON string
func (s *ApplicationSettings) FromJSON(jsonStr string) error {
	return json.Unmarshal([]byte(jsonStr), s)
}

var cleanupAges = map[string]time.Duration{
	"1h": time.Hour,
	"1d": 24 * time.Hour,
	"1w": 7 * 24 * time.Hour,
}

var playbackRates = map[float64]bool{
	0.5: true, 1.0: true, 1.5: true, 2.0: true,
}

// GetCleanupMaxAge converts the cleanup age setting to a duration
func (s *ApplicationSettings) GetCleanupMaxAge() time.Duration {
	if age, ok := cleanupAges[s.CleanupMaxAge]; ok {
		return age
	}
	return 24 * time.Hour
}

// RecordLimit resolves the default record limit among allowed
func (s *ApplicationSettings) RecordLimit(allowed []RecordLimit) RecordLimit {
	limit, err := ParseRecordLimit(s.DefaultRecordLimit, allowed)
	if err != nil && len(allowed) > 0 {
		return allowed[0]
	}
	return limit
}

// Validate checks if the settings are valid
func (s *ApplicationSettings) Validate() error {
	if s.AWSRegion == "" {
		return &ValidationError{Field: "aws_region", Message: "AWS region cannot be empty"}
	}

	if _, err := ParseRecordLimit(s.DefaultRecordLimit, DefaultRecordLimits()); err != nil {
		return &ValidationError{Field: "default_record_limit", Message: "Invalid record limit"}
	}

	if !playbackRates[s.PlaybackRate] {
		return &ValidationError{Field: "playback_rate", Message: "Playback rate must be one of 0.5, 1, 1.5 or 2"}
	}

	if _, ok := cleanupAges[s.CleanupMaxAge]; !ok {
		return &ValidationError{Field: "cleanup_max_age", Message: "Invalid cleanup age"}
	}

	return nil
}

// ValidateForSave checks if the settings are valid for saving (stricter validation)
func (s *ApplicationSettings) ValidateForSave() error {
	if s == nil {
		return &ValidationError{Field: "settings", Message: "settings cannot be nil"}
	}

	if err := s.Validate(); err != nil {
		return err
	}

	// publishing needs a destination
	if s.UploadBucket == "" {
		return &ValidationError{Field: "upload_bucket", Message: "Upload bucket name cannot be empty"}
	}

	return nil
}

// ValidationError represents a settings validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Message
}
