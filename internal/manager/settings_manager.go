package manager

import (
	"fmt"
	"strconv"
	"time"

	"clip-studio/internal/models"
	"clip-studio/internal/storage"
	apperrors "clip-studio/pkg/errors"
)

const (
	settingsConfigKey = "application_settings"
)

// SettingsManager interface defines the contract for settings management
type SettingsManager interface {
	LoadSettings() (*models.ApplicationSettings, error)
	SaveSettings(settings *models.ApplicationSettings) error
	GetDefaultSettings() *models.ApplicationSettings
	ValidateSettings(settings *models.ApplicationSettings) error
}

// SettingsManagerImpl implements the SettingsManager interface
type SettingsManagerImpl struct {
	db storage.Database
}

// NewSettingsManager creates a new settings manager
func NewSettingsManager(db storage.Database) *SettingsManagerImpl {
	return &SettingsManagerImpl{
		db: db,
	}
}

// LoadSettings loads application settings from the database.
// Defaults are returned, not saved, when nothing has been stored yet.
func (sm *SettingsManagerImpl) LoadSettings() (*models.ApplicationSettings, error) {
	settingsJSON, err := sm.db.GetConfig(settingsConfigKey)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return models.DefaultApplicationSettings(), nil
		}
		return nil, err
	}

	settings := models.DefaultApplicationSettings()
	if err := settings.FromJSON(settingsJSON); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "failed to parse stored settings", err)
	}
	return settings, nil
}

// SaveSettings saves application settings to the database
func (sm *SettingsManagerImpl) SaveSettings(settings *models.ApplicationSettings) error {
	if err := settings.ValidateForSave(); err != nil {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("settings validation failed: %v", err), err)
	}

	settings.LastUpdated = time.Now()

	settingsJSON, err := settings.ToJSON()
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrInternalError, "failed to serialize settings", err)
	}
	return sm.db.SaveConfig(settingsConfigKey, settingsJSON)
}

// GetDefaultSettings returns the default application settings
func (sm *SettingsManagerImpl) GetDefaultSettings() *models.ApplicationSettings {
	return models.DefaultApplicationSettings()
}

// ValidateSettings validates the provided settings (basic validation)
func (sm *SettingsManagerImpl) ValidateSettings(settings *models.ApplicationSettings) error {
	if settings == nil {
		return &models.ValidationError{Field: "settings", Message: "settings cannot be nil"}
	}
	return settings.Validate()
}

// UpdateSetting updates a specific setting by key
func (sm *SettingsManagerImpl) UpdateSetting(key, value string) error {
	settings, err := sm.LoadSettings()
	if err != nil {
		return err
	}

	switch key {
	case "aws_region":
		settings.AWSRegion = value
	case "upload_bucket":
		settings.UploadBucket = value
	case "default_record_limit":
		settings.DefaultRecordLimit = value
	case "playback_rate":
		rate, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return apperrors.NewAppError(apperrors.ErrInvalidInput, "playback rate must be a number", err)
		}
		settings.PlaybackRate = rate
	case "auto_cleanup":
		settings.AutoCleanup = value == "true"
	case "cleanup_max_age":
		settings.CleanupMaxAge = value
	default:
		return apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("unknown setting key: %s", key), nil)
	}

	return sm.SaveSettings(settings)
}

// GetSetting retrieves a specific setting by key
func (sm *SettingsManagerImpl) GetSetting(key string) (string, error) {
	settings, err := sm.LoadSettings()
	if err != nil {
		return "", err
	}

	switch key {
	case "aws_region":
		return settings.AWSRegion, nil
	case "upload_bucket":
		return settings.UploadBucket, nil
	case "default_record_limit":
		return settings.DefaultRecordLimit, nil
	case "playback_rate":
		return strconv.FormatFloat(settings.PlaybackRate, 'g', -1, 64), nil
	case "auto_cleanup":
		return strconv.FormatBool(settings.AutoCleanup), nil
	case "cleanup_max_age":
		return settings.CleanupMaxAge, nil
	default:
		return "", apperrors.NewAppError(apperrors.ErrInvalidInput, fmt.Sprintf("unknown setting key: %s", key), nil)
	}
}
