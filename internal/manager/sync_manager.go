package manager

import (
	"context"
	"strconv"
	"sync"
	"time"

	"clip-studio/internal/aws"
	"clip-studio/internal/models"
	"clip-studio/internal/storage"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

const (
	lastSyncConfigKey    = "last_sync_time"
	remoteMissingMessage = "published object no longer exists"
)

// SyncManager checks the upload history against the bucket
type SyncManager interface {
	// SyncWithS3 verifies every completed upload still exists remotely
	SyncWithS3(ctx context.Context) (*SyncResult, error)
	VerifyUpload(ctx context.Context, id string) (*UploadVerification, error)
	IsOfflineMode() bool
	GetLastSyncTime() (time.Time, error)
}

// SyncResult contains the results of a synchronization pass
type SyncResult struct {
	Checked      int           `json:"checked"`
	Verified     int           `json:"verified"`
	Missing      []string      `json:"missing"`
	Errors       []SyncError   `json:"errors"`
	SyncDuration time.Duration `json:"sync_duration"`
	OfflineMode  bool          `json:"offline_mode"`
}

// UploadVerification is the remote state of one completed upload
type UploadVerification struct {
	UploadID string `json:"upload_id"`
	Exists   bool   `json:"exists"`
	Size     int64  `json:"size"`
}

// SyncError records an upload that could not be checked
type SyncError struct {
	UploadID string              `json:"upload_id"`
	Code     apperrors.ErrorCode `json:"code"`
	Message  string              `json:"message"`
}

// SyncManagerImpl implements the SyncManager interface
type SyncManagerImpl struct {
	db        storage.Database
	s3Service aws.S3Service
	logger    *logger.Logger

	mu          sync.Mutex
	offlineMode bool
}

// NewSyncManager creates a SyncManager; a nil service means offline
func NewSyncManager(db storage.Database, s3Service aws.S3Service) *SyncManagerImpl {
	return &SyncManagerImpl{
		db:          db,
		s3Service:   s3Service,
		logger:      logger.NewWithComponent("sync"),
		offlineMode: s3Service == nil,
	}
}

func (sm *SyncManagerImpl) SyncWithS3(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{Missing: []string{}, Errors: []SyncError{}}

	if sm.s3Service == nil {
		sm.setOffline(true)
		result.OfflineMode = true
		return result, nil
	}

	if err := sm.s3Service.TestConnection(ctx); err != nil {
		sm.setOffline(true)
		result.OfflineMode = true
		result.SyncDuration = time.Since(start)
		sm.logger.WarnWithError("Bucket unreachable, entering offline mode", err)
		return result, err
	}
	sm.setOffline(false)

	records, err := sm.db.ListUploadsByStatus(models.UploadCompleted)
	if err != nil {
		return result, err
	}

	for _, r := range records {
		result.Checked++
		v, err := sm.verify(ctx, r)
		if err != nil {
			appErr := apperrors.ClassifyError(err)
			result.Errors = append(result.Errors, SyncError{UploadID: r.ID, Code: appErr.Code, Message: appErr.Message})
			continue
		}
		if v.Exists {
			result.Verified++
			continue
		}
		result.Missing = append(result.Missing, r.ID)
		if err := sm.db.UpdateUploadStatus(r.ID, models.UploadFailed, r.Progress, remoteMissingMessage); err != nil {
			appErr := apperrors.ClassifyError(err)
			result.Errors = append(result.Errors, SyncError{UploadID: r.ID, Code: appErr.Code, Message: appErr.Message})
		}
	}

	if err := sm.db.SaveConfig(lastSyncConfigKey, strconv.FormatInt(time.Now().UnixMilli(), 10)); err != nil {
		sm.logger.WarnWithError("Failed to save last sync time", err)
	}

	result.SyncDuration = time.Since(start)
	sm.logger.InfoWithFields("Synchronization completed", map[string]interface{}{
		"checked":  result.Checked,
		"verified": result.Verified,
		"missing":  len(result.Missing),
		"errors":   len(result.Errors),
		"duration": result.SyncDuration.String(),
	})
	return result, nil
}

func (sm *SyncManagerImpl) VerifyUpload(ctx context.Context, id string) (*UploadVerification, error) {
	if sm.s3Service == nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "upload destination not configured", nil)
	}
	r, err := sm.db.GetUpload(id)
	if err != nil {
		return nil, err
	}
	if r.Status != models.UploadCompleted {
		return &UploadVerification{UploadID: id}, nil
	}
	return sm.verify(ctx, r)
}

func (sm *SyncManagerImpl) verify(ctx context.Context, r *models.UploadRecord) (*UploadVerification, error) {
	info, err := sm.s3Service.HeadObject(ctx, r.S3Key)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return &UploadVerification{UploadID: r.ID}, nil
		}
		return nil, err
	}
	return &UploadVerification{UploadID: r.ID, Exists: true, Size: info.Size}, nil
}

func (sm *SyncManagerImpl) IsOfflineMode() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.offlineMode
}

func (sm *SyncManagerImpl) setOffline(offline bool) {
	sm.mu.Lock()
	sm.offlineMode = offline
	sm.mu.Unlock()
}

// GetLastSyncTime returns the zero time before the first successful sync
func (sm *SyncManagerImpl) GetLastSyncTime() (time.Time, error) {
	value, err := sm.db.GetConfig(lastSyncConfigKey)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, apperrors.NewAppError(apperrors.ErrDatabaseError, "invalid last sync time", err)
	}
	return time.UnixMilli(ms), nil
}
