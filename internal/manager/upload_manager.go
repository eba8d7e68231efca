package manager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"clip-studio/internal/aws"
	"clip-studio/internal/dispatch"
	"clip-studio/internal/models"
	"clip-studio/internal/observe"
	"clip-studio/internal/storage"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

const interruptedMessage = "interrupted before completion"

// UploadManager publishes drafts and keeps their history
type UploadManager interface {
	// Publish takes ownership of the draft's file and uploads it in the background
	Publish(ctx context.Context, draft *models.DraftAsset) (*Upload, error)
	// Retry uploads a failed or canceled record again from its local file
	Retry(ctx context.Context, id string) (*Upload, error)
	Active(id string) (*Upload, bool)
	History() ([]*models.UploadRecord, error)
	Get(id string) (*models.UploadRecord, error)
	// Remove deletes a record, its local file and, once published, the remote object
	Remove(ctx context.Context, id string) error
	PresignURL(ctx context.Context, id string, expiration time.Duration) (string, error)
	RecoverInterrupted() (int, error)
	Close()
}

// UploadOptions configures an UploadManagerImpl
type UploadOptions struct {
	KeyPrefix  string
	Retry      apperrors.RetryConfig
	Dispatcher dispatch.Dispatcher
	Logger     *logger.Logger
}

// UploadManagerImpl implements UploadManager over an S3Service and the history database
type UploadManagerImpl struct {
	db         storage.Database
	s3Service  aws.S3Service
	keyPrefix  string
	retry      apperrors.RetryConfig
	dispatcher dispatch.Dispatcher
	logger     *logger.Logger

	base   context.Context
	stop   context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	active map[string]*Upload
}

// NewUploadManager creates an UploadManagerImpl
func NewUploadManager(db storage.Database, s3Service aws.S3Service, opts UploadOptions) *UploadManagerImpl {
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = apperrors.DefaultRetryConfig()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.Immediate{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("upload")
	}
	base, stop := context.WithCancel(context.Background())
	return &UploadManagerImpl{
		db:         db,
		s3Service:  s3Service,
		keyPrefix:  strings.Trim(opts.KeyPrefix, "/"),
		retry:      opts.Retry,
		dispatcher: opts.Dispatcher,
		logger:     opts.Logger,
		base:       base,
		stop:       stop,
		active:     make(map[string]*Upload),
	}
}

func (m *UploadManagerImpl) Publish(ctx context.Context, draft *models.DraftAsset) (*Upload, error) {
	if draft == nil {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "no draft to publish", nil)
	}
	if m.s3Service == nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "upload destination not configured", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrUploadCanceled, "publish was canceled", err)
	}

	if draft.Released() {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidState, "draft was already published or discarded", models.ErrDraftReleased)
	}
	path := draft.SourcePath()
	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "draft file is missing", err,
			map[string]interface{}{"draft": draft.ID()})
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "draft file is empty", nil)
	}

	meta := draft.Metadata()
	fileName := filepath.Base(path)
	record := &models.UploadRecord{
		ID:               ulid.Make().String(),
		DraftID:          draft.ID(),
		FileName:         fileName,
		FilePath:         path,
		FileSize:         info.Size(),
		Duration:         draft.OriginalDuration(),
		Caption:          meta.Caption,
		CommentsDisabled: meta.CommentsDisabled,
		LikeCountHidden:  meta.LikeCountHidden,
		S3Key:            generateS3Key(m.keyPrefix, fileName),
		Status:           models.UploadPending,
	}
	// the draft keeps the file until a record points at it
	if err := m.db.SaveUpload(record); err != nil {
		return nil, err
	}
	if _, err := draft.Release(); err != nil {
		if delErr := m.db.DeleteUpload(record.ID); delErr != nil {
			m.logger.WarnWithError("Failed to drop record of a refused publish", delErr)
		}
		return nil, apperrors.NewAppError(apperrors.ErrInvalidState, "draft was already published or discarded", err)
	}

	m.logger.InfoWithFields("Publishing draft", map[string]interface{}{
		"upload": record.ID,
		"draft":  record.DraftID,
		"size":   record.FileSize,
	})
	return m.start(record), nil
}

func (m *UploadManagerImpl) Retry(ctx context.Context, id string) (*Upload, error) {
	if m.s3Service == nil {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "upload destination not configured", nil)
	}
	if _, busy := m.Active(id); busy {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrResourceBusy, "upload is still running", nil,
			map[string]interface{}{"upload": id})
	}
	record, err := m.db.GetUpload(id)
	if err != nil {
		return nil, err
	}
	if !record.Retryable() {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrOperationNotAllowed,
			fmt.Sprintf("cannot retry an upload that is %s", record.Status), nil,
			map[string]interface{}{"upload": id})
	}
	if _, err := os.Stat(record.FilePath); err != nil {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "local copy of the draft is gone", err,
			map[string]interface{}{"upload": id})
	}

	record.Status = models.UploadPending
	record.Progress = 0
	record.LastError = ""
	if err := m.db.SaveUpload(record); err != nil {
		return nil, err
	}
	m.logger.InfoWithFields("Retrying upload", map[string]interface{}{"upload": id})
	return m.start(record), nil
}

func (m *UploadManagerImpl) start(record *models.UploadRecord) *Upload {
	ctx, cancel := context.WithCancel(m.base)
	u := &Upload{
		record:     *record,
		gate:       &aws.Gate{},
		cancel:     cancel,
		done:       make(chan struct{}),
		dispatcher: m.dispatcher,
		obs:        observe.NewSet[models.UploadProgress](),
		persist:    m.persistStatus,
	}

	m.mu.Lock()
	m.active[record.ID] = u
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(ctx, u)
	}()
	return u
}

func (m *UploadManagerImpl) run(ctx context.Context, u *Upload) {
	defer func() {
		m.mu.Lock()
		delete(m.active, u.ID())
		m.mu.Unlock()
		close(u.done)
	}()

	u.setStatus(models.UploadRunning, nil)
	m.persistStatus(u)

	record := u.Record()
	req := aws.UploadRequest{
		Key:      record.S3Key,
		FilePath: record.FilePath,
		Metadata: map[string]string{
			"upload-id":         record.ID,
			"draft-id":          record.DraftID,
			"duration-ms":       fmt.Sprint(record.Duration.Milliseconds()),
			"caption":           record.Caption,
			"comments-disabled": fmt.Sprint(record.CommentsDisabled),
			"like-count-hidden": fmt.Sprint(record.LikeCountHidden),
		},
		Gate:     u.gate,
		Progress: u.report,
	}

	err := m.logger.LogOperation("publish_"+record.ID, func() error {
		return apperrors.RetryWithBackoff(ctx, func() error {
			return m.s3Service.UploadFile(ctx, req)
		}, m.retry)
	})

	switch {
	case err == nil:
		u.setStatus(models.UploadCompleted, nil)
		if rmErr := os.Remove(record.FilePath); rmErr != nil && !os.IsNotExist(rmErr) {
			m.logger.WarnWithError("Failed to remove published draft file", rmErr)
		}
	case apperrors.IsCanceled(err) || ctx.Err() != nil:
		u.setStatus(models.UploadCanceled, apperrors.NewAppError(apperrors.ErrUploadCanceled, "upload was canceled", err))
	default:
		u.setStatus(models.UploadFailed, apperrors.ClassifyError(err))
		m.logger.ErrorWithFields("Upload failed", map[string]interface{}{
			"upload": record.ID,
			"error":  err.Error(),
		})
	}
	m.persistStatus(u)
}

func (m *UploadManagerImpl) persistStatus(u *Upload) {
	r := u.Record()
	if err := m.db.UpdateUploadStatus(r.ID, r.Status, r.Progress, r.LastError); err != nil {
		m.logger.WarnWithError("Failed to record upload status", err)
	}
}

func (m *UploadManagerImpl) Active(id string) (*Upload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.active[id]
	return u, ok
}

func (m *UploadManagerImpl) History() ([]*models.UploadRecord, error) {
	return m.db.ListUploads()
}

func (m *UploadManagerImpl) Get(id string) (*models.UploadRecord, error) {
	if u, ok := m.Active(id); ok {
		r := u.Record()
		return &r, nil
	}
	return m.db.GetUpload(id)
}

func (m *UploadManagerImpl) Remove(ctx context.Context, id string) error {
	if _, busy := m.Active(id); busy {
		return apperrors.NewAppErrorWithContext(apperrors.ErrResourceBusy, "cancel the upload before removing it", nil,
			map[string]interface{}{"upload": id})
	}
	record, err := m.db.GetUpload(id)
	if err != nil {
		return err
	}

	if record.Status == models.UploadCompleted && m.s3Service != nil {
		if err := m.s3Service.DeleteObject(ctx, record.S3Key); err != nil && !apperrors.Is(err, apperrors.ErrRecordNotFound) {
			return err
		}
	}
	if err := os.Remove(record.FilePath); err != nil && !os.IsNotExist(err) {
		m.logger.WarnWithError("Failed to remove local draft file", err)
	}
	return m.db.DeleteUpload(id)
}

// PresignURL returns a download link for a completed upload
func (m *UploadManagerImpl) PresignURL(ctx context.Context, id string, expiration time.Duration) (string, error) {
	if m.s3Service == nil {
		return "", apperrors.NewAppError(apperrors.ErrConfigurationError, "upload destination not configured", nil)
	}
	record, err := m.db.GetUpload(id)
	if err != nil {
		return "", err
	}
	if record.Status != models.UploadCompleted {
		return "", apperrors.NewAppErrorWithContext(apperrors.ErrOperationNotAllowed,
			fmt.Sprintf("cannot link an upload that is %s", record.Status), nil,
			map[string]interface{}{"upload": id})
	}
	return m.s3Service.GeneratePresignedURL(ctx, record.S3Key, expiration)
}

// RecoverInterrupted marks uploads left unfinished by a previous run as failed so they can be retried
func (m *UploadManagerImpl) RecoverInterrupted() (int, error) {
	recovered := 0
	for _, status := range []models.UploadStatus{models.UploadPending, models.UploadRunning, models.UploadPaused} {
		records, err := m.db.ListUploadsByStatus(status)
		if err != nil {
			return recovered, err
		}
		for _, r := range records {
			if _, ok := m.Active(r.ID); ok {
				continue
			}
			if err := m.db.UpdateUploadStatus(r.ID, models.UploadFailed, r.Progress, interruptedMessage); err != nil {
				return recovered, err
			}
			recovered++
		}
	}
	if recovered > 0 {
		m.logger.InfoWithFields("Recovered interrupted uploads", map[string]interface{}{"count": recovered})
	}
	return recovered, nil
}

// Close cancels running uploads and waits for them to record their state
func (m *UploadManagerImpl) Close() {
	m.stop()
	m.wg.Wait()
}

// generateS3Key builds prefix/YYYY/MM/DD/<uuid>.<ext>
func generateS3Key(prefix, fileName string) string {
	datePath := time.Now().UTC().Format("2006/01/02")
	key := fmt.Sprintf("%s/%s%s", datePath, uuid.New().String(), strings.ToLower(filepath.Ext(fileName)))
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}

// Upload is a running publish. Progress is reported 0 to 100.
type Upload struct {
	gate       *aws.Gate
	cancel     context.CancelFunc
	done       chan struct{}
	dispatcher dispatch.Dispatcher
	obs        *observe.Set[models.UploadProgress]
	persist    func(*Upload)

	mu     sync.Mutex
	record models.UploadRecord
	sent   int64
	err    error
}

func (u *Upload) ID() string {
	return u.record.ID
}

// Record returns a snapshot of the history entry
func (u *Upload) Record() models.UploadRecord {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record
}

func (u *Upload) Progress() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record.Progress
}

func (u *Upload) Status() models.UploadStatus {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.record.Status
}

// Pause holds the upload before its next read
func (u *Upload) Pause() error {
	u.mu.Lock()
	if u.record.Status != models.UploadRunning && u.record.Status != models.UploadPending {
		status := u.record.Status
		u.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, fmt.Sprintf("cannot pause an upload that is %s", status), nil)
	}
	u.gate.Pause()
	u.record.Status = models.UploadPaused
	ev := u.progressLocked()
	u.mu.Unlock()

	u.persist(u)
	u.publish(ev)
	return nil
}

func (u *Upload) Resume() error {
	u.mu.Lock()
	if u.record.Status != models.UploadPaused {
		status := u.record.Status
		u.mu.Unlock()
		return apperrors.NewAppError(apperrors.ErrOperationNotAllowed, fmt.Sprintf("cannot resume an upload that is %s", status), nil)
	}
	u.record.Status = models.UploadRunning
	u.gate.Resume()
	ev := u.progressLocked()
	u.mu.Unlock()

	u.persist(u)
	u.publish(ev)
	return nil
}

// Cancel stops the upload; the local file is kept for a retry
func (u *Upload) Cancel() {
	u.cancel()
}

func (u *Upload) Done() <-chan struct{} {
	return u.done
}

// Wait blocks until the upload finishes and returns its final error
func (u *Upload) Wait(ctx context.Context) error {
	select {
	case <-u.done:
		u.mu.Lock()
		defer u.mu.Unlock()
		return u.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe registers fn for progress reports until the returned function is called
func (u *Upload) Subscribe(fn func(models.UploadProgress)) (unsubscribe func()) {
	return u.obs.Add(fn)
}

// report converts byte counts to a percentage. 100 is only reached on completion.
func (u *Upload) report(sent, total int64) {
	u.mu.Lock()
	u.sent = sent
	pct := 0
	if total > 0 {
		pct = int(sent * 100 / total)
	}
	if pct > 99 {
		pct = 99
	}
	if pct <= u.record.Progress {
		u.mu.Unlock()
		return
	}
	u.record.Progress = pct
	ev := u.progressLocked()
	u.mu.Unlock()
	u.publish(ev)
}

func (u *Upload) setStatus(status models.UploadStatus, err error) {
	u.mu.Lock()
	if status == models.UploadRunning && u.record.Status == models.UploadPaused {
		// paused before the goroutine started
		u.mu.Unlock()
		return
	}
	u.record.Status = status
	u.err = err
	if status == models.UploadCompleted {
		u.record.Progress = 100
		u.sent = u.record.FileSize
	}
	if err != nil {
		u.record.LastError = err.Error()
	}
	ev := u.progressLocked()
	u.mu.Unlock()
	u.publish(ev)
}

func (u *Upload) progressLocked() models.UploadProgress {
	return models.UploadProgress{
		UploadID:      u.record.ID,
		BytesUploaded: u.sent,
		TotalBytes:    u.record.FileSize,
		Percentage:    u.record.Progress,
		Status:        u.record.Status,
	}
}

func (u *Upload) publish(ev models.UploadProgress) {
	u.obs.Notify(u.dispatcher.Do, ev)
}
