package manager

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	"clip-studio/internal/clock"
	"clip-studio/internal/models"
	"clip-studio/internal/storage"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// CleanupReport summarises one sweep of the temp directory
type CleanupReport struct {
	Deleted   int
	Freed     int64
	Protected int
	Failed    int
}

// CleanupOptions configures a CleanupManager
type CleanupOptions struct {
	TempDir  string
	MaxAge   time.Duration
	Interval time.Duration
	// DB protects the local files of uploads that can still be retried
	DB storage.Database
	// Protect returns paths owned by live segments and drafts
	Protect func() []string
	Clock   clock.Clock
	Logger  *logger.Logger
}

// CleanupManager removes orphaned media from the temp directory
type CleanupManager struct {
	tempDir  string
	maxAge   time.Duration
	interval time.Duration
	db       storage.Database
	protect  func() []string
	clock    clock.Clock
	logger   *logger.Logger

	mu       sync.Mutex
	stopChan chan struct{}
	stopped  chan struct{}
}

// NewCleanupManager creates a manager; it does nothing until Sweep or Start
func NewCleanupManager(opts CleanupOptions) (*CleanupManager, error) {
	if opts.TempDir == "" {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "cleanup requires a temp directory", nil)
	}
	if opts.MaxAge <= 0 {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidConfig, "cleanup max age must be positive", nil)
	}
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Minute
	}
	if opts.Clock == nil {
		opts.Clock = clock.System{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("cleanup")
	}
	return &CleanupManager{
		tempDir:  opts.TempDir,
		maxAge:   opts.MaxAge,
		interval: opts.Interval,
		db:       opts.DB,
		protect:  opts.Protect,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}, nil
}

// SetMaxAge changes the age threshold, as when settings are saved
func (c *CleanupManager) SetMaxAge(age time.Duration) {
	if age <= 0 {
		return
	}
	c.mu.Lock()
	c.maxAge = age
	c.mu.Unlock()
}

func (c *CleanupManager) MaxAge() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxAge
}

// Sweep deletes regular files in the temp directory older than the max age.
// Files still owned by the editor or a retryable upload are kept.
func (c *CleanupManager) Sweep() (CleanupReport, error) {
	var report CleanupReport
	protected, err := c.protectedPaths()
	if err != nil {
		return report, err
	}

	entries, err := os.ReadDir(c.tempDir)
	if err != nil {
		if os.IsNotExist(err) {
			return report, nil
		}
		return report, apperrors.NewAppError(apperrors.ErrFileNotFound, "failed to read temp directory", err)
	}

	now := c.clock.Now()
	maxAge := c.MaxAge()
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		path := filepath.Join(c.tempDir, entry.Name())
		info, err := entry.Info()
		if err != nil {
			continue
		}
		age := now.Sub(info.ModTime())
		if age <= maxAge {
			continue
		}
		if protected[path] {
			report.Protected++
			continue
		}
		if err := os.Remove(path); err != nil {
			report.Failed++
			c.logger.WarnWithFields("Failed to delete old temp file", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		report.Deleted++
		report.Freed += info.Size()
		c.logger.DebugWithFields("Deleted old temp file", map[string]interface{}{
			"file": entry.Name(),
			"age":  age.Round(time.Minute).String(),
			"size": info.Size(),
		})
	}

	if report.Deleted > 0 || report.Failed > 0 {
		c.logger.InfoWithFields("Cleanup complete", map[string]interface{}{
			"deleted":   report.Deleted,
			"freed_mb":  float64(report.Freed) / (1024 * 1024),
			"protected": report.Protected,
			"failed":    report.Failed,
		})
	}
	return report, nil
}

func (c *CleanupManager) protectedPaths() (map[string]bool, error) {
	protected := make(map[string]bool)
	if c.protect != nil {
		for _, p := range c.protect() {
			protected[filepath.Clean(p)] = true
		}
	}
	if c.db == nil {
		return protected, nil
	}
	for _, status := range []models.UploadStatus{
		models.UploadPending, models.UploadRunning, models.UploadPaused,
		models.UploadFailed, models.UploadCanceled,
	} {
		records, err := c.db.ListUploadsByStatus(status)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			protected[filepath.Clean(r.FilePath)] = true
		}
	}
	return protected, nil
}

// Start sweeps once, then on every interval until Stop
func (c *CleanupManager) Start() {
	c.mu.Lock()
	if c.stopChan != nil {
		c.mu.Unlock()
		return
	}
	c.stopChan = make(chan struct{})
	c.stopped = make(chan struct{})
	stop, stopped := c.stopChan, c.stopped
	c.mu.Unlock()

	if _, err := c.Sweep(); err != nil {
		c.logger.WarnWithError("Initial cleanup failed", err)
	}

	ticker := c.clock.NewTicker(c.interval)
	go func() {
		defer close(stopped)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C():
				if _, err := c.Sweep(); err != nil {
					c.logger.WarnWithError("Cleanup failed", err)
				}
			case <-stop:
				return
			}
		}
	}()

	c.logger.InfoWithFields("Cleanup scheduler started", map[string]interface{}{
		"interval": c.interval.String(),
		"max_age":  c.MaxAge().String(),
	})
}

// Stop ends the schedule and waits for a sweep in progress
func (c *CleanupManager) Stop() {
	c.mu.Lock()
	stop, stopped := c.stopChan, c.stopped
	c.stopChan, c.stopped = nil, nil
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-stopped
}
