package manager

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/clock"
	"clip-studio/internal/models"
	apperrors "clip-studio/pkg/errors"
)

func writeAged(t *testing.T, dir, name string, age time.Duration, now time.Time) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("0123456789"), 0600))
	mtime := now.Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func TestNewCleanupManager_Validation(t *testing.T) {
	_, err := NewCleanupManager(CleanupOptions{MaxAge: time.Hour})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidConfig))

	_, err = NewCleanupManager(CleanupOptions{TempDir: t.TempDir()})
	assert.True(t, apperrors.Is(err, apperrors.ErrInvalidConfig))

	c, err := NewCleanupManager(CleanupOptions{TempDir: t.TempDir(), MaxAge: time.Hour})
	require.NoError(t, err)
	c.SetMaxAge(0)
	assert.Equal(t, time.Hour, c.MaxAge())
	c.SetMaxAge(2 * time.Hour)
	assert.Equal(t, 2*time.Hour, c.MaxAge())
}

func TestCleanupManager_Sweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	db := newTestDB(t)

	stale := writeAged(t, dir, "stale.mp4", 3*time.Hour, now)
	fresh := writeAged(t, dir, "fresh.mp4", 10*time.Minute, now)
	live := writeAged(t, dir, "segment-live.mp4", 3*time.Hour, now)
	retryable := writeAged(t, dir, "failed-upload.mp4", 3*time.Hour, now)
	published := writeAged(t, dir, "published.mp4", 3*time.Hour, now)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0700))

	require.NoError(t, db.SaveUpload(&models.UploadRecord{ID: "a", FilePath: retryable, Status: models.UploadFailed}))
	require.NoError(t, db.SaveUpload(&models.UploadRecord{ID: "b", FilePath: published, Status: models.UploadCompleted}))

	c, err := NewCleanupManager(CleanupOptions{
		TempDir: dir,
		MaxAge:  time.Hour,
		DB:      db,
		Protect: func() []string { return []string{live} },
		Clock:   clock.NewManual(now),
	})
	require.NoError(t, err)

	report, err := c.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Deleted)
	assert.Equal(t, int64(20), report.Freed)
	assert.Equal(t, 2, report.Protected)
	assert.Zero(t, report.Failed)

	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, published)
	assert.FileExists(t, fresh)
	assert.FileExists(t, live)
	assert.FileExists(t, retryable)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestCleanupManager_MissingDir(t *testing.T) {
	c, err := NewCleanupManager(CleanupOptions{TempDir: filepath.Join(t.TempDir(), "gone"), MaxAge: time.Hour})
	require.NoError(t, err)
	report, err := c.Sweep()
	require.NoError(t, err)
	assert.Zero(t, report.Deleted)
}

func TestCleanupManager_Schedule(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()
	clk := clock.NewManual(now)

	first := writeAged(t, dir, "first.mp4", 2*time.Hour, now)
	c, err := NewCleanupManager(CleanupOptions{TempDir: dir, MaxAge: time.Hour, Interval: time.Minute, Clock: clk})
	require.NoError(t, err)

	c.Start()
	defer c.Stop()
	assert.NoFileExists(t, first, "start sweeps immediately")
	require.Equal(t, 1, clk.TickerCount())

	second := writeAged(t, dir, "second.mp4", 30*time.Minute, now)
	clk.Advance(time.Hour)
	require.True(t, clk.LastTicker().Tick())
	require.Eventually(t, func() bool {
		_, err := os.Stat(second)
		return os.IsNotExist(err)
	}, 2*time.Second, 10*time.Millisecond)

	c.Start()
	assert.Equal(t, 1, clk.TickerCount(), "start is idempotent")

	c.Stop()
	assert.True(t, clk.LastTicker().Stopped())
	c.Stop()
}
