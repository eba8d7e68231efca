package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"clip-studio/internal/models"
	apperrors "clip-studio/pkg/errors"
)

// CurrentSchemaVersion is the latest schema version.
// Bump this when adding migrations.
const CurrentSchemaVersion = 1

// DatabaseFile is the file name inside the data directory
const DatabaseFile = "clip-studio.db"

// Database interface defines the contract for local persistence
type Database interface {
	// Upload history
	SaveUpload(record *models.UploadRecord) error
	GetUpload(id string) (*models.UploadRecord, error)
	ListUploads() ([]*models.UploadRecord, error)
	ListUploadsByStatus(status models.UploadStatus) ([]*models.UploadRecord, error)
	UpdateUploadStatus(id string, status models.UploadStatus, progress int, lastErr string) error
	DeleteUpload(id string) error

	// Configuration
	SaveConfig(key, value string) error
	GetConfig(key string) (string, error)

	Close() error
}

// SQLiteDatabase implements Database on a WAL-mode SQLite file
type SQLiteDatabase struct {
	db *sql.DB
}

// NewSQLiteDatabase opens or creates the database in dataDir
func NewSQLiteDatabase(dataDir string) (*SQLiteDatabase, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to create data directory", err)
	}
	_ = os.Chmod(dataDir, 0700)

	dbPath := filepath.Join(dataDir, DatabaseFile)
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to open database", err)
	}

	if err := verifyWALMode(db); err != nil {
		db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	_ = os.Chmod(dbPath, 0600)
	return &SQLiteDatabase{db: db}, nil
}

// migrate applies schema migrations based on user_version
func migrate(db *sql.DB) error {
	version, err := getUserVersion(db)
	if err != nil {
		return err
	}

	if version < 1 {
		schema := `
		CREATE TABLE IF NOT EXISTS uploads (
		  id                TEXT PRIMARY KEY,
		  draft_id          TEXT NOT NULL,
		  filename          TEXT NOT NULL,
		  filepath          TEXT NOT NULL,
		  filesize          INTEGER NOT NULL,
		  duration_ms       INTEGER NOT NULL,
		  caption           TEXT NOT NULL DEFAULT '',
		  comments_disabled INTEGER NOT NULL DEFAULT 0,
		  like_count_hidden INTEGER NOT NULL DEFAULT 0,
		  s3_key            TEXT NOT NULL,
		  status            TEXT NOT NULL,
		  progress          INTEGER NOT NULL DEFAULT 0,
		  last_error        TEXT,
		  created_at        INTEGER NOT NULL,
		  updated_at        INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_uploads_status_updated
		ON uploads(status, updated_at DESC);

		CREATE TABLE IF NOT EXISTS config (
		  key        TEXT PRIMARY KEY,
		  value      TEXT NOT NULL,
		  updated_at INTEGER NOT NULL
		);
		`
		if _, err := db.Exec(schema); err != nil {
			return apperrors.NewAppError(apperrors.ErrDatabaseError, "migration 1 failed", err)
		}
		if err := setUserVersion(db, 1); err != nil {
			return err
		}
	}

	return nil
}

func verifyWALMode(db *sql.DB) error {
	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode;").Scan(&journalMode); err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to verify journal mode", err)
	}
	if journalMode != "wal" {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, fmt.Sprintf("expected WAL mode, got %s", journalMode), nil)
	}
	return nil
}

func getUserVersion(db *sql.DB) (int, error) {
	var version int
	if err := db.QueryRow("PRAGMA user_version;").Scan(&version); err != nil {
		return 0, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to get user_version", err)
	}
	return version, nil
}

func setUserVersion(db *sql.DB, version int) error {
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", version)); err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to set user_version", err)
	}
	return nil
}

const uploadColumns = `id, draft_id, filename, filepath, filesize, duration_ms, caption,
	comments_disabled, like_count_hidden, s3_key, status, progress, last_error, created_at, updated_at`

// SaveUpload inserts or replaces a history record
func (d *SQLiteDatabase) SaveUpload(r *models.UploadRecord) error {
	if r == nil || r.ID == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "upload record requires an id", nil)
	}
	now := time.Now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	_, err := d.db.Exec(`INSERT OR REPLACE INTO uploads (`+uploadColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DraftID, r.FileName, r.FilePath, r.FileSize, r.Duration.Milliseconds(), r.Caption,
		r.CommentsDisabled, r.LikeCountHidden, r.S3Key, string(r.Status), r.Progress,
		toNullString(r.LastError), r.CreatedAt.UnixMilli(), r.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to save upload", err)
	}
	return nil
}

func (d *SQLiteDatabase) GetUpload(id string) (*models.UploadRecord, error) {
	row := d.db.QueryRow(`SELECT `+uploadColumns+` FROM uploads WHERE id = ?`, id)
	r, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewAppErrorWithContext(apperrors.ErrRecordNotFound, "upload not found", err,
			map[string]interface{}{"id": id})
	}
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to read upload", err)
	}
	return r, nil
}

// ListUploads returns the history, most recent first
func (d *SQLiteDatabase) ListUploads() ([]*models.UploadRecord, error) {
	rows, err := d.db.Query(`SELECT ` + uploadColumns + ` FROM uploads ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to list uploads", err)
	}
	return collectUploads(rows)
}

func (d *SQLiteDatabase) ListUploadsByStatus(status models.UploadStatus) ([]*models.UploadRecord, error) {
	rows, err := d.db.Query(`SELECT `+uploadColumns+` FROM uploads WHERE status = ?
		ORDER BY updated_at DESC, id DESC`, string(status))
	if err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to list uploads", err)
	}
	return collectUploads(rows)
}

func (d *SQLiteDatabase) UpdateUploadStatus(id string, status models.UploadStatus, progress int, lastErr string) error {
	res, err := d.db.Exec(`UPDATE uploads SET status = ?, progress = ?, last_error = ?, updated_at = ? WHERE id = ?`,
		string(status), progress, toNullString(lastErr), time.Now().UnixMilli(), id)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to update upload", err)
	}
	return requireAffected(res, id)
}

func (d *SQLiteDatabase) DeleteUpload(id string) error {
	res, err := d.db.Exec(`DELETE FROM uploads WHERE id = ?`, id)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to delete upload", err)
	}
	return requireAffected(res, id)
}

func (d *SQLiteDatabase) SaveConfig(key, value string) error {
	_, err := d.db.Exec(`INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to save config", err)
	}
	return nil
}

// GetConfig returns ErrRecordNotFound for a key never saved
func (d *SQLiteDatabase) GetConfig(key string) (string, error) {
	var value string
	err := d.db.QueryRow(`SELECT value FROM config WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apperrors.NewAppErrorWithContext(apperrors.ErrRecordNotFound, "config key not found", err,
			map[string]interface{}{"key": key})
	}
	if err != nil {
		return "", apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to read config", err)
	}
	return value, nil
}

func (d *SQLiteDatabase) Close() error {
	return d.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(s scanner) (*models.UploadRecord, error) {
	var (
		r                    models.UploadRecord
		durationMs           int64
		status               string
		lastErr              sql.NullString
		createdAt, updatedAt int64
	)
	err := s.Scan(&r.ID, &r.DraftID, &r.FileName, &r.FilePath, &r.FileSize, &durationMs, &r.Caption,
		&r.CommentsDisabled, &r.LikeCountHidden, &r.S3Key, &status, &r.Progress, &lastErr, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.Duration = time.Duration(durationMs) * time.Millisecond
	r.Status = models.UploadStatus(status)
	r.LastError = lastErr.String
	r.CreatedAt = time.UnixMilli(createdAt)
	r.UpdatedAt = time.UnixMilli(updatedAt)
	return &r, nil
}

func collectUploads(rows *sql.Rows) ([]*models.UploadRecord, error) {
	defer rows.Close()
	var out []*models.UploadRecord
	for rows.Next() {
		r, err := scanUpload(rows)
		if err != nil {
			return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to scan upload", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to list uploads", err)
	}
	return out, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrDatabaseError, "failed to read affected rows", err)
	}
	if n == 0 {
		return apperrors.NewAppErrorWithContext(apperrors.ErrRecordNotFound, "upload not found", nil,
			map[string]interface{}{"id": id})
	}
	return nil
}

func toNullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
