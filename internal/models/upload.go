package models

import "time"

// UploadStatus represents the current state of a publish
type UploadStatus string

const (
	UploadPending   UploadStatus = "pending"
	UploadRunning   UploadStatus = "uploading"
	UploadPaused    UploadStatus = "paused"
	UploadCompleted UploadStatus = "completed"
	UploadFailed    UploadStatus = "failed"
	UploadCanceled  UploadStatus = "canceled"
)

// IsFinal reports whether no further progress can happen without a retry
func (s UploadStatus) IsFinal() bool {
	return s == UploadCompleted || s == UploadFailed || s == UploadCanceled
}

// UploadRecord is the local history entry for one published draft
type UploadRecord struct {
	ID               string        `json:"id"`
	DraftID          string        `json:"draft_id"`
	FileName         string        `json:"filename"`
	FilePath         string        `json:"filepath"`
	FileSize         int64         `json:"filesize"`
	Duration         time.Duration `json:"duration"`
	Caption          string        `json:"caption"`
	CommentsDisabled bool          `json:"comments_disabled"`
	LikeCountHidden  bool          `json:"like_count_hidden"`
	S3Key            string        `json:"s3_key"`
	Status           UploadStatus  `json:"status"`
	Progress         int           `json:"progress"`
	LastError        string        `json:"last_error,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// Retryable reports whether the record can be published again from its local file
func (r *UploadRecord) Retryable() bool {
	return r.Status == UploadFailed || r.Status == UploadCanceled
}

// UploadProgress is one progress report for a running publish
type UploadProgress struct {
	UploadID      string       `json:"upload_id"`
	BytesUploaded int64        `json:"bytes_uploaded"`
	TotalBytes    int64        `json:"total_bytes"`
	Percentage    int          `json:"percentage"`
	Status        UploadStatus `json:"status"`
}
