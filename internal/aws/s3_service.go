package aws

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	apperrors "clip-studio/pkg/errors"
)

const maxPresignExpiry = 7 * 24 * time.Hour

// S3Options configures the publish destination
type S3Options struct {
	Bucket      string
	Endpoint    string // S3-compatible endpoint; path-style addressing when set
	PartSizeMB  int64
	Concurrency int
	MaxAttempts int
}

// UploadRequest describes one object to publish
type UploadRequest struct {
	Key      string
	FilePath string
	Metadata map[string]string
	// Gate, when set, pauses reading of the file
	Gate *Gate
	// Progress receives bytes read from the file so far
	Progress func(sent, total int64)
}

// ObjectInfo is the metadata of a published object
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// S3Service defines the interface for S3 operations
type S3Service interface {
	// UploadFile uploads a file, switching to multipart above the part size
	UploadFile(ctx context.Context, req UploadRequest) error

	// GeneratePresignedURL returns a download link for a published object
	GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error)

	DeleteObject(ctx context.Context, key string) error

	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)

	// TestConnection lists at most one key of the bucket
	TestConnection(ctx context.Context) error
}

// S3ServiceImpl implements S3Service using AWS SDK v2
type S3ServiceImpl struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
	bucket    string
}

// NewS3Service creates a service for opts.Bucket using cfg for credentials and region
func NewS3Service(cfg aws.Config, opts S3Options) (*S3ServiceImpl, error) {
	if opts.Bucket == "" {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "bucket name cannot be empty", nil)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
		if opts.MaxAttempts > 0 {
			o.RetryMaxAttempts = opts.MaxAttempts
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	})

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSizeMB > 0 {
			u.PartSize = opts.PartSizeMB * 1024 * 1024
		}
		if opts.Concurrency > 0 {
			u.Concurrency = opts.Concurrency
		}
	})

	return &S3ServiceImpl{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  uploader,
		bucket:    opts.Bucket,
	}, nil
}

// Bucket returns the destination bucket
func (s *S3ServiceImpl) Bucket() string {
	return s.bucket
}

func (s *S3ServiceImpl) UploadFile(ctx context.Context, req UploadRequest) error {
	if req.Key == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "object key cannot be empty", nil)
	}
	if req.FilePath == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "file path cannot be empty", nil)
	}

	file, err := os.Open(req.FilePath)
	if err != nil {
		return apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "failed to open draft file", err,
			map[string]interface{}{"path": req.FilePath})
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrFileNotFound, "failed to stat draft file", err)
	}
	size := info.Size()
	if size == 0 {
		return apperrors.NewAppErrorWithContext(apperrors.ErrInvalidInput, "draft file is empty", nil,
			map[string]interface{}{"path": req.FilePath})
	}

	metadata := make(map[string]string, len(req.Metadata)+2)
	for k, v := range req.Metadata {
		metadata[k] = v
	}
	metadata["upload-timestamp"] = time.Now().UTC().Format(time.RFC3339)
	metadata["original-filename"] = filepath.Base(req.FilePath)

	body := &progressReader{
		ctx:      ctx,
		reader:   file,
		total:    size,
		gate:     req.Gate,
		progress: req.Progress,
	}

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(s.bucket),
		Key:                  aws.String(req.Key),
		Body:                 body,
		ContentType:          aws.String(getContentType(req.FilePath)),
		Metadata:             metadata,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return s.handleS3Error("upload file", err)
	}

	if req.Progress != nil {
		req.Progress(size, size)
	}
	return nil
}

func (s *S3ServiceImpl) GeneratePresignedURL(ctx context.Context, key string, expiration time.Duration) (string, error) {
	if key == "" {
		return "", apperrors.NewAppError(apperrors.ErrInvalidInput, "object key cannot be empty", nil)
	}
	if expiration <= 0 {
		return "", apperrors.NewAppError(apperrors.ErrInvalidInput, "expiration must be positive", nil)
	}
	if expiration > maxPresignExpiry {
		expiration = maxPresignExpiry
	}

	request, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiration
	})
	if err != nil {
		return "", s.handleS3Error("generate presigned URL", err)
	}
	return request.URL, nil
}

func (s *S3ServiceImpl) DeleteObject(ctx context.Context, key string) error {
	if key == "" {
		return apperrors.NewAppError(apperrors.ErrInvalidInput, "object key cannot be empty", nil)
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.handleS3Error("delete object", err)
	}
	return nil
}

func (s *S3ServiceImpl) HeadObject(ctx context.Context, key string) (*ObjectInfo, error) {
	if key == "" {
		return nil, apperrors.NewAppError(apperrors.ErrInvalidInput, "object key cannot be empty", nil)
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.handleS3Error("get object metadata", err)
	}
	return &ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

func (s *S3ServiceImpl) TestConnection(ctx context.Context) error {
	_, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return s.handleS3Error("test connection", err)
	}
	return nil
}

// handleS3Error converts SDK errors into AppErrors carrying the bucket and operation
func (s *S3ServiceImpl) handleS3Error(operation string, err error) error {
	if err == nil {
		return nil
	}
	ctx := map[string]interface{}{"bucket": s.bucket, "operation": operation}

	switch {
	case errors.Is(err, context.Canceled):
		return apperrors.NewAppErrorWithContext(apperrors.ErrUploadCanceled, operation+" was canceled", err, ctx)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewAppErrorWithContext(apperrors.ErrConnectionTimeout, operation+" timed out", err, ctx)
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchBucket):
		return apperrors.NewAppErrorWithContext(apperrors.ErrS3BucketNotFound, "bucket does not exist", err, ctx)
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return apperrors.NewAppErrorWithContext(apperrors.ErrRecordNotFound, "object not found", err, ctx)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "AllAccessDisabled":
			return apperrors.NewAppErrorWithContext(apperrors.ErrS3AccessDenied, "access denied to bucket", err, ctx)
		case "NoSuchBucket":
			return apperrors.NewAppErrorWithContext(apperrors.ErrS3BucketNotFound, "bucket does not exist", err, ctx)
		case "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken", "InvalidToken":
			return apperrors.NewAppErrorWithContext(apperrors.ErrInvalidCredentials, "credentials rejected", err, ctx)
		case "SlowDown", "ServiceUnavailable", "InternalError", "RequestTimeout":
			return apperrors.NewAppErrorWithContext(apperrors.ErrServiceUnavailable, operation+" failed", err, ctx)
		}
	}

	appErr := apperrors.ClassifyError(err)
	if appErr.Code == apperrors.ErrUnknownError {
		return apperrors.NewAppErrorWithContext(apperrors.ErrUploadFailed, "failed to "+operation, err, ctx)
	}
	return appErr
}

// getContentType determines the content type of a draft from its extension
func getContentType(filePath string) string {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".mp4", ".m4v":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}

// progressReader reports bytes read and blocks while its gate is paused
type progressReader struct {
	ctx      context.Context
	reader   io.Reader
	total    int64
	read     int64
	gate     *Gate
	progress func(sent, total int64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	if pr.gate != nil {
		if err := pr.gate.Wait(pr.ctx); err != nil {
			return 0, err
		}
	}
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)
		if pr.progress != nil {
			pr.progress(pr.read, pr.total)
		}
	}
	return n, err
}
