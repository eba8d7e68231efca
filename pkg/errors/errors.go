package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ErrorCode represents different types of application errors
type ErrorCode string

const (
	// Authorization errors (terminal for a capture session)
	ErrAuthorizationDenied     ErrorCode = "AUTHORIZATION_DENIED"
	ErrAuthorizationRestricted ErrorCode = "AUTHORIZATION_RESTRICTED"
	ErrAuthorizationUnknown    ErrorCode = "AUTHORIZATION_UNKNOWN"

	// Device errors (terminal for configuration)
	ErrCameraUnavailable     ErrorCode = "CAMERA_UNAVAILABLE"
	ErrMicrophoneUnavailable ErrorCode = "MICROPHONE_UNAVAILABLE"
	ErrCannotAddInput        ErrorCode = "CANNOT_ADD_INPUT"
	ErrCannotAddOutput       ErrorCode = "CANNOT_ADD_OUTPUT"

	// Recording output errors
	ErrRecordingOutput ErrorCode = "RECORDING_OUTPUT"

	// Composition errors
	ErrCompositionFailed ErrorCode = "COMPOSITION_FAILED"
	ErrExportCanceled    ErrorCode = "EXPORT_CANCELED"

	// Playback errors
	ErrPlaybackLoad ErrorCode = "PLAYBACK_LOAD"
	ErrPlaybackSeek ErrorCode = "PLAYBACK_SEEK"

	// Upload errors
	ErrUploadFailed       ErrorCode = "UPLOAD_FAILED"
	ErrUploadCanceled     ErrorCode = "UPLOAD_CANCELED"
	ErrNetworkError       ErrorCode = "NETWORK_ERROR"
	ErrConnectionTimeout  ErrorCode = "CONNECTION_TIMEOUT"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	ErrS3BucketNotFound   ErrorCode = "S3_BUCKET_NOT_FOUND"
	ErrS3AccessDenied     ErrorCode = "S3_ACCESS_DENIED"

	// File and storage errors
	ErrFileNotFound   ErrorCode = "FILE_NOT_FOUND"
	ErrDatabaseError  ErrorCode = "DATABASE_ERROR"
	ErrRecordNotFound ErrorCode = "RECORD_NOT_FOUND"

	// Validation and configuration errors
	ErrInvalidInput       ErrorCode = "INVALID_INPUT"
	ErrConfigurationError ErrorCode = "CONFIGURATION_ERROR"
	ErrInvalidConfig      ErrorCode = "INVALID_CONFIG"

	// Application state errors
	ErrInvalidState        ErrorCode = "INVALID_STATE"
	ErrOperationNotAllowed ErrorCode = "OPERATION_NOT_ALLOWED"
	ErrResourceBusy        ErrorCode = "RESOURCE_BUSY"

	// Generic errors
	ErrInternalError ErrorCode = "INTERNAL_ERROR"
	ErrUnknownError  ErrorCode = "UNKNOWN_ERROR"
)

// Kind groups error codes by the component boundary that produced them
type Kind string

const (
	KindAuthorization Kind = "authorization"
	KindDevice        Kind = "device"
	KindRecording     Kind = "recording"
	KindComposition   Kind = "composition"
	KindPlayback      Kind = "playback"
	KindUpload        Kind = "upload"
	KindStorage       Kind = "storage"
	KindValidation    Kind = "validation"
	KindState         Kind = "state"
	KindInternal      Kind = "internal"
)

var codeKinds = map[ErrorCode]Kind{
	ErrAuthorizationDenied:     KindAuthorization,
	ErrAuthorizationRestricted: KindAuthorization,
	ErrAuthorizationUnknown:    KindAuthorization,
	ErrCameraUnavailable:       KindDevice,
	ErrMicrophoneUnavailable:   KindDevice,
	ErrCannotAddInput:          KindDevice,
	ErrCannotAddOutput:         KindDevice,
	ErrRecordingOutput:         KindRecording,
	ErrCompositionFailed:       KindComposition,
	ErrExportCanceled:          KindComposition,
	ErrPlaybackLoad:            KindPlayback,
	ErrPlaybackSeek:            KindPlayback,
	ErrUploadFailed:            KindUpload,
	ErrUploadCanceled:          KindUpload,
	ErrNetworkError:            KindUpload,
	ErrConnectionTimeout:       KindUpload,
	ErrServiceUnavailable:      KindUpload,
	ErrInvalidCredentials:      KindUpload,
	ErrS3BucketNotFound:        KindUpload,
	ErrS3AccessDenied:          KindUpload,
	ErrFileNotFound:            KindStorage,
	ErrDatabaseError:           KindStorage,
	ErrRecordNotFound:          KindStorage,
	ErrInvalidInput:            KindValidation,
	ErrConfigurationError:      KindValidation,
	ErrInvalidConfig:           KindValidation,
	ErrInvalidState:            KindState,
	ErrOperationNotAllowed:     KindState,
	ErrResourceBusy:            KindState,
}

// AppError represents an application-specific error with user-friendly messaging
type AppError struct {
	Code            ErrorCode              `json:"code"`
	Message         string                 `json:"message"`
	UserMessage     string                 `json:"user_message"`
	Cause           error                  `json:"-"`
	Context         map[string]interface{} `json:"context,omitempty"`
	Timestamp       time.Time              `json:"timestamp"`
	Recoverable     bool                   `json:"recoverable"`
	RetryAfter      *time.Duration         `json:"retry_after,omitempty"`
	SuggestedAction string                 `json:"suggested_action,omitempty"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for error unwrapping
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Kind reports which component boundary the error belongs to
func (e *AppError) Kind() Kind {
	if kind, ok := codeKinds[e.Code]; ok {
		return kind
	}
	return KindInternal
}

// IsTerminal reports whether the error ends the capture session that raised it.
// Authorization and device errors are never retried automatically.
func (e *AppError) IsTerminal() bool {
	kind := e.Kind()
	return kind == KindAuthorization || kind == KindDevice
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// GetSuggestedAction returns a suggested action for the user
func (e *AppError) GetSuggestedAction() string {
	return e.SuggestedAction
}

// NewAppError creates a new application error
func NewAppError(code ErrorCode, message string, cause error) *AppError {
	return &AppError{
		Code:            code,
		Message:         message,
		UserMessage:     getUserFriendlyMessage(code, message),
		Cause:           cause,
		Context:         make(map[string]interface{}),
		Timestamp:       time.Now(),
		Recoverable:     isRecoverable(code),
		RetryAfter:      getRetryAfter(code),
		SuggestedAction: getSuggestedAction(code),
	}
}

// NewAppErrorWithContext creates a new application error with context
func NewAppErrorWithContext(code ErrorCode, message string, cause error, context map[string]interface{}) *AppError {
	err := NewAppError(code, message, cause)
	if context != nil {
		err.Context = context
	}
	return err
}

// WrapError wraps an existing error with application error context
func WrapError(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if stderrors.As(err, &appErr) && code == "" {
		return appErr
	}

	return NewAppError(code, message, err)
}

// Is reports whether err is, or wraps, an AppError with the given code
func Is(err error, code ErrorCode) bool {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// As extracts the AppError carried by err, if any
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// ClassifyError attempts to classify a generic error into an AppError
func ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := As(err); ok {
		return appErr
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewAppError(ErrConnectionTimeout, "Operation timed out", err)
	}
	if stderrors.Is(err, context.Canceled) {
		return NewAppError(ErrUploadCanceled, "Operation was canceled", err)
	}

	var dnsErr *net.DNSError
	if stderrors.As(err, &dnsErr) {
		return NewAppError(ErrNetworkError, "Failed to resolve DNS", err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		if netErr.Timeout() {
			return NewAppError(ErrConnectionTimeout, "Network operation timed out", err)
		}
		return NewAppError(ErrNetworkError, "Network error occurred", err)
	}

	var exitErr *exec.ExitError
	if stderrors.As(err, &exitErr) {
		return NewAppError(ErrCompositionFailed, "Media tool exited with an error", err)
	}

	if stderrors.Is(err, os.ErrNotExist) {
		return NewAppError(ErrFileNotFound, "File not found", err)
	}
	if stderrors.Is(err, os.ErrPermission) {
		return NewAppError(ErrAuthorizationDenied, "Permission denied", err)
	}

	errStr := strings.ToLower(err.Error())

	// AWS errors arrive as smithy API errors; their codes show up in the message
	switch {
	case strings.Contains(errStr, "accessdenied"):
		return NewAppError(ErrS3AccessDenied, "Access denied to upload storage", err)
	case strings.Contains(errStr, "nosuchbucket"):
		return NewAppError(ErrS3BucketNotFound, "Upload bucket not found", err)
	case strings.Contains(errStr, "invalidaccesskeyid"), strings.Contains(errStr, "signaturedoesnotmatch"):
		return NewAppError(ErrInvalidCredentials, "Invalid AWS credentials", err)
	case strings.Contains(errStr, "connection refused"), strings.Contains(errStr, "connection reset"), strings.Contains(errStr, "no such host"):
		return NewAppError(ErrNetworkError, "Network error occurred", err)
	case strings.Contains(errStr, "sql"), strings.Contains(errStr, "database"):
		if strings.Contains(errStr, "no rows") {
			return NewAppError(ErrRecordNotFound, "Record not found", err)
		}
		return NewAppError(ErrDatabaseError, "Database error", err)
	}

	return NewAppError(ErrUnknownError, "An unexpected error occurred", err)
}

// getUserFriendlyMessage returns a user-friendly message for the error code
func getUserFriendlyMessage(code ErrorCode, originalMessage string) string {
	switch code {
	case ErrAuthorizationDenied:
		return "Camera or microphone access was denied."
	case ErrAuthorizationRestricted:
		return "Camera or microphone access is restricted on this device."
	case ErrAuthorizationUnknown:
		return "Camera or microphone access could not be determined."
	case ErrCameraUnavailable:
		return "No camera is available for recording."
	case ErrMicrophoneUnavailable:
		return "No microphone is available for recording."
	case ErrCannotAddInput:
		return "The camera or microphone could not be connected to the recording session."
	case ErrCannotAddOutput:
		return "The recording output could not be prepared."
	case ErrRecordingOutput:
		return "The last take could not be saved. You can record it again."
	case ErrCompositionFailed:
		return "The video could not be processed. Please try again."
	case ErrExportCanceled:
		return "Video processing was canceled."
	case ErrPlaybackLoad:
		return "The video could not be opened for playback."
	case ErrPlaybackSeek:
		return "Could not jump to that point in the video."
	case ErrUploadFailed:
		return "Failed to publish the video. Please check your internet connection and try again."
	case ErrUploadCanceled:
		return "The upload was canceled."
	case ErrNetworkError:
		return "A network error occurred. Please check your internet connection and try again."
	case ErrConnectionTimeout:
		return "The connection timed out. Please check your internet connection and try again."
	case ErrServiceUnavailable:
		return "The service is temporarily unavailable. Please try again in a few minutes."
	case ErrInvalidCredentials:
		return "Your upload credentials are invalid."
	case ErrS3BucketNotFound:
		return "The upload destination could not be found. Please check your configuration."
	case ErrS3AccessDenied:
		return "Access to the upload destination was denied."
	case ErrFileNotFound:
		return "The video file could not be found. It may have been moved or deleted."
	case ErrDatabaseError:
		return "A database error occurred. Please try again."
	case ErrInvalidInput:
		return "The provided input is invalid. Please check your input and try again."
	case ErrConfigurationError, ErrInvalidConfig:
		return "There's a configuration error. Please check your settings."
	case ErrInvalidState:
		return "The operation cannot be performed in the current state."
	case ErrOperationNotAllowed:
		return "This operation is not allowed right now."
	case ErrResourceBusy:
		return "This video is already being processed."
	default:
		if originalMessage != "" {
			return originalMessage
		}
		return "An unexpected error occurred. Please try again."
	}
}

// isRecoverable determines if an error is recoverable
func isRecoverable(code ErrorCode) bool {
	recoverableErrors := map[ErrorCode]bool{
		ErrRecordingOutput:    true,
		ErrCompositionFailed:  true,
		ErrPlaybackLoad:       true,
		ErrPlaybackSeek:       true,
		ErrUploadFailed:       true,
		ErrNetworkError:       true,
		ErrConnectionTimeout:  true,
		ErrServiceUnavailable: true,
		ErrResourceBusy:       true,
	}
	return recoverableErrors[code]
}

// getRetryAfter returns the suggested retry delay for recoverable errors
func getRetryAfter(code ErrorCode) *time.Duration {
	retryDelays := map[ErrorCode]time.Duration{
		ErrNetworkError:       5 * time.Second,
		ErrConnectionTimeout:  10 * time.Second,
		ErrServiceUnavailable: 30 * time.Second,
		ErrUploadFailed:       5 * time.Second,
		ErrResourceBusy:       time.Second,
	}

	if delay, exists := retryDelays[code]; exists {
		return &delay
	}
	return nil
}

// getSuggestedAction returns a suggested action for the user
func getSuggestedAction(code ErrorCode) string {
	actions := map[ErrorCode]string{
		ErrAuthorizationDenied:     "Open system settings and allow camera and microphone access for this app",
		ErrAuthorizationRestricted: "Ask the device administrator to lift the camera restriction",
		ErrAuthorizationUnknown:    "Restart the app and grant camera and microphone access when asked",
		ErrCameraUnavailable:       "Connect a camera or close other apps that are using it",
		ErrMicrophoneUnavailable:   "Connect a microphone or close other apps that are using it",
		ErrCannotAddInput:          "Close other apps that are using the camera or microphone",
		ErrCannotAddOutput:         "Free up disk space and reopen the camera",
		ErrRecordingOutput:         "Record the take again",
		ErrCompositionFailed:       "Try again",
		ErrPlaybackLoad:            "Reopen the draft",
		ErrUploadFailed:            "Try again",
		ErrNetworkError:            "Check your internet connection and try again",
		ErrConnectionTimeout:       "Check your internet connection and try again",
		ErrServiceUnavailable:      "Wait a few minutes and try again",
		ErrInvalidCredentials:      "Go to Settings and update your upload credentials",
		ErrS3BucketNotFound:        "Go to Settings and verify the upload bucket",
		ErrConfigurationError:      "Go to Settings and check your configuration",
	}
	return actions[code]
}

// RetryableOperation represents an operation that can be retried
type RetryableOperation func() error

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryWithBackoff retries an operation with exponential backoff.
// Only recoverable errors are retried.
func RetryWithBackoff(ctx context.Context, operation RetryableOperation, config RetryConfig) error {
	var lastErr error
	delay := config.BaseDelay

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err

		appErr := ClassifyError(err)
		if !appErr.IsRecoverable() {
			return appErr
		}

		if attempt == config.MaxAttempts {
			break
		}

		if delay > config.MaxDelay {
			delay = config.MaxDelay
		}
		select {
		case <-ctx.Done():
			return NewAppError(ErrUploadCanceled, "Operation was canceled", ctx.Err())
		case <-time.After(delay):
		}
		delay = time.Duration(float64(delay) * config.Multiplier)
	}

	return ClassifyError(lastErr)
}

// IsTimeout checks if an error is a timeout error
func IsTimeout(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == ErrConnectionTimeout
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

// IsCanceled checks if an error is due to cancellation
func IsCanceled(err error) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == ErrUploadCanceled || appErr.Code == ErrExportCanceled
	}
	return stderrors.Is(err, context.Canceled)
}
