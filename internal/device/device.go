// Package device is the boundary to camera and microphone hardware.
package device

import (
	"context"
	"errors"
	"time"

	"clip-studio/internal/models"
)

// AuthorizationStatus is the outcome of a capture permission request
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationGranted
	AuthorizationDenied
	AuthorizationRestricted
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationGranted:
		return "granted"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	default:
		return "not_determined"
	}
}

// MediaType selects camera or microphone
type MediaType string

const (
	MediaVideo MediaType = "video"
	MediaAudio MediaType = "audio"
)

// Device describes one capture device
type Device struct {
	ID      string
	Name    string
	Media   MediaType
	Facing  models.DeviceFacing // empty for microphones
	MinZoom float64
	MaxZoom float64
}

// ClampZoom moves factor into the device zoom range
func (d Device) ClampZoom(factor float64) float64 {
	if d.MaxZoom <= 0 {
		return 1
	}
	if factor < d.MinZoom {
		return d.MinZoom
	}
	if factor > d.MaxZoom {
		return d.MaxZoom
	}
	return factor
}

// Input is an exclusively held device
type Input interface {
	Device() Device
	Zoom() float64
	SetZoom(factor float64) error
	Close() error
}

// RecordingResult reports how one movie file finished
type RecordingResult struct {
	Path string
	Err  error
}

// MovieOutput writes recordings to files, one at a time
type MovieOutput interface {
	// StartRecording begins writing path; the channel receives exactly one result.
	// A positive limit caps the length of the file.
	StartRecording(path string, video, audio Input, limit time.Duration) (<-chan RecordingResult, error)
	// StopRecording asks the running recording to finalise its file
	StopRecording()
	IsRecording() bool
	Close() error
}

// Provider discovers, authorises and opens capture hardware
type Provider interface {
	RequestAccess(ctx context.Context, media MediaType) (AuthorizationStatus, error)
	DefaultDevice(media MediaType, facing models.DeviceFacing) (Device, bool)
	OpenInput(ctx context.Context, dev Device) (Input, error)
	NewMovieOutput() (MovieOutput, error)
}

var (
	ErrDeviceBusy       = errors.New("device is held by another input")
	ErrAlreadyRecording = errors.New("movie output is already recording")
	ErrInputClosed      = errors.New("input is closed")
)
