package models

// CaptureStatus is set once while a capture session is brought up
type CaptureStatus string

const (
	CaptureUnconfigured CaptureStatus = "unconfigured"
	CaptureConfigured   CaptureStatus = "configured"
	CaptureUnauthorized CaptureStatus = "unauthorized"
	CaptureFailed       CaptureStatus = "failed"
)

// IsTerminal reports whether the session instance can no longer be used
func (s CaptureStatus) IsTerminal() bool {
	return s == CaptureUnauthorized || s == CaptureFailed
}

// DeviceFacing selects the front or back camera
type DeviceFacing string

const (
	FacingFront DeviceFacing = "front"
	FacingBack  DeviceFacing = "back"
)

// Opposite returns the other facing
func (f DeviceFacing) Opposite() DeviceFacing {
	if f == FacingFront {
		return FacingBack
	}
	return FacingFront
}

// Valid reports whether f is a known facing
func (f DeviceFacing) Valid() bool {
	return f == FacingFront || f == FacingBack
}

// RecordingState is the capture session state machine
type RecordingState string

const (
	StateIdle            RecordingState = "idle"
	StateRecording       RecordingState = "recording"
	StateSwitchingCamera RecordingState = "switching_camera"
)
