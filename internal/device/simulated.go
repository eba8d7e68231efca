package device

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"clip-studio/internal/models"
)

// SimulatedProvider stands in for camera hardware on machines without it and in tests.
// Every failure the capture session must handle can be injected.
type SimulatedProvider struct {
	mu sync.Mutex

	access      map[MediaType]AuthorizationStatus
	devices     []Device
	openErrors  map[string]error
	outputErr   error
	finalizeErr error

	reg         *registry
	accessCalls map[MediaType]int
	openCalls   []string
	lastOutput  *SimulatedOutput
}

// NewSimulatedProvider creates a provider with a front camera, a back camera and a microphone
func NewSimulatedProvider() *SimulatedProvider {
	return &SimulatedProvider{
		access: map[MediaType]AuthorizationStatus{
			MediaVideo: AuthorizationGranted,
			MediaAudio: AuthorizationGranted,
		},
		devices: []Device{
			{ID: "sim-front", Name: "Simulated front camera", Media: MediaVideo, Facing: models.FacingFront, MinZoom: 1, MaxZoom: 3},
			{ID: "sim-back", Name: "Simulated back camera", Media: MediaVideo, Facing: models.FacingBack, MinZoom: 1, MaxZoom: 6},
			{ID: "sim-mic", Name: "Simulated microphone", Media: MediaAudio},
		},
		openErrors:  make(map[string]error),
		reg:         newRegistry(),
		accessCalls: make(map[MediaType]int),
	}
}

// SetAccess fixes the answer to permission requests for media
func (p *SimulatedProvider) SetAccess(media MediaType, status AuthorizationStatus) {
	p.mu.Lock()
	p.access[media] = status
	p.mu.Unlock()
}

// RemoveDevice makes discovery miss the device with id
func (p *SimulatedProvider) RemoveDevice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.devices[:0]
	for _, d := range p.devices {
		if d.ID != id {
			kept = append(kept, d)
		}
	}
	p.devices = kept
}

// FailOpen makes OpenInput fail for the device with id; nil clears it
func (p *SimulatedProvider) FailOpen(id string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.openErrors, id)
		return
	}
	p.openErrors[id] = err
}

// FailOutput makes NewMovieOutput fail
func (p *SimulatedProvider) FailOutput(err error) {
	p.mu.Lock()
	p.outputErr = err
	p.mu.Unlock()
}

// FailFinalize makes the next recordings report err instead of a file
func (p *SimulatedProvider) FailFinalize(err error) {
	p.mu.Lock()
	p.finalizeErr = err
	p.mu.Unlock()
}

// AccessCalls returns how often access to media was requested
func (p *SimulatedProvider) AccessCalls(media MediaType) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accessCalls[media]
}

// OpenCalls returns the device ids passed to OpenInput, in order
func (p *SimulatedProvider) OpenCalls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.openCalls...)
}

// IsHeld reports whether an open input holds the device
func (p *SimulatedProvider) IsHeld(id string) bool {
	return p.reg.isHeld(id)
}

// Output returns the last movie output created
func (p *SimulatedProvider) Output() *SimulatedOutput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastOutput
}

func (p *SimulatedProvider) RequestAccess(ctx context.Context, media MediaType) (AuthorizationStatus, error) {
	if err := ctx.Err(); err != nil {
		return AuthorizationNotDetermined, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessCalls[media]++
	return p.access[media], nil
}

func (p *SimulatedProvider) DefaultDevice(media MediaType, facing models.DeviceFacing) (Device, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, d := range p.devices {
		if d.Media != media {
			continue
		}
		if media == MediaVideo && d.Facing != facing {
			continue
		}
		return d, true
	}
	return Device{}, false
}

func (p *SimulatedProvider) OpenInput(ctx context.Context, dev Device) (Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.openCalls = append(p.openCalls, dev.ID)
	openErr := p.openErrors[dev.ID]
	p.mu.Unlock()

	if openErr != nil {
		return nil, openErr
	}
	if err := p.reg.acquire(dev.ID); err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Name, err)
	}
	return newInput(dev, p.reg), nil
}

func (p *SimulatedProvider) NewMovieOutput() (MovieOutput, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outputErr != nil {
		return nil, p.outputErr
	}
	out := &SimulatedOutput{provider: p}
	p.lastOutput = out
	return out, nil
}

func (p *SimulatedProvider) pendingFinalizeErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.finalizeErr
}

// SimulatedOutput writes a small placeholder file per recording
type SimulatedOutput struct {
	mu       sync.Mutex
	provider *SimulatedProvider

	path    string
	results chan RecordingResult
	paths   []string
	limits  []time.Duration
}

// Paths returns every file the output was asked to record, in order
func (o *SimulatedOutput) Paths() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.paths...)
}

// Limits returns the length cap passed with each recording, in order
func (o *SimulatedOutput) Limits() []time.Duration {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]time.Duration(nil), o.limits...)
}

func (o *SimulatedOutput) StartRecording(path string, video, audio Input, limit time.Duration) (<-chan RecordingResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results != nil {
		return nil, ErrAlreadyRecording
	}
	placeholder := fmt.Sprintf("simulated take from %s at zoom %.1f\n", video.Device().ID, video.Zoom())
	if err := os.WriteFile(path, []byte(placeholder), 0o600); err != nil {
		return nil, err
	}
	o.path = path
	o.results = make(chan RecordingResult, 1)
	o.paths = append(o.paths, path)
	o.limits = append(o.limits, limit)
	return o.results, nil
}

func (o *SimulatedOutput) StopRecording() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.results == nil {
		return
	}
	if err := o.provider.pendingFinalizeErr(); err != nil {
		o.results <- RecordingResult{Path: o.path, Err: err}
	} else {
		o.results <- RecordingResult{Path: o.path}
	}
	o.results = nil
}

func (o *SimulatedOutput) IsRecording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.results != nil
}

func (o *SimulatedOutput) Close() error {
	o.StopRecording()
	return nil
}
