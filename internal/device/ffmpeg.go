package device

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"clip-studio/internal/models"
	"clip-studio/pkg/logger"
)

// FFmpegConfig names the V4L2 and ALSA devices used on Linux
type FFmpegConfig struct {
	FFmpegPath  string
	FrontCamera string
	BackCamera  string
	Microphone  string
	MaxZoom     float64
}

// FFmpegProvider captures from V4L2 cameras and an ALSA microphone through ffmpeg
type FFmpegProvider struct {
	cfg    FFmpegConfig
	reg    *registry
	logger *logger.Logger
}

// NewFFmpegProvider creates a provider for the configured device nodes
func NewFFmpegProvider(cfg FFmpegConfig) *FFmpegProvider {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.MaxZoom < 1 {
		cfg.MaxZoom = 4
	}
	return &FFmpegProvider{
		cfg:    cfg,
		reg:    newRegistry(),
		logger: logger.NewWithComponent("device"),
	}
}

// RequestAccess maps file permissions on the device node to an authorisation status
func (p *FFmpegProvider) RequestAccess(ctx context.Context, media MediaType) (AuthorizationStatus, error) {
	if err := ctx.Err(); err != nil {
		return AuthorizationNotDetermined, err
	}

	var node string
	switch media {
	case MediaVideo:
		node = p.cfg.FrontCamera
		if node == "" {
			node = p.cfg.BackCamera
		}
	case MediaAudio:
		// ALSA PCM names are not files; access is checked when capture starts
		return AuthorizationGranted, nil
	default:
		return AuthorizationNotDetermined, fmt.Errorf("unknown media type %q", media)
	}

	f, err := os.Open(node)
	switch {
	case err == nil:
		f.Close()
		return AuthorizationGranted, nil
	case os.IsPermission(err):
		return AuthorizationDenied, nil
	case os.IsNotExist(err):
		// a missing camera is reported by DefaultDevice, not here
		return AuthorizationGranted, nil
	default:
		return AuthorizationNotDetermined, err
	}
}

// DefaultDevice returns the camera node configured for facing, or the microphone
func (p *FFmpegProvider) DefaultDevice(media MediaType, facing models.DeviceFacing) (Device, bool) {
	switch media {
	case MediaVideo:
		node := p.cfg.FrontCamera
		if facing == models.FacingBack {
			node = p.cfg.BackCamera
		}
		if node == "" {
			return Device{}, false
		}
		if _, err := os.Stat(node); err != nil {
			return Device{}, false
		}
		return Device{
			ID:      node,
			Name:    fmt.Sprintf("%s camera (%s)", facing, node),
			Media:   MediaVideo,
			Facing:  facing,
			MinZoom: 1,
			MaxZoom: p.cfg.MaxZoom,
		}, true
	case MediaAudio:
		if p.cfg.Microphone == "" {
			return Device{}, false
		}
		return Device{ID: "alsa:" + p.cfg.Microphone, Name: p.cfg.Microphone, Media: MediaAudio}, true
	}
	return Device{}, false
}

// OpenInput takes the exclusive hold on dev
func (p *FFmpegProvider) OpenInput(ctx context.Context, dev Device) (Input, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := p.reg.acquire(dev.ID); err != nil {
		return nil, fmt.Errorf("open %s: %w", dev.Name, err)
	}
	return newInput(dev, p.reg), nil
}

// NewMovieOutput returns an output that records through an ffmpeg child process
func (p *FFmpegProvider) NewMovieOutput() (MovieOutput, error) {
	if _, err := exec.LookPath(p.cfg.FFmpegPath); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}
	return &ffmpegOutput{ffmpegPath: p.cfg.FFmpegPath, microphone: p.cfg.Microphone, logger: p.logger}, nil
}

type ffmpegOutput struct {
	mu         sync.Mutex
	ffmpegPath string
	microphone string
	logger     *logger.Logger

	stdin io.WriteCloser
	cmd   *exec.Cmd
}

// recordArgs builds the ffmpeg command line for one take; a positive limit stops ffmpeg by itself
func recordArgs(path, camera, microphone string, zoom float64, limit time.Duration) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "v4l2", "-i", camera,
		"-f", "alsa", "-i", microphone,
	}
	if zoom > 1 {
		args = append(args, "-vf", fmt.Sprintf("crop=iw/%.2f:ih/%.2f", zoom, zoom))
	}
	args = append(args,
		"-c:v", "libx264", "-preset", "veryfast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
	)
	if limit > 0 {
		args = append(args, "-t", strconv.FormatFloat(limit.Seconds(), 'f', 3, 64))
	}
	return append(args, path)
}

func (o *ffmpegOutput) StartRecording(path string, video, audio Input, limit time.Duration) (<-chan RecordingResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.cmd != nil {
		return nil, ErrAlreadyRecording
	}

	microphone := o.microphone
	if audio != nil {
		microphone = audio.Device().Name
	}
	cmd := exec.Command(o.ffmpegPath, recordArgs(path, video.Device().ID, microphone, video.Zoom(), limit)...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	o.cmd = cmd
	o.stdin = stdin

	results := make(chan RecordingResult, 1)
	go func() {
		err := cmd.Wait()
		o.mu.Lock()
		o.cmd = nil
		o.stdin = nil
		o.mu.Unlock()

		if err != nil {
			results <- RecordingResult{Path: path, Err: fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, output.String())}
			return
		}
		results <- RecordingResult{Path: path}
	}()
	return results, nil
}

// StopRecording sends ffmpeg the quit key so it writes the trailer
func (o *ffmpegOutput) StopRecording() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stdin == nil {
		return
	}
	if _, err := o.stdin.Write([]byte("q")); err != nil {
		o.logger.WarnWithError("Failed to signal ffmpeg, killing recorder", err)
		if o.cmd != nil && o.cmd.Process != nil {
			o.cmd.Process.Kill()
		}
	}
	o.stdin.Close()
	o.stdin = nil
}

func (o *ffmpegOutput) IsRecording() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.cmd != nil
}

func (o *ffmpegOutput) Close() error {
	o.StopRecording()
	return nil
}
