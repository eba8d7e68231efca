package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clip-studio/internal/models"
)

func TestDevice_ClampZoom(t *testing.T) {
	d := Device{MinZoom: 1, MaxZoom: 4}

	assert.Equal(t, 1.0, d.ClampZoom(0.2))
	assert.Equal(t, 2.5, d.ClampZoom(2.5))
	assert.Equal(t, 4.0, d.ClampZoom(10))
	assert.Equal(t, 1.0, Device{}.ClampZoom(3), "microphones have no zoom")
}

func TestSimulatedProvider_DiscoveryByFacing(t *testing.T) {
	p := NewSimulatedProvider()

	front, ok := p.DefaultDevice(MediaVideo, models.FacingFront)
	require.True(t, ok)
	assert.Equal(t, "sim-front", front.ID)

	back, ok := p.DefaultDevice(MediaVideo, models.FacingBack)
	require.True(t, ok)
	assert.Equal(t, "sim-back", back.ID)

	mic, ok := p.DefaultDevice(MediaAudio, "")
	require.True(t, ok)
	assert.Equal(t, "sim-mic", mic.ID)

	p.RemoveDevice("sim-back")
	_, ok = p.DefaultDevice(MediaVideo, models.FacingBack)
	assert.False(t, ok)
}

func TestSimulatedProvider_InputsAreExclusive(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider()
	front, _ := p.DefaultDevice(MediaVideo, models.FacingFront)

	in, err := p.OpenInput(ctx, front)
	require.NoError(t, err)
	assert.True(t, p.IsHeld("sim-front"))

	_, err = p.OpenInput(ctx, front)
	assert.ErrorIs(t, err, ErrDeviceBusy)

	require.NoError(t, in.Close())
	assert.False(t, p.IsHeld("sim-front"))

	again, err := p.OpenInput(ctx, front)
	require.NoError(t, err)
	again.Close()
}

func TestSimulatedProvider_InjectedFailures(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider()

	p.SetAccess(MediaAudio, AuthorizationRestricted)
	status, err := p.RequestAccess(ctx, MediaAudio)
	require.NoError(t, err)
	assert.Equal(t, AuthorizationRestricted, status)
	assert.Equal(t, 1, p.AccessCalls(MediaAudio))

	boom := errors.New("usb disconnected")
	p.FailOpen("sim-back", boom)
	back, _ := p.DefaultDevice(MediaVideo, models.FacingBack)
	_, err = p.OpenInput(ctx, back)
	assert.ErrorIs(t, err, boom)

	p.FailOutput(boom)
	_, err = p.NewMovieOutput()
	assert.ErrorIs(t, err, boom)
}

func TestInput_SetZoomClamps(t *testing.T) {
	p := NewSimulatedProvider()
	front, _ := p.DefaultDevice(MediaVideo, models.FacingFront)
	in, err := p.OpenInput(context.Background(), front)
	require.NoError(t, err)

	require.NoError(t, in.SetZoom(9))
	assert.Equal(t, 3.0, in.Zoom())

	in.Close()
	assert.ErrorIs(t, in.SetZoom(2), ErrInputClosed)
}

func TestSimulatedOutput_RecordsOneFileAtATime(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider()
	front, _ := p.DefaultDevice(MediaVideo, models.FacingFront)
	mic, _ := p.DefaultDevice(MediaAudio, "")
	video, _ := p.OpenInput(ctx, front)
	audio, _ := p.OpenInput(ctx, mic)

	out, err := p.NewMovieOutput()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "take.mov")
	results, err := out.StartRecording(path, video, audio, 0)
	require.NoError(t, err)
	assert.True(t, out.IsRecording())

	_, err = out.StartRecording(path+"2", video, audio, 0)
	assert.ErrorIs(t, err, ErrAlreadyRecording)

	out.StopRecording()
	result := <-results
	require.NoError(t, result.Err)
	assert.Equal(t, path, result.Path)
	assert.FileExists(t, path)
	assert.False(t, out.IsRecording())
}

func TestSimulatedOutput_FinalizeFailure(t *testing.T) {
	ctx := context.Background()
	p := NewSimulatedProvider()
	front, _ := p.DefaultDevice(MediaVideo, models.FacingFront)
	video, _ := p.OpenInput(ctx, front)
	out, _ := p.NewMovieOutput()

	p.FailFinalize(os.ErrClosed)
	results, err := out.StartRecording(filepath.Join(t.TempDir(), "take.mov"), video, nil, 0)
	require.NoError(t, err)
	out.StopRecording()

	assert.ErrorIs(t, (<-results).Err, os.ErrClosed)
}

func TestRecordArgs(t *testing.T) {
	args := recordArgs("/tmp/take.mov", "/dev/video0", "default", 2, 3500*time.Millisecond)

	assert.Contains(t, args, "v4l2")
	assert.Contains(t, args, "/dev/video0")
	assert.Contains(t, args, "alsa")
	assert.Contains(t, args, "crop=iw/2.00:ih/2.00")
	assert.Equal(t, "/tmp/take.mov", args[len(args)-1])
	assert.Equal(t, []string{"-t", "3.500"}, args[len(args)-3:len(args)-1], "the file is capped at the remaining budget")

	noZoom := recordArgs("/tmp/take.mov", "/dev/video0", "default", 1, 0)
	assert.NotContains(t, noZoom, "-vf")
	assert.NotContains(t, noZoom, "-t")
}

func TestFFmpegProvider_DefaultDevice(t *testing.T) {
	dir := t.TempDir()
	front := filepath.Join(dir, "video0")
	require.NoError(t, os.WriteFile(front, nil, 0o600))

	p := NewFFmpegProvider(FFmpegConfig{FrontCamera: front, BackCamera: filepath.Join(dir, "missing"), Microphone: "default"})

	dev, ok := p.DefaultDevice(MediaVideo, models.FacingFront)
	require.True(t, ok)
	assert.Equal(t, front, dev.ID)
	assert.Equal(t, 4.0, dev.MaxZoom)

	_, ok = p.DefaultDevice(MediaVideo, models.FacingBack)
	assert.False(t, ok)

	status, err := p.RequestAccess(context.Background(), MediaVideo)
	require.NoError(t, err)
	assert.Equal(t, AuthorizationGranted, status)
}
