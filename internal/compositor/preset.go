package compositor

import (
	"fmt"
	"strconv"
	"time"
)

// Preset is the fixed encoding profile applied to every produced file
type Preset struct {
	MaxWidth     int
	MaxHeight    int
	VideoCodec   string
	Profile      string
	FrameRate    int
	VideoBitrate int // kbit/s
	AudioCodec   string
	AudioBitrate int // kbit/s
	SampleRate   int
	FastStart    bool
}

// ExportPreset is a portrait 720x1280 H.264/AAC profile sized for upload
var ExportPreset = Preset{
	MaxWidth:     720,
	MaxHeight:    1280,
	VideoCodec:   "libx264",
	Profile:      "high",
	FrameRate:    30,
	VideoBitrate: 3500,
	AudioCodec:   "aac",
	AudioBitrate: 128,
	SampleRate:   44100,
	FastStart:    true,
}

// videoFilter scales into the portrait box, pads to it, squares pixels and fixes the frame rate.
// ffmpeg applies the display rotation of each input before the filter runs.
func (p Preset) videoFilter() string {
	return fmt.Sprintf(
		"scale=w=%d:h=%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2,setsar=1,fps=%d",
		p.MaxWidth, p.MaxHeight, p.MaxWidth, p.MaxHeight, p.FrameRate)
}

func (p Preset) audioFilter() string {
	return fmt.Sprintf("aresample=%d", p.SampleRate)
}

// outputArgs are the encoder flags shared by merge and crop
func (p Preset) outputArgs() []string {
	args := []string{
		"-c:v", p.VideoCodec,
		"-profile:v", p.Profile,
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(p.FrameRate),
		"-b:v", fmt.Sprintf("%dk", p.VideoBitrate),
		"-maxrate", fmt.Sprintf("%dk", p.VideoBitrate),
		"-bufsize", fmt.Sprintf("%dk", p.VideoBitrate*2),
		"-c:a", p.AudioCodec,
		"-b:a", fmt.Sprintf("%dk", p.AudioBitrate),
		"-metadata:s:v:0", "rotate=0",
	}
	if p.FastStart {
		args = append(args, "-movflags", "+faststart")
	}
	return args
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
