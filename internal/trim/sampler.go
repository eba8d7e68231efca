package trim

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"clip-studio/internal/compositor"
)

// FrameSampler extracts one frame of a media file, scaled to height pixels
type FrameSampler interface {
	Frame(ctx context.Context, path string, at time.Duration, height int) (image.Image, error)
}

// FFmpegSampler grabs frames with ffmpeg into a temporary PNG
type FFmpegSampler struct {
	FFmpegPath string
	Runner     compositor.Runner
	TempDir    string
}

// NewFFmpegSampler creates a sampler that writes scratch files to tempDir
func NewFFmpegSampler(ffmpegPath string, runner compositor.Runner, tempDir string) *FFmpegSampler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if runner == nil {
		runner = compositor.ExecRunner{}
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &FFmpegSampler{FFmpegPath: ffmpegPath, Runner: runner, TempDir: tempDir}
}

func (s *FFmpegSampler) Frame(ctx context.Context, path string, at time.Duration, height int) (image.Image, error) {
	out := filepath.Join(s.TempDir, "thumb-"+uuid.NewString()+".png")
	defer os.Remove(out)

	output, err := s.Runner.Run(ctx, s.FFmpegPath,
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", strconv.FormatFloat(at.Seconds(), 'f', 3, 64),
		"-i", path,
		"-frames:v", "1",
		out)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, strings.TrimSpace(string(output)))
	}

	f, err := os.Open(out)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return ScaleToHeight(img, height), nil
}

// ScaleToHeight resizes img to height pixels keeping its aspect ratio
func ScaleToHeight(img image.Image, height int) image.Image {
	b := img.Bounds()
	if height <= 0 || b.Dy() == 0 || b.Dy() == height {
		return img
	}
	width := b.Dx() * height / b.Dy()
	if width < 1 {
		width = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
