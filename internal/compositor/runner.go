package compositor

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Runner executes an external media tool and returns its combined output
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs tools with os/exec; the process is killed when ctx ends
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Prober reads the duration of a media file
type Prober interface {
	Duration(ctx context.Context, path string) (time.Duration, error)
}

// FFprobe reads container durations with ffprobe
type FFprobe struct {
	Path   string
	Runner Runner
}

// NewFFprobe creates a prober for the ffprobe binary at path
func NewFFprobe(path string, runner Runner) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &FFprobe{Path: path, Runner: runner}
}

func (f *FFprobe) Duration(ctx context.Context, path string) (time.Duration, error) {
	out, err := f.Runner.Run(ctx, f.Path,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %v\nOutput: %s", err, out)
	}
	return parseSeconds(string(out))
}

func parseSeconds(s string) (time.Duration, error) {
	seconds, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", strings.TrimSpace(s), err)
	}
	if seconds < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	return time.Duration(seconds * float64(time.Second)).Round(time.Millisecond), nil
}
