// Package compositor turns recorded takes, or one clip and a time range, into a single file at the export preset.
package compositor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"clip-studio/internal/models"
	"clip-studio/internal/segment"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// DefaultTolerance bounds the difference between expected and produced duration
const DefaultTolerance = 300 * time.Millisecond

// Result is one produced file
type Result struct {
	Path     string
	Duration time.Duration
}

// Options configures a Compositor
type Options struct {
	FFmpegPath string
	Runner     Runner
	Prober     Prober
	TempDir    string
	Tolerance  time.Duration
	Logger     *logger.Logger
}

// Compositor runs merge and crop jobs. Jobs against the same input are rejected while one is running.
type Compositor struct {
	ffmpegPath string
	runner     Runner
	prober     Prober
	tempDir    string
	preset     Preset
	tolerance  time.Duration
	logger     *logger.Logger

	mu   sync.Mutex
	busy map[string]bool
}

// New creates a compositor
func New(opts Options) *Compositor {
	if opts.FFmpegPath == "" {
		opts.FFmpegPath = "ffmpeg"
	}
	if opts.Runner == nil {
		opts.Runner = ExecRunner{}
	}
	if opts.Prober == nil {
		opts.Prober = NewFFprobe("", opts.Runner)
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Tolerance <= 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewWithComponent("compositor")
	}
	return &Compositor{
		ffmpegPath: opts.FFmpegPath,
		runner:     opts.Runner,
		prober:     opts.Prober,
		tempDir:    opts.TempDir,
		preset:     ExportPreset,
		tolerance:  opts.Tolerance,
		logger:     opts.Logger,
		busy:       make(map[string]bool),
	}
}

// Preset returns the encoding profile
func (c *Compositor) Preset() Preset {
	return c.preset
}

// Probe returns the duration of a media file
func (c *Compositor) Probe(ctx context.Context, path string) (time.Duration, error) {
	d, err := c.prober.Duration(ctx, path)
	if err != nil {
		return 0, apperrors.NewAppErrorWithContext(apperrors.ErrCompositionFailed, "failed to read media duration", err,
			map[string]interface{}{"file": filepath.Base(path)})
	}
	return d, nil
}

func (c *Compositor) acquire(paths []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		if c.busy[p] {
			return apperrors.NewAppErrorWithContext(apperrors.ErrResourceBusy, "input is already being processed", nil,
				map[string]interface{}{"file": filepath.Base(p)})
		}
	}
	for _, p := range paths {
		c.busy[p] = true
	}
	return nil
}

func (c *Compositor) release(paths []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range paths {
		delete(c.busy, p)
	}
}

func (c *Compositor) newOutputPath() string {
	return filepath.Join(c.tempDir, "export-"+uuid.NewString()+".mp4")
}

// Merge concatenates segments in recording order into one file.
// The output is checked against the probed length of the inputs, not the recorded counters.
// On success the segment files are deleted; on failure they are left in place and no output remains.
func (c *Compositor) Merge(ctx context.Context, segments []segment.Segment) (Result, error) {
	if len(segments) == 0 {
		return Result{}, apperrors.NewAppError(apperrors.ErrInvalidInput, "nothing to merge", nil)
	}

	paths := make([]string, len(segments))
	var recorded time.Duration
	for i, seg := range segments {
		paths[i] = seg.Path
		recorded += seg.Duration
	}

	expected := func() (time.Duration, error) {
		var total time.Duration
		for _, p := range paths {
			d, err := c.Probe(ctx, p)
			if err != nil {
				return 0, err
			}
			total += d
		}
		if diff := total - recorded; diff > c.tolerance || diff < -c.tolerance {
			c.logger.DebugWithFields("Segment files differ from recorded time", map[string]interface{}{
				"recorded": recorded,
				"files":    total,
			})
		}
		return total, nil
	}

	var result Result
	err := c.logger.LogOperation("merge", func() error {
		var err error
		result, err = c.produce(ctx, paths, expected, func(output string) []string {
			return c.mergeArgs(paths, output)
		})
		return err
	})
	return result, err
}

// Crop keeps only r of source. On success source is deleted; on failure it is left in place.
func (c *Compositor) Crop(ctx context.Context, source string, r models.TimeRange) (Result, error) {
	if r.Lower < 0 || r.Lower >= r.Upper {
		return Result{}, apperrors.NewAppErrorWithContext(apperrors.ErrInvalidInput, "invalid crop range", nil,
			map[string]interface{}{"range": r.String()})
	}

	var result Result
	err := c.logger.LogOperation("crop", func() error {
		var err error
		expected := func() (time.Duration, error) { return r.Duration(), nil }
		result, err = c.produce(ctx, []string{source}, expected, func(output string) []string {
			return c.cropArgs(source, r, output)
		})
		return err
	})
	return result, err
}

func (c *Compositor) produce(ctx context.Context, inputs []string, expected func() (time.Duration, error), args func(output string) []string) (Result, error) {
	for _, p := range inputs {
		if _, err := os.Stat(p); err != nil {
			return Result{}, apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "input file is missing", err,
				map[string]interface{}{"file": filepath.Base(p)})
		}
	}
	if err := c.acquire(inputs); err != nil {
		return Result{}, err
	}
	defer c.release(inputs)

	want, err := expected()
	if ctx.Err() != nil {
		return Result{}, apperrors.NewAppError(apperrors.ErrExportCanceled, "export canceled", ctx.Err())
	}
	if err != nil {
		return Result{}, err
	}

	output := c.newOutputPath()
	fail := func(code apperrors.ErrorCode, message string, cause error) (Result, error) {
		os.Remove(output)
		return Result{}, apperrors.NewAppErrorWithContext(code, message, cause, map[string]interface{}{
			"inputs": len(inputs),
		})
	}

	out, err := c.runner.Run(ctx, c.ffmpegPath, args(output)...)
	if ctx.Err() != nil {
		return fail(apperrors.ErrExportCanceled, "export canceled", ctx.Err())
	}
	if err != nil {
		return fail(apperrors.ErrCompositionFailed, "ffmpeg failed", fmt.Errorf("ffmpeg failed: %v\nOutput: %s", err, strings.TrimSpace(string(out))))
	}

	produced, err := c.prober.Duration(ctx, output)
	if ctx.Err() != nil {
		return fail(apperrors.ErrExportCanceled, "export canceled", ctx.Err())
	}
	if err != nil {
		return fail(apperrors.ErrCompositionFailed, "failed to read produced duration", err)
	}
	if diff := produced - want; diff > c.tolerance || diff < -c.tolerance {
		return fail(apperrors.ErrCompositionFailed,
			fmt.Sprintf("produced %s but expected %s", produced, want), nil)
	}

	for _, p := range inputs {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			c.logger.WarnWithError("Failed to delete consumed input", err)
		}
	}

	c.logger.InfoWithFields("Export written", map[string]interface{}{
		"file":     filepath.Base(output),
		"duration": produced,
		"inputs":   len(inputs),
	})
	return Result{Path: output, Duration: produced}, nil
}

func (c *Compositor) mergeArgs(inputs []string, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y"}
	for _, in := range inputs {
		args = append(args, "-i", in)
	}

	var graph strings.Builder
	for i := range inputs {
		fmt.Fprintf(&graph, "[%d:v]%s[v%d];[%d:a]%s[a%d];", i, c.preset.videoFilter(), i, i, c.preset.audioFilter(), i)
	}
	for i := range inputs {
		fmt.Fprintf(&graph, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&graph, "concat=n=%d:v=1:a=1[v][a]", len(inputs))

	args = append(args, "-filter_complex", graph.String(), "-map", "[v]", "-map", "[a]")
	args = append(args, c.preset.outputArgs()...)
	return append(args, output)
}

func (c *Compositor) cropArgs(source string, r models.TimeRange, output string) []string {
	args := []string{
		"-hide_banner", "-loglevel", "error", "-y",
		"-ss", formatSeconds(r.Lower),
		"-i", source,
		"-t", formatSeconds(r.Duration()),
		"-vf", c.preset.videoFilter(),
		"-af", c.preset.audioFilter(),
	}
	args = append(args, c.preset.outputArgs()...)
	return append(args, output)
}
