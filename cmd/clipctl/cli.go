package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	awsclient "clip-studio/internal/aws"
	"clip-studio/internal/compositor"
	"clip-studio/internal/config"
	"clip-studio/internal/manager"
	"clip-studio/internal/models"
	"clip-studio/internal/playback"
	"clip-studio/internal/segment"
	"clip-studio/internal/storage"
	"clip-studio/internal/trim"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// toolkit is what the commands share; main builds the real one and tests swap the edges
type toolkit struct {
	cfg     *config.AppConfig
	runner  compositor.Runner
	prober  compositor.Prober
	log     *logger.Logger
	openDB  func() (storage.Database, error)
	connect func(ctx context.Context, bucket string) (awsclient.S3Service, error)
}

// clipOutput describes a produced or probed media file
type clipOutput struct {
	File       string `json:"file"`
	Duration   string `json:"duration"`
	DurationMS int64  `json:"duration_ms"`
}

// stripOutput describes a rendered thumbnail strip
type stripOutput struct {
	File   string `json:"file"`
	Slices int    `json:"slices"`
	Blank  int    `json:"blank"`
}

// newCLIApp creates the CLI application with all commands.
func newCLIApp(tk *toolkit) *cli.App {
	app := &cli.App{
		Name:    "clipctl",
		Usage:   "Merge, crop, sample and publish clips without the editor",
		Version: Version,
		Commands: []*cli.Command{
			probeCmd(tk),
			mergeCmd(tk),
			cropCmd(tk),
			thumbnailsCmd(tk),
			publishCmd(tk),
			historyCmd(tk),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// probeCmd creates the probe command.
func probeCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:      "probe",
		Usage:     "Print the duration of a media file",
		ArgsUsage: "<file>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(apperrors.NewAppError(apperrors.ErrInvalidInput, "probe takes exactly one file", nil))
			}
			path := c.Args().First()
			d, err := tk.probe(c.Context, path)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, newClipOutput(path, d))
		},
	}
}

// mergeCmd creates the merge command.
func mergeCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Concatenate takes in order into one clip; the inputs are left untouched",
		ArgsUsage: "<take> [take...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Output file"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				return outputError(apperrors.NewAppError(apperrors.ErrInvalidInput, "merge needs at least one take", nil))
			}

			dir, done, err := tk.workspace()
			if err != nil {
				return outputError(err)
			}
			defer done()

			segments := make([]segment.Segment, c.NArg())
			for i, in := range c.Args().Slice() {
				d, err := tk.probe(c.Context, in)
				if err != nil {
					return outputError(err)
				}
				staged, err := stage(in, dir)
				if err != nil {
					return outputError(err)
				}
				segments[i] = segment.Segment{Index: i, Path: staged, Duration: d}
			}

			res, err := tk.compositor(dir).Merge(c.Context, segments)
			if err != nil {
				return outputError(err)
			}
			return tk.deliver(c, res, c.String("out"))
		},
	}
}

// cropCmd creates the crop command.
func cropCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:      "crop",
		Usage:     "Keep only a time range of a clip; the input is left untouched",
		ArgsUsage: "<clip>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Output file"},
			&cli.DurationFlag{Name: "from", Usage: "Start of the kept range, e.g. 1.5s"},
			&cli.DurationFlag{Name: "to", Usage: "End of the kept range (defaults to the end of the clip)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(apperrors.NewAppError(apperrors.ErrInvalidInput, "crop takes exactly one clip", nil))
			}
			in := c.Args().First()
			d, err := tk.probe(c.Context, in)
			if err != nil {
				return outputError(err)
			}
			r := models.TimeRange{Lower: c.Duration("from"), Upper: c.Duration("to")}
			if r.Upper == 0 || r.Upper > d {
				r.Upper = d
			}

			dir, done, err := tk.workspace()
			if err != nil {
				return outputError(err)
			}
			defer done()

			staged, err := stage(in, dir)
			if err != nil {
				return outputError(err)
			}
			res, err := tk.compositor(dir).Crop(c.Context, staged, r)
			if err != nil {
				return outputError(err)
			}
			return tk.deliver(c, res, c.String("out"))
		},
	}
}

// thumbnailsCmd creates the thumbnails command.
func thumbnailsCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:      "thumbnails",
		Usage:     "Render the trim timeline strip of a clip as a PNG",
		ArgsUsage: "<clip>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Required: true, Usage: "Output PNG"},
			&cli.IntFlag{Name: "width", Value: 640, Usage: "Timeline width in pixels"},
			&cli.IntFlag{Name: "slice-width", Value: tk.cfg.Trim.MinSliceWidth, Usage: "Minimum slice width in pixels"},
			&cli.IntFlag{Name: "height", Value: tk.cfg.Trim.ThumbnailHeight, Usage: "Strip height in pixels"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(apperrors.NewAppError(apperrors.ErrInvalidInput, "thumbnails takes exactly one clip", nil))
			}
			in := c.Args().First()
			d, err := tk.probe(c.Context, in)
			if err != nil {
				return outputError(err)
			}
			draft, err := models.NewDraftAsset(in, d)
			if err != nil {
				return outputError(err)
			}

			dir, done, err := tk.workspace()
			if err != nil {
				return outputError(err)
			}
			defer done()

			engine, err := playback.NewEngine(playback.Options{
				Player: playback.NewClockPlayer(nil, tk.prober),
				Logger: tk.log.WithComponent("playback"),
			})
			if err != nil {
				return outputError(err)
			}
			defer engine.Close()

			sliceWidth := c.Int("slice-width")
			tc, err := trim.NewController(draft, trim.Options{
				Playback:        engine,
				Sampler:         trim.NewFFmpegSampler(tk.cfg.Media.FFmpegPath, tk.runner, dir),
				MinSliceWidth:   sliceWidth,
				ThumbnailHeight: c.Int("height"),
				Logger:          tk.log.WithComponent("trim"),
			})
			if err != nil {
				return outputError(err)
			}
			thumbs, err := tc.Thumbnails(c.Context, c.Int("width"))
			if err != nil {
				return outputError(err)
			}

			out := c.String("out")
			if err := writePNG(out, trim.RenderStrip(thumbs, sliceWidth, c.Int("height"))); err != nil {
				return outputError(err)
			}

			blank := 0
			for _, th := range thumbs {
				if th.Blank() {
					blank++
				}
			}
			return outputJSON(c.App.Writer, stripOutput{File: out, Slices: len(thumbs), Blank: blank})
		},
	}
}

// publishCmd creates the publish command.
func publishCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:      "publish",
		Usage:     "Upload a clip to the publish bucket and record it in the upload history",
		ArgsUsage: "<clip>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bucket", Value: tk.cfg.Upload.Bucket, Usage: "Destination bucket"},
			&cli.StringFlag{Name: "caption", Aliases: []string{"c"}, Usage: "Caption stored with the clip"},
			&cli.BoolFlag{Name: "no-comments", Usage: "Turn off commenting"},
			&cli.BoolFlag{Name: "hide-likes", Usage: "Hide the like count"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(apperrors.NewAppError(apperrors.ErrInvalidInput, "publish takes exactly one clip", nil))
			}
			in := c.Args().First()
			d, err := tk.probe(c.Context, in)
			if err != nil {
				return outputError(err)
			}

			svc, err := tk.connect(c.Context, c.String("bucket"))
			if err != nil {
				return outputError(err)
			}
			db, err := tk.openDB()
			if err != nil {
				return outputError(err)
			}
			defer db.Close()

			// the uploader owns the staged copy; a failed upload keeps it for a retry from the editor
			if err := os.MkdirAll(tk.cfg.Storage.TempDir, 0o755); err != nil {
				return outputError(apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to create temp directory", err))
			}
			staged, err := stage(in, tk.cfg.Storage.TempDir)
			if err != nil {
				return outputError(err)
			}
			draft, err := models.NewDraftAsset(staged, d)
			if err != nil {
				os.Remove(staged)
				return outputError(err)
			}
			draft.SetCaption(c.String("caption"))
			draft.SetCommentsDisabled(c.Bool("no-comments"))
			draft.SetLikeCountHidden(c.Bool("hide-likes"))

			uploads := manager.NewUploadManager(db, svc, manager.UploadOptions{
				KeyPrefix: tk.cfg.Upload.KeyPrefix,
				Retry: apperrors.RetryConfig{
					MaxAttempts: tk.cfg.Upload.MaxAttempts,
					BaseDelay:   time.Second,
					MaxDelay:    30 * time.Second,
					Multiplier:  2,
				},
				Logger: tk.log.WithComponent("upload"),
			})
			defer uploads.Close()

			u, err := uploads.Publish(c.Context, draft)
			if err != nil {
				if !draft.Released() {
					os.Remove(staged)
				}
				return outputError(err)
			}
			unsub := u.Subscribe(func(p models.UploadProgress) {
				tk.log.DebugWithFields("Upload progress", map[string]interface{}{
					"upload":  p.UploadID,
					"percent": p.Percentage,
				})
			})
			defer unsub()

			if err := u.Wait(c.Context); err != nil {
				return outputError(err)
			}
			return outputJSON(c.App.Writer, u.Record())
		},
	}
}

// historyCmd creates the history command.
func historyCmd(tk *toolkit) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List published and pending uploads",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "status", Aliases: []string{"s"}, Usage: "Only uploads in this status, e.g. failed"},
		},
		Action: func(c *cli.Context) error {
			db, err := tk.openDB()
			if err != nil {
				return outputError(err)
			}
			defer db.Close()

			var records []*models.UploadRecord
			if status := c.String("status"); status != "" {
				records, err = db.ListUploadsByStatus(models.UploadStatus(status))
			} else {
				records, err = db.ListUploads()
			}
			if err != nil {
				return outputError(err)
			}
			if records == nil {
				records = []*models.UploadRecord{}
			}
			return outputJSON(c.App.Writer, records)
		},
	}
}

func (tk *toolkit) compositor(workDir string) *compositor.Compositor {
	return compositor.New(compositor.Options{
		FFmpegPath: tk.cfg.Media.FFmpegPath,
		Runner:     tk.runner,
		Prober:     tk.prober,
		TempDir:    workDir,
		Logger:     tk.log.WithComponent("compositor"),
	})
}

// workspace creates a scratch directory under the temp dir; done removes it
func (tk *toolkit) workspace() (string, func(), error) {
	if err := os.MkdirAll(tk.cfg.Storage.TempDir, 0o755); err != nil {
		return "", nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to create temp directory", err)
	}
	dir, err := os.MkdirTemp(tk.cfg.Storage.TempDir, "clipctl-")
	if err != nil {
		return "", nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to create work directory", err)
	}
	return dir, func() { os.RemoveAll(dir) }, nil
}

func (tk *toolkit) probe(ctx context.Context, path string) (time.Duration, error) {
	if _, err := os.Stat(path); err != nil {
		return 0, apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "file not found", err,
			map[string]interface{}{"file": filepath.Base(path)})
	}
	d, err := tk.prober.Duration(ctx, path)
	if err != nil {
		return 0, apperrors.NewAppError(apperrors.ErrInvalidInput, "failed to read media duration", err)
	}
	if d <= 0 {
		return 0, apperrors.NewAppError(apperrors.ErrInvalidInput, "media has no duration", nil)
	}
	return d, nil
}

// deliver moves a compositor result to out and prints it
func (tk *toolkit) deliver(c *cli.Context, res compositor.Result, out string) error {
	if err := moveFile(res.Path, out); err != nil {
		return outputError(err)
	}
	tk.log.InfoWithFields("Clip written", map[string]interface{}{
		"file":     filepath.Base(out),
		"duration": res.Duration.String(),
	})
	return outputJSON(c.App.Writer, newClipOutput(out, res.Duration))
}

func newClipOutput(path string, d time.Duration) clipOutput {
	return clipOutput{File: path, Duration: d.String(), DurationMS: d.Milliseconds()}
}

// stage copies src into dir under a fresh name so the compositor can consume it
func stage(src, dir string) (string, error) {
	dst := filepath.Join(dir, "stage-"+uuid.NewString()+filepath.Ext(src))
	if err := copyFile(src, dst); err != nil {
		return "", apperrors.NewAppErrorWithContext(apperrors.ErrFileNotFound, "failed to stage input", err,
			map[string]interface{}{"file": filepath.Base(src)})
	}
	return dst, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// moveFile renames src to dst, copying when they sit on different filesystems
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	if err := copyFile(src, dst); err != nil {
		return apperrors.NewAppError(apperrors.ErrInternalError, "failed to write output", err)
	}
	return os.Remove(src)
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return apperrors.NewAppError(apperrors.ErrInternalError, "failed to create strip file", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(path)
		return apperrors.NewAppError(apperrors.ErrInternalError, "failed to encode strip", err)
	}
	return f.Close()
}

// outputJSON writes JSON output.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return cli.Exit(fmt.Sprintf("[%s] %s", appErr.Code, appErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}
