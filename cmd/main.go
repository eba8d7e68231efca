package main

import (
	"context"
	"os"
	"time"

	"clip-studio/internal/app"
	awsclient "clip-studio/internal/aws"
	"clip-studio/internal/capture"
	"clip-studio/internal/clock"
	"clip-studio/internal/compositor"
	"clip-studio/internal/config"
	"clip-studio/internal/device"
	"clip-studio/internal/manager"
	"clip-studio/internal/models"
	"clip-studio/internal/playback"
	"clip-studio/internal/segment"
	"clip-studio/internal/storage"
	"clip-studio/internal/trim"
	"clip-studio/internal/ui"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"

	fyneapp "fyne.io/fyne/v2/app"
)

// configEnv names the YAML config file; unset means defaults plus environment
const configEnv = "CLIP_CONFIG"

func main() {
	log := logger.New()
	log.Info("Clip Studio starting...")

	config.LoadDotEnv()
	cfg, err := config.Load(os.Getenv(configEnv))
	if err != nil {
		log.ErrorWithError("Failed to load configuration", err)
		os.Exit(1)
	}
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))
	log.InfoWithFields("Configuration loaded", map[string]interface{}{
		"env":      cfg.Env,
		"provider": cfg.Capture.Provider,
	})

	if err := run(cfg, log); err != nil {
		log.ErrorWithError("Clip Studio exited with an error", err)
		os.Exit(1)
	}
}

func run(cfg *config.AppConfig, log *logger.Logger) error {
	if err := os.MkdirAll(cfg.Storage.TempDir, 0o755); err != nil {
		return apperrors.NewAppError(apperrors.ErrConfigurationError, "failed to create temp directory", err)
	}

	db, err := storage.NewSQLiteDatabase(cfg.Storage.DataDir)
	if err != nil {
		return err
	}
	defer db.Close()

	settingsManager := manager.NewSettingsManager(db)
	settings, err := settingsManager.LoadSettings()
	if err != nil {
		log.WarnWithError("Failed to load settings, using defaults", err)
		settings = settingsManager.GetDefaultSettings()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	s3Service := connectS3(ctx, cfg, settings, log)
	cancel()

	window := ui.NewMainWindow(fyneapp.New())
	defer window.Close()

	ctrl, err := newController(cfg, db, s3Service, settingsManager, window, log)
	if err != nil {
		return err
	}
	defer ctrl.Stop()

	// a camera failure is shown in the window; importing still works
	_ = ctrl.Start()

	log.Info("Application UI initialized")
	window.ShowAndRun()
	return nil
}

// newController builds the media pipeline and the managers around view
func newController(
	cfg *config.AppConfig,
	db storage.Database,
	s3Service awsclient.S3Service,
	settingsManager manager.SettingsManager,
	view app.EditorView,
	log *logger.Logger,
) (*app.Controller, error) {
	runner := compositor.ExecRunner{}
	prober := compositor.NewFFprobe(cfg.Media.FFprobePath, runner)
	dispatcher := ui.Dispatcher()

	session, err := capture.NewSession(capture.Options{
		Provider:   newCaptureProvider(cfg),
		Store:      segment.NewStore(),
		TempDir:    cfg.Storage.TempDir,
		Limits:     cfg.Capture.RecordLimits,
		Facing:     models.DeviceFacing(cfg.Capture.DefaultFacing),
		Dispatcher: dispatcher,
		Logger:     log.WithComponent("capture"),
	})
	if err != nil {
		return nil, err
	}

	comp := compositor.New(compositor.Options{
		FFmpegPath: cfg.Media.FFmpegPath,
		Runner:     runner,
		Prober:     prober,
		TempDir:    cfg.Storage.TempDir,
		Logger:     log.WithComponent("compositor"),
	})

	engine, err := playback.NewEngine(playback.Options{
		Player:     playback.NewClockPlayer(clock.System{}, prober),
		Dispatcher: dispatcher,
		Logger:     log.WithComponent("playback"),
	})
	if err != nil {
		return nil, err
	}

	uploads := manager.NewUploadManager(db, s3Service, manager.UploadOptions{
		KeyPrefix: cfg.Upload.KeyPrefix,
		Retry: apperrors.RetryConfig{
			MaxAttempts: cfg.Upload.MaxAttempts,
			BaseDelay:   time.Second,
			MaxDelay:    30 * time.Second,
			Multiplier:  2,
		},
		Dispatcher: dispatcher,
		Logger:     log.WithComponent("upload"),
	})

	var ctrl *app.Controller
	cleanup, err := manager.NewCleanupManager(manager.CleanupOptions{
		TempDir:  cfg.Storage.TempDir,
		MaxAge:   cfg.Cleanup.MaxAge,
		Interval: cfg.Cleanup.Interval,
		DB:       db,
		Protect: func() []string {
			if ctrl == nil {
				return nil
			}
			return ctrl.ProtectedPaths()
		},
		Logger: log.WithComponent("cleanup"),
	})
	if err != nil {
		return nil, err
	}

	ctrl, err = app.NewController(app.Options{
		Session:         session,
		Compositor:      comp,
		Engine:          engine,
		Sampler:         trim.NewFFmpegSampler(cfg.Media.FFmpegPath, runner, cfg.Storage.TempDir),
		Uploads:         uploads,
		Settings:        settingsManager,
		Sync:            manager.NewSyncManager(db, s3Service),
		Cleanup:         cleanup,
		TempDir:         cfg.Storage.TempDir,
		MinSliceWidth:   cfg.Trim.MinSliceWidth,
		ThumbnailHeight: cfg.Trim.ThumbnailHeight,
		Dispatcher:      dispatcher,
		Logger:          log.WithComponent("controller"),
	}, view)
	if err != nil {
		return nil, err
	}
	return ctrl, nil
}

// newCaptureProvider picks the camera backend named in the config
func newCaptureProvider(cfg *config.AppConfig) device.Provider {
	if cfg.Capture.Provider == "simulated" {
		return device.NewSimulatedProvider()
	}
	return device.NewFFmpegProvider(device.FFmpegConfig{
		FFmpegPath:  cfg.Media.FFmpegPath,
		FrontCamera: cfg.Capture.FrontCamera,
		BackCamera:  cfg.Capture.BackCamera,
		Microphone:  cfg.Capture.Microphone,
	})
}

// uploadTarget resolves bucket and region; the config file wins over saved settings
func uploadTarget(cfg *config.AppConfig, settings *models.ApplicationSettings) (bucket, region string) {
	bucket, region = cfg.Upload.Bucket, cfg.Upload.Region
	if settings == nil {
		return bucket, region
	}
	if bucket == "" {
		bucket = settings.UploadBucket
	}
	if settings.AWSRegion != "" && os.Getenv("AWS_REGION") == "" {
		region = settings.AWSRegion
	}
	return bucket, region
}

// connectS3 returns nil when no bucket is configured or credentials are unusable.
// Publishing then fails with a configuration error and sync runs offline.
func connectS3(ctx context.Context, cfg *config.AppConfig, settings *models.ApplicationSettings, log *logger.Logger) awsclient.S3Service {
	bucket, region := uploadTarget(cfg, settings)
	if bucket == "" {
		log.Warn("No upload bucket configured, publishing disabled")
		return nil
	}

	creds, err := awsclient.NewSecureCredentialProvider()
	if err != nil {
		log.WarnWithError("Keychain unavailable, publishing disabled", err)
		return nil
	}
	if err := creds.SetRegion(region); err != nil {
		log.WarnWithError("Failed to store region", err)
	}
	awsCfg, err := creds.Config(ctx)
	if err != nil {
		log.WarnWithError("AWS credentials unavailable, publishing disabled", err)
		return nil
	}

	svc, err := awsclient.NewS3Service(awsCfg, awsclient.S3Options{
		Bucket:      bucket,
		Endpoint:    cfg.Upload.Endpoint,
		PartSizeMB:  cfg.Upload.PartSizeMB,
		Concurrency: cfg.Upload.Concurrency,
		MaxAttempts: cfg.Upload.MaxAttempts,
	})
	if err != nil {
		log.WarnWithError("Failed to create S3 client, publishing disabled", err)
		return nil
	}
	log.InfoWithFields("Publishing enabled", map[string]interface{}{"bucket": svc.Bucket(), "region": region})
	return svc
}
