package main

import (
	"context"
	"fmt"
	"os"

	awsclient "clip-studio/internal/aws"
	"clip-studio/internal/compositor"
	"clip-studio/internal/config"
	"clip-studio/internal/storage"
	apperrors "clip-studio/pkg/errors"
	"clip-studio/pkg/logger"
)

// Version is set via -ldflags at build time.
var Version = "dev"

func main() {
	config.LoadDotEnv()
	cfg, err := config.Load(os.Getenv("CLIP_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// stdout carries command output, so logs go to stderr
	log := logger.NewWithOutput(os.Stderr, "clipctl")
	log.SetLevel(logger.ParseLevel(cfg.LogLevel))

	runner := compositor.ExecRunner{}
	tk := &toolkit{
		cfg:    cfg,
		runner: runner,
		prober: compositor.NewFFprobe(cfg.Media.FFprobePath, runner),
		log:    log,
		openDB: func() (storage.Database, error) {
			return storage.NewSQLiteDatabase(cfg.Storage.DataDir)
		},
		connect: func(ctx context.Context, bucket string) (awsclient.S3Service, error) {
			return connectS3(ctx, cfg, bucket)
		},
	}

	if err := newCLIApp(tk).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func connectS3(ctx context.Context, cfg *config.AppConfig, bucket string) (awsclient.S3Service, error) {
	if bucket == "" {
		return nil, apperrors.NewAppError(apperrors.ErrConfigurationError, "no upload bucket; set --bucket or CLIP_UPLOAD_BUCKET", nil)
	}
	creds, err := awsclient.NewSecureCredentialProvider()
	if err != nil {
		return nil, err
	}
	if err := creds.SetRegion(cfg.Upload.Region); err != nil {
		return nil, err
	}
	awsCfg, err := creds.Config(ctx)
	if err != nil {
		return nil, err
	}
	svc, err := awsclient.NewS3Service(awsCfg, awsclient.S3Options{
		Bucket:      bucket,
		Endpoint:    cfg.Upload.Endpoint,
		PartSizeMB:  cfg.Upload.PartSizeMB,
		Concurrency: cfg.Upload.Concurrency,
		MaxAttempts: cfg.Upload.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return svc, nil
}
