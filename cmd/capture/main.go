// Package main records the desktop with ffmpeg and uploads the capture to the media API.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/config"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/capture"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/probe"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/uploadclient"
)

type finalized struct {
	rec *capture.Recording
	err error
}

func main() {
	name := flag.String("name", "", "preset name used for the file name")
	presetID := flag.String("preset", "", "preset id stored with the recording")
	tags := flag.String("tags", "", "comma-separated tags stored with the recording")
	duration := flag.Duration("duration", 0, "stop automatically after this long (0 waits for Ctrl-C)")
	flag.Parse()

	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	userID, err := uuid.Parse(cfg.Client.UserID)
	if err != nil {
		logger.Fatal("SEEKSY_USER_ID must be the signed-in user's id", zap.Error(err))
	}
	if cfg.Client.AccessToken == "" {
		logger.Fatal("SEEKSY_ACCESS_TOKEN is required")
	}

	ctx := context.Background()
	report := probe.New(cfg.Capture.FFmpegPath, cfg.Capture.FFprobePath, probe.WithLogger(logger)).Run(ctx)
	if !report.FFmpegAvailable {
		logger.Fatal("ffmpeg is not available", zap.Strings("logs", report.Logs))
	}

	source := capture.NewFFmpegSource(capture.FFmpegConfig{
		Binary:      cfg.Capture.FFmpegPath,
		InputFormat: cfg.Capture.InputFormat,
		Input:       cfg.Capture.Input,
		FrameRate:   cfg.Capture.FrameRate,
	}, report.Encoders, logger)

	sessions := auth.StaticSession(userID)
	notifier := notify.Multi{notify.NewLogNotifier(logger)}

	lastDecile := -1
	// The session reports store failures itself, so the upload client stays quiet.
	uploader := uploadclient.New(cfg.Client.APIURL, cfg.Client.APIKey, cfg.Client.AccessToken, sessions, notify.Multi{},
		uploadclient.WithLogger(logger),
		uploadclient.WithMaxBytes(cfg.Upload.MaxBytes),
		uploadclient.WithProgress(func(p uploadclient.Progress) {
			if d := int(p.Percent) / 10; d != lastDecile {
				lastDecile = d
				logger.Info("uploading",
					zap.Float64("percent", p.Percent),
					zap.Int64("bytes_sent", p.BytesSent),
					zap.Float64("bytes_per_second", p.BytesPerSecond),
				)
			}
		}),
	)

	done := make(chan finalized, 1)
	session := capture.NewSession(source, capture.NewUploadStore(uploader, cfg.Capture.OutputDir), notifier, sessions,
		capture.WithLogger(logger),
		capture.OnFinalized(func(rec *capture.Recording, err error) { done <- finalized{rec, err} }),
	)

	preset := capture.Preset{ID: *presetID, Name: *name}
	for _, t := range strings.Split(*tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			preset.Tags = append(preset.Tags, t)
		}
	}

	if err := session.Start(ctx, preset); err != nil {
		logger.Fatal("start capture", zap.Error(err))
	}
	logger.Info("recording; press Ctrl-C to stop", zap.String("mime_type", session.MimeType()))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}

	var result finalized
	select {
	case result = <-done:
	case <-quit:
		result.rec, result.err = session.Stop(ctx, preset)
	case <-timeout:
		result.rec, result.err = session.Stop(ctx, preset)
	}
	if errors.Is(result.err, capture.ErrNotRecording) {
		result = <-done
	}
	if result.err != nil {
		logger.Error("capture not saved", zap.Error(result.err))
		os.Exit(1)
	}
	logger.Info("capture saved",
		zap.String("media_file_id", result.rec.MediaFileID.String()),
		zap.String("file_url", result.rec.FileURL),
		zap.Int64("size_bytes", result.rec.SizeBytes),
		zap.Int("duration_seconds", result.rec.DurationSeconds),
	)
}

func newLogger() *zap.Logger {
	config := zap.NewDevelopmentConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
