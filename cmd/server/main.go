// Package main runs the media HTTP API: uploads, capture sessions, processing
// jobs, the ffmpeg probe and the notification websocket.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/config"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/ads"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/auth"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/capture"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/edits"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/media"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/middleware"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/probe"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/processing"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/worker"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/database"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/queue"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/redis"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/response"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	if err := database.Migrate(cfg.Database.DSN()); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		MediaBucket:          cfg.AWS.MediaBucket,
		Endpoint:             cfg.AWS.Endpoint,
		UsePathStyle:         cfg.AWS.UsePathStyle,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.APIKey, cfg.Auth.ExpireHours)
	redisNotifier := notify.NewRedisNotifier(rdb.Client, logger)
	notifier := notify.Multi{notify.NewLogNotifier(logger), redisNotifier}

	// Media files
	mediaSvc := media.NewService(media.NewRepository(pool), s3Client, cfg.Upload.MaxBytes, logger)
	mediaHandler := media.NewHandler(mediaSvc, logger)

	// Job inputs
	adHandler := ads.NewHandler(ads.NewRepository(pool), mediaSvc, logger)
	editHandler := edits.NewHandler(edits.NewRepository(pool), mediaSvc, logger)

	// Processing jobs
	jobRepo := processing.NewRepository(pool)
	jobEvents := processing.NewRedisEvents(rdb.Client, logger)
	processor := processing.NewProcessor(jobRepo, jobEvents, notifier, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	var dispatcher processing.Dispatcher
	var local *processing.LocalDispatcher
	switch cfg.Queue.Backend {
	case "local":
		local = processing.NewLocalDispatcher(processor, jobRepo, logger)
		dispatcher = local
		recovery := worker.NewRecovery(jobRepo, cfg.Queue.StaleAfter, cfg.Queue.RecoverEvery, logger,
			worker.WithEvents(jobEvents),
			worker.WithNotifier(notifier, mediaOwner(jobRepo)),
		)
		go recovery.Run(bgCtx)
	case "nats":
		nq, err := queue.NewNATSQueue(cfg.Queue.NATSURL, logger)
		if err != nil {
			logger.Fatal("nats", zap.Error(err))
		}
		defer nq.Close()
		dispatcher = processing.NewQueueDispatcher(nq, jobEvents, jobRepo)
	default:
		dispatcher = processing.NewQueueDispatcher(queue.NewQueue(rdb.Client, logger), jobEvents, jobRepo)
	}
	logger.Info("job dispatch configured", zap.String("backend", cfg.Queue.Backend))
	jobHandler := processing.NewHandler(processing.NewService(jobRepo, dispatcher, logger), cfg.Queue.WaitTimeout, logger)

	// Browser capture over WebRTC
	captureManager := capture.NewManager(capture.NewMediaStore(mediaSvc), notifier, capture.ICEServers(cfg.WebRTC.ICEUrls), logger)
	captureHandler := capture.NewHandler(captureManager, auth.ContextSession{}, logger)

	probeHandler := probe.NewHandler(probe.New(cfg.Capture.FFmpegPath, cfg.Capture.FFprobePath, probe.WithLogger(logger)))

	wsValidate := func(token string) (uuid.UUID, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, err
		}
		return claims.UserID()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(middleware.Metrics())

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// WebSocket (token in query; browsers cannot set headers on upgrade)
	router.GET("/ws/notifications", notify.ServeWs(redisNotifier, wsValidate, logger))

	api := router.Group("")
	api.Use(middleware.Auth(jwtService))
	api.Use(middleware.RequireRole(auth.RoleAuthenticated, auth.RoleService))
	{
		api.POST("/upload", mediaHandler.Upload)
		api.GET("/media", mediaHandler.List)
		api.GET("/media/:id", mediaHandler.Get)
		api.DELETE("/media/:id", mediaHandler.Delete)
		api.GET("/media/:id/download-url", mediaHandler.DownloadURL)
		api.GET("/media/:id/share.png", mediaHandler.ShareQR)
		api.GET("/media/:id/jobs", jobHandler.ListForMedia)
		api.GET("/media/:id/ad-slots", adHandler.List)
		api.POST("/media/:id/ad-slots", adHandler.Create)
		api.DELETE("/media/:id/ad-slots/:slotId", adHandler.Delete)
		api.GET("/media/:id/edit-instructions", editHandler.List)
		api.PUT("/media/:id/edit-instructions", editHandler.Replace)

		api.POST("/process-video", jobHandler.ProcessVideo)
		api.GET("/jobs/:id", jobHandler.GetJob)

		api.POST("/test-ffmpeg", probeHandler.TestFFmpeg)

		api.POST("/capture/sessions", captureHandler.Create)
		api.GET("/capture/sessions/:id", captureHandler.Get)
		api.POST("/capture/sessions/:id/offer", captureHandler.Offer)
		api.POST("/capture/sessions/:id/stop", captureHandler.Stop)
		api.POST("/capture/sessions/:id/cancel", captureHandler.Cancel)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadHeaderTimeout) * time.Second,
		ReadTimeout:       time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	captureManager.Shutdown()
	bgCancel()
	if local != nil {
		if err := local.Wait(shutdownCtx); err != nil {
			logger.Warn("in-flight jobs still running at exit", zap.Error(err))
		}
	}
	logger.Info("server stopped")
}

func mediaOwner(repo *processing.Repository) func(ctx context.Context, mediaFileID uuid.UUID) (uuid.UUID, error) {
	return func(ctx context.Context, mediaFileID uuid.UUID) (uuid.UUID, error) {
		f, err := repo.GetMediaFile(ctx, mediaFileID)
		if err != nil {
			return uuid.Nil, err
		}
		return f.UserID, nil
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
