// Package main runs the processing worker: queue consumer plus stale-job recovery.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/config"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/notify"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/processing"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/internal/worker"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/database"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/queue"
	"github.com/Seeksy-app/powering-how-people-work-and-share-online-sub001/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if cfg.Queue.Backend == "local" {
		logger.Fatal("QUEUE_BACKEND=local runs jobs inside the server; the worker needs redis or nats")
	}

	ctx := context.Background()
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

	var consumer queue.Consumer
	if cfg.Queue.Backend == "nats" {
		nq, err := queue.NewNATSQueue(cfg.Queue.NATSURL, logger)
		if err != nil {
			logger.Fatal("nats", zap.Error(err))
		}
		defer nq.Close()
		consumer = nq
	} else {
		consumer = queue.NewQueue(rdb.Client, logger)
	}

	repo := processing.NewRepository(pool)
	events := processing.NewRedisEvents(rdb.Client, logger)
	notifier := notify.Multi{notify.NewLogNotifier(logger), notify.NewRedisNotifier(rdb.Client, logger)}
	processor := processing.NewProcessor(repo, events, notifier, logger)
	jobs := worker.NewJobProcessor(processor, logger)
	recovery := worker.NewRecovery(repo, cfg.Queue.StaleAfter, cfg.Queue.RecoverEvery, logger,
		worker.WithEvents(events),
		worker.WithNotifier(notifier, func(ctx context.Context, mediaFileID uuid.UUID) (uuid.UUID, error) {
			f, err := repo.GetMediaFile(ctx, mediaFileID)
			if err != nil {
				return uuid.Nil, err
			}
			return f.UserID, nil
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{Addr: cfg.Metrics.WorkerAddr, Handler: mux}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics listener", zap.Error(err))
		}
	}()

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := jobs.Run(workerCtx, consumer); err != nil {
			logger.Error("consumer stopped", zap.Error(err))
		}
	}()
	go func() {
		defer wg.Done()
		recovery.Run(workerCtx)
	}()
	logger.Info("worker started", zap.String("backend", cfg.Queue.Backend), zap.String("metrics_addr", cfg.Metrics.WorkerAddr))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	wg.Wait()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	_ = metricsSrv.Shutdown(shutdownCtx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
