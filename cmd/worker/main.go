// Package main runs the transcription and email workers on their own, for deployments
// that disable the server's embedded worker.
package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mimic-ai/interview/config"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/internal/worker"
	"github.com/mimic-ai/interview/pkg/database"
	"github.com/mimic-ai/interview/pkg/redis"
	"github.com/mimic-ai/interview/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
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
		Bucket:               cfg.AWS.VideosBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		Endpoint:             cfg.AWS.Endpoint,
		UsePathStyle:         cfg.AWS.UsePathStyle,
	}, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	processor, err := worker.FromConfig(ctx, cfg, s3Client, rdb.Client, videos.NewRepository(pool), logger)
	if err != nil {
		logger.Fatal("worker", zap.Error(err))
	}

	emails := worker.EmailFromConfig(cfg, rdb.Client, logger)

	logger.Info("worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		emails.Run(ctx)
	}()
	processor.Run(ctx, cfg.Worker.Concurrency)
	wg.Wait()
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
