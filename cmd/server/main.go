// Package main runs the interview practice HTTP API with an optional embedded
// transcription worker and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/mimic-ai/interview/config"
	"github.com/mimic-ai/interview/internal/auth"
	"github.com/mimic-ai/interview/internal/facial"
	"github.com/mimic-ai/interview/internal/feedback"
	"github.com/mimic-ai/interview/internal/questions"
	"github.com/mimic-ai/interview/internal/transcriptions"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/internal/worker"
	"github.com/mimic-ai/interview/pkg/database"
	"github.com/mimic-ai/interview/pkg/queue"
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

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Client, err := storage.NewS3(ctx, s3Config(cfg.AWS), logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	authRepo := auth.NewRepository(pool)
	videoRepo := videos.NewRepository(pool)
	statusStore := transcriptions.NewStore(rdb.Client, cfg.Worker.StatusTTL)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	llm := feedback.NewLLMClient(feedback.LLMConfig{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Referer: cfg.LLM.Referer,
		Title:   cfg.LLM.Title,
		Timeout: cfg.LLM.Timeout,
	})
	if cfg.LLM.APIKey == "" {
		logger.Warn("OPENROUTER_API_KEY not set; feedback generation will fail")
	}

	h := handlers{
		auth: auth.NewHandler(authRepo, jwtService, auth.CookieConfig{
			Secure: cfg.Server.CookieSecure,
			Domain: cfg.Server.CookieDomain,
		}, logger).WithRecovery(auth.Recovery{
			Tokens:    auth.NewTokenStore(rdb.Client),
			Mail:      jobQueue,
			AppURL:    cfg.Email.AppURL,
			VerifyTTL: cfg.Email.VerifyTTL,
			ResetTTL:  cfg.Email.ResetTTL,
		}),
		questions:      questions.NewHandler(questions.NewRepository(pool), cfg.Questions.DefaultBatch, cfg.Questions.MaxBatch, logger),
		videos:         videos.NewHandler(videoRepo, s3Client, logger),
		facial:         facial.NewHandler(videoRepo, s3Client, facial.NewClient(cfg.FaceAnalysis.URL, cfg.FaceAnalysis.Timeout, logger), facial.NewRepository(pool), logger),
		transcriptions: transcriptions.NewHandler(videoRepo, statusStore, jobQueue, logger),
		feedback:       feedback.NewHandler(videoRepo, feedback.NewService(llm), feedback.NewRepository(pool), llm.Model(), logger),
	}
	router := newRouter(h, jwtService.Identify, cfg.Server.CORSAllowedOrigins, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded transcription and email workers; run cmd/worker instead to scale them separately.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workerDone := make(chan struct{})
	if cfg.Server.EmbeddedWorker {
		processor, err := worker.FromConfig(ctx, cfg, s3Client, rdb.Client, videoRepo, logger)
		if err != nil {
			logger.Fatal("worker", zap.Error(err))
		}
		emails := worker.EmailFromConfig(cfg, rdb.Client, logger)
		go func() {
			defer close(workerDone)
			var wg sync.WaitGroup
			wg.Add(1)
			go func() {
				defer wg.Done()
				emails.Run(workerCtx)
			}()
			processor.Run(workerCtx, cfg.Worker.Concurrency)
			wg.Wait()
		}()
		logger.Info("transcription worker started", zap.Int("concurrency", cfg.Worker.Concurrency))
	} else {
		close(workerDone)
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

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-workerDone:
	case <-shutdownCtx.Done():
		logger.Warn("worker did not stop in time")
	}
	logger.Info("server stopped")
}

func s3Config(aws config.AWSConfig) storage.S3Config {
	return storage.S3Config{
		Region:               aws.Region,
		AccessKeyID:          aws.AccessKeyID,
		SecretAccessKey:      aws.SecretAccessKey,
		Bucket:               aws.VideosBucket,
		PresignExpireMinutes: aws.PresignExpireMinutes,
		Endpoint:             aws.Endpoint,
		UsePathStyle:         aws.UsePathStyle,
	}
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
