package worker

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/config"
	"github.com/mimic-ai/interview/internal/mailer"
	"github.com/mimic-ai/interview/internal/speech"
	"github.com/mimic-ai/interview/internal/transcriptions"
	"github.com/mimic-ai/interview/pkg/queue"
)

// FromConfig builds a processor backed by S3, ffmpeg, Google Speech-to-Text and Redis.
func FromConfig(ctx context.Context, cfg *config.Config, storage Downloader, rdb *redis.Client, videos VideoStatus, logger *zap.Logger) (*TranscriptionProcessor, error) {
	recognizer, err := speech.NewGoogleRecognizer(ctx, cfg.Speech.CredentialsFile, cfg.Speech.LanguageCode, cfg.Speech.PollInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("speech recognizer: %w", err)
	}
	return NewTranscriptionProcessor(
		storage,
		speech.NewExtractor(cfg.Worker.FFmpegPath),
		recognizer,
		transcriptions.NewStore(rdb, cfg.Worker.StatusTTL),
		videos,
		queue.NewQueue(rdb, logger),
		Options{TempDir: cfg.Worker.TempDir, JobTimeout: cfg.Worker.JobTimeout, MaxJobAge: cfg.Worker.MaxJobAge},
		logger,
	), nil
}

// EmailFromConfig builds an email processor that sends over SMTP, or logs when SMTP is unset.
func EmailFromConfig(cfg *config.Config, rdb *redis.Client, logger *zap.Logger) *EmailProcessor {
	sender := mailer.New(mailer.Config{
		Host:        cfg.Email.SMTPHost,
		Port:        cfg.Email.SMTPPort,
		User:        cfg.Email.SMTPUser,
		Pass:        cfg.Email.SMTPPass,
		FromAddress: cfg.Email.FromAddress,
		FromName:    cfg.Email.FromName,
	}, logger)
	return NewEmailProcessor(queue.NewQueue(rdb, logger), sender, 0, logger)
}
