package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/mailer"
	"github.com/mimic-ai/interview/pkg/queue"
)

// EmailQueue is the email side of the Redis queue.
type EmailQueue interface {
	DequeueEmail(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (dead bool, err error)
}

// EmailProcessor delivers queued account emails.
type EmailProcessor struct {
	queue   EmailQueue
	sender  mailer.Sender
	backoff time.Duration
	logger  *zap.Logger
}

// NewEmailProcessor creates an email processor.
func NewEmailProcessor(q EmailQueue, sender mailer.Sender, backoff time.Duration, logger *zap.Logger) *EmailProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if backoff <= 0 {
		backoff = queue.RetryBackoff
	}
	return &EmailProcessor{queue: q, sender: sender, backoff: backoff, logger: logger}
}

func decodeEmail(job *queue.Job) (queue.EmailPayload, error) {
	var p queue.EmailPayload
	if job.Type != queue.JobTypeEmail {
		return p, permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, permanent(fmt.Errorf("unmarshal payload: %w", err))
	}
	if p.RecipientEmail == "" {
		return p, permanent(errors.New("payload missing recipient_email"))
	}
	return p, nil
}

// Process sends one email job.
func (p *EmailProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := decodeEmail(job)
	if err != nil {
		return err
	}
	if err := p.sender.Send(ctx, payload.RecipientEmail, payload.Subject, payload.Body); err != nil {
		return err
	}
	p.logger.Info("email sent", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

// Run delivers emails until ctx is cancelled.
func (p *EmailProcessor) Run(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := p.queue.DequeueEmail(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			p.logger.Warn("dequeue email error", zap.Error(err))
			sleepCtx(ctx, p.backoff)
			continue
		}
		if job == nil {
			continue
		}
		if err := p.Process(ctx, job); err != nil {
			p.retry(ctx, job, err)
		}
	}
	p.logger.Info("email worker stopped")
}

func (p *EmailProcessor) retry(ctx context.Context, job *queue.Job, err error) {
	log := p.logger.With(zap.String("job_id", job.ID))
	if isPermanent(err) {
		log.Error("drop email job", zap.Error(err))
		return
	}
	log.Warn("email failed", zap.Error(err), zap.Int("attempt", job.Attempt))
	dead, reErr := p.queue.Retry(context.WithoutCancel(ctx), job, err)
	if reErr != nil {
		log.Error("retry enqueue failed", zap.Error(reErr))
		return
	}
	if !dead {
		sleepCtx(ctx, p.backoff)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
