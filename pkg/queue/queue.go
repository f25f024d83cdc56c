package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// QueueTranscriptions is the Redis list key for transcription jobs.
	QueueTranscriptions = "worker:transcriptions"
	// QueueEmails is the Redis list key for email jobs.
	QueueEmails = "worker:emails"
	// QueueDLQ is the dead-letter queue for failed jobs after retries.
	QueueDLQ = "worker:dlq"
	// MaxRetries is the number of attempts before a job moves to the DLQ.
	MaxRetries = 3
	// RetryBackoff is the delay between retries.
	RetryBackoff = 10 * time.Second
	// popTimeout bounds each blocking pop so a cancelled context is noticed.
	popTimeout = 5 * time.Second
)

// JobType identifies the job kind.
type JobType string

const (
	JobTypeTranscription JobType = "transcription"
	JobTypeEmail         JobType = "email"
)

// Email kinds.
const (
	EmailVerify        = "verify"
	EmailPasswordReset = "password_reset"
)

// TranscriptionPayload is the payload for transcription jobs.
type TranscriptionPayload struct {
	OperationName string    `json:"operation_name"`
	VideoID       int64     `json:"video_id"`
	UserID        uuid.UUID `json:"user_id"`
	S3Key         string    `json:"s3_key"`
	Filename      string    `json:"filename"`
}

// EmailPayload is the payload for email jobs.
type EmailPayload struct {
	EmailType      string `json:"email_type"`
	RecipientEmail string `json:"recipient_email"`
	Subject        string `json:"subject"`
	Body           string `json:"body"`
}

// Job is a generic job envelope.
type Job struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempt   int             `json:"attempt"`
	LastError string          `json:"last_error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// Queue enqueues and dequeues jobs via Redis.
type Queue struct {
	client *redis.Client
	logger *zap.Logger
}

// NewQueue creates a new Redis-backed job queue.
func NewQueue(client *redis.Client, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{client: client, logger: logger}
}

// NewJob wraps a payload in a fresh job envelope.
func NewJob(t JobType, payload any) (*Job, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Job{
		ID:        uuid.New().String(),
		Type:      t,
		Payload:   body,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// EnqueueTranscription enqueues a transcription job.
func (q *Queue) EnqueueTranscription(ctx context.Context, payload TranscriptionPayload) error {
	job, err := NewJob(JobTypeTranscription, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueTranscriptions, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued transcription job",
		zap.String("job_id", job.ID),
		zap.String("operation_name", payload.OperationName),
		zap.Int64("video_id", payload.VideoID),
	)
	return nil
}

// EnqueueEmail enqueues an email job.
func (q *Queue) EnqueueEmail(ctx context.Context, payload EmailPayload) error {
	job, err := NewJob(JobTypeEmail, payload)
	if err != nil {
		return err
	}
	if err := q.push(ctx, QueueEmails, job); err != nil {
		return err
	}
	q.logger.Debug("enqueued email job", zap.String("job_id", job.ID), zap.String("email_type", payload.EmailType))
	return nil
}

func (q *Queue) push(ctx context.Context, key string, job *Job) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	if err := q.client.RPush(ctx, key, raw).Err(); err != nil {
		return fmt.Errorf("rpush: %w", err)
	}
	return nil
}

// Dequeue waits up to a few seconds for a transcription job. It returns (nil, nil) when
// none arrived or the entry was not a valid job.
func (q *Queue) Dequeue(ctx context.Context) (*Job, error) {
	return q.pop(ctx, QueueTranscriptions)
}

// DequeueEmail is Dequeue for the email queue.
func (q *Queue) DequeueEmail(ctx context.Context) (*Job, error) {
	return q.pop(ctx, QueueEmails)
}

func (q *Queue) pop(ctx context.Context, key string) (*Job, error) {
	result, err := q.client.BLPop(ctx, popTimeout, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, err
	}
	if len(result) < 2 {
		return nil, nil
	}
	return decodeJob(result[1], q.logger), nil
}

func decodeJob(raw string, logger *zap.Logger) *Job {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.ID == "" {
		logger.Warn("invalid job payload", zap.String("raw", raw), zap.Error(err))
		return nil
	}
	return &job
}

// Retry re-enqueues a job with incremented attempt. Once attempts reach MaxRetries the job
// goes to the DLQ instead and dead is true.
func (q *Queue) Retry(ctx context.Context, job *Job, cause error) (dead bool, err error) {
	job.Attempt++
	if cause != nil {
		job.LastError = cause.Error()
	}
	if exhausted(job) {
		if err := q.push(ctx, QueueDLQ, job); err != nil {
			q.logger.Error("dlq push failed", zap.Error(err), zap.String("job_id", job.ID))
			return true, err
		}
		q.logger.Warn("job moved to DLQ", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
		return true, nil
	}
	if err := q.push(ctx, queueFor(job.Type), job); err != nil {
		return false, err
	}
	q.logger.Info("job retried", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	return false, nil
}

func exhausted(job *Job) bool { return job.Attempt >= MaxRetries }

func queueFor(t JobType) string {
	if t == JobTypeEmail {
		return QueueEmails
	}
	return QueueTranscriptions
}
