// Package worker runs queued transcription and email jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/internal/speech"
	"github.com/mimic-ai/interview/internal/transcriptions"
	"github.com/mimic-ai/interview/pkg/queue"
)

// Downloader fetches a stored object.
type Downloader interface {
	Download(ctx context.Context, key string, w io.WriterAt) (int64, error)
}

// AudioExtractor pulls the speech track out of a video file.
type AudioExtractor interface {
	Extract(ctx context.Context, inPath, outPath string) (speech.Audio, error)
}

// Recognizer turns audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audioPath string) (string, error)
}

// ResultStore records the outcome of an operation.
type ResultStore interface {
	Complete(ctx context.Context, op string, m transcriptions.Metrics) error
	Fail(ctx context.Context, op, msg string) error
}

// VideoStatus updates the video lifecycle.
type VideoStatus interface {
	SetStatus(ctx context.Context, id int64, status string) error
}

// JobQueue is the Redis queue as seen by the worker.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, error)
	Retry(ctx context.Context, job *queue.Job, cause error) (dead bool, err error)
}

// permanentError marks failures that retrying cannot fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func permanent(err error) error { return permanentError{err: err} }

// errJobExpired marks jobs older than the client is willing to wait for.
var errJobExpired = errors.New("job expired before completion")

// Defaults line up with the client's transcription wait: nobody polls an operation
// older than DefaultMaxJobAge.
const (
	DefaultJobTimeout = 5 * time.Minute
	DefaultMaxJobAge  = 5 * time.Minute
)

func isPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p) || errors.Is(err, speech.ErrNoSpeech) || errors.Is(err, speech.ErrNoAudio) ||
		errors.Is(err, errJobExpired)
}

// Options tunes the processor.
type Options struct {
	TempDir      string
	JobTimeout   time.Duration
	MaxJobAge    time.Duration // measured from Job.CreatedAt, across attempts
	RetryBackoff time.Duration
}

// TranscriptionProcessor downloads a video, extracts audio, transcribes it and
// stores speech metrics for the polling client.
type TranscriptionProcessor struct {
	storage    Downloader
	extractor  AudioExtractor
	recognizer Recognizer
	results    ResultStore
	videos     VideoStatus
	queue      JobQueue
	opts       Options
	logger     *zap.Logger
}

// NewTranscriptionProcessor creates a transcription processor.
func NewTranscriptionProcessor(storage Downloader, extractor AudioExtractor, recognizer Recognizer,
	results ResultStore, videos VideoStatus, q JobQueue, opts Options, logger *zap.Logger) *TranscriptionProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}
	if opts.MaxJobAge <= 0 {
		opts.MaxJobAge = DefaultMaxJobAge
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = queue.RetryBackoff
	}
	return &TranscriptionProcessor{
		storage:    storage,
		extractor:  extractor,
		recognizer: recognizer,
		results:    results,
		videos:     videos,
		queue:      q,
		opts:       opts,
		logger:     logger,
	}
}

func decodePayload(job *queue.Job) (queue.TranscriptionPayload, error) {
	var p queue.TranscriptionPayload
	if job.Type != queue.JobTypeTranscription {
		return p, permanent(fmt.Errorf("unknown job type: %s", job.Type))
	}
	if err := json.Unmarshal(job.Payload, &p); err != nil {
		return p, permanent(fmt.Errorf("unmarshal payload: %w", err))
	}
	if p.OperationName == "" || p.S3Key == "" {
		return p, permanent(errors.New("payload missing operation_name or s3_key"))
	}
	return p, nil
}

// Process executes one transcription job.
func (p *TranscriptionProcessor) Process(ctx context.Context, job *queue.Job) error {
	payload, err := decodePayload(job)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(p.opts.JobTimeout)
	if !job.CreatedAt.IsZero() {
		expires := job.CreatedAt.Add(p.opts.MaxJobAge)
		if !time.Now().Before(expires) {
			return fmt.Errorf("%w (queued %s)", errJobExpired, humanize.Time(job.CreatedAt))
		}
		if expires.Before(deadline) {
			deadline = expires
		}
	}
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	dir, err := os.MkdirTemp(p.opts.TempDir, "transcribe-*")
	if err != nil {
		return fmt.Errorf("temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	videoPath := filepath.Join(dir, filepath.Base(payload.Filename))
	if filepath.Ext(videoPath) == "" || payload.Filename == "" {
		videoPath = filepath.Join(dir, "answer.webm")
	}
	f, err := os.Create(videoPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	n, err := p.storage.Download(ctx, payload.S3Key, f)
	closeErr := f.Close()
	if err != nil {
		return fmt.Errorf("download %s: %w", payload.S3Key, err)
	}
	if closeErr != nil {
		return fmt.Errorf("close temp file: %w", closeErr)
	}
	p.logger.Debug("video downloaded",
		zap.String("operation_name", payload.OperationName),
		zap.String("size", humanize.Bytes(uint64(n))),
	)

	audio, err := p.extractor.Extract(ctx, videoPath, filepath.Join(dir, "audio.flac"))
	if err != nil {
		return fmt.Errorf("extract audio: %w", err)
	}
	transcript, err := p.recognizer.Recognize(ctx, audio.Path)
	if err != nil {
		return fmt.Errorf("recognize: %w", err)
	}

	cps := speech.CharsPerSec(transcript, audio.DurationSec)
	m := transcriptions.Metrics{
		Transcript:  transcript,
		DurationSec: audio.DurationSec,
		CharsPerSec: cps,
		SpeedScore:  speech.SpeedScore(cps),
		VolumeScore: speech.VolumeScore(audio.MeanVolumeDB),
	}
	if err := p.results.Complete(ctx, payload.OperationName, m); err != nil {
		return fmt.Errorf("store result: %w", err)
	}
	if err := p.videos.SetStatus(ctx, payload.VideoID, models.VideoStatusTranscribed); err != nil {
		p.logger.Warn("mark video transcribed failed", zap.Error(err), zap.Int64("video_id", payload.VideoID))
	}
	p.logger.Info("transcription completed",
		zap.String("operation_name", payload.OperationName),
		zap.Int64("video_id", payload.VideoID),
		zap.Float64("duration_sec", m.DurationSec),
		zap.Float64("chars_per_sec", m.CharsPerSec),
	)
	return nil
}

// Run starts n worker loops and blocks until ctx is cancelled and all loops return.
func (p *TranscriptionProcessor) Run(ctx context.Context, n int) {
	if n < 1 {
		n = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			p.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	p.logger.Info("transcription worker stopped")
}

func (p *TranscriptionProcessor) loop(ctx context.Context, id int) {
	log := p.logger.With(zap.Int("worker", id))
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, log, job)
	}
}

func (p *TranscriptionProcessor) handle(ctx context.Context, log *zap.Logger, job *queue.Job) {
	log.Debug("processing job", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt))
	err := p.Process(ctx, job)
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		// Shutting down: put the job back for the next worker without counting an attempt.
		job.Attempt--
		if _, reErr := p.queue.Retry(context.WithoutCancel(ctx), job, err); reErr != nil {
			log.Error("requeue on shutdown failed", zap.Error(reErr), zap.String("job_id", job.ID))
		}
		return
	}
	log.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))

	payload, _ := decodePayload(job)
	if !isPermanent(err) && p.expired(job) {
		err = fmt.Errorf("%w: %v", errJobExpired, err)
	}
	if isPermanent(err) {
		p.fail(ctx, log, payload.OperationName, err)
		return
	}
	dead, reErr := p.queue.Retry(ctx, job, err)
	if reErr != nil {
		log.Error("retry enqueue failed", zap.Error(reErr), zap.String("job_id", job.ID))
	}
	if dead || reErr != nil {
		p.fail(ctx, log, payload.OperationName, err)
		return
	}
	p.sleep(ctx)
}

func (p *TranscriptionProcessor) fail(ctx context.Context, log *zap.Logger, op string, cause error) {
	if op == "" {
		return
	}
	if err := p.results.Fail(ctx, op, failureMessage(cause)); err != nil {
		log.Error("store failure failed", zap.Error(err), zap.String("operation_name", op))
	}
}

func (p *TranscriptionProcessor) expired(job *queue.Job) bool {
	return !job.CreatedAt.IsZero() && !time.Now().Before(job.CreatedAt.Add(p.opts.MaxJobAge))
}

func failureMessage(err error) string {
	switch {
	case errors.Is(err, errJobExpired):
		return "transcription abandoned: the job waited too long"
	case errors.Is(err, speech.ErrNoSpeech):
		return "no speech recognized in the recording"
	case errors.Is(err, speech.ErrNoAudio):
		return "the recording has no audio track"
	default:
		return "transcription failed: " + err.Error()
	}
}

func (p *TranscriptionProcessor) sleep(ctx context.Context) { sleepCtx(ctx, p.opts.RetryBackoff) }
