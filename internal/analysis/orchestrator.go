// Package analysis drives facial analysis, transcription and feedback generation for one answer.
package analysis

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/backoff"
	"github.com/mimic-ai/interview/internal/clock"
	"github.com/mimic-ai/interview/internal/turn"
)

const (
	facePath       = "/api/video/analyze-face"
	transcribePath = "/api/video/transcribe"
	feedbackPath   = "/api/feedback/generate"

	DefaultPollInterval = 3 * time.Second
	DefaultMaxWait      = 5 * time.Minute
)

// ErrTranscriptionTimeout is wrapped when polling exceeds the max wait.
var ErrTranscriptionTimeout = errors.New("transcription timed out")

// Stager receives stage transitions. *turn.Machine implements it.
type Stager interface {
	Advance(turn.State) error
}

// Config tunes the poll loop.
type Config struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// Orchestrator runs the analysis stages in order. Any stage failure ends the run.
type Orchestrator struct {
	api       *apiclient.Client
	cfg       Config
	retry     backoff.Policy
	newTicker clock.NewTickerFunc
	log       *zap.Logger
}

// New creates an orchestrator. retry bounds transient failures of individual poll requests.
func New(api *apiclient.Client, cfg Config, retry backoff.Policy, log *zap.Logger) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = DefaultMaxWait
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{api: api, cfg: cfg, retry: retry, newTicker: clock.NewTicker, log: log}
}

// Run analyzes an uploaded answer and returns the feedback report.
func (o *Orchestrator) Run(ctx context.Context, req Request, stage Stager) (Report, error) {
	log := o.log.With(zap.Int64("video_id", req.VideoID), zap.String("filename", req.Filename))

	if err := stage.Advance(turn.AnalyzingFace); err != nil {
		return nil, err
	}
	face, err := o.AnalyzeFace(ctx, req.VideoID)
	if err != nil {
		return nil, err
	}
	log.Debug("facial analysis done", zap.Float64("gaze_score", face.GazeScore), zap.Float64("emotion_score", face.EmotionScore))

	if err := stage.Advance(turn.Transcribing); err != nil {
		return nil, err
	}
	opName, err := o.StartTranscription(ctx, req.Filename)
	if err != nil {
		return nil, err
	}

	if err := stage.Advance(turn.Polling); err != nil {
		return nil, err
	}
	status, err := o.PollTranscription(ctx, opName)
	if err != nil {
		return nil, err
	}
	log.Debug("transcription done", zap.String("operation_name", opName), zap.Float64("duration_sec", status.DurationSec))

	if err := stage.Advance(turn.GeneratingFeedback); err != nil {
		return nil, err
	}
	report, err := o.GenerateFeedback(ctx, Assemble(req, face, status))
	if err != nil {
		return nil, err
	}
	log.Info("feedback generated", zap.Int("report_bytes", len(report)))
	return report, nil
}

// AnalyzeFace requests facial analysis of a stored video.
func (o *Orchestrator) AnalyzeFace(ctx context.Context, videoID int64) (FacialResult, error) {
	var res FacialResult
	if err := o.api.Post(ctx, "facial analysis", facePath, map[string]int64{"video_id": videoID}, &res); err != nil {
		return FacialResult{}, apperr.Reclassify(apperr.KindAnalysis, "facial analysis", err)
	}
	if err := res.validate(); err != nil {
		return FacialResult{}, &apperr.Error{Kind: apperr.KindAnalysis, Op: "facial analysis", Message: "表情分析の結果が不正です", Err: err}
	}
	return res, nil
}

// StartTranscription begins an asynchronous transcription job and returns its operation name.
func (o *Orchestrator) StartTranscription(ctx context.Context, filename string) (string, error) {
	var res struct {
		OperationName string `json:"operation_name"`
	}
	if err := o.api.Post(ctx, "transcription start", transcribePath, map[string]string{"filename": filename}, &res); err != nil {
		return "", apperr.Reclassify(apperr.KindAnalysis, "transcription start", err)
	}
	if res.OperationName == "" {
		return "", apperr.New(apperr.KindAnalysis, "transcription start", "operation_name が返されませんでした")
	}
	return res.OperationName, nil
}

// PollTranscription checks the job immediately and then once per interval until it is done,
// the max wait elapses or ctx is cancelled.
func (o *Orchestrator) PollTranscription(ctx context.Context, opName string) (TranscriptionStatus, error) {
	pollCtx, cancel := context.WithTimeout(ctx, o.cfg.MaxWait)
	defer cancel()
	ticker := o.newTicker(o.cfg.PollInterval)
	defer ticker.Stop()

	path := transcribePath + "/" + url.PathEscape(opName)
	for polls := 1; ; polls++ {
		status, err := o.pollOnce(pollCtx, path)
		if err != nil {
			return TranscriptionStatus{}, o.pollError(ctx, pollCtx, opName, err)
		}
		if status.Done {
			o.log.Debug("transcription complete", zap.String("operation_name", opName), zap.Int("polls", polls))
			return status, nil
		}
		select {
		case <-pollCtx.Done():
			return TranscriptionStatus{}, o.pollError(ctx, pollCtx, opName, pollCtx.Err())
		case <-ticker.C():
		}
	}
}

func (o *Orchestrator) pollOnce(ctx context.Context, path string) (TranscriptionStatus, error) {
	var status TranscriptionStatus
	err := o.retry.Do(ctx, apperr.Retryable, func(attempt int) error {
		status = TranscriptionStatus{}
		err := o.api.Get(ctx, "transcription poll", path, &status)
		if err != nil && apperr.Retryable(err) {
			o.log.Warn("transcription poll failed; retrying", zap.Int("attempt", attempt), zap.Error(err))
		}
		return err
	})
	return status, err
}

// pollError separates caller cancellation from the max wait elapsing.
func (o *Orchestrator) pollError(parent, pollCtx context.Context, opName string, err error) error {
	if parent.Err() != nil {
		return fmt.Errorf("transcription poll %s: %w", opName, parent.Err())
	}
	if errors.Is(pollCtx.Err(), context.DeadlineExceeded) {
		return &apperr.Error{
			Kind:    apperr.KindAnalysis,
			Op:      "transcription poll",
			Message: "文字起こしがタイムアウトしました",
			Err:     fmt.Errorf("%s after %s: %w", opName, o.cfg.MaxWait, ErrTranscriptionTimeout),
		}
	}
	return apperr.Reclassify(apperr.KindAnalysis, "transcription poll", err)
}

// GenerateFeedback sends the assembled result and returns the report verbatim.
func (o *Orchestrator) GenerateFeedback(ctx context.Context, raw RawResult) (Report, error) {
	var report Report
	if err := o.api.Post(ctx, "feedback generate", feedbackPath, raw, &report); err != nil {
		return nil, apperr.Reclassify(apperr.KindAnalysis, "feedback generate", err)
	}
	if trimmed := bytes.TrimSpace(report); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, apperr.New(apperr.KindAnalysis, "feedback generate", "フィードバックが空です")
	}
	return report, nil
}

// Assemble merges the stage outputs into the object sent for feedback generation.
func Assemble(req Request, face FacialResult, status TranscriptionStatus) RawResult {
	return RawResult{
		VideoID:      req.VideoID,
		QuestionID:   req.QuestionID,
		Question:     req.Question,
		Category:     req.Category,
		Transcript:   status.Transcript,
		VideoMetrics: face,
		SpeechMetrics: SpeechMetrics{
			DurationSec: status.DurationSec,
			CharsPerSec: status.CharsPerSec,
			SpeedScore:  status.SpeedScore,
			VolumeScore: status.VolumeScore,
		},
	}
}
