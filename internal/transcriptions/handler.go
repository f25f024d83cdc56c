package transcriptions

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/pkg/queue"
	"github.com/mimic-ai/interview/pkg/response"
	"github.com/mimic-ai/interview/pkg/storage"
)

// VideoFinder resolves the caller's video by filename.
type VideoFinder interface {
	GetByFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Video, error)
}

// StatusStore records and reads operation status. *Store implements it.
type StatusStore interface {
	Start(ctx context.Context, op string, userID uuid.UUID, videoID int64) error
	Fail(ctx context.Context, op, msg string) error
	Get(ctx context.Context, op string) (Status, error)
}

// Enqueuer hands jobs to the worker.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, payload queue.TranscriptionPayload) error
}

// StartRequest is the body for POST /api/video/transcribe.
type StartRequest struct {
	Filename string `json:"filename" binding:"required"`
}

// StatusResponse is one poll result. Metrics are present only when done.
type StatusResponse struct {
	Done        bool     `json:"done"`
	Transcript  *string  `json:"transcript,omitempty"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
	CharsPerSec *float64 `json:"chars_per_sec,omitempty"`
	SpeedScore  *float64 `json:"speed_score,omitempty"`
	VolumeScore *float64 `json:"volume_score,omitempty"`
}

// Handler starts transcriptions and reports their progress.
type Handler struct {
	videos VideoFinder
	store  StatusStore
	queue  Enqueuer
	logger *zap.Logger
}

// NewHandler creates a transcriptions handler.
func NewHandler(videos VideoFinder, store StatusStore, q Enqueuer, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{videos: videos, store: store, queue: q, logger: logger}
}

// NewOperationName returns a fresh operation id.
func NewOperationName() string { return "op-" + uuid.NewString() }

// Start handles POST /api/video/transcribe.
func (h *Handler) Start(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidVideoFilename(req.Filename) {
		response.BadRequest(c, "invalid filename")
		return
	}

	ctx := c.Request.Context()
	v, err := h.videos.GetByFilename(ctx, userID, req.Filename)
	if errors.Is(err, videos.ErrVideoNotFound) {
		response.NotFound(c, "video not found; confirm the upload first")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load video")
		return
	}

	op := NewOperationName()
	if err := h.store.Start(ctx, op, userID, v.ID); err != nil {
		h.logger.Error("store operation failed", zap.Error(err), zap.String("operation_name", op))
		response.Internal(c, "failed to start transcription")
		return
	}
	err = h.queue.EnqueueTranscription(ctx, queue.TranscriptionPayload{
		OperationName: op,
		VideoID:       v.ID,
		UserID:        userID,
		S3Key:         v.S3Key,
		Filename:      v.Filename,
	})
	if err != nil {
		h.logger.Error("enqueue transcription failed", zap.Error(err), zap.String("operation_name", op))
		_ = h.store.Fail(ctx, op, "failed to queue transcription")
		response.ServiceUnavailable(c, "transcription queue unavailable")
		return
	}
	h.logger.Info("transcription started", zap.String("operation_name", op), zap.Int64("video_id", v.ID))
	response.OK(c, gin.H{"operation_name": op})
}

// Status handles GET /api/video/transcribe/:operation_name. A failed operation
// answers 422 so callers stop polling.
func (h *Handler) Status(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	op := c.Param("operation_name")
	st, err := h.store.Get(c.Request.Context(), op)
	if errors.Is(err, ErrUnknownOperation) || (err == nil && st.UserID != userID) {
		response.NotFound(c, "operation not found")
		return
	}
	if err != nil {
		h.logger.Error("read operation failed", zap.Error(err), zap.String("operation_name", op))
		response.Internal(c, "failed to read transcription status")
		return
	}

	switch st.State {
	case StateFailed:
		msg := st.Error
		if msg == "" {
			msg = "transcription failed"
		}
		response.UnprocessableEntity(c, msg)
	case StateDone:
		m := st.Metrics
		response.OK(c, StatusResponse{
			Done:        true,
			Transcript:  &m.Transcript,
			DurationSec: &m.DurationSec,
			CharsPerSec: &m.CharsPerSec,
			SpeedScore:  &m.SpeedScore,
			VolumeScore: &m.VolumeScore,
		})
	default:
		response.OK(c, StatusResponse{Done: false})
	}
}
