package feedback

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/pkg/response"
)

// VideoLookup checks the video belongs to the caller.
type VideoLookup interface {
	GetForUser(ctx context.Context, id int64, userID uuid.UUID) (*models.Video, error)
}

// Generator produces a report.
type Generator interface {
	Generate(ctx context.Context, raw RawResult) (Report, error)
}

// Store persists reports.
type Store interface {
	Save(ctx context.Context, rec *models.FeedbackReport) error
}

// Handler serves feedback generation.
type Handler struct {
	videos    VideoLookup
	generator Generator
	store     Store
	model     string
	logger    *zap.Logger
}

// NewHandler creates a feedback handler. model is recorded with each stored report.
func NewHandler(videos VideoLookup, generator Generator, store Store, model string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{videos: videos, generator: generator, store: store, model: model, logger: logger}
}

// Generate handles POST /api/feedback/generate.
func (h *Handler) Generate(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var raw RawResult
	if err := c.ShouldBindJSON(&raw); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	if _, err := h.videos.GetForUser(ctx, raw.VideoID, userID); err != nil {
		if errors.Is(err, videos.ErrVideoNotFound) {
			response.NotFound(c, "video not found")
			return
		}
		response.Internal(c, "failed to load video")
		return
	}

	rep, err := h.generator.Generate(ctx, raw)
	if err != nil {
		h.logger.Warn("feedback generation failed", zap.Error(err), zap.Int64("video_id", raw.VideoID))
		response.BadGateway(c, "feedback generation failed")
		return
	}

	rec, err := NewRecord(userID, h.model, rep)
	if err == nil {
		err = h.store.Save(ctx, rec)
	}
	if err != nil {
		h.logger.Error("save feedback failed", zap.Error(err), zap.Int64("video_id", raw.VideoID))
		response.Internal(c, "failed to save feedback")
		return
	}
	h.logger.Info("feedback generated",
		zap.Int64("video_id", raw.VideoID),
		zap.String("grade", rep.Grade),
	)
	response.OK(c, rep)
}
