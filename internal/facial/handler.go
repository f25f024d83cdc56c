package facial

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

// VideoStore looks up and updates the analyzed video.
type VideoStore interface {
	GetForUser(ctx context.Context, id int64, userID uuid.UUID) (*models.Video, error)
	SetStatus(ctx context.Context, id int64, status string) error
}

// Presigner issues a temporary GET URL for the stored object.
type Presigner interface {
	PresignDownload(ctx context.Context, key string) (string, error)
}

// Analyzer scores a video reachable at videoURL.
type Analyzer interface {
	Analyze(ctx context.Context, videoID int64, videoURL string) (Result, error)
}

// Store persists results.
type Store interface {
	Save(ctx context.Context, a *models.FacialAnalysis) error
}

// AnalyzeRequest is the body for POST /api/video/analyze-face.
type AnalyzeRequest struct {
	VideoID int64 `json:"video_id" binding:"required,gt=0"`
}

// Handler runs face analysis for uploaded videos.
type Handler struct {
	videos   VideoStore
	s3       Presigner
	analyzer Analyzer
	store    Store
	logger   *zap.Logger
}

// NewHandler creates a facial analysis handler.
func NewHandler(videos VideoStore, s3 Presigner, analyzer Analyzer, store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{videos: videos, s3: s3, analyzer: analyzer, store: store, logger: logger}
}

// Analyze handles POST /api/video/analyze-face.
func (h *Handler) Analyze(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	v, err := h.videos.GetForUser(ctx, req.VideoID, userID)
	if errors.Is(err, videos.ErrVideoNotFound) {
		response.NotFound(c, "video not found")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load video")
		return
	}

	url, err := h.s3.PresignDownload(ctx, v.S3Key)
	if err != nil {
		h.logger.Error("presign download failed", zap.Error(err), zap.Int64("video_id", v.ID))
		response.Internal(c, "failed to create download url")
		return
	}
	res, err := h.analyzer.Analyze(ctx, v.ID, url)
	if err != nil {
		h.logger.Warn("face analysis failed", zap.Error(err), zap.Int64("video_id", v.ID))
		response.BadGateway(c, "face analysis failed")
		return
	}

	rec := &models.FacialAnalysis{
		VideoID:      v.ID,
		GazeScore:    res.GazeScore,
		EmotionScore: res.EmotionScore,
		Summary:      res.Summary,
	}
	if err := h.store.Save(ctx, rec); err != nil {
		h.logger.Error("save face analysis failed", zap.Error(err), zap.Int64("video_id", v.ID))
		response.Internal(c, "failed to save analysis")
		return
	}
	if err := h.videos.SetStatus(ctx, v.ID, models.VideoStatusAnalyzed); err != nil {
		h.logger.Warn("mark video analyzed failed", zap.Error(err), zap.Int64("video_id", v.ID))
	}
	response.OK(c, res)
}
