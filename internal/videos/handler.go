package videos

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/response"
	"github.com/mimic-ai/interview/pkg/storage"
)

// ObjectStore is the part of the S3 client uploads need.
type ObjectStore interface {
	PresignUpload(ctx context.Context, key, contentType string) (string, time.Duration, error)
	Head(ctx context.Context, key string) (storage.ObjectInfo, error)
}

// Store is the part of the repository uploads need.
type Store interface {
	Create(ctx context.Context, v *models.Video) error
}

// TicketRequest is the body for POST /api/interview/ai-upload.
type TicketRequest struct {
	Filename    string `json:"filename" binding:"required"`
	ContentType string `json:"contentType" binding:"required"`
}

// TicketResponse carries a presigned PUT URL.
type TicketResponse struct {
	SignedURL   string `json:"signed_url"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// CompleteRequest is the body for POST /api/video/ai-upload-complete.
type CompleteRequest struct {
	Filename   string `json:"filename" binding:"required"`
	QuestionID int64  `json:"question_id"`
}

// CompleteResponse identifies the stored video.
type CompleteResponse struct {
	VideoID    int64  `json:"video_id"`
	Filename   string `json:"filename"`
	QuestionID int64  `json:"question_id,omitempty"`
}

// Handler handles answer video uploads.
type Handler struct {
	repo   Store
	s3     ObjectStore
	logger *zap.Logger
}

// NewHandler creates a videos handler.
func NewHandler(repo Store, s3 ObjectStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, s3: s3, logger: logger}
}

// Ticket handles POST /api/interview/ai-upload. Returns a presigned PUT URL
// bound to the requested content type.
func (h *Handler) Ticket(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidVideoFilename(req.Filename) {
		response.BadRequest(c, "invalid filename")
		return
	}
	if !storage.AllowedVideoType(req.ContentType) {
		response.BadRequest(c, "content type must be video/webm")
		return
	}

	key := storage.VideoKey(userID.String(), req.Filename)
	url, expires, err := h.s3.PresignUpload(c.Request.Context(), key, req.ContentType)
	if err != nil {
		h.logger.Error("presign upload failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to create upload url")
		return
	}
	response.OK(c, TicketResponse{
		SignedURL:   url,
		ContentType: req.ContentType,
		ExpiresIn:   int(expires.Seconds()),
	})
}

// Complete handles POST /api/video/ai-upload-complete. The object must already
// be in storage; the video row is created (or refreshed) and its id returned.
func (h *Handler) Complete(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	var req CompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	if !storage.ValidVideoFilename(req.Filename) {
		response.BadRequest(c, "invalid filename")
		return
	}

	ctx := c.Request.Context()
	key := storage.VideoKey(userID.String(), req.Filename)
	info, err := h.s3.Head(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		response.NotFound(c, "uploaded file not found")
		return
	}
	if err != nil {
		h.logger.Error("head object failed", zap.Error(err), zap.String("key", key))
		response.BadGateway(c, "failed to check storage")
		return
	}
	if info.Size > storage.MaxVideoSize {
		response.Fail(c, http.StatusRequestEntityTooLarge, "video exceeds "+humanize.IBytes(uint64(storage.MaxVideoSize)))
		return
	}

	contentType := info.ContentType
	if contentType == "" {
		contentType = "video/webm"
	}
	v := &models.Video{
		UserID:      userID,
		Filename:    req.Filename,
		S3Key:       key,
		ContentType: contentType,
		SizeBytes:   info.Size,
		Status:      models.VideoStatusUploaded,
	}
	if req.QuestionID > 0 {
		qid := req.QuestionID
		v.QuestionID = &qid
	}
	if err := h.repo.Create(ctx, v); err != nil {
		if errors.Is(err, ErrUnknownQuestion) {
			response.BadRequest(c, "unknown question_id")
			return
		}
		h.logger.Error("create video failed", zap.Error(err), zap.String("key", key))
		response.Internal(c, "failed to record video")
		return
	}
	h.logger.Info("video uploaded",
		zap.Int64("video_id", v.ID),
		zap.String("user_id", userID.String()),
		zap.String("size", humanize.Bytes(uint64(info.Size))),
	)
	response.OK(c, CompleteResponse{VideoID: v.ID, Filename: v.Filename, QuestionID: req.QuestionID})
}
