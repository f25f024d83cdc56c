package questions

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/response"
)

const defaultCategory = "general"

// Store is what the handler needs from persistence.
type Store interface {
	Random(ctx context.Context, limit int) ([]models.Question, error)
	Create(ctx context.Context, q *models.Question) error
}

// CreateRequest is the body for POST /api/interview/questions.
type CreateRequest struct {
	Data     string `json:"data" binding:"required"`
	Category string `json:"category"`
}

// Handler serves interview questions.
type Handler struct {
	repo         Store
	defaultBatch int
	maxBatch     int
	logger       *zap.Logger
}

// NewHandler creates a questions handler. Batch sizes below 1 fall back to 3 and 20.
func NewHandler(repo Store, defaultBatch, maxBatch int, logger *zap.Logger) *Handler {
	if defaultBatch < 1 {
		defaultBatch = 3
	}
	if maxBatch < defaultBatch {
		maxBatch = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, defaultBatch: defaultBatch, maxBatch: maxBatch, logger: logger}
}

// Random handles GET /api/interview/random-test?limit=n.
func (h *Handler) Random(c *gin.Context) {
	limit := h.defaultBatch
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			response.BadRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, h.maxBatch)
	}
	list, err := h.repo.Random(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("random questions", zap.Error(err))
		response.Internal(c, "failed to load questions")
		return
	}
	if list == nil {
		list = []models.Question{}
	}
	response.OK(c, list)
}

// Create handles POST /api/interview/questions (admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	q := &models.Question{Data: strings.TrimSpace(req.Data), Category: strings.TrimSpace(req.Category)}
	if q.Data == "" {
		response.BadRequest(c, "data is required")
		return
	}
	if q.Category == "" {
		q.Category = defaultCategory
	}
	if err := h.repo.Create(c.Request.Context(), q); err != nil {
		h.logger.Error("create question", zap.Error(err))
		response.Internal(c, "failed to create question")
		return
	}
	response.Created(c, q)
}
