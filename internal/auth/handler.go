package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/response"
)

// UserStore is the persistence the handler needs. *Repository implements it.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Create(ctx context.Context, username, email, passwordHash string, role models.Role) (*models.User, error)
	UpdateProfile(ctx context.Context, id uuid.UUID, username, email string) (*models.User, error)
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	MarkVerified(ctx context.Context, id uuid.UUID) error
}

// RegisterRequest is the body for POST /api/auth/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// LoginRequest is the body for POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// UserResponse wraps the public user.
type UserResponse struct {
	User models.UserPublic `json:"user"`
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Secure bool
	Domain string
}

// Handler handles auth HTTP endpoints.
type Handler struct {
	repo   UserStore
	jwt    *JWTService
	cookie CookieConfig
	logger *zap.Logger

	recovery *Recovery
}

// NewHandler creates an auth handler.
func NewHandler(repo UserStore, jwt *JWTService, cookie CookieConfig, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{repo: repo, jwt: jwt, cookie: cookie, logger: logger}
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return
	}
	user, err := h.repo.Create(c.Request.Context(), req.Username, req.Email, hash, models.RoleUser)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("create user", zap.Error(err))
		response.Internal(c, "failed to create user")
		return
	}
	if !h.issue(c, user) {
		return
	}
	h.sendVerification(c.Request.Context(), user)
	response.Created(c, UserResponse{User: user.ToPublic()})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}

	user, err := h.repo.GetByEmail(c.Request.Context(), req.Email)
	if err != nil || !CheckPassword(req.Password, user.Password) {
		if err != nil && !errors.Is(err, ErrUserNotFound) {
			h.logger.Error("load user", zap.Error(err))
		}
		response.Unauthorized(c, "invalid email or password")
		return
	}
	if !h.issue(c, user) {
		return
	}
	response.OK(c, UserResponse{User: user.ToPublic()})
}

// Logout handles POST /api/auth/logout by expiring the session cookie.
func (h *Handler) Logout(c *gin.Context) {
	h.setCookie(c, "", -1)
	response.OK(c, gin.H{})
}

// CheckAuth handles GET /api/auth/check-auth (JWT required).
func (h *Handler) CheckAuth(c *gin.Context) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return
	}
	user, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrUserNotFound) {
		response.Unauthorized(c, "user no longer exists")
		return
	}
	if err != nil {
		response.Internal(c, "failed to load user")
		return
	}
	response.OK(c, UserResponse{User: user.ToPublic()})
}

func (h *Handler) issue(c *gin.Context, user *models.User) bool {
	token, err := h.jwt.Generate(user.ID, user.Username, user.Email, string(user.Role))
	if err != nil {
		response.Internal(c, "failed to generate token")
		return false
	}
	h.setCookie(c, token, int(h.jwt.TTL().Seconds()))
	return true
}

func (h *Handler) setCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, value, maxAge, "/", h.cookie.Domain, h.cookie.Secure, true)
}
