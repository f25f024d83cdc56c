package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/queue"
	"github.com/mimic-ai/interview/pkg/response"
)

// Tokens issues and redeems single-use account tokens. *TokenStore implements it.
type Tokens interface {
	Issue(ctx context.Context, p Purpose, userID uuid.UUID, ttl time.Duration) (string, error)
	Consume(ctx context.Context, p Purpose, token string) (uuid.UUID, error)
}

// MailQueue hands emails to the worker. *queue.Queue implements it.
type MailQueue interface {
	EnqueueEmail(ctx context.Context, payload queue.EmailPayload) error
}

// Recovery enables email verification and password reset.
type Recovery struct {
	Tokens    Tokens
	Mail      MailQueue
	AppURL    string // links in emails point here
	VerifyTTL time.Duration
	ResetTTL  time.Duration
}

// WithRecovery turns on the email based endpoints.
func (h *Handler) WithRecovery(r Recovery) *Handler {
	r.AppURL = strings.TrimRight(r.AppURL, "/")
	h.recovery = &r
	return h
}

// UpdateProfileRequest is the body for PUT /api/auth/update-profile.
type UpdateProfileRequest struct {
	Username string `json:"username" binding:"required,max=64"`
	Email    string `json:"email" binding:"required,email"`
}

// ChangePasswordRequest is the body for POST /api/auth/change-password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=6"`
}

// ForgotPasswordRequest is the body for POST /api/auth/forgot-password.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest is the body for POST /api/auth/reset-password/:token.
type ResetPasswordRequest struct {
	Password string `json:"password" binding:"required,min=8"`
}

// MessageResponse carries a confirmation for endpoints without a resource.
type MessageResponse struct {
	Message string `json:"message"`
}

// UpdateProfile handles PUT /api/auth/update-profile (JWT required). The session cookie is
// reissued so the token carries the new name and email.
func (h *Handler) UpdateProfile(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" {
		response.BadRequest(c, "username is required")
		return
	}

	updated, err := h.repo.UpdateProfile(c.Request.Context(), user.ID, username, req.Email)
	if errors.Is(err, ErrEmailTaken) {
		response.Conflict(c, "email already registered")
		return
	}
	if err != nil {
		h.logger.Error("update profile", zap.Error(err), zap.String("user_id", user.ID.String()))
		response.Internal(c, "failed to update profile")
		return
	}
	if !h.issue(c, updated) {
		return
	}
	if !strings.EqualFold(user.Email, updated.Email) {
		h.sendVerification(c.Request.Context(), updated)
	}
	response.OK(c, UserResponse{User: updated.ToPublic()})
}

// ChangePassword handles POST /api/auth/change-password (JWT required).
func (h *Handler) ChangePassword(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	// 400 rather than 401: the session itself is still valid.
	if !CheckPassword(req.CurrentPassword, user.Password) {
		response.BadRequest(c, "current password is incorrect")
		return
	}
	if !h.setPassword(c, user.ID, req.NewPassword) {
		return
	}
	response.OK(c, MessageResponse{Message: "password changed"})
}

// ForgotPassword handles POST /api/auth/forgot-password. The answer is the same whether or
// not the email is registered.
func (h *Handler) ForgotPassword(c *gin.Context) {
	if !h.recoveryEnabled(c) {
		return
	}
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	ctx := c.Request.Context()
	user, err := h.repo.GetByEmail(ctx, req.Email)
	switch {
	case errors.Is(err, ErrUserNotFound):
		h.logger.Info("password reset for unknown email")
	case err != nil:
		h.logger.Error("load user", zap.Error(err))
		response.Internal(c, "failed to start password reset")
		return
	default:
		token, err := h.recovery.Tokens.Issue(ctx, PurposeReset, user.ID, h.recovery.ResetTTL)
		if err != nil {
			h.logger.Error("issue reset token", zap.Error(err))
			response.Internal(c, "failed to start password reset")
			return
		}
		link := h.recovery.AppURL + "/reset-password/" + token
		h.mail(ctx, queue.EmailPayload{
			EmailType:      queue.EmailPasswordReset,
			RecipientEmail: user.Email,
			Subject:        "【Mimic】パスワード再設定のご案内",
			Body: fmt.Sprintf("%s 様\n\n以下のリンクからパスワードを再設定してください。\n%s\n\nこのリンクの有効期限は%s です。\n",
				user.Username, link, ttlLabel(h.recovery.ResetTTL)),
		})
	}
	response.OK(c, MessageResponse{Message: "if the email is registered, a reset link has been sent"})
}

// ResetPassword handles POST /api/auth/reset-password/:token.
func (h *Handler) ResetPassword(c *gin.Context) {
	if !h.recoveryEnabled(c) {
		return
	}
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID, ok := h.redeem(c, PurposeReset)
	if !ok {
		return
	}
	if !h.setPassword(c, userID, req.Password) {
		return
	}
	response.OK(c, MessageResponse{Message: "password reset"})
}

// ResendVerification handles POST /api/auth/reset-token (JWT required) by mailing a new
// verification link.
func (h *Handler) ResendVerification(c *gin.Context) {
	if !h.recoveryEnabled(c) {
		return
	}
	user, ok := h.currentUser(c)
	if !ok {
		return
	}
	if user.Verified {
		response.Conflict(c, "email already verified")
		return
	}
	if !h.sendVerification(c.Request.Context(), user) {
		response.Internal(c, "failed to send verification email")
		return
	}
	response.OK(c, MessageResponse{Message: "verification email sent"})
}

// Verify handles GET /api/auth/verify/:token.
func (h *Handler) Verify(c *gin.Context) {
	if !h.recoveryEnabled(c) {
		return
	}
	userID, ok := h.redeem(c, PurposeVerify)
	if !ok {
		return
	}
	err := h.repo.MarkVerified(c.Request.Context(), userID)
	if errors.Is(err, ErrUserNotFound) {
		response.BadRequest(c, ErrTokenInvalid.Error())
		return
	}
	if err != nil {
		h.logger.Error("mark verified", zap.Error(err))
		response.Internal(c, "failed to verify email")
		return
	}
	response.OK(c, MessageResponse{Message: "email verified"})
}

func (h *Handler) currentUser(c *gin.Context) (*models.User, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Unauthorized(c, "missing user context")
		return nil, false
	}
	user, err := h.repo.GetByID(c.Request.Context(), id)
	if errors.Is(err, ErrUserNotFound) {
		response.Unauthorized(c, "user no longer exists")
		return nil, false
	}
	if err != nil {
		response.Internal(c, "failed to load user")
		return nil, false
	}
	return user, true
}

func (h *Handler) setPassword(c *gin.Context, id uuid.UUID, password string) bool {
	hash, err := HashPassword(password)
	if err != nil {
		response.Internal(c, "failed to hash password")
		return false
	}
	err = h.repo.UpdatePassword(c.Request.Context(), id, hash)
	if errors.Is(err, ErrUserNotFound) {
		response.BadRequest(c, ErrTokenInvalid.Error())
		return false
	}
	if err != nil {
		h.logger.Error("update password", zap.Error(err), zap.String("user_id", id.String()))
		response.Internal(c, "failed to update password")
		return false
	}
	return true
}

func (h *Handler) redeem(c *gin.Context, p Purpose) (uuid.UUID, bool) {
	userID, err := h.recovery.Tokens.Consume(c.Request.Context(), p, c.Param("token"))
	if errors.Is(err, ErrTokenInvalid) {
		response.BadRequest(c, ErrTokenInvalid.Error())
		return uuid.Nil, false
	}
	if err != nil {
		h.logger.Error("redeem token", zap.Error(err), zap.String("purpose", string(p)))
		response.Internal(c, "failed to check token")
		return uuid.Nil, false
	}
	return userID, true
}

func (h *Handler) recoveryEnabled(c *gin.Context) bool {
	if h.recovery == nil {
		response.ServiceUnavailable(c, "email features are not configured")
		return false
	}
	return true
}

// sendVerification mails a verification link. Failures are logged; the caller decides
// whether they matter.
func (h *Handler) sendVerification(ctx context.Context, user *models.User) bool {
	if h.recovery == nil {
		return false
	}
	token, err := h.recovery.Tokens.Issue(ctx, PurposeVerify, user.ID, h.recovery.VerifyTTL)
	if err != nil {
		h.logger.Error("issue verify token", zap.Error(err), zap.String("user_id", user.ID.String()))
		return false
	}
	link := h.recovery.AppURL + "/verify/" + token
	return h.mail(ctx, queue.EmailPayload{
		EmailType:      queue.EmailVerify,
		RecipientEmail: user.Email,
		Subject:        "【Mimic】メールアドレスの確認",
		Body: fmt.Sprintf("%s 様\n\n以下のリンクからメールアドレスを確認してください。\n%s\n\nこのリンクの有効期限は%s です。\n",
			user.Username, link, ttlLabel(h.recovery.VerifyTTL)),
	})
}

func (h *Handler) mail(ctx context.Context, p queue.EmailPayload) bool {
	if err := h.recovery.Mail.EnqueueEmail(ctx, p); err != nil {
		h.logger.Error("enqueue email", zap.Error(err), zap.String("email_type", p.EmailType))
		return false
	}
	return true
}

func ttlLabel(d time.Duration) string {
	if d >= time.Hour && d%time.Hour == 0 {
		return fmt.Sprintf("%d時間", int(d/time.Hour))
	}
	return fmt.Sprintf("%d分", int(d/time.Minute))
}
