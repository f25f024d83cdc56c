// Package session keeps the practice client's login state between runs.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/apperr"
)

const (
	registerPath  = "/api/auth/register"
	loginPath     = "/api/auth/login"
	logoutPath    = "/api/auth/logout"
	checkAuthPath = "/api/auth/check-auth"

	updateProfilePath  = "/api/auth/update-profile"
	changePasswordPath = "/api/auth/change-password"
	forgotPasswordPath = "/api/auth/forgot-password"
	resetPasswordPath  = "/api/auth/reset-password/"
	resendVerifyPath   = "/api/auth/reset-token"
	verifyPath         = "/api/auth/verify/"
)

// GuestName is used when no user is logged in.
const GuestName = "Guest"

// User is the authenticated account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     string `json:"role"`
	Verified bool   `json:"is_verified"`
}

type userEnvelope struct {
	User *User `json:"user"`
}

// Auth performs the auth calls and persists the session cookie.
type Auth struct {
	api   *apiclient.Client
	store *Store
	log   *zap.Logger

	mu   sync.RWMutex
	user *User
}

// NewAuth returns an Auth. store may be nil to keep the session in memory only.
func NewAuth(api *apiclient.Client, store *Store, log *zap.Logger) *Auth {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auth{api: api, store: store, log: log}
}

// Restore loads saved cookies and validates them with the backend. A rejected or
// missing session returns (nil, nil).
func (a *Auth) Restore(ctx context.Context) (*User, error) {
	if a.store != nil {
		cookies, err := a.store.Load()
		if err != nil {
			return nil, err
		}
		if len(cookies) == 0 {
			return nil, nil
		}
		a.api.SetCookies(cookies)
	}
	u, err := a.CheckAuth(ctx)
	if apperr.IsKind(err, apperr.KindAuthentication) {
		a.forget()
		return nil, nil
	}
	return u, err
}

// Register creates an account and logs in.
func (a *Auth) Register(ctx context.Context, username, email, password string) (*User, error) {
	body := map[string]string{"username": username, "email": email, "password": password}
	return a.authenticate(ctx, "register", http.MethodPost, registerPath, body)
}

// Login authenticates with email and password.
func (a *Auth) Login(ctx context.Context, email, password string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	return a.authenticate(ctx, "login", http.MethodPost, loginPath, body)
}

// UpdateProfile changes the display name and email. The backend reissues the session
// cookie, which is saved again.
func (a *Auth) UpdateProfile(ctx context.Context, username, email string) (*User, error) {
	body := map[string]string{"username": username, "email": email}
	return a.authenticate(ctx, "update profile", http.MethodPut, updateProfilePath, body)
}

// ChangePassword replaces the password of the logged-in user.
func (a *Auth) ChangePassword(ctx context.Context, current, next string) error {
	body := map[string]string{"currentPassword": current, "newPassword": next}
	return a.api.Post(ctx, "change password", changePasswordPath, body, nil)
}

// ForgotPassword asks the backend to mail a reset link.
func (a *Auth) ForgotPassword(ctx context.Context, email string) error {
	return a.api.Post(ctx, "forgot password", forgotPasswordPath, map[string]string{"email": email}, nil)
}

// ResetPassword sets a new password with the token from the reset email.
func (a *Auth) ResetPassword(ctx context.Context, token, password string) error {
	return a.api.Post(ctx, "reset password", resetPasswordPath+url.PathEscape(token), map[string]string{"password": password}, nil)
}

// ResendVerification mails a new email verification link.
func (a *Auth) ResendVerification(ctx context.Context) error {
	return a.api.Post(ctx, "resend verification", resendVerifyPath, map[string]bool{"isVerified": false}, nil)
}

// VerifyEmail confirms the email address with the token from the verification email.
func (a *Auth) VerifyEmail(ctx context.Context, token string) error {
	return a.api.Get(ctx, "verify email", verifyPath+url.PathEscape(token), nil)
}

func (a *Auth) authenticate(ctx context.Context, op, method, path string, body any) (*User, error) {
	var env userEnvelope
	if err := a.api.Do(ctx, op, method, path, body, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, apperr.New(apperr.KindServer, op, "ユーザー情報が返されませんでした")
	}
	a.setUser(env.User)
	if err := a.persist(); err != nil {
		a.log.Warn("save session", zap.Error(err))
	}
	a.log.Info(op+" succeeded", zap.String("user_id", env.User.ID))
	return env.User, nil
}

// CheckAuth asks the backend who the session belongs to.
func (a *Auth) CheckAuth(ctx context.Context) (*User, error) {
	var env userEnvelope
	if err := a.api.Get(ctx, "check auth", checkAuthPath, &env); err != nil {
		return nil, err
	}
	if env.User == nil {
		return nil, apperr.Authentication("check auth")
	}
	a.setUser(env.User)
	return env.User, nil
}

// Logout ends the session. Local state is cleared even when the backend call fails.
func (a *Auth) Logout(ctx context.Context) error {
	err := a.api.Post(ctx, "logout", logoutPath, nil, nil)
	a.forget()
	if err != nil && !apperr.IsKind(err, apperr.KindAuthentication) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// User returns the logged-in user, or nil.
func (a *Auth) User() *User {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user
}

// Username names recordings; it falls back to GuestName.
func (a *Auth) Username() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.user == nil || a.user.Username == "" {
		return GuestName
	}
	return a.user.Username
}

func (a *Auth) setUser(u *User) {
	a.mu.Lock()
	a.user = u
	a.mu.Unlock()
}

func (a *Auth) forget() {
	a.setUser(nil)
	a.api.ClearCookies()
	if a.store != nil {
		if err := a.store.Clear(); err != nil && !errors.Is(err, errNoSession) {
			a.log.Warn("clear session", zap.Error(err))
		}
	}
}

func (a *Auth) persist() error {
	if a.store == nil {
		return nil
	}
	return a.store.Save(a.api.Cookies())
}
