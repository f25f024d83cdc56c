package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/pkg/queue"
)

type memTokens struct {
	mu     sync.Mutex
	n      int
	tokens map[string]uuid.UUID
	ttls   map[Purpose]time.Duration
}

func newMemTokens() *memTokens {
	return &memTokens{tokens: map[string]uuid.UUID{}, ttls: map[Purpose]time.Duration{}}
}

func (m *memTokens) Issue(_ context.Context, p Purpose, userID uuid.UUID, ttl time.Duration) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.n++
	token := fmt.Sprintf("tok-%d", m.n)
	m.tokens[tokenKey(p, token)] = userID
	m.ttls[p] = ttl
	return token, nil
}

func (m *memTokens) Consume(_ context.Context, p Purpose, token string) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.tokens[tokenKey(p, token)]
	if !ok {
		return uuid.Nil, ErrTokenInvalid
	}
	delete(m.tokens, tokenKey(p, token))
	return id, nil
}

type memMail struct {
	mu   sync.Mutex
	sent []queue.EmailPayload
}

func (m *memMail) EnqueueEmail(_ context.Context, p queue.EmailPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, p)
	return nil
}

func (m *memMail) last(t *testing.T) queue.EmailPayload {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent)
	return m.sent[len(m.sent)-1]
}

func (m *memMail) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type accountFixture struct {
	r      http.Handler
	tokens *memTokens
	mail   *memMail
}

func newAccountFixture() accountFixture {
	tokens, mail := newMemTokens(), &memMail{}
	h := NewHandler(newMemStore(), NewJWTService("test-secret", 1), CookieConfig{}, nil).WithRecovery(Recovery{
		Tokens:    tokens,
		Mail:      mail,
		AppURL:    "http://app.test/",
		VerifyTTL: 24 * time.Hour,
		ResetTTL:  time.Hour,
	})
	r, _ := newRouterWith(h)
	return accountFixture{r: r, tokens: tokens, mail: mail}
}

func (f accountFixture) register(t *testing.T, username, email string) *http.Cookie {
	t.Helper()
	w := postJSON(f.r, "/api/auth/register", RegisterRequest{Username: username, Email: email, Password: "secret1"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return sessionCookie(t, w)
}

func (f accountFixture) me(t *testing.T, cookie *http.Cookie) UserResponse {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/auth/check-auth", nil)
	req.AddCookie(cookie)
	w := httptest.NewRecorder()
	f.r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var body struct {
		Data UserResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Data
}

func tokenFrom(t *testing.T, link, prefix string) string {
	t.Helper()
	i := strings.Index(link, prefix)
	require.GreaterOrEqual(t, i, 0, link)
	return strings.Fields(link[i+len(prefix):])[0]
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRegisterMailsVerificationLink(t *testing.T) {
	f := newAccountFixture()
	cookie := f.register(t, "taro", "taro@example.com")
	assert.False(t, f.me(t, cookie).User.Verified)

	mail := f.mail.last(t)
	assert.Equal(t, queue.EmailVerify, mail.EmailType)
	assert.Equal(t, "taro@example.com", mail.RecipientEmail)
	assert.Contains(t, mail.Body, "http://app.test/verify/")
	assert.Contains(t, mail.Body, "24時間")
	token := tokenFrom(t, mail.Body, "http://app.test/verify/")

	// A verification token is not a reset token.
	w := postJSON(f.r, "/api/auth/reset-password/"+token, ResetPasswordRequest{Password: "longenough"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	require.Equal(t, http.StatusOK, get(f.r, "/api/auth/verify/"+token).Code)
	assert.True(t, f.me(t, cookie).User.Verified)
	assert.Equal(t, http.StatusBadRequest, get(f.r, "/api/auth/verify/"+token).Code)

	assert.Equal(t, http.StatusConflict, postJSON(f.r, "/api/auth/reset-token", nil, cookie).Code)
}

func TestResendVerification(t *testing.T) {
	f := newAccountFixture()
	cookie := f.register(t, "taro", "taro@example.com")
	require.Equal(t, 1, f.mail.count())

	w := postJSON(f.r, "/api/auth/reset-token", map[string]bool{"isVerified": false}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 2, f.mail.count())
	assert.Equal(t, queue.EmailVerify, f.mail.last(t).EmailType)

	assert.Equal(t, http.StatusUnauthorized, postJSON(f.r, "/api/auth/reset-token", nil).Code)
}

func TestUpdateProfile(t *testing.T) {
	f := newAccountFixture()
	f.register(t, "hanako", "hanako@example.com")
	cookie := f.register(t, "taro", "taro@example.com")
	token := tokenFrom(t, f.mail.last(t).Body, "http://app.test/verify/")
	require.Equal(t, http.StatusOK, get(f.r, "/api/auth/verify/"+token).Code)

	w := sendJSON(f.r, http.MethodPut, "/api/auth/update-profile", UpdateProfileRequest{Username: "taro", Email: "Hanako@example.com"}, cookie)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = sendJSON(f.r, http.MethodPut, "/api/auth/update-profile", UpdateProfileRequest{Username: "  ", Email: "taro@example.com"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Same email: stays verified, no mail.
	sent := f.mail.count()
	w = sendJSON(f.r, http.MethodPut, "/api/auth/update-profile", UpdateProfileRequest{Username: "たろう", Email: "taro@example.com"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookie = sessionCookie(t, w)
	me := f.me(t, cookie).User
	assert.Equal(t, "たろう", me.Username)
	assert.True(t, me.Verified)
	assert.Equal(t, sent, f.mail.count())

	w = sendJSON(f.r, http.MethodPut, "/api/auth/update-profile", UpdateProfileRequest{Username: "たろう", Email: "Taro2@example.com"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	me = f.me(t, sessionCookie(t, w)).User
	assert.Equal(t, "taro2@example.com", me.Email)
	assert.False(t, me.Verified)
	assert.Equal(t, "taro2@example.com", f.mail.last(t).RecipientEmail)
}

func TestChangePassword(t *testing.T) {
	f := newAccountFixture()
	cookie := f.register(t, "taro", "taro@example.com")

	w := postJSON(f.r, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "newsecret"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = postJSON(f.r, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "short"}, cookie)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = postJSON(f.r, "/api/auth/change-password", ChangePasswordRequest{CurrentPassword: "secret1", NewPassword: "newsecret"}, cookie)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, postJSON(f.r, "/api/auth/login", LoginRequest{Email: "taro@example.com", Password: "secret1"}).Code)
	assert.Equal(t, http.StatusOK, postJSON(f.r, "/api/auth/login", LoginRequest{Email: "taro@example.com", Password: "newsecret"}).Code)
}

func TestForgotAndResetPassword(t *testing.T) {
	f := newAccountFixture()
	f.register(t, "taro", "taro@example.com")
	sent := f.mail.count()

	w := postJSON(f.r, "/api/auth/forgot-password", ForgotPasswordRequest{Email: "nobody@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, sent, f.mail.count())

	w = postJSON(f.r, "/api/auth/forgot-password", ForgotPasswordRequest{Email: "TARO@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	mail := f.mail.last(t)
	assert.Equal(t, queue.EmailPasswordReset, mail.EmailType)
	assert.Contains(t, mail.Body, "1時間")
	assert.Equal(t, time.Hour, f.tokens.ttls[PurposeReset])
	token := tokenFrom(t, mail.Body, "http://app.test/reset-password/")

	w = postJSON(f.r, "/api/auth/reset-password/"+token, ResetPasswordRequest{Password: "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = postJSON(f.r, "/api/auth/reset-password/"+token, ResetPasswordRequest{Password: "brandnew1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, http.StatusOK, postJSON(f.r, "/api/auth/login", LoginRequest{Email: "taro@example.com", Password: "brandnew1"}).Code)

	w = postJSON(f.r, "/api/auth/reset-password/"+token, ResetPasswordRequest{Password: "another12"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTTLLabel(t *testing.T) {
	assert.Equal(t, "24時間", ttlLabel(24*time.Hour))
	assert.Equal(t, "30分", ttlLabel(30*time.Minute))
}
