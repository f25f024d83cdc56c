package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type accountBackend struct {
	*httptest.Server
	mu       sync.Mutex
	user     map[string]any
	password string
	verified []string
}

func newAccountBackend(t *testing.T) *accountBackend {
	t.Helper()
	b := &accountBackend{
		user:     map[string]any{"id": "u-1", "username": "taro", "email": "taro@example.com", "role": "user", "is_verified": false},
		password: "secret",
	}
	ok := func(w http.ResponseWriter, data any) {
		_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "data": data})
	}
	fail := func(w http.ResponseWriter, status int, msg string) {
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"success": false, "error": msg})
	}
	authed := func(r *http.Request) bool {
		c, err := r.Cookie("token")
		return err == nil && c.Value == "jwt"
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		if body["password"] != b.password {
			fail(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "jwt", Path: "/"})
		ok(w, map[string]any{"user": b.user})
	})
	mux.HandleFunc("GET /api/auth/check-auth", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		ok(w, map[string]any{"user": b.user})
	})
	mux.HandleFunc("PUT /api/auth/update-profile", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		if body["email"] != b.user["email"] {
			b.user["is_verified"] = false
		}
		b.user["username"], b.user["email"] = body["username"], body["email"]
		http.SetCookie(w, &http.Cookie{Name: "token", Value: "jwt", Path: "/"})
		ok(w, map[string]any{"user": b.user})
	})
	mux.HandleFunc("POST /api/auth/change-password", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		b.mu.Lock()
		defer b.mu.Unlock()
		if body["currentPassword"] != b.password {
			fail(w, http.StatusBadRequest, "current password is incorrect")
			return
		}
		b.password = body["newPassword"]
		ok(w, map[string]string{"message": "password changed"})
	})
	mux.HandleFunc("POST /api/auth/reset-token", func(w http.ResponseWriter, r *http.Request) {
		if !authed(r) {
			fail(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ok(w, map[string]string{"message": "verification email sent"})
	})
	mux.HandleFunc("GET /api/auth/verify/{token}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("token") != "tok-1" {
			fail(w, http.StatusBadRequest, "token invalid or expired")
			return
		}
		b.mu.Lock()
		defer b.mu.Unlock()
		b.verified = append(b.verified, r.PathValue("token"))
		b.user["is_verified"] = true
		ok(w, map[string]string{"message": "email verified"})
	})
	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func loginAs(t *testing.T, b *accountBackend) {
	t.Helper()
	_, err := runCLI(t, "", "--api", b.URL, "login", "--email", "taro@example.com", "--password", "secret")
	require.NoError(t, err)
}

func TestProfileKeepsUnsetFields(t *testing.T) {
	setupCLI(t)
	b := newAccountBackend(t)
	loginAs(t, b)

	out, err := runCLI(t, "", "--api", b.URL, "profile", "--username", "たろう")
	require.NoError(t, err)
	assert.Contains(t, out, "たろう <taro@example.com>")

	out, err = runCLI(t, "", "--api", b.URL, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "たろう")
	assert.Contains(t, out, "未確認")
}

func TestProfileRequiresLogin(t *testing.T) {
	setupCLI(t)
	b := newAccountBackend(t)
	_, err := runCLI(t, "", "--api", b.URL, "profile", "--username", "x")
	assert.ErrorIs(t, err, errNotLoggedIn)
}

func TestPasswordChange(t *testing.T) {
	setupCLI(t)
	b := newAccountBackend(t)
	loginAs(t, b)

	_, err := runCLI(t, "", "--api", b.URL, "password", "change", "--current", "wrong", "--new", "newsecret")
	require.Error(t, err)

	out, err := runCLI(t, "secret\nnewsecret\n", "--api", b.URL, "password", "change")
	require.NoError(t, err)
	assert.Contains(t, out, "パスワードを変更しました")
	b.mu.Lock()
	assert.Equal(t, "newsecret", b.password)
	b.mu.Unlock()
}

func TestVerifyAndResend(t *testing.T) {
	setupCLI(t)
	b := newAccountBackend(t)
	loginAs(t, b)

	out, err := runCLI(t, "", "--api", b.URL, "verify", "--resend")
	require.NoError(t, err)
	assert.Contains(t, out, "taro@example.com に確認メールを送信しました")

	_, err = runCLI(t, "", "--api", b.URL, "verify")
	require.Error(t, err)
	_, err = runCLI(t, "", "--api", b.URL, "verify", "bad")
	require.Error(t, err)

	out, err = runCLI(t, "", "--api", b.URL, "verify", "tok-1")
	require.NoError(t, err)
	assert.Contains(t, out, "メールアドレスを確認しました")

	out, err = runCLI(t, "", "--api", b.URL, "verify", "--resend")
	require.NoError(t, err)
	assert.Contains(t, out, "確認済みです")
}
