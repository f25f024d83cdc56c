package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/apperr"
)

func TestDoDecodesEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/video/ai-upload-complete", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_, _ = w.Write([]byte(`{"success":true,"data":{"video_id":42}}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	var out struct {
		VideoID int64 `json:"video_id"`
	}
	require.NoError(t, client.Post(context.Background(), "confirm", "/api/video/ai-upload-complete", map[string]string{"filename": "a.webm"}, &out))
	assert.Equal(t, int64(42), out.VideoID)
}

func TestDoDecodesBareArrayAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/interview/random-test", r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		_, _ = w.Write([]byte(`[{"id":1,"data":"q"}]`))
	}))
	defer server.Close()

	client, err := New(server.URL + "/")
	require.NoError(t, err)
	var out []struct {
		ID   int64  `json:"id"`
		Data string `json:"data"`
	}
	require.NoError(t, client.Get(context.Background(), "questions", "/api/interview/random-test?limit=5", &out))
	require.Len(t, out, 1)
	assert.Equal(t, "q", out[0].Data)
}

func TestDoMapsUnauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"success":false,"error":"invalid or expired token"}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	err = client.Get(context.Background(), "check", "/api/auth/check-auth", &struct{}{})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}

func TestDoMapsServerErrorMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"success":false,"error":{"message":"face service unavailable"}}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	err = client.Post(context.Background(), "facial", "/api/video/analyze-face", map[string]int{"video_id": 1}, &struct{}{})
	var e *apperr.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, apperr.KindServer, e.Kind)
	assert.Equal(t, "face service unavailable", e.Message)
	assert.True(t, e.Transient)
}

func TestMalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success":true,"data":"not-an-object"}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	var out struct {
		ID int `json:"id"`
	}
	err = client.Get(context.Background(), "x", "/x", &out)
	assert.True(t, apperr.IsKind(err, apperr.KindServer))
	assert.False(t, apperr.Retryable(err))
}

func TestCookiesRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/login" {
			http.SetCookie(w, &http.Cookie{Name: "token", Value: "abc", Path: "/"})
			_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
			return
		}
		ck, err := r.Cookie("token")
		if err != nil || ck.Value != "abc" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{}}`))
	}))
	defer server.Close()

	client, err := New(server.URL)
	require.NoError(t, err)
	require.NoError(t, client.Post(context.Background(), "login", "/login", map[string]string{}, &struct{}{}))
	saved := client.Cookies()
	require.Len(t, saved, 1)

	other, err := New(server.URL)
	require.NoError(t, err)
	other.SetCookies(saved)
	require.NoError(t, other.Get(context.Background(), "check", "/check", &struct{}{}))

	other.ClearCookies()
	err = other.Get(context.Background(), "check", "/check", &struct{}{})
	assert.True(t, apperr.IsKind(err, apperr.KindAuthentication))
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:5000")
	assert.Error(t, err)
}
