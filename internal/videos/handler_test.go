package videos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/pkg/storage"
)

type fakeS3 struct {
	objects     map[string]storage.ObjectInfo
	presignKey  string
	presignType string
}

func (f *fakeS3) PresignUpload(_ context.Context, key, contentType string) (string, time.Duration, error) {
	f.presignKey, f.presignType = key, contentType
	return "https://s3.test/" + key + "?sig=1", 15 * time.Minute, nil
}

func (f *fakeS3) Head(_ context.Context, key string) (storage.ObjectInfo, error) {
	info, ok := f.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrNotFound
	}
	return info, nil
}

type fakeRepo struct {
	byName map[string]*models.Video
	nextID int64
}

func (f *fakeRepo) Create(_ context.Context, v *models.Video) error {
	if existing, ok := f.byName[v.Filename]; ok {
		v.ID = existing.ID
		return nil
	}
	f.nextID++
	v.ID = f.nextID
	f.byName[v.Filename] = v
	return nil
}

var testUser = uuid.MustParse("11111111-2222-3333-4444-555555555555")

func router(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, testUser) })
	r.POST("/api/interview/ai-upload", h.Ticket)
	r.POST("/api/video/ai-upload-complete", h.Complete)
	return r
}

func post(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestTicketPresignsUserKey(t *testing.T) {
	s3 := &fakeS3{}
	r := router(NewHandler(&fakeRepo{byName: map[string]*models.Video{}}, s3, nil))

	w := post(r, "/api/interview/ai-upload", `{"filename":"taro_20240101_120000.webm","contentType":"video/webm;codecs=vp9,opus"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "videos/"+testUser.String()+"/taro_20240101_120000.webm", s3.presignKey)
	assert.Equal(t, "video/webm;codecs=vp9,opus", s3.presignType)

	var body struct {
		Data TicketResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "video/webm;codecs=vp9,opus", body.Data.ContentType)
	assert.Equal(t, 900, body.Data.ExpiresIn)
	assert.Contains(t, body.Data.SignedURL, "sig=1")
}

func TestTicketRejectsBadInput(t *testing.T) {
	r := router(NewHandler(&fakeRepo{byName: map[string]*models.Video{}}, &fakeS3{}, nil))
	cases := []string{
		`{"filename":"../etc/passwd.webm","contentType":"video/webm"}`,
		`{"filename":"clip.mp4","contentType":"video/webm"}`,
		`{"filename":"clip.webm","contentType":"video/mp4"}`,
		`{"filename":"clip.webm"}`,
	}
	for _, body := range cases {
		assert.Equal(t, http.StatusBadRequest, post(r, "/api/interview/ai-upload", body).Code, body)
	}
}

func TestCompleteRequiresStoredObject(t *testing.T) {
	s3 := &fakeS3{objects: map[string]storage.ObjectInfo{}}
	repo := &fakeRepo{byName: map[string]*models.Video{}, nextID: 41}
	r := router(NewHandler(repo, s3, nil))

	w := post(r, "/api/video/ai-upload-complete", `{"filename":"a.webm","question_id":7}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	key := storage.VideoKey(testUser.String(), "a.webm")
	s3.objects[key] = storage.ObjectInfo{Key: key, Size: 1024, ContentType: "video/webm"}
	w = post(r, "/api/video/ai-upload-complete", `{"filename":"a.webm","question_id":7}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true,"data":{"video_id":42,"filename":"a.webm","question_id":7}}`, w.Body.String())

	w = post(r, "/api/video/ai-upload-complete", `{"filename":"a.webm","question_id":7}`)
	assert.Contains(t, w.Body.String(), `"video_id":42`)
	assert.Equal(t, int64(7), *repo.byName["a.webm"].QuestionID)
}

func TestCompleteRejectsOversize(t *testing.T) {
	key := storage.VideoKey(testUser.String(), "big.webm")
	s3 := &fakeS3{objects: map[string]storage.ObjectInfo{key: {Key: key, Size: storage.MaxVideoSize + 1}}}
	r := router(NewHandler(&fakeRepo{byName: map[string]*models.Video{}}, s3, nil))
	assert.Equal(t, http.StatusRequestEntityTooLarge, post(r, "/api/video/ai-upload-complete", `{"filename":"big.webm"}`).Code)
}
