package transcriptions

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mimic-ai/interview/internal/middleware"
	"github.com/mimic-ai/interview/internal/models"
	"github.com/mimic-ai/interview/internal/videos"
	"github.com/mimic-ai/interview/pkg/queue"
)

type memStatus struct {
	mu  sync.Mutex
	ops map[string]Status
}

func newMemStatus() *memStatus { return &memStatus{ops: make(map[string]Status)} }

func (m *memStatus) Start(_ context.Context, op string, userID uuid.UUID, videoID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op] = Status{Name: op, State: StateRunning, UserID: userID, VideoID: videoID}
	return nil
}

func (m *memStatus) Fail(_ context.Context, op, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.ops[op]
	st.State, st.Error = StateFailed, msg
	m.ops[op] = st
	return nil
}

func (m *memStatus) Get(_ context.Context, op string) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.ops[op]
	if !ok {
		return Status{}, ErrUnknownOperation
	}
	return st, nil
}

func (m *memStatus) set(op string, st Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ops[op] = st
}

type videoByName map[string]*models.Video

func (v videoByName) GetByFilename(_ context.Context, userID uuid.UUID, filename string) (*models.Video, error) {
	if vid, ok := v[filename]; ok && vid.UserID == userID {
		return vid, nil
	}
	return nil, videos.ErrVideoNotFound
}

type recordingQueue struct {
	jobs []queue.TranscriptionPayload
	err  error
}

func (q *recordingQueue) EnqueueTranscription(_ context.Context, p queue.TranscriptionPayload) error {
	if q.err != nil {
		return q.err
	}
	q.jobs = append(q.jobs, p)
	return nil
}

func router(h *Handler, user uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) { c.Set(middleware.ContextUserID, user) })
	r.POST("/api/video/transcribe", h.Start)
	r.GET("/api/video/transcribe/:operation_name", h.Status)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartEnqueuesJob(t *testing.T) {
	user := uuid.New()
	store := newMemStatus()
	q := &recordingQueue{}
	vids := videoByName{"a.webm": {ID: 42, UserID: user, Filename: "a.webm", S3Key: "videos/x/a.webm"}}
	r := router(NewHandler(vids, store, q, nil), user)

	w := do(r, http.MethodPost, "/api/video/transcribe", `{"filename":"a.webm"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, q.jobs, 1)
	job := q.jobs[0]
	assert.True(t, strings.HasPrefix(job.OperationName, "op-"))
	assert.Equal(t, int64(42), job.VideoID)
	assert.Equal(t, "videos/x/a.webm", job.S3Key)
	assert.Contains(t, w.Body.String(), job.OperationName)

	st, err := store.Get(context.Background(), job.OperationName)
	require.NoError(t, err)
	assert.Equal(t, StateRunning, st.State)
}

func TestStartUnknownVideo(t *testing.T) {
	r := router(NewHandler(videoByName{}, newMemStatus(), &recordingQueue{}, nil), uuid.New())
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/video/transcribe", `{"filename":"a.webm"}`).Code)
}

func TestStartQueueDown(t *testing.T) {
	user := uuid.New()
	store := newMemStatus()
	vids := videoByName{"a.webm": {ID: 1, UserID: user}}
	r := router(NewHandler(vids, store, &recordingQueue{err: errors.New("redis down")}, nil), user)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodPost, "/api/video/transcribe", `{"filename":"a.webm"}`).Code)
	for _, st := range store.ops {
		assert.Equal(t, StateFailed, st.State)
	}
}

func TestStatusLifecycle(t *testing.T) {
	user := uuid.New()
	store := newMemStatus()
	r := router(NewHandler(videoByName{}, store, &recordingQueue{}, nil), user)
	path := "/api/video/transcribe/op-1"

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, path, "").Code)

	store.set("op-1", Status{State: StateRunning, UserID: user})
	w := do(r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"done":false}}`, w.Body.String())

	store.set("op-1", Status{State: StateDone, UserID: user, Metrics: Metrics{
		Transcript: "よろしくお願いします", DurationSec: 10, CharsPerSec: 5, SpeedScore: 1, VolumeScore: 0.8,
	}})
	w = do(r, http.MethodGet, path, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"data":{"done":true,"transcript":"よろしくお願いします","duration_sec":10,"chars_per_sec":5,"speed_score":1,"volume_score":0.8}}`, w.Body.String())

	store.set("op-1", Status{State: StateFailed, UserID: user, Error: "no speech detected"})
	w = do(r, http.MethodGet, path, "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "no speech detected")
}

func TestStatusHidesOtherUsersOperations(t *testing.T) {
	store := newMemStatus()
	store.set("op-1", Status{State: StateDone, UserID: uuid.New()})
	r := router(NewHandler(videoByName{}, store, &recordingQueue{}, nil), uuid.New())
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/video/transcribe/op-1", "").Code)
}

func TestStatusFromHash(t *testing.T) {
	user := uuid.New()
	st := statusFromHash(map[string]string{
		"state":         "done",
		"user_id":       user.String(),
		"video_id":      "42",
		"transcript":    "はい",
		"duration_sec":  "12.5",
		"chars_per_sec": "4.8",
		"speed_score":   "1",
		"volume_score":  "0.735",
		"updated_at":    "2024-05-01T10:00:00Z",
	})
	assert.Equal(t, StateDone, st.State)
	assert.Equal(t, user, st.UserID)
	assert.Equal(t, int64(42), st.VideoID)
	assert.Equal(t, 12.5, st.Metrics.DurationSec)
	assert.Equal(t, 0.735, st.Metrics.VolumeScore)
	assert.False(t, st.UpdatedAt.IsZero())

	assert.Equal(t, StateRunning, statusFromHash(map[string]string{"user_id": "x"}).State)
}
