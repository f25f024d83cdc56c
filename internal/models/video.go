package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Video lifecycle.
const (
	VideoStatusUploaded    = "uploaded"
	VideoStatusAnalyzed    = "analyzed"
	VideoStatusTranscribed = "transcribed"
	VideoStatusFailed      = "failed"
)

// Video is one recorded answer stored in S3.
type Video struct {
	ID          int64     `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	QuestionID  *int64    `json:"question_id,omitempty"`
	Filename    string    `json:"filename"`
	S3Key       string    `json:"s3_key"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// FacialAnalysis is the gaze/emotion scoring of a video. Scores are in [0,1].
type FacialAnalysis struct {
	VideoID      int64     `json:"video_id"`
	GazeScore    float64   `json:"gaze_score"`
	EmotionScore float64   `json:"emotion_score"`
	Summary      string    `json:"summary"`
	CreatedAt    time.Time `json:"created_at"`
}

// FeedbackReport is a generated report as stored.
type FeedbackReport struct {
	ID        int64           `json:"id"`
	VideoID   int64           `json:"video_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Model     string          `json:"model"`
	Report    json.RawMessage `json:"report"`
	CreatedAt time.Time       `json:"created_at"`
}
