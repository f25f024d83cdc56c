package analysis

import (
	"encoding/json"
	"fmt"
	"math"
)

// FacialResult is the video-side analysis of one answer.
type FacialResult struct {
	GazeScore    float64 `json:"gaze_score"`
	EmotionScore float64 `json:"emotion_score"`
	Summary      string  `json:"summary"`
}

func (f FacialResult) validate() error {
	for name, v := range map[string]float64{"gaze_score": f.GazeScore, "emotion_score": f.EmotionScore} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%s %v out of range [0,1]", name, v)
		}
	}
	return nil
}

// TranscriptionStatus is one poll of a transcription job.
type TranscriptionStatus struct {
	Done        bool    `json:"done"`
	Transcript  string  `json:"transcript,omitempty"`
	DurationSec float64 `json:"duration_sec,omitempty"`
	CharsPerSec float64 `json:"chars_per_sec,omitempty"`
	SpeedScore  float64 `json:"speed_score,omitempty"`
	VolumeScore float64 `json:"volume_score,omitempty"`
}

// SpeechMetrics are the audio-side measurements of a finished transcription.
type SpeechMetrics struct {
	DurationSec float64 `json:"duration_sec"`
	CharsPerSec float64 `json:"chars_per_sec"`
	SpeedScore  float64 `json:"speed_score"`
	VolumeScore float64 `json:"volume_score"`
}

// RawResult is everything feedback generation needs, sent as one object.
type RawResult struct {
	VideoID       int64         `json:"video_id"`
	QuestionID    int64         `json:"question_id"`
	Question      string        `json:"question"`
	Category      string        `json:"category,omitempty"`
	Transcript    string        `json:"transcript"`
	VideoMetrics  FacialResult  `json:"video_metrics"`
	SpeechMetrics SpeechMetrics `json:"speech_metrics"`
}

// Report is the generated feedback. It is forwarded to the view without interpretation.
type Report = json.RawMessage

// Request identifies the uploaded answer to analyze.
type Request struct {
	VideoID    int64
	Filename   string
	QuestionID int64
	Question   string
	Category   string
}
