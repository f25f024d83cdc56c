// Package feedback turns the collected analysis of one answer into a graded
// report with written critique.
package feedback

import (
	"math"
	"strings"
)

// VideoMetrics are the face analysis scores, each in [0,1].
type VideoMetrics struct {
	GazeScore    float64 `json:"gaze_score"`
	EmotionScore float64 `json:"emotion_score"`
	Summary      string  `json:"summary"`
}

// SpeechMetrics are the transcription-derived measurements. Scores are in [0,1].
type SpeechMetrics struct {
	DurationSec float64 `json:"duration_sec"`
	CharsPerSec float64 `json:"chars_per_sec"`
	SpeedScore  float64 `json:"speed_score"`
	VolumeScore float64 `json:"volume_score"`
}

// RawResult is everything collected for one answer.
type RawResult struct {
	VideoID       int64         `json:"video_id" binding:"required,gt=0"`
	QuestionID    int64         `json:"question_id"`
	Question      string        `json:"question"`
	Category      string        `json:"category,omitempty"`
	Transcript    string        `json:"transcript"`
	VideoMetrics  VideoMetrics  `json:"video_metrics"`
	SpeechMetrics SpeechMetrics `json:"speech_metrics"`
}

// Scores are the radar axes, each 0..100.
type Scores struct {
	Content float64 `json:"content"`
	Gaze    float64 `json:"gaze"`
	Emotion float64 `json:"emotion"`
	Speed   float64 `json:"speed"`
	Volume  float64 `json:"volume"`
}

// Report is the feedback returned to the client and stored.
type Report struct {
	Grade      string    `json:"grade"`
	Scores     Scores    `json:"scores"`
	Critique   string    `json:"critique"`
	Summary    string    `json:"summary"`
	Transcript string    `json:"transcript"`
	RawMetrics RawResult `json:"raw_metrics"`
}

// assessment is the model's part of the report.
type assessment struct {
	Grade        string  `json:"grade"`
	ContentScore float64 `json:"content_score"`
	Critique     string  `json:"critique"`
	Summary      string  `json:"summary"`
}

func buildReport(raw RawResult, a assessment) Report {
	s := Scores{
		Content: clampScore(a.ContentScore),
		Gaze:    percent(raw.VideoMetrics.GazeScore),
		Emotion: percent(raw.VideoMetrics.EmotionScore),
		Speed:   percent(raw.SpeechMetrics.SpeedScore),
		Volume:  percent(raw.SpeechMetrics.VolumeScore),
	}
	grade := strings.ToUpper(strings.TrimSpace(a.Grade))
	if !validGrade(grade) {
		grade = gradeFor(s)
	}
	return Report{
		Grade:      grade,
		Scores:     s,
		Critique:   strings.TrimSpace(a.Critique),
		Summary:    strings.TrimSpace(a.Summary),
		Transcript: raw.Transcript,
		RawMetrics: raw,
	}
}

func validGrade(g string) bool {
	return len(g) == 1 && g[0] >= 'A' && g[0] <= 'E'
}

// gradeFor maps the mean score to A..E.
func gradeFor(s Scores) string {
	mean := (s.Content + s.Gaze + s.Emotion + s.Speed + s.Volume) / 5
	switch {
	case mean >= 85:
		return "A"
	case mean >= 70:
		return "B"
	case mean >= 55:
		return "C"
	case mean >= 40:
		return "D"
	default:
		return "E"
	}
}

// percent maps a [0,1] metric onto the 0..100 radar scale.
func percent(v float64) float64 { return clampScore(v * 100) }

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return math.Round(v*10) / 10
}
