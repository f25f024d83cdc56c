// Package facial scores gaze and facial expression of a recorded answer by
// calling the face analysis service.
package facial

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Result is the face analysis of one video. Scores are in [0,1].
type Result struct {
	GazeScore    float64 `json:"gaze_score"`
	EmotionScore float64 `json:"emotion_score"`
	Summary      string  `json:"summary"`
}

// Validate rejects scores outside [0,1].
func (r Result) Validate() error {
	for _, s := range []struct {
		name string
		v    float64
	}{{"gaze_score", r.GazeScore}, {"emotion_score", r.EmotionScore}} {
		if math.IsNaN(s.v) || s.v < 0 || s.v > 1 {
			return fmt.Errorf("%s %v out of range [0,1]", s.name, s.v)
		}
	}
	return nil
}

type analyzeRequest struct {
	VideoID  int64  `json:"video_id"`
	VideoURL string `json:"video_url"`
}

// Client calls the face analysis service over HTTP.
type Client struct {
	url    string
	http   *http.Client
	logger *zap.Logger
}

// NewClient creates a face analysis client.
func NewClient(url string, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{url: url, http: &http.Client{Timeout: timeout}, logger: logger}
}

// Analyze sends the video URL to the service and returns validated scores.
func (c *Client) Analyze(ctx context.Context, videoID int64, videoURL string) (Result, error) {
	body, err := json.Marshal(analyzeRequest{VideoID: videoID, VideoURL: videoURL})
	if err != nil {
		return Result{}, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("face analysis: %w", err)
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("face analysis: status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var res Result
	if err := json.Unmarshal(payload, &res); err != nil {
		return Result{}, fmt.Errorf("decode response: %w", err)
	}
	if err := res.Validate(); err != nil {
		return Result{}, err
	}
	c.logger.Debug("face analysis done",
		zap.Int64("video_id", videoID),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}
