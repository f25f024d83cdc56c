// Package transcriptions tracks speech transcription operations and serves
// their status.
package transcriptions

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// State is the lifecycle of one operation.
type State string

const (
	StateRunning State = "running"
	StateDone    State = "done"
	StateFailed  State = "failed"
)

const keyPrefix = "transcription:"

// ErrUnknownOperation is returned for operation names the store has never seen or has expired.
var ErrUnknownOperation = errors.New("unknown operation")

// Metrics is the outcome of a finished transcription.
type Metrics struct {
	Transcript  string  `json:"transcript"`
	DurationSec float64 `json:"duration_sec"`
	CharsPerSec float64 `json:"chars_per_sec"`
	SpeedScore  float64 `json:"speed_score"`
	VolumeScore float64 `json:"volume_score"`
}

// Status is the stored state of an operation.
type Status struct {
	Name      string
	State     State
	UserID    uuid.UUID
	VideoID   int64
	Error     string
	Metrics   Metrics
	UpdatedAt time.Time
}

// Store keeps operation status in Redis hashes that expire after ttl.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore creates a status store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(op string) string { return keyPrefix + op }

func (s *Store) write(ctx context.Context, op string, fields map[string]any) error {
	fields["updated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key(op), fields)
		p.Expire(ctx, key(op), s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("write status %s: %w", op, err)
	}
	return nil
}

// Start records a new running operation.
func (s *Store) Start(ctx context.Context, op string, userID uuid.UUID, videoID int64) error {
	return s.write(ctx, op, map[string]any{
		"state":    string(StateRunning),
		"user_id":  userID.String(),
		"video_id": videoID,
	})
}

// Complete stores the result of a finished operation.
func (s *Store) Complete(ctx context.Context, op string, m Metrics) error {
	return s.write(ctx, op, map[string]any{
		"state":         string(StateDone),
		"transcript":    m.Transcript,
		"duration_sec":  m.DurationSec,
		"chars_per_sec": m.CharsPerSec,
		"speed_score":   m.SpeedScore,
		"volume_score":  m.VolumeScore,
		"error":         "",
	})
}

// Fail marks an operation as failed with a message shown to the caller.
func (s *Store) Fail(ctx context.Context, op, msg string) error {
	return s.write(ctx, op, map[string]any{
		"state": string(StateFailed),
		"error": msg,
	})
}

// Get returns the status of an operation.
func (s *Store) Get(ctx context.Context, op string) (Status, error) {
	h, err := s.client.HGetAll(ctx, key(op)).Result()
	if err != nil {
		return Status{}, fmt.Errorf("read status %s: %w", op, err)
	}
	if len(h) == 0 {
		return Status{}, ErrUnknownOperation
	}
	st := statusFromHash(h)
	st.Name = op
	return st, nil
}

func statusFromHash(h map[string]string) Status {
	st := Status{
		State: State(h["state"]),
		Error: h["error"],
		Metrics: Metrics{
			Transcript:  h["transcript"],
			DurationSec: parseFloat(h["duration_sec"]),
			CharsPerSec: parseFloat(h["chars_per_sec"]),
			SpeedScore:  parseFloat(h["speed_score"]),
			VolumeScore: parseFloat(h["volume_score"]),
		},
	}
	st.UserID, _ = uuid.Parse(h["user_id"])
	st.VideoID, _ = strconv.ParseInt(h["video_id"], 10, 64)
	st.UpdatedAt, _ = time.Parse(time.RFC3339Nano, h["updated_at"])
	if st.State == "" {
		st.State = StateRunning
	}
	return st
}

func parseFloat(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
