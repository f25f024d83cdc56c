package facial

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimic-ai/interview/internal/models"
)

// Repository stores face analysis results.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a facial analysis repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save upserts the analysis for a video.
func (r *Repository) Save(ctx context.Context, a *models.FacialAnalysis) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO facial_analyses (video_id, gaze_score, emotion_score, summary)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (video_id) DO UPDATE SET
			gaze_score = EXCLUDED.gaze_score,
			emotion_score = EXCLUDED.emotion_score,
			summary = EXCLUDED.summary,
			created_at = now()
		RETURNING created_at`,
		a.VideoID, a.GazeScore, a.EmotionScore, a.Summary,
	).Scan(&a.CreatedAt)
}
