package feedback

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimic-ai/interview/internal/models"
)

// Repository stores generated reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a feedback repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Save inserts a report.
func (r *Repository) Save(ctx context.Context, rec *models.FeedbackReport) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO feedback_reports (video_id, user_id, model, report)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`,
		rec.VideoID, rec.UserID, rec.Model, rec.Report,
	).Scan(&rec.ID, &rec.CreatedAt)
}

// NewRecord encodes a report for storage.
func NewRecord(userID uuid.UUID, model string, rep Report) (*models.FeedbackReport, error) {
	body, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return &models.FeedbackReport{
		VideoID: rep.RawMetrics.VideoID,
		UserID:  userID,
		Model:   model,
		Report:  body,
	}, nil
}
