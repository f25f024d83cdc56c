package questions

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimic-ai/interview/internal/models"
)

// Repository handles question persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a questions repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Random returns up to limit questions in random order.
func (r *Repository) Random(ctx context.Context, limit int) ([]models.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, data, category, created_at FROM questions ORDER BY random() LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[models.Question])
}

// GetByID returns one question.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Question, error) {
	var q models.Question
	err := r.pool.QueryRow(ctx,
		`SELECT id, data, category, created_at FROM questions WHERE id = $1`, id,
	).Scan(&q.ID, &q.Data, &q.Category, &q.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

// Create inserts a question. An identical prompt returns the existing row.
func (r *Repository) Create(ctx context.Context, q *models.Question) error {
	return r.pool.QueryRow(ctx, `
		INSERT INTO questions (data, category) VALUES ($1, $2)
		ON CONFLICT (data) DO UPDATE SET category = EXCLUDED.category
		RETURNING id, created_at`,
		q.Data, q.Category,
	).Scan(&q.ID, &q.CreatedAt)
}
