package videos

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mimic-ai/interview/internal/models"
)

var (
	// ErrVideoNotFound is returned when the video does not exist or belongs to another user.
	ErrVideoNotFound = errors.New("video not found")
	// ErrUnknownQuestion is returned when question_id references no question.
	ErrUnknownQuestion = errors.New("unknown question")
)

const foreignKeyViolation = "23503"

// Repository handles video persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a videos repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const videoColumns = `id, user_id, question_id, filename, s3_key, content_type, size_bytes, status, created_at, updated_at`

func scanVideo(row pgx.Row) (*models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.UserID, &v.QuestionID, &v.Filename, &v.S3Key, &v.ContentType,
		&v.SizeBytes, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrVideoNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// Create records an uploaded video. Confirming the same filename twice updates
// the existing row and returns its id.
func (r *Repository) Create(ctx context.Context, v *models.Video) error {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO videos (user_id, question_id, filename, s3_key, content_type, size_bytes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, filename) DO UPDATE SET
			question_id  = COALESCE(EXCLUDED.question_id, videos.question_id),
			content_type = EXCLUDED.content_type,
			size_bytes   = EXCLUDED.size_bytes,
			updated_at   = now()
		RETURNING id, status, created_at, updated_at`,
		v.UserID, v.QuestionID, v.Filename, v.S3Key, v.ContentType, v.SizeBytes, v.Status,
	).Scan(&v.ID, &v.Status, &v.CreatedAt, &v.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
		return ErrUnknownQuestion
	}
	return err
}

// GetForUser returns a video owned by userID.
func (r *Repository) GetForUser(ctx context.Context, id int64, userID uuid.UUID) (*models.Video, error) {
	return scanVideo(r.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE id = $1 AND user_id = $2`, id, userID))
}

// GetByFilename returns the user's video with the given filename.
func (r *Repository) GetByFilename(ctx context.Context, userID uuid.UUID, filename string) (*models.Video, error) {
	return scanVideo(r.pool.QueryRow(ctx,
		`SELECT `+videoColumns+` FROM videos WHERE user_id = $1 AND filename = $2`, userID, filename))
}

// SetStatus moves a video to a new lifecycle status.
func (r *Repository) SetStatus(ctx context.Context, id int64, status string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE videos SET status = $2, updated_at = now() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrVideoNotFound
	}
	return nil
}
