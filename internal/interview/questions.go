package interview

import (
	"context"
	"fmt"

	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/apperr"
)

const randomTestPath = "/api/interview/random-test"

// DefaultBatchSize is how many questions one batch holds.
const DefaultBatchSize = 3

// Question is one interview prompt.
type Question struct {
	ID       int64  `json:"id"`
	Data     string `json:"data"`
	Category string `json:"category,omitempty"`
}

// QuestionSource fetches a batch of questions.
type QuestionSource interface {
	Fetch(ctx context.Context, limit int) ([]Question, error)
}

// APIQuestions fetches random batches from the backend.
type APIQuestions struct {
	api *apiclient.Client
}

// NewAPIQuestions returns a source backed by the practice API.
func NewAPIQuestions(api *apiclient.Client) *APIQuestions {
	return &APIQuestions{api: api}
}

// Fetch returns up to limit questions. 401 stays an authentication error, any other
// failure becomes KindQuestionLoad and an empty batch KindEmptyQueue.
func (s *APIQuestions) Fetch(ctx context.Context, limit int) ([]Question, error) {
	if limit <= 0 {
		limit = DefaultBatchSize
	}
	var qs []Question
	path := fmt.Sprintf("%s?limit=%d", randomTestPath, limit)
	if err := s.api.Get(ctx, "question load", path, &qs); err != nil {
		if apperr.IsKind(err, apperr.KindAuthentication) || ctx.Err() != nil {
			return nil, err
		}
		return nil, &apperr.Error{Kind: apperr.KindQuestionLoad, Op: "question load", Message: apperr.MsgQuestionLoad, Err: err}
	}
	if len(qs) == 0 {
		return nil, apperr.New(apperr.KindEmptyQueue, "question load", apperr.MsgEmptyQueue)
	}
	return qs, nil
}

// Queue is an ordered batch with a cursor.
type Queue struct {
	items  []Question
	cursor int
}

// Reset replaces the batch and rewinds the cursor.
func (q *Queue) Reset(items []Question) {
	q.items = append([]Question(nil), items...)
	q.cursor = 0
}

// Current returns the question under the cursor.
func (q *Queue) Current() (Question, bool) {
	if q.cursor < 0 || q.cursor >= len(q.items) {
		return Question{}, false
	}
	return q.items[q.cursor], true
}

// Advance moves to the next question and reports whether the batch is exhausted.
func (q *Queue) Advance() bool {
	if q.cursor < len(q.items) {
		q.cursor++
	}
	return q.cursor >= len(q.items)
}

// Position returns the 0-based cursor and the batch length.
func (q *Queue) Position() (int, int) { return q.cursor, len(q.items) }
