package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/mimic-ai/interview/internal/interview"
	"github.com/mimic-ai/interview/internal/progress"
	"github.com/mimic-ai/interview/internal/report"
)

// terminalNavigator is the feedback view: it prints the report and pushes it to the progress UI.
type terminalNavigator struct {
	mu  sync.Mutex
	out io.Writer
	hub *progress.Hub
}

type reportPayload struct {
	Turn       int             `json:"turn"`
	QuestionID int64           `json:"question_id"`
	Question   string          `json:"question"`
	VideoID    int64           `json:"video_id"`
	Report     json.RawMessage `json:"report"`
}

func (n *terminalNavigator) ShowFeedback(ctx context.Context, fb interview.Feedback) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	fmt.Fprintf(n.out, "\n%s\n", report.Render(fb.Question.Data, fb.Report))
	n.mu.Unlock()
	if n.hub != nil {
		n.hub.Broadcast(progress.EventReport, reportPayload{
			Turn:       fb.Turn,
			QuestionID: fb.Question.ID,
			Question:   fb.Question.Data,
			VideoID:    fb.VideoID,
			Report:     json.RawMessage(fb.Report),
		})
	}
	return nil
}
