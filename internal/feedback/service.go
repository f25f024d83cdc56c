package feedback

import (
	"context"
	"fmt"
)

// Completer returns a JSON completion for a system and user prompt.
type Completer interface {
	CompleteJSON(ctx context.Context, system, user string) (string, error)
}

// Service generates reports.
type Service struct {
	llm Completer
}

// NewService creates a feedback service.
func NewService(llm Completer) *Service {
	return &Service{llm: llm}
}

// Generate asks the model to assess the answer and merges its verdict with the
// measured scores.
func (s *Service) Generate(ctx context.Context, raw RawResult) (Report, error) {
	content, err := s.llm.CompleteJSON(ctx, systemPrompt, userPrompt(raw))
	if err != nil {
		return Report{}, fmt.Errorf("generate feedback: %w", err)
	}
	var a assessment
	if err := DecodeLLMJSON(content, &a); err != nil {
		return Report{}, fmt.Errorf("generate feedback: parse: %w", err)
	}
	return buildReport(raw, a), nil
}
