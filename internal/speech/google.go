package speech

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	speechapi "google.golang.org/api/speech/v1"
)

// ErrNoSpeech is returned when recognition produced no transcript.
var ErrNoSpeech = errors.New("no speech recognized")

// GoogleRecognizer transcribes FLAC audio with Speech-to-Text long-running recognition.
type GoogleRecognizer struct {
	svc          *speechapi.Service
	languageCode string
	pollInterval time.Duration
	logger       *zap.Logger
}

// NewGoogleRecognizer creates a recognizer. An empty credentialsFile uses
// application default credentials.
func NewGoogleRecognizer(ctx context.Context, credentialsFile, languageCode string, pollInterval time.Duration, logger *zap.Logger) (*GoogleRecognizer, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := speechapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("speech service: %w", err)
	}
	if languageCode == "" {
		languageCode = "ja-JP"
	}
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GoogleRecognizer{svc: svc, languageCode: languageCode, pollInterval: pollInterval, logger: logger}, nil
}

// Recognize uploads the audio inline, waits for the operation and joins the
// top alternative of every result.
func (g *GoogleRecognizer) Recognize(ctx context.Context, audioPath string) (string, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return "", fmt.Errorf("read audio: %w", err)
	}
	req := &speechapi.LongRunningRecognizeRequest{
		Config: &speechapi.RecognitionConfig{
			Encoding:                   "FLAC",
			SampleRateHertz:            16000,
			AudioChannelCount:          1,
			LanguageCode:               g.languageCode,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechapi.RecognitionAudio{Content: base64.StdEncoding.EncodeToString(data)},
	}
	op, err := g.svc.Speech.Longrunningrecognize(req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("longrunningrecognize: %w", err)
	}
	g.logger.Debug("speech operation started", zap.String("speech_operation", op.Name))

	ticker := time.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for !op.Done {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-ticker.C:
		}
		op, err = g.svc.Operations.Get(op.Name).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("poll speech operation: %w", err)
		}
	}
	if op.Error != nil {
		return "", fmt.Errorf("speech operation %s: %s", op.Name, op.Error.Message)
	}
	return transcriptFrom(op.Response)
}

func transcriptFrom(raw []byte) (string, error) {
	var resp speechapi.LongRunningRecognizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", fmt.Errorf("decode speech response: %w", err)
	}
	var b strings.Builder
	for _, r := range resp.Results {
		if r == nil || len(r.Alternatives) == 0 || r.Alternatives[0] == nil {
			continue
		}
		b.WriteString(strings.TrimSpace(r.Alternatives[0].Transcript))
	}
	if b.Len() == 0 {
		return "", ErrNoSpeech
	}
	return b.String(), nil
}
