// Package upload persists a captured answer through a signed URL and registers it with the backend.
package upload

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/apiclient"
	"github.com/mimic-ai/interview/internal/apperr"
	"github.com/mimic-ai/interview/internal/backoff"
	"github.com/mimic-ai/interview/internal/capture"
)

const (
	ticketPath   = "/api/interview/ai-upload"
	completePath = "/api/video/ai-upload-complete"
	putTimeout   = 5 * time.Minute
)

// Ticket is a single-use authorization to PUT one artifact.
type Ticket struct {
	SignedURL   string `json:"signed_url"`
	ContentType string `json:"content_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// VideoRecord is the backend's record of a stored answer.
type VideoRecord struct {
	ID         int64  `json:"video_id"`
	Filename   string `json:"filename"`
	QuestionID int64  `json:"question_id"`
}

// Client runs the ticket → put → confirm sequence.
type Client struct {
	api     *apiclient.Client
	storage *http.Client
	retry   backoff.Policy
	log     *zap.Logger
}

// NewClient builds an upload client. storage performs the signed-URL PUT and
// must not carry session cookies; nil uses a plain client.
func NewClient(api *apiclient.Client, storage *http.Client, retry backoff.Policy, log *zap.Logger) *Client {
	if storage == nil {
		storage = &http.Client{Timeout: putTimeout}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{api: api, storage: storage, retry: retry, log: log}
}

// RequestTicket asks the backend for a signed upload URL.
func (c *Client) RequestTicket(ctx context.Context, filename, contentType string) (Ticket, error) {
	var t Ticket
	body := map[string]string{"filename": filename, "contentType": contentType}
	if err := c.api.Post(ctx, "upload ticket", ticketPath, body, &t); err != nil {
		return Ticket{}, err
	}
	if t.SignedURL == "" {
		return Ticket{}, apperr.New(apperr.KindServer, "upload ticket", "署名付きURLが返されませんでした")
	}
	if t.ContentType == "" {
		t.ContentType = contentType
	}
	return t, nil
}

// PutArtifact sends the whole artifact to the signed URL. Each retry resends the full body.
func (c *Client) PutArtifact(ctx context.Context, t Ticket, art *capture.Artifact) error {
	return c.retry.Do(ctx, apperr.Retryable, func(attempt int) error {
		err := c.put(ctx, t, art)
		if err != nil && apperr.Retryable(err) {
			c.log.Warn("storage put failed; retrying",
				zap.String("filename", art.Filename),
				zap.Int("attempt", attempt),
				zap.Error(err),
			)
		}
		return err
	})
}

func (c *Client) put(ctx context.Context, t Ticket, art *capture.Artifact) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, t.SignedURL, bytes.NewReader(art.Data))
	if err != nil {
		return apperr.Wrap(apperr.KindStorageUpload, "storage put", err)
	}
	// The signature covers the content type, so it must match the ticket request.
	req.Header.Set("Content-Type", art.MimeType)
	req.ContentLength = int64(len(art.Data))

	resp, err := c.storage.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("storage put: %w", ctx.Err())
		}
		return &apperr.Error{Kind: apperr.KindStorageUpload, Op: "storage put", Message: apperr.MsgStorageUpload, Transient: true, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperr.Error{
			Kind:      apperr.KindStorageUpload,
			Op:        "storage put",
			Message:   apperr.MsgStorageUpload,
			Status:    resp.StatusCode,
			Transient: apperr.TransientStatus(resp.StatusCode),
		}
	}
	return nil
}

// ConfirmUpload registers a stored artifact. Call it only after PutArtifact succeeded.
func (c *Client) ConfirmUpload(ctx context.Context, filename string, questionID int64) (VideoRecord, error) {
	var rec VideoRecord
	body := map[string]any{"filename": filename, "question_id": questionID}
	if err := c.api.Post(ctx, "upload confirm", completePath, body, &rec); err != nil {
		return VideoRecord{}, err
	}
	if rec.ID == 0 {
		return VideoRecord{}, apperr.New(apperr.KindServer, "upload confirm", "video_id が返されませんでした")
	}
	if rec.Filename == "" {
		rec.Filename = filename
	}
	if rec.QuestionID == 0 {
		rec.QuestionID = questionID
	}
	return rec, nil
}

// Upload runs ticket, put and confirm strictly in order. A failed step stops the sequence.
func (c *Client) Upload(ctx context.Context, art *capture.Artifact, questionID int64) (VideoRecord, error) {
	ticket, err := c.RequestTicket(ctx, art.Filename, art.MimeType)
	if err != nil {
		return VideoRecord{}, err
	}
	if err := c.PutArtifact(ctx, ticket, art); err != nil {
		return VideoRecord{}, err
	}
	rec, err := c.ConfirmUpload(ctx, art.Filename, questionID)
	if err != nil {
		return VideoRecord{}, err
	}
	c.log.Info("answer uploaded",
		zap.Int64("video_id", rec.ID),
		zap.String("filename", art.Filename),
		zap.String("size", art.HumanSize()),
	)
	return rec, nil
}
