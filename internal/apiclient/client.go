// Package apiclient is the cookie-authenticated JSON client for the practice backend.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mimic-ai/interview/internal/apperr"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
)

// Client issues JSON requests with ambient session cookies.
type Client struct {
	baseURL *url.URL
	http    *http.Client
	logger  *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client. A cookie jar is attached when it has none.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.http = h
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client rooted at baseURL (e.g. http://localhost:5000).
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("parse base url: %q is not absolute", baseURL)
	}
	c := &Client{
		baseURL: u,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.http.Jar = jar
	}
	return c, nil
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string { return c.baseURL.String() }

// Cookies returns the session cookies held for the backend.
func (c *Client) Cookies() []*http.Cookie {
	return c.http.Jar.Cookies(c.baseURL)
}

// SetCookies restores previously saved session cookies.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.http.Jar.SetCookies(c.baseURL, cookies)
}

// ClearCookies drops every cookie held for the backend.
func (c *Client) ClearCookies() {
	current := c.http.Jar.Cookies(c.baseURL)
	expired := make([]*http.Cookie, 0, len(current))
	for _, ck := range current {
		expired = append(expired, &http.Cookie{Name: ck.Name, Value: "", Path: "/", MaxAge: -1})
	}
	c.http.Jar.SetCookies(c.baseURL, expired)
}

// Get issues a GET and decodes the response data into out.
func (c *Client) Get(ctx context.Context, op, path string, out any) error {
	return c.Do(ctx, op, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body and decodes the response data into out.
func (c *Client) Post(ctx context.Context, op, path string, in, out any) error {
	return c.Do(ctx, op, http.MethodPost, path, in, out)
}

func (c *Client) resolve(path string) *url.URL {
	rawQuery := ""
	if i := strings.IndexByte(path, '?'); i >= 0 {
		rawQuery = path[i+1:]
		path = path[:i]
	}
	u := c.baseURL.JoinPath(path)
	u.RawQuery = rawQuery
	return u
}

type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

// Do sends one request. Non-2xx responses become *apperr.Error: 401 is always
// KindAuthentication, everything else KindServer.
func (c *Client) Do(ctx context.Context, op, method, path string, in, out any) error {
	endpoint := c.resolve(path)
	var body io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: encode body: %w", op, err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		return &apperr.Error{Kind: apperr.KindServer, Op: op, Message: "サーバーに接続できませんでした", Transient: true, Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &apperr.Error{Kind: apperr.KindServer, Op: op, Message: "レスポンスの読み込みに失敗しました", Transient: true, Err: err}
	}
	c.logger.Debug("api request",
		zap.String("op", op),
		zap.String("method", method),
		zap.String("path", endpoint.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apperr.FromResponse(op, resp.StatusCode, raw)
	}
	return decode(op, resp.StatusCode, raw, out)
}

func decode(op string, status int, raw []byte, out any) error {
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	data := raw
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Success != nil {
		if !*env.Success {
			return apperr.FromResponse(op, status, env.Error)
		}
		data = env.Data
	}
	if len(data) == 0 {
		return &apperr.Error{Kind: apperr.KindServer, Op: op, Message: "レスポンスが空です", Status: status}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &apperr.Error{Kind: apperr.KindServer, Op: op, Message: "レスポンスの形式が不正です", Status: status, Err: err}
	}
	return nil
}
