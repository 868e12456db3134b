// Package backend is a client for the report backend: token login, text
// upload and report retrieval.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/saranrapjs/esrs-ixbrl/pkg/report"
)

// ErrUnauthorized is returned when the backend rejects the credentials even
// after a token refresh.
var ErrUnauthorized = errors.New("unauthorized")

const reportsPath = "/api/files/reports"

// rateLimitedTransport wraps an HTTP transport with rate limiting
type rateLimitedTransport struct {
	transport http.RoundTripper
	limiter   *rate.Limiter
}

// RoundTrip implements the http.RoundTripper interface with rate limiting
func (r *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := r.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return r.transport.RoundTrip(req)
}

// Client talks to the backend with bearer tokens. A request answered with
// 401 triggers one token refresh and one retry.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu           sync.Mutex
	accessToken  string
	refreshToken string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for auth events.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithTokens starts the client with existing tokens.
func WithTokens(access, refresh string) Option {
	return func(c *Client) {
		c.accessToken = access
		c.refreshToken = refresh
	}
}

// NewClient creates a backend client limited to rateLimit requests per
// second.
func NewClient(baseURL string, rateLimit int, opts ...Option) *Client {
	if rateLimit <= 0 {
		rateLimit = 10
	}
	transport := &rateLimitedTransport{
		transport: http.DefaultTransport,
		limiter:   rate.NewLimiter(rate.Limit(rateLimit), rateLimit),
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   30 * time.Second,
			Transport: transport,
		},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Tokens returns the current access and refresh tokens.
func (c *Client) Tokens() (access, refresh string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.accessToken, c.refreshToken
}

type apiError struct {
	Detail string `json:"detail"`
}

func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e apiError
	if json.Unmarshal(body, &e) == nil && e.Detail != "" {
		return fmt.Errorf("backend returned status %d: %s", resp.StatusCode, e.Detail)
	}
	return fmt.Errorf("backend returned status %d", resp.StatusCode)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// do sends an unauthenticated request and decodes a 2xx JSON answer into
// out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach backend: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}

// authorized sends an authenticated request. On 401 it refreshes the access
// token once and retries once.
func (c *Client) authorized(ctx context.Context, method, path string, body, out any) error {
	for attempt := 0; ; attempt++ {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}
		access, _ := c.Tokens()
		if access != "" {
			req.Header.Set("Authorization", "Bearer "+access)
		}
		err = c.do(req, out)
		if !errors.Is(err, ErrUnauthorized) || attempt > 0 {
			return err
		}
		c.logger.Debug("access token rejected, refreshing", zap.String("path", path))
		if err := c.refresh(ctx); err != nil {
			return err
		}
	}
}

type tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// Login exchanges credentials for a token pair.
func (c *Client) Login(ctx context.Context, email, password string) error {
	req, err := c.newRequest(ctx, http.MethodPost, "/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return err
	}
	var t tokens
	if err := c.do(req, &t); err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	c.mu.Lock()
	c.accessToken, c.refreshToken = t.AccessToken, t.RefreshToken
	c.mu.Unlock()
	c.logger.Info("logged in to backend", zap.String("email", email))
	return nil
}

func (c *Client) refresh(ctx context.Context) error {
	_, refreshToken := c.Tokens()
	if refreshToken == "" {
		return ErrUnauthorized
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/refresh", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return err
	}
	var t tokens
	if err := c.do(req, &t); err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return err
		}
		return fmt.Errorf("failed to refresh token: %w", err)
	}
	c.mu.Lock()
	c.accessToken = t.AccessToken
	if t.RefreshToken != "" {
		c.refreshToken = t.RefreshToken
	}
	c.mu.Unlock()
	return nil
}

// Logout revokes the refresh token and forgets both tokens.
func (c *Client) Logout(ctx context.Context) error {
	_, refreshToken := c.Tokens()
	defer func() {
		c.mu.Lock()
		c.accessToken, c.refreshToken = "", ""
		c.mu.Unlock()
	}()
	if refreshToken == "" {
		return nil
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/logout", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return err
	}
	if err := c.do(req, nil); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	return nil
}

// remoteBlock is a block as the backend stores it; tags are tag ids only.
type remoteBlock struct {
	ID      string   `json:"id"`
	Content string   `json:"content"`
	Type    string   `json:"type"`
	Tags    []string `json:"tags"`
}

type remoteReport struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
	Blocks    []remoteBlock `json:"blocks"`
	FilePath  string        `json:"file_path,omitempty"`
	FileSize  int           `json:"file_size,omitempty"`
	FileType  string        `json:"file_type,omitempty"`
}

func (r remoteReport) document() *report.Document {
	doc := &report.Document{
		ID:        r.ID,
		Title:     r.Title,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Blocks:    make([]*report.Block, 0, len(r.Blocks)),
	}
	for _, b := range r.Blocks {
		typ := report.BlockType(b.Type)
		if typ == "" {
			typ = report.BlockParagraph
		}
		doc.Blocks = append(doc.Blocks, &report.Block{ID: b.ID, Content: b.Content, Type: typ, Tags: []*report.Tag{}})
	}
	return doc
}

// UploadText sends text to be split into a paragraph report and returns
// the stored report.
func (c *Client) UploadText(ctx context.Context, title, text string) (*report.Document, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text content cannot be empty")
	}
	var r remoteReport
	body := map[string]string{"title": title, "text": text}
	if err := c.authorized(ctx, http.MethodPost, "/api/files/upload-text", body, &r); err != nil {
		return nil, fmt.Errorf("failed to upload text: %w", err)
	}
	return r.document(), nil
}

// Reports lists the reports of the logged in user.
func (c *Client) Reports(ctx context.Context) ([]*report.Document, error) {
	var rs []remoteReport
	if err := c.authorized(ctx, http.MethodGet, reportsPath, nil, &rs); err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	docs := make([]*report.Document, len(rs))
	for i, r := range rs {
		docs[i] = r.document()
	}
	return docs, nil
}

// Report fetches one report.
func (c *Client) Report(ctx context.Context, id string) (*report.Document, error) {
	var r remoteReport
	if err := c.authorized(ctx, http.MethodGet, reportsPath+"/"+url.PathEscape(id), nil, &r); err != nil {
		return nil, fmt.Errorf("failed to fetch report %s: %w", id, err)
	}
	return r.document(), nil
}

// DeleteReport deletes one report.
func (c *Client) DeleteReport(ctx context.Context, id string) error {
	if err := c.authorized(ctx, http.MethodDelete, reportsPath+"/"+url.PathEscape(id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete report %s: %w", id, err)
	}
	return nil
}
