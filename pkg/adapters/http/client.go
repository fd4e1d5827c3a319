package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/aretw0/chatflow/pkg/domain"
)

const (
	defaultTimeout = 30 * time.Second
	fileIDHeader   = "X-File-Id"
)

// Client talks to the collaborator API. It implements ports.Backend and
// ports.Uploader.
type Client struct {
	baseURL string
	http    *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default client, e.g. to add auth transport.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) {
		cl.http = c
	}
}

// NewClient creates a client for the API rooted at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListQuestions fetches every question of the app.
func (c *Client) ListQuestions(ctx context.Context, appID string) ([]domain.Question, error) {
	var out []domain.Question
	err := c.doJSON(ctx, http.MethodGet, appPath(appID, "questions"), nil, &out)
	return out, err
}

// ListGrouped fetches the app's questions grouped by flow.
func (c *Client) ListGrouped(ctx context.Context, appID string) ([]domain.GroupedFlow, error) {
	var out []domain.GroupedFlow
	err := c.doJSON(ctx, http.MethodGet, appPath(appID, "flows"), nil, &out)
	return out, err
}

// CreateQuestion stores a new question.
func (c *Client) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	var out domain.Question
	err := c.doJSON(ctx, http.MethodPost, appPath(q.AppID, "questions"), q, &out)
	return out, err
}

// UpdateQuestion sends a partial update.
func (c *Client) UpdateQuestion(ctx context.Context, appID, id string, patch domain.QuestionPatch) (domain.Question, error) {
	var out domain.Question
	err := c.doJSON(ctx, http.MethodPatch, appPath(appID, "questions", id), patch, &out)
	return out, err
}

// DeleteQuestion removes a question.
func (c *Client) DeleteQuestion(ctx context.Context, appID, id string) error {
	return c.doJSON(ctx, http.MethodDelete, appPath(appID, "questions", id), nil, nil)
}

// ListPlans fetches the app's plans.
func (c *Client) ListPlans(ctx context.Context, appID string) ([]domain.Plan, error) {
	var out []domain.Plan
	err := c.doJSON(ctx, http.MethodGet, appPath(appID, "plans"), nil, &out)
	return out, err
}

// UpsertPlans saves plans in one request.
func (c *Client) UpsertPlans(ctx context.Context, appID string, plans []domain.PlanInput) ([]domain.Plan, error) {
	var out []domain.Plan
	err := c.doJSON(ctx, http.MethodPut, appPath(appID, "plans"), plans, &out)
	return out, err
}

// UploadAttachment sends the question's file as multipart form data.
func (c *Client) UploadAttachment(ctx context.Context, appID, questionID string, file domain.File) (domain.Attachment, error) {
	var out domain.Attachment
	err := c.doMultipart(ctx, appPath(appID, "questions", questionID, "attachment"), file, &out)
	return out, err
}

// DeleteAttachment clears the question's file.
func (c *Client) DeleteAttachment(ctx context.Context, appID, questionID string) error {
	return c.doJSON(ctx, http.MethodDelete, appPath(appID, "questions", questionID, "attachment"), nil, nil)
}

// GetAttachment downloads the question's file.
func (c *Client) GetAttachment(ctx context.Context, appID, questionID string) (domain.UploadedFile, io.ReadCloser, error) {
	return c.download(ctx, appPath(appID, "questions", questionID, "attachment"))
}

// PutFile uploads a chat file.
func (c *Client) PutFile(ctx context.Context, appID string, file domain.File) (domain.UploadedFile, error) {
	var out domain.UploadedFile
	err := c.doMultipart(ctx, appPath(appID, "uploads"), file, &out)
	return out, err
}

// GetFile downloads a chat file.
func (c *Client) GetFile(ctx context.Context, appID, fileID string) (domain.UploadedFile, io.ReadCloser, error) {
	return c.download(ctx, appPath(appID, "uploads", fileID))
}

// Upload implements ports.Uploader.
func (c *Client) Upload(ctx context.Context, appID string, file domain.File) (domain.UploadedFile, error) {
	return c.PutFile(ctx, appID, file)
}

// DownloadURL is the retrieval link of an uploaded file.
func (c *Client) DownloadURL(appID, fileID string) string {
	return c.baseURL + appPath(appID, "uploads", fileID)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) doMultipart(ctx context.Context, path string, file domain.File, out any) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", mime.FormatMediaType("form-data", map[string]string{"name": "file", "filename": file.Filename}))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if file.Content != nil {
		if _, err := io.Copy(part, file.Content); err != nil {
			return fmt.Errorf("failed to read file content: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	if err := statusError(resp); err != nil {
		return err
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) download(ctx context.Context, path string) (domain.UploadedFile, io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return domain.UploadedFile{}, nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return domain.UploadedFile{}, nil, fmt.Errorf("GET %s: %w", path, err)
	}
	if err := statusError(resp); err != nil {
		resp.Body.Close()
		return domain.UploadedFile{}, nil, err
	}
	meta := domain.UploadedFile{
		FileID:      resp.Header.Get(fileIDHeader),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		meta.Filename = params["filename"]
	}
	return meta, resp.Body, nil
}

// statusError maps API statuses back onto domain errors.
func statusError(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	msg := strings.TrimSpace(string(data))
	op := resp.Request.Method + " " + resp.Request.URL.Path
	switch resp.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", op, msg, domain.ErrNotFound)
	case http.StatusRequestEntityTooLarge:
		return domain.Validation(op, domain.ErrFileTooLarge)
	case http.StatusBadRequest:
		return domain.Validation(op, errors.New(msg))
	default:
		return fmt.Errorf("%s: unexpected status %d: %s", op, resp.StatusCode, msg)
	}
}

func appPath(appID string, parts ...string) string {
	var b strings.Builder
	b.WriteString("/apps/")
	b.WriteString(url.PathEscape(appID))
	for _, p := range parts {
		b.WriteString("/")
		b.WriteString(url.PathEscape(p))
	}
	return b.String()
}
