// Package apiclient talks to the render service over HTTP. It builds for
// js/wasm, where net/http is backed by the browser's fetch.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/drummonds/goflipbook/document"
	"github.com/drummonds/goflipbook/viewer"
)

// Job mirrors the job JSON served by /api/jobs
type Job struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	Progress    int    `json:"progress"`
	CurrentStep string `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	Message     string `json:"message"`
	Error       string `json:"error,omitempty"`
	Result      string `json:"result,omitempty"`
	SetURL      string `json:"setUrl,omitempty"`
	CreatedAt   string `json:"createdAt"`
	CompletedAt string `json:"completedAt,omitempty"`
}

// Health is the server status served by /api/health
type Health struct {
	Status       string `json:"status"`
	Version      string `json:"version"`
	Backend      string `json:"backend"`
	DatabaseType string `json:"databaseType"`
	Rendering    bool   `json:"rendering"`
	StoredSets   int    `json:"storedSets"`
}

// Job statuses the client acts on
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// StatusError is a non-success response from the service
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("render service returned status %d: %s", e.Code, e.Message)
}

// RenderFailedError is a render the service reported as failed
type RenderFailedError struct {
	JobID   string
	Message string
}

func (e *RenderFailedError) Error() string {
	return fmt.Sprintf("render job %s failed: %s", e.JobID, e.Message)
}

// UserMessage is the text the service prepared for the user
func (e *RenderFailedError) UserMessage() string {
	return e.Message
}

// Client holds the HTTP client for the render service
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client; an empty baseURL uses same-origin relative URLs
func New(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

func (c *Client) url(path string) string {
	return c.BaseURL + path
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.url(path), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call render service: %w", err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

func statusError(resp *http.Response) error {
	bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(bodyBytes))
	if json.Unmarshal(bodyBytes, &payload) == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// Upload sends file for rendering and returns the job id
func (c *Client) Upload(ctx context.Context, file document.File) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="document"; filename=%q`, file.Name))
	mediaType := file.MediaType
	if mediaType == "" {
		mediaType = document.MIMEPDF
	}
	header.Set("Content-Type", mediaType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return "", fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/api/render", writer.FormDataContentType(), body)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			switch statusErr.Code {
			case http.StatusUnsupportedMediaType:
				return "", document.ErrInvalidInputType
			case http.StatusConflict:
				return "", fmt.Errorf("%w: %s", viewer.ErrBusy, statusErr.Message)
			}
		}
		return "", err
	}
	defer resp.Body.Close()

	var started struct {
		JobID string `json:"jobId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&started); err != nil {
		return "", fmt.Errorf("failed to decode render response: %w", err)
	}
	if started.JobID == "" {
		return "", errors.New("render service returned no job id")
	}
	return started.JobID, nil
}

// Job fetches the state of a job
func (c *Client) Job(ctx context.Context, id string) (*Job, error) {
	var job Job
	if err := c.getJSON(ctx, "/api/jobs/"+id, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

// RecentJobs lists the newest jobs first
func (c *Client) RecentJobs(ctx context.Context, limit int) ([]Job, error) {
	var jobs []Job
	if err := c.getJSON(ctx, fmt.Sprintf("/api/jobs?limit=%d", limit), &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// ActiveJobs lists pending and running jobs
func (c *Client) ActiveJobs(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := c.getJSON(ctx, "/api/jobs/active", &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// Health fetches the server status
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.getJSON(ctx, "/api/health", &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Manifest fetches the page list of a rendered set
func (c *Client) Manifest(ctx context.Context, id string) (*document.Manifest, error) {
	var m document.Manifest
	if err := c.getJSON(ctx, "/api/render/"+id, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Page downloads a page image by its manifest URL
func (c *Client) Page(ctx context.Context, pageURL string) ([]byte, error) {
	resp, err := c.do(ctx, http.MethodGet, pageURL, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// Delete discards a rendered set on the server
func (c *Client) Delete(ctx context.Context, id string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/api/render/"+id, "", nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Demo downloads the demo document through the service
func (c *Client) Demo(ctx context.Context) (document.File, error) {
	resp, err := c.do(ctx, http.MethodGet, "/api/demo", "", nil)
	if err != nil {
		return document.File{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return document.File{}, fmt.Errorf("failed to read demo: %w", err)
	}
	name := "demo.pdf"
	if cd := resp.Header.Get("Content-Disposition"); cd != "" {
		if _, params, err := parseDisposition(cd); err == nil && params["filename"] != "" {
			name = params["filename"]
		}
	}
	return document.File{Name: name, MediaType: document.MIMEPDF, Data: data}, nil
}
