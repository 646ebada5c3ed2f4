// Package client talks to the OCR HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spherical/doc-ocr/internal/domain"
)

const defaultBaseURL = "http://localhost:8000"

// Client is the OCR API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Response is a successful OCR call.
type Response struct {
	ScanID      string
	ContentType string
	Body        []byte
}

// Document decodes a structured response.
func (r *Response) Document() (*domain.DocumentResult, error) {
	var doc domain.DocumentResult
	if err := json.Unmarshal(r.Body, &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return &doc, nil
}

// APIError is a non-2xx response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// NewClient creates a new client for baseURL. Requests time out after timeout;
// zero means no client-side timeout.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ProcessFile reads path and uploads it.
func (c *Client) ProcessFile(ctx context.Context, path, engine string, format domain.OutputFormat) (*Response, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	return c.Process(ctx, filepath.Base(path), data, engine, format)
}

// Process uploads one document to POST /ocr.
func (c *Client) Process(ctx context.Context, filename string, data []byte, engine string, format domain.OutputFormat) (*Response, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)

	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if engine != "" {
		if err := w.WriteField("engine", engine); err != nil {
			return nil, fmt.Errorf("writing engine field: %w", err)
		}
	}
	if format != "" {
		if err := w.WriteField("format", string(format)); err != nil {
			return nil, fmt.Errorf("writing format field: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/ocr", &body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, respBody)
	}

	return &Response{
		ScanID:      resp.Header.Get("X-Scan-ID"),
		ContentType: resp.Header.Get("Content-Type"),
		Body:        respBody,
	}, nil
}

// Health checks GET /health.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return apiError(resp.StatusCode, body)
	}
	return nil
}

func apiError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{StatusCode: status, Message: msg}
}
