// Package surya talks to a layout and text recognition model server over
// HTTP. The server exposes POST /layout and POST /recognize, both taking
// base64 PNG images.
package surya

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spherical/doc-ocr/internal/domain"
	"github.com/spherical/doc-ocr/internal/observability"
)

const defaultBaseURL = "http://localhost:8001"

// Config holds client settings.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Retry   *RetryConfig
}

// Client is a LayoutSegmenter and Recognizer backed by the model server
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      *RetryConfig
	logger     *observability.Logger
}

// LayoutRequest is the body of POST /layout
type LayoutRequest struct {
	Image string `json:"image"`
}

// LayoutBox is one detected region
type LayoutBox struct {
	BBox       []float64 `json:"bbox"`
	Label      string    `json:"label"`
	Confidence float64   `json:"confidence,omitempty"`
}

// LayoutResponse is the body returned by POST /layout
type LayoutResponse struct {
	BBoxes []LayoutBox `json:"bboxes"`
}

// RecognizeRequest is the body of POST /recognize
type RecognizeRequest struct {
	Images []string `json:"images"`
}

// RecognizeResponse is the body returned by POST /recognize
type RecognizeResponse struct {
	Results []domain.RecognitionResult `json:"results"`
}

// NewClient creates a new model server client
func NewClient(cfg Config, logger *observability.Logger) *Client {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retry := cfg.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = observability.Nop()
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retry:      retry,
		logger:     logger.WithOperation("surya"),
	}
}

// Segment detects layout regions on img, ordered by top edge.
func (c *Client) Segment(ctx context.Context, img image.Image) ([]domain.Region, error) {
	encoded, err := encodeImage(img)
	if err != nil {
		return nil, domain.SegmentationError("failed to encode page", err)
	}

	var resp LayoutResponse
	if err := c.post(ctx, "/layout", LayoutRequest{Image: encoded}, &resp); err != nil {
		return nil, err
	}

	regions := make([]domain.Region, 0, len(resp.BBoxes))
	for i, b := range resp.BBoxes {
		if len(b.BBox) != 4 {
			return nil, domain.SegmentationError(fmt.Sprintf("bbox %d has %d coordinates", i, len(b.BBox)), nil)
		}
		regions = append(regions, domain.Region{
			BBox:  domain.BBox{X0: b.BBox[0], Y0: b.BBox[1], X1: b.BBox[2], Y1: b.BBox[3]},
			Label: domain.Label(b.Label),
		})
	}
	return regions, nil
}

// Recognize runs text recognition on each image.
func (c *Client) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	if len(images) == 0 {
		return nil, nil
	}

	req := RecognizeRequest{Images: make([]string, len(images))}
	for i, img := range images {
		encoded, err := encodeImage(img)
		if err != nil {
			return nil, domain.RecognitionError(fmt.Sprintf("failed to encode image %d", i), err)
		}
		req.Images[i] = encoded
	}

	var resp RecognizeResponse
	if err := c.post(ctx, "/recognize", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Results) != len(images) {
		return nil, domain.APIError(fmt.Sprintf("server returned %d results for %d images", len(resp.Results), len(images)), nil)
	}
	return resp.Results, nil
}

// Health checks that the model server is up.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError("model server unreachable", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.APIError(fmt.Sprintf("model server health returned %d", resp.StatusCode), nil)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, in, out interface{}) error {
	body, err := json.Marshal(in)
	if err != nil {
		return domain.APIError("failed to marshal request", err)
	}

	resp, err := c.retryWithBackoff(ctx, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return c.httpClient.Do(req)
	})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return domain.APIError(fmt.Sprintf("%s returned status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(bodyBytes))), nil)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.APIError(fmt.Sprintf("failed to decode %s response", path), err)
	}
	return nil
}

func encodeImage(img image.Image) (string, error) {
	if img == nil {
		return "", fmt.Errorf("nil image")
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
