// Package gemini implements a Recognizer on top of the Gemini vision API.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/spherical/doc-ocr/internal/domain"
)

const defaultModel = "gemini-1.5-flash"

const transcribePrompt = `Transcribe all text visible in this image exactly as written.
Output one line of text per line in the image, top to bottom.
Do not describe images, do not add commentary, do not use Markdown.
If there is no text, output nothing.`

type generateFunc func(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// Recognizer transcribes images one request per image.
type Recognizer struct {
	client   *genai.Client
	model    string
	generate generateFunc
}

// New connects to Gemini with the given API key.
func New(ctx context.Context, apiKey, model string) (*Recognizer, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, domain.ConfigError("GEMINI_API_KEY is empty", nil)
	}
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModel
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, domain.APIError("failed to create gemini client", err)
	}

	m := cl.GenerativeModel(model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(transcribePrompt)},
	}

	return &Recognizer{client: cl, model: model, generate: m.GenerateContent}, nil
}

// Model returns the model name in use.
func (r *Recognizer) Model() string { return r.model }

// Close releases the underlying client.
func (r *Recognizer) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Recognize implements domain.Recognizer.
func (r *Recognizer) Recognize(ctx context.Context, images []image.Image) ([]domain.RecognitionResult, error) {
	out := make([]domain.RecognitionResult, 0, len(images))
	for i, img := range images {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("gemini: encode image %d: %w", i, err)
		}

		resp, err := r.generate(ctx,
			genai.Text("Transcribe this image."),
			&genai.Blob{MIMEType: "image/png", Data: buf.Bytes()},
		)
		if err != nil {
			return nil, domain.APIError(fmt.Sprintf("gemini: image %d", i), err)
		}
		out = append(out, toResult(firstText(resp)))
	}
	return out, nil
}

// toResult splits a transcription into non-empty lines.
func toResult(text string) domain.RecognitionResult {
	var lines []domain.TextLine
	for _, l := range strings.Split(stripCodeFences(text), "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, domain.TextLine{Text: l})
		}
	}
	return domain.RecognitionResult{TextLines: lines}
}

func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSuffix(strings.TrimSpace(s), "```")
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }

